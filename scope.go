package gatehouse

import (
	"context"

	"github.com/xraph/forge"
)

// scopeTenantID extracts the tenant ID from forge.Scope or standalone
// context. Falls back to the request's explicit tenant when neither is
// set.
func scopeTenantID(ctx context.Context, explicit string) string {
	if s, ok := forge.ScopeFrom(ctx); ok && s.OrgID() != "" {
		return s.OrgID()
	}
	if id := tenantIDFromContext(ctx); id != "" {
		return id
	}
	return explicit
}
