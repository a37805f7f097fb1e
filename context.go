package gatehouse

import "context"

type contextKey int

const ctxKeyTenantID contextKey = iota

// WithTenant returns a context carrying the given tenant ID.
// Use this for standalone mode (without Forge).
func WithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, ctxKeyTenantID, tenantID)
}

func tenantIDFromContext(ctx context.Context) string {
	v, ok := ctx.Value(ctxKeyTenantID).(string)
	if !ok {
		return ""
	}
	return v
}
