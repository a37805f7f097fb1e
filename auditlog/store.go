package auditlog

import (
	"context"

	"github.com/xraph/gatehouse/id"
)

// Store persists audit entries. The log is append-only: no implementation
// exposes update or delete operations.
//
// Listings are ordered newest-first on (created_at, id) and paginate with
// opaque cursor tokens.
type Store interface {
	// AppendEntry writes one entry. Callers treat a failed append as a
	// failed operation; decisions are not returned without their entry.
	AppendEntry(ctx context.Context, e *Entry) error

	// GetEntry returns one entry by id, or store.ErrNotFound.
	GetEntry(ctx context.Context, entryID id.AuditID) (*Entry, error)

	// ListEntriesByTenant returns a tenant's trail, newest first.
	ListEntriesByTenant(ctx context.Context, tenantID string, filter QueryFilter) ([]*Entry, string, error)

	// ListEntriesByUser returns one user's trail within a tenant,
	// newest first.
	ListEntriesByUser(ctx context.Context, tenantID, userID string, filter QueryFilter) ([]*Entry, string, error)

	// CountEntries counts a tenant's entries matching the filter.
	CountEntries(ctx context.Context, tenantID string, filter QueryFilter) (int64, error)
}
