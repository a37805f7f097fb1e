package membership

import "context"

// Store defines persistence operations for tenant memberships.
//
// CreateMembership is an atomic conditional write on (tenant, user):
// creating a membership for a pair that already exists fails with an error
// wrapping store.ErrDuplicate. List operations order by (created_at, id)
// and return an opaque continuation token for the next page ("" when
// exhausted).
type Store interface {
	// CreateMembership persists a new membership.
	CreateMembership(ctx context.Context, m *Membership) error

	// GetMembership retrieves the membership for a (tenant, user) pair.
	GetMembership(ctx context.Context, tenantID, userID string) (*Membership, error)

	// UpdateMembership persists changes to a membership.
	UpdateMembership(ctx context.Context, m *Membership) error

	// DeleteMembership removes the membership for a (tenant, user) pair.
	DeleteMembership(ctx context.Context, tenantID, userID string) error

	// ListMembershipsByTenant returns a page of memberships in a tenant.
	ListMembershipsByTenant(ctx context.Context, tenantID string, filter *ListFilter) ([]*Membership, string, error)

	// ListMembershipsByUser returns a page of the user's memberships
	// across all tenants.
	ListMembershipsByUser(ctx context.Context, userID string, filter *ListFilter) ([]*Membership, string, error)

	// CountMembershipsByTenant returns the number of memberships in a
	// tenant matching the filter.
	CountMembershipsByTenant(ctx context.Context, tenantID string, filter *ListFilter) (int64, error)
}
