package tenant

import "context"

// Store defines persistence operations for tenant accounts.
//
// CreateTenant must be an atomic conditional write: creating an account
// whose ID already exists fails with an error wrapping store.ErrDuplicate
// and leaves the existing record untouched. Mutations of absent accounts
// fail with an error wrapping store.ErrNotFound, distinguishable from raw
// infrastructure failures.
type Store interface {
	// CreateTenant persists a new tenant account.
	CreateTenant(ctx context.Context, a *Account) error

	// GetTenant retrieves a tenant account by ID.
	GetTenant(ctx context.Context, tenantID string) (*Account, error)

	// UpdateTenant persists changes to a tenant account.
	UpdateTenant(ctx context.Context, a *Account) error

	// SoftDeleteTenant transitions the account status to deleted.
	// The record remains readable for audit queries.
	SoftDeleteTenant(ctx context.Context, tenantID string) error

	// BatchGetTenants retrieves accounts for the given IDs in one round
	// trip. Missing IDs are skipped, not errors.
	BatchGetTenants(ctx context.Context, tenantIDs []string) ([]*Account, error)
}
