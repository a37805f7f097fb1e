package subscription

import "context"

// Store defines persistence operations for tenant subscriptions.
// There is at most one current record per tenant; UpsertSubscription
// replaces it in place.
type Store interface {
	// UpsertSubscription creates or replaces the tenant's subscription.
	UpsertSubscription(ctx context.Context, s *Subscription) error

	// GetSubscription retrieves the tenant's current subscription.
	// Absence is reported via store.ErrNotFound; callers treat it as
	// free tier, not a failure.
	GetSubscription(ctx context.Context, tenantID string) (*Subscription, error)

	// BatchGetSubscriptions retrieves subscriptions for the given tenant
	// IDs in one round trip. Tenants without a record are skipped.
	BatchGetSubscriptions(ctx context.Context, tenantIDs []string) ([]*Subscription, error)
}
