package usage

import "context"

// Store persists per-tenant per-period usage counters.
//
// Implementations must treat the (tenant, period) pair as the natural key:
// a tenant has at most one usage record per period, and counter updates
// create the record on first touch.
type Store interface {
	// UpsertUsage writes a full usage record, replacing any existing
	// record for the same tenant and period.
	UpsertUsage(ctx context.Context, u *Usage) error

	// GetUsage returns the usage record for a tenant and period, or
	// store.ErrNotFound when the tenant has no activity in that period.
	GetUsage(ctx context.Context, tenantID, period string) (*Usage, error)

	// AddUsage increments one counter by delta, creating the period
	// record if needed. It never checks limits.
	AddUsage(ctx context.Context, tenantID, period string, kind QuotaKind, delta int64) error

	// ReserveQuota atomically increments one counter by delta only if
	// the result stays within limit. It reports whether the reservation
	// was applied. A limit of Unlimited always applies. The check and
	// increment are a single atomic step per backend, so concurrent
	// reservations cannot jointly exceed the limit.
	ReserveQuota(ctx context.Context, tenantID, period string, kind QuotaKind, delta, limit int64) (bool, error)
}
