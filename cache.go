package gatehouse

import "context"

// Cache stores recent access decisions keyed by request identity.
// Implementations must be safe for concurrent use.
//
// The engine never caches quota-metered permissions (their decisions
// depend on counters that move between checks) or requests that carry a
// Resource (the resource rules read owner and attribute values outside
// the cache key). Everything else is cacheable within the
// implementation's TTL, and the management operations invalidate
// affected tenants on membership and subscription changes.
type Cache interface {
	// Get returns a cached decision for the request.
	Get(ctx context.Context, req *AccessRequest) (*AccessDecision, bool)

	// Set stores a decision for the request.
	Set(ctx context.Context, req *AccessRequest, d *AccessDecision)

	// InvalidateTenant removes all cached decisions for a tenant.
	InvalidateTenant(ctx context.Context, tenantID string)

	// InvalidateUser removes all cached decisions for one user in a
	// tenant.
	InvalidateUser(ctx context.Context, tenantID, userID string)
}
