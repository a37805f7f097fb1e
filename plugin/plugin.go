// Package plugin defines the plugin system for Gatehouse.
// Plugins are notified of lifecycle events (access checked, tenant
// created, subscription changed, etc.) and can react: logging, metrics,
// billing sync, and so on.
//
// Each lifecycle hook is a separate interface so plugins opt in only
// to the events they care about.
package plugin

import (
	"context"

	"github.com/xraph/gatehouse/membership"
	"github.com/xraph/gatehouse/subscription"
	"github.com/xraph/gatehouse/tenant"
	"github.com/xraph/gatehouse/usage"
)

// Plugin is the base interface all plugins must implement.
type Plugin interface {
	// Name returns a unique human-readable name for the plugin.
	Name() string
}

// ──────────────────────────────────────────────────
// Check lifecycle hooks
// ──────────────────────────────────────────────────

// BeforeCheck is called before an access check is evaluated.
// The req parameter is *gatehouse.AccessRequest (passed as any to avoid
// an import cycle).
type BeforeCheck interface {
	OnBeforeCheck(ctx context.Context, req any) error
}

// AfterCheck is called after an access check completes.
// The req parameter is *gatehouse.AccessRequest; decision is
// *gatehouse.AccessDecision.
type AfterCheck interface {
	OnAfterCheck(ctx context.Context, req, decision any) error
}

// ──────────────────────────────────────────────────
// Tenant lifecycle hooks
// ──────────────────────────────────────────────────

// TenantCreated is called after a tenant account is created.
type TenantCreated interface {
	OnTenantCreated(ctx context.Context, a *tenant.Account) error
}

// TenantUpdated is called after a tenant account is updated.
type TenantUpdated interface {
	OnTenantUpdated(ctx context.Context, a *tenant.Account) error
}

// TenantDeleted is called after a tenant account is soft-deleted.
type TenantDeleted interface {
	OnTenantDeleted(ctx context.Context, tenantID string) error
}

// ──────────────────────────────────────────────────
// Membership lifecycle hooks
// ──────────────────────────────────────────────────

// MembershipCreated is called after a membership is created.
type MembershipCreated interface {
	OnMembershipCreated(ctx context.Context, m *membership.Membership) error
}

// MembershipUpdated is called after a membership is updated.
type MembershipUpdated interface {
	OnMembershipUpdated(ctx context.Context, m *membership.Membership) error
}

// MembershipRemoved is called after a membership is removed.
type MembershipRemoved interface {
	OnMembershipRemoved(ctx context.Context, tenantID, userID string) error
}

// ──────────────────────────────────────────────────
// Subscription and usage hooks
// ──────────────────────────────────────────────────

// SubscriptionChanged is called after a tenant's subscription changes.
type SubscriptionChanged interface {
	OnSubscriptionChanged(ctx context.Context, s *subscription.Subscription) error
}

// UsageRecorded is called after usage is recorded against a quota.
type UsageRecorded interface {
	OnUsageRecorded(ctx context.Context, tenantID string, kind usage.QuotaKind, delta int64) error
}

// ──────────────────────────────────────────────────
// Shutdown hook
// ──────────────────────────────────────────────────

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
