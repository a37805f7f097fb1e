package plugin

import (
	"context"
	"log/slog"

	"github.com/xraph/gatehouse/membership"
	"github.com/xraph/gatehouse/subscription"
	"github.com/xraph/gatehouse/tenant"
	"github.com/xraph/gatehouse/usage"
)

// Named entry types pair a hook with the plugin name for logging.

type beforeCheckEntry struct {
	name string
	hook BeforeCheck
}
type afterCheckEntry struct {
	name string
	hook AfterCheck
}
type tenantCreatedEntry struct {
	name string
	hook TenantCreated
}
type tenantUpdatedEntry struct {
	name string
	hook TenantUpdated
}
type tenantDeletedEntry struct {
	name string
	hook TenantDeleted
}
type membershipCreatedEntry struct {
	name string
	hook MembershipCreated
}
type membershipUpdatedEntry struct {
	name string
	hook MembershipUpdated
}
type membershipRemovedEntry struct {
	name string
	hook MembershipRemoved
}
type subscriptionChangedEntry struct {
	name string
	hook SubscriptionChanged
}
type usageRecordedEntry struct {
	name string
	hook UsageRecorded
}
type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered plugins and dispatches lifecycle events.
// It type-caches plugins at registration time so emit calls iterate
// only over plugins implementing the relevant hook.
type Registry struct {
	plugins []Plugin
	logger  *slog.Logger

	beforeCheck         []beforeCheckEntry
	afterCheck          []afterCheckEntry
	tenantCreated       []tenantCreatedEntry
	tenantUpdated       []tenantUpdatedEntry
	tenantDeleted       []tenantDeletedEntry
	membershipCreated   []membershipCreatedEntry
	membershipUpdated   []membershipUpdatedEntry
	membershipRemoved   []membershipRemovedEntry
	subscriptionChanged []subscriptionChangedEntry
	usageRecorded       []usageRecordedEntry
	shutdown            []shutdownEntry
}

// NewRegistry creates a plugin registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds a plugin and type-asserts it into all applicable
// hook caches. Plugins are notified in registration order.
func (r *Registry) Register(p Plugin) {
	r.plugins = append(r.plugins, p)
	name := p.Name()

	if h, ok := p.(BeforeCheck); ok {
		r.beforeCheck = append(r.beforeCheck, beforeCheckEntry{name, h})
	}
	if h, ok := p.(AfterCheck); ok {
		r.afterCheck = append(r.afterCheck, afterCheckEntry{name, h})
	}
	if h, ok := p.(TenantCreated); ok {
		r.tenantCreated = append(r.tenantCreated, tenantCreatedEntry{name, h})
	}
	if h, ok := p.(TenantUpdated); ok {
		r.tenantUpdated = append(r.tenantUpdated, tenantUpdatedEntry{name, h})
	}
	if h, ok := p.(TenantDeleted); ok {
		r.tenantDeleted = append(r.tenantDeleted, tenantDeletedEntry{name, h})
	}
	if h, ok := p.(MembershipCreated); ok {
		r.membershipCreated = append(r.membershipCreated, membershipCreatedEntry{name, h})
	}
	if h, ok := p.(MembershipUpdated); ok {
		r.membershipUpdated = append(r.membershipUpdated, membershipUpdatedEntry{name, h})
	}
	if h, ok := p.(MembershipRemoved); ok {
		r.membershipRemoved = append(r.membershipRemoved, membershipRemovedEntry{name, h})
	}
	if h, ok := p.(SubscriptionChanged); ok {
		r.subscriptionChanged = append(r.subscriptionChanged, subscriptionChangedEntry{name, h})
	}
	if h, ok := p.(UsageRecorded); ok {
		r.usageRecorded = append(r.usageRecorded, usageRecordedEntry{name, h})
	}
	if h, ok := p.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Plugins returns all registered plugins.
func (r *Registry) Plugins() []Plugin { return r.plugins }

// ──────────────────────────────────────────────────
// Check event emitters
// ──────────────────────────────────────────────────

// EmitBeforeCheck notifies all plugins that implement BeforeCheck.
func (r *Registry) EmitBeforeCheck(ctx context.Context, req any) {
	for _, e := range r.beforeCheck {
		if err := e.hook.OnBeforeCheck(ctx, req); err != nil {
			r.logHookError("OnBeforeCheck", e.name, err)
		}
	}
}

// EmitAfterCheck notifies all plugins that implement AfterCheck.
func (r *Registry) EmitAfterCheck(ctx context.Context, req, decision any) {
	for _, e := range r.afterCheck {
		if err := e.hook.OnAfterCheck(ctx, req, decision); err != nil {
			r.logHookError("OnAfterCheck", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Tenant event emitters
// ──────────────────────────────────────────────────

// EmitTenantCreated notifies all plugins that implement TenantCreated.
func (r *Registry) EmitTenantCreated(ctx context.Context, a *tenant.Account) {
	for _, e := range r.tenantCreated {
		if err := e.hook.OnTenantCreated(ctx, a); err != nil {
			r.logHookError("OnTenantCreated", e.name, err)
		}
	}
}

// EmitTenantUpdated notifies all plugins that implement TenantUpdated.
func (r *Registry) EmitTenantUpdated(ctx context.Context, a *tenant.Account) {
	for _, e := range r.tenantUpdated {
		if err := e.hook.OnTenantUpdated(ctx, a); err != nil {
			r.logHookError("OnTenantUpdated", e.name, err)
		}
	}
}

// EmitTenantDeleted notifies all plugins that implement TenantDeleted.
func (r *Registry) EmitTenantDeleted(ctx context.Context, tenantID string) {
	for _, e := range r.tenantDeleted {
		if err := e.hook.OnTenantDeleted(ctx, tenantID); err != nil {
			r.logHookError("OnTenantDeleted", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Membership event emitters
// ──────────────────────────────────────────────────

// EmitMembershipCreated notifies all plugins that implement MembershipCreated.
func (r *Registry) EmitMembershipCreated(ctx context.Context, m *membership.Membership) {
	for _, e := range r.membershipCreated {
		if err := e.hook.OnMembershipCreated(ctx, m); err != nil {
			r.logHookError("OnMembershipCreated", e.name, err)
		}
	}
}

// EmitMembershipUpdated notifies all plugins that implement MembershipUpdated.
func (r *Registry) EmitMembershipUpdated(ctx context.Context, m *membership.Membership) {
	for _, e := range r.membershipUpdated {
		if err := e.hook.OnMembershipUpdated(ctx, m); err != nil {
			r.logHookError("OnMembershipUpdated", e.name, err)
		}
	}
}

// EmitMembershipRemoved notifies all plugins that implement MembershipRemoved.
func (r *Registry) EmitMembershipRemoved(ctx context.Context, tenantID, userID string) {
	for _, e := range r.membershipRemoved {
		if err := e.hook.OnMembershipRemoved(ctx, tenantID, userID); err != nil {
			r.logHookError("OnMembershipRemoved", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Subscription and usage emitters
// ──────────────────────────────────────────────────

// EmitSubscriptionChanged notifies all plugins that implement SubscriptionChanged.
func (r *Registry) EmitSubscriptionChanged(ctx context.Context, s *subscription.Subscription) {
	for _, e := range r.subscriptionChanged {
		if err := e.hook.OnSubscriptionChanged(ctx, s); err != nil {
			r.logHookError("OnSubscriptionChanged", e.name, err)
		}
	}
}

// EmitUsageRecorded notifies all plugins that implement UsageRecorded.
func (r *Registry) EmitUsageRecorded(ctx context.Context, tenantID string, kind usage.QuotaKind, delta int64) {
	for _, e := range r.usageRecorded {
		if err := e.hook.OnUsageRecorded(ctx, tenantID, kind, delta); err != nil {
			r.logHookError("OnUsageRecorded", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Shutdown emitter
// ──────────────────────────────────────────────────

// EmitShutdown notifies all plugins that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated; they must not block the pipeline.
func (r *Registry) logHookError(hook, pluginName string, err error) {
	r.logger.Warn("plugin hook error",
		slog.String("hook", hook),
		slog.String("plugin", pluginName),
		slog.String("error", err.Error()),
	)
}
