package gatehouse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/gatehouse/auditlog"
	"github.com/xraph/gatehouse/membership"
	"github.com/xraph/gatehouse/permission"
	"github.com/xraph/gatehouse/store"
	"github.com/xraph/gatehouse/subscription"
	"github.com/xraph/gatehouse/tenant"
	"github.com/xraph/gatehouse/usage"
)

// ──────────────────────────────────────────────────────────────────────
// Tenant lifecycle
// ──────────────────────────────────────────────────────────────────────

// CreateTenant provisions a tenant account with the owner as its first
// admin member and a free-tier subscription.
func (e *Engine) CreateTenant(ctx context.Context, name string, accountType tenant.AccountType, ownerUserID string) (*tenant.Account, error) {
	acct, err := tenant.New(name, accountType, ownerUserID)
	if err != nil {
		return nil, err
	}
	if err := e.store.CreateTenant(ctx, acct); err != nil {
		return nil, fmt.Errorf("gatehouse: create tenant: %w", err)
	}

	owner, err := membership.New(acct.ID, ownerUserID, permission.RoleTenantAdmin)
	if err != nil {
		return nil, err
	}
	if err := e.store.CreateMembership(ctx, owner); err != nil {
		return nil, fmt.Errorf("gatehouse: create owner membership: %w", err)
	}
	// The owner occupies a seat like any other member, but is never
	// blocked by the seat limit.
	if err := e.store.AddUsage(ctx, acct.ID, usage.PeriodFor(usage.QuotaActiveMembers, time.Now()), usage.QuotaActiveMembers, 1); err != nil {
		return nil, fmt.Errorf("gatehouse: record owner seat: %w", err)
	}

	sub, err := subscription.New(acct.ID, permission.TierFree)
	if err != nil {
		return nil, err
	}
	if err := e.store.UpsertSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("gatehouse: create subscription: %w", err)
	}

	e.appendAudit(ctx, auditlog.New(acct.ID, ownerUserID, auditlog.ActionTenantCreated, auditlog.ResultAllow))
	if e.plugins != nil {
		e.plugins.EmitTenantCreated(ctx, acct)
		e.plugins.EmitMembershipCreated(ctx, owner)
	}
	return acct, nil
}

// GetTenant retrieves a tenant account.
func (e *Engine) GetTenant(ctx context.Context, tenantID string) (*tenant.Account, error) {
	acct, err := e.store.GetTenant(ctx, tenantID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrTenantNotFound
		}
		return nil, fmt.Errorf("gatehouse: get tenant %s: %w", tenantID, err)
	}
	return acct, nil
}

// UpdateTenant persists changes to a tenant account. actorUserID is the
// user the audit entry is attributed to.
func (e *Engine) UpdateTenant(ctx context.Context, actorUserID string, acct *tenant.Account) error {
	if err := acct.Validate(); err != nil {
		return err
	}
	acct.UpdatedAt = time.Now().UTC()
	if err := e.store.UpdateTenant(ctx, acct); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrTenantNotFound
		}
		return fmt.Errorf("gatehouse: update tenant %s: %w", acct.ID, err)
	}
	e.appendAudit(ctx, auditlog.New(acct.ID, actorUserID, auditlog.ActionTenantUpdated, auditlog.ResultAllow))
	if e.plugins != nil {
		e.plugins.EmitTenantUpdated(ctx, acct)
	}
	return nil
}

// DeleteTenant soft-deletes a tenant. The record and its history stay
// readable for audit queries; authorization against it stops.
func (e *Engine) DeleteTenant(ctx context.Context, actorUserID, tenantID string) error {
	if err := e.store.SoftDeleteTenant(ctx, tenantID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrTenantNotFound
		}
		return fmt.Errorf("gatehouse: delete tenant %s: %w", tenantID, err)
	}
	if e.cache != nil {
		e.cache.InvalidateTenant(ctx, tenantID)
	}
	e.appendAudit(ctx, auditlog.New(tenantID, actorUserID, auditlog.ActionTenantDeleted, auditlog.ResultAllow))
	if e.plugins != nil {
		e.plugins.EmitTenantDeleted(ctx, tenantID)
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────
// Membership lifecycle
// ──────────────────────────────────────────────────────────────────────

// AddMember adds a user to a tenant. The active-member quota for the
// tenant's tier is reserved atomically before the membership is written,
// so concurrent adds cannot jointly exceed the seat limit.
func (e *Engine) AddMember(ctx context.Context, actorUserID, tenantID, userID string, role permission.TenantRole) (*membership.Membership, error) {
	if !permission.ValidTenantRole(role) {
		return nil, ErrInvalidRole
	}
	acct, err := e.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !acct.IsActive() {
		return nil, ErrTenantInactive
	}

	tier, err := e.tenantTier(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	period := usage.PeriodFor(usage.QuotaActiveMembers, time.Now())
	limit := usage.LimitFor(tier, usage.QuotaActiveMembers)
	ok, err := e.store.ReserveQuota(ctx, tenantID, period, usage.QuotaActiveMembers, 1, limit)
	if err != nil {
		return nil, fmt.Errorf("gatehouse: reserve member seat %s: %w", tenantID, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: active members at limit %d", ErrQuotaExceeded, limit)
	}

	m, err := membership.New(tenantID, userID, role)
	if err != nil {
		e.releaseSeat(ctx, tenantID, period)
		return nil, err
	}
	m.InvitedBy = actorUserID
	if err := e.store.CreateMembership(ctx, m); err != nil {
		e.releaseSeat(ctx, tenantID, period)
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrDuplicateMembership
		}
		return nil, fmt.Errorf("gatehouse: create membership %s/%s: %w", tenantID, userID, err)
	}

	if e.cache != nil {
		e.cache.InvalidateUser(ctx, tenantID, userID)
	}
	entry := auditlog.New(tenantID, actorUserID, auditlog.ActionMemberAdded, auditlog.ResultAllow)
	entry.Metadata = map[string]any{"member_user_id": userID, "role": string(role)}
	e.appendAudit(ctx, entry)
	if e.plugins != nil {
		e.plugins.EmitMembershipCreated(ctx, m)
	}
	return m, nil
}

// releaseSeat undoes a seat reservation after a failed member add.
func (e *Engine) releaseSeat(ctx context.Context, tenantID, period string) {
	if err := e.store.AddUsage(ctx, tenantID, period, usage.QuotaActiveMembers, -1); err != nil {
		e.logger.Error("gatehouse: release member seat failed", "error", err, "tenant_id", tenantID)
	}
}

// UpdateMember changes a member's role or custom permission grants.
func (e *Engine) UpdateMember(ctx context.Context, actorUserID string, m *membership.Membership) error {
	if err := m.Validate(); err != nil {
		return err
	}
	m.UpdatedAt = time.Now().UTC()
	if err := e.store.UpdateMembership(ctx, m); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrMembershipNotFound
		}
		return fmt.Errorf("gatehouse: update membership %s/%s: %w", m.TenantID, m.UserID, err)
	}

	if e.cache != nil {
		e.cache.InvalidateUser(ctx, m.TenantID, m.UserID)
	}
	entry := auditlog.New(m.TenantID, actorUserID, auditlog.ActionMemberUpdated, auditlog.ResultAllow)
	entry.Metadata = map[string]any{"member_user_id": m.UserID, "role": string(m.Role)}
	e.appendAudit(ctx, entry)
	if e.plugins != nil {
		e.plugins.EmitMembershipUpdated(ctx, m)
	}
	return nil
}

// RemoveMember removes a user from a tenant and releases the seat.
func (e *Engine) RemoveMember(ctx context.Context, actorUserID, tenantID, userID string) error {
	if err := e.store.DeleteMembership(ctx, tenantID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrMembershipNotFound
		}
		return fmt.Errorf("gatehouse: delete membership %s/%s: %w", tenantID, userID, err)
	}
	period := usage.PeriodFor(usage.QuotaActiveMembers, time.Now())
	e.releaseSeat(ctx, tenantID, period)

	if e.cache != nil {
		e.cache.InvalidateUser(ctx, tenantID, userID)
	}
	entry := auditlog.New(tenantID, actorUserID, auditlog.ActionMemberRemoved, auditlog.ResultAllow)
	entry.Metadata = map[string]any{"member_user_id": userID}
	e.appendAudit(ctx, entry)
	if e.plugins != nil {
		e.plugins.EmitMembershipRemoved(ctx, tenantID, userID)
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────
// Subscription
// ──────────────────────────────────────────────────────────────────────

// SetSubscription changes a tenant's subscription tier, replacing any
// existing record. The new tier takes effect on the next check.
func (e *Engine) SetSubscription(ctx context.Context, actorUserID, tenantID string, tier permission.Tier) (*subscription.Subscription, error) {
	if !permission.ValidTier(tier) {
		return nil, ErrInvalidTier
	}
	sub, err := subscription.New(tenantID, tier)
	if err != nil {
		return nil, err
	}
	if err := e.store.UpsertSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("gatehouse: set subscription %s: %w", tenantID, err)
	}

	if e.cache != nil {
		e.cache.InvalidateTenant(ctx, tenantID)
	}
	entry := auditlog.New(tenantID, actorUserID, auditlog.ActionSubscriptionChanged, auditlog.ResultAllow)
	entry.Metadata = map[string]any{"tier": string(tier)}
	e.appendAudit(ctx, entry)
	if e.plugins != nil {
		e.plugins.EmitSubscriptionChanged(ctx, sub)
	}
	return sub, nil
}

// ──────────────────────────────────────────────────────────────────────
// Usage
// ──────────────────────────────────────────────────────────────────────

// RecordUsage increments a usage counter for the current period without
// checking limits. Use ReserveQuota when the increment must respect the
// tenant's limit.
func (e *Engine) RecordUsage(ctx context.Context, tenantID string, kind usage.QuotaKind, delta int64) error {
	period := usage.PeriodFor(kind, time.Now())
	if err := e.store.AddUsage(ctx, tenantID, period, kind, delta); err != nil {
		return fmt.Errorf("gatehouse: record usage %s/%s: %w", tenantID, kind, err)
	}
	if e.plugins != nil {
		e.plugins.EmitUsageRecorded(ctx, tenantID, kind, delta)
	}
	return nil
}

// ReserveQuota atomically consumes quota for the current period against
// the tenant's tier limit. It returns ErrQuotaExceeded when the
// reservation would push the counter past the limit.
func (e *Engine) ReserveQuota(ctx context.Context, tenantID string, kind usage.QuotaKind, delta int64) error {
	tier, err := e.tenantTier(ctx, tenantID)
	if err != nil {
		return err
	}
	period := usage.PeriodFor(kind, time.Now())
	limit := usage.LimitFor(tier, kind)
	ok, err := e.store.ReserveQuota(ctx, tenantID, period, kind, delta, limit)
	if err != nil {
		return fmt.Errorf("gatehouse: reserve quota %s/%s: %w", tenantID, kind, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s at limit %d", ErrQuotaExceeded, kind, limit)
	}
	if e.plugins != nil {
		e.plugins.EmitUsageRecorded(ctx, tenantID, kind, delta)
	}
	return nil
}

// QuotaStatus reports current consumption for one quota kind without
// mutating anything.
func (e *Engine) QuotaStatus(ctx context.Context, tenantID string, kind usage.QuotaKind) (usage.QuotaStatus, error) {
	tier, err := e.tenantTier(ctx, tenantID)
	if err != nil {
		return usage.QuotaStatus{}, err
	}
	period := usage.PeriodFor(kind, time.Now())
	u, err := e.store.GetUsage(ctx, tenantID, period)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return usage.QuotaStatus{}, fmt.Errorf("gatehouse: get usage %s/%s: %w", tenantID, period, err)
	}
	return usage.Status(tier, u, kind), nil
}

// ──────────────────────────────────────────────────────────────────────
// Views
// ──────────────────────────────────────────────────────────────────────

// TenantView pairs a tenant with the caller's role and the tenant's tier
// for workspace-switcher style listings.
type TenantView struct {
	Tenant *tenant.Account       `json:"tenant"`
	Role   permission.TenantRole `json:"role"`
	Tier   permission.Tier       `json:"tier"`
}

// UserTenants lists the tenants a user belongs to, with role and tier.
// Results follow membership order; pagination flows through the filter.
func (e *Engine) UserTenants(ctx context.Context, userID string, filter *membership.ListFilter) ([]*TenantView, string, error) {
	members, next, err := e.store.ListMembershipsByUser(ctx, userID, filter)
	if err != nil {
		return nil, "", fmt.Errorf("gatehouse: list memberships for %s: %w", userID, err)
	}
	if len(members) == 0 {
		return nil, next, nil
	}

	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.TenantID)
	}
	accounts, err := e.store.BatchGetTenants(ctx, ids)
	if err != nil {
		return nil, "", fmt.Errorf("gatehouse: batch get tenants: %w", err)
	}
	subs, err := e.store.BatchGetSubscriptions(ctx, ids)
	if err != nil {
		return nil, "", fmt.Errorf("gatehouse: batch get subscriptions: %w", err)
	}

	byTenant := make(map[string]*tenant.Account, len(accounts))
	for _, a := range accounts {
		byTenant[a.ID] = a
	}
	tierByTenant := make(map[string]permission.Tier, len(subs))
	for _, s := range subs {
		tierByTenant[s.TenantID] = s.Tier
	}

	views := make([]*TenantView, 0, len(members))
	for _, m := range members {
		acct, ok := byTenant[m.TenantID]
		if !ok {
			continue
		}
		tier, ok := tierByTenant[m.TenantID]
		if !ok {
			tier = permission.TierFree
		}
		views = append(views, &TenantView{Tenant: acct, Role: m.Role, Tier: tier})
	}
	return views, next, nil
}

// ──────────────────────────────────────────────────────────────────────
// Audit access
// ──────────────────────────────────────────────────────────────────────

// AuditTrail returns a tenant's audit entries, newest first.
func (e *Engine) AuditTrail(ctx context.Context, tenantID string, filter auditlog.QueryFilter) ([]*auditlog.Entry, string, error) {
	entries, next, err := e.store.ListEntriesByTenant(ctx, tenantID, filter)
	if err != nil {
		return nil, "", fmt.Errorf("gatehouse: list audit entries %s: %w", tenantID, err)
	}
	return entries, next, nil
}

// UserAuditTrail returns one user's audit entries within a tenant,
// newest first.
func (e *Engine) UserAuditTrail(ctx context.Context, tenantID, userID string, filter auditlog.QueryFilter) ([]*auditlog.Entry, string, error) {
	entries, next, err := e.store.ListEntriesByUser(ctx, tenantID, userID, filter)
	if err != nil {
		return nil, "", fmt.Errorf("gatehouse: list audit entries %s/%s: %w", tenantID, userID, err)
	}
	return entries, next, nil
}

// appendAudit writes a lifecycle entry. Lifecycle audit failures are
// logged, not fatal: the mutation already happened.
func (e *Engine) appendAudit(ctx context.Context, entry *auditlog.Entry) {
	if err := e.store.AppendEntry(ctx, entry); err != nil {
		e.logger.Error("gatehouse: audit append failed",
			"error", err, "tenant_id", entry.TenantID, "action", string(entry.Action))
	}
}
