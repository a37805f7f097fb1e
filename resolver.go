package gatehouse

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/gatehouse/permission"
	"github.com/xraph/gatehouse/store"
	"github.com/xraph/gatehouse/subscription"
)

// EffectivePermissions returns the permissions a user can currently
// exercise in a tenant: the role's static set plus expanded custom
// grants, filtered down to what the subscription tier allows.
func (e *Engine) EffectivePermissions(ctx context.Context, userID, tenantID string) ([]permission.Permission, error) {
	m, err := e.store.GetMembership(ctx, tenantID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrMembershipNotFound
		}
		return nil, fmt.Errorf("gatehouse: resolve membership %s/%s: %w", tenantID, userID, err)
	}
	if !m.IsActive() {
		return nil, ErrMembershipNotFound
	}

	tier, err := e.tenantTier(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	granted := permission.RolePermissions(m.Role).
		Union(permission.ExpandGrants(m.CustomPermissions))

	out := make([]permission.Permission, 0, len(granted))
	for _, p := range granted.Slice() {
		if permission.TierMeets(tier, p) {
			out = append(out, p)
		}
	}
	return out, nil
}

// HasPermissionInTenant reports whether the user's role grants the
// permission, ignoring tier and quota gates. Use CheckPermission for
// the full decision.
func (e *Engine) HasPermissionInTenant(ctx context.Context, userID, tenantID string, p permission.Permission) (bool, error) {
	m, err := e.store.GetMembership(ctx, tenantID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("gatehouse: resolve membership %s/%s: %w", tenantID, userID, err)
	}
	if !m.IsActive() {
		return false, nil
	}
	granted := permission.RolePermissions(m.Role).
		Union(permission.ExpandGrants(m.CustomPermissions))
	return granted.Has(p), nil
}

// UpgradeRecommendations lists the role-granted permissions the tenant's
// tier currently blocks, with the tier that would unlock each.
func (e *Engine) UpgradeRecommendations(ctx context.Context, userID, tenantID string) ([]UpgradePath, error) {
	m, err := e.store.GetMembership(ctx, tenantID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrMembershipNotFound
		}
		return nil, fmt.Errorf("gatehouse: resolve membership %s/%s: %w", tenantID, userID, err)
	}
	if !m.IsActive() {
		return nil, ErrMembershipNotFound
	}

	tier, err := e.tenantTier(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	granted := permission.RolePermissions(m.Role).
		Union(permission.ExpandGrants(m.CustomPermissions))

	var paths []UpgradePath
	seen := make(map[permission.Tier]struct{})
	for _, p := range granted.Slice() {
		if permission.TierMeets(tier, p) {
			continue
		}
		required := permission.RequiredTier(p)
		if _, ok := seen[required]; ok {
			continue
		}
		seen[required] = struct{}{}
		paths = append(paths, UpgradePath{
			CurrentTier:  tier,
			RequiredTier: required,
			Benefits:     permission.TierBenefits[required],
		})
	}
	return paths, nil
}

func (e *Engine) tenantTier(ctx context.Context, tenantID string) (permission.Tier, error) {
	sub, err := e.store.GetSubscription(ctx, tenantID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("gatehouse: resolve subscription %s: %w", tenantID, err)
	}
	return subscription.TierOf(sub), nil
}
