package gatehouse

import (
	"context"
	"errors"
	"testing"

	"github.com/xraph/gatehouse/membership"
	"github.com/xraph/gatehouse/permission"
)

func TestEffectivePermissions_TierFiltered(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	tid := seedTenant(t, eng, "u1")

	perms, err := eng.EffectivePermissions(ctx, "u1", tid)
	if err != nil {
		t.Fatal(err)
	}
	has := permission.NewSet(perms...)
	if !has.Has(permission.DataRead) {
		t.Fatal("admin on free tier should read data")
	}
	// Role-granted but pro-gated: filtered out on free.
	if has.Has(permission.LabRunAdvancedExperiments) {
		t.Fatal("free tier must not expose pro-gated permissions")
	}

	if _, err := eng.SetSubscription(ctx, "u1", tid, permission.TierPro); err != nil {
		t.Fatal(err)
	}
	perms, err = eng.EffectivePermissions(ctx, "u1", tid)
	if err != nil {
		t.Fatal(err)
	}
	if !permission.NewSet(perms...).Has(permission.LabRunAdvancedExperiments) {
		t.Fatal("pro tier should expose the gated permission")
	}
}

func TestEffectivePermissions_NotAMember(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	tid := seedTenant(t, eng, "u1")

	_, err := eng.EffectivePermissions(ctx, "stranger", tid)
	if !errors.Is(err, ErrMembershipNotFound) {
		t.Fatalf("expected ErrMembershipNotFound, got %v", err)
	}
}

func TestHasPermissionInTenant_IgnoresTier(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	tid := seedTenant(t, eng, "u1")

	// Role grants it even though the free tier blocks it.
	ok, err := eng.HasPermissionInTenant(ctx, "u1", tid, permission.LabRunAdvancedExperiments)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("role check should ignore tier gates")
	}

	ok, err = eng.HasPermissionInTenant(ctx, "stranger", tid, permission.DataRead)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("non-members hold no permissions")
	}
}

func TestUpgradeRecommendations(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	tid := seedTenant(t, eng, "u1")

	paths, err := eng.UpgradeRecommendations(ctx, "u1", tid)
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) == 0 {
		t.Fatal("free-tier admin should have blocked permissions")
	}
	tiers := make(map[permission.Tier]bool, len(paths))
	for _, p := range paths {
		if p.CurrentTier != permission.TierFree {
			t.Fatalf("unexpected current tier %s", p.CurrentTier)
		}
		if tiers[p.RequiredTier] {
			t.Fatalf("duplicate recommendation for tier %s", p.RequiredTier)
		}
		tiers[p.RequiredTier] = true
	}

	// Enterprise unlocks everything.
	if _, err := eng.SetSubscription(ctx, "u1", tid, permission.TierEnterprise); err != nil {
		t.Fatal(err)
	}
	paths, err = eng.UpgradeRecommendations(ctx, "u1", tid)
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 0 {
		t.Fatalf("enterprise should have no recommendations, got %d", len(paths))
	}
}

func TestUpgradeRecommendations_SuspendedMember(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)
	tid := seedTenant(t, eng, "u1")
	if _, err := eng.AddMember(ctx, "u1", tid, "u2", permission.RoleTenantUser); err != nil {
		t.Fatal(err)
	}

	m, err := s.GetMembership(ctx, tid, "u2")
	if err != nil {
		t.Fatal(err)
	}
	m.Status = membership.StatusSuspended
	if err := eng.UpdateMember(ctx, "u1", m); err != nil {
		t.Fatal(err)
	}

	if _, err := eng.UpgradeRecommendations(ctx, "u2", tid); !errors.Is(err, ErrMembershipNotFound) {
		t.Fatalf("expected ErrMembershipNotFound for suspended member, got %v", err)
	}
}
