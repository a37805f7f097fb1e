package permission_test

import (
	"testing"

	"github.com/xraph/gatehouse/permission"
)

func TestTierOrdering(t *testing.T) {
	tiers := permission.Tiers()
	for i := 1; i < len(tiers); i++ {
		if tiers[i-1].Ordinal() >= tiers[i].Ordinal() {
			t.Errorf("tier order broken between %q and %q", tiers[i-1], tiers[i])
		}
	}
	if !permission.TierEnterprise.AtLeast(permission.TierFree) {
		t.Error("enterprise must satisfy free")
	}
	if permission.TierFree.AtLeast(permission.TierBasic) {
		t.Error("free must not satisfy basic")
	}
}

func TestUnknownTierRanksBelowFree(t *testing.T) {
	bogus := permission.Tier("platinum")
	if permission.ValidTier(bogus) {
		t.Error("platinum should not be a valid tier")
	}
	if bogus.AtLeast(permission.TierFree) {
		t.Error("an unknown tier must never satisfy any requirement")
	}
}

// Monotonicity: if tier A >= tier B and B satisfies a permission's
// requirement, A satisfies it too.
func TestTierMonotonicity(t *testing.T) {
	tiers := permission.Tiers()
	for _, p := range permission.All() {
		for i, b := range tiers {
			if !permission.TierMeets(b, p) {
				continue
			}
			for _, a := range tiers[i:] {
				if !permission.TierMeets(a, p) {
					t.Errorf("tier %q satisfies %q but higher tier %q does not", b, p, a)
				}
			}
		}
	}
}

func TestRequiredTier(t *testing.T) {
	tests := []struct {
		perm permission.Permission
		want permission.Tier
	}{
		{permission.LabRunAdvancedExperiments, permission.TierPro},
		{permission.DataExport, permission.TierBasic},
		{permission.APIAdmin, permission.TierExtreme},
		{permission.TenantAuditExport, permission.TierEnterprise},
		// Absent from the table: no requirement.
		{permission.DataRead, permission.TierFree},
		{permission.StudioCreateAgents, permission.TierFree},
	}
	for _, tt := range tests {
		if got := permission.RequiredTier(tt.perm); got != tt.want {
			t.Errorf("RequiredTier(%q) = %q, want %q", tt.perm, got, tt.want)
		}
	}
}

func TestMinimumTierFor(t *testing.T) {
	got := permission.MinimumTierFor([]permission.Permission{
		permission.DataExport,
		permission.LabRunAdvancedExperiments,
	})
	if got != permission.TierPro {
		t.Errorf("expected pro (max of basic and pro), got %q", got)
	}

	if got := permission.MinimumTierFor(nil); got != permission.TierFree {
		t.Errorf("empty denied set should recommend free, got %q", got)
	}
	if got := permission.MinimumTierFor([]permission.Permission{permission.DataRead}); got != permission.TierFree {
		t.Errorf("un-gated permissions should recommend free, got %q", got)
	}
}

func TestEveryTierHasBenefits(t *testing.T) {
	for _, tier := range permission.Tiers() {
		if len(permission.TierBenefits[tier]) == 0 {
			t.Errorf("tier %q has no benefit list", tier)
		}
	}
}
