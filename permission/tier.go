package permission

// Tier is a subscription level gating feature availability.
// Tiers form a strict total order: free < basic < pro < extreme < enterprise.
type Tier string

const (
	TierFree       Tier = "free"
	TierBasic      Tier = "basic"
	TierPro        Tier = "pro"
	TierExtreme    Tier = "extreme"
	TierEnterprise Tier = "enterprise"
)

// tierOrder assigns each tier its ordinal in the total order.
var tierOrder = map[Tier]int{
	TierFree:       0,
	TierBasic:      1,
	TierPro:        2,
	TierExtreme:    3,
	TierEnterprise: 4,
}

// Tiers returns all tiers in ascending order.
func Tiers() []Tier {
	return []Tier{TierFree, TierBasic, TierPro, TierExtreme, TierEnterprise}
}

// ValidTier reports whether t is a known tier.
func ValidTier(t Tier) bool {
	_, ok := tierOrder[t]
	return ok
}

// Ordinal returns the tier's position in the total order. Unknown tiers
// rank below free so a corrupted value never grants paid features.
func (t Tier) Ordinal() int {
	o, ok := tierOrder[t]
	if !ok {
		return -1
	}
	return o
}

// AtLeast reports whether t's ordinal is >= other's ordinal.
// Monotonic: higher tiers are supersets of lower-tier grants.
func (t Tier) AtLeast(other Tier) bool {
	return t.Ordinal() >= other.Ordinal()
}

// FeatureTiers maps a permission to the minimum subscription tier required
// to exercise it. Permissions absent from this table have no tier
// requirement and are available on the free tier.
var FeatureTiers = map[Permission]Tier{
	DataExport:                TierBasic,
	LabRunExperiments:         TierBasic,
	LabRunAdvancedExperiments: TierPro,
	StorageManage:             TierBasic,
	MembersManageRoles:        TierBasic,
	APIAdmin:                  TierExtreme,
	TenantAuditExport:         TierEnterprise,
}

// RequiredTier returns the minimum tier needed for a permission.
func RequiredTier(p Permission) Tier {
	t, ok := FeatureTiers[p]
	if !ok {
		return TierFree
	}
	return t
}

// TierMeets reports whether userTier satisfies the permission's tier
// requirement.
func TierMeets(userTier Tier, p Permission) bool {
	return userTier.AtLeast(RequiredTier(p))
}

// MinimumTierFor returns the lowest tier satisfying every permission in
// denied (the max over their required tiers). An empty slice or a slice
// with no tier-gated permissions yields free.
func MinimumTierFor(denied []Permission) Tier {
	min := TierFree
	for _, p := range denied {
		if r := RequiredTier(p); r.Ordinal() > min.Ordinal() {
			min = r
		}
	}
	return min
}

// TierBenefits lists the headline capabilities unlocked at each tier,
// used when recommending an upgrade path.
var TierBenefits = map[Tier][]string{
	TierFree: {
		"Core workspace features",
	},
	TierBasic: {
		"Data export",
		"Standard lab experiments",
		"Storage management",
		"Member role management",
	},
	TierPro: {
		"Advanced lab experiments",
		"Higher agent and API quotas",
	},
	TierExtreme: {
		"API administration",
		"Extended quotas across all counters",
	},
	TierEnterprise: {
		"Audit log export",
		"Unlimited usage quotas",
	},
}
