// Package usage defines per-period tenant usage counters, tier quota
// limits, and quota status computation.
package usage

import (
	"time"

	"github.com/xraph/gatehouse/id"
	"github.com/xraph/gatehouse/permission"
)

// QuotaKind names a metered counter with a tier-dependent ceiling.
type QuotaKind string

const (
	// QuotaAIAgents limits AI agents created per month.
	QuotaAIAgents QuotaKind = "aiAgents"

	// QuotaAPICalls limits API calls per day.
	QuotaAPICalls QuotaKind = "apiCalls"

	// QuotaStorageGB limits stored gigabytes per month.
	QuotaStorageGB QuotaKind = "storageGB"

	// QuotaExecutionMinutes limits execution minutes per month.
	QuotaExecutionMinutes QuotaKind = "executionMinutes"

	// QuotaActiveMembers limits active members per month.
	QuotaActiveMembers QuotaKind = "activeMembers"
)

// Kinds returns all quota kinds.
func Kinds() []QuotaKind {
	return []QuotaKind{
		QuotaAIAgents, QuotaAPICalls, QuotaStorageGB,
		QuotaExecutionMinutes, QuotaActiveMembers,
	}
}

// Unlimited is the limit value meaning no ceiling for a counter.
const Unlimited int64 = -1

// Usage holds the counters for one tenant in one period. Counters are
// monotonically non-decreasing within a period; a new period starts a new
// record rather than resetting an existing one.
type Usage struct {
	ID       id.UsageID `json:"id" db:"id"`
	TenantID string     `json:"tenant_id" db:"tenant_id"`

	// Period is "2006-01" for monthly counters or "2006-01-02" for
	// daily counters.
	Period string `json:"period" db:"period"`

	AIAgentsCreated  int64 `json:"ai_agents_created" db:"ai_agents_created"`
	APICalls         int64 `json:"api_calls" db:"api_calls"`
	StorageGB        int64 `json:"storage_gb" db:"storage_gb"`
	ExecutionMinutes int64 `json:"execution_minutes" db:"execution_minutes"`
	ActiveMembers    int64 `json:"active_members" db:"active_members"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Counter returns the value of the counter backing a quota kind.
// A nil usage record reads as zero everywhere.
func (u *Usage) Counter(kind QuotaKind) int64 {
	if u == nil {
		return 0
	}
	switch kind {
	case QuotaAIAgents:
		return u.AIAgentsCreated
	case QuotaAPICalls:
		return u.APICalls
	case QuotaStorageGB:
		return u.StorageGB
	case QuotaExecutionMinutes:
		return u.ExecutionMinutes
	case QuotaActiveMembers:
		return u.ActiveMembers
	}
	return 0
}

// PeriodFor returns the usage period key a quota kind belongs to at the
// given instant. API calls are metered daily; everything else monthly.
func PeriodFor(kind QuotaKind, at time.Time) string {
	at = at.UTC()
	if kind == QuotaAPICalls {
		return at.Format("2006-01-02")
	}
	return at.Format("2006-01")
}

// Limits is the quota ceiling set for one tier.
type Limits struct {
	AIAgentsPerMonth int64
	APICallsPerDay   int64
	StorageGB        int64
	ExecutionMinutes int64
	ActiveMembers    int64
}

// For returns the tier's limit for a quota kind.
func (l Limits) For(kind QuotaKind) int64 {
	switch kind {
	case QuotaAIAgents:
		return l.AIAgentsPerMonth
	case QuotaAPICalls:
		return l.APICallsPerDay
	case QuotaStorageGB:
		return l.StorageGB
	case QuotaExecutionMinutes:
		return l.ExecutionMinutes
	case QuotaActiveMembers:
		return l.ActiveMembers
	}
	return 0
}

// TierLimits maps each subscription tier to its quota ceilings.
var TierLimits = map[permission.Tier]Limits{
	permission.TierFree: {
		AIAgentsPerMonth: 3,
		APICallsPerDay:   1_000,
		StorageGB:        1,
		ExecutionMinutes: 60,
		ActiveMembers:    3,
	},
	permission.TierBasic: {
		AIAgentsPerMonth: 10,
		APICallsPerDay:   10_000,
		StorageGB:        10,
		ExecutionMinutes: 600,
		ActiveMembers:    10,
	},
	permission.TierPro: {
		AIAgentsPerMonth: 50,
		APICallsPerDay:   100_000,
		StorageGB:        100,
		ExecutionMinutes: 3_000,
		ActiveMembers:    50,
	},
	permission.TierExtreme: {
		AIAgentsPerMonth: 200,
		APICallsPerDay:   1_000_000,
		StorageGB:        1_000,
		ExecutionMinutes: 10_000,
		ActiveMembers:    200,
	},
	permission.TierEnterprise: {
		AIAgentsPerMonth: Unlimited,
		APICallsPerDay:   Unlimited,
		StorageGB:        Unlimited,
		ExecutionMinutes: Unlimited,
		ActiveMembers:    Unlimited,
	},
}

// LimitFor returns the quota ceiling for a tier and kind. Unknown tiers
// fall back to free-tier limits.
func LimitFor(tier permission.Tier, kind QuotaKind) int64 {
	l, ok := TierLimits[tier]
	if !ok {
		l = TierLimits[permission.TierFree]
	}
	return l.For(kind)
}

// QuotaStatus reports how much of a quota a tenant has consumed.
type QuotaStatus struct {
	Allowed   bool      `json:"allowed"`
	Kind      QuotaKind `json:"type"`
	Used      int64     `json:"used"`
	Limit     int64     `json:"limit"`
	Remaining int64     `json:"remaining"`
}

// Status computes the quota status for a tier, usage record, and kind.
// An unlimited ceiling always allows; otherwise the next unit is allowed
// iff used < limit; sitting exactly at the limit denies.
func Status(tier permission.Tier, u *Usage, kind QuotaKind) QuotaStatus {
	limit := LimitFor(tier, kind)
	used := u.Counter(kind)
	if limit == Unlimited {
		return QuotaStatus{Allowed: true, Kind: kind, Used: used, Limit: Unlimited, Remaining: Unlimited}
	}
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	return QuotaStatus{
		Allowed:   used < limit,
		Kind:      kind,
		Used:      used,
		Limit:     limit,
		Remaining: remaining,
	}
}

// KindForPermission maps a permission to the quota it consumes, if any.
// Agent creation draws on the monthly agent quota, the api namespace on
// the daily API-call quota, and the storage namespace (plus data.write)
// on the storage quota.
func KindForPermission(p permission.Permission) (QuotaKind, bool) {
	if p == permission.StudioCreateAgents {
		return QuotaAIAgents, true
	}
	if p == permission.DataWrite {
		return QuotaStorageGB, true
	}
	switch p.Namespace() {
	case "api":
		return QuotaAPICalls, true
	case "storage":
		return QuotaStorageGB, true
	}
	return "", false
}
