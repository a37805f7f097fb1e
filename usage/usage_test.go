package usage_test

import (
	"testing"
	"time"

	"github.com/xraph/gatehouse/permission"
	"github.com/xraph/gatehouse/usage"
)

func TestPeriodFor(t *testing.T) {
	at := time.Date(2025, 3, 15, 23, 45, 0, 0, time.UTC)

	if got := usage.PeriodFor(usage.QuotaAPICalls, at); got != "2025-03-15" {
		t.Errorf("api calls period = %q, want daily 2025-03-15", got)
	}
	for _, kind := range []usage.QuotaKind{
		usage.QuotaAIAgents, usage.QuotaStorageGB,
		usage.QuotaExecutionMinutes, usage.QuotaActiveMembers,
	} {
		if got := usage.PeriodFor(kind, at); got != "2025-03" {
			t.Errorf("%s period = %q, want monthly 2025-03", kind, got)
		}
	}
}

func TestStatusStrictLimit(t *testing.T) {
	u := &usage.Usage{AIAgentsCreated: 3}

	st := usage.Status(permission.TierFree, u, usage.QuotaAIAgents)
	if st.Allowed {
		t.Error("at-limit usage should not allow the next unit")
	}
	if st.Remaining != 0 {
		t.Errorf("remaining = %d, want 0", st.Remaining)
	}

	u.AIAgentsCreated = 2
	st = usage.Status(permission.TierFree, u, usage.QuotaAIAgents)
	if !st.Allowed {
		t.Error("under-limit usage should allow")
	}
	if st.Remaining != 1 {
		t.Errorf("remaining = %d, want 1", st.Remaining)
	}
}

func TestStatusNilUsage(t *testing.T) {
	st := usage.Status(permission.TierFree, nil, usage.QuotaAPICalls)
	if !st.Allowed {
		t.Error("nil usage should read as zero and allow")
	}
	if st.Used != 0 {
		t.Errorf("used = %d, want 0", st.Used)
	}
	if st.Limit != 1000 {
		t.Errorf("limit = %d, want 1000", st.Limit)
	}
}

func TestStatusUnlimited(t *testing.T) {
	u := &usage.Usage{APICalls: 9_999_999}
	st := usage.Status(permission.TierEnterprise, u, usage.QuotaAPICalls)
	if !st.Allowed {
		t.Error("enterprise tier should be unlimited")
	}
	if st.Limit != usage.Unlimited || st.Remaining != usage.Unlimited {
		t.Errorf("limit/remaining = %d/%d, want unlimited", st.Limit, st.Remaining)
	}
}

func TestStatusUnknownTierFallsBackToFree(t *testing.T) {
	st := usage.Status(permission.Tier("platinum"), nil, usage.QuotaAIAgents)
	if st.Limit != usage.TierLimits[permission.TierFree].AIAgentsPerMonth {
		t.Errorf("unknown tier limit = %d, want free-tier limit", st.Limit)
	}
}

func TestTierLimitsCoverAllTiers(t *testing.T) {
	for _, tier := range permission.Tiers() {
		l, ok := usage.TierLimits[tier]
		if !ok {
			t.Errorf("tier %s has no limits", tier)
			continue
		}
		for _, kind := range usage.Kinds() {
			if l.For(kind) == 0 {
				t.Errorf("tier %s kind %s has zero limit", tier, kind)
			}
		}
	}
}

func TestLimitsMonotonicAcrossTiers(t *testing.T) {
	tiers := permission.Tiers()
	for _, kind := range usage.Kinds() {
		prev := int64(0)
		for _, tier := range tiers {
			cur := usage.LimitFor(tier, kind)
			if cur == usage.Unlimited {
				continue
			}
			if cur < prev {
				t.Errorf("kind %s: limit shrinks from %d to %d at tier %s", kind, prev, cur, tier)
			}
			prev = cur
		}
	}
}

func TestKindForPermission(t *testing.T) {
	tests := []struct {
		perm permission.Permission
		kind usage.QuotaKind
		ok   bool
	}{
		{permission.StudioCreateAgents, usage.QuotaAIAgents, true},
		{permission.APIAccess, usage.QuotaAPICalls, true},
		{permission.APIAdmin, usage.QuotaAPICalls, true},
		{permission.StorageUpload, usage.QuotaStorageGB, true},
		{permission.StorageManage, usage.QuotaStorageGB, true},
		{permission.DataWrite, usage.QuotaStorageGB, true},
		{permission.DataRead, "", false},
		{permission.MembersView, "", false},
	}
	for _, tt := range tests {
		kind, ok := usage.KindForPermission(tt.perm)
		if ok != tt.ok || kind != tt.kind {
			t.Errorf("KindForPermission(%s) = (%s, %v), want (%s, %v)", tt.perm, kind, ok, tt.kind, tt.ok)
		}
	}
}

func TestCounterAccess(t *testing.T) {
	u := &usage.Usage{
		AIAgentsCreated:  1,
		APICalls:         2,
		StorageGB:        3,
		ExecutionMinutes: 4,
		ActiveMembers:    5,
	}
	want := map[usage.QuotaKind]int64{
		usage.QuotaAIAgents:         1,
		usage.QuotaAPICalls:         2,
		usage.QuotaStorageGB:        3,
		usage.QuotaExecutionMinutes: 4,
		usage.QuotaActiveMembers:    5,
	}
	for kind, v := range want {
		if got := u.Counter(kind); got != v {
			t.Errorf("Counter(%s) = %d, want %d", kind, got, v)
		}
	}
}
