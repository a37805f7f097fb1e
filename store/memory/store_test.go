package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/gatehouse/auditlog"
	"github.com/xraph/gatehouse/membership"
	"github.com/xraph/gatehouse/permission"
	"github.com/xraph/gatehouse/store"
	"github.com/xraph/gatehouse/store/memory"
	"github.com/xraph/gatehouse/subscription"
	"github.com/xraph/gatehouse/tenant"
	"github.com/xraph/gatehouse/usage"
)

func newTenant(t *testing.T, name string) *tenant.Account {
	t.Helper()
	a, err := tenant.New(name, tenant.TypeBusiness, "user_owner")
	if err != nil {
		t.Fatalf("tenant.New: %v", err)
	}
	return a
}

func TestTenantCRUD(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	a := newTenant(t, "acme")
	if err := s.CreateTenant(ctx, a); err != nil {
		t.Fatalf("CreateTenant: %v", err)
	}
	if err := s.CreateTenant(ctx, a); !errors.Is(err, store.ErrDuplicate) {
		t.Errorf("second create = %v, want ErrDuplicate", err)
	}

	got, err := s.GetTenant(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetTenant: %v", err)
	}
	if got.Name != "acme" {
		t.Errorf("name = %q", got.Name)
	}

	got.Name = "acme-2"
	if err := s.UpdateTenant(ctx, got); err != nil {
		t.Fatalf("UpdateTenant: %v", err)
	}
	got, _ = s.GetTenant(ctx, a.ID)
	if got.Name != "acme-2" {
		t.Errorf("after update name = %q", got.Name)
	}

	if _, err := s.GetTenant(ctx, "tnt_missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("missing tenant = %v, want ErrNotFound", err)
	}
}

func TestSoftDeleteKeepsRecordReadable(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	a := newTenant(t, "acme")
	_ = s.CreateTenant(ctx, a)

	if err := s.SoftDeleteTenant(ctx, a.ID); err != nil {
		t.Fatalf("SoftDeleteTenant: %v", err)
	}
	got, err := s.GetTenant(ctx, a.ID)
	if err != nil {
		t.Fatalf("deleted tenant should still be readable: %v", err)
	}
	if got.Status != tenant.StatusDeleted {
		t.Errorf("status = %q, want deleted", got.Status)
	}
}

func TestBatchGetTenantsSkipsMissing(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	a := newTenant(t, "one")
	b := newTenant(t, "two")
	_ = s.CreateTenant(ctx, a)
	_ = s.CreateTenant(ctx, b)

	got, err := s.BatchGetTenants(ctx, []string{a.ID, "tnt_missing", b.ID})
	if err != nil {
		t.Fatalf("BatchGetTenants: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("len = %d, want 2", len(got))
	}
}

func TestMembershipUniquePerTenantUser(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	m, _ := membership.New("tnt_a", "user_1", permission.RoleTenantUser)
	if err := s.CreateMembership(ctx, m); err != nil {
		t.Fatalf("CreateMembership: %v", err)
	}
	dup, _ := membership.New("tnt_a", "user_1", permission.RoleTenantAdmin)
	if err := s.CreateMembership(ctx, dup); !errors.Is(err, store.ErrDuplicate) {
		t.Errorf("duplicate (tenant,user) = %v, want ErrDuplicate", err)
	}

	// Same user in another tenant is a distinct membership.
	other, _ := membership.New("tnt_b", "user_1", permission.RoleTenantViewer)
	if err := s.CreateMembership(ctx, other); err != nil {
		t.Errorf("other tenant create: %v", err)
	}
}

func TestListMembershipsCursorPagination(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		m, _ := membership.New("tnt_a", "user_"+string(rune('a'+i)), permission.RoleTenantUser)
		m.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := s.CreateMembership(ctx, m); err != nil {
			t.Fatalf("CreateMembership: %v", err)
		}
	}

	var all []*membership.Membership
	cursor := ""
	for {
		page, next, err := s.ListMembershipsByTenant(ctx, "tnt_a", &membership.ListFilter{Limit: 2, Cursor: cursor})
		if err != nil {
			t.Fatalf("ListMembershipsByTenant: %v", err)
		}
		all = append(all, page...)
		if next == "" {
			break
		}
		cursor = next
	}
	if len(all) != 5 {
		t.Fatalf("paged total = %d, want 5", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].CreatedAt.Before(all[i-1].CreatedAt) {
			t.Errorf("page order broken at %d", i)
		}
	}
}

func TestListMembershipsByUserAcrossTenants(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	for _, tid := range []string{"tnt_a", "tnt_b", "tnt_c"} {
		m, _ := membership.New(tid, "user_1", permission.RoleTenantUser)
		_ = s.CreateMembership(ctx, m)
	}
	other, _ := membership.New("tnt_a", "user_2", permission.RoleTenantUser)
	_ = s.CreateMembership(ctx, other)

	got, _, err := s.ListMembershipsByUser(ctx, "user_1", nil)
	if err != nil {
		t.Fatalf("ListMembershipsByUser: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("len = %d, want 3", len(got))
	}
}

func TestCountMembershipsFilter(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	m1, _ := membership.New("tnt_a", "user_1", permission.RoleTenantAdmin)
	m2, _ := membership.New("tnt_a", "user_2", permission.RoleTenantUser)
	m2.Status = membership.StatusSuspended
	_ = s.CreateMembership(ctx, m1)
	_ = s.CreateMembership(ctx, m2)

	n, err := s.CountMembershipsByTenant(ctx, "tnt_a", &membership.ListFilter{Status: membership.StatusActive})
	if err != nil {
		t.Fatalf("CountMembershipsByTenant: %v", err)
	}
	if n != 1 {
		t.Errorf("active count = %d, want 1", n)
	}
}

func TestSubscriptionUpsertReplaces(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	if _, err := s.GetSubscription(ctx, "tnt_a"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("absent subscription = %v, want ErrNotFound", err)
	}

	sub, _ := subscription.New("tnt_a", permission.TierBasic)
	_ = s.UpsertSubscription(ctx, sub)

	sub.Tier = permission.TierPro
	_ = s.UpsertSubscription(ctx, sub)

	got, err := s.GetSubscription(ctx, "tnt_a")
	if err != nil {
		t.Fatalf("GetSubscription: %v", err)
	}
	if got.Tier != permission.TierPro {
		t.Errorf("tier = %q, want pro", got.Tier)
	}
}

func TestAddUsageCreatesPeriodRecord(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	if err := s.AddUsage(ctx, "tnt_a", "2025-05", usage.QuotaAIAgents, 2); err != nil {
		t.Fatalf("AddUsage: %v", err)
	}
	u, err := s.GetUsage(ctx, "tnt_a", "2025-05")
	if err != nil {
		t.Fatalf("GetUsage: %v", err)
	}
	if u.AIAgentsCreated != 2 {
		t.Errorf("ai agents = %d, want 2", u.AIAgentsCreated)
	}

	// A different period is a separate record.
	if _, err := s.GetUsage(ctx, "tnt_a", "2025-06"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("other period = %v, want ErrNotFound", err)
	}
}

func TestReserveQuotaAtLimit(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	for i := 0; i < 3; i++ {
		ok, err := s.ReserveQuota(ctx, "tnt_a", "2025-05", usage.QuotaAIAgents, 1, 3)
		if err != nil || !ok {
			t.Fatalf("reserve %d = (%v, %v), want applied", i, ok, err)
		}
	}
	ok, err := s.ReserveQuota(ctx, "tnt_a", "2025-05", usage.QuotaAIAgents, 1, 3)
	if err != nil {
		t.Fatalf("ReserveQuota: %v", err)
	}
	if ok {
		t.Error("reservation past the limit should not apply")
	}

	u, _ := s.GetUsage(ctx, "tnt_a", "2025-05")
	if u.AIAgentsCreated != 3 {
		t.Errorf("counter = %d, want 3 (failed reserve must not increment)", u.AIAgentsCreated)
	}
}

func TestReserveQuotaUnlimited(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	ok, err := s.ReserveQuota(ctx, "tnt_a", "2025-05", usage.QuotaAPICalls, 1_000_000, usage.Unlimited)
	if err != nil || !ok {
		t.Fatalf("unlimited reserve = (%v, %v), want applied", ok, err)
	}
}

func TestReserveQuotaConcurrent(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	const workers = 20
	const limit = 5
	var wg sync.WaitGroup
	applied := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.ReserveQuota(ctx, "tnt_a", "2025-05", usage.QuotaAIAgents, 1, limit)
			if err != nil {
				t.Errorf("ReserveQuota: %v", err)
				return
			}
			applied <- ok
		}()
	}
	wg.Wait()
	close(applied)

	var n int
	for ok := range applied {
		if ok {
			n++
		}
	}
	if n != limit {
		t.Errorf("applied = %d, want exactly %d", n, limit)
	}
	u, _ := s.GetUsage(ctx, "tnt_a", "2025-05")
	if u.AIAgentsCreated != limit {
		t.Errorf("counter = %d, want %d", u.AIAgentsCreated, limit)
	}
}

func TestAuditTrailNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		e := auditlog.New("tnt_a", "user_1", auditlog.ActionAccessGranted, auditlog.ResultAllow)
		e.CreatedAt = base.Add(time.Duration(i) * time.Second)
		if err := s.AppendEntry(ctx, e); err != nil {
			t.Fatalf("AppendEntry: %v", err)
		}
	}

	got, _, err := s.ListEntriesByTenant(ctx, "tnt_a", auditlog.QueryFilter{})
	if err != nil {
		t.Fatalf("ListEntriesByTenant: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("len = %d, want 4", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].CreatedAt.After(got[i-1].CreatedAt) {
			t.Errorf("entries not newest-first at %d", i)
		}
	}
}

func TestAuditTrailFilters(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	allow := auditlog.New("tnt_a", "user_1", auditlog.ActionAccessGranted, auditlog.ResultAllow)
	deny := auditlog.New("tnt_a", "user_2", auditlog.ActionAccessDeniedQuota, auditlog.ResultDeny)
	_ = s.AppendEntry(ctx, allow)
	_ = s.AppendEntry(ctx, deny)

	got, _, err := s.ListEntriesByTenant(ctx, "tnt_a", auditlog.QueryFilter{Result: auditlog.ResultDeny})
	if err != nil {
		t.Fatalf("ListEntriesByTenant: %v", err)
	}
	if len(got) != 1 || got[0].Action != auditlog.ActionAccessDeniedQuota {
		t.Errorf("deny filter returned %d entries", len(got))
	}

	byUser, _, err := s.ListEntriesByUser(ctx, "tnt_a", "user_1", auditlog.QueryFilter{})
	if err != nil {
		t.Fatalf("ListEntriesByUser: %v", err)
	}
	if len(byUser) != 1 || byUser[0].UserID != "user_1" {
		t.Errorf("user filter returned %d entries", len(byUser))
	}

	n, err := s.CountEntries(ctx, "tnt_a", auditlog.QueryFilter{})
	if err != nil {
		t.Fatalf("CountEntries: %v", err)
	}
	if n != 2 {
		t.Errorf("count = %d, want 2", n)
	}
}

func TestStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	a := newTenant(t, "acme")
	a.Settings = map[string]any{"k": "v"}
	_ = s.CreateTenant(ctx, a)

	got, _ := s.GetTenant(ctx, a.ID)
	got.Name = "mutated"
	got.Settings["k"] = "mutated"

	again, _ := s.GetTenant(ctx, a.ID)
	if again.Name != "acme" || again.Settings["k"] != "v" {
		t.Error("mutating a returned record must not affect the stored one")
	}
}
