package gatehouse

import (
	"context"
	"errors"
	"testing"

	"github.com/xraph/gatehouse/auditlog"
	"github.com/xraph/gatehouse/membership"
	"github.com/xraph/gatehouse/permission"
	"github.com/xraph/gatehouse/store"
	"github.com/xraph/gatehouse/store/memory"
	"github.com/xraph/gatehouse/tenant"
	"github.com/xraph/gatehouse/usage"
)

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *memory.Store) {
	t.Helper()
	s := memory.New()
	eng, err := NewEngine(append([]Option{WithStore(s)}, opts...)...)
	if err != nil {
		t.Fatal(err)
	}
	return eng, s
}

// seedTenant provisions a tenant with an owner admin and returns its ID.
func seedTenant(t *testing.T, eng *Engine, owner string) string {
	t.Helper()
	acct, err := eng.CreateTenant(context.Background(), "acme", tenant.TypeBusiness, owner)
	if err != nil {
		t.Fatal(err)
	}
	return acct.ID
}

func TestNewEngine_RequiresStore(t *testing.T) {
	_, err := NewEngine()
	if err == nil {
		t.Fatal("expected error when store is nil")
	}
}

func TestCheckPermission_Granted(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	tid := seedTenant(t, eng, "u1")

	d, err := eng.CheckPermission(ctx, &AccessRequest{
		UserID:     "u1",
		TenantID:   tid,
		Permission: permission.DataRead,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !d.Allowed || d.Outcome != OutcomeGranted {
		t.Fatalf("expected granted, got %s: %s", d.Outcome, d.Reason)
	}
	if d.Role != permission.RoleTenantAdmin {
		t.Fatalf("expected admin role on decision, got %s", d.Role)
	}
	if d.Tier != permission.TierFree {
		t.Fatalf("expected free tier on decision, got %s", d.Tier)
	}
	if d.AuditID.IsNil() {
		t.Fatal("granted decision missing audit id")
	}
	if len(d.Trace) == 0 {
		t.Fatal("decision missing trace")
	}
}

func TestCheckPermission_DoesNotMutateRequest(t *testing.T) {
	eng, _ := newTestEngine(t)
	tid := seedTenant(t, eng, "u1")

	// Tenant scope resolved from the context must not be written back
	// into the caller's request.
	req := &AccessRequest{UserID: "u1", Permission: permission.DataRead}
	d, err := eng.CheckPermission(WithTenant(context.Background(), tid), req)
	if err != nil {
		t.Fatal(err)
	}
	if !d.Allowed {
		t.Fatalf("expected grant via context scope, got %s: %s", d.Outcome, d.Reason)
	}
	if d.TenantID != tid {
		t.Fatalf("decision tenant = %q, want %q", d.TenantID, tid)
	}
	if req.TenantID != "" {
		t.Fatalf("caller's request was mutated: TenantID = %q", req.TenantID)
	}
}

func TestCheckPermission_AnonymousDenialAudited(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)
	tid := seedTenant(t, eng, "u1")

	d, err := eng.CheckPermission(ctx, &AccessRequest{
		TenantID:   tid,
		Permission: permission.DataRead,
	})
	if err != nil {
		t.Fatal(err)
	}
	if d.Allowed {
		t.Fatal("request without a user must be denied")
	}
	if d.AuditID.IsNil() {
		t.Fatal("denial without a user still gets an audit entry")
	}

	entries, _, err := s.ListEntriesByTenant(ctx, tid, auditlog.QueryFilter{Action: auditlog.ActionAccessDenied})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 denied entry, got %d", len(entries))
	}
	if entries[0].UserID != auditlog.Unattributed {
		t.Fatalf("entry user = %q, want sentinel", entries[0].UserID)
	}
}

func TestCheckPermission_NonMemberDenied(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	tid := seedTenant(t, eng, "u1")

	d, err := eng.CheckPermission(ctx, &AccessRequest{
		UserID:     "stranger",
		TenantID:   tid,
		Permission: permission.DataRead,
	})
	if err != nil {
		t.Fatal(err)
	}
	if d.Allowed || d.Outcome != OutcomeDenied {
		t.Fatalf("expected denied, got %s", d.Outcome)
	}
}

func TestCheckPermission_RoleDoesNotGrant(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	tid := seedTenant(t, eng, "u1")
	if _, err := eng.AddMember(ctx, "u1", tid, "viewer1", permission.RoleTenantViewer); err != nil {
		t.Fatal(err)
	}

	d, err := eng.CheckPermission(ctx, &AccessRequest{
		UserID:     "viewer1",
		TenantID:   tid,
		Permission: permission.DataWrite,
	})
	if err != nil {
		t.Fatal(err)
	}
	if d.Allowed {
		t.Fatal("viewer should not write data")
	}
	if d.Outcome != OutcomeDenied {
		t.Fatalf("expected denied, got %s", d.Outcome)
	}
}

func TestCheckPermission_CustomGrantExpands(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)
	tid := seedTenant(t, eng, "u1")
	if _, err := eng.AddMember(ctx, "u1", tid, "viewer1", permission.RoleTenantViewer); err != nil {
		t.Fatal(err)
	}

	m, err := s.GetMembership(ctx, tid, "viewer1")
	if err != nil {
		t.Fatal(err)
	}
	m.CustomPermissions = []string{"api.*"}
	if err := eng.UpdateMember(ctx, "u1", m); err != nil {
		t.Fatal(err)
	}

	d, err := eng.CheckPermission(ctx, &AccessRequest{
		UserID:     "viewer1",
		TenantID:   tid,
		Permission: permission.APIAccess,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !d.Allowed {
		t.Fatalf("custom glob grant should allow api.access, got %s: %s", d.Outcome, d.Reason)
	}
}

func TestCheckPermission_UpgradeRequired(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	tid := seedTenant(t, eng, "u1")

	// lab.run_advanced_experiments is role-granted to admins but gated
	// behind the pro tier; the seeded tenant is on free.
	d, err := eng.CheckPermission(ctx, &AccessRequest{
		UserID:     "u1",
		TenantID:   tid,
		Permission: permission.LabRunAdvancedExperiments,
	})
	if err != nil {
		t.Fatal(err)
	}
	if d.Allowed || d.Outcome != OutcomeUpgradeRequired {
		t.Fatalf("expected upgrade_required, got %s", d.Outcome)
	}
	if d.Upgrade == nil {
		t.Fatal("upgrade_required decision missing upgrade path")
	}
	if d.Upgrade.CurrentTier != permission.TierFree || d.Upgrade.RequiredTier != permission.TierPro {
		t.Fatalf("unexpected upgrade path %s -> %s", d.Upgrade.CurrentTier, d.Upgrade.RequiredTier)
	}

	// Upgrading the tenant clears the gate.
	if _, err := eng.SetSubscription(ctx, "u1", tid, permission.TierPro); err != nil {
		t.Fatal(err)
	}
	d, err = eng.CheckPermission(ctx, &AccessRequest{
		UserID:     "u1",
		TenantID:   tid,
		Permission: permission.LabRunAdvancedExperiments,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !d.Allowed {
		t.Fatalf("expected granted after upgrade, got %s: %s", d.Outcome, d.Reason)
	}
}

func TestCheckPermission_QuotaExceeded(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	tid := seedTenant(t, eng, "u1")

	// Burn through the free-tier agent quota.
	limit := usage.LimitFor(permission.TierFree, usage.QuotaAIAgents)
	if err := eng.RecordUsage(ctx, tid, usage.QuotaAIAgents, limit); err != nil {
		t.Fatal(err)
	}

	d, err := eng.CheckPermission(ctx, &AccessRequest{
		UserID:     "u1",
		TenantID:   tid,
		Permission: permission.StudioCreateAgents,
	})
	if err != nil {
		t.Fatal(err)
	}
	if d.Allowed || d.Outcome != OutcomeQuotaExceeded {
		t.Fatalf("expected quota_exceeded, got %s: %s", d.Outcome, d.Reason)
	}
	if d.Quota == nil {
		t.Fatal("quota_exceeded decision missing quota status")
	}
	if d.Quota.Used != limit || d.Quota.Remaining != 0 {
		t.Fatalf("unexpected quota status %+v", d.Quota)
	}
}

func TestCheckPermission_MasterSwitchFailsClosed(t *testing.T) {
	ctx := context.Background()
	f := false
	cfg := DefaultConfig()
	cfg.EnableAuthorization = &f
	eng, _ := newTestEngine(t, WithConfig(cfg))
	tid := seedTenant(t, eng, "u1")

	// The kill switch denies even a valid admin request.
	d, err := eng.CheckPermission(ctx, &AccessRequest{
		UserID:     "u1",
		TenantID:   tid,
		Permission: permission.DataRead,
	})
	if err != nil {
		t.Fatal(err)
	}
	if d.Allowed {
		t.Fatal("kill switch must fail closed")
	}
	if len(d.Trace) != 1 || d.Trace[0].Status != StepFail || d.Trace[0].Step != StepFlags {
		t.Fatalf("expected single failed flags step, got %+v", d.Trace)
	}
}

func TestCheckPermission_TenantNamespaceFlag(t *testing.T) {
	ctx := context.Background()
	f := false
	cfg := DefaultConfig()
	cfg.EnableTenantPermissions = &f
	eng, _ := newTestEngine(t, WithConfig(cfg))
	tid := seedTenant(t, eng, "u1")

	d, err := eng.CheckPermission(ctx, &AccessRequest{
		UserID:     "u1",
		TenantID:   tid,
		Permission: permission.TenantManageSettings,
	})
	if err != nil {
		t.Fatal(err)
	}
	if d.Allowed {
		t.Fatal("tenant namespace should be gated by its family flag")
	}

	// Other namespaces are unaffected.
	d, err = eng.CheckPermission(ctx, &AccessRequest{
		UserID:     "u1",
		TenantID:   tid,
		Permission: permission.DataRead,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !d.Allowed {
		t.Fatalf("data namespace should pass, got %s: %s", d.Outcome, d.Reason)
	}
}

func TestCheckPermission_SupportMode(t *testing.T) {
	ctx := context.Background()
	tr := true
	cfg := DefaultConfig()
	cfg.EnableSupportMode = &tr
	eng, _ := newTestEngine(t, WithConfig(cfg))
	tid := seedTenant(t, eng, "u1")

	d, err := eng.CheckPermission(ctx, &AccessRequest{
		UserID:       "staff1",
		TenantID:     tid,
		Permission:   permission.SupportAccess,
		InternalRole: permission.InternalRoleSupport,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !d.Allowed {
		t.Fatalf("expected support-mode grant, got %s: %s", d.Outcome, d.Reason)
	}
	if !d.SupportMode {
		t.Fatal("decision should be flagged as support mode")
	}
}

func TestCheckPermission_MemberWithInternalRole(t *testing.T) {
	ctx := context.Background()
	tr := true
	cfg := DefaultConfig()
	cfg.EnableSupportMode = &tr
	eng, _ := newTestEngine(t, WithConfig(cfg))
	tid := seedTenant(t, eng, "u1")
	if _, err := eng.AddMember(ctx, "u1", tid, "staff1", permission.RoleTenantViewer); err != nil {
		t.Fatal(err)
	}

	// A member's internal role widens their grant set without putting the
	// check into support mode, so tier and quota gates still apply.
	d, err := eng.CheckPermission(ctx, &AccessRequest{
		UserID:       "staff1",
		TenantID:     tid,
		Permission:   permission.SupportAccess,
		InternalRole: permission.InternalRoleSupport,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !d.Allowed {
		t.Fatalf("internal role should widen a member's grants, got %s: %s", d.Outcome, d.Reason)
	}
	if d.SupportMode {
		t.Fatal("a tenant member is never in support mode")
	}
	if d.Role != permission.RoleTenantViewer {
		t.Fatalf("decision role = %q, want tenant_viewer", d.Role)
	}
}

func TestCheckPermission_SupportModeDisabledByDefault(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	tid := seedTenant(t, eng, "u1")

	d, err := eng.CheckPermission(ctx, &AccessRequest{
		UserID:       "staff1",
		TenantID:     tid,
		Permission:   permission.SupportAccess,
		InternalRole: permission.InternalRoleSupport,
	})
	if err != nil {
		t.Fatal(err)
	}
	if d.Allowed {
		t.Fatal("support mode must be off unless explicitly enabled")
	}
}

func TestCheckPermission_CrossTenantResourceDenied(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	tid := seedTenant(t, eng, "u1")

	d, err := eng.CheckPermission(ctx, &AccessRequest{
		UserID:     "u1",
		TenantID:   tid,
		Permission: permission.DataRead,
		Resource: &Resource{
			Type:          "dataset",
			ID:            "ds1",
			OwnerTenantID: "tnt_other",
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if d.Allowed || d.Outcome != OutcomeDenied {
		t.Fatalf("expected cross-tenant denial, got %s", d.Outcome)
	}
}

func TestCheckPermission_SecurityLevelRules(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	tid := seedTenant(t, eng, "u1")
	if _, err := eng.AddMember(ctx, "u1", tid, "user1", permission.RoleTenantUser); err != nil {
		t.Fatal(err)
	}

	highRes := &Resource{
		Type:          "dataset",
		ID:            "ds1",
		OwnerTenantID: tid,
		Attributes:    map[string]any{"security.level": "high"},
	}

	// tenant_user may read ordinary data but not high-security resources.
	d, err := eng.CheckPermission(ctx, &AccessRequest{
		UserID:     "user1",
		TenantID:   tid,
		Permission: permission.DataRead,
		Resource:   highRes,
	})
	if err != nil {
		t.Fatal(err)
	}
	if d.Allowed {
		t.Fatal("high security resources require tenant_admin")
	}

	// The admin owner passes.
	d, err = eng.CheckPermission(ctx, &AccessRequest{
		UserID:     "u1",
		TenantID:   tid,
		Permission: permission.DataRead,
		Resource:   highRes,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !d.Allowed {
		t.Fatalf("admin should access high security resources, got %s: %s", d.Outcome, d.Reason)
	}

	// Confidential resources exclude viewers only.
	if _, err := eng.AddMember(ctx, "u1", tid, "viewer1", permission.RoleTenantViewer); err != nil {
		t.Fatal(err)
	}
	confRes := &Resource{
		Type:          "dataset",
		ID:            "ds2",
		OwnerTenantID: tid,
		Attributes:    map[string]any{"security.level": "confidential"},
	}
	d, err = eng.CheckPermission(ctx, &AccessRequest{
		UserID:     "viewer1",
		TenantID:   tid,
		Permission: permission.DataRead,
		Resource:   confRes,
	})
	if err != nil {
		t.Fatal(err)
	}
	if d.Allowed {
		t.Fatal("confidential resources exclude tenant_viewer")
	}
	d, err = eng.CheckPermission(ctx, &AccessRequest{
		UserID:     "user1",
		TenantID:   tid,
		Permission: permission.DataRead,
		Resource:   confRes,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !d.Allowed {
		t.Fatalf("tenant_user should read confidential resources, got %s: %s", d.Outcome, d.Reason)
	}
}

func TestCheckPermission_DeletedTenantDenied(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	tid := seedTenant(t, eng, "u1")

	if err := eng.DeleteTenant(ctx, "u1", tid); err != nil {
		t.Fatal(err)
	}
	d, err := eng.CheckPermission(ctx, &AccessRequest{
		UserID:     "u1",
		TenantID:   tid,
		Permission: permission.DataRead,
	})
	if err != nil {
		t.Fatal(err)
	}
	if d.Allowed {
		t.Fatal("checks against a deleted tenant must deny")
	}
}

func TestCheckPermission_UnknownPermissionDenied(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	tid := seedTenant(t, eng, "u1")

	d, err := eng.CheckPermission(ctx, &AccessRequest{
		UserID:     "u1",
		TenantID:   tid,
		Permission: permission.Permission("made.up"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if d.Allowed {
		t.Fatal("unknown permissions must deny")
	}
}

func TestCheckPermission_EveryDecisionAudited(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)
	tid := seedTenant(t, eng, "u1")

	reqs := []*AccessRequest{
		{UserID: "u1", TenantID: tid, Permission: permission.DataRead},
		{UserID: "stranger", TenantID: tid, Permission: permission.DataRead},
		{UserID: "u1", TenantID: tid, Permission: permission.LabRunAdvancedExperiments},
	}
	for _, req := range reqs {
		if _, err := eng.CheckPermission(ctx, req); err != nil {
			t.Fatal(err)
		}
	}

	// 3 check entries plus the tenant_created lifecycle entry.
	n, err := s.CountEntries(ctx, tid, auditlog.QueryFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Fatalf("expected 4 audit entries, got %d", n)
	}
}

// failingStore wraps the memory store and fails membership reads to
// exercise the fail-closed path.
type failingStore struct {
	*memory.Store
}

func (f *failingStore) GetMembership(ctx context.Context, tenantID, userID string) (*membership.Membership, error) {
	return nil, errors.New("connection reset")
}

func TestCheckPermission_StoreErrorFailsClosed(t *testing.T) {
	ctx := context.Background()
	base := memory.New()
	eng, err := NewEngine(WithStore(&failingStore{Store: base}))
	if err != nil {
		t.Fatal(err)
	}

	acct, err := tenant.New("acme", tenant.TypeBusiness, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if err := base.CreateTenant(ctx, acct); err != nil {
		t.Fatal(err)
	}

	d, cerr := eng.CheckPermission(ctx, &AccessRequest{
		UserID:     "u1",
		TenantID:   acct.ID,
		Permission: permission.DataRead,
	})
	if cerr == nil {
		t.Fatal("expected error from failing store")
	}
	if d == nil || d.Allowed {
		t.Fatal("store failures must produce a denial, never a grant")
	}
	if d.Reason != "Authorization system error" {
		t.Fatalf("unexpected reason %q", d.Reason)
	}
}

var _ store.Store = (*failingStore)(nil)
