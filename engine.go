package gatehouse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/gatehouse/auditlog"
	"github.com/xraph/gatehouse/permission"
	"github.com/xraph/gatehouse/plugin"
	"github.com/xraph/gatehouse/store"
	"github.com/xraph/gatehouse/subscription"
	"github.com/xraph/gatehouse/usage"
)

// Engine is the central authorization engine. It runs the decision
// pipeline, manages the store, and fires extension hooks.
type Engine struct {
	store   store.Store
	cache   Cache
	plugins *plugin.Registry
	logger  *slog.Logger
	config  Config
}

// NewEngine creates a new Gatehouse engine with the given options.
func NewEngine(opts ...Option) (*Engine, error) {
	e := &Engine{
		logger: slog.Default(),
		config: DefaultConfig(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.store == nil {
		return nil, errors.New("gatehouse: store is required")
	}
	return e, nil
}

// Store returns the underlying composite store.
func (e *Engine) Store() store.Store { return e.store }

// Plugins returns the plugin registry (may be nil).
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// Start performs any startup initialization.
func (e *Engine) Start(_ context.Context) error { return nil }

// Stop performs graceful shutdown.
func (e *Engine) Stop(ctx context.Context) error {
	if e.plugins != nil {
		e.plugins.EmitShutdown(ctx)
	}
	return nil
}

// checkState carries one check through the pipeline.
type checkState struct {
	req      *AccessRequest
	flags    flagSnapshot
	trace    []StepResult
	stepFrom time.Time

	role        permission.TenantRole
	tier        permission.Tier
	supportMode bool
	granted     permission.Set
}

func (s *checkState) record(step Step, status StepStatus, detail string) {
	now := time.Now()
	s.trace = append(s.trace, StepResult{
		Step:       step,
		Status:     status,
		Detail:     detail,
		DurationMs: now.Sub(s.stepFrom).Milliseconds(),
	})
	s.stepFrom = now
}

func (s *checkState) pass(step Step, detail string) { s.record(step, StepPass, detail) }
func (s *checkState) fail(step Step, detail string) { s.record(step, StepFail, detail) }
func (s *checkState) skip(step Step, detail string) { s.record(step, StepSkip, detail) }

// CheckPermission runs the full decision pipeline for one request. This
// is the hot path.
//
// Steps run in a fixed order and short-circuit on the first failure:
// feature flags, request validation, tenant and membership resolution,
// role permissions, subscription tier, usage quota, resource attributes.
// Every decision is recorded in the audit log before it is returned; an
// audit write failure converts the decision into a denial.
//
// Store failures never grant: the returned decision is a denial and the
// underlying error is returned alongside it.
func (e *Engine) CheckPermission(ctx context.Context, req *AccessRequest) (*AccessDecision, error) {
	start := time.Now()

	// Resolve the tenant scope on a copy; the caller's request is never
	// mutated.
	r := *req
	r.TenantID = scopeTenantID(ctx, req.TenantID)
	req = &r

	st := &checkState{
		req:      req,
		flags:    e.config.snapshot(),
		stepFrom: start,
		tier:     permission.TierFree,
	}

	if e.plugins != nil {
		e.plugins.EmitBeforeCheck(ctx, req)
	}

	// Quota-metered permissions are never cached; their decisions track
	// moving counters. Requests carrying a resource are never cached
	// either: the resource rules read owner and attribute values that are
	// not part of the cache key.
	_, metered := usage.KindForPermission(req.Permission)
	cacheable := !metered && req.Resource == nil
	if e.cache != nil && cacheable {
		if cached, ok := e.cache.Get(ctx, req); ok {
			d := *cached
			d.CheckedAt = time.Now().UTC()
			if aerr := e.audit(ctx, req, &d); aerr != nil {
				e.logger.Error("gatehouse: audit append failed", "error", aerr, "tenant_id", req.TenantID)
			} else {
				d.EvalTimeNs = time.Since(start).Nanoseconds()
				if e.plugins != nil {
					e.plugins.EmitAfterCheck(ctx, req, &d)
				}
				return &d, nil
			}
		}
	}

	decision, err := e.runPipeline(ctx, st)
	decision.EvalTimeNs = time.Since(start).Nanoseconds()

	if aerr := e.audit(ctx, req, decision); aerr != nil {
		// Fail closed: a decision without its audit entry is not
		// returned as a grant.
		e.logger.Error("gatehouse: audit append failed", "error", aerr, "tenant_id", req.TenantID)
		decision = e.systemErrorDecision(st, decision)
		if err == nil {
			err = aerr
		}
	}

	if e.cache != nil && cacheable && err == nil {
		e.cache.Set(ctx, req, decision)
	}

	if e.plugins != nil {
		e.plugins.EmitAfterCheck(ctx, req, decision)
	}
	return decision, err
}

func (e *Engine) runPipeline(ctx context.Context, st *checkState) (*AccessDecision, error) {
	req := st.req

	// 1. Feature flags. The kill switch fails closed; family flags gate
	// whole permission namespaces.
	if !st.flags.authorization {
		st.fail(StepFlags, "master authorization flag disabled")
		return e.deny(st, "Authorization is disabled by the master feature flag"), nil
	}
	switch req.Permission.Namespace() {
	case "tenant":
		if !st.flags.tenantPerms {
			st.fail(StepFlags, "tenant permissions flag disabled")
			return e.deny(st, "Tenant permissions are disabled by feature flag"), nil
		}
	case "support":
		if !st.flags.supportMode {
			st.fail(StepFlags, "support mode flag disabled")
			return e.deny(st, "Support mode is disabled by feature flag"), nil
		}
	}
	st.pass(StepFlags, "")

	// 2. Request validation.
	if req.UserID == "" {
		st.fail(StepAuthentication, "missing user id")
		return e.deny(st, "User not authenticated"), nil
	}
	if req.TenantID == "" {
		st.fail(StepAuthentication, "missing tenant id")
		return e.deny(st, "No tenant in scope"), nil
	}
	if !permission.IsKnown(req.Permission) {
		st.fail(StepAuthentication, "unknown permission "+req.Permission.String())
		return e.deny(st, "Unknown permission"), nil
	}
	st.pass(StepAuthentication, "")

	// 3. Tenant and membership resolution.
	acct, err := e.store.GetTenant(ctx, req.TenantID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			st.fail(StepMembership, "tenant not found")
			return e.deny(st, "Tenant not found"), nil
		}
		return e.systemError(st, StepMembership), fmt.Errorf("gatehouse: resolve tenant %s: %w", req.TenantID, err)
	}
	if !acct.IsActive() {
		st.fail(StepMembership, "tenant status "+string(acct.Status))
		return e.deny(st, "Tenant is not active"), nil
	}

	m, err := e.store.GetMembership(ctx, req.TenantID, req.UserID)
	switch {
	case err == nil:
		if !m.IsActive() {
			st.fail(StepMembership, "membership status "+string(m.Status))
			return e.deny(st, "Membership is not active"), nil
		}
		st.role = m.Role
		st.granted = permission.RolePermissions(m.Role).
			Union(permission.ExpandGrants(m.CustomPermissions))
		if st.flags.supportMode && e.supportEligible(req.InternalRole) {
			st.granted = st.granted.Union(permission.InternalPermissions(req.InternalRole))
		}
		st.pass(StepMembership, "role "+string(m.Role))
	case errors.Is(err, store.ErrNotFound):
		if !st.flags.supportMode || !e.supportEligible(req.InternalRole) {
			st.fail(StepMembership, "no membership in tenant")
			return e.deny(st, "User is not a member of this tenant"), nil
		}
		st.supportMode = true
		st.granted = permission.InternalPermissions(req.InternalRole)
		st.pass(StepMembership, "support mode as "+string(req.InternalRole))
	default:
		return e.systemError(st, StepMembership), fmt.Errorf("gatehouse: resolve membership %s/%s: %w", req.TenantID, req.UserID, err)
	}

	// 4. Role permissions.
	if !st.granted.Has(req.Permission) {
		st.fail(StepRBAC, "permission not granted by role")
		return e.deny(st, "Role does not grant this permission"), nil
	}
	st.pass(StepRBAC, "")

	// 5. Subscription tier. Support operators act outside the tenant's
	// billing relationship, so tier and quota gates do not apply.
	sub, err := e.store.GetSubscription(ctx, req.TenantID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return e.systemError(st, StepTier), fmt.Errorf("gatehouse: resolve subscription %s: %w", req.TenantID, err)
	}
	st.tier = subscription.TierOf(sub)

	switch {
	case st.supportMode:
		st.skip(StepTier, "support mode")
	case !st.flags.tierChecks:
		st.skip(StepTier, "tier checks disabled")
	case !permission.TierMeets(st.tier, req.Permission):
		required := permission.RequiredTier(req.Permission)
		st.fail(StepTier, fmt.Sprintf("requires tier %s, tenant has %s", required, st.tier))
		return e.upgradeRequired(st, required), nil
	default:
		st.pass(StepTier, "tier "+string(st.tier))
	}

	// 6. Usage quota.
	kind, metered := usage.KindForPermission(req.Permission)
	switch {
	case st.supportMode:
		st.skip(StepQuota, "support mode")
	case !st.flags.quotaChecks:
		st.skip(StepQuota, "quota checks disabled")
	case !metered:
		st.skip(StepQuota, "permission not metered")
	default:
		period := usage.PeriodFor(kind, time.Now())
		u, err := e.store.GetUsage(ctx, req.TenantID, period)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return e.systemError(st, StepQuota), fmt.Errorf("gatehouse: resolve usage %s/%s: %w", req.TenantID, period, err)
		}
		status := usage.Status(st.tier, u, kind)
		if !status.Allowed {
			st.fail(StepQuota, fmt.Sprintf("%s at %d of %d", kind, status.Used, status.Limit))
			return e.quotaExceeded(st, status), nil
		}
		st.pass(StepQuota, string(kind))
	}

	// 7. Resource attributes.
	switch {
	case !st.flags.abac:
		st.skip(StepABAC, "attribute checks disabled")
	case req.Resource == nil:
		st.skip(StepABAC, "no resource")
	default:
		if d := e.evaluateResource(st); d != nil {
			return d, nil
		}
		st.pass(StepABAC, "")
	}

	return e.grant(st), nil
}

// evaluateResource applies the attribute rules to the request's resource.
// It returns a denial or nil when the resource passes.
func (e *Engine) evaluateResource(st *checkState) *AccessDecision {
	r := st.req.Resource
	if r.OwnerTenantID != "" && r.OwnerTenantID != st.req.TenantID {
		st.fail(StepABAC, "resource owned by another tenant")
		return e.deny(st, "Resource belongs to another tenant")
	}
	level, _ := r.Attributes["security.level"].(string)
	switch level {
	case "high":
		// Support operators carry the admin permission superset.
		if !st.supportMode && st.role != permission.RoleTenantAdmin {
			st.fail(StepABAC, "high security resource requires tenant_admin")
			return e.deny(st, "Resource requires administrator access")
		}
	case "confidential":
		if st.role == permission.RoleTenantViewer {
			st.fail(StepABAC, "confidential resource excludes tenant_viewer")
			return e.deny(st, "Resource is not available to viewers")
		}
	}
	return nil
}

func (e *Engine) supportEligible(r permission.InternalRole) bool {
	return r != permission.InternalRoleNone && permission.ValidInternalRole(r)
}

// ──────────────────────────────────────────────────────────────────────
// Decision construction
// ──────────────────────────────────────────────────────────────────────

func (e *Engine) newDecision(st *checkState, outcome Outcome, reason string) *AccessDecision {
	return &AccessDecision{
		Allowed:     outcome == OutcomeGranted,
		Outcome:     outcome,
		Reason:      reason,
		UserID:      st.req.UserID,
		TenantID:    st.req.TenantID,
		Permission:  st.req.Permission,
		Role:        st.role,
		Tier:        st.tier,
		SupportMode: st.supportMode,
		Trace:       st.trace,
		CheckedAt:   time.Now().UTC(),
	}
}

func (e *Engine) grant(st *checkState) *AccessDecision {
	return e.newDecision(st, OutcomeGranted, "")
}

func (e *Engine) deny(st *checkState, reason string) *AccessDecision {
	return e.newDecision(st, OutcomeDenied, reason)
}

func (e *Engine) upgradeRequired(st *checkState, required permission.Tier) *AccessDecision {
	d := e.newDecision(st, OutcomeUpgradeRequired, "Subscription upgrade required")
	d.Upgrade = &UpgradePath{
		CurrentTier:  st.tier,
		RequiredTier: required,
		Benefits:     permission.TierBenefits[required],
	}
	return d
}

func (e *Engine) quotaExceeded(st *checkState, status usage.QuotaStatus) *AccessDecision {
	d := e.newDecision(st, OutcomeQuotaExceeded, "Usage quota exceeded")
	d.Quota = &status
	return d
}

func (e *Engine) systemError(st *checkState, step Step) *AccessDecision {
	st.fail(step, "store error")
	return e.deny(st, "Authorization system error")
}

// systemErrorDecision rewrites a decision whose audit append failed into
// a denial, keeping the trace for diagnostics.
func (e *Engine) systemErrorDecision(st *checkState, d *AccessDecision) *AccessDecision {
	nd := e.deny(st, "Authorization system error")
	nd.Trace = d.Trace
	nd.EvalTimeNs = d.EvalTimeNs
	return nd
}

// ──────────────────────────────────────────────────────────────────────
// Auditing
// ──────────────────────────────────────────────────────────────────────

func auditAction(outcome Outcome) auditlog.Action {
	switch outcome {
	case OutcomeGranted:
		return auditlog.ActionAccessGranted
	case OutcomeUpgradeRequired:
		return auditlog.ActionAccessDeniedSubscription
	case OutcomeQuotaExceeded:
		return auditlog.ActionAccessDeniedQuota
	default:
		return auditlog.ActionAccessDenied
	}
}

func (e *Engine) audit(ctx context.Context, req *AccessRequest, d *AccessDecision) error {
	// A check with no tenant or user in scope still leaves a trail; the
	// missing id is recorded under a sentinel.
	tenantID, userID := req.TenantID, req.UserID
	if tenantID == "" {
		tenantID = auditlog.Unattributed
	}
	if userID == "" {
		userID = auditlog.Unattributed
	}

	result := auditlog.ResultDeny
	if d.Allowed {
		result = auditlog.ResultAllow
	}
	entry := auditlog.New(tenantID, userID, auditAction(d.Outcome), result)
	entry.Permission = req.Permission.String()
	entry.Reason = d.Reason
	entry.SupportMode = d.SupportMode
	entry.Context = req.Context
	if req.Resource != nil {
		entry.ResourceType = req.Resource.Type
		entry.ResourceID = req.Resource.ID
	}

	if err := e.store.AppendEntry(ctx, entry); err != nil {
		return err
	}
	d.AuditID = entry.ID
	return nil
}

// ──────────────────────────────────────────────────────────────────────
// Convenience wrappers
// ──────────────────────────────────────────────────────────────────────

// Can is a shorthand for a simple permission check.
func (e *Engine) Can(ctx context.Context, userID, tenantID string, p permission.Permission) (bool, error) {
	d, err := e.CheckPermission(ctx, &AccessRequest{
		UserID:     userID,
		TenantID:   tenantID,
		Permission: p,
	})
	if err != nil {
		return false, err
	}
	return d.Allowed, nil
}

// Enforce returns an error if the check is denied.
func (e *Engine) Enforce(ctx context.Context, req *AccessRequest) error {
	d, err := e.CheckPermission(ctx, req)
	if err != nil {
		return fmt.Errorf("gatehouse check: %w", err)
	}
	if !d.Allowed {
		return fmt.Errorf("%w: %s — %s", ErrAccessDenied, d.Outcome, d.Reason)
	}
	return nil
}
