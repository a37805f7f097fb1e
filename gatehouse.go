// Package gatehouse provides tenant-scoped authorization for multi-tenant
// SaaS platforms.
//
// Gatehouse combines four gating mechanisms into a single decision
// pipeline: role-based permissions within a tenant, subscription-tier
// feature gating, usage quota enforcement, and attribute checks on the
// target resource. Every decision is explained and audited.
//
//	eng, err := gatehouse.NewEngine(
//	    gatehouse.WithStore(memStore),
//	)
//	decision, err := eng.CheckPermission(ctx, &gatehouse.AccessRequest{
//	    UserID:     "user_123",
//	    TenantID:   "tnt_456",
//	    Permission: permission.StudioCreateAgents,
//	})
package gatehouse

import (
	"time"

	"github.com/xraph/gatehouse/id"
	"github.com/xraph/gatehouse/permission"
	"github.com/xraph/gatehouse/usage"
)

// Resource is the optional target of an access check. Attribute checks
// run against it when present.
type Resource struct {
	Type string `json:"type"`
	ID   string `json:"id"`

	// OwnerTenantID is the tenant the resource belongs to. A non-empty
	// value different from the request tenant denies the check.
	OwnerTenantID string `json:"owner_tenant_id,omitempty"`

	Attributes map[string]any `json:"attributes,omitempty"`
}

// AccessRequest is the input to an access check.
type AccessRequest struct {
	UserID     string                `json:"user_id"`
	TenantID   string                `json:"tenant_id"`
	Permission permission.Permission `json:"permission"`

	// InternalRole is the caller's platform-staff role claim, if any.
	// It only matters when support mode is enabled.
	InternalRole permission.InternalRole `json:"internal_role,omitempty"`

	Resource *Resource      `json:"resource,omitempty"`
	Context  map[string]any `json:"context,omitempty"`
}

// Outcome is the closed set of access check results.
type Outcome string

const (
	// OutcomeGranted means the request passed every pipeline step.
	OutcomeGranted Outcome = "granted"

	// OutcomeDenied means a non-billing step denied the request.
	OutcomeDenied Outcome = "denied"

	// OutcomeUpgradeRequired means the permission exists but the
	// tenant's subscription tier is too low.
	OutcomeUpgradeRequired Outcome = "upgrade_required"

	// OutcomeQuotaExceeded means the tenant exhausted the usage quota
	// backing the permission.
	OutcomeQuotaExceeded Outcome = "quota_exceeded"
)

// Step names the pipeline stages in evaluation order.
type Step string

const (
	StepFlags          Step = "flags"
	StepAuthentication Step = "authentication"
	StepMembership     Step = "membership"
	StepRBAC           Step = "rbac"
	StepTier           Step = "tier"
	StepQuota          Step = "quota"
	StepABAC           Step = "abac"
)

// StepStatus is the outcome of one pipeline stage.
type StepStatus string

const (
	// StepPass means the stage ran and did not block the request.
	StepPass StepStatus = "pass"

	// StepFail means the stage denied the request.
	StepFail StepStatus = "fail"

	// StepSkip means the stage did not apply; skips never block.
	StepSkip StepStatus = "skip"
)

// StepResult records one pipeline stage's contribution to a decision.
type StepResult struct {
	Step       Step       `json:"step"`
	Status     StepStatus `json:"status"`
	Detail     string     `json:"detail,omitempty"`
	DurationMs int64      `json:"duration_ms"`
}

// UpgradePath tells a denied caller which tier unlocks the permission.
type UpgradePath struct {
	CurrentTier  permission.Tier `json:"current_tier"`
	RequiredTier permission.Tier `json:"required_tier"`
	Benefits     []string        `json:"benefits,omitempty"`
}

// AccessDecision is the outcome of an access check. Allowed is true only
// for OutcomeGranted; the other fields explain why and how the decision
// was reached.
type AccessDecision struct {
	Allowed bool    `json:"allowed"`
	Outcome Outcome `json:"outcome"`
	Reason  string  `json:"reason,omitempty"`

	UserID     string                `json:"user_id"`
	TenantID   string                `json:"tenant_id"`
	Permission permission.Permission `json:"permission"`

	// Role is the tenant role the decision was resolved against. Empty
	// when the pipeline stopped before membership resolution.
	Role permission.TenantRole `json:"role,omitempty"`

	// Tier is the effective subscription tier at decision time.
	Tier permission.Tier `json:"tier,omitempty"`

	// SupportMode marks a decision made by platform staff acting inside
	// a tenant they are not a member of.
	SupportMode bool `json:"support_mode,omitempty"`

	Quota   *usage.QuotaStatus `json:"quota,omitempty"`
	Upgrade *UpgradePath       `json:"upgrade,omitempty"`

	// Trace lists each pipeline step that ran, in order.
	Trace []StepResult `json:"trace,omitempty"`

	// AuditID references the audit entry recorded for this decision.
	AuditID id.AuditID `json:"audit_id,omitempty"`

	CheckedAt  time.Time `json:"checked_at"`
	EvalTimeNs int64     `json:"eval_time_ns"`
}
