// Package auditlog defines the append-only audit trail written for every
// access decision and management operation.
package auditlog

import (
	"fmt"
	"time"

	"github.com/xraph/gatehouse/id"
)

// Action names what an audit entry records.
type Action string

// Access decision actions.
const (
	ActionAccessGranted            Action = "access_granted"
	ActionAccessDenied             Action = "access_denied"
	ActionAccessDeniedSubscription Action = "access_denied_subscription"
	ActionAccessDeniedQuota        Action = "access_denied_quota"
)

// Management actions.
const (
	ActionTenantCreated       Action = "tenant_created"
	ActionTenantUpdated       Action = "tenant_updated"
	ActionTenantDeleted       Action = "tenant_deleted"
	ActionMemberAdded         Action = "member_added"
	ActionMemberUpdated       Action = "member_updated"
	ActionMemberRemoved       Action = "member_removed"
	ActionSubscriptionChanged Action = "subscription_changed"
)

// Result is the allow/deny outcome an access entry records.
type Result string

const (
	ResultAllow Result = "allow"
	ResultDeny  Result = "deny"
)

// Entry is one immutable audit record. Entries are only ever appended;
// there is no update or delete path.
type Entry struct {
	ID       id.AuditID `json:"id" db:"id"`
	TenantID string     `json:"tenant_id" db:"tenant_id"`
	UserID   string     `json:"user_id" db:"user_id"`

	Action     Action `json:"action" db:"action"`
	Permission string `json:"permission,omitempty" db:"permission"`
	Result     Result `json:"result" db:"result"`
	Reason     string `json:"reason,omitempty" db:"reason"`

	// SupportMode marks decisions made while a support operator acted
	// inside a tenant they are not a member of.
	SupportMode bool `json:"support_mode,omitempty" db:"support_mode"`

	ResourceType string `json:"resource_type,omitempty" db:"resource_type"`
	ResourceID   string `json:"resource_id,omitempty" db:"resource_id"`

	Context  map[string]any `json:"context,omitempty" db:"context"`
	Metadata map[string]any `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// New returns an entry with a fresh id and timestamp.
// Unattributed stands in for a missing tenant or user id so that
// denials on malformed requests still leave an audit trail.
const Unattributed = "unattributed"

func New(tenantID, userID string, action Action, result Result) *Entry {
	return &Entry{
		ID:        id.NewAuditID(),
		TenantID:  tenantID,
		UserID:    userID,
		Action:    action,
		Result:    result,
		CreatedAt: time.Now().UTC(),
	}
}

// Validate checks the fields every entry must carry.
func (e *Entry) Validate() error {
	if e.TenantID == "" {
		return fmt.Errorf("auditlog: entry missing tenant id")
	}
	if e.UserID == "" {
		return fmt.Errorf("auditlog: entry missing user id")
	}
	if e.Action == "" {
		return fmt.Errorf("auditlog: entry missing action")
	}
	return nil
}

// QueryFilter narrows audit trail listings. Zero values match everything.
type QueryFilter struct {
	Action Action
	Result Result
	After  time.Time
	Before time.Time

	// Cursor is the opaque continuation token from a previous page.
	Cursor string
	Limit  int
}
