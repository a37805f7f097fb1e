// Package membership defines the tenant Membership entity (user→role
// binding within a tenant) and its store interface.
package membership

import (
	"fmt"
	"time"

	"github.com/xraph/gatehouse/id"
	"github.com/xraph/gatehouse/permission"
)

// Status is the lifecycle state of a membership.
type Status string

const (
	StatusActive    Status = "active"
	StatusPending   Status = "pending"
	StatusSuspended Status = "suspended"
	StatusRemoved   Status = "removed"
)

// Membership grants a user a role within a specific tenant.
// Memberships are unique per (TenantID, UserID).
type Membership struct {
	ID       id.MembershipID       `json:"id" db:"id"`
	TenantID string                `json:"tenant_id" db:"tenant_id"`
	UserID   string                `json:"user_id" db:"user_id"`
	Role     permission.TenantRole `json:"role" db:"role"`
	Status   Status                `json:"status" db:"status"`

	InvitedBy string     `json:"invited_by,omitempty" db:"invited_by"`
	InvitedAt *time.Time `json:"invited_at,omitempty" db:"invited_at"`
	JoinedAt  *time.Time `json:"joined_at,omitempty" db:"joined_at"`

	// CustomPermissions are additive grants on top of the role's static
	// set. Entries may be exact permissions or namespace globs ("api.*");
	// they expand only within the closed permission set.
	CustomPermissions []string `json:"custom_permissions,omitempty" db:"custom_permissions"`

	Settings  map[string]any `json:"settings,omitempty" db:"settings"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt time.Time      `json:"updated_at" db:"updated_at"`
}

// New creates an active membership with a fresh membership ID.
func New(tenantID, userID string, role permission.TenantRole) (*Membership, error) {
	now := time.Now().UTC()
	m := &Membership{
		ID:        id.NewMembershipID(),
		TenantID:  tenantID,
		UserID:    userID,
		Role:      role,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks the membership's required fields and enum values.
func (m *Membership) Validate() error {
	if m.TenantID == "" {
		return fmt.Errorf("membership: tenant id is required")
	}
	if m.UserID == "" {
		return fmt.Errorf("membership: user id is required")
	}
	if !permission.ValidTenantRole(m.Role) {
		return fmt.Errorf("membership: invalid tenant role %q", m.Role)
	}
	switch m.Status {
	case StatusActive, StatusPending, StatusSuspended, StatusRemoved:
	default:
		return fmt.Errorf("membership: invalid status %q", m.Status)
	}
	return nil
}

// IsActive reports whether the membership passes authorization.
// Only active memberships do.
func (m *Membership) IsActive() bool { return m.Status == StatusActive }

// ListFilter contains filters for listing memberships.
type ListFilter struct {
	Role   permission.TenantRole `json:"role,omitempty"`
	Status Status                `json:"status,omitempty"`
	After  *time.Time            `json:"after,omitempty"`
	Before *time.Time            `json:"before,omitempty"`

	// Cursor is an opaque continuation token from a previous page.
	Cursor string `json:"cursor,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}
