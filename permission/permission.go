// Package permission defines the closed permission set, the static
// role→permission tables, and the tier requirement table for Gatehouse.
//
// Permissions are enumerated constants, not free-form strings: adding a
// permission without classifying its role grants and tier requirement is a
// visible decision in this file, not a silent default at evaluation time.
// The package is pure: no I/O and no side effects.
package permission

import (
	"sort"
	"strings"
)

// Permission identifies a specific capability inside a tenant.
// The format is "namespace.action" (e.g., "data.write").
type Permission string

// All tenant-facing and internal permissions.
const (
	DataRead   Permission = "data.read"
	DataWrite  Permission = "data.write"
	DataDelete Permission = "data.delete"
	DataExport Permission = "data.export"

	StudioViewAgents   Permission = "studio.view_agents"
	StudioCreateAgents Permission = "studio.create_agents"
	StudioEditAgents   Permission = "studio.edit_agents"
	StudioDeleteAgents Permission = "studio.delete_agents"

	APIAccess Permission = "api.access"
	APIAdmin  Permission = "api.admin"

	LabViewResults            Permission = "lab.view_results"
	LabRunExperiments         Permission = "lab.run_experiments"
	LabRunAdvancedExperiments Permission = "lab.run_advanced_experiments"

	StorageUpload Permission = "storage.upload"
	StorageManage Permission = "storage.manage"

	MembersView        Permission = "members.view"
	MembersInvite      Permission = "members.invite"
	MembersRemove      Permission = "members.remove"
	MembersManageRoles Permission = "members.manage_roles"

	BillingView   Permission = "billing.view"
	BillingManage Permission = "billing.manage"

	TenantView           Permission = "tenant.view"
	TenantManageSettings Permission = "tenant.manage_settings"
	TenantDelete         Permission = "tenant.delete"
	TenantAuditExport    Permission = "tenant.audit_export"

	SupportAccess Permission = "support.access"

	InternalCrossTenantRead Permission = "internal.cross_tenant_read"
	InternalImpersonate     Permission = "internal.impersonate"
	InternalManageFlags     Permission = "internal.manage_flags"
)

// all is the closed permission set, in declaration order.
var all = []Permission{
	DataRead, DataWrite, DataDelete, DataExport,
	StudioViewAgents, StudioCreateAgents, StudioEditAgents, StudioDeleteAgents,
	APIAccess, APIAdmin,
	LabViewResults, LabRunExperiments, LabRunAdvancedExperiments,
	StorageUpload, StorageManage,
	MembersView, MembersInvite, MembersRemove, MembersManageRoles,
	BillingView, BillingManage,
	TenantView, TenantManageSettings, TenantDelete, TenantAuditExport,
	SupportAccess,
	InternalCrossTenantRead, InternalImpersonate, InternalManageFlags,
}

// All returns the closed set of known permissions.
func All() []Permission {
	out := make([]Permission, len(all))
	copy(out, all)
	return out
}

// IsKnown reports whether p is part of the closed permission set.
func IsKnown(p Permission) bool {
	for _, k := range all {
		if k == p {
			return true
		}
	}
	return false
}

// String returns the permission string.
func (p Permission) String() string { return string(p) }

// Namespace returns the permission family prefix (the part before the
// first dot), e.g. "api" for "api.access".
func (p Permission) Namespace() string {
	s := string(p)
	if i := strings.IndexByte(s, '.'); i > 0 {
		return s[:i]
	}
	return s
}

// Set is an unordered collection of permissions.
type Set map[Permission]struct{}

// NewSet builds a Set from the given permissions.
func NewSet(perms ...Permission) Set {
	s := make(Set, len(perms))
	for _, p := range perms {
		s[p] = struct{}{}
	}
	return s
}

// Has reports whether p is in the set.
func (s Set) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// Add inserts p into the set.
func (s Set) Add(p Permission) { s[p] = struct{}{} }

// Union returns a new set containing the members of s and other.
func (s Set) Union(other Set) Set {
	out := make(Set, len(s)+len(other))
	for p := range s {
		out[p] = struct{}{}
	}
	for p := range other {
		out[p] = struct{}{}
	}
	return out
}

// Slice returns the set members sorted lexically (for stable output).
func (s Set) Slice() []Permission {
	out := make([]Permission, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ──────────────────────────────────────────────────
// Role tables
// ──────────────────────────────────────────────────

// TenantRole is a role a user holds within a single tenant.
type TenantRole string

const (
	// RoleTenantAdmin holds operational, billing, and member-management
	// permissions in addition to everything lower roles grant.
	RoleTenantAdmin TenantRole = "tenant_admin"

	// RoleTenantUser holds the everyday feature permissions.
	RoleTenantUser TenantRole = "tenant_user"

	// RoleTenantViewer holds read-only permissions.
	RoleTenantViewer TenantRole = "tenant_viewer"
)

// ValidTenantRole reports whether r is one of the known tenant roles.
func ValidTenantRole(r TenantRole) bool {
	switch r {
	case RoleTenantAdmin, RoleTenantUser, RoleTenantViewer:
		return true
	}
	return false
}

// InternalRole is a cross-tenant operator role. Internal roles carry the
// reserved "internal_" prefix and are only honored when present on the
// caller's internal identity, never inferred from a tenant role.
type InternalRole string

const (
	// InternalRoleNone is the absence of an internal role.
	InternalRoleNone InternalRole = ""

	// InternalRoleSupport grants support-mode access on top of
	// tenant_admin's permission set.
	InternalRoleSupport InternalRole = "internal_support"

	// InternalRoleAdmin grants full internal administrative capabilities.
	InternalRoleAdmin InternalRole = "internal_admin"
)

// InternalRolePrefix is the reserved name prefix for internal roles.
const InternalRolePrefix = "internal_"

// ValidInternalRole reports whether r is a known internal role. The empty
// role is valid (no elevation); anything without the reserved prefix is not.
func ValidInternalRole(r InternalRole) bool {
	switch r {
	case InternalRoleNone, InternalRoleSupport, InternalRoleAdmin:
		return true
	}
	return false
}

var viewerPermissions = []Permission{
	DataRead,
	StudioViewAgents,
	LabViewResults,
	MembersView,
	TenantView,
}

var userPermissions = append(append([]Permission{}, viewerPermissions...),
	DataWrite,
	DataExport,
	StudioCreateAgents,
	StudioEditAgents,
	APIAccess,
	LabRunExperiments,
	LabRunAdvancedExperiments,
	StorageUpload,
)

var adminPermissions = append(append([]Permission{}, userPermissions...),
	DataDelete,
	StudioDeleteAgents,
	APIAdmin,
	StorageManage,
	MembersInvite,
	MembersRemove,
	MembersManageRoles,
	BillingView,
	BillingManage,
	TenantManageSettings,
	TenantDelete,
	TenantAuditExport,
)

// TenantRolePermissions maps each tenant role to its static permission set.
// Higher roles are strict supersets of lower roles.
var TenantRolePermissions = map[TenantRole]Set{
	RoleTenantViewer: NewSet(viewerPermissions...),
	RoleTenantUser:   NewSet(userPermissions...),
	RoleTenantAdmin:  NewSet(adminPermissions...),
}

// InternalRolePermissions maps each internal role to its permission set.
// Internal roles are supersets layered on tenant_admin's grants.
var InternalRolePermissions = map[InternalRole]Set{
	InternalRoleSupport: NewSet(adminPermissions...).Union(NewSet(
		SupportAccess,
		InternalCrossTenantRead,
	)),
	InternalRoleAdmin: NewSet(adminPermissions...).Union(NewSet(
		SupportAccess,
		InternalCrossTenantRead,
		InternalImpersonate,
		InternalManageFlags,
	)),
}

// RolePermissions returns the static permission set for a tenant role.
// Unknown roles yield the empty set.
func RolePermissions(r TenantRole) Set {
	s, ok := TenantRolePermissions[r]
	if !ok {
		return Set{}
	}
	return s
}

// InternalPermissions returns the permission set for an internal role.
// The empty role and unknown roles yield the empty set.
func InternalPermissions(r InternalRole) Set {
	s, ok := InternalRolePermissions[r]
	if !ok {
		return Set{}
	}
	return s
}
