package gatehouse

import "errors"

var (
	// ErrAccessDenied is returned by Enforce when a check is denied.
	ErrAccessDenied = errors.New("gatehouse: access denied")

	// ErrQuotaExceeded is returned when a quota reservation cannot be
	// applied without exceeding the tenant's limit.
	ErrQuotaExceeded = errors.New("gatehouse: quota exceeded")

	// ErrTenantNotFound is returned when a tenant cannot be found.
	ErrTenantNotFound = errors.New("gatehouse: tenant not found")

	// ErrTenantInactive is returned when an operation targets a
	// suspended or deleted tenant.
	ErrTenantInactive = errors.New("gatehouse: tenant not active")

	// ErrMembershipNotFound is returned when a user has no membership
	// in the tenant.
	ErrMembershipNotFound = errors.New("gatehouse: membership not found")

	// ErrDuplicateMembership is returned when a user is already a member
	// of the tenant.
	ErrDuplicateMembership = errors.New("gatehouse: user already a member")

	// ErrInvalidRole is returned when a tenant role is not one of the
	// known roles.
	ErrInvalidRole = errors.New("gatehouse: invalid tenant role")

	// ErrInvalidTier is returned when a subscription tier is not one of
	// the known tiers.
	ErrInvalidTier = errors.New("gatehouse: invalid subscription tier")

	// ErrUnknownPermission is returned when a permission is not part of
	// the registered catalog.
	ErrUnknownPermission = errors.New("gatehouse: unknown permission")
)
