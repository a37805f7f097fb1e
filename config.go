package gatehouse

import (
	"os"
	"strconv"
)

// Config holds configuration for the Gatehouse engine.
type Config struct {
	// EnableAuthorization is the master switch. When false every check
	// is denied: the kill switch fails closed, never open.
	// Defaults to true.
	EnableAuthorization *bool `json:"enable_authorization,omitempty"`

	// EnableTenantPermissions gates the "tenant" permission namespace
	// (settings, deletion, audit export). Defaults to true.
	EnableTenantPermissions *bool `json:"enable_tenant_permissions,omitempty"`

	// EnableTierChecks enables subscription-tier gating.
	// Defaults to true.
	EnableTierChecks *bool `json:"enable_tier_checks,omitempty"`

	// EnableQuotaChecks enables usage quota enforcement.
	// Defaults to true.
	EnableQuotaChecks *bool `json:"enable_quota_checks,omitempty"`

	// EnableABAC enables attribute checks on the target resource.
	// Defaults to true.
	EnableABAC *bool `json:"enable_abac,omitempty"`

	// EnableSupportMode lets platform staff with a valid internal role
	// act inside tenants they are not members of. Defaults to false.
	EnableSupportMode *bool `json:"enable_support_mode,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	t := true
	f := false
	return Config{
		EnableAuthorization:     &t,
		EnableTenantPermissions: &t,
		EnableTierChecks:        &t,
		EnableQuotaChecks:       &t,
		EnableABAC:              &t,
		EnableSupportMode:       &f,
	}
}

// ConfigFromEnv returns a Config read from GATEHOUSE_* environment
// variables. Unset variables keep their defaults.
func ConfigFromEnv() Config {
	c := DefaultConfig()
	readBoolEnv("GATEHOUSE_ENABLE_AUTHORIZATION", &c.EnableAuthorization)
	readBoolEnv("GATEHOUSE_ENABLE_TENANT_PERMISSIONS", &c.EnableTenantPermissions)
	readBoolEnv("GATEHOUSE_ENABLE_TIER_CHECKS", &c.EnableTierChecks)
	readBoolEnv("GATEHOUSE_ENABLE_QUOTA_CHECKS", &c.EnableQuotaChecks)
	readBoolEnv("GATEHOUSE_ENABLE_ABAC", &c.EnableABAC)
	readBoolEnv("GATEHOUSE_ENABLE_SUPPORT_MODE", &c.EnableSupportMode)
	return c
}

func readBoolEnv(key string, dst **bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return
	}
	*dst = &b
}

// flagSnapshot is the set of feature flags a single check runs under.
// It is taken once at the start of CheckPermission so a concurrent
// config change cannot flip flags mid-pipeline.
type flagSnapshot struct {
	authorization bool
	tenantPerms   bool
	tierChecks    bool
	quotaChecks   bool
	abac          bool
	supportMode   bool
}

func (c Config) snapshot() flagSnapshot {
	return flagSnapshot{
		authorization: c.EnableAuthorization == nil || *c.EnableAuthorization,
		tenantPerms:   c.EnableTenantPermissions == nil || *c.EnableTenantPermissions,
		tierChecks:    c.EnableTierChecks == nil || *c.EnableTierChecks,
		quotaChecks:   c.EnableQuotaChecks == nil || *c.EnableQuotaChecks,
		abac:          c.EnableABAC == nil || *c.EnableABAC,
		supportMode:   c.EnableSupportMode != nil && *c.EnableSupportMode,
	}
}
