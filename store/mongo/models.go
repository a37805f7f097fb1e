package mongo

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/gatehouse/auditlog"
	"github.com/xraph/gatehouse/id"
	"github.com/xraph/gatehouse/membership"
	"github.com/xraph/gatehouse/permission"
	"github.com/xraph/gatehouse/subscription"
	"github.com/xraph/gatehouse/tenant"
	"github.com/xraph/gatehouse/usage"
)

// ──────────────────────────────────────────────────
// Tenant model
// ──────────────────────────────────────────────────

type tenantModel struct {
	grove.BaseModel `grove:"table:gatehouse_tenants"`
	ID              string         `grove:"id,pk"          bson:"_id"`
	Name            string         `grove:"name"           bson:"name"`
	AccountType     string         `grove:"account_type"   bson:"account_type"`
	OwnerUserID     string         `grove:"owner_user_id"  bson:"owner_user_id"`
	Status          string         `grove:"status"         bson:"status"`
	Settings        map[string]any `grove:"settings"       bson:"settings,omitempty"`
	Metadata        map[string]any `grove:"metadata"       bson:"metadata,omitempty"`
	CreatedAt       time.Time      `grove:"created_at"     bson:"created_at"`
	UpdatedAt       time.Time      `grove:"updated_at"     bson:"updated_at"`
}

func tenantToModel(a *tenant.Account) *tenantModel {
	return &tenantModel{
		ID:          a.ID,
		Name:        a.Name,
		AccountType: string(a.AccountType),
		OwnerUserID: a.OwnerUserID,
		Status:      string(a.Status),
		Settings:    a.Settings,
		Metadata:    a.Metadata,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

func tenantFromModel(m *tenantModel) *tenant.Account {
	return &tenant.Account{
		ID:          m.ID,
		Name:        m.Name,
		AccountType: tenant.AccountType(m.AccountType),
		OwnerUserID: m.OwnerUserID,
		Status:      tenant.Status(m.Status),
		Settings:    m.Settings,
		Metadata:    m.Metadata,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// ──────────────────────────────────────────────────
// Membership model
// ──────────────────────────────────────────────────

type membershipModel struct {
	grove.BaseModel   `grove:"table:gatehouse_memberships"`
	ID                string         `grove:"id,pk"               bson:"_id"`
	TenantID          string         `grove:"tenant_id"           bson:"tenant_id"`
	UserID            string         `grove:"user_id"             bson:"user_id"`
	Role              string         `grove:"role"                bson:"role"`
	Status            string         `grove:"status"              bson:"status"`
	InvitedBy         string         `grove:"invited_by"          bson:"invited_by,omitempty"`
	InvitedAt         *time.Time     `grove:"invited_at"          bson:"invited_at,omitempty"`
	JoinedAt          *time.Time     `grove:"joined_at"           bson:"joined_at,omitempty"`
	CustomPermissions []string       `grove:"custom_permissions"  bson:"custom_permissions,omitempty"`
	Settings          map[string]any `grove:"settings"            bson:"settings,omitempty"`
	CreatedAt         time.Time      `grove:"created_at"          bson:"created_at"`
	UpdatedAt         time.Time      `grove:"updated_at"          bson:"updated_at"`
}

func membershipToModel(m *membership.Membership) *membershipModel {
	return &membershipModel{
		ID:                m.ID.String(),
		TenantID:          m.TenantID,
		UserID:            m.UserID,
		Role:              string(m.Role),
		Status:            string(m.Status),
		InvitedBy:         m.InvitedBy,
		InvitedAt:         m.InvitedAt,
		JoinedAt:          m.JoinedAt,
		CustomPermissions: m.CustomPermissions,
		Settings:          m.Settings,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

func membershipFromModel(m *membershipModel) *membership.Membership {
	mid, _ := id.ParseMembershipID(m.ID) //nolint:errcheck // stored IDs are always valid
	return &membership.Membership{
		ID:                mid,
		TenantID:          m.TenantID,
		UserID:            m.UserID,
		Role:              permission.TenantRole(m.Role),
		Status:            membership.Status(m.Status),
		InvitedBy:         m.InvitedBy,
		InvitedAt:         m.InvitedAt,
		JoinedAt:          m.JoinedAt,
		CustomPermissions: m.CustomPermissions,
		Settings:          m.Settings,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

// ──────────────────────────────────────────────────
// Subscription model
// ──────────────────────────────────────────────────

type subscriptionModel struct {
	grove.BaseModel        `grove:"table:gatehouse_subscriptions"`
	ID                     string     `grove:"id,pk"                     bson:"_id"`
	TenantID               string     `grove:"tenant_id"                 bson:"tenant_id"`
	Tier                   string     `grove:"tier"                      bson:"tier"`
	Status                 string     `grove:"status"                    bson:"status"`
	Provider               string     `grove:"provider"                  bson:"provider,omitempty"`
	ProviderCustomerID     string     `grove:"provider_customer_id"      bson:"provider_customer_id,omitempty"`
	ProviderSubscriptionID string     `grove:"provider_subscription_id"  bson:"provider_subscription_id,omitempty"`
	TrialEndsAt            *time.Time `grove:"trial_ends_at"             bson:"trial_ends_at,omitempty"`
	CurrentPeriodStart     *time.Time `grove:"current_period_start"      bson:"current_period_start,omitempty"`
	CurrentPeriodEnd       *time.Time `grove:"current_period_end"        bson:"current_period_end,omitempty"`
	CreatedAt              time.Time  `grove:"created_at"                bson:"created_at"`
	UpdatedAt              time.Time  `grove:"updated_at"                bson:"updated_at"`
}

func subscriptionFromModel(m *subscriptionModel) *subscription.Subscription {
	sid, _ := id.ParseSubscriptionID(m.ID) //nolint:errcheck // stored IDs are always valid
	return &subscription.Subscription{
		ID:                     sid,
		TenantID:               m.TenantID,
		Tier:                   permission.Tier(m.Tier),
		Status:                 subscription.Status(m.Status),
		Provider:               m.Provider,
		ProviderCustomerID:     m.ProviderCustomerID,
		ProviderSubscriptionID: m.ProviderSubscriptionID,
		TrialEndsAt:            m.TrialEndsAt,
		CurrentPeriodStart:     m.CurrentPeriodStart,
		CurrentPeriodEnd:       m.CurrentPeriodEnd,
		CreatedAt:              m.CreatedAt,
		UpdatedAt:              m.UpdatedAt,
	}
}

// ──────────────────────────────────────────────────
// Usage model
// ──────────────────────────────────────────────────

type usageModel struct {
	grove.BaseModel  `grove:"table:gatehouse_usage"`
	ID               string    `grove:"id,pk"              bson:"_id"`
	TenantID         string    `grove:"tenant_id"          bson:"tenant_id"`
	Period           string    `grove:"period"             bson:"period"`
	AIAgentsCreated  int64     `grove:"ai_agents_created"  bson:"ai_agents_created"`
	APICalls         int64     `grove:"api_calls"          bson:"api_calls"`
	StorageGB        int64     `grove:"storage_gb"         bson:"storage_gb"`
	ExecutionMinutes int64     `grove:"execution_minutes"  bson:"execution_minutes"`
	ActiveMembers    int64     `grove:"active_members"     bson:"active_members"`
	CreatedAt        time.Time `grove:"created_at"         bson:"created_at"`
	UpdatedAt        time.Time `grove:"updated_at"         bson:"updated_at"`
}

func usageFromModel(m *usageModel) *usage.Usage {
	uid, _ := id.ParseUsageID(m.ID) //nolint:errcheck // stored IDs are always valid
	return &usage.Usage{
		ID:               uid,
		TenantID:         m.TenantID,
		Period:           m.Period,
		AIAgentsCreated:  m.AIAgentsCreated,
		APICalls:         m.APICalls,
		StorageGB:        m.StorageGB,
		ExecutionMinutes: m.ExecutionMinutes,
		ActiveMembers:    m.ActiveMembers,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

// counterField maps a quota kind to its document field.
func counterField(kind usage.QuotaKind) string {
	switch kind {
	case usage.QuotaAIAgents:
		return "ai_agents_created"
	case usage.QuotaAPICalls:
		return "api_calls"
	case usage.QuotaStorageGB:
		return "storage_gb"
	case usage.QuotaExecutionMinutes:
		return "execution_minutes"
	case usage.QuotaActiveMembers:
		return "active_members"
	}
	return ""
}

// ──────────────────────────────────────────────────
// Audit log model
// ──────────────────────────────────────────────────

type auditModel struct {
	grove.BaseModel `grove:"table:gatehouse_audit_log"`
	ID              string         `grove:"id,pk"          bson:"_id"`
	TenantID        string         `grove:"tenant_id"      bson:"tenant_id"`
	UserID          string         `grove:"user_id"        bson:"user_id"`
	Action          string         `grove:"action"         bson:"action"`
	Permission      string         `grove:"permission"     bson:"permission,omitempty"`
	Result          string         `grove:"result"         bson:"result"`
	Reason          string         `grove:"reason"         bson:"reason,omitempty"`
	SupportMode     bool           `grove:"support_mode"   bson:"support_mode"`
	ResourceType    string         `grove:"resource_type"  bson:"resource_type,omitempty"`
	ResourceID      string         `grove:"resource_id"    bson:"resource_id,omitempty"`
	Context         map[string]any `grove:"context"        bson:"context,omitempty"`
	Metadata        map[string]any `grove:"metadata"       bson:"metadata,omitempty"`
	CreatedAt       time.Time      `grove:"created_at"     bson:"created_at"`
}

func auditToModel(e *auditlog.Entry) *auditModel {
	return &auditModel{
		ID:           e.ID.String(),
		TenantID:     e.TenantID,
		UserID:       e.UserID,
		Action:       string(e.Action),
		Permission:   e.Permission,
		Result:       string(e.Result),
		Reason:       e.Reason,
		SupportMode:  e.SupportMode,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		Context:      e.Context,
		Metadata:     e.Metadata,
		CreatedAt:    e.CreatedAt,
	}
}

func auditFromModel(m *auditModel) *auditlog.Entry {
	aid, _ := id.ParseAuditID(m.ID) //nolint:errcheck // stored IDs are always valid
	return &auditlog.Entry{
		ID:           aid,
		TenantID:     m.TenantID,
		UserID:       m.UserID,
		Action:       auditlog.Action(m.Action),
		Permission:   m.Permission,
		Result:       auditlog.Result(m.Result),
		Reason:       m.Reason,
		SupportMode:  m.SupportMode,
		ResourceType: m.ResourceType,
		ResourceID:   m.ResourceID,
		Context:      m.Context,
		Metadata:     m.Metadata,
		CreatedAt:    m.CreatedAt,
	}
}
