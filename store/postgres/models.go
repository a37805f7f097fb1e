package postgres

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
	ID              string         `grove:"id,pk"`
	Name            string         `grove:"name,notnull"`
	AccountType     string         `grove:"account_type,notnull"`
	OwnerUserID     string         `grove:"owner_user_id,notnull"`
	Status          string         `grove:"status,notnull"`
	Settings        map[string]any `grove:"settings,type:jsonb"`
	Metadata        map[string]any `grove:"metadata,type:jsonb"`
	CreatedAt       time.Time      `grove:"created_at,notnull"`
	UpdatedAt       time.Time      `grove:"updated_at,notnull"`
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
	ID                string         `grove:"id,pk"`
	TenantID          string         `grove:"tenant_id,notnull"`
	UserID            string         `grove:"user_id,notnull"`
	Role              string         `grove:"role,notnull"`
	Status            string         `grove:"status,notnull"`
	InvitedBy         string         `grove:"invited_by"`
	InvitedAt         *time.Time     `grove:"invited_at"`
	JoinedAt          *time.Time     `grove:"joined_at"`
	CustomPermissions []string       `grove:"custom_permissions,type:jsonb"`
	Settings          map[string]any `grove:"settings,type:jsonb"`
	CreatedAt         time.Time      `grove:"created_at,notnull"`
	UpdatedAt         time.Time      `grove:"updated_at,notnull"`
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
	ID                     string     `grove:"id,pk"`
	TenantID               string     `grove:"tenant_id,notnull"`
	Tier                   string     `grove:"tier,notnull"`
	Status                 string     `grove:"status,notnull"`
	Provider               string     `grove:"provider"`
	ProviderCustomerID     string     `grove:"provider_customer_id"`
	ProviderSubscriptionID string     `grove:"provider_subscription_id"`
	TrialEndsAt            *time.Time `grove:"trial_ends_at"`
	CurrentPeriodStart     *time.Time `grove:"current_period_start"`
	CurrentPeriodEnd       *time.Time `grove:"current_period_end"`
	CreatedAt              time.Time  `grove:"created_at,notnull"`
	UpdatedAt              time.Time  `grove:"updated_at,notnull"`
}

func subscriptionToModel(s *subscription.Subscription) *subscriptionModel {
	return &subscriptionModel{
		ID:                     s.ID.String(),
		TenantID:               s.TenantID,
		Tier:                   string(s.Tier),
		Status:                 string(s.Status),
		Provider:               s.Provider,
		ProviderCustomerID:     s.ProviderCustomerID,
		ProviderSubscriptionID: s.ProviderSubscriptionID,
		TrialEndsAt:            s.TrialEndsAt,
		CurrentPeriodStart:     s.CurrentPeriodStart,
		CurrentPeriodEnd:       s.CurrentPeriodEnd,
		CreatedAt:              s.CreatedAt,
		UpdatedAt:              s.UpdatedAt,
	}
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
	ID               string    `grove:"id,pk"`
	TenantID         string    `grove:"tenant_id,notnull"`
	Period           string    `grove:"period,notnull"`
	AIAgentsCreated  int64     `grove:"ai_agents_created,notnull"`
	APICalls         int64     `grove:"api_calls,notnull"`
	StorageGB        int64     `grove:"storage_gb,notnull"`
	ExecutionMinutes int64     `grove:"execution_minutes,notnull"`
	ActiveMembers    int64     `grove:"active_members,notnull"`
	CreatedAt        time.Time `grove:"created_at,notnull"`
	UpdatedAt        time.Time `grove:"updated_at,notnull"`
}

func usageToModel(u *usage.Usage) *usageModel {
	return &usageModel{
		ID:               u.ID.String(),
		TenantID:         u.TenantID,
		Period:           u.Period,
		AIAgentsCreated:  u.AIAgentsCreated,
		APICalls:         u.APICalls,
		StorageGB:        u.StorageGB,
		ExecutionMinutes: u.ExecutionMinutes,
		ActiveMembers:    u.ActiveMembers,
		CreatedAt:        u.CreatedAt,
		UpdatedAt:        u.UpdatedAt,
	}
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

// counterColumn maps a quota kind to its usage table column.
func counterColumn(kind usage.QuotaKind) string {
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
	ID              string         `grove:"id,pk"`
	TenantID        string         `grove:"tenant_id,notnull"`
	UserID          string         `grove:"user_id,notnull"`
	Action          string         `grove:"action,notnull"`
	Permission      string         `grove:"permission"`
	Result          string         `grove:"result,notnull"`
	Reason          string         `grove:"reason"`
	SupportMode     bool           `grove:"support_mode,notnull"`
	ResourceType    string         `grove:"resource_type"`
	ResourceID      string         `grove:"resource_id"`
	Context         map[string]any `grove:"context,type:jsonb"`
	Metadata        map[string]any `grove:"metadata,type:jsonb"`
	CreatedAt       time.Time      `grove:"created_at,notnull"`
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
