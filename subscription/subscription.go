// Package subscription defines the tenant Subscription entity and its
// store interface.
package subscription

import (
	"fmt"
	"time"

	"github.com/xraph/gatehouse/id"
	"github.com/xraph/gatehouse/permission"
)

// Status is the billing state of a subscription.
type Status string

const (
	StatusActive   Status = "active"
	StatusTrialing Status = "trialing"
	StatusPastDue  Status = "past_due"
	StatusCanceled Status = "canceled"
)

// Subscription is the single current subscription record for a tenant.
// A tenant without a record is treated as free tier for permission and
// quota purposes.
type Subscription struct {
	ID       id.SubscriptionID `json:"id" db:"id"`
	TenantID string            `json:"tenant_id" db:"tenant_id"`
	Tier     permission.Tier   `json:"tier" db:"tier"`
	Status   Status            `json:"status" db:"status"`

	// Billing-provider references. Gatehouse never talks to the
	// provider; these are carried for the billing flow that does.
	Provider               string `json:"provider,omitempty" db:"provider"`
	ProviderCustomerID     string `json:"provider_customer_id,omitempty" db:"provider_customer_id"`
	ProviderSubscriptionID string `json:"provider_subscription_id,omitempty" db:"provider_subscription_id"`

	TrialEndsAt        *time.Time `json:"trial_ends_at,omitempty" db:"trial_ends_at"`
	CurrentPeriodStart *time.Time `json:"current_period_start,omitempty" db:"current_period_start"`
	CurrentPeriodEnd   *time.Time `json:"current_period_end,omitempty" db:"current_period_end"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// New creates an active subscription with a fresh subscription ID.
func New(tenantID string, tier permission.Tier) (*Subscription, error) {
	now := time.Now().UTC()
	s := &Subscription{
		ID:        id.NewSubscriptionID(),
		TenantID:  tenantID,
		Tier:      tier,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks the subscription's required fields and enum values.
func (s *Subscription) Validate() error {
	if s.TenantID == "" {
		return fmt.Errorf("subscription: tenant id is required")
	}
	if !permission.ValidTier(s.Tier) {
		return fmt.Errorf("subscription: invalid tier %q", s.Tier)
	}
	switch s.Status {
	case StatusActive, StatusTrialing, StatusPastDue, StatusCanceled:
	default:
		return fmt.Errorf("subscription: invalid status %q", s.Status)
	}
	return nil
}

// TierOf returns the effective tier for a possibly-absent subscription.
// A nil subscription is free tier.
func TierOf(s *Subscription) permission.Tier {
	if s == nil {
		return permission.TierFree
	}
	return s.Tier
}
