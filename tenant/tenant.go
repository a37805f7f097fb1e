// Package tenant defines the tenant Account entity and its store interface.
package tenant

import (
	"fmt"
	"time"

	"github.com/xraph/gatehouse/id"
)

// AccountType distinguishes individual workspaces from business organizations.
type AccountType string

const (
	TypeIndividual AccountType = "individual"
	TypeBusiness   AccountType = "business"
)

// Status is the lifecycle state of a tenant account.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusPending   Status = "pending"
	StatusArchived  Status = "archived"

	// StatusDeleted marks a soft-deleted tenant. Records are never
	// physically removed; audit and membership history must remain
	// queryable for compliance replay.
	StatusDeleted Status = "deleted"
)

// Account represents an isolated organization boundary. All data and
// permissions are scoped to one tenant.
type Account struct {
	ID          string         `json:"id" db:"id"`
	Name        string         `json:"name" db:"name"`
	AccountType AccountType    `json:"account_type" db:"account_type"`
	OwnerUserID string         `json:"owner_user_id" db:"owner_user_id"`
	Status      Status         `json:"status" db:"status"`
	Settings    map[string]any `json:"settings,omitempty" db:"settings"`
	Metadata    map[string]any `json:"metadata,omitempty" db:"metadata"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" db:"updated_at"`
}

// New creates an active tenant account with a fresh tenant ID.
func New(name string, accountType AccountType, ownerUserID string) (*Account, error) {
	now := time.Now().UTC()
	a := &Account{
		ID:          id.NewTenantID().String(),
		Name:        name,
		AccountType: accountType,
		OwnerUserID: ownerUserID,
		Status:      StatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// Validate checks the account's required fields and enum values.
func (a *Account) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("tenant: account id is required")
	}
	if a.Name == "" {
		return fmt.Errorf("tenant: account name is required")
	}
	if a.OwnerUserID == "" {
		return fmt.Errorf("tenant: owner user id is required")
	}
	switch a.AccountType {
	case TypeIndividual, TypeBusiness:
	default:
		return fmt.Errorf("tenant: invalid account type %q", a.AccountType)
	}
	switch a.Status {
	case StatusActive, StatusSuspended, StatusPending, StatusArchived, StatusDeleted:
	default:
		return fmt.Errorf("tenant: invalid status %q", a.Status)
	}
	return nil
}

// IsActive reports whether the tenant may be authorized against.
func (a *Account) IsActive() bool { return a.Status == StatusActive }
