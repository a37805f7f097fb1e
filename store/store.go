// Package store defines the composite persistence interface the engine
// runs on, plus the sentinel errors and cursor tokens shared by every
// backend.
package store

import (
	"context"
	"errors"

	"github.com/xraph/gatehouse/auditlog"
	"github.com/xraph/gatehouse/membership"
	"github.com/xraph/gatehouse/subscription"
	"github.com/xraph/gatehouse/tenant"
	"github.com/xraph/gatehouse/usage"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrDuplicate is returned when a create collides with an existing record
// on a unique key.
var ErrDuplicate = errors.New("store: duplicate")

// Store is the composite persistence interface. Backends implement all
// five entity stores plus lifecycle operations.
type Store interface {
	tenant.Store
	membership.Store
	subscription.Store
	usage.Store
	auditlog.Store

	// Migrate creates or upgrades the backend schema.
	Migrate(ctx context.Context) error

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
