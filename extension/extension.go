// Package extension provides a Forge extension entry point for Gatehouse.
package extension

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/gatehouse"
	"github.com/xraph/gatehouse/store"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "gatehouse"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Tenant authorization engine (roles, tiers, quotas, audit)"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts Gatehouse as a Forge extension.
type Extension struct {
	config  Config
	eng     *gatehouse.Engine
	logger  *slog.Logger
	engOpts []gatehouse.Option
}

// New creates a Gatehouse Forge extension with the given options.
func New(opts ...ExtOption) *Extension {
	e := &Extension{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name returns the extension name.
func (e *Extension) Name() string { return ExtensionName }

// Description returns the extension description.
func (e *Extension) Description() string { return ExtensionDescription }

// Version returns the extension version.
func (e *Extension) Version() string { return ExtensionVersion }

// Dependencies returns the list of extension names this extension depends on.
func (e *Extension) Dependencies() []string { return []string{} }

// Engine returns the underlying Gatehouse engine.
func (e *Extension) Engine() *gatehouse.Engine { return e.eng }

// Register implements [forge.Extension]. It initializes the engine and
// registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.init(fapp); err != nil {
		return err
	}

	if err := vessel.Provide(fapp.Container(), func() (*gatehouse.Engine, error) {
		return e.eng, nil
	}); err != nil {
		return fmt.Errorf("gatehouse: register engine in container: %w", err)
	}

	return nil
}

func (e *Extension) init(fapp forge.App) error {
	logger := e.logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := make([]gatehouse.Option, 0, len(e.engOpts)+2)
	opts = append(opts, gatehouse.WithLogger(logger))

	// Resolve the store from the DI container; option-provided stores
	// override it.
	if s, err := forge.Inject[store.Store](fapp.Container()); err == nil {
		opts = append(opts, gatehouse.WithStore(s))
	}
	opts = append(opts, e.engOpts...)

	eng, err := gatehouse.NewEngine(opts...)
	if err != nil {
		return fmt.Errorf("gatehouse: create engine: %w", err)
	}
	e.eng = eng
	return nil
}

// Start runs migrations unless disabled and starts the engine.
func (e *Extension) Start(ctx context.Context) error {
	if e.eng == nil {
		return errors.New("gatehouse: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if s := e.eng.Store(); s != nil {
			if err := s.Migrate(ctx); err != nil {
				return fmt.Errorf("gatehouse: migration failed: %w", err)
			}
		}
	}

	return e.eng.Start(ctx)
}

// Stop gracefully shuts down the engine.
func (e *Extension) Stop(ctx context.Context) error {
	if e.eng == nil {
		return nil
	}
	return e.eng.Stop(ctx)
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.eng == nil {
		return errors.New("gatehouse: extension not initialized")
	}
	s := e.eng.Store()
	if s == nil {
		return errors.New("gatehouse: no store configured")
	}
	return s.Ping(ctx)
}
