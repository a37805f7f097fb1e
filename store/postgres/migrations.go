package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Gatehouse store.
var Migrations = migrate.NewGroup("gatehouse")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_tenants",
			Version: "20250101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS gatehouse_tenants (
    id              TEXT PRIMARY KEY,
    name            TEXT NOT NULL,
    account_type    TEXT NOT NULL,
    owner_user_id   TEXT NOT NULL,
    status          TEXT NOT NULL DEFAULT 'active',
    settings        JSONB NOT NULL DEFAULT '{}',
    metadata        JSONB NOT NULL DEFAULT '{}',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_gatehouse_tenants_owner ON gatehouse_tenants (owner_user_id);
CREATE INDEX IF NOT EXISTS idx_gatehouse_tenants_status ON gatehouse_tenants (status);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS gatehouse_tenants`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_memberships",
			Version: "20250101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS gatehouse_memberships (
    id                  TEXT PRIMARY KEY,
    tenant_id           TEXT NOT NULL,
    user_id             TEXT NOT NULL,
    role                TEXT NOT NULL,
    status              TEXT NOT NULL DEFAULT 'active',
    invited_by          TEXT NOT NULL DEFAULT '',
    invited_at          TIMESTAMPTZ,
    joined_at           TIMESTAMPTZ,
    custom_permissions  JSONB NOT NULL DEFAULT '[]',
    settings            JSONB NOT NULL DEFAULT '{}',
    created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at          TIMESTAMPTZ NOT NULL DEFAULT now(),

    UNIQUE(tenant_id, user_id)
);

CREATE INDEX IF NOT EXISTS idx_gatehouse_memberships_tenant ON gatehouse_memberships (tenant_id, created_at, id);
CREATE INDEX IF NOT EXISTS idx_gatehouse_memberships_user ON gatehouse_memberships (user_id, created_at, id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS gatehouse_memberships`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_subscriptions",
			Version: "20250101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS gatehouse_subscriptions (
    id                          TEXT PRIMARY KEY,
    tenant_id                   TEXT NOT NULL UNIQUE,
    tier                        TEXT NOT NULL DEFAULT 'free',
    status                      TEXT NOT NULL DEFAULT 'active',
    provider                    TEXT NOT NULL DEFAULT '',
    provider_customer_id        TEXT NOT NULL DEFAULT '',
    provider_subscription_id    TEXT NOT NULL DEFAULT '',
    trial_ends_at               TIMESTAMPTZ,
    current_period_start        TIMESTAMPTZ,
    current_period_end          TIMESTAMPTZ,
    created_at                  TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at                  TIMESTAMPTZ NOT NULL DEFAULT now()
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS gatehouse_subscriptions`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_usage",
			Version: "20250101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS gatehouse_usage (
    id                  TEXT PRIMARY KEY,
    tenant_id           TEXT NOT NULL,
    period              TEXT NOT NULL,
    ai_agents_created   BIGINT NOT NULL DEFAULT 0,
    api_calls           BIGINT NOT NULL DEFAULT 0,
    storage_gb          BIGINT NOT NULL DEFAULT 0,
    execution_minutes   BIGINT NOT NULL DEFAULT 0,
    active_members      BIGINT NOT NULL DEFAULT 0,
    created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at          TIMESTAMPTZ NOT NULL DEFAULT now(),

    UNIQUE(tenant_id, period)
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS gatehouse_usage`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_audit_log",
			Version: "20250101000005",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS gatehouse_audit_log (
    id              TEXT PRIMARY KEY,
    tenant_id       TEXT NOT NULL,
    user_id         TEXT NOT NULL,
    action          TEXT NOT NULL,
    permission      TEXT NOT NULL DEFAULT '',
    result          TEXT NOT NULL,
    reason          TEXT NOT NULL DEFAULT '',
    support_mode    BOOLEAN NOT NULL DEFAULT FALSE,
    resource_type   TEXT NOT NULL DEFAULT '',
    resource_id     TEXT NOT NULL DEFAULT '',
    context         JSONB NOT NULL DEFAULT '{}',
    metadata        JSONB NOT NULL DEFAULT '{}',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_gatehouse_audit_tenant ON gatehouse_audit_log (tenant_id, created_at DESC, id DESC);
CREATE INDEX IF NOT EXISTS idx_gatehouse_audit_user ON gatehouse_audit_log (tenant_id, user_id, created_at DESC, id DESC);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS gatehouse_audit_log`)
				return err
			},
		},
	)
}
