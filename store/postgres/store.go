// Package postgres provides a PostgreSQL implementation of the Gatehouse
// composite store using grove ORM with Go-based migrations.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/gatehouse/auditlog"
	"github.com/xraph/gatehouse/id"
	"github.com/xraph/gatehouse/membership"
	"github.com/xraph/gatehouse/store"
	"github.com/xraph/gatehouse/subscription"
	"github.com/xraph/gatehouse/tenant"
	"github.com/xraph/gatehouse/usage"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store is a PostgreSQL implementation of the composite Gatehouse store.
type Store struct {
	db   *grove.DB
	pgdb *pgdriver.PgDB
}

// New creates a new PostgreSQL store.
func New(db *grove.DB) *Store {
	return &Store{
		db:   db,
		pgdb: pgdriver.Unwrap(db),
	}
}

// Migrate runs programmatic migrations via the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pgdb)
	if err != nil {
		return fmt.Errorf("gatehouse: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("gatehouse: migration failed: %w", err)
	}
	return nil
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// isUniqueViolation reports whether err is a unique-constraint violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// ──────────────────────────────────────────────────
// Tenant operations
// ──────────────────────────────────────────────────

func (s *Store) CreateTenant(ctx context.Context, a *tenant.Account) error {
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	m := tenantToModel(a)
	_, err := s.pgdb.NewInsert(m).Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("tenant %s: %w", a.ID, store.ErrDuplicate)
		}
		return fmt.Errorf("gatehouse: create tenant: %w", err)
	}
	return nil
}

func (s *Store) GetTenant(ctx context.Context, tenantID string) (*tenant.Account, error) {
	m := new(tenantModel)
	err := s.pgdb.NewSelect(m).Where("id = ?", tenantID).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("tenant %s: %w", tenantID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("gatehouse: get tenant: %w", err)
	}
	return tenantFromModel(m), nil
}

func (s *Store) UpdateTenant(ctx context.Context, a *tenant.Account) error {
	a.UpdatedAt = time.Now().UTC()
	m := tenantToModel(a)
	res, err := s.pgdb.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("gatehouse: update tenant: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("tenant %s: %w", a.ID, store.ErrNotFound)
	}
	return nil
}

func (s *Store) SoftDeleteTenant(ctx context.Context, tenantID string) error {
	res, err := s.pgdb.NewUpdate((*tenantModel)(nil)).
		Set("status = ?", string(tenant.StatusDeleted)).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", tenantID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("gatehouse: soft delete tenant: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("tenant %s: %w", tenantID, store.ErrNotFound)
	}
	return nil
}

func (s *Store) BatchGetTenants(ctx context.Context, tenantIDs []string) ([]*tenant.Account, error) {
	if len(tenantIDs) == 0 {
		return nil, nil
	}
	var models []tenantModel
	err := s.pgdb.NewSelect(&models).
		Where("id IN (?)", tenantIDs).
		OrderExpr("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("gatehouse: batch get tenants: %w", err)
	}
	result := make([]*tenant.Account, len(models))
	for i := range models {
		result[i] = tenantFromModel(&models[i])
	}
	return result, nil
}

// ──────────────────────────────────────────────────
// Membership operations
// ──────────────────────────────────────────────────

func (s *Store) CreateMembership(ctx context.Context, m *membership.Membership) error {
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now
	model := membershipToModel(m)
	_, err := s.pgdb.NewInsert(model).Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("membership %s/%s: %w", m.TenantID, m.UserID, store.ErrDuplicate)
		}
		return fmt.Errorf("gatehouse: create membership: %w", err)
	}
	return nil
}

func (s *Store) GetMembership(ctx context.Context, tenantID, userID string) (*membership.Membership, error) {
	m := new(membershipModel)
	err := s.pgdb.NewSelect(m).
		Where("tenant_id = ?", tenantID).
		Where("user_id = ?", userID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("membership %s/%s: %w", tenantID, userID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("gatehouse: get membership: %w", err)
	}
	return membershipFromModel(m), nil
}

func (s *Store) UpdateMembership(ctx context.Context, m *membership.Membership) error {
	m.UpdatedAt = time.Now().UTC()
	model := membershipToModel(m)
	res, err := s.pgdb.NewUpdate(model).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("gatehouse: update membership: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("membership %s/%s: %w", m.TenantID, m.UserID, store.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteMembership(ctx context.Context, tenantID, userID string) error {
	res, err := s.pgdb.NewDelete((*membershipModel)(nil)).
		Where("tenant_id = ?", tenantID).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("gatehouse: delete membership: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("membership %s/%s: %w", tenantID, userID, store.ErrNotFound)
	}
	return nil
}

func (s *Store) ListMembershipsByTenant(ctx context.Context, tenantID string, filter *membership.ListFilter) ([]*membership.Membership, string, error) {
	var models []membershipModel
	q := s.pgdb.NewSelect(&models).
		Where("tenant_id = ?", tenantID).
		OrderExpr("created_at ASC, id ASC")
	limit := 0
	if filter != nil {
		if filter.Role != "" {
			q = q.Where("role = ?", string(filter.Role))
		}
		if filter.Status != "" {
			q = q.Where("status = ?", string(filter.Status))
		}
		if filter.After != nil {
			q = q.Where("created_at > ?", *filter.After)
		}
		if filter.Before != nil {
			q = q.Where("created_at < ?", *filter.Before)
		}
		c, err := store.DecodeCursor(filter.Cursor)
		if err != nil {
			return nil, "", err
		}
		if c != nil {
			q = q.Where("(created_at, id) > (?, ?)", c.CreatedAt, c.ID)
		}
		limit = filter.Limit
	}
	if limit > 0 {
		// One row past the limit tells us whether more pages remain.
		q = q.Limit(limit + 1)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, "", fmt.Errorf("gatehouse: list memberships by tenant: %w", err)
	}
	return pageMembershipModels(models, limit)
}

func (s *Store) ListMembershipsByUser(ctx context.Context, userID string, filter *membership.ListFilter) ([]*membership.Membership, string, error) {
	var models []membershipModel
	q := s.pgdb.NewSelect(&models).
		Where("user_id = ?", userID).
		OrderExpr("created_at ASC, id ASC")
	limit := 0
	if filter != nil {
		if filter.Role != "" {
			q = q.Where("role = ?", string(filter.Role))
		}
		if filter.Status != "" {
			q = q.Where("status = ?", string(filter.Status))
		}
		if filter.After != nil {
			q = q.Where("created_at > ?", *filter.After)
		}
		if filter.Before != nil {
			q = q.Where("created_at < ?", *filter.Before)
		}
		c, err := store.DecodeCursor(filter.Cursor)
		if err != nil {
			return nil, "", err
		}
		if c != nil {
			q = q.Where("(created_at, id) > (?, ?)", c.CreatedAt, c.ID)
		}
		limit = filter.Limit
	}
	if limit > 0 {
		q = q.Limit(limit + 1)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, "", fmt.Errorf("gatehouse: list memberships by user: %w", err)
	}
	return pageMembershipModels(models, limit)
}

func (s *Store) CountMembershipsByTenant(ctx context.Context, tenantID string, filter *membership.ListFilter) (int64, error) {
	q := s.pgdb.NewSelect((*membershipModel)(nil)).Where("tenant_id = ?", tenantID)
	if filter != nil {
		if filter.Role != "" {
			q = q.Where("role = ?", string(filter.Role))
		}
		if filter.Status != "" {
			q = q.Where("status = ?", string(filter.Status))
		}
		if filter.After != nil {
			q = q.Where("created_at > ?", *filter.After)
		}
		if filter.Before != nil {
			q = q.Where("created_at < ?", *filter.Before)
		}
	}
	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("gatehouse: count memberships: %w", err)
	}
	return count, nil
}

func pageMembershipModels(models []membershipModel, limit int) ([]*membership.Membership, string, error) {
	next := ""
	if limit > 0 && len(models) > limit {
		last := models[limit-1]
		next = store.EncodeCursor(last.CreatedAt, last.ID)
		models = models[:limit]
	}
	result := make([]*membership.Membership, len(models))
	for i := range models {
		result[i] = membershipFromModel(&models[i])
	}
	return result, next, nil
}

// ──────────────────────────────────────────────────
// Subscription operations
// ──────────────────────────────────────────────────

func (s *Store) UpsertSubscription(ctx context.Context, sub *subscription.Subscription) error {
	now := time.Now().UTC()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now
	m := subscriptionToModel(sub)
	_, err := s.pgdb.NewInsert(m).
		OnConflict(`(tenant_id) DO UPDATE SET
tier = EXCLUDED.tier,
status = EXCLUDED.status,
provider = EXCLUDED.provider,
provider_customer_id = EXCLUDED.provider_customer_id,
provider_subscription_id = EXCLUDED.provider_subscription_id,
trial_ends_at = EXCLUDED.trial_ends_at,
current_period_start = EXCLUDED.current_period_start,
current_period_end = EXCLUDED.current_period_end,
updated_at = EXCLUDED.updated_at`).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("gatehouse: upsert subscription: %w", err)
	}
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, tenantID string) (*subscription.Subscription, error) {
	m := new(subscriptionModel)
	err := s.pgdb.NewSelect(m).Where("tenant_id = ?", tenantID).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("subscription for tenant %s: %w", tenantID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("gatehouse: get subscription: %w", err)
	}
	return subscriptionFromModel(m), nil
}

func (s *Store) BatchGetSubscriptions(ctx context.Context, tenantIDs []string) ([]*subscription.Subscription, error) {
	if len(tenantIDs) == 0 {
		return nil, nil
	}
	var models []subscriptionModel
	err := s.pgdb.NewSelect(&models).
		Where("tenant_id IN (?)", tenantIDs).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("gatehouse: batch get subscriptions: %w", err)
	}
	result := make([]*subscription.Subscription, len(models))
	for i := range models {
		result[i] = subscriptionFromModel(&models[i])
	}
	return result, nil
}

// ──────────────────────────────────────────────────
// Usage operations
// ──────────────────────────────────────────────────

func (s *Store) UpsertUsage(ctx context.Context, u *usage.Usage) error {
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	m := usageToModel(u)
	_, err := s.pgdb.NewInsert(m).
		OnConflict(`(tenant_id, period) DO UPDATE SET
ai_agents_created = EXCLUDED.ai_agents_created,
api_calls = EXCLUDED.api_calls,
storage_gb = EXCLUDED.storage_gb,
execution_minutes = EXCLUDED.execution_minutes,
active_members = EXCLUDED.active_members,
updated_at = EXCLUDED.updated_at`).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("gatehouse: upsert usage: %w", err)
	}
	return nil
}

func (s *Store) GetUsage(ctx context.Context, tenantID, period string) (*usage.Usage, error) {
	m := new(usageModel)
	err := s.pgdb.NewSelect(m).
		Where("tenant_id = ?", tenantID).
		Where("period = ?", period).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("usage %s/%s: %w", tenantID, period, store.ErrNotFound)
		}
		return nil, fmt.Errorf("gatehouse: get usage: %w", err)
	}
	return usageFromModel(m), nil
}

func (s *Store) AddUsage(ctx context.Context, tenantID, period string, kind usage.QuotaKind, delta int64) error {
	col := counterColumn(kind)
	if col == "" {
		return fmt.Errorf("gatehouse: unknown quota kind %q", kind)
	}
	m := newUsageModel(tenantID, period, kind, delta)
	_, err := s.pgdb.NewInsert(m).
		OnConflict(fmt.Sprintf(`(tenant_id, period) DO UPDATE SET
%s = gatehouse_usage.%s + EXCLUDED.%s,
updated_at = EXCLUDED.updated_at`, col, col, col)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("gatehouse: add usage: %w", err)
	}
	return nil
}

func (s *Store) ReserveQuota(ctx context.Context, tenantID, period string, kind usage.QuotaKind, delta, limit int64) (bool, error) {
	col := counterColumn(kind)
	if col == "" {
		return false, fmt.Errorf("gatehouse: unknown quota kind %q", kind)
	}
	if limit == usage.Unlimited {
		if err := s.AddUsage(ctx, tenantID, period, kind, delta); err != nil {
			return false, err
		}
		return true, nil
	}

	// Guarded increment: the WHERE clause makes check-and-increment a
	// single statement, so concurrent reservations cannot jointly pass
	// the limit.
	applied, err := s.tryReserve(ctx, col, tenantID, period, delta, limit)
	if err != nil || applied {
		return applied, err
	}

	// No row updated: the period record may not exist yet.
	if delta > limit {
		return false, nil
	}
	m := newUsageModel(tenantID, period, kind, delta)
	res, err := s.pgdb.NewInsert(m).
		OnConflict("(tenant_id, period) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("gatehouse: reserve quota insert: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return true, nil
	}

	// Insert lost a race with another creator; the row exists now, so the
	// guarded increment is authoritative.
	return s.tryReserve(ctx, col, tenantID, period, delta, limit)
}

func (s *Store) tryReserve(ctx context.Context, col, tenantID, period string, delta, limit int64) (bool, error) {
	res, err := s.pgdb.NewUpdate((*usageModel)(nil)).
		Set(fmt.Sprintf("%s = %s + ?", col, col), delta).
		Set("updated_at = ?", time.Now().UTC()).
		Where("tenant_id = ?", tenantID).
		Where("period = ?", period).
		Where(fmt.Sprintf("%s + ? <= ?", col), delta, limit).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("gatehouse: reserve quota: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("gatehouse: reserve quota rows: %w", err)
	}
	return n > 0, nil
}

func newUsageModel(tenantID, period string, kind usage.QuotaKind, delta int64) *usageModel {
	now := time.Now().UTC()
	u := &usage.Usage{
		ID:        id.NewUsageID(),
		TenantID:  tenantID,
		Period:    period,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m := usageToModel(u)
	switch kind {
	case usage.QuotaAIAgents:
		m.AIAgentsCreated = delta
	case usage.QuotaAPICalls:
		m.APICalls = delta
	case usage.QuotaStorageGB:
		m.StorageGB = delta
	case usage.QuotaExecutionMinutes:
		m.ExecutionMinutes = delta
	case usage.QuotaActiveMembers:
		m.ActiveMembers = delta
	}
	return m
}

// ──────────────────────────────────────────────────
// Audit log operations
// ──────────────────────────────────────────────────

func (s *Store) AppendEntry(ctx context.Context, e *auditlog.Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	m := auditToModel(e)
	_, err := s.pgdb.NewInsert(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("gatehouse: append audit entry: %w", err)
	}
	return nil
}

func (s *Store) GetEntry(ctx context.Context, entryID id.AuditID) (*auditlog.Entry, error) {
	m := new(auditModel)
	err := s.pgdb.NewSelect(m).Where("id = ?", entryID.String()).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("audit entry %s: %w", entryID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("gatehouse: get audit entry: %w", err)
	}
	return auditFromModel(m), nil
}

func (s *Store) ListEntriesByTenant(ctx context.Context, tenantID string, filter auditlog.QueryFilter) ([]*auditlog.Entry, string, error) {
	var models []auditModel
	q := s.pgdb.NewSelect(&models).
		Where("tenant_id = ?", tenantID).
		OrderExpr("created_at DESC, id DESC")
	if filter.Action != "" {
		q = q.Where("action = ?", string(filter.Action))
	}
	if filter.Result != "" {
		q = q.Where("result = ?", string(filter.Result))
	}
	if !filter.After.IsZero() {
		q = q.Where("created_at > ?", filter.After)
	}
	if !filter.Before.IsZero() {
		q = q.Where("created_at < ?", filter.Before)
	}
	c, err := store.DecodeCursor(filter.Cursor)
	if err != nil {
		return nil, "", err
	}
	if c != nil {
		q = q.Where("(created_at, id) < (?, ?)", c.CreatedAt, c.ID)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit + 1)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, "", fmt.Errorf("gatehouse: list audit entries: %w", err)
	}
	return pageAuditModels(models, filter.Limit)
}

func (s *Store) ListEntriesByUser(ctx context.Context, tenantID, userID string, filter auditlog.QueryFilter) ([]*auditlog.Entry, string, error) {
	var models []auditModel
	q := s.pgdb.NewSelect(&models).
		Where("tenant_id = ?", tenantID).
		Where("user_id = ?", userID).
		OrderExpr("created_at DESC, id DESC")
	if filter.Action != "" {
		q = q.Where("action = ?", string(filter.Action))
	}
	if filter.Result != "" {
		q = q.Where("result = ?", string(filter.Result))
	}
	if !filter.After.IsZero() {
		q = q.Where("created_at > ?", filter.After)
	}
	if !filter.Before.IsZero() {
		q = q.Where("created_at < ?", filter.Before)
	}
	c, err := store.DecodeCursor(filter.Cursor)
	if err != nil {
		return nil, "", err
	}
	if c != nil {
		q = q.Where("(created_at, id) < (?, ?)", c.CreatedAt, c.ID)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit + 1)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, "", fmt.Errorf("gatehouse: list audit entries by user: %w", err)
	}
	return pageAuditModels(models, filter.Limit)
}

func (s *Store) CountEntries(ctx context.Context, tenantID string, filter auditlog.QueryFilter) (int64, error) {
	q := s.pgdb.NewSelect((*auditModel)(nil)).Where("tenant_id = ?", tenantID)
	if filter.Action != "" {
		q = q.Where("action = ?", string(filter.Action))
	}
	if filter.Result != "" {
		q = q.Where("result = ?", string(filter.Result))
	}
	if !filter.After.IsZero() {
		q = q.Where("created_at > ?", filter.After)
	}
	if !filter.Before.IsZero() {
		q = q.Where("created_at < ?", filter.Before)
	}
	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("gatehouse: count audit entries: %w", err)
	}
	return count, nil
}

func pageAuditModels(models []auditModel, limit int) ([]*auditlog.Entry, string, error) {
	next := ""
	if limit > 0 && len(models) > limit {
		last := models[limit-1]
		next = store.EncodeCursor(last.CreatedAt, last.ID)
		models = models[:limit]
	}
	result := make([]*auditlog.Entry, len(models))
	for i := range models {
		result[i] = auditFromModel(&models[i])
	}
	return result, next, nil
}
