package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/gatehouse/auditlog"
	"github.com/xraph/gatehouse/id"
	"github.com/xraph/gatehouse/membership"
	"github.com/xraph/gatehouse/store"
	"github.com/xraph/gatehouse/subscription"
	"github.com/xraph/gatehouse/tenant"
	"github.com/xraph/gatehouse/usage"
)

// Collection name constants.
const (
	colTenants       = "gatehouse_tenants"
	colMemberships   = "gatehouse_memberships"
	colSubscriptions = "gatehouse_subscriptions"
	colUsage         = "gatehouse_usage"
	colAuditLog      = "gatehouse_audit_log"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store is a MongoDB implementation of the composite Gatehouse store.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// Migrate creates indexes for all gatehouse collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()
	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("gatehouse/mongo: migrate %s indexes: %w", col, err)
		}
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

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongod.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all gatehouse collections.
func migrationIndexes() map[string][]mongod.IndexModel {
	return map[string][]mongod.IndexModel{
		colTenants: {
			{Keys: bson.D{{Key: "owner_user_id", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}}},
		},
		colMemberships: {
			{
				Keys:    bson.D{{Key: "tenant_id", Value: 1}, {Key: "user_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}},
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}},
		},
		colSubscriptions: {
			{
				Keys:    bson.D{{Key: "tenant_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		colUsage: {
			{
				Keys:    bson.D{{Key: "tenant_id", Value: 1}, {Key: "period", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		colAuditLog: {
			{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}},
			{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}},
			{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "action", Value: 1}}},
			{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "result", Value: 1}}},
		},
	}
}

// ──────────────────────────────────────────────────
// Tenant operations
// ──────────────────────────────────────────────────

func (s *Store) CreateTenant(ctx context.Context, a *tenant.Account) error {
	t := now()
	a.CreatedAt = t
	a.UpdatedAt = t
	m := tenantToModel(a)
	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		if mongod.IsDuplicateKeyError(err) {
			return fmt.Errorf("tenant %s: %w", a.ID, store.ErrDuplicate)
		}
		return fmt.Errorf("gatehouse: create tenant: %w", err)
	}
	return nil
}

func (s *Store) GetTenant(ctx context.Context, tenantID string) (*tenant.Account, error) {
	var m tenantModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": tenantID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("tenant %s: %w", tenantID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("gatehouse: get tenant: %w", err)
	}
	return tenantFromModel(&m), nil
}

func (s *Store) UpdateTenant(ctx context.Context, a *tenant.Account) error {
	a.UpdatedAt = now()
	m := tenantToModel(a)
	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("gatehouse: update tenant: %w", err)
	}
	if res.MatchedCount() == 0 {
		return fmt.Errorf("tenant %s: %w", a.ID, store.ErrNotFound)
	}
	return nil
}

func (s *Store) SoftDeleteTenant(ctx context.Context, tenantID string) error {
	res, err := s.mdb.Collection(colTenants).UpdateOne(ctx,
		bson.M{"_id": tenantID},
		bson.M{"$set": bson.M{"status": string(tenant.StatusDeleted), "updated_at": now()}},
	)
	if err != nil {
		return fmt.Errorf("gatehouse: soft delete tenant: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("tenant %s: %w", tenantID, store.ErrNotFound)
	}
	return nil
}

func (s *Store) BatchGetTenants(ctx context.Context, tenantIDs []string) ([]*tenant.Account, error) {
	if len(tenantIDs) == 0 {
		return nil, nil
	}
	var models []tenantModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"_id": bson.M{"$in": tenantIDs}}).
		Sort(bson.D{{Key: "created_at", Value: 1}}).
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
	t := now()
	m.CreatedAt = t
	m.UpdatedAt = t
	model := membershipToModel(m)
	if _, err := s.mdb.NewInsert(model).Exec(ctx); err != nil {
		if mongod.IsDuplicateKeyError(err) {
			return fmt.Errorf("membership %s/%s: %w", m.TenantID, m.UserID, store.ErrDuplicate)
		}
		return fmt.Errorf("gatehouse: create membership: %w", err)
	}
	return nil
}

func (s *Store) GetMembership(ctx context.Context, tenantID, userID string) (*membership.Membership, error) {
	var m membershipModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"tenant_id": tenantID, "user_id": userID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("membership %s/%s: %w", tenantID, userID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("gatehouse: get membership: %w", err)
	}
	return membershipFromModel(&m), nil
}

func (s *Store) UpdateMembership(ctx context.Context, m *membership.Membership) error {
	m.UpdatedAt = now()
	model := membershipToModel(m)
	res, err := s.mdb.NewUpdate(model).
		Filter(bson.M{"_id": model.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("gatehouse: update membership: %w", err)
	}
	if res.MatchedCount() == 0 {
		return fmt.Errorf("membership %s/%s: %w", m.TenantID, m.UserID, store.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteMembership(ctx context.Context, tenantID, userID string) error {
	res, err := s.mdb.Collection(colMemberships).DeleteOne(ctx,
		bson.M{"tenant_id": tenantID, "user_id": userID},
	)
	if err != nil {
		return fmt.Errorf("gatehouse: delete membership: %w", err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("membership %s/%s: %w", tenantID, userID, store.ErrNotFound)
	}
	return nil
}

func (s *Store) ListMembershipsByTenant(ctx context.Context, tenantID string, filter *membership.ListFilter) ([]*membership.Membership, string, error) {
	f := bson.M{"tenant_id": tenantID}
	return s.listMemberships(ctx, f, filter)
}

func (s *Store) ListMembershipsByUser(ctx context.Context, userID string, filter *membership.ListFilter) ([]*membership.Membership, string, error) {
	f := bson.M{"user_id": userID}
	return s.listMemberships(ctx, f, filter)
}

func (s *Store) listMemberships(ctx context.Context, f bson.M, filter *membership.ListFilter) ([]*membership.Membership, string, error) {
	limit := 0
	if filter != nil {
		applyMembershipFilter(f, filter)
		c, err := store.DecodeCursor(filter.Cursor)
		if err != nil {
			return nil, "", err
		}
		if c != nil {
			f["$or"] = []bson.M{
				{"created_at": bson.M{"$gt": c.CreatedAt}},
				{"created_at": c.CreatedAt, "_id": bson.M{"$gt": c.ID}},
			}
		}
		limit = filter.Limit
	}
	var models []membershipModel
	q := s.mdb.NewFind(&models).
		Filter(f).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	if limit > 0 {
		// One document past the limit tells us whether more pages remain.
		q = q.Limit(int64(limit + 1))
	}
	if err := q.Scan(ctx); err != nil {
		return nil, "", fmt.Errorf("gatehouse: list memberships: %w", err)
	}

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

func (s *Store) CountMembershipsByTenant(ctx context.Context, tenantID string, filter *membership.ListFilter) (int64, error) {
	f := bson.M{"tenant_id": tenantID}
	if filter != nil {
		applyMembershipFilter(f, filter)
	}
	count, err := s.mdb.NewFind((*membershipModel)(nil)).
		Filter(f).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("gatehouse: count memberships: %w", err)
	}
	return count, nil
}

func applyMembershipFilter(f bson.M, filter *membership.ListFilter) {
	if filter.Role != "" {
		f["role"] = string(filter.Role)
	}
	if filter.Status != "" {
		f["status"] = string(filter.Status)
	}
	created := bson.M{}
	if filter.After != nil {
		created["$gt"] = *filter.After
	}
	if filter.Before != nil {
		created["$lt"] = *filter.Before
	}
	if len(created) > 0 {
		f["created_at"] = created
	}
}

// ──────────────────────────────────────────────────
// Subscription operations
// ──────────────────────────────────────────────────

func (s *Store) UpsertSubscription(ctx context.Context, sub *subscription.Subscription) error {
	t := now()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = t
	}
	sub.UpdatedAt = t
	set := bson.M{
		"tier":                     string(sub.Tier),
		"status":                   string(sub.Status),
		"provider":                 sub.Provider,
		"provider_customer_id":     sub.ProviderCustomerID,
		"provider_subscription_id": sub.ProviderSubscriptionID,
		"trial_ends_at":            sub.TrialEndsAt,
		"current_period_start":     sub.CurrentPeriodStart,
		"current_period_end":       sub.CurrentPeriodEnd,
		"updated_at":               sub.UpdatedAt,
	}
	// _id is immutable in Mongo; a replace would collide with an
	// existing record, so the insert-only fields go in $setOnInsert.
	_, err := s.mdb.Collection(colSubscriptions).UpdateOne(ctx,
		bson.M{"tenant_id": sub.TenantID},
		bson.M{
			"$set":         set,
			"$setOnInsert": bson.M{"_id": sub.ID.String(), "created_at": sub.CreatedAt},
		},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("gatehouse: upsert subscription: %w", err)
	}
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, tenantID string) (*subscription.Subscription, error) {
	var m subscriptionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"tenant_id": tenantID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("subscription for tenant %s: %w", tenantID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("gatehouse: get subscription: %w", err)
	}
	return subscriptionFromModel(&m), nil
}

func (s *Store) BatchGetSubscriptions(ctx context.Context, tenantIDs []string) ([]*subscription.Subscription, error) {
	if len(tenantIDs) == 0 {
		return nil, nil
	}
	var models []subscriptionModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"tenant_id": bson.M{"$in": tenantIDs}}).
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
	t := now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = t
	}
	u.UpdatedAt = t
	set := bson.M{
		"ai_agents_created": u.AIAgentsCreated,
		"api_calls":         u.APICalls,
		"storage_gb":        u.StorageGB,
		"execution_minutes": u.ExecutionMinutes,
		"active_members":    u.ActiveMembers,
		"updated_at":        u.UpdatedAt,
	}
	_, err := s.mdb.Collection(colUsage).UpdateOne(ctx,
		bson.M{"tenant_id": u.TenantID, "period": u.Period},
		bson.M{
			"$set":         set,
			"$setOnInsert": bson.M{"_id": u.ID.String(), "created_at": u.CreatedAt},
		},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("gatehouse: upsert usage: %w", err)
	}
	return nil
}

func (s *Store) GetUsage(ctx context.Context, tenantID, period string) (*usage.Usage, error) {
	var m usageModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"tenant_id": tenantID, "period": period}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("usage %s/%s: %w", tenantID, period, store.ErrNotFound)
		}
		return nil, fmt.Errorf("gatehouse: get usage: %w", err)
	}
	return usageFromModel(&m), nil
}

func (s *Store) AddUsage(ctx context.Context, tenantID, period string, kind usage.QuotaKind, delta int64) error {
	field := counterField(kind)
	if field == "" {
		return fmt.Errorf("gatehouse: unknown quota kind %q", kind)
	}
	_, err := s.mdb.Collection(colUsage).UpdateOne(ctx,
		bson.M{"tenant_id": tenantID, "period": period},
		bson.M{
			"$inc":         bson.M{field: delta},
			"$set":         bson.M{"updated_at": now()},
			"$setOnInsert": bson.M{"_id": id.NewUsageID().String(), "created_at": now()},
		},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("gatehouse: add usage: %w", err)
	}
	return nil
}

func (s *Store) ReserveQuota(ctx context.Context, tenantID, period string, kind usage.QuotaKind, delta, limit int64) (bool, error) {
	field := counterField(kind)
	if field == "" {
		return false, fmt.Errorf("gatehouse: unknown quota kind %q", kind)
	}
	if limit == usage.Unlimited {
		if err := s.AddUsage(ctx, tenantID, period, kind, delta); err != nil {
			return false, err
		}
		return true, nil
	}
	if delta > limit {
		return false, nil
	}

	// Single findAndModify makes check-and-increment atomic. The filter
	// only matches documents that stay within the limit after the
	// increment; an over-limit document falls through to the upsert,
	// which then collides with the unique (tenant_id, period) index.
	filter := bson.M{
		"tenant_id": tenantID,
		"period":    period,
		"$or": []bson.M{
			{field: bson.M{"$lte": limit - delta}},
			{field: bson.M{"$exists": false}},
		},
	}
	update := bson.M{
		"$inc":         bson.M{field: delta},
		"$set":         bson.M{"updated_at": now()},
		"$setOnInsert": bson.M{"_id": id.NewUsageID().String(), "created_at": now()},
	}
	var doc bson.M
	err := s.mdb.Collection(colUsage).FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if mongod.IsDuplicateKeyError(err) {
			// The record exists but is over the limit.
			return false, nil
		}
		return false, fmt.Errorf("gatehouse: reserve quota: %w", err)
	}
	return true, nil
}

// ──────────────────────────────────────────────────
// Audit log operations
// ──────────────────────────────────────────────────

func (s *Store) AppendEntry(ctx context.Context, e *auditlog.Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now()
	}
	m := auditToModel(e)
	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("gatehouse: append audit entry: %w", err)
	}
	return nil
}

func (s *Store) GetEntry(ctx context.Context, entryID id.AuditID) (*auditlog.Entry, error) {
	var m auditModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": entryID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("audit entry %s: %w", entryID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("gatehouse: get audit entry: %w", err)
	}
	return auditFromModel(&m), nil
}

func (s *Store) ListEntriesByTenant(ctx context.Context, tenantID string, filter auditlog.QueryFilter) ([]*auditlog.Entry, string, error) {
	f := bson.M{"tenant_id": tenantID}
	return s.listEntries(ctx, f, filter)
}

func (s *Store) ListEntriesByUser(ctx context.Context, tenantID, userID string, filter auditlog.QueryFilter) ([]*auditlog.Entry, string, error) {
	f := bson.M{"tenant_id": tenantID, "user_id": userID}
	return s.listEntries(ctx, f, filter)
}

func (s *Store) listEntries(ctx context.Context, f bson.M, filter auditlog.QueryFilter) ([]*auditlog.Entry, string, error) {
	applyAuditFilter(f, filter)
	c, err := store.DecodeCursor(filter.Cursor)
	if err != nil {
		return nil, "", err
	}
	if c != nil {
		f["$or"] = []bson.M{
			{"created_at": bson.M{"$lt": c.CreatedAt}},
			{"created_at": c.CreatedAt, "_id": bson.M{"$lt": c.ID}},
		}
	}
	var models []auditModel
	q := s.mdb.NewFind(&models).
		Filter(f).
		Sort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	if filter.Limit > 0 {
		q = q.Limit(int64(filter.Limit + 1))
	}
	if err := q.Scan(ctx); err != nil {
		return nil, "", fmt.Errorf("gatehouse: list audit entries: %w", err)
	}

	next := ""
	if filter.Limit > 0 && len(models) > filter.Limit {
		last := models[filter.Limit-1]
		next = store.EncodeCursor(last.CreatedAt, last.ID)
		models = models[:filter.Limit]
	}
	result := make([]*auditlog.Entry, len(models))
	for i := range models {
		result[i] = auditFromModel(&models[i])
	}
	return result, next, nil
}

func (s *Store) CountEntries(ctx context.Context, tenantID string, filter auditlog.QueryFilter) (int64, error) {
	f := bson.M{"tenant_id": tenantID}
	applyAuditFilter(f, filter)
	count, err := s.mdb.NewFind((*auditModel)(nil)).
		Filter(f).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("gatehouse: count audit entries: %w", err)
	}
	return count, nil
}

func applyAuditFilter(f bson.M, filter auditlog.QueryFilter) {
	if filter.Action != "" {
		f["action"] = string(filter.Action)
	}
	if filter.Result != "" {
		f["result"] = string(filter.Result)
	}
	created := bson.M{}
	if !filter.After.IsZero() {
		created["$gt"] = filter.After
	}
	if !filter.Before.IsZero() {
		created["$lt"] = filter.Before
	}
	if len(created) > 0 {
		f["created_at"] = created
	}
}
