// Package memory provides an in-memory implementation of the Gatehouse
// composite store. It is intended for testing and development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

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

// Store is a thread-safe in-memory store for all Gatehouse entities.
type Store struct {
	mu sync.RWMutex

	tenants       map[string]*tenant.Account            // tenantID -> account
	memberships   map[string]*membership.Membership     // tenantID/userID -> membership
	subscriptions map[string]*subscription.Subscription // tenantID -> subscription
	usages        map[string]*usage.Usage               // tenantID/period -> usage
	auditEntries  map[string]*auditlog.Entry            // entryID -> entry
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		tenants:       make(map[string]*tenant.Account),
		memberships:   make(map[string]*membership.Membership),
		subscriptions: make(map[string]*subscription.Subscription),
		usages:        make(map[string]*usage.Usage),
		auditEntries:  make(map[string]*auditlog.Entry),
	}
}

// Migrate is a no-op for the memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping is a no-op for the memory store.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (s *Store) Close() error { return nil }

func membershipKey(tenantID, userID string) string { return tenantID + "/" + userID }
func usageKey(tenantID, period string) string      { return tenantID + "/" + period }

// ──────────────────────────────────────────────────
// Tenant Store
// ──────────────────────────────────────────────────

func (s *Store) CreateTenant(_ context.Context, a *tenant.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tenants[a.ID]; ok {
		return fmt.Errorf("tenant %s: %w", a.ID, store.ErrDuplicate)
	}
	s.tenants[a.ID] = copyAccount(a)
	return nil
}

func (s *Store) GetTenant(_ context.Context, tenantID string) (*tenant.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.tenants[tenantID]
	if !ok {
		return nil, fmt.Errorf("tenant %s: %w", tenantID, store.ErrNotFound)
	}
	return copyAccount(a), nil
}

func (s *Store) UpdateTenant(_ context.Context, a *tenant.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tenants[a.ID]; !ok {
		return fmt.Errorf("tenant %s: %w", a.ID, store.ErrNotFound)
	}
	s.tenants[a.ID] = copyAccount(a)
	return nil
}

func (s *Store) SoftDeleteTenant(_ context.Context, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.tenants[tenantID]
	if !ok {
		return fmt.Errorf("tenant %s: %w", tenantID, store.ErrNotFound)
	}
	a.Status = tenant.StatusDeleted
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) BatchGetTenants(_ context.Context, tenantIDs []string) ([]*tenant.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*tenant.Account, 0, len(tenantIDs))
	for _, tid := range tenantIDs {
		if a, ok := s.tenants[tid]; ok {
			result = append(result, copyAccount(a))
		}
	}
	return result, nil
}

// ──────────────────────────────────────────────────
// Membership Store
// ──────────────────────────────────────────────────

func (s *Store) CreateMembership(_ context.Context, m *membership.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := membershipKey(m.TenantID, m.UserID)
	if _, ok := s.memberships[key]; ok {
		return fmt.Errorf("membership %s: %w", key, store.ErrDuplicate)
	}
	s.memberships[key] = copyMembership(m)
	return nil
}

func (s *Store) GetMembership(_ context.Context, tenantID, userID string) (*membership.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.memberships[membershipKey(tenantID, userID)]
	if !ok {
		return nil, fmt.Errorf("membership %s/%s: %w", tenantID, userID, store.ErrNotFound)
	}
	return copyMembership(m), nil
}

func (s *Store) UpdateMembership(_ context.Context, m *membership.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := membershipKey(m.TenantID, m.UserID)
	if _, ok := s.memberships[key]; !ok {
		return fmt.Errorf("membership %s: %w", key, store.ErrNotFound)
	}
	s.memberships[key] = copyMembership(m)
	return nil
}

func (s *Store) DeleteMembership(_ context.Context, tenantID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := membershipKey(tenantID, userID)
	if _, ok := s.memberships[key]; !ok {
		return fmt.Errorf("membership %s: %w", key, store.ErrNotFound)
	}
	delete(s.memberships, key)
	return nil
}

func (s *Store) ListMembershipsByTenant(_ context.Context, tenantID string, filter *membership.ListFilter) ([]*membership.Membership, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []*membership.Membership
	for _, m := range s.memberships {
		if m.TenantID == tenantID && matchMembership(m, filter) {
			matched = append(matched, m)
		}
	}
	return pageMemberships(matched, filter)
}

func (s *Store) ListMembershipsByUser(_ context.Context, userID string, filter *membership.ListFilter) ([]*membership.Membership, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []*membership.Membership
	for _, m := range s.memberships {
		if m.UserID == userID && matchMembership(m, filter) {
			matched = append(matched, m)
		}
	}
	return pageMemberships(matched, filter)
}

func (s *Store) CountMembershipsByTenant(_ context.Context, tenantID string, filter *membership.ListFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, m := range s.memberships {
		if m.TenantID == tenantID && matchMembership(m, filter) {
			n++
		}
	}
	return n, nil
}

func matchMembership(m *membership.Membership, f *membership.ListFilter) bool {
	if f == nil {
		return true
	}
	if f.Role != "" && m.Role != f.Role {
		return false
	}
	if f.Status != "" && m.Status != f.Status {
		return false
	}
	if f.After != nil && !m.CreatedAt.After(*f.After) {
		return false
	}
	if f.Before != nil && !m.CreatedAt.Before(*f.Before) {
		return false
	}
	return true
}

// pageMemberships sorts ascending on (created_at, id), applies the cursor
// and limit, and returns the next-page token.
func pageMemberships(matched []*membership.Membership, f *membership.ListFilter) ([]*membership.Membership, string, error) {
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		return matched[i].ID.String() < matched[j].ID.String()
	})

	var cursor string
	limit := 0
	if f != nil {
		cursor = f.Cursor
		limit = f.Limit
	}
	c, err := store.DecodeCursor(cursor)
	if err != nil {
		return nil, "", err
	}
	start := 0
	if c != nil {
		for i, m := range matched {
			if m.CreatedAt.After(c.CreatedAt) || (m.CreatedAt.Equal(c.CreatedAt) && m.ID.String() > c.ID) {
				start = i
				break
			}
			start = len(matched)
		}
	}
	matched = matched[start:]

	next := ""
	if limit > 0 && len(matched) > limit {
		last := matched[limit-1]
		next = store.EncodeCursor(last.CreatedAt, last.ID.String())
		matched = matched[:limit]
	}
	result := make([]*membership.Membership, len(matched))
	for i, m := range matched {
		result[i] = copyMembership(m)
	}
	return result, next, nil
}

// ──────────────────────────────────────────────────
// Subscription Store
// ──────────────────────────────────────────────────

func (s *Store) UpsertSubscription(_ context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions[sub.TenantID] = copySubscription(sub)
	return nil
}

func (s *Store) GetSubscription(_ context.Context, tenantID string) (*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subscriptions[tenantID]
	if !ok {
		return nil, fmt.Errorf("subscription for tenant %s: %w", tenantID, store.ErrNotFound)
	}
	return copySubscription(sub), nil
}

func (s *Store) BatchGetSubscriptions(_ context.Context, tenantIDs []string) ([]*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*subscription.Subscription, 0, len(tenantIDs))
	for _, tid := range tenantIDs {
		if sub, ok := s.subscriptions[tid]; ok {
			result = append(result, copySubscription(sub))
		}
	}
	return result, nil
}

// ──────────────────────────────────────────────────
// Usage Store
// ──────────────────────────────────────────────────

func (s *Store) UpsertUsage(_ context.Context, u *usage.Usage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usages[usageKey(u.TenantID, u.Period)] = copyUsage(u)
	return nil
}

func (s *Store) GetUsage(_ context.Context, tenantID, period string) (*usage.Usage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.usages[usageKey(tenantID, period)]
	if !ok {
		return nil, fmt.Errorf("usage %s/%s: %w", tenantID, period, store.ErrNotFound)
	}
	return copyUsage(u), nil
}

func (s *Store) AddUsage(_ context.Context, tenantID, period string, kind usage.QuotaKind, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.usageRecordLocked(tenantID, period)
	addCounter(u, kind, delta)
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) ReserveQuota(_ context.Context, tenantID, period string, kind usage.QuotaKind, delta, limit int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.usageRecordLocked(tenantID, period)
	if limit != usage.Unlimited && u.Counter(kind)+delta > limit {
		return false, nil
	}
	addCounter(u, kind, delta)
	u.UpdatedAt = time.Now().UTC()
	return true, nil
}

// usageRecordLocked returns the live record for (tenant, period), creating
// it on first touch. Callers must hold the write lock.
func (s *Store) usageRecordLocked(tenantID, period string) *usage.Usage {
	key := usageKey(tenantID, period)
	u, ok := s.usages[key]
	if !ok {
		now := time.Now().UTC()
		u = &usage.Usage{
			ID:        id.NewUsageID(),
			TenantID:  tenantID,
			Period:    period,
			CreatedAt: now,
			UpdatedAt: now,
		}
		s.usages[key] = u
	}
	return u
}

func addCounter(u *usage.Usage, kind usage.QuotaKind, delta int64) {
	switch kind {
	case usage.QuotaAIAgents:
		u.AIAgentsCreated += delta
	case usage.QuotaAPICalls:
		u.APICalls += delta
	case usage.QuotaStorageGB:
		u.StorageGB += delta
	case usage.QuotaExecutionMinutes:
		u.ExecutionMinutes += delta
	case usage.QuotaActiveMembers:
		u.ActiveMembers += delta
	}
}

// ──────────────────────────────────────────────────
// Audit Log Store
// ──────────────────────────────────────────────────

func (s *Store) AppendEntry(_ context.Context, e *auditlog.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auditEntries[e.ID.String()] = copyEntry(e)
	return nil
}

func (s *Store) GetEntry(_ context.Context, entryID id.AuditID) (*auditlog.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.auditEntries[entryID.String()]
	if !ok {
		return nil, fmt.Errorf("audit entry %s: %w", entryID, store.ErrNotFound)
	}
	return copyEntry(e), nil
}

func (s *Store) ListEntriesByTenant(_ context.Context, tenantID string, filter auditlog.QueryFilter) ([]*auditlog.Entry, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []*auditlog.Entry
	for _, e := range s.auditEntries {
		if e.TenantID == tenantID && matchEntry(e, filter) {
			matched = append(matched, e)
		}
	}
	return pageEntries(matched, filter)
}

func (s *Store) ListEntriesByUser(_ context.Context, tenantID, userID string, filter auditlog.QueryFilter) ([]*auditlog.Entry, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []*auditlog.Entry
	for _, e := range s.auditEntries {
		if e.TenantID == tenantID && e.UserID == userID && matchEntry(e, filter) {
			matched = append(matched, e)
		}
	}
	return pageEntries(matched, filter)
}

func (s *Store) CountEntries(_ context.Context, tenantID string, filter auditlog.QueryFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, e := range s.auditEntries {
		if e.TenantID == tenantID && matchEntry(e, filter) {
			n++
		}
	}
	return n, nil
}

func matchEntry(e *auditlog.Entry, f auditlog.QueryFilter) bool {
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.Result != "" && e.Result != f.Result {
		return false
	}
	if !f.After.IsZero() && !e.CreatedAt.After(f.After) {
		return false
	}
	if !f.Before.IsZero() && !e.CreatedAt.Before(f.Before) {
		return false
	}
	return true
}

// pageEntries sorts newest-first on (created_at, id), applies the cursor
// and limit, and returns the next-page token.
func pageEntries(matched []*auditlog.Entry, f auditlog.QueryFilter) ([]*auditlog.Entry, string, error) {
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID.String() > matched[j].ID.String()
	})

	c, err := store.DecodeCursor(f.Cursor)
	if err != nil {
		return nil, "", err
	}
	start := 0
	if c != nil {
		for i, e := range matched {
			if e.CreatedAt.Before(c.CreatedAt) || (e.CreatedAt.Equal(c.CreatedAt) && e.ID.String() < c.ID) {
				start = i
				break
			}
			start = len(matched)
		}
	}
	matched = matched[start:]

	next := ""
	if f.Limit > 0 && len(matched) > f.Limit {
		last := matched[f.Limit-1]
		next = store.EncodeCursor(last.CreatedAt, last.ID.String())
		matched = matched[:f.Limit]
	}
	result := make([]*auditlog.Entry, len(matched))
	for i, e := range matched {
		result[i] = copyEntry(e)
	}
	return result, next, nil
}

// ──────────────────────────────────────────────────
// Copy helpers
// ──────────────────────────────────────────────────

func copyAccount(a *tenant.Account) *tenant.Account {
	c := *a
	c.Settings = copyMap(a.Settings)
	c.Metadata = copyMap(a.Metadata)
	return &c
}

func copyMembership(m *membership.Membership) *membership.Membership {
	c := *m
	if m.CustomPermissions != nil {
		c.CustomPermissions = make([]string, len(m.CustomPermissions))
		copy(c.CustomPermissions, m.CustomPermissions)
	}
	c.Settings = copyMap(m.Settings)
	return &c
}

func copySubscription(s *subscription.Subscription) *subscription.Subscription {
	c := *s
	return &c
}

func copyUsage(u *usage.Usage) *usage.Usage {
	c := *u
	return &c
}

func copyEntry(e *auditlog.Entry) *auditlog.Entry {
	c := *e
	c.Context = copyMap(e.Context)
	c.Metadata = copyMap(e.Metadata)
	return &c
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	c := make(map[string]any, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}
