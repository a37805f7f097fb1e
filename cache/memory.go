// Package cache provides caching implementations for Gatehouse access
// decisions.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xraph/gatehouse"
)

// Compile-time interface check.
var _ gatehouse.Cache = (*Memory)(nil)

// Memory is an in-memory cache with TTL-based expiration.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*entry
	ttl     time.Duration
	maxSize int
}

type entry struct {
	decision  *gatehouse.AccessDecision
	expiresAt time.Time
}

// MemoryOption configures the memory cache.
type MemoryOption func(*Memory)

// WithTTL sets the cache entry time-to-live.
func WithTTL(ttl time.Duration) MemoryOption {
	return func(m *Memory) { m.ttl = ttl }
}

// WithMaxSize sets the maximum number of cache entries.
func WithMaxSize(n int) MemoryOption {
	return func(m *Memory) { m.maxSize = n }
}

// NewMemory creates a new in-memory cache.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		entries: make(map[string]*entry),
		ttl:     5 * time.Minute,
		maxSize: 10000,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns a cached decision.
func (m *Memory) Get(_ context.Context, req *gatehouse.AccessRequest) (*gatehouse.AccessDecision, bool) {
	key := cacheKey(req)
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return nil, false
	}
	return e.decision, true
}

// Set stores a decision in the cache.
func (m *Memory) Set(_ context.Context, req *gatehouse.AccessRequest, d *gatehouse.AccessDecision) {
	key := cacheKey(req)
	m.mu.Lock()
	defer m.mu.Unlock()

	// Evict if at capacity.
	if len(m.entries) >= m.maxSize {
		m.evictExpired()
		if len(m.entries) >= m.maxSize {
			m.evictOne()
		}
	}

	m.entries[key] = &entry{
		decision:  d,
		expiresAt: time.Now().Add(m.ttl),
	}
}

// InvalidateTenant removes all cached decisions for a tenant.
func (m *Memory) InvalidateTenant(_ context.Context, tenantID string) {
	prefix := tenantID + ":"
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.entries {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			delete(m.entries, k)
		}
	}
}

// InvalidateUser removes all cached decisions for one user in a tenant.
func (m *Memory) InvalidateUser(_ context.Context, tenantID, userID string) {
	prefix := tenantID + ":" + userID + ":"
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.entries {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(m.entries, k)
		}
	}
}

// cacheKey identifies a request by actor, tenant, permission and
// internal role. The engine never caches resource-scoped requests, so
// resource fields do not participate.
func cacheKey(req *gatehouse.AccessRequest) string {
	return fmt.Sprintf("%s:%s:%s:%s",
		req.TenantID,
		req.UserID,
		req.Permission,
		req.InternalRole,
	)
}

// evictExpired removes all expired entries. Must hold write lock.
func (m *Memory) evictExpired() {
	now := time.Now()
	for k, e := range m.entries {
		if now.After(e.expiresAt) {
			delete(m.entries, k)
		}
	}
}

// evictOne removes one arbitrary entry. Must hold write lock.
func (m *Memory) evictOne() {
	for k := range m.entries {
		delete(m.entries, k)
		return
	}
}
