package cache

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/domain"
)

// LRUCache is an in-process cache with TTLs, used on its own in development
// and as L1 in two-phase caching.
//
// Each scope keeps its own recency list. When the cache is full the victim is
// the least recently used entry of the largest scope, so a burst of registry
// answers for one wallet's counterparties cannot flush every cached report.
type LRUCache struct {
	mu       sync.RWMutex
	maxSize  int
	size     int
	items    map[scopeKey]*list.Element
	scopes   map[string]*list.List
	counters map[scopeKey]*counterEntry
	now      func() time.Time
}

type scopeKey struct {
	scope string
	key   string
}

type cacheEntry struct {
	id        scopeKey
	value     []byte
	expiresAt time.Time
}

type counterEntry struct {
	count     int64
	expiresAt time.Time
}

// NewLRUCache creates a cache holding at most maxSize entries across all scopes.
func NewLRUCache(maxSize int) *LRUCache {
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &LRUCache{
		maxSize:  maxSize,
		items:    make(map[scopeKey]*list.Element),
		scopes:   make(map[string]*list.List),
		counters: make(map[scopeKey]*counterEntry),
		now:      time.Now,
	}
}

// Get retrieves a value from cache.
func (c *LRUCache) Get(ctx context.Context, scope string, key string) ([]byte, error) {
	if scope == "" {
		return nil, fmt.Errorf("cache scope is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[scopeKey{scope, key}]
	if !ok {
		return nil, nil
	}

	entry := elem.Value.(*cacheEntry)
	if c.now().After(entry.expiresAt) {
		c.removeElement(elem)
		return nil, nil
	}

	c.scopes[scope].MoveToFront(elem)
	return entry.value, nil
}

// Set stores a value in cache with TTL.
func (c *LRUCache) Set(ctx context.Context, scope string, key string, value []byte, ttl time.Duration) error {
	if scope == "" {
		return fmt.Errorf("cache scope is required")
	}

	id := scopeKey{scope, key}
	expiresAt := c.now().Add(ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[id]; ok {
		c.scopes[scope].MoveToFront(elem)
		entry := elem.Value.(*cacheEntry)
		entry.value = value
		entry.expiresAt = expiresAt
		return nil
	}

	order, ok := c.scopes[scope]
	if !ok {
		order = list.New()
		c.scopes[scope] = order
	}
	c.items[id] = order.PushFront(&cacheEntry{id: id, value: value, expiresAt: expiresAt})
	c.size++

	for c.size > c.maxSize {
		c.evict()
	}
	return nil
}

// Delete removes a value from cache.
func (c *LRUCache) Delete(ctx context.Context, scope string, key string) error {
	if scope == "" {
		return fmt.Errorf("cache scope is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[scopeKey{scope, key}]; ok {
		c.removeElement(elem)
	}
	return nil
}

// GetReport retrieves a cached wallet analysis.
func (c *LRUCache) GetReport(ctx context.Context, wallet string) (*domain.Analysis, error) {
	return getReport(ctx, c, wallet)
}

// SetReport caches a wallet analysis.
func (c *LRUCache) SetReport(ctx context.Context, wallet string, analysis *domain.Analysis, ttl time.Duration) error {
	return setReport(ctx, c, wallet, analysis, ttl)
}

// IncrementCounter counts hits in a window that opens on the first increment.
// Counters do not occupy LRU capacity; expired windows are pruned when the
// counter table reaches maxSize.
func (c *LRUCache) IncrementCounter(ctx context.Context, scope string, key string, window time.Duration) (int64, error) {
	if scope == "" {
		return 0, fmt.Errorf("cache scope is required")
	}

	id := scopeKey{scope, key}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if len(c.counters) >= c.maxSize {
		c.pruneCounters(now)
	}

	entry, ok := c.counters[id]
	if !ok || now.After(entry.expiresAt) {
		c.counters[id] = &counterEntry{count: 1, expiresAt: now.Add(window)}
		return 1, nil
	}

	entry.count++
	return entry.count, nil
}

// Ping checks cache health.
func (c *LRUCache) Ping(ctx context.Context) error {
	return nil
}

// Close drops every entry and counter.
func (c *LRUCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[scopeKey]*list.Element)
	c.scopes = make(map[string]*list.List)
	c.counters = make(map[scopeKey]*counterEntry)
	c.size = 0
	return nil
}

// Stats returns cache statistics.
func (c *LRUCache) Stats() (size int, capacity int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.size, c.maxSize
}

// ScopeSizes returns the number of live and not yet reaped entries per scope.
func (c *LRUCache) ScopeSizes() map[string]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]int, len(c.scopes))
	for scope, order := range c.scopes {
		out[scope] = order.Len()
	}
	return out
}

func (c *LRUCache) removeElement(elem *list.Element) {
	entry := elem.Value.(*cacheEntry)
	order := c.scopes[entry.id.scope]
	order.Remove(elem)
	if order.Len() == 0 {
		delete(c.scopes, entry.id.scope)
	}
	delete(c.items, entry.id)
	c.size--
}

// evict drops an expired tail entry if any scope has one, otherwise the
// least recently used entry of the largest scope. Caller holds the lock.
func (c *LRUCache) evict() {
	now := c.now()
	var victim *list.Element
	largest := 0
	for _, order := range c.scopes {
		back := order.Back()
		if back == nil {
			continue
		}
		if now.After(back.Value.(*cacheEntry).expiresAt) {
			c.removeElement(back)
			return
		}
		if order.Len() > largest {
			largest = order.Len()
			victim = back
		}
	}
	if victim != nil {
		c.removeElement(victim)
	}
}

// pruneCounters drops expired counter windows. Caller holds the lock.
func (c *LRUCache) pruneCounters(now time.Time) {
	for k, e := range c.counters {
		if now.After(e.expiresAt) {
			delete(c.counters, k)
		}
	}
}
