package rbac

import (
	"sync"
	"time"
)

// DefaultCacheTTL is the lifetime of a resolved permission set.
const DefaultCacheTTL = 300 * time.Second

// Cache events reported to a CacheObserver.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheEvict = "evict"
)

// CacheObserver receives cache hit/miss/evict events.
type CacheObserver interface {
	CacheEvent(event string)
}

type cacheEntry struct {
	names    map[string]struct{}
	cachedAt time.Time
}

// cacheTicket identifies the invalidation state a load started from. A store
// carrying an outdated ticket is dropped so that a load racing with an
// invalidation can never reinstate the pre-mutation answer.
type cacheTicket struct {
	epoch uint64
	gen   uint64
}

// PermissionCache holds resolved permission names per user for a bounded time.
// All state is guarded by one mutex; it is never held across repository calls.
// gens and loading only hold users with a load in flight.
type PermissionCache struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	entries  map[int64]cacheEntry
	gens     map[int64]uint64
	loading  map[int64]int
	epoch    uint64
	observer CacheObserver
}

// NewPermissionCache constructs a cache. Non-positive ttl selects
// DefaultCacheTTL and a nil clock defaults to time.Now.
func NewPermissionCache(ttl time.Duration, now func() time.Time, observer CacheObserver) *PermissionCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if now == nil {
		now = time.Now
	}
	return &PermissionCache{
		ttl:      ttl,
		now:      now,
		entries:  make(map[int64]cacheEntry),
		gens:     make(map[int64]uint64),
		loading:  make(map[int64]int),
		observer: observer,
	}
}

// TTL returns the configured entry lifetime.
func (c *PermissionCache) TTL() time.Duration {
	return c.ttl
}

// get returns the live entry for a user. Stale entries are evicted before the
// miss is reported.
func (c *PermissionCache) get(userID int64) (map[string]struct{}, cacheTicket, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ticket := cacheTicket{epoch: c.epoch, gen: c.gens[userID]}
	entry, ok := c.entries[userID]
	if ok && c.now().Sub(entry.cachedAt) < c.ttl {
		c.emit(CacheHit)
		return entry.names, ticket, true
	}
	if ok {
		delete(c.entries, userID)
		c.emit(CacheEvict)
	}
	c.emit(CacheMiss)
	return nil, ticket, false
}

// begin registers a load for a user and reports whether its result may be
// stored. Every begin must be paired with finish.
func (c *PermissionCache) begin(userID int64, ticket cacheTicket) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loading[userID]++
	return c.current(userID, ticket)
}

// finish ends a load started with begin. names are stored when store is set
// and no invalidation happened since the ticket was taken. The map must not be
// modified afterwards.
func (c *PermissionCache) finish(userID int64, names map[string]struct{}, ticket cacheTicket, store bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if store && names != nil && c.current(userID, ticket) {
		c.entries[userID] = cacheEntry{names: names, cachedAt: c.now()}
	}
	if c.loading[userID] <= 1 {
		delete(c.loading, userID)
		delete(c.gens, userID)
	} else {
		c.loading[userID]--
	}
}

func (c *PermissionCache) current(userID int64, ticket cacheTicket) bool {
	return ticket.epoch == c.epoch && ticket.gen == c.gens[userID]
}

// Invalidate evicts the entry for a user, if present.
func (c *PermissionCache) Invalidate(userID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loading[userID] > 0 {
		c.gens[userID]++
	}
	if _, ok := c.entries[userID]; ok {
		delete(c.entries, userID)
		c.emit(CacheEvict)
	}
}

// InvalidateAll evicts every entry.
func (c *PermissionCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	for range c.entries {
		c.emit(CacheEvict)
	}
	c.entries = make(map[int64]cacheEntry)
}

// tracked returns how many users hold load bookkeeping.
func (c *PermissionCache) tracked() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.gens) + len(c.loading)
}

// Len returns the number of cached entries, live or stale.
func (c *PermissionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *PermissionCache) emit(event string) {
	if c.observer != nil {
		c.observer.CacheEvent(event)
	}
}
