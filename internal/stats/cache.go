package stats

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	defaultCacheTTL     = 5 * time.Minute
	defaultCacheEntries = 1000
	// evictFraction of the oldest entries is dropped when the cache is full.
	evictFraction = 0.2
)

type cacheEntry struct {
	value     any
	expiresAt time.Time
}

// Cache is a bounded TTL cache for computed statistics. Concurrent misses for
// the same key are collapsed through singleflight so the loader runs once.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]cacheEntry
	ttl        time.Duration
	maxEntries int
	hits       int
	misses     int
	now        func() time.Time
	group      singleflight.Group
	log        *zap.Logger
}

func NewCache(ttl time.Duration, maxEntries int, log *zap.Logger) *Cache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if maxEntries <= 0 {
		maxEntries = defaultCacheEntries
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{
		entries:    make(map[string]cacheEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
		log:        log,
	}
}

// Get returns a live entry, counting hits and misses. Expired entries are
// removed on access.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if c.now().After(entry.expiresAt) {
		delete(c.entries, key)
		c.misses++
		return nil, false
	}
	c.hits++
	return entry.value, true
}

// Set stores a value, evicting the oldest entries when full.
func (c *Cache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictOldestLocked()
	}
	c.entries[key] = cacheEntry{value: value, expiresAt: c.now().Add(c.ttl)}
}

// GetOrCompute returns the cached value or computes it once across all
// concurrent callers for the key.
func (c *Cache) GetOrCompute(key string, compute func() (any, error)) (any, error) {
	if value, ok := c.Get(key); ok {
		return value, nil
	}
	value, err, _ := c.group.Do(key, func() (any, error) {
		// Re-check without touching the counters: the caller's Get already
		// counted this lookup once.
		if cached, ok := c.peek(key); ok {
			return cached, nil
		}
		computed, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(key, computed)
		return computed, nil
	})
	return value, err
}

// peek reads a live entry without counting a hit or a miss.
func (c *Cache) peek(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok || c.now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.value, true
}

// evictOldestLocked drops the oldest fifth of entries by expiry time.
func (c *Cache) evictOldestLocked() {
	type keyed struct {
		key       string
		expiresAt time.Time
	}
	all := make([]keyed, 0, len(c.entries))
	for key, entry := range c.entries {
		all = append(all, keyed{key, entry.expiresAt})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].expiresAt.Before(all[j].expiresAt) })

	drop := int(float64(len(all)) * evictFraction)
	if drop < 1 {
		drop = 1
	}
	for _, k := range all[:drop] {
		delete(c.entries, k.key)
	}
	c.log.Debug("evicted cache entries", zap.Int("dropped", drop))
}

// Invalidate removes one key.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// CacheStats reports hit-rate counters for monitoring.
type CacheStats struct {
	Hits    int `json:"hits"`
	Misses  int `json:"misses"`
	Entries int `json:"entries"`
}

func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Hits: c.hits, Misses: c.misses, Entries: len(c.entries)}
}
