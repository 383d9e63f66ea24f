package cache

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

const (
	// DefaultTTL is used when Options.TTL is not positive.
	DefaultTTL = time.Hour

	// DefaultMaxSize is used when Options.MaxSize is not positive.
	DefaultMaxSize = 1000
)

// Options configures a Cache.
type Options struct {
	TTL     time.Duration
	MaxSize int

	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

// Stats is a point-in-time view of a cache.
type Stats struct {
	Size      int           `json:"size"`
	MaxSize   int           `json:"max_size"`
	TTL       time.Duration `json:"ttl"`
	Hits      uint64        `json:"hits"`
	Misses    uint64        `json:"misses"`
	Evictions uint64        `json:"evictions"`
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is a size-bounded key/value store whose entries expire after a TTL.
// When full, inserting a new key evicts the least recently used one.
// Expired entries are never returned; they are removed when touched or swept.
type Cache[V any] struct {
	mu      sync.Mutex
	lru     *simplelru.LRU[string, entry[V]]
	ttl     time.Duration
	maxSize int
	now     func() time.Time

	hits      uint64
	misses    uint64
	evictions uint64
}

// New creates a cache with the given options.
func New[V any](opts Options) *Cache[V] {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.MaxSize <= 0 {
		opts.MaxSize = DefaultMaxSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	// NewLRU only fails on a non-positive size, which is excluded above.
	lru, _ := simplelru.NewLRU[string, entry[V]](opts.MaxSize, nil)

	return &Cache[V]{
		lru:     lru,
		ttl:     opts.TTL,
		maxSize: opts.MaxSize,
		now:     opts.Now,
	}
}

// Set stores value under key with the default TTL.
func (c *Cache[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, 0)
}

// SetWithTTL stores value under key. A non-positive ttl means the default TTL.
func (c *Cache[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lru.Add(key, entry[V]{value: value, expiresAt: c.now().Add(ttl)}) {
		c.evictions++
	}
}

// Get returns the value for key and marks it as most recently used.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.lru.Peek(key)
	if !ok {
		c.misses++
		return zero, false
	}
	if c.expired(e) {
		c.lru.Remove(key)
		c.misses++
		return zero, false
	}

	c.lru.Get(key)
	c.hits++
	return e.value, true
}

// Has reports whether key holds a live entry without touching its recency.
func (c *Cache[V]) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Peek(key)
	if !ok {
		return false
	}
	if c.expired(e) {
		c.lru.Remove(key)
		return false
	}
	return true
}

// Delete removes key if present.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(key)
}

// Clear removes every entry.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

// ClearMatching removes every key for which match returns true and
// returns how many entries were removed.
func (c *Cache[V]) ClearMatching(match func(key string) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, key := range c.lru.Keys() {
		if match(key) {
			c.lru.Remove(key)
			removed++
		}
	}
	return removed
}

// SweepExpired removes all expired entries and returns how many were removed.
func (c *Cache[V]) SweepExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, key := range c.lru.Keys() {
		if e, ok := c.lru.Peek(key); ok && c.expired(e) {
			c.lru.Remove(key)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, including expired ones not yet swept.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Keys returns the stored keys from least to most recently used.
func (c *Cache[V]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Keys()
}

// Stats returns the current counters.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Size:      c.lru.Len(),
		MaxSize:   c.maxSize,
		TTL:       c.ttl,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

func (c *Cache[V]) expired(e entry[V]) bool {
	return c.now().After(e.expiresAt)
}
