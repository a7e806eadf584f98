package cacheinfra

import (
	"container/list"
	"errors"
	"sync"
	"time"
)

// ErrCapacityConflict is returned by Set when the cache is full, nothing has
// expired, and the policy refuses to evict.
var ErrCapacityConflict = errors.New("cache: capacity reached and policy rejects new entries")

// EvictionPolicy decides what Set does when the cache is full.
type EvictionPolicy string

const (
	// EvictOldest drops the entry with the oldest insertion time.
	EvictOldest EvictionPolicy = "evict_oldest"
	// RejectNew fails the Set with ErrCapacityConflict.
	RejectNew EvictionPolicy = "reject_new"
)

// TTLConfig holds the fixed parameters of a TTLCache.
type TTLConfig struct {
	// TTL is how long an entry stays visible after it was stored. Must be > 0.
	TTL time.Duration

	// MaxSize bounds the number of stored entries. Must be > 0.
	MaxSize int

	// Policy applies when the cache is full after purging expired entries.
	// Empty means EvictOldest.
	Policy EvictionPolicy
}

// Validate checks the TTL cache parameters.
func (c TTLConfig) Validate() error {
	if c.TTL <= 0 {
		return &ConfigError{Field: "TTL", Message: "must be greater than 0"}
	}
	if c.MaxSize <= 0 {
		return &ConfigError{Field: "MaxSize", Message: "must be greater than 0"}
	}
	switch c.Policy {
	case "", EvictOldest, RejectNew:
	default:
		return &ConfigError{Field: "Policy", Message: "must be evict_oldest or reject_new"}
	}
	return nil
}

// TTLStats counts cache outcomes since construction.
type TTLStats struct {
	Hits        int64
	Misses      int64
	Expirations int64
	Evictions   int64
	Rejections  int64
	Entries     int
}

// Option configures a TTLCache.
type Option func(*ttlOptions)

type ttlOptions struct {
	now func() time.Time
}

// WithClock replaces time.Now. Tests use it to step time deterministically.
func WithClock(now func() time.Time) Option {
	return func(o *ttlOptions) {
		if now != nil {
			o.now = now
		}
	}
}

type ttlEntry[K comparable, V any] struct {
	key      K
	value    V
	storedAt time.Time
	seq      uint64
}

// TTLCache is a size-bounded map whose entries expire a fixed duration after
// they were stored. Expired entries are removed lazily on Get and in bulk
// when a Set finds the cache full.
//
// The order list is kept in insertion order (storedAt, then seq), so the front
// is always the oldest entry and expired entries form a prefix.
type TTLCache[K comparable, V any] struct {
	ttl     time.Duration
	maxSize int
	policy  EvictionPolicy
	now     func() time.Time

	mu      sync.Mutex
	entries map[K]*list.Element
	order   *list.List
	seq     uint64
	stats   TTLStats
}

// NewTTLCache validates cfg and returns an empty cache.
func NewTTLCache[K comparable, V any](cfg TTLConfig, opts ...Option) (*TTLCache[K, V], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := ttlOptions{now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	policy := cfg.Policy
	if policy == "" {
		policy = EvictOldest
	}

	return &TTLCache[K, V]{
		ttl:     cfg.TTL,
		maxSize: cfg.MaxSize,
		policy:  policy,
		now:     o.now,
		entries: make(map[K]*list.Element, cfg.MaxSize),
		order:   list.New(),
	}, nil
}

// Get returns the value for key when it was stored no more than TTL ago.
// An expired entry is removed and reported as a miss.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	var zero V

	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		return zero, false
	}

	e := el.Value.(*ttlEntry[K, V])
	if c.expired(e, c.now()) {
		c.removeLocked(el)
		c.stats.Expirations++
		c.stats.Misses++
		return zero, false
	}

	c.stats.Hits++
	return e.value, true
}

// Set stores value under key with the current time. Overwriting an existing
// key refreshes its timestamp and never triggers eviction.
func (c *TTLCache[K, V]) Set(key K, value V) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.seq++

	if el, ok := c.entries[key]; ok {
		e := el.Value.(*ttlEntry[K, V])
		e.value = value
		e.storedAt = now
		e.seq = c.seq
		c.order.MoveToBack(el)
		return nil
	}

	if len(c.entries) >= c.maxSize {
		c.purgeLocked(now)
	}
	if len(c.entries) >= c.maxSize {
		if c.policy == RejectNew {
			c.stats.Rejections++
			return ErrCapacityConflict
		}
		c.removeLocked(c.order.Front())
		c.stats.Evictions++
	}

	c.entries[key] = c.order.PushBack(&ttlEntry[K, V]{
		key:      key,
		value:    value,
		storedAt: now,
		seq:      c.seq,
	})
	return nil
}

// Delete removes key if present.
func (c *TTLCache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.removeLocked(el)
	}
}

// Len reports the number of stored entries, including expired ones that have
// not been purged yet.
func (c *TTLCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Purge removes every expired entry and returns how many were dropped.
func (c *TTLCache[K, V]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.purgeLocked(c.now())
}

// Stats returns a snapshot of the cache counters.
func (c *TTLCache[K, V]) Stats() TTLStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.stats
	st.Entries = len(c.entries)
	return st
}

func (c *TTLCache[K, V]) expired(e *ttlEntry[K, V], now time.Time) bool {
	return now.Sub(e.storedAt) > c.ttl
}

func (c *TTLCache[K, V]) purgeLocked(now time.Time) int {
	purged := 0
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		if c.expired(el.Value.(*ttlEntry[K, V]), now) {
			c.removeLocked(el)
			purged++
		}
		el = next
	}
	c.stats.Expirations += int64(purged)
	return purged
}

func (c *TTLCache[K, V]) removeLocked(el *list.Element) {
	e := c.order.Remove(el).(*ttlEntry[K, V])
	delete(c.entries, e.key)
}
