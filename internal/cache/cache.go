// Package cache implements the bounded freshness cache used by the fetch
// engine. Entries carry revalidation metadata (entity validators, a per-entry
// TTL override) so expired content can still seed conditional requests.
package cache

import (
	"container/list"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mwhitford/politefetch/internal/clock"
)

// Eviction triggers once occupancy reaches the high watermark and frees the
// oldest entries in one batch, amortizing the cost across many inserts.
const (
	evictWatermark = 0.9
	evictFraction  = 0.3
)

// Validator holds the entity tokens needed to build a conditional request.
type Validator struct {
	ETag         string
	LastModified string
}

// IsZero reports whether no validator token is present.
func (v Validator) IsZero() bool {
	return v.ETag == "" && v.LastModified == ""
}

// Entry is a single cached fetch result. Payload is opaque to the cache.
type Entry struct {
	Key       string
	Payload   any
	StoredAt  time.Time
	Validator Validator
	// TTLOverride, when > 0, fully replaces the cache default for this entry.
	TTLOverride time.Duration
}

// FreshUntil returns the instant the entry expires under defaultTTL.
func (e Entry) FreshUntil(defaultTTL time.Duration) time.Time {
	ttl := defaultTTL
	if e.TTLOverride > 0 {
		ttl = e.TTLOverride
	}
	return e.StoredAt.Add(ttl)
}

// Config controls cache behavior.
type Config struct {
	DefaultTTL time.Duration
	MaxEntries int
	Clock      clock.Clock
	Logger     *zap.Logger
}

// Cache is a bounded LRU store keyed by fetch identity. It is safe for
// concurrent use.
type Cache struct {
	mu      sync.Mutex
	cfg     Config
	entries map[string]*list.Element
	order   *list.List // front = most recently used
}

// New creates a Cache. MaxEntries must be > 0.
func New(cfg Config) *Cache {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 1000
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 5 * time.Minute
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewSystem()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Cache{
		cfg:     cfg,
		entries: make(map[string]*list.Element),
		order:   list.New(),
	}
}

// Lookup performs the consolidated read. A fresh entry is returned in the
// first slot and bumped to most-recently-used; an expired entry is returned
// in the second slot (without a recency bump) so the caller can extract its
// validator for a conditional request. At most one slot is non-nil.
func (c *Cache) Lookup(key string) (fresh *Entry, stale *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return nil, nil
	}
	entry := elem.Value.(Entry)
	now := c.cfg.Clock.Now()
	if now.Before(entry.FreshUntil(c.cfg.DefaultTTL)) {
		c.order.MoveToFront(elem)
		return &entry, nil
	}
	return nil, &entry
}

// Set inserts or overwrites the entry for key. Overwriting an existing key
// never inflates the size count. When occupancy reaches the watermark the
// least-recently-used batch is evicted before insertion.
func (c *Cache) Set(key string, entry Entry) {
	entry.Key = key
	if entry.StoredAt.IsZero() {
		entry.StoredAt = c.cfg.Clock.Now()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		c.order.Remove(elem)
		delete(c.entries, key)
	}

	if float64(len(c.entries)) >= evictWatermark*float64(c.cfg.MaxEntries) {
		c.evictLocked()
	}

	c.entries[key] = c.order.PushFront(entry)
}

// evictLocked removes the oldest evictFraction of capacity in LRU order.
func (c *Cache) evictLocked() {
	target := int(evictFraction * float64(c.cfg.MaxEntries))
	if target < 1 {
		target = 1
	}
	evicted := 0
	for evicted < target {
		back := c.order.Back()
		if back == nil {
			break
		}
		victim := c.order.Remove(back).(Entry)
		delete(c.entries, victim.Key)
		evicted++
	}
	c.cfg.Logger.Debug("cache eviction batch",
		zap.Int("evicted", evicted),
		zap.Int("remaining", len(c.entries)),
	)
}

// Clear drops all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
}

// Len returns the current number of entries, fresh or stale.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
