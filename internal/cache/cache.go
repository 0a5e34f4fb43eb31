// Package cache memoizes execution results by artifact digest.
package cache

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/flemzord/mcpexec/pkg/execution"
)

// DefaultTTL is the entry lifetime when Config.TTL is zero.
const DefaultTTL = time.Hour

// Entry is one cached result.
type Entry struct {
	Digest         string
	Value          execution.Result
	CreatedAt      time.Time
	ExpiresAt      time.Time
	LastAccessedAt time.Time
	HitCount       int
}

// Expired reports whether the entry is past its expiry at now.
func (e Entry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// Config configures a Cache.
type Config struct {
	TTL time.Duration
}

// Stats counts lookups since creation.
type Stats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Shared  int64 `json:"shared"`
}

// Cache is an in-memory, TTL-bounded result cache. Every operation on a
// key happens under one mutex, so reads and writes of the same digest are
// linearizable.
type Cache struct {
	ttl    time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]*Entry
	hits    int64
	misses  int64
	shared  int64

	flight singleflight.Group
	now    func() time.Time
}

// New creates an empty Cache.
func New(cfg Config, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		ttl:     ttl,
		logger:  logger.With("component", "cache"),
		entries: make(map[string]*Entry),
		now:     time.Now,
	}
}

// TTL returns the configured entry lifetime.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Get returns the entry for digest. A hit bumps the hit count and the
// last-accessed time; an expired entry is removed and reported as a miss.
func (c *Cache) Get(digest string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	e, ok := c.entries[digest]
	if ok && e.Expired(now) {
		delete(c.entries, digest)
		ok = false
	}
	if !ok {
		c.misses++
		return Entry{}, false
	}
	e.HitCount++
	e.LastAccessedAt = now
	c.hits++
	return *e, true
}

// Put stores res under digest, replacing any previous entry.
func (c *Cache) Put(digest string, res execution.Result) Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	e := &Entry{
		Digest:         digest,
		Value:          res,
		CreatedAt:      now,
		ExpiresAt:      now.Add(c.ttl),
		LastAccessedAt: now,
	}
	c.entries[digest] = e
	return *e
}

// Delete drops the entry for digest.
func (c *Cache) Delete(digest string) {
	c.mu.Lock()
	delete(c.entries, digest)
	c.mu.Unlock()
}

type flightResult struct {
	res       execution.Result
	cacheable bool
}

// Do runs fn once per digest among concurrent callers and stores its
// result when fn reports it cacheable. shared is true for callers that
// received another caller's result. A caller that joined a run whose
// result was not cacheable (it failed or its caller cancelled) runs its
// own fn instead of inheriting that outcome.
func (c *Cache) Do(digest string, fn func() (execution.Result, bool)) (res execution.Result, shared bool) {
	led := false
	v, _, _ := c.flight.Do(digest, func() (any, error) {
		led = true
		res, cacheable := fn()
		if cacheable {
			c.Put(digest, res)
		}
		return flightResult{res: res, cacheable: cacheable}, nil
	})
	fr := v.(flightResult)
	if led {
		return fr.res, false
	}
	if !fr.cacheable {
		res, cacheable := fn()
		if cacheable {
			c.Put(digest, res)
		}
		return res, false
	}
	c.mu.Lock()
	c.shared++
	c.mu.Unlock()
	return fr.res, true
}

// Sweep removes every expired entry and returns how many were dropped.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	removed := 0
	for k, e := range c.entries {
		if e.Expired(now) {
			delete(c.entries, k)
			removed++
		}
	}
	if removed > 0 {
		c.logger.Debug("cache swept", "removed", removed, "remaining", len(c.entries))
	}
	return removed
}

// Len returns the number of stored entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns lookup counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Entries: len(c.entries), Hits: c.hits, Misses: c.misses, Shared: c.shared}
}
