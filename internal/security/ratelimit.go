package security

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrRateLimited is returned when a request exceeds the rate limit.
var ErrRateLimited = errors.New("rate limit exceeded")

// Rate-limited event kinds.
const (
	KindExecution = "execution"
	KindToolCall  = "tool_call"
)

// RateLimitConfig holds per-minute limits. Zero means the default; a
// negative value disables the bucket.
type RateLimitConfig struct {
	ExecutionsPerMin int `yaml:"executions_per_min"`
	ToolCallsPerMin  int `yaml:"tool_calls_per_min"`
}

func (c RateLimitConfig) withDefaults() RateLimitConfig {
	if c.ExecutionsPerMin == 0 {
		c.ExecutionsPerMin = 120
	}
	if c.ToolCallsPerMin == 0 {
		c.ToolCallsPerMin = 600
	}
	return c
}

// RateLimiter implements sliding window rate limiting. Each bucket tracks
// the timestamps of recent events within its window.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	window time.Duration
	limit  int
	events []time.Time
}

// NewRateLimiter creates a rate limiter with the given config.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	cfg = cfg.withDefaults()
	rl := &RateLimiter{
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
	if cfg.ExecutionsPerMin > 0 {
		rl.buckets[KindExecution] = &bucket{window: time.Minute, limit: cfg.ExecutionsPerMin}
	}
	if cfg.ToolCallsPerMin > 0 {
		rl.buckets[KindToolCall] = &bucket{window: time.Minute, limit: cfg.ToolCallsPerMin}
	}
	return rl
}

// Allow records one event of kind, or returns ErrRateLimited when the
// bucket is full. Kinds without a bucket are never limited.
func (rl *RateLimiter) Allow(kind string) error {
	return rl.AllowN(kind, 1)
}

// AllowN records n events of kind at once.
func (rl *RateLimiter) AllowN(kind string, n int) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[kind]
	if !ok {
		return nil
	}

	now := rl.now()
	b.evict(now)

	if len(b.events)+n > b.limit {
		return fmt.Errorf("%w: %s (%d per %s)", ErrRateLimited, kind, b.limit, b.window)
	}
	for range n {
		b.events = append(b.events, now)
	}
	return nil
}

// Remaining returns how many events of kind are still allowed in the
// current window, or -1 for an unlimited kind.
func (rl *RateLimiter) Remaining(kind string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[kind]
	if !ok {
		return -1
	}
	b.evict(rl.now())
	return b.limit - len(b.events)
}

// evict removes events outside the sliding window.
func (b *bucket) evict(now time.Time) {
	cutoff := now.Add(-b.window)
	// Events are chronologically ordered.
	i := 0
	for i < len(b.events) && b.events[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		b.events = b.events[i:]
	}
}
