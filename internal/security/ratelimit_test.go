package security

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestRateLimiter_AllowWithinLimit(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{ExecutionsPerMin: 5})

	for i := range 5 {
		if err := rl.Allow(KindExecution); err != nil {
			t.Fatalf("Allow(%d) returned error: %v", i, err)
		}
	}

	if err := rl.Allow(KindExecution); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestRateLimiter_SlidingWindow(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(RateLimitConfig{ToolCallsPerMin: 2})
	rl.now = func() time.Time { return now }

	_ = rl.Allow(KindToolCall)
	_ = rl.Allow(KindToolCall)

	if err := rl.Allow(KindToolCall); !errors.Is(err, ErrRateLimited) {
		t.Fatal("expected rate limit")
	}
	if got := rl.Remaining(KindToolCall); got != 0 {
		t.Errorf("Remaining() = %d, want 0", got)
	}

	now = now.Add(61 * time.Second)

	if err := rl.Allow(KindToolCall); err != nil {
		t.Fatalf("expected allow after window, got %v", err)
	}
	if got := rl.Remaining(KindToolCall); got != 1 {
		t.Errorf("Remaining() = %d, want 1", got)
	}
}

func TestRateLimiter_UnknownKind(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{})
	if err := rl.AllowN("unknown_kind", 1_000_000); err != nil {
		t.Fatalf("expected nil for unknown kind, got %v", err)
	}
	if got := rl.Remaining("unknown_kind"); got != -1 {
		t.Errorf("Remaining() = %d, want -1", got)
	}
}

func TestRateLimiter_DisabledBucket(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{ToolCallsPerMin: -1})
	for range 1000 {
		if err := rl.Allow(KindToolCall); err != nil {
			t.Fatalf("disabled bucket limited: %v", err)
		}
	}
}

func TestRateLimiter_AllowN(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{ToolCallsPerMin: 10})
	if err := rl.AllowN(KindToolCall, 8); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := rl.AllowN(KindToolCall, 3); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if err := rl.AllowN(KindToolCall, 2); err != nil {
		t.Fatalf("a rejected AllowN must not consume events: %v", err)
	}
}

func TestRateLimiter_Defaults(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{})
	if got := rl.Remaining(KindExecution); got != 120 {
		t.Errorf("default executions = %d, want 120", got)
	}
	if got := rl.Remaining(KindToolCall); got != 600 {
		t.Errorf("default tool calls = %d, want 600", got)
	}
}

func TestRateLimiter_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{ExecutionsPerMin: 50})

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.Allow(KindExecution) == nil {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if allowed != 50 {
		t.Errorf("allowed = %d, want 50", allowed)
	}
}
