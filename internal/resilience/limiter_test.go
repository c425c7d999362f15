package resilience

import (
	"testing"
	"time"
)

func newTestLimiter(t *testing.T, limit, rate float64) (*RateLimiter, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(NewStore(t.TempDir()), "api.github.com",
		Config{RateLimiter: LimiterConfig{MaxTokens: limit, RefillRate: rate}})
	rl.now = c.now
	return rl, c
}

func TestRateLimiterDrainsBucket(t *testing.T) {
	rl, _ := newTestLimiter(t, 3, 1)

	for i := 0; i < 3; i++ {
		allowed, _, err := rl.Allow()
		if err != nil || !allowed {
			t.Fatalf("request %d: expected allowed, got %v, %v", i, allowed, err)
		}
	}
	allowed, wait, _ := rl.Allow()
	if allowed {
		t.Fatal("expected empty bucket to reject")
	}
	if wait != time.Second {
		t.Errorf("expected 1s wait, got %s", wait)
	}
}

func TestRateLimiterRefills(t *testing.T) {
	rl, c := newTestLimiter(t, 2, 2)

	_, _, _ = rl.Allow()
	_, _, _ = rl.Allow()
	c.advance(500 * time.Millisecond)

	if allowed, _, _ := rl.Allow(); !allowed {
		t.Error("expected one token after half a second at 2/s")
	}
	if allowed, _, _ := rl.Allow(); allowed {
		t.Error("expected bucket empty again")
	}
}

func TestRateLimiterTokensCapped(t *testing.T) {
	rl, c := newTestLimiter(t, 5, 10)

	_, _, _ = rl.Allow()
	c.advance(time.Hour)

	tokens, err := rl.Tokens()
	if err != nil {
		t.Fatal(err)
	}
	if tokens != 5 {
		t.Errorf("expected tokens capped at 5, got %v", tokens)
	}
}

func TestRateLimiterRetryAfterBlocks(t *testing.T) {
	rl, c := newTestLimiter(t, 10, 1)

	if err := rl.SetRetryAfter(c.t.Add(30 * time.Second)); err != nil {
		t.Fatal(err)
	}
	// An earlier reset never shortens the block.
	_ = rl.SetRetryAfter(c.t.Add(5 * time.Second))

	allowed, wait, _ := rl.Allow()
	if allowed {
		t.Fatal("expected blocked bucket to reject")
	}
	if wait != 30*time.Second {
		t.Errorf("expected 30s wait, got %s", wait)
	}

	c.advance(31 * time.Second)
	if allowed, _, _ := rl.Allow(); !allowed {
		t.Error("expected bucket usable after reset time")
	}
}

func TestRateLimiterReset(t *testing.T) {
	rl, c := newTestLimiter(t, 1, 1)
	_, _, _ = rl.Allow()
	_ = rl.SetRetryAfter(c.t.Add(time.Minute))

	if err := rl.Reset(); err != nil {
		t.Fatal(err)
	}
	if allowed, _, _ := rl.Allow(); !allowed {
		t.Error("expected allowed after reset")
	}
}
