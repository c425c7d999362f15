package resilience

import (
	"testing"
	"time"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(t *testing.T, cfg Config) (*CircuitBreaker, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker(NewStore(t.TempDir()), "api.github.com", cfg)
	cb.now = c.now
	return cb, c
}

func mustState(t *testing.T, cb *CircuitBreaker) CircuitState {
	t.Helper()
	st, err := cb.State()
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	return st
}

func TestCircuitBreakerDefaultsClosed(t *testing.T) {
	cb, _ := newTestBreaker(t, Config{})

	if st := mustState(t, cb); st != CircuitClosed {
		t.Errorf("expected closed, got %s", st)
	}
	allowed, err := cb.Allow()
	if err != nil || !allowed {
		t.Errorf("expected closed circuit to allow, got %v, %v", allowed, err)
	}
}

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cb, _ := newTestBreaker(t, Config{CircuitBreaker: BreakerConfig{FailureThreshold: 3}})

	for i := 0; i < 2; i++ {
		_ = cb.RecordFailure()
	}
	if st := mustState(t, cb); st != CircuitClosed {
		t.Fatalf("expected closed below threshold, got %s", st)
	}
	_ = cb.RecordFailure()
	if st := mustState(t, cb); st != CircuitOpen {
		t.Fatalf("expected open at threshold, got %s", st)
	}
	if allowed, _ := cb.Allow(); allowed {
		t.Error("expected open circuit to reject")
	}
}

func TestCircuitBreakerSuccessResetsFailures(t *testing.T) {
	cb, _ := newTestBreaker(t, Config{CircuitBreaker: BreakerConfig{FailureThreshold: 2}})

	_ = cb.RecordFailure()
	_ = cb.RecordSuccess()
	_ = cb.RecordFailure()

	if st := mustState(t, cb); st != CircuitClosed {
		t.Errorf("expected closed, non-consecutive failures should not open: %s", st)
	}
}

func TestCircuitBreakerHalfOpenRecovery(t *testing.T) {
	cb, c := newTestBreaker(t, Config{CircuitBreaker: BreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		OpenTimeout:      10 * time.Second,
	}})

	_ = cb.RecordFailure()
	c.advance(11 * time.Second)

	if allowed, _ := cb.Allow(); !allowed {
		t.Fatal("expected probe after open timeout")
	}
	if st := mustState(t, cb); st != CircuitHalfOpen {
		t.Fatalf("expected half-open, got %s", st)
	}

	_ = cb.RecordSuccess()
	if st := mustState(t, cb); st != CircuitHalfOpen {
		t.Fatalf("expected half-open after one success, got %s", st)
	}
	_ = cb.RecordSuccess()
	if st := mustState(t, cb); st != CircuitClosed {
		t.Fatalf("expected closed after success threshold, got %s", st)
	}
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb, c := newTestBreaker(t, Config{CircuitBreaker: BreakerConfig{
		FailureThreshold: 1,
		OpenTimeout:      time.Second,
	}})

	_ = cb.RecordFailure()
	c.advance(2 * time.Second)
	_, _ = cb.Allow()
	_ = cb.RecordFailure()

	if st := mustState(t, cb); st != CircuitOpen {
		t.Fatalf("expected reopened circuit, got %s", st)
	}
	if allowed, _ := cb.Allow(); allowed {
		t.Error("expected reopened circuit to reject until timeout")
	}
}

func TestCircuitBreakerSharedAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{CircuitBreaker: BreakerConfig{FailureThreshold: 1}}
	a := NewCircuitBreaker(NewStore(dir), "api.github.com", cfg)
	b := NewCircuitBreaker(NewStore(dir), "api.github.com", cfg)
	other := NewCircuitBreaker(NewStore(dir), "ghe.example.com", cfg)

	_ = a.RecordFailure()

	if st := mustState(t, b); st != CircuitOpen {
		t.Errorf("expected second instance to see open circuit, got %s", st)
	}
	if st := mustState(t, other); st != CircuitClosed {
		t.Errorf("expected other host unaffected, got %s", st)
	}
}

func TestCircuitBreakerReset(t *testing.T) {
	cb, _ := newTestBreaker(t, Config{CircuitBreaker: BreakerConfig{FailureThreshold: 1}})
	_ = cb.RecordFailure()
	if err := cb.Reset(); err != nil {
		t.Fatal(err)
	}
	if st := mustState(t, cb); st != CircuitClosed {
		t.Errorf("expected closed after reset, got %s", st)
	}
}
