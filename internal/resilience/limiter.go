package resilience

import (
	"math"
	"time"
)

// RateLimiter is a token bucket per host, shared through the Store. A
// server-provided reset time blocks the bucket until it passes.
type RateLimiter struct {
	store *Store
	host  string
	cfg   Config
	now   func() time.Time
}

// NewRateLimiter returns a limiter for host. Zero config fields take
// their defaults.
func NewRateLimiter(store *Store, host string, cfg Config) *RateLimiter {
	return &RateLimiter{store: store, host: host, cfg: cfg.normalized(), now: time.Now}
}

func (rl *RateLimiter) refill(l *LimiterState, now time.Time) {
	limit := rl.cfg.RateLimiter.MaxTokens
	if !l.LastRefill.IsZero() {
		elapsed := now.Sub(l.LastRefill).Seconds()
		if elapsed > 0 {
			l.Tokens = math.Min(limit, l.Tokens+elapsed*rl.cfg.RateLimiter.RefillRate)
		}
	}
	l.LastRefill = now
}

// Allow takes a token. When none is available it reports how long until
// one will be.
func (rl *RateLimiter) Allow() (bool, time.Duration, error) {
	var (
		allowed bool
		wait    time.Duration
	)
	err := rl.store.Update(func(s *State) error {
		l := &s.Host(rl.host, rl.cfg).Limiter
		now := rl.now()
		if now.Before(l.RetryAfter) {
			wait = l.RetryAfter.Sub(now)
			return nil
		}
		rl.refill(l, now)
		if l.Tokens >= 1 {
			l.Tokens--
			allowed = true
			return nil
		}
		wait = time.Duration((1 - l.Tokens) / rl.cfg.RateLimiter.RefillRate * float64(time.Second))
		return nil
	})
	return allowed, wait, err
}

// SetRetryAfter blocks the bucket until t. An earlier block never
// shortens a later one.
func (rl *RateLimiter) SetRetryAfter(t time.Time) error {
	return rl.store.Update(func(s *State) error {
		l := &s.Host(rl.host, rl.cfg).Limiter
		if t.After(l.RetryAfter) {
			l.RetryAfter = t
		}
		return nil
	})
}

// Tokens returns the tokens available now.
func (rl *RateLimiter) Tokens() (float64, error) {
	s, err := rl.store.Load()
	if err != nil {
		return 0, err
	}
	h, ok := s.Hosts[rl.host]
	if !ok {
		return rl.cfg.RateLimiter.MaxTokens, nil
	}
	l := h.Limiter
	rl.refill(&l, rl.now())
	return l.Tokens, nil
}

// Reset refills the bucket and lifts any block.
func (rl *RateLimiter) Reset() error {
	return rl.store.Update(func(s *State) error {
		s.Host(rl.host, rl.cfg).Limiter = LimiterState{Tokens: rl.cfg.RateLimiter.MaxTokens}
		return nil
	})
}
