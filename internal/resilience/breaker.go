package resilience

import "time"

// CircuitBreaker stops calls to a host after repeated failures. Its state
// lives in the Store, so every process talking to the host shares it.
type CircuitBreaker struct {
	store *Store
	host  string
	cfg   Config
	now   func() time.Time
}

// NewCircuitBreaker returns a breaker for host. Zero config fields take
// their defaults.
func NewCircuitBreaker(store *Store, host string, cfg Config) *CircuitBreaker {
	return &CircuitBreaker{store: store, host: host, cfg: cfg.normalized(), now: time.Now}
}

// Allow reports whether a call may proceed. An open circuit whose
// timeout has elapsed moves to half-open and admits a probe.
func (cb *CircuitBreaker) Allow() (bool, error) {
	allowed := true
	err := cb.store.Update(func(s *State) error {
		b := &s.Host(cb.host, cb.cfg).Breaker
		if b.State == CircuitOpen {
			if cb.now().Sub(b.OpenedAt) < cb.cfg.CircuitBreaker.OpenTimeout {
				allowed = false
				return nil
			}
			b.State = CircuitHalfOpen
			b.Successes = 0
		}
		return nil
	})
	return allowed, err
}

// RecordSuccess resets the failure count, or counts toward closing a
// half-open circuit.
func (cb *CircuitBreaker) RecordSuccess() error {
	return cb.store.Update(func(s *State) error {
		b := &s.Host(cb.host, cb.cfg).Breaker
		switch b.State {
		case CircuitHalfOpen:
			b.Successes++
			if b.Successes >= cb.cfg.CircuitBreaker.SuccessThreshold {
				*b = BreakerState{State: CircuitClosed}
			}
		default:
			b.Failures = 0
		}
		return nil
	})
}

// RecordFailure counts a failure. A half-open circuit reopens at once.
func (cb *CircuitBreaker) RecordFailure() error {
	return cb.store.Update(func(s *State) error {
		b := &s.Host(cb.host, cb.cfg).Breaker
		now := cb.now()
		b.LastFailure = now
		switch b.State {
		case CircuitHalfOpen:
			b.State = CircuitOpen
			b.OpenedAt = now
			b.Successes = 0
		case CircuitClosed:
			b.Failures++
			if b.Failures >= cb.cfg.CircuitBreaker.FailureThreshold {
				b.State = CircuitOpen
				b.OpenedAt = now
			}
		}
		return nil
	})
}

// State returns the breaker position without changing it.
func (cb *CircuitBreaker) State() (CircuitState, error) {
	s, err := cb.store.Load()
	if err != nil {
		return "", err
	}
	h, ok := s.Hosts[cb.host]
	if !ok {
		return CircuitClosed, nil
	}
	return h.Breaker.State, nil
}

// Reset closes the circuit.
func (cb *CircuitBreaker) Reset() error {
	return cb.store.Update(func(s *State) error {
		s.Host(cb.host, cb.cfg).Breaker = BreakerState{State: CircuitClosed}
		return nil
	})
}
