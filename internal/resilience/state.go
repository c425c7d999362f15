package resilience

import "time"

// StateVersion is bumped whenever the on-disk layout changes.
const StateVersion = 2

// CircuitState names a circuit breaker position.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half_open"
)

// State is the persisted guard state, keyed by remote host so that two
// API endpoints never trip each other's breaker.
type State struct {
	Version   int                   `json:"version"`
	Hosts     map[string]*HostState `json:"hosts,omitempty"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// HostState holds the breaker and limiter for one host.
type HostState struct {
	Breaker BreakerState `json:"breaker"`
	Limiter LimiterState `json:"limiter"`
}

// BreakerState is the persisted circuit breaker.
type BreakerState struct {
	State       CircuitState `json:"state"`
	Failures    int          `json:"failures"`
	Successes   int          `json:"successes"`
	OpenedAt    time.Time    `json:"opened_at"`
	LastFailure time.Time    `json:"last_failure"`
}

// LimiterState is the persisted token bucket.
type LimiterState struct {
	Tokens     float64   `json:"tokens"`
	LastRefill time.Time `json:"last_refill"`
	RetryAfter time.Time `json:"retry_after"`
}

// NewState returns an empty state.
func NewState() *State {
	return &State{Version: StateVersion, Hosts: map[string]*HostState{}}
}

// Host returns the entry for host, creating it with a closed breaker and
// a full bucket when absent.
func (s *State) Host(host string, cfg Config) *HostState {
	if s.Hosts == nil {
		s.Hosts = map[string]*HostState{}
	}
	h, ok := s.Hosts[host]
	if !ok {
		h = &HostState{
			Breaker: BreakerState{State: CircuitClosed},
			Limiter: LimiterState{Tokens: cfg.RateLimiter.MaxTokens},
		}
		s.Hosts[host] = h
	}
	return h
}
