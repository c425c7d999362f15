package resilience

import "time"

// Config tunes the guard.
type Config struct {
	CircuitBreaker BreakerConfig
	RateLimiter    LimiterConfig
}

// BreakerConfig tunes the circuit breaker.
type BreakerConfig struct {
	// FailureThreshold consecutive failures open the circuit.
	FailureThreshold int
	// SuccessThreshold consecutive half-open successes close it again.
	SuccessThreshold int
	// OpenTimeout is how long the circuit stays open before a probe.
	OpenTimeout time.Duration
}

// LimiterConfig tunes the token bucket.
type LimiterConfig struct {
	MaxTokens  float64
	RefillRate float64 // tokens per second
}

// DefaultConfig suits the public GitHub REST API: short bursts of page
// requests with a generous breaker.
func DefaultConfig() Config {
	return Config{
		CircuitBreaker: BreakerConfig{
			FailureThreshold: 5,
			SuccessThreshold: 2,
			OpenTimeout:      30 * time.Second,
		},
		RateLimiter: LimiterConfig{
			MaxTokens:  30,
			RefillRate: 5,
		},
	}
}

// normalized fills zero fields from DefaultConfig.
func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.CircuitBreaker.FailureThreshold <= 0 {
		c.CircuitBreaker.FailureThreshold = d.CircuitBreaker.FailureThreshold
	}
	if c.CircuitBreaker.SuccessThreshold <= 0 {
		c.CircuitBreaker.SuccessThreshold = d.CircuitBreaker.SuccessThreshold
	}
	if c.CircuitBreaker.OpenTimeout <= 0 {
		c.CircuitBreaker.OpenTimeout = d.CircuitBreaker.OpenTimeout
	}
	if c.RateLimiter.MaxTokens <= 0 {
		c.RateLimiter.MaxTokens = d.RateLimiter.MaxTokens
	}
	if c.RateLimiter.RefillRate <= 0 {
		c.RateLimiter.RefillRate = d.RateLimiter.RefillRate
	}
	return c
}
