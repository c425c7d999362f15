package github

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

var (
	ErrUnauthorized = errors.New("github: unauthorized")
	ErrNotFound     = errors.New("github: not found")
	ErrRateLimited  = errors.New("github: rate limit exceeded")
	ErrNetwork      = errors.New("github: network error")
	ErrAPI          = errors.New("github: api error")
)

// RateLimitError carries the time GitHub will accept requests again.
type RateLimitError struct {
	Reset time.Time
}

func (e *RateLimitError) Error() string {
	if e.Reset.IsZero() {
		return ErrRateLimited.Error()
	}
	return fmt.Sprintf("%v (resets %s)", ErrRateLimited, e.Reset.Format(time.RFC3339))
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// RetryAt reports when the limit lifts.
func (e *RateLimitError) RetryAt() time.Time { return e.Reset }

// APIError is a non-success response that is not a rate limit.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("github: request failed (HTTP %d)", e.StatusCode)
	}
	return fmt.Sprintf("github: %s (HTTP %d)", e.Message, e.StatusCode)
}

func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return ErrAPI
	}
}

// Permanent reports a client error that repeating will not fix.
func (e *APIError) Permanent() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// Retryable reports a gateway error worth another attempt.
func (e *APIError) Retryable() bool {
	switch e.StatusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// rateLimitFrom returns a RateLimitError when resp says the limit is
// exhausted, either through Retry-After or a zero X-RateLimit-Remaining.
func rateLimitFrom(resp *http.Response, now time.Time) *RateLimitError {
	if resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode != http.StatusForbidden {
		return nil
	}
	if s := resp.Header.Get("Retry-After"); s != "" {
		if secs, err := strconv.Atoi(s); err == nil {
			return &RateLimitError{Reset: now.Add(time.Duration(secs) * time.Second)}
		}
	}
	if resp.Header.Get("X-RateLimit-Remaining") == "0" {
		e := &RateLimitError{}
		if epoch, err := strconv.ParseInt(resp.Header.Get("X-RateLimit-Reset"), 10, 64); err == nil {
			e.Reset = time.Unix(epoch, 0)
		}
		return e
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return &RateLimitError{}
	}
	return nil
}
