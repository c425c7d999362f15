package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pkt.systems/pslog"

	"github.com/pagewise/pagewise/internal/repository"
)

var (
	// ErrCircuitOpen is returned without calling the source while the
	// host's circuit is open.
	ErrCircuitOpen = errors.New("circuit breaker open")

	// ErrRateLimited is returned without calling the source while the
	// host's bucket is empty or blocked.
	ErrRateLimited = errors.New("rate limited")
)

// RejectedError is a call the guard refused to make.
type RejectedError struct {
	Reason error
	Wait   time.Duration
}

func (e *RejectedError) Error() string {
	if e.Wait > 0 {
		return fmt.Sprintf("%v: retry in %s", e.Reason, e.Wait.Round(time.Second))
	}
	return e.Reason.Error()
}

func (e *RejectedError) Unwrap() error { return e.Reason }

// Guard wraps a remote source with a circuit breaker and a rate limiter.
//
// Errors that expose RetryAt() block the limiter until that time instead
// of counting against the breaker. Errors that report Permanent() == true
// are the caller's fault and leave the breaker alone.
type Guard[T any] struct {
	src     repository.RemoteSource[T]
	breaker *CircuitBreaker
	limiter *RateLimiter
}

var _ repository.RemoteSource[int] = (*Guard[int])(nil)

// NewGuard guards src with state for host kept in store.
func NewGuard[T any](src repository.RemoteSource[T], store *Store, host string, cfg Config) *Guard[T] {
	return &Guard[T]{
		src:     src,
		breaker: NewCircuitBreaker(store, host, cfg),
		limiter: NewRateLimiter(store, host, cfg),
	}
}

func (g *Guard[T]) Breaker() *CircuitBreaker { return g.breaker }
func (g *Guard[T]) Limiter() *RateLimiter    { return g.limiter }

// FetchPage implements repository.RemoteSource. State file problems are
// logged and otherwise ignored.
func (g *Guard[T]) FetchPage(ctx context.Context, page, perPage int) ([]T, error) {
	log := pslog.Ctx(ctx)

	allowed, err := g.breaker.Allow()
	if err != nil {
		log.Debug("resilience state unavailable", "err", err)
	} else if !allowed {
		return nil, &RejectedError{Reason: ErrCircuitOpen}
	}

	allowed, wait, err := g.limiter.Allow()
	if err != nil {
		log.Debug("resilience state unavailable", "err", err)
	} else if !allowed {
		return nil, &RejectedError{Reason: ErrRateLimited, Wait: wait}
	}

	items, err := g.src.FetchPage(ctx, page, perPage)
	if rerr := g.record(ctx, err); rerr != nil {
		log.Debug("resilience state unavailable", "err", rerr)
	}
	return items, err
}

func (g *Guard[T]) record(ctx context.Context, err error) error {
	if err == nil {
		return g.breaker.RecordSuccess()
	}
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return nil
	}
	var limited interface{ RetryAt() time.Time }
	if errors.As(err, &limited) {
		return g.limiter.SetRetryAfter(limited.RetryAt())
	}
	var permanent interface{ Permanent() bool }
	if errors.As(err, &permanent) && permanent.Permanent() {
		return nil
	}
	return g.breaker.RecordFailure()
}
