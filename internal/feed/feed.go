// Package feed connects a repository to a paging machine. It is the only
// place where batch failures are logged.
package feed

import (
	"context"
	"errors"

	"pkt.systems/pslog"

	"github.com/pagewise/pagewise/internal/live"
	"github.com/pagewise/pagewise/internal/paging"
)

// DefaultErrorMessage is logged for failures whose message is empty.
const DefaultErrorMessage = "A problem has occurred!"

// Loader is the part of a repository the adapter needs.
type Loader[T any] interface {
	Load(ctx context.Context, count int) (live.View[[]T], error)
	Refresh(ctx context.Context, count int) (live.View[[]T], error)
}

// ErrorLogger records failed batch requests. Implementations must not
// block.
type ErrorLogger interface {
	LogError(ctx context.Context, err error)
}

// ErrorLoggerFunc adapts a function to ErrorLogger.
type ErrorLoggerFunc func(ctx context.Context, err error)

// LogError implements ErrorLogger.
func (f ErrorLoggerFunc) LogError(ctx context.Context, err error) { f(ctx, err) }

// Discard drops every error.
var Discard ErrorLogger = ErrorLoggerFunc(func(context.Context, error) {})

// LogErrorLogger writes failures to a pslog logger, tagged with the
// paging session that issued the request.
type LogErrorLogger struct {
	log pslog.Logger
}

// NewLogErrorLogger returns an ErrorLogger writing to l.
func NewLogErrorLogger(l pslog.Logger) *LogErrorLogger {
	return &LogErrorLogger{log: l}
}

// LogError implements ErrorLogger.
func (l *LogErrorLogger) LogError(ctx context.Context, err error) {
	log := l.log
	if id := paging.SessionFromContext(ctx); id != "" {
		log = log.With("session", id)
	}
	msg := DefaultErrorMessage
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	log.Error("batch request failed", "err", msg)
}

// Requester returns a paging.Requester that loads through repo and logs
// each failure once. Failures caused by the request's own context being
// cancelled are returned without logging; deadlines are logged.
func Requester[T any](repo Loader[T], logger ErrorLogger) paging.Requester[T] {
	if logger == nil {
		logger = Discard
	}
	return func(ctx context.Context, target int, refresh bool) paging.Answer[T] {
		var (
			view live.View[[]T]
			err  error
		)
		if refresh {
			view, err = repo.Refresh(ctx, target)
		} else {
			view, err = repo.Load(ctx, target)
		}
		if err != nil {
			if !cancelled(ctx, err) {
				logger.LogError(ctx, err)
			}
			return paging.Failure[T]{Cause: err}
		}
		return paging.Success[T]{View: view}
	}
}

// cancelled reports whether err is ctx's own cancellation. A request
// deadline is a failure the machine surfaces, so it does not count.
func cancelled(ctx context.Context, err error) bool {
	return errors.Is(ctx.Err(), context.Canceled) && errors.Is(err, context.Canceled)
}

// New builds a paging machine that pages through repo.
func New[T comparable](repo Loader[T], logger ErrorLogger, pageSize int, opts ...paging.Option) *paging.Machine[T] {
	return paging.New(pageSize, Requester(repo, logger), opts...)
}
