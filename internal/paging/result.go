package paging

import (
	"errors"
	"slices"

	"github.com/pagewise/pagewise/internal/live"
)

// StatusKind identifies what a list view should show alongside its data.
type StatusKind int

const (
	EmptyState          StatusKind = iota // initial load returned nothing
	LoadingInitial                        // first page in flight
	LoadingMore                           // next page in flight
	ErrorLoadingInitial                   // first page failed
	ErrorLoadingMore                      // next page failed
	Normal                                // data shown, more may follow
	Refreshing                            // refresh in flight over prior data
	RefreshingError                       // refresh failed over prior data
	EndReached                            // source exhausted
)

func (k StatusKind) String() string {
	switch k {
	case EmptyState:
		return "empty_state"
	case LoadingInitial:
		return "loading_initial"
	case LoadingMore:
		return "loading_more"
	case ErrorLoadingInitial:
		return "error_loading_initial"
	case ErrorLoadingMore:
		return "error_loading_more"
	case Normal:
		return "normal"
	case Refreshing:
		return "refreshing"
	case RefreshingError:
		return "refreshing_error"
	case EndReached:
		return "end_reached"
	default:
		return "unknown"
	}
}

// IsError reports whether the kind carries a cause.
func (k StatusKind) IsError() bool {
	return k == ErrorLoadingInitial || k == ErrorLoadingMore || k == RefreshingError
}

// IsLoading reports whether a request is in flight for this kind.
func (k StatusKind) IsLoading() bool {
	return k == LoadingInitial || k == LoadingMore || k == Refreshing
}

// Status is the observable state of a paged list. Cause is set only for
// error kinds and is never inspected by the machine.
type Status struct {
	Kind  StatusKind
	Cause error
}

func (s Status) String() string {
	if s.Cause != nil {
		return s.Kind.String() + ": " + s.Cause.Error()
	}
	return s.Kind.String()
}

// Equal compares kinds and causes.
func (s Status) Equal(o Status) bool {
	if s.Kind != o.Kind {
		return false
	}
	if s.Cause == nil || o.Cause == nil {
		return s.Cause == nil && o.Cause == nil
	}
	return errors.Is(s.Cause, o.Cause)
}

// PagedResult is one snapshot of a paged list.
type PagedResult[T comparable] struct {
	Data   []T
	Status Status
}

// Equal reports structural equality.
func (r PagedResult[T]) Equal(o PagedResult[T]) bool {
	return r.Status.Equal(o.Status) && slices.Equal(r.Data, o.Data)
}

// Answer is the outcome of one batch request: Success or Failure.
type Answer[T any] interface {
	isAnswer()
}

// Success carries a live view of the loaded window.
type Success[T any] struct {
	View live.View[[]T]
}

// Failure carries the reason a batch request failed.
type Failure[T any] struct {
	Cause error
}

func (Success[T]) isAnswer() {}
func (Failure[T]) isAnswer() {}
