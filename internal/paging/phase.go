package paging

import (
	"fmt"

	"github.com/pagewise/pagewise/internal/live"
)

// phaseKind is the machine's internal state. Only some kinds are ever
// projected to a Status; loading and positionBoundNotified never are.
type phaseKind int

const (
	awaitingInitialLoad phaseKind = iota
	loading
	awaitingLoadMore
	initialLoadFailed
	loadMoreFailed
	positionBoundNotified
	dataLoaded
)

func (k phaseKind) String() string {
	switch k {
	case awaitingInitialLoad:
		return "awaiting_initial_load"
	case loading:
		return "loading"
	case awaitingLoadMore:
		return "awaiting_load_more"
	case initialLoadFailed:
		return "initial_load_failed"
	case loadMoreFailed:
		return "load_more_failed"
	case positionBoundNotified:
		return "position_bound_notified"
	case dataLoaded:
		return "data_loaded"
	default:
		return fmt.Sprintf("phase(%d)", int(k))
	}
}

// phase is one internal state together with the data view it shows and
// the cumulative count of the current session.
type phase[T any] struct {
	kind    phaseKind
	view    live.View[[]T]
	count   int
	initial bool  // loading, dataLoaded
	refresh bool  // awaitingInitialLoad, loading, initialLoadFailed
	cause   error // initialLoadFailed, loadMoreFailed
}

// settled reports whether the phase accepts position-bound notifications.
func (p phase[T]) settled() bool {
	return p.kind != loading && p.kind != positionBoundNotified
}

// project maps a phase and the data its view currently resolves to onto
// the externally visible result. refreshing selects the Refreshing
// statuses for refresh phases that still show prior data.
func project[T comparable](p phase[T], data []T, refreshing bool) PagedResult[T] {
	if data == nil {
		data = []T{}
	}
	showPrior := refreshing && p.refresh && len(data) > 0

	var st Status
	switch p.kind {
	case awaitingInitialLoad:
		st.Kind = LoadingInitial
		if showPrior {
			st.Kind = Refreshing
		}
	case awaitingLoadMore:
		st.Kind = LoadingMore
	case initialLoadFailed:
		st = Status{Kind: ErrorLoadingInitial, Cause: p.cause}
		if showPrior {
			st.Kind = RefreshingError
		}
	case loadMoreFailed:
		st = Status{Kind: ErrorLoadingMore, Cause: p.cause}
	case dataLoaded:
		switch {
		case p.initial && len(data) == 0:
			st.Kind = EmptyState
		case len(data) < p.count:
			st.Kind = EndReached
		default:
			st.Kind = Normal
		}
	default:
		panic(fmt.Sprintf("paging: phase %s has no projection", p.kind))
	}
	return PagedResult[T]{Data: data, Status: st}
}
