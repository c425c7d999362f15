package paging

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusKindString(t *testing.T) {
	tests := []struct {
		kind StatusKind
		want string
	}{
		{EmptyState, "empty_state"},
		{LoadingInitial, "loading_initial"},
		{LoadingMore, "loading_more"},
		{ErrorLoadingInitial, "error_loading_initial"},
		{ErrorLoadingMore, "error_loading_more"},
		{Normal, "normal"},
		{Refreshing, "refreshing"},
		{RefreshingError, "refreshing_error"},
		{EndReached, "end_reached"},
		{StatusKind(99), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.kind.String())
	}
}

func TestStatusKindPredicates(t *testing.T) {
	assert.True(t, ErrorLoadingMore.IsError())
	assert.True(t, RefreshingError.IsError())
	assert.False(t, EndReached.IsError())
	assert.False(t, EmptyState.IsError())

	assert.True(t, Refreshing.IsLoading())
	assert.False(t, Normal.IsLoading())
}

func TestStatusEqual(t *testing.T) {
	boom := errors.New("boom")
	wrapped := fmt.Errorf("wrapped: %w", boom)

	assert.True(t, Status{Kind: Normal}.Equal(Status{Kind: Normal}))
	assert.False(t, Status{Kind: Normal}.Equal(Status{Kind: EndReached}))
	assert.True(t, Status{Kind: ErrorLoadingMore, Cause: boom}.Equal(Status{Kind: ErrorLoadingMore, Cause: boom}))
	assert.True(t, Status{Kind: ErrorLoadingMore, Cause: wrapped}.Equal(Status{Kind: ErrorLoadingMore, Cause: boom}))
	assert.False(t, Status{Kind: ErrorLoadingMore, Cause: boom}.Equal(Status{Kind: ErrorLoadingMore}))
	assert.False(t, Status{Kind: ErrorLoadingMore, Cause: boom}.Equal(Status{Kind: ErrorLoadingMore, Cause: errors.New("boom")}))
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "normal", Status{Kind: Normal}.String())
	assert.Equal(t, "error_loading_initial: offline", Status{Kind: ErrorLoadingInitial, Cause: errors.New("offline")}.String())
}

func TestPagedResultEqual(t *testing.T) {
	a := PagedResult[string]{Data: []string{"a"}, Status: Status{Kind: Normal}}
	assert.True(t, a.Equal(PagedResult[string]{Data: []string{"a"}, Status: Status{Kind: Normal}}))
	assert.False(t, a.Equal(PagedResult[string]{Data: []string{"b"}, Status: Status{Kind: Normal}}))
	assert.False(t, a.Equal(PagedResult[string]{Data: []string{"a"}, Status: Status{Kind: EndReached}}))
	assert.True(t, PagedResult[string]{Data: []string{}}.Equal(PagedResult[string]{}))
}

func TestProjectDataLoaded(t *testing.T) {
	tests := []struct {
		name    string
		initial bool
		count   int
		data    []string
		want    StatusKind
	}{
		{"initial empty", true, 3, nil, EmptyState},
		{"later empty", false, 6, nil, EndReached},
		{"short page", false, 6, []string{"a", "b", "c", "d"}, EndReached},
		{"full page", false, 6, []string{"a", "b", "c", "d", "e", "f"}, Normal},
		{"initial full", true, 2, []string{"a", "b"}, Normal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := phase[string]{kind: dataLoaded, initial: tt.initial, count: tt.count}
			got := project(p, tt.data, false)
			assert.Equal(t, tt.want, got.Status.Kind)
			assert.NotNil(t, got.Data)
		})
	}
}

func TestProjectPanicsOnTransientPhase(t *testing.T) {
	assert.Panics(t, func() { project(phase[string]{kind: loading}, nil, false) })
	assert.Panics(t, func() { project(phase[string]{kind: positionBoundNotified}, nil, false) })
}
