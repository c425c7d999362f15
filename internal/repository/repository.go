// Package repository decides whether a requested window of items can be
// served from the local cache or needs a remote fetch.
package repository

import (
	"context"
	"sync"

	"github.com/pagewise/pagewise/internal/cache"
	"github.com/pagewise/pagewise/internal/live"
)

// RemoteSource fetches one page of items. Errors are forwarded unchanged.
type RemoteSource[T any] interface {
	FetchPage(ctx context.Context, page, perPage int) ([]T, error)
}

// SourceFunc adapts a function to RemoteSource.
type SourceFunc[T any] func(ctx context.Context, page, perPage int) ([]T, error)

// FetchPage implements RemoteSource.
func (f SourceFunc[T]) FetchPage(ctx context.Context, page, perPage int) ([]T, error) {
	return f(ctx, page, perPage)
}

// Repository grows a Cache on demand from a RemoteSource.
// Load and Refresh are serialized; the repository is the cache's only writer.
type Repository[T any] struct {
	mu     sync.Mutex
	cache  *cache.Cache[T]
	remote RemoteSource[T]
}

// New creates a Repository over c and remote.
func New[T any](c *cache.Cache[T], remote RemoteSource[T]) *Repository[T] {
	return &Repository[T]{cache: c, remote: remote}
}

// Cache returns the underlying cache.
func (r *Repository[T]) Cache() *cache.Cache[T] { return r.cache }

// PageFor returns the remote page index requested when count items are
// wanted and cached are already held. The result is count/delta with
// delta = count-cached. Callers guarantee cached < count.
//
// For a cache that always grows in equal steps this is the one-based
// index of the next page. For uneven fills it is not an offset and may
// name a page that overlaps cached items.
func PageFor(count, cached int) int {
	return count / (count - cached)
}

// Load returns a view of the first count items, fetching the missing
// delta from the remote source when the cache is short.
func (r *Repository[T]) Load(ctx context.Context, count int) (live.View[[]T], error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cached := r.cache.Count()
	if cached >= count {
		return r.cache.FirstN(count), nil
	}

	delta := count - cached
	page := PageFor(count, cached)
	items, err := r.remote.FetchPage(ctx, page, delta)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.cache.Append(items)
	return r.cache.FirstN(count), nil
}

// Refresh fetches the first count items and replaces the cache with them.
// On failure the cache is left untouched.
func (r *Repository[T]) Refresh(ctx context.Context, count int) (live.View[[]T], error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	items, err := r.remote.FetchPage(ctx, 1, count)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.cache.Replace(items)
	return r.cache.FirstN(count), nil
}
