// Package cache holds an in-memory ordered list of items and exposes
// live views over its prefix.
package cache

import (
	"slices"
	"sync"

	"github.com/pagewise/pagewise/internal/live"
)

// Cache is an append-only ordered list. Every mutation is broadcast to
// all views returned by FirstN. Safe for concurrent use.
type Cache[T any] struct {
	mu    sync.Mutex
	items *live.Broadcaster[[]T]
}

// New creates an empty cache.
func New[T any]() *Cache[T] {
	return &Cache[T]{items: live.NewBroadcaster([]T{})}
}

// Count returns the number of cached items.
func (c *Cache[T]) Count() int {
	return len(c.items.Current())
}

// Snapshot returns a copy of the cached items.
func (c *Cache[T]) Snapshot() []T {
	return slices.Clone(c.items.Current())
}

// FirstN returns a live view of at most the first n items.
// Negative n yields an empty view.
func (c *Cache[T]) FirstN(n int) live.View[[]T] {
	n = max(n, 0)
	return live.Map(live.View[[]T](c.items), func(items []T) []T {
		return slices.Clone(items[:min(n, len(items))])
	})
}

// Append adds items to the end of the cache.
func (c *Cache[T]) Append(items []T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items.Update(func(cur []T) []T {
		// Always allocate so published slices are never written to.
		next := make([]T, 0, len(cur)+len(items))
		next = append(next, cur...)
		return append(next, items...)
	})
}

// Replace discards the cached items and installs items.
func (c *Cache[T]) Replace(items []T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items.Publish(append([]T{}, items...))
}

// Clear empties the cache.
func (c *Cache[T]) Clear() {
	c.Replace(nil)
}

// Watchers reports how many live views are currently being watched.
func (c *Cache[T]) Watchers() int {
	return c.items.Watchers()
}
