// Package live provides latest-value streams that fan out to any number
// of watchers.
//
// A View always has a current value. Watching a view delivers that value
// first and then every later update. Each watcher owns a small buffer
// (one slot by default); when a watcher falls behind, the oldest pending
// value is dropped in favour of the newest. Slow watchers therefore see a
// conflated stream: they never see values out of order, but they may skip
// intermediate ones.
package live

import (
	"context"
	"sync"
)

// View is a read-only latest-value stream.
type View[T any] interface {
	// Current returns the latest value. Never blocks.
	Current() T

	// Watch returns a channel that receives the current value followed by
	// every later update. The channel is closed when ctx is done or the
	// underlying source is closed. A watcher whose ctx is never done lives
	// until the source is closed.
	Watch(ctx context.Context, opts ...WatchOption) <-chan T
}

// WatchOption configures a single watcher.
type WatchOption func(*watchConfig)

type watchConfig struct {
	buffer int
}

// WithBuffer sets how many pending values a watcher may hold before the
// oldest is dropped. Values below 1 are treated as 1.
func WithBuffer(n int) WatchOption {
	return func(c *watchConfig) {
		if n > 1 {
			c.buffer = n
		}
	}
}

func resolve(opts []WatchOption) watchConfig {
	cfg := watchConfig{buffer: 1}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// offer performs a non-blocking send, evicting the oldest pending value
// when the channel is full. Callers must be the channel's only sender.
func offer[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// Broadcaster holds a value and pushes every change to its watchers.
// The zero value is not usable; create one with NewBroadcaster.
type Broadcaster[T any] struct {
	mu       sync.Mutex
	value    T
	version  uint64
	watchers map[*watcher[T]]struct{}
	closed   bool
	done     chan struct{}
}

type watcher[T any] struct {
	ch chan T
}

// NewBroadcaster creates a Broadcaster holding initial.
func NewBroadcaster[T any](initial T) *Broadcaster[T] {
	return &Broadcaster[T]{
		value:    initial,
		watchers: make(map[*watcher[T]]struct{}),
		done:     make(chan struct{}),
	}
}

// Current returns the latest published value.
func (b *Broadcaster[T]) Current() T {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.value
}

// Version returns the number of values published since creation.
func (b *Broadcaster[T]) Version() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.version
}

// Publish replaces the current value and delivers it to all watchers.
// Publishing after Close is a no-op.
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.value = v
	b.version++
	for w := range b.watchers {
		offer(w.ch, v)
	}
}

// Update applies fn to the current value and publishes the result
// atomically with respect to other Publish and Update calls.
func (b *Broadcaster[T]) Update(fn func(T) T) T {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return b.value
	}
	b.value = fn(b.value)
	b.version++
	for w := range b.watchers {
		offer(w.ch, b.value)
	}
	return b.value
}

// Watch implements View.
func (b *Broadcaster[T]) Watch(ctx context.Context, opts ...WatchOption) <-chan T {
	cfg := resolve(opts)
	w := &watcher[T]{ch: make(chan T, cfg.buffer)}

	b.mu.Lock()
	w.ch <- b.value
	if b.closed {
		close(w.ch)
		b.mu.Unlock()
		return w.ch
	}
	b.watchers[w] = struct{}{}
	b.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			b.remove(w)
		case <-b.done:
		}
	}()
	return w.ch
}

// Watchers returns the number of active watchers.
func (b *Broadcaster[T]) Watchers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.watchers)
}

func (b *Broadcaster[T]) remove(w *watcher[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.watchers[w]; !ok {
		return
	}
	delete(b.watchers, w)
	close(w.ch)
}

// Close closes every watcher channel. The last value stays readable
// through Current, and later watchers receive it once before their
// channel is closed.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.done)
	for w := range b.watchers {
		delete(b.watchers, w)
		close(w.ch)
	}
}

// Of returns a View that holds v forever.
func Of[T any](v T) View[T] {
	return static[T]{value: v}
}

type static[T any] struct {
	value T
}

func (s static[T]) Current() T { return s.value }

func (s static[T]) Watch(ctx context.Context, _ ...WatchOption) <-chan T {
	ch := make(chan T, 1)
	ch <- s.value
	if ctx.Done() == nil {
		// Never closed: the value never changes.
		return ch
	}
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch
}

// Map returns a View whose values are fn applied to src's values.
// fn must be pure; it may run once per watcher per update.
func Map[S, T any](src View[S], fn func(S) T) View[T] {
	return mapped[S, T]{src: src, fn: fn}
}

type mapped[S, T any] struct {
	src View[S]
	fn  func(S) T
}

func (m mapped[S, T]) Current() T { return m.fn(m.src.Current()) }

func (m mapped[S, T]) Watch(ctx context.Context, opts ...WatchOption) <-chan T {
	cfg := resolve(opts)
	in := m.src.Watch(ctx, opts...)
	out := make(chan T, cfg.buffer)
	go func() {
		defer close(out)
		for v := range in {
			offer(out, m.fn(v))
		}
	}()
	return out
}
