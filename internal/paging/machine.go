// Package paging drives incremental loading of a list and reports what
// the list should show as a stream of PagedResult snapshots.
//
// A Machine holds one internal phase at a time. Triggers (Fetch,
// OnDataBound and the two retries) and request completions are applied
// under a single mutex, so one transition is fully applied before the
// next is considered. Batch requests run on their own goroutines with a
// context scoped to the current session; Fetch cancels that context and
// any late completion from the superseded session is dropped.
//
// Results are delivered through a live.View. Watchers with the default
// one-slot buffer only see the newest snapshot and may miss short-lived
// statuses such as LoadingMore. Watch with live.WithBuffer to observe
// every emitted snapshot in order.
package paging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"pkt.systems/pslog"

	"github.com/pagewise/pagewise/internal/live"
)

// DefaultPrefetchDistance is how close to the end of the loaded window a
// bound position must be to trigger the next page.
const DefaultPrefetchDistance = 5

// Requester performs one batch request for the first targetCount items.
// Every failure must be reported as Failure; ctx is cancelled when the
// session that issued the request is superseded.
type Requester[T any] func(ctx context.Context, targetCount int, refresh bool) Answer[T]

// Transition describes one internal phase change.
type Transition struct {
	Session string
	From    string
	To      string
	Count   int
}

// Option configures a Machine.
type Option func(*options)

type options struct {
	logger            pslog.Logger
	observe           func(Transition)
	refreshProjection bool
	prefetch          int
	timeout           time.Duration
}

// WithLogger sets the logger for transitions and dropped completions.
func WithLogger(l pslog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithObserver registers fn to be called on every phase change. fn runs
// with the machine locked and must not call back into it.
func WithObserver(fn func(Transition)) Option {
	return func(o *options) { o.observe = fn }
}

// WithRefreshProjection makes Fetch keep the data on screen while the
// refresh is in flight, reporting Refreshing and RefreshingError instead
// of LoadingInitial and ErrorLoadingInitial. Without prior data the
// initial statuses are used as usual.
func WithRefreshProjection() Option {
	return func(o *options) { o.refreshProjection = true }
}

// WithPrefetchDistance overrides DefaultPrefetchDistance.
func WithPrefetchDistance(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.prefetch = n
		}
	}
}

// WithTimeout bounds every batch request. A request that exceeds d fails
// with context.DeadlineExceeded.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

type sessionKey struct{}

// SessionFromContext returns the id of the paging session that issued a
// batch request, or "" when ctx did not come from a Machine.
func SessionFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}

type session struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
}

// Machine is the paging state machine. Create one with New.
type Machine[T comparable] struct {
	pageSize int
	request  Requester[T]
	opts     options
	log      pslog.Logger
	results  *live.Broadcaster[PagedResult[T]]

	root       context.Context
	cancelRoot context.CancelFunc

	mu        sync.Mutex
	state     phase[T]
	sess      *session
	requestID uint64
	epoch     uint64 // bumped whenever a new phase is projected
	stopWatch context.CancelFunc
	started   bool
	closed    bool
}

// New creates a Machine that loads pageSize items per batch through
// request. The first batch starts when Results is first watched or
// Fetch is called. New panics if pageSize is not positive or request is
// nil.
func New[T comparable](pageSize int, request Requester[T], opts ...Option) *Machine[T] {
	if pageSize <= 0 {
		panic(fmt.Sprintf("paging: page size must be positive, got %d", pageSize))
	}
	if request == nil {
		panic("paging: nil requester")
	}
	o := options{prefetch: DefaultPrefetchDistance}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = pslog.Ctx(context.Background())
	}

	root, cancel := context.WithCancel(context.Background())
	m := &Machine[T]{
		pageSize:   pageSize,
		request:    request,
		opts:       o,
		log:        o.logger,
		root:       root,
		cancelRoot: cancel,
		state:      phase[T]{kind: awaitingInitialLoad, view: live.Of([]T{})},
	}
	m.results = live.NewBroadcaster(project(m.state, nil, false))
	m.sess = m.newSession()
	return m
}

// PageSize returns the batch size.
func (m *Machine[T]) PageSize() int { return m.pageSize }

// Results returns the stream of snapshots. Watching it starts the first
// load if nothing has started it yet. Snapshot data is shared between
// watchers and must not be modified.
func (m *Machine[T]) Results() live.View[PagedResult[T]] {
	return resultsView[T]{m: m}
}

type resultsView[T comparable] struct {
	m *Machine[T]
}

func (v resultsView[T]) Current() PagedResult[T] {
	return v.m.results.Current()
}

func (v resultsView[T]) Watch(ctx context.Context, opts ...live.WatchOption) <-chan PagedResult[T] {
	ch := v.m.results.Watch(ctx, opts...)
	v.m.start()
	return ch
}

func (m *Machine[T]) start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started || m.closed {
		return
	}
	m.started = true
	m.settle()
}

// Fetch cancels any in-flight request and starts a new session from an
// empty window.
func (m *Machine[T]) Fetch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}

	m.sess.cancel()
	m.sess = m.newSession()
	m.started = true

	view := live.Of([]T{})
	if m.opts.refreshProjection {
		if shown := m.results.Current().Data; len(shown) > 0 {
			view = live.Of(shown)
		}
	}
	m.transition(phase[T]{kind: awaitingInitialLoad, view: view, refresh: true})
}

// OnDataBound reports that the item at position has been displayed.
// When the position is within the prefetch distance of the end of the
// window and no request is running, the next page is loaded. This holds
// after EmptyState and EndReached too; callers that treat those as final
// stop reporting positions.
func (m *Machine[T]) OnDataBound(position int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || !m.started {
		return
	}

	p := m.state
	if !p.settled() || position <= p.count-m.opts.prefetch {
		return
	}
	m.transition(phase[T]{kind: positionBoundNotified, view: p.view, count: p.count})
}

// RetryLoadingInitial repeats a failed initial load. It is a no-op in
// any other phase.
func (m *Machine[T]) RetryLoadingInitial() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.state.kind != initialLoadFailed {
		return
	}
	p := m.state
	m.transition(phase[T]{kind: awaitingInitialLoad, view: p.view, count: p.count, refresh: p.refresh})
}

// RetryLoadingMore repeats a failed load-more. It is a no-op in any
// other phase.
func (m *Machine[T]) RetryLoadingMore() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.state.kind != loadMoreFailed {
		return
	}
	p := m.state
	m.transition(phase[T]{kind: awaitingLoadMore, view: p.view, count: p.count})
}

// Close cancels the current session and closes the result stream.
// Later triggers are ignored.
func (m *Machine[T]) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.sess.cancel()
	if m.stopWatch != nil {
		m.stopWatch()
	}
	m.cancelRoot()
	m.results.Close()
}

func (m *Machine[T]) newSession() *session {
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(m.root)
	ctx = context.WithValue(ctx, sessionKey{}, id)
	ctx = pslog.ContextWithLogger(ctx, m.log.With("session", id))
	return &session{id: id, ctx: ctx, cancel: cancel}
}

// transition installs next and runs whatever follows from it.
// Callers hold m.mu.
func (m *Machine[T]) transition(next phase[T]) {
	prev := m.state.kind
	m.state = next
	m.log.Trace("paging transition",
		"session", m.sess.id,
		"from", prev.String(),
		"to", next.kind.String(),
		"count", next.count,
	)
	if m.opts.observe != nil {
		m.opts.observe(Transition{Session: m.sess.id, From: prev.String(), To: next.kind.String(), Count: next.count})
	}
	m.settle()
}

// settle publishes the current phase and applies its automatic
// transitions. Callers hold m.mu.
func (m *Machine[T]) settle() {
	p := m.state
	switch p.kind {
	case awaitingInitialLoad, awaitingLoadMore:
		m.attach(p)
		m.begin(p)
	case positionBoundNotified:
		m.transition(phase[T]{kind: awaitingLoadMore, view: p.view, count: p.count})
	case initialLoadFailed, loadMoreFailed, dataLoaded:
		m.attach(p)
	case loading:
		// The previous projection stays attached until the answer lands.
	default:
		panic(fmt.Sprintf("paging: unknown phase %s", p.kind))
	}
}

// begin moves from an awaiting phase to loading and issues the request.
func (m *Machine[T]) begin(p phase[T]) {
	initial := p.kind == awaitingInitialLoad
	refresh := initial && p.refresh
	m.transition(phase[T]{kind: loading, view: p.view, count: p.count, initial: initial, refresh: refresh})

	m.requestID++
	go m.run(m.sess, m.requestID, p.count+m.pageSize, refresh)
}

func (m *Machine[T]) run(sess *session, id uint64, target int, refresh bool) {
	if m.opts.timeout <= 0 {
		m.complete(sess, id, m.request(sess.ctx, target, refresh))
		return
	}

	ctx, cancel := context.WithTimeout(sess.ctx, m.opts.timeout)
	defer cancel()
	done := make(chan Answer[T], 1)
	go func() { done <- m.request(ctx, target, refresh) }()

	select {
	case answer := <-done:
		m.complete(sess, id, answer)
	case <-ctx.Done():
		if sess.ctx.Err() != nil {
			return
		}
		m.complete(sess, id, Failure[T]{Cause: ctx.Err()})
	}
}

// complete applies the answer of request id if it still belongs to the
// current session and the machine is still waiting for it.
func (m *Machine[T]) complete(sess *session, id uint64, answer Answer[T]) {
	switch a := answer.(type) {
	case Success[T]:
		if a.View == nil {
			panic("paging: success answer without a view")
		}
	case Failure[T]:
	default:
		panic(fmt.Sprintf("paging: unexpected answer %T", answer))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.state
	if m.closed || sess != m.sess || id != m.requestID || cur.kind != loading {
		m.log.Debug("paging dropped stale answer", "session", sess.id, "request", id)
		return
	}

	switch a := answer.(type) {
	case Success[T]:
		m.transition(phase[T]{kind: dataLoaded, view: a.View, count: cur.count + m.pageSize, initial: cur.initial})
	case Failure[T]:
		if cur.initial {
			m.transition(phase[T]{kind: initialLoadFailed, view: cur.view, count: cur.count, refresh: cur.refresh, cause: a.Cause})
		} else {
			m.transition(phase[T]{kind: loadMoreFailed, view: cur.view, count: cur.count, cause: a.Cause})
		}
	}
}

// attach makes p the projected phase: it publishes p's current result
// and follows p's view until another phase is attached.
func (m *Machine[T]) attach(p phase[T]) {
	if m.stopWatch != nil {
		m.stopWatch()
	}
	m.epoch++
	epoch := m.epoch
	m.publish(project(p, p.view.Current(), m.opts.refreshProjection))

	ctx, cancel := context.WithCancel(m.root)
	m.stopWatch = cancel
	updates := p.view.Watch(ctx)
	go func() {
		for data := range updates {
			m.mu.Lock()
			if m.epoch == epoch && !m.closed {
				m.publish(project(p, data, m.opts.refreshProjection))
			}
			m.mu.Unlock()
		}
	}()
}

// publish emits r unless it equals the last emitted result.
func (m *Machine[T]) publish(r PagedResult[T]) {
	if m.results.Current().Equal(r) {
		return
	}
	m.results.Publish(r)
}

// cumulativeCount returns the count of the current phase.
func (m *Machine[T]) cumulativeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.count
}
