// Package observability provides metrics collection and tracing for
// remote page fetches and paging transitions.
package observability

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pagewise/pagewise/internal/paging"
)

// RequestInfo describes an outgoing HTTP request.
type RequestInfo struct {
	Method  string
	URL     string
	Attempt int
}

// RequestResult describes how an HTTP request ended.
type RequestResult struct {
	StatusCode int
	Duration   time.Duration
	FromCache  bool // served from a 304 Not Modified revalidation
	Retryable  bool
	Error      error
}

// Hooks observes remote requests. Implementations must be safe for
// concurrent use.
type Hooks interface {
	OnRequestStart(ctx context.Context, info RequestInfo) context.Context
	OnRequestEnd(ctx context.Context, info RequestInfo, result RequestResult)
	OnRetry(ctx context.Context, info RequestInfo, attempt int, err error)
}

// NoopHooks ignores everything.
type NoopHooks struct{}

func (NoopHooks) OnRequestStart(ctx context.Context, _ RequestInfo) context.Context { return ctx }
func (NoopHooks) OnRequestEnd(context.Context, RequestInfo, RequestResult)          {}
func (NoopHooks) OnRetry(context.Context, RequestInfo, int, error)                  {}

// SessionMetrics aggregates metrics for an entire CLI session.
type SessionMetrics struct {
	StartTime      time.Time     `json:"start_time"`
	EndTime        time.Time     `json:"end_time"`
	TotalRequests  int           `json:"total_requests"`
	FailedRequests int           `json:"failed_requests"`
	CacheHits      int           `json:"cache_hits"`
	CacheMisses    int           `json:"cache_misses"`
	TotalRetries   int           `json:"total_retries"`
	TotalLatency   time.Duration `json:"total_latency_ns"`
	Transitions    int           `json:"transitions"`
	PagesLoaded    int           `json:"pages_loaded"`
	FailedLoads    int           `json:"failed_loads"`
	Sessions       int           `json:"sessions"`
}

// FormatParts returns the non-zero metrics as short phrases for a
// one-line summary.
func (m SessionMetrics) FormatParts() []string {
	var parts []string
	if m.TotalRequests > 0 {
		parts = append(parts, plural(m.TotalRequests, "request"))
		avg := m.TotalLatency / time.Duration(m.TotalRequests)
		parts = append(parts, fmt.Sprintf("avg %s", avg.Round(time.Millisecond)))
	}
	if m.CacheHits > 0 {
		parts = append(parts, fmt.Sprintf("%d cached", m.CacheHits))
	}
	if m.TotalRetries > 0 {
		parts = append(parts, plural(m.TotalRetries, "retry"))
	}
	if m.PagesLoaded > 0 {
		parts = append(parts, plural(m.PagesLoaded, "page"))
	}
	if m.FailedLoads > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", m.FailedLoads))
	}
	if !m.EndTime.IsZero() && !m.StartTime.IsZero() {
		parts = append(parts, m.EndTime.Sub(m.StartTime).Round(time.Millisecond).String())
	}
	return parts
}

func plural(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	if strings.HasSuffix(word, "y") {
		return fmt.Sprintf("%d %sies", n, strings.TrimSuffix(word, "y"))
	}
	return fmt.Sprintf("%d %ss", n, word)
}

// SessionCollector accumulates metrics across a CLI session.
// It is safe for concurrent use and uses counters instead of unbounded slices.
type SessionCollector struct {
	mu sync.Mutex

	startTime      time.Time
	totalRequests  int
	failedRequests int
	cacheHits      int
	cacheMisses    int
	totalRetries   int
	totalLatency   time.Duration
	transitions    int
	pagesLoaded    int
	failedLoads    int
	sessions       int
	lastSession    string
}

// NewSessionCollector creates a new SessionCollector.
func NewSessionCollector() *SessionCollector {
	return &SessionCollector{
		startTime: time.Now(),
	}
}

// RecordRequest records metrics for an HTTP request.
func (c *SessionCollector) RecordRequest(info RequestInfo, result RequestResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
	c.totalLatency += result.Duration
	if result.Error != nil {
		c.failedRequests++
	}
	if result.FromCache {
		c.cacheHits++
	} else {
		c.cacheMisses++
	}
}

// RecordRetry records a retry event.
func (c *SessionCollector) RecordRetry(RequestInfo, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRetries++
}

// RecordTransition records a paging phase change.
func (c *SessionCollector) RecordTransition(tr paging.Transition) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transitions++
	if tr.Session != c.lastSession {
		c.sessions++
		c.lastSession = tr.Session
	}
	switch tr.To {
	case "data_loaded":
		c.pagesLoaded++
	case "initial_load_failed", "load_more_failed":
		c.failedLoads++
	}
}

// Summary returns aggregated metrics for the session.
func (c *SessionCollector) Summary() SessionMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	return SessionMetrics{
		StartTime:      c.startTime,
		EndTime:        time.Now(),
		TotalRequests:  c.totalRequests,
		FailedRequests: c.failedRequests,
		CacheHits:      c.cacheHits,
		CacheMisses:    c.cacheMisses,
		TotalRetries:   c.totalRetries,
		TotalLatency:   c.totalLatency,
		Transitions:    c.transitions,
		PagesLoaded:    c.pagesLoaded,
		FailedLoads:    c.failedLoads,
		Sessions:       c.sessions,
	}
}

// Reset clears all collected metrics and resets the start time.
func (c *SessionCollector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.startTime = time.Now()
	c.totalRequests = 0
	c.failedRequests = 0
	c.cacheHits = 0
	c.cacheMisses = 0
	c.totalRetries = 0
	c.totalLatency = 0
	c.transitions = 0
	c.pagesLoaded = 0
	c.failedLoads = 0
	c.sessions = 0
	c.lastSession = ""
}
