// Package github is a minimal client for the GitHub REST API's
// repository listing, used as the remote page source.
package github

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/klauspost/compress/gzip"
	"pkt.systems/pslog"

	"github.com/pagewise/pagewise/internal/observability"
	"github.com/pagewise/pagewise/internal/version"
)

const (
	// DefaultBaseURL is the public GitHub API.
	DefaultBaseURL = "https://api.github.com"

	// MaxResponseBytes caps a decoded response body.
	MaxResponseBytes = 10 << 20

	defaultMaxRetries = 3
	defaultBackoff    = 500 * time.Millisecond
	maxJitter         = 100 * time.Millisecond
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Options configures a Client. Zero values take defaults.
type Options struct {
	BaseURL      string
	Token        string
	HTTPClient   *http.Client
	Hooks        observability.Hooks
	MaxRetries   int
	RetryBackoff time.Duration
}

// Client lists repositories.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	hooks      observability.Hooks
	maxRetries int
	backoff    time.Duration
	etags      *etagCache
	now        func() time.Time
}

// NewClient returns a client for opts.
func NewClient(opts Options) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		token:      opts.Token,
		httpClient: opts.HTTPClient,
		hooks:      opts.Hooks,
		maxRetries: opts.MaxRetries,
		backoff:    opts.RetryBackoff,
		etags:      newETagCache(),
		now:        time.Now,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	if c.hooks == nil {
		c.hooks = observability.NoopHooks{}
	}
	if c.maxRetries <= 0 {
		c.maxRetries = defaultMaxRetries
	}
	if c.backoff <= 0 {
		c.backoff = defaultBackoff
	}
	return c
}

// Host is the API host, used to key resilience state.
func (c *Client) Host() string {
	u, err := url.Parse(c.baseURL)
	if err != nil || u.Host == "" {
		return c.baseURL
	}
	return u.Host
}

// ListUserRepos fetches one page of user's public repositories.
func (c *Client) ListUserRepos(ctx context.Context, user string, page, perPage int) ([]Repo, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))
	u := c.baseURL + "/users/" + url.PathEscape(user) + "/repos?" + q.Encode()

	body, err := c.get(ctx, u)
	if err != nil {
		return nil, err
	}

	var wire []repoResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("%w: decode repositories: %v", ErrAPI, err)
	}
	repos := make([]Repo, len(wire))
	for i, r := range wire {
		repos[i] = r.toRepo()
	}
	return repos, nil
}

// get performs a GET with retries on gateway and network errors.
func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		body, err := c.do(ctx, u, attempt)
		if err == nil {
			return body, nil
		}
		if !retryable(err) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
		if attempt == c.maxRetries {
			break
		}

		info := observability.RequestInfo{Method: http.MethodGet, URL: u, Attempt: attempt + 1}
		c.hooks.OnRetry(ctx, info, attempt+1, err)
		pslog.Ctx(ctx).Debug("retrying request", "attempt", attempt+1, "err", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.backoffDelay(attempt)):
		}
	}
	return nil, fmt.Errorf("request failed after %d attempts: %w", c.maxRetries, lastErr)
}

func retryable(err error) bool {
	if errors.Is(err, ErrNetwork) {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Retryable()
}

func (c *Client) backoffDelay(attempt int) time.Duration {
	return c.backoff*time.Duration(1<<(attempt-1)) + rand.N(maxJitter)
}

func (c *Client) do(ctx context.Context, u string, attempt int) (body []byte, err error) {
	info := observability.RequestInfo{Method: http.MethodGet, URL: u, Attempt: attempt}
	ctx = c.hooks.OnRequestStart(ctx, info)
	start := time.Now()
	result := observability.RequestResult{}
	defer func() {
		result.Duration = time.Since(start)
		result.Error = err
		result.Retryable = err != nil && retryable(err)
		c.hooks.OnRequestEnd(ctx, info, result)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	cached, hasCached := c.etags.get(u)
	if hasCached {
		req.Header.Set("If-None-Match", cached.etag)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	defer resp.Body.Close()
	result.StatusCode = resp.StatusCode

	switch {
	case resp.StatusCode == http.StatusNotModified && hasCached:
		result.FromCache = true
		return cached.body, nil

	case resp.StatusCode == http.StatusOK:
		body, err := readBody(resp)
		if err != nil {
			return nil, err
		}
		if etag := resp.Header.Get("ETag"); etag != "" {
			c.etags.put(u, etag, body)
		}
		return body, nil
	}

	if rl := rateLimitFrom(resp, c.now()); rl != nil {
		return nil, rl
	}
	return nil, &APIError{StatusCode: resp.StatusCode, Message: errorMessage(resp)}
}

// readBody decodes a gzip body when the server sent one and enforces
// MaxResponseBytes on the decoded size.
func readBody(resp *http.Response) ([]byte, error) {
	var r io.Reader = resp.Body
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: gzip: %v", ErrAPI, err)
		}
		defer zr.Close()
		r = zr
	}
	body, err := io.ReadAll(io.LimitReader(r, MaxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	if len(body) > MaxResponseBytes {
		return nil, fmt.Errorf("%w: response exceeds %d bytes", ErrAPI, MaxResponseBytes)
	}
	return body, nil
}

func errorMessage(resp *http.Response) string {
	body, err := readBody(resp)
	if err != nil {
		return ""
	}
	var payload struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) != nil {
		return ""
	}
	return payload.Message
}

type etagEntry struct {
	etag string
	body []byte
}

// etagCache remembers the last body per URL for conditional requests.
type etagCache struct {
	mu      sync.Mutex
	entries map[string]etagEntry
}

func newETagCache() *etagCache {
	return &etagCache{entries: map[string]etagEntry{}}
}

func (c *etagCache) get(u string) (etagEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[u]
	return e, ok
}

func (c *etagCache) put(u, etag string, body []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[u] = etagEntry{etag: etag, body: body}
}
