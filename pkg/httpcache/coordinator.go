package httpcache

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/singleflight"
)

// Option configures a Coordinator
type Option func(*Coordinator)

// WithLogger sets the coordinator logger
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics sets the metrics sink, replacing the one created from Config
func WithMetrics(m *Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithRefreshFailureHandler registers fn to run when a token refresh fails.
// It is where a login redirect is wired in.
func WithRefreshFailureHandler(fn func(ctx context.Context, err error)) Option {
	return func(c *Coordinator) {
		c.onRefreshFailure = fn
	}
}

// Coordinator deduplicates GET requests and applies the token-refresh
// throttle and 401 retry policy to every call. It is safe for concurrent use.
type Coordinator struct {
	fetcher   Fetcher
	refresher Refresher
	cfg       Config
	logger    *slog.Logger
	metrics   *Metrics
	now       func() time.Time

	onRefreshFailure func(ctx context.Context, err error)

	mu            sync.Mutex
	entries       map[Key]*entry
	lastRefresh   time.Time
	refreshFailed bool

	flight singleflight.Group
}

// New creates a Coordinator. refresher may be nil when credentials never
// need renewing. A zero Config is replaced by DefaultConfig. Any other Config
// is used as given, booleans included, except that invalid durations fall
// back to their defaults.
func New(fetcher Fetcher, refresher Refresher, cfg Config, opts ...Option) *Coordinator {
	if cfg == (Config{}) {
		cfg = DefaultConfig()
	}
	if cfg.RefreshWindow <= 0 {
		cfg.RefreshWindow = DefaultConfig().RefreshWindow
	}
	if cfg.RefreshTimeout < 0 {
		cfg.RefreshTimeout = DefaultConfig().RefreshTimeout
	}
	c := &Coordinator{
		fetcher:   fetcher,
		refresher: refresher,
		cfg:       cfg,
		logger:    slog.Default(),
		now:       time.Now,
		entries:   make(map[Key]*entry),
	}
	if cfg.EnableMetrics {
		c.metrics = NewMetrics()
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Metrics returns the metrics sink, nil when metrics are disabled
func (c *Coordinator) Metrics() *Metrics {
	return c.metrics
}

// DoOptions control a cached request
type DoOptions struct {
	// Force bypasses a completed or in-flight entry and replaces it
	Force bool
}

type entry struct {
	done        chan struct{}
	resp        *Response
	err         error
	fingerprint uint64
}

func newEntry() *entry {
	return &entry{done: make(chan struct{})}
}

func (e *entry) finish(resp *Response, err error) {
	if resp != nil {
		e.resp = resp.Clone()
		e.fingerprint = xxhash.Sum64(resp.Body)
	}
	e.err = err
	close(e.done)
}

func (e *entry) completed() bool {
	select {
	case <-e.done:
		return e.err == nil
	default:
		return false
	}
}

// wait blocks until the entry completes or ctx ends. Leaving early does not
// cancel the shared request.
func (e *entry) wait(ctx context.Context) (*Response, error) {
	select {
	case <-e.done:
		if e.err != nil {
			return nil, e.err
		}
		return e.resp.Clone(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Do performs a cached GET-style request for key.
//
// The first caller for a key issues req; concurrent and later callers share
// its outcome and receive copies of the response until the entry is forced
// or discarded. A transport error removes the entry and is returned to every
// caller sharing it. The shared request runs under the first caller's ctx.
func (c *Coordinator) Do(ctx context.Context, key Key, req *Request, opts DoOptions) (*Response, error) {
	refreshed := c.refreshIfDue(ctx)

	c.mu.Lock()
	prev, exists := c.entries[key]
	if exists && !opts.Force {
		c.mu.Unlock()
		c.metrics.RecordCacheHit()
		if c.cfg.LogCacheHits {
			c.logger.Debug("request served from cache", "key", key.String())
		}
		resp, err := prev.wait(ctx)
		if err != nil {
			return nil, err
		}
		resp.Cached = true
		return resp, nil
	}
	e := newEntry()
	c.entries[key] = e
	c.mu.Unlock()
	c.metrics.RecordCacheMiss()

	resp, err := c.send(ctx, req, refreshed)

	c.mu.Lock()
	if c.entries[key] == e && (err != nil || resp.StatusCode == http.StatusUnauthorized) {
		delete(c.entries, key)
	}
	c.mu.Unlock()

	if err != nil {
		e.finish(nil, err)
		return nil, err
	}

	e.finish(resp, nil)
	if exists && prev.completed() && prev.resp.StatusCode == resp.StatusCode && prev.fingerprint == e.fingerprint {
		resp.Unchanged = true
		c.metrics.RecordUnchanged()
		c.logger.Debug("forced refetch unchanged", "key", key.String())
	}
	return resp, nil
}

// Send performs an uncached request, typically a mutation, with the same
// refresh throttle and 401 policy as Do
func (c *Coordinator) Send(ctx context.Context, req *Request) (*Response, error) {
	refreshed := c.refreshIfDue(ctx)
	return c.send(ctx, req, refreshed)
}

// send issues req and applies the 401 policy: the first unauthorized response
// triggers a refresh, unless this call already refreshed, and one retry. A
// second unauthorized response is returned as is.
func (c *Coordinator) send(ctx context.Context, req *Request, refreshed bool) (*Response, error) {
	resp, err := c.fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || !c.cfg.RetryUnauthorized {
		return resp, nil
	}

	c.metrics.RecordUnauthorized()
	c.logger.Warn("request unauthorized, retrying once", "method", req.Method, "url", req.URL, "refreshed", refreshed)
	if !refreshed {
		c.forceRefresh(ctx)
	}

	c.metrics.RecordRetry()
	resp, err = c.fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	resp.Retried = true
	if resp.StatusCode == http.StatusUnauthorized {
		c.metrics.RecordUnauthorized()
		c.logger.Warn("request unauthorized after retry", "method", req.Method, "url", req.URL)
	}
	return resp, nil
}

func (c *Coordinator) fetch(ctx context.Context, req *Request) (*Response, error) {
	start := c.now()
	resp, err := c.fetcher.Fetch(ctx, req)
	if err == nil && resp == nil {
		err = ErrNilResponse
	}
	c.metrics.RecordRequest(c.now().Sub(start), err)
	if err != nil {
		c.logger.Debug("request failed", "method", req.Method, "url", req.URL, "error", err)
		return nil, err
	}
	c.logger.Debug("request completed", "method", req.Method, "url", req.URL, "status", resp.StatusCode)
	return resp, nil
}

// Forget discards the entry for key. An in-flight request still completes
// for the callers already waiting on it.
func (c *Coordinator) Forget(key Key) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Entries returns the number of pending and completed entries
func (c *Coordinator) Entries() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Reset drops every entry and forgets the last refresh
func (c *Coordinator) Reset() {
	c.mu.Lock()
	c.entries = make(map[Key]*entry)
	c.lastRefresh = time.Time{}
	c.refreshFailed = false
	c.mu.Unlock()
	c.logger.Debug("request cache reset")
}
