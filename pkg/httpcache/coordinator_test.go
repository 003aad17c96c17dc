package httpcache_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scoutsense/entitycache/pkg/httpcache"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type counter struct {
	calls atomic.Int32
}

func (c *counter) refresher(ok bool, err error) httpcache.RefreshFunc {
	return func(context.Context) (bool, error) {
		c.calls.Add(1)
		return ok, err
	}
}

func respond(status int, body string) *httpcache.Response {
	return &httpcache.Response{StatusCode: status, Header: http.Header{}, Body: []byte(body)}
}

// sequence returns a fetcher answering with responses in order, repeating the last one
func sequence(calls *atomic.Int32, responses ...*httpcache.Response) httpcache.FetchFunc {
	return func(context.Context, *httpcache.Request) (*httpcache.Response, error) {
		n := int(calls.Add(1)) - 1
		if n >= len(responses) {
			n = len(responses) - 1
		}
		return responses[n].Clone(), nil
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newCoordinator(f httpcache.Fetcher, r httpcache.Refresher, clk *clock, opts ...httpcache.Option) *httpcache.Coordinator {
	opts = append([]httpcache.Option{httpcache.WithClock(clk.Now), httpcache.WithLogger(quietLogger())}, opts...)
	return httpcache.New(f, r, httpcache.DefaultConfig(), opts...)
}

var (
	userKey = httpcache.Key{Scope: "user", URL: "/1/users/1"}
	userReq = &httpcache.Request{Method: http.MethodGet, URL: "/1/users/1"}
)

func TestCoordinator_SingleInFlightRequest(t *testing.T) {
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	fetcher := httpcache.FetchFunc(func(ctx context.Context, req *httpcache.Request) (*httpcache.Response, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return respond(200, `{"id":1}`), nil
	})
	c := newCoordinator(fetcher, nil, newClock())

	const callers = 8
	results := make([]*httpcache.Response, callers)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		resp, err := c.Do(context.Background(), userKey, userReq, httpcache.DoOptions{})
		assert.NoError(t, err)
		results[0] = resp
	}()
	<-started
	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := c.Do(context.Background(), userKey, userReq, httpcache.DoOptions{})
			assert.NoError(t, err)
			results[i] = resp
		}(i)
	}
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	cached := 0
	for _, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, `{"id":1}`, string(r.Body))
		if r.Cached {
			cached++
		}
	}
	assert.Equal(t, callers-1, cached)

	// callers get independent copies
	results[1].Body[0] = 'X'
	assert.Equal(t, `{"id":1}`, string(results[2].Body))
}

func TestCoordinator_CompletedEntryAndForce(t *testing.T) {
	var calls atomic.Int32
	fetcher := sequence(&calls, respond(200, `{"id":1}`), respond(200, `{"id":1}`), respond(200, `{"id":1,"name":"x"}`))
	c := newCoordinator(fetcher, nil, newClock())
	ctx := context.Background()

	first, err := c.Do(ctx, userKey, userReq, httpcache.DoOptions{})
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := c.Do(ctx, userKey, userReq, httpcache.DoOptions{})
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, int32(1), calls.Load())

	forced, err := c.Do(ctx, userKey, userReq, httpcache.DoOptions{Force: true})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.True(t, forced.Unchanged)

	changed, err := c.Do(ctx, userKey, userReq, httpcache.DoOptions{Force: true})
	require.NoError(t, err)
	assert.False(t, changed.Unchanged)
	assert.Equal(t, `{"id":1,"name":"x"}`, string(changed.Body))

	other := httpcache.Key{Scope: "product", URL: userKey.URL}
	_, err = c.Do(ctx, other, userReq, httpcache.DoOptions{})
	require.NoError(t, err)
	assert.Equal(t, int32(4), calls.Load(), "keys differ by scope")
}

func TestCoordinator_TransportErrorRemovesEntry(t *testing.T) {
	var calls atomic.Int32
	boom := errors.New("connection refused")
	fetcher := httpcache.FetchFunc(func(context.Context, *httpcache.Request) (*httpcache.Response, error) {
		if calls.Add(1) == 1 {
			return nil, boom
		}
		return respond(200, `{}`), nil
	})
	c := newCoordinator(fetcher, nil, newClock())

	_, err := c.Do(context.Background(), userKey, userReq, httpcache.DoOptions{})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, c.Entries())

	resp, err := c.Do(context.Background(), userKey, userReq, httpcache.DoOptions{})
	require.NoError(t, err)
	assert.False(t, resp.Cached)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCoordinator_NilResponse(t *testing.T) {
	fetcher := httpcache.FetchFunc(func(context.Context, *httpcache.Request) (*httpcache.Response, error) {
		return nil, nil
	})
	c := newCoordinator(fetcher, nil, newClock())

	_, err := c.Send(context.Background(), userReq)
	assert.ErrorIs(t, err, httpcache.ErrNilResponse)
}

func TestCoordinator_RefreshThrottle(t *testing.T) {
	var calls atomic.Int32
	var refreshes counter
	clk := newClock()
	c := newCoordinator(sequence(&calls, respond(200, `{}`)), refreshes.refresher(true, nil), clk)
	ctx := context.Background()

	_, err := c.Send(ctx, userReq)
	require.NoError(t, err)
	assert.Equal(t, int32(1), refreshes.calls.Load(), "first call refreshes")
	assert.Equal(t, clk.Now(), c.LastRefresh())

	clk.Advance(29 * time.Minute)
	_, err = c.Send(ctx, userReq)
	require.NoError(t, err)
	assert.Equal(t, int32(1), refreshes.calls.Load(), "inside the window")

	clk.Advance(2 * time.Minute)
	_, err = c.Do(ctx, userKey, userReq, httpcache.DoOptions{})
	require.NoError(t, err)
	assert.Equal(t, int32(2), refreshes.calls.Load(), "window elapsed")

	c.SetLastRefresh(clk.Now().Add(-24 * time.Hour))
	_, err = c.Do(ctx, userKey, userReq, httpcache.DoOptions{})
	require.NoError(t, err)
	assert.Equal(t, int32(3), refreshes.calls.Load(), "cached reads still pass the throttle")
}

func TestCoordinator_MarkRefreshed(t *testing.T) {
	var calls atomic.Int32
	var refreshes counter
	clk := newClock()
	c := newCoordinator(sequence(&calls, respond(200, `{}`)), refreshes.refresher(true, nil), clk)

	c.MarkRefreshed()
	assert.Equal(t, clk.Now(), c.LastRefresh())

	_, err := c.Send(context.Background(), userReq)
	require.NoError(t, err)
	assert.Zero(t, refreshes.calls.Load(), "a fresh login skips the first refresh")
}

func TestCoordinator_ConcurrentCallersRefreshOnce(t *testing.T) {
	var calls atomic.Int32
	var refreshes counter
	c := newCoordinator(sequence(&calls, respond(200, `{}`)), refreshes.refresher(true, nil), newClock())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Send(context.Background(), userReq)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), refreshes.calls.Load())
	assert.Equal(t, int32(16), calls.Load())
}

func TestCoordinator_UnauthorizedRetriesOnce(t *testing.T) {
	t.Run("refresh already done by the same call", func(t *testing.T) {
		var calls atomic.Int32
		var refreshes counter
		fetcher := sequence(&calls, respond(401, `{"code":"unauthorized","message":"Unauthorized"}`), respond(200, `{"id":1}`))
		c := newCoordinator(fetcher, refreshes.refresher(true, nil), newClock())

		resp, err := c.Do(context.Background(), userKey, userReq, httpcache.DoOptions{})
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
		assert.True(t, resp.Retried)
		assert.Equal(t, int32(1), refreshes.calls.Load())
		assert.Equal(t, int32(2), calls.Load())

		cached, err := c.Do(context.Background(), userKey, userReq, httpcache.DoOptions{})
		require.NoError(t, err)
		assert.True(t, cached.Cached)
		assert.Equal(t, `{"id":1}`, string(cached.Body))
	})

	t.Run("refresh inside the window", func(t *testing.T) {
		var calls atomic.Int32
		var refreshes counter
		clk := newClock()
		fetcher := sequence(&calls, respond(401, `{}`), respond(200, `{"id":1}`))
		c := newCoordinator(fetcher, refreshes.refresher(true, nil), clk)
		c.SetLastRefresh(clk.Now().Add(-time.Minute))

		resp, err := c.Send(context.Background(), &httpcache.Request{Method: http.MethodPost, URL: "/1/users"})
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
		assert.Equal(t, int32(1), refreshes.calls.Load(), "the 401 forces a refresh")
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("second 401 is returned", func(t *testing.T) {
		var calls atomic.Int32
		var refreshes counter
		c := newCoordinator(sequence(&calls, respond(401, `{}`)), refreshes.refresher(true, nil), newClock())

		resp, err := c.Do(context.Background(), userKey, userReq, httpcache.DoOptions{})
		require.NoError(t, err)
		assert.Equal(t, 401, resp.StatusCode)
		assert.Equal(t, int32(2), calls.Load())
		assert.Zero(t, c.Entries(), "unauthorized responses are not kept")

		snap := c.Metrics().GetSnapshot()
		assert.Equal(t, uint64(2), snap.Unauthorized)
		assert.Equal(t, uint64(1), snap.Retries)
	})
}

func TestCoordinator_RefreshFailureHandler(t *testing.T) {
	boom := errors.New("refresh endpoint down")
	cases := []struct {
		name    string
		ok      bool
		err     error
		wantErr error
	}{
		{name: "rejected", ok: false, wantErr: httpcache.ErrRefreshRejected},
		{name: "error", err: boom, wantErr: boom},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var calls atomic.Int32
			var refreshes counter
			var failures []error
			c := newCoordinator(
				sequence(&calls, respond(200, `{}`)),
				refreshes.refresher(tc.ok, tc.err),
				newClock(),
				httpcache.WithRefreshFailureHandler(func(_ context.Context, err error) {
					failures = append(failures, err)
				}),
			)

			resp, err := c.Send(context.Background(), userReq)
			require.NoError(t, err, "the call proceeds")
			assert.Equal(t, 200, resp.StatusCode)
			require.Len(t, failures, 1)
			assert.ErrorIs(t, failures[0], tc.wantErr)
			assert.Equal(t, uint64(1), c.Metrics().GetSnapshot().RefreshFailures)
		})
	}
}

type expiringRefresher struct {
	counter
	expired atomic.Bool
}

func (r *expiringRefresher) Refresh(context.Context) (bool, error) {
	r.calls.Add(1)
	r.expired.Store(false)
	return true, nil
}

func (r *expiringRefresher) CredentialsExpired(context.Context) bool {
	return r.expired.Load()
}

func TestCoordinator_ExpiredCredentialsRefreshInsideWindow(t *testing.T) {
	var calls atomic.Int32
	r := &expiringRefresher{}
	c := newCoordinator(sequence(&calls, respond(200, `{}`)), r, newClock())
	ctx := context.Background()

	_, err := c.Send(ctx, userReq)
	require.NoError(t, err)
	_, err = c.Send(ctx, userReq)
	require.NoError(t, err)
	assert.Equal(t, int32(1), r.calls.Load())

	r.expired.Store(true)
	_, err = c.Send(ctx, userReq)
	require.NoError(t, err)
	assert.Equal(t, int32(2), r.calls.Load())
}

// failingExpiredRefresher reports expired credentials and never renews them
type failingExpiredRefresher struct {
	counter
}

func (r *failingExpiredRefresher) Refresh(context.Context) (bool, error) {
	r.calls.Add(1)
	return false, nil
}

func (r *failingExpiredRefresher) CredentialsExpired(context.Context) bool {
	return true
}

func TestCoordinator_ExpiredCredentialsAfterFailedRefreshWaitForWindow(t *testing.T) {
	var calls, failures atomic.Int32
	clk := newClock()
	r := &failingExpiredRefresher{}
	c := newCoordinator(sequence(&calls, respond(200, `{}`)), r, clk,
		httpcache.WithRefreshFailureHandler(func(context.Context, error) {
			failures.Add(1)
		}),
	)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := c.Send(ctx, userReq)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), r.calls.Load())
	assert.Equal(t, int32(1), failures.Load())

	clk.Advance(31 * time.Minute)
	_, err := c.Send(ctx, userReq)
	require.NoError(t, err)
	assert.Equal(t, int32(2), r.calls.Load())

	c.MarkRefreshed()
	_, err = c.Send(ctx, userReq)
	require.NoError(t, err)
	assert.Equal(t, int32(3), r.calls.Load(), "a fresh login re-arms the expiry check")
}

func TestNew_InvalidDurationsFallBackToDefaults(t *testing.T) {
	var calls atomic.Int32
	var refreshes counter
	clk := newClock()
	c := httpcache.New(sequence(&calls, respond(200, `{}`)), refreshes.refresher(true, nil),
		httpcache.Config{RetryUnauthorized: true, RefreshTimeout: -time.Second},
		httpcache.WithClock(clk.Now), httpcache.WithLogger(quietLogger()))
	ctx := context.Background()

	_, err := c.Send(ctx, userReq)
	require.NoError(t, err)
	clk.Advance(time.Minute)
	_, err = c.Send(ctx, userReq)
	require.NoError(t, err)

	assert.Equal(t, int32(1), refreshes.calls.Load(), "the default window applies")
	assert.Nil(t, c.Metrics(), "booleans are used as given")
}

func TestCoordinator_WaiterContextDoesNotCancelSharedRequest(t *testing.T) {
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	fetcher := httpcache.FetchFunc(func(ctx context.Context, _ *httpcache.Request) (*httpcache.Response, error) {
		calls.Add(1)
		close(started)
		<-release
		return respond(200, `{"id":1}`), ctx.Err()
	})
	c := newCoordinator(fetcher, nil, newClock())

	done := make(chan *httpcache.Response)
	go func() {
		resp, err := c.Do(context.Background(), userKey, userReq, httpcache.DoOptions{})
		assert.NoError(t, err)
		done <- resp
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Do(ctx, userKey, userReq, httpcache.DoOptions{})
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	resp := <-done
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCoordinator_ResetAndForget(t *testing.T) {
	var calls atomic.Int32
	var refreshes counter
	c := newCoordinator(sequence(&calls, respond(200, `{}`)), refreshes.refresher(true, nil), newClock())
	ctx := context.Background()

	_, err := c.Do(ctx, userKey, userReq, httpcache.DoOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, c.Entries())

	c.Forget(userKey)
	assert.Zero(t, c.Entries())

	_, err = c.Do(ctx, userKey, userReq, httpcache.DoOptions{})
	require.NoError(t, err)
	c.Reset()
	assert.Zero(t, c.Entries())
	assert.True(t, c.LastRefresh().IsZero())

	_, err = c.Do(ctx, userKey, userReq, httpcache.DoOptions{})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, int32(2), refreshes.calls.Load(), "reset makes the next call refresh")
}

func TestCoordinator_Metrics(t *testing.T) {
	var calls atomic.Int32
	c := newCoordinator(sequence(&calls, respond(200, `{}`)), nil, newClock())
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := c.Do(ctx, userKey, userReq, httpcache.DoOptions{})
		require.NoError(t, err)
	}

	snap := c.Metrics().GetSnapshot()
	assert.Equal(t, uint64(3), snap.CacheHits)
	assert.Equal(t, uint64(1), snap.CacheMisses)
	assert.Equal(t, uint64(1), snap.Requests)
	assert.InDelta(t, 75.0, snap.CacheHitRate, 0.001)

	c.Metrics().Reset()
	assert.Equal(t, httpcache.MetricsSnapshot{}, c.Metrics().GetSnapshot())
}

func TestCoordinator_MetricsDisabled(t *testing.T) {
	var calls atomic.Int32
	cfg := httpcache.DefaultConfig()
	cfg.EnableMetrics = false
	c := httpcache.New(sequence(&calls, respond(200, `{}`)), nil, cfg, httpcache.WithLogger(quietLogger()))

	_, err := c.Send(context.Background(), userReq)
	require.NoError(t, err)
	assert.Nil(t, c.Metrics())
	assert.Equal(t, httpcache.MetricsSnapshot{}, c.Metrics().GetSnapshot())
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, httpcache.DefaultConfig().Validate())
	assert.Equal(t, 30*time.Minute, httpcache.DefaultConfig().RefreshWindow)

	cfg := httpcache.DefaultConfig()
	cfg.RefreshWindow = 0
	assert.Error(t, cfg.Validate())

	cfg = httpcache.DefaultConfig()
	cfg.RefreshTimeout = -time.Second
	assert.Error(t, cfg.Validate())
}
