package httpcache

import (
	"context"
	"time"
)

const refreshFlightKey = "refresh"

// LastRefresh returns when the last refresh was started, zero if never
func (c *Coordinator) LastRefresh() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRefresh
}

// SetLastRefresh overrides the throttle timestamp. A zero time makes the next
// call refresh.
func (c *Coordinator) SetLastRefresh(t time.Time) {
	c.mu.Lock()
	c.lastRefresh = t
	c.mu.Unlock()
}

// MarkRefreshed starts a new throttle window now, for credentials obtained
// outside the coordinator (a fresh login)
func (c *Coordinator) MarkRefreshed() {
	c.mu.Lock()
	c.lastRefresh = c.now()
	c.refreshFailed = false
	c.mu.Unlock()
}

// refreshIfDue refreshes when no refresh happened yet, the window elapsed, or
// the credentials report themselves expired. After a failed refresh, expired
// credentials wait for the window like everything else. The check and the
// timestamp update happen under one lock, so concurrent callers start one
// refresh.
func (c *Coordinator) refreshIfDue(ctx context.Context) bool {
	if c.refresher == nil {
		return false
	}
	expired := false
	if r, ok := c.refresher.(ExpiryReporter); ok {
		expired = r.CredentialsExpired(ctx)
	}

	c.mu.Lock()
	now := c.now()
	due := c.lastRefresh.IsZero() || now.Sub(c.lastRefresh) > c.cfg.RefreshWindow ||
		(expired && !c.refreshFailed)
	if due {
		c.lastRefresh = now
	}
	c.mu.Unlock()

	if !due {
		return false
	}
	c.refresh(ctx, "throttle")
	return true
}

func (c *Coordinator) forceRefresh(ctx context.Context) {
	if c.refresher == nil {
		return
	}
	c.mu.Lock()
	c.lastRefresh = c.now()
	c.mu.Unlock()
	c.refresh(ctx, "unauthorized")
}

// refresh runs the refresher once for all concurrent callers. Failures are
// logged and reported to the failure handler; the calling request proceeds.
func (c *Coordinator) refresh(ctx context.Context, reason string) bool {
	v, _, _ := c.flight.Do(refreshFlightKey, func() (any, error) {
		rctx := context.WithoutCancel(ctx)
		if c.cfg.RefreshTimeout > 0 {
			var cancel context.CancelFunc
			rctx, cancel = context.WithTimeout(rctx, c.cfg.RefreshTimeout)
			defer cancel()
		}

		ok, err := c.refresher.Refresh(rctx)
		if err == nil && !ok {
			err = ErrRefreshRejected
		}
		c.metrics.RecordRefresh(err == nil)
		c.mu.Lock()
		c.refreshFailed = err != nil
		c.mu.Unlock()
		if err != nil {
			c.logger.Warn("token refresh failed", "reason", reason, "error", err)
			if c.onRefreshFailure != nil {
				c.onRefreshFailure(ctx, err)
			}
			return false, nil
		}
		c.logger.Info("token refreshed", "reason", reason)
		return true, nil
	})
	ok, _ := v.(bool)
	return ok
}
