package cache

import (
	"context"
	"fmt"
	"net/http"

	"github.com/scoutsense/entitycache/pkg/httpcache"
	"github.com/scoutsense/entitycache/pkg/schema"
)

// FetchOptions configure FetchData
type FetchOptions struct {
	URL string
	// Merge transforms the decoded body before it is stored
	Merge func(data any) any
	// Force bypasses the request cache
	Force  bool
	Header http.Header
}

// FetchData GETs opts.URL through the request cache and stores the decoded
// body as entities of type t.
//
// A response served from the request cache, or a forced refetch whose body did
// not change, is returned without writing to the store. A non-OK response is
// returned as is; inspect its status code. Transport errors are returned
// unwrapped.
func (c *Cache) FetchData(ctx context.Context, t schema.EntityType, opts FetchOptions) (*httpcache.Response, error) {
	if c.http == nil {
		return nil, ErrNoCoordinator
	}

	req := &httpcache.Request{Method: http.MethodGet, URL: opts.URL, Header: opts.Header.Clone()}
	key := httpcache.Key{Scope: t.String(), URL: opts.URL}

	resp, err := c.http.Do(ctx, key, req, httpcache.DoOptions{Force: opts.Force})
	if err != nil {
		return nil, err
	}
	if resp.Cached || resp.Unchanged || !resp.OK() || resp.Empty() {
		return resp, nil
	}

	var data any
	if err := resp.JSON(&data); err != nil {
		return resp, fmt.Errorf("cache: decode %s response: %w", t, err)
	}
	if opts.Merge != nil {
		data = opts.Merge(data)
	}
	if data == nil {
		return resp, nil
	}

	if err := c.Set(t, data); err != nil {
		return resp, err
	}
	c.logger.Debug("fetched into cache", "type", t, "url", opts.URL, "status", resp.StatusCode)
	return resp, nil
}
