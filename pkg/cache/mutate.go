package cache

import (
	"context"
	"fmt"
	"net/http"

	"github.com/scoutsense/entitycache/pkg/httpcache"
	"github.com/scoutsense/entitycache/pkg/normalize"
	"github.com/scoutsense/entitycache/pkg/schema"
)

// MutateOptions configure Create and Update
type MutateOptions struct {
	URL string
	// Method overrides POST for Create and PUT for Update
	Method string
	Data   any
	// Merge combines the response body with the currently stored entity of
	// the same id, which is nil when none is stored
	Merge  func(data any, current normalize.Entity) any
	Header http.Header
}

// Create sends opts.Data and stores the created entity
func (c *Cache) Create(ctx context.Context, t schema.EntityType, opts MutateOptions) (normalize.Entity, *httpcache.Response, error) {
	return c.mutate(ctx, t, http.MethodPost, opts)
}

// Update sends opts.Data and stores the updated entity
func (c *Cache) Update(ctx context.Context, t schema.EntityType, opts MutateOptions) (normalize.Entity, *httpcache.Response, error) {
	return c.mutate(ctx, t, http.MethodPut, opts)
}

// mutate sends the request and interprets the response:
//
//	empty body           -> ErrEmptyResponse
//	{code, message} body -> *APIError, store untouched
//	OK                   -> merged body stored, stored entity returned
//	anything else        -> ErrUnknown
func (c *Cache) mutate(ctx context.Context, t schema.EntityType, method string, opts MutateOptions) (normalize.Entity, *httpcache.Response, error) {
	if c.http == nil {
		return nil, nil, ErrNoCoordinator
	}
	if opts.Method != "" {
		method = opts.Method
	}

	req, err := httpcache.NewJSONRequest(method, opts.URL, opts.Data)
	if err != nil {
		return nil, nil, fmt.Errorf("cache: encode %s payload: %w", t, err)
	}
	for k, v := range opts.Header {
		req.Header[k] = append([]string(nil), v...)
	}

	resp, err := c.http.Send(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	if resp.Empty() {
		return nil, resp, ErrEmptyResponse
	}

	var body any
	if err := resp.JSON(&body); err != nil {
		if !resp.OK() {
			return nil, resp, ErrUnknown
		}
		return nil, resp, fmt.Errorf("cache: decode %s response: %w", t, err)
	}
	if body == nil {
		return nil, resp, ErrEmptyResponse
	}
	if apiErr, ok := asAPIError(resp.StatusCode, body); ok {
		c.logger.Debug("api error", "type", t, "method", method, "url", opts.URL, "status", resp.StatusCode, "code", apiErr.Code)
		return nil, resp, apiErr
	}
	if !resp.OK() {
		return nil, resp, ErrUnknown
	}

	id, hasID := bodyID(c.reg, t, body)
	formatted := body
	if opts.Merge != nil {
		var current normalize.Entity
		if hasID {
			current = c.Get(t, id)
		}
		formatted = opts.Merge(body, current)
	}
	if formatted == nil {
		return nil, resp, ErrUnknown
	}

	if err := c.Set(t, formatted); err != nil {
		return nil, resp, err
	}
	c.logger.Debug("mutation stored", "type", t, "method", method, "url", opts.URL, "id", id)
	if !hasID {
		return nil, resp, nil
	}
	return c.Get(t, id), resp, nil
}

func bodyID(reg *schema.Registry, t schema.EntityType, body any) (string, bool) {
	m, ok := body.(map[string]any)
	if !ok {
		return "", false
	}
	return normalize.EntityID(m, reg.IDField(t))
}
