// Package httpcache coordinates HTTP calls made on behalf of the entity cache.
//
// GET requests are deduplicated per Key: concurrent callers share one
// in-flight request and later callers are served the completed response until
// it is forced or discarded. Every call first passes the token-refresh
// throttle, and an unauthorized response is retried exactly once after a
// refresh.
package httpcache

import (
	"context"
	"net/http"

	"github.com/goccy/go-json"
)

// Key identifies a cached request: the entity type it loads and its URL
type Key struct {
	Scope string
	URL   string
}

func (k Key) String() string {
	return k.Scope + " " + k.URL
}

// Request is a transport-independent HTTP request
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// NewJSONRequest builds a request whose body is v encoded as JSON
func NewJSONRequest(method, url string, v any) (*Request, error) {
	req := &Request{Method: method, URL: url, Header: http.Header{}}
	if v == nil {
		return req, nil
	}
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	req.Body = body
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// Response is a fully read HTTP response. Bodies are buffered so responses
// can be handed to several callers.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte

	// Cached is set when the response came from an existing entry
	Cached bool
	// Unchanged is set on forced refetches whose body equals the previous one
	Unchanged bool
	// Retried is set when the response is the result of the 401 retry
	Retried bool
}

// OK reports whether the status code is 2xx
func (r *Response) OK() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Empty reports whether the body holds no JSON value
func (r *Response) Empty() bool {
	if r == nil {
		return true
	}
	for _, b := range r.Body {
		switch b {
		case ' ', '\t', '\r', '\n':
		default:
			return false
		}
	}
	return true
}

// JSON decodes the body into v
func (r *Response) JSON(v any) error {
	if r.Empty() {
		return ErrEmptyBody
	}
	return json.Unmarshal(r.Body, v)
}

// Clone returns a copy that shares nothing with r
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	out := *r
	out.Header = r.Header.Clone()
	if r.Body != nil {
		out.Body = append([]byte(nil), r.Body...)
	}
	return &out
}

// Fetcher performs one HTTP request
type Fetcher interface {
	Fetch(ctx context.Context, req *Request) (*Response, error)
}

// FetchFunc adapts a function to Fetcher
type FetchFunc func(ctx context.Context, req *Request) (*Response, error)

// Fetch calls f(ctx, req)
func (f FetchFunc) Fetch(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Refresher renews the credentials the Fetcher sends.
// It returns false when the server rejected the refresh.
type Refresher interface {
	Refresh(ctx context.Context) (bool, error)
}

// RefreshFunc adapts a function to Refresher
type RefreshFunc func(ctx context.Context) (bool, error)

// Refresh calls f(ctx)
func (f RefreshFunc) Refresh(ctx context.Context) (bool, error) {
	return f(ctx)
}

// ExpiryReporter is implemented by refreshers that know when their
// credentials expire. Expired credentials make a refresh due even inside the
// throttle window.
type ExpiryReporter interface {
	CredentialsExpired(ctx context.Context) bool
}
