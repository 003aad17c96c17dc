package auth

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/oklog/ulid/v2"

	"github.com/scoutsense/entitycache/pkg/httpcache"
)

const (
	// DefaultRefreshPath is the token refresh endpoint
	DefaultRefreshPath = "/1/auth/refresh-tokens"

	// RequestIDHeader carries a per-request ULID
	RequestIDHeader = "X-Request-ID"

	defaultTimeout      = 30 * time.Second
	defaultExpiryLeeway = 30 * time.Second
	maxBodySize         = 32 << 20
)

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.HTTPClient = hc }
}

// WithRefreshPath overrides DefaultRefreshPath
func WithRefreshPath(path string) Option {
	return func(c *Client) { c.RefreshPath = path }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.Logger = l }
}

// WithExpiryLeeway treats tokens as expired this long before their exp claim
func WithExpiryLeeway(d time.Duration) Option {
	return func(c *Client) { c.ExpiryLeeway = d }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// Client sends API requests with the stored bearer token. It is the Fetcher,
// Refresher and ExpiryReporter of an httpcache.Coordinator.
type Client struct {
	BaseURL      string
	HTTPClient   *http.Client
	Tokens       TokenStore
	RefreshPath  string
	ExpiryLeeway time.Duration
	Logger       *slog.Logger

	now func() time.Time
}

var (
	_ httpcache.Fetcher        = (*Client)(nil)
	_ httpcache.Refresher      = (*Client)(nil)
	_ httpcache.ExpiryReporter = (*Client)(nil)
)

// NewClient creates a client for the API at baseURL
func NewClient(baseURL string, tokens TokenStore, opts ...Option) *Client {
	c := &Client{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		HTTPClient:   &http.Client{Timeout: defaultTimeout},
		Tokens:       tokens,
		RefreshPath:  DefaultRefreshPath,
		ExpiryLeeway: defaultExpiryLeeway,
		Logger:       slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.Tokens == nil {
		c.Tokens = NewMemoryStore(Tokens{})
	}
	return c
}

// Fetch sends req with JSON content type, the current bearer token and a
// request id. Non-2xx responses are returned, not treated as errors.
func (c *Client) Fetch(ctx context.Context, req *httpcache.Request) (*httpcache.Response, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.resolve(req.URL), body)
	if err != nil {
		return nil, fmt.Errorf("auth: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range req.Header {
		httpReq.Header[k] = append([]string(nil), v...)
	}
	if httpReq.Header.Get(RequestIDHeader) == "" {
		httpReq.Header.Set(RequestIDHeader, ulid.Make().String())
	}

	tokens, err := c.Tokens.Load(ctx)
	if err != nil && !IsNoTokens(err) {
		return nil, fmt.Errorf("auth: load tokens: %w", err)
	}
	if tokens.Access != "" {
		httpReq.Header.Set("Authorization", "Bearer "+tokens.Access)
	}

	resp, err := c.httpClient().Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("auth: read %s %s: %w", method, req.URL, err)
	}
	return &httpcache.Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       raw,
	}, nil
}

type refreshResponse struct {
	Access struct {
		Token   string `json:"token"`
		Expires string `json:"expires"`
	} `json:"access"`
	Refresh struct {
		Token   string `json:"token"`
		Expires string `json:"expires"`
	} `json:"refresh"`
}

// Refresh exchanges the refresh token for a new pair. A non-OK answer is
// reported as (false, nil) and leaves the stored tokens unchanged.
func (c *Client) Refresh(ctx context.Context) (bool, error) {
	tokens, err := c.Tokens.Load(ctx)
	if err != nil && !IsNoTokens(err) {
		return false, fmt.Errorf("auth: load tokens: %w", err)
	}
	if tokens.Refresh == "" {
		return false, ErrNoRefreshToken
	}

	req, err := httpcache.NewJSONRequest(http.MethodPost, c.RefreshPath, map[string]string{
		"refreshToken": tokens.Refresh,
	})
	if err != nil {
		return false, err
	}
	resp, err := c.Fetch(ctx, req)
	if err != nil {
		return false, err
	}
	if !resp.OK() {
		c.logger().Debug("refresh rejected", "status", resp.StatusCode)
		return false, nil
	}

	var body refreshResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidRefreshResponse, err)
	}
	if body.Access.Token == "" || body.Refresh.Token == "" {
		return false, ErrInvalidRefreshResponse
	}
	if err := c.Tokens.Save(ctx, Tokens{Access: body.Access.Token, Refresh: body.Refresh.Token}); err != nil {
		return false, fmt.Errorf("auth: save tokens: %w", err)
	}
	return true, nil
}

// CredentialsExpired reports whether the access token is missing or past its
// exp claim (minus the leeway) while a refresh token is available. Tokens
// that are not JWTs never count as expired.
func (c *Client) CredentialsExpired(ctx context.Context) bool {
	tokens, err := c.Tokens.Load(ctx)
	if err != nil || tokens.Refresh == "" {
		return false
	}
	if tokens.Access == "" {
		return true
	}
	exp, err := ExpiresAt(tokens.Access)
	if err != nil {
		return false
	}
	now := time.Now
	if c.now != nil {
		now = c.now
	}
	return !now().Add(c.ExpiryLeeway).Before(exp)
}

// Logout forgets the stored tokens
func (c *Client) Logout(ctx context.Context) error {
	return c.Tokens.Clear(ctx)
}

func (c *Client) resolve(url string) string {
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		return url
	}
	if !strings.HasPrefix(url, "/") {
		url = "/" + url
	}
	return c.BaseURL + url
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
