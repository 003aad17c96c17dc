// Package entitycache wires a normalized entity cache to an authenticated API:
// configuration, logging, token storage, the request coordinator and the
// entity store in one client.
package entitycache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/scoutsense/entitycache/pkg/auth"
	"github.com/scoutsense/entitycache/pkg/cache"
	"github.com/scoutsense/entitycache/pkg/config"
	"github.com/scoutsense/entitycache/pkg/httpcache"
	"github.com/scoutsense/entitycache/pkg/redis"
	"github.com/scoutsense/entitycache/pkg/repository"
	"github.com/scoutsense/entitycache/pkg/schema"
)

// Config represents the client configuration
type Config = config.Config

// LoadConfig reads a YAML file and ENTITYCACHE_* overrides
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return config.DefaultConfig()
}

// Option configures New
type Option func(*options)

type options struct {
	registry         *schema.Registry
	logger           *slog.Logger
	httpClient       *http.Client
	tokenStore       auth.TokenStore
	onSessionExpired func(ctx context.Context, err error)
}

// WithRegistry replaces the default entity registry
func WithRegistry(reg *schema.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// WithLogger replaces the logger built from the logging config
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithHTTPClient replaces the HTTP client of the auth transport
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// WithTokenStore replaces the configured token store
func WithTokenStore(s auth.TokenStore) Option {
	return func(o *options) { o.tokenStore = s }
}

// WithSessionExpired is called when a token refresh fails, the point where
// the user has to sign in again
func WithSessionExpired(fn func(ctx context.Context, err error)) Option {
	return func(o *options) { o.onSessionExpired = fn }
}

const defaultRedisPingTimeout = 5 * time.Second

// Client is the assembled entity cache
type Client struct {
	*cache.Cache

	auth   *auth.Client
	tokens auth.TokenStore
	redis  *redis.Manager
	logger *slog.Logger
}

// New validates cfg and assembles a client. Tokens live in Redis when the
// redis section is enabled and in memory otherwise.
func New(cfg *Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		var err error
		if logger, err = config.NewLogger(cfg.Logging); err != nil {
			return nil, err
		}
	}

	c := &Client{logger: logger}

	c.tokens = o.tokenStore
	if c.tokens == nil {
		if cfg.Redis.Enabled {
			redisCfg := cfg.Redis
			m, err := redis.NewManager(&redisCfg)
			if err != nil {
				return nil, err
			}
			if err := pingRedis(m, cfg.Redis.DialTimeout); err != nil {
				_ = m.Close()
				return nil, err
			}
			logger.Debug("redis token store ready", "session", cfg.API.Session)
			c.redis = m
			c.tokens = redis.NewTokenStore(m, cfg.API.Session)
		} else {
			c.tokens = auth.NewMemoryStore(auth.Tokens{})
		}
	}

	authOpts := []auth.Option{
		auth.WithRefreshPath(cfg.API.RefreshPath),
		auth.WithExpiryLeeway(cfg.API.ExpiryLeeway),
		auth.WithLogger(logger.With("component", "auth")),
	}
	if o.httpClient != nil {
		authOpts = append(authOpts, auth.WithHTTPClient(o.httpClient))
	} else {
		authOpts = append(authOpts, auth.WithHTTPClient(&http.Client{Timeout: cfg.API.Timeout}))
	}
	c.auth = auth.NewClient(cfg.API.BaseURL, c.tokens, authOpts...)

	coordOpts := []httpcache.Option{httpcache.WithLogger(logger.With("component", "httpcache"))}
	if o.onSessionExpired != nil {
		coordOpts = append(coordOpts, httpcache.WithRefreshFailureHandler(o.onSessionExpired))
	}
	coord := httpcache.New(c.auth, c.auth, cfg.HTTPCache, coordOpts...)

	reg := o.registry
	if reg == nil {
		reg = schema.Default()
	}
	c.Cache = cache.New(reg, coord, cache.WithLogger(logger.With("component", "cache")))
	return c, nil
}

func pingRedis(m *redis.Manager, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = defaultRedisPingTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return m.Ping(ctx)
}

// Stats holds the counters of the request coordinator and, when tokens live
// in Redis, of the Redis manager
type Stats struct {
	Requests httpcache.MetricsSnapshot
	Redis    *redis.MetricsSnapshot
}

// Stats returns the current counters. Requests is zero when metrics are
// disabled in the httpcache config.
func (c *Client) Stats() Stats {
	s := Stats{Requests: c.Coordinator().Metrics().GetSnapshot()}
	if c.redis != nil {
		snap := c.redis.GetMetrics()
		s.Redis = &snap
	}
	return s
}

// ResetStats zeroes every counter reported by Stats
func (c *Client) ResetStats() {
	c.Coordinator().Metrics().Reset()
	if c.redis != nil {
		c.redis.ResetMetrics()
	}
}

// Auth returns the authenticated transport
func (c *Client) Auth() *auth.Client {
	return c.auth
}

// Redis returns the Redis manager, nil when tokens are not kept in Redis
func (c *Client) Redis() *redis.Manager {
	return c.redis
}

// Logger returns the client logger
func (c *Client) Logger() *slog.Logger {
	return c.logger
}

// Login stores freshly issued tokens. They count as just refreshed, so the
// first request does not refresh them again.
func (c *Client) Login(ctx context.Context, tokens auth.Tokens) error {
	if err := c.tokens.Save(ctx, tokens); err != nil {
		return err
	}
	c.Coordinator().MarkRefreshed()
	return nil
}

// Logout forgets the tokens and every cached entity and request
func (c *Client) Logout(ctx context.Context) error {
	c.Clear()
	return c.tokens.Clear(ctx)
}

// Close releases the cache watchers and the Redis connection
func (c *Client) Close() error {
	var errs []error
	if err := c.Cache.Close(); err != nil {
		errs = append(errs, err)
	}
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewRepository returns a typed repository over the client's cache
func NewRepository[T any](c *Client, t schema.EntityType, opts ...repository.Option) *repository.GenericRepository[T] {
	return repository.New[T](c.Cache, t, opts...)
}
