// Package config loads the settings of an entity cache client from YAML and
// ENTITYCACHE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/scoutsense/entitycache/pkg/httpcache"
	"github.com/scoutsense/entitycache/pkg/redis"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "ENTITYCACHE_"

// Config is the full client configuration
type Config struct {
	API       APIConfig        `json:"api" yaml:"api"`
	HTTPCache httpcache.Config `json:"http_cache" yaml:"http_cache"`
	Redis     redis.Config     `json:"redis" yaml:"redis"`
	Logging   LoggingConfig    `json:"logging" yaml:"logging"`
}

// APIConfig locates the API and its token endpoint
type APIConfig struct {
	BaseURL      string        `json:"base_url" yaml:"base_url"`
	RefreshPath  string        `json:"refresh_path" yaml:"refresh_path"`
	Timeout      time.Duration `json:"timeout" yaml:"timeout"`
	ExpiryLeeway time.Duration `json:"expiry_leeway" yaml:"expiry_leeway"`
	// Session names the token record when tokens are kept in Redis
	Session string `json:"session" yaml:"session"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:      "http://localhost:3000",
			RefreshPath:  "/1/auth/refresh-tokens",
			Timeout:      30 * time.Second,
			ExpiryLeeway: 30 * time.Second,
			Session:      "default",
		},
		HTTPCache: httpcache.DefaultConfig(),
		Redis:     *redis.DefaultConfig(),
		Logging:   DefaultLoggingConfig(),
	}
}

// Validate checks every section
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.API.RefreshPath == "" {
		return fmt.Errorf("api.refresh_path is required")
	}
	if c.API.Timeout < 0 {
		return fmt.Errorf("api.timeout must not be negative")
	}
	if err := c.HTTPCache.Validate(); err != nil {
		return fmt.Errorf("http_cache: %w", err)
	}
	if err := c.Redis.Validate(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	return nil
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.API.BaseURL = getenv("API_BASE_URL", c.API.BaseURL)
	c.API.RefreshPath = getenv("API_REFRESH_PATH", c.API.RefreshPath)
	c.API.Session = getenv("SESSION", c.API.Session)
	c.Redis.URL = getenv("REDIS_URL", c.Redis.URL)
	c.Logging.Level = getenv("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getenv("LOG_FORMAT", c.Logging.Format)

	var errs []error
	var err error
	if c.API.Timeout, err = getenvDuration("API_TIMEOUT", c.API.Timeout); err != nil {
		errs = append(errs, err)
	}
	if c.HTTPCache.RefreshWindow, err = getenvDuration("REFRESH_WINDOW", c.HTTPCache.RefreshWindow); err != nil {
		errs = append(errs, err)
	}
	if c.Redis.Enabled, err = getenvBool("REDIS_ENABLED", c.Redis.Enabled); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func getenv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(EnvPrefix + key))
	if value == "" {
		return fallback
	}
	return value
}

func getenvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := getenv(key, "")
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback, fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
	}
	return d, nil
}

func getenvBool(key string, fallback bool) (bool, error) {
	value := getenv(key, "")
	if value == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fallback, fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
	}
	return b, nil
}
