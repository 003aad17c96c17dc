package httpcache

import (
	"fmt"
	"time"
)

// Config holds request coordination settings
type Config struct {
	// RefreshWindow is the minimum time between two throttled token refreshes
	RefreshWindow time.Duration `json:"refresh_window" yaml:"refresh_window"`

	// RefreshTimeout bounds a single refresh call, 0 means no bound
	RefreshTimeout time.Duration `json:"refresh_timeout" yaml:"refresh_timeout"`

	// RetryUnauthorized enables the refresh-and-retry-once policy for 401 responses
	RetryUnauthorized bool `json:"retry_unauthorized" yaml:"retry_unauthorized"`

	// EnableMetrics turns on request counters
	EnableMetrics bool `json:"enable_metrics" yaml:"enable_metrics"`

	// LogCacheHits logs every request served from an entry at debug level
	LogCacheHits bool `json:"log_cache_hits" yaml:"log_cache_hits"`
}

// DefaultConfig returns a coordinator configuration with sensible defaults
func DefaultConfig() Config {
	return Config{
		RefreshWindow:     30 * time.Minute,
		RefreshTimeout:    10 * time.Second,
		RetryUnauthorized: true,
		EnableMetrics:     true,
		LogCacheHits:      false,
	}
}

// Validate checks if the configuration is valid
func (c Config) Validate() error {
	if c.RefreshWindow <= 0 {
		return fmt.Errorf("refresh_window must be positive")
	}
	if c.RefreshTimeout < 0 {
		return fmt.Errorf("refresh_timeout must not be negative")
	}
	return nil
}
