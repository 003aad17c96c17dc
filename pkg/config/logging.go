package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LoggingConfig selects the slog handler
type LoggingConfig struct {
	Level     string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format    string `json:"format" yaml:"format"` // text, json
	AddSource bool   `json:"add_source" yaml:"add_source"`
}

// DefaultLoggingConfig returns info-level text logging
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{Level: "info", Format: "text"}
}

// Validate checks level and format names
func (c LoggingConfig) Validate() error {
	if _, err := parseLevel(c.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Format) {
	case "", "text", "json":
		return nil
	default:
		return fmt.Errorf("unknown log format %q", c.Format)
	}
}

// NewLogger builds a logger writing to stderr
func NewLogger(c LoggingConfig) (*slog.Logger, error) {
	return NewLoggerTo(os.Stderr, c)
}

// NewLoggerTo builds a logger writing to w
func NewLoggerTo(w io.Writer, c LoggingConfig) (*slog.Logger, error) {
	level, err := parseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level, AddSource: c.AddSource}

	var handler slog.Handler
	switch strings.ToLower(c.Format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	case "", "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q", c.Format)
	}
	return slog.New(handler), nil
}

func parseLevel(s string) (slog.Level, error) {
	if s == "" {
		return slog.LevelInfo, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}
