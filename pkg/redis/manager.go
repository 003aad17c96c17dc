package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

// Key separator for consistent key generation
const cacheKeySeparator = ":"

// Manager manages the Redis connection and the key/value operations the
// token store needs
type Manager struct {
	config  *Config
	client  redis.UniversalClient
	metrics *Metrics
}

// NewManager creates a new Redis manager. A disabled config yields a manager
// whose operations return ErrDisabled.
func NewManager(config *Config) (*Manager, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid redis config: %w", err)
	}

	manager := &Manager{config: config}
	if config.EnableMetrics {
		manager.metrics = NewMetrics()
	}

	if err := manager.initializeClient(); err != nil {
		return nil, fmt.Errorf("failed to initialize redis client: %w", err)
	}

	return manager, nil
}

// NewManagerWithClient wraps an existing client
func NewManagerWithClient(client redis.UniversalClient, config *Config) *Manager {
	if config == nil {
		config = DefaultConfig()
	}
	config.Enabled = true
	m := &Manager{config: config, client: client}
	if config.EnableMetrics {
		m.metrics = NewMetrics()
	}
	return m
}

// initializeClient sets up the Redis client based on configuration
func (m *Manager) initializeClient() error {
	if !m.config.Enabled {
		return nil
	}

	switch {
	case m.config.IsClusterMode():
		m.client = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:           m.config.Cluster.Addresses,
			Username:        m.config.Cluster.Username,
			Password:        m.config.Cluster.Password,
			PoolSize:        m.config.PoolSize,
			MinIdleConns:    m.config.MinIdleConns,
			ConnMaxLifetime: m.config.MaxConnAge,
			PoolTimeout:     m.config.PoolTimeout,
			ConnMaxIdleTime: m.config.IdleTimeout,
			ReadTimeout:     m.config.ReadTimeout,
			WriteTimeout:    m.config.WriteTimeout,
			DialTimeout:     m.config.DialTimeout,
		})
	case m.config.URL != "":
		opts, err := redis.ParseURL(m.config.URL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		opts.PoolSize = m.config.PoolSize
		opts.MinIdleConns = m.config.MinIdleConns
		opts.ConnMaxLifetime = m.config.MaxConnAge
		opts.PoolTimeout = m.config.PoolTimeout
		opts.ConnMaxIdleTime = m.config.IdleTimeout
		opts.ReadTimeout = m.config.ReadTimeout
		opts.WriteTimeout = m.config.WriteTimeout
		opts.DialTimeout = m.config.DialTimeout
		m.client = redis.NewClient(opts)
	default:
		m.client = redis.NewClient(&redis.Options{
			Addr:            m.config.GetAddr(),
			Password:        m.config.Password,
			DB:              m.config.Database,
			PoolSize:        m.config.PoolSize,
			MinIdleConns:    m.config.MinIdleConns,
			ConnMaxLifetime: m.config.MaxConnAge,
			PoolTimeout:     m.config.PoolTimeout,
			ConnMaxIdleTime: m.config.IdleTimeout,
			ReadTimeout:     m.config.ReadTimeout,
			WriteTimeout:    m.config.WriteTimeout,
			DialTimeout:     m.config.DialTimeout,
		})
	}

	return nil
}

// Config returns the manager's configuration
func (m *Manager) Config() *Config {
	return m.config
}

// Close closes the Redis connection
func (m *Manager) Close() error {
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}

// Ping tests the Redis connection
// Returns nil if redis is disabled (not an error condition)
// Returns ErrConnectionFailed if ping fails
func (m *Manager) Ping(ctx context.Context) error {
	if !m.config.Enabled {
		return nil
	}
	if m.client == nil {
		return ErrClientNotInitialized
	}

	if err := m.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	return nil
}

// checkClient validates that redis is enabled and the client is initialized
func (m *Manager) checkClient() error {
	if !m.config.Enabled {
		return ErrDisabled
	}
	if m.client == nil {
		return ErrClientNotInitialized
	}
	return nil
}

// Key joins parts under the configured prefix: "<prefix>:tokens:default"
func (m *Manager) Key(parts ...string) string {
	return strings.Join(append([]string{m.config.KeyPrefix}, parts...), cacheKeySeparator)
}

// Get retrieves a raw value
func (m *Manager) Get(ctx context.Context, key string) ([]byte, error) {
	if err := m.checkClient(); err != nil {
		return nil, err
	}
	if key == "" {
		return nil, ErrInvalidKey
	}

	start := time.Now()
	val, err := m.client.Get(ctx, key).Bytes()
	m.metrics.RecordGet(time.Since(start))

	if errors.Is(err, redis.Nil) {
		m.metrics.RecordMiss()
		return nil, ErrKeyNotFound
	}
	if err != nil {
		m.metrics.RecordError()
		return nil, fmt.Errorf("redis get error: %w", err)
	}

	m.metrics.RecordHit()
	return val, nil
}

// SetWithTTL stores a raw value; a zero ttl keeps it until deleted
func (m *Manager) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := m.checkClient(); err != nil {
		return err
	}
	if key == "" {
		return ErrInvalidKey
	}

	start := time.Now()
	err := m.client.Set(ctx, key, value, ttl).Err()
	m.metrics.RecordSet(time.Since(start))
	if err != nil {
		m.metrics.RecordError()
		return fmt.Errorf("redis set error: %w", err)
	}
	return nil
}

// Delete removes keys
func (m *Manager) Delete(ctx context.Context, keys ...string) error {
	if err := m.checkClient(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	m.metrics.RecordDelete()
	if err := m.client.Del(ctx, keys...).Err(); err != nil {
		m.metrics.RecordError()
		return fmt.Errorf("redis delete error: %w", err)
	}
	return nil
}

// Exists checks if a key exists
func (m *Manager) Exists(ctx context.Context, key string) (bool, error) {
	if err := m.checkClient(); err != nil {
		return false, err
	}

	n, err := m.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// TTL returns the remaining time to live of key
func (m *Manager) TTL(ctx context.Context, key string) (time.Duration, error) {
	if err := m.checkClient(); err != nil {
		return 0, err
	}
	return m.client.TTL(ctx, key).Result()
}

// InvalidatePattern removes keys matching a pattern using SCAN instead of KEYS
// SCAN is non-blocking and production-safe, unlike KEYS which blocks the Redis server
func (m *Manager) InvalidatePattern(ctx context.Context, pattern string) (int, error) {
	if err := m.checkClient(); err != nil {
		return 0, err
	}

	var cursor uint64
	const scanBatchSize = 100
	deleted := 0

	for {
		batch, next, err := m.client.Scan(ctx, cursor, pattern, scanBatchSize).Result()
		if err != nil {
			return deleted, fmt.Errorf("failed to scan keys with pattern %s: %w", pattern, err)
		}

		if len(batch) > 0 {
			if err := m.client.Del(ctx, batch...).Err(); err != nil {
				return deleted, fmt.Errorf("failed to delete batch: %w", err)
			}
			deleted += len(batch)
			m.metrics.RecordInvalidation()
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return deleted, nil
}

// SetMsgpack stores a msgpack-encoded value
func (m *Manager) SetMsgpack(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := msgpack.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSerializationFailed, err)
	}
	return m.SetWithTTL(ctx, key, data, ttl)
}

// GetMsgpack retrieves and decodes a msgpack value
func (m *Manager) GetMsgpack(ctx context.Context, key string, target any) error {
	data, err := m.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := msgpack.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrSerializationFailed, err)
	}
	return nil
}

// GetMetrics returns current operation metrics
func (m *Manager) GetMetrics() MetricsSnapshot {
	return m.metrics.GetSnapshot()
}

// ResetMetrics resets all metrics counters
func (m *Manager) ResetMetrics() {
	m.metrics.Reset()
}
