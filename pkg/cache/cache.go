// Package cache is the public face of the entity cache: typed reads over the
// normalized store, and fetch/create/update calls that write API responses
// into it.
package cache

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/scoutsense/entitycache/pkg/httpcache"
	"github.com/scoutsense/entitycache/pkg/normalize"
	"github.com/scoutsense/entitycache/pkg/schema"
	"github.com/scoutsense/entitycache/pkg/store"
)

// Option configures a Cache
type Option func(*Cache)

// WithLogger sets the logger of the cache and of the store it creates
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithStore makes the cache use an existing store instead of creating one
func WithStore(s *store.Store) Option {
	return func(c *Cache) {
		c.store = s
	}
}

// Cache composes the entity store and the request coordinator
type Cache struct {
	reg    *schema.Registry
	store  *store.Store
	http   *httpcache.Coordinator
	logger *slog.Logger

	mu       sync.Mutex
	watchers map[uint64]func()
	nextID   uint64
	closed   atomic.Bool
}

// New creates a cache over reg. coord may be nil for a purely local cache;
// network operations then fail with ErrNoCoordinator.
func New(reg *schema.Registry, coord *httpcache.Coordinator, opts ...Option) *Cache {
	c := &Cache{
		reg:      reg,
		http:     coord,
		logger:   slog.Default(),
		watchers: make(map[uint64]func()),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.store == nil {
		c.store = store.New(reg, store.WithLogger(c.logger))
	}
	return c
}

// Registry returns the entity schema
func (c *Cache) Registry() *schema.Registry {
	return c.reg
}

// Store returns the underlying entity store
func (c *Cache) Store() *store.Store {
	return c.store
}

// Coordinator returns the request coordinator, nil for a local cache
func (c *Cache) Coordinator() *httpcache.Coordinator {
	return c.http
}

// Set writes data of type t into the store
func (c *Cache) Set(t schema.EntityType, data any) error {
	if c.closed.Load() {
		return ErrClosed
	}
	return c.store.Set(t, data)
}

// Get returns the denormalized entity, nil when absent
func (c *Cache) Get(t schema.EntityType, id string) normalize.Entity {
	return c.store.Get(t, id)
}

// GetAll returns every entity of type t, ordered by id
func (c *Cache) GetAll(t schema.EntityType) []normalize.Entity {
	return c.store.All(t)
}

// Remove deletes an entity; absent entities are ignored. No-op after Close.
func (c *Cache) Remove(t schema.EntityType, id string) {
	if c.closed.Load() {
		return
	}
	c.store.Remove(t, id)
}

// Clear empties every table and resets the request cache and refresh throttle.
// No-op after Close.
func (c *Cache) Clear() {
	if c.closed.Load() {
		return
	}
	c.store.Clear()
	if c.http != nil {
		c.http.Reset()
	}
}

// Close unsubscribes every watcher. Reads keep working; Set returns
// ErrClosed and Remove and Clear do nothing.
func (c *Cache) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.mu.Lock()
	watchers := c.watchers
	c.watchers = make(map[uint64]func())
	c.mu.Unlock()

	for _, unsubscribe := range watchers {
		unsubscribe()
	}
	c.logger.Debug("cache closed", "watchers", len(watchers))
	return nil
}

func (c *Cache) track(unsubscribe func()) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.watchers[id] = unsubscribe
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.watchers, id)
		c.mu.Unlock()
		unsubscribe()
	}
}
