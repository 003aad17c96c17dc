// Package store holds the normalized entity tables.
//
// Readers load an immutable Snapshot from an atomic pointer and never block.
// Writers are serialized by a mutex: each write builds the next snapshot
// copy-on-write from the current one and swaps it in as a whole.
package store

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/scoutsense/entitycache/pkg/normalize"
	"github.com/scoutsense/entitycache/pkg/schema"
)

// Listener receives the snapshot produced by a change
type Listener func(*Snapshot)

// Option configures a Store
type Option func(*Store)

// WithLogger sets the logger used for write diagnostics
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Store is the normalized entity store. It is safe for concurrent use.
type Store struct {
	reg    *schema.Registry
	logger *slog.Logger

	mu    sync.Mutex
	state atomic.Pointer[Snapshot]

	subMu   sync.RWMutex
	subs    map[uint64]Listener
	nextSub uint64
}

// New creates an empty store with one table per registered entity type
func New(reg *schema.Registry, opts ...Option) *Store {
	s := &Store{
		reg:    reg,
		logger: slog.Default(),
		subs:   make(map[uint64]Listener),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.state.Store(emptySnapshot(reg, 0))
	return s
}

// Registry returns the schema the store was built with
func (s *Store) Registry() *schema.Registry {
	return s.reg
}

// Snapshot returns the current state
func (s *Store) Snapshot() *Snapshot {
	return s.state.Load()
}

// Set normalizes data of type t and merges it into the tables.
//
// data may be an object, a slice of objects (each element is applied in order
// as its own set), nil (no-op), or any value that marshals to one of those.
// Either every element is applied or, on error, nothing is.
func (s *Store) Set(t schema.EntityType, data any) error {
	if !s.reg.Has(t) {
		return fmt.Errorf("%w: %s", ErrUnknownEntityType, t)
	}

	plain, err := normalize.Plain(data)
	if err != nil {
		return fmt.Errorf("store: convert %s payload: %w", t, err)
	}
	if plain == nil {
		return nil
	}

	var items []any
	if list, ok := plain.([]any); ok {
		items = list
	} else {
		items = []any{plain}
	}

	s.mu.Lock()
	tx := begin(s.reg, s.state.Load())
	for i, item := range items {
		if err := tx.apply(t, item); err != nil {
			s.mu.Unlock()
			if len(items) > 1 {
				return fmt.Errorf("store: set %s[%d]: %w", t, i, err)
			}
			return fmt.Errorf("store: set %s: %w", t, err)
		}
	}
	next := tx.commit()
	if next != nil {
		s.state.Store(next)
	}
	s.mu.Unlock()

	if next == nil {
		s.logger.Debug("store set without changes", "type", t, "items", len(items))
		return nil
	}
	s.logger.Debug("store set", "type", t, "items", len(items), "written", tx.written, "version", next.version)
	s.notify(next)
	return nil
}

// Remove deletes entity id of type t. It is a no-op when the entity is absent.
// References to the removed entity are left in place and dropped on read.
func (s *Store) Remove(t schema.EntityType, id string) {
	s.mu.Lock()
	cur := s.state.Load()
	if !cur.Has(t, id) {
		s.mu.Unlock()
		return
	}
	tx := begin(s.reg, cur)
	tx.delete(t, id)
	next := tx.commit()
	s.state.Store(next)
	s.mu.Unlock()

	s.logger.Debug("store remove", "type", t, "id", id, "version", next.version)
	s.notify(next)
}

// Get returns the denormalized entity, or nil when it is absent
func (s *Store) Get(t schema.EntityType, id string) normalize.Entity {
	return s.Snapshot().Get(t, id)
}

// All returns every entity of type t denormalized, ordered by id
func (s *Store) All(t schema.EntityType) []normalize.Entity {
	return s.Snapshot().All(t)
}

// Clear empties every table
func (s *Store) Clear() {
	s.mu.Lock()
	next := emptySnapshot(s.reg, s.state.Load().version+1)
	s.state.Store(next)
	s.mu.Unlock()

	s.logger.Debug("store cleared", "version", next.version)
	s.notify(next)
}
