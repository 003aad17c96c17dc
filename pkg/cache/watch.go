package cache

import (
	"reflect"
	"sync"

	"github.com/scoutsense/entitycache/pkg/normalize"
	"github.com/scoutsense/entitycache/pkg/schema"
	"github.com/scoutsense/entitycache/pkg/store"
)

// Select applies selector to the entity id of type t. An empty id selects nil.
func Select[T any](c *Cache, t schema.EntityType, id string, selector func(normalize.Entity) T) T {
	return selectOne(c.store.Snapshot(), t, id, selector)
}

// SelectAll applies selector to every entity of type t
func SelectAll[T any](c *Cache, t schema.EntityType, selector func([]normalize.Entity) T) T {
	return selector(c.store.Snapshot().All(t))
}

// Watch returns the selected value of entity id and calls onChange whenever a
// store change alters it. Values are compared with reflect.DeepEqual. The
// returned function stops watching.
func Watch[T any](c *Cache, t schema.EntityType, id string, selector func(normalize.Entity) T, onChange func(T)) (T, func()) {
	return watch(c, func(snap *store.Snapshot) T {
		return selectOne(snap, t, id, selector)
	}, onChange)
}

// WatchAll is Watch over every entity of type t
func WatchAll[T any](c *Cache, t schema.EntityType, selector func([]normalize.Entity) T, onChange func(T)) (T, func()) {
	return watch(c, func(snap *store.Snapshot) T {
		return selector(snap.All(t))
	}, onChange)
}

func selectOne[T any](snap *store.Snapshot, t schema.EntityType, id string, selector func(normalize.Entity) T) T {
	if id == "" {
		return selector(nil)
	}
	return selector(snap.Get(t, id))
}

type watcher[T any] struct {
	mu      sync.Mutex
	ready   bool
	version uint64
	value   T
}

// watch subscribes before reading the initial value so no change between the
// two is lost. Changes seen before the initial value is returned are folded
// into it instead of being reported.
func watch[T any](c *Cache, sel func(*store.Snapshot) T, onChange func(T)) (T, func()) {
	w := &watcher[T]{}

	unsubscribe := c.store.Subscribe(func(next *store.Snapshot) {
		v := sel(next)

		w.mu.Lock()
		if w.ready && next.Version() <= w.version {
			w.mu.Unlock()
			return
		}
		changed := w.ready && !reflect.DeepEqual(v, w.value)
		w.version = next.Version()
		w.value = v
		w.ready = true
		w.mu.Unlock()

		if changed && onChange != nil {
			onChange(v)
		}
	})

	snap := c.store.Snapshot()
	w.mu.Lock()
	if !w.ready || snap.Version() > w.version {
		w.version = snap.Version()
		w.value = sel(snap)
	}
	w.ready = true
	initial := w.value
	w.mu.Unlock()

	if c.closed.Load() {
		unsubscribe()
		return initial, func() {}
	}
	return initial, c.track(unsubscribe)
}
