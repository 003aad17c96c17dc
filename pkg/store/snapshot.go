package store

import (
	"sort"

	"github.com/scoutsense/entitycache/pkg/normalize"
	"github.com/scoutsense/entitycache/pkg/schema"
)

// Snapshot is an immutable view of every entity table at one point in time.
// Entities reachable from a Snapshot must not be modified; Get and All
// return denormalized copies that may be.
type Snapshot struct {
	reg     *schema.Registry
	tables  map[schema.EntityType]map[string]normalize.Entity
	version uint64
}

func emptySnapshot(reg *schema.Registry, version uint64) *Snapshot {
	tables := make(map[schema.EntityType]map[string]normalize.Entity)
	for _, t := range reg.Types() {
		tables[t] = map[string]normalize.Entity{}
	}
	return &Snapshot{reg: reg, tables: tables, version: version}
}

// Version increases by one with every change to the store
func (s *Snapshot) Version() uint64 {
	return s.version
}

// Lookup returns the raw normalized entity, implementing normalize.Tables
func (s *Snapshot) Lookup(t schema.EntityType, id string) (normalize.Entity, bool) {
	e, ok := s.tables[t][id]
	return e, ok
}

// Has reports whether entity id of type t is stored
func (s *Snapshot) Has(t schema.EntityType, id string) bool {
	_, ok := s.tables[t][id]
	return ok
}

// Len returns the number of stored entities of type t
func (s *Snapshot) Len(t schema.EntityType) int {
	return len(s.tables[t])
}

// IDs returns the stored ids of type t, numeric ids in numeric order
func (s *Snapshot) IDs(t schema.EntityType) []string {
	table := s.tables[t]
	ids := make([]string, 0, len(table))
	for id := range table {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return normalize.CompareIDs(ids[i], ids[j]) < 0
	})
	return ids
}

// Get returns the denormalized entity, or nil when it is not stored
func (s *Snapshot) Get(t schema.EntityType, id string) normalize.Entity {
	return normalize.Denormalize(s.reg, t, id, s)
}

// All returns every denormalized entity of type t in IDs order
func (s *Snapshot) All(t schema.EntityType) []normalize.Entity {
	ids := s.IDs(t)
	out := make([]normalize.Entity, 0, len(ids))
	for _, id := range ids {
		if e := s.Get(t, id); e != nil {
			out = append(out, e)
		}
	}
	return out
}
