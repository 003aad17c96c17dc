package store

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/scoutsense/entitycache/pkg/normalize"
	"github.com/scoutsense/entitycache/pkg/schema"
)

type entityKey struct {
	t  schema.EntityType
	id string
}

// txn builds the next snapshot from base. Tables and entities of base are
// shared until the first write touches them, then copied.
type txn struct {
	reg    *schema.Registry
	base   *Snapshot
	tables map[schema.EntityType]map[string]normalize.Entity

	ownTables   map[schema.EntityType]bool
	ownEntities map[entityKey]bool
	changed     bool
	written     int
}

func begin(reg *schema.Registry, base *Snapshot) *txn {
	tables := make(map[schema.EntityType]map[string]normalize.Entity, len(base.tables))
	for t, table := range base.tables {
		tables[t] = table
	}
	return &txn{
		reg:         reg,
		base:        base,
		tables:      tables,
		ownTables:   make(map[schema.EntityType]bool),
		ownEntities: make(map[entityKey]bool),
	}
}

// commit returns the next snapshot, or nil when nothing changed
func (tx *txn) commit() *Snapshot {
	if !tx.changed {
		return nil
	}
	return &Snapshot{reg: tx.reg, tables: tx.tables, version: tx.base.version + 1}
}

func (tx *txn) lookup(t schema.EntityType, id string) (normalize.Entity, bool) {
	e, ok := tx.tables[t][id]
	return e, ok
}

func (tx *txn) table(t schema.EntityType) map[string]normalize.Entity {
	if tx.ownTables[t] {
		return tx.tables[t]
	}
	cur := tx.tables[t]
	next := make(map[string]normalize.Entity, len(cur)+1)
	for id, e := range cur {
		next[id] = e
	}
	tx.tables[t] = next
	tx.ownTables[t] = true
	return next
}

func (tx *txn) put(t schema.EntityType, id string, e normalize.Entity) {
	if cur, ok := tx.lookup(t, id); ok && reflect.DeepEqual(cur, e) {
		return
	}
	tx.table(t)[id] = e
	tx.ownEntities[entityKey{t: t, id: id}] = true
	tx.changed = true
}

// set assigns one field of a stored entity, copying the entity first if it
// still belongs to the base snapshot
func (tx *txn) set(t schema.EntityType, id, field string, v any) {
	k := entityKey{t: t, id: id}
	cur := tx.tables[t][id]
	if tx.ownEntities[k] {
		cur[field] = v
		tx.changed = true
		return
	}
	next := make(normalize.Entity, len(cur)+1)
	for f, val := range cur {
		next[f] = val
	}
	next[field] = v
	tx.table(t)[id] = next
	tx.ownEntities[k] = true
	tx.changed = true
}

func (tx *txn) delete(t schema.EntityType, id string) {
	if _, ok := tx.lookup(t, id); !ok {
		return
	}
	delete(tx.table(t), id)
	delete(tx.ownEntities, entityKey{t: t, id: id})
	tx.changed = true
}

// apply deduplicates, normalizes and merges one payload element, then
// maintains relationships for every entity it wrote
func (tx *txn) apply(t schema.EntityType, item any) error {
	res, err := normalize.Normalize(tx.reg, t, normalize.Deduplicate(item))
	if err != nil {
		return err
	}

	for et, bucket := range res.Entities {
		if _, ok := tx.tables[et]; !ok && len(bucket) > 0 {
			return fmt.Errorf("%w: no table for %s", ErrUnknownEntityType, et)
		}
	}

	var written []entityKey
	for _, et := range tx.reg.Types() {
		bucket := res.Entities[et]
		for _, id := range sortedIDs(bucket) {
			tx.merge(et, id, bucket[id])
			written = append(written, entityKey{t: et, id: id})
		}
	}
	tx.written += len(written)

	for _, k := range written {
		tx.link(k.t, k.id)
		tx.backfill(k.t, k.id)
	}
	return nil
}

// merge inserts incoming or shallow-merges it over the stored entity.
// Declared collection relations are unioned instead of replaced.
func (tx *txn) merge(t schema.EntityType, id string, incoming normalize.Entity) {
	existing, ok := tx.lookup(t, id)
	if !ok {
		tx.put(t, id, incoming)
		return
	}

	merged := make(normalize.Entity, len(existing)+len(incoming))
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range incoming {
		if tx.reg.IsCollection(t, k) {
			cur, curOK := existing[k].([]any)
			next, nextOK := v.([]any)
			if curOK && nextOK {
				v = unionRefs(cur, next)
			}
		}
		merged[k] = v
	}
	tx.put(t, id, merged)
}

// unionRefs concatenates lists keeping the first occurrence of every id.
// Elements that are not ids (inline objects) are always kept.
func unionRefs(lists ...[]any) []any {
	n := 0
	for _, l := range lists {
		n += len(l)
	}
	seen := make(map[string]struct{}, n)
	out := make([]any, 0, n)
	for _, l := range lists {
		for _, v := range l {
			id, ok := normalize.IDString(v)
			if !ok {
				out = append(out, v)
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

func containsRef(list []any, id string) bool {
	for _, v := range list {
		if ref, ok := normalize.IDString(v); ok && ref == id {
			return true
		}
	}
	return false
}

func sortedIDs(bucket map[string]normalize.Entity) []string {
	ids := make([]string, 0, len(bucket))
	for id := range bucket {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return normalize.CompareIDs(ids[i], ids[j]) < 0
	})
	return ids
}
