package store

import (
	"github.com/scoutsense/entitycache/pkg/normalize"
	"github.com/scoutsense/entitycache/pkg/schema"
)

// foreignKey resolves the id a link points at: the foreign-key field first,
// the relation field when the key is missing. ok is false for absent, zero or
// inline (id-less) values.
func foreignKey(e normalize.Entity, l schema.Link) (string, bool) {
	v, present := e[l.ForeignKey]
	if !present || v == nil {
		v = e[l.Relation]
	}
	if !normalize.IsPresent(v) {
		return "", false
	}
	return normalize.IDString(v)
}

// link maintains the outgoing links of entity id: the source id is added to
// the inverse collection of every linked target that exists, and the
// reference field is filled in when the source lacks it.
func (tx *txn) link(t schema.EntityType, id string) {
	for _, l := range tx.reg.Links(t) {
		e, ok := tx.lookup(t, id)
		if !ok {
			return
		}
		fk, ok := foreignKey(e, l)
		if !ok {
			continue
		}

		if target, ok := tx.lookup(l.Target, fk); ok {
			tx.addInverse(l.Target, fk, target, l.InverseField, id)
		}

		if l.CreateReference == schema.NoReference {
			continue
		}
		if cur, present := e[l.CreateReference]; !present || !isSet(cur) {
			tx.set(t, id, l.CreateReference, fk)
		}
	}
}

// backfill adds already stored sources that point at entity id to its
// inverse collections, so the result does not depend on write order
func (tx *txn) backfill(t schema.EntityType, id string) {
	for _, in := range tx.reg.Incoming(t) {
		for _, srcID := range sortedIDs(tx.tables[in.Source]) {
			fk, ok := foreignKey(tx.tables[in.Source][srcID], in.Link)
			if !ok || fk != id {
				continue
			}
			target, ok := tx.lookup(t, id)
			if !ok {
				return
			}
			tx.addInverse(t, id, target, in.InverseField, srcID)
		}
	}
}

// addInverse appends srcID to the inverse collection field of target. Inverse
// collections hold canonical id strings, so a source stored with a numeric id
// appears as "10", not 10.
func (tx *txn) addInverse(t schema.EntityType, id string, target normalize.Entity, field, srcID string) {
	cur, _ := target[field].([]any)
	if containsRef(cur, srcID) {
		return
	}
	tx.set(t, id, field, unionRefs(cur, []any{srcID}))
}

// isSet reports whether a reference field already holds something usable
func isSet(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return x != ""
	case map[string]any:
		return true
	default:
		return normalize.IsPresent(x)
	}
}
