package normalize

import (
	"errors"
	"fmt"

	"github.com/scoutsense/entitycache/pkg/schema"
)

var (
	// ErrUnknownEntityType is returned for entity types the registry does not define
	ErrUnknownEntityType = errors.New("normalize: unknown entity type")
	// ErrNotObject is returned when a payload is neither an object nor an array of objects
	ErrNotObject = errors.New("normalize: payload is not an object")
)

// Entities is a flat set of normalized entities: type -> id -> entity
type Entities map[schema.EntityType]map[string]Entity

// Lookup implements Tables
func (e Entities) Lookup(t schema.EntityType, id string) (Entity, bool) {
	ent, ok := e[t][id]
	return ent, ok
}

// Result of normalizing one payload
type Result struct {
	// IDs of the top-level entities, in payload order
	IDs      []string
	Entities Entities
}

// Normalize flattens data (an object or an array of objects) of type t.
//
// Every value under a relation field is hoisted into its own bucket and
// replaced by its id string. Scalars under a relation field are taken to be
// ids already. Nested objects without an id cannot be referenced and stay
// inline. When the same entity occurs more than once in a payload the
// occurrences are shallow-merged, later fields winning.
//
// data must already be JSON-like (see Plain).
func Normalize(reg *schema.Registry, t schema.EntityType, data any) (Result, error) {
	if !reg.Has(t) {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownEntityType, t)
	}

	n := &normalizer{reg: reg, entities: Entities{}}
	res := Result{Entities: n.entities}

	switch x := data.(type) {
	case nil:
		return res, nil
	case map[string]any:
		if id, _, ok := n.visit(t, x); ok {
			res.IDs = append(res.IDs, id)
		}
	case []any:
		for i, item := range x {
			m, ok := item.(map[string]any)
			if !ok {
				return Result{}, fmt.Errorf("%w: index %d is %T", ErrNotObject, i, item)
			}
			if id, _, ok := n.visit(t, m); ok {
				res.IDs = append(res.IDs, id)
			}
		}
	default:
		return Result{}, fmt.Errorf("%w: %T", ErrNotObject, data)
	}

	return res, nil
}

type normalizer struct {
	reg      *schema.Registry
	entities Entities
}

// visit normalizes one object and registers it in its bucket.
// ok is false when the object has no id; out is then the inline copy.
func (n *normalizer) visit(t schema.EntityType, m map[string]any) (id string, out Entity, ok bool) {
	def, _ := n.reg.Definition(t)

	out = make(Entity, len(m))
	for k, v := range m {
		out[k] = v
	}
	for _, field := range n.reg.RelationFields(t) {
		v, present := m[field]
		if !present {
			continue
		}
		out[field] = n.reference(def.Relations[field], v)
	}

	id, ok = IDString(m[def.IDField])
	if !ok {
		return "", out, false
	}

	bucket := n.entities[t]
	if bucket == nil {
		bucket = make(map[string]Entity)
		n.entities[t] = bucket
	}
	if existing, dup := bucket[id]; dup {
		for k, v := range out {
			existing[k] = v
		}
	} else {
		bucket[id] = out
	}

	return id, out, true
}

func (n *normalizer) reference(rel schema.Relation, v any) any {
	if !rel.Many {
		return n.one(rel.Target, v)
	}

	items, ok := v.([]any)
	if !ok {
		return v
	}
	refs := make([]any, 0, len(items))
	for _, item := range items {
		refs = append(refs, n.one(rel.Target, item))
	}
	return refs
}

func (n *normalizer) one(target schema.EntityType, v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case map[string]any:
		id, out, ok := n.visit(target, x)
		if !ok {
			return out
		}
		return id
	default:
		if id, ok := IDString(x); ok {
			return id
		}
		return x
	}
}
