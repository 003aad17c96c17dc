package normalize

import "github.com/scoutsense/entitycache/pkg/schema"

// Tables resolves normalized entities by type and id
type Tables interface {
	Lookup(t schema.EntityType, id string) (Entity, bool)
}

type entityKey struct {
	t  schema.EntityType
	id string
}

// Denormalize rebuilds the nested view of entity id of type t from tables.
//
// Cycle rule: an entity is expanded at most once along any path from the
// root. A reference to an entity that is already being expanded higher up the
// path stays as its bare id string. Siblings are expanded independently, so
// the same entity can appear in full under two different branches.
//
// References to ids missing from tables are dropped: a singular relation
// field is removed, a collection omits the element. The result is a fresh
// deep copy and may be modified by the caller. It is nil when id is missing.
func Denormalize(reg *schema.Registry, t schema.EntityType, id string, tables Tables) Entity {
	d := &denormalizer{
		reg:    reg,
		tables: tables,
		path:   make(map[entityKey]struct{}),
	}
	return d.entity(t, id)
}

type denormalizer struct {
	reg    *schema.Registry
	tables Tables
	path   map[entityKey]struct{}
}

func (d *denormalizer) entity(t schema.EntityType, id string) Entity {
	raw, ok := d.tables.Lookup(t, id)
	if !ok || raw == nil {
		return nil
	}
	def, ok := d.reg.Definition(t)
	if !ok {
		return nil
	}

	k := entityKey{t: t, id: id}
	d.path[k] = struct{}{}
	defer delete(d.path, k)

	out := Clone(raw)
	for _, field := range d.reg.RelationFields(t) {
		v, present := raw[field]
		if !present {
			continue
		}
		rel := def.Relations[field]

		if !rel.Many {
			if val, keep := d.ref(rel.Target, v); keep {
				out[field] = val
			} else {
				delete(out, field)
			}
			continue
		}

		items, ok := v.([]any)
		if !ok {
			continue
		}
		list := make([]any, 0, len(items))
		for _, item := range items {
			if val, keep := d.ref(rel.Target, item); keep {
				list = append(list, val)
			}
		}
		out[field] = list
	}

	return out
}

func (d *denormalizer) ref(target schema.EntityType, v any) (any, bool) {
	id, ok := v.(string)
	if !ok {
		// nil or an inline object without an id
		return clone(v), true
	}
	if _, onPath := d.path[entityKey{t: target, id: id}]; onPath {
		return id, true
	}
	e := d.entity(target, id)
	if e == nil {
		return nil, false
	}
	return e, true
}
