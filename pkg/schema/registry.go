package schema

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrEmptyType is returned when a definition has no entity type
	ErrEmptyType = errors.New("schema: empty entity type")
	// ErrDuplicateType is returned when an entity type is defined twice
	ErrDuplicateType = errors.New("schema: duplicate entity type")
	// ErrDuplicateTable is returned when two entity types share a table name
	ErrDuplicateTable = errors.New("schema: duplicate table name")
	// ErrUnknownTarget is returned when a relation or link points at an undefined type
	ErrUnknownTarget = errors.New("schema: unknown target entity type")
	// ErrInvalidLink is returned when a link's inverse field is not a collection
	// relation of the target pointing back at the source
	ErrInvalidLink = errors.New("schema: invalid relationship link")
)

// SourceLink is a Link seen from its target: Source carries the foreign key
type SourceLink struct {
	Source EntityType
	Link
}

// Registry is the immutable set of entity definitions the cache works with.
// It is safe for concurrent use.
type Registry struct {
	defs     map[EntityType]*Definition
	fields   map[EntityType][]string
	order    []EntityType
	tables   map[string]EntityType
	incoming map[EntityType][]SourceLink
}

// NewRegistry validates definitions and builds a Registry.
// Validation makes schema/table mismatches a construction-time error instead
// of a runtime one.
func NewRegistry(defs ...Definition) (*Registry, error) {
	r := &Registry{
		defs:     make(map[EntityType]*Definition, len(defs)),
		fields:   make(map[EntityType][]string, len(defs)),
		tables:   make(map[string]EntityType, len(defs)),
		incoming: make(map[EntityType][]SourceLink),
	}

	for _, def := range defs {
		if def.Type == "" {
			return nil, ErrEmptyType
		}
		if _, exists := r.defs[def.Type]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateType, def.Type)
		}

		d := def.withDefaults()
		if other, exists := r.tables[d.Table]; exists {
			return nil, fmt.Errorf("%w: %s used by %s and %s", ErrDuplicateTable, d.Table, other, d.Type)
		}

		fields := make([]string, 0, len(d.Relations))
		for field := range d.Relations {
			fields = append(fields, field)
		}
		sort.Strings(fields)

		r.defs[d.Type] = &d
		r.fields[d.Type] = fields
		r.tables[d.Table] = d.Type
		r.order = append(r.order, d.Type)
	}

	for _, t := range r.order {
		d := r.defs[t]
		for field, rel := range d.Relations {
			if _, ok := r.defs[rel.Target]; !ok {
				return nil, fmt.Errorf("%w: %s.%s -> %s", ErrUnknownTarget, t, field, rel.Target)
			}
		}
		for _, l := range d.Links {
			target, ok := r.defs[l.Target]
			if !ok {
				return nil, fmt.Errorf("%w: link %s.%s -> %s", ErrUnknownTarget, t, l.Relation, l.Target)
			}
			inverse, ok := target.Relations[l.InverseField]
			if !ok || !inverse.Many || inverse.Target != t {
				return nil, fmt.Errorf("%w: %s.%s must be a collection of %s", ErrInvalidLink, l.Target, l.InverseField, t)
			}
			r.incoming[l.Target] = append(r.incoming[l.Target], SourceLink{Source: t, Link: l})
		}
	}

	return r, nil
}

// MustRegistry is like NewRegistry but panics on invalid definitions
func MustRegistry(defs ...Definition) *Registry {
	r, err := NewRegistry(defs...)
	if err != nil {
		panic(err)
	}
	return r
}

// Definition returns the definition of t
func (r *Registry) Definition(t EntityType) (*Definition, bool) {
	d, ok := r.defs[t]
	return d, ok
}

// Has reports whether t is defined
func (r *Registry) Has(t EntityType) bool {
	_, ok := r.defs[t]
	return ok
}

// Types returns every defined entity type in definition order
func (r *Registry) Types() []EntityType {
	out := make([]EntityType, len(r.order))
	copy(out, r.order)
	return out
}

// Table returns the table name of t, or "" when t is undefined
func (r *Registry) Table(t EntityType) string {
	if d, ok := r.defs[t]; ok {
		return d.Table
	}
	return ""
}

// TypeForTable resolves a table name back to its entity type
func (r *Registry) TypeForTable(table string) (EntityType, bool) {
	t, ok := r.tables[table]
	return t, ok
}

// IDField returns the identity key of t
func (r *Registry) IDField(t EntityType) string {
	if d, ok := r.defs[t]; ok {
		return d.IDField
	}
	return DefaultIDField
}

// RelationFields returns the relation field names of t in sorted order
func (r *Registry) RelationFields(t EntityType) []string {
	return r.fields[t]
}

// Links returns the relationship links carried by entities of type t
func (r *Registry) Links(t EntityType) []Link {
	if d, ok := r.defs[t]; ok {
		return d.Links
	}
	return nil
}

// Incoming returns the links of other types that target t
func (r *Registry) Incoming(t EntityType) []SourceLink {
	return r.incoming[t]
}

// IsCollection reports whether field of t is a declared collection relation
func (r *Registry) IsCollection(t EntityType, field string) bool {
	d, ok := r.defs[t]
	return ok && d.IsCollection(field)
}
