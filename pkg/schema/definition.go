package schema

// Relation declares that a field of an entity references another entity type,
// either a single entity or a collection of them.
type Relation struct {
	Target EntityType
	Many   bool
}

// One declares a singular reference to target
func One(target EntityType) Relation {
	return Relation{Target: target}
}

// Many declares a collection reference to target
func Many(target EntityType) Relation {
	return Relation{Target: target, Many: true}
}

// Link describes a foreign key carried by a source entity and the inverse
// collection it maintains on the referenced entity.
//
// Example: a product carrying companyId links to the company's "products".
//
//	Link{Relation: "company", Target: Company}
//	// ForeignKey:      "companyId"
//	// InverseField:    "products"
//	// CreateReference: "company"
type Link struct {
	// Relation is the forward reference field on the source entity
	Relation string
	// Target is the referenced entity type
	Target EntityType
	// ForeignKey defaults to Relation + "Id"
	ForeignKey string
	// InverseField is the collection on the target; defaults to the plural of the source type
	InverseField string
	// CreateReference is set on the source when absent; defaults to Relation, NoReference disables it
	CreateReference string
}

// NoReference disables forward reference creation for a Link
const NoReference = "-"

// Definition declares one entity type: its table, identity key, nested
// reference shape and the relationships the cache keeps symmetric.
type Definition struct {
	Type      EntityType
	Table     string // defaults to Plural(Type)
	IDField   string // defaults to DefaultIDField
	Relations map[string]Relation
	Links     []Link
}

// Define starts a Definition for t with the default table and identity key
func Define(t EntityType, relations map[string]Relation, links ...Link) Definition {
	return Definition{
		Type:      t,
		Relations: relations,
		Links:     links,
	}
}

// withDefaults fills every defaulted field of the definition and its links
func (d Definition) withDefaults() Definition {
	if d.Table == "" {
		d.Table = Plural(string(d.Type))
	}
	if d.IDField == "" {
		d.IDField = DefaultIDField
	}
	if d.Relations == nil {
		d.Relations = map[string]Relation{}
	}

	links := make([]Link, len(d.Links))
	for i, l := range d.Links {
		if l.ForeignKey == "" {
			l.ForeignKey = l.Relation + "Id"
		}
		if l.InverseField == "" {
			l.InverseField = d.Table
		}
		if l.CreateReference == "" {
			l.CreateReference = l.Relation
		}
		links[i] = l
	}
	d.Links = links

	return d
}

// Relation returns the relation declared for field, if any
func (d *Definition) Relation(field string) (Relation, bool) {
	r, ok := d.Relations[field]
	return r, ok
}

// IsCollection reports whether field is a declared collection relation
func (d *Definition) IsCollection(field string) bool {
	r, ok := d.Relations[field]
	return ok && r.Many
}
