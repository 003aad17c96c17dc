package repository

import "github.com/scoutsense/entitycache/pkg/schema"

// Entity is implemented by models that know their own id.
// Save uses it to choose between Create and Update.
type Entity interface {
	GetPrimaryKeyValue() string
}

// Typed is implemented by models bound to one entity type.
// NewFor uses it so callers do not repeat the type.
type Typed interface {
	EntityType() schema.EntityType
}
