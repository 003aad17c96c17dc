package store

import (
	"errors"

	"github.com/scoutsense/entitycache/pkg/normalize"
)

// Sentinel errors for store operations
var (
	// ErrUnknownEntityType means a payload normalized into an entity type that has
	// no table. It signals a schema/registry mismatch, not a data problem.
	ErrUnknownEntityType = normalize.ErrUnknownEntityType

	// ErrInvalidPayload is returned when a payload is not an object or an array of objects
	ErrInvalidPayload = normalize.ErrNotObject
)

// IsConfigurationError checks if err comes from a schema/table mismatch
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrUnknownEntityType)
}
