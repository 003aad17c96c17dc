package repository

import "errors"

// Sentinel errors for repository operations
var (
	// ErrNotFound is returned when the API answers 404
	ErrNotFound = errors.New("repository: entity not found")

	// ErrUnexpectedStatus is returned for other non-OK fetch responses
	ErrUnexpectedStatus = errors.New("repository: unexpected response status")

	// ErrInvalidID is returned for empty ids
	ErrInvalidID = errors.New("repository: invalid id")

	// ErrDecodeFailed is returned when an entity does not decode into the target type
	ErrDecodeFailed = errors.New("repository: decode failed")
)

// IsNotFound checks if an error is ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
