package redis

import "errors"

// Sentinel errors for Redis operations
var (
	// ErrDisabled is returned when attempting operations with redis disabled
	ErrDisabled = errors.New("redis is disabled")

	// ErrClientNotInitialized is returned when the Redis client is nil
	ErrClientNotInitialized = errors.New("redis client not initialized")

	// ErrKeyNotFound is returned when a key doesn't exist (not an error condition)
	ErrKeyNotFound = errors.New("redis key not found")

	// ErrConnectionFailed is returned when Redis connection cannot be established
	ErrConnectionFailed = errors.New("redis connection failed")

	// ErrInvalidKey is returned for empty keys
	ErrInvalidKey = errors.New("invalid redis key")

	// ErrSerializationFailed is returned when msgpack encoding/decoding fails
	ErrSerializationFailed = errors.New("redis serialization failed")
)

// IsDisabled checks if an error is ErrDisabled
func IsDisabled(err error) bool {
	return errors.Is(err, ErrDisabled)
}

// IsKeyNotFound checks if an error is ErrKeyNotFound
func IsKeyNotFound(err error) bool {
	return errors.Is(err, ErrKeyNotFound)
}

// IsConnectionFailed checks if an error is ErrConnectionFailed
func IsConnectionFailed(err error) bool {
	return errors.Is(err, ErrConnectionFailed)
}
