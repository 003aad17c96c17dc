package cache

import (
	"errors"
	"fmt"

	"github.com/scoutsense/entitycache/pkg/normalize"
)

// Sentinel errors for facade operations
var (
	// ErrUnknown is returned for non-OK responses without an API error body
	ErrUnknown = errors.New("unknown error occurred")

	// ErrEmptyResponse is returned when a mutation response carries no JSON
	ErrEmptyResponse = errors.New("no json returned from server")

	// ErrClosed is returned by writes after Close
	ErrClosed = errors.New("cache: closed")

	// ErrNoCoordinator is returned by network operations of a local cache
	ErrNoCoordinator = errors.New("cache: no request coordinator")
)

// APIError is the error shape the API returns: an object with code and message
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// IsAPIError checks if err is an *APIError and returns it
func IsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsUnknown checks if an error is ErrUnknown
func IsUnknown(err error) bool {
	return errors.Is(err, ErrUnknown)
}

// asAPIError recognizes the API error shape in a decoded body
func asAPIError(status int, body any) (*APIError, bool) {
	m, ok := body.(map[string]any)
	if !ok {
		return nil, false
	}
	code, hasCode := m["code"]
	msg, hasMsg := m["message"]
	if !hasCode || !hasMsg {
		return nil, false
	}
	apiErr := &APIError{StatusCode: status, Code: stringify(code)}
	apiErr.Message = stringify(msg)
	return apiErr, true
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		if id, ok := normalize.IDString(x); ok {
			return id
		}
		return fmt.Sprint(x)
	}
}
