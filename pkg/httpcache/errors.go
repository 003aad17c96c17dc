package httpcache

import "errors"

// Sentinel errors for coordinated requests
var (
	// ErrRefreshRejected is reported when the refresher returns false
	ErrRefreshRejected = errors.New("httpcache: token refresh rejected")

	// ErrEmptyBody is returned when decoding a response without a body
	ErrEmptyBody = errors.New("httpcache: empty response body")

	// ErrNilResponse is returned when a Fetcher returns neither a response nor an error
	ErrNilResponse = errors.New("httpcache: fetcher returned no response")
)

// IsRefreshRejected checks if an error is ErrRefreshRejected
func IsRefreshRejected(err error) bool {
	return errors.Is(err, ErrRefreshRejected)
}

// IsEmptyBody checks if an error is ErrEmptyBody
func IsEmptyBody(err error) bool {
	return errors.Is(err, ErrEmptyBody)
}
