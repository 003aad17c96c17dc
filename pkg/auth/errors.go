package auth

import "errors"

// Sentinel errors for the auth client
var (
	// ErrNoTokens is returned by a TokenStore holding no tokens
	ErrNoTokens = errors.New("auth: no tokens stored")

	// ErrNoRefreshToken is returned when a refresh is attempted without a refresh token
	ErrNoRefreshToken = errors.New("auth: no refresh token")

	// ErrMalformedToken is returned when an access token is not a JWT with an exp claim
	ErrMalformedToken = errors.New("auth: malformed access token")

	// ErrInvalidRefreshResponse is returned when the refresh endpoint answers OK without tokens
	ErrInvalidRefreshResponse = errors.New("auth: invalid refresh response")
)

// IsNoTokens checks if an error is ErrNoTokens
func IsNoTokens(err error) bool {
	return errors.Is(err, ErrNoTokens)
}
