package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// ExpiresAt reads the exp claim of an access token without verifying its
// signature. The key is held by the API; the client only needs the deadline.
func ExpiresAt(token string) (time.Time, error) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, fmt.Errorf("%w: missing exp", ErrMalformedToken)
	}
	return claims.ExpiresAt.Time, nil
}
