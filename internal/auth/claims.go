package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Decode reads access token claims without verifying the signature. The
// client cannot verify tokens; it only needs the expiry and identity hints.
func Decode(tokenString string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ExpiredAt reports whether the token is past its exp claim at now. Tokens
// without an exp claim never expire client-side.
func (c *Claims) ExpiredAt(now time.Time) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return !now.Before(c.ExpiresAt.Time)
}

// Expired decodes tokenString and reports whether it has expired. Tokens the
// client cannot decode are treated as opaque and left to the server.
func Expired(tokenString string, now time.Time) bool {
	claims, err := Decode(tokenString)
	if err != nil {
		return false
	}
	return claims.ExpiredAt(now)
}
