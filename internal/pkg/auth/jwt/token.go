package jwt

import (
	"time"

	"github.com/golang-jwt/jwt"
)

// TokenInfo holds the registered claims read from a bearer token.
// The signature is NOT verified; only the identity service can vouch for a token.
type TokenInfo struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Inspect decodes tokenString as a JWT without verifying it.
// ok is false for tokens that are not JWTs, which the relay treats as opaque.
func Inspect(tokenString string) (info TokenInfo, ok bool) {
	claims := &jwt.StandardClaims{}

	if _, _, err := new(jwt.Parser).ParseUnverified(tokenString, claims); err != nil {
		return TokenInfo{}, false
	}

	info.Subject = claims.Subject
	if claims.IssuedAt != 0 {
		info.IssuedAt = time.Unix(claims.IssuedAt, 0)
	}
	if claims.ExpiresAt != 0 {
		info.ExpiresAt = time.Unix(claims.ExpiresAt, 0)
	}

	return info, true
}

// Expired reports whether the exp claim is set and not after now.
// It is advisory: clocks drift and the issuer may allow leeway.
func (i TokenInfo) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && !now.Before(i.ExpiresAt)
}
