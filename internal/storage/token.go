package storage

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ExpiresAt returns the expiry timestamp encoded in a JWT credential, if
// present.
//
// The signature is not verified. The result is only used for client UX and
// control flow (skipping a check that is certain to fail); server-side
// verification remains the source of truth.
func ExpiresAt(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// IsExpired reports whether a credential carries an exp claim that has
// already passed. Tokens without a parseable exp are not treated as expired;
// the server will 401 if needed.
func IsExpired(token string, now time.Time) bool {
	exp, ok := ExpiresAt(token)
	if !ok {
		return false
	}
	return !exp.After(now)
}
