package auth

import "errors"

var (
	// ErrTokenMissing is returned for an empty token.
	ErrTokenMissing = errors.New("auth: token missing")

	// ErrTokenInvalid is returned when a token fails signature, expiry or
	// claim checks.
	ErrTokenInvalid = errors.New("auth: invalid token")

	// ErrNoSecret is returned when a JWT verifier is built without a secret.
	ErrNoSecret = errors.New("auth: signing secret not configured")
)
