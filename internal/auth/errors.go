package auth

import "errors"

var (
	// ErrTokenInvalid is returned when a token fails signature, expiry,
	// or claim validation.
	ErrTokenInvalid = errors.New("auth: token invalid")
)
