package auth

import "errors"

var (
	ErrUnauthorized = errors.New("auth: unauthorized")
	ErrForbidden    = errors.New("auth: forbidden")
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrScopeMismatch indicates a viewer asked for another subscriber.
	ErrScopeMismatch = errors.New("auth: subscriber scope mismatch")
)
