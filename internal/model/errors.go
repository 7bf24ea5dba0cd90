package model

import "errors"

// Sentinel errors shared across the auth, token, authorization and
// workflow layers. Callers classify with errors.Is and the API layer maps
// them to HTTP statuses.
var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrAccountDisabled    = errors.New("user account is disabled")
	ErrAuthProvider       = errors.New("authentication provider error")

	ErrTokenInvalid = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")

	ErrNotFound               = errors.New("not found")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrValidation             = errors.New("validation error")
)
