package errors

import "errors"

var (
	ErrMissingFields       = errors.New("please fill in all fields")
	ErrInvalidEmail        = errors.New("please enter a valid email address")
	ErrPasswordTooShort    = errors.New("password must be at least 6 characters")
	ErrPasswordMismatch    = errors.New("passwords do not match")
	ErrEmailAlreadyInUse   = errors.New("Email already in use")
	ErrInvalidCredentials  = errors.New("Invalid email or password")
	ErrCredentialNotFound  = errors.New("credential not found")
	ErrInvalidToken        = errors.New("invalid session token")
	ErrSessionExpired      = errors.New("session expired")
	ErrSessionRevoked      = errors.New("session revoked")
	ErrUnauthenticated     = errors.New("authentication required")
	ErrIdempotencyConflict = errors.New("event id reused with different payload")
)
