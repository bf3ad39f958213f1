package domain

import "errors"

var (
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("resource not found")
	// ErrInvalidCredentials hides whether email or password failed to
	// prevent account-enumeration side channels.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked signals temporary lockout after repeated failed attempts.
	ErrAccountLocked = errors.New("account locked")
	// ErrConflict is returned when a create collides with an existing row.
	ErrConflict       = errors.New("conflict")
	ErrSessionRevoked = errors.New("session revoked")
	ErrSessionExpired = errors.New("session expired")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInvalidInput   = errors.New("invalid input")
	// ErrAccessDenied is a role or permission mismatch for an otherwise
	// authenticated user.
	ErrAccessDenied = errors.New("access denied")
	// ErrRoleResolutionFailed covers users whose stored role is no longer
	// in the closed role set; such sessions are treated as unauthorized.
	ErrRoleResolutionFailed = errors.New("role resolution failed")
)
