package gradauth

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials is an exported constant or variable used by the authentication engine.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrEmailTaken is an exported constant or variable used by the authentication engine.
	ErrEmailTaken = errors.New("email already registered")
	// ErrTokenInvalid is an exported constant or variable used by the authentication engine.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrRateLimited is an exported constant or variable used by the authentication engine.
	ErrRateLimited = errors.New("rate limited")
	// ErrNotConfigured is an exported constant or variable used by the authentication engine.
	ErrNotConfigured = errors.New("provider not configured")
	// ErrUserNotFound is an exported constant or variable used by the authentication engine.
	ErrUserNotFound = errors.New("user not found")
	// ErrPasswordPolicy is an exported constant or variable used by the authentication engine.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrPasswordReuse is an exported constant or variable used by the authentication engine.
	ErrPasswordReuse = errors.New("new password must be different from current password")
	// ErrRoleInvalid is an exported constant or variable used by the authentication engine.
	ErrRoleInvalid = errors.New("invalid role")
	// ErrSelfDemoteForbidden is an exported constant or variable used by the authentication engine.
	ErrSelfDemoteForbidden = errors.New("admins cannot demote themselves")
	// ErrLastAdminForbidden is an exported constant or variable used by the authentication engine.
	ErrLastAdminForbidden = errors.New("cannot demote the last admin")
	// ErrEngineNotReady is an exported constant or variable used by the authentication engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrDirectoryDuplicateEmail is an exported constant or variable used by the authentication engine.
	ErrDirectoryDuplicateEmail = errors.New("directory duplicate email")
)

// RateLimitError defines a public type used by gradauth APIs.
//
// RateLimitError carries the limited action and the wait until the next
// attempt can succeed. It matches [ErrRateLimited] under [errors.Is].
type RateLimitError struct {
	Action     string
	RetryAfter time.Duration
}

// Error describes the error operation and its observable behavior.
//
// Error may return an error when input validation, dependency calls, or security checks fail.
// Error does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s rate limited, retry in %s", e.Action, e.RetryAfter)
}

// Is describes the is operation and its observable behavior.
//
// Is may return an error when input validation, dependency calls, or security checks fail.
// Is does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}
