// Package store defines the persistence contracts for refresh and one-time
// token rows, plus the bundled in-memory and Redis implementations. Rows
// carry digests only; raw secrets never reach a store.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrTokenNotFound is an exported constant or variable used by the authentication engine.
	// It covers missing, revoked, consumed, and expired rows alike.
	ErrTokenNotFound = errors.New("token not found")
	// ErrUnavailable is an exported constant or variable used by the authentication engine.
	ErrUnavailable = errors.New("token store unavailable")
)

// Purpose defines a public type used by gradauth APIs.
//
// Purpose instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Purpose string

const (
	// PurposeEmailVerify is an exported constant or variable used by the authentication engine.
	PurposeEmailVerify Purpose = "email_verify"
	// PurposePasswordReset is an exported constant or variable used by the authentication engine.
	PurposePasswordReset Purpose = "password_reset"
)

// RefreshToken is a stored refresh token row. Digest is the hex SHA-256 of
// the opaque secret and doubles as the lookup key.
type RefreshToken struct {
	Digest    string
	UserID    string
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
}

// OneTimeToken is a stored one-time token row, bound to one purpose.
type OneTimeToken struct {
	Digest    string
	UserID    string
	Purpose   Purpose
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}

// RefreshStore persists refresh token rows.
//
// Rotate is the anti-replay primitive: it validates and revokes in one
// atomic step, so exactly one of any set of concurrent calls for the same
// digest succeeds. Expired rows are revoked on first touch and reported as
// not found.
type RefreshStore interface {
	Create(ctx context.Context, token RefreshToken) error
	Validate(ctx context.Context, digest string, now time.Time) (RefreshToken, error)
	Rotate(ctx context.Context, digest string, now time.Time) (RefreshToken, error)
	Revoke(ctx context.Context, userID, digest string) error
	RevokeAllForUser(ctx context.Context, userID string) error
}

// OneTimeStore persists purpose-bound one-time token rows.
//
// Issue invalidates any live row for the same (user, purpose) pair before
// inserting, so at most one token per pair is ever live. Consume burns the
// row whether it is valid or expired; a digest never consumes twice.
type OneTimeStore interface {
	Issue(ctx context.Context, token OneTimeToken) error
	Consume(ctx context.Context, digest string, purpose Purpose, now time.Time) (OneTimeToken, error)
}
