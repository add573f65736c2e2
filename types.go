package gradauth

import (
	"context"
	"time"
)

// Role defines a public type used by gradauth APIs.
//
// Role instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Role string

const (
	// RoleUser is an exported constant or variable used by the authentication engine.
	RoleUser Role = "user"
	// RoleAdmin is an exported constant or variable used by the authentication engine.
	RoleAdmin Role = "admin"
)

// Valid describes the valid operation and its observable behavior.
//
// Valid may return an error when input validation, dependency calls, or security checks fail.
// Valid does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// UserRecord is the full account record returned by [UserDirectory].
// It carries the credential hash, role, and verification state.
type UserRecord struct {
	UserID        string
	Email         string
	Name          string
	PasswordHash  string
	Role          Role
	EmailVerified bool
	CreatedAt     time.Time
}

// CreateUserInput is the input for [UserDirectory.CreateUser].
type CreateUserInput struct {
	Email         string
	Name          string
	PasswordHash  string
	Role          Role
	EmailVerified bool
}

// UserDirectory is the primary interface that callers must implement to
// integrate gradauth with their user database. It covers credential lookup,
// account creation, password updates, verification state, and role changes.
//
// Email lookups receive addresses already folded to lower case. CreateUser
// must return [ErrDirectoryDuplicateEmail] when the email is taken.
type UserDirectory interface {
	GetUserByID(ctx context.Context, userID string) (UserRecord, error)
	GetUserByEmail(ctx context.Context, email string) (UserRecord, error)
	CreateUser(ctx context.Context, input CreateUserInput) (UserRecord, error)
	UpdatePasswordHash(ctx context.Context, userID, newHash string) error
	SetEmailVerified(ctx context.Context, userID string) error
	UpdateRole(ctx context.Context, userID string, role Role) (UserRecord, error)
	CountAdmins(ctx context.Context) (int, error)
}

// Delivery reports what happened to an outbound notification. DryRun is set
// when no mail transport is configured; the flow still commits its token.
// Token carries the raw one-time secret only when ExposeDevTokens is set,
// which ProductionMode forbids.
type Delivery struct {
	Sent   bool
	DryRun bool
	Token  string
}

// Notifier sends one-time secrets to account holders. Implementations must
// not retain the raw token beyond the send attempt.
type Notifier interface {
	SendEmailVerification(ctx context.Context, email, token string) (Delivery, error)
	SendPasswordReset(ctx context.Context, email, token string) (Delivery, error)
}

// Identity is the assertion payload extracted by an [IdentityVerifier].
type Identity struct {
	Email         string
	Name          string
	EmailVerified bool
}

// IdentityVerifier checks a third-party identity assertion (such as a Google
// ID token) and extracts the asserted email.
type IdentityVerifier interface {
	Verify(ctx context.Context, assertion string) (Identity, error)
}

// SessionResult is returned by the session-establishing flows. It carries the
// freshly issued access/refresh pair and the authenticated user.
type SessionResult struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	User         UserRecord
}

// SignupRequest is the input for [Engine.Signup].
type SignupRequest struct {
	Email    string
	Name     string
	Password string
}

// AuthResult is returned by [Engine.ValidateAccess]. It contains the
// authenticated user’s ID and role as asserted by the access token.
type AuthResult struct {
	UserID string
	Role   Role
}
