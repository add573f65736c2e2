// Package directory provides the bundled in-memory [gradauth.UserDirectory].
// It backs the development server and the engine's test suites; production
// deployments implement the interface over their own user database.
package directory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	gradauth "github.com/MrEthical07/gradauth"
)

// Memory defines a public type used by gradauth APIs.
//
// Memory instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Memory struct {
	mu      sync.RWMutex
	byID    map[string]*gradauth.UserRecord
	byEmail map[string]string
}

// NewMemory describes the newmemory operation and its observable behavior.
//
// NewMemory may return an error when input validation, dependency calls, or security checks fail.
// NewMemory does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewMemory() *Memory {
	return &Memory{
		byID:    make(map[string]*gradauth.UserRecord),
		byEmail: make(map[string]string),
	}
}

// GetUserByID describes the getuserbyid operation and its observable behavior.
//
// GetUserByID may return an error when input validation, dependency calls, or security checks fail.
// GetUserByID does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Memory) GetUserByID(_ context.Context, userID string) (gradauth.UserRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.byID[userID]
	if !ok {
		return gradauth.UserRecord{}, gradauth.ErrUserNotFound
	}
	return *user, nil
}

// GetUserByEmail describes the getuserbyemail operation and its observable behavior.
//
// GetUserByEmail may return an error when input validation, dependency calls, or security checks fail.
// GetUserByEmail does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Memory) GetUserByEmail(_ context.Context, email string) (gradauth.UserRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byEmail[email]
	if !ok {
		return gradauth.UserRecord{}, gradauth.ErrUserNotFound
	}
	return *m.byID[id], nil
}

// CreateUser describes the createuser operation and its observable behavior.
//
// CreateUser may return an error when input validation, dependency calls, or security checks fail.
// CreateUser does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Memory) CreateUser(_ context.Context, input gradauth.CreateUserInput) (gradauth.UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.byEmail[input.Email]; taken {
		return gradauth.UserRecord{}, gradauth.ErrDirectoryDuplicateEmail
	}

	role := input.Role
	if !role.Valid() {
		role = gradauth.RoleUser
	}

	user := &gradauth.UserRecord{
		UserID:        uuid.NewString(),
		Email:         input.Email,
		Name:          input.Name,
		PasswordHash:  input.PasswordHash,
		Role:          role,
		EmailVerified: input.EmailVerified,
		CreatedAt:     time.Now(),
	}

	m.byID[user.UserID] = user
	m.byEmail[user.Email] = user.UserID

	return *user, nil
}

// UpdatePasswordHash describes the updatepasswordhash operation and its observable behavior.
//
// UpdatePasswordHash may return an error when input validation, dependency calls, or security checks fail.
// UpdatePasswordHash does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Memory) UpdatePasswordHash(_ context.Context, userID, newHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.byID[userID]
	if !ok {
		return gradauth.ErrUserNotFound
	}
	user.PasswordHash = newHash
	return nil
}

// SetEmailVerified describes the setemailverified operation and its observable behavior.
//
// SetEmailVerified may return an error when input validation, dependency calls, or security checks fail.
// SetEmailVerified does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Memory) SetEmailVerified(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.byID[userID]
	if !ok {
		return gradauth.ErrUserNotFound
	}
	user.EmailVerified = true
	return nil
}

// UpdateRole describes the updaterole operation and its observable behavior.
//
// UpdateRole may return an error when input validation, dependency calls, or security checks fail.
// UpdateRole does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Memory) UpdateRole(_ context.Context, userID string, role gradauth.Role) (gradauth.UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.byID[userID]
	if !ok {
		return gradauth.UserRecord{}, gradauth.ErrUserNotFound
	}
	if !role.Valid() {
		return gradauth.UserRecord{}, gradauth.ErrRoleInvalid
	}

	user.Role = role
	return *user, nil
}

// CountAdmins describes the countadmins operation and its observable behavior.
//
// CountAdmins may return an error when input validation, dependency calls, or security checks fail.
// CountAdmins does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Memory) CountAdmins(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, user := range m.byID {
		if user.Role == gradauth.RoleAdmin {
			count++
		}
	}
	return count, nil
}
