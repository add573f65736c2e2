package store

import (
	"context"
	"sync"
	"time"
)

// Memory is a mutex-guarded in-process implementation of [RefreshStore] and
// [OneTimeStore]. It is the reference implementation used by the engine's
// unit tests and the development server.
type Memory struct {
	mu            sync.Mutex
	refresh       map[string]*RefreshToken
	refreshByUser map[string]map[string]struct{}
	oneTime       map[string]*OneTimeToken
	oneTimeByPair map[string]string
}

// NewMemory describes the newmemory operation and its observable behavior.
//
// NewMemory may return an error when input validation, dependency calls, or security checks fail.
// NewMemory does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewMemory() *Memory {
	return &Memory{
		refresh:       make(map[string]*RefreshToken),
		refreshByUser: make(map[string]map[string]struct{}),
		oneTime:       make(map[string]*OneTimeToken),
		oneTimeByPair: make(map[string]string),
	}
}

// Create describes the create operation and its observable behavior.
//
// Create may return an error when input validation, dependency calls, or security checks fail.
// Create does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Memory) Create(_ context.Context, token RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	row := token
	m.refresh[token.Digest] = &row

	digests, ok := m.refreshByUser[token.UserID]
	if !ok {
		digests = make(map[string]struct{})
		m.refreshByUser[token.UserID] = digests
	}
	digests[token.Digest] = struct{}{}

	return nil
}

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Memory) Validate(_ context.Context, digest string, now time.Time) (RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, err := m.liveRefreshLocked(digest, now)
	if err != nil {
		return RefreshToken{}, err
	}
	return *row, nil
}

// Rotate describes the rotate operation and its observable behavior.
//
// The shared mutex makes validate-and-revoke a single step: of N concurrent
// calls for one digest, exactly one observes the unrevoked row.
func (m *Memory) Rotate(_ context.Context, digest string, now time.Time) (RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, err := m.liveRefreshLocked(digest, now)
	if err != nil {
		return RefreshToken{}, err
	}

	row.Revoked = true
	return *row, nil
}

// Revoke describes the revoke operation and its observable behavior.
//
// Revoke may return an error when input validation, dependency calls, or security checks fail.
// Revoke does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Memory) Revoke(_ context.Context, userID, digest string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.refresh[digest]
	if !ok || row.UserID != userID {
		// Absent or foreign rows are a no-op; revocation is idempotent.
		return nil
	}
	row.Revoked = true
	return nil
}

// RevokeAllForUser describes the revokeallforuser operation and its observable behavior.
//
// RevokeAllForUser may return an error when input validation, dependency calls, or security checks fail.
// RevokeAllForUser does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Memory) RevokeAllForUser(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for digest := range m.refreshByUser[userID] {
		if row, ok := m.refresh[digest]; ok {
			row.Revoked = true
		}
	}
	return nil
}

// Issue describes the issue operation and its observable behavior.
//
// Issue may return an error when input validation, dependency calls, or security checks fail.
// Issue does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Memory) Issue(_ context.Context, token OneTimeToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pair := pairKey(token.UserID, token.Purpose)
	if prior, ok := m.oneTimeByPair[pair]; ok {
		if row, exists := m.oneTime[prior]; exists {
			row.Used = true
		}
	}

	row := token
	m.oneTime[token.Digest] = &row
	m.oneTimeByPair[pair] = token.Digest

	return nil
}

// Consume describes the consume operation and its observable behavior.
//
// Expired rows are burned on first touch so a retry cannot distinguish
// expiry from absence.
func (m *Memory) Consume(_ context.Context, digest string, purpose Purpose, now time.Time) (OneTimeToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.oneTime[digest]
	if !ok || row.Used || row.Purpose != purpose {
		return OneTimeToken{}, ErrTokenNotFound
	}

	row.Used = true
	if !now.Before(row.ExpiresAt) {
		return OneTimeToken{}, ErrTokenNotFound
	}

	return *row, nil
}

func (m *Memory) liveRefreshLocked(digest string, now time.Time) (*RefreshToken, error) {
	row, ok := m.refresh[digest]
	if !ok || row.Revoked {
		return nil, ErrTokenNotFound
	}
	if !now.Before(row.ExpiresAt) {
		row.Revoked = true
		return nil, ErrTokenNotFound
	}
	return row, nil
}

func pairKey(userID string, purpose Purpose) string {
	return userID + ":" + string(purpose)
}
