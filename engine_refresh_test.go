package gradauth

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/gradauth/store"
)

func TestRefreshRotatesToken(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	session := env.signup(t, "alice@example.com", "correct horse battery")

	rotated, err := env.engine.Refresh(context.Background(), session.RefreshToken)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if rotated.RefreshToken == session.RefreshToken {
		t.Fatalf("refresh token was not rotated")
	}
	if rotated.User.UserID != session.User.UserID {
		t.Fatalf("rotation changed the session owner")
	}

	if _, err := env.engine.Refresh(context.Background(), session.RefreshToken); err != ErrTokenInvalid {
		t.Fatalf("expected ErrTokenInvalid for replay, got %v", err)
	}
}

func TestRefreshUnknownToken(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	if _, err := env.engine.Refresh(context.Background(), "never-issued"); err != ErrTokenInvalid {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestRefreshExpiredToken(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.Refresh.TTL = time.Hour
	}, nil)
	session := env.signup(t, "alice@example.com", "correct horse battery")

	env.clock.Advance(2 * time.Hour)

	if _, err := env.engine.Refresh(context.Background(), session.RefreshToken); err != ErrTokenInvalid {
		t.Fatalf("expected ErrTokenInvalid for expired token, got %v", err)
	}
	// The first touch burned the row; a later retry inside a hypothetical
	// clock rollback must not revive it.
	if _, err := env.engine.Refresh(context.Background(), session.RefreshToken); err != ErrTokenInvalid {
		t.Fatalf("expected ErrTokenInvalid on second touch, got %v", err)
	}
}

func TestRefreshConcurrentSingleWinner(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.RateLimit.Enabled = false
	}, nil)
	session := env.signup(t, "alice@example.com", "correct horse battery")

	const racers = 16

	var (
		wg     sync.WaitGroup
		wins   int64
		losses int64
		start  = make(chan struct{})
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := env.engine.Refresh(context.Background(), session.RefreshToken)
			switch err {
			case nil:
				atomic.AddInt64(&wins, 1)
			case ErrTokenInvalid:
				atomic.AddInt64(&losses, 1)
			default:
				t.Errorf("unexpected refresh error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d (losses %d)", wins, losses)
	}
	if losses != racers-1 {
		t.Fatalf("expected %d losers, got %d", racers-1, losses)
	}
}

func TestRefreshReappliesAllowListPromotion(t *testing.T) {
	shared := store.NewMemory()
	env := newTestEnv(t, nil, func(b *Builder) {
		b.WithStores(shared, shared)
	})
	session := env.signup(t, "alice@example.com", "correct horse battery")
	if session.User.Role != RoleUser {
		t.Fatalf("precondition: expected plain user")
	}

	// Rebuild with the address on the allow-list; the shared stores carry the
	// refresh row over, so the old session can still be exchanged.
	cfg := testConfig()
	cfg.Admin.Emails = []string{"alice@example.com"}
	promotedEngine, err := New().
		WithConfig(cfg).
		WithUserDirectory(env.directory).
		WithStores(shared, shared).
		WithClock(env.clock.Now).
		Build()
	if err != nil {
		t.Fatalf("rebuild failed: %v", err)
	}
	t.Cleanup(promotedEngine.Close)

	refreshed, err := promotedEngine.Refresh(context.Background(), session.RefreshToken)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if refreshed.User.Role != RoleAdmin {
		t.Fatalf("refresh did not re-apply allow-list promotion: %q", refreshed.User.Role)
	}

	stored, err := env.directory.GetUserByID(context.Background(), session.User.UserID)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if stored.Role != RoleAdmin {
		t.Fatalf("promotion not persisted: %q", stored.Role)
	}
}

func TestLogoutRevokesPresentedToken(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	session := env.signup(t, "alice@example.com", "correct horse battery")

	userID := session.User.UserID
	if err := env.engine.Logout(context.Background(), userID, session.RefreshToken); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	if _, err := env.engine.Refresh(context.Background(), session.RefreshToken); err != ErrTokenInvalid {
		t.Fatalf("expected ErrTokenInvalid after logout, got %v", err)
	}

	// Idempotent: replaying the revocation is a quiet success.
	if err := env.engine.Logout(context.Background(), userID, session.RefreshToken); err != nil {
		t.Fatalf("replayed logout failed: %v", err)
	}
	if err := env.engine.Logout(context.Background(), userID, ""); err != nil {
		t.Fatalf("empty-token logout failed: %v", err)
	}
}

func TestLogoutScopedToCaller(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	alice := env.signup(t, "alice@example.com", "correct horse battery")
	bob := env.signup(t, "bob@example.com", "correct horse battery")

	// Bob presenting Alice's refresh token succeeds quietly but revokes
	// nothing of hers.
	if err := env.engine.Logout(context.Background(), bob.User.UserID, alice.RefreshToken); err != nil {
		t.Fatalf("cross-user logout failed: %v", err)
	}
	if _, err := env.engine.Refresh(context.Background(), alice.RefreshToken); err != nil {
		t.Fatalf("alice's session should survive bob's logout: %v", err)
	}
}

func TestLogoutAllRevokesEverySession(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	first := env.signup(t, "alice@example.com", "correct horse battery")

	second, err := env.engine.Login(context.Background(), "alice@example.com", "correct horse battery")
	if err != nil {
		t.Fatalf("second login failed: %v", err)
	}

	if err := env.engine.LogoutAll(context.Background(), first.User.UserID); err != nil {
		t.Fatalf("logout all failed: %v", err)
	}

	for _, token := range []string{first.RefreshToken, second.RefreshToken} {
		if _, err := env.engine.Refresh(context.Background(), token); err != ErrTokenInvalid {
			t.Fatalf("expected ErrTokenInvalid after logout all, got %v", err)
		}
	}

	// A caller with no live rows still gets a success.
	if err := env.engine.LogoutAll(context.Background(), first.User.UserID); err != nil {
		t.Fatalf("repeated logout all failed: %v", err)
	}
}
