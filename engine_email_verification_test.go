package gradauth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestEmailVerificationTokenFlow(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	session := env.signup(t, "alice@example.com", "correct horse battery")

	delivery, err := env.engine.RequestEmailVerification(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if !delivery.Sent {
		t.Fatalf("delivery not marked sent: %+v", delivery)
	}

	token := env.notifier.lastVerifyToken(t)
	if err := env.engine.VerifyEmail(context.Background(), token); err != nil {
		t.Fatalf("verify failed: %v", err)
	}

	user, err := env.directory.GetUserByID(context.Background(), session.User.UserID)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if !user.EmailVerified {
		t.Fatalf("account not marked verified")
	}
}

func TestEmailVerificationConsumesOnce(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.signup(t, "alice@example.com", "correct horse battery")

	if _, err := env.engine.RequestEmailVerification(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("request failed: %v", err)
	}
	token := env.notifier.lastVerifyToken(t)

	if err := env.engine.VerifyEmail(context.Background(), token); err != nil {
		t.Fatalf("first consume failed: %v", err)
	}
	if err := env.engine.VerifyEmail(context.Background(), token); err != ErrTokenInvalid {
		t.Fatalf("expected ErrTokenInvalid for replay, got %v", err)
	}
}

func TestEmailVerificationReissueInvalidatesPrior(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.signup(t, "alice@example.com", "correct horse battery")

	if _, err := env.engine.RequestEmailVerification(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("first request failed: %v", err)
	}
	first := env.notifier.lastVerifyToken(t)

	if _, err := env.engine.RequestEmailVerification(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("second request failed: %v", err)
	}
	second := env.notifier.lastVerifyToken(t)

	if err := env.engine.VerifyEmail(context.Background(), first); err != ErrTokenInvalid {
		t.Fatalf("expected superseded token to fail, got %v", err)
	}
	if err := env.engine.VerifyEmail(context.Background(), second); err != nil {
		t.Fatalf("latest token failed: %v", err)
	}
}

func TestEmailVerificationExpiredToken(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.OneTime.VerificationTTL = time.Hour
	}, nil)
	env.signup(t, "alice@example.com", "correct horse battery")

	if _, err := env.engine.RequestEmailVerification(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("request failed: %v", err)
	}
	token := env.notifier.lastVerifyToken(t)

	env.clock.Advance(2 * time.Hour)

	if err := env.engine.VerifyEmail(context.Background(), token); err != ErrTokenInvalid {
		t.Fatalf("expected ErrTokenInvalid for expired token, got %v", err)
	}
	if err := env.engine.VerifyEmail(context.Background(), token); err != ErrTokenInvalid {
		t.Fatalf("expected burned token to stay dead, got %v", err)
	}
}

func TestEmailVerificationUnknownAccount(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	// Quiet success with no token, so the endpoint never leaks whether an
	// address is registered.
	delivery, err := env.engine.RequestEmailVerification(context.Background(), "ghost@example.com")
	if err != nil {
		t.Fatalf("unknown address must not error: %v", err)
	}
	if delivery.Sent || delivery.DryRun || delivery.Token != "" {
		t.Fatalf("no token should be issued for an unknown address: %+v", delivery)
	}
}

func TestEmailVerificationAlreadyVerified(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	session := env.signup(t, "alice@example.com", "correct horse battery")
	if err := env.directory.SetEmailVerified(context.Background(), session.User.UserID); err != nil {
		t.Fatalf("seed verified state: %v", err)
	}

	before := len(env.notifier.verifyTokens)
	delivery, err := env.engine.RequestEmailVerification(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("verified address must not error: %v", err)
	}
	if delivery.Sent || delivery.DryRun {
		t.Fatalf("no token should be issued for a verified address: %+v", delivery)
	}
	if len(env.notifier.verifyTokens) != before {
		t.Fatalf("notifier was invoked for a verified address")
	}
}

func TestEmailVerificationDeliveryFailureDegradesToDryRun(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.Security.ExposeDevTokens = true
	}, nil)
	env.signup(t, "alice@example.com", "correct horse battery")

	env.notifier.sendErr = errors.New("relay down")
	delivery, err := env.engine.RequestEmailVerification(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("delivery failure must not fail the flow: %v", err)
	}
	if !delivery.DryRun || delivery.Sent {
		t.Fatalf("expected dry-run degradation, got %+v", delivery)
	}

	// The token was committed before delivery was attempted and stays live.
	if err := env.engine.VerifyEmail(context.Background(), delivery.Token); err != nil {
		t.Fatalf("verify with committed token failed: %v", err)
	}
}

func TestEmailVerificationDryRunWithoutNotifier(t *testing.T) {
	cfg := testConfig()
	cfg.Security.ExposeDevTokens = true

	directory := newFakeDirectory()
	engine, err := New().
		WithConfig(cfg).
		WithUserDirectory(directory).
		Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	if _, err := engine.Signup(context.Background(), SignupRequest{
		Email:    "alice@example.com",
		Password: "correct horse battery",
	}); err != nil {
		t.Fatalf("signup failed: %v", err)
	}

	delivery, err := engine.RequestEmailVerification(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if !delivery.DryRun {
		t.Fatalf("expected dry-run delivery without a notifier")
	}
	if delivery.Token == "" {
		t.Fatalf("dev token not exposed")
	}
	if err := engine.VerifyEmail(context.Background(), delivery.Token); err != nil {
		t.Fatalf("verify with dev token failed: %v", err)
	}
}
