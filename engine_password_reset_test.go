package gradauth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPasswordResetFlow(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	session := env.signup(t, "alice@example.com", "correct horse battery")

	if _, err := env.engine.ForgotPassword(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("forgot failed: %v", err)
	}
	token := env.notifier.lastResetToken(t)

	if err := env.engine.ResetPassword(context.Background(), token, "an entirely new phrase"); err != nil {
		t.Fatalf("reset failed: %v", err)
	}

	if _, err := env.engine.Login(context.Background(), "alice@example.com", "correct horse battery"); err != ErrInvalidCredentials {
		t.Fatalf("old password still accepted: %v", err)
	}
	if _, err := env.engine.Login(context.Background(), "alice@example.com", "an entirely new phrase"); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}

	// Sessions issued under the old credential are dead.
	if _, err := env.engine.Refresh(context.Background(), session.RefreshToken); err != ErrTokenInvalid {
		t.Fatalf("expected ErrTokenInvalid after reset, got %v", err)
	}
}

func TestPasswordResetTokenConsumesOnce(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.signup(t, "alice@example.com", "correct horse battery")

	if _, err := env.engine.ForgotPassword(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("forgot failed: %v", err)
	}
	token := env.notifier.lastResetToken(t)

	if err := env.engine.ResetPassword(context.Background(), token, "an entirely new phrase"); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if err := env.engine.ResetPassword(context.Background(), token, "yet another phrase!"); err != ErrTokenInvalid {
		t.Fatalf("expected ErrTokenInvalid for replay, got %v", err)
	}
}

func TestPasswordResetReissueInvalidatesPrior(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.signup(t, "alice@example.com", "correct horse battery")

	if _, err := env.engine.ForgotPassword(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("first forgot failed: %v", err)
	}
	first := env.notifier.lastResetToken(t)

	if _, err := env.engine.ForgotPassword(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("second forgot failed: %v", err)
	}

	if err := env.engine.ResetPassword(context.Background(), first, "an entirely new phrase"); err != ErrTokenInvalid {
		t.Fatalf("expected superseded token to fail, got %v", err)
	}
}

func TestPasswordResetUnknownEmailQuietSuccess(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	// Quiet success with no token, so the endpoint never leaks whether an
	// address is registered.
	delivery, err := env.engine.ForgotPassword(context.Background(), "ghost@example.com")
	if err != nil {
		t.Fatalf("unknown address must not error: %v", err)
	}
	if delivery.Sent || delivery.DryRun || delivery.Token != "" {
		t.Fatalf("no token should be issued for an unknown address: %+v", delivery)
	}
	if len(env.notifier.resetTokens) != 0 {
		t.Fatalf("notifier was invoked for an unknown address")
	}
}

func TestPasswordResetDeliveryFailureDegradesToDryRun(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.Security.ExposeDevTokens = true
	}, nil)
	env.signup(t, "alice@example.com", "correct horse battery")

	env.notifier.sendErr = errors.New("relay down")
	delivery, err := env.engine.ForgotPassword(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("delivery failure must not fail the flow: %v", err)
	}
	if !delivery.DryRun || delivery.Sent {
		t.Fatalf("expected dry-run degradation, got %+v", delivery)
	}

	// The token was committed before delivery was attempted and stays live.
	if err := env.engine.ResetPassword(context.Background(), delivery.Token, "an entirely new phrase"); err != nil {
		t.Fatalf("reset with committed token failed: %v", err)
	}
}

func TestPasswordResetExpiredToken(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.OneTime.ResetTTL = 30 * time.Minute
	}, nil)
	env.signup(t, "alice@example.com", "correct horse battery")

	if _, err := env.engine.ForgotPassword(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("forgot failed: %v", err)
	}
	token := env.notifier.lastResetToken(t)

	env.clock.Advance(time.Hour)

	if err := env.engine.ResetPassword(context.Background(), token, "an entirely new phrase"); err != ErrTokenInvalid {
		t.Fatalf("expected ErrTokenInvalid for expired token, got %v", err)
	}
}

func TestPasswordResetPolicyStillApplies(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.signup(t, "alice@example.com", "correct horse battery")

	if _, err := env.engine.ForgotPassword(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("forgot failed: %v", err)
	}
	token := env.notifier.lastResetToken(t)

	if err := env.engine.ResetPassword(context.Background(), token, "short"); err != ErrPasswordPolicy {
		t.Fatalf("expected ErrPasswordPolicy, got %v", err)
	}
}

func TestPasswordResetPurposeIsolation(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.signup(t, "alice@example.com", "correct horse battery")

	// A verification token must not reset a password.
	if _, err := env.engine.RequestEmailVerification(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("request failed: %v", err)
	}
	verifyToken := env.notifier.lastVerifyToken(t)

	if err := env.engine.ResetPassword(context.Background(), verifyToken, "an entirely new phrase"); err != ErrTokenInvalid {
		t.Fatalf("expected ErrTokenInvalid across purposes, got %v", err)
	}
	// The mismatch must not burn the verification token.
	if err := env.engine.VerifyEmail(context.Background(), verifyToken); err != nil {
		t.Fatalf("verification token was burned by a purpose mismatch: %v", err)
	}
}

/*
====================================
AUTHENTICATED PASSWORD CHANGE
====================================
*/

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	session := env.signup(t, "alice@example.com", "correct horse battery")

	err := env.engine.ChangePassword(context.Background(), session.User.UserID, "correct horse battery", "an entirely new phrase")
	if err != nil {
		t.Fatalf("change failed: %v", err)
	}

	if _, err := env.engine.Login(context.Background(), "alice@example.com", "an entirely new phrase"); err != nil {
		t.Fatalf("login with new password failed: %v", err)
	}
	if _, err := env.engine.Refresh(context.Background(), session.RefreshToken); err != ErrTokenInvalid {
		t.Fatalf("expected ErrTokenInvalid after change, got %v", err)
	}
}

func TestChangePasswordWrongOld(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	session := env.signup(t, "alice@example.com", "correct horse battery")

	err := env.engine.ChangePassword(context.Background(), session.User.UserID, "wrong old pass", "an entirely new phrase")
	if err != ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestChangePasswordRejectsReuse(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	session := env.signup(t, "alice@example.com", "correct horse battery")

	err := env.engine.ChangePassword(context.Background(), session.User.UserID, "correct horse battery", "correct horse battery")
	if err != ErrPasswordReuse {
		t.Fatalf("expected ErrPasswordReuse, got %v", err)
	}
}
