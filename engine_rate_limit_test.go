package gradauth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLoginRateLimitPerEmail(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.RateLimit.Login = 3
		cfg.RateLimit.Window = time.Minute
	}, nil)

	for i := 0; i < 3; i++ {
		if _, err := env.engine.Login(context.Background(), "alice@example.com", "wrong"); err != ErrInvalidCredentials {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i, err)
		}
	}

	_, err := env.engine.Login(context.Background(), "alice@example.com", "wrong")
	var rlErr *RateLimitError
	if !errors.As(err, &rlErr) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("RateLimitError does not match ErrRateLimited")
	}
	if rlErr.Action != "login" {
		t.Fatalf("unexpected action: %q", rlErr.Action)
	}
	if rlErr.RetryAfter <= 0 {
		t.Fatalf("retry-after not populated: %v", rlErr.RetryAfter)
	}

	// A different actor is unaffected.
	if _, err := env.engine.Login(context.Background(), "bob@example.com", "wrong"); err != ErrInvalidCredentials {
		t.Fatalf("other actor limited: %v", err)
	}
}

func TestRateLimitWindowSlides(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.RateLimit.Login = 2
		cfg.RateLimit.Window = time.Minute
	}, nil)

	for i := 0; i < 2; i++ {
		_, _ = env.engine.Login(context.Background(), "alice@example.com", "wrong")
	}
	if _, err := env.engine.Login(context.Background(), "alice@example.com", "wrong"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected rate limit, got %v", err)
	}

	env.clock.Advance(61 * time.Second)

	if _, err := env.engine.Login(context.Background(), "alice@example.com", "wrong"); err != ErrInvalidCredentials {
		t.Fatalf("window did not slide: %v", err)
	}
}

func TestRateLimitRetryAfterShrinksAsWindowMoves(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.RateLimit.Login = 1
		cfg.RateLimit.Window = time.Minute
	}, nil)

	_, _ = env.engine.Login(context.Background(), "alice@example.com", "wrong")

	_, err := env.engine.Login(context.Background(), "alice@example.com", "wrong")
	var first *RateLimitError
	if !errors.As(err, &first) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}

	env.clock.Advance(30 * time.Second)

	_, err = env.engine.Login(context.Background(), "alice@example.com", "wrong")
	var second *RateLimitError
	if !errors.As(err, &second) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if second.RetryAfter >= first.RetryAfter {
		t.Fatalf("retry-after did not shrink: %v then %v", first.RetryAfter, second.RetryAfter)
	}
}

func TestSignupRateLimit(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.RateLimit.Signup = 1
		cfg.RateLimit.Window = time.Minute
	}, nil)

	env.signup(t, "alice@example.com", "correct horse battery")

	if _, err := env.engine.Signup(context.Background(), SignupRequest{
		Email:    "alice@example.com",
		Password: "correct horse battery",
	}); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected rate limit, got %v", err)
	}
	if env.engine.MetricsSnapshot().Counters[MetricSignupRateLimited] != 1 {
		t.Fatalf("signup rate-limit counter not incremented")
	}
}

func TestEmailFlowsShareOneBudget(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.RateLimit.Email = 2
		cfg.RateLimit.Window = time.Minute
	}, nil)
	env.signup(t, "alice@example.com", "correct horse battery")

	if _, err := env.engine.RequestEmailVerification(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("verification request failed: %v", err)
	}
	if _, err := env.engine.ForgotPassword(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("forgot failed: %v", err)
	}

	// Both flows draw on the same email budget for the actor.
	if _, err := env.engine.ForgotPassword(context.Background(), "alice@example.com"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected rate limit, got %v", err)
	}
}

func TestRateLimitDisabled(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.RateLimit.Enabled = false
	}, nil)

	for i := 0; i < 50; i++ {
		if _, err := env.engine.Login(context.Background(), "alice@example.com", "wrong"); err != ErrInvalidCredentials {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i, err)
		}
	}
}

func TestRateLimitHitCounter(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.RateLimit.Login = 1
		cfg.RateLimit.Window = time.Minute
	}, nil)

	_, _ = env.engine.Login(context.Background(), "alice@example.com", "wrong")
	_, _ = env.engine.Login(context.Background(), "alice@example.com", "wrong")

	snap := env.engine.MetricsSnapshot()
	if snap.Counters[MetricRateLimitHit] != 1 {
		t.Fatalf("rate-limit hit counter: got %d", snap.Counters[MetricRateLimitHit])
	}
	if snap.Counters[MetricLoginRateLimited] != 1 {
		t.Fatalf("login rate-limited counter: got %d", snap.Counters[MetricLoginRateLimited])
	}
}
