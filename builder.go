package gradauth

import (
	"errors"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/gradauth/jwt"
	"github.com/MrEthical07/gradauth/password"
	"github.com/MrEthical07/gradauth/rate"
	"github.com/MrEthical07/gradauth/store"
)

// Builder defines a public type used by gradauth APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	refreshStore store.RefreshStore
	oneTimeStore store.OneTimeStore

	directory UserDirectory
	notifier  Notifier
	identity  IdentityVerifier
	auditSink AuditSink
	clock     func() time.Time

	built bool
}

// New describes the new operation and its observable behavior.
//
// New may return an error when input validation, dependency calls, or security checks fail.
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig may return an error when input validation, dependency calls, or security checks fail.
// WithConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis describes the withredis operation and its observable behavior.
//
// WithRedis may return an error when input validation, dependency calls, or security checks fail.
// WithRedis does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithStores describes the withstores operation and its observable behavior.
//
// Explicit stores take precedence over the Redis client and the in-memory
// fallback.
func (b *Builder) WithStores(refresh store.RefreshStore, oneTime store.OneTimeStore) *Builder {
	b.refreshStore = refresh
	b.oneTimeStore = oneTime
	return b
}

// WithUserDirectory describes the withuserdirectory operation and its observable behavior.
//
// WithUserDirectory may return an error when input validation, dependency calls, or security checks fail.
// WithUserDirectory does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithUserDirectory(dir UserDirectory) *Builder {
	b.directory = dir
	return b
}

// WithNotifier describes the withnotifier operation and its observable behavior.
//
// WithNotifier may return an error when input validation, dependency calls, or security checks fail.
// WithNotifier does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithIdentityVerifier describes the withidentityverifier operation and its observable behavior.
//
// WithIdentityVerifier may return an error when input validation, dependency calls, or security checks fail.
// WithIdentityVerifier does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithIdentityVerifier(v IdentityVerifier) *Builder {
	b.identity = v
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// WithAuditSink may return an error when input validation, dependency calls, or security checks fail.
// WithAuditSink does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock describes the withclock operation and its observable behavior.
//
// Intended for expiry and rate-limit tests.
func (b *Builder) WithClock(clock func() time.Time) *Builder {
	b.clock = clock
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
//
// WithMetricsEnabled may return an error when input validation, dependency calls, or security checks fail.
// WithMetricsEnabled does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms describes the withlatencyhistograms operation and its observable behavior.
//
// WithLatencyHistograms may return an error when input validation, dependency calls, or security checks fail.
// WithLatencyHistograms does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build may return an error when input validation, dependency calls, or security checks fail.
// Build does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.directory == nil {
		return nil, errors.New("user directory required")
	}

	if !cfg.Security.ProductionMode && cfg.devSecretWarning() {
		log.Print("gradauth: signing secret is not production-safe; set a random key of at least 32 bytes")
	}

	clock := b.clock
	if clock == nil {
		clock = time.Now
	}

	// -------- TOKEN STORES --------
	refreshStore := b.refreshStore
	oneTimeStore := b.oneTimeStore
	if refreshStore == nil || oneTimeStore == nil {
		if b.redis != nil {
			rs := store.NewRedis(b.redis)
			if refreshStore == nil {
				refreshStore = rs
			}
			if oneTimeStore == nil {
				oneTimeStore = rs
			}
		} else {
			ms := store.NewMemory()
			if refreshStore == nil {
				refreshStore = ms
			}
			if oneTimeStore == nil {
				oneTimeStore = ms
			}
		}
	}

	engine := &Engine{
		config:        cfg,
		userDirectory: b.directory,
		refreshStore:  refreshStore,
		oneTimeStore:  oneTimeStore,
		notifier:      b.notifier,
		identity:      b.identity,
		clock:         clock,
	}

	if cfg.RateLimit.Enabled {
		engine.rateLimiter = rate.New(rate.Clock(clock))
	}
	engine.audit = newAuditPump(cfg.Audit, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	engine.adminEmails = make(map[string]struct{}, len(cfg.Admin.Emails))
	for _, email := range cfg.Admin.Emails {
		engine.adminEmails[normalizeEmail(email)] = struct{}{}
	}

	ph, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
		MinLength:   cfg.Password.MinLength,
		MaxLength:   cfg.Password.MaxLength,
	})
	if err != nil {
		return nil, err
	}
	engine.passwordHash = ph

	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
	})
	if err != nil {
		return nil, err
	}
	engine.jwtManager = jm.WithClock(clock)

	b.built = true

	return engine, nil
}
