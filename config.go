package gradauth

import (
	"errors"
	"strings"
	"time"
)

// Config defines a public type used by gradauth APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	JWT       JWTConfig
	Password  PasswordConfig
	Refresh   RefreshConfig
	OneTime   OneTimeConfig
	RateLimit RateLimitConfig
	Admin     AdminConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
	Security  SecurityConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig defines a public type used by gradauth APIs.
//
// JWTConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type JWTConfig struct {
	AccessTTL     time.Duration
	SigningMethod string // "hs256" (default), "ed25519" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig defines a public type used by gradauth APIs.
//
// PasswordConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type PasswordConfig struct {
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	MinLength      int
	MaxLength      int
	UpgradeOnLogin bool
}

// RefreshConfig defines a public type used by gradauth APIs.
//
// RefreshConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type RefreshConfig struct {
	TTL time.Duration
}

// OneTimeConfig defines a public type used by gradauth APIs.
//
// OneTimeConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type OneTimeConfig struct {
	VerificationTTL time.Duration
	ResetTTL        time.Duration
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig defines a public type used by gradauth APIs.
//
// Limits are counted per actor over the shared sliding Window. A limit of
// zero disables the check for that action.
type RateLimitConfig struct {
	Enabled bool
	Window  time.Duration

	Signup  int
	Login   int
	Google  int
	Refresh int
	Logout  int
	Email   int
}

// AdminConfig defines a public type used by gradauth APIs.
//
// Emails lists addresses promoted to the admin role at account creation and
// re-checked at every login. Promotion only: removal from the list never
// demotes an existing admin.
type AdminConfig struct {
	Emails []string
}

// AuditConfig defines a public type used by gradauth APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig defines a public type used by gradauth APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig defines a public type used by gradauth APIs.
//
// SecurityConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SecurityConfig struct {
	ProductionMode  bool
	ExposeDevTokens bool
}

// Signing secrets that ship in examples and must never reach production.
var defaultSecretValues = map[string]struct{}{
	"":                                      {},
	"your-secret-key-change-in-production": {},
	"changeme":                              {},
	"secret":                                {},
	"default":                               {},
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig describes the defaultconfig operation and its observable behavior.
//
// The returned value is a development baseline: callers must still supply a
// signing key and flip ProductionMode before deploying.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			SigningMethod: "hs256",
		},
		Password: PasswordConfig{
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			MinLength:      8,
			MaxLength:      128,
			UpgradeOnLogin: true,
		},
		Refresh: RefreshConfig{
			TTL: 30 * 24 * time.Hour,
		},
		OneTime: OneTimeConfig{
			VerificationTTL: 24 * time.Hour,
			ResetTTL:        60 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			Window:  10 * time.Minute,
			Signup:  10,
			Login:   30,
			Google:  25,
			Refresh: 120,
			Logout:  120,
			Email:   20,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Security: SecurityConfig{
			ProductionMode:  false,
			ExposeDevTokens: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	if len(cfg.Admin.Emails) > 0 {
		out.Admin.Emails = make([]string, len(cfg.Admin.Emails))
		copy(out.Admin.Emails, cfg.Admin.Emails)
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.SigningMethod != "hs256" && c.JWT.SigningMethod != "ed25519" {
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.SigningMethod == "hs256" && len(c.JWT.PrivateKey) == 0 {
		return errors.New("hs256 requires PrivateKey")
	}
	if c.JWT.SigningMethod == "ed25519" && len(c.JWT.PrivateKey) == 0 {
		return errors.New("ed25519 requires PrivateKey")
	}
	if c.JWT.SigningMethod == "ed25519" && len(c.JWT.PublicKey) == 0 {
		return errors.New("ed25519 requires PublicKey")
	}

	// Refresh
	if c.Refresh.TTL <= 0 {
		return errors.New("Refresh TTL must be > 0")
	}

	// One-time tokens
	if c.OneTime.VerificationTTL <= 0 {
		return errors.New("OneTime VerificationTTL must be > 0")
	}
	if c.OneTime.ResetTTL <= 0 {
		return errors.New("OneTime ResetTTL must be > 0")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}
	if c.Password.MaxLength < c.Password.MinLength {
		return errors.New("Password MaxLength must be >= MinLength")
	}

	// Rate limiting
	if c.RateLimit.Enabled {
		if c.RateLimit.Window <= 0 {
			return errors.New("RateLimit Window must be > 0 when rate limiting is enabled")
		}
		if c.RateLimit.Signup < 0 || c.RateLimit.Login < 0 || c.RateLimit.Google < 0 ||
			c.RateLimit.Refresh < 0 || c.RateLimit.Logout < 0 || c.RateLimit.Email < 0 {
			return errors.New("RateLimit limits must be >= 0")
		}
	}

	// Admin allow-list
	for _, email := range c.Admin.Emails {
		if strings.TrimSpace(email) == "" {
			return errors.New("Admin Emails must not contain empty entries")
		}
	}

	// Audit
	if c.Audit.Enabled {
		if c.Audit.BufferSize <= 0 {
			return errors.New("Audit BufferSize must be > 0 when audit is enabled")
		}
	}

	if c.Security.ProductionMode {
		if c.JWT.AccessTTL > 15*time.Minute {
			return errors.New("ProductionMode requires JWT AccessTTL <= 15m")
		}
		if c.Refresh.TTL > 30*24*time.Hour {
			return errors.New("ProductionMode requires Refresh TTL <= 30d")
		}
		if c.JWT.SigningMethod == "hs256" {
			if len(c.JWT.PrivateKey) < 32 {
				return errors.New("ProductionMode requires hs256 key length >= 256 bits")
			}
			if _, known := defaultSecretValues[string(c.JWT.PrivateKey)]; known {
				return errors.New("ProductionMode forbids known default signing secrets")
			}
		}
		if c.Security.ExposeDevTokens {
			return errors.New("ProductionMode forbids ExposeDevTokens")
		}
		if c.Password.Memory < 64*1024 {
			return errors.New("ProductionMode requires Password Memory >= 65536 KB")
		}
		if c.Password.Time < 2 {
			return errors.New("ProductionMode requires Password Time >= 2")
		}
		if c.Password.KeyLength < 32 {
			return errors.New("ProductionMode requires Password KeyLength >= 32")
		}
	}

	return nil
}

// devSecretWarning reports whether the signing secret is acceptable only for
// development. Mirrors the ProductionMode hardening check without failing.
func (c *Config) devSecretWarning() bool {
	if c.JWT.SigningMethod != "hs256" {
		return false
	}
	if _, known := defaultSecretValues[string(c.JWT.PrivateKey)]; known {
		return true
	}
	return len(c.JWT.PrivateKey) < 32
}
