package gradauth

import (
	"context"
	"strings"
	"time"

	"github.com/MrEthical07/gradauth/internal/secrets"
	"github.com/MrEthical07/gradauth/jwt"
	"github.com/MrEthical07/gradauth/password"
	"github.com/MrEthical07/gradauth/rate"
	"github.com/MrEthical07/gradauth/store"
)

// Engine defines a public type used by gradauth APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config        Config
	userDirectory UserDirectory
	refreshStore  store.RefreshStore
	oneTimeStore  store.OneTimeStore
	rateLimiter   *rate.Limiter
	notifier      Notifier
	identity      IdentityVerifier
	audit         *auditPump
	metrics       *Metrics
	passwordHash  *password.Argon2
	jwtManager    *jwt.Manager
	clock         func() time.Time
	adminEmails   map[string]struct{}
}

// Close describes the close operation and its observable behavior.
//
// Close may return an error when input validation, dependency calls, or security checks fail.
// Close does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped describes the auditdropped operation and its observable behavior.
//
// AuditDropped may return an error when input validation, dependency calls, or security checks fail.
// AuditDropped does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot may return an error when input validation, dependency calls, or security checks fail.
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) now() time.Time {
	if e == nil || e.clock == nil {
		return time.Now()
	}
	return e.clock()
}

// ValidateAccess describes the validateaccess operation and its observable behavior.
//
// ValidateAccess may return an error when input validation, dependency calls, or security checks fail.
// ValidateAccess does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ValidateAccess(ctx context.Context, tokenStr string) (*AuthResult, error) {
	_ = ctx
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}
	if e.metrics != nil && e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() { e.metrics.Observe(MetricValidateLatency, time.Since(start)) }()
	}

	claims, err := e.jwtManager.ParseAccess(tokenStr)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	role := Role(claims.Role)
	if !role.Valid() {
		role = RoleUser
	}

	return &AuthResult{
		UserID: claims.Subject,
		Role:   role,
	}, nil
}

// CurrentUser describes the currentuser operation and its observable behavior.
//
// CurrentUser may return an error when input validation, dependency calls, or security checks fail.
// CurrentUser does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) CurrentUser(ctx context.Context, tokenStr string) (UserRecord, error) {
	result, err := e.ValidateAccess(ctx, tokenStr)
	if err != nil {
		return UserRecord{}, err
	}
	return e.GetUser(ctx, result.UserID)
}

// GetUser describes the getuser operation and its observable behavior.
//
// GetUser may return an error when input validation, dependency calls, or security checks fail.
// GetUser does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) GetUser(ctx context.Context, userID string) (UserRecord, error) {
	if e == nil || e.userDirectory == nil {
		return UserRecord{}, ErrEngineNotReady
	}

	user, err := e.userDirectory.GetUserByID(ctx, userID)
	if err != nil {
		return UserRecord{}, ErrUserNotFound
	}
	user.PasswordHash = ""
	return user, nil
}

// allow runs the sliding-window check for one action. A nil return means the
// caller may proceed; a non-nil return is ready to hand to the caller as-is.
func (e *Engine) allow(ctx context.Context, action string, limit int, userID, email string) *RateLimitError {
	if e.rateLimiter == nil || !e.config.RateLimit.Enabled || limit <= 0 {
		return nil
	}

	key := rate.Key(action, userID, email, clientIPFromContext(ctx))
	ok, retryAfter := e.rateLimiter.Allow(key, limit, e.config.RateLimit.Window)
	if ok {
		return nil
	}

	e.emitRateLimit(ctx, action, retryAfter, email)
	return &RateLimitError{Action: action, RetryAfter: retryAfter}
}

// issueSession mints the access/refresh pair for an authenticated user and
// persists the refresh digest. The raw refresh secret is returned to the
// caller and never stored.
func (e *Engine) issueSession(ctx context.Context, user UserRecord) (*SessionResult, error) {
	access, err := e.jwtManager.CreateAccess(user.UserID, string(user.Role))
	if err != nil {
		return nil, err
	}

	secret, err := secrets.New()
	if err != nil {
		return nil, err
	}

	now := e.now()
	err = e.refreshStore.Create(ctx, store.RefreshToken{
		Digest:    secrets.Digest(secret),
		UserID:    user.UserID,
		ExpiresAt: now.Add(e.config.Refresh.TTL),
		CreatedAt: now,
	})
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricSessionCreated)

	user.PasswordHash = ""
	return &SessionResult{
		AccessToken:  access,
		RefreshToken: secret,
		TokenType:    "Bearer",
		User:         user,
	}, nil
}

// promoteIfListed re-applies the admin allow-list. Promotion only: a user on
// the list is raised to admin, an admin absent from the list keeps the role.
func (e *Engine) promoteIfListed(ctx context.Context, user UserRecord) UserRecord {
	if user.Role == RoleAdmin || !e.adminListed(user.Email) {
		return user
	}

	promoted, err := e.userDirectory.UpdateRole(ctx, user.UserID, RoleAdmin)
	if err != nil {
		// Promotion is best-effort; the session proceeds with the stored role.
		return user
	}

	e.metricInc(MetricAdminPromotion)
	e.emitAudit(ctx, auditEventAdminPromotion, true, user.UserID, user.Email, nil, nil)
	return promoted
}

func (e *Engine) adminListed(email string) bool {
	_, ok := e.adminEmails[normalizeEmail(email)]
	return ok
}

func (e *Engine) signupRole(email string) Role {
	if e.adminListed(email) {
		return RoleAdmin
	}
	return RoleUser
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	at := strings.Index(email, "@")
	return at > 0 && at < len(email)-1 && !strings.ContainsAny(email, " \t")
}
