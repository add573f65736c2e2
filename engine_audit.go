package gradauth

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/gradauth/store"
)

const (
	auditEventSignupSuccess          = "signup_success"
	auditEventSignupDuplicate        = "signup_duplicate"
	auditEventSignupFailure          = "signup_failure"
	auditEventSignupRateLimited      = "signup_rate_limited"
	auditEventLoginSuccess           = "login_success"
	auditEventLoginFailure           = "login_failure"
	auditEventLoginRateLimited       = "login_rate_limited"
	auditEventGoogleLoginSuccess     = "google_login_success"
	auditEventGoogleLoginFailure     = "google_login_failure"
	auditEventGoogleLoginRateLimited = "google_login_rate_limited"
	auditEventRefreshSuccess         = "refresh_success"
	auditEventRefreshInvalid         = "refresh_invalid"
	auditEventRefreshRateLimited     = "refresh_rate_limited"
	auditEventLogoutSession          = "logout_session"
	auditEventLogoutAll              = "logout_all"
	auditEventLogoutRateLimited      = "logout_rate_limited"
	auditEventVerificationRequest    = "email_verification_request"
	auditEventVerificationConfirm    = "email_verification_confirm"
	auditEventVerificationFailure    = "email_verification_failure"
	auditEventEmailRateLimited       = "email_rate_limited"
	auditEventPasswordResetRequest   = "password_reset_request"
	auditEventPasswordResetConfirm   = "password_reset_confirm"
	auditEventPasswordResetFailure   = "password_reset_failure"
	auditEventPasswordChangeSuccess  = "password_change_success"
	auditEventPasswordChangeFailure  = "password_change_failure"
	auditEventPasswordChangeReuse    = "password_change_reuse_attempt"
	auditEventAdminPromotion         = "admin_promotion"
	auditEventRoleChange             = "role_change"
	auditEventRoleChangeDenied       = "role_change_denied"
	auditEventRateLimitTriggered     = "rate_limit_triggered"
)

// AuditErrorCode defines a public type used by gradauth APIs.
//
// AuditErrorCode instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrEmailTaken         AuditErrorCode = "email_taken"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrNotConfigured      AuditErrorCode = "not_configured"
	auditErrUserNotFound       AuditErrorCode = "user_not_found"
	auditErrPasswordPolicy     AuditErrorCode = "password_policy"
	auditErrPasswordReuse      AuditErrorCode = "password_reuse"
	auditErrRoleInvalid        AuditErrorCode = "role_invalid"
	auditErrSelfDemote         AuditErrorCode = "self_demote_forbidden"
	auditErrLastAdmin          AuditErrorCode = "last_admin_forbidden"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	email string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		Email:     email,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, action string, retryAfter time.Duration, email string) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, "", email, ErrRateLimited, func() map[string]string {
		return map[string]string{
			"action":      action,
			"retry_after": retryAfter.String(),
		}
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrEmailTaken),
		errors.Is(err, ErrDirectoryDuplicateEmail):
		return auditErrEmailTaken
	case errors.Is(err, ErrTokenInvalid),
		errors.Is(err, store.ErrTokenNotFound):
		return auditErrInvalidToken
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrNotConfigured):
		return auditErrNotConfigured
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrPasswordReuse):
		return auditErrPasswordReuse
	case errors.Is(err, ErrRoleInvalid):
		return auditErrRoleInvalid
	case errors.Is(err, ErrSelfDemoteForbidden):
		return auditErrSelfDemote
	case errors.Is(err, ErrLastAdminForbidden):
		return auditErrLastAdmin
	case errors.Is(err, store.ErrUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
