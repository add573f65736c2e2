package gradauth

import (
	"context"
	"errors"

	"github.com/MrEthical07/gradauth/internal/secrets"
	"github.com/MrEthical07/gradauth/store"
)

// Refresh describes the refresh operation and its observable behavior.
//
// The presented token is rotated: its row is revoked and a fresh pair is
// issued in one exchange. Replays of a rotated token fail with
// [ErrTokenInvalid]; of N concurrent exchanges for one token exactly one
// succeeds.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*SessionResult, error) {
	if e == nil || e.refreshStore == nil || e.userDirectory == nil {
		return nil, ErrEngineNotReady
	}

	if rlErr := e.allow(ctx, "refresh", e.config.RateLimit.Refresh, "", ""); rlErr != nil {
		e.metricInc(MetricRefreshRateLimited)
		e.emitAudit(ctx, auditEventRefreshRateLimited, false, "", "", ErrRateLimited, nil)
		return nil, rlErr
	}

	row, err := e.refreshStore.Rotate(ctx, secrets.Digest(refreshToken), e.now())
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		if errors.Is(err, store.ErrTokenNotFound) {
			e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", ErrTokenInvalid, func() map[string]string {
				return map[string]string{
					"reason": "unknown_or_rotated",
				}
			})
			return nil, ErrTokenInvalid
		}
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", err, func() map[string]string {
			return map[string]string{
				"reason": "rotate_failed",
			}
		})
		return nil, err
	}

	user, err := e.userDirectory.GetUserByID(ctx, row.UserID)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, row.UserID, "", ErrTokenInvalid, func() map[string]string {
			return map[string]string{
				"reason": "user_gone",
			}
		})
		return nil, ErrTokenInvalid
	}

	user = e.promoteIfListed(ctx, user)

	result, err := e.issueSession(ctx, user)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, user.UserID, user.Email, err, func() map[string]string {
			return map[string]string{
				"reason": "issue_session_failed",
			}
		})
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, user.UserID, user.Email, nil, nil)

	return result, nil
}

// Logout describes the logout operation and its observable behavior.
//
// The caller is identified by their access token; the presented refresh token
// is revoked only within the caller's own rows. Logout is idempotent: an
// absent, foreign, or already-revoked token is not an error, and an empty
// token is a no-op success.
func (e *Engine) Logout(ctx context.Context, userID, refreshToken string) error {
	if e == nil || e.refreshStore == nil {
		return ErrEngineNotReady
	}

	if rlErr := e.allow(ctx, "logout", e.config.RateLimit.Logout, userID, ""); rlErr != nil {
		e.metricInc(MetricLogoutRateLimited)
		e.emitAudit(ctx, auditEventLogoutRateLimited, false, userID, "", ErrRateLimited, nil)
		return rlErr
	}

	if refreshToken != "" {
		if err := e.refreshStore.Revoke(ctx, userID, secrets.Digest(refreshToken)); err != nil {
			e.emitAudit(ctx, auditEventLogoutSession, false, userID, "", err, nil)
			return err
		}
		e.metricInc(MetricSessionInvalidated)
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogoutSession, true, userID, "", nil, nil)

	return nil
}

// LogoutAll describes the logoutall operation and its observable behavior.
//
// Every refresh row for the caller is revoked. Like [Engine.Logout] it is
// idempotent; a caller with no live rows still gets a success.
func (e *Engine) LogoutAll(ctx context.Context, userID string) error {
	if e == nil || e.refreshStore == nil {
		return ErrEngineNotReady
	}

	if rlErr := e.allow(ctx, "logout", e.config.RateLimit.Logout, userID, ""); rlErr != nil {
		e.metricInc(MetricLogoutRateLimited)
		e.emitAudit(ctx, auditEventLogoutRateLimited, false, userID, "", ErrRateLimited, nil)
		return rlErr
	}

	if err := e.refreshStore.RevokeAllForUser(ctx, userID); err != nil {
		e.emitAudit(ctx, auditEventLogoutAll, false, userID, "", err, nil)
		return err
	}

	e.metricInc(MetricLogoutAll)
	e.metricInc(MetricSessionInvalidated)
	e.emitAudit(ctx, auditEventLogoutAll, true, userID, "", nil, nil)

	return nil
}
