package gradauth

import (
	"context"
	"errors"
	"log"

	"github.com/MrEthical07/gradauth/internal/secrets"
	"github.com/MrEthical07/gradauth/store"
)

// ForgotPassword describes the forgotpassword operation and its observable behavior.
//
// Issuing a new token invalidates any earlier unconsumed reset token for the
// same account. An email with no account behind it reports the same quiet
// success without issuing anything, so the endpoint does not leak account
// existence. The token is committed before delivery is attempted; a delivery
// failure degrades to a dry-run outcome and never fails the flow.
func (e *Engine) ForgotPassword(ctx context.Context, email string) (Delivery, error) {
	if e == nil || e.userDirectory == nil || e.oneTimeStore == nil {
		return Delivery{}, ErrEngineNotReady
	}

	email = normalizeEmail(email)

	if rlErr := e.allow(ctx, "email", e.config.RateLimit.Email, "", email); rlErr != nil {
		e.metricInc(MetricEmailRateLimited)
		e.emitAudit(ctx, auditEventEmailRateLimited, false, "", email, ErrRateLimited, nil)
		return Delivery{}, rlErr
	}

	user, err := e.userDirectory.GetUserByEmail(ctx, email)
	if err != nil {
		e.emitAudit(ctx, auditEventPasswordResetRequest, true, "", email, nil, func() map[string]string {
			return map[string]string{
				"outcome": "unknown_account",
			}
		})
		return Delivery{}, nil
	}

	secret, err := secrets.New()
	if err != nil {
		return Delivery{}, err
	}

	now := e.now()
	err = e.oneTimeStore.Issue(ctx, store.OneTimeToken{
		Digest:    secrets.Digest(secret),
		UserID:    user.UserID,
		Purpose:   store.PurposePasswordReset,
		ExpiresAt: now.Add(e.config.OneTime.ResetTTL),
		CreatedAt: now,
	})
	if err != nil {
		e.emitAudit(ctx, auditEventPasswordResetRequest, false, user.UserID, email, err, nil)
		return Delivery{}, err
	}

	delivery := Delivery{DryRun: true}
	if e.notifier != nil {
		delivery, err = e.notifier.SendPasswordReset(ctx, email, secret)
		if err != nil {
			log.Print("gradauth: password reset email delivery failed")
			delivery = Delivery{DryRun: true}
		}
	}

	if e.config.Security.ExposeDevTokens {
		delivery.Token = secret
	}

	e.metricInc(MetricPasswordResetRequest)
	e.emitAudit(ctx, auditEventPasswordResetRequest, true, user.UserID, email, nil, func() map[string]string {
		if delivery.Sent {
			return map[string]string{"delivery": "sent"}
		}
		return map[string]string{"delivery": "dry_run"}
	})

	return delivery, nil
}

// ResetPassword describes the resetpassword operation and its observable behavior.
//
// A successful reset revokes every refresh row for the account, so existing
// sessions cannot outlive the credential they were issued under.
func (e *Engine) ResetPassword(ctx context.Context, token, newPassword string) error {
	if e == nil || e.userDirectory == nil || e.oneTimeStore == nil || e.passwordHash == nil {
		return ErrEngineNotReady
	}

	row, err := e.oneTimeStore.Consume(ctx, secrets.Digest(token), store.PurposePasswordReset, e.now())
	if err != nil {
		e.metricInc(MetricPasswordResetConfirmFailure)
		if errors.Is(err, store.ErrTokenNotFound) {
			e.emitAudit(ctx, auditEventPasswordResetFailure, false, "", "", ErrTokenInvalid, nil)
			return ErrTokenInvalid
		}
		e.emitAudit(ctx, auditEventPasswordResetFailure, false, "", "", err, nil)
		return err
	}

	newHash, err := e.passwordHash.Hash(newPassword)
	if err != nil {
		e.metricInc(MetricPasswordResetConfirmFailure)
		e.emitAudit(ctx, auditEventPasswordResetFailure, false, row.UserID, "", ErrPasswordPolicy, func() map[string]string {
			return map[string]string{
				"reason": "password_policy",
			}
		})
		return ErrPasswordPolicy
	}

	if err := e.userDirectory.UpdatePasswordHash(ctx, row.UserID, newHash); err != nil {
		e.metricInc(MetricPasswordResetConfirmFailure)
		e.emitAudit(ctx, auditEventPasswordResetFailure, false, row.UserID, "", err, func() map[string]string {
			return map[string]string{
				"reason": "update_hash_failed",
			}
		})
		return err
	}

	if e.refreshStore != nil {
		if err := e.refreshStore.RevokeAllForUser(ctx, row.UserID); err != nil {
			log.Print("gradauth: session invalidation failed after password reset")
		} else {
			e.metricInc(MetricSessionInvalidated)
		}
	}

	e.metricInc(MetricPasswordResetConfirmSuccess)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, true, row.UserID, "", nil, nil)

	return nil
}

// ChangePassword describes the changepassword operation and its observable behavior.
//
// ChangePassword may return an error when input validation, dependency calls, or security checks fail.
// ChangePassword does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if e == nil || e.userDirectory == nil || e.passwordHash == nil {
		return ErrEngineNotReady
	}
	if userID == "" || oldPassword == "" || newPassword == "" {
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, userID, "", ErrPasswordPolicy, func() map[string]string {
			return map[string]string{
				"reason": "invalid_input",
			}
		})
		return ErrPasswordPolicy
	}

	user, err := e.userDirectory.GetUserByID(ctx, userID)
	if err != nil {
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, userID, "", ErrUserNotFound, func() map[string]string {
			return map[string]string{
				"reason": "user_not_found",
			}
		})
		return ErrUserNotFound
	}

	oldOK, err := e.passwordHash.Verify(oldPassword, user.PasswordHash)
	if err != nil || !oldOK {
		e.metricInc(MetricPasswordChangeInvalidOld)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, userID, user.Email, ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"reason": "invalid_old_password",
			}
		})
		return ErrInvalidCredentials
	}

	samePassword, err := e.passwordHash.Verify(newPassword, user.PasswordHash)
	if err == nil && samePassword {
		e.metricInc(MetricPasswordChangeReuseRejected)
		e.emitAudit(ctx, auditEventPasswordChangeReuse, false, userID, user.Email, ErrPasswordReuse, nil)
		return ErrPasswordReuse
	}

	newHash, err := e.passwordHash.Hash(newPassword)
	if err != nil {
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, userID, user.Email, ErrPasswordPolicy, func() map[string]string {
			return map[string]string{
				"reason": "password_policy",
			}
		})
		return ErrPasswordPolicy
	}

	if err := e.userDirectory.UpdatePasswordHash(ctx, userID, newHash); err != nil {
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, userID, user.Email, err, func() map[string]string {
			return map[string]string{
				"reason": "update_hash_failed",
			}
		})
		return err
	}

	if e.refreshStore != nil {
		if err := e.refreshStore.RevokeAllForUser(ctx, userID); err != nil {
			log.Print("gradauth: session invalidation failed after password change")
		} else {
			e.metricInc(MetricSessionInvalidated)
		}
	}

	oldPassword = ""
	newPassword = ""
	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChangeSuccess, true, userID, user.Email, nil, nil)

	return nil
}
