package gradauth

import (
	"context"
	"errors"
	"log"

	"github.com/MrEthical07/gradauth/internal/secrets"
	"github.com/MrEthical07/gradauth/store"
)

// issueVerification commits a fresh verification token for the user and hands
// it to the notifier. The token is committed before delivery is attempted; a
// delivery failure degrades to a dry-run outcome and never fails the flow.
func (e *Engine) issueVerification(ctx context.Context, user UserRecord) (Delivery, error) {
	secret, err := secrets.New()
	if err != nil {
		return Delivery{}, err
	}

	now := e.now()
	err = e.oneTimeStore.Issue(ctx, store.OneTimeToken{
		Digest:    secrets.Digest(secret),
		UserID:    user.UserID,
		Purpose:   store.PurposeEmailVerify,
		ExpiresAt: now.Add(e.config.OneTime.VerificationTTL),
		CreatedAt: now,
	})
	if err != nil {
		return Delivery{}, err
	}

	delivery := Delivery{DryRun: true}
	if e.notifier != nil {
		delivery, err = e.notifier.SendEmailVerification(ctx, user.Email, secret)
		if err != nil {
			log.Print("gradauth: verification email delivery failed")
			delivery = Delivery{DryRun: true}
		}
	}

	if e.config.Security.ExposeDevTokens {
		delivery.Token = secret
	}

	return delivery, nil
}

// RequestEmailVerification describes the requestemailverification operation and its observable behavior.
//
// Issuing a new token invalidates any earlier unconsumed verification token
// for the same account. Unknown and already-verified addresses report the
// same quiet success, so the endpoint does not leak account existence.
func (e *Engine) RequestEmailVerification(ctx context.Context, email string) (Delivery, error) {
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
		e.emitAudit(ctx, auditEventVerificationRequest, true, "", email, nil, func() map[string]string {
			return map[string]string{
				"outcome": "unknown_account",
			}
		})
		return Delivery{}, nil
	}
	if user.EmailVerified {
		e.emitAudit(ctx, auditEventVerificationRequest, true, user.UserID, email, nil, func() map[string]string {
			return map[string]string{
				"outcome": "already_verified",
			}
		})
		return Delivery{}, nil
	}

	delivery, err := e.issueVerification(ctx, user)
	if err != nil {
		e.emitAudit(ctx, auditEventVerificationRequest, false, user.UserID, email, err, nil)
		return Delivery{}, err
	}

	e.metricInc(MetricEmailVerificationRequest)
	e.emitAudit(ctx, auditEventVerificationRequest, true, user.UserID, email, nil, func() map[string]string {
		if delivery.Sent {
			return map[string]string{"delivery": "sent"}
		}
		return map[string]string{"delivery": "dry_run"}
	})

	return delivery, nil
}

// VerifyEmail describes the verifyemail operation and its observable behavior.
//
// The token consumes exactly once; replays and expired tokens fail with
// [ErrTokenInvalid].
func (e *Engine) VerifyEmail(ctx context.Context, token string) error {
	if e == nil || e.userDirectory == nil || e.oneTimeStore == nil {
		return ErrEngineNotReady
	}

	row, err := e.oneTimeStore.Consume(ctx, secrets.Digest(token), store.PurposeEmailVerify, e.now())
	if err != nil {
		e.metricInc(MetricEmailVerificationFailure)
		if errors.Is(err, store.ErrTokenNotFound) {
			e.emitAudit(ctx, auditEventVerificationFailure, false, "", "", ErrTokenInvalid, nil)
			return ErrTokenInvalid
		}
		e.emitAudit(ctx, auditEventVerificationFailure, false, "", "", err, nil)
		return err
	}

	if err := e.userDirectory.SetEmailVerified(ctx, row.UserID); err != nil {
		e.metricInc(MetricEmailVerificationFailure)
		e.emitAudit(ctx, auditEventVerificationFailure, false, row.UserID, "", err, func() map[string]string {
			return map[string]string{
				"reason": "directory_update_failed",
			}
		})
		return err
	}

	e.metricInc(MetricEmailVerificationSuccess)
	e.emitAudit(ctx, auditEventVerificationConfirm, true, row.UserID, "", nil, nil)

	return nil
}
