package gradauth

import (
	"context"
	"log"
)

// Login describes the login operation and its observable behavior.
//
// Login may return an error when input validation, dependency calls, or security checks fail.
// Login does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Login(ctx context.Context, email, pass string) (*SessionResult, error) {
	if e == nil || e.userDirectory == nil || e.passwordHash == nil {
		return nil, ErrEngineNotReady
	}

	email = normalizeEmail(email)

	if rlErr := e.allow(ctx, "login", e.config.RateLimit.Login, "", email); rlErr != nil {
		e.metricInc(MetricLoginRateLimited)
		e.emitAudit(ctx, auditEventLoginRateLimited, false, "", email, ErrRateLimited, nil)
		return nil, rlErr
	}

	if pass == "" {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", email, ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"reason": "empty_password",
			}
		})
		return nil, ErrInvalidCredentials
	}

	user, err := e.userDirectory.GetUserByEmail(ctx, email)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", email, ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"reason": "user_not_found",
			}
		})
		return nil, ErrInvalidCredentials
	}

	ok, err := e.passwordHash.Verify(pass, user.PasswordHash)
	if err != nil || !ok {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.UserID, email, ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"reason": "password_mismatch",
			}
		})
		return nil, ErrInvalidCredentials
	}

	if e.config.Password.UpgradeOnLogin {
		if needsUpgrade, err := e.passwordHash.NeedsUpgrade(user.PasswordHash); err == nil && needsUpgrade {
			if upgradedHash, err := e.passwordHash.Hash(pass); err == nil {
				// Rehash update is best-effort and must not block successful login.
				if err := e.userDirectory.UpdatePasswordHash(ctx, user.UserID, upgradedHash); err != nil {
					log.Print("gradauth: password hash upgrade update failed")
				}
			} else {
				log.Print("gradauth: password hash upgrade generation failed")
			}
		}
	}
	pass = ""

	user = e.promoteIfListed(ctx, user)

	result, err := e.issueSession(ctx, user)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.UserID, email, err, func() map[string]string {
			return map[string]string{
				"reason": "issue_session_failed",
			}
		})
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.UserID, email, nil, nil)

	return result, nil
}

// LoginWithGoogle describes the loginwithgoogle operation and its observable behavior.
//
// The assertion is handed opaquely to the configured [IdentityVerifier]; only
// the extracted email drives account lookup and creation.
func (e *Engine) LoginWithGoogle(ctx context.Context, assertion string) (*SessionResult, error) {
	if e == nil || e.userDirectory == nil {
		return nil, ErrEngineNotReady
	}
	if rlErr := e.allow(ctx, "google", e.config.RateLimit.Google, "", ""); rlErr != nil {
		e.metricInc(MetricGoogleLoginRateLimited)
		e.emitAudit(ctx, auditEventGoogleLoginRateLimited, false, "", "", ErrRateLimited, nil)
		return nil, rlErr
	}

	if e.identity == nil {
		e.metricInc(MetricGoogleLoginFailure)
		e.emitAudit(ctx, auditEventGoogleLoginFailure, false, "", "", ErrNotConfigured, nil)
		return nil, ErrNotConfigured
	}

	identity, err := e.identity.Verify(ctx, assertion)
	if err != nil {
		e.metricInc(MetricGoogleLoginFailure)
		e.emitAudit(ctx, auditEventGoogleLoginFailure, false, "", "", ErrTokenInvalid, func() map[string]string {
			return map[string]string{
				"reason": "assertion_rejected",
			}
		})
		return nil, ErrTokenInvalid
	}

	email := normalizeEmail(identity.Email)
	if !validEmail(email) {
		e.metricInc(MetricGoogleLoginFailure)
		e.emitAudit(ctx, auditEventGoogleLoginFailure, false, "", email, ErrTokenInvalid, func() map[string]string {
			return map[string]string{
				"reason": "no_email_claim",
			}
		})
		return nil, ErrTokenInvalid
	}

	user, err := e.userDirectory.GetUserByEmail(ctx, email)
	if err != nil {
		// First federated sign-in creates the account. No password hash is
		// stored, so the credential login path can never match it.
		user, err = e.userDirectory.CreateUser(ctx, CreateUserInput{
			Email:         email,
			Name:          identity.Name,
			Role:          e.signupRole(email),
			EmailVerified: identity.EmailVerified,
		})
		if err != nil {
			e.metricInc(MetricGoogleLoginFailure)
			e.emitAudit(ctx, auditEventGoogleLoginFailure, false, "", email, err, func() map[string]string {
				return map[string]string{
					"reason": "create_user_failed",
				}
			})
			return nil, err
		}
	} else {
		if identity.EmailVerified && !user.EmailVerified {
			if err := e.userDirectory.SetEmailVerified(ctx, user.UserID); err != nil {
				log.Print("gradauth: verified-state update failed on federated login")
			} else {
				user.EmailVerified = true
			}
		}
		user = e.promoteIfListed(ctx, user)
	}

	result, err := e.issueSession(ctx, user)
	if err != nil {
		e.metricInc(MetricGoogleLoginFailure)
		e.emitAudit(ctx, auditEventGoogleLoginFailure, false, user.UserID, email, err, func() map[string]string {
			return map[string]string{
				"reason": "issue_session_failed",
			}
		})
		return nil, err
	}

	e.metricInc(MetricGoogleLoginSuccess)
	e.emitAudit(ctx, auditEventGoogleLoginSuccess, true, user.UserID, email, nil, nil)

	return result, nil
}
