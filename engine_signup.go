package gradauth

import (
	"context"
	"errors"
	"log"
)

// Signup describes the signup operation and its observable behavior.
//
// Signup may return an error when input validation, dependency calls, or security checks fail.
// Signup does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Signup(ctx context.Context, req SignupRequest) (*SessionResult, error) {
	if e == nil || e.userDirectory == nil || e.passwordHash == nil {
		return nil, ErrEngineNotReady
	}

	email := normalizeEmail(req.Email)
	if !validEmail(email) {
		e.emitAudit(ctx, auditEventSignupFailure, false, "", email, ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"reason": "invalid_email",
			}
		})
		return nil, ErrInvalidCredentials
	}

	if rlErr := e.allow(ctx, "signup", e.config.RateLimit.Signup, "", email); rlErr != nil {
		e.metricInc(MetricSignupRateLimited)
		e.emitAudit(ctx, auditEventSignupRateLimited, false, "", email, ErrRateLimited, nil)
		return nil, rlErr
	}

	hash, err := e.passwordHash.Hash(req.Password)
	if err != nil {
		e.emitAudit(ctx, auditEventSignupFailure, false, "", email, ErrPasswordPolicy, func() map[string]string {
			return map[string]string{
				"reason": "password_policy",
			}
		})
		return nil, ErrPasswordPolicy
	}

	user, err := e.userDirectory.CreateUser(ctx, CreateUserInput{
		Email:        email,
		Name:         req.Name,
		PasswordHash: hash,
		Role:         e.signupRole(email),
	})
	if err != nil {
		if errors.Is(err, ErrDirectoryDuplicateEmail) {
			e.metricInc(MetricSignupDuplicate)
			e.emitAudit(ctx, auditEventSignupDuplicate, false, "", email, ErrEmailTaken, nil)
			return nil, ErrEmailTaken
		}
		e.emitAudit(ctx, auditEventSignupFailure, false, "", email, err, func() map[string]string {
			return map[string]string{
				"reason": "create_user_failed",
			}
		})
		return nil, err
	}

	// A verification token is minted for every new account. The account is
	// already committed, so a token or delivery failure cannot fail the
	// signup; the user can always re-request verification later.
	if e.oneTimeStore != nil {
		if _, err := e.issueVerification(ctx, user); err != nil {
			log.Print("gradauth: verification token issue failed at signup")
		}
	}

	result, err := e.issueSession(ctx, user)
	if err != nil {
		e.emitAudit(ctx, auditEventSignupFailure, false, user.UserID, email, err, func() map[string]string {
			return map[string]string{
				"reason": "issue_session_failed",
			}
		})
		return nil, err
	}

	e.metricInc(MetricSignupSuccess)
	e.emitAudit(ctx, auditEventSignupSuccess, true, user.UserID, email, nil, func() map[string]string {
		return map[string]string{
			"role": string(user.Role),
		}
	})

	return result, nil
}
