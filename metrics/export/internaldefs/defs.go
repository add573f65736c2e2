package internaldefs

import (
	gradauth "github.com/MrEthical07/gradauth"
)

// CounterDef defines a public type used by gradauth APIs.
//
// CounterDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CounterDef struct {
	ID   gradauth.MetricID
	Name string
	Help string
}

// HistogramDef defines a public type used by gradauth APIs.
//
// HistogramDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type HistogramDef struct {
	ID   gradauth.MetricID
	Name string
	Help string
}

// CounterDefs is an exported constant or variable used by the authentication engine.
var CounterDefs = []CounterDef{
	{ID: gradauth.MetricSignupSuccess, Name: "gradauth_signup_success_total", Help: "Successful account creations."},
	{ID: gradauth.MetricSignupDuplicate, Name: "gradauth_signup_duplicate_total", Help: "Signup attempts rejected as duplicate."},
	{ID: gradauth.MetricSignupRateLimited, Name: "gradauth_signup_rate_limited_total", Help: "Rate-limited signup attempts."},
	{ID: gradauth.MetricLoginSuccess, Name: "gradauth_login_success_total", Help: "Successful login attempts."},
	{ID: gradauth.MetricLoginFailure, Name: "gradauth_login_failure_total", Help: "Failed login attempts."},
	{ID: gradauth.MetricLoginRateLimited, Name: "gradauth_login_rate_limited_total", Help: "Rate-limited login attempts."},
	{ID: gradauth.MetricGoogleLoginSuccess, Name: "gradauth_google_login_success_total", Help: "Successful federated logins."},
	{ID: gradauth.MetricGoogleLoginFailure, Name: "gradauth_google_login_failure_total", Help: "Failed federated logins."},
	{ID: gradauth.MetricGoogleLoginRateLimited, Name: "gradauth_google_login_rate_limited_total", Help: "Rate-limited federated login attempts."},
	{ID: gradauth.MetricRefreshSuccess, Name: "gradauth_refresh_success_total", Help: "Successful refresh exchanges."},
	{ID: gradauth.MetricRefreshFailure, Name: "gradauth_refresh_failure_total", Help: "Failed refresh exchanges."},
	{ID: gradauth.MetricRefreshRateLimited, Name: "gradauth_refresh_rate_limited_total", Help: "Rate-limited refresh attempts."},
	{ID: gradauth.MetricLogout, Name: "gradauth_logout_total", Help: "Single-session logout operations."},
	{ID: gradauth.MetricLogoutAll, Name: "gradauth_logout_all_total", Help: "Logout-all operations."},
	{ID: gradauth.MetricLogoutRateLimited, Name: "gradauth_logout_rate_limited_total", Help: "Rate-limited logout attempts."},
	{ID: gradauth.MetricSessionCreated, Name: "gradauth_session_created_total", Help: "Issued access/refresh pairs."},
	{ID: gradauth.MetricSessionInvalidated, Name: "gradauth_session_invalidated_total", Help: "Invalidated sessions."},
	{ID: gradauth.MetricEmailVerificationRequest, Name: "gradauth_email_verification_request_total", Help: "Email verification requests."},
	{ID: gradauth.MetricEmailVerificationSuccess, Name: "gradauth_email_verification_success_total", Help: "Successful email verifications."},
	{ID: gradauth.MetricEmailVerificationFailure, Name: "gradauth_email_verification_failure_total", Help: "Failed email verifications."},
	{ID: gradauth.MetricEmailRateLimited, Name: "gradauth_email_rate_limited_total", Help: "Rate-limited email token requests."},
	{ID: gradauth.MetricPasswordResetRequest, Name: "gradauth_password_reset_request_total", Help: "Password reset requests."},
	{ID: gradauth.MetricPasswordResetConfirmSuccess, Name: "gradauth_password_reset_confirm_success_total", Help: "Successful password reset confirmations."},
	{ID: gradauth.MetricPasswordResetConfirmFailure, Name: "gradauth_password_reset_confirm_failure_total", Help: "Failed password reset confirmations."},
	{ID: gradauth.MetricPasswordChangeSuccess, Name: "gradauth_password_change_success_total", Help: "Successful password changes."},
	{ID: gradauth.MetricPasswordChangeInvalidOld, Name: "gradauth_password_change_invalid_old_total", Help: "Password change attempts with invalid old password."},
	{ID: gradauth.MetricPasswordChangeReuseRejected, Name: "gradauth_password_change_reuse_rejected_total", Help: "Password change attempts rejected for reuse."},
	{ID: gradauth.MetricRoleChangeSuccess, Name: "gradauth_role_change_success_total", Help: "Successful role changes."},
	{ID: gradauth.MetricRoleChangeDenied, Name: "gradauth_role_change_denied_total", Help: "Role changes denied by a guard."},
	{ID: gradauth.MetricAdminPromotion, Name: "gradauth_admin_promotion_total", Help: "Allow-list promotions applied at login or signup."},
	{ID: gradauth.MetricRateLimitHit, Name: "gradauth_rate_limit_hit_total", Help: "Rate-limit checks that denied requests."},
}

// HistogramDefs is an exported constant or variable used by the authentication engine.
var HistogramDefs = []HistogramDef{
	{ID: gradauth.MetricValidateLatency, Name: "gradauth_validate_latency_seconds", Help: "Access-token validation latency histogram."},
}

// HistogramBounds is an exported constant or variable used by the authentication engine.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// NormalizeBuckets describes the normalizebuckets operation and its observable behavior.
//
// NormalizeBuckets may return an error when input validation, dependency calls, or security checks fail.
// NormalizeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets describes the cumulativebuckets operation and its observable behavior.
//
// CumulativeBuckets may return an error when input validation, dependency calls, or security checks fail.
// CumulativeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
