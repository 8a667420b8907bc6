package internaldefs

import (
	"github.com/Yellowatch/boxumco"
)

// CounterDef names one engine counter.
type CounterDef struct {
	ID   boxumco.MetricID
	Name string
	Help string
}

// HistogramDef names one engine latency histogram.
type HistogramDef struct {
	ID   boxumco.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in exposition order.
var CounterDefs = []CounterDef{
	{ID: boxumco.MetricLoginSuccess, Name: "boxum_login_success_total", Help: "Logins that issued a session without a second factor."},
	{ID: boxumco.MetricLoginFailure, Name: "boxum_login_failure_total", Help: "Logins rejected for unknown email or wrong password."},
	{ID: boxumco.MetricLoginInactive, Name: "boxum_login_inactive_total", Help: "Logins rejected because the email is not verified."},
	{ID: boxumco.MetricLoginRateLimited, Name: "boxum_login_rate_limited_total", Help: "Logins rejected by the throttle."},
	{ID: boxumco.MetricMFARequired, Name: "boxum_mfa_required_total", Help: "Logins that issued an MFA challenge."},
	{ID: boxumco.MetricMFASuccess, Name: "boxum_mfa_success_total", Help: "Completed MFA logins."},
	{ID: boxumco.MetricMFAFailure, Name: "boxum_mfa_failure_total", Help: "Failed MFA completions."},
	{ID: boxumco.MetricMFAChallengeExpired, Name: "boxum_mfa_challenge_expired_total", Help: "MFA completions with an expired challenge."},
	{ID: boxumco.MetricRefreshSuccess, Name: "boxum_refresh_success_total", Help: "Successful refresh operations."},
	{ID: boxumco.MetricRefreshFailure, Name: "boxum_refresh_failure_total", Help: "Failed refresh operations."},
	{ID: boxumco.MetricRegistrationSuccess, Name: "boxum_registration_success_total", Help: "Created accounts."},
	{ID: boxumco.MetricRegistrationDuplicate, Name: "boxum_registration_duplicate_total", Help: "Registrations rejected as duplicate email."},
	{ID: boxumco.MetricVerificationEmailSent, Name: "boxum_verification_email_sent_total", Help: "Verification emails delivered to the mailer."},
	{ID: boxumco.MetricVerificationEmailQueued, Name: "boxum_verification_email_queued_total", Help: "Verification emails pushed to the retry queue."},
	{ID: boxumco.MetricEmailConfirmed, Name: "boxum_email_confirmed_total", Help: "Accounts activated by email confirmation."},
	{ID: boxumco.MetricEmailConfirmFailure, Name: "boxum_email_confirm_failure_total", Help: "Rejected email confirmations."},
	{ID: boxumco.MetricTOTPEnrollmentStarted, Name: "boxum_totp_enrollment_started_total", Help: "TOTP enrollments started."},
	{ID: boxumco.MetricTOTPEnrollmentConfirmed, Name: "boxum_totp_enrollment_confirmed_total", Help: "TOTP devices confirmed."},
	{ID: boxumco.MetricTOTPEnrollmentFailure, Name: "boxum_totp_enrollment_failure_total", Help: "TOTP confirmations with a wrong code."},
	{ID: boxumco.MetricTOTPDisabled, Name: "boxum_totp_disabled_total", Help: "TOTP devices removed."},
	{ID: boxumco.MetricTOTPReplayRejected, Name: "boxum_totp_replay_rejected_total", Help: "TOTP codes rejected as replays."},
	{ID: boxumco.MetricPasswordChangeSuccess, Name: "boxum_password_change_success_total", Help: "Successful password changes."},
	{ID: boxumco.MetricPasswordChangeWrongPassword, Name: "boxum_password_change_wrong_password_total", Help: "Password changes with a wrong current password."},
	{ID: boxumco.MetricPasswordRehashed, Name: "boxum_password_rehashed_total", Help: "Stored hashes upgraded at login."},
	{ID: boxumco.MetricProfileUpdated, Name: "boxum_profile_updated_total", Help: "Profile updates."},
	{ID: boxumco.MetricAccountDeleted, Name: "boxum_account_deleted_total", Help: "Deleted accounts."},
}

// HistogramDefs lists every exported latency histogram.
var HistogramDefs = []HistogramDef{
	{ID: boxumco.MetricLoginLatency, Name: "boxum_login_latency_seconds", Help: "Login latency histogram."},
	{ID: boxumco.MetricRegistrationLatency, Name: "boxum_registration_latency_seconds", Help: "Registration latency histogram."},
}

// HistogramBounds are the bucket upper bounds in seconds, matching the
// engine's bucket layout.
var HistogramBounds = []string{
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"1",
	"+Inf",
}

// HistogramBoundSuffix is HistogramBounds made safe for metric names.
var HistogramBoundSuffix = []string{
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"1",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-size array, zero-filling missing buckets.
func NormalizeBuckets(raw []uint64) [boxumco.HistogramBucketCount]uint64 {
	var out [boxumco.HistogramBucketCount]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into the cumulative form
// Prometheus expects.
func CumulativeBuckets(raw [boxumco.HistogramBucketCount]uint64) [boxumco.HistogramBucketCount]uint64 {
	var out [boxumco.HistogramBucketCount]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
