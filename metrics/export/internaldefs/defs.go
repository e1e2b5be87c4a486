// Package internaldefs holds the shared metric name and bucket tables for
// the exporters. It is not part of the public API.
package internaldefs

import (
	"github.com/keywarden/keywarden"
)

// CounterDef maps one engine counter to its exported name.
type CounterDef struct {
	ID   keywarden.MetricID
	Name string
	Help string
}

// HistogramDef maps one engine histogram to its exported name.
type HistogramDef struct {
	ID   keywarden.MetricID
	Name string
	Help string
}

// CounterDefs lists every engine counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: keywarden.MetricSignupSuccess, Name: "keywarden_signup_success_total", Help: "Created users."},
	{ID: keywarden.MetricSignupDuplicate, Name: "keywarden_signup_duplicate_total", Help: "Sign-ups rejected as duplicate email."},
	{ID: keywarden.MetricSignupRateLimited, Name: "keywarden_signup_rate_limited_total", Help: "Rate-limited sign-up attempts."},
	{ID: keywarden.MetricLoginSuccess, Name: "keywarden_login_success_total", Help: "Successful sign-ins."},
	{ID: keywarden.MetricLoginFailure, Name: "keywarden_login_failure_total", Help: "Sign-ins failed on credentials."},
	{ID: keywarden.MetricLoginRateLimited, Name: "keywarden_login_rate_limited_total", Help: "Rate-limited sign-in attempts."},
	{ID: keywarden.MetricLoginLocked, Name: "keywarden_login_locked_total", Help: "Sign-ins rejected by an active lockout."},
	{ID: keywarden.MetricLockoutTriggered, Name: "keywarden_lockout_triggered_total", Help: "Lockouts applied by the account guard."},
	{ID: keywarden.MetricSessionCreated, Name: "keywarden_session_created_total", Help: "Issued sessions."},
	{ID: keywarden.MetricSessionInvalid, Name: "keywarden_session_invalid_total", Help: "Session validations rejected as invalid."},
	{ID: keywarden.MetricSessionExpired, Name: "keywarden_session_expired_total", Help: "Session validations rejected as expired."},
	{ID: keywarden.MetricSessionRotated, Name: "keywarden_session_rotated_total", Help: "Session rotations."},
	{ID: keywarden.MetricSignOut, Name: "keywarden_sign_out_total", Help: "Single-session sign-outs."},
	{ID: keywarden.MetricSignOutAll, Name: "keywarden_sign_out_all_total", Help: "All-session revocations."},
	{ID: keywarden.MetricVerificationRequest, Name: "keywarden_verification_request_total", Help: "Issued email verification tokens."},
	{ID: keywarden.MetricVerificationSuccess, Name: "keywarden_verification_success_total", Help: "Confirmed email verifications."},
	{ID: keywarden.MetricVerificationFailure, Name: "keywarden_verification_failure_total", Help: "Rejected email verification tokens."},
	{ID: keywarden.MetricResetRequest, Name: "keywarden_reset_request_total", Help: "Issued password reset tokens."},
	{ID: keywarden.MetricResetSuccess, Name: "keywarden_reset_success_total", Help: "Completed password resets."},
	{ID: keywarden.MetricResetFailure, Name: "keywarden_reset_failure_total", Help: "Rejected password reset tokens."},
	{ID: keywarden.MetricOAuthBegin, Name: "keywarden_oauth_begin_total", Help: "Started OAuth round trips."},
	{ID: keywarden.MetricOAuthSuccess, Name: "keywarden_oauth_success_total", Help: "Completed OAuth sign-ins."},
	{ID: keywarden.MetricOAuthFailure, Name: "keywarden_oauth_failure_total", Help: "Failed OAuth callbacks."},
}

// HistogramDefs lists every engine histogram.
var HistogramDefs = []HistogramDef{
	{ID: keywarden.MetricValidateLatency, Name: "keywarden_validate_latency_seconds", Help: "Session validate latency histogram."},
}

// HistogramBounds are the bucket upper bounds as Prometheus le labels.
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

// HistogramFiniteBounds are the finite bucket upper bounds in seconds.
var HistogramFiniteBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix are the bounds spelled as instrument name suffixes.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets widens a snapshot slice into the fixed bucket array.
// Missing buckets read as zero.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into the cumulative form
// Prometheus expects. The last element is the total sample count.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
