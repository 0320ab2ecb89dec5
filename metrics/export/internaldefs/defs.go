package internaldefs

import (
	"github.com/MrEthical07/phoneauth"
)

// CounterDef names one exported counter.
type CounterDef struct {
	ID   phoneauth.MetricID
	Name string
	Help string
}

// HistogramDef names one exported histogram.
type HistogramDef struct {
	ID   phoneauth.MetricID
	Name string
	Help string
}

// CounterDefs lists every counter in export order.
var CounterDefs = []CounterDef{
	{ID: phoneauth.MetricChallengeIssued, Name: "phoneauth_challenge_issued_total", Help: "Issued one-time code challenges."},
	{ID: phoneauth.MetricChallengeCooldown, Name: "phoneauth_challenge_cooldown_total", Help: "Challenge requests rejected inside the resend cooldown."},
	{ID: phoneauth.MetricChallengeThrottled, Name: "phoneauth_challenge_throttled_total", Help: "Challenge requests rejected by the per-origin throttle."},
	{ID: phoneauth.MetricChallengeVerified, Name: "phoneauth_challenge_verified_total", Help: "Successfully verified challenges."},
	{ID: phoneauth.MetricChallengeMismatch, Name: "phoneauth_challenge_mismatch_total", Help: "Verifications with a wrong code."},
	{ID: phoneauth.MetricChallengeExhausted, Name: "phoneauth_challenge_exhausted_total", Help: "Verifications against a challenge past its attempt cap."},
	{ID: phoneauth.MetricChallengeExpired, Name: "phoneauth_challenge_expired_total", Help: "Verifications against an expired challenge."},
	{ID: phoneauth.MetricDeliveryQueued, Name: "phoneauth_delivery_queued_total", Help: "SMS messages accepted by the delivery queue."},
	{ID: phoneauth.MetricDeliveryDropped, Name: "phoneauth_delivery_dropped_total", Help: "SMS messages rejected by a full or closed queue."},
	{ID: phoneauth.MetricDeliverySent, Name: "phoneauth_delivery_sent_total", Help: "SMS messages accepted by the provider."},
	{ID: phoneauth.MetricDeliveryFailed, Name: "phoneauth_delivery_failed_total", Help: "SMS messages abandoned after retries."},
	{ID: phoneauth.MetricIdentityCreated, Name: "phoneauth_identity_created_total", Help: "Identities created by registration."},
	{ID: phoneauth.MetricLoginSuccess, Name: "phoneauth_login_success_total", Help: "Successful password logins."},
	{ID: phoneauth.MetricLoginFailure, Name: "phoneauth_login_failure_total", Help: "Failed password logins."},
	{ID: phoneauth.MetricLockoutRejected, Name: "phoneauth_lockout_rejected_total", Help: "Requests rejected by the abuse guard."},
	{ID: phoneauth.MetricRefreshSuccess, Name: "phoneauth_refresh_success_total", Help: "Successful refresh operations."},
	{ID: phoneauth.MetricRefreshFailure, Name: "phoneauth_refresh_failure_total", Help: "Failed refresh operations."},
	{ID: phoneauth.MetricLogout, Name: "phoneauth_logout_total", Help: "Refresh token revocations."},
	{ID: phoneauth.MetricPasswordResetSuccess, Name: "phoneauth_password_reset_success_total", Help: "Completed password resets."},
	{ID: phoneauth.MetricVerifyAccessFailure, Name: "phoneauth_verify_access_failure_total", Help: "Rejected access tokens."},
	{ID: phoneauth.MetricPurgedChallenges, Name: "phoneauth_purged_challenges_total", Help: "Challenges removed by the retention sweep."},
	{ID: phoneauth.MetricPurgedAttempts, Name: "phoneauth_purged_attempts_total", Help: "Attempt records removed by the retention sweep."},
}

// HistogramDefs lists every histogram in export order.
var HistogramDefs = []HistogramDef{
	{ID: phoneauth.MetricVerifyAccessLatency, Name: "phoneauth_verify_access_latency_seconds", Help: "VerifyAccess latency histogram."},
}

// HistogramBounds are the upper bounds, in seconds, of the latency buckets.
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

// HistogramBoundSuffix renders HistogramBounds for metric names.
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

// NormalizeBuckets copies raw into a fixed-size bucket array, zero-filling
// missing buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
