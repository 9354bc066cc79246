package internaldefs

import (
	"strconv"
	"strings"

	goOTP "github.com/MrEthical07/goOTP"
)

// CounterDef names one engine counter.
type CounterDef struct {
	ID   goOTP.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram.
type HistogramDef struct {
	ID   goOTP.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: goOTP.MetricChallengeRequested, Name: "otp_challenge_requested_total", Help: "One-time codes requested."},
	{ID: goOTP.MetricChallengeRequestFailed, Name: "otp_challenge_request_failed_total", Help: "Code requests rejected or failed."},
	{ID: goOTP.MetricChallengeVerified, Name: "otp_challenge_verified_total", Help: "Challenges verified into a session."},
	{ID: goOTP.MetricChallengeInvalidCode, Name: "otp_challenge_invalid_code_total", Help: "Wrong codes submitted."},
	{ID: goOTP.MetricChallengeExhausted, Name: "otp_challenge_exhausted_total", Help: "Submissions against an exhausted challenge."},
	{ID: goOTP.MetricChallengeResent, Name: "otp_challenge_resent_total", Help: "Codes re-issued after the cooldown."},
	{ID: goOTP.MetricCooldownRejected, Name: "otp_cooldown_rejected_total", Help: "Resends refused inside the cooldown."},
	{ID: goOTP.MetricPasswordLoginSuccess, Name: "otp_password_login_success_total", Help: "Successful password logins."},
	{ID: goOTP.MetricPasswordLoginFailure, Name: "otp_password_login_failure_total", Help: "Failed password logins."},
	{ID: goOTP.MetricRegistrationSuccess, Name: "otp_registration_success_total", Help: "Accounts registered."},
	{ID: goOTP.MetricRegistrationDuplicate, Name: "otp_registration_duplicate_total", Help: "Registrations rejected as duplicate."},
	{ID: goOTP.MetricLogout, Name: "otp_logout_total", Help: "Logouts."},
	{ID: goOTP.MetricRefreshSuccess, Name: "otp_refresh_success_total", Help: "Successful token refreshes."},
	{ID: goOTP.MetricRefreshFailure, Name: "otp_refresh_failure_total", Help: "Failed token refreshes."},
	{ID: goOTP.MetricSessionExpired, Name: "otp_session_expired_total", Help: "Sessions cleared after expiry or revocation."},
	{ID: goOTP.MetricSessionTerminated, Name: "otp_session_terminated_total", Help: "Remote sessions terminated from the dashboard."},
	{ID: goOTP.MetricProfileUpdated, Name: "otp_profile_updated_total", Help: "Profile updates saved."},
	{ID: goOTP.MetricRouteDenied, Name: "otp_route_denied_total", Help: "Protected route requests redirected to login."},
	{ID: goOTP.MetricRequestInFlight, Name: "otp_request_in_flight_total", Help: "Calls rejected while another was in flight."},
	{ID: goOTP.MetricBackendUnavailable, Name: "otp_backend_unavailable_total", Help: "Backend or storage failures."},
}

var HistogramDefs = []HistogramDef{
	{ID: goOTP.MetricVerifyLatency, Name: "otp_verify_latency_seconds", Help: "Challenge verification latency."},
}

// BucketCount is the number of latency buckets including +Inf.
const BucketCount = len(goOTP.LatencyBounds) + 1

// HistogramBounds are the finite bucket upper bounds in seconds.
var HistogramBounds = func() []float64 {
	out := make([]float64, len(goOTP.LatencyBounds))
	for i, b := range goOTP.LatencyBounds {
		out[i] = b.Seconds()
	}
	return out
}()

// HistogramBoundSuffix names each bucket for exporters without native
// histograms: "0_05" for 50ms and "inf" for the overflow bucket.
var HistogramBoundSuffix = func() []string {
	out := make([]string, 0, BucketCount)
	for _, le := range HistogramBounds {
		out = append(out, strings.ReplaceAll(strconv.FormatFloat(le, 'f', -1, 64), ".", "_"))
	}
	return append(out, "inf")
}()

// CumulativeBuckets turns per-bucket counts into running totals over a
// fixed BucketCount slice; missing trailing buckets count as zero.
func CumulativeBuckets(raw []uint64) []uint64 {
	out := make([]uint64, BucketCount)
	var running uint64
	for i := range out {
		if i < len(raw) {
			running += raw[i]
		}
		out[i] = running
	}
	return out
}
