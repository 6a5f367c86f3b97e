package internaldefs

import (
	"strconv"

	goIdentity "github.com/MrEthical07/goIdentity"
)

// CounterDef names one exported counter.
type CounterDef struct {
	ID   goIdentity.MetricID
	Name string
	Help string
}

// HistogramDef names one exported latency histogram.
type HistogramDef struct {
	ID   goIdentity.MetricID
	Name string
	Help string
}

// CounterDefs lists every engine counter in export order.
var CounterDefs = []CounterDef{
	{ID: goIdentity.MetricSignupSuccess, Name: "goidentity_signup_success_total", Help: "Completed signups."},
	{ID: goIdentity.MetricSignupConflict, Name: "goidentity_signup_conflict_total", Help: "Signups rejected because the email is registered."},
	{ID: goIdentity.MetricLoginSuccess, Name: "goidentity_login_success_total", Help: "Successful logins."},
	{ID: goIdentity.MetricLoginFailure, Name: "goidentity_login_failure_total", Help: "Logins rejected for bad credentials."},
	{ID: goIdentity.MetricLoginLocked, Name: "goidentity_login_locked_total", Help: "Logins rejected because the account was locked."},
	{ID: goIdentity.MetricAccountLocked, Name: "goidentity_account_locked_total", Help: "Accounts locked by repeated failures."},
	{ID: goIdentity.MetricRefreshSuccess, Name: "goidentity_refresh_success_total", Help: "Refresh token rotations."},
	{ID: goIdentity.MetricRefreshFailure, Name: "goidentity_refresh_failure_total", Help: "Rejected refresh tokens."},
	{ID: goIdentity.MetricLogout, Name: "goidentity_logout_total", Help: "Logout calls."},
	{ID: goIdentity.MetricPasswordResetRequest, Name: "goidentity_password_reset_request_total", Help: "Forgot-password requests."},
	{ID: goIdentity.MetricPasswordResetSuccess, Name: "goidentity_password_reset_success_total", Help: "Completed password resets."},
	{ID: goIdentity.MetricPasswordResetFailure, Name: "goidentity_password_reset_failure_total", Help: "Rejected reset tokens."},
	{ID: goIdentity.MetricEmailVerificationSent, Name: "goidentity_email_verification_sent_total", Help: "Verification tokens issued."},
	{ID: goIdentity.MetricEmailVerificationSuccess, Name: "goidentity_email_verification_success_total", Help: "Verified email addresses."},
	{ID: goIdentity.MetricEmailVerificationFailure, Name: "goidentity_email_verification_failure_total", Help: "Rejected verification tokens."},
	{ID: goIdentity.MetricSessionCreated, Name: "goidentity_session_created_total", Help: "Sessions written to the session store."},
	{ID: goIdentity.MetricSessionInvalidated, Name: "goidentity_session_invalidated_total", Help: "Sessions removed by logout, rotation or reset."},
	{ID: goIdentity.MetricNotificationFailure, Name: "goidentity_notification_failure_total", Help: "Emails that could not be sent."},
}

// HistogramDefs lists the latency histograms.
var HistogramDefs = []HistogramDef{
	{ID: goIdentity.MetricPasswordVerifyLatency, Name: "goidentity_password_verify_seconds", Help: "Password verification latency."},
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const AuditDroppedName = "goidentity_audit_dropped_total"

// HistogramBoundsSeconds are the finite upper bounds in seconds.
func HistogramBoundsSeconds() []float64 {
	out := make([]float64, len(goIdentity.HistogramBoundsMillis))
	for i, ms := range goIdentity.HistogramBoundsMillis {
		out[i] = float64(ms) / 1000
	}
	return out
}

// HistogramBoundSuffix renders bound i as a metric-name suffix, e.g. 0_005.
func HistogramBoundSuffix(i int) string {
	if i >= len(goIdentity.HistogramBoundsMillis) {
		return "inf"
	}
	s := strconv.FormatFloat(float64(goIdentity.HistogramBoundsMillis[i])/1000, 'f', -1, 64)
	b := []byte(s)
	for j := range b {
		if b[j] == '.' {
			b[j] = '_'
		}
	}
	return string(b)
}

// NormalizeBuckets copies raw into a fixed-size array.
func NormalizeBuckets(raw []uint64) [goIdentity.HistogramBucketCount]uint64 {
	var out [goIdentity.HistogramBucketCount]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [goIdentity.HistogramBucketCount]uint64) [goIdentity.HistogramBucketCount]uint64 {
	var out [goIdentity.HistogramBucketCount]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
