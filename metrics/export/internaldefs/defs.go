package internaldefs

import (
	"github.com/MrEthical07/authflow"
)

// CounterDef names one controller counter for export.
type CounterDef struct {
	ID   authflow.MetricID
	Name string
	Help string
}

// HistogramDef names one controller histogram for export.
type HistogramDef struct {
	ID   authflow.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in render order.
var CounterDefs = []CounterDef{
	{ID: authflow.MetricLoginSuccess, Name: "amfa_login_success_total", Help: "Logins that reached the dashboard directly."},
	{ID: authflow.MetricLoginFailure, Name: "amfa_login_failure_total", Help: "Logins rejected by the backend."},
	{ID: authflow.MetricLoginSecurityRequired, Name: "amfa_login_security_required_total", Help: "Logins that required a security code."},
	{ID: authflow.MetricLoginBlocked, Name: "amfa_login_blocked_total", Help: "Logins rejected with a temporary security block."},
	{ID: authflow.MetricCaptchaMismatch, Name: "amfa_captcha_mismatch_total", Help: "Login submissions with a wrong captcha answer."},
	{ID: authflow.MetricRegisterSuccess, Name: "amfa_register_success_total", Help: "Accounts created."},
	{ID: authflow.MetricRegisterFailure, Name: "amfa_register_failure_total", Help: "Registrations rejected by the backend."},
	{ID: authflow.MetricPasswordMismatch, Name: "amfa_password_mismatch_total", Help: "Registrations with mismatched passwords."},
	{ID: authflow.MetricEmailVerificationSuccess, Name: "amfa_email_verification_success_total", Help: "Email addresses verified."},
	{ID: authflow.MetricEmailVerificationFailure, Name: "amfa_email_verification_failure_total", Help: "Rejected email verification codes."},
	{ID: authflow.MetricEmailCodeResent, Name: "amfa_email_code_resent_total", Help: "Email verification codes resent."},
	{ID: authflow.MetricEmailCodeResendFailure, Name: "amfa_email_code_resend_failure_total", Help: "Failed email code resends."},
	{ID: authflow.MetricSecurityVerificationSuccess, Name: "amfa_security_verification_success_total", Help: "Security codes accepted."},
	{ID: authflow.MetricSecurityVerificationFailure, Name: "amfa_security_verification_failure_total", Help: "Security codes rejected."},
	{ID: authflow.MetricSecurityCodeResent, Name: "amfa_security_code_resent_total", Help: "Security codes resent."},
	{ID: authflow.MetricSecurityCodeResendFailure, Name: "amfa_security_code_resend_failure_total", Help: "Failed security code resends."},
	{ID: authflow.MetricDashboardLoaded, Name: "amfa_dashboard_loaded_total", Help: "Dashboard loads where both fetches succeeded."},
	{ID: authflow.MetricDashboardFailed, Name: "amfa_dashboard_failed_total", Help: "Dashboard loads where a fetch failed."},
	{ID: authflow.MetricLogout, Name: "amfa_logout_total", Help: "Completed logouts."},
	{ID: authflow.MetricLogoutFailure, Name: "amfa_logout_failure_total", Help: "Logouts where the backend call failed."},
	{ID: authflow.MetricInvariantRedirect, Name: "amfa_invariant_redirect_total", Help: "Steps entered without their precondition and redirected to login."},
	{ID: authflow.MetricNavigation, Name: "amfa_navigation_total", Help: "Resolved navigations."},
	{ID: authflow.MetricStaleResponse, Name: "amfa_stale_response_total", Help: "Backend outcomes discarded after the user navigated away."},
	{ID: authflow.MetricRequestInFlightRejected, Name: "amfa_request_in_flight_rejected_total", Help: "Submissions rejected while the same control was busy."},
	{ID: authflow.MetricStoreFailure, Name: "amfa_store_failure_total", Help: "Session store reads or writes that failed."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: authflow.MetricBackendLatency, Name: "amfa_backend_latency_seconds", Help: "Backend call latency histogram."},
}

// HistogramBounds are the upper bounds of the controller latency buckets.
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

// HistogramBoundSuffix is HistogramBounds in a form usable inside metric names.
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

// NormalizeBuckets copies raw into a fixed array, zero-filling missing buckets.
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
