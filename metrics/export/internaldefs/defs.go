package internaldefs

import (
	"github.com/MrEthical07/sessioncap"
)

// CounterDef binds an engine counter to its exported name.
type CounterDef struct {
	ID   sessioncap.MetricID
	Name string
	Help string
}

// HistogramDef binds an engine histogram to its exported name.
type HistogramDef struct {
	ID   sessioncap.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: sessioncap.MetricLoginSuccess, Name: "sessioncap_login_success_total", Help: "Successful logins."},
	{ID: sessioncap.MetricLoginFailure, Name: "sessioncap_login_failure_total", Help: "Logins rejected for bad credentials."},
	{ID: sessioncap.MetricLoginRateLimited, Name: "sessioncap_login_rate_limited_total", Help: "Logins rejected by the attempt throttle."},
	{ID: sessioncap.MetricRefreshSuccess, Name: "sessioncap_refresh_success_total", Help: "Refresh tokens exchanged for access tokens."},
	{ID: sessioncap.MetricRefreshFailure, Name: "sessioncap_refresh_failure_total", Help: "Refresh attempts rejected."},
	{ID: sessioncap.MetricSessionCreated, Name: "sessioncap_session_created_total", Help: "Sessions created."},
	{ID: sessioncap.MetricSessionEvicted, Name: "sessioncap_session_evicted_total", Help: "Least recently used sessions evicted to honour the per-user limit."},
	{ID: sessioncap.MetricSessionInvalidated, Name: "sessioncap_session_invalidated_total", Help: "Sessions removed by logout or orphan cleanup."},
	{ID: sessioncap.MetricLogout, Name: "sessioncap_logout_total", Help: "Single-session logouts."},
	{ID: sessioncap.MetricLogoutAll, Name: "sessioncap_logout_all_total", Help: "Logout-all operations."},
	{ID: sessioncap.MetricAccountCreationSuccess, Name: "sessioncap_account_creation_success_total", Help: "Accounts created."},
	{ID: sessioncap.MetricAccountCreationDuplicate, Name: "sessioncap_account_creation_duplicate_total", Help: "Sign-ups rejected as duplicate."},
	{ID: sessioncap.MetricAuthorizationDenied, Name: "sessioncap_authorization_denied_total", Help: "Permission checks that denied access."},
}

var HistogramDefs = []HistogramDef{
	{ID: sessioncap.MetricValidateLatency, Name: "sessioncap_validate_latency_seconds", Help: "Access token validation latency."},
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const AuditDroppedName = "sessioncap_audit_dropped_total"

// HistogramUpperBounds are the finite bucket bounds in seconds. The last
// engine bucket is +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, +Inf included, for exporters that
// cannot carry a label.
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

// NormalizeBuckets pads or truncates raw to the fixed bucket count.
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
