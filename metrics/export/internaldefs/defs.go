package internaldefs

import (
	"github.com/MrEthical07/authcore"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// HistogramDef names one engine latency histogram for exporters.
type HistogramDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: authcore.MetricLoginSuccess, Name: "authcore_login_success_total", Help: "Successful sign-ins."},
	{ID: authcore.MetricLoginFailure, Name: "authcore_login_failure_total", Help: "Failed sign-in attempts."},
	{ID: authcore.MetricLoginRateLimited, Name: "authcore_login_rate_limited_total", Help: "Sign-in attempts rejected by rate limiting."},
	{ID: authcore.MetricLoginLocked, Name: "authcore_login_locked_total", Help: "Sign-in attempts rejected by an active lock."},
	{ID: authcore.MetricAccountLocked, Name: "authcore_account_locked_total", Help: "Locks applied after repeated failures."},
	{ID: authcore.MetricCodeIssued, Name: "authcore_code_issued_total", Help: "One-time codes issued and delivered."},
	{ID: authcore.MetricCodeVerified, Name: "authcore_code_verified_total", Help: "One-time codes verified."},
	{ID: authcore.MetricCodeMismatch, Name: "authcore_code_mismatch_total", Help: "Wrong one-time code submissions."},
	{ID: authcore.MetricCodeExpired, Name: "authcore_code_expired_total", Help: "Verifications with no outstanding code."},
	{ID: authcore.MetricCodeExhausted, Name: "authcore_code_exhausted_total", Help: "Codes destroyed after too many wrong submissions."},
	{ID: authcore.MetricTokenIssued, Name: "authcore_token_issued_total", Help: "Token pairs minted."},
	{ID: authcore.MetricRefreshSuccess, Name: "authcore_refresh_success_total", Help: "Successful refreshes."},
	{ID: authcore.MetricRefreshFailure, Name: "authcore_refresh_failure_total", Help: "Rejected refreshes."},
	{ID: authcore.MetricRefreshRevoked, Name: "authcore_refresh_revoked_total", Help: "Refreshes rejected by revocation."},
	{ID: authcore.MetricTokenRevoked, Name: "authcore_token_revoked_total", Help: "Tokens added to the denylist."},
	{ID: authcore.MetricAccountInvalidated, Name: "authcore_account_invalidated_total", Help: "Account-wide token invalidations."},
	{ID: authcore.MetricIdentityResolved, Name: "authcore_identity_resolved_total", Help: "Social identities resolved to accounts."},
	{ID: authcore.MetricIdentityCreated, Name: "authcore_identity_created_total", Help: "Accounts created from social identities."},
	{ID: authcore.MetricIdentityLinked, Name: "authcore_identity_linked_total", Help: "Social identities linked to existing accounts."},
	{ID: authcore.MetricIdentityConflict, Name: "authcore_identity_conflict_total", Help: "Social identities refused by a conflicting binding."},
	{ID: authcore.MetricAccountCreationSuccess, Name: "authcore_account_creation_success_total", Help: "Password accounts registered."},
	{ID: authcore.MetricAccountCreationDuplicate, Name: "authcore_account_creation_duplicate_total", Help: "Registrations rejected as duplicate."},
	{ID: authcore.MetricPasswordChangeSuccess, Name: "authcore_password_change_success_total", Help: "Successful password changes."},
	{ID: authcore.MetricPasswordChangeInvalidOld, Name: "authcore_password_change_invalid_old_total", Help: "Password changes with a wrong current password."},
	{ID: authcore.MetricPasswordResetRequest, Name: "authcore_password_reset_request_total", Help: "Password reset requests."},
	{ID: authcore.MetricPasswordResetSuccess, Name: "authcore_password_reset_success_total", Help: "Completed password resets."},
	{ID: authcore.MetricSocialUnbind, Name: "authcore_social_unbind_total", Help: "Social bindings removed."},
	{ID: authcore.MetricAccountDisabled, Name: "authcore_account_disabled_total", Help: "Accounts disabled."},
	{ID: authcore.MetricRateLimitHit, Name: "authcore_rate_limit_hit_total", Help: "Rate-limit checks that denied a request."},
	{ID: authcore.MetricInfrastructureFault, Name: "authcore_infrastructure_fault_total", Help: "Cache, store, provider or notifier faults."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: authcore.MetricValidateLatency, Name: "authcore_authenticate_latency_seconds", Help: "Authenticate latency."},
}

// HistogramUpperBounds are the bucket bounds in seconds, excluding +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, +Inf last, for exporters that
// flatten histograms into gauges.
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

// AuditDroppedName is the counter for audit events dropped under
// backpressure.
const AuditDroppedName = "authcore_audit_dropped_total"

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
