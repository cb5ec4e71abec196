package authcore

import (
	internalmetrics "github.com/MrEthical07/authcore/internal/metrics"
)

// MetricID identifies a counter in the in-process metrics system.
type MetricID = internalmetrics.MetricID

const (
	MetricLoginSuccess             = internalmetrics.MetricLoginSuccess
	MetricLoginFailure             = internalmetrics.MetricLoginFailure
	MetricLoginRateLimited         = internalmetrics.MetricLoginRateLimited
	MetricLoginLocked              = internalmetrics.MetricLoginLocked
	MetricAccountLocked            = internalmetrics.MetricAccountLocked
	MetricCodeIssued               = internalmetrics.MetricCodeIssued
	MetricCodeVerified             = internalmetrics.MetricCodeVerified
	MetricCodeMismatch             = internalmetrics.MetricCodeMismatch
	MetricCodeExpired              = internalmetrics.MetricCodeExpired
	MetricCodeExhausted            = internalmetrics.MetricCodeExhausted
	MetricTokenIssued              = internalmetrics.MetricTokenIssued
	MetricRefreshSuccess           = internalmetrics.MetricRefreshSuccess
	MetricRefreshFailure           = internalmetrics.MetricRefreshFailure
	MetricRefreshRevoked           = internalmetrics.MetricRefreshRevoked
	MetricTokenRevoked             = internalmetrics.MetricTokenRevoked
	MetricAccountInvalidated       = internalmetrics.MetricAccountInvalidated
	MetricIdentityResolved         = internalmetrics.MetricIdentityResolved
	MetricIdentityCreated          = internalmetrics.MetricIdentityCreated
	MetricIdentityLinked           = internalmetrics.MetricIdentityLinked
	MetricIdentityConflict         = internalmetrics.MetricIdentityConflict
	MetricAccountCreationSuccess   = internalmetrics.MetricAccountCreationSuccess
	MetricAccountCreationDuplicate = internalmetrics.MetricAccountCreationDuplicate
	MetricPasswordChangeSuccess    = internalmetrics.MetricPasswordChangeSuccess
	MetricPasswordChangeInvalidOld = internalmetrics.MetricPasswordChangeInvalidOld
	MetricPasswordResetRequest     = internalmetrics.MetricPasswordResetRequest
	MetricPasswordResetSuccess     = internalmetrics.MetricPasswordResetSuccess
	MetricSocialUnbind             = internalmetrics.MetricSocialUnbind
	MetricAccountDisabled          = internalmetrics.MetricAccountDisabled
	MetricRateLimitHit             = internalmetrics.MetricRateLimitHit
	MetricInfrastructureFault      = internalmetrics.MetricInfrastructureFault
	MetricValidateLatency          = internalmetrics.MetricValidateLatency
)

// Metrics holds atomic counters and the optional latency histogram.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time copy of all metrics.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics creates a [Metrics]. When cfg.Enabled is false every operation
// is a no-op.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:       cfg.Enabled,
		EnableLatency: cfg.EnableLatencyHistograms,
	})
}
