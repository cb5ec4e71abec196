package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authcore/internal/normalize"
	"github.com/MrEthical07/authcore/internal/rate"
)

// CheckRateLimit counts one request against key. The (max+1)-th call inside
// window is reported as limited. Keys are namespaced apart from the ones the
// built-in flows use.
func (e *Engine) CheckRateLimit(ctx context.Context, key string, max int, window time.Duration) (RateLimitResult, error) {
	if key == "" {
		return RateLimitResult{}, ErrInvalidRequest
	}
	return e.throttle(ctx, "custom", "app:"+key, max, window)
}

func (e *Engine) throttle(ctx context.Context, scope, key string, max int, window time.Duration) (RateLimitResult, error) {
	d, err := e.limiter.Allow(ctx, key, max, window)
	if errors.Is(err, rate.ErrInvalidPolicy) {
		return RateLimitResult{}, ErrInvalidRequest
	}
	if err != nil {
		return RateLimitResult{}, e.fault(ErrCacheUnavailable, "rate limit", err)
	}
	res := RateLimitResult{
		Limited:    d.Limited,
		Remaining:  d.Remaining,
		RetryAfter: d.RetryAfter,
	}
	if d.Limited {
		res.Outcome = OutcomeRateLimited
		e.emitRateLimit(ctx, scope, key)
		e.policy("rate limit", OutcomeRateLimited)
	}
	return res, nil
}

// throttleLogin applies the per-identifier budget and, when enabled and an
// IP is on ctx, the per-IP budget.
func (e *Engine) throttleLogin(ctx context.Context, scope, identifier string) (RateLimitResult, error) {
	cfg := e.config.RateLimit
	res, err := e.throttle(ctx, scope, scope+":u:"+normalize.Identifier(identifier), cfg.LoginMax, cfg.LoginWindow)
	if err != nil || res.Limited {
		return res, err
	}
	if !cfg.EnableIPThrottle {
		return res, nil
	}
	ip := clientIPFromContext(ctx)
	if ip == "" {
		return res, nil
	}
	return e.throttle(ctx, scope, scope+":ip:"+ip, cfg.IPMax, cfg.IPWindow)
}

// LockoutStatus reports whether identifier is locked and how many failures
// it has left. A cache fault is returned as an error and must be treated as
// locked by the caller.
func (e *Engine) LockoutStatus(ctx context.Context, identifier string) (LockoutStatus, error) {
	locked, err := e.lockout.IsLocked(ctx, identifier)
	if err != nil {
		return LockoutStatus{Outcome: OutcomeLocked, Locked: true}, e.fault(ErrCacheUnavailable, "lockout status", err)
	}
	if locked {
		remaining, err := e.lockout.RemainingLock(ctx, identifier)
		if err != nil {
			return LockoutStatus{Outcome: OutcomeLocked, Locked: true}, e.fault(ErrCacheUnavailable, "lockout status", err)
		}
		return LockoutStatus{
			Outcome:       OutcomeLocked,
			Locked:        true,
			LockRemaining: remaining,
		}, nil
	}

	failures, err := e.lockout.FailureCount(ctx, identifier)
	if err != nil {
		return LockoutStatus{Outcome: OutcomeLocked, Locked: true}, e.fault(ErrCacheUnavailable, "lockout status", err)
	}
	left := e.config.Lockout.MaxFailures - failures
	if left < 0 {
		left = 0
	}
	return LockoutStatus{Failures: failures, RemainingAttempts: left}, nil
}

// RecordLoginFailure counts a failed credential check for identifier and
// locks it once the threshold is reached.
func (e *Engine) RecordLoginFailure(ctx context.Context, identifier string) (LockoutStatus, error) {
	res, err := e.lockout.RecordFailure(ctx, identifier)
	if err != nil {
		return LockoutStatus{}, e.fault(ErrCacheUnavailable, "record failure", err)
	}
	status := LockoutStatus{
		Failures:          res.Failures,
		RemainingAttempts: res.RemainingAttempts,
	}
	if res.Locked {
		status.Outcome = OutcomeLocked
		status.Locked = true
		status.LockRemaining = res.LockRemaining
		e.metricInc(MetricAccountLocked)
		e.emitAudit(ctx, auditEntry{
			eventType: auditEventAccountLocked,
			subject:   normalize.Identifier(identifier),
			reason:    OutcomeLocked.String(),
		})
	}
	return status, nil
}

// RecordLoginSuccess clears failures and any lock for identifier.
func (e *Engine) RecordLoginSuccess(ctx context.Context, identifier string) error {
	if err := e.lockout.RecordSuccess(ctx, identifier); err != nil {
		return e.fault(ErrCacheUnavailable, "record success", err)
	}
	return nil
}
