package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/authcore/internal/normalize"
	"github.com/MrEthical07/authcore/internal/random"
	"github.com/MrEthical07/authcore/internal/stores"
	"github.com/MrEthical07/authcore/store"
)

func (e *Engine) codeTTL(purpose CodePurpose) time.Duration {
	if purpose == PurposeLogin {
		return e.config.OTP.LoginCodeTTL
	}
	return e.config.OTP.ResetCodeTTL
}

// IssueCode generates a fresh numeric code for destination, replaces any
// outstanding code for the same purpose, resets its attempt counter and
// hands it to the notifier. The code is returned for callers that deliver
// through a second channel; it is stored only as a digest.
func (e *Engine) IssueCode(ctx context.Context, purpose CodePurpose, destination string) (string, error) {
	if !purpose.Valid() || normalize.Identifier(destination) == "" {
		return "", ErrInvalidRequest
	}
	if e.notifier == nil {
		return "", ErrNotifierRequired
	}

	code, err := random.NumericCode(e.config.OTP.Digits)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	if err := e.codes.Save(ctx, string(purpose), destination, code, e.codeTTL(purpose)); err != nil {
		return "", e.fault(ErrCacheUnavailable, "issue code", err)
	}

	if err := e.notifier.SendCode(ctx, normalize.Identifier(destination), code, purpose); err != nil {
		// An undelivered code must not stay guessable.
		if derr := e.codes.Discard(ctx, string(purpose), destination); derr != nil {
			e.logger.Warn("discard undelivered code", zap.String("purpose", string(purpose)), zap.Error(derr))
		}
		ferr := e.fault(ErrNotifierUnavailable, "send code", err)
		e.emitAudit(ctx, auditEntry{
			eventType: auditEventCodeIssued,
			subject:   normalize.Identifier(destination),
			reason:    auditReason(ferr),
			metadata: func() map[string]string {
				return map[string]string{"purpose": string(purpose)}
			},
		})
		return "", ferr
	}

	e.metricInc(MetricCodeIssued)
	e.emitAudit(ctx, auditEntry{
		eventType: auditEventCodeIssued,
		success:   true,
		subject:   normalize.Identifier(destination),
		metadata: func() map[string]string {
			return map[string]string{"purpose": string(purpose)}
		},
	})
	return code, nil
}

// VerifyCode checks submitted against the outstanding code. OK consumes the
// code; the last allowed mismatch destroys it.
func (e *Engine) VerifyCode(ctx context.Context, purpose CodePurpose, identifier, submitted string) (CodeVerification, error) {
	if !purpose.Valid() {
		return CodeVerification{}, ErrInvalidRequest
	}
	res, err := e.codes.Verify(ctx, string(purpose), identifier, submitted)
	if err != nil {
		return CodeVerification{}, e.fault(ErrCacheUnavailable, "verify code", err)
	}

	out := CodeVerification{Remaining: res.Remaining}
	switch res.Status {
	case stores.CodeOK:
		out.Outcome = OutcomeOK
		out.Remaining = 0
		e.metricInc(MetricCodeVerified)
	case stores.CodeMismatch:
		out.Outcome = OutcomeCodeMismatch
		e.metricInc(MetricCodeMismatch)
	case stores.CodeExhausted:
		out.Outcome = OutcomeCodeExhausted
		out.Remaining = 0
		e.metricInc(MetricCodeExhausted)
	default:
		out.Outcome = OutcomeCodeExpired
		out.Remaining = 0
		e.metricInc(MetricCodeExpired)
	}

	e.emitAudit(ctx, auditEntry{
		eventType: auditEventCodeVerify,
		success:   out.Outcome == OutcomeOK,
		subject:   normalize.Identifier(identifier),
		reason:    outcomeReason(out.Outcome),
		metadata: func() map[string]string {
			return map[string]string{"purpose": string(purpose)}
		},
	})
	if out.Outcome != OutcomeOK {
		e.policy("verify code", out.Outcome, zap.Int("remaining", out.Remaining))
	}
	return out, nil
}

func outcomeReason(o Outcome) string {
	if o == OutcomeOK {
		return ""
	}
	return o.String()
}

// RequestLoginCode sends a sign-in code to email. Unknown and disabled
// accounts get no code but the same nil result, so the response does not
// reveal whether the address is registered.
func (e *Engine) RequestLoginCode(ctx context.Context, email string) (RateLimitResult, error) {
	return e.requestCode(ctx, PurposeLogin, email)
}

func (e *Engine) requestCode(ctx context.Context, purpose CodePurpose, email string) (RateLimitResult, error) {
	email = store.NormalizeEmail(email)
	if email == "" {
		return RateLimitResult{}, ErrInvalidRequest
	}
	if e.notifier == nil {
		return RateLimitResult{}, ErrNotifierRequired
	}

	cfg := e.config.RateLimit
	rl, err := e.throttle(ctx, "code_"+string(purpose), "code:"+string(purpose)+":"+email, cfg.CodeRequestMax, cfg.CodeRequestWindow)
	if err != nil || rl.Limited {
		return rl, err
	}

	account, err := e.store.FindAccountByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return rl, nil
	}
	if err != nil {
		return RateLimitResult{}, e.storeFault("find account", err)
	}
	if !account.Enabled {
		return rl, nil
	}

	if _, err := e.IssueCode(ctx, purpose, email); err != nil {
		return RateLimitResult{}, err
	}
	return rl, nil
}

// LoginWithCode signs in with a code previously sent by RequestLoginCode.
func (e *Engine) LoginWithCode(ctx context.Context, email, code string) (AuthResult, error) {
	email = store.NormalizeEmail(email)
	if email == "" || code == "" {
		return AuthResult{}, ErrInvalidRequest
	}

	rl, err := e.throttleLogin(ctx, "login", email)
	if err != nil {
		return AuthResult{}, err
	}
	if rl.Limited {
		e.metricInc(MetricLoginRateLimited)
		return AuthResult{Outcome: OutcomeRateLimited, RetryAfter: rl.RetryAfter}, nil
	}

	v, err := e.VerifyCode(ctx, PurposeLogin, email, code)
	if err != nil {
		return AuthResult{}, err
	}
	if v.Outcome != OutcomeOK {
		e.metricInc(MetricLoginFailure)
		return AuthResult{Outcome: v.Outcome}, nil
	}

	account, err := e.store.FindAccountByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		e.metricInc(MetricLoginFailure)
		return AuthResult{Outcome: OutcomeInvalidCredentials}, nil
	}
	if err != nil {
		return AuthResult{}, e.storeFault("find account", err)
	}
	if !account.Enabled {
		e.metricInc(MetricLoginFailure)
		e.policy("login with code", OutcomeAccountDisabled)
		return AuthResult{Outcome: OutcomeAccountDisabled}, nil
	}

	// A proven mailbox also proves the account owner.
	if err := e.lockout.RecordSuccess(ctx, email); err != nil {
		e.logger.Warn("clear lockout after code login", zap.Error(err))
	}
	return e.completeLogin(ctx, account, email)
}
