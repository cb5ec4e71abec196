package authcore

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/MrEthical07/authcore/internal/normalize"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/store"
)

// LoginWithPassword authenticates identifier (email, account identifier or
// phone) with a password.
//
// The checks run in order: rate limit, lockout, lookup, password, disabled.
// Unknown identifiers burn the same hashing time, record a failure and
// return the same outcome as a wrong password, and so does a wrong password
// on a disabled account. A cache fault at the lockout
// step denies the login with an error.
func (e *Engine) LoginWithPassword(ctx context.Context, identifier, pw string) (AuthResult, error) {
	subject := normalize.Identifier(identifier)
	if subject == "" || pw == "" {
		return AuthResult{}, ErrInvalidRequest
	}

	rl, err := e.throttleLogin(ctx, "login", subject)
	if err != nil {
		return AuthResult{}, err
	}
	if rl.Limited {
		e.metricInc(MetricLoginRateLimited)
		return AuthResult{Outcome: OutcomeRateLimited, RetryAfter: rl.RetryAfter}, nil
	}

	status, err := e.LockoutStatus(ctx, subject)
	if err != nil {
		return AuthResult{}, err
	}
	if status.Locked {
		e.metricInc(MetricLoginLocked)
		e.policy("login", OutcomeLocked)
		e.emitAudit(ctx, auditEntry{
			eventType: auditEventLoginLocked,
			subject:   subject,
			reason:    OutcomeLocked.String(),
		})
		return AuthResult{Outcome: OutcomeLocked, RetryAfter: status.LockRemaining}, nil
	}

	account, err := e.lookupAccount(ctx, subject)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return AuthResult{}, e.storeFault("find account", err)
	}
	if account == nil || !account.HasPassword() {
		e.passwords.VerifyDummy(pw)
		return e.loginFailed(ctx, subject, "")
	}

	ok, err := e.passwords.Verify(pw, account.PasswordHash)
	if err != nil && !errors.Is(err, password.ErrPasswordTooLong) {
		// A malformed stored hash never signs in.
		e.logger.Warn("password verify failed", zap.String("account_id", account.ID), zap.Error(err))
	}
	if !ok {
		return e.loginFailed(ctx, subject, account.ID)
	}
	// Only a caller holding the password learns the account is disabled.
	if !account.Enabled {
		e.metricInc(MetricLoginFailure)
		e.policy("login", OutcomeAccountDisabled)
		e.emitAudit(ctx, auditEntry{
			eventType: auditEventLoginFailure,
			accountID: account.ID,
			subject:   subject,
			reason:    OutcomeAccountDisabled.String(),
		})
		return AuthResult{Outcome: OutcomeAccountDisabled}, nil
	}

	if err := e.lockout.RecordSuccess(ctx, subject); err != nil {
		e.logger.Warn("clear lockout after login", zap.Error(err))
	}
	e.maybeUpgradeHash(ctx, account, pw)

	return e.completeLogin(ctx, account, subject)
}

func (e *Engine) loginFailed(ctx context.Context, subject, accountID string) (AuthResult, error) {
	status, err := e.RecordLoginFailure(ctx, subject)
	if err != nil {
		return AuthResult{}, err
	}
	e.metricInc(MetricLoginFailure)
	e.policy("login", OutcomeInvalidCredentials, zap.Int("remaining_attempts", status.RemainingAttempts))
	e.emitAudit(ctx, auditEntry{
		eventType: auditEventLoginFailure,
		accountID: accountID,
		subject:   subject,
		reason:    OutcomeInvalidCredentials.String(),
	})
	return AuthResult{Outcome: OutcomeInvalidCredentials}, nil
}

// maybeUpgradeHash rehashes with the current parameters. Failure leaves the
// old hash in place.
func (e *Engine) maybeUpgradeHash(ctx context.Context, account *Account, pw string) {
	if !e.config.Password.UpgradeOnLogin {
		return
	}
	needs, err := e.passwords.NeedsUpgrade(account.PasswordHash)
	if err != nil || !needs {
		return
	}
	hash, err := e.passwords.Hash(pw)
	if err != nil {
		e.logger.Warn("password rehash failed", zap.String("account_id", account.ID), zap.Error(err))
		return
	}
	updated := account.Clone()
	updated.PasswordHash = hash
	if err := e.store.UpdateAccount(ctx, updated); err != nil {
		e.logger.Warn("password rehash not persisted", zap.String("account_id", account.ID), zap.Error(err))
		return
	}
	account.PasswordHash = hash
}

// completeLogin mints the token pair for an authenticated account.
func (e *Engine) completeLogin(ctx context.Context, account *Account, subject string) (AuthResult, error) {
	pair, err := e.IssueTokens(ctx, account, subject)
	if err != nil {
		return AuthResult{}, err
	}
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEntry{
		eventType: auditEventLoginSuccess,
		success:   true,
		accountID: account.ID,
		subject:   subject,
	})
	return AuthResult{Outcome: OutcomeOK, Account: account.Clone(), Tokens: pair}, nil
}
