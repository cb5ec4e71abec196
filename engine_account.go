package authcore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/store"
)

// hashPassword maps hasher policy errors onto ErrPasswordPolicy.
func (e *Engine) hashPassword(pw string) (string, error) {
	hash, err := e.passwords.Hash(pw)
	if errors.Is(err, password.ErrPasswordTooShort) || errors.Is(err, password.ErrPasswordTooLong) {
		return "", ErrPasswordPolicy
	}
	return hash, err
}

// Register creates a password account with a freshly generated identifier.
// An identifier collision on insert draws a new identifier; an email or phone
// collision returns [ErrAccountExists]. Phones must be in "+<digits>" form.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*Account, error) {
	email := store.NormalizeEmail(req.Email)
	phone := store.NormalizePhone(req.Phone)
	if strings.TrimSpace(req.Phone) != "" && phone == "" {
		return nil, ErrInvalidRequest
	}
	if email == "" && phone == "" {
		return nil, ErrInvalidRequest
	}
	subject := email
	if subject == "" {
		subject = phone
	}
	r := req.Role
	if r == 0 {
		r = e.config.Identity.DefaultRole
	}
	if !r.Valid() {
		return nil, ErrInvalidRequest
	}

	if ip := clientIPFromContext(ctx); ip != "" {
		cfg := e.config.RateLimit
		rl, err := e.throttle(ctx, "register", "register:ip:"+ip, cfg.RegisterMax, cfg.RegisterWindow)
		if err != nil {
			return nil, err
		}
		if rl.Limited {
			return nil, ErrRateLimited
		}
	}

	hash, err := e.hashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	account := &Account{
		PasswordHash:   hash,
		Email:          email,
		Phone:          phone,
		DisplayName:    strings.TrimSpace(req.DisplayName),
		AvatarURL:      strings.TrimSpace(req.AvatarURL),
		Role:           r,
		Enabled:        true,
		CredentialMode: store.DeriveCredentialMode(true, 0),
	}
	err = e.resolver.CreateWithFreshID(ctx, account, func(ctx context.Context) error {
		return e.store.InsertAccount(ctx, account)
	})
	if errors.Is(err, store.ErrDuplicateAccountID) {
		// Every drawn identifier lost its insert race.
		e.metricInc(MetricInfrastructureFault)
		return nil, fmt.Errorf("%w: register", ErrIdentifierSpaceExhausted)
	}
	if errors.Is(err, store.ErrDuplicate) {
		e.metricInc(MetricAccountCreationDuplicate)
		e.emitAudit(ctx, auditEntry{
			eventType: auditEventAccountDuplicate,
			subject:   subject,
			reason:    "duplicate",
		})
		return nil, ErrAccountExists
	}
	if err != nil {
		return nil, e.storeFault("register", err)
	}

	e.metricInc(MetricAccountCreationSuccess)
	e.emitAudit(ctx, auditEntry{
		eventType: auditEventAccountCreated,
		success:   true,
		accountID: account.ID,
		subject:   subject,
	})
	return account.Clone(), nil
}

// ChangePassword replaces the password after verifying the current one and
// voids every token issued so far.
func (e *Engine) ChangePassword(ctx context.Context, accountID, oldPassword, newPassword string) error {
	account, err := e.store.FindAccountByIdentifier(ctx, accountID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrInvalidCredentials
	}
	if err != nil {
		return e.storeFault("find account", err)
	}
	if !account.Enabled {
		return ErrAccountDisabled
	}
	if !account.HasPassword() {
		e.passwords.VerifyDummy(oldPassword)
		return ErrInvalidCredentials
	}

	ok, err := e.passwords.Verify(oldPassword, account.PasswordHash)
	if err != nil || !ok {
		e.metricInc(MetricPasswordChangeInvalidOld)
		e.policy("change password", OutcomeInvalidCredentials)
		e.emitAudit(ctx, auditEntry{
			eventType: auditEventPasswordChange,
			accountID: accountID,
			reason:    OutcomeInvalidCredentials.String(),
		})
		return ErrInvalidCredentials
	}

	hash, err := e.hashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := e.setPassword(ctx, account, hash); err != nil {
		return err
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEntry{
		eventType: auditEventPasswordChange,
		success:   true,
		accountID: accountID,
	})
	return nil
}

// setPassword stores hash, recomputes the credential mode and voids
// outstanding tokens.
func (e *Engine) setPassword(ctx context.Context, account *Account, hash string) error {
	updated := account.Clone()
	updated.PasswordHash = hash
	if err := e.store.UpdateAccount(ctx, updated); err != nil {
		return e.storeFault("update password", err)
	}
	if _, err := e.resolver.UpdateCredentialMode(ctx, updated.ID); err != nil {
		return e.storeFault("update credential mode", err)
	}
	return e.InvalidateAllForAccount(ctx, updated.ID, 0)
}

// RequestPasswordReset sends a reset code to email. As with
// RequestLoginCode, unknown addresses get the same result as known ones.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) (RateLimitResult, error) {
	rl, err := e.requestCode(ctx, PurposePasswordReset, email)
	if err == nil && !rl.Limited {
		e.metricInc(MetricPasswordResetRequest)
		e.emitAudit(ctx, auditEntry{
			eventType: auditEventPasswordResetRequest,
			success:   true,
			subject:   store.NormalizeEmail(email),
		})
	}
	return rl, err
}

// ResetPassword sets a new password with a code from RequestPasswordReset.
// The new password is checked before the code so a policy failure does not
// burn an attempt. On success the lockout for email is cleared and every
// token issued to the account is voided.
func (e *Engine) ResetPassword(ctx context.Context, email, code, newPassword string) (CodeVerification, error) {
	email = store.NormalizeEmail(email)
	if email == "" || code == "" {
		return CodeVerification{}, ErrInvalidRequest
	}
	hash, err := e.hashPassword(newPassword)
	if err != nil {
		return CodeVerification{}, err
	}

	v, err := e.VerifyCode(ctx, PurposePasswordReset, email, code)
	if err != nil || v.Outcome != OutcomeOK {
		return v, err
	}

	account, err := e.store.FindAccountByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return CodeVerification{Outcome: OutcomeCodeExpired}, nil
	}
	if err != nil {
		return CodeVerification{}, e.storeFault("find account", err)
	}

	if err := e.setPassword(ctx, account, hash); err != nil {
		return CodeVerification{}, err
	}
	if err := e.lockout.RecordSuccess(ctx, email); err != nil {
		e.logger.Warn("clear lockout after reset", zap.Error(err))
	}

	e.metricInc(MetricPasswordResetSuccess)
	e.emitAudit(ctx, auditEntry{
		eventType: auditEventPasswordReset,
		success:   true,
		accountID: account.ID,
		subject:   email,
	})
	return v, nil
}

// SetAccountEnabled toggles the soft-disable flag. Disabling also voids
// every token issued to the account.
func (e *Engine) SetAccountEnabled(ctx context.Context, accountID string, enabled bool) error {
	account, err := e.store.FindAccountByIdentifier(ctx, accountID)
	if err != nil {
		return e.storeFault("find account", err)
	}
	if account.Enabled == enabled {
		return nil
	}
	updated := account.Clone()
	updated.Enabled = enabled
	if err := e.store.UpdateAccount(ctx, updated); err != nil {
		return e.storeFault("update account", err)
	}

	e.emitAudit(ctx, auditEntry{
		eventType: auditEventAccountStatusChange,
		success:   true,
		accountID: accountID,
		metadata: func() map[string]string {
			if enabled {
				return map[string]string{"status": "enabled"}
			}
			return map[string]string{"status": "disabled"}
		},
	})
	if enabled {
		return nil
	}
	e.metricInc(MetricAccountDisabled)
	return e.InvalidateAllForAccount(ctx, accountID, 0)
}

// Account returns a copy of the account with accountID.
func (e *Engine) Account(ctx context.Context, accountID string) (*Account, error) {
	account, err := e.store.FindAccountByIdentifier(ctx, accountID)
	if err != nil {
		return nil, e.storeFault("find account", err)
	}
	return account, nil
}
