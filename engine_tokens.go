package authcore

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/authcore/jwt"
)

// IssueTokens mints an access and refresh token for account. Both share
// the lifetime of the account's role. subject is the login handle and
// defaults to the account identifier.
func (e *Engine) IssueTokens(ctx context.Context, account *Account, subject string) (TokenPair, error) {
	if account == nil || account.ID == "" {
		return TokenPair{}, ErrInvalidRequest
	}
	if subject == "" {
		subject = account.ID
	}
	pair, err := e.tokens.IssuePair(jwt.Principal{
		Subject:   subject,
		AccountID: account.ID,
		Role:      account.Role,
	})
	if err != nil {
		return TokenPair{}, err
	}
	e.metricInc(MetricTokenIssued)
	return TokenPair{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	}, nil
}

// ValidateToken reports whether token carries a good signature and is
// unexpired. It does not consult revocation; use [Engine.Authenticate] for
// that.
func (e *Engine) ValidateToken(token string) bool {
	return e.tokens.Validate(token)
}

// IsRefreshToken reports whether token is a valid refresh token.
func (e *Engine) IsRefreshToken(token string) bool {
	return e.tokens.IsRefresh(token)
}

// TokenAccountID returns the account id of a valid token, or "".
func (e *Engine) TokenAccountID(token string) string {
	return e.tokens.AccountID(token)
}

// TokenSubject returns the subject of a valid token, or "".
func (e *Engine) TokenSubject(token string) string {
	return e.tokens.Subject(token)
}

// TokenRole returns the role of a valid token, or the zero Role.
func (e *Engine) TokenRole(token string) Role {
	return e.tokens.Role(token)
}

// TokenExpiry returns the expiry of a valid token.
func (e *Engine) TokenExpiry(token string) (time.Time, bool) {
	return e.tokens.Expiry(token)
}

// Refresh mints a new access token from a refresh token. The refresh token
// must verify, must not be denylisted, and must have been issued after the
// account's latest invalidation. A cache fault denies the refresh: an
// unreachable registry is treated as possibly revoked.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (RefreshResult, error) {
	claims, err := e.tokens.Parse(refreshToken)
	if err != nil || claims.Kind != jwt.KindRefresh {
		return e.refreshRejected(ctx, "", OutcomeTokenInvalid), nil
	}

	outcome, err := e.revocationOutcome(ctx, refreshToken, claims)
	if err != nil {
		return RefreshResult{}, err
	}
	if outcome != OutcomeOK {
		e.metricInc(MetricRefreshRevoked)
		return e.refreshRejected(ctx, claims.AccountID, outcome), nil
	}

	access, accessClaims, err := e.tokens.Refresh(refreshToken)
	if err != nil {
		return e.refreshRejected(ctx, claims.AccountID, OutcomeTokenInvalid), nil
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEntry{
		eventType: auditEventTokenRefresh,
		success:   true,
		accountID: claims.AccountID,
		subject:   claims.Subject,
	})
	return RefreshResult{
		Outcome:     OutcomeOK,
		AccessToken: access,
		ExpiresAt:   accessClaims.ExpiresAt.Time,
		AccountID:   claims.AccountID,
	}, nil
}

func (e *Engine) refreshRejected(ctx context.Context, accountID string, outcome Outcome) RefreshResult {
	e.metricInc(MetricRefreshFailure)
	e.policy("refresh", outcome)
	e.emitAudit(ctx, auditEntry{
		eventType: auditEventTokenRefresh,
		accountID: accountID,
		reason:    outcome.String(),
	})
	return RefreshResult{Outcome: outcome, AccountID: accountID}
}

// revocationOutcome checks the denylist and the account invalidation stamp.
// Tokens issued at or before the stamp's millisecond are rejected.
func (e *Engine) revocationOutcome(ctx context.Context, token string, claims *jwt.Claims) (Outcome, error) {
	revoked, err := e.revocation.IsRevoked(ctx, token)
	if err != nil {
		return OutcomeTokenRevoked, e.fault(ErrCacheUnavailable, "revocation check", err)
	}
	if revoked {
		return OutcomeTokenRevoked, nil
	}

	stamp, ok, err := e.revocation.InvalidatedAt(ctx, claims.AccountID)
	if err != nil {
		return OutcomeTokenRevoked, e.fault(ErrCacheUnavailable, "invalidation check", err)
	}
	if ok && !claims.IssuedAt.Time.After(stamp) {
		return OutcomeTokenRevoked, nil
	}
	return OutcomeOK, nil
}

// Authenticate fully checks an access token: signature, expiry, kind,
// denylist and account invalidation. Cache faults fail closed.
func (e *Engine) Authenticate(ctx context.Context, accessToken string) (TokenCheck, error) {
	start := time.Now()
	defer func() {
		if e.metrics.LatencyEnabled() {
			e.metrics.Observe(MetricValidateLatency, time.Since(start))
		}
	}()

	claims, err := e.tokens.Parse(accessToken)
	if err != nil || claims.Kind != jwt.KindAccess {
		e.policy("authenticate", OutcomeTokenInvalid)
		return TokenCheck{Outcome: OutcomeTokenInvalid}, nil
	}

	outcome, err := e.revocationOutcome(ctx, accessToken, claims)
	if err != nil {
		return TokenCheck{Outcome: outcome}, err
	}
	if outcome != OutcomeOK {
		e.policy("authenticate", outcome)
		return TokenCheck{Outcome: outcome, AccountID: claims.AccountID}, nil
	}

	return TokenCheck{
		Outcome:   OutcomeOK,
		AccountID: claims.AccountID,
		Subject:   claims.Subject,
		Role:      claims.Role,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Revoke denylists token for the rest of its natural lifetime. It reports
// false when the token does not verify or has already expired; neither
// needs an entry.
func (e *Engine) Revoke(ctx context.Context, token string) (bool, error) {
	claims, err := e.tokens.ParseIgnoringExpiry(token)
	if err != nil {
		e.policy("revoke", OutcomeTokenInvalid)
		return false, nil
	}
	added, err := e.revocation.Revoke(ctx, token, claims.ExpiresAt.Time)
	if err != nil {
		return false, e.fault(ErrCacheUnavailable, "revoke", err)
	}
	if added {
		e.metricInc(MetricTokenRevoked)
		e.emitAudit(ctx, auditEntry{
			eventType: auditEventTokenRevoked,
			success:   true,
			accountID: claims.AccountID,
			subject:   claims.Subject,
			metadata: func() map[string]string {
				return map[string]string{"kind": string(claims.Kind)}
			},
		})
	}
	return added, nil
}

// IsRevoked reports whether token is denylisted.
func (e *Engine) IsRevoked(ctx context.Context, token string) (bool, error) {
	revoked, err := e.revocation.IsRevoked(ctx, token)
	if err != nil {
		return true, e.fault(ErrCacheUnavailable, "revocation check", err)
	}
	return revoked, nil
}

// Logout revokes both tokens of a session. Either may be empty.
func (e *Engine) Logout(ctx context.Context, accessToken, refreshToken string) error {
	for _, t := range []string{accessToken, refreshToken} {
		if t == "" {
			continue
		}
		if _, err := e.Revoke(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

// InvalidateAllForAccount voids every token issued to accountID so far. The
// stamp lives for grace, or Revocation.InvalidationGrace when grace is zero.
// Tokens minted after the stamp's second remain usable.
func (e *Engine) InvalidateAllForAccount(ctx context.Context, accountID string, grace time.Duration) error {
	if accountID == "" {
		return ErrInvalidRequest
	}
	if grace <= 0 {
		grace = e.config.Revocation.InvalidationGrace
	}
	at, err := e.revocation.InvalidateAccount(ctx, accountID, grace)
	if err != nil {
		return e.fault(ErrCacheUnavailable, "invalidate account", err)
	}
	e.metricInc(MetricAccountInvalidated)
	e.logger.Info("account tokens invalidated", zap.String("account_id", accountID), zap.Time("at", at))
	e.emitAudit(ctx, auditEntry{
		eventType: auditEventAccountInvalidated,
		success:   true,
		accountID: accountID,
	})
	return nil
}

// IsAccountInvalidated reports whether an invalidation stamp is live for
// accountID. It is a presence check; [Engine.Refresh] and
// [Engine.Authenticate] compare issue times instead.
func (e *Engine) IsAccountInvalidated(ctx context.Context, accountID string) (bool, error) {
	ok, err := e.revocation.IsAccountInvalidated(ctx, accountID)
	if err != nil {
		return true, e.fault(ErrCacheUnavailable, "invalidation check", err)
	}
	return ok, nil
}
