package authcore

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/MrEthical07/authcore/internal/identity"
	"github.com/MrEthical07/authcore/store"
)

// ResolveIdentity maps a provider identity onto an account: an existing
// binding wins, then an account with the same email is linked, and
// otherwise a new account is created together with its binding.
func (e *Engine) ResolveIdentity(ctx context.Context, provider string, ext ExternalIdentity) (IdentityResolution, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	res, err := e.resolver.Resolve(ctx, identity.Profile{
		Provider:    provider,
		ExternalID:  ext.ExternalID,
		UnionID:     ext.UnionID,
		Email:       ext.Email,
		DisplayName: ext.DisplayName,
		AvatarURL:   ext.AvatarURL,
	})
	switch {
	case errors.Is(err, identity.ErrInvalidProfile):
		return IdentityResolution{}, ErrInvalidRequest
	case errors.Is(err, identity.ErrIdentityConflict):
		e.metricInc(MetricIdentityConflict)
		e.policy("resolve identity", OutcomeIdentityConflict, zap.String("provider", provider))
		e.emitAudit(ctx, auditEntry{
			eventType: auditEventIdentityConflict,
			provider:  provider,
			reason:    OutcomeIdentityConflict.String(),
		})
		return IdentityResolution{Outcome: OutcomeIdentityConflict}, nil
	case errors.Is(err, identity.ErrOrphanBinding):
		e.logger.Warn("binding references a missing account", zap.String("provider", provider))
		return IdentityResolution{}, e.fault(ErrStoreUnavailable, "resolve identity", err)
	case errors.Is(err, store.ErrDuplicate):
		// Lost every restart to concurrent resolutions.
		return IdentityResolution{}, e.fault(ErrStoreUnavailable, "resolve identity", err)
	case err != nil:
		return IdentityResolution{}, e.storeFault("resolve identity", err)
	}

	e.metricInc(MetricIdentityResolved)
	if res.Created {
		e.metricInc(MetricIdentityCreated)
	}
	if res.Linked {
		e.metricInc(MetricIdentityLinked)
	}
	e.emitAudit(ctx, auditEntry{
		eventType: auditEventIdentityResolved,
		success:   true,
		accountID: res.Account.ID,
		provider:  provider,
		metadata: func() map[string]string {
			switch {
			case res.Created:
				return map[string]string{"result": "created"}
			case res.Linked:
				return map[string]string{"result": "linked"}
			default:
				return map[string]string{"result": "existing"}
			}
		},
	})
	return IdentityResolution{
		Outcome: OutcomeOK,
		Account: res.Account,
		Binding: res.Binding,
		Created: res.Created,
		Linked:  res.Linked,
	}, nil
}

// SocialLogin exchanges an authorization code with the named provider,
// resolves the identity and mints tokens.
func (e *Engine) SocialLogin(ctx context.Context, provider, authorizationCode string) (AuthResult, error) {
	name := strings.ToLower(strings.TrimSpace(provider))
	p, ok := e.providers[name]
	if !ok {
		return AuthResult{}, ErrUnknownProvider
	}
	if authorizationCode == "" {
		return AuthResult{}, ErrInvalidRequest
	}

	if ip := clientIPFromContext(ctx); ip != "" && e.config.RateLimit.EnableIPThrottle {
		cfg := e.config.RateLimit
		rl, err := e.throttle(ctx, "social", "social:ip:"+ip, cfg.IPMax, cfg.IPWindow)
		if err != nil {
			return AuthResult{}, err
		}
		if rl.Limited {
			e.metricInc(MetricLoginRateLimited)
			return AuthResult{Outcome: OutcomeRateLimited, RetryAfter: rl.RetryAfter}, nil
		}
	}

	ext, err := p.Exchange(ctx, authorizationCode)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			e.metricInc(MetricLoginFailure)
			e.policy("social login", OutcomeInvalidCredentials, zap.String("provider", name))
			return AuthResult{Outcome: OutcomeInvalidCredentials}, nil
		}
		if errors.Is(err, ErrInfrastructureUnavailable) {
			return AuthResult{}, err
		}
		return AuthResult{}, e.fault(ErrProviderUnavailable, "exchange "+name, err)
	}

	res, err := e.ResolveIdentity(ctx, name, ext)
	if err != nil {
		return AuthResult{}, err
	}
	if res.Outcome != OutcomeOK {
		e.metricInc(MetricLoginFailure)
		return AuthResult{Outcome: res.Outcome}, nil
	}
	if !res.Account.Enabled {
		e.metricInc(MetricLoginFailure)
		e.policy("social login", OutcomeAccountDisabled)
		return AuthResult{Outcome: OutcomeAccountDisabled}, nil
	}

	out, err := e.completeLogin(ctx, res.Account, res.Account.ID)
	if err != nil {
		return AuthResult{}, err
	}
	out.Created = res.Created
	out.Linked = res.Linked
	return out, nil
}

// UnbindSocial removes the account's binding at provider. The account must
// keep a password or another binding.
func (e *Engine) UnbindSocial(ctx context.Context, accountID, provider string) (CredentialMode, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	mode, err := e.resolver.Unbind(ctx, accountID, provider)
	switch {
	case errors.Is(err, identity.ErrLastCredential):
		return 0, ErrLastCredential
	case errors.Is(err, store.ErrNotFound):
		return 0, ErrBindingNotFound
	case err != nil:
		return 0, e.storeFault("unbind", err)
	}

	e.metricInc(MetricSocialUnbind)
	e.emitAudit(ctx, auditEntry{
		eventType: auditEventSocialUnbind,
		success:   true,
		accountID: accountID,
		provider:  provider,
	})
	return mode, nil
}

// UpdateCredentialMode recomputes and persists the account's credential
// mode from its password and bindings.
func (e *Engine) UpdateCredentialMode(ctx context.Context, accountID string) (CredentialMode, error) {
	mode, err := e.resolver.UpdateCredentialMode(ctx, accountID)
	if err != nil {
		return 0, e.storeFault("update credential mode", err)
	}
	return mode, nil
}
