package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/MrEthical07/authcore/role"
	"github.com/MrEthical07/authcore/store"
)

var (
	// ErrInvalidProfile is returned when provider or external id is missing.
	ErrInvalidProfile = errors.New("identity: provider and external id are required")
	// ErrIdentityConflict is returned when the email-matched account is
	// already bound to a different identity at the same provider.
	ErrIdentityConflict = errors.New("identity: account already bound to another identity at this provider")
	// ErrLastCredential is returned when unbinding would leave the account
	// with no way to sign in.
	ErrLastCredential = errors.New("identity: cannot remove the last credential")
	// ErrOrphanBinding is returned when a binding points at a missing account.
	ErrOrphanBinding = errors.New("identity: binding references a missing account")
)

// maxResolveRounds bounds how often Resolve restarts after losing a
// uniqueness race to a concurrent resolution of the same identity.
const maxResolveRounds = 3

// Profile is what an identity provider vouches for.
type Profile struct {
	Provider    string
	ExternalID  string
	UnionID     string
	Email       string
	DisplayName string
	AvatarURL   string
}

// Resolution is the outcome of Resolve.
type Resolution struct {
	Account *store.Account
	Binding *store.SocialBinding
	// Created is true when a new account was made.
	Created bool
	// Linked is true when an existing account gained this binding.
	Linked bool
}

// Config tunes account creation.
type Config struct {
	DefaultRole role.Role
	// CreateAttempts bounds retries after an identifier collision on insert.
	CreateAttempts int
}

// Resolver maps external identities onto accounts.
type Resolver struct {
	store     store.Store
	generator *Generator
	logger    *zap.Logger
	config    Config
}

// NewResolver wires a Resolver.
func NewResolver(s store.Store, gen *Generator, logger *zap.Logger, cfg Config) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CreateAttempts <= 0 {
		cfg.CreateAttempts = 5
	}
	if !cfg.DefaultRole.Valid() {
		cfg.DefaultRole = role.Standard
	}
	return &Resolver{store: s, generator: gen, logger: logger.Named("identity"), config: cfg}
}

// Resolve returns the account for p, linking or creating as needed:
//  1. an existing binding (by union id, then external id) wins;
//  2. otherwise an account with the same email gains a binding;
//  3. otherwise a new account and binding are created together.
func (r *Resolver) Resolve(ctx context.Context, p Profile) (*Resolution, error) {
	p.Provider = strings.TrimSpace(p.Provider)
	p.ExternalID = strings.TrimSpace(p.ExternalID)
	p.UnionID = strings.TrimSpace(p.UnionID)
	p.Email = store.NormalizeEmail(p.Email)
	if p.Provider == "" || p.ExternalID == "" {
		return nil, ErrInvalidProfile
	}

	var lastErr error
	for round := 0; round < maxResolveRounds; round++ {
		res, err := r.resolveOnce(ctx, p)
		if err == nil {
			return res, nil
		}
		// A concurrent resolution inserted the same binding or email first.
		// Starting over finds its result through step 1 or 2.
		if errors.Is(err, store.ErrDuplicateBinding) || errors.Is(err, store.ErrDuplicateEmail) {
			lastErr = err
			continue
		}
		return nil, err
	}
	return nil, lastErr
}

func (r *Resolver) resolveOnce(ctx context.Context, p Profile) (*Resolution, error) {
	binding, err := r.findBinding(ctx, p)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if binding != nil {
		account, err := r.store.FindAccountByIdentifier(ctx, binding.AccountID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("%w: %s", ErrOrphanBinding, binding.AccountID)
			}
			return nil, err
		}
		r.refreshBinding(ctx, binding, p)
		return &Resolution{Account: account, Binding: binding}, nil
	}

	if p.Email != "" {
		account, err := r.store.FindAccountByEmail(ctx, p.Email)
		switch {
		case err == nil:
			return r.link(ctx, account, p)
		case !errors.Is(err, store.ErrNotFound):
			return nil, err
		}
	}

	return r.create(ctx, p)
}

func (r *Resolver) findBinding(ctx context.Context, p Profile) (*store.SocialBinding, error) {
	if p.UnionID != "" {
		b, err := r.store.FindBindingByUnionID(ctx, p.Provider, p.UnionID)
		if err == nil || !errors.Is(err, store.ErrNotFound) {
			return b, err
		}
		// Bindings made before the provider issued union ids only carry the
		// external id.
	}
	return r.store.FindBindingByExternalID(ctx, p.Provider, p.ExternalID)
}

// refreshBinding copies changed provider attributes onto the binding. A
// failure here does not fail the login.
func (r *Resolver) refreshBinding(ctx context.Context, b *store.SocialBinding, p Profile) {
	changed := false
	if p.UnionID != "" && b.UnionID != p.UnionID {
		b.UnionID = p.UnionID
		changed = true
	}
	// The union id is authoritative; the per-app id may rotate under it.
	if b.ExternalID != p.ExternalID {
		b.ExternalID = p.ExternalID
		changed = true
	}
	if p.DisplayName != "" && b.DisplayName != p.DisplayName {
		b.DisplayName = p.DisplayName
		changed = true
	}
	if p.AvatarURL != "" && b.AvatarURL != p.AvatarURL {
		b.AvatarURL = p.AvatarURL
		changed = true
	}
	if !changed {
		return
	}
	if err := r.store.UpdateBinding(ctx, b); err != nil {
		r.logger.Warn("binding refresh failed",
			zap.String("provider", b.Provider),
			zap.String("account_id", b.AccountID),
			zap.Error(err))
	}
}

func (r *Resolver) link(ctx context.Context, account *store.Account, p Profile) (*Resolution, error) {
	existing, err := r.store.FindBindingForAccount(ctx, account.ID, p.Provider)
	if err == nil && existing.ExternalID != p.ExternalID {
		return nil, ErrIdentityConflict
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	binding := &store.SocialBinding{
		Provider:    p.Provider,
		ExternalID:  p.ExternalID,
		UnionID:     p.UnionID,
		AccountID:   account.ID,
		DisplayName: p.DisplayName,
		AvatarURL:   p.AvatarURL,
	}
	if err := r.store.InsertBinding(ctx, binding); err != nil {
		return nil, err
	}
	if _, err := r.updateCredentialMode(ctx, account); err != nil {
		return nil, err
	}
	return &Resolution{Account: account, Binding: binding, Linked: true}, nil
}

func (r *Resolver) create(ctx context.Context, p Profile) (*Resolution, error) {
	account := &store.Account{
		Email:          p.Email,
		DisplayName:    p.DisplayName,
		AvatarURL:      p.AvatarURL,
		Role:           r.config.DefaultRole,
		Enabled:        true,
		CredentialMode: store.DeriveCredentialMode(false, 1),
	}
	binding := &store.SocialBinding{
		Provider:    p.Provider,
		ExternalID:  p.ExternalID,
		UnionID:     p.UnionID,
		DisplayName: p.DisplayName,
		AvatarURL:   p.AvatarURL,
	}

	err := r.CreateWithFreshID(ctx, account, func(ctx context.Context) error {
		binding.ID = ""
		return r.store.InsertAccountWithBinding(ctx, account, binding)
	})
	if err != nil {
		return nil, err
	}
	r.logger.Debug("account created from social identity",
		zap.String("provider", p.Provider),
		zap.String("account_id", account.ID))
	return &Resolution{Account: account, Binding: binding, Created: true}, nil
}

// CreateWithFreshID assigns account a generated identifier and runs insert,
// drawing a new identifier whenever insert reports an identifier collision.
// Other errors, including other duplicates, end the loop.
func (r *Resolver) CreateWithFreshID(ctx context.Context, account *store.Account, insert func(context.Context) error) error {
	backoff := retry.WithMaxRetries(uint64(r.config.CreateAttempts-1), retry.NewConstant(time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		id, err := r.generator.Next(ctx)
		if err != nil {
			return err
		}
		account.ID = id
		if err := insert(ctx); err != nil {
			if errors.Is(err, store.ErrDuplicateAccountID) {
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
}

// UpdateCredentialMode recomputes the account's credential mode from its
// password and bindings and persists it when it changed.
func (r *Resolver) UpdateCredentialMode(ctx context.Context, accountID string) (store.CredentialMode, error) {
	account, err := r.store.FindAccountByIdentifier(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return r.updateCredentialMode(ctx, account)
}

func (r *Resolver) updateCredentialMode(ctx context.Context, account *store.Account) (store.CredentialMode, error) {
	n, err := r.store.CountBindings(ctx, account.ID, "")
	if err != nil {
		return 0, err
	}
	mode := store.DeriveCredentialMode(account.HasPassword(), n)
	if mode == account.CredentialMode {
		return mode, nil
	}
	account.CredentialMode = mode
	if err := r.store.UpdateAccount(ctx, account); err != nil {
		return 0, err
	}
	return mode, nil
}

// Unbind removes the account's binding at provider if the account keeps a
// password or another binding.
func (r *Resolver) Unbind(ctx context.Context, accountID, provider string) (store.CredentialMode, error) {
	account, err := r.store.FindAccountByIdentifier(ctx, accountID)
	if err != nil {
		return 0, err
	}
	if _, err := r.store.FindBindingForAccount(ctx, accountID, provider); err != nil {
		return 0, err
	}
	others, err := r.store.CountBindings(ctx, accountID, provider)
	if err != nil {
		return 0, err
	}
	if !account.HasPassword() && others == 0 {
		return 0, ErrLastCredential
	}
	if err := r.store.DeleteBinding(ctx, accountID, provider); err != nil {
		return 0, err
	}
	return r.updateCredentialMode(ctx, account)
}
