package authcore

import (
	"context"
	"io"
	"time"

	"go.uber.org/zap"

	internalaudit "github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/role"
	"github.com/MrEthical07/authcore/store"
)

// Account is the first-party account record.
type Account = store.Account

// SocialBinding links a provider identity to an account.
type SocialBinding = store.SocialBinding

// Store is the relational persistence collaborator.
//
//	Implementations: store/memory, store/postgres
type Store = store.Store

// CredentialMode summarizes how an account can sign in.
type CredentialMode = store.CredentialMode

const (
	CredentialPassword = store.CredentialPassword
	CredentialSocial   = store.CredentialSocial
	CredentialBoth     = store.CredentialBoth
)

// Role is the closed set of account roles.
type Role = role.Role

const (
	RoleStandard = role.Standard
	RoleAdmin    = role.Admin
)

// CodePurpose scopes a one-time code. A code issued for one purpose never
// verifies for another.
type CodePurpose string

const (
	PurposeLogin         CodePurpose = "login"
	PurposePasswordReset CodePurpose = "reset"
	PurposeVerification  CodePurpose = "verify"
)

// Valid reports whether p is a known purpose.
func (p CodePurpose) Valid() bool {
	switch p {
	case PurposeLogin, PurposePasswordReset, PurposeVerification:
		return true
	default:
		return false
	}
}

// Notifier delivers one-time codes. Implementations must not log the code.
//
//	Implementations: notify.LogNotifier, notify.Func
type Notifier interface {
	SendCode(ctx context.Context, destination, code string, purpose CodePurpose) error
}

// ExternalIdentity is what an identity provider vouches for after a
// successful authorization-code exchange.
type ExternalIdentity struct {
	ExternalID  string
	UnionID     string
	Email       string
	DisplayName string
	AvatarURL   string
}

// IdentityProvider exchanges an authorization code for an identity.
//
//	Implementations: oauth.Provider
type IdentityProvider interface {
	Name() string
	Exchange(ctx context.Context, code string) (ExternalIdentity, error)
}

// RateLimitResult is returned by [Engine.CheckRateLimit].
type RateLimitResult struct {
	Outcome    Outcome
	Limited    bool
	Remaining  int64
	RetryAfter time.Duration
}

// LockoutStatus reports the lockout state of one identifier.
type LockoutStatus struct {
	Outcome           Outcome
	Locked            bool
	Failures          int
	RemainingAttempts int
	// LockRemaining is zero when not locked.
	LockRemaining time.Duration
}

// RemainingLockSeconds rounds LockRemaining up to whole seconds.
func (s LockoutStatus) RemainingLockSeconds() int64 {
	if s.LockRemaining <= 0 {
		return 0
	}
	return int64((s.LockRemaining + time.Second - 1) / time.Second)
}

// CodeVerification is the outcome of [Engine.VerifyCode]. Remaining is
// meaningful only for OutcomeCodeMismatch.
type CodeVerification struct {
	Outcome   Outcome
	Remaining int
}

// TokenPair is a freshly minted access and refresh token.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// AuthResult is returned by every sign-in flow. Tokens and Account are set
// only for OutcomeOK.
type AuthResult struct {
	Outcome Outcome
	Account *Account
	Tokens  TokenPair
	// RetryAfter is set for OutcomeRateLimited and OutcomeLocked.
	RetryAfter time.Duration
	// Created and Linked describe a social sign-in.
	Created bool
	Linked  bool
}

// RefreshResult is returned by [Engine.Refresh].
type RefreshResult struct {
	Outcome     Outcome
	AccessToken string
	ExpiresAt   time.Time
	AccountID   string
}

// TokenCheck is returned by [Engine.Authenticate].
type TokenCheck struct {
	Outcome   Outcome
	AccountID string
	Subject   string
	Role      Role
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// IdentityResolution is returned by [Engine.ResolveIdentity].
type IdentityResolution struct {
	Outcome Outcome
	Account *Account
	Binding *SocialBinding
	Created bool
	Linked  bool
}

// RegisterRequest describes a password account to create. At least one of
// Email or Phone is required.
type RegisterRequest struct {
	Email       string
	Phone       string
	Password    string
	DisplayName string
	AvatarURL   string
	Role        Role
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON document per event.
type JSONWriterSink = internalaudit.JSONWriterSink

// ZapSink logs events through a zap logger.
type ZapSink = internalaudit.ZapSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// MultiSink forwards each event to several sinks.
type MultiSink = internalaudit.MultiSink

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewZapSink creates a [ZapSink].
func NewZapSink(logger *zap.Logger) *ZapSink {
	return internalaudit.NewZapSink(logger)
}
