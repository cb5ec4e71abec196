package authcore

import (
	"errors"
	"fmt"
)

// ErrInfrastructureUnavailable is the parent of every infrastructure fault.
// Callers that only need to tell "retry later" apart from a policy outcome
// can test for it alone.
var ErrInfrastructureUnavailable = errors.New("infrastructure unavailable")

var (
	// ErrCacheUnavailable reports a cache fault.
	ErrCacheUnavailable = fmt.Errorf("%w: cache", ErrInfrastructureUnavailable)
	// ErrStoreUnavailable reports a relational store fault.
	ErrStoreUnavailable = fmt.Errorf("%w: store", ErrInfrastructureUnavailable)
	// ErrProviderUnavailable reports an identity provider fault.
	ErrProviderUnavailable = fmt.Errorf("%w: identity provider", ErrInfrastructureUnavailable)
	// ErrNotifierUnavailable reports a notification delivery fault.
	ErrNotifierUnavailable = fmt.Errorf("%w: notifier", ErrInfrastructureUnavailable)
)

// Policy outcomes. These are expected results and are never logged as errors.
var (
	ErrRateLimited        = errors.New("rate limited")
	ErrAccountLocked      = errors.New("account locked")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrCodeExpired        = errors.New("code expired")
	ErrCodeMismatch       = errors.New("code mismatch")
	ErrCodeExhausted      = errors.New("code attempts exhausted")
	ErrTokenInvalid       = errors.New("token invalid")
	ErrTokenRevoked       = errors.New("token revoked")
	ErrIdentityConflict   = errors.New("identity already bound to another account")
	ErrAccountDisabled    = errors.New("account disabled")
	ErrAccountExists      = errors.New("account already exists")
	ErrLastCredential     = errors.New("cannot remove the last credential")
	ErrUnknownProvider    = errors.New("unknown identity provider")
	ErrBindingNotFound    = errors.New("social binding not found")
)

// Input and wiring errors.
var (
	ErrInvalidRequest   = errors.New("invalid request")
	ErrPasswordPolicy   = errors.New("password policy violation")
	ErrEngineNotReady   = errors.New("engine not initialized")
	ErrNotifierRequired = errors.New("notifier required for code delivery")
)

// ErrIdentifierSpaceExhausted is returned when account identifier generation
// could not find a free value. It is an infrastructure-level fault.
var ErrIdentifierSpaceExhausted = fmt.Errorf("%w: account identifier space exhausted", ErrInfrastructureUnavailable)

// Outcome is the discriminant of every result value the engine returns.
type Outcome uint8

const (
	OutcomeOK Outcome = iota
	OutcomeRateLimited
	OutcomeLocked
	OutcomeInvalidCredentials
	OutcomeCodeExpired
	OutcomeCodeMismatch
	OutcomeCodeExhausted
	OutcomeTokenInvalid
	OutcomeTokenRevoked
	OutcomeIdentityConflict
	OutcomeAccountDisabled
)

var outcomeNames = [...]string{
	OutcomeOK:                 "ok",
	OutcomeRateLimited:        "rate_limited",
	OutcomeLocked:             "locked",
	OutcomeInvalidCredentials: "invalid_credentials",
	OutcomeCodeExpired:        "code_expired",
	OutcomeCodeMismatch:       "code_mismatch",
	OutcomeCodeExhausted:      "code_exhausted",
	OutcomeTokenInvalid:       "token_invalid",
	OutcomeTokenRevoked:       "token_revoked",
	OutcomeIdentityConflict:   "identity_conflict",
	OutcomeAccountDisabled:    "account_disabled",
}

func (o Outcome) String() string {
	if int(o) < len(outcomeNames) {
		return outcomeNames[o]
	}
	return "unknown"
}

// Err returns the sentinel error for o, or nil for OutcomeOK.
func (o Outcome) Err() error {
	switch o {
	case OutcomeOK:
		return nil
	case OutcomeRateLimited:
		return ErrRateLimited
	case OutcomeLocked:
		return ErrAccountLocked
	case OutcomeInvalidCredentials:
		return ErrInvalidCredentials
	case OutcomeCodeExpired:
		return ErrCodeExpired
	case OutcomeCodeMismatch:
		return ErrCodeMismatch
	case OutcomeCodeExhausted:
		return ErrCodeExhausted
	case OutcomeTokenInvalid:
		return ErrTokenInvalid
	case OutcomeTokenRevoked:
		return ErrTokenRevoked
	case OutcomeIdentityConflict:
		return ErrIdentityConflict
	case OutcomeAccountDisabled:
		return ErrAccountDisabled
	default:
		return ErrInvalidRequest
	}
}

// OutcomeOf maps a policy error back to its Outcome. The second result is
// false for nil, infrastructure and input errors.
func OutcomeOf(err error) (Outcome, bool) {
	switch {
	case errors.Is(err, ErrRateLimited):
		return OutcomeRateLimited, true
	case errors.Is(err, ErrAccountLocked):
		return OutcomeLocked, true
	case errors.Is(err, ErrInvalidCredentials):
		return OutcomeInvalidCredentials, true
	case errors.Is(err, ErrCodeExpired):
		return OutcomeCodeExpired, true
	case errors.Is(err, ErrCodeMismatch):
		return OutcomeCodeMismatch, true
	case errors.Is(err, ErrCodeExhausted):
		return OutcomeCodeExhausted, true
	case errors.Is(err, ErrTokenInvalid):
		return OutcomeTokenInvalid, true
	case errors.Is(err, ErrTokenRevoked):
		return OutcomeTokenRevoked, true
	case errors.Is(err, ErrIdentityConflict):
		return OutcomeIdentityConflict, true
	case errors.Is(err, ErrAccountDisabled):
		return OutcomeAccountDisabled, true
	default:
		return OutcomeOK, false
	}
}

const (
	msgInvalidCredentials = "invalid credentials"
	msgTooManyAttempts    = "too many attempts, try again later"
	msgInvalidCode        = "invalid or expired code"
	msgSessionExpired     = "session expired, sign in again"
	msgRetryLater         = "service temporarily unavailable, retry later"
	msgBadRequest         = "request could not be processed"
)

// PublicMessage returns a stable user-facing message for err. Messages never
// reveal whether an identifier exists: unknown accounts, wrong passwords and
// disabled accounts all read as invalid credentials.
func PublicMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInfrastructureUnavailable):
		return msgRetryLater
	case errors.Is(err, ErrRateLimited), errors.Is(err, ErrAccountLocked), errors.Is(err, ErrCodeExhausted):
		return msgTooManyAttempts
	case errors.Is(err, ErrCodeExpired), errors.Is(err, ErrCodeMismatch):
		return msgInvalidCode
	case errors.Is(err, ErrTokenInvalid), errors.Is(err, ErrTokenRevoked):
		return msgSessionExpired
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrAccountDisabled):
		return msgInvalidCredentials
	case errors.Is(err, ErrIdentityConflict):
		return "this sign-in method is linked to another account"
	case errors.Is(err, ErrAccountExists):
		return "an account with these details already exists"
	case errors.Is(err, ErrLastCredential):
		return "add another sign-in method before removing this one"
	case errors.Is(err, ErrPasswordPolicy):
		return "password does not meet requirements"
	default:
		return msgBadRequest
	}
}
