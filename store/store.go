package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/role"
)

var (
	// ErrNotFound is returned when a lookup matches no record.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is the parent of every unique-constraint violation.
	ErrDuplicate = errors.New("duplicate record")
	// ErrDuplicateAccountID reports a collision on the account identifier.
	ErrDuplicateAccountID = fmt.Errorf("%w: account id", ErrDuplicate)
	// ErrDuplicateEmail reports a collision on the case-folded email.
	ErrDuplicateEmail = fmt.Errorf("%w: email", ErrDuplicate)
	// ErrDuplicatePhone reports a collision on the normalized phone number.
	ErrDuplicatePhone = fmt.Errorf("%w: phone", ErrDuplicate)
	// ErrDuplicateBinding reports a collision on a social binding key.
	ErrDuplicateBinding = fmt.Errorf("%w: social binding", ErrDuplicate)
)

// CredentialMode summarizes how an account can authenticate. It is derived
// from the account's password and bindings and never set directly.
type CredentialMode uint8

const (
	// CredentialPassword marks an account with a password and no bindings.
	CredentialPassword CredentialMode = 1 << iota
	// CredentialSocial marks an account with bindings and no password.
	CredentialSocial
	// CredentialBoth marks an account with a password and at least one binding.
	CredentialBoth = CredentialPassword | CredentialSocial
)

// DeriveCredentialMode is the only way a mode is computed.
func DeriveCredentialMode(hasPassword bool, bindings int) CredentialMode {
	var mode CredentialMode
	if hasPassword {
		mode |= CredentialPassword
	}
	if bindings > 0 {
		mode |= CredentialSocial
	}
	return mode
}

func (m CredentialMode) String() string {
	switch m {
	case CredentialPassword:
		return "PASSWORD"
	case CredentialSocial:
		return "SOCIAL"
	case CredentialBoth:
		return "BOTH"
	default:
		return "NONE"
	}
}

// ParseCredentialMode decodes the names produced by String.
func ParseCredentialMode(s string) CredentialMode {
	switch s {
	case "PASSWORD":
		return CredentialPassword
	case "SOCIAL":
		return CredentialSocial
	case "BOTH":
		return CredentialBoth
	default:
		return 0
	}
}

// Account is a first-party account record.
type Account struct {
	ID             string
	PasswordHash   string
	Email          string
	Phone          string
	DisplayName    string
	AvatarURL      string
	Role           role.Role
	Enabled        bool
	CredentialMode CredentialMode
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HasPassword reports whether a non-empty password hash is set.
func (a *Account) HasPassword() bool {
	return a != nil && a.PasswordHash != ""
}

// Clone returns an independent copy.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	out := *a
	return &out
}

// SocialBinding links a provider identity to an account.
type SocialBinding struct {
	ID          string
	Provider    string
	ExternalID  string
	UnionID     string
	AccountID   string
	DisplayName string
	AvatarURL   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Clone returns an independent copy.
func (b *SocialBinding) Clone() *SocialBinding {
	if b == nil {
		return nil
	}
	out := *b
	return &out
}

// Store is the relational persistence contract.
//
// Lookups return [ErrNotFound] when nothing matches. Inserts return an
// [ErrDuplicate] variant on unique-constraint violations. Any other error is
// an infrastructure fault.
type Store interface {
	FindAccountByIdentifier(ctx context.Context, accountID string) (*Account, error)
	FindAccountByEmail(ctx context.Context, email string) (*Account, error)
	FindAccountByPhone(ctx context.Context, phone string) (*Account, error)
	AccountExists(ctx context.Context, accountID string) (bool, error)
	InsertAccount(ctx context.Context, account *Account) error
	UpdateAccount(ctx context.Context, account *Account) error

	FindBindingByExternalID(ctx context.Context, provider, externalID string) (*SocialBinding, error)
	FindBindingByUnionID(ctx context.Context, provider, unionID string) (*SocialBinding, error)
	FindBindingForAccount(ctx context.Context, accountID, provider string) (*SocialBinding, error)
	InsertBinding(ctx context.Context, binding *SocialBinding) error
	UpdateBinding(ctx context.Context, binding *SocialBinding) error
	DeleteBinding(ctx context.Context, accountID, provider string) error
	// CountBindings counts the account's bindings, skipping excludingProvider
	// when it is non-empty.
	CountBindings(ctx context.Context, accountID, excludingProvider string) (int, error)

	// InsertAccountWithBinding persists both records or neither.
	InsertAccountWithBinding(ctx context.Context, account *Account, binding *SocialBinding) error
}

// NormalizeEmail case-folds and trims an email for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone strips spaces, dashes, dots and parentheses from phone and
// returns it in "+<digits>" form. It returns "" unless the result is a
// leading plus followed by 7 to 15 digits. The plus keeps phone handles
// apart from numeric account identifiers.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for i, r := range strings.TrimSpace(phone) {
		switch {
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
		default:
			return ""
		}
	}
	out := b.String()
	if !strings.HasPrefix(out, "+") || len(out) < 8 || len(out) > 16 {
		return ""
	}
	return out
}

// IsInfrastructure reports whether err is a store fault rather than an
// expected lookup or constraint outcome.
func IsInfrastructure(err error) bool {
	return err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrDuplicate)
}
