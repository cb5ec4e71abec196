// Package role defines the closed set of account roles carried in session
// tokens. Token lifetime is selected from this enum, never from free-form
// strings.
package role

import (
	"errors"
	"fmt"
	"strings"
)

// Role is an account's privilege tier.
type Role uint8

const (
	// Standard is the default role for self-registered and social accounts.
	Standard Role = iota + 1
	// Admin is the elevated role. Tokens minted for it use the short lifetime.
	Admin
)

// ErrUnknownRole is returned when decoding a role name outside the enum.
var ErrUnknownRole = errors.New("unknown role")

// Parse maps a role name to its enum value.
func Parse(name string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "standard", "user":
		return Standard, nil
	case "admin", "administrator":
		return Admin, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownRole, name)
	}
}

// Valid reports whether r is a member of the enum.
func (r Role) Valid() bool {
	return r == Standard || r == Admin
}

func (r Role) String() string {
	switch r {
	case Standard:
		return "standard"
	case Admin:
		return "admin"
	default:
		return "unknown"
	}
}

// MarshalText encodes the role by name so tokens and database rows stay
// readable.
func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownRole, uint8(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText rejects any name outside the enum.
func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
