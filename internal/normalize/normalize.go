// Package normalize canonicalizes login identifiers before they are used as
// cache or store keys, so issuance and verification always derive the same key.
package normalize

import (
	"strings"

	"github.com/MrEthical07/authcore/store"
)

// Identifier trims surrounding whitespace and case-folds s. Account ids,
// emails and phone numbers all pass through here. A handle starting with
// "+" is a phone and loses its separators.
func Identifier(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "+") {
		if phone := store.NormalizePhone(s); phone != "" {
			return phone
		}
	}
	return strings.ToLower(s)
}
