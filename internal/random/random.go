// Package random produces the short numeric strings the core hands out:
// one-time codes and account identifiers. Every digit comes from crypto/rand.
package random

import (
	"crypto/rand"
	"errors"
	"io"
	"math/big"
	"strings"
)

var (
	// ErrInvalidLength is returned for lengths outside the supported range.
	ErrInvalidLength = errors.New("random: invalid length")

	ten  = big.NewInt(10)
	nine = big.NewInt(9)
)

// Reader is the entropy source. Tests may swap it.
var Reader io.Reader = rand.Reader

// NumericCode returns a string of digits decimal characters. Leading zeros
// are allowed.
func NumericCode(digits int) (string, error) {
	if digits < 4 || digits > 10 {
		return "", ErrInvalidLength
	}
	return digitString(digits, false)
}

// AccountNumber returns a length-digit string whose first digit is 1-9.
func AccountNumber(length int) (string, error) {
	if length < 6 || length > 19 {
		return "", ErrInvalidLength
	}
	return digitString(length, true)
}

// Digits returns n random decimal digits with no restriction on the first.
func Digits(n int) (string, error) {
	if n <= 0 {
		return "", ErrInvalidLength
	}
	return digitString(n, false)
}

func digitString(n int, nonZeroLead bool) (string, error) {
	var b strings.Builder
	b.Grow(n)

	for i := 0; i < n; i++ {
		max := ten
		offset := int64(0)
		if i == 0 && nonZeroLead {
			max = nine
			offset = 1
		}
		v, err := rand.Int(Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + v.Int64() + offset))
	}
	return b.String(), nil
}
