package identity

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/MrEthical07/authcore/internal/random"
	"github.com/MrEthical07/authcore/store"
)

// ErrIdentifierSpaceExhausted is returned when neither the random attempts
// nor the timestamp fallback produced an unused identifier.
var ErrIdentifierSpaceExhausted = errors.New("identity: no free account identifier")

// Generator produces fixed-length numeric account identifiers that were
// unused at the time of the check. The store's uniqueness constraint remains
// the final arbiter; callers must treat a duplicate on insert as a reason to
// ask for another identifier.
type Generator struct {
	store    store.Store
	length   int
	attempts int
	now      func() time.Time
}

// NewGenerator returns a Generator. length is the digit count and attempts
// bounds the random candidates tried before the timestamp fallback.
func NewGenerator(s store.Store, length, attempts int, now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	if attempts <= 0 {
		attempts = 1
	}
	return &Generator{store: s, length: length, attempts: attempts, now: now}
}

// Next returns an identifier that AccountExists reported as free.
func (g *Generator) Next(ctx context.Context) (string, error) {
	for i := 0; i < g.attempts; i++ {
		candidate, err := random.AccountNumber(g.length)
		if err != nil {
			return "", err
		}
		free, err := g.free(ctx, candidate)
		if err != nil {
			return "", err
		}
		if free {
			return candidate, nil
		}
	}
	return g.fallback(ctx)
}

func (g *Generator) free(ctx context.Context, candidate string) (bool, error) {
	exists, err := g.store.AccountExists(ctx, candidate)
	if err != nil {
		return false, err
	}
	return !exists, nil
}

// fallback derives a candidate from the clock, then swaps in a random suffix
// if that collides too. Both candidates are re-checked.
func (g *Generator) fallback(ctx context.Context) (string, error) {
	candidate := g.timestampCandidate()
	free, err := g.free(ctx, candidate)
	if err != nil {
		return "", err
	}
	if free {
		return candidate, nil
	}

	suffixLen := min(4, g.length-1)
	suffix, err := random.Digits(suffixLen)
	if err != nil {
		return "", err
	}
	candidate = candidate[:g.length-suffixLen] + suffix
	free, err = g.free(ctx, candidate)
	if err != nil {
		return "", err
	}
	if free {
		return candidate, nil
	}
	return "", ErrIdentifierSpaceExhausted
}

func (g *Generator) timestampCandidate() string {
	digits := strconv.FormatInt(g.now().UnixNano(), 10)
	if len(digits) > g.length {
		digits = digits[len(digits)-g.length:]
	}
	for len(digits) < g.length {
		digits = "1" + digits
	}
	if digits[0] == '0' {
		digits = "1" + digits[1:]
	}
	return digits
}
