package rate

import (
	"context"
	"time"

	"github.com/MrEthical07/authcore/internal/cache"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	// Limited is true when this call exceeded the budget.
	Limited bool
	// Count is the number of calls seen in the current window, this one included.
	Count int64
	// Remaining is how many more calls the window admits.
	Remaining int64
	// RetryAfter is the time until the window resets. Zero when not limited.
	RetryAfter time.Duration
}

// Limiter enforces per-key request budgets.
type Limiter struct {
	cache  *cache.Client
	prefix string
}

// New creates a [Limiter] whose keys live under prefix.
func New(c *cache.Client, prefix string) *Limiter {
	return &Limiter{cache: c, prefix: prefix}
}

// Allow counts one call against key. The (max+1)-th call within window
// returns Limited. Cache failures are returned as errors and never as a
// Decision.
func (l *Limiter) Allow(ctx context.Context, key string, max int, window time.Duration) (Decision, error) {
	if max <= 0 || window <= 0 {
		return Decision{}, ErrInvalidPolicy
	}

	k := l.prefix + key
	count, err := l.cache.IncrementWithTTL(ctx, k, window)
	if err != nil {
		return Decision{}, err
	}

	d := Decision{Count: count}
	if count <= int64(max) {
		d.Remaining = int64(max) - count
		return d, nil
	}

	d.Limited = true
	ttl, err := l.cache.TTLRemaining(ctx, k)
	if err != nil {
		return Decision{}, err
	}
	d.RetryAfter = ttl
	return d, nil
}

// Reset clears the window for key.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	return l.cache.Delete(ctx, l.prefix+key)
}
