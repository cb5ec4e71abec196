package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authcore/internal/cache"
	"github.com/MrEthical07/authcore/internal/normalize"
)

// LockoutConfig holds the lockout policy.
type LockoutConfig struct {
	// MaxFailures is the failure count that triggers a lock.
	MaxFailures int
	// AttemptWindow is the lifetime of the failure counter, measured from the
	// first failure. Near misses are forgotten after it elapses.
	AttemptWindow time.Duration
	// LockDuration is the lifetime of the lock flag.
	LockDuration time.Duration
}

// ErrInvalidLockoutConfig is returned by NewLockoutGuard for unusable policies.
var ErrInvalidLockoutConfig = errors.New("limiters: invalid lockout config")

// recordFailureScript increments the failure counter and, at the threshold,
// sets the lock flag and clears the counter in the same step.
//
// KEYS[1] failure counter, KEYS[2] lock flag.
// ARGV[1] attempt window ms, ARGV[2] lock duration ms, ARGV[3] max failures.
// Returns {count, locked}.
var recordFailureScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 or redis.call('PTTL', KEYS[1]) == -1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
if n >= tonumber(ARGV[3]) then
  redis.call('SET', KEYS[2], '1', 'PX', ARGV[2])
  redis.call('DEL', KEYS[1])
  return {n, 1}
end
return {n, 0}
`)

// FailureResult reports the state after a recorded failure.
type FailureResult struct {
	// Failures is the count including this failure.
	Failures int
	// Locked is true when this failure triggered the lock.
	Locked bool
	// RemainingAttempts is max(0, MaxFailures - Failures).
	RemainingAttempts int
	// LockRemaining is the lock duration when Locked.
	LockRemaining time.Duration
}

// LockoutGuard tracks consecutive failures per identifier and applies a
// timed lock once they reach the threshold. The state per identifier moves
// OPEN -> LOCKED -> OPEN purely through key expiry.
type LockoutGuard struct {
	cache  *cache.Client
	config LockoutConfig
}

// NewLockoutGuard validates cfg and returns a guard over c.
func NewLockoutGuard(c *cache.Client, cfg LockoutConfig) (*LockoutGuard, error) {
	if cfg.MaxFailures <= 0 || cfg.AttemptWindow <= 0 || cfg.LockDuration <= 0 {
		return nil, ErrInvalidLockoutConfig
	}
	return &LockoutGuard{cache: c, config: cfg}, nil
}

// Config returns the policy in force.
func (g *LockoutGuard) Config() LockoutConfig {
	return g.config
}

func failureKey(id string) string { return "alo:" + normalize.Identifier(id) }
func lockKey(id string) string    { return "alk:" + normalize.Identifier(id) }

// RecordFailure counts one failed attempt for id.
func (g *LockoutGuard) RecordFailure(ctx context.Context, id string) (FailureResult, error) {
	raw, err := g.cache.Run(ctx, recordFailureScript,
		[]string{failureKey(id), lockKey(id)},
		g.config.AttemptWindow.Milliseconds(),
		g.config.LockDuration.Milliseconds(),
		g.config.MaxFailures,
	)
	if err != nil {
		return FailureResult{}, err
	}

	vals, ok := raw.([]any)
	if !ok || len(vals) != 2 {
		return FailureResult{}, cache.Unavailable(fmt.Errorf("unexpected lockout reply %T", raw))
	}
	n, _ := vals[0].(int64)
	locked, _ := vals[1].(int64)

	res := FailureResult{
		Failures:          int(n),
		Locked:            locked == 1,
		RemainingAttempts: max(0, g.config.MaxFailures-int(n)),
	}
	if res.Locked {
		res.LockRemaining = g.config.LockDuration
	}
	return res, nil
}

// RecordSuccess clears the failure counter and the lock for id. It is
// idempotent.
func (g *LockoutGuard) RecordSuccess(ctx context.Context, id string) error {
	return g.cache.Delete(ctx, failureKey(id), lockKey(id))
}

// IsLocked reports whether the lock flag for id is present.
func (g *LockoutGuard) IsLocked(ctx context.Context, id string) (bool, error) {
	return g.cache.Exists(ctx, lockKey(id))
}

// FailureCount returns the failures recorded in the current attempt window.
func (g *LockoutGuard) FailureCount(ctx context.Context, id string) (int, error) {
	n, err := g.cache.Counter(ctx, failureKey(id))
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, nil
	}
	return int(n), nil
}

// RemainingAttempts returns max(0, MaxFailures - current failures).
func (g *LockoutGuard) RemainingAttempts(ctx context.Context, id string) (int, error) {
	n, err := g.FailureCount(ctx, id)
	if err != nil {
		return 0, err
	}
	return max(0, g.config.MaxFailures-n), nil
}

// RemainingLock returns the lock flag's remaining TTL, 0 when unlocked.
func (g *LockoutGuard) RemainingLock(ctx context.Context, id string) (time.Duration, error) {
	return g.cache.TTLRemaining(ctx, lockKey(id))
}

// RemainingLockSeconds is RemainingLock rounded up to whole seconds.
func (g *LockoutGuard) RemainingLockSeconds(ctx context.Context, id string) (int64, error) {
	d, err := g.RemainingLock(ctx, id)
	if err != nil {
		return 0, err
	}
	return ceilSeconds(d), nil
}

func ceilSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64((d + time.Second - 1) / time.Second)
}
