// Package cache is the key-value capability every transient-state component
// receives. It wraps a Redis client and exposes only the operations the core
// needs: get, set with TTL, delete, remaining TTL and an atomic
// increment-with-TTL.
//
// Every Redis error is returned wrapped in [ErrUnavailable]. A missing key is
// never an error.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable indicates the cache could not be reached or returned an
// unexpected reply.
var ErrUnavailable = errors.New("cache unavailable")

// incrementScript increments KEYS[1] and attaches a TTL of ARGV[1]
// milliseconds when the key was just created (or has somehow lost its TTL).
// A running window is never extended.
var incrementScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 or redis.call('PTTL', KEYS[1]) == -1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

// Client is a capability-scoped handle over a Redis client. Components hold a
// *Client rather than touching Redis directly.
type Client struct {
	rdb redis.UniversalClient
}

// New wraps rdb.
func New(rdb redis.UniversalClient) *Client {
	return &Client{rdb: rdb}
}

// Redis exposes the underlying client for components that need scripts.
func (c *Client) Redis() redis.UniversalClient {
	return c.rdb
}

// Ping checks connectivity.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return Unavailable(err)
	}
	return nil
}

// Get returns the value stored at key and whether it existed.
func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, Unavailable(err)
	}
	return v, true, nil
}

// Exists reports whether key is present.
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, Unavailable(err)
	}
	return n > 0, nil
}

// SetWithTTL stores value under key. A non-positive ttl is rejected so no
// entry is ever written without expiry.
func (c *Client) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("cache: refusing to set %q without ttl", key)
	}
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return Unavailable(err)
	}
	return nil
}

// Delete removes keys. Missing keys are ignored.
func (c *Client) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return Unavailable(err)
	}
	return nil
}

// TTLRemaining returns the remaining lifetime of key, or 0 when the key is
// absent or has no expiry.
func (c *Client) TTLRemaining(ctx context.Context, key string) (time.Duration, error) {
	d, err := c.rdb.PTTL(ctx, key).Result()
	if err != nil {
		return 0, Unavailable(err)
	}
	// PTTL reports -2 (missing) and -1 (no expiry) as raw durations.
	if d <= 0 {
		return 0, nil
	}
	return d, nil
}

// IncrementWithTTL atomically increments key, creating it with the given TTL
// when absent, and returns the new count.
func (c *Client) IncrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if ttl <= 0 {
		return 0, fmt.Errorf("cache: refusing to increment %q without ttl", key)
	}
	n, err := incrementScript.Run(ctx, c.rdb, []string{key}, ttl.Milliseconds()).Int64()
	if err != nil {
		return 0, Unavailable(err)
	}
	return n, nil
}

// Counter reads an integer counter, returning 0 for a missing key.
func (c *Client) Counter(ctx context.Context, key string) (int64, error) {
	n, err := c.rdb.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, Unavailable(err)
	}
	return n, nil
}

// Run executes script against the wrapped client.
func (c *Client) Run(ctx context.Context, script *redis.Script, keys []string, args ...any) (any, error) {
	v, err := script.Run(ctx, c.rdb, keys, args...).Result()
	if err != nil {
		return nil, Unavailable(err)
	}
	return v, nil
}

// Unavailable wraps err in ErrUnavailable.
func Unavailable(err error) error {
	if err == nil || errors.Is(err, ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
