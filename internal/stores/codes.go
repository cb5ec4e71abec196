package stores

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authcore/internal/cache"
	"github.com/MrEthical07/authcore/internal/normalize"
)

// CodeStatus is the outcome of a verification attempt.
type CodeStatus uint8

const (
	// CodeOK means the submitted code matched and has been consumed.
	CodeOK CodeStatus = iota + 1
	// CodeMismatch means the code was wrong and attempts remain.
	CodeMismatch
	// CodeExpired means no code is outstanding for the identifier.
	CodeExpired
	// CodeExhausted means the attempt budget ran out and the code was destroyed.
	CodeExhausted
)

func (s CodeStatus) String() string {
	switch s {
	case CodeOK:
		return "ok"
	case CodeMismatch:
		return "mismatch"
	case CodeExpired:
		return "expired"
	case CodeExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// CodeResult is returned by Verify.
type CodeResult struct {
	Status CodeStatus
	// Remaining is the number of further wrong submissions the code survives.
	// Only meaningful for CodeMismatch.
	Remaining int
}

// CodeConfig tunes the attempt policy.
type CodeConfig struct {
	MaxAttempts int
	// AttemptTTL is the lifetime of the attempt counter from its first
	// increment. It is independent of the code lifetime.
	AttemptTTL time.Duration
}

// ErrInvalidCodeConfig is returned for unusable attempt policies.
var ErrInvalidCodeConfig = errors.New("stores: invalid code config")

// verifyCodeLua checks a submitted code hash against the stored one.
//
// KEYS[1] code key, KEYS[2] attempts key
// ARGV[1] submitted hash, ARGV[2] max attempts, ARGV[3] attempts ttl ms
// Returns {status, remaining} using the CodeStatus numbering.
var verifyCodeLua = redis.NewScript(`
local stored = redis.call('GET', KEYS[1])
if not stored then
  return {3, 0}
end
if stored == ARGV[1] then
  redis.call('DEL', KEYS[1], KEYS[2])
  return {1, 0}
end
local n = redis.call('INCR', KEYS[2])
if n == 1 or redis.call('PTTL', KEYS[2]) == -1 then
  redis.call('PEXPIRE', KEYS[2], ARGV[3])
end
local max = tonumber(ARGV[2])
if n >= max then
  redis.call('DEL', KEYS[1], KEYS[2])
  return {4, 0}
end
return {2, max - n}
`)

// CodeStore keeps one outstanding code per (purpose, identifier). Codes are
// stored as SHA-256 digests and never in plaintext.
type CodeStore struct {
	cache  *cache.Client
	config CodeConfig
}

// NewCodeStore returns a store over c.
func NewCodeStore(c *cache.Client, cfg CodeConfig) (*CodeStore, error) {
	if cfg.MaxAttempts <= 0 || cfg.AttemptTTL <= 0 {
		return nil, ErrInvalidCodeConfig
	}
	return &CodeStore{cache: c, config: cfg}, nil
}

func codeKey(purpose, id string) string {
	return "otp:" + purpose + ":" + normalize.Identifier(id)
}

func attemptsKey(purpose, id string) string {
	return "otpa:" + purpose + ":" + normalize.Identifier(id)
}

func hashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// Save stores code for (purpose, id) with the given lifetime, replacing any
// outstanding code and resetting its attempt counter.
func (s *CodeStore) Save(ctx context.Context, purpose, id, code string, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("stores: code ttl must be positive")
	}
	_, err := s.cache.Redis().TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, codeKey(purpose, id), hashCode(code), ttl)
		pipe.Del(ctx, attemptsKey(purpose, id))
		return nil
	})
	if err != nil {
		return cache.Unavailable(err)
	}
	return nil
}

// Verify checks submitted against the outstanding code. A match consumes the
// code. A miss increments the attempt counter and destroys the code once the
// counter reaches MaxAttempts.
func (s *CodeStore) Verify(ctx context.Context, purpose, id, submitted string) (CodeResult, error) {
	raw, err := s.cache.Run(ctx, verifyCodeLua,
		[]string{codeKey(purpose, id), attemptsKey(purpose, id)},
		hashCode(submitted),
		s.config.MaxAttempts,
		s.config.AttemptTTL.Milliseconds(),
	)
	if err != nil {
		return CodeResult{}, err
	}

	vals, ok := raw.([]any)
	if !ok || len(vals) != 2 {
		return CodeResult{}, cache.Unavailable(fmt.Errorf("unexpected verify reply %T", raw))
	}
	status, _ := vals[0].(int64)
	remaining, _ := vals[1].(int64)
	return CodeResult{Status: CodeStatus(status), Remaining: int(remaining)}, nil
}

// Outstanding reports whether a code is pending and how long it has left.
func (s *CodeStore) Outstanding(ctx context.Context, purpose, id string) (time.Duration, bool, error) {
	ttl, err := s.cache.TTLRemaining(ctx, codeKey(purpose, id))
	if err != nil {
		return 0, false, err
	}
	return ttl, ttl > 0, nil
}

// Discard removes any outstanding code and its attempt counter.
func (s *CodeStore) Discard(ctx context.Context, purpose, id string) error {
	return s.cache.Delete(ctx, codeKey(purpose, id), attemptsKey(purpose, id))
}
