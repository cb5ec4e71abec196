package stores

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/MrEthical07/authcore/internal/cache"
)

// RevocationRegistry is the logout denylist plus the per-account
// invalidation stamp. Both kinds of entry expire on their own.
type RevocationRegistry struct {
	cache *cache.Client
	now   func() time.Time
}

// NewRevocationRegistry returns a registry over c. now defaults to time.Now.
func NewRevocationRegistry(c *cache.Client, now func() time.Time) *RevocationRegistry {
	if now == nil {
		now = time.Now
	}
	return &RevocationRegistry{cache: c, now: now}
}

// Tokens are keyed by digest so the cache never holds a usable bearer value.
func revokedKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "rvk:" + hex.EncodeToString(sum[:])
}

func stampKey(accountID string) string {
	return "inv:" + accountID
}

// Revoke denylists token until expiresAt. It reports false without touching
// the cache when the token has already expired.
func (r *RevocationRegistry) Revoke(ctx context.Context, token string, expiresAt time.Time) (bool, error) {
	remaining := expiresAt.Sub(r.now())
	if remaining <= 0 {
		return false, nil
	}
	if err := r.cache.SetWithTTL(ctx, revokedKey(token), "1", remaining); err != nil {
		return false, err
	}
	return true, nil
}

// IsRevoked reports whether token is on the denylist.
func (r *RevocationRegistry) IsRevoked(ctx context.Context, token string) (bool, error) {
	return r.cache.Exists(ctx, revokedKey(token))
}

// RevokedTTL returns the remaining lifetime of the denylist entry.
func (r *RevocationRegistry) RevokedTTL(ctx context.Context, token string) (time.Duration, error) {
	return r.cache.TTLRemaining(ctx, revokedKey(token))
}

// InvalidateAccount records that every token issued to accountID up to now
// is void. The stamp holds unix milliseconds and lives for grace.
func (r *RevocationRegistry) InvalidateAccount(ctx context.Context, accountID string, grace time.Duration) (time.Time, error) {
	at := r.now()
	value := strconv.FormatInt(at.UnixMilli(), 10)
	if err := r.cache.SetWithTTL(ctx, stampKey(accountID), value, grace); err != nil {
		return time.Time{}, err
	}
	return at, nil
}

// IsAccountInvalidated reports whether a stamp is present for accountID.
func (r *RevocationRegistry) IsAccountInvalidated(ctx context.Context, accountID string) (bool, error) {
	_, ok, err := r.InvalidatedAt(ctx, accountID)
	return ok, err
}

// InvalidatedAt returns the time recorded by the newest InvalidateAccount
// call, if its stamp is still live.
func (r *RevocationRegistry) InvalidatedAt(ctx context.Context, accountID string) (time.Time, bool, error) {
	v, ok, err := r.cache.Get(ctx, stampKey(accountID))
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		// An unreadable stamp still means the account was invalidated.
		return time.Unix(1<<62, 0), true, nil
	}
	return time.UnixMilli(ms), true, nil
}

// ClearAccount removes the invalidation stamp.
func (r *RevocationRegistry) ClearAccount(ctx context.Context, accountID string) error {
	return r.cache.Delete(ctx, stampKey(accountID))
}
