package authcore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/cache"
	"github.com/MrEthical07/authcore/internal/identity"
	"github.com/MrEthical07/authcore/internal/limiters"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/internal/stores"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/store"
)

// Engine is the account-identity and session-security core. Every method is
// safe for concurrent use; all shared state lives in the cache and store.
//
// Expected outcomes (limited, locked, wrong code, invalid token, identity
// conflict) come back as result values with an [Outcome]. The error return
// is reserved for infrastructure faults, which satisfy
// errors.Is(err, [ErrInfrastructureUnavailable]), and for invalid input.
type Engine struct {
	config Config
	logger *zap.Logger
	now    func() time.Time

	cache      *cache.Client
	limiter    *rate.Limiter
	lockout    *limiters.LockoutGuard
	codes      *stores.CodeStore
	revocation *stores.RevocationRegistry
	tokens     *jwt.Manager
	passwords  *password.Argon2

	store     Store
	generator *identity.Generator
	resolver  *identity.Resolver

	notifier  Notifier
	providers map[string]IdentityProvider

	audit   *audit.Dispatcher
	metrics *Metrics
}

// Close drains the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// Ping checks the cache connection.
func (e *Engine) Ping(ctx context.Context) error {
	if err := e.cache.Ping(ctx); err != nil {
		return e.fault(ErrCacheUnavailable, "ping", err)
	}
	return nil
}

// AuditDropped returns the number of audit events dropped under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the current counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// fault logs an infrastructure error at Warn and wraps it in kind.
func (e *Engine) fault(kind error, op string, err error) error {
	e.metricInc(MetricInfrastructureFault)
	e.logger.Warn("backend unavailable", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("%w: %s: %v", kind, op, err)
}

// storeFault maps a store error. Not-found and duplicate errors are passed
// through for the caller to interpret.
func (e *Engine) storeFault(op string, err error) error {
	if err == nil || !store.IsInfrastructure(err) {
		return err
	}
	if errors.Is(err, identity.ErrIdentifierSpaceExhausted) {
		e.metricInc(MetricInfrastructureFault)
		e.logger.Warn("account identifier space exhausted", zap.String("op", op))
		return fmt.Errorf("%w: %s", ErrIdentifierSpaceExhausted, op)
	}
	if errors.Is(err, ErrInfrastructureUnavailable) {
		return err
	}
	return e.fault(ErrStoreUnavailable, op, err)
}

// policy records a policy outcome at Debug. Policy outcomes are never errors
// in the logs.
func (e *Engine) policy(op string, outcome Outcome, fields ...zap.Field) {
	e.logger.Debug("policy outcome", append([]zap.Field{zap.String("op", op), zap.Stringer("outcome", outcome)}, fields...)...)
}

// lookupAccount finds an account by login handle: an email when it contains
// "@", a phone number when it starts with "+", otherwise an account
// identifier.
func (e *Engine) lookupAccount(ctx context.Context, identifier string) (*Account, error) {
	id := strings.TrimSpace(identifier)
	switch {
	case id == "":
		return nil, store.ErrNotFound
	case strings.Contains(id, "@"):
		return e.store.FindAccountByEmail(ctx, store.NormalizeEmail(id))
	case strings.HasPrefix(id, "+"):
		phone := store.NormalizePhone(id)
		if phone == "" {
			return nil, store.ErrNotFound
		}
		return e.store.FindAccountByPhone(ctx, phone)
	case isDigits(id) && len(id) == e.config.Identity.AccountIDLength:
		return e.store.FindAccountByIdentifier(ctx, id)
	default:
		return nil, store.ErrNotFound
	}
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
