package authcore

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/cache"
	"github.com/MrEthical07/authcore/internal/identity"
	"github.com/MrEthical07/authcore/internal/limiters"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/internal/stores"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/password"
)

// Builder assembles an [Engine]. A Builder is single-use.
type Builder struct {
	config    Config
	redis     redis.UniversalClient
	store     Store
	notifier  Notifier
	providers map[string]IdentityProvider
	logger    *zap.Logger
	auditSink AuditSink
	now       func() time.Time
	built     bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config:    DefaultConfig(),
		providers: make(map[string]IdentityProvider),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the cache backing counters, codes and revocation state.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithStore sets the relational account store.
func (b *Builder) WithStore(s Store) *Builder {
	b.store = s
	return b
}

// WithNotifier sets the one-time code delivery channel. Without one, code
// flows return [ErrNotifierRequired].
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithProvider registers an identity provider under p.Name().
func (b *Builder) WithProvider(p IdentityProvider) *Builder {
	if p != nil {
		b.providers[strings.ToLower(p.Name())] = p
	}
	return b
}

// WithLogger sets the structured logger. Defaults to a no-op logger.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink sets where audit events go when Audit.Enabled is true.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled turns the in-process counters and latency histogram
// on or off.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithClock overrides time for token issuance and invalidation stamps.
// Cache TTLs still follow the cache's own clock.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and wires every component.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.store == nil {
		return nil, errors.New("account store required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	c := cache.New(b.redis)

	lockout, err := limiters.NewLockoutGuard(c, limiters.LockoutConfig{
		MaxFailures:   cfg.Lockout.MaxFailures,
		AttemptWindow: cfg.Lockout.AttemptWindow,
		LockDuration:  cfg.Lockout.LockDuration,
	})
	if err != nil {
		return nil, err
	}

	codes, err := stores.NewCodeStore(c, stores.CodeConfig{
		MaxAttempts: cfg.OTP.MaxAttempts,
		AttemptTTL:  cfg.OTP.AttemptTTL,
	})
	if err != nil {
		return nil, err
	}

	ph, err := password.NewArgon2(password.Config{
		Memory:           cfg.Password.Memory,
		Time:             cfg.Password.Time,
		Parallelism:      cfg.Password.Parallelism,
		SaltLength:       cfg.Password.SaltLength,
		KeyLength:        cfg.Password.KeyLength,
		MaxPasswordBytes: cfg.Password.MaxPasswordBytes,
	})
	if err != nil {
		return nil, err
	}

	jm, err := jwt.NewManager(jwt.Config{
		AdminTTL:      cfg.JWT.AdminTTL,
		StandardTTL:   cfg.JWT.StandardTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
		Now:           now,
	})
	if err != nil {
		return nil, fmt.Errorf("jwt: %w", err)
	}

	gen := identity.NewGenerator(b.store, cfg.Identity.AccountIDLength, cfg.Identity.GenerationAttempts, now)

	providers := make(map[string]IdentityProvider, len(b.providers))
	for name, p := range b.providers {
		providers[name] = p
	}

	engine := &Engine{
		config:     cfg,
		logger:     logger.Named("authcore"),
		now:        now,
		cache:      c,
		limiter:    rate.New(c, "rl:"),
		lockout:    lockout,
		codes:      codes,
		revocation: stores.NewRevocationRegistry(c, now),
		tokens:     jm,
		passwords:  ph,
		store:      b.store,
		generator:  gen,
		resolver: identity.NewResolver(b.store, gen, logger, identity.Config{
			DefaultRole:    cfg.Identity.DefaultRole,
			CreateAttempts: cfg.Identity.CreateAttempts,
		}),
		notifier:  b.notifier,
		providers: providers,
		audit: audit.NewDispatcher(audit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
			Logger:     logger,
		}, b.auditSink),
		metrics: NewMetrics(cfg.Metrics),
	}

	b.built = true

	return engine, nil
}
