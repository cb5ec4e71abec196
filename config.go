package authcore

import (
	"errors"
	"time"

	"github.com/MrEthical07/authcore/role"
)

// Config holds every engine setting. Build copies it, so later changes to
// the caller's value have no effect on a running engine.
type Config struct {
	JWT        JWTConfig
	RateLimit  RateLimitConfig
	Lockout    LockoutConfig
	OTP        OTPConfig
	Revocation RevocationConfig
	Identity   IdentityConfig
	Password   PasswordConfig
	Audit      AuditConfig
	Metrics    MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig selects signing keys and role-dependent lifetimes. Both token
// kinds share the lifetime of the account's role.
type JWTConfig struct {
	AdminTTL      time.Duration
	StandardTTL   time.Duration
	SigningMethod string // "ed25519" (default) or "hs256"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig sets fixed-window budgets for each throttled flow.
type RateLimitConfig struct {
	LoginMax    int
	LoginWindow time.Duration

	// EnableIPThrottle adds a per-client-IP budget next to the
	// per-identifier one. The IP comes from [WithClientIP].
	EnableIPThrottle bool
	IPMax            int
	IPWindow         time.Duration

	CodeRequestMax    int
	CodeRequestWindow time.Duration

	RegisterMax    int
	RegisterWindow time.Duration
}

// LockoutConfig sets the consecutive-failure lock policy.
type LockoutConfig struct {
	MaxFailures   int
	AttemptWindow time.Duration
	LockDuration  time.Duration
}

// OTPConfig sets one-time code shape and lifetimes.
type OTPConfig struct {
	Digits       int
	MaxAttempts  int
	LoginCodeTTL time.Duration
	ResetCodeTTL time.Duration
	AttemptTTL   time.Duration
}

// RevocationConfig controls mass invalidation.
type RevocationConfig struct {
	// InvalidationGrace is how long an account invalidation stamp lives.
	// It must cover the longest token lifetime or old tokens outlive it.
	InvalidationGrace time.Duration
}

// IdentityConfig controls account identifier generation and social sign-up.
type IdentityConfig struct {
	AccountIDLength    int
	GenerationAttempts int
	CreateAttempts     int
	DefaultRole        role.Role
}

// PasswordConfig holds Argon2id cost parameters.
type PasswordConfig struct {
	Memory           uint32
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MaxPasswordBytes int
	UpgradeOnLogin   bool
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig toggles in-process metrics.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the production defaults. Keys are left empty.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AdminTTL:      24 * time.Hour,
			StandardTTL:   7 * 24 * time.Hour,
			SigningMethod: "ed25519",
		},
		RateLimit: RateLimitConfig{
			LoginMax:          10,
			LoginWindow:       time.Minute,
			EnableIPThrottle:  true,
			IPMax:             10,
			IPWindow:          time.Minute,
			CodeRequestMax:    3,
			CodeRequestWindow: time.Minute,
			RegisterMax:       5,
			RegisterWindow:    15 * time.Minute,
		},
		Lockout: LockoutConfig{
			MaxFailures:   5,
			AttemptWindow: 30 * time.Minute,
			LockDuration:  15 * time.Minute,
		},
		OTP: OTPConfig{
			Digits:       6,
			MaxAttempts:  5,
			LoginCodeTTL: 5 * time.Minute,
			ResetCodeTTL: 15 * time.Minute,
			AttemptTTL:   15 * time.Minute,
		},
		Revocation: RevocationConfig{
			InvalidationGrace: 7 * 24 * time.Hour,
		},
		Identity: IdentityConfig{
			AccountIDLength:    10,
			GenerationAttempts: 10,
			CreateAttempts:     5,
			DefaultRole:        role.Standard,
		},
		Password: PasswordConfig{
			Memory:           65536,
			Time:             3,
			Parallelism:      2,
			SaltLength:       16,
			KeyLength:        32,
			MaxPasswordBytes: 1024,
			UpgradeOnLogin:   true,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate rejects configurations the engine cannot run safely with.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AdminTTL <= 0 || c.JWT.StandardTTL <= 0 {
		return errors.New("JWT AdminTTL and StandardTTL must be > 0")
	}
	if c.JWT.SigningMethod != "ed25519" && c.JWT.SigningMethod != "hs256" {
		return errors.New("unsupported JWT signing method")
	}
	if len(c.JWT.PrivateKey) == 0 {
		return errors.New("JWT PrivateKey required")
	}
	if c.JWT.SigningMethod == "hs256" && len(c.JWT.PrivateKey) < 32 {
		return errors.New("hs256 PrivateKey must be at least 32 bytes")
	}

	// Rate limits
	if c.RateLimit.LoginMax <= 0 || c.RateLimit.LoginWindow <= 0 {
		return errors.New("RateLimit login budget must be > 0")
	}
	if c.RateLimit.EnableIPThrottle && (c.RateLimit.IPMax <= 0 || c.RateLimit.IPWindow <= 0) {
		return errors.New("RateLimit IP budget must be > 0 when EnableIPThrottle is true")
	}
	if c.RateLimit.CodeRequestMax <= 0 || c.RateLimit.CodeRequestWindow <= 0 {
		return errors.New("RateLimit code request budget must be > 0")
	}
	if c.RateLimit.RegisterMax <= 0 || c.RateLimit.RegisterWindow <= 0 {
		return errors.New("RateLimit register budget must be > 0")
	}

	// Lockout
	if c.Lockout.MaxFailures <= 0 {
		return errors.New("Lockout MaxFailures must be > 0")
	}
	if c.Lockout.AttemptWindow <= 0 || c.Lockout.LockDuration <= 0 {
		return errors.New("Lockout AttemptWindow and LockDuration must be > 0")
	}

	// OTP
	if c.OTP.Digits < 4 || c.OTP.Digits > 10 {
		return errors.New("OTP Digits must be between 4 and 10")
	}
	if c.OTP.MaxAttempts <= 0 {
		return errors.New("OTP MaxAttempts must be > 0")
	}
	if c.OTP.LoginCodeTTL <= 0 || c.OTP.ResetCodeTTL <= 0 || c.OTP.AttemptTTL <= 0 {
		return errors.New("OTP lifetimes must be > 0")
	}

	// Revocation
	if c.Revocation.InvalidationGrace <= 0 {
		return errors.New("Revocation InvalidationGrace must be > 0")
	}

	// Identity
	if c.Identity.AccountIDLength < 6 || c.Identity.AccountIDLength > 19 {
		return errors.New("Identity AccountIDLength must be between 6 and 19")
	}
	if c.Identity.GenerationAttempts <= 0 || c.Identity.CreateAttempts <= 0 {
		return errors.New("Identity attempt counts must be > 0")
	}
	if !c.Identity.DefaultRole.Valid() {
		return errors.New("Identity DefaultRole is not a known role")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}
