package authcore

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/MrEthical07/authcore/role"
)

// EnvPrefix prefixes every variable read by [LoadConfigFromEnv].
const EnvPrefix = "AUTHCORE_"

// configEnv mirrors the settable subset of Config. Fields start out holding
// the base config, so unset variables leave them untouched.
type configEnv struct {
	JWTAdminTTL      time.Duration `env:"JWT_ADMIN_TTL"`
	JWTStandardTTL   time.Duration `env:"JWT_STANDARD_TTL"`
	JWTSigningMethod string        `env:"JWT_SIGNING_METHOD"`
	JWTPrivateKey    string        `env:"JWT_PRIVATE_KEY"` // base64
	JWTPublicKey     string        `env:"JWT_PUBLIC_KEY"`  // base64
	JWTIssuer        string        `env:"JWT_ISSUER"`
	JWTAudience      string        `env:"JWT_AUDIENCE"`
	JWTLeeway        time.Duration `env:"JWT_LEEWAY"`
	JWTKeyID         string        `env:"JWT_KEY_ID"`

	LoginMax          int           `env:"RATE_LOGIN_MAX"`
	LoginWindow       time.Duration `env:"RATE_LOGIN_WINDOW"`
	EnableIPThrottle  bool          `env:"RATE_IP_THROTTLE"`
	IPMax             int           `env:"RATE_IP_MAX"`
	IPWindow          time.Duration `env:"RATE_IP_WINDOW"`
	CodeRequestMax    int           `env:"RATE_CODE_MAX"`
	CodeRequestWindow time.Duration `env:"RATE_CODE_WINDOW"`
	RegisterMax       int           `env:"RATE_REGISTER_MAX"`
	RegisterWindow    time.Duration `env:"RATE_REGISTER_WINDOW"`

	LockoutMaxFailures   int           `env:"LOCKOUT_MAX_FAILURES"`
	LockoutAttemptWindow time.Duration `env:"LOCKOUT_ATTEMPT_WINDOW"`
	LockoutDuration      time.Duration `env:"LOCKOUT_DURATION"`

	OTPDigits       int           `env:"OTP_DIGITS"`
	OTPMaxAttempts  int           `env:"OTP_MAX_ATTEMPTS"`
	OTPLoginCodeTTL time.Duration `env:"OTP_LOGIN_TTL"`
	OTPResetCodeTTL time.Duration `env:"OTP_RESET_TTL"`
	OTPAttemptTTL   time.Duration `env:"OTP_ATTEMPT_TTL"`

	InvalidationGrace time.Duration `env:"INVALIDATION_GRACE"`

	AccountIDLength    int       `env:"ACCOUNT_ID_LENGTH"`
	GenerationAttempts int       `env:"ACCOUNT_ID_ATTEMPTS"`
	CreateAttempts     int       `env:"ACCOUNT_CREATE_ATTEMPTS"`
	DefaultRole        role.Role `env:"DEFAULT_ROLE"`

	PasswordMemory      uint32 `env:"PASSWORD_MEMORY_KB"`
	PasswordTime        uint32 `env:"PASSWORD_TIME"`
	PasswordParallelism uint8  `env:"PASSWORD_PARALLELISM"`
	PasswordUpgrade     bool   `env:"PASSWORD_UPGRADE_ON_LOGIN"`

	AuditEnabled    bool `env:"AUDIT_ENABLED"`
	AuditBufferSize int  `env:"AUDIT_BUFFER_SIZE"`
	MetricsEnabled  bool `env:"METRICS_ENABLED"`
	MetricsLatency  bool `env:"METRICS_LATENCY"`
}

// LoadConfigFromEnv returns [DefaultConfig] overlaid with AUTHCORE_*
// environment variables. Durations use Go syntax ("15m"); keys are base64.
func LoadConfigFromEnv() (Config, error) {
	return OverlayEnv(DefaultConfig())
}

// OverlayEnv overlays AUTHCORE_* environment variables onto base.
func OverlayEnv(base Config) (Config, error) {
	raw := configEnv{
		JWTAdminTTL:      base.JWT.AdminTTL,
		JWTStandardTTL:   base.JWT.StandardTTL,
		JWTSigningMethod: base.JWT.SigningMethod,
		JWTIssuer:        base.JWT.Issuer,
		JWTAudience:      base.JWT.Audience,
		JWTLeeway:        base.JWT.Leeway,
		JWTKeyID:         base.JWT.KeyID,

		LoginMax:          base.RateLimit.LoginMax,
		LoginWindow:       base.RateLimit.LoginWindow,
		EnableIPThrottle:  base.RateLimit.EnableIPThrottle,
		IPMax:             base.RateLimit.IPMax,
		IPWindow:          base.RateLimit.IPWindow,
		CodeRequestMax:    base.RateLimit.CodeRequestMax,
		CodeRequestWindow: base.RateLimit.CodeRequestWindow,
		RegisterMax:       base.RateLimit.RegisterMax,
		RegisterWindow:    base.RateLimit.RegisterWindow,

		LockoutMaxFailures:   base.Lockout.MaxFailures,
		LockoutAttemptWindow: base.Lockout.AttemptWindow,
		LockoutDuration:      base.Lockout.LockDuration,

		OTPDigits:       base.OTP.Digits,
		OTPMaxAttempts:  base.OTP.MaxAttempts,
		OTPLoginCodeTTL: base.OTP.LoginCodeTTL,
		OTPResetCodeTTL: base.OTP.ResetCodeTTL,
		OTPAttemptTTL:   base.OTP.AttemptTTL,

		InvalidationGrace: base.Revocation.InvalidationGrace,

		AccountIDLength:    base.Identity.AccountIDLength,
		GenerationAttempts: base.Identity.GenerationAttempts,
		CreateAttempts:     base.Identity.CreateAttempts,
		DefaultRole:        base.Identity.DefaultRole,

		PasswordMemory:      base.Password.Memory,
		PasswordTime:        base.Password.Time,
		PasswordParallelism: base.Password.Parallelism,
		PasswordUpgrade:     base.Password.UpgradeOnLogin,

		AuditEnabled:    base.Audit.Enabled,
		AuditBufferSize: base.Audit.BufferSize,
		MetricsEnabled:  base.Metrics.Enabled,
		MetricsLatency:  base.Metrics.EnableLatencyHistograms,
	}

	if err := env.ParseWithOptions(&raw, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg := cloneConfig(base)
	cfg.JWT.AdminTTL = raw.JWTAdminTTL
	cfg.JWT.StandardTTL = raw.JWTStandardTTL
	cfg.JWT.SigningMethod = raw.JWTSigningMethod
	cfg.JWT.Issuer = raw.JWTIssuer
	cfg.JWT.Audience = raw.JWTAudience
	cfg.JWT.Leeway = raw.JWTLeeway
	cfg.JWT.KeyID = raw.JWTKeyID
	if raw.JWTPrivateKey != "" {
		key, err := base64.StdEncoding.DecodeString(raw.JWTPrivateKey)
		if err != nil {
			return Config{}, fmt.Errorf("parse env: %sJWT_PRIVATE_KEY: %w", EnvPrefix, err)
		}
		cfg.JWT.PrivateKey = key
	}
	if raw.JWTPublicKey != "" {
		key, err := base64.StdEncoding.DecodeString(raw.JWTPublicKey)
		if err != nil {
			return Config{}, fmt.Errorf("parse env: %sJWT_PUBLIC_KEY: %w", EnvPrefix, err)
		}
		cfg.JWT.PublicKey = key
	}

	cfg.RateLimit = RateLimitConfig{
		LoginMax:          raw.LoginMax,
		LoginWindow:       raw.LoginWindow,
		EnableIPThrottle:  raw.EnableIPThrottle,
		IPMax:             raw.IPMax,
		IPWindow:          raw.IPWindow,
		CodeRequestMax:    raw.CodeRequestMax,
		CodeRequestWindow: raw.CodeRequestWindow,
		RegisterMax:       raw.RegisterMax,
		RegisterWindow:    raw.RegisterWindow,
	}
	cfg.Lockout = LockoutConfig{
		MaxFailures:   raw.LockoutMaxFailures,
		AttemptWindow: raw.LockoutAttemptWindow,
		LockDuration:  raw.LockoutDuration,
	}
	cfg.OTP = OTPConfig{
		Digits:       raw.OTPDigits,
		MaxAttempts:  raw.OTPMaxAttempts,
		LoginCodeTTL: raw.OTPLoginCodeTTL,
		ResetCodeTTL: raw.OTPResetCodeTTL,
		AttemptTTL:   raw.OTPAttemptTTL,
	}
	cfg.Revocation.InvalidationGrace = raw.InvalidationGrace
	cfg.Identity = IdentityConfig{
		AccountIDLength:    raw.AccountIDLength,
		GenerationAttempts: raw.GenerationAttempts,
		CreateAttempts:     raw.CreateAttempts,
		DefaultRole:        raw.DefaultRole,
	}
	cfg.Password.Memory = raw.PasswordMemory
	cfg.Password.Time = raw.PasswordTime
	cfg.Password.Parallelism = raw.PasswordParallelism
	cfg.Password.UpgradeOnLogin = raw.PasswordUpgrade
	cfg.Audit.Enabled = raw.AuditEnabled
	cfg.Audit.BufferSize = raw.AuditBufferSize
	cfg.Metrics.Enabled = raw.MetricsEnabled
	cfg.Metrics.EnableLatencyHistograms = raw.MetricsLatency

	return cfg, nil
}
