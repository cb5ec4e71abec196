package authcore

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authcore/store/memory"
)

func TestDefaultConfigNeedsOnlyAKey(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected missing key rejected")
	}
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte(strings.Repeat("k", 32))
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults valid with key, got %v", err)
	}
}

func TestDefaultConfigValues(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Lockout.MaxFailures != 5 || cfg.Lockout.LockDuration != 15*time.Minute {
		t.Fatalf("unexpected lockout defaults %+v", cfg.Lockout)
	}
	if cfg.OTP.Digits != 6 || cfg.OTP.MaxAttempts != 5 || cfg.OTP.LoginCodeTTL != 5*time.Minute {
		t.Fatalf("unexpected code defaults %+v", cfg.OTP)
	}
	if cfg.JWT.AdminTTL != 24*time.Hour || cfg.JWT.StandardTTL != 7*24*time.Hour {
		t.Fatalf("unexpected token lifetimes %+v", cfg.JWT)
	}
	if cfg.Revocation.InvalidationGrace < cfg.JWT.StandardTTL {
		t.Fatalf("invalidation stamps must outlive the longest token")
	}
}

func TestValidateRejectsUnsafeConfigs(t *testing.T) {
	cases := map[string]func(*Config){
		"short hs256 key":   func(c *Config) { c.JWT.PrivateKey = []byte("short") },
		"unknown method":    func(c *Config) { c.JWT.SigningMethod = "none" },
		"zero ttl":          func(c *Config) { c.JWT.StandardTTL = 0 },
		"zero login budget": func(c *Config) { c.RateLimit.LoginMax = 0 },
		"ip budget":         func(c *Config) { c.RateLimit.IPWindow = 0 },
		"no lockout":        func(c *Config) { c.Lockout.MaxFailures = 0 },
		"tiny codes":        func(c *Config) { c.OTP.Digits = 3 },
		"huge codes":        func(c *Config) { c.OTP.Digits = 11 },
		"no attempts":       func(c *Config) { c.OTP.MaxAttempts = 0 },
		"no grace":          func(c *Config) { c.Revocation.InvalidationGrace = 0 },
		"short ids":         func(c *Config) { c.Identity.AccountIDLength = 5 },
		"long ids":          func(c *Config) { c.Identity.AccountIDLength = 20 },
		"bad role":          func(c *Config) { c.Identity.DefaultRole = 0 },
		"audit buffer":      func(c *Config) { c.Audit.Enabled = true; c.Audit.BufferSize = 0 },
	}
	for name, mutate := range cases {
		cfg := testConfig()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestBuildRequiresCollaborators(t *testing.T) {
	if _, err := New().WithConfig(testConfig()).WithStore(memory.New()).Build(); err == nil {
		t.Fatalf("expected missing redis rejected")
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	if _, err := New().WithConfig(testConfig()).WithRedis(rdb).Build(); err == nil {
		t.Fatalf("expected missing store rejected")
	}

	b := New().WithConfig(testConfig()).WithRedis(rdb).WithStore(memory.New())
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	engine.Close()
	if _, err := b.Build(); err == nil {
		t.Fatalf("expected builder reuse rejected")
	}
}

func TestBuildCopiesConfig(t *testing.T) {
	cfg := testConfig()
	key := cfg.JWT.PrivateKey
	te := newTestEngine(t, cfg)
	te.mustRegister(t, testEmail, testPassword)
	login := te.mustLogin(t, testEmail, testPassword)

	key[0] ^= 0xff
	if !te.ValidateToken(login.Tokens.AccessToken) {
		t.Fatalf("mutating the caller's key must not affect the engine")
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	key := strings.Repeat("s", 32)
	t.Setenv("AUTHCORE_JWT_SIGNING_METHOD", "hs256")
	t.Setenv("AUTHCORE_JWT_PRIVATE_KEY", base64.StdEncoding.EncodeToString([]byte(key)))
	t.Setenv("AUTHCORE_RATE_LOGIN_MAX", "25")
	t.Setenv("AUTHCORE_LOCKOUT_DURATION", "30m")
	t.Setenv("AUTHCORE_OTP_DIGITS", "8")
	t.Setenv("AUTHCORE_DEFAULT_ROLE", "admin")
	t.Setenv("AUTHCORE_AUDIT_ENABLED", "true")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(cfg.JWT.PrivateKey) != key || cfg.JWT.SigningMethod != "hs256" {
		t.Fatalf("unexpected jwt config %+v", cfg.JWT)
	}
	if cfg.RateLimit.LoginMax != 25 || cfg.Lockout.LockDuration != 30*time.Minute || cfg.OTP.Digits != 8 {
		t.Fatalf("overrides not applied: %+v %+v %+v", cfg.RateLimit, cfg.Lockout, cfg.OTP)
	}
	if cfg.Identity.DefaultRole != RoleAdmin || !cfg.Audit.Enabled {
		t.Fatalf("unexpected identity/audit config")
	}
	// Unset variables keep their defaults.
	if cfg.Lockout.MaxFailures != 5 || cfg.JWT.StandardTTL != 7*24*time.Hour {
		t.Fatalf("defaults lost: %+v", cfg.Lockout)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestLoadConfigFromEnvRejectsGarbage(t *testing.T) {
	t.Setenv("AUTHCORE_RATE_LOGIN_MAX", "lots")
	if _, err := LoadConfigFromEnv(); err == nil {
		t.Fatalf("expected parse error")
	}

	t.Setenv("AUTHCORE_RATE_LOGIN_MAX", "10")
	t.Setenv("AUTHCORE_JWT_PRIVATE_KEY", "%%%")
	if _, err := LoadConfigFromEnv(); err == nil {
		t.Fatalf("expected base64 error")
	}
}
