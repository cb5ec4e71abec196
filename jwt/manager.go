package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/MrEthical07/authcore/role"
)

// Timestamps carry milliseconds so an iat can be ordered against an
// account invalidation stamp recorded in the same second.
func init() {
	jwt.TimePrecision = time.Millisecond
}

// SigningMethod selects the token signature algorithm.
type SigningMethod string

const (
	// MethodEd25519 signs with EdDSA over Ed25519.
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 signs with HMAC-SHA256.
	MethodHS256 SigningMethod = "hs256"
)

// Kind distinguishes access tokens from refresh tokens.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Valid reports whether k is one of the two known kinds.
func (k Kind) Valid() bool {
	return k == KindAccess || k == KindRefresh
}

var (
	// ErrInvalidConfig is returned by NewManager for unusable settings.
	ErrInvalidConfig = errors.New("jwt: invalid config")
	// ErrInvalidClaims is returned when a verified token carries unusable claims.
	ErrInvalidClaims = errors.New("jwt: invalid claims")
	// ErrWrongKind is returned when a token of the other kind is presented.
	ErrWrongKind = errors.New("jwt: wrong token kind")
)

// Config holds signing keys and lifetimes.
type Config struct {
	// AdminTTL is the lifetime of every token issued to an administrator.
	AdminTTL time.Duration
	// StandardTTL is the lifetime of every token issued to a standard account.
	StandardTTL time.Duration

	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	MaxFutureIAT  time.Duration
	KeyID         string
	VerifyKeys    map[string][]byte

	// Now overrides the clock for issuance and verification.
	Now func() time.Time
}

// Claims is the token payload.
type Claims struct {
	AccountID string    `json:"aid"`
	Role      role.Role `json:"role"`
	Kind      Kind      `json:"knd"`
	jwt.RegisteredClaims
}

// Validate is called by the parser after the registered claims pass.
func (c *Claims) Validate() error {
	if c.AccountID == "" || c.Subject == "" || !c.Role.Valid() || !c.Kind.Valid() {
		return ErrInvalidClaims
	}
	if c.IssuedAt == nil || c.ExpiresAt == nil {
		return ErrInvalidClaims
	}
	return nil
}

// Principal identifies who a token is minted for.
type Principal struct {
	// Subject is the login handle the account authenticated with.
	Subject   string
	AccountID string
	Role      role.Role
}

// Pair is an access token with its refresh token.
type Pair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Manager signs and verifies tokens. It is safe for concurrent use.
type Manager struct {
	config Config
	now    func() time.Time
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AdminTTL <= 0 || cfg.StandardTTL <= 0 {
		return nil, fmt.Errorf("%w: token lifetimes must be positive", ErrInvalidConfig)
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, fmt.Errorf("%w: leeway out of range", ErrInvalidConfig)
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, fmt.Errorf("%w: MaxFutureIAT out of range", ErrInvalidConfig)
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) < 32 {
			return nil, fmt.Errorf("%w: hs256 requires a key of at least 32 bytes", ErrInvalidConfig)
		}
	case MethodEd25519:
		if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
			return nil, err
		}
		if len(cfg.PublicKey) == 0 && len(cfg.VerifyKeys) == 0 {
			return nil, fmt.Errorf("%w: ed25519 requires public key or verify key set", ErrInvalidConfig)
		}
		if len(cfg.PublicKey) > 0 {
			if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
				return nil, err
			}
		}
		for kid, key := range cfg.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return nil, fmt.Errorf("%w: verify key map contains empty kid", ErrInvalidConfig)
			}
			if _, err := parseEdPublicKey(key); err != nil {
				return nil, fmt.Errorf("invalid ed25519 verify key for kid %q: %w", kid, err)
			}
		}
	default:
		return nil, fmt.Errorf("%w: unsupported signing method %q", ErrInvalidConfig, cfg.SigningMethod)
	}
	if cfg.KeyID != "" && len(cfg.VerifyKeys) > 0 {
		if _, ok := cfg.VerifyKeys[cfg.KeyID]; !ok {
			return nil, fmt.Errorf("%w: KeyID is not present in VerifyKeys", ErrInvalidConfig)
		}
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{config: cfg, now: now}, nil
}

// Lifetime returns the token lifetime for r. Every valid role maps to
// exactly one lifetime.
func (j *Manager) Lifetime(r role.Role) (time.Duration, error) {
	switch r {
	case role.Admin:
		return j.config.AdminTTL, nil
	case role.Standard:
		return j.config.StandardTTL, nil
	default:
		return 0, role.ErrUnknownRole
	}
}

// Issue mints one token of the given kind.
func (j *Manager) Issue(kind Kind, p Principal) (string, *Claims, error) {
	if !kind.Valid() {
		return "", nil, ErrWrongKind
	}
	if p.AccountID == "" || p.Subject == "" {
		return "", nil, ErrInvalidClaims
	}
	ttl, err := j.Lifetime(p.Role)
	if err != nil {
		return "", nil, err
	}

	now := j.now()
	claims := &Claims{
		AccountID: p.AccountID,
		Role:      p.Role,
		Kind:      kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   p.Subject,
			Issuer:    j.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if j.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{j.config.Audience}
	}

	token := jwt.NewWithClaims(j.getMethod(), claims)
	if j.config.KeyID != "" {
		token.Header["kid"] = j.config.KeyID
	}
	signKey, err := j.getSignKey()
	if err != nil {
		return "", nil, err
	}
	signed, err := token.SignedString(signKey)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// IssuePair mints an access token and a refresh token for p.
func (j *Manager) IssuePair(p Principal) (Pair, error) {
	access, ac, err := j.Issue(KindAccess, p)
	if err != nil {
		return Pair{}, err
	}
	refresh, rc, err := j.Issue(KindRefresh, p)
	if err != nil {
		return Pair{}, err
	}
	return Pair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  ac.ExpiresAt.Time,
		RefreshExpiresAt: rc.ExpiresAt.Time,
	}, nil
}

// Parse verifies signature, expiry and claim shape.
func (j *Manager) Parse(tokenStr string) (*Claims, error) {
	return j.parse(tokenStr, true)
}

// ParseIgnoringExpiry verifies the signature only. It is used where an
// expired token is still meaningful, such as computing a revocation TTL.
func (j *Manager) ParseIgnoringExpiry(tokenStr string) (*Claims, error) {
	return j.parse(tokenStr, false)
}

// Refresh verifies a refresh token and mints a new access token for the
// same principal. Revocation must be checked by the caller first.
func (j *Manager) Refresh(refreshToken string) (string, *Claims, error) {
	claims, err := j.Parse(refreshToken)
	if err != nil {
		return "", nil, err
	}
	if claims.Kind != KindRefresh {
		return "", nil, ErrWrongKind
	}
	return j.Issue(KindAccess, Principal{
		Subject:   claims.Subject,
		AccountID: claims.AccountID,
		Role:      claims.Role,
	})
}

// Validate reports whether tokenStr has a good signature and is unexpired.
func (j *Manager) Validate(tokenStr string) bool {
	_, err := j.Parse(tokenStr)
	return err == nil
}

// IsRefresh reports whether tokenStr is a valid refresh token.
func (j *Manager) IsRefresh(tokenStr string) bool {
	c, err := j.Parse(tokenStr)
	return err == nil && c.Kind == KindRefresh
}

// AccountID returns the account id of a valid token, or "".
func (j *Manager) AccountID(tokenStr string) string {
	c, err := j.Parse(tokenStr)
	if err != nil {
		return ""
	}
	return c.AccountID
}

// Subject returns the subject of a valid token, or "".
func (j *Manager) Subject(tokenStr string) string {
	c, err := j.Parse(tokenStr)
	if err != nil {
		return ""
	}
	return c.Subject
}

// Role returns the role of a valid token, or the zero Role.
func (j *Manager) Role(tokenStr string) role.Role {
	c, err := j.Parse(tokenStr)
	if err != nil {
		return 0
	}
	return c.Role
}

// Expiry returns the expiry of a valid token.
func (j *Manager) Expiry(tokenStr string) (time.Time, bool) {
	c, err := j.Parse(tokenStr)
	if err != nil {
		return time.Time{}, false
	}
	return c.ExpiresAt.Time, true
}

func (j *Manager) parse(tokenStr string, validateClaims bool) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{j.getMethod().Alg()}),
		jwt.WithTimeFunc(j.now),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	}
	if !validateClaims {
		options = append(options, jwt.WithoutClaimsValidation())
	}
	if j.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(j.config.Leeway))
	}
	if j.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(j.config.Issuer))
	}
	if j.config.Audience != "" {
		options = append(options, jwt.WithAudience(j.config.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, j.keyFunc)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if !validateClaims {
		if err := claims.Validate(); err != nil {
			return nil, err
		}
		roundTimes(claims)
		return claims, nil
	}
	roundTimes(claims)
	if claims.IssuedAt.Time.After(j.now().Add(j.config.MaxFutureIAT)) {
		return nil, errors.New("token iat too far in the future")
	}
	return claims, nil
}

// roundTimes undoes the float64 drift of fractional NumericDate decoding.
func roundTimes(c *Claims) {
	c.IssuedAt.Time = c.IssuedAt.Time.Round(jwt.TimePrecision)
	c.ExpiresAt.Time = c.ExpiresAt.Time.Round(jwt.TimePrecision)
}

func (j *Manager) keyFunc(t *jwt.Token) (interface{}, error) {
	if t.Method.Alg() != j.getMethod().Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
	}

	if len(j.config.VerifyKeys) > 0 {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("missing kid")
		}
		key, ok := j.config.VerifyKeys[kid]
		if !ok {
			return nil, errors.New("unknown kid")
		}
		return j.keyBytesToVerifyKey(key)
	}

	if j.config.KeyID != "" {
		kid, _ := t.Header["kid"].(string)
		if kid != j.config.KeyID {
			return nil, errors.New("unknown kid")
		}
	}

	return j.getVerifyKey()
}

func (j *Manager) getMethod() jwt.SigningMethod {
	switch j.config.SigningMethod {
	case MethodHS256:
		return jwt.SigningMethodHS256
	default:
		return jwt.SigningMethodEdDSA
	}
}

func (j *Manager) getSignKey() (interface{}, error) {
	switch j.config.SigningMethod {
	case MethodHS256:
		return j.config.PrivateKey, nil
	default:
		return parseEdPrivateKey(j.config.PrivateKey)
	}
}

func (j *Manager) getVerifyKey() (interface{}, error) {
	switch j.config.SigningMethod {
	case MethodHS256:
		return j.config.PrivateKey, nil
	default:
		return parseEdPublicKey(j.config.PublicKey)
	}
}

func (j *Manager) keyBytesToVerifyKey(key []byte) (interface{}, error) {
	switch j.config.SigningMethod {
	case MethodHS256:
		return key, nil
	default:
		return parseEdPublicKey(key)
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid ed25519 private key", ErrInvalidConfig)
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: invalid ed25519 private key type", ErrInvalidConfig)
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid ed25519 public key", ErrInvalidConfig)
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: invalid ed25519 public key type", ErrInvalidConfig)
	}
	return edKey, nil
}
