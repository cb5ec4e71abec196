// Package oauth adapts OAuth 2.0 authorization-code providers to
// authcore.IdentityProvider: it exchanges the code for a token, fetches the
// provider's user-info document and maps it onto an ExternalIdentity.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/MrEthical07/authcore"
)

// maxUserInfoBytes caps the user-info document read from a provider.
const maxUserInfoBytes = 1 << 20

// Fields names the user-info JSON members mapped onto an identity. Empty
// names are skipped.
type Fields struct {
	ExternalID string
	UnionID    string
	Email      string
	// EmailVerified, when set, must be true for the email to be used.
	EmailVerified string
	DisplayName   string
	AvatarURL     string
}

// Config describes one provider.
type Config struct {
	Name         string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	Endpoint     oauth2.Endpoint
	UserInfoURL  string
	Fields       Fields
	// HTTPClient is used for the token exchange and user-info request.
	// Defaults to http.DefaultClient.
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Provider implements authcore.IdentityProvider over golang.org/x/oauth2.
type Provider struct {
	name        string
	oauth       oauth2.Config
	userInfoURL string
	fields      Fields
	client      *http.Client
	logger      *zap.Logger
}

// Google returns a Config for Google's OpenID user-info endpoint.
func Google(clientID, clientSecret, redirectURL string) Config {
	return Config{
		Name:         "google",
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{"openid", "email", "profile"},
		Endpoint:     endpoints.Google,
		UserInfoURL:  "https://openidconnect.googleapis.com/v1/userinfo",
		Fields: Fields{
			ExternalID:    "sub",
			Email:         "email",
			EmailVerified: "email_verified",
			DisplayName:   "name",
			AvatarURL:     "picture",
		},
	}
}

// GitHub returns a Config for GitHub's /user endpoint. GitHub only returns a
// public email there, which it has already verified.
func GitHub(clientID, clientSecret, redirectURL string) Config {
	return Config{
		Name:         "github",
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{"read:user", "user:email"},
		Endpoint:     endpoints.GitHub,
		UserInfoURL:  "https://api.github.com/user",
		Fields: Fields{
			ExternalID:  "id",
			Email:       "email",
			DisplayName: "name",
			AvatarURL:   "avatar_url",
		},
	}
}

// New validates cfg and returns a Provider.
func New(cfg Config) (*Provider, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Name))
	switch {
	case name == "":
		return nil, errors.New("oauth: provider name required")
	case cfg.ClientID == "":
		return nil, errors.New("oauth: client id required")
	case cfg.Endpoint.TokenURL == "":
		return nil, errors.New("oauth: token url required")
	case cfg.UserInfoURL == "":
		return nil, errors.New("oauth: user info url required")
	case cfg.Fields.ExternalID == "":
		return nil, errors.New("oauth: external id field required")
	}

	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Provider{
		name: name,
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       append([]string(nil), cfg.Scopes...),
			Endpoint:     cfg.Endpoint,
		},
		userInfoURL: cfg.UserInfoURL,
		fields:      cfg.Fields,
		client:      client,
		logger:      logger.Named("oauth").With(zap.String("provider", name)),
	}, nil
}

// Name returns the lowercased provider name.
func (p *Provider) Name() string { return p.name }

// AuthCodeURL returns the consent page URL carrying state.
func (p *Provider) AuthCodeURL(state string) string {
	return p.oauth.AuthCodeURL(state)
}

// Exchange trades code for a token and reads the user-info document.
// A code the provider rejects yields authcore.ErrInvalidCredentials; any
// other failure yields authcore.ErrProviderUnavailable.
func (p *Provider) Exchange(ctx context.Context, code string) (authcore.ExternalIdentity, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)

	token, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil && re.Response.StatusCode >= 400 && re.Response.StatusCode < 500 {
			p.logger.Debug("authorization code rejected", zap.String("error_code", re.ErrorCode))
			return authcore.ExternalIdentity{}, fmt.Errorf("%w: %s", authcore.ErrInvalidCredentials, re.ErrorCode)
		}
		return authcore.ExternalIdentity{}, fmt.Errorf("%w: exchange: %v", authcore.ErrProviderUnavailable, err)
	}

	doc, err := p.userInfo(ctx, token)
	if err != nil {
		return authcore.ExternalIdentity{}, err
	}
	return p.identity(doc)
}

func (p *Provider) userInfo(ctx context.Context, token *oauth2.Token) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: user info: %v", authcore.ErrProviderUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.oauth.Client(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: user info: %v", authcore.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: user info status %d", authcore.ErrInvalidCredentials, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("%w: user info status %d", authcore.ErrProviderUnavailable, resp.StatusCode)
	}

	dec := json.NewDecoder(io.LimitReader(resp.Body, maxUserInfoBytes))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: decode user info: %v", authcore.ErrProviderUnavailable, err)
	}
	return doc, nil
}

func (p *Provider) identity(doc map[string]any) (authcore.ExternalIdentity, error) {
	ext := authcore.ExternalIdentity{
		ExternalID:  field(doc, p.fields.ExternalID),
		UnionID:     field(doc, p.fields.UnionID),
		Email:       field(doc, p.fields.Email),
		DisplayName: field(doc, p.fields.DisplayName),
		AvatarURL:   field(doc, p.fields.AvatarURL),
	}
	if ext.ExternalID == "" {
		return authcore.ExternalIdentity{}, fmt.Errorf("%w: user info has no %q", authcore.ErrProviderUnavailable, p.fields.ExternalID)
	}
	if ext.Email != "" && p.fields.EmailVerified != "" && !truthy(doc[p.fields.EmailVerified]) {
		// Only verified emails may link accounts.
		p.logger.Debug("dropping unverified email")
		ext.Email = ""
	}
	return ext, nil
}

func field(doc map[string]any, name string) string {
	if name == "" {
		return ""
	}
	switch v := doc[name].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case bool:
		if v {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}

func truthy(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return strings.EqualFold(b, "true")
	default:
		return false
	}
}
