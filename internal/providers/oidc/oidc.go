// Package oidc provides an external login provider that delegates
// authentication to an OpenID Connect identity provider.
package oidc

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/url"
	"sync"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"github.com/go-playground/validator/v10"
	"golang.org/x/oauth2"

	"github.com/GoMultiAuth/GoMultiAuth/internal/multiauth"
)

// Type is the configuration type name of the OIDC auth provider.
const Type = "oidc"

type settings struct {
	Title string `toml:"title"`
	// Issuer is the provider's discovery URL, e.g.
	// "https://accounts.google.com".
	Issuer       string `toml:"issuer" validate:"required,url"`
	ClientID     string `toml:"client_id" validate:"required"`
	ClientSecret string `toml:"client_secret" validate:"required"`
	// RedirectURL is the callback URL registered with the provider.
	RedirectURL string `toml:"redirect_url" validate:"required,url"`
	// Scopes to request; defaults to openid, profile and email.
	Scopes []string `toml:"scopes"`
	// UseUserInfo additionally fetches the UserInfo endpoint and merges
	// its claims over the ID token claims.
	UseUserInfo bool `toml:"use_userinfo"`
}

var validate = validator.New()

// AuthProvider implements the redirect-based OIDC login handshake.
// Provider discovery happens lazily on first use so that construction
// does not require the identity provider to be reachable.
type AuthProvider struct {
	multiauth.ProviderBase

	settings *settings

	mu       sync.Mutex
	verifier *gooidc.IDTokenVerifier
	oauth2   oauth2.Config
	userInfo func(ctx context.Context, token *oauth2.Token) (map[string]any, error)
}

// AuthProviderType returns the registration record for the OIDC auth
// provider.
func AuthProviderType() multiauth.AuthProviderType {
	return multiauth.AuthProviderType{
		Type:          Type,
		MultiInstance: true,
		New:           newAuthProvider,
	}
}

func newAuthProvider(_ *multiauth.MultiAuth, name string, providerSettings multiauth.Settings) (multiauth.AuthProvider, error) {
	var cfg settings

	if err := providerSettings.Decode(&cfg); err != nil {
		return nil, err
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid oidc settings: %w", err)
	}

	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{gooidc.ScopeOpenID, "profile", "email"}
	}

	return &AuthProvider{
		ProviderBase: multiauth.NewProviderBase(name, cfg.Title),
		settings:     &cfg,
	}, nil
}

// discover runs OIDC discovery against the issuer and prepares the
// token verifier and OAuth2 endpoint configuration. Only success is
// cached; a transient failure is retried on the next call.
func (p *AuthProvider) discover(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.verifier != nil {
		return nil
	}

	provider, err := gooidc.NewProvider(ctx, p.settings.Issuer)
	if err != nil {
		return fmt.Errorf("oidc discovery failed: %w", err)
	}

	p.verifier = provider.Verifier(&gooidc.Config{ClientID: p.settings.ClientID})
	p.oauth2 = oauth2.Config{
		ClientID:     p.settings.ClientID,
		ClientSecret: p.settings.ClientSecret,
		RedirectURL:  p.settings.RedirectURL,
		Endpoint:     provider.Endpoint(),
		Scopes:       p.settings.Scopes,
	}
	p.userInfo = func(ctx context.Context, token *oauth2.Token) (map[string]any, error) {
		info, err := provider.UserInfo(ctx, oauth2.StaticTokenSource(token))
		if err != nil {
			return nil, fmt.Errorf("failed to fetch userinfo: %w", err)
		}

		var claims map[string]any
		if err := info.Claims(&claims); err != nil {
			return nil, fmt.Errorf("failed to parse userinfo claims: %w", err)
		}

		return claims, nil
	}

	return nil
}

// LoginURL implements multiauth.ExternalLoginProvider.
func (p *AuthProvider) LoginURL(ctx context.Context, state string) (string, error) {
	if err := p.discover(ctx); err != nil {
		return "", err
	}

	return p.oauth2.AuthCodeURL(state), nil
}

// HandleCallback implements multiauth.ExternalLoginProvider. It
// exchanges the authorization code, verifies the ID token and returns
// its claims (merged with UserInfo claims when enabled) as the
// authentication data.
func (p *AuthProvider) HandleCallback(ctx context.Context, query url.Values) (*multiauth.AuthInfo, error) {
	if err := p.discover(ctx); err != nil {
		return nil, err
	}

	if errCode := query.Get("error"); errCode != "" {
		reason := errCode
		if desc := query.Get("error_description"); desc != "" {
			reason = fmt.Sprintf("%s: %s", errCode, desc)
		}

		return nil, &multiauth.AuthenticationFailed{Reason: reason}
	}

	code := query.Get("code")
	if code == "" {
		return nil, &multiauth.AuthenticationFailed{Reason: "no authorization code in callback"}
	}

	token, err := p.oauth2.Exchange(ctx, code)
	if err != nil {
		return nil, &multiauth.AuthenticationFailed{Reason: "token exchange failed", Err: err}
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, &multiauth.AuthenticationFailed{Reason: "no id_token in token response"}
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, &multiauth.AuthenticationFailed{Reason: "invalid id_token", Err: err}
	}

	var claims map[string]any
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse id_token claims: %w", err)
	}

	if p.settings.UseUserInfo {
		extra, err := p.userInfo(ctx, token)
		if err != nil {
			return nil, err
		}

		// UserInfo claims win; they are usually fresher than the token.
		for key, value := range extra {
			claims[key] = value
		}
	}

	if sub, _ := claims["sub"].(string); sub == "" {
		return nil, &multiauth.AuthenticationFailed{Reason: "id_token carries no subject"}
	}

	return multiauth.NewAuthInfo(p.Name(), multiauth.Fields(claims))
}

// GenerateStateToken generates a random state value for CSRF protection
// of the login handshake.
func GenerateStateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return base64.URLEncoding.EncodeToString(b), nil
}
