package oidc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoMultiAuth/GoMultiAuth/internal/multiauth"
)

func validSettings() multiauth.Settings {
	return multiauth.Settings{
		"issuer":        "https://accounts.example.com",
		"client_id":     "gomultiauth",
		"client_secret": "hunter2",
		"redirect_url":  "https://app.example.com/login/sso/callback",
	}
}

// markDiscovered pretends discovery already happened so that callback
// error branches are reachable without a live issuer.
func markDiscovered(p *AuthProvider) {
	p.verifier = gooidc.NewVerifier(p.settings.Issuer, nil, &gooidc.Config{ClientID: p.settings.ClientID})
}

func TestNewAuthProvider(t *testing.T) {
	provider, err := newAuthProvider(nil, "sso", validSettings())
	require.NoError(t, err)

	assert.Equal(t, "sso", provider.Name())
	assert.Equal(t, "sso", provider.Title())

	oidcProvider, ok := provider.(*AuthProvider)
	require.True(t, ok)
	assert.Equal(t, []string{"openid", "profile", "email"}, oidcProvider.settings.Scopes)
}

func TestNewAuthProvider_InvalidSettings(t *testing.T) {
	for _, missing := range []string{"issuer", "client_id", "client_secret", "redirect_url"} {
		settings := validSettings()
		delete(settings, missing)

		_, err := newAuthProvider(nil, "sso", settings)
		assert.Error(t, err, missing)
	}
}

func TestHandleCallback_ProviderError(t *testing.T) {
	provider, err := newAuthProvider(nil, "sso", validSettings())
	require.NoError(t, err)

	oidcProvider := provider.(*AuthProvider)
	markDiscovered(oidcProvider)

	query := url.Values{
		"error":             {"access_denied"},
		"error_description": {"user cancelled"},
	}

	_, err = oidcProvider.HandleCallback(context.Background(), query)

	var authErr *multiauth.AuthenticationFailed
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "access_denied: user cancelled", authErr.Reason)
}

func TestHandleCallback_MissingCode(t *testing.T) {
	provider, err := newAuthProvider(nil, "sso", validSettings())
	require.NoError(t, err)

	oidcProvider := provider.(*AuthProvider)
	markDiscovered(oidcProvider)

	_, err = oidcProvider.HandleCallback(context.Background(), url.Values{})

	var authErr *multiauth.AuthenticationFailed
	require.ErrorAs(t, err, &authErr)
}

func TestLoginURL_RetriesFailedDiscovery(t *testing.T) {
	var (
		issuer   string
		failures = 1
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, _ *http.Request) {
		if failures > 0 {
			failures--
			w.WriteHeader(http.StatusInternalServerError)

			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":                 issuer,
			"authorization_endpoint": issuer + "/auth",
			"token_endpoint":         issuer + "/token",
			"jwks_uri":               issuer + "/keys",
			"userinfo_endpoint":      issuer + "/userinfo",
		})
	})

	server := httptest.NewServer(mux)
	defer server.Close()
	issuer = server.URL

	settings := validSettings()
	settings["issuer"] = server.URL

	provider, err := newAuthProvider(nil, "sso", settings)
	require.NoError(t, err)

	oidcProvider := provider.(*AuthProvider)

	// the issuer is briefly unavailable for the first login attempt
	_, err = oidcProvider.LoginURL(context.Background(), "state123")
	require.Error(t, err)

	// once it recovers, the next attempt must succeed
	loginURL, err := oidcProvider.LoginURL(context.Background(), "state123")
	require.NoError(t, err)
	assert.Contains(t, loginURL, server.URL+"/auth")
	assert.Contains(t, loginURL, "state=state123")
}

func TestGenerateStateToken(t *testing.T) {
	first, err := GenerateStateToken()
	require.NoError(t, err)

	second, err := GenerateStateToken()
	require.NoError(t, err)

	assert.NotEqual(t, first, second)

	raw, err := base64.URLEncoding.DecodeString(first)
	require.NoError(t, err)
	assert.Len(t, raw, 32)
}
