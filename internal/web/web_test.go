package web_test

import (
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/encryptcookie"
	memorystorage "github.com/gofiber/storage/memory/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoMultiAuth/GoMultiAuth/internal/config"
	"github.com/GoMultiAuth/GoMultiAuth/internal/multiauth"
	"github.com/GoMultiAuth/GoMultiAuth/internal/providers/ldapauth"
	"github.com/GoMultiAuth/GoMultiAuth/internal/providers/static"
	"github.com/GoMultiAuth/GoMultiAuth/internal/web"
	"github.com/GoMultiAuth/GoMultiAuth/internal/web/session"
)

func newTestService(t *testing.T, mutate ...func(*config.Config)) *web.Service {
	t.Helper()

	session.Init(memorystorage.New())

	broker := multiauth.New()
	require.NoError(t, broker.RegisterAuthProviderType(static.AuthProviderType()))
	require.NoError(t, broker.RegisterIdentityProviderType(static.IdentityProviderType()))
	broker.OnUserResolved(func([]*multiauth.UserInfo) {})

	err := broker.Initialize(multiauth.Options{
		AuthProviders: map[string]multiauth.Settings{
			"local": {
				"type":  "static",
				"users": map[string]any{"jdoe": "secret"},
			},
		},
		IdentityProviders: map[string]multiauth.Settings{
			"people": {
				"type": "static",
				"identities": map[string]any{
					"jdoe": map[string]any{"username": "jdoe", "email": "jdoe@example.com"},
				},
			},
		},
		ProviderMap: map[string]any{"local": "people"},
		RequireUser: true,
	})
	require.NoError(t, err)

	cfg := &config.Config{
		Title: "TestApp",
		Webserver: config.Webserver{
			Port: 8080,
			URL:  "http://localhost:8080",
		},
		MultiAuth: config.MultiAuth{
			AuthProviders: map[string]map[string]any{"local": {"type": "static"}},
		},
	}

	for _, m := range mutate {
		m(cfg)
	}

	return web.New(cfg, broker)
}

func sessionCookie(t *testing.T, resp *http.Response) string {
	t.Helper()

	for _, cookie := range resp.Cookies() {
		if cookie.Name == "session" {
			return cookie.Value
		}
	}

	return ""
}

func doRequest(t *testing.T, service *web.Service, method, target, cookie string, form url.Values) *http.Response {
	t.Helper()

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: "session", Value: cookie})
	}

	resp, err := service.App.Test(req)
	require.NoError(t, err)

	return resp
}

func TestLogin_SingleProviderSkipsSelector(t *testing.T) {
	service := newTestService(t)

	resp := doRequest(t, service, http.MethodGet, "/login", "", nil)

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login/local", resp.Header.Get("Location"))
}

func TestLogin_FormRenders(t *testing.T) {
	service := newTestService(t)

	resp := doRequest(t, service, http.MethodGet, "/login/local", "", nil)

	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `action="/login/local"`)
}

func TestLogin_UnknownProvider(t *testing.T) {
	service := newTestService(t)

	resp := doRequest(t, service, http.MethodGet, "/login/nope", "", nil)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLogin_Success(t *testing.T) {
	service := newTestService(t)

	resp := doRequest(t, service, http.MethodPost, "/login/local", "", url.Values{
		"username": {"jdoe"},
		"password": {"secret"},
	})

	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/profile", resp.Header.Get("Location"))

	cookie := sessionCookie(t, resp)
	require.NotEmpty(t, cookie)

	// the profile page shows the resolved identity
	profileResp := doRequest(t, service, http.MethodGet, "/profile", cookie, nil)
	require.Equal(t, http.StatusOK, profileResp.StatusCode)

	body, err := io.ReadAll(profileResp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "jdoe")
	assert.Contains(t, string(body), "people")
	assert.Contains(t, string(body), "jdoe@example.com")
}

func TestLogin_BadPasswordShowsFlashOnce(t *testing.T) {
	service := newTestService(t)

	resp := doRequest(t, service, http.MethodPost, "/login/local", "", url.Values{
		"username": {"jdoe"},
		"password": {"wrong"},
	})

	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	cookie := sessionCookie(t, resp)
	require.NotEmpty(t, cookie)

	// the failed flag keeps the selector visible and shows the flash
	selector := doRequest(t, service, http.MethodGet, "/login", cookie, nil)
	require.Equal(t, http.StatusOK, selector.StatusCode)

	body, err := io.ReadAll(selector.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "invalid credentials")

	// both are one-shot: the next visit auto-redirects again
	again := doRequest(t, service, http.MethodGet, "/login", cookie, nil)
	assert.Equal(t, http.StatusFound, again.StatusCode)
	assert.Equal(t, "/login/local", again.Header.Get("Location"))
}

func TestAuthMiddleware_RedirectsAnonymous(t *testing.T) {
	service := newTestService(t)

	resp := doRequest(t, service, http.MethodGet, "/profile", "", nil)

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
}

func TestAuthMiddleware_DeepLinkSurvivesFirstVisit(t *testing.T) {
	service := newTestService(t)

	// a first-time visitor has no session yet; the middleware must still
	// remember where they wanted to go
	resp := doRequest(t, service, http.MethodGet, "/profile?tab=groups", "", nil)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	cookie := sessionCookie(t, resp)
	require.NotEmpty(t, cookie)

	login := doRequest(t, service, http.MethodPost, "/login/local", cookie, url.Values{
		"username": {"jdoe"},
		"password": {"secret"},
	})

	require.Equal(t, http.StatusFound, login.StatusCode)
	assert.Equal(t, "/profile?tab=groups", login.Header.Get("Location"))
}

func TestLogin_ConfiguredFailureMessage(t *testing.T) {
	service := newTestService(t, func(cfg *config.Config) {
		cfg.MultiAuth.FailureMessage = "Login failed: {error}"
		cfg.MultiAuth.FailureCategory = "warning"
	})

	resp := doRequest(t, service, http.MethodPost, "/login/local", "", url.Values{
		"username": {"jdoe"},
		"password": {"wrong"},
	})

	cookie := sessionCookie(t, resp)
	require.NotEmpty(t, cookie)

	selector := doRequest(t, service, http.MethodGet, "/login", cookie, nil)
	require.Equal(t, http.StatusOK, selector.StatusCode)

	body, err := io.ReadAll(selector.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Login failed: invalid credentials")
	assert.Contains(t, string(body), `class="flash warning"`)
}

func TestLogin_TemplateOverride(t *testing.T) {
	service := newTestService(t, func(cfg *config.Config) {
		cfg.MultiAuth.LoginFormTemplate = "login"
	})

	resp := doRequest(t, service, http.MethodGet, "/login/local", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	// the configured template renders instead of the default form
	assert.Contains(t, string(body), `<ul class="providers">`)
	assert.NotContains(t, string(body), `action="/login/local"`)
}

func TestRequestSharesDirectoryConnectionCache(t *testing.T) {
	service := newTestService(t)

	service.App.Get("/sessioncheck", func(c *fiber.Ctx) error {
		if _, ok := ldapauth.SessionFromContext(c.UserContext()); !ok {
			return c.SendStatus(fiber.StatusInternalServerError)
		}

		return c.SendStatus(fiber.StatusOK)
	})

	login := doRequest(t, service, http.MethodPost, "/login/local", "", url.Values{
		"username": {"jdoe"},
		"password": {"secret"},
	})
	cookie := sessionCookie(t, login)
	require.NotEmpty(t, cookie)

	resp := doRequest(t, service, http.MethodGet, "/sessioncheck", cookie, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCookieEncryption(t *testing.T) {
	service := newTestService(t, func(cfg *config.Config) {
		cfg.Webserver.CookieEncryptionKey = encryptcookie.GenerateKey()
	})

	login := doRequest(t, service, http.MethodPost, "/login/local", "", url.Values{
		"username": {"jdoe"},
		"password": {"secret"},
	})
	require.Equal(t, http.StatusFound, login.StatusCode)

	cookie := sessionCookie(t, login)
	require.NotEmpty(t, cookie)

	// the wire value is ciphertext, not the raw session ID
	_, err := hex.DecodeString(cookie)
	assert.True(t, err != nil || len(cookie) != 64, "session cookie is not encrypted")

	// the encrypted cookie still authenticates the browser
	profile := doRequest(t, service, http.MethodGet, "/profile", cookie, nil)
	assert.Equal(t, http.StatusOK, profile.StatusCode)
}

func TestLogout_ClearsSession(t *testing.T) {
	service := newTestService(t)

	login := doRequest(t, service, http.MethodPost, "/login/local", "", url.Values{
		"username": {"jdoe"},
		"password": {"secret"},
	})
	cookie := sessionCookie(t, login)
	require.NotEmpty(t, cookie)

	logout := doRequest(t, service, http.MethodPost, "/logout", cookie, nil)
	assert.Equal(t, http.StatusFound, logout.StatusCode)

	// the old session no longer grants access
	resp := doRequest(t, service, http.MethodGet, "/profile", cookie, nil)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
}
