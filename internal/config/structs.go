package config

import (
	"time"

	"github.com/GoMultiAuth/GoMultiAuth/internal/logger"
	"github.com/GoMultiAuth/GoMultiAuth/internal/multiauth"
)

// Session settings.
type Session struct {
	ExpiryTime time.Duration
}

// Config overall data structure.
type Config struct {
	DevMode   bool // enable dev mode for development
	DB        DB
	Log       logger.Log
	Title     string
	Webserver Webserver
	MultiAuth MultiAuth
}

// Webserver implement webserver settings.
type Webserver struct {
	BrowseStatic        bool    // enable static file browsing (for development purposes only)
	DisableRecover      bool    // disable recover middleware
	Domain              string  // cookie domain for the webserver
	Port                int     // listening port for the webserver
	ShutDownTime        int     // wait time for shutdown
	URL                 string  // base url for the webserver
	CookieEncryptionKey string  // base64 key for cookie encryption, empty disables it
	Session             Session // session settings
}

// DB holds the database configuration settings.
type DB struct {
	Extras     string
	Host       string
	Port       int
	User       string
	Password   string
	Name       string
	GormEngine string
}

// MultiAuth holds the provider configuration and resolution policy.
type MultiAuth struct {
	// AuthProviders configures one auth provider per table; the "type"
	// key selects the implementation.
	AuthProviders map[string]map[string]any
	// IdentityProviders configures one identity provider per table.
	IdentityProviders map[string]map[string]any
	// ProviderMap links auth providers to the identity providers that
	// resolve their users.
	ProviderMap map[string]any
	// AllMatchingUsers resolves a login through every link instead of
	// stopping at the first match.
	AllMatchingUsers bool
	// RequireUser fails logins that resolve to no known user.
	RequireUser bool
	// UserInfoKeys restricts the attribute set of resolved users.
	UserInfoKeys []string
	// FailureMessage is flashed after a failed login; the "{error}"
	// placeholder is replaced with the failure detail. Empty shows the
	// detail alone.
	FailureMessage string
	// FailureCategory classifies the flash, e.g. "error" or "warning".
	// Defaults to "error".
	FailureCategory string
	// LoginSelectorTemplate overrides the provider selector template.
	LoginSelectorTemplate string
	// LoginFormTemplate overrides the credential form template.
	LoginFormTemplate string
}

// BrokerOptions converts the configuration into broker options.
func (m MultiAuth) BrokerOptions() multiauth.Options {
	return multiauth.Options{
		AuthProviders:     providerSettings(m.AuthProviders),
		IdentityProviders: providerSettings(m.IdentityProviders),
		ProviderMap:       m.ProviderMap,
		AllMatchingUsers:  m.AllMatchingUsers,
		RequireUser:       m.RequireUser,
		UserInfoKeys:      m.UserInfoKeys,
	}
}

func providerSettings(configured map[string]map[string]any) map[string]multiauth.Settings {
	out := make(map[string]multiauth.Settings, len(configured))

	for name, settings := range configured {
		out[name] = multiauth.Settings(settings)
	}

	return out
}
