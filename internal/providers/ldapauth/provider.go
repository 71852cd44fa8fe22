// Package ldapauth provides authentication, identity and group backends
// on top of an LDAP directory, including Active Directory.
package ldapauth

import (
	"context"
	"errors"

	"github.com/GoMultiAuth/GoMultiAuth/internal/multiauth"
)

// Type is the configuration type name of the LDAP providers.
const Type = "ldap"

type authSettings struct {
	Title string `toml:"title"`
}

// AuthProvider authenticates users against a directory: the username is
// resolved to a DN with the service connection, then the password is
// verified by binding as that DN.
type AuthProvider struct {
	multiauth.ProviderBase

	settings *Settings
}

// AuthProviderType returns the registration record for the LDAP auth
// provider.
func AuthProviderType() multiauth.AuthProviderType {
	return multiauth.AuthProviderType{
		Type:          Type,
		MultiInstance: true,
		New:           newAuthProvider,
	}
}

func newAuthProvider(_ *multiauth.MultiAuth, name string, settings multiauth.Settings) (multiauth.AuthProvider, error) {
	var cfg authSettings

	if err := settings.Decode(&cfg); err != nil {
		return nil, err
	}

	ldapSettings, err := DecodeSettings(settings)
	if err != nil {
		return nil, err
	}

	return &AuthProvider{
		ProviderBase: multiauth.NewProviderBase(name, cfg.Title),
		settings:     ldapSettings,
	}, nil
}

// Login implements multiauth.LocalLoginProvider.
func (p *AuthProvider) Login(ctx context.Context, credentials multiauth.Fields) (*multiauth.AuthInfo, error) {
	username := credentials.String("username")
	password := credentials.String("password")

	// An empty password must never reach the user bind: many servers
	// treat it as an anonymous bind and report success.
	if username == "" || password == "" {
		return nil, &multiauth.AuthenticationFailed{Reason: "username and password cannot be empty"}
	}

	session, release := acquireSession(ctx)
	defer release()

	conn, err := session.Conn(p.settings)
	if err != nil {
		return nil, err
	}

	userDN, entry, err := conn.GetUserByID(username, []string{p.settings.UIDAttr})
	if err != nil {
		return nil, err
	}

	if userDN == "" {
		return nil, &multiauth.AuthenticationFailed{Reason: "no such user"}
	}

	if err := checkCredentials(p.settings, userDN, password); err != nil {
		if errors.Is(err, ErrInvalidBindCredentials) {
			return nil, &multiauth.AuthenticationFailed{Reason: "invalid password", Err: err}
		}

		return nil, err
	}

	identifier := attributeValue(entry, p.settings.UIDAttr)
	if identifier == "" {
		identifier = username
	}

	return multiauth.NewAuthInfo(p.Name(), multiauth.Fields{"identifier": identifier})
}
