// Package static provides authentication and identity backends fed from
// static configuration tables. They exist for development setups and
// tests and should never back a production system.
package static

import (
	"context"
	"crypto/subtle"
	"fmt"
	"iter"
	"reflect"
	"sort"
	"strings"

	"github.com/alexedwards/argon2id"

	"github.com/GoMultiAuth/GoMultiAuth/internal/multiauth"
)

// TypeAuth is the configuration type name of the static auth provider.
const TypeAuth = "static"

// TypeIdentity is the configuration type name of the static identity
// provider.
const TypeIdentity = "static"

type authSettings struct {
	Title string `toml:"title"`
	// Users maps usernames to either a plaintext password or an
	// argon2id hash ("$argon2id$...").
	Users map[string]string `toml:"users"`
}

// AuthProvider authenticates against a static user table.
type AuthProvider struct {
	multiauth.ProviderBase

	users map[string]string
}

// AuthProviderType returns the registration record for the static auth
// provider.
func AuthProviderType() multiauth.AuthProviderType {
	return multiauth.AuthProviderType{
		Type:          TypeAuth,
		MultiInstance: true,
		New:           newAuthProvider,
	}
}

func newAuthProvider(_ *multiauth.MultiAuth, name string, settings multiauth.Settings) (multiauth.AuthProvider, error) {
	var cfg authSettings

	if err := settings.Decode(&cfg); err != nil {
		return nil, err
	}

	return &AuthProvider{
		ProviderBase: multiauth.NewProviderBase(name, cfg.Title),
		users:        cfg.Users,
	}, nil
}

// Login implements multiauth.LocalLoginProvider.
func (p *AuthProvider) Login(_ context.Context, credentials multiauth.Fields) (*multiauth.AuthInfo, error) {
	username := credentials.String("username")
	password := credentials.String("password")

	expected, ok := p.users[username]
	if !ok {
		return nil, &multiauth.AuthenticationFailed{Reason: "no such user"}
	}

	if !verifyPassword(expected, password) {
		return nil, &multiauth.AuthenticationFailed{Reason: "invalid password"}
	}

	return multiauth.NewAuthInfo(p.Name(), multiauth.Fields{"username": username})
}

func verifyPassword(expected, supplied string) bool {
	if strings.HasPrefix(expected, "$argon2id$") {
		match, err := argon2id.ComparePasswordAndHash(supplied, expected)
		return err == nil && match
	}

	return subtle.ConstantTimeCompare([]byte(expected), []byte(supplied)) == 1
}

type identitySettings struct {
	Title string `toml:"title"`
	// Identities maps user identifiers to their attribute records.
	Identities map[string]map[string]any `toml:"identities"`
	// Groups maps group names to their member identifiers.
	Groups map[string][]string `toml:"groups"`
	// Mapping renames application-level keys to record keys.
	Mapping map[string]string `toml:"mapping"`
}

// IdentityProvider serves identities and groups from static tables. It
// supports searching, refreshing and group membership.
type IdentityProvider struct {
	multiauth.IdentityBase

	identities map[string]multiauth.Fields
	groups     map[string][]string
}

// IdentityProviderType returns the registration record for the static
// identity provider.
func IdentityProviderType() multiauth.IdentityProviderType {
	return multiauth.IdentityProviderType{
		Type:          TypeIdentity,
		MultiInstance: true,
		New:           newIdentityProvider,
	}
}

func newIdentityProvider(broker *multiauth.MultiAuth, name string, settings multiauth.Settings) (multiauth.IdentityProvider, error) {
	var cfg identitySettings

	if err := settings.Decode(&cfg); err != nil {
		return nil, err
	}

	identities := make(map[string]multiauth.Fields, len(cfg.Identities))
	for id, record := range cfg.Identities {
		identities[id] = multiauth.Fields(record)
	}

	return &IdentityProvider{
		IdentityBase: multiauth.IdentityBase{
			ProviderBase: multiauth.NewProviderBase(name, cfg.Title),
			Mapping:      cfg.Mapping,
			InfoKeys:     broker.UserInfoKeys(),
		},
		identities: identities,
		groups:     cfg.Groups,
	}, nil
}

func (p *IdentityProvider) userInfo(identifier string) *multiauth.UserInfo {
	record, ok := p.identities[identifier]
	if !ok {
		return nil
	}

	return &multiauth.UserInfo{
		Provider:    p.Name(),
		Identifier:  identifier,
		Data:        multiauth.MapFields(record, p.Mapping, p.InfoKeys),
		RefreshData: multiauth.Fields{multiauth.RefreshProviderKey: p.Name()},
	}
}

// GetUserFromAuth implements multiauth.IdentityProvider. The static
// provider identifies users by the "username" claim.
func (p *IdentityProvider) GetUserFromAuth(_ context.Context, authInfo *multiauth.AuthInfo) (*multiauth.UserInfo, error) {
	return p.userInfo(authInfo.Data().String("username")), nil
}

// RefreshUser implements multiauth.UserRefresher.
func (p *IdentityProvider) RefreshUser(_ context.Context, identifier string, _ multiauth.Fields) (*multiauth.UserInfo, error) {
	return p.userInfo(identifier), nil
}

// SearchUsers implements multiauth.UserSearcher. Every criterion must
// match; with exact disabled, string values match on substrings.
func (p *IdentityProvider) SearchUsers(_ context.Context, criteria multiauth.Fields, exact bool) iter.Seq2[*multiauth.UserInfo, error] {
	return func(yield func(*multiauth.UserInfo, error) bool) {
		for _, identifier := range sortedKeys(p.identities) {
			if !matches(p.identities[identifier], criteria, exact) {
				continue
			}

			if !yield(p.userInfo(identifier), nil) {
				return
			}
		}
	}
}

func matches(record, criteria multiauth.Fields, exact bool) bool {
	for key, wanted := range criteria {
		have, ok := record[key]
		if !ok {
			return false
		}

		if exact {
			// record attributes may hold slices, which == would panic on
			if !reflect.DeepEqual(have, wanted) {
				return false
			}

			continue
		}

		haveStr := fmt.Sprintf("%v", have)
		wantedStr := fmt.Sprintf("%v", wanted)

		if !strings.Contains(haveStr, wantedStr) {
			return false
		}
	}

	return true
}

// GetGroup implements multiauth.GroupProvider.
func (p *IdentityProvider) GetGroup(_ context.Context, name string) (multiauth.Group, error) {
	members, ok := p.groups[name]
	if !ok {
		return nil, nil
	}

	return &group{provider: p, name: name, members: members}, nil
}

// SearchGroups implements multiauth.GroupProvider.
func (p *IdentityProvider) SearchGroups(_ context.Context, name string, exact bool) iter.Seq2[multiauth.Group, error] {
	return func(yield func(multiauth.Group, error) bool) {
		for _, groupName := range sortedKeys(p.groups) {
			if exact && groupName != name {
				continue
			}

			if !exact && !strings.Contains(groupName, name) {
				continue
			}

			if !yield(&group{provider: p, name: groupName, members: p.groups[groupName]}, nil) {
				return
			}
		}
	}
}

type group struct {
	provider *IdentityProvider
	name     string
	members  []string
}

func (g *group) Info() multiauth.GroupInfo {
	return multiauth.GroupInfo{Provider: g.provider.Name(), Name: g.name}
}

func (g *group) HasUser(_ context.Context, identifier string) (bool, error) {
	for _, member := range g.members {
		if member == identifier {
			return true, nil
		}
	}

	return false, nil
}

// Members implements multiauth.MemberLister.
func (g *group) Members(_ context.Context) iter.Seq2[*multiauth.UserInfo, error] {
	return func(yield func(*multiauth.UserInfo, error) bool) {
		for _, member := range g.members {
			info := g.provider.userInfo(member)
			if info == nil {
				continue
			}

			if !yield(info, nil) {
				return
			}
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
