package ldapauth

import (
	"context"
	"iter"

	"github.com/go-ldap/ldap/v3"

	"github.com/GoMultiAuth/GoMultiAuth/internal/multiauth"
)

type identitySettings struct {
	Title string `toml:"title"`
	// Mapping renames application-level keys to directory attributes.
	Mapping map[string]string `toml:"mapping"`
}

// IdentityProvider serves identities and groups from a directory. Users
// are keyed by the configured identifier attribute; group membership
// resolution supports both plain groupOfNames trees and the Active
// Directory tokenGroups mechanism.
type IdentityProvider struct {
	multiauth.IdentityBase

	settings *Settings
}

// IdentityProviderType returns the registration record for the LDAP
// identity provider.
func IdentityProviderType() multiauth.IdentityProviderType {
	return multiauth.IdentityProviderType{
		Type:          Type,
		MultiInstance: true,
		New:           newIdentityProvider,
	}
}

func newIdentityProvider(broker *multiauth.MultiAuth, name string, settings multiauth.Settings) (multiauth.IdentityProvider, error) {
	var cfg identitySettings

	if err := settings.Decode(&cfg); err != nil {
		return nil, err
	}

	ldapSettings, err := DecodeSettings(settings)
	if err != nil {
		return nil, err
	}

	return &IdentityProvider{
		IdentityBase: multiauth.IdentityBase{
			ProviderBase: multiauth.NewProviderBase(name, cfg.Title),
			Mapping:      cfg.Mapping,
			InfoKeys:     broker.UserInfoKeys(),
		},
		settings: ldapSettings,
	}, nil
}

// userAttributes is the attribute list requested for user entries: the
// identifier attribute plus every attribute the info keys map to. An
// empty info key set requests all attributes.
func (p *IdentityProvider) userAttributes() []string {
	if len(p.InfoKeys) == 0 {
		return nil
	}

	attrs := []string{p.settings.UIDAttr}

	for _, key := range p.InfoKeys {
		attr := key
		if mapped, ok := p.Mapping[key]; ok {
			attr = mapped
		}

		attrs = append(attrs, attr)
	}

	return attrs
}

// entryFields flattens a directory entry into an attribute record.
// Single-valued attributes become strings, multi-valued ones string
// slices and attributes without values nil.
func entryFields(entry *ldap.Entry) multiauth.Fields {
	fields := make(multiauth.Fields, len(entry.Attributes))

	for _, attr := range entry.Attributes {
		switch len(attr.Values) {
		case 0:
			fields[attr.Name] = nil
		case 1:
			fields[attr.Name] = attr.Values[0]
		default:
			fields[attr.Name] = append([]string(nil), attr.Values...)
		}
	}

	return fields
}

func (p *IdentityProvider) userInfo(entry *ldap.Entry) *multiauth.UserInfo {
	return &multiauth.UserInfo{
		Provider:    p.Name(),
		Identifier:  attributeValue(entry, p.settings.UIDAttr),
		Data:        multiauth.MapFields(entryFields(entry), p.Mapping, p.InfoKeys),
		RefreshData: multiauth.Fields{multiauth.RefreshProviderKey: p.Name()},
	}
}

func (p *IdentityProvider) getUser(ctx context.Context, identifier string) (*multiauth.UserInfo, error) {
	if identifier == "" {
		return nil, nil
	}

	session, release := acquireSession(ctx)
	defer release()

	conn, err := session.Conn(p.settings)
	if err != nil {
		return nil, err
	}

	userDN, entry, err := conn.GetUserByID(identifier, p.userAttributes())
	if err != nil {
		return nil, err
	}

	if userDN == "" {
		return nil, nil
	}

	return p.userInfo(entry), nil
}

// GetUserFromAuth implements multiauth.IdentityProvider. The directory
// record is located by the "identifier" claim.
func (p *IdentityProvider) GetUserFromAuth(ctx context.Context, authInfo *multiauth.AuthInfo) (*multiauth.UserInfo, error) {
	return p.getUser(ctx, authInfo.Data().String("identifier"))
}

// RefreshUser implements multiauth.UserRefresher.
func (p *IdentityProvider) RefreshUser(ctx context.Context, identifier string, _ multiauth.Fields) (*multiauth.UserInfo, error) {
	return p.getUser(ctx, identifier)
}

// SearchUsers implements multiauth.UserSearcher. The criteria arrive
// already renamed to directory attributes; the filter is built without
// further mapping.
func (p *IdentityProvider) SearchUsers(ctx context.Context, criteria multiauth.Fields, exact bool) iter.Seq2[*multiauth.UserInfo, error] {
	return func(yield func(*multiauth.UserInfo, error) bool) {
		filter := BuildSearchFilter(criteria, p.settings.UserFilter, nil, exact)
		if filter == "" {
			yield(nil, &multiauth.UserRetrievalFailed{Reason: "unable to generate search filter"})
			return
		}

		session, release := acquireSession(ctx)
		defer release()

		conn, err := session.Conn(p.settings)
		if err != nil {
			yield(nil, err)
			return
		}

		for entry, err := range conn.Search(p.settings.UserBase, filter, p.userAttributes()) {
			if err != nil {
				yield(nil, err)
				return
			}

			if !yield(p.userInfo(entry), nil) {
				return
			}
		}
	}
}

// GetGroup implements multiauth.GroupProvider.
func (p *IdentityProvider) GetGroup(ctx context.Context, name string) (multiauth.Group, error) {
	session, release := acquireSession(ctx)
	defer release()

	conn, err := session.Conn(p.settings)
	if err != nil {
		return nil, err
	}

	groupDN, entry, err := conn.GetGroupByID(name, []string{p.settings.GIDAttr})
	if err != nil {
		return nil, err
	}

	if groupDN == "" {
		return nil, nil
	}

	return &Group{
		provider: p,
		name:     attributeValue(entry, p.settings.GIDAttr),
		dn:       groupDN,
	}, nil
}

// SearchGroups implements multiauth.GroupProvider.
func (p *IdentityProvider) SearchGroups(ctx context.Context, name string, exact bool) iter.Seq2[multiauth.Group, error] {
	return func(yield func(multiauth.Group, error) bool) {
		filter := BuildSearchFilter(
			multiauth.Fields{p.settings.GIDAttr: name},
			p.settings.GroupFilter,
			nil,
			exact,
		)
		if filter == "" {
			yield(nil, &multiauth.GroupRetrievalFailed{Reason: "unable to generate search filter"})
			return
		}

		session, release := acquireSession(ctx)
		defer release()

		conn, err := session.Conn(p.settings)
		if err != nil {
			yield(nil, err)
			return
		}

		for entry, err := range conn.Search(p.settings.GroupBase, filter, []string{p.settings.GIDAttr}) {
			if err != nil {
				yield(nil, err)
				return
			}

			group := &Group{
				provider: p,
				name:     attributeValue(entry, p.settings.GIDAttr),
				dn:       entry.DN,
			}

			if !yield(group, nil) {
				return
			}
		}
	}
}
