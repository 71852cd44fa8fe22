package multiauth

import (
	"context"
	"iter"
	"net/url"
)

// AuthProvider verifies credentials and produces an AuthInfo. A provider
// implements exactly one of the two login styles: LocalLoginProvider for
// form-based credentials handled by this application, or
// ExternalLoginProvider for redirect-based handshakes with a third party.
type AuthProvider interface {
	// Name is the configured instance name of the provider.
	Name() string
	// Title is the human-readable name shown on the login selector.
	Title() string
}

// LocalLoginProvider is an auth provider that consumes credentials
// submitted through a login form.
type LocalLoginProvider interface {
	AuthProvider

	// Login verifies the submitted credentials and returns the claims
	// identifying the user. Invalid credentials are reported as an
	// *AuthenticationFailed error.
	Login(ctx context.Context, credentials Fields) (*AuthInfo, error)
}

// ExternalLoginProvider is an auth provider that delegates credential
// verification to a third-party service via redirects.
type ExternalLoginProvider interface {
	AuthProvider

	// LoginURL returns the third-party URL to redirect the user to.
	// The state value must be carried through the handshake for CSRF
	// protection.
	LoginURL(ctx context.Context, state string) (string, error)

	// HandleCallback completes the handshake using the query parameters
	// the third party appended to the callback request.
	HandleCallback(ctx context.Context, query url.Values) (*AuthInfo, error)
}

// IdentityProvider stores and looks up canonical user records. Optional
// capabilities are expressed through the UserSearcher, UserRefresher and
// GroupProvider interfaces; the broker checks for them with type
// assertions and skips providers that lack the required capability.
type IdentityProvider interface {
	// Name is the configured instance name of the provider.
	Name() string
	// Title is the human-readable name of the provider.
	Title() string

	// GetUserFromAuth resolves authentication claims into a canonical
	// user record. It returns (nil, nil) when no matching user exists;
	// this is not an error at the provider level.
	GetUserFromAuth(ctx context.Context, authInfo *AuthInfo) (*UserInfo, error)

	// MapSearchCriteria renames application-level criteria keys to the
	// provider's native attribute names.
	MapSearchCriteria(criteria Fields) Fields
}

// UserSearcher is an identity provider that supports searching users.
type UserSearcher interface {
	IdentityProvider

	// SearchUsers lazily yields every user matching the criteria. When
	// exact is false, substring matches are performed.
	SearchUsers(ctx context.Context, criteria Fields, exact bool) iter.Seq2[*UserInfo, error]
}

// UserRefresher is an identity provider that can re-fetch a previously
// issued user record from its refresh data.
type UserRefresher interface {
	IdentityProvider

	// RefreshUser returns fresh data for the user previously issued with
	// the given identifier and refresh data, or (nil, nil) if the user
	// no longer exists.
	RefreshUser(ctx context.Context, identifier string, refreshData Fields) (*UserInfo, error)
}

// GroupProvider is an identity provider that also stores groups and
// membership information.
type GroupProvider interface {
	IdentityProvider

	// GetGroup returns the named group, or (nil, nil) if it does not exist.
	GetGroup(ctx context.Context, name string) (Group, error)

	// SearchGroups lazily yields every group whose name matches. When
	// exact is false, substring matches are performed.
	SearchGroups(ctx context.Context, name string, exact bool) iter.Seq2[Group, error]
}

// Group is a group held by an identity provider.
type Group interface {
	// Info returns the provider-scoped identity of the group.
	Info() GroupInfo

	// HasUser checks whether the user with the given identifier is a
	// member of the group, including nested memberships where the
	// backend supports them.
	HasUser(ctx context.Context, identifier string) (bool, error)
}

// MemberLister is a group whose member list can be enumerated.
type MemberLister interface {
	Group

	// Members lazily yields every user in the group.
	Members(ctx context.Context) iter.Seq2[*UserInfo, error]
}

// ProviderBase carries the name and title shared by all provider
// implementations. Embed it and pass the configured instance name plus
// the optional "title" setting.
type ProviderBase struct {
	ProviderName  string
	ProviderTitle string
}

// NewProviderBase builds a ProviderBase from the instance name and
// settings, defaulting the title to the name.
func NewProviderBase(name, title string) ProviderBase {
	if title == "" {
		title = name
	}

	return ProviderBase{ProviderName: name, ProviderTitle: title}
}

// Name implements AuthProvider and IdentityProvider.
func (b ProviderBase) Name() string { return b.ProviderName }

// Title implements AuthProvider and IdentityProvider.
func (b ProviderBase) Title() string { return b.ProviderTitle }

// IdentityBase extends ProviderBase with the criteria mapping every
// identity provider carries.
type IdentityBase struct {
	ProviderBase

	// Mapping renames application-level keys to provider-native
	// attribute names (application key -> provider key).
	Mapping map[string]string

	// InfoKeys restricts the canonical attribute set returned in
	// UserInfo.Data. Empty means all attributes.
	InfoKeys []string
}

// MapSearchCriteria implements IdentityProvider.
func (b IdentityBase) MapSearchCriteria(criteria Fields) Fields {
	if len(b.Mapping) == 0 {
		return criteria.Clone()
	}

	out := make(Fields, len(criteria))

	for key, value := range criteria {
		if mapped, ok := b.Mapping[key]; ok {
			key = mapped
		}

		out[key] = value
	}

	return out
}
