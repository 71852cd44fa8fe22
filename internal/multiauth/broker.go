package multiauth

import (
	"context"
	"fmt"
	"iter"
	"sort"

	"github.com/rs/zerolog/log"
)

// Options carries everything the broker needs at initialization time.
// The provider entries come straight from configuration: a map of
// instance name to settings including the "type" key.
type Options struct {
	// AuthProviders configures the named authentication providers.
	AuthProviders map[string]Settings
	// IdentityProviders configures the named identity providers.
	IdentityProviders map[string]Settings
	// ProviderMap is the raw linking configuration, normalized via
	// CanonicalProviderMap during initialization.
	ProviderMap map[string]any
	// AllMatchingUsers collects every identity provider match instead of
	// stopping at the first one.
	AllMatchingUsers bool
	// RequireUser treats zero matches during login as an error.
	RequireUser bool
	// UserInfoKeys restricts the canonical attribute set identity
	// providers return. Empty means no restriction.
	UserInfoKeys []string
}

// UserCallback receives the outcome of a resolved login. With
// AllMatchingUsers enabled it gets every match in link order; otherwise
// it gets at most one element, and none when no user was found and
// RequireUser is off.
type UserCallback func(users []*UserInfo)

// MultiAuth is the authentication/identity broker. It decouples how a
// user proves who they are (auth providers) from where the user records
// live (identity providers), resolving each successful authentication
// through the configured provider map.
//
// A broker is built once per application: register the provider types,
// call Initialize with the configuration, register the user callback and
// then serve logins. All state is read-only after Initialize, so a
// broker is safe for concurrent use.
type MultiAuth struct {
	authTypes     map[string]AuthProviderType
	identityTypes map[string]IdentityProviderType

	opts              Options
	authProviders     map[string]AuthProvider
	identityProviders map[string]IdentityProvider
	authOrder         []string
	identityOrder     []string
	providerMap       ProviderMap

	userCallback UserCallback
}

// New creates an empty broker. Provider types must be registered before
// Initialize is called.
func New() *MultiAuth {
	return &MultiAuth{
		authTypes:     make(map[string]AuthProviderType),
		identityTypes: make(map[string]IdentityProviderType),
	}
}

// Initialize instantiates all configured providers, normalizes the
// provider map and validates the linkage. It must be called exactly once
// before the broker is used; any error it returns is fatal and the
// application must not start.
func (ma *MultiAuth) Initialize(opts Options) error {
	if ma.authProviders != nil {
		return fmt.Errorf("%w: broker is already initialized", ErrConfiguration)
	}

	ma.opts = opts

	authProviders, err := ma.createAuthProviders(opts.AuthProviders)
	if err != nil {
		return err
	}

	identityProviders, err := ma.createIdentityProviders(opts.IdentityProviders)
	if err != nil {
		return err
	}

	providerMap, err := CanonicalProviderMap(opts.ProviderMap)
	if err != nil {
		return err
	}

	if err := providerMap.Validate(authProviders, identityProviders); err != nil {
		return err
	}

	ma.authProviders = authProviders
	ma.identityProviders = identityProviders
	ma.authOrder = sortedKeys(authProviders)
	ma.identityOrder = sortedKeys(identityProviders)
	ma.providerMap = providerMap

	log.Info().
		Int("auth_providers", len(authProviders)).
		Int("identity_providers", len(identityProviders)).
		Msg("multiauth broker initialized")

	return nil
}

// OnUserResolved registers the callback that receives the final resolved
// identity (or list) after every successful login. Exactly one callback
// may be registered.
func (ma *MultiAuth) OnUserResolved(cb UserCallback) {
	ma.userCallback = cb
}

// UserInfoKeys returns the configured restriction of canonical user
// attributes, or nil when all attributes are returned.
func (ma *MultiAuth) UserInfoKeys() []string {
	return ma.opts.UserInfoKeys
}

// AllMatchingUsers reports whether logins collect every match.
func (ma *MultiAuth) AllMatchingUsers() bool {
	return ma.opts.AllMatchingUsers
}

// AuthProviders returns the active auth providers in stable name order.
func (ma *MultiAuth) AuthProviders() []AuthProvider {
	providers := make([]AuthProvider, 0, len(ma.authOrder))
	for _, name := range ma.authOrder {
		providers = append(providers, ma.authProviders[name])
	}

	return providers
}

// AuthProvider returns the named auth provider.
func (ma *MultiAuth) AuthProvider(name string) (AuthProvider, bool) {
	p, ok := ma.authProviders[name]
	return p, ok
}

// IdentityProvider returns the named identity provider.
func (ma *MultiAuth) IdentityProvider(name string) (IdentityProvider, bool) {
	p, ok := ma.identityProviders[name]
	return p, ok
}

// ProviderMap returns the canonical provider map.
func (ma *MultiAuth) ProviderMap() ProviderMap {
	return ma.providerMap
}

// HandleAuthInfo resolves a completed authentication into canonical user
// records and hands them to the registered callback.
//
// The auth provider's links are walked in configured order. Each link
// maps the authentication claims through its field mapping and asks the
// target identity provider for a matching user. Without AllMatchingUsers
// the walk stops at the first match. Zero matches with RequireUser set
// fail with *UserRetrievalFailed; this also holds when AllMatchingUsers
// is enabled and the collected list is empty.
//
// The resolved users are returned to the caller as well, in link order.
func (ma *MultiAuth) HandleAuthInfo(ctx context.Context, authInfo *AuthInfo) ([]*UserInfo, error) {
	if ma.userCallback == nil {
		return nil, fmt.Errorf("%w: register one using OnUserResolved", ErrNoUserCallback)
	}

	links, ok := ma.providerMap[authInfo.ProviderName()]
	if !ok {
		// Startup validation guarantees every auth provider is linked, so
		// this means the broker was bypassed or misassembled.
		return nil, fmt.Errorf("%w: %s", ErrProviderNotInMap, authInfo.ProviderName())
	}

	var users []*UserInfo

	for _, link := range links {
		provider, ok := ma.identityProviders[link.IdentityProvider]
		if !ok {
			return nil, fmt.Errorf("%w: identity provider vanished: %s", ErrConfiguration, link.IdentityProvider)
		}

		userInfo, err := provider.GetUserFromAuth(ctx, authInfo.WithMapping(link.Mapping))
		if err != nil {
			return nil, &UserRetrievalFailed{
				Reason: "identity lookup in " + link.IdentityProvider + " failed",
				Err:    err,
			}
		}

		if userInfo == nil {
			continue
		}

		users = append(users, userInfo)

		if !ma.opts.AllMatchingUsers {
			break
		}
	}

	if len(users) == 0 && ma.opts.RequireUser {
		return nil, &UserRetrievalFailed{Reason: "no user found"}
	}

	ma.userCallback(users)

	return users, nil
}

// SearchUsers fans the criteria out across every identity provider that
// supports searching, skipping providers excluded by the filter. Results
// from all providers are yielded lazily as one merged, non-deduplicated
// sequence. A nil providers filter searches everywhere.
func (ma *MultiAuth) SearchUsers(ctx context.Context, criteria Fields, providers []string, exact bool) iter.Seq2[*UserInfo, error] {
	filter := providerFilter(providers)

	return func(yield func(*UserInfo, error) bool) {
		for _, name := range ma.identityOrder {
			if filter != nil {
				if _, ok := filter[name]; !ok {
					continue
				}
			}

			searcher, ok := ma.identityProviders[name].(UserSearcher)
			if !ok {
				continue
			}

			for user, err := range searcher.SearchUsers(ctx, searcher.MapSearchCriteria(criteria), exact) {
				if !yield(user, err) {
					return
				}
			}
		}
	}
}

// SearchGroups searches groups by name across every identity provider
// with group support, honoring the provider filter. Results are yielded
// lazily as one merged sequence.
func (ma *MultiAuth) SearchGroups(ctx context.Context, name string, providers []string, exact bool) iter.Seq2[Group, error] {
	filter := providerFilter(providers)

	return func(yield func(Group, error) bool) {
		for _, providerName := range ma.identityOrder {
			if filter != nil {
				if _, ok := filter[providerName]; !ok {
					continue
				}
			}

			groupProvider, ok := ma.identityProviders[providerName].(GroupProvider)
			if !ok {
				continue
			}

			for group, err := range groupProvider.SearchGroups(ctx, name, exact) {
				if !yield(group, err) {
					return
				}
			}
		}
	}
}

// RefreshUser re-resolves a previously issued user record through the
// identity provider recorded in its refresh data.
func (ma *MultiAuth) RefreshUser(ctx context.Context, identifier string, refreshData Fields) (*UserInfo, error) {
	if refreshData == nil {
		return nil, &UserRetrievalFailed{Reason: "user cannot be refreshed"}
	}

	providerName := refreshData.String(RefreshProviderKey)

	provider, ok := ma.identityProviders[providerName]
	if !ok {
		return nil, &UserRetrievalFailed{Reason: "provider does not exist: " + providerName}
	}

	refresher, ok := provider.(UserRefresher)
	if !ok {
		return nil, &UserRetrievalFailed{Reason: "provider does not support refreshing: " + providerName}
	}

	return refresher.RefreshUser(ctx, identifier, refreshData)
}

// GetGroup returns a specific group from a specific identity provider.
func (ma *MultiAuth) GetGroup(ctx context.Context, providerName, name string) (Group, error) {
	provider, ok := ma.identityProviders[providerName]
	if !ok {
		return nil, &GroupRetrievalFailed{Reason: "provider does not exist: " + providerName}
	}

	groupProvider, ok := provider.(GroupProvider)
	if !ok {
		return nil, &GroupRetrievalFailed{Reason: "provider does not provide groups: " + providerName}
	}

	return groupProvider.GetGroup(ctx, name)
}

// IsUserInGroup checks if a user is a member of a group, including nested
// memberships where the backend supports them.
func (ma *MultiAuth) IsUserInGroup(ctx context.Context, providerName, userIdentifier, groupName string) (bool, error) {
	group, err := ma.GetGroup(ctx, providerName, groupName)
	if err != nil {
		return false, err
	}

	if group == nil {
		return false, &GroupRetrievalFailed{Reason: "group does not exist: " + groupName}
	}

	return group.HasUser(ctx, userIdentifier)
}

func providerFilter(providers []string) map[string]struct{} {
	if providers == nil {
		return nil
	}

	filter := make(map[string]struct{}, len(providers))
	for _, name := range providers {
		filter[name] = struct{}{}
	}

	return filter
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
