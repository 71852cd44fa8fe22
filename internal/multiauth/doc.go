// Package multiauth implements the authentication/identity broker core.
//
// The broker separates two concerns that are usually conflated: how a
// user proves who they are (authentication providers: local forms,
// external SSO handshakes, LDAP binds) and where the canonical user and
// group records live (identity providers: LDAP directories, SQL stores,
// static tables). A configurable provider map links the two sides, so a
// single login can resolve into zero, one or many canonical identities.
//
// # Lifecycle
//
// A MultiAuth broker is assembled once per application by the
// composition root:
//
//	ma := multiauth.New()
//	_ = ma.RegisterAuthProviderType(static.AuthProviderType())
//	_ = ma.RegisterIdentityProviderType(ldapauth.IdentityProviderType())
//	if err := ma.Initialize(opts); err != nil {
//	    // fatal: the application must not start
//	}
//	ma.OnUserResolved(func(users []*multiauth.UserInfo) { ... })
//
// Initialize instantiates every configured provider, normalizes the
// provider map into its canonical form and validates the linkage,
// reporting every unlinked auth provider and every broken identity
// provider reference in a single error. After Initialize the broker is
// immutable and safe for concurrent use.
//
// # Resolution
//
// HandleAuthInfo turns the AuthInfo produced by an auth provider into
// canonical UserInfo records by walking the provider map links in order,
// renaming the claims through each link's field mapping and querying the
// linked identity provider. The AllMatchingUsers and RequireUser options
// control whether every match is collected and whether zero matches is
// an error.
//
// # Capabilities
//
// Optional identity provider features are plain Go interfaces:
// UserSearcher, UserRefresher and GroupProvider. The broker discovers
// them with type assertions and skips providers that lack the capability
// a query needs, so implementations only declare what they support.
package multiauth
