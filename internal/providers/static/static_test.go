package static

import (
	"context"
	"testing"

	"github.com/alexedwards/argon2id"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoMultiAuth/GoMultiAuth/internal/multiauth"
)

func newTestAuthProvider(t *testing.T, users map[string]string) multiauth.LocalLoginProvider {
	t.Helper()

	provider, err := newAuthProvider(multiauth.New(), "static", multiauth.Settings{
		"users": users,
	})
	require.NoError(t, err)

	return provider.(multiauth.LocalLoginProvider)
}

func TestAuthProvider_Login(t *testing.T) {
	p := newTestAuthProvider(t, map[string]string{"jdoe": "secret"})

	authInfo, err := p.Login(context.Background(), multiauth.Fields{
		"username": "jdoe",
		"password": "secret",
	})

	require.NoError(t, err)
	assert.Equal(t, "static", authInfo.ProviderName())
	assert.Equal(t, "jdoe", authInfo.Data().String("username"))
}

func TestAuthProvider_LoginFailures(t *testing.T) {
	p := newTestAuthProvider(t, map[string]string{"jdoe": "secret"})

	_, err := p.Login(context.Background(), multiauth.Fields{
		"username": "ghost",
		"password": "secret",
	})
	assert.True(t, multiauth.IsAuthenticationFailed(err))

	_, err = p.Login(context.Background(), multiauth.Fields{
		"username": "jdoe",
		"password": "wrong",
	})
	assert.True(t, multiauth.IsAuthenticationFailed(err))
}

func TestAuthProvider_ArgonHashedPassword(t *testing.T) {
	hash, err := argon2id.CreateHash("secret", argon2id.DefaultParams)
	require.NoError(t, err)

	p := newTestAuthProvider(t, map[string]string{"jdoe": hash})

	_, err = p.Login(context.Background(), multiauth.Fields{
		"username": "jdoe",
		"password": "secret",
	})
	assert.NoError(t, err)

	_, err = p.Login(context.Background(), multiauth.Fields{
		"username": "jdoe",
		"password": "wrong",
	})
	assert.True(t, multiauth.IsAuthenticationFailed(err))
}

func newTestIdentityProvider(t *testing.T) *IdentityProvider {
	t.Helper()

	provider, err := newIdentityProvider(multiauth.New(), "test", multiauth.Settings{
		"identities": map[string]map[string]any{
			"jdoe": {"uid": "jdoe", "mail": "jdoe@example.com"},
			"jane": {"uid": "jane", "mail": "jane@example.com"},
		},
		"groups": map[string][]string{
			"admins":   {"jdoe"},
			"everyone": {"jdoe", "jane"},
		},
		"mapping": map[string]string{"email": "mail"},
	})
	require.NoError(t, err)

	return provider.(*IdentityProvider)
}

func TestIdentityProvider_GetUserFromAuth(t *testing.T) {
	p := newTestIdentityProvider(t)

	authInfo, err := multiauth.NewAuthInfo("static", multiauth.Fields{"username": "jdoe"})
	require.NoError(t, err)

	user, err := p.GetUserFromAuth(context.Background(), authInfo)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "jdoe", user.Identifier)
	assert.Equal(t, "jdoe@example.com", user.Data["email"])
	assert.Equal(t, "test", user.RefreshData.String(multiauth.RefreshProviderKey))

	authInfo, err = multiauth.NewAuthInfo("static", multiauth.Fields{"username": "ghost"})
	require.NoError(t, err)

	user, err = p.GetUserFromAuth(context.Background(), authInfo)
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestIdentityProvider_RefreshUser(t *testing.T) {
	p := newTestIdentityProvider(t)

	user, err := p.RefreshUser(context.Background(), "jane", nil)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "jane", user.Identifier)

	user, err = p.RefreshUser(context.Background(), "ghost", nil)
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestIdentityProvider_SearchUsers(t *testing.T) {
	p := newTestIdentityProvider(t)

	var found []*multiauth.UserInfo

	for user, err := range p.SearchUsers(context.Background(), multiauth.Fields{"mail": "example.com"}, false) {
		require.NoError(t, err)
		found = append(found, user)
	}

	assert.Len(t, found, 2)

	found = nil

	for user, err := range p.SearchUsers(context.Background(), multiauth.Fields{"uid": "jane"}, true) {
		require.NoError(t, err)
		found = append(found, user)
	}

	require.Len(t, found, 1)
	assert.Equal(t, "jane", found[0].Identifier)
}

func TestIdentityProvider_Groups(t *testing.T) {
	p := newTestIdentityProvider(t)

	group, err := p.GetGroup(context.Background(), "admins")
	require.NoError(t, err)
	require.NotNil(t, group)

	ok, err := group.HasUser(context.Background(), "jdoe")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = group.HasUser(context.Background(), "jane")
	require.NoError(t, err)
	assert.False(t, ok)

	missing, err := p.GetGroup(context.Background(), "ghosts")
	require.NoError(t, err)
	assert.Nil(t, missing)

	var names []string

	for group, err := range p.SearchGroups(context.Background(), "e", false) {
		require.NoError(t, err)
		names = append(names, group.Info().Name)
	}

	assert.Equal(t, []string{"everyone"}, names)

	members, ok := group.(multiauth.MemberLister)
	require.True(t, ok)

	var memberIDs []string

	for user, err := range members.Members(context.Background()) {
		require.NoError(t, err)
		memberIDs = append(memberIDs, user.Identifier)
	}

	assert.Equal(t, []string{"jdoe"}, memberIDs)
}

func TestMatches_NonComparableValues(t *testing.T) {
	record := multiauth.Fields{"uid": "jane", "groups": []any{"dev", "ops"}}

	// slice-valued attributes must compare structurally instead of panicking
	assert.True(t, matches(record, multiauth.Fields{"groups": []any{"dev", "ops"}}, true))
	assert.False(t, matches(record, multiauth.Fields{"groups": []any{"dev"}}, true))
	assert.True(t, matches(record, multiauth.Fields{"uid": "jane"}, true))
}
