package ldapauth

import (
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"

	"github.com/GoMultiAuth/GoMultiAuth/internal/multiauth"
)

func testIdentityProvider(mapping map[string]string, infoKeys []string) *IdentityProvider {
	settings := &Settings{
		URI:      "ldaps://ldap.example.com",
		UserBase: "ou=people,dc=example,dc=com",
	}
	settings.setDefaults()

	return &IdentityProvider{
		IdentityBase: multiauth.IdentityBase{
			ProviderBase: multiauth.NewProviderBase("corp-ldap", ""),
			Mapping:      mapping,
			InfoKeys:     infoKeys,
		},
		settings: settings,
	}
}

func TestEntryFields(t *testing.T) {
	entry := ldap.NewEntry("uid=jdoe,ou=people,dc=example,dc=com", map[string][]string{
		"uid":      {"jdoe"},
		"memberOf": {"cn=a,dc=example,dc=com", "cn=b,dc=example,dc=com"},
		"pager":    {},
	})

	fields := entryFields(entry)

	assert.Equal(t, "jdoe", fields["uid"])
	assert.Equal(t, []string{"cn=a,dc=example,dc=com", "cn=b,dc=example,dc=com"}, fields["memberOf"])

	pager, ok := fields["pager"]
	assert.True(t, ok)
	assert.Nil(t, pager)
}

func TestUserAttributes(t *testing.T) {
	p := testIdentityProvider(
		map[string]string{"email": "mail", "name": "givenName"},
		[]string{"email", "name", "sn"},
	)

	attrs := p.userAttributes()

	// the identifier attribute first, then the mapped info keys
	assert.Equal(t, []string{"uid", "mail", "givenName", "sn"}, attrs)
}

func TestUserAttributes_NoInfoKeysRequestsEverything(t *testing.T) {
	p := testIdentityProvider(map[string]string{"email": "mail"}, nil)

	assert.Nil(t, p.userAttributes())
}

func TestUserInfo_MapsEntry(t *testing.T) {
	p := testIdentityProvider(
		map[string]string{"email": "mail"},
		[]string{"email", "sn"},
	)

	entry := ldap.NewEntry("uid=jdoe,ou=people,dc=example,dc=com", map[string][]string{
		"uid":  {"jdoe"},
		"mail": {"jdoe@example.com"},
		"sn":   {"Doe"},
	})

	info := p.userInfo(entry)

	assert.Equal(t, "corp-ldap", info.Provider)
	assert.Equal(t, "jdoe", info.Identifier)
	assert.Equal(t, multiauth.Fields{"email": "jdoe@example.com", "sn": "Doe"}, info.Data)
	assert.Equal(t, multiauth.Fields{multiauth.RefreshProviderKey: "corp-ldap"}, info.RefreshData)
}
