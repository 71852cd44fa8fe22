package ldapauth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoMultiAuth/GoMultiAuth/internal/multiauth"
)

func minimalSettings() multiauth.Settings {
	return multiauth.Settings{
		"ldap": map[string]any{
			"uri":       "ldaps://ldap.example.com:636",
			"user_base": "ou=people,dc=example,dc=com",
		},
	}
}

func TestDecodeSettings_Defaults(t *testing.T) {
	s, err := DecodeSettings(minimalSettings())
	require.NoError(t, err)

	assert.Equal(t, 30, s.Timeout)
	assert.Equal(t, uint32(1000), s.PageSize)
	assert.Equal(t, "uid", s.UIDAttr)
	assert.Equal(t, "cn", s.GIDAttr)
	assert.Equal(t, "memberOf", s.MemberOfAttr)
	assert.Equal(t, "(objectClass=person)", s.UserFilter)
	assert.Equal(t, "(objectClass=groupOfNames)", s.GroupFilter)
	assert.True(t, s.tlsVerify())
	assert.False(t, s.ADGroupStyle)
}

func TestDecodeSettings_Overrides(t *testing.T) {
	s, err := DecodeSettings(multiauth.Settings{
		"ldap": map[string]any{
			"uri":            "ldap://ad.example.com",
			"bind_dn":        "cn=svc,dc=example,dc=com",
			"bind_password":  "hunter2",
			"tls":            false,
			"starttls":       true,
			"timeout":        5,
			"page_size":      250,
			"uid":            "sAMAccountName",
			"user_base":      "ou=people,dc=example,dc=com",
			"user_filter":    "(objectCategory=person)",
			"gid":            "name",
			"group_base":     "ou=groups,dc=example,dc=com",
			"member_of_attr": "memberof",
			"ad_group_style": true,
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "sAMAccountName", s.UIDAttr)
	assert.Equal(t, uint32(250), s.PageSize)
	assert.False(t, s.tlsVerify())
	assert.True(t, s.StartTLS)
	assert.True(t, s.ADGroupStyle)
}

func TestDecodeSettings_MissingUserBase(t *testing.T) {
	_, err := DecodeSettings(multiauth.Settings{
		"ldap": map[string]any{"uri": "ldaps://ldap.example.com"},
	})

	assert.Error(t, err)
}

func TestDecodeSettings_MissingURI(t *testing.T) {
	_, err := DecodeSettings(multiauth.Settings{
		"ldap": map[string]any{"user_base": "ou=people,dc=example,dc=com"},
	})

	assert.Error(t, err)
}
