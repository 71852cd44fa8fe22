package ldapauth

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/GoMultiAuth/GoMultiAuth/internal/multiauth"
)

// Settings holds the directory configuration shared by the LDAP auth and
// identity providers.
type Settings struct {
	// URI of the directory server, e.g. "ldaps://ldap.example.com:636".
	URI string `toml:"uri" validate:"required,uri"`
	// BindDN and BindPassword are the service credentials used for the
	// initial bind of every connection.
	BindDN       string `toml:"bind_dn"`
	BindPassword string `toml:"bind_password"`
	// TLS demands certificate verification when enabled (the default);
	// disabling it accepts any certificate.
	TLS *bool `toml:"tls"`
	// StartTLS negotiates TLS on a plain connection. It is ignored with
	// a warning when the URI already implies implicit TLS (ldaps).
	StartTLS bool `toml:"starttls"`
	// Timeout in seconds applied to every directory operation.
	Timeout int `toml:"timeout" validate:"min=0"`
	// PageSize used for RFC 2696 paged searches.
	PageSize uint32 `toml:"page_size"`

	// UIDAttr is the attribute holding the user identifier.
	UIDAttr string `toml:"uid"`
	// UserBase is the subtree searched for users.
	UserBase string `toml:"user_base" validate:"required"`
	// UserFilter is the fixed type filter ANDed into every user search.
	UserFilter string `toml:"user_filter"`

	// GIDAttr is the attribute holding the group name.
	GIDAttr string `toml:"gid"`
	// GroupBase is the subtree searched for groups.
	GroupBase string `toml:"group_base"`
	// GroupFilter is the fixed type filter ANDed into every group search.
	GroupFilter string `toml:"group_filter"`
	// MemberOfAttr is the user attribute listing group memberships.
	MemberOfAttr string `toml:"member_of_attr"`
	// ADGroupStyle resolves nested memberships through the Active
	// Directory tokenGroups attribute instead of walking groupOfNames.
	ADGroupStyle bool `toml:"ad_group_style"`
}

const (
	defaultTimeout    = 30
	defaultPageSize   = 1000
	defaultUIDAttr    = "uid"
	defaultGIDAttr    = "cn"
	defaultMemberOf   = "memberOf"
	defaultUserFilter = "(objectClass=person)"
	defaultGroupFlter = "(objectClass=groupOfNames)"
)

var validate = validator.New()

// DecodeSettings builds validated LDAP settings from the raw provider
// configuration. The directory settings live under the "ldap" table.
func DecodeSettings(settings multiauth.Settings) (*Settings, error) {
	var cfg struct {
		LDAP Settings `toml:"ldap"`
	}

	if err := settings.Decode(&cfg); err != nil {
		return nil, err
	}

	s := cfg.LDAP
	s.setDefaults()

	if err := validate.Struct(&s); err != nil {
		return nil, fmt.Errorf("invalid ldap settings: %w", err)
	}

	return &s, nil
}

func (s *Settings) setDefaults() {
	if s.Timeout == 0 {
		s.Timeout = defaultTimeout
	}

	if s.PageSize == 0 {
		s.PageSize = defaultPageSize
	}

	if s.UIDAttr == "" {
		s.UIDAttr = defaultUIDAttr
	}

	if s.GIDAttr == "" {
		s.GIDAttr = defaultGIDAttr
	}

	if s.MemberOfAttr == "" {
		s.MemberOfAttr = defaultMemberOf
	}

	if s.UserFilter == "" {
		s.UserFilter = defaultUserFilter
	}

	if s.GroupFilter == "" {
		s.GroupFilter = defaultGroupFlter
	}
}

// tlsVerify reports whether server certificates must be verified.
func (s *Settings) tlsVerify() bool {
	return s.TLS == nil || *s.TLS
}
