package multiauth

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Fields is a flat attribute record as exchanged between providers.
// A key that is present with a nil value means "the attribute exists
// but has no value"; a missing key means the attribute is unknown.
type Fields map[string]any

// Clone returns a shallow copy of the record.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}

	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}

	return out
}

// String returns the value for key as a string, or "" if the key is
// absent, nil or not a string.
func (f Fields) String(key string) string {
	s, _ := f[key].(string)
	return s
}

// ErrEmptyAuthData is returned when an auth provider produces an AuthInfo
// without any data identifying the user.
var ErrEmptyAuthData = errors.New("auth info data cannot be empty")

// AuthInfo is the outcome of a successful authentication. It carries the
// provider-native claims that allow a linked identity provider to locate
// the canonical user record. AuthInfo values are immutable once created.
type AuthInfo struct {
	provider string
	data     Fields
}

// NewAuthInfo creates an AuthInfo for the named auth provider.
// The data must contain at least one claim.
func NewAuthInfo(provider string, data Fields) (*AuthInfo, error) {
	if len(data) == 0 {
		return nil, ErrEmptyAuthData
	}

	return &AuthInfo{provider: provider, data: data.Clone()}, nil
}

// ProviderName returns the name of the auth provider that produced the info.
func (ai *AuthInfo) ProviderName() string {
	return ai.provider
}

// Data returns a copy of the authentication claims.
func (ai *AuthInfo) Data() Fields {
	return ai.data.Clone()
}

// WithMapping returns a new AuthInfo whose data has been renamed through
// the given field mapping (target key -> source key).
func (ai *AuthInfo) WithMapping(mapping map[string]string) *AuthInfo {
	if len(mapping) == 0 {
		return ai
	}

	return &AuthInfo{provider: ai.provider, data: MapFields(ai.data, mapping, nil)}
}

func (ai *AuthInfo) String() string {
	keys := make([]string, 0, len(ai.data))
	for k := range ai.data {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return fmt.Sprintf("AuthInfo(%s, %s)", ai.provider, strings.Join(keys, ","))
}

// RefreshProviderKey is the refresh-data key holding the name of the
// identity provider that produced a UserInfo.
const RefreshProviderKey = "_provider"

// UserInfo is a canonical user record returned by an identity provider.
type UserInfo struct {
	// Provider is the name of the identity provider owning the record.
	Provider string
	// Identifier uniquely identifies the user within the provider.
	Identifier string
	// Data holds the canonical user attributes.
	Data Fields
	// RefreshData is an opaque provider-specific blob that allows the
	// record to be fetched again later via RefreshUser. A nil value
	// means the record cannot be refreshed.
	RefreshData Fields
}

func (u *UserInfo) String() string {
	return fmt.Sprintf("UserInfo(%s, %s)", u.Provider, u.Identifier)
}

// GroupInfo identifies a group within an identity provider. Membership
// queries go through the Group capability interface.
type GroupInfo struct {
	// Provider is the name of the identity provider owning the group.
	Provider string
	// Name is the unique name of the group within the provider.
	Name string
}

func (g GroupInfo) String() string {
	return fmt.Sprintf("GroupInfo(%s, %s)", g.Provider, g.Name)
}
