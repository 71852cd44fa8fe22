package multiauth

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Settings is the raw configuration of one provider instance, with the
// type and title keys already removed.
type Settings map[string]any

// String returns the value for key as a string, or "" if the key is
// absent or not a string.
func (s Settings) String(key string) string {
	v, _ := s[key].(string)
	return v
}

// Decode fills a typed settings struct from the raw map. Field names are
// matched via their toml tags, and scalar values are converted weakly so
// that environment overrides ("true", "30") behave like native values.
func (s Settings) Decode(dst any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           dst,
		TagName:          "toml",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("failed to build settings decoder: %w", err)
	}

	if err := dec.Decode(map[string]any(s)); err != nil {
		return fmt.Errorf("failed to decode provider settings: %w", err)
	}

	return nil
}

// AuthProviderFactory builds an auth provider instance bound to the
// broker under the given instance name.
type AuthProviderFactory func(broker *MultiAuth, name string, settings Settings) (AuthProvider, error)

// IdentityProviderFactory builds an identity provider instance bound to
// the broker under the given instance name.
type IdentityProviderFactory func(broker *MultiAuth, name string, settings Settings) (IdentityProvider, error)

// AuthProviderType describes a registerable auth provider implementation.
type AuthProviderType struct {
	// Type is the identifier used in provider configuration.
	Type string
	// MultiInstance allows more than one configured instance of this type.
	MultiInstance bool
	// New constructs an instance.
	New AuthProviderFactory
}

// IdentityProviderType describes a registerable identity provider
// implementation.
type IdentityProviderType struct {
	Type          string
	MultiInstance bool
	New           IdentityProviderFactory
}

// RegisterAuthProviderType makes an auth provider implementation
// available for configuration by its type name. Registering the same
// type name twice is a configuration error.
func (ma *MultiAuth) RegisterAuthProviderType(t AuthProviderType) error {
	if t.Type == "" || t.New == nil {
		return fmt.Errorf("%w: auth provider type needs a name and a factory", ErrConfiguration)
	}

	if _, exists := ma.authTypes[t.Type]; exists {
		return fmt.Errorf("%w: auth provider type is not unique: %s", ErrConfiguration, t.Type)
	}

	ma.authTypes[t.Type] = t

	return nil
}

// RegisterIdentityProviderType makes an identity provider implementation
// available for configuration by its type name.
func (ma *MultiAuth) RegisterIdentityProviderType(t IdentityProviderType) error {
	if t.Type == "" || t.New == nil {
		return fmt.Errorf("%w: identity provider type needs a name and a factory", ErrConfiguration)
	}

	if _, exists := ma.identityTypes[t.Type]; exists {
		return fmt.Errorf("%w: identity provider type is not unique: %s", ErrConfiguration, t.Type)
	}

	ma.identityTypes[t.Type] = t

	return nil
}

// resolveAuthType resolves the "type" value of a configured entry. The
// value is either an AuthProviderType given directly (taking priority) or
// the name of a registered type.
func (ma *MultiAuth) resolveAuthType(value any) (AuthProviderType, error) {
	switch t := value.(type) {
	case AuthProviderType:
		return t, nil
	case string:
		registered, ok := ma.authTypes[t]
		if !ok {
			return AuthProviderType{}, fmt.Errorf("%w: unknown auth provider type: %s", ErrConfiguration, t)
		}

		return registered, nil
	default:
		return AuthProviderType{}, fmt.Errorf("%w: invalid auth provider type of kind %T", ErrConfiguration, value)
	}
}

func (ma *MultiAuth) resolveIdentityType(value any) (IdentityProviderType, error) {
	switch t := value.(type) {
	case IdentityProviderType:
		return t, nil
	case string:
		registered, ok := ma.identityTypes[t]
		if !ok {
			return IdentityProviderType{}, fmt.Errorf("%w: unknown identity provider type: %s", ErrConfiguration, t)
		}

		return registered, nil
	default:
		return IdentityProviderType{}, fmt.Errorf("%w: invalid identity provider type of kind %T", ErrConfiguration, value)
	}
}

// createAuthProviders instantiates every configured auth provider,
// enforcing the single-instance constraint across the whole batch.
func (ma *MultiAuth) createAuthProviders(configured map[string]Settings) (map[string]AuthProvider, error) {
	providers := make(map[string]AuthProvider, len(configured))
	seenTypes := make(map[string]struct{})

	for _, name := range sortedKeys(configured) {
		settings, typeValue, err := popType(configured[name])
		if err != nil {
			return nil, fmt.Errorf("auth provider %q: %w", name, err)
		}

		providerType, err := ma.resolveAuthType(typeValue)
		if err != nil {
			return nil, fmt.Errorf("auth provider %q: %w", name, err)
		}

		if _, seen := seenTypes[providerType.Type]; seen && !providerType.MultiInstance {
			return nil, fmt.Errorf("%w: provider type does not support multiple instances: %s",
				ErrConfiguration, providerType.Type)
		}

		provider, err := providerType.New(ma, name, settings)
		if err != nil {
			return nil, fmt.Errorf("auth provider %q: %w", name, err)
		}

		providers[name] = provider
		seenTypes[providerType.Type] = struct{}{}
	}

	return providers, nil
}

// createIdentityProviders instantiates every configured identity
// provider, enforcing the single-instance constraint across the batch.
func (ma *MultiAuth) createIdentityProviders(configured map[string]Settings) (map[string]IdentityProvider, error) {
	providers := make(map[string]IdentityProvider, len(configured))
	seenTypes := make(map[string]struct{})

	for _, name := range sortedKeys(configured) {
		settings, typeValue, err := popType(configured[name])
		if err != nil {
			return nil, fmt.Errorf("identity provider %q: %w", name, err)
		}

		providerType, err := ma.resolveIdentityType(typeValue)
		if err != nil {
			return nil, fmt.Errorf("identity provider %q: %w", name, err)
		}

		if _, seen := seenTypes[providerType.Type]; seen && !providerType.MultiInstance {
			return nil, fmt.Errorf("%w: provider type does not support multiple instances: %s",
				ErrConfiguration, providerType.Type)
		}

		provider, err := providerType.New(ma, name, settings)
		if err != nil {
			return nil, fmt.Errorf("identity provider %q: %w", name, err)
		}

		providers[name] = provider
		seenTypes[providerType.Type] = struct{}{}
	}

	return providers, nil
}

// popType splits the type value off a configured entry, leaving the
// provider-specific settings untouched.
func popType(entry Settings) (Settings, any, error) {
	typeValue, ok := entry["type"]
	if !ok {
		return nil, nil, fmt.Errorf("%w: provider entry is missing the type key", ErrConfiguration)
	}

	settings := make(Settings, len(entry))
	for k, v := range entry {
		if k == "type" {
			continue
		}

		settings[k] = v
	}

	return settings, typeValue, nil
}
