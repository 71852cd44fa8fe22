package multiauth

import (
	"fmt"
	"sort"
	"strings"
)

// Link pairs an auth provider with one identity provider plus the field
// mapping applied to the authentication claims before the lookup
// (target key -> source key).
type Link struct {
	IdentityProvider string
	Mapping          map[string]string
}

// ProviderMap is the canonical form of the configured provider linking:
// for every auth provider name, the ordered list of identity providers to
// query. The order determines which provider wins under first-match
// policy. The map is built once at startup and never mutated.
type ProviderMap map[string][]Link

// CanonicalProviderMap normalizes a raw linking configuration. Every value
// may be a single identity provider name, a list of names, a list of link
// tables ({identity_provider, mapping}) or a mix of both; the result is
// always an ordered list of Links with an empty mapping defaulted.
func CanonicalProviderMap(raw map[string]any) (ProviderMap, error) {
	canonical := make(ProviderMap, len(raw))

	for authName, value := range raw {
		links, err := normalizeLinks(value)
		if err != nil {
			return nil, fmt.Errorf("%w: provider map entry %q: %w", ErrConfiguration, authName, err)
		}

		canonical[authName] = links
	}

	return canonical, nil
}

func normalizeLinks(value any) ([]Link, error) {
	switch v := value.(type) {
	case string:
		return []Link{{IdentityProvider: v}}, nil
	case []string:
		links := make([]Link, len(v))
		for i, name := range v {
			links[i] = Link{IdentityProvider: name}
		}

		return links, nil
	case []any:
		links := make([]Link, 0, len(v))
		for _, item := range v {
			link, err := normalizeLink(item)
			if err != nil {
				return nil, err
			}

			links = append(links, link)
		}

		return links, nil
	case []Link:
		return append([]Link(nil), v...), nil
	case Link:
		return []Link{v}, nil
	default:
		return nil, fmt.Errorf("unsupported value of type %T", value)
	}
}

func normalizeLink(item any) (Link, error) {
	switch it := item.(type) {
	case string:
		return Link{IdentityProvider: it}, nil
	case Link:
		return it, nil
	case map[string]any:
		name, ok := it["identity_provider"].(string)
		if !ok || name == "" {
			return Link{}, fmt.Errorf("link is missing the identity_provider key")
		}

		link := Link{IdentityProvider: name}

		if rawMapping, ok := it["mapping"]; ok {
			mapping, err := toStringMap(rawMapping)
			if err != nil {
				return Link{}, fmt.Errorf("link %q: %w", name, err)
			}

			link.Mapping = mapping
		}

		return link, nil
	default:
		return Link{}, fmt.Errorf("unsupported link of type %T", item)
	}
}

func toStringMap(value any) (map[string]string, error) {
	switch v := value.(type) {
	case map[string]string:
		out := make(map[string]string, len(v))
		for k, s := range v {
			out[k] = s
		}

		return out, nil
	case map[string]any:
		out := make(map[string]string, len(v))
		for k, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("mapping value for %q is not a string", k)
			}

			out[k] = s
		}

		return out, nil
	default:
		return nil, fmt.Errorf("mapping is not a table of strings")
	}
}

// Validate checks the map against the registered providers. Every auth
// provider must be linked to at least one identity provider and every
// referenced identity provider must exist. Both checks run to completion
// so one failure reports the complete misconfiguration at once.
func (m ProviderMap) Validate(authProviders map[string]AuthProvider, identityProviders map[string]IdentityProvider) error {
	var unlinked []string

	for name := range authProviders {
		if _, ok := m[name]; !ok {
			unlinked = append(unlinked, name)
		}
	}

	brokenSet := make(map[string]struct{})

	for _, links := range m {
		for _, link := range links {
			if _, ok := identityProviders[link.IdentityProvider]; !ok {
				brokenSet[link.IdentityProvider] = struct{}{}
			}
		}
	}

	broken := make([]string, 0, len(brokenSet))
	for name := range brokenSet {
		broken = append(broken, name)
	}

	if len(unlinked) == 0 && len(broken) == 0 {
		return nil
	}

	sort.Strings(unlinked)
	sort.Strings(broken)

	var problems []string

	if len(unlinked) > 0 {
		problems = append(problems, "auth providers not linked to identity providers: "+strings.Join(unlinked, ", "))
	}

	if len(broken) > 0 {
		problems = append(problems, "broken identity provider links: "+strings.Join(broken, ", "))
	}

	return fmt.Errorf("%w: %s", ErrConfiguration, strings.Join(problems, "; "))
}
