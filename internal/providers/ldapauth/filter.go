package ldapauth

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-ldap/ldap/v3"

	"github.com/GoMultiAuth/GoMultiAuth/internal/multiauth"
)

// BuildSearchFilter assembles a directory search filter from criteria.
//
// The criteria are first renamed through the field mapping, entries
// without a usable value are dropped, and one assertion per remaining
// criterion is ANDed together with the fixed type filter. With exact
// disabled the assertions are substring matches. Every value is escaped
// against filter injection. An empty result means no criteria survived
// and no search should be performed.
func BuildSearchFilter(criteria multiauth.Fields, typeFilter string, mapping map[string]string, exact bool) string {
	mapped := multiauth.MapFields(criteria, mapping, nil)

	keys := make([]string, 0, len(mapped))

	for key, value := range mapped {
		if key == "" || !usableValue(value) {
			continue
		}

		keys = append(keys, key)
	}

	if len(keys) == 0 {
		return ""
	}

	sort.Strings(keys)

	var sb strings.Builder

	sb.WriteString("(&")

	for _, key := range keys {
		value := ldap.EscapeFilter(valueString(mapped[key]))

		if exact {
			fmt.Fprintf(&sb, "(%s=%s)", key, value)
		} else {
			fmt.Fprintf(&sb, "(%s=*%s*)", key, value)
		}
	}

	sb.WriteString(typeFilter)
	sb.WriteString(")")

	return sb.String()
}

// usableValue reports whether a criterion value carries information.
// Nil, empty strings and zero values are dropped from filters.
func usableValue(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case string:
		return v != ""
	case bool:
		return v
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	default:
		return true
	}
}

func valueString(value any) string {
	if s, ok := value.(string); ok {
		return s
	}

	return fmt.Sprintf("%v", value)
}
