package ldapauth

import (
	"iter"

	"github.com/go-ldap/ldap/v3"
)

// FindOne performs a single-result subtree search. It returns the first
// entry with a non-empty DN, or an empty DN when nothing matched; zero
// matches are not an error. If the filter matches multiple entries there
// is no guarantee which one is returned.
func (c *Conn) FindOne(baseDN, filter string, attributes []string) (string, *ldap.Entry, error) {
	request := ldap.NewSearchRequest(
		baseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		1, // size limit
		c.settings.Timeout,
		false,
		filter,
		attributes,
		nil,
	)

	result, err := c.conn.Search(request)
	if err != nil && !(ldap.IsErrorWithCode(err, ldap.LDAPResultSizeLimitExceeded) && result != nil && len(result.Entries) > 0) {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
			return "", nil, nil
		}

		return "", nil, normalizeError(err)
	}

	for _, entry := range result.Entries {
		if entry.DN != "" {
			return entry.DN, entry, nil
		}
	}

	return "", nil, nil
}

// Search lazily yields every entry matching the filter below baseDN,
// iterating RFC 2696 result pages with the configured page size. The
// sequence stops with ErrPagingNotSupported when the server ignores the
// paging control.
func (c *Conn) Search(baseDN, filter string, attributes []string) iter.Seq2[*ldap.Entry, error] {
	return func(yield func(*ldap.Entry, error) bool) {
		paging := ldap.NewControlPaging(c.settings.PageSize)

		for {
			request := ldap.NewSearchRequest(
				baseDN,
				ldap.ScopeWholeSubtree,
				ldap.NeverDerefAliases,
				0,
				c.settings.Timeout,
				false,
				filter,
				attributes,
				[]ldap.Control{paging},
			)

			result, err := c.conn.Search(request)
			if err != nil {
				if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
					return
				}

				yield(nil, normalizeError(err))

				return
			}

			for _, entry := range result.Entries {
				if entry.DN == "" {
					continue
				}

				if !yield(entry, nil) {
					return
				}
			}

			cookie, err := pageCookie(result.Controls)
			if err != nil {
				yield(nil, err)
				return
			}

			if len(cookie) == 0 {
				// end of results
				return
			}

			paging.SetCookie(cookie)
		}
	}
}

// pageCookie extracts the next-page cookie from the server controls.
// A missing paging control means the server does not implement RFC 2696
// and the caller must not request further pages.
func pageCookie(controls []ldap.Control) ([]byte, error) {
	control := ldap.FindControl(controls, ldap.ControlTypePaging)
	if control == nil {
		return nil, ErrPagingNotSupported
	}

	paging, ok := control.(*ldap.ControlPaging)
	if !ok {
		return nil, ErrPagingNotSupported
	}

	return paging.Cookie, nil
}

// attributeValue returns the first value of the named attribute, or "".
func attributeValue(entry *ldap.Entry, attribute string) string {
	if entry == nil {
		return ""
	}

	return entry.GetAttributeValue(attribute)
}
