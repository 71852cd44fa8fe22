package ldapauth

import (
	"github.com/go-ldap/ldap/v3"

	"github.com/GoMultiAuth/GoMultiAuth/internal/multiauth"
)

// GetUserByID looks up a single user by its identifier attribute. It
// returns an empty DN when the user does not exist.
func (c *Conn) GetUserByID(id string, attributes []string) (string, *ldap.Entry, error) {
	filter := BuildSearchFilter(
		multiauth.Fields{c.settings.UIDAttr: id},
		c.settings.UserFilter,
		nil,
		true,
	)
	if filter == "" {
		return "", nil, nil
	}

	return c.FindOne(c.settings.UserBase, filter, attributes)
}

// GetGroupByID looks up a single group by its name attribute. It returns
// an empty DN when the group does not exist.
func (c *Conn) GetGroupByID(id string, attributes []string) (string, *ldap.Entry, error) {
	filter := BuildSearchFilter(
		multiauth.Fields{c.settings.GIDAttr: id},
		c.settings.GroupFilter,
		nil,
		true,
	)
	if filter == "" {
		return "", nil, nil
	}

	return c.FindOne(c.settings.GroupBase, filter, attributes)
}

// entryAt reads the entry at the given DN with a base-scope search.
// It returns nil when the entry does not exist.
func (c *Conn) entryAt(dn string, attributes []string) (*ldap.Entry, error) {
	request := ldap.NewSearchRequest(
		dn,
		ldap.ScopeBaseObject,
		ldap.NeverDerefAliases,
		0,
		c.settings.Timeout,
		false,
		"(objectClass=*)",
		attributes,
		nil,
	)

	result, err := c.conn.Search(request)
	if err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
			return nil, nil
		}

		return nil, normalizeError(err)
	}

	if len(result.Entries) == 0 {
		return nil, nil
	}

	return result.Entries[0], nil
}

// tokenGroups reads the Active Directory tokenGroups attribute of the
// entry at userDN: the SIDs of every group the user belongs to,
// including nested memberships. The attribute is constructed by the
// server and only available from a base-scope search on the entry
// itself.
func (c *Conn) tokenGroups(userDN string) ([]string, error) {
	entry, err := c.entryAt(userDN, []string{"tokenGroups"})
	if err != nil || entry == nil {
		return nil, err
	}

	// Group SIDs are binary blobs; keep their raw byte form for
	// comparison against objectSid values.
	values := entry.GetRawAttributeValues("tokenGroups")
	sids := make([]string, 0, len(values))

	for _, value := range values {
		sids = append(sids, string(value))
	}

	return sids, nil
}
