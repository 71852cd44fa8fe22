package ldapauth

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/go-ldap/ldap/v3"

	"github.com/GoMultiAuth/GoMultiAuth/internal/multiauth"
)

// matchingRuleInChain is the Active Directory extensible-match rule that
// resolves nested group membership on the server side.
const matchingRuleInChain = "1.2.840.113556.1.4.1941"

// Group is a directory group. Depending on the ad_group_style setting,
// membership is resolved through tokenGroups/objectSid SIDs or through
// the configured member-of attribute on user entries.
type Group struct {
	provider *IdentityProvider
	name     string
	dn       string
}

// Info implements multiauth.Group.
func (g *Group) Info() multiauth.GroupInfo {
	return multiauth.GroupInfo{Provider: g.provider.Name(), Name: g.name}
}

// HasUser implements multiauth.Group. Nested memberships count as
// membership.
func (g *Group) HasUser(ctx context.Context, identifier string) (bool, error) {
	settings := g.provider.settings

	session, release := acquireSession(ctx)
	defer release()

	conn, err := session.Conn(settings)
	if err != nil {
		return false, err
	}

	userDN, entry, err := conn.GetUserByID(identifier, []string{settings.MemberOfAttr})
	if err != nil {
		return false, err
	}

	if userDN == "" {
		return false, &multiauth.UserRetrievalFailed{
			Reason: fmt.Sprintf("no such user: %s", identifier),
		}
	}

	if settings.ADGroupStyle {
		return g.hasUserAD(conn, userDN)
	}

	for _, memberOf := range entry.GetAttributeValues(settings.MemberOfAttr) {
		if strings.EqualFold(memberOf, g.dn) {
			return true, nil
		}
	}

	return false, nil
}

// hasUserAD checks membership by intersecting the user's tokenGroups
// SIDs with the group's objectSid. Unlike the member-of attribute,
// tokenGroups already includes nested memberships.
func (g *Group) hasUserAD(conn *Conn, userDN string) (bool, error) {
	groupEntry, err := conn.entryAt(g.dn, []string{"objectSid"})
	if err != nil {
		return false, err
	}

	if groupEntry == nil {
		return false, nil
	}

	groupSid := string(groupEntry.GetRawAttributeValue("objectSid"))
	if groupSid == "" {
		return false, nil
	}

	sids, err := conn.tokenGroups(userDN)
	if err != nil {
		return false, err
	}

	for _, sid := range sids {
		if sid == groupSid {
			return true, nil
		}
	}

	return false, nil
}

// Members implements multiauth.MemberLister. With Active Directory
// style enabled, nesting is resolved server-side through the
// matching-rule-in-chain extensible match; otherwise subgroups are
// walked recursively.
func (g *Group) Members(ctx context.Context) iter.Seq2[*multiauth.UserInfo, error] {
	return func(yield func(*multiauth.UserInfo, error) bool) {
		settings := g.provider.settings

		session, release := acquireSession(ctx)
		defer release()

		conn, err := session.Conn(settings)
		if err != nil {
			yield(nil, err)
			return
		}

		if settings.ADGroupStyle {
			filter := fmt.Sprintf("(&%s(%s:%s:=%s))",
				settings.UserFilter, settings.MemberOfAttr, matchingRuleInChain, ldap.EscapeFilter(g.dn))

			g.yieldUsers(conn, filter, yield)

			return
		}

		visited := map[string]struct{}{}
		g.walk(conn, g.dn, visited, yield)
	}
}

// walk yields the direct user members of the group at dn, then recurses
// into its subgroups. The visited set breaks membership cycles.
func (g *Group) walk(conn *Conn, dn string, visited map[string]struct{}, yield func(*multiauth.UserInfo, error) bool) bool {
	key := strings.ToLower(dn)
	if _, seen := visited[key]; seen {
		return true
	}

	visited[key] = struct{}{}

	settings := g.provider.settings
	memberOf := fmt.Sprintf("(%s=%s)", settings.MemberOfAttr, ldap.EscapeFilter(dn))

	if !g.yieldUsers(conn, "(&"+settings.UserFilter+memberOf+")", yield) {
		return false
	}

	subgroupFilter := "(&" + settings.GroupFilter + memberOf + ")"

	for entry, err := range conn.Search(settings.GroupBase, subgroupFilter, nil) {
		if err != nil {
			yield(nil, err)
			return false
		}

		if !g.walk(conn, entry.DN, visited, yield) {
			return false
		}
	}

	return true
}

func (g *Group) yieldUsers(conn *Conn, filter string, yield func(*multiauth.UserInfo, error) bool) bool {
	settings := g.provider.settings

	for entry, err := range conn.Search(settings.UserBase, filter, g.provider.userAttributes()) {
		if err != nil {
			yield(nil, err)
			return false
		}

		if !yield(g.provider.userInfo(entry), nil) {
			return false
		}
	}

	return true
}
