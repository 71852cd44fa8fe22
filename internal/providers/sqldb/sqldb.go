// Package sqldb provides authentication and identity backends on top of
// a relational database accessed through GORM.
package sqldb

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sort"

	"gorm.io/gorm"

	"github.com/GoMultiAuth/GoMultiAuth/internal/multiauth"
)

// Type is the configuration type name of the sqldb providers.
const Type = "sqldb"

// searchColumns is the allowlist of criteria keys accepted by user
// searches. Criteria keys become column names; anything outside this
// set never reaches the query.
var searchColumns = map[string]struct{}{
	"identifier": {},
	"email":      {},
	"first_name": {},
	"last_name":  {},
}

type authSettings struct {
	Title string `toml:"title"`
}

// AuthProvider authenticates against Argon2id password hashes stored in
// the identities table.
type AuthProvider struct {
	multiauth.ProviderBase

	db *gorm.DB
}

// AuthProviderType returns the registration record for the sqldb auth
// provider bound to the given database handle.
func AuthProviderType(db *gorm.DB) multiauth.AuthProviderType {
	return multiauth.AuthProviderType{
		Type:          Type,
		MultiInstance: false,
		New: func(_ *multiauth.MultiAuth, name string, settings multiauth.Settings) (multiauth.AuthProvider, error) {
			var cfg authSettings

			if err := settings.Decode(&cfg); err != nil {
				return nil, err
			}

			return &AuthProvider{
				ProviderBase: multiauth.NewProviderBase(name, cfg.Title),
				db:           db,
			}, nil
		},
	}
}

// Login implements multiauth.LocalLoginProvider.
func (p *AuthProvider) Login(ctx context.Context, credentials multiauth.Fields) (*multiauth.AuthInfo, error) {
	username := credentials.String("username")
	password := credentials.String("password")

	var identity Identity

	err := p.db.WithContext(ctx).Where("identifier = ?", username).First(&identity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &multiauth.AuthenticationFailed{Reason: "no such user"}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to query identity: %w", err)
	}

	if !identity.Active {
		return nil, &multiauth.AuthenticationFailed{Reason: "user is disabled"}
	}

	if identity.Password == "" || !identity.VerifyPassword(password) {
		return nil, &multiauth.AuthenticationFailed{Reason: "invalid password"}
	}

	return multiauth.NewAuthInfo(p.Name(), multiauth.Fields{"identifier": identity.Identifier})
}

type identitySettings struct {
	Title string `toml:"title"`
	// Mapping renames application-level keys to identity columns.
	Mapping map[string]string `toml:"mapping"`
}

// IdentityProvider serves canonical user records and groups from the
// relational store. It supports searching, refreshing and group
// membership.
type IdentityProvider struct {
	multiauth.IdentityBase

	db *gorm.DB
}

// IdentityProviderType returns the registration record for the sqldb
// identity provider bound to the given database handle.
func IdentityProviderType(db *gorm.DB) multiauth.IdentityProviderType {
	return multiauth.IdentityProviderType{
		Type:          Type,
		MultiInstance: false,
		New: func(broker *multiauth.MultiAuth, name string, settings multiauth.Settings) (multiauth.IdentityProvider, error) {
			var cfg identitySettings

			if err := settings.Decode(&cfg); err != nil {
				return nil, err
			}

			return &IdentityProvider{
				IdentityBase: multiauth.IdentityBase{
					ProviderBase: multiauth.NewProviderBase(name, cfg.Title),
					Mapping:      cfg.Mapping,
					InfoKeys:     broker.UserInfoKeys(),
				},
				db: db,
			}, nil
		},
	}
}

func (p *IdentityProvider) userInfo(identity *Identity) *multiauth.UserInfo {
	return &multiauth.UserInfo{
		Provider:    p.Name(),
		Identifier:  identity.Identifier,
		Data:        multiauth.MapFields(identity.fields(), p.Mapping, p.InfoKeys),
		RefreshData: multiauth.Fields{multiauth.RefreshProviderKey: p.Name()},
	}
}

func (p *IdentityProvider) getIdentity(ctx context.Context, identifier string) (*Identity, error) {
	if identifier == "" {
		return nil, nil
	}

	var identity Identity

	err := p.db.WithContext(ctx).Where("identifier = ?", identifier).First(&identity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to query identity: %w", err)
	}

	return &identity, nil
}

// GetUserFromAuth implements multiauth.IdentityProvider. The record is
// located by the "identifier" claim.
func (p *IdentityProvider) GetUserFromAuth(ctx context.Context, authInfo *multiauth.AuthInfo) (*multiauth.UserInfo, error) {
	identity, err := p.getIdentity(ctx, authInfo.Data().String("identifier"))
	if err != nil || identity == nil {
		return nil, err
	}

	return p.userInfo(identity), nil
}

// RefreshUser implements multiauth.UserRefresher.
func (p *IdentityProvider) RefreshUser(ctx context.Context, identifier string, _ multiauth.Fields) (*multiauth.UserInfo, error) {
	identity, err := p.getIdentity(ctx, identifier)
	if err != nil || identity == nil {
		return nil, err
	}

	return p.userInfo(identity), nil
}

// SearchUsers implements multiauth.UserSearcher. Criteria keys must be
// identity columns; a criterion outside the column allowlist can never
// match and yields no results.
func (p *IdentityProvider) SearchUsers(ctx context.Context, criteria multiauth.Fields, exact bool) iter.Seq2[*multiauth.UserInfo, error] {
	return func(yield func(*multiauth.UserInfo, error) bool) {
		query := p.db.WithContext(ctx).Model(&Identity{}).Order("identifier")

		for _, column := range sortedKeys(criteria) {
			if _, ok := searchColumns[column]; !ok {
				return
			}

			if exact {
				query = query.Where(column+" = ?", fmt.Sprintf("%v", criteria[column]))
			} else {
				query = query.Where(column+" LIKE ?", fmt.Sprintf("%%%v%%", criteria[column]))
			}
		}

		var identities []Identity

		if err := query.Find(&identities).Error; err != nil {
			yield(nil, fmt.Errorf("failed to search identities: %w", err))
			return
		}

		for i := range identities {
			if !yield(p.userInfo(&identities[i]), nil) {
				return
			}
		}
	}
}

// GetGroup implements multiauth.GroupProvider.
func (p *IdentityProvider) GetGroup(ctx context.Context, name string) (multiauth.Group, error) {
	var row Group

	err := p.db.WithContext(ctx).Where("name = ?", name).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to query group: %w", err)
	}

	return &group{provider: p, row: row}, nil
}

// SearchGroups implements multiauth.GroupProvider.
func (p *IdentityProvider) SearchGroups(ctx context.Context, name string, exact bool) iter.Seq2[multiauth.Group, error] {
	return func(yield func(multiauth.Group, error) bool) {
		query := p.db.WithContext(ctx).Model(&Group{}).Order("name")

		if exact {
			query = query.Where("name = ?", name)
		} else {
			query = query.Where("name LIKE ?", "%"+name+"%")
		}

		var rows []Group

		if err := query.Find(&rows).Error; err != nil {
			yield(nil, fmt.Errorf("failed to search groups: %w", err))
			return
		}

		for _, row := range rows {
			if !yield(&group{provider: p, row: row}, nil) {
				return
			}
		}
	}
}

type group struct {
	provider *IdentityProvider
	row      Group
}

func (g *group) Info() multiauth.GroupInfo {
	return multiauth.GroupInfo{Provider: g.provider.Name(), Name: g.row.Name}
}

func (g *group) HasUser(ctx context.Context, identifier string) (bool, error) {
	var count int64

	err := g.provider.db.WithContext(ctx).
		Model(&GroupMember{}).
		Joins("JOIN identities ON identities.id = group_members.identity_id").
		Where("group_members.group_id = ? AND identities.identifier = ?", g.row.ID, identifier).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}

	return count > 0, nil
}

// Members implements multiauth.MemberLister.
func (g *group) Members(ctx context.Context) iter.Seq2[*multiauth.UserInfo, error] {
	return func(yield func(*multiauth.UserInfo, error) bool) {
		var identities []Identity

		err := g.provider.db.WithContext(ctx).
			Joins("JOIN group_members ON group_members.identity_id = identities.id").
			Where("group_members.group_id = ?", g.row.ID).
			Order("identities.identifier").
			Find(&identities).Error
		if err != nil {
			yield(nil, fmt.Errorf("failed to list members: %w", err))
			return
		}

		for i := range identities {
			if !yield(g.provider.userInfo(&identities[i]), nil) {
				return
			}
		}
	}
}

func sortedKeys(fields multiauth.Fields) []string {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}
