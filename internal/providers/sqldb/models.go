package sqldb

import (
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/GoMultiAuth/GoMultiAuth/internal/multiauth"
)

// Identity is a canonical user record in the relational store.
type Identity struct {
	// ID is the unique identifier for the identity.
	ID uint64 `gorm:"primaryKey"`
	// Identifier is the unique login name.
	Identifier string `gorm:"uniqueIndex;size:255;not null"`
	// Password is the Argon2id hashed password. It is empty for
	// identities that authenticate through an external provider.
	Password string `gorm:"size:255"`
	// Active indicates whether the identity may log in.
	Active bool
	// Email is the identity's email address.
	Email string `gorm:"size:255"`
	// FirstName is the identity's first or given name.
	FirstName string `gorm:"size:100"`
	// LastName is the identity's last or family name.
	LastName string `gorm:"size:100"`
	// CreatedAt is the creation timestamp (managed by GORM).
	CreatedAt time.Time
	// UpdatedAt is the last-update timestamp (managed by GORM).
	UpdatedAt time.Time
}

// HashPassword hashes a plaintext password using the Argon2id algorithm.
func HashPassword(password string) string {
	hashedPassword, err := argon2id.CreateHash(password, argon2id.DefaultParams)
	if err != nil {
		log.Fatal().Msgf("failed to hash password: %v", err)
	}

	return hashedPassword
}

// VerifyPassword verifies a plaintext password against the stored hash.
func (i *Identity) VerifyPassword(password string) bool {
	match, err := argon2id.ComparePasswordAndHash(password, i.Password)
	if err != nil {
		log.Error().Msgf("failed to verify password: %v", err)
		return false
	}

	return match
}

// fields returns the identity's searchable attributes as a flat record.
func (i *Identity) fields() multiauth.Fields {
	return multiauth.Fields{
		"identifier": i.Identifier,
		"email":      i.Email,
		"first_name": i.FirstName,
		"last_name":  i.LastName,
	}
}

// Group is a named group of identities.
type Group struct {
	// ID is the unique identifier for the group.
	ID uint `gorm:"primaryKey"`
	// Name is the unique group name.
	Name string `gorm:"uniqueIndex;size:255;not null"`
	// CreatedAt is the creation timestamp (managed by GORM).
	CreatedAt time.Time
}

// GroupMember is the many-to-many relationship between identities and
// groups.
type GroupMember struct {
	// IdentityID is the ID of the member identity.
	IdentityID uint64 `gorm:"primaryKey;column:identity_id"`
	// GroupID is the ID of the group.
	GroupID uint `gorm:"primaryKey;column:group_id"`
	// Identity is the associated identity. Memberships disappear with
	// the identity (CASCADE).
	Identity Identity `gorm:"foreignKey:IdentityID;constraint:OnDelete:CASCADE"`
	// Group is the associated group. Memberships disappear with the
	// group (CASCADE).
	Group Group `gorm:"foreignKey:GroupID;constraint:OnDelete:CASCADE"`
	// CreatedAt is the timestamp the identity joined the group.
	CreatedAt time.Time
}

// TableName overrides GORM's default pluralized table naming.
func (GroupMember) TableName() string {
	return "group_members"
}

// Migrate creates or updates the schema for all sqldb models.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Identity{}, &Group{}, &GroupMember{})
}
