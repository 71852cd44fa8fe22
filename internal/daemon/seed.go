package daemon

import (
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/GoMultiAuth/GoMultiAuth/internal/config"
	"github.com/GoMultiAuth/GoMultiAuth/internal/providers/sqldb"
)

func seed(_ *config.Config, db *gorm.DB) {
	// Seed an initial admin identity if the table is empty

	var count int64
	db.Model(&sqldb.Identity{}).Count(&count)

	if count == 0 {
		log.Warn().Msg("identity table is empty, seeding admin user with default password")

		db.Create(
			&sqldb.Identity{
				Identifier: "admin",
				Password:   sqldb.HashPassword("changeme"),
				Active:     true,
			},
		)
	}
}
