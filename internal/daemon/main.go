// Package daemon wires configuration, database, providers, broker and
// web service into a running instance.
package daemon

import (
	"fmt"
	"time"

	memorystorage "github.com/gofiber/storage/memory/v2"
	sessionmysql "github.com/gofiber/storage/mysql/v2"
	sessionpostgres "github.com/gofiber/storage/postgres/v3"
	"github.com/gofiber/storage"
	"github.com/rs/zerolog/log"
	gormmysql "gorm.io/driver/mysql"
	gormpostgres "gorm.io/driver/postgres"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/GoMultiAuth/GoMultiAuth/internal/config"
	"github.com/GoMultiAuth/GoMultiAuth/internal/db/dsn"
	"github.com/GoMultiAuth/GoMultiAuth/internal/logger/adapter/stdlogger"
	"github.com/GoMultiAuth/GoMultiAuth/internal/multiauth"
	"github.com/GoMultiAuth/GoMultiAuth/internal/providers/ldapauth"
	"github.com/GoMultiAuth/GoMultiAuth/internal/providers/oidc"
	"github.com/GoMultiAuth/GoMultiAuth/internal/providers/sqldb"
	"github.com/GoMultiAuth/GoMultiAuth/internal/providers/static"
	"github.com/GoMultiAuth/GoMultiAuth/internal/web"
	"github.com/GoMultiAuth/GoMultiAuth/internal/web/session"
)

// Daemon represents the main application daemon.
type Daemon struct {
	cfg        *config.Config
	webService *web.Service
}

// Start starts the Daemon's web service and blocks until it has shut
// down gracefully.
func (d *Daemon) Start() error {
	go d.webService.WaitShutdown()

	return d.webService.Start(fmt.Sprintf(":%d", d.cfg.Webserver.Port))
}

// New creates a new Daemon instance with the provided configuration.
func New(cfg *config.Config) *Daemon {
	if cfg == nil {
		log.Fatal().Msg("config is nil")
		return nil
	}

	db := openDatabase(cfg)

	if err := sqldb.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}

	seed(cfg, db)

	broker := newBroker(cfg, db)

	// Initialize fiber session store
	session.Init(sessionStorage(cfg))

	return &Daemon{
		cfg:        cfg,
		webService: web.New(cfg, broker),
	}
}

// openDatabase opens the configured database engine with zerolog-backed
// query logging.
func openDatabase(cfg *config.Config) *gorm.DB {
	gormCfg := &gorm.Config{
		Logger: gormlogger.New(stdlogger.New(), gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond, //nolint:mnd
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	}

	var dialector gorm.Dialector

	switch cfg.DB.GormEngine {
	case "mysql":
		dialector = gormmysql.Open(dsn.Create(cfg))
	case "postgres":
		dialector = gormpostgres.Open(dsn.CreatePostgres(cfg))
	default:
		dialector = gormsqlite.Open(dsn.CreateSQLite(cfg))
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		log.Fatal().Err(err).Str("engine", cfg.DB.GormEngine).Msg("failed to connect database")
	}

	return db
}

// newBroker registers every provider implementation and initializes the
// broker from the configuration.
func newBroker(cfg *config.Config, db *gorm.DB) *multiauth.MultiAuth {
	broker := multiauth.New()

	registrations := []error{
		broker.RegisterAuthProviderType(static.AuthProviderType()),
		broker.RegisterAuthProviderType(ldapauth.AuthProviderType()),
		broker.RegisterAuthProviderType(oidc.AuthProviderType()),
		broker.RegisterAuthProviderType(sqldb.AuthProviderType(db)),
		broker.RegisterIdentityProviderType(static.IdentityProviderType()),
		broker.RegisterIdentityProviderType(ldapauth.IdentityProviderType()),
		broker.RegisterIdentityProviderType(sqldb.IdentityProviderType(db)),
	}

	for _, err := range registrations {
		if err != nil {
			log.Fatal().Err(err).Msg("failed to register provider type")
		}
	}

	broker.OnUserResolved(func(users []*multiauth.UserInfo) {
		for _, user := range users {
			log.Debug().
				Str("provider", user.Provider).
				Str("identifier", user.Identifier).
				Msg("user resolved")
		}
	})

	if err := broker.Initialize(cfg.MultiAuth.BrokerOptions()); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize auth broker")
	}

	return broker
}

// sessionStorage picks the session backend: the configured database
// engine where possible, process memory otherwise.
func sessionStorage(cfg *config.Config) storage.Storage {
	switch cfg.DB.GormEngine {
	case "mysql":
		return sessionmysql.New(sessionmysql.Config{
			ConnectionURI: dsn.Create(cfg),
			Table:         "sessions",
		})
	case "postgres":
		return sessionpostgres.New(sessionpostgres.Config{
			ConnectionURI: dsn.CreatePostgres(cfg),
			Table:         "sessions",
		})
	default:
		return memorystorage.New()
	}
}
