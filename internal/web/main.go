// Package web hosts the HTTP surface of the broker: the login flow,
// the profile page and the liveness endpoint.
package web

import (
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/encryptcookie"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/template/html/v2"
	"github.com/rs/zerolog/log"

	"github.com/GoMultiAuth/GoMultiAuth/internal/config"
	fiberlogger "github.com/GoMultiAuth/GoMultiAuth/internal/logger/adapter/fiber"
	"github.com/GoMultiAuth/GoMultiAuth/internal/multiauth"
	"github.com/GoMultiAuth/GoMultiAuth/internal/providers/ldapauth"
	"github.com/GoMultiAuth/GoMultiAuth/internal/web/handler/login"
	"github.com/GoMultiAuth/GoMultiAuth/internal/web/handler/logout"
	"github.com/GoMultiAuth/GoMultiAuth/internal/web/handler/profile"
)

// Service represents the web service.
type Service struct {
	App          *fiber.App
	cfg          *config.Config
	broker       *multiauth.MultiAuth
	fastShutDown bool
	alive        atomic.Bool
}

// Start starts the web service on the given address.
func (s *Service) Start(addr string) error {
	var doneFiber = make(chan bool)

	go func() {
		if err := s.App.Listen(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Msgf("fiber listen error: %v", err)
		}

		doneFiber <- true
	}()

	<-doneFiber // wait for fiber to stop

	return nil
}

// WaitShutdown waits for graceful shutdown of the service.
func (s *Service) WaitShutdown() {
	irqSig := make(chan os.Signal, 1)
	signal.Notify(irqSig, syscall.SIGINT, syscall.SIGTERM)

	// Wait interrupt or shutdown request through /shutdown
	sig := <-irqSig
	log.Info().Msgf("shutdown request (signal: %v)", sig)

	// Graceful shutdown for reverse proxies: set status to fail, so checkalive returns fail.
	if !s.fastShutDown {
		log.Info().Msgf(
			"graceful shutdown: return 503 while %d seconds to let LB to remove this pod from active targets",
			s.cfg.Webserver.ShutDownTime,
		)

		s.alive.Store(false)
		time.Sleep(time.Duration(s.cfg.Webserver.ShutDownTime) * time.Second)
	}

	// stop fiber http server
	serverShutdown := make(chan struct{})

	go func() {
		log.Info().Msg("stopping http server ...")

		err := s.App.Shutdown()
		if err != nil {
			log.Error().Err(err).Msg("")
		}

		serverShutdown <- struct{}{}
	}()

	<-serverShutdown
	log.Info().Msg("http server was stopped ... good bye...")
}

// New creates a new web service with the given configuration and broker.
func New(cfg *config.Config, broker *multiauth.MultiAuth) *Service {
	if cfg == nil {
		panic("config cannot be nil")
	}

	if broker == nil {
		panic("broker cannot be nil")
	}

	httpFS := http.FS(templateEmbedFS{embeddedTemplates})
	templateEngine := html.NewFileSystem(httpFS, ".gohtml")

	// in debug mode, use local filesystem for templates
	if cfg.DevMode {
		templateEngine = html.New("./internal/web/templates", ".gohtml")
		templateEngine.ShouldReload = true

		log.Warn().Msg("debug mode enabled: using local filesystem for templates")
	}

	// create fiber app
	app := fiber.New(
		fiber.Config{
			ReadBufferSize: 8192,
			AppName:        "GoMultiAuth",
			CaseSensitive:  true,
			Prefork:        false,
			Immutable:      true,
			Views:          templateEngine,
		},
	)

	if !cfg.Webserver.DisableRecover {
		app.Use(recover.New())
	}

	// cookie values leave the process encrypted when a key is configured
	if cfg.Webserver.CookieEncryptionKey != "" {
		app.Use(encryptcookie.New(encryptcookie.Config{
			Key: cfg.Webserver.CookieEncryptionKey,
		}))
	}

	// access logging
	app.Use(fiberlogger.New(fiberlogger.Config{
		Config:        cfg.Log,
		CheckAliveURI: "/checkalive",
	}))

	// serve embedded static files
	app.Use("/static",
		filesystem.New(
			filesystem.Config{
				Root:       http.FS(embeddedStaticFiles),
				PathPrefix: "static",
				Browse:     cfg.Webserver.BrowseStatic,
			},
		),
	)

	// init web service
	service := &Service{
		cfg:    cfg,
		App:    app,
		broker: broker,
	}
	service.alive.Store(true)

	app.Get("/checkalive", service.checkAlive)

	// one shared directory connection cache per request
	app.Use(LDAPSessionMiddleware)

	// session auth middleware
	app.Use(AuthMiddleware(cfg))

	// init handlers (they register their own routes)
	if err := login.Handler.Init(app, cfg, broker); err != nil {
		log.Fatal().Err(err).Msg("failed to init login handler")
	}

	logout.Handler.Init(app, cfg)

	if err := profile.Handler.Init(app, cfg, broker); err != nil {
		log.Fatal().Err(err).Msg("failed to init profile handler")
	}

	// redirect root to the profile page
	app.Get("/", func(c *fiber.Ctx) error {
		return c.Redirect(profile.Path)
	})

	return service
}

// LDAPSessionMiddleware installs one directory connection cache per
// request, so every LDAP operation of the request reuses its connections
// and all of them are unbound when the request ends.
func LDAPSessionMiddleware(c *fiber.Ctx) error {
	ctx, sess := ldapauth.WithSession(c.UserContext())
	defer sess.Close()

	c.SetUserContext(ctx)

	return c.Next()
}

// checkAlive reports liveness; during graceful shutdown it returns 503
// so load balancers stop routing to this instance.
func (s *Service) checkAlive(c *fiber.Ctx) error {
	if !s.alive.Load() {
		return c.SendStatus(fiber.StatusServiceUnavailable)
	}

	return c.SendStatus(fiber.StatusOK)
}
