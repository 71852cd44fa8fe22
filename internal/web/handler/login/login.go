// Package login implements the login flow: the provider selector, the
// credential form for local providers and the redirect/callback
// handshake for external ones.
package login

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/GoMultiAuth/GoMultiAuth/internal/config"
	"github.com/GoMultiAuth/GoMultiAuth/internal/multiauth"
	"github.com/GoMultiAuth/GoMultiAuth/internal/providers/oidc"
	"github.com/GoMultiAuth/GoMultiAuth/internal/web/handler"
	"github.com/GoMultiAuth/GoMultiAuth/internal/web/session"
)

const (
	// Path is the path to the login page.
	Path = "/login"

	// DefaultNextURL is where a fresh login lands when the user did not
	// come from a protected page.
	DefaultNextURL = "/profile"

	defaultSessionExpiry = 24 * time.Hour
)

// Service is the login handler service.
type Service struct {
	handler.Service

	cfg    *config.Config
	broker *multiauth.MultiAuth
}

// Handler is the login handler.
var Handler = Service{}

// Init initializes the login handler.
func (s *Service) Init(app *fiber.App, cfg *config.Config, broker *multiauth.MultiAuth) error {
	if app == nil || cfg == nil || broker == nil {
		return errors.New(handler.ErrNilACBFatalLogMsg)
	}

	s.cfg = cfg
	s.broker = broker

	// register routes
	app.Route(Path, func(router fiber.Router) {
		router.Get(handler.RootPath, s.Get)
		router.Get("/:provider", s.GetProvider)
		router.Post("/:provider", s.PostProvider)
		router.Get("/:provider/callback", s.Callback)
	})

	return nil
}

func (s *Service) sessionExpiry() time.Duration {
	if s.cfg.Webserver.Session.ExpiryTime > 0 {
		return s.cfg.Webserver.Session.ExpiryTime
	}

	return defaultSessionExpiry
}

func (s *Service) selectorTemplate() string {
	if s.cfg.MultiAuth.LoginSelectorTemplate != "" {
		return s.cfg.MultiAuth.LoginSelectorTemplate
	}

	return "login"
}

func (s *Service) formTemplate() string {
	if s.cfg.MultiAuth.LoginFormTemplate != "" {
		return s.cfg.MultiAuth.LoginFormTemplate
	}

	return "login_form"
}

// failureMessage applies the configured failure message; "{error}" is
// replaced with the failure detail.
func (s *Service) failureMessage(detail string) string {
	if s.cfg.MultiAuth.FailureMessage == "" {
		return detail
	}

	return strings.ReplaceAll(s.cfg.MultiAuth.FailureMessage, "{error}", detail)
}

func (s *Service) failureCategory() string {
	if s.cfg.MultiAuth.FailureCategory != "" {
		return s.cfg.MultiAuth.FailureCategory
	}

	return "error"
}

// currentSession returns the browser's session ID and data, creating a
// fresh anonymous session (and setting its cookie) when there is none.
func (s *Service) currentSession(c *fiber.Ctx) (string, *session.Data, error) {
	data := new(session.Data)

	if sessionID := c.Cookies("session"); sessionID != "" {
		if err := data.Read(sessionID); err == nil {
			return sessionID, data, nil
		}

		*data = session.Data{}
	}

	sessionID, err := session.GenerateSessionID()
	if err != nil {
		return "", nil, err
	}

	s.setSessionCookie(c, sessionID)

	return sessionID, data, nil
}

func (s *Service) setSessionCookie(c *fiber.Ctx, sessionID string) {
	cookieSettings := &fiber.Cookie{
		Name:     "session",
		Value:    sessionID,
		Domain:   s.cfg.Webserver.Domain,
		MaxAge:   int(s.sessionExpiry().Seconds()),
		Secure:   true,
		HTTPOnly: true,
		SameSite: "Lax", // TODO: make this configurable
	}

	if s.cfg.DevMode {
		cookieSettings.Secure = false
	}

	c.Cookie(cookieSettings)
}

// Get renders the provider selector. With exactly one configured auth
// provider and no failed attempt in the session, the selector is
// skipped and the browser goes straight to that provider.
func (s *Service) Get(c *fiber.Ctx) error {
	sessionID, data, err := s.currentSession(c)
	if err != nil {
		return err
	}

	providers := s.broker.AuthProviders()

	if len(providers) == 1 && !data.AuthFailed {
		return c.Redirect(Path + "/" + providers[0].Name())
	}

	// failed flag and flash are one-shot
	flash := data.Flash
	flashCategory := data.FlashCategory

	if data.AuthFailed || data.Flash != "" {
		data.AuthFailed = false
		data.Flash = ""
		data.FlashCategory = ""

		if err := data.Write(sessionID, s.sessionExpiry()); err != nil {
			return err
		}
	}

	type providerView struct {
		Name  string
		Title string
	}

	views := make([]providerView, 0, len(providers))
	for _, p := range providers {
		views = append(views, providerView{Name: p.Name(), Title: p.Title()})
	}

	return c.Render(s.selectorTemplate(), fiber.Map{
		"title":     s.cfg.Title,
		"providers": views,
		"flash":     flash,
		"category":  flashCategory,
	})
}

// GetProvider renders the credential form for a local provider or
// starts the handshake of an external one.
func (s *Service) GetProvider(c *fiber.Ctx) error {
	name := c.Params("provider")

	provider, ok := s.broker.AuthProvider(name)
	if !ok {
		return fiber.ErrNotFound
	}

	switch p := provider.(type) {
	case multiauth.LocalLoginProvider:
		return s.renderForm(c, p, "")
	case multiauth.ExternalLoginProvider:
		return s.startExternal(c, p)
	default:
		return fiber.ErrNotFound
	}
}

func (s *Service) renderForm(c *fiber.Ctx, provider multiauth.AuthProvider, failure string) error {
	return c.Render(s.formTemplate(), fiber.Map{
		"title":    s.cfg.Title,
		"provider": provider.Name(),
		"name":     provider.Title(),
		"error":    failure,
	})
}

func (s *Service) startExternal(c *fiber.Ctx, provider multiauth.ExternalLoginProvider) error {
	sessionID, data, err := s.currentSession(c)
	if err != nil {
		return err
	}

	state, err := oidc.GenerateStateToken()
	if err != nil {
		return err
	}

	data.OAuthState = state
	if err := data.Write(sessionID, s.sessionExpiry()); err != nil {
		return err
	}

	target, err := provider.LoginURL(c.UserContext(), state)
	if err != nil {
		log.Error().Err(err).Str("provider", provider.Name()).Msg("failed to build login URL")

		return s.authFailed(c, "login is currently unavailable")
	}

	return c.Redirect(target)
}

// PostProvider processes a submitted credential form.
func (s *Service) PostProvider(c *fiber.Ctx) error {
	name := c.Params("provider")

	provider, ok := s.broker.AuthProvider(name)
	if !ok {
		return fiber.ErrNotFound
	}

	local, ok := provider.(multiauth.LocalLoginProvider)
	if !ok {
		return fiber.ErrNotFound
	}

	credentials := multiauth.Fields{
		"username": c.FormValue("username"),
		"password": c.FormValue("password"),
	}

	authInfo, err := local.Login(c.UserContext(), credentials)
	if err != nil {
		return s.handleLoginError(c, name, err)
	}

	return s.resolve(c, authInfo)
}

// Callback completes the handshake of an external provider.
func (s *Service) Callback(c *fiber.Ctx) error {
	name := c.Params("provider")

	provider, ok := s.broker.AuthProvider(name)
	if !ok {
		return fiber.ErrNotFound
	}

	external, ok := provider.(multiauth.ExternalLoginProvider)
	if !ok {
		return fiber.ErrNotFound
	}

	sessionID, data, err := s.currentSession(c)
	if err != nil {
		return err
	}

	state := data.OAuthState
	data.OAuthState = ""

	if err := data.Write(sessionID, s.sessionExpiry()); err != nil {
		return err
	}

	if state == "" || c.Query("state") != state {
		return s.authFailed(c, "login session expired, please try again")
	}

	authInfo, err := external.HandleCallback(c.UserContext(), collectQuery(c))
	if err != nil {
		return s.handleLoginError(c, name, err)
	}

	return s.resolve(c, authInfo)
}

// resolve runs the identity resolution for a successful authentication
// and establishes the logged-in session.
func (s *Service) resolve(c *fiber.Ctx, authInfo *multiauth.AuthInfo) error {
	users, err := s.broker.HandleAuthInfo(c.UserContext(), authInfo)
	if err != nil {
		return s.handleLoginError(c, authInfo.ProviderName(), err)
	}

	// possible when unknown users are allowed to authenticate
	if len(users) == 0 {
		return s.authFailed(c, "no account found for this login")
	}

	sessionID, data, err := s.currentSession(c)
	if err != nil {
		return err
	}

	next := data.NextURL
	if next == "" {
		next = DefaultNextURL
	}

	*data = session.Data{User: users[0]}
	if len(users) > 1 {
		data.OtherUsers = users[1:]
	}

	if err := data.Write(sessionID, s.sessionExpiry()); err != nil {
		return err
	}

	log.Info().
		Str("provider", data.User.Provider).
		Str("identifier", data.User.Identifier).
		Msg("login succeeded")

	return c.Redirect(next)
}

// handleLoginError turns failed authentications and resolutions into a
// flash on the selector; anything else bubbles up as a server error.
func (s *Service) handleLoginError(c *fiber.Ctx, provider string, err error) error {
	var (
		authErr *multiauth.AuthenticationFailed
		userErr *multiauth.UserRetrievalFailed
	)

	switch {
	case errors.As(err, &authErr):
		log.Info().Err(err).Str("provider", provider).Msg("authentication failed")

		return s.authFailed(c, "invalid credentials")
	case errors.As(err, &userErr):
		log.Info().Err(err).Str("provider", provider).Msg("user resolution failed")

		return s.authFailed(c, "no account found for this login")
	default:
		log.Error().Err(err).Str("provider", provider).Msg("login failed")

		return err
	}
}

// authFailed records the failure in the session and sends the browser
// back to the selector, where the flash is shown once.
func (s *Service) authFailed(c *fiber.Ctx, detail string) error {
	sessionID, data, err := s.currentSession(c)
	if err != nil {
		return err
	}

	data.AuthFailed = true
	data.Flash = s.failureMessage(detail)
	data.FlashCategory = s.failureCategory()

	if err := data.Write(sessionID, s.sessionExpiry()); err != nil {
		return err
	}

	return c.Redirect(Path)
}

// collectQuery copies the request query parameters into url.Values.
func collectQuery(c *fiber.Ctx) url.Values {
	query := make(url.Values)

	for key, value := range c.Queries() {
		query[key] = append(query[key], value)
	}

	return query
}
