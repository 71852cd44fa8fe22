// Package profile renders the resolved identity of the logged-in user.
package profile

import (
	"errors"
	"sort"

	"github.com/gofiber/fiber/v2"

	"github.com/GoMultiAuth/GoMultiAuth/internal/config"
	"github.com/GoMultiAuth/GoMultiAuth/internal/multiauth"
	"github.com/GoMultiAuth/GoMultiAuth/internal/web/handler"
	"github.com/GoMultiAuth/GoMultiAuth/internal/web/session"
)

// Path is the path of the profile page.
const Path = "/profile"

// Service is the profile handler service.
type Service struct {
	handler.Service

	cfg    *config.Config
	broker *multiauth.MultiAuth
}

// Handler is the profile handler.
var Handler = Service{}

// Init initializes the profile handler.
func (s *Service) Init(app *fiber.App, cfg *config.Config, broker *multiauth.MultiAuth) error {
	if app == nil || cfg == nil || broker == nil {
		return errors.New(handler.ErrNilACBFatalLogMsg)
	}

	s.cfg = cfg
	s.broker = broker

	app.Get(Path, s.Get)

	return nil
}

type attribute struct {
	Key   string
	Value any
}

// Get renders the profile of the session user.
func (s *Service) Get(c *fiber.Ctx) error {
	data := new(session.Data)
	if err := data.Read(c.Cookies("session")); err != nil || !data.LoggedIn() {
		return c.Redirect("/login")
	}

	attributes := make([]attribute, 0, len(data.User.Data))
	for key, value := range data.User.Data {
		attributes = append(attributes, attribute{Key: key, Value: value})
	}

	sort.Slice(attributes, func(i, j int) bool { return attributes[i].Key < attributes[j].Key })

	return c.Render("profile", fiber.Map{
		"title":      s.cfg.Title,
		"provider":   data.User.Provider,
		"identifier": data.User.Identifier,
		"attributes": attributes,
		"others":     data.OtherUsers,
	})
}
