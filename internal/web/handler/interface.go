package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/GoMultiAuth/GoMultiAuth/internal/config"
	"github.com/GoMultiAuth/GoMultiAuth/internal/multiauth"
)

// Service is the interface for a web handler service.
type Service interface {
	Init(app *fiber.App, cfg *config.Config, broker *multiauth.MultiAuth) error
}
