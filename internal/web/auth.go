package web

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/GoMultiAuth/GoMultiAuth/internal/config"
	"github.com/GoMultiAuth/GoMultiAuth/internal/web/handler/login"
	"github.com/GoMultiAuth/GoMultiAuth/internal/web/session"
)

// nextURLExpiry bounds how long a pre-login session remembers where the
// browser wanted to go.
const nextURLExpiry = 30 * time.Minute

// AuthMiddleware returns a Fiber middleware that checks for user
// authentication. Unauthenticated requests to protected pages remember
// their target URL in the session and are redirected to the login flow.
func AuthMiddleware(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		originalURL := strings.ToLower(c.OriginalURL())
		if strings.HasPrefix(originalURL, "/static") ||
			strings.HasPrefix(originalURL, "/checkalive") ||
			strings.HasPrefix(originalURL, "/logout") {
			return c.Next()
		}

		isLoginPage := IsLoginPage(c)

		// get session cookie
		loginCookie := c.Cookies("session")

		// check session validity
		sessData := new(session.Data)
		if loginCookie != "" {
			_ = sessData.Read(loginCookie)
		}

		if sessData.LoggedIn() {
			if isLoginPage {
				return c.Redirect(login.DefaultNextURL)
			}

			return c.Next()
		}

		if isLoginPage {
			return c.Next()
		}

		// remember where the browser wanted to go, creating an anonymous
		// session when the visitor has none yet
		if c.Method() == fiber.MethodGet {
			sessionID := loginCookie

			if sessionID == "" {
				if id, err := session.GenerateSessionID(); err == nil {
					sessionID = id
					setAnonymousCookie(c, cfg, id)
				}
			}

			if sessionID != "" {
				sessData.NextURL = c.OriginalURL()
				// the pre-login session is short-lived
				_ = sessData.Write(sessionID, nextURLExpiry)
			}
		}

		return c.Redirect(login.Path)
	}
}

func setAnonymousCookie(c *fiber.Ctx, cfg *config.Config, sessionID string) {
	cookieSettings := &fiber.Cookie{
		Name:     "session",
		Value:    sessionID,
		Domain:   cfg.Webserver.Domain,
		MaxAge:   int(nextURLExpiry.Seconds()),
		Secure:   true,
		HTTPOnly: true,
		SameSite: "Lax",
	}

	if cfg.DevMode {
		cookieSettings.Secure = false
	}

	c.Cookie(cookieSettings)
}

// IsLoginPage checks if the current request is for the login page.
func IsLoginPage(c *fiber.Ctx) bool {
	originalURL := strings.ToLower(c.OriginalURL())
	return strings.HasPrefix(originalURL, login.Path)
}
