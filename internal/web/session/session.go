// Package session stores per-browser state in a pluggable storage
// backend, keyed by a random session ID carried in a cookie.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/gofiber/storage"

	"github.com/GoMultiAuth/GoMultiAuth/internal/multiauth"
)

// Store is the global session store instance.
var Store *session.Store

// Data represents the session data structure.
type Data struct {
	// User is the resolved canonical user, nil before login.
	User *multiauth.UserInfo
	// OtherUsers holds further matches when every link is resolved.
	OtherUsers []*multiauth.UserInfo

	// NextURL is where the browser wanted to go before it was sent to
	// the login page. Consumed by the login flow.
	NextURL string
	// AuthFailed marks a failed login attempt. It suppresses the
	// automatic redirect to a lone provider so the user sees the
	// failure instead of bouncing straight back to it.
	AuthFailed bool
	// Flash is a one-shot message shown on the next login page render.
	Flash string
	// FlashCategory classifies the flash message for rendering.
	FlashCategory string
	// OAuthState is the pending state value of an external login
	// handshake.
	OAuthState string
}

// LoggedIn reports whether the session carries a resolved user.
func (s *Data) LoggedIn() bool {
	return s.User != nil
}

// Write writes the session data for the given session ID with an expiration duration.
func (s *Data) Write(sessionID string, exp time.Duration) error {
	out, err := json.Marshal(s)
	if err != nil {
		return err
	}

	return Store.Storage.Set(sessionID, out, exp)
}

// Read reads the session data for the given session ID.
func (s *Data) Read(sessionID string) error {
	byteData, err := Store.Storage.Get(sessionID)
	if err != nil {
		return err
	}

	return json.Unmarshal(byteData, s)
}

// Delete removes the session from the store.
func Delete(sessionID string) error {
	return Store.Storage.Delete(sessionID)
}

// Init initializes the session store with the provided storage backend.
func Init(storage storage.Storage) {
	if storage == nil {
		panic("storage is nil")
	}

	Store = session.New(session.Config{
		Storage: storage,
	})
}

// GenerateSessionID generates a new secure random session ID.
func GenerateSessionID() (string, error) {
	// 32 bytes = 256 bits
	b := make([]byte, 32) //nolint:mnd
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
