package ldapauth

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/rs/zerolog/log"
)

// Conn couples one bound directory connection with the settings it was
// opened for. State machine: unconnected -> bound -> (query)* -> unbound.
type Conn struct {
	conn     *ldap.Conn
	settings *Settings
}

// dial opens a directory connection and optionally negotiates StartTLS.
// The connection is not bound yet.
func dial(settings *Settings) (*ldap.Conn, error) {
	uri, err := url.Parse(settings.URI)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidURI, err)
	}

	tlsConfig := &tls.Config{
		ServerName:         uri.Hostname(),
		InsecureSkipVerify: !settings.tlsVerify(), //nolint:gosec // explicit "never verify" setting
	}

	conn, err := ldap.DialURL(settings.URI, ldap.DialWithTLSConfig(tlsConfig))
	if err != nil {
		return nil, normalizeError(err)
	}

	if settings.StartTLS {
		if uri.Scheme == "ldaps" {
			log.Warn().Str("uri", settings.URI).
				Msg("unable to start TLS, ldap connection already secured over SSL (ldaps)")
		} else if err := conn.StartTLS(tlsConfig); err != nil {
			closeQuietly(conn)
			return nil, fmt.Errorf("failed to start TLS: %w", normalizeError(err))
		}
	}

	if settings.Timeout > 0 {
		conn.SetTimeout(time.Duration(settings.Timeout) * time.Second)
	}

	return conn, nil
}

// connect dials the directory and binds with the configured service
// credentials.
func connect(settings *Settings) (*Conn, error) {
	conn, err := dial(settings)
	if err != nil {
		return nil, err
	}

	if err := conn.Bind(settings.BindDN, settings.BindPassword); err != nil {
		closeQuietly(conn)
		return nil, normalizeError(err)
	}

	return &Conn{conn: conn, settings: settings}, nil
}

// checkCredentials verifies a user's password by binding a dedicated
// connection with it. Cached service connections are never re-bound; a
// rejected bind would otherwise leave them unusable for the rest of the
// unit of work.
func checkCredentials(settings *Settings, userDN, password string) error {
	conn, err := dial(settings)
	if err != nil {
		return err
	}
	defer closeQuietly(conn)

	return normalizeError(conn.Bind(userDN, password))
}

func closeQuietly(conn *ldap.Conn) {
	// Unbind failures are unactionable at this point.
	if err := conn.Close(); err != nil {
		log.Debug().Err(err).Msg("failed to close ldap connection")
	}
}

// connKey identifies a cached connection by the subset of settings that
// affects its identity.
type connKey struct {
	uri          string
	bindDN       string
	bindPassword string
	tls          bool
	startTLS     bool
}

func keyFor(settings *Settings) connKey {
	return connKey{
		uri:          settings.URI,
		bindDN:       settings.BindDN,
		bindPassword: settings.BindPassword,
		tls:          settings.tlsVerify(),
		startTLS:     settings.StartTLS,
	}
}

// Session caches directory connections for one logical unit of work, for
// example one HTTP request. It is not safe for concurrent use; each unit
// of work owns its own session and must Close it on every exit path.
type Session struct {
	conns map[connKey]*Conn
}

// NewSession creates an empty connection cache.
func NewSession() *Session {
	return &Session{conns: make(map[connKey]*Conn)}
}

// Conn returns the cached connection for the given settings, dialing and
// binding a new one on first use.
func (s *Session) Conn(settings *Settings) (*Conn, error) {
	key := keyFor(settings)

	if conn, ok := s.conns[key]; ok {
		return conn, nil
	}

	conn, err := connect(settings)
	if err != nil {
		return nil, err
	}

	s.conns[key] = conn

	return conn, nil
}

// Close unbinds every cached connection. Unbind errors are swallowed;
// there is nothing useful to do about a failure while disconnecting.
func (s *Session) Close() {
	for key, conn := range s.conns {
		closeQuietly(conn.conn)
		delete(s.conns, key)
	}
}

type sessionContextKey struct{}

// WithSession attaches a fresh connection cache to the context so that
// every LDAP operation within the unit of work shares connections. The
// caller owns the returned session and must Close it when the unit ends.
func WithSession(ctx context.Context) (context.Context, *Session) {
	session := NewSession()
	return context.WithValue(ctx, sessionContextKey{}, session), session
}

// SessionFromContext returns the connection cache installed on the
// context by WithSession, if any.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	session, ok := ctx.Value(sessionContextKey{}).(*Session)
	return session, ok
}

// acquireSession returns the session carried by the context, or a private
// one-shot session plus a release function when there is none. The
// release function is a no-op for shared sessions; their owner closes
// them at the end of the unit of work.
func acquireSession(ctx context.Context) (*Session, func()) {
	if session, ok := SessionFromContext(ctx); ok {
		return session, func() {}
	}

	session := NewSession()

	return session, session.Close
}
