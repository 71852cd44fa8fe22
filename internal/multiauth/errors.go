package multiauth

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is the root of all startup-time configuration
	// failures: broken provider links, unknown provider types or
	// duplicate single-instance providers. An application must not
	// start while its broker reports this error.
	ErrConfiguration = errors.New("invalid multiauth configuration")

	// ErrNoUserCallback is returned when a login is resolved before a
	// user callback has been registered with OnUserResolved.
	ErrNoUserCallback = errors.New("no user callback has been registered")

	// ErrProviderNotInMap is returned when an AuthInfo references an auth
	// provider that has no entry in the canonical provider map. The map is
	// validated at startup, so hitting this at runtime is a programming
	// error rather than an authentication failure.
	ErrProviderNotInMap = errors.New("auth provider is not present in the provider map")
)

// AuthenticationFailed indicates a failure caused by the user, e.g. by
// entering wrong credentials or not authorizing the application. It is
// handled centrally by the login flow and never treated as a fault.
type AuthenticationFailed struct {
	Reason string
	Err    error
}

func (e *AuthenticationFailed) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed: %s: %v", e.Reason, e.Err)
	}

	return "authentication failed: " + e.Reason
}

func (e *AuthenticationFailed) Unwrap() error {
	return e.Err
}

// UserRetrievalFailed indicates that resolving an authentication into a
// canonical user did not produce a required result, or that a refresh or
// search request referenced an unknown or incapable identity provider.
type UserRetrievalFailed struct {
	Reason string
	Err    error
}

func (e *UserRetrievalFailed) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("user retrieval failed: %s: %v", e.Reason, e.Err)
	}

	return "user retrieval failed: " + e.Reason
}

func (e *UserRetrievalFailed) Unwrap() error {
	return e.Err
}

// GroupRetrievalFailed indicates that a group lookup referenced an unknown
// provider or one without group support.
type GroupRetrievalFailed struct {
	Reason string
	Err    error
}

func (e *GroupRetrievalFailed) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("group retrieval failed: %s: %v", e.Reason, e.Err)
	}

	return "group retrieval failed: " + e.Reason
}

func (e *GroupRetrievalFailed) Unwrap() error {
	return e.Err
}

// IsAuthenticationFailed reports whether err is an expected per-attempt
// authentication failure that should be flashed to the user instead of
// being propagated as a fault.
func IsAuthenticationFailed(err error) bool {
	var af *AuthenticationFailed
	return errors.As(err, &af)
}
