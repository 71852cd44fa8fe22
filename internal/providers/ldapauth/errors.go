package ldapauth

import (
	"errors"
	"fmt"

	"github.com/go-ldap/ldap/v3"
)

// Stable error kinds for directory failures. Callers can distinguish
// "retry later" conditions (unreachable server, exceeded limits) from
// "fix the configuration" ones (bad credentials, broken filter, missing
// paging support) with errors.Is.
var (
	// ErrServerUnreachable indicates a network-level failure talking to
	// the directory server.
	ErrServerUnreachable = errors.New("the ldap server is unreachable")

	// ErrInvalidURI indicates the configured server URI cannot be parsed.
	ErrInvalidURI = errors.New("invalid ldap server uri")

	// ErrInvalidBindCredentials indicates the configured bind DN or
	// password was rejected.
	ErrInvalidBindCredentials = errors.New("invalid bind credentials")

	// ErrSizeLimitExceeded indicates the server-side size limit was hit;
	// a smaller page size usually fixes it.
	ErrSizeLimitExceeded = errors.New("the ldap size limit was exceeded")

	// ErrTimeLimitExceeded indicates the operation ran past the
	// server-side or configured time limit.
	ErrTimeLimitExceeded = errors.New("the ldap time limit was exceeded")

	// ErrInvalidFilter indicates the search filter was rejected, most
	// likely due to a bad user or group filter setting.
	ErrInvalidFilter = errors.New("invalid ldap search filter")

	// ErrPagingNotSupported indicates the server ignores the RFC 2696
	// paged results control; further pages must not be requested.
	ErrPagingNotSupported = errors.New("the ldap server does not support paged results")
)

// normalizeError maps go-ldap failures to the stable error kinds above.
// Errors that do not correspond to a known kind pass through unchanged.
func normalizeError(err error) error {
	switch {
	case err == nil:
		return nil
	case ldap.IsErrorWithCode(err, ldap.ErrorNetwork):
		return fmt.Errorf("%w: %w", ErrServerUnreachable, err)
	case ldap.IsErrorWithCode(err, ldap.LDAPResultInvalidCredentials):
		return fmt.Errorf("%w: %w", ErrInvalidBindCredentials, err)
	case ldap.IsErrorWithCode(err, ldap.LDAPResultSizeLimitExceeded):
		return fmt.Errorf("%w: %w", ErrSizeLimitExceeded, err)
	case ldap.IsErrorWithCode(err, ldap.LDAPResultTimeLimitExceeded):
		return fmt.Errorf("%w: %w", ErrTimeLimitExceeded, err)
	case ldap.IsErrorWithCode(err, ldap.ErrorFilterCompile):
		return fmt.Errorf("%w: %w", ErrInvalidFilter, err)
	default:
		return err
	}
}
