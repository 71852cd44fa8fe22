package ldapauth

import (
	"errors"
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeError(t *testing.T) {
	tests := []struct {
		name string
		code uint16
		want error
	}{
		{"network", ldap.ErrorNetwork, ErrServerUnreachable},
		{"credentials", ldap.LDAPResultInvalidCredentials, ErrInvalidBindCredentials},
		{"size limit", ldap.LDAPResultSizeLimitExceeded, ErrSizeLimitExceeded},
		{"time limit", ldap.LDAPResultTimeLimitExceeded, ErrTimeLimitExceeded},
		{"filter", ldap.ErrorFilterCompile, ErrInvalidFilter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := ldap.NewError(tt.code, errors.New("boom"))
			err := normalizeError(raw)

			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNormalizeError_PassThrough(t *testing.T) {
	assert.NoError(t, normalizeError(nil))

	unknown := errors.New("boom")
	assert.Same(t, unknown, normalizeError(unknown))
}
