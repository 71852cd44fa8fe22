// Package main provides the entry point for the GoMultiAuth service.
// It starts a web server using the Fiber framework that lets users log
// in through any configured authentication provider (form-based, LDAP or
// OpenID Connect) and resolves the login against the configured identity
// providers into canonical user records. Provider wiring, the resolution
// policy and the web server itself are driven by a TOML configuration
// file with an optional JSON override from the environment.
package main
