// Package app implements the main application commands.
package app

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "gomultiauth",
	Short: "GoMultiAuth is a pluggable authentication and identity broker",
	Long: `GoMultiAuth brokers logins across multiple authentication backends
(form-based, LDAP, OpenID Connect) and resolves them against identity
providers into canonical user records.`,
	Args: cobra.OnlyValidArgs,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
