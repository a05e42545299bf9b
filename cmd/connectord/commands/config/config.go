// Package config implements configuration management subcommands.
package config

import (
	"github.com/spf13/cobra"
)

// Cmd is the config subcommand.
var Cmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
	Long: `Manage connector configuration files.

Subcommands:
  validate  Validate configuration file
  dump      Display current configuration with secrets redacted
  schema    Generate JSON schema for IDE/validation`,
}

func init() {
	Cmd.AddCommand(validateCmd)
	Cmd.AddCommand(dumpCmd)
	Cmd.AddCommand(schemaCmd)
}
