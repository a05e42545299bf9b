package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/crawlpoint/connector/pkg/config"
)

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Display current configuration",
	Long: `Display the effective connector configuration as YAML.

Sensitive values (session secret, S3 credentials, dashboard password hash)
are redacted.

Examples:
  # Dump the effective config
  connectord config dump

  # Dump a specific config file
  connectord config dump --config /etc/connector/config.yaml`,
	RunE: runConfigDump,
}

func runConfigDump(cmd *cobra.Command, args []string) error {
	// Get config path from parent's persistent flag
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	out, err := config.Dump(cfg)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	return nil
}
