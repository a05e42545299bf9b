package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/crawlpoint/connector/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the connector configuration file.

Checks for syntax errors, missing required fields, and invalid values.

Examples:
  # Validate default config
  connectord config validate

  # Validate specific config file
  connectord config validate --config /etc/connector/config.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	// Get config path from parent's persistent flag
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	displayPath := configPath
	if displayPath == "" {
		displayPath = config.GetDefaultConfigPath()
	}

	var warnings []string
	if cfg.Session.JWTSecret == "" {
		warnings = append(warnings, "Session secret not configured - end-user requests will be anonymous")
	}
	if len(cfg.Adaptor.Exec.RetrieverCommand) == 0 {
		warnings = append(warnings, "No retriever command configured - an in-process adaptor must be wired in code")
	}
	if cfg.Adaptor.FullListingSchedule == "" && !cfg.Adaptor.PushOnStart {
		warnings = append(warnings, "No listing schedule configured - documents reach the indexer only through manual feeds")
	}

	fmt.Printf("Configuration file: %s\n", displayPath)
	fmt.Println("Validation: OK")

	if len(warnings) > 0 {
		fmt.Println("\nWarnings:")
		for _, w := range warnings {
			fmt.Printf("  - %s\n", w)
		}
	}

	fmt.Printf("\nConfiguration summary:\n")
	fmt.Printf("  Datasource:      %s\n", cfg.Feed.Datasource)
	fmt.Printf("  Retrieval port:  %d\n", cfg.Server.Port)
	fmt.Printf("  Dashboard port:  %d\n", cfg.Dashboard.Port)
	fmt.Printf("  Log level:       %s\n", cfg.Logging.Level)

	return nil
}
