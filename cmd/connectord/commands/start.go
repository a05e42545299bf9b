package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/crawlpoint/connector/internal/logger"
	"github.com/crawlpoint/connector/internal/telemetry"
	"github.com/crawlpoint/connector/pkg/adaptor/cmdadaptor"
	"github.com/crawlpoint/connector/pkg/authz"
	"github.com/crawlpoint/connector/pkg/config"
	"github.com/crawlpoint/connector/pkg/daemon"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the connector daemon",
	Long: `Start the connector daemon with the specified configuration.

The daemon initializes the repository adaptor, schedules identifier
listings, and serves document content to the indexer until interrupted.

Examples:
  # Start with the default config location
  connectord start

  # Start with a custom config file
  connectord start --config /etc/connector/config.yaml

  # Override single settings through the environment
  CONNECTOR_LOGGING_LEVEL=DEBUG connectord start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "connector",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", logger.KeyError, err.Error())
		}
	}()

	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "connector",
		ServiceVersion: Version,
		Datasource:     cfg.Feed.Datasource,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", logger.KeyError, err.Error())
		}
	}()

	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))
	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)

	adpt, err := cmdadaptor.New(cmdadaptor.Config{
		ListerCommand:     cfg.Adaptor.Exec.ListerCommand,
		RetrieverCommand:  cfg.Adaptor.Exec.RetrieverCommand,
		AuthorizerCommand: cfg.Adaptor.Exec.AuthorizerCommand,
	})
	if err != nil {
		return err
	}

	opts := daemon.Options{
		Config:  cfg,
		Adaptor: adpt,
	}
	if len(cfg.Adaptor.Exec.AuthorizerCommand) > 0 {
		opts.Authorizer = authz.AuthorizerFunc(adpt.Authorize)
	}

	app, err := daemon.New(opts)
	if err != nil {
		return err
	}

	// Reapply mutable settings when the config file changes on disk.
	if path := getConfigSource(GetConfigFile()); config.DefaultConfigExists() || GetConfigFile() != "" {
		watcher, err := config.NewWatcher(path)
		if err != nil {
			logger.Warn("Config watch unavailable", logger.KeyError, err.Error())
		} else {
			watcher.Register(func(next *config.Config) {
				logger.SetLevel(next.Logging.Level)
				logger.SetFormat(next.Logging.Format)
				logger.Info("Applied logging settings from changed config",
					"level", next.Logging.Level, "format", next.Logging.Format)
			})
			watcher.Start()
			defer watcher.Stop()
		}
	}

	logger.Info("Connector starting. Press Ctrl+C to stop.")
	return app.Run(ctx)
}

// getConfigSource returns a description of where the config was loaded from.
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}
