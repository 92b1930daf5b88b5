package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rpattn/contentql/internal/config"
	"github.com/rpattn/contentql/internal/logging"
)

var (
	configPath string
	logLevel   string
	rootCmd    = &cobra.Command{
		Use:   "contentql",
		Short: "contentql: multi-tenant content search service",
		Long: `contentql serves filtered, sorted, cursor-paginated search over posts,
media, users and taxonomies for many organizations from one store.

Configuration is read from config.yaml in --config and CONTENTQL_* environment
variables, e.g. CONTENTQL_DATABASE_HOST overrides database.host.`,
		SilenceUsage: true,
	}
)

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", ".", "directory containing config.yaml")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")
}

// loadConfig reads configuration and builds the logger for a command.
func loadConfig() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("failed to build logger: %w", err)
	}
	if cfg.File != "" {
		logger.Info("[CONFIG] loaded config file", zap.String("file", cfg.File))
	}
	return cfg, logger, nil
}
