// Package cmd defines the CLI commands for the stacklytics executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"stacklytics/internal/config"
	"stacklytics/internal/logging"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stacklytics",
		Short: "Newsletter archive scraper and analytics service",
		Long: `stacklytics collects newsletter archives page by page, stores the
posts in Postgres, and serves engagement, growth, and content reports
over HTTP.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is built-in defaults plus STACKLYTICS_* env)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newScrapeCmd())

	return cmd
}

// loadRuntime loads configuration and builds the root logger; every
// subcommand starts here.
func loadRuntime() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
