package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/varastohq/varasto/internal/config"
	"github.com/varastohq/varasto/telemetry"
)

var (
	version = "0.1.0"
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "varasto",
		Short: "Infrastructure inventory catalog",
		Long: `Varasto discovers infrastructure resources across providers,
reconciles them into a durable catalog and tracks how they change
over time.`,
		Version: version,
	}
)

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to config file")
}

// loadConfig reads the configured file or falls back to defaults.
func loadConfig() (*config.Config, error) {
	if cfgFile == "" {
		return config.Default(), nil
	}
	return config.Load(cfgFile)
}

func newLogger(cfg *config.Config) zerolog.Logger {
	return telemetry.NewLogger(cfg.Telemetry.ServiceName, cfg.Log.Level)
}
