package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/varastohq/varasto/internal/daemon"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the catalog service",
	Long: `Starts the HTTP API, the collection orchestrator and, when
collection.interval is configured, the periodic collection scheduler.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg)

		d, err := daemon.New(context.Background(), cfg, logger)
		if err != nil {
			return err
		}
		return d.Run(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
