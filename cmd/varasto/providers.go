package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/varastohq/varasto/internal/daemon"
	"github.com/varastohq/varasto/storage"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Manage configured providers",
}

var providersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured providers",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		catalog, err := storage.Open(cfg.Storage.Dir)
		if err != nil {
			return err
		}
		defer catalog.Close()

		all, err := catalog.ListProviders()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tVENDOR\tTYPE\tENDPOINT\tENABLED\tLAST REFRESH")
		for _, p := range all {
			last := "never"
			if p.LastRefreshAt != nil {
				last = p.LastRefreshAt.Format("2006-01-02 15:04:05")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\n",
				p.Name, p.Vendor, p.ProviderType, p.Endpoint, p.Enabled, last)
		}
		return w.Flush()
	},
}

var providersTestCmd = &cobra.Command{
	Use:   "test <provider-name>",
	Short: "Check connectivity to a provider",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg)

		catalog, err := storage.Open(cfg.Storage.Dir)
		if err != nil {
			return err
		}
		defer catalog.Close()

		registry, err := daemon.BuildRegistry(cmd.Context(), cfg.Plugins.Dir, logger)
		if err != nil {
			return err
		}

		provider, err := catalog.FindProviderByName(args[0])
		if err != nil {
			return err
		}
		if err := registry.TestConnection(cmd.Context(), provider); err != nil {
			return fmt.Errorf("connection check failed: %w", err)
		}
		fmt.Printf("%s: connection ok\n", provider.Name)
		return nil
	},
}

var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "List discovered collector plugins",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg)

		registry, err := daemon.BuildRegistry(cmd.Context(), cfg.Plugins.Dir, logger)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "PLUGIN\tVERSION\tDISPLAY NAME\tRESOURCE TYPES")
		for _, m := range registry.List() {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", m.Key(), m.Version, m.DisplayName, len(m.SupportedResourceTypes))
		}
		return w.Flush()
	},
}

func init() {
	providersCmd.AddCommand(providersListCmd, providersTestCmd)
	rootCmd.AddCommand(providersCmd, pluginsCmd)
}
