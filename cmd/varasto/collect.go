package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/varastohq/varasto/internal/daemon"
	"github.com/varastohq/varasto/orchestrator"
	"github.com/varastohq/varasto/reconcile"
	"github.com/varastohq/varasto/storage"
	"github.com/varastohq/varasto/taxonomy"
	"github.com/varastohq/varasto/types"
)

var (
	collectType    string
	collectTargets []string

	collectCmd = &cobra.Command{
		Use:   "collect <provider-name>",
		Short: "Run one collection against a provider and wait for it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			if err := os.MkdirAll(cfg.Storage.Dir, 0o755); err != nil {
				return err
			}
			catalog, err := storage.Open(cfg.Storage.Dir)
			if err != nil {
				return err
			}
			defer catalog.Close()

			registry, err := daemon.BuildRegistry(cmd.Context(), cfg.Plugins.Dir, logger)
			if err != nil {
				return err
			}

			mapper := taxonomy.NewMapper()
			if cfg.Taxonomy.File != "" {
				if err := mapper.LoadFile(cfg.Taxonomy.File); err != nil {
					return err
				}
			}

			provider, err := catalog.FindProviderByName(args[0])
			if err != nil {
				return err
			}

			engine := reconcile.NewEngine(catalog, mapper, logger)
			orch := orchestrator.New(catalog, registry, engine, nil, nil, logger).
				WithRunTimeout(cfg.Collection.RunTimeout)

			run, err := orch.StartCollection(cmd.Context(), orchestrator.Request{
				ProviderID:          provider.ID,
				CollectionType:      types.CollectionType(collectType),
				TargetResourceTypes: collectTargets,
			})
			if err != nil {
				return err
			}
			orch.Wait()

			final, err := catalog.GetRun(run.ID)
			if err != nil {
				return err
			}

			fmt.Printf("run %s: %s\n", final.ID, final.Status)
			fmt.Printf("  found:     %d\n", final.ResourcesFound)
			fmt.Printf("  created:   %d\n", final.ResourcesCreated)
			fmt.Printf("  updated:   %d\n", final.ResourcesUpdated)
			fmt.Printf("  removed:   %d\n", final.ResourcesRemoved)
			fmt.Printf("  unchanged: %d\n", final.ResourcesUnchanged)
			if final.ErrorMessage != "" {
				fmt.Printf("  error:     %s\n", final.ErrorMessage)
			}
			if final.Status != types.RunCompleted {
				return fmt.Errorf("collection did not complete")
			}
			return nil
		},
	}
)

func init() {
	collectCmd.Flags().StringVar(&collectType, "type", string(types.CollectionFull), "collection type: full or incremental")
	collectCmd.Flags().StringSliceVar(&collectTargets, "targets", nil, "limit collection to these resource type slugs")
	rootCmd.AddCommand(collectCmd)
}
