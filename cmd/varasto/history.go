package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/varastohq/varasto/history"
	"github.com/varastohq/varasto/storage"
)

var (
	historyLimit int

	historyCmd = &cobra.Command{
		Use:   "history <resource-id>",
		Short: "Show a resource's sighting timeline and drift events",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			catalog, err := storage.Open(cfg.Storage.Dir)
			if err != nil {
				return err
			}
			defer catalog.Close()

			summary, err := history.NewService(catalog).ResourceHistory(args[0], historyLimit)
			if err != nil {
				return err
			}

			r := summary.Resource
			fmt.Printf("%s (%s)\n", r.Name, r.ID)
			fmt.Printf("  type:   %s\n", r.ResourceType)
			fmt.Printf("  state:  %s\n", r.State)
			fmt.Printf("  seen:   %d times, first %s, last %s\n",
				r.SeenCount, r.FirstDiscoveredAt.Format("2006-01-02 15:04:05"), r.LastSeenAt.Format("2006-01-02 15:04:05"))
			fmt.Printf("  states: %s\n", strings.Join(summary.DistinctStates, ", "))

			if len(summary.Metrics) > 0 {
				fmt.Println("\nMetrics:")
				names := make([]string, 0, len(summary.Metrics))
				for name := range summary.Metrics {
					names = append(names, name)
				}
				sort.Strings(names)
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "  NAME\tMIN\tAVG\tMAX\tSAMPLES")
				for _, name := range names {
					m := summary.Metrics[name]
					fmt.Fprintf(w, "  %s\t%.2f\t%.2f\t%.2f\t%d\n", name, m.Min, m.Avg, m.Max, m.Samples)
				}
				w.Flush()
			}

			if len(summary.Sightings) > 0 {
				fmt.Println("\nSightings:")
				for _, s := range summary.Sightings {
					fmt.Printf("  %s  state=%s run=%s\n",
						s.SeenAt.Format("2006-01-02 15:04:05"), s.State, s.RunID)
				}
			}

			if len(summary.Drift) > 0 {
				fmt.Println("\nDrift:")
				for _, d := range summary.Drift {
					fmt.Printf("  %s  %s", d.DetectedAt.Format("2006-01-02 15:04:05"), d.Type)
					if len(d.Changes) > 0 {
						parts := make([]string, 0, len(d.Changes))
						for _, c := range d.Changes {
							parts = append(parts, fmt.Sprintf("%s: %q -> %q", c.Field, c.Previous, c.Current))
						}
						fmt.Printf("  %s", strings.Join(parts, ", "))
					}
					fmt.Println()
				}
			}
			return nil
		},
	}
)

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 0, "show only the newest N sightings")
	rootCmd.AddCommand(historyCmd)
}
