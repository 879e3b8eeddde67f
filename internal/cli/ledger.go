package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"SignalMonitor/internal/app"
)

func ledgerCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect and maintain the processed-items ledger",
	}

	var limit int
	failed := &cobra.Command{
		Use:   "failed",
		Short: "List failed entries, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(a *app.Application) error {
				entries, err := a.Ledger.ListFailed(cmd.Context(), limit)
				if err != nil {
					return err
				}
				printFailed(cmd.OutOrStdout(), entries)
				return nil
			})
		},
	}
	failed.Flags().IntVarP(&limit, "limit", "n", 20, "maximum entries to show")
	cmd.AddCommand(failed)

	var retention time.Duration
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete dispatched or exhausted entries older than the retention",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(a *app.Application) error {
				keep := retention
				if keep <= 0 {
					keep = a.Config.Pipeline.Retention.Std()
				}
				n, err := a.Ledger.PruneOlderThan(cmd.Context(), keep)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s pruned %d entries older than %s\n", okMark(), n, keep)
				return nil
			})
		},
	}
	prune.Flags().DurationVar(&retention, "retention", 0, "override pipeline.retention")
	cmd.AddCommand(prune)

	cmd.AddCommand(&cobra.Command{
		Use:   "check <item-id>",
		Short: "Show the ledger entry for one item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(a *app.Application) error {
				entry, err := a.Ledger.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printEntry(cmd.OutOrStdout(), entry)
				return nil
			})
		},
	})

	return cmd
}
