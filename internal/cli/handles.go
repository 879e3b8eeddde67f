package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"SignalMonitor/internal/app"
)

func handlesCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "handles",
		Short: "Manage tracked accounts",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add [handle...]",
		Short: "Track one or more accounts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(a *app.Application) error {
				for _, raw := range args {
					h, err := a.Handles.Add(cmd.Context(), raw)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s @%s\n", okMark(), h.Handle)
				}
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove [handle...]",
		Short: "Stop tracking accounts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(a *app.Application) error {
				for _, raw := range args {
					if err := a.Handles.Remove(cmd.Context(), raw); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s removed %s\n", okMark(), raw)
				}
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List tracked accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(a *app.Application) error {
				handles, err := a.Handles.List(cmd.Context())
				if err != nil {
					return err
				}
				printHandles(cmd.OutOrStdout(), handles)
				return nil
			})
		},
	})

	return cmd
}
