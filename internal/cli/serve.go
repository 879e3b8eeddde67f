package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"SignalMonitor/internal/app"
)

func serveCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the polling loop and the management API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return withApp(cmd, open, func(a *app.Application) error {
				return a.Serve(ctx)
			})
		},
	}
}

func pollCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "poll",
		Short: "Run one poll cycle now and print its summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(a *app.Application) error {
				summary, err := a.PollOnce(context.WithoutCancel(cmd.Context()))
				printSummary(cmd.OutOrStdout(), summary)
				if err != nil {
					return fmt.Errorf("poll: %w", err)
				}
				return nil
			})
		},
	}
}
