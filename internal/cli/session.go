package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"SignalMonitor/internal/app"
)

func sessionCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect and manage the source login session",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the stored session state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(a *app.Application) error {
				session, err := a.Sessions.Status(cmd.Context())
				if err != nil {
					return err
				}
				printSession(cmd.OutOrStdout(), session)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "login",
		Short: "Log in now, replacing the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(a *app.Application) error {
				session, err := a.Sessions.Login(cmd.Context())
				if err != nil {
					return fmt.Errorf("login: %w", err)
				}
				printSession(cmd.OutOrStdout(), session)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "resolve",
		Short: "Clear a pending verification challenge so the next poll logs in again",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, open, func(a *app.Application) error {
				if err := a.Sessions.ResolveChallenge(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s challenge cleared\n", okMark())
				return nil
			})
		},
	})

	return cmd
}
