package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"SignalMonitor/internal/app"
	"SignalMonitor/internal/config"
	"SignalMonitor/internal/logging"
)

// RootCmd assembles the command tree.
func RootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "signalmonitor",
		Short:         "Watch tracked accounts for trading signals and forward them to Telegram",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (yaml or toml); defaults to $SIGNAL_MONITOR_CONFIG")

	open := func(ctx context.Context) (*app.Application, error) {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return nil, err
		}
		logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)
		return app.New(ctx, cfg, logger)
	}

	root.AddCommand(serveCmd(open))
	root.AddCommand(pollCmd(open))
	root.AddCommand(handlesCmd(open))
	root.AddCommand(sessionCmd(open))
	root.AddCommand(ledgerCmd(open))

	return root
}

type opener func(ctx context.Context) (*app.Application, error)

func loadConfig(path string) (config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// withApp opens the application for the duration of fn.
func withApp(cmd *cobra.Command, open opener, fn func(a *app.Application) error) error {
	a, err := open(cmd.Context())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), cerr)
		}
	}()
	return fn(a)
}
