package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"bringup/cmd/bringup/ui"
	"bringup/internal/buildinfo"
	"bringup/internal/logging"

	"github.com/spf13/cobra"
)

var (
	flagConfig  string
	flagDebug   bool
	flagNoColor bool
)

func main() {
	if err := logging.Configure(logging.LevelInfo); err != nil {
		_, _ = os.Stderr.WriteString("configure logger: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := rootCmd().Execute(); err != nil {
		slog.Error("command failed", "err", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "bringup",
		Short:         "Ordered bring-up of the database tier and its dependent services",
		Version:       buildinfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := logging.LevelInfo
			if flagDebug {
				level = logging.LevelDebug
			}
			if err := logging.Configure(level); err != nil {
				return err
			}
			ui.Configure(flagNoColor)
			return nil
		},
		// Bare invocation converges, matching what the boot unit runs.
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := notifyContext(cmd)
			defer stop()
			return runUp(ctx, true)
		},
	}

	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file path")
	root.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "Disable styled output")

	root.AddCommand(upCmd(), setupCmd(), statusCmd(), watchCmd(), uninstallCmd())
	return root
}

func notifyContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}
