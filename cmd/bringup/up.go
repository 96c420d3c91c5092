package main

import (
	"github.com/spf13/cobra"
)

func upCmd() *cobra.Command {
	var noSetup bool

	cmd := &cobra.Command{
		Use:   "up",
		Short: "Converge the topology now",
		Long: `Inspects the database tier and the tracked services, normalizes
autostart configuration, and starts whatever is not running, in
dependency order. Exits 0 once the topology is converged.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := notifyContext(cmd)
			defer stop()
			return runUp(ctx, !noSetup)
		},
	}

	cmd.Flags().BoolVar(&noSetup, "no-setup", false, "Skip watcher installation")
	return cmd
}
