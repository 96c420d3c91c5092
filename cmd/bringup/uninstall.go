package main

import (
	"fmt"
	"os"

	"bringup/cmd/bringup/ui"

	"github.com/spf13/cobra"
)

func uninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the persistent watcher registration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if os.Geteuid() != 0 {
				return fmt.Errorf("uninstall requires root - run with sudo")
			}

			ctx, stop := notifyContext(cmd)
			defer stop()

			a, err := loadApp()
			if err != nil {
				return err
			}
			if err := a.installer().Uninstall(ctx); err != nil {
				return err
			}
			fmt.Println(ui.SuccessMsg("Watcher removed."))
			return nil
		},
	}
}
