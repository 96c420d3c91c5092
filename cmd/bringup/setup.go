package main

import (
	"fmt"
	"os"

	"bringup/cmd/bringup/ui"
	"bringup/installer"

	"github.com/spf13/cobra"
)

func setupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Install the persistent watcher and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if os.Geteuid() != 0 {
				return fmt.Errorf("setup requires root - run with sudo")
			}

			ctx, stop := notifyContext(cmd)
			defer stop()

			a, err := loadApp()
			if err != nil {
				return err
			}

			res, err := a.installer().EnsureInstalled(ctx)
			if err != nil {
				return err
			}
			switch res {
			case installer.ResultAlreadyInstalled:
				fmt.Println(ui.Muted("Watcher already installed."))
			default:
				fmt.Println(ui.SuccessMsg("Watcher installed as %s", a.cfg.Watcher.Unit))
			}
			return nil
		},
	}
}
