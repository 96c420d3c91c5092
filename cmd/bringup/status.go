package main

import (
	"fmt"

	"bringup"
	"bringup/cmd/bringup/ui"
	"bringup/convergence"
	"bringup/dbserver"
	"bringup/internal/hostinfo"

	"github.com/spf13/cobra"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show topology and watcher state without changing anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := notifyContext(cmd)
			defer stop()

			a, err := loadApp()
			if err != nil {
				return err
			}

			inspector := &convergence.Inspector{
				Services: a.cfg.Services,
				Units:    a.units,
				DB:       dbserver.New(a.cfg.Database),
			}
			snap := inspector.Snapshot(ctx)
			install := a.installer().InstallStatus(ctx)

			dbLine := ui.Warn(snap.DB.String())
			if snap.DB == bringup.DBHealthy {
				dbLine = ui.Success(snap.DB.String())
			}

			fmt.Println(ui.Muted(hostinfo.Summary()))
			fmt.Print(ui.KeyValues("",
				ui.KV("database", dbLine),
				ui.KV("converged", ui.Bool(snap.Converged())),
				ui.KV("watcher installed", ui.Bool(install.Installed)),
				ui.KV("watcher enabled", ui.Bool(install.Enabled)),
				ui.KV("watcher active", ui.Bool(install.Active)),
			))

			rows := make([][]string, 0, len(snap.Services))
			for _, svc := range snap.Services {
				rows = append(rows, []string{svc.Name, ui.Bool(svc.Enabled), ui.Bool(svc.Active)})
			}
			fmt.Println(ui.Table([]string{"SERVICE", "AUTOSTART", "ACTIVE"}, rows))
			return nil
		},
	}
}
