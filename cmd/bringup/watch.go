package main

import (
	"context"
	"time"

	"bringup/daemon"

	"github.com/spf13/cobra"
)

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run as the persistent watcher, re-inspecting on a schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := notifyContext(cmd)
			defer stop()

			a, err := loadApp()
			if err != nil {
				return err
			}

			interval := time.Duration(a.cfg.Watcher.IntervalSeconds) * time.Second
			// Setup runs in the first pass only; later passes would
			// just re-answer AlreadyInstalled.
			first := true
			return daemon.Run(ctx, interval, func(ctx context.Context) error {
				withSetup := first
				first = false
				return a.converge(ctx, withSetup)
			})
		},
	}
}
