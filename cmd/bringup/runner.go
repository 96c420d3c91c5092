package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"bringup/clockcheck"
	"bringup/cmd/bringup/ui"
	"bringup/config"
	"bringup/convergence"
	"bringup/dbserver"
	"bringup/installer"
	"bringup/internal/hostinfo"
	"bringup/journal"
	"bringup/systemd"
)

// app wires the real adapters to the configuration.
type app struct {
	cfg   *config.Config
	units *systemd.Conn
}

func loadApp() (*app, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, units: systemd.New()}, nil
}

func (a *app) installer() *installer.Installer {
	return &installer.Installer{
		Unit:     a.cfg.Watcher.Unit,
		LogPath:  a.cfg.LogPath,
		Mode:     a.cfg.Watcher.Mode,
		StartNow: a.cfg.Watcher.StartAfterInstall,
		Units:    a.units,
	}
}

func (a *app) orchestrator(jnl convergence.Journal, steps *ui.StepOutput) *convergence.Orchestrator {
	o := &convergence.Orchestrator{
		Services:      a.cfg.Services,
		SupportUnit:   a.cfg.Database.SupportUnit,
		DBSettle:      time.Duration(a.cfg.Database.SettleSeconds) * time.Second,
		ServiceSettle: time.Duration(a.cfg.ServiceSettleSeconds) * time.Second,
		MaxRetries:    a.cfg.Database.MaxRetries,
		RetryInterval: time.Duration(a.cfg.Database.RetryIntervalSeconds) * time.Second,
		Units:         a.units,
		DB:            dbserver.New(a.cfg.Database),
		Journal:       jnl,
		Tracer:        steps.Tracer("bringup"),
	}
	if a.cfg.ClockCheck.Enabled {
		o.Clock = &clockcheck.Checker{Pool: a.cfg.ClockCheck.Pool}
		o.MaxClockOffset = time.Duration(a.cfg.ClockCheck.MaxOffsetMS) * time.Millisecond
	}
	return o
}

// openJournal opens the convergence trail. Failure degrades to a no-op
// sink with a warning — the trail is an external collaborator, not a
// precondition for convergence.
func (a *app) openJournal() (convergence.Journal, func()) {
	f, err := journal.Open(a.cfg.LogPath)
	if err != nil {
		slog.Warn("convergence trail unavailable", "path", a.cfg.LogPath, "err", err)
		return journal.Nop{}, func() {}
	}
	return f, func() { _ = f.Close() }
}

// converge runs one full pass: optional setup, then the orchestrator.
func (a *app) converge(ctx context.Context, withSetup bool) error {
	jnl, closeJournal := a.openJournal()
	defer closeJournal()
	jnl.Record("=== convergence run (%s)", hostinfo.Summary())

	if withSetup {
		if os.Geteuid() == 0 {
			res, err := a.installer().EnsureInstalled(ctx)
			if err != nil {
				jnl.Record("FAILED watcher setup: %v", err)
				return fmt.Errorf("setup: %w", err)
			}
			jnl.Record("watcher %s", res)
		} else {
			fmt.Println(ui.WarnMsg("Not root - skipping watcher setup"))
		}
	}

	steps := ui.NewStepOutput()
	defer steps.Close()

	res, err := a.orchestrator(jnl, steps).Run(ctx)
	if err != nil {
		fmt.Println(ui.ErrorMsg("Failed during %s: %v", res.Phase, err))
		return err
	}
	fmt.Println(ui.SuccessMsg("Converged"))
	return nil
}

func runUp(ctx context.Context, withSetup bool) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	return a.converge(ctx, withSetup)
}
