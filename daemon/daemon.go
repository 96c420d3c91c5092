// Package daemon is the persistent watcher runtime: it runs a
// convergence pass immediately, tells systemd the watcher is ready, and
// re-runs a pass on a fixed schedule. Each pass starts convergence from
// scratch; a failed pass is never retried early.
package daemon

import (
	"context"
	"log/slog"
	"time"

	systemd "github.com/coreos/go-systemd/v22/daemon"
	"golang.org/x/sync/errgroup"
)

// Pass runs one full convergence pass.
type Pass func(ctx context.Context) error

// Run blocks until ctx is cancelled, executing pass once at startup and
// then once per interval. Pass failures are logged, not propagated —
// the next tick gets a fresh run.
func Run(ctx context.Context, interval time.Duration, pass Pass) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return runSchedule(ctx, interval, pass) })
	g.Go(func() error { return runWatchdog(ctx) })
	return g.Wait()
}

func runSchedule(ctx context.Context, interval time.Duration, pass Pass) error {
	runOnce(ctx, pass)

	// Ready only after the first pass: a boot-ordering dependent unit
	// waiting on the watcher should see the topology converged.
	if _, err := systemd.SdNotify(false, systemd.SdNotifyReady); err != nil {
		slog.Warn("systemd ready notification failed", "err", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			runOnce(ctx, pass)
		}
	}
}

func runOnce(ctx context.Context, pass Pass) {
	if err := pass(ctx); err != nil {
		slog.Error("convergence pass failed", "err", err)
	}
}

// runWatchdog keeps the systemd watchdog fed when WatchdogSec is set on
// the unit. Without it this goroutine just waits for shutdown.
func runWatchdog(ctx context.Context) error {
	period, err := systemd.SdWatchdogEnabled(false)
	if err != nil {
		slog.Warn("watchdog detection failed", "err", err)
		return nil
	}
	if period == 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(period / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := systemd.SdNotify(false, systemd.SdNotifyWatchdog); err != nil {
				slog.Warn("watchdog notification failed", "err", err)
			}
		}
	}
}
