// Package dbserver drives the database's native control interface.
// The interface is opaque: start is a command that reports an exit
// status, and health is derived by scanning its process list report for
// a status token. No recovery logic lives here.
package dbserver

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"bringup"
	"bringup/config"
)

// Control runs the configured database control commands.
type Control struct {
	startCmd []string
	probeCmd []string
	token    string
}

// New builds a Control from the database configuration.
func New(cfg config.Database) *Control {
	return &Control{
		startCmd: cfg.StartCommand,
		probeCmd: cfg.ProbeCommand,
		token:    cfg.HealthToken,
	}
}

// Start asks the control interface to bring the server online. A
// non-zero exit is fatal to the caller's run; the combined output is
// folded into the error for the trail.
func (c *Control) Start(ctx context.Context) error {
	out, err := exec.CommandContext(ctx, c.startCmd[0], c.startCmd[1:]...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("database start (%s): %s: %w",
			strings.Join(c.startCmd, " "), strings.TrimSpace(string(out)), err)
	}
	return nil
}

// Probe runs the process list report and scans it for the health token.
// The probe command failing outright still reads as unhealthy — it runs
// against a possibly-down server, so its own exit status carries no
// signal beyond "not healthy yet".
func (c *Control) Probe(ctx context.Context) bringup.DBState {
	out, err := exec.CommandContext(ctx, c.probeCmd[0], c.probeCmd[1:]...).CombinedOutput()
	if err != nil {
		slog.Debug("database probe command failed", "err", err)
	}
	// Token match is case-sensitive substring, per the control
	// interface's report format.
	if strings.Contains(string(out), c.token) {
		return bringup.DBHealthy
	}
	return bringup.DBUnhealthy
}
