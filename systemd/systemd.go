// Package systemd wraps the host init system behind a small command
// surface: unit queries, start/enable/disable, and unit file
// installation. Everything goes through the systemctl binary; the
// convergence core only sees the convergence.ServiceManager port.
package systemd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

const defaultUnitDir = "/etc/systemd/system"

// Conn executes systemctl against the local init system.
type Conn struct {
	unitDir string
}

// New returns a Conn writing unit files under /etc/systemd/system.
func New() *Conn {
	return &Conn{unitDir: defaultUnitDir}
}

// NewWithUnitDir overrides the unit directory. Used by tests.
func NewWithUnitDir(dir string) *Conn {
	return &Conn{unitDir: dir}
}

// IsActive reports whether the unit is currently running. A query
// failure reads as inactive: the caller treats "cannot ask" the same as
// "not running" and the warning surfaces in the structured log.
func (c *Conn) IsActive(ctx context.Context, unit string) bool {
	return c.query(ctx, "is-active", unit)
}

// IsEnabled reports whether the unit starts on its own at boot.
func (c *Conn) IsEnabled(ctx context.Context, unit string) bool {
	return c.query(ctx, "is-enabled", unit)
}

// query runs a boolean systemctl probe. A non-zero exit is a clean "no";
// anything else (systemctl missing, exec failure) still reads as "no"
// but gets a warning, since the answer was never actually obtained.
func (c *Conn) query(ctx context.Context, verb, unit string) bool {
	err := exec.CommandContext(ctx, "systemctl", verb, "--quiet", unit).Run()
	if err == nil {
		return true
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		slog.Warn("unit query failed", "verb", verb, "unit", unit, "err", err)
	}
	return false
}

// Start starts the unit and waits for systemctl to return.
func (c *Conn) Start(ctx context.Context, unit string) error {
	return c.systemctl(ctx, "start", unit)
}

// Enable marks the unit to start at boot.
func (c *Conn) Enable(ctx context.Context, unit string) error {
	return c.systemctl(ctx, "enable", unit)
}

// Disable clears the unit's boot-time autostart flag.
func (c *Conn) Disable(ctx context.Context, unit string) error {
	return c.systemctl(ctx, "disable", unit)
}

// DaemonReload asks systemd to re-read unit files from disk.
func (c *Conn) DaemonReload(ctx context.Context) error {
	return c.systemctl(ctx, "daemon-reload")
}

// UnitPath returns where the named unit file lives.
func (c *Conn) UnitPath(unit string) string {
	return filepath.Join(c.unitDir, unit)
}

// UnitExists reports whether the named unit file is present on disk.
func (c *Conn) UnitExists(unit string) bool {
	st, err := os.Stat(c.UnitPath(unit))
	return err == nil && !st.IsDir()
}

// InstallUnit writes the unit file. The caller must DaemonReload before
// the new content takes effect.
func (c *Conn) InstallUnit(unit, content string) error {
	if err := os.WriteFile(c.UnitPath(unit), []byte(content), 0o644); err != nil {
		return fmt.Errorf("write unit %s: %w", unit, err)
	}
	return nil
}

// RemoveUnit deletes the unit file. A missing file is not an error.
func (c *Conn) RemoveUnit(unit string) error {
	if err := os.Remove(c.UnitPath(unit)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove unit %s: %w", unit, err)
	}
	return nil
}

func (c *Conn) systemctl(ctx context.Context, args ...string) error {
	out, err := exec.CommandContext(ctx, "systemctl", args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("systemctl %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(string(out)), err)
	}
	slog.Debug("systemctl", "args", strings.Join(args, " "))
	return nil
}
