// Package installer registers the orchestrator as a persistent systemd
// watcher under a fixed well-known unit name. The init system is the
// sole source of truth for installation state — there is no separate
// tracking file.
package installer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Watcher unit run modes.
const (
	ModeOneshot = "oneshot" // single convergence pass after boot
	ModeWatch   = "watch"   // long-lived scheduled re-inspection
)

// Result is the outcome of EnsureInstalled.
type Result uint8

const (
	ResultAlreadyInstalled Result = iota + 1
	ResultInstalled
)

func (r Result) String() string {
	switch r {
	case ResultAlreadyInstalled:
		return "already installed"
	case ResultInstalled:
		return "installed"
	default:
		return "unknown"
	}
}

// UnitManager is the init-system capability the installer needs.
// systemd.Conn satisfies this interface.
type UnitManager interface {
	IsActive(ctx context.Context, unit string) bool
	IsEnabled(ctx context.Context, unit string) bool
	Enable(ctx context.Context, unit string) error
	Disable(ctx context.Context, unit string) error
	Start(ctx context.Context, unit string) error
	DaemonReload(ctx context.Context) error
	UnitExists(unit string) bool
	UnitPath(unit string) string
	InstallUnit(unit, content string) error
	RemoveUnit(unit string) error
}

// Status is the observed installation state.
type Status struct {
	Installed bool
	Enabled   bool
	Active    bool
	Path      string
}

// Installer writes and enables the watcher unit.
type Installer struct {
	Unit     string
	LogPath  string
	Mode     string // ModeOneshot (default) or ModeWatch
	StartNow bool

	Units UnitManager
	// Exe overrides executable resolution in tests. nil uses the
	// running binary.
	Exe func() (string, error)
}

// EnsureInstalled makes the watcher registration exist and be enabled.
// Present-and-enabled is a no-op. Otherwise any stale registration is
// removed before the fresh one is written, so at most one active
// registration ever exists for the well-known name.
func (i *Installer) EnsureInstalled(ctx context.Context) (Result, error) {
	if i.Units.UnitExists(i.Unit) && i.Units.IsEnabled(ctx, i.Unit) {
		return ResultAlreadyInstalled, nil
	}

	exe, err := i.executable()
	if err != nil {
		// A relative or missing path would silently install a broken
		// watcher; resolution failure is fatal to setup.
		return 0, fmt.Errorf("resolve executable: %w", err)
	}

	if err := i.Units.RemoveUnit(i.Unit); err != nil {
		return 0, fmt.Errorf("remove stale registration: %w", err)
	}
	if err := i.Units.InstallUnit(i.Unit, i.unitContent(exe)); err != nil {
		return 0, fmt.Errorf("write registration: %w", err)
	}
	if err := i.Units.DaemonReload(ctx); err != nil {
		return 0, err
	}
	if err := i.Units.Enable(ctx, i.Unit); err != nil {
		return 0, fmt.Errorf("enable watcher: %w", err)
	}
	if i.StartNow {
		if err := i.Units.Start(ctx, i.Unit); err != nil {
			return 0, fmt.Errorf("start watcher: %w", err)
		}
	}
	slog.Info("watcher installed", "unit", i.Unit, "exe", exe)
	return ResultInstalled, nil
}

// Uninstall removes the watcher registration. Disable failures are
// tolerated — the unit may already be gone.
func (i *Installer) Uninstall(ctx context.Context) error {
	if err := i.Units.Disable(ctx, i.Unit); err != nil {
		slog.Warn("disable watcher failed", "unit", i.Unit, "err", err)
	}
	if err := i.Units.RemoveUnit(i.Unit); err != nil {
		return err
	}
	return i.Units.DaemonReload(ctx)
}

// InstallStatus reports the observed installation state without
// mutating anything.
func (i *Installer) InstallStatus(ctx context.Context) Status {
	return Status{
		Installed: i.Units.UnitExists(i.Unit),
		Enabled:   i.Units.IsEnabled(ctx, i.Unit),
		Active:    i.Units.IsActive(ctx, i.Unit),
		Path:      i.Units.UnitPath(i.Unit),
	}
}

func (i *Installer) unitContent(exe string) string {
	mode := i.Mode
	if mode == "" {
		mode = ModeOneshot
	}

	serviceType := "oneshot"
	command := "up"
	if mode == ModeWatch {
		serviceType = "notify"
		command = "watch"
	}

	return fmt.Sprintf(`[Unit]
Description=bringup service topology convergence
After=network-online.target
Wants=network-online.target

[Service]
Type=%s
ExecStart=%s %s
Restart=no
StandardOutput=append:%s
StandardError=append:%s

[Install]
WantedBy=multi-user.target
`, serviceType, exe, command, i.LogPath, i.LogPath)
}

// executable resolves the running binary to an absolute, durable path.
// Temporary `go run` build paths are rejected: a registration pointing
// into a build cache dies with the cache.
func (i *Installer) executable() (string, error) {
	resolve := i.Exe
	if resolve == nil {
		resolve = os.Executable
	}

	exe, err := resolve()
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	if !filepath.IsAbs(exe) {
		return "", fmt.Errorf("executable path %q is not absolute", exe)
	}
	if isGoBuildPath(exe) {
		return "", fmt.Errorf("executable %q is a temporary go run binary; install the binary and retry", exe)
	}
	return exe, nil
}

func isGoBuildPath(path string) bool {
	return strings.Contains(filepath.Clean(path), string(filepath.Separator)+"go-build")
}
