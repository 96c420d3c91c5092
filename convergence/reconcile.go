package convergence

import (
	"context"
	"log/slog"

	"bringup"
)

// Reconciler normalizes autostart configuration: tracked services are
// orchestrated manually, so their boot-time autostart flag must be off.
// It only ever disables — enabling is out of scope.
type Reconciler struct {
	Units   ServiceManager
	Journal Journal
}

// DisableAutostart clears the autostart flag on every tracked service
// that has it set, and reports whether anything changed. A disable
// failure is a warning, not a stop: this guards against surprising
// unattended restarts but is not safety-critical, so reconciliation
// continues with the remaining services.
func (r *Reconciler) DisableAutostart(ctx context.Context, snap bringup.SystemSnapshot) bool {
	changed := false
	for _, svc := range snap.Services {
		if !svc.Enabled {
			continue
		}
		if err := r.Units.Disable(ctx, svc.Name); err != nil {
			slog.Warn("disable autostart failed", "unit", svc.Name, "err", err)
			r.Journal.Record("WARN autostart disable failed for %s: %v", svc.Name, err)
			continue
		}
		r.Journal.Record("autostart disabled for %s", svc.Name)
		changed = true
	}
	return changed
}
