package convergence

import (
	"context"

	"bringup"
)

// Inspector composes the init system and the database probe into a
// single system-wide snapshot. Snapshot never mutates host state.
type Inspector struct {
	Services []string
	Units    ServiceManager
	DB       DatabaseControl
}

// Snapshot reads the database first, then every tracked service in
// declared order. Service states are read even when the database is
// down — the report is still useful — but downstream logic treats them
// as not ready until the database is healthy. A service that cannot be
// queried reads as inactive; the adapter logs the warning.
func (i *Inspector) Snapshot(ctx context.Context) bringup.SystemSnapshot {
	snap := bringup.SystemSnapshot{
		DB:       i.DB.Probe(ctx),
		Services: make([]bringup.Service, 0, len(i.Services)),
	}
	for _, name := range i.Services {
		snap.Services = append(snap.Services, bringup.Service{
			Name:    name,
			Enabled: i.Units.IsEnabled(ctx, name),
			Active:  i.Units.IsActive(ctx, name),
		})
	}
	return snap
}
