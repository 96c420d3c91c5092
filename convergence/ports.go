package convergence

import (
	"context"
	"time"

	"bringup"
)

// ServiceManager is the init-system capability the core needs.
// systemd.Conn satisfies this interface; tests use a fake.
type ServiceManager interface {
	IsActive(ctx context.Context, unit string) bool
	IsEnabled(ctx context.Context, unit string) bool
	Start(ctx context.Context, unit string) error
	Disable(ctx context.Context, unit string) error
}

// DatabaseControl is the database's opaque control interface.
// dbserver.Control satisfies this interface.
type DatabaseControl interface {
	Start(ctx context.Context) error
	Probe(ctx context.Context) bringup.DBState
}

// Journal is the append-only trail of timestamped convergence events.
type Journal interface {
	Record(format string, args ...any)
}

// Sleeper performs the fixed settle and retry waits. The real
// implementation blocks on the wall clock; tests substitute one that
// only counts.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration)
}

// ClockProber reports the host clock offset from a reference source.
// Offset problems are warnings only, never a reason to block startup.
type ClockProber interface {
	Check(ctx context.Context) (time.Duration, error)
}

// StdSleeper blocks on the wall clock, returning early only if ctx is
// cancelled.
type StdSleeper struct{}

func (StdSleeper) Sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
