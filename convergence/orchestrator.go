package convergence

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"bringup"
	"bringup/internal/check"
	"bringup/telemetry"

	"go.opentelemetry.io/otel/trace"
)

// Step ids for the convergence plan, in execution order.
const (
	StepReconcile = "reconcile_autostart"
	StepEnsureDB  = "ensure_database"
	StepWaitDB    = "wait_database"
	StepStart     = "start_services"
	StepVerify    = "verify"
)

// ConvergePlan describes one full convergence run. A short-circuited
// run leaves later steps pending.
func ConvergePlan() telemetry.Plan {
	return telemetry.Plan{Steps: []telemetry.PlannedStep{
		{ID: StepReconcile, Title: "Disable service autostart"},
		{ID: StepEnsureDB, Title: "Ensure database is starting"},
		{ID: StepWaitDB, Title: "Wait for database health"},
		{ID: StepStart, Title: "Start services in order"},
		{ID: StepVerify, Title: "Verify convergence"},
	}}
}

// Orchestrator drives one convergence run: Idle through EnsuringDB,
// WaitingDB and StartingServices to Converged or Failed. It is fully
// synchronous — every external call blocks, and the only suspension
// points are the fixed settle and retry sleeps.
type Orchestrator struct {
	// Tracked services, in start order. No service is ever started
	// before the database reports healthy.
	Services []string
	// SupportUnit hosts the database's control plane. Empty disables
	// the pre-start check.
	SupportUnit   string
	DBSettle      time.Duration
	ServiceSettle time.Duration
	MaxRetries    uint
	RetryInterval time.Duration
	// MaxClockOffset bounds the tolerated clock skew when Clock is set.
	MaxClockOffset time.Duration

	Units   ServiceManager
	DB      DatabaseControl
	Journal Journal      // nil: events are dropped
	Sleep   Sleeper      // nil: real wall-clock sleeps
	Clock   ClockProber  // nil: clock check skipped
	Tracer  trace.Tracer // nil: no spans emitted
}

// Result is the outcome of one run.
type Result struct {
	Phase            Phase
	Initial          bringup.SystemSnapshot
	Final            bringup.SystemSnapshot
	AutostartChanged bool
}

// Run executes one convergence pass. The returned error is non-nil
// exactly when the terminal phase is Failed. A Failed run is never
// retried from inside: the next invocation starts from scratch.
func (o *Orchestrator) Run(ctx context.Context) (res *Result, err error) {
	check.Assert(o.Units != nil, "Orchestrator.Run: Units must not be nil")
	check.Assert(o.DB != nil, "Orchestrator.Run: DB must not be nil")

	inspector := &Inspector{Services: o.Services, Units: o.Units, DB: o.DB}

	var op *telemetry.Operation
	if o.Tracer != nil {
		op, err = telemetry.EmitPlan(ctx, o.Tracer, "converge", ConvergePlan())
		if err != nil {
			slog.Warn("emit convergence plan failed", "err", err)
			err = nil
		}
		defer func() { op.End(err) }()
	}

	res = &Result{Phase: PhaseIdle}
	o.record("run starting: tracked services %v", o.Services)

	res.Initial = inspector.Snapshot(ctx)
	res.Final = res.Initial
	if res.Initial.Converged() {
		res.Phase = res.Phase.Transition(PhaseConverged)
		o.record("already converged, nothing to do")
		return res, nil
	}
	o.record("initial state: db=%s inactive=%v", res.Initial.DB, res.Initial.InactiveServices())

	// Normalize autostart before any starts. Failures here are
	// warnings inside the reconciler; the step itself cannot fail.
	_ = op.RunStep(ctx, StepReconcile, func(ctx context.Context) error {
		rec := &Reconciler{Units: o.Units, Journal: o.journal()}
		res.AutostartChanged = rec.DisableAutostart(ctx, res.Initial)
		return nil
	})

	res.Phase = res.Phase.Transition(PhaseEnsuringDB)
	o.warnClockSkew(ctx)

	if res.Initial.DB == bringup.DBHealthy {
		// Starting an already-running database is a safe no-op, not an
		// error; skip the start and the wait entirely.
		o.record("database already healthy")
		res.Phase = res.Phase.Transition(PhaseStartingServices)
	} else {
		var state bringup.DBState
		err = op.RunStep(ctx, StepEnsureDB, func(ctx context.Context) error {
			var stepErr error
			state, stepErr = o.ensureDatabase(ctx)
			return stepErr
		})
		if err != nil {
			// Start command failure is fatal before the retry wait is
			// ever entered.
			return o.fail(res, err)
		}

		if state == bringup.DBHealthy {
			res.Phase = res.Phase.Transition(PhaseStartingServices)
		} else {
			res.Phase = res.Phase.Transition(PhaseWaitingDB)
			err = op.RunStep(ctx, StepWaitDB, o.waitDatabase)
			if err != nil {
				return o.fail(res, err)
			}
			res.Phase = res.Phase.Transition(PhaseStartingServices)
		}
	}

	err = op.RunStep(ctx, StepStart, o.startServices)
	if err != nil {
		return o.fail(res, err)
	}

	err = op.RunStep(ctx, StepVerify, func(ctx context.Context) error {
		res.Final = inspector.Snapshot(ctx)
		if !res.Final.Converged() {
			return fmt.Errorf("not converged after startup pass: db=%s inactive=%v",
				res.Final.DB, res.Final.InactiveServices())
		}
		return nil
	})
	if err != nil {
		return o.fail(res, err)
	}

	res.Phase = res.Phase.Transition(PhaseConverged)
	o.record("converged")
	return res, nil
}

// ensureDatabase brings the control plane up and issues the database
// start command if a fresh probe still reports unhealthy. Returns the
// last observed state; an error means a start command failed.
func (o *Orchestrator) ensureDatabase(ctx context.Context) (bringup.DBState, error) {
	if o.SupportUnit != "" && !o.Units.IsActive(ctx, o.SupportUnit) {
		o.record("starting database support unit %s", o.SupportUnit)
		if err := o.Units.Start(ctx, o.SupportUnit); err != nil {
			return bringup.DBUnhealthy, fmt.Errorf("start support unit %s: %w", o.SupportUnit, err)
		}
		// The control interface takes time to become reachable after
		// its host process launches; probing immediately reads a false
		// unhealthy.
		o.record("settling %s before probing", o.DBSettle)
		o.sleeper().Sleep(ctx, o.DBSettle)
	}

	if state := o.DB.Probe(ctx); state == bringup.DBHealthy {
		o.record("database already healthy")
		return state, nil
	}

	o.record("issuing database start")
	if err := o.DB.Start(ctx); err != nil {
		return bringup.DBUnhealthy, err
	}
	return bringup.DBUnhealthy, nil
}

func (o *Orchestrator) waitDatabase(ctx context.Context) error {
	o.record("waiting for database: up to %d retries at %s intervals", o.MaxRetries, o.RetryInterval)
	healthy := func(ctx context.Context) bool {
		return o.DB.Probe(ctx) == bringup.DBHealthy
	}
	if !WaitUntil(ctx, healthy, o.MaxRetries, o.RetryInterval, o.sleeper()) {
		return fmt.Errorf("database not healthy after %d attempts: %w", o.MaxRetries+1, ErrWaitExhausted)
	}
	o.record("database is healthy")
	return nil
}

// startServices starts each inactive tracked service in declared order,
// settling after each start so dependents see their dependencies up.
// The first failure aborts the pass; already-started services are left
// running for operator inspection.
func (o *Orchestrator) startServices(ctx context.Context) error {
	for _, name := range o.Services {
		if o.Units.IsActive(ctx, name) {
			o.record("%s already active", name)
			continue
		}
		o.record("starting %s", name)
		if err := o.Units.Start(ctx, name); err != nil {
			return fmt.Errorf("start %s: %w", name, err)
		}
		o.sleeper().Sleep(ctx, o.ServiceSettle)
	}
	return nil
}

func (o *Orchestrator) warnClockSkew(ctx context.Context) {
	if o.Clock == nil {
		return
	}
	offset, err := o.Clock.Check(ctx)
	if err != nil {
		o.record("WARN clock check failed: %v", err)
		return
	}
	if offset < 0 {
		offset = -offset
	}
	if offset > o.MaxClockOffset {
		o.record("WARN host clock offset %s exceeds %s", offset, o.MaxClockOffset)
	}
}

func (o *Orchestrator) fail(res *Result, err error) (*Result, error) {
	o.record("FAILED during %s: %v", res.Phase, err)
	res.Phase = res.Phase.Transition(PhaseFailed)
	return res, err
}

func (o *Orchestrator) sleeper() Sleeper {
	if o.Sleep != nil {
		return o.Sleep
	}
	return StdSleeper{}
}

func (o *Orchestrator) journal() Journal {
	if o.Journal != nil {
		return o.Journal
	}
	return nopJournal{}
}

func (o *Orchestrator) record(format string, args ...any) {
	o.journal().Record(format, args...)
}

type nopJournal struct{}

func (nopJournal) Record(string, ...any) {}
