package convergence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"bringup"
)

// --- fakes ---

// callLog is shared between fakes so cross-collaborator ordering can be
// asserted.
type callLog struct {
	entries []string
}

func (l *callLog) add(s string) {
	l.entries = append(l.entries, s)
}

func (l *callLog) indexOf(entry string) int {
	for i, e := range l.entries {
		if e == entry {
			return i
		}
	}
	return -1
}

func (l *callLog) count(prefix string) int {
	n := 0
	for _, e := range l.entries {
		if strings.HasPrefix(e, prefix) {
			n++
		}
	}
	return n
}

type fakeUnits struct {
	log        *callLog
	active     map[string]bool
	enabled    map[string]bool
	startErr   map[string]error
	disableErr map[string]error
}

func newFakeUnits(log *callLog) *fakeUnits {
	return &fakeUnits{
		log:        log,
		active:     make(map[string]bool),
		enabled:    make(map[string]bool),
		startErr:   make(map[string]error),
		disableErr: make(map[string]error),
	}
}

func (f *fakeUnits) IsActive(_ context.Context, unit string) bool  { return f.active[unit] }
func (f *fakeUnits) IsEnabled(_ context.Context, unit string) bool { return f.enabled[unit] }

func (f *fakeUnits) Start(_ context.Context, unit string) error {
	f.log.add("start " + unit)
	if err := f.startErr[unit]; err != nil {
		return err
	}
	f.active[unit] = true
	return nil
}

func (f *fakeUnits) Disable(_ context.Context, unit string) error {
	f.log.add("disable " + unit)
	if err := f.disableErr[unit]; err != nil {
		return err
	}
	f.enabled[unit] = false
	return nil
}

type fakeDB struct {
	log      *callLog
	healthy  bool
	startErr error
	started  bool
	// probesUntilHealthy counts unhealthy probes after a successful
	// Start before the server reports healthy; -1 means never.
	probesUntilHealthy int
}

func (f *fakeDB) Probe(context.Context) bringup.DBState {
	state := bringup.DBUnhealthy
	if f.healthy {
		state = bringup.DBHealthy
	} else if f.started && f.probesUntilHealthy >= 0 {
		if f.probesUntilHealthy == 0 {
			f.healthy = true
			state = bringup.DBHealthy
		} else {
			f.probesUntilHealthy--
		}
	}
	f.log.add("probe " + state.String())
	return state
}

func (f *fakeDB) Start(context.Context) error {
	f.log.add("db-start")
	if f.startErr != nil {
		return f.startErr
	}
	f.started = true
	return nil
}

type fakeSleeper struct {
	sleeps []time.Duration
}

func (s *fakeSleeper) Sleep(_ context.Context, d time.Duration) {
	s.sleeps = append(s.sleeps, d)
}

type fakeClock struct {
	offset time.Duration
	err    error
}

func (c *fakeClock) Check(context.Context) (time.Duration, error) {
	return c.offset, c.err
}

type testJournal struct {
	lines []string
}

func (j *testJournal) Record(format string, args ...any) {
	j.lines = append(j.lines, fmt.Sprintf(format, args...))
}

func (j *testJournal) contains(substr string) bool {
	for _, line := range j.lines {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

// --- helpers ---

const (
	dbSettle      = 10 * time.Second
	serviceSettle = 3 * time.Second
	retryInterval = time.Second
)

func testOrchestrator(units *fakeUnits, db *fakeDB, sleep *fakeSleeper, jnl *testJournal) *Orchestrator {
	return &Orchestrator{
		Services:      []string{"db-support", "app-core", "app-auth"},
		SupportUnit:   "db-support",
		DBSettle:      dbSettle,
		ServiceSettle: serviceSettle,
		MaxRetries:    3,
		RetryInterval: retryInterval,
		Units:         units,
		DB:            db,
		Journal:       jnl,
		Sleep:         sleep,
	}
}

// assertOrdering fails if any application service was started before
// the first healthy observation. The support unit is exempt: it hosts
// the database's own control plane.
func assertOrdering(t *testing.T, log *callLog) {
	t.Helper()
	firstHealthy := log.indexOf("probe healthy")
	for i, e := range log.entries {
		if e != "start app-core" && e != "start app-auth" {
			continue
		}
		if firstHealthy == -1 || i < firstHealthy {
			t.Errorf("%q at %d before first healthy observation at %d", e, i, firstHealthy)
		}
	}
}

// --- tests ---

func TestRun_ShortCircuitWhenConverged(t *testing.T) {
	log := &callLog{}
	units := newFakeUnits(log)
	for _, name := range []string{"db-support", "app-core", "app-auth"} {
		units.active[name] = true
	}
	db := &fakeDB{log: log, healthy: true}
	sleep := &fakeSleeper{}
	jnl := &testJournal{}

	res, err := testOrchestrator(units, db, sleep, jnl).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Phase != PhaseConverged {
		t.Errorf("phase = %s, want %s", res.Phase, PhaseConverged)
	}

	for _, prefix := range []string{"start", "disable", "db-start"} {
		if n := log.count(prefix); n != 0 {
			t.Errorf("%s calls = %d, want 0", prefix, n)
		}
	}
	if len(sleep.sleeps) != 0 {
		t.Errorf("sleeps = %v, want none", sleep.sleeps)
	}
}

func TestRun_EndToEndFromColdBoot(t *testing.T) {
	log := &callLog{}
	units := newFakeUnits(log)
	db := &fakeDB{log: log, probesUntilHealthy: 2}
	sleep := &fakeSleeper{}
	jnl := &testJournal{}

	res, err := testOrchestrator(units, db, sleep, jnl).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Phase != PhaseConverged {
		t.Fatalf("phase = %s, want %s", res.Phase, PhaseConverged)
	}
	if !res.Final.Converged() {
		t.Errorf("final snapshot not converged: %+v", res.Final)
	}

	assertOrdering(t, log)

	// Support unit comes up before the database start is issued, and
	// the services start in declared order.
	support := log.indexOf("start db-support")
	dbStart := log.indexOf("db-start")
	core := log.indexOf("start app-core")
	auth := log.indexOf("start app-auth")
	if support == -1 || dbStart == -1 || core == -1 || auth == -1 {
		t.Fatalf("missing expected calls in %v", log.entries)
	}
	if !(support < dbStart && dbStart < core && core < auth) {
		t.Errorf("call order wrong: %v", log.entries)
	}

	// One settle after the support unit start, one after each of the
	// two service starts, plus the retry sleeps.
	var settles, serviceSettles int
	for _, d := range sleep.sleeps {
		switch d {
		case dbSettle:
			settles++
		case serviceSettle:
			serviceSettles++
		}
	}
	if settles != 1 {
		t.Errorf("database settles = %d, want 1", settles)
	}
	if serviceSettles != 2 {
		t.Errorf("service settles = %d, want 2", serviceSettles)
	}
}

func TestRun_DatabaseTimeout(t *testing.T) {
	log := &callLog{}
	units := newFakeUnits(log)
	db := &fakeDB{log: log, probesUntilHealthy: -1}
	sleep := &fakeSleeper{}
	jnl := &testJournal{}

	res, err := testOrchestrator(units, db, sleep, jnl).Run(context.Background())
	if !errors.Is(err, ErrWaitExhausted) {
		t.Fatalf("Run() error = %v, want ErrWaitExhausted", err)
	}
	if res.Phase != PhaseFailed {
		t.Errorf("phase = %s, want %s", res.Phase, PhaseFailed)
	}

	if n := log.count("start app"); n != 0 {
		t.Errorf("application service starts = %d, want 0", n)
	}

	retries := 0
	for _, d := range sleep.sleeps {
		if d == retryInterval {
			retries++
		}
	}
	if retries != 3 {
		t.Errorf("retry sleeps = %d, want 3", retries)
	}
}

func TestRun_DatabaseStartFailureSkipsWait(t *testing.T) {
	log := &callLog{}
	units := newFakeUnits(log)
	units.active["db-support"] = true
	db := &fakeDB{log: log, startErr: errors.New("control interface exited 255")}
	sleep := &fakeSleeper{}
	jnl := &testJournal{}

	res, err := testOrchestrator(units, db, sleep, jnl).Run(context.Background())
	if err == nil {
		t.Fatal("Run() error = nil, want start failure")
	}
	if res.Phase != PhaseFailed {
		t.Errorf("phase = %s, want %s", res.Phase, PhaseFailed)
	}
	// The retry wait must never be entered after a failed start command.
	if len(sleep.sleeps) != 0 {
		t.Errorf("sleeps = %v, want none", sleep.sleeps)
	}
	if n := log.count("start app"); n != 0 {
		t.Errorf("application service starts = %d, want 0", n)
	}
}

func TestRun_ServiceStartFailureFailsFast(t *testing.T) {
	log := &callLog{}
	units := newFakeUnits(log)
	units.active["db-support"] = true
	units.startErr["app-core"] = errors.New("unit entered failed state")
	db := &fakeDB{log: log, healthy: true}
	sleep := &fakeSleeper{}
	jnl := &testJournal{}

	res, err := testOrchestrator(units, db, sleep, jnl).Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "app-core") {
		t.Fatalf("Run() error = %v, want app-core start failure", err)
	}
	if res.Phase != PhaseFailed {
		t.Errorf("phase = %s, want %s", res.Phase, PhaseFailed)
	}
	// Fail-fast: the later service is never attempted, and nothing is
	// rolled back.
	if idx := log.indexOf("start app-auth"); idx != -1 {
		t.Errorf("app-auth started after app-core failure: %v", log.entries)
	}
}

func TestRun_HealthyDatabaseSkipsStartAndWait(t *testing.T) {
	log := &callLog{}
	units := newFakeUnits(log)
	units.active["db-support"] = true
	units.active["app-auth"] = true
	db := &fakeDB{log: log, healthy: true}
	sleep := &fakeSleeper{}
	jnl := &testJournal{}

	res, err := testOrchestrator(units, db, sleep, jnl).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Phase != PhaseConverged {
		t.Errorf("phase = %s, want %s", res.Phase, PhaseConverged)
	}
	if idx := log.indexOf("db-start"); idx != -1 {
		t.Error("database start issued while already healthy")
	}
	if idx := log.indexOf("start app-core"); idx == -1 {
		t.Error("inactive app-core was not started")
	}
}

func TestRun_DisablesAutostart(t *testing.T) {
	log := &callLog{}
	units := newFakeUnits(log)
	units.active["db-support"] = true
	units.enabled["app-core"] = true
	db := &fakeDB{log: log, healthy: true}
	jnl := &testJournal{}

	res, err := testOrchestrator(units, db, &fakeSleeper{}, jnl).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !res.AutostartChanged {
		t.Error("AutostartChanged = false, want true")
	}
	if idx := log.indexOf("disable app-core"); idx == -1 {
		t.Errorf("autostart not disabled: %v", log.entries)
	}
}

func TestRun_ClockSkewIsWarningOnly(t *testing.T) {
	log := &callLog{}
	units := newFakeUnits(log)
	db := &fakeDB{log: log, probesUntilHealthy: 0}
	jnl := &testJournal{}

	o := testOrchestrator(units, db, &fakeSleeper{}, jnl)
	o.Clock = &fakeClock{offset: 2 * time.Second}
	o.MaxClockOffset = 500 * time.Millisecond

	res, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Phase != PhaseConverged {
		t.Errorf("phase = %s, want %s", res.Phase, PhaseConverged)
	}
	if !jnl.contains("clock offset") {
		t.Errorf("no clock offset warning in trail: %v", jnl.lines)
	}
}
