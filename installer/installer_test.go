package installer

import (
	"context"
	"strings"
	"testing"
)

// --- fakes ---

type fakeUnitManager struct {
	units   map[string]string // name -> content
	enabled map[string]bool
	active  map[string]bool
	calls   []string
}

func newFakeUnitManager() *fakeUnitManager {
	return &fakeUnitManager{
		units:   make(map[string]string),
		enabled: make(map[string]bool),
		active:  make(map[string]bool),
	}
}

func (f *fakeUnitManager) IsActive(_ context.Context, unit string) bool  { return f.active[unit] }
func (f *fakeUnitManager) IsEnabled(_ context.Context, unit string) bool { return f.enabled[unit] }

func (f *fakeUnitManager) Enable(_ context.Context, unit string) error {
	f.calls = append(f.calls, "enable "+unit)
	f.enabled[unit] = true
	return nil
}

func (f *fakeUnitManager) Disable(_ context.Context, unit string) error {
	f.calls = append(f.calls, "disable "+unit)
	f.enabled[unit] = false
	return nil
}

func (f *fakeUnitManager) Start(_ context.Context, unit string) error {
	f.calls = append(f.calls, "start "+unit)
	f.active[unit] = true
	return nil
}

func (f *fakeUnitManager) DaemonReload(context.Context) error {
	f.calls = append(f.calls, "daemon-reload")
	return nil
}

func (f *fakeUnitManager) UnitExists(unit string) bool {
	_, ok := f.units[unit]
	return ok
}

func (f *fakeUnitManager) UnitPath(unit string) string {
	return "/etc/systemd/system/" + unit
}

func (f *fakeUnitManager) InstallUnit(unit, content string) error {
	f.calls = append(f.calls, "install "+unit)
	f.units[unit] = content
	return nil
}

func (f *fakeUnitManager) RemoveUnit(unit string) error {
	f.calls = append(f.calls, "remove "+unit)
	delete(f.units, unit)
	return nil
}

func testInstaller(units *fakeUnitManager) *Installer {
	return &Installer{
		Unit:    "bringup.service",
		LogPath: "/var/log/bringup/convergence.log",
		Units:   units,
		Exe:     func() (string, error) { return "/usr/local/bin/bringup", nil },
	}
}

// --- tests ---

func TestEnsureInstalled_ThenAlreadyInstalled(t *testing.T) {
	units := newFakeUnitManager()
	inst := testInstaller(units)

	res, err := inst.EnsureInstalled(context.Background())
	if err != nil {
		t.Fatalf("first EnsureInstalled() error = %v", err)
	}
	if res != ResultInstalled {
		t.Errorf("first result = %s, want %s", res, ResultInstalled)
	}

	res, err = inst.EnsureInstalled(context.Background())
	if err != nil {
		t.Fatalf("second EnsureInstalled() error = %v", err)
	}
	if res != ResultAlreadyInstalled {
		t.Errorf("second result = %s, want %s", res, ResultAlreadyInstalled)
	}

	if len(units.units) != 1 {
		t.Errorf("registrations = %d, want exactly 1", len(units.units))
	}
	// Second call must be a pure no-op.
	installs := 0
	for _, c := range units.calls {
		if strings.HasPrefix(c, "install") {
			installs++
		}
	}
	if installs != 1 {
		t.Errorf("install calls = %d, want 1", installs)
	}
}

func TestEnsureInstalled_ReplacesStaleRegistration(t *testing.T) {
	units := newFakeUnitManager()
	units.units["bringup.service"] = "[Unit]\nstale"
	// Present but not enabled: stale.

	inst := testInstaller(units)
	res, err := inst.EnsureInstalled(context.Background())
	if err != nil {
		t.Fatalf("EnsureInstalled() error = %v", err)
	}
	if res != ResultInstalled {
		t.Errorf("result = %s, want %s", res, ResultInstalled)
	}

	content := units.units["bringup.service"]
	if strings.Contains(content, "stale") {
		t.Error("stale registration content survived")
	}
	// Old registration removed before the fresh write.
	removeIdx, installIdx := -1, -1
	for i, c := range units.calls {
		switch c {
		case "remove bringup.service":
			removeIdx = i
		case "install bringup.service":
			installIdx = i
		}
	}
	if removeIdx == -1 || installIdx == -1 || removeIdx > installIdx {
		t.Errorf("remove/install order wrong: %v", units.calls)
	}
}

func TestEnsureInstalled_UnitContent(t *testing.T) {
	units := newFakeUnitManager()
	inst := testInstaller(units)

	if _, err := inst.EnsureInstalled(context.Background()); err != nil {
		t.Fatalf("EnsureInstalled() error = %v", err)
	}

	content := units.units["bringup.service"]
	for _, want := range []string{
		"Type=oneshot",
		"ExecStart=/usr/local/bin/bringup up",
		"StandardOutput=append:/var/log/bringup/convergence.log",
		"WantedBy=multi-user.target",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("unit content missing %q:\n%s", want, content)
		}
	}
}

func TestEnsureInstalled_WatchMode(t *testing.T) {
	units := newFakeUnitManager()
	inst := testInstaller(units)
	inst.Mode = ModeWatch

	if _, err := inst.EnsureInstalled(context.Background()); err != nil {
		t.Fatalf("EnsureInstalled() error = %v", err)
	}

	content := units.units["bringup.service"]
	if !strings.Contains(content, "Type=notify") {
		t.Errorf("watch mode unit not Type=notify:\n%s", content)
	}
	if !strings.Contains(content, "bringup watch") {
		t.Errorf("watch mode unit does not run watch:\n%s", content)
	}
}

func TestEnsureInstalled_RelativeExecutableIsFatal(t *testing.T) {
	units := newFakeUnitManager()
	inst := testInstaller(units)
	inst.Exe = func() (string, error) { return "bin/bringup", nil }

	if _, err := inst.EnsureInstalled(context.Background()); err == nil {
		t.Fatal("EnsureInstalled() error = nil, want path resolution failure")
	}
	if len(units.units) != 0 {
		t.Error("registration written despite resolution failure")
	}
}

func TestEnsureInstalled_GoRunExecutableIsFatal(t *testing.T) {
	units := newFakeUnitManager()
	inst := testInstaller(units)
	inst.Exe = func() (string, error) { return "/tmp/go-build123456/b001/exe/bringup", nil }

	if _, err := inst.EnsureInstalled(context.Background()); err == nil {
		t.Fatal("EnsureInstalled() error = nil, want go-build rejection")
	}
}

func TestEnsureInstalled_StartNow(t *testing.T) {
	units := newFakeUnitManager()
	inst := testInstaller(units)
	inst.StartNow = true

	if _, err := inst.EnsureInstalled(context.Background()); err != nil {
		t.Fatalf("EnsureInstalled() error = %v", err)
	}
	started := false
	for _, c := range units.calls {
		if c == "start bringup.service" {
			started = true
		}
	}
	if !started {
		t.Error("watcher not started despite StartNow")
	}
}

func TestUninstall(t *testing.T) {
	units := newFakeUnitManager()
	inst := testInstaller(units)
	if _, err := inst.EnsureInstalled(context.Background()); err != nil {
		t.Fatalf("EnsureInstalled() error = %v", err)
	}

	if err := inst.Uninstall(context.Background()); err != nil {
		t.Fatalf("Uninstall() error = %v", err)
	}
	if len(units.units) != 0 {
		t.Errorf("registrations after uninstall = %d, want 0", len(units.units))
	}
	st := inst.InstallStatus(context.Background())
	if st.Installed || st.Enabled {
		t.Errorf("status after uninstall = %+v, want not installed", st)
	}
}
