package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/dshills/voxdesk/internal/backend"
	"github.com/dshills/voxdesk/internal/bridge"
	"github.com/dshills/voxdesk/internal/config"
	"github.com/dshills/voxdesk/internal/logging"
	"github.com/dshills/voxdesk/internal/ui"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
}

// fakeBackend writes an executable standing in for python. It prints a
// ready event for "-m <module>" and runs api.sh for script invocations.
func fakeBackend(t *testing.T, root string) string {
	t.Helper()

	interp := filepath.Join(root, "fakepython")
	body := `#!/bin/sh
if [ "$1" = "-m" ]; then
	echo started >> starts
	echo "{\"event\":\"ready\",\"data\":\"$2\"}"
	echo "service log line"
	exec sleep 30
fi
script="$1"
shift
exec sh "$script" "$@"
`
	if err := os.WriteFile(interp, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}

	api := `
case "$1" in
list) echo '{"event":"files","data":["a.mp4","b.mp4"]}' ;;
*) echo "unknown command $1"; exit 2 ;;
esac
`
	if err := os.WriteFile(filepath.Join(root, "api.sh"), []byte(api), 0o644); err != nil {
		t.Fatal(err)
	}
	return interp
}

func testConfig(root, interpreter string) *config.Config {
	cfg := config.Default()
	cfg.Backend.ProjectRoot = root
	cfg.Backend.Manager = ""
	cfg.Backend.Interpreter = interpreter
	cfg.Backend.Script = "api.sh"
	return &cfg
}

func newTestApp(t *testing.T, cfg *config.Config, rec *bridge.Recorder) *Application {
	t.Helper()
	app, err := New(context.Background(), Options{}, WithConfig(cfg), WithLogger(logging.Nop()), WithEmitter(rec))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(app.Shutdown)
	return app
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// countStarts returns how many times the fake backend service started.
func countStarts(t *testing.T, root string) int {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, "starts"))
	if err != nil {
		if os.IsNotExist(err) {
			return 0
		}
		t.Fatal(err)
	}
	return strings.Count(string(data), "started\n")
}

func processAlive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return p.Signal(syscall.Signal(0)) == nil
}

func TestStart_MissingInterpreterIsNonFatal(t *testing.T) {
	var rec bridge.Recorder
	app := newTestApp(t, testConfig(t.TempDir(), "voxdesk-no-such-python"), &rec)

	app.Start()

	err := app.LaunchError()
	var launchErr *backend.LaunchError
	if !errors.As(err, &launchErr) {
		t.Fatalf("LaunchError() = %v, want *backend.LaunchError", err)
	}
	if !strings.Contains(err.Error(), "Failed to spawn") {
		t.Errorf("launch error %q does not mention Failed to spawn", err)
	}
	if app.BackendRunning() {
		t.Error("backend should not be running")
	}

	logs := rec.Channel(bridge.ChannelLog)
	if len(logs) != 1 || !strings.Contains(logs[0].Line, "Failed to spawn") {
		t.Errorf("launch error not reported to the UI: %v", logs)
	}
	if !strings.HasPrefix(app.Status(), "backend not running: Failed to spawn") {
		t.Errorf("Status() = %q", app.Status())
	}

	// Setup continued: the destroy path still works.
	app.HandleWindowEvent(ui.WindowDestroyed)
}

func TestStart_AutostartDisabled(t *testing.T) {
	cfg := testConfig(t.TempDir(), "voxdesk-no-such-python")
	cfg.Backend.Autostart = false

	var rec bridge.Recorder
	app := newTestApp(t, cfg, &rec)
	app.Start()

	if app.LaunchError() != nil || app.BackendRunning() || rec.Len() != 0 {
		t.Error("nothing should be launched with autostart disabled")
	}
}

func TestBackendLifecycle(t *testing.T) {
	skipOnWindows(t)

	root := t.TempDir()
	var rec bridge.Recorder
	app := newTestApp(t, testConfig(root, fakeBackend(t, root)), &rec)

	app.Start()
	if err := app.LaunchError(); err != nil {
		t.Fatalf("LaunchError() = %v", err)
	}
	if !app.BackendRunning() {
		t.Fatal("backend should be running")
	}
	pid := app.BackendPID()

	waitFor(t, "service output", func() bool { return rec.Len() == 2 })

	events := rec.Channel(bridge.ChannelEvent)
	if len(events) != 1 || events[0].Event.Name != "ready" || string(events[0].Event.Data) != `"voxgrep.server"` {
		t.Errorf("events = %v", events)
	}
	if logs := rec.Channel(bridge.ChannelLog); len(logs) != 1 || logs[0].Line != "service log line" {
		t.Errorf("logs = %v", logs)
	}

	if err := app.StartBackend(); !errors.Is(err, backend.ErrAlreadySupervised) {
		t.Errorf("second StartBackend() = %v, want ErrAlreadySupervised", err)
	}
	if app.BackendPID() != pid {
		t.Error("second launch replaced the supervised backend")
	}
	time.Sleep(100 * time.Millisecond) // a stray spawn would have recorded itself by now
	if starts := countStarts(t, root); starts != 1 {
		t.Errorf("backend spawned %d times, want 1", starts)
	}

	app.HandleWindowEvent(ui.WindowDestroyed)
	if app.BackendRunning() || app.BackendPID() != -1 {
		t.Error("handle should be nil after destroy")
	}
	waitFor(t, "backend to die", func() bool { return !processAlive(pid) })

	// A second destroy is a no-op.
	app.HandleWindowEvent(ui.WindowDestroyed)
}

func TestRunCommand(t *testing.T) {
	skipOnWindows(t)

	root := t.TempDir()
	cfg := testConfig(root, fakeBackend(t, root))
	cfg.Backend.Autostart = false

	var rec bridge.Recorder
	app := newTestApp(t, cfg, &rec)

	res, err := app.RunCommand(context.Background(), []string{"list"})
	if err != nil {
		t.Fatalf("RunCommand() error = %v", err)
	}
	if res.Stats.Events != 1 {
		t.Errorf("Stats = %+v", res.Stats)
	}
	events := rec.Channel(bridge.ChannelEvent)
	if len(events) != 1 || string(events[0].Event.Data) != `["a.mp4","b.mp4"]` {
		t.Errorf("events = %v", events)
	}

	res, err = app.RunCommand(context.Background(), []string{"bogus"})
	if err != nil {
		t.Fatalf("RunCommand() error = %v", err)
	}
	if res.ExitCode != 2 {
		t.Errorf("ExitCode = %d, want 2", res.ExitCode)
	}
}

func TestRunCommand_Quit(t *testing.T) {
	app := newTestApp(t, testConfig(t.TempDir(), "python3"), &bridge.Recorder{})

	for _, cmd := range []string{"quit", "exit"} {
		if _, err := app.RunCommand(context.Background(), []string{cmd}); !errors.Is(err, ErrQuit) {
			t.Errorf("RunCommand(%q) = %v, want ErrQuit", cmd, err)
		}
	}
	if _, err := app.RunCommand(context.Background(), nil); err == nil {
		t.Error("expected an error for an empty command")
	}
}

func TestSubmitCommand_ReportsErrors(t *testing.T) {
	var rec bridge.Recorder
	app := newTestApp(t, testConfig(t.TempDir(), "voxdesk-no-such-python"), &rec)

	app.SubmitCommand([]string{"list"})

	logs := rec.Channel(bridge.ChannelLog)
	if len(logs) != 1 || !strings.Contains(logs[0].Line, "Failed to spawn") {
		t.Errorf("logs = %v", logs)
	}
}

func TestHooksFilterNotifications(t *testing.T) {
	skipOnWindows(t)

	root := t.TempDir()
	hooks := filepath.Join(root, "hooks.lua")
	if err := os.WriteFile(hooks, []byte(`function on_log(line) return false end`), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := testConfig(root, fakeBackend(t, root))
	cfg.UI.Hooks = hooks

	var rec bridge.Recorder
	app := newTestApp(t, cfg, &rec)
	app.Start()

	waitFor(t, "ready event", func() bool { return len(rec.Channel(bridge.ChannelEvent)) == 1 })
	time.Sleep(50 * time.Millisecond)
	if n := len(rec.Channel(bridge.ChannelLog)); n != 0 {
		t.Errorf("hook should drop log lines, got %d", n)
	}
}

func TestHooks_SharedAcrossSinks(t *testing.T) {
	root := t.TempDir()
	hooks := filepath.Join(root, "hooks.lua")
	src := `
function on_event(name, data) return name ~= "skip" end
function on_log(line) return false end
`
	if err := os.WriteFile(hooks, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := testConfig(root, "voxdesk-no-such-python")
	cfg.UI.Hooks = hooks
	cfg.Backend.Autostart = false

	var first bridge.Recorder
	app := newTestApp(t, cfg, &first)
	filter := app.filter
	if filter == nil {
		t.Fatal("hook emitter not built at startup")
	}

	_ = app.Emit(bridge.LogNotification("dropped"))
	_ = app.Emit(bridge.EventNotification("keep", []byte(`1`)))
	if first.Len() != 1 || first.Notifications()[0].Event.Name != "keep" {
		t.Errorf("first sink = %v", first.Notifications())
	}

	var second bridge.Recorder
	app.SetEmitter(&second)
	_ = app.Emit(bridge.EventNotification("skip", nil))
	_ = app.Emit(bridge.EventNotification("keep", nil))

	if second.Len() != 1 || first.Len() != 1 {
		t.Errorf("after SetEmitter: first=%d second=%d, want 1 and 1", first.Len(), second.Len())
	}
	if app.filter != filter {
		t.Error("hook emitter rebuilt after startup")
	}
}

func TestNew_BadHookScript(t *testing.T) {
	cfg := testConfig(t.TempDir(), "python3")
	cfg.UI.Hooks = filepath.Join(t.TempDir(), "missing.lua")

	_, err := New(context.Background(), Options{}, WithConfig(cfg), WithLogger(logging.Nop()))
	var initErr *InitError
	if !errors.As(err, &initErr) || initErr.Component != "hooks" {
		t.Fatalf("New() error = %v, want hooks InitError", err)
	}
}

func TestNew_InvalidOverride(t *testing.T) {
	_, err := New(context.Background(), Options{LogLevel: "chatty"},
		WithConfig(testConfig(t.TempDir(), "python3")), WithLogger(logging.Nop()))

	var verr *config.ValidationError
	if !errors.As(err, &verr) || verr.Key != "logging.level" {
		t.Fatalf("New() error = %v, want logging.level validation error", err)
	}
}

func TestNew_LoadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := "[backend]\nmanager = \"\"\nproject_root = \"" + filepath.ToSlash(dir) + "\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	override := t.TempDir()
	app, err := New(context.Background(), Options{ConfigPath: path, ProjectRoot: override}, WithLogger(logging.Nop()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer app.Shutdown()

	if app.Config().Path != path {
		t.Errorf("Config().Path = %q", app.Config().Path)
	}
	if app.Launcher().Root() != override {
		t.Errorf("Root() = %q, want override %q", app.Launcher().Root(), override)
	}
	if app.Launcher().Strategy() != backend.StrategyDirect {
		t.Errorf("Strategy() = %v", app.Launcher().Strategy())
	}
}

func TestConfigReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	write := func(module string) {
		t.Helper()
		content := "[backend]\nmanager = \"\"\nautostart = false\nmodule = \"" + module + "\"\n"
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("voxgrep.server")

	var rec bridge.Recorder
	app, err := New(context.Background(), Options{ConfigPath: path, Watch: true, ProjectRoot: dir},
		WithLogger(logging.Nop()), WithEmitter(&rec))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer app.Shutdown()

	write("voxgrep.next")

	waitFor(t, "config-reloaded notification", func() bool {
		return len(rec.Channel(bridge.ChannelConfig)) > 0
	})

	if got := app.Launcher().ServiceCommand().Args; got[len(got)-1] != "voxgrep.next" {
		t.Errorf("service command not reconfigured: %v", got)
	}
	if app.Config().Backend.ProjectRoot != dir {
		t.Errorf("override lost on reload: %q", app.Config().Backend.ProjectRoot)
	}
}

func TestRunHeadless(t *testing.T) {
	skipOnWindows(t)

	root := t.TempDir()
	app := newTestApp(t, testConfig(root, fakeBackend(t, root)), &bridge.Recorder{})

	var rec bridge.Recorder
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		app.RunHeadless(ctx, &rec)
		close(done)
	}()

	waitFor(t, "backend start", app.BackendRunning)
	pid := app.BackendPID()
	waitFor(t, "ready event", func() bool { return len(rec.Channel(bridge.ChannelEvent)) == 1 })

	cancel()
	<-done

	if app.BackendRunning() {
		t.Error("backend should be torn down after cancellation")
	}
	waitFor(t, "backend to die", func() bool { return !processAlive(pid) })
}

func TestRunWindow(t *testing.T) {
	skipOnWindows(t)

	root := t.TempDir()
	app := newTestApp(t, testConfig(root, fakeBackend(t, root)), &bridge.Recorder{})

	screen := tcell.NewSimulationScreen("UTF-8")
	errc := make(chan error, 1)
	go func() { errc <- app.RunWindow(screen) }()

	waitFor(t, "backend start", app.BackendRunning)
	pid := app.BackendPID()

	for _, r := range "quit" {
		screen.InjectKey(tcell.KeyRune, r, tcell.ModNone)
	}
	screen.InjectKey(tcell.KeyEnter, 0, tcell.ModNone)

	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("RunWindow() error = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("window did not close on quit")
	}

	if app.BackendRunning() {
		t.Error("closing the window should tear the backend down")
	}
	waitFor(t, "backend to die", func() bool { return !processAlive(pid) })
}
