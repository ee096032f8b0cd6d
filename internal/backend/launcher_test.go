package backend

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"testing"

	"github.com/dshills/voxdesk/internal/bridge"
	"github.com/dshills/voxdesk/internal/config"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
}

func staticDetector(available bool, calls *int) Detector {
	return func(ctx context.Context, manager string) bool {
		if calls != nil {
			*calls++
		}
		return available
	}
}

func testConfig(root string) config.BackendConfig {
	cfg := config.Default().Backend
	cfg.ProjectRoot = root
	return cfg
}

func TestStrategy_String(t *testing.T) {
	tests := []struct {
		s    Strategy
		want string
	}{
		{StrategyDirect, "direct"},
		{StrategyManaged, "managed"},
		{Strategy(7), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("Strategy(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}

func TestResolveProjectRoot(t *testing.T) {
	markers := map[string]int{"src-tauri": 2, "desktop": 1}
	base := filepath.Join(string(filepath.Separator), "home", "dev", "voxgrep")

	tests := []struct {
		name string
		cwd  string
		want string
	}{
		{"tauri dir", filepath.Join(base, "desktop", "src-tauri"), base},
		{"desktop dir", filepath.Join(base, "desktop"), base},
		{"project root", base, base},
		{"unrelated", filepath.Join(base, "docs"), filepath.Join(base, "docs")},
		{"trailing separator", filepath.Join(base, "desktop") + string(filepath.Separator), base},
		{"marker as prefix only", filepath.Join(base, "desktop-old"), filepath.Join(base, "desktop-old")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveProjectRoot(tt.cwd, markers); got != tt.want {
				t.Errorf("ResolveProjectRoot(%q) = %q, want %q", tt.cwd, got, tt.want)
			}
		})
	}
}

func TestResolveProjectRoot_NoMarkers(t *testing.T) {
	dir := filepath.Join(string(filepath.Separator), "srv", "src-tauri")
	if got := ResolveProjectRoot(dir, nil); got != dir {
		t.Errorf("ResolveProjectRoot() = %q, want %q", got, dir)
	}
}

func TestDetectManager(t *testing.T) {
	skipOnWindows(t)

	tests := []struct {
		name    string
		manager string
		want    bool
	}{
		{"empty", "", false},
		{"missing executable", "voxdesk-no-such-manager", false},
		{"exits zero", "true", true},
		{"exits non-zero", "false", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectManager(context.Background(), tt.manager); got != tt.want {
				t.Errorf("DetectManager(%q) = %v, want %v", tt.manager, got, tt.want)
			}
		})
	}
}

func TestDetectManager_CancelledContext(t *testing.T) {
	skipOnWindows(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if DetectManager(ctx, "true") {
		t.Error("expected cancelled check to report unavailable")
	}
}

func TestNewLauncher_Strategy(t *testing.T) {
	root := t.TempDir()

	tests := []struct {
		name      string
		manager   string
		available bool
		want      Strategy
		wantCalls int
	}{
		{"manager available", "poetry", true, StrategyManaged, 1},
		{"manager missing", "poetry", false, StrategyDirect, 1},
		{"checking disabled", "", true, StrategyDirect, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(root)
			cfg.Manager = tt.manager

			calls := 0
			l, err := NewLauncher(context.Background(), cfg, WithDetector(staticDetector(tt.available, &calls)))
			if err != nil {
				t.Fatalf("NewLauncher() error = %v", err)
			}
			if l.Strategy() != tt.want {
				t.Errorf("Strategy() = %v, want %v", l.Strategy(), tt.want)
			}
			if calls != tt.wantCalls {
				t.Errorf("detector called %d times, want %d", calls, tt.wantCalls)
			}
		})
	}
}

func TestNewLauncher_RootFromWorkingDir(t *testing.T) {
	root := t.TempDir()
	cwd := filepath.Join(root, "desktop", "src-tauri")

	cfg := testConfig("")
	l, err := NewLauncher(context.Background(), cfg,
		WithDetector(staticDetector(false, nil)),
		WithWorkingDir(cwd),
	)
	if err != nil {
		t.Fatalf("NewLauncher() error = %v", err)
	}
	if l.Root() != root {
		t.Errorf("Root() = %q, want %q", l.Root(), root)
	}
}

func TestLauncher_CommandLines(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig(root)
	cfg.Interpreter = "python3"

	managed, err := NewLauncher(context.Background(), cfg, WithDetector(staticDetector(true, nil)))
	if err != nil {
		t.Fatal(err)
	}
	direct, err := NewLauncher(context.Background(), cfg, WithDetector(staticDetector(false, nil)))
	if err != nil {
		t.Fatal(err)
	}

	script := filepath.Join("desktop", "desktop_api.py")

	tests := []struct {
		name        string
		line        CommandLine
		wantProgram string
		wantArgs    []string
	}{
		{
			"managed service",
			managed.ServiceCommand(),
			"poetry",
			[]string{"run", "python", "-m", "voxgrep.server"},
		},
		{
			"direct service",
			direct.ServiceCommand(),
			"python3",
			[]string{"-m", "voxgrep.server"},
		},
		{
			"managed script",
			managed.ScriptCommand([]string{"search", "hello world", "--type", "sentence"}),
			"poetry",
			[]string{"run", "python", script, "search", "hello world", "--type", "sentence"},
		},
		{
			"direct script",
			direct.ScriptCommand([]string{"list"}),
			"python3",
			[]string{script, "list"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.line.Program != tt.wantProgram {
				t.Errorf("Program = %q, want %q", tt.line.Program, tt.wantProgram)
			}
			if !slices.Equal(tt.line.Args, tt.wantArgs) {
				t.Errorf("Args = %q, want %q", tt.line.Args, tt.wantArgs)
			}
			if tt.line.Dir != root {
				t.Errorf("Dir = %q, want %q", tt.line.Dir, root)
			}
		})
	}

	// Building command lines must not alias the configured manager args.
	_ = managed.ScriptCommand([]string{"x"})
	if got := managed.Config().ManagerArgs; !slices.Equal(got, []string{"run", "python"}) {
		t.Errorf("ManagerArgs mutated: %v", got)
	}
}

func TestCommandLine_String(t *testing.T) {
	line := CommandLine{Program: "python3", Args: []string{"api.py", "search", "hello world", ""}}
	want := `python3 api.py search "hello world" ""`
	if got := line.String(); got != want {
		t.Errorf("String() = %s, want %s", got, want)
	}
}

func TestLauncher_CommandEnvironment(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.Env = map[string]string{"VOXGREP_DATA_DIR": "/data"}

	l, err := NewLauncher(context.Background(), cfg, WithDetector(staticDetector(false, nil)))
	if err != nil {
		t.Fatal(err)
	}

	cmd := l.Command(l.ServiceCommand())
	if cmd.Dir != l.Root() {
		t.Errorf("Dir = %q, want %q", cmd.Dir, l.Root())
	}
	if !slices.Contains(cmd.Env, "VOXGREP_DATA_DIR=/data") {
		t.Errorf("Env missing extra variable")
	}
	if len(cmd.Env) <= len(os.Environ()) {
		t.Errorf("expected inherited environment to be kept")
	}

	cfg.Env = nil
	l.Reconfigure(cfg)
	if cmd := l.Command(l.ServiceCommand()); cmd.Env != nil {
		t.Errorf("expected nil Env (inherit) without extra variables")
	}
}

func TestLauncher_Reconfigure(t *testing.T) {
	cfg := testConfig(t.TempDir())
	l, err := NewLauncher(context.Background(), cfg, WithDetector(staticDetector(true, nil)))
	if err != nil {
		t.Fatal(err)
	}
	root := l.Root()

	cfg.Module = "voxgrep.server.v2"
	cfg.ProjectRoot = t.TempDir()
	l.Reconfigure(cfg)

	line := l.ServiceCommand()
	if line.Args[len(line.Args)-1] != "voxgrep.server.v2" {
		t.Errorf("module not updated: %v", line.Args)
	}
	if l.Root() != root || l.Strategy() != StrategyManaged {
		t.Errorf("root or strategy changed on reconfigure")
	}
}

func TestLauncher_ReconfigureKeepsStrategyInputs(t *testing.T) {
	tests := []struct {
		name    string
		managed bool
		want    string
	}{
		{"managed", true, "poetry run python -m voxgrep.server"},
		{"direct", false, config.DefaultInterpreter() + " -m voxgrep.server"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t.TempDir())
			l, err := NewLauncher(context.Background(), cfg, WithDetector(staticDetector(tt.managed, nil)))
			if err != nil {
				t.Fatal(err)
			}

			reload := cfg
			reload.Manager = ""
			reload.ManagerArgs = []string{"exec"}
			reload.Interpreter = "/opt/other/python"
			l.Reconfigure(reload)

			if got := l.ServiceCommand().String(); got != tt.want {
				t.Errorf("ServiceCommand() = %q, want %q", got, tt.want)
			}
			if l.ServiceCommand().Program == "" {
				t.Error("reload left an empty program")
			}
		})
	}
}

func TestLaunch_MissingInterpreter(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.Manager = ""
	cfg.Interpreter = "voxdesk-no-such-python"

	l, err := NewLauncher(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}

	proc, err := l.Launch()
	if proc != nil {
		t.Error("expected nil process")
	}

	var launchErr *LaunchError
	if !errors.As(err, &launchErr) {
		t.Fatalf("expected *LaunchError, got %T: %v", err, err)
	}
	if launchErr.Program != "voxdesk-no-such-python" {
		t.Errorf("Program = %q", launchErr.Program)
	}
	if !strings.Contains(err.Error(), "Failed to spawn") {
		t.Errorf("error %q does not contain %q", err, "Failed to spawn")
	}
}

// writeInterpreter writes an executable shell script standing in for python.
func writeInterpreter(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "fakepython")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLaunch_ServiceOutput(t *testing.T) {
	skipOnWindows(t)

	root := t.TempDir()
	cfg := testConfig(root)
	cfg.Manager = ""
	cfg.Interpreter = writeInterpreter(t, root, `
echo "{\"event\":\"ready\",\"data\":\"$2\"}"
echo "cwd $(pwd)"
echo "warming up" >&2
`)

	l, err := NewLauncher(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}

	proc, err := l.Launch()
	if err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	go func() { _, _ = io.Copy(io.Discard, proc.Stderr) }()

	var rec bridge.Recorder
	stats := bridge.Forward(proc.Stdout, &rec)
	<-proc.Done()

	if stats.Events != 1 || stats.Logs != 1 {
		t.Fatalf("stats = %+v, want 1 event and 1 log", stats)
	}

	ev := rec.Channel(bridge.ChannelEvent)[0]
	if ev.Event.Name != "ready" || string(ev.Event.Data) != `"voxgrep.server"` {
		t.Errorf("event = %+v", ev.Event)
	}

	resolved, _ := filepath.EvalSymlinks(root)
	logLine := rec.Channel(bridge.ChannelLog)[0].Line
	if logLine != "cwd "+root && logLine != "cwd "+resolved {
		t.Errorf("backend ran in %q, want project root %q", logLine, root)
	}
}
