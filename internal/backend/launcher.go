package backend

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/voxdesk/internal/config"
	"github.com/dshills/voxdesk/internal/logging"
	"github.com/dshills/voxdesk/internal/process"
)

// Strategy selects how the backend interpreter is invoked.
type Strategy int

const (
	// StrategyDirect runs the platform interpreter directly.
	StrategyDirect Strategy = iota
	// StrategyManaged runs the interpreter through the dependency manager.
	StrategyManaged
)

// String returns the strategy name.
func (s Strategy) String() string {
	switch s {
	case StrategyDirect:
		return "direct"
	case StrategyManaged:
		return "managed"
	default:
		return "unknown"
	}
}

// Detector reports whether a dependency manager can be invoked.
type Detector func(ctx context.Context, manager string) bool

// DetectManager runs "manager --version" and reports whether the executable
// could be invoked at all. A non-zero exit still counts as available; a
// missing executable or a check that outlives ctx does not.
func DetectManager(ctx context.Context, manager string) bool {
	if manager == "" {
		return false
	}

	err := exec.CommandContext(ctx, manager, "--version").Run()
	if ctx.Err() != nil {
		return false
	}
	if err == nil {
		return true
	}

	var exitErr *exec.ExitError
	return errors.As(err, &exitErr)
}

// ResolveProjectRoot maps a working directory to the project root. When the
// base name of cwd is a key of markers, the root is that many levels up;
// otherwise cwd itself is the root.
func ResolveProjectRoot(cwd string, markers map[string]int) string {
	cwd = filepath.Clean(cwd)

	levels, ok := markers[filepath.Base(cwd)]
	if !ok || levels < 1 {
		return cwd
	}

	root := cwd
	for range levels {
		root = filepath.Dir(root)
	}
	return root
}

// CommandLine is a fully resolved backend invocation.
type CommandLine struct {
	Program string
	Args    []string
	Dir     string
}

// String renders the command line for display, quoting arguments that
// contain whitespace.
func (c CommandLine) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	for _, p := range append([]string{c.Program}, c.Args...) {
		if p == "" || strings.ContainsAny(p, " \t\n\"'") {
			p = strconv.Quote(p)
		}
		parts = append(parts, p)
	}
	return strings.Join(parts, " ")
}

// Launcher resolves and starts backend processes.
//
// The project root and strategy are fixed when the Launcher is created;
// Reconfigure replaces the remaining settings for later invocations.
type Launcher struct {
	mu  sync.RWMutex
	cfg config.BackendConfig

	root     string
	strategy Strategy

	log      *logging.Logger
	detector Detector
	cwd      string
}

// Option configures a Launcher.
type Option func(*Launcher)

// WithLogger sets the launcher's logger.
func WithLogger(log *logging.Logger) Option {
	return func(l *Launcher) {
		if log != nil {
			l.log = log
		}
	}
}

// WithDetector replaces the dependency-manager check.
func WithDetector(p Detector) Option {
	return func(l *Launcher) {
		if p != nil {
			l.detector = p
		}
	}
}

// WithWorkingDir resolves the project root from dir instead of the process
// working directory.
func WithWorkingDir(dir string) Option {
	return func(l *Launcher) {
		l.cwd = dir
	}
}

// NewLauncher resolves the project root and checks the dependency manager.
// The check is bounded by both ctx and cfg.DetectTimeout.
func NewLauncher(ctx context.Context, cfg config.BackendConfig, opts ...Option) (*Launcher, error) {
	l := &Launcher{
		cfg:      cfg,
		log:      logging.Nop(),
		detector: DetectManager,
	}
	for _, opt := range opts {
		opt(l)
	}

	switch {
	case cfg.ProjectRoot != "":
		abs, err := filepath.Abs(cfg.ProjectRoot)
		if err != nil {
			return nil, errors.Join(ErrNoProjectRoot, err)
		}
		l.root = abs
	default:
		cwd := l.cwd
		if cwd == "" {
			wd, err := os.Getwd()
			if err != nil {
				return nil, errors.Join(ErrNoProjectRoot, err)
			}
			cwd = wd
		}
		l.root = ResolveProjectRoot(cwd, cfg.RootMarkers)
	}

	l.strategy = StrategyDirect
	if cfg.Manager != "" {
		timeout := cfg.DetectTimeout.Std()
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		detectCtx, cancel := context.WithTimeout(ctx, timeout)
		available := l.detector(detectCtx, cfg.Manager)
		cancel()

		if available {
			l.strategy = StrategyManaged
			l.log.Info("dependency manager %s available", cfg.Manager)
		} else {
			l.log.Info("dependency manager %s not available, using %s", cfg.Manager, cfg.Interpreter)
		}
	}

	l.log.Debug("project root %s, strategy %s", l.root, l.strategy)

	return l, nil
}

// Root returns the resolved project root.
func (l *Launcher) Root() string {
	return l.root
}

// Strategy returns the strategy chosen at startup.
func (l *Launcher) Strategy() Strategy {
	return l.strategy
}

// Config returns the current backend settings.
func (l *Launcher) Config() config.BackendConfig {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg
}

// Reconfigure replaces the settings used by later invocations. The project
// root and strategy are kept, and so are the manager, manager arguments and
// interpreter the strategy was chosen with; changing those needs a restart.
func (l *Launcher) Reconfigure(cfg config.BackendConfig) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if cfg.Manager != l.cfg.Manager || cfg.Interpreter != l.cfg.Interpreter || !slices.Equal(cfg.ManagerArgs, l.cfg.ManagerArgs) {
		l.log.Warn("manager and interpreter changes apply after restart; keeping %s", l.strategy)
	}
	cfg.Manager = l.cfg.Manager
	cfg.ManagerArgs = l.cfg.ManagerArgs
	cfg.Interpreter = l.cfg.Interpreter
	l.cfg = cfg
}

// prefix returns the program and leading arguments that run the
// interpreter under the current strategy.
func (l *Launcher) prefix(cfg config.BackendConfig) (string, []string) {
	if l.strategy == StrategyManaged {
		return cfg.Manager, append([]string(nil), cfg.ManagerArgs...)
	}
	return cfg.Interpreter, nil
}

// ServiceCommand returns the invocation of the long-running backend module.
func (l *Launcher) ServiceCommand() CommandLine {
	cfg := l.Config()
	program, args := l.prefix(cfg)
	return CommandLine{
		Program: program,
		Args:    append(args, "-m", cfg.Module),
		Dir:     l.root,
	}
}

// ScriptCommand returns the invocation of the one-shot command script with
// args appended verbatim.
func (l *Launcher) ScriptCommand(args []string) CommandLine {
	cfg := l.Config()
	program, prefix := l.prefix(cfg)
	prefix = append(prefix, cfg.Script)
	return CommandLine{
		Program: program,
		Args:    append(prefix, args...),
		Dir:     l.root,
	}
}

// Command builds an exec.Cmd for line rooted at its directory, with the
// configured extra environment appended to the inherited one.
func (l *Launcher) Command(line CommandLine) *exec.Cmd {
	return l.prepare(exec.Command(line.Program, line.Args...), line)
}

// CommandContext is like Command but the process is killed when ctx is done.
func (l *Launcher) CommandContext(ctx context.Context, line CommandLine) *exec.Cmd {
	return l.prepare(exec.CommandContext(ctx, line.Program, line.Args...), line)
}

func (l *Launcher) prepare(cmd *exec.Cmd, line CommandLine) *exec.Cmd {
	cmd.Dir = line.Dir
	if extra := l.Config().Environ(); len(extra) > 0 {
		cmd.Env = append(os.Environ(), extra...)
	}
	return cmd
}

// Launch starts the long-running backend service with piped output.
// The caller must drain both Stdout and Stderr of the returned process.
func (l *Launcher) Launch() (*process.Process, error) {
	line := l.ServiceCommand()

	proc, err := process.Spawn(uuid.NewString(), "backend", l.Command(line))
	if err != nil {
		return nil, &LaunchError{Program: line.Program, Err: err}
	}

	l.log.Info("started backend %s (pid %d, id %s)", line, proc.PID(), proc.ID)
	return proc, nil
}
