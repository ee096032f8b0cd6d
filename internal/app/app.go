// Package app provides the voxdesk application context. It wires the
// configuration, logger, backend launcher, supervisor, command runner, hooks
// and UI together and owns the application lifecycle.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dshills/voxdesk/internal/backend"
	"github.com/dshills/voxdesk/internal/bridge"
	"github.com/dshills/voxdesk/internal/config"
	"github.com/dshills/voxdesk/internal/hook"
	"github.com/dshills/voxdesk/internal/logging"
	"github.com/dshills/voxdesk/internal/process"
	"github.com/dshills/voxdesk/internal/ui"
)

// ShutdownTimeout bounds how long running commands get to exit on shutdown.
const ShutdownTimeout = 5 * time.Second

// Application is the shared context of the startup path, the window-event
// handler, and command dispatch.
type Application struct {
	mu sync.RWMutex

	cfg     *config.Config
	log     *logging.Logger
	logFile *os.File

	launcher *backend.Launcher
	backend  *backend.Supervisor
	runner   *backend.Runner
	hooks    *hook.Script
	filter   *hook.Emitter // hooks in front of deliver; set once by bootstrap
	watcher  *config.Watcher

	sink      bridge.Emitter
	window    *ui.Window
	launchErr error

	starting   sync.Mutex // serializes StartBackend
	forwarding sync.WaitGroup
	closed     atomic.Bool

	opts     Options
	detector backend.Detector
}

// Options configures the application.
type Options struct {
	// ConfigPath is the configuration file. Empty uses the default location.
	ConfigPath string

	// ProjectRoot overrides backend.project_root.
	ProjectRoot string

	// LogLevel overrides logging.level.
	LogLevel string

	// WorkingDir resolves the project root instead of the process working
	// directory.
	WorkingDir string

	// Watch reloads the configuration file when it changes.
	Watch bool
}

// Option customizes an Application beyond Options.
type Option func(*Application)

// WithConfig uses cfg instead of loading the configuration.
func WithConfig(cfg *config.Config) Option {
	return func(app *Application) {
		app.cfg = cfg
	}
}

// WithLogger uses log instead of building one from the configuration.
func WithLogger(log *logging.Logger) Option {
	return func(app *Application) {
		app.log = log
	}
}

// WithEmitter sets where notifications are delivered.
func WithEmitter(e bridge.Emitter) Option {
	return func(app *Application) {
		app.sink = e
	}
}

// WithDetector replaces the dependency-manager check.
func WithDetector(p backend.Detector) Option {
	return func(app *Application) {
		app.detector = p
	}
}

// New creates an Application and initializes every component. The backend
// is not started; call Start.
func New(ctx context.Context, opts Options, options ...Option) (*Application, error) {
	app := &Application{
		opts:    opts,
		backend: backend.NewSupervisor(),
		sink:    bridge.Discard,
	}
	for _, opt := range options {
		opt(app)
	}

	if err := app.bootstrap(ctx); err != nil {
		app.release()
		return nil, err
	}

	return app, nil
}

// Emit implements bridge.Emitter. Notifications pass through the hook
// script, if any, before reaching the current sink.
func (app *Application) Emit(n bridge.Notification) error {
	if app.filter != nil {
		return app.filter.Emit(n)
	}
	return app.deliver(n)
}

// deliver hands n to the current sink.
func (app *Application) deliver(n bridge.Notification) error {
	app.mu.RLock()
	sink := app.sink
	app.mu.RUnlock()
	return sink.Emit(n)
}

// SetEmitter replaces the notification sink.
func (app *Application) SetEmitter(e bridge.Emitter) {
	if e == nil {
		e = bridge.Discard
	}
	app.mu.Lock()
	app.sink = e
	app.mu.Unlock()
}

// Start launches the backend service when backend.autostart is set. A
// launch failure is logged, reported to the UI, and kept for LaunchError;
// it does not fail startup.
func (app *Application) Start() {
	if !app.Config().Backend.Autostart {
		app.log.Info("backend autostart disabled")
		app.refreshStatus()
		return
	}

	if err := app.StartBackend(); err != nil {
		app.log.Error("%v", err)
		_ = app.Emit(bridge.LogNotification(err.Error()))
	}
	app.refreshStatus()
}

// StartBackend launches the backend service and hands it to the supervisor.
// Its stdout is forwarded as notifications; its stderr is logged.
//
// A backend already held by the supervisor is left alone and
// backend.ErrAlreadySupervised returned without spawning anything.
func (app *Application) StartBackend() error {
	app.starting.Lock()
	defer app.starting.Unlock()

	if app.backend.Running() {
		return backend.ErrAlreadySupervised
	}

	proc, err := app.launcher.Launch()

	app.mu.Lock()
	app.launchErr = err
	app.mu.Unlock()

	if err != nil {
		return err
	}

	if err := app.backend.Store(proc); err != nil {
		_ = proc.Kill()
		discard(proc)
		return err
	}

	log := app.log.WithComponent("backend").WithField("process", proc.ID)
	stderr := app.log.WithComponent("backend.stderr").WithField("process", proc.ID)

	app.forwarding.Add(2)
	go func() {
		defer app.forwarding.Done()
		stats := bridge.Forward(proc.Stdout, app)
		log.Debug("backend output closed after %d events and %d log lines", stats.Events, stats.Logs)
	}()
	go func() {
		defer app.forwarding.Done()
		for line := range bridge.Lines(proc.Stderr) {
			stderr.Debug("%s", line)
		}
	}()

	return nil
}

// HandleWindowEvent reacts to window lifecycle events. Destroying the
// window kills the backend; repeated destroy events do nothing.
func (app *Application) HandleWindowEvent(ev ui.WindowEvent) {
	switch ev {
	case ui.WindowCreated:
		app.log.Debug("window created")
	case ui.WindowDestroyed:
		if app.backend.Teardown() {
			app.log.Info("backend stopped")
		}
		app.refreshStatus()
	}
}

// RunCommand runs a one-shot backend command and forwards its output.
// "quit" and "exit" return ErrQuit without running anything.
func (app *Application) RunCommand(ctx context.Context, args []string) (backend.Result, error) {
	if len(args) == 0 {
		return backend.Result{}, fmt.Errorf("no command given")
	}
	switch args[0] {
	case "quit", "exit":
		return backend.Result{}, ErrQuit
	}

	res, err := app.runner.Run(ctx, args, app)
	if err != nil {
		app.log.Warn("command %s: %v", args[0], err)
	}
	return res, err
}

// BackendRunning reports whether the supervisor holds a backend process.
func (app *Application) BackendRunning() bool {
	return app.backend.Running()
}

// BackendPID returns the backend process ID, or -1.
func (app *Application) BackendPID() int {
	return app.backend.PID()
}

// LaunchError returns the error from the most recent backend launch.
func (app *Application) LaunchError() error {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return app.launchErr
}

// Config returns the current configuration.
func (app *Application) Config() *config.Config {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return app.cfg
}

// Launcher returns the backend launcher.
func (app *Application) Launcher() *backend.Launcher {
	return app.launcher
}

// Logger returns the application logger.
func (app *Application) Logger() *logging.Logger {
	return app.log
}

// Status describes the backend for the status line.
func (app *Application) Status() string {
	if pid := app.backend.PID(); pid > 0 {
		return fmt.Sprintf("backend pid %d (%s)", pid, app.launcher.Strategy())
	}
	if err := app.LaunchError(); err != nil {
		return "backend not running: " + err.Error()
	}
	return "backend not running"
}

// Shutdown kills the backend, stops running commands, and releases every
// resource. It is safe to call more than once.
func (app *Application) Shutdown() {
	if app.closed.Swap(true) {
		return
	}

	app.HandleWindowEvent(ui.WindowDestroyed)

	if app.runner != nil {
		app.runner.Shutdown(ShutdownTimeout)
	}

	done := make(chan struct{})
	go func() {
		app.forwarding.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(ShutdownTimeout):
		app.log.Warn("backend output still open after %s", ShutdownTimeout)
	}

	app.release()
}

// release closes resources acquired by bootstrap.
func (app *Application) release() {
	if app.watcher != nil {
		if err := app.watcher.Close(); err != nil {
			app.log.Debug("closing config watcher: %v", err)
		}
	}
	if app.hooks != nil {
		_ = app.hooks.Close()
	}
	if app.logFile != nil {
		_ = app.logFile.Close()
	}
}

// discard drains the output of a process nobody forwards.
func discard(proc *process.Process) {
	go func() { _, _ = io.Copy(io.Discard, proc.Stdout) }()
	go func() { _, _ = io.Copy(io.Discard, proc.Stderr) }()
}
