package app

import (
	"context"

	"github.com/dshills/voxdesk/internal/backend"
	"github.com/dshills/voxdesk/internal/bridge"
	"github.com/dshills/voxdesk/internal/config"
	"github.com/dshills/voxdesk/internal/hook"
	"github.com/dshills/voxdesk/internal/logging"
)

// bootstrap initializes all components in dependency order.
func (app *Application) bootstrap(ctx context.Context) error {
	// 1. Config
	if app.cfg == nil {
		cfg, err := config.Load(app.opts.ConfigPath)
		if err != nil {
			return &InitError{Component: "config", Err: err}
		}
		app.cfg = cfg
	}
	app.applyOverrides(app.cfg)
	if err := app.cfg.Validate(); err != nil {
		return &InitError{Component: "config", Err: err}
	}

	// 2. Logger
	if app.log == nil {
		lc, f, err := app.cfg.LoggerConfig()
		if err != nil {
			return &InitError{Component: "logging", Err: err}
		}
		app.logFile = f
		app.log = logging.New(lc)
	}
	log := app.log.WithComponent("app")
	if app.cfg.Path != "" {
		log.Info("configuration loaded from %s", app.cfg.Path)
	}

	// 3. Hooks
	if path := app.cfg.UI.Hooks; path != "" {
		script, err := hook.Load(path, hook.WithLogger(app.log.WithComponent("hook")))
		if err != nil {
			return &InitError{Component: "hooks", Err: err}
		}
		app.hooks = script
		app.filter = hook.NewEmitter(script, bridge.EmitterFunc(app.deliver), app.log.WithComponent("hook"))
		log.Info("hooks loaded from %s", path)
	}

	// 4. Launcher: project root and strategy are decided once here
	launcherOpts := []backend.Option{
		backend.WithLogger(app.log.WithComponent("backend")),
		backend.WithDetector(app.detector),
	}
	if app.opts.WorkingDir != "" {
		launcherOpts = append(launcherOpts, backend.WithWorkingDir(app.opts.WorkingDir))
	}
	launcher, err := backend.NewLauncher(ctx, app.cfg.Backend, launcherOpts...)
	if err != nil {
		return &InitError{Component: "backend", Err: err}
	}
	app.launcher = launcher

	// 5. Command runner
	app.runner = backend.NewRunner(launcher, app.cfg.Backend.MaxCommands, app.log.WithComponent("runner"))

	// 6. Config watcher (non-fatal)
	if app.opts.Watch && app.cfg.Path != "" {
		w, err := config.Watch(app.cfg.Path, app.onConfigReload)
		if err != nil {
			log.Warn("config watching disabled: %v", err)
		} else {
			app.watcher = w
		}
	}

	return nil
}

// applyOverrides applies command-line overrides on top of cfg.
func (app *Application) applyOverrides(cfg *config.Config) {
	if app.opts.ProjectRoot != "" {
		cfg.Backend.ProjectRoot = app.opts.ProjectRoot
	}
	if app.opts.LogLevel != "" {
		cfg.Logging.Level = app.opts.LogLevel
	}
}

// onConfigReload installs a reloaded configuration. The running backend is
// left alone; later commands use the new settings.
func (app *Application) onConfigReload(cfg *config.Config, err error) {
	log := app.log.WithComponent("config")
	if err != nil {
		log.Warn("reload failed, keeping previous configuration: %v", err)
		return
	}

	app.applyOverrides(cfg)

	app.mu.Lock()
	app.cfg = cfg
	app.mu.Unlock()

	app.launcher.Reconfigure(cfg.Backend)
	log.Info("configuration reloaded from %s", cfg.Path)

	_ = app.Emit(bridge.Notification{Channel: bridge.ChannelConfig, Line: cfg.Path})
}
