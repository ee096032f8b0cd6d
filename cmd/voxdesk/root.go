package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gdamore/tcell/v2"
	"github.com/spf13/cobra"

	"github.com/dshills/voxdesk/internal/app"
	"github.com/dshills/voxdesk/internal/bridge"
	"github.com/dshills/voxdesk/internal/config"
)

// globalOptions holds the persistent flags shared by every command.
type globalOptions struct {
	configPath  string
	logLevel    string
	projectRoot string
}

func newRootCmd() *cobra.Command {
	var opts globalOptions

	cmd := &cobra.Command{
		Use:   "voxdesk",
		Short: "Desktop shell for the voxgrep backend",
		Long: `voxdesk starts the voxgrep Python backend, shows what it reports, and
stops it when the window closes.

Backend output lines that are JSON objects with "event" and "data" members
are shown as events; everything else is shown as a log line.

The backend is started from the project root. When the dependency manager
(poetry by default) is installed it is used to run python; otherwise the
interpreter is run directly.

Configuration:
  $XDG_CONFIG_HOME/voxdesk/config.toml (or --config), then VOXDESK_*
  environment variables. Set ui.mode = "jsonl" to print JSON lines to
  stdout instead of opening the window.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runShell(cmd, opts)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.StringVar(&opts.projectRoot, "project-root", "", "Backend project root (skips auto-detection)")

	cmd.AddCommand(newRunCmd(&opts), newDoctorCmd(&opts))
	return cmd
}

// newApp creates the application from the global flags.
func newApp(ctx context.Context, opts globalOptions, watch bool, options ...app.Option) (*app.Application, error) {
	return app.New(ctx, app.Options{
		ConfigPath:  opts.configPath,
		ProjectRoot: opts.projectRoot,
		LogLevel:    opts.logLevel,
		Watch:       watch,
	}, options...)
}

// runShell runs the window, or streams JSON lines when ui.mode is jsonl,
// until the user quits or a signal arrives.
func runShell(cmd *cobra.Command, opts globalOptions) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	// The terminal belongs to the window; keep log output off it.
	if cfg.UI.Mode == config.ModeWindow && cfg.Logging.File == "" {
		cfg.Logging.File = defaultLogFile()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := newApp(ctx, opts, true, app.WithConfig(cfg))
	if err != nil {
		return err
	}
	defer application.Shutdown()

	if cfg.UI.Mode == config.ModeJSONL {
		application.RunHeadless(ctx, bridge.NewJSONLSink(cmd.OutOrStdout()))
		return nil
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("failed to create terminal: %w", err)
	}

	go func() {
		<-ctx.Done()
		application.CloseWindow()
	}()

	if err := application.RunWindow(screen); err != nil && !errors.Is(err, app.ErrQuit) {
		return err
	}
	return nil
}

// defaultLogFile returns the log file used while the window owns the
// terminal, or "" to log to stderr.
func defaultLogFile() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "voxdesk", "voxdesk.log")
}
