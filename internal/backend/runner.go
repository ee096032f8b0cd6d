package backend

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dshills/voxdesk/internal/bridge"
	"github.com/dshills/voxdesk/internal/logging"
	"github.com/dshills/voxdesk/internal/process"
)

// Result describes a finished one-shot command.
type Result struct {
	// ID is the process ID assigned by the supervisor.
	ID string
	// ExitCode is the command's exit status, -1 if it was killed.
	ExitCode int
	// Stats counts the forwarded notifications.
	Stats bridge.Stats
	// Runtime is how long the command ran.
	Runtime time.Duration
}

// Runner executes one-shot backend commands and forwards their output.
type Runner struct {
	launcher *Launcher
	procs    *process.Supervisor
	log      *logging.Logger
}

// NewRunner returns a Runner allowing at most maxCommands concurrent runs
// (0 means unlimited).
func NewRunner(l *Launcher, maxCommands int, log *logging.Logger) *Runner {
	if log == nil {
		log = logging.Nop()
	}
	return &Runner{
		launcher: l,
		procs:    process.NewSupervisor(process.WithMaxProcesses(maxCommands)),
		log:      log,
	}
}

// Run starts the command script with args and forwards every stdout line
// to e until the stream closes. Stderr is logged at debug level.
//
// Run returns a *LaunchError if the process could not be created and
// ErrBusy if the command limit is reached. A command that exits non-zero
// is not an error; see Result.ExitCode. Cancelling ctx kills the command.
func (r *Runner) Run(ctx context.Context, args []string, e bridge.Emitter) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	line := r.launcher.ScriptCommand(args)

	proc, err := r.procs.Start("command", r.launcher.CommandContext(ctx, line))
	switch {
	case errors.Is(err, process.ErrProcessLimit):
		return Result{}, ErrBusy
	case errors.Is(err, process.ErrSupervisorShutdown):
		return Result{}, err
	case err != nil:
		launchErr := &LaunchError{Program: line.Program, Err: err}
		r.log.Error("%v", launchErr)
		return Result{}, launchErr
	}

	log := r.log.WithField("process", proc.ID)
	log.Info("running %s (pid %d)", line, proc.PID())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		logStderr(proc, log.WithField("stream", "stderr"))
	}()

	stats := bridge.Forward(proc.Stdout, e)
	wg.Wait()

	exit := r.procs.Wait(proc)

	res := Result{
		ID:       proc.ID,
		ExitCode: exit.Code,
		Stats:    stats,
		Runtime:  exit.Runtime,
	}

	log.WithFields(map[string]any{
		"events":  stats.Events,
		"logs":    stats.Logs,
		"exit":    res.ExitCode,
		"runtime": logging.Since(proc.Started()),
	}).Info("command finished")
	if !exit.Success() {
		log.Debug("command exit: %v", exit.Err)
	}

	return res, nil
}

// Running returns the number of commands in flight.
func (r *Runner) Running() int {
	return r.procs.Count()
}

// Shutdown stops accepting commands and stops those still running, waiting
// up to timeout before killing them.
func (r *Runner) Shutdown(timeout time.Duration) {
	r.procs.Shutdown(timeout)
}

// logStderr copies each stderr line of proc to log at debug level.
func logStderr(proc *process.Process, log *logging.Logger) {
	for line := range bridge.Lines(proc.Stderr) {
		log.Debug("%s", line)
	}
}
