package process

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"syscall"
	"time"
)

// DefaultWaitDelay bounds how long a process keeps copying output after it
// exits, for children that leak their stdout to grandchildren.
const DefaultWaitDelay = 5 * time.Second

// Exit describes how a process ended.
type Exit struct {
	// Code is the exit status, or -1 when the process was killed by a
	// signal or could not be waited on.
	Code int

	// Signaled reports whether a signal ended the process.
	Signaled bool

	// Err is the error returned by exec.Cmd.Wait. A non-zero exit is an
	// *exec.ExitError.
	Err error

	// Runtime is the time between start and exit.
	Runtime time.Duration
}

// Success reports whether the process exited with status 0.
func (e Exit) Success() bool {
	return e.Code == 0 && !e.Signaled
}

// Process is a started child process whose stdout and stderr are piped
// to the parent. It is safe for concurrent use.
type Process struct {
	// ID uniquely identifies the process within voxdesk.
	ID string

	// Name describes what the process runs, for logging.
	Name string

	// Stdout and Stderr read the child's output. Both must be drained.
	Stdout io.ReadCloser
	Stderr io.ReadCloser

	cmd     *exec.Cmd
	started time.Time
	pipes   [2]*io.PipeWriter

	done chan struct{}
	exit Exit // written once before done is closed
}

// Spawn starts cmd with piped output and returns once the child is
// running. Any Stdout or Stderr already set on cmd is replaced.
func Spawn(id, name string, cmd *exec.Cmd) (*Process, error) {
	p := &Process{
		ID:   id,
		Name: name,
		cmd:  cmd,
		done: make(chan struct{}),
	}

	stdout, stdoutW := io.Pipe()
	stderr, stderrW := io.Pipe()
	p.Stdout, p.Stderr = stdout, stderr
	p.pipes = [2]*io.PipeWriter{stdoutW, stderrW}

	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW
	if cmd.WaitDelay == 0 {
		cmd.WaitDelay = DefaultWaitDelay
	}

	if err := cmd.Start(); err != nil {
		p.closePipes(err)
		return nil, fmt.Errorf("start %s: %w", name, err)
	}
	p.started = time.Now()

	go p.wait()

	return p, nil
}

// wait reaps the child, records how it ended, and closes the pipes so
// readers see EOF after the last byte of output.
func (p *Process) wait() {
	err := p.cmd.Wait()

	exit := Exit{Err: err, Runtime: time.Since(p.started)}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		exit.Code = exitErr.ExitCode()
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			exit.Signaled = true
		}
	default:
		exit.Code = -1
	}

	p.closePipes(nil)
	p.exit = exit
	close(p.done)
}

func (p *Process) closePipes(err error) {
	for _, w := range p.pipes {
		_ = w.CloseWithError(err)
	}
}

// PID returns the operating-system process ID.
func (p *Process) PID() int {
	return p.cmd.Process.Pid
}

// Started returns when the process was started.
func (p *Process) Started() time.Time {
	return p.started
}

// Done is closed once the process has exited and its output has been
// handed to the readers.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Exited returns how the process ended, and false while it is running.
func (p *Process) Exited() (Exit, bool) {
	select {
	case <-p.done:
		return p.exit, true
	default:
		return Exit{Code: -1}, false
	}
}

// Running reports whether the process has not been reaped yet.
func (p *Process) Running() bool {
	_, exited := p.Exited()
	return !exited
}

// Kill forcibly terminates the process. It returns ErrExited once the
// process has been reaped.
func (p *Process) Kill() error {
	if !p.Running() {
		return ErrExited
	}
	return p.cmd.Process.Kill()
}

// Interrupt asks the process to exit with SIGTERM. Where the platform
// cannot deliver it the OS error is returned and callers fall back to Kill.
func (p *Process) Interrupt() error {
	if !p.Running() {
		return ErrExited
	}
	return p.cmd.Process.Signal(syscall.SIGTERM)
}

// ErrExited is returned when signalling a process that has already exited.
var ErrExited = errors.New("process already exited")
