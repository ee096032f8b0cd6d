package process

import (
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrSupervisorShutdown is returned by Start after Shutdown.
	ErrSupervisorShutdown = errors.New("supervisor is shutting down")

	// ErrProcessLimit is returned by Start when the concurrency limit is
	// reached.
	ErrProcessLimit = errors.New("process limit reached")
)

// Supervisor starts short-lived processes, bounds how many run at once,
// and stops whatever is left on shutdown.
type Supervisor struct {
	mu      sync.Mutex
	running map[string]*Process
	limit   int
	closed  bool

	reapers sync.WaitGroup
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithMaxProcesses limits concurrent processes. Zero, the default, means
// unlimited; negative values are ignored.
func WithMaxProcesses(n int) Option {
	return func(s *Supervisor) {
		if n >= 0 {
			s.limit = n
		}
	}
}

// NewSupervisor returns an empty Supervisor.
func NewSupervisor(opts ...Option) *Supervisor {
	s := &Supervisor{running: make(map[string]*Process)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start spawns cmd under a fresh ID and tracks it until it exits.
func (s *Supervisor) Start(name string, cmd *exec.Cmd) (*Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSupervisorShutdown
	}
	if s.limit > 0 && len(s.running) >= s.limit {
		return nil, fmt.Errorf("%w: %d running", ErrProcessLimit, len(s.running))
	}

	p, err := Spawn(uuid.NewString(), name, cmd)
	if err != nil {
		return nil, err
	}
	s.running[p.ID] = p

	s.reapers.Add(1)
	go func() {
		defer s.reapers.Done()
		<-p.Done()
		s.untrack(p)
	}()

	return p, nil
}

// Wait blocks until p exits and stops tracking it, so its slot is free for
// the next Start as soon as Wait returns.
func (s *Supervisor) Wait(p *Process) Exit {
	<-p.Done()
	s.untrack(p)
	exit, _ := p.Exited()
	return exit
}

func (s *Supervisor) untrack(p *Process) {
	s.mu.Lock()
	if s.running[p.ID] == p {
		delete(s.running, p.ID)
	}
	s.mu.Unlock()
}

// Count returns the number of tracked processes.
func (s *Supervisor) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

// Shutdown refuses further Starts and interrupts every running process,
// killing those still alive after grace. It returns once all of them have
// exited. Their output must still be drained for that to happen.
func (s *Supervisor) Shutdown(grace time.Duration) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	procs := make([]*Process, 0, len(s.running))
	for _, p := range s.running {
		procs = append(procs, p)
	}
	s.mu.Unlock()

	for _, p := range procs {
		if err := p.Interrupt(); err != nil {
			_ = p.Kill()
		}
	}

	deadline := time.After(grace)
	for _, p := range procs {
		select {
		case <-p.Done():
		case <-deadline:
			for _, q := range procs {
				_ = q.Kill()
			}
			<-p.Done()
		}
	}

	s.reapers.Wait()
}
