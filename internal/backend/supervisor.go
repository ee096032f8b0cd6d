package backend

import "sync"

// Handle is the part of a backend process the Supervisor needs.
// *process.Process satisfies it.
type Handle interface {
	Kill() error
	PID() int
}

// Supervisor holds the single long-running backend handle for the
// application's lifetime.
//
// The handle is nil before Store and after Teardown. The lock is only held
// to swap the handle, never across a kill.
type Supervisor struct {
	mu     sync.Mutex
	handle Handle
}

// NewSupervisor returns an empty Supervisor.
func NewSupervisor() *Supervisor {
	return &Supervisor{}
}

// Store takes ownership of h. It fails with ErrAlreadySupervised if a
// handle is already held.
func (s *Supervisor) Store(h Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle != nil {
		return ErrAlreadySupervised
	}
	s.handle = h
	return nil
}

// Take removes and returns the held handle, leaving nil behind.
func (s *Supervisor) Take() Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.handle
	s.handle = nil
	return h
}

// Teardown takes the handle and force-kills it. Kill errors are ignored.
// It reports whether a handle was present; later calls are no-ops.
func (s *Supervisor) Teardown() bool {
	h := s.Take()
	if h == nil {
		return false
	}
	_ = h.Kill()
	return true
}

// Running reports whether a handle is held.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle != nil
}

// PID returns the held process ID, or -1.
func (s *Supervisor) PID() int {
	s.mu.Lock()
	h := s.handle
	s.mu.Unlock()

	if h == nil {
		return -1
	}
	return h.PID()
}
