package backend

import (
	"errors"
	"fmt"
)

// Sentinel errors for the backend package.
var (
	// ErrBusy is returned when the one-shot command limit is reached.
	ErrBusy = errors.New("backend busy: command limit reached")

	// ErrNoProjectRoot is returned when the working directory can't be determined.
	ErrNoProjectRoot = errors.New("cannot determine project root")

	// ErrAlreadySupervised is returned when storing a second backend handle.
	ErrAlreadySupervised = errors.New("backend process already supervised")
)

// LaunchError reports that a backend process could not be created.
type LaunchError struct {
	// Program is the executable that failed to start.
	Program string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *LaunchError) Error() string {
	return fmt.Sprintf("Failed to spawn %s: %v", e.Program, e.Err)
}

// Unwrap returns the underlying error.
func (e *LaunchError) Unwrap() error {
	return e.Err
}
