package app

import "errors"

// Application errors.
var (
	// ErrQuit signals that the user asked to close the application.
	ErrQuit = errors.New("quit requested")

	// ErrAlreadyRunning indicates the window is already running.
	ErrAlreadyRunning = errors.New("application already running")
)

// InitError represents an initialization error.
type InitError struct {
	Component string
	Err       error
}

func (e *InitError) Error() string {
	return "init " + e.Component + ": " + e.Err.Error()
}

func (e *InitError) Unwrap() error {
	return e.Err
}
