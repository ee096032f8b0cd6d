package config

import (
	"errors"
	"fmt"
)

var (
	// ErrFileNotFound is returned when an explicitly named file is missing.
	// A missing default file is not an error.
	ErrFileNotFound = errors.New("config file not found")

	// ErrUnsupportedFormat is returned for extensions other than .toml,
	// .yaml and .yml.
	ErrUnsupportedFormat = errors.New("unsupported config format")
)

// ParseError reports a config file that could not be decoded. Line and
// Column are set for TOML syntax errors and zero otherwise.
type ParseError struct {
	Path    string
	Line    int
	Column  int
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	where := e.Path
	if e.Line > 0 {
		where = fmt.Sprintf("%s:%d", e.Path, e.Line)
		if e.Column > 0 {
			where = fmt.Sprintf("%s:%d", where, e.Column)
		}
	}
	return "parsing " + where + ": " + e.Message
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ValidationError describes an invalid setting.
type ValidationError struct {
	// Key is the dotted setting key, e.g. "backend.module".
	Key string
	// Message describes what is wrong.
	Message string
	// Value is the offending value.
	Value any
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("invalid %s (%v): %s", e.Key, e.Value, e.Message)
	}
	return fmt.Sprintf("invalid %s: %s", e.Key, e.Message)
}
