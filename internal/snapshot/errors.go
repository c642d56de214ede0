// Package snapshot builds and compares content-addressed views of a
// directory tree.
//
// This file contains error types and error handling utilities.
package snapshot

import (
	"errors"
	"fmt"
)

var (
	// ErrTreeUnavailable indicates the monitored root could not be read
	// at all. Callers retry on the next cycle rather than terminating.
	ErrTreeUnavailable = errors.New("monitored tree unavailable")

	// ErrNotDirectory indicates the configured root is not a directory
	ErrNotDirectory = errors.New("root is not a directory")
)

// Error wraps scan errors with context about the operation and affected
// path to provide more detailed error information.
type Error struct {
	Op   string // Operation that failed (e.g., "hash", "walk")
	Path string // Affected path
	Err  error  // Underlying error
}

// Error implements the error interface, providing a formatted error message
func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("operation %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("operation %s on %s failed: %v", e.Op, e.Path, e.Err)
}

// Unwrap implements error unwrapping for the errors.Is/As functions
func (e *Error) Unwrap() error {
	return e.Err
}

// newError creates an Error with the given operation, path, and underlying error
func newError(op, path string, err error) *Error {
	return &Error{Op: op, Path: path, Err: err}
}

// Common operation names for consistent logging and error reporting
const (
	OpHash = "hash" // Hashing a file's content
	OpWalk = "walk" // Walking the directory tree
	OpStat = "stat" // Statting the root
)
