package lsh

import (
	"errors"
	"fmt"
)

// Common errors
var (
	// ErrInvalidDimension is returned when an input vector length does not
	// match the configured dimension
	ErrInvalidDimension = errors.New("invalid vector dimension")

	// ErrInvalidConfig is returned when construction parameters are invalid
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrOnlyIndex is returned when an operation needs stored vectors but the
	// index was built index-only
	ErrOnlyIndex = errors.New("index stores ids only, use QueryBucketIDs")

	// ErrNotFitted is returned when fitting is requested on a family without
	// fit state
	ErrNotFitted = errors.New("hasher family does not support fitting")

	// ErrWrongBackend is returned for backend-specific operations invoked on
	// another backend
	ErrWrongBackend = errors.New("operation not supported by this backend")
)

// IndexError wraps errors with operation context
type IndexError struct {
	Op  string // Operation name
	Err error  // Underlying error
}

// Error implements the error interface
func (e *IndexError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("lsh: %v", e.Err)
	}
	return fmt.Sprintf("lsh: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *IndexError) Unwrap() error {
	return e.Err
}

// Is checks if the error matches the target
func (e *IndexError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// wrapError wraps an error with operation context
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &IndexError{Op: op, Err: err}
}
