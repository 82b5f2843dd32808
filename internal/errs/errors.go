// Package errs defines the error kinds shared by the domain layers and the sink that reports them.
package errs

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Domain errors wrap one of these so callers can use errors.Is.
var (
	ErrValidation  = errors.New("validation failed")
	ErrState       = errors.New("invalid state")
	ErrNotFound    = errors.New("not found")
	ErrPersistence = errors.New("persistence failed")
)

// Validation returns an ErrValidation carrying a formatted reason
func Validation(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// State returns an ErrState carrying a formatted reason
func State(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrState, fmt.Sprintf(format, args...))
}

// NotFound returns an ErrNotFound carrying a formatted reason
func NotFound(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Persistence wraps a datastore failure
func Persistence(err error) error {
	if err == nil || errors.Is(err, ErrPersistence) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrPersistence, err)
}

// IsClient reports whether err was caused by the caller's input rather than the system
func IsClient(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound)
}
