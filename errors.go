package modloader

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors. These are wrapped with contextual detail at the point of
// use via fmt.Errorf("%w: ...") so callers can classify failures with
// errors.Is.
var (
	// Registration errors
	ErrDuplicateModule = errors.New("module already registered")
	ErrUnknownModule   = errors.New("unknown module")
	ErrEmptyModuleName = errors.New("module name must not be empty")
	ErrNilFactory      = errors.New("module factory must not be nil")

	// Structural errors, detected before any factory runs
	ErrCyclicDependency = errors.New("cyclic dependency detected")

	// Runtime load errors
	ErrFactoryFailed    = errors.New("module factory failed")
	ErrModuleTimeout    = errors.New("module load timed out")
	ErrInvalidInstance  = errors.New("module instance failed validation")
	ErrDependencyFailed = errors.New("module dependency failed to load")

	// Session errors
	ErrSessionConsumed = errors.New("loading session already consumed")
	ErrCriticalFailure = errors.New("critical module failed")

	// Config errors
	ErrUnsupportedConfigFormat = errors.New("unsupported config file format")
	ErrConfigInvalid           = errors.New("invalid orchestrator config")
)

// CycleError reports a dependency cycle, naming the modules involved.
// It wraps ErrCyclicDependency so errors.Is classification still works.
type CycleError struct {
	// Members lists the modules participating in the cycle, in the order
	// the cycle was walked.
	Members []string
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	return fmt.Sprintf("%s: %s", ErrCyclicDependency, strings.Join(e.Members, " -> "))
}

// Unwrap allows errors.Is(err, ErrCyclicDependency).
func (e *CycleError) Unwrap() error {
	return ErrCyclicDependency
}

// TimeoutError reports that a module's factory or Init exceeded its
// per-module deadline. It carries the elapsed time for diagnostics and wraps
// ErrModuleTimeout.
type TimeoutError struct {
	Module  string
	Elapsed time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: module %s after %s", ErrModuleTimeout, e.Module, e.Elapsed)
}

// Unwrap allows errors.Is(err, ErrModuleTimeout).
func (e *TimeoutError) Unwrap() error {
	return ErrModuleTimeout
}

// retryable reports whether a load failure should consume further retry
// attempts. Timeouts, factory errors and validation failures are transient;
// a dependency-failure skip is not, because re-running the factory cannot
// make an already-failed dependency appear, and caller cancellation ends the
// session outright.
func retryable(err error) bool {
	if errors.Is(err, ErrDependencyFailed) {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
