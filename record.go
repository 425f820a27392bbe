package modloader

import "time"

// ModuleState tracks where a module is in its load lifecycle.
type ModuleState int

const (
	// ModuleStatePending indicates the module has not started loading.
	ModuleStatePending ModuleState = iota

	// ModuleStateLoading indicates a load attempt is in flight.
	ModuleStateLoading

	// ModuleStateLoaded indicates the module loaded and its instance
	// passed validation.
	ModuleStateLoaded

	// ModuleStateFailed indicates the retry budget was exhausted, or the
	// failure was not retryable.
	ModuleStateFailed
)

// String returns the string representation of the module state.
func (s ModuleState) String() string {
	switch s {
	case ModuleStateLoading:
		return "loading"
	case ModuleStateLoaded:
		return "loaded"
	case ModuleStateFailed:
		return "failed"
	default:
		return "pending"
	}
}

// IsTerminal reports whether the state is final for the session.
func (s ModuleState) IsTerminal() bool {
	return s == ModuleStateLoaded || s == ModuleStateFailed
}

// ModuleRecord tracks the runtime outcome of a single descriptor. Records
// are owned and mutated exclusively by the orchestrator's loading loop;
// callers observe them through snapshot copies.
type ModuleRecord struct {
	// State is the module's current lifecycle state.
	State ModuleState

	// Instance is the value the factory produced, set only once State is
	// ModuleStateLoaded.
	Instance any

	// Attempts counts load attempts so far.
	Attempts int

	// LastError is the most recent failure reason. It is retained even
	// after an eventual success, for diagnostics.
	LastError error

	// LoadDuration is the wall-clock time of the successful attempt.
	LoadDuration time.Duration

	// index is the registration position, used as the priority tie-break.
	index int
}

// snapshot returns a copy safe to hand outside the loading loop.
func (r *ModuleRecord) snapshot() ModuleRecord {
	return *r
}
