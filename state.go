package modloader

import "time"

// Phase tracks where a loading session is in its lifecycle. A session moves
// from PhaseNone to PhaseLoading when LoadAll is invoked, then terminally to
// PhaseReady or PhaseError. There is no in-place reset: a new session means
// a new orchestrator, which sidesteps stale-state bugs across runs.
type Phase int

const (
	// PhaseNone means LoadAll has not been called yet.
	PhaseNone Phase = iota

	// PhaseLoading means a session is in progress.
	PhaseLoading

	// PhaseReady means the session completed without a critical failure.
	PhaseReady

	// PhaseError means a critical module failed or an unexpected error
	// escaped the loading loop.
	PhaseError
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseReady:
		return "ready"
	case PhaseError:
		return "error"
	default:
		return "none"
	}
}

// IsTerminal reports whether the phase is final for the session.
func (p Phase) IsTerminal() bool {
	return p == PhaseReady || p == PhaseError
}

// ModuleError records one non-critical module failure in the order it
// occurred during the session.
type ModuleError struct {
	// ModuleName is the failed module.
	ModuleName string `json:"moduleName"`

	// Message is the final failure reason after the retry budget was spent.
	Message string `json:"message"`
}

// InitializationState is the queryable snapshot of a loading session.
type InitializationState struct {
	// SessionID uniquely identifies the loading session, for correlating
	// events and logs.
	SessionID string `json:"sessionId"`

	// Phase is the session's lifecycle phase.
	Phase Phase `json:"phase"`

	// StartedAt is when LoadAll was invoked; zero before that.
	StartedAt time.Time `json:"startedAt"`

	// CompletedAt is when the session reached a terminal phase.
	CompletedAt time.Time `json:"completedAt"`

	// Errors lists failed non-critical modules in failure order.
	Errors []ModuleError `json:"errors,omitempty"`
}

// snapshot returns a deep copy so callers cannot mutate session state.
func (s *InitializationState) snapshot() InitializationState {
	out := *s
	out.Errors = make([]ModuleError, len(s.Errors))
	copy(out.Errors, s.Errors)
	return out
}

// LoadSummary is the result of a completed LoadAll call.
type LoadSummary struct {
	// LoadedModules lists successfully loaded modules in load order.
	LoadedModules []string `json:"loadedModules"`

	// FailedModules lists modules that exhausted their retry budget, in
	// failure order.
	FailedModules []string `json:"failedModules"`

	// TotalTime is the wall-clock duration of the session.
	TotalTime time.Duration `json:"totalTimeMs"`
}
