package modloader

import (
	"context"
	"fmt"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// Observer is notified of loading session events. Observers register with
// the orchestrator (a Subject) and should handle events quickly to avoid
// delaying other observers.
type Observer interface {
	// OnEvent is called when an event the observer subscribed to occurs.
	OnEvent(ctx context.Context, event cloudevents.Event) error

	// ObserverID returns a unique identifier for this observer, used for
	// registration tracking and debugging.
	ObserverID() string
}

// Subject is implemented by event emitters. The orchestrator is the only
// Subject in this package, but the interface keeps the progress-UI side of
// the contract mockable.
type Subject interface {
	// RegisterObserver adds an observer, optionally filtered to the given
	// event types. An empty filter receives every event.
	RegisterObserver(observer Observer, eventTypes ...string) error

	// UnregisterObserver removes an observer. Idempotent.
	UnregisterObserver(observer Observer) error

	// NotifyObservers delivers an event to all interested observers.
	NotifyObservers(ctx context.Context, event cloudevents.Event) error

	// GetObservers describes the currently registered observers.
	GetObservers() []ObserverInfo
}

// ObserverInfo describes a registered observer for debugging and monitoring.
type ObserverInfo struct {
	// ID is the observer's unique identifier.
	ID string `json:"id"`

	// EventTypes are the subscribed event types; empty means all events.
	EventTypes []string `json:"eventTypes"`

	// RegisteredAt is when the observer was registered.
	RegisteredAt time.Time `json:"registeredAt"`
}

// Event type constants emitted during a loading session, in reverse-domain
// notation per the CloudEvents convention.
const (
	// EventTypeModuleLoaded is emitted when a module reaches the loaded
	// state. Data: ModuleLoadedEvent.
	EventTypeModuleLoaded = "com.modloader.module.loaded"

	// EventTypeModuleFailed is emitted when a module exhausts its retry
	// budget. Data: ModuleFailedEvent.
	EventTypeModuleFailed = "com.modloader.module.failed"

	// EventTypePhaseStarted is emitted when the session enters a phase.
	EventTypePhaseStarted = "com.modloader.phase.started"

	// EventTypePhaseCompleted is emitted when the session leaves a phase.
	EventTypePhaseCompleted = "com.modloader.phase.completed"

	// EventTypeLoadComplete is emitted when LoadAll finishes without a
	// critical failure. Data: LoadSummary.
	EventTypeLoadComplete = "com.modloader.load.complete"

	// EventTypeLoadError is emitted when a critical failure aborts the
	// session.
	EventTypeLoadError = "com.modloader.load.error"

	// EventTypeHealthEvaluated is emitted by the periodic health monitor
	// after each evaluation. Data: HealthSnapshot.
	EventTypeHealthEvaluated = "com.modloader.health.evaluated"

	// EventTypeConfigChanged is emitted by the config watcher when the
	// orchestrator config file changes on disk.
	EventTypeConfigChanged = "com.modloader.config.changed"
)

// ModuleLoadedEvent is the data payload of EventTypeModuleLoaded.
type ModuleLoadedEvent struct {
	Name       string `json:"name"`
	DurationMs int64  `json:"durationMs"`
	Attempts   int    `json:"attempts"`
}

// ModuleFailedEvent is the data payload of EventTypeModuleFailed.
type ModuleFailedEvent struct {
	Name     string `json:"name"`
	Error    string `json:"error"`
	Attempts int    `json:"attempts"`
}

// PhaseEvent is the data payload of phase started/completed events.
type PhaseEvent struct {
	Phase     string       `json:"phase"`
	SessionID string       `json:"sessionId"`
	Summary   *LoadSummary `json:"summary,omitempty"`
}

// NewCloudEvent creates a properly formed CloudEvent for the given type and
// payload. Extensions carry the optional metadata.
func NewCloudEvent(eventType, source string, data any, metadata map[string]any) cloudevents.Event {
	event := cloudevents.NewEvent()
	event.SetID(newEventID())
	event.SetSource(source)
	event.SetType(eventType)
	event.SetTime(time.Now())
	event.SetSpecVersion(cloudevents.VersionV1)

	if data != nil {
		_ = event.SetData(cloudevents.ApplicationJSON, data)
	}
	for key, value := range metadata {
		event.SetExtension(key, value)
	}
	return event
}

// newEventID generates a time-ordered unique identifier using UUIDv7,
// falling back to v4 if v7 generation fails.
func newEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id.String()
}

// ValidateCloudEvent checks an event against the CloudEvents specification
// before delivery.
func ValidateCloudEvent(event cloudevents.Event) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("cloudevent validation failed: %w", err)
	}
	return nil
}

// FunctionalObserver wraps a handler function as an Observer, for quick
// observer creation without defining a struct.
type FunctionalObserver struct {
	id      string
	handler func(ctx context.Context, event cloudevents.Event) error
}

// NewFunctionalObserver creates an observer that delegates to handler.
func NewFunctionalObserver(id string, handler func(ctx context.Context, event cloudevents.Event) error) Observer {
	return &FunctionalObserver{id: id, handler: handler}
}

// OnEvent implements Observer.
func (f *FunctionalObserver) OnEvent(ctx context.Context, event cloudevents.Event) error {
	return f.handler(ctx, event)
}

// ObserverID implements Observer.
func (f *FunctionalObserver) ObserverID() string {
	return f.id
}
