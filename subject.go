package modloader

import (
	"context"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// observerRegistration holds bookkeeping about one registered observer.
type observerRegistration struct {
	observer     Observer
	eventTypes   map[string]bool // set of subscribed event types; empty = all
	registeredAt time.Time
}

// observerSet implements Subject. It is embedded in the Orchestrator so the
// loading loop can emit lifecycle events, and it is usable on its own when a
// collaborator such as the config watcher needs to publish through the same
// observer list.
//
// Delivery is synchronous and in registration order: a loading session emits
// events in a defined sequence, and progress UIs depend on seeing
// moduleLoaded before loadComplete. Observer panics are contained and
// logged, never propagated into the loading loop.
type observerSet struct {
	observers map[string]*observerRegistration
	mu        sync.RWMutex
	order     []string
	logger    Logger
}

func newObserverSet(logger Logger) *observerSet {
	return &observerSet{
		observers: make(map[string]*observerRegistration),
		logger:    logger,
	}
}

// RegisterObserver adds an observer, optionally filtered to eventTypes.
func (s *observerSet) RegisterObserver(observer Observer, eventTypes ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	eventTypeMap := make(map[string]bool)
	for _, eventType := range eventTypes {
		eventTypeMap[eventType] = true
	}

	id := observer.ObserverID()
	if _, exists := s.observers[id]; !exists {
		s.order = append(s.order, id)
	}
	s.observers[id] = &observerRegistration{
		observer:     observer,
		eventTypes:   eventTypeMap,
		registeredAt: time.Now(),
	}

	s.logger.Debug("Observer registered", "observerID", id, "eventTypes", eventTypes)
	return nil
}

// UnregisterObserver removes an observer. Idempotent.
func (s *observerSet) UnregisterObserver(observer Observer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := observer.ObserverID()
	if _, exists := s.observers[id]; exists {
		delete(s.observers, id)
		for i, existing := range s.order {
			if existing == id {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
		s.logger.Debug("Observer unregistered", "observerID", id)
	}
	return nil
}

// NotifyObservers validates the event and delivers it to every observer
// whose filter matches. Observer errors are logged and swallowed so one
// broken listener cannot disturb the session.
func (s *observerSet) NotifyObservers(ctx context.Context, event cloudevents.Event) error {
	if event.Time().IsZero() {
		event.SetTime(time.Now())
	}
	if err := ValidateCloudEvent(event); err != nil {
		s.logger.Error("Invalid CloudEvent", "eventType", event.Type(), "error", err)
		return err
	}

	s.mu.RLock()
	registrations := make([]*observerRegistration, 0, len(s.order))
	for _, id := range s.order {
		registrations = append(registrations, s.observers[id])
	}
	s.mu.RUnlock()

	for _, registration := range registrations {
		if len(registration.eventTypes) > 0 && !registration.eventTypes[event.Type()] {
			continue
		}
		s.deliver(ctx, registration, event)
	}
	return nil
}

func (s *observerSet) deliver(ctx context.Context, registration *observerRegistration, event cloudevents.Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Observer panicked",
				"observerID", registration.observer.ObserverID(),
				"event", event.Type(), "panic", r)
		}
	}()

	if err := registration.observer.OnEvent(ctx, event); err != nil {
		s.logger.Error("Observer error",
			"observerID", registration.observer.ObserverID(),
			"event", event.Type(), "error", err)
	}
}

// GetObservers describes the currently registered observers.
func (s *observerSet) GetObservers() []ObserverInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := make([]ObserverInfo, 0, len(s.order))
	for _, id := range s.order {
		registration := s.observers[id]
		eventTypes := make([]string, 0, len(registration.eventTypes))
		for eventType := range registration.eventTypes {
			eventTypes = append(eventTypes, eventType)
		}
		info = append(info, ObserverInfo{
			ID:           id,
			EventTypes:   eventTypes,
			RegisteredAt: registration.registeredAt,
		})
	}
	return info
}

// emit builds and delivers an event, logging delivery problems.
func (s *observerSet) emit(ctx context.Context, eventType, source string, data any, metadata map[string]any) {
	event := NewCloudEvent(eventType, source, data, metadata)
	if err := s.NotifyObservers(ctx, event); err != nil {
		s.logger.Error("Failed to notify observers", "event", eventType, "error", err)
	}
}
