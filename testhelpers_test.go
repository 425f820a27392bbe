package modloader

import (
	"context"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// testLogger collects log lines so tests can assert on logging behavior
// without writing to stderr.
type testLogger struct {
	mu      sync.Mutex
	entries []string
}

func (l *testLogger) log(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, level+": "+msg)
}

func (l *testLogger) Info(msg string, _ ...any)  { l.log("INFO", msg) }
func (l *testLogger) Error(msg string, _ ...any) { l.log("ERROR", msg) }
func (l *testLogger) Warn(msg string, _ ...any)  { l.log("WARN", msg) }
func (l *testLogger) Debug(msg string, _ ...any) { l.log("DEBUG", msg) }

// instantSleeper records requested backoff delays without actually waiting,
// so retry schedules run on virtual time.
type instantSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *instantSleeper) Sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return nil
}

func (s *instantSleeper) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, len(s.delays))
	copy(out, s.delays)
	return out
}

// eventRecorder is an Observer that stores every event it receives.
type eventRecorder struct {
	id     string
	mu     sync.Mutex
	events []cloudevents.Event
}

func newEventRecorder(id string) *eventRecorder {
	return &eventRecorder{id: id}
}

func (r *eventRecorder) OnEvent(_ context.Context, event cloudevents.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *eventRecorder) ObserverID() string { return r.id }

func (r *eventRecorder) recorded() []cloudevents.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]cloudevents.Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *eventRecorder) typesSeen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]string, 0, len(r.events))
	for _, event := range r.events {
		types = append(types, event.Type())
	}
	return types
}

// stubModule is a minimal valid module instance.
type stubModule struct {
	name string
}

// stubFactory returns a factory producing a fresh stubModule.
func stubFactory(name string) ModuleFactory {
	return func(context.Context, *LoadContext) (any, error) {
		return &stubModule{name: name}, nil
	}
}

// initModule opts into Initializable and records whether Init ran.
type initModule struct {
	initialized bool
	initErr     error
}

func (m *initModule) Init(context.Context) error {
	m.initialized = true
	return m.initErr
}

// checkedModule opts into HealthCheckable with a settable result.
type checkedModule struct {
	mu       sync.Mutex
	checkErr error
}

func (m *checkedModule) setCheckErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkErr = err
}

func (m *checkedModule) CheckHealth(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checkErr
}

// fastOrchestrator builds an orchestrator with virtual-time backoff and a
// quiet logger, the default shape for behavior tests.
func fastOrchestrator(registry *Registry, opts ...OrchestratorOption) (*Orchestrator, *instantSleeper) {
	sleeper := &instantSleeper{}
	base := []OrchestratorOption{WithSleeper(sleeper)}
	return NewOrchestrator(registry, &testLogger{}, append(base, opts...)...), sleeper
}
