package modloader

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"
)

// Default retry policy applied when no option overrides it.
const (
	DefaultMaxRetries    = 3
	DefaultRetryDelay    = 100 * time.Millisecond
	DefaultMaxRetryDelay = 2 * time.Second
)

// Orchestrator drives all registered modules from pending to loaded or
// failed, respecting dependency order, priority, per-module timeouts and the
// retry policy. It owns the session's InitializationState and implements
// Subject so external collaborators can follow progress through CloudEvents.
//
// An Orchestrator handles exactly one loading session. It is constructed
// explicitly and passed by reference to whatever needs it; a fresh session
// (a new application run, a test case) means a fresh Orchestrator, which
// keeps stale session state from leaking across runs.
type Orchestrator struct {
	*observerSet

	registry     *Registry
	logger       Logger
	coreServices map[string]any
	sleeper      Sleeper

	maxRetries     int
	retryDelay     time.Duration
	maxRetryDelay  time.Duration
	defaultTimeout time.Duration

	state   InitializationState
	started bool

	// mu guards the registry's records and the session state. The loading
	// loop is the only writer; readers are InitializationState and
	// PerformHealthCheck, which may be called from other goroutines (for
	// example the periodic health monitor).
	mu sync.Mutex
}

// OrchestratorOption configures an Orchestrator at construction time.
type OrchestratorOption func(*Orchestrator)

// WithMaxRetries sets how many attempts a transient failure is given before
// the module is marked failed.
func WithMaxRetries(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxRetries = n
		}
	}
}

// WithRetryDelay sets the base backoff delay between retry attempts.
func WithRetryDelay(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d > 0 {
			o.retryDelay = d
		}
	}
}

// WithMaxRetryDelay caps the exponential backoff delay.
func WithMaxRetryDelay(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d > 0 {
			o.maxRetryDelay = d
		}
	}
}

// WithDefaultTimeout sets the per-attempt deadline applied to descriptors
// that do not declare their own timeout.
func WithDefaultTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d > 0 {
			o.defaultTimeout = d
		}
	}
}

// WithSleeper replaces the wall-clock backoff sleeper, letting tests run the
// retry schedule on virtual time.
func WithSleeper(s Sleeper) OrchestratorOption {
	return func(o *Orchestrator) {
		if s != nil {
			o.sleeper = s
		}
	}
}

// WithConfig applies a loaded Config to the orchestrator.
func WithConfig(cfg Config) OrchestratorOption {
	return func(o *Orchestrator) {
		WithMaxRetries(cfg.MaxRetries)(o)
		WithRetryDelay(cfg.RetryDelay.Std())(o)
		WithMaxRetryDelay(cfg.MaxRetryDelay.Std())(o)
		WithDefaultTimeout(cfg.DefaultTimeout.Std())(o)
	}
}

// NewOrchestrator creates an orchestrator over the given registry. A nil
// logger is replaced with a no-op logger.
func NewOrchestrator(registry *Registry, logger Logger, opts ...OrchestratorOption) *Orchestrator {
	if logger == nil {
		logger = noopLogger{}
	}
	o := &Orchestrator{
		observerSet:    newObserverSet(logger),
		registry:       registry,
		logger:         logger,
		sleeper:        realSleeper{},
		maxRetries:     DefaultMaxRetries,
		retryDelay:     DefaultRetryDelay,
		maxRetryDelay:  DefaultMaxRetryDelay,
		defaultTimeout: DefaultModuleTimeout,
		state:          InitializationState{SessionID: newEventID()},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SetCoreServices supplies the shared context fragment injected into every
// factory's LoadContext, for example an event bus or a game-state accessor.
// It must be called before LoadAll.
func (o *Orchestrator) SetCoreServices(services map[string]any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.coreServices = make(map[string]any, len(services))
	for name, service := range services {
		o.coreServices[name] = service
	}
}

// InitializationState returns a snapshot of the current session state.
func (o *Orchestrator) InitializationState() InitializationState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.snapshot()
}

// Record returns a snapshot of a module's runtime record.
func (o *Orchestrator) Record(name string) (ModuleRecord, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.registry.Record(name)
}

// LoadAll runs the loading session: it computes the dependency-respecting
// order, drives every module to a terminal state, and returns a summary.
// Structural errors (unknown dependencies, cycles) fail fast before any
// factory runs. A critical module failure aborts the sequence, leaving
// later modules pending, and is returned as an error wrapping
// ErrCriticalFailure. Non-critical failures are recorded in the session
// state and the summary, and do not produce an error.
//
// LoadAll may be called exactly once per orchestrator; later calls return
// ErrSessionConsumed.
func (o *Orchestrator) LoadAll(ctx context.Context) (LoadSummary, error) {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return LoadSummary{}, ErrSessionConsumed
	}
	o.started = true
	o.state.Phase = PhaseLoading
	o.state.StartedAt = time.Now()
	sessionID := o.state.SessionID
	o.mu.Unlock()

	o.logger.Info("Loading session started", "sessionID", sessionID, "modules", o.registry.Len())
	o.emit(ctx, EventTypePhaseStarted, eventSource,
		PhaseEvent{Phase: PhaseLoading.String(), SessionID: sessionID}, nil)

	order, err := computeLoadOrder(o.registry)
	if err != nil {
		return LoadSummary{}, o.finishError(ctx, fmt.Errorf("failed to compute load order: %w", err))
	}
	o.logger.Debug("Module load order computed", "order", order)

	summary := LoadSummary{}
	for _, name := range order {
		descriptor, _ := o.registry.Get(name)
		loadErr := o.loadModule(ctx, descriptor)
		if loadErr == nil {
			summary.LoadedModules = append(summary.LoadedModules, name)
			continue
		}

		summary.FailedModules = append(summary.FailedModules, name)
		if descriptor.Critical {
			err := fmt.Errorf("%w: %s: %w", ErrCriticalFailure, name, loadErr)
			summary.TotalTime = time.Since(o.state.StartedAt)
			return summary, o.finishError(ctx, err)
		}

		o.mu.Lock()
		o.state.Errors = append(o.state.Errors, ModuleError{
			ModuleName: name,
			Message:    loadErr.Error(),
		})
		o.mu.Unlock()
		o.logger.Warn("Non-critical module failed, continuing", "module", name, "error", loadErr)
	}

	o.mu.Lock()
	o.state.Phase = PhaseReady
	o.state.CompletedAt = time.Now()
	summary.TotalTime = o.state.CompletedAt.Sub(o.state.StartedAt)
	o.mu.Unlock()

	o.logger.Info("Loading session complete",
		"sessionID", sessionID,
		"loaded", len(summary.LoadedModules),
		"failed", len(summary.FailedModules),
		"totalMs", summary.TotalTime.Milliseconds())
	o.emit(ctx, EventTypePhaseCompleted, eventSource,
		PhaseEvent{Phase: PhaseLoading.String(), SessionID: sessionID, Summary: &summary}, nil)
	o.emit(ctx, EventTypeLoadComplete, eventSource, summary, nil)
	return summary, nil
}

const eventSource = "modloader/orchestrator"

// finishError transitions the session to the error phase and emits the
// loadError event. It returns err for convenient propagation.
func (o *Orchestrator) finishError(ctx context.Context, err error) error {
	o.mu.Lock()
	o.state.Phase = PhaseError
	o.state.CompletedAt = time.Now()
	sessionID := o.state.SessionID
	o.mu.Unlock()

	o.logger.Error("Loading session failed", "sessionID", sessionID, "error", err)
	o.emit(ctx, EventTypeLoadError, eventSource,
		map[string]string{"sessionId": sessionID, "error": err.Error()}, nil)
	return err
}

// loadModule drives one module to a terminal state, applying the pre-flight
// dependency check, the per-attempt timeout and the retry policy.
func (o *Orchestrator) loadModule(ctx context.Context, descriptor *ModuleDescriptor) error {
	record := o.registry.record(descriptor.Name)

	lctx, depErr := o.buildContext(descriptor)
	if depErr != nil {
		// A failed dependency is not the fault of this module's factory:
		// the module is skipped without consuming a retry attempt.
		o.mu.Lock()
		record.State = ModuleStateFailed
		record.LastError = depErr
		attempts := record.Attempts
		o.mu.Unlock()

		o.logger.Warn("Module skipped, dependency failed", "module", descriptor.Name, "error", depErr)
		o.emit(ctx, EventTypeModuleFailed, eventSource, ModuleFailedEvent{
			Name:     descriptor.Name,
			Error:    depErr.Error(),
			Attempts: attempts,
		}, nil)
		return depErr
	}

	for {
		o.mu.Lock()
		record.State = ModuleStateLoading
		record.Attempts++
		attempt := record.Attempts
		o.mu.Unlock()

		o.logger.Debug("Loading module", "module", descriptor.Name, "attempt", attempt)
		started := time.Now()
		instance, err := o.runAttempt(ctx, descriptor, lctx)
		elapsed := time.Since(started)

		if err == nil {
			o.mu.Lock()
			record.State = ModuleStateLoaded
			record.Instance = instance
			record.LoadDuration = elapsed
			o.mu.Unlock()

			o.logger.Info("Module loaded",
				"module", descriptor.Name,
				"attempt", attempt,
				"durationMs", elapsed.Milliseconds())
			o.emit(ctx, EventTypeModuleLoaded, eventSource, ModuleLoadedEvent{
				Name:       descriptor.Name,
				DurationMs: elapsed.Milliseconds(),
				Attempts:   attempt,
			}, nil)
			return nil
		}

		o.mu.Lock()
		record.LastError = err
		o.mu.Unlock()

		if attempt < o.maxRetries && retryable(err) {
			delay := backoffDelay(o.retryDelay, o.maxRetryDelay, attempt)
			o.logger.Warn("Module load attempt failed, retrying",
				"module", descriptor.Name,
				"attempt", attempt,
				"retryInMs", delay.Milliseconds(),
				"error", err)
			if sleepErr := o.sleeper.Sleep(ctx, delay); sleepErr != nil {
				err = fmt.Errorf("backoff interrupted: %w", sleepErr)
			} else {
				continue
			}
		}

		o.mu.Lock()
		record.State = ModuleStateFailed
		o.mu.Unlock()

		o.logger.Error("Module failed", "module", descriptor.Name, "attempts", attempt, "error", err)
		o.emit(ctx, EventTypeModuleFailed, eventSource, ModuleFailedEvent{
			Name:     descriptor.Name,
			Error:    err.Error(),
			Attempts: attempt,
		}, nil)
		return err
	}
}

// buildContext assembles the LoadContext for a module from the core services
// and the instances of its declared dependencies. Sequential execution
// guarantees every dependency is already terminal; any dependency that is
// not loaded produces a synthesized dependency failure, unless the
// descriptor tolerates failed dependencies, in which case the dependency is
// simply left out of the context.
func (o *Orchestrator) buildContext(descriptor *ModuleDescriptor) (*LoadContext, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	lctx := &LoadContext{
		coreServices: o.coreServices,
		dependencies: make(map[string]any, len(descriptor.Dependencies)),
		logger:       o.logger,
	}
	for _, dep := range descriptor.Dependencies {
		record := o.registry.record(dep)
		if record.State == ModuleStateLoaded {
			lctx.dependencies[dep] = record.Instance
			continue
		}
		if descriptor.TolerateFailedDeps {
			continue
		}
		return nil, fmt.Errorf("%w: %s requires %s which is %s",
			ErrDependencyFailed, descriptor.Name, dep, record.State)
	}
	return lctx, nil
}

// attemptResult carries a factory's outcome across the timeout race.
type attemptResult struct {
	instance any
	err      error
}

// runAttempt races one factory invocation (plus Init, when the instance
// implements Initializable) against the descriptor's timeout. A timed-out
// attempt is abandoned, not killed: the goroutine may settle later in the
// background, and its buffered channel lets it do so without leaking.
func (o *Orchestrator) runAttempt(ctx context.Context, descriptor *ModuleDescriptor, lctx *LoadContext) (any, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, o.moduleTimeout(descriptor))
	defer cancel()

	resultCh := make(chan attemptResult, 1)
	started := time.Now()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- attemptResult{err: fmt.Errorf("%w: factory panicked: %v", ErrFactoryFailed, r)}
			}
		}()

		instance, err := descriptor.Factory(attemptCtx, lctx)
		if err != nil {
			resultCh <- attemptResult{err: fmt.Errorf("%w: %w", ErrFactoryFailed, err)}
			return
		}
		if initializable, ok := instance.(Initializable); ok {
			if err := initializable.Init(attemptCtx); err != nil {
				resultCh <- attemptResult{err: fmt.Errorf("%w: init: %w", ErrFactoryFailed, err)}
				return
			}
		}
		resultCh <- attemptResult{instance: instance}
	}()

	select {
	case result := <-resultCh:
		if result.err != nil {
			return nil, result.err
		}
		if err := validateInstance(result.instance); err != nil {
			return nil, err
		}
		return result.instance, nil
	case <-attemptCtx.Done():
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, &TimeoutError{Module: descriptor.Name, Elapsed: time.Since(started)}
		}
		return nil, fmt.Errorf("load cancelled: %w", ctx.Err())
	}
}

// moduleTimeout resolves the effective per-attempt deadline for a module.
func (o *Orchestrator) moduleTimeout(descriptor *ModuleDescriptor) time.Duration {
	if descriptor.Timeout > 0 {
		return descriptor.Timeout
	}
	return o.defaultTimeout
}

// validateInstance applies the minimal instance contract: the factory must
// produce a non-nil, non-primitive value. Stricter per-module shape checks
// belong to the modules themselves via the capability interfaces.
func validateInstance(instance any) error {
	if instance == nil {
		return fmt.Errorf("%w: factory returned nil", ErrInvalidInstance)
	}
	value := reflect.ValueOf(instance)
	switch value.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface:
		if value.IsNil() {
			return fmt.Errorf("%w: factory returned a nil %s", ErrInvalidInstance, value.Kind())
		}
	case reflect.Bool, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128, reflect.String:
		return fmt.Errorf("%w: factory returned a primitive %s", ErrInvalidInstance, value.Kind())
	}
	return nil
}
