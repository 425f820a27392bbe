package modloader

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
)

// DefaultHealthCheckSchedule is the monitor's evaluation cadence when the
// config does not supply one.
const DefaultHealthCheckSchedule = "@every 30s"

// StatusChangeCallback is invoked by the health monitor when the overall
// health standing changes between consecutive evaluations.
type StatusChangeCallback func(previous, current HealthSnapshot)

// HealthMonitor periodically evaluates the orchestrator's health on a cron
// schedule, publishes each snapshot as a health-evaluated event, and invokes
// an optional callback when the overall standing flips. The orchestrator's
// health check is side-effect free, so repeated evaluation is safe.
type HealthMonitor struct {
	orchestrator *Orchestrator
	schedule     string
	logger       Logger
	callback     StatusChangeCallback

	cron    *cron.Cron
	entryID cron.EntryID
	last    *HealthSnapshot
	running bool
	mu      sync.Mutex
}

// HealthMonitorOption configures a HealthMonitor.
type HealthMonitorOption func(*HealthMonitor)

// WithSchedule sets the cron expression driving evaluations. Both standard
// five-field specs and descriptors like "@every 30s" are accepted.
func WithSchedule(schedule string) HealthMonitorOption {
	return func(m *HealthMonitor) {
		if schedule != "" {
			m.schedule = schedule
		}
	}
}

// WithStatusChangeCallback registers a callback fired whenever the overall
// health standing changes between evaluations.
func WithStatusChangeCallback(callback StatusChangeCallback) HealthMonitorOption {
	return func(m *HealthMonitor) {
		m.callback = callback
	}
}

// NewHealthMonitor creates a monitor over the given orchestrator.
func NewHealthMonitor(orchestrator *Orchestrator, opts ...HealthMonitorOption) *HealthMonitor {
	m := &HealthMonitor{
		orchestrator: orchestrator,
		schedule:     DefaultHealthCheckSchedule,
		logger:       orchestrator.logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins scheduled evaluation. It is an error to start a monitor that
// is already running.
func (m *HealthMonitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("health monitor already started")
	}

	m.cron = cron.New()
	entryID, err := m.cron.AddFunc(m.schedule, m.evaluate)
	if err != nil {
		return fmt.Errorf("invalid health check schedule %q: %w", m.schedule, err)
	}
	m.entryID = entryID
	m.cron.Start()
	m.running = true

	m.logger.Info("Health monitor started", "schedule", m.schedule)
	return nil
}

// Stop halts scheduled evaluation, waiting for an in-flight evaluation to
// finish. Idempotent. The wait happens outside the mutex so a running
// evaluation can still record its snapshot.
func (m *HealthMonitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	scheduler := m.cron
	m.mu.Unlock()

	<-scheduler.Stop().Done()
	m.logger.Info("Health monitor stopped")
}

// IsRunning reports whether the monitor is currently scheduled.
func (m *HealthMonitor) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// LastSnapshot returns the most recent evaluation, if one has happened.
func (m *HealthMonitor) LastSnapshot() (HealthSnapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		return HealthSnapshot{}, false
	}
	return *m.last, true
}

// evaluate runs one health check, publishes it, and fires the status-change
// callback when the overall standing flipped since the previous evaluation.
func (m *HealthMonitor) evaluate() {
	ctx := context.Background()
	snapshot := m.orchestrator.PerformHealthCheck(ctx)

	m.mu.Lock()
	previous := m.last
	m.last = &snapshot
	callback := m.callback
	m.mu.Unlock()

	m.logger.Debug("Scheduled health evaluation",
		"snapshotID", snapshot.SnapshotID,
		"score", snapshot.HealthScore)
	m.orchestrator.emit(ctx, EventTypeHealthEvaluated, "modloader/healthmonitor", snapshot, nil)

	if callback != nil && previous != nil && previous.IsHealthy() != snapshot.IsHealthy() {
		callback(*previous, snapshot)
	}
}
