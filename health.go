package modloader

import (
	"context"
	"fmt"
	"math"
	"time"
)

// HealthStatus represents the standing of a single module at evaluation
// time.
type HealthStatus int

const (
	// HealthStatusUnknown indicates the module has not reached a terminal
	// state, so its health cannot be judged.
	HealthStatusUnknown HealthStatus = iota

	// HealthStatusHealthy indicates the module is loaded and, if it
	// implements HealthCheckable, its self-check passed.
	HealthStatusHealthy

	// HealthStatusUnhealthy indicates the module failed to load or its
	// self-check reported a problem.
	HealthStatusUnhealthy
)

// String returns the string representation of the health status.
func (s HealthStatus) String() string {
	switch s {
	case HealthStatusHealthy:
		return "healthy"
	case HealthStatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// IsHealthy returns true for the healthy status.
func (s HealthStatus) IsHealthy() bool {
	return s == HealthStatusHealthy
}

// ModuleHealth reports the standing of a single module within a snapshot.
type ModuleHealth struct {
	// Name is the module's identifier.
	Name string `json:"name"`

	// Status is the evaluated health status.
	Status HealthStatus `json:"status"`

	// Reason explains an unhealthy or unknown status.
	Reason string `json:"reason,omitempty"`

	// State is the module's load state at evaluation time.
	State ModuleState `json:"state"`

	// CheckDuration is how long the self-check took, when one ran.
	CheckDuration time.Duration `json:"checkDuration,omitempty"`
}

// HealthSnapshot is a point-in-time report over every registered module.
// Producing a snapshot has no side effects, so it may be taken repeatedly,
// for example by a periodic monitor.
type HealthSnapshot struct {
	// SnapshotID uniquely identifies this evaluation for correlation in
	// logs and monitoring.
	SnapshotID string `json:"snapshotId"`

	// HealthyCount is the number of healthy modules.
	HealthyCount int `json:"healthyCount"`

	// UnhealthyCount is the number of unhealthy modules.
	UnhealthyCount int `json:"unhealthyCount"`

	// TotalCount is the number of registered modules.
	TotalCount int `json:"totalCount"`

	// HealthScore is healthyCount/totalCount scaled to 0-100 and rounded.
	// An empty registry scores 100.
	HealthScore int `json:"healthScore"`

	// Unhealthy lists every module that is not healthy, with reasons.
	Unhealthy []ModuleHealth `json:"unhealthy,omitempty"`

	// GeneratedAt is when this snapshot was taken.
	GeneratedAt time.Time `json:"generatedAt"`
}

// IsHealthy reports whether every module in the snapshot is healthy.
func (s *HealthSnapshot) IsHealthy() bool {
	return s.UnhealthyCount == 0
}

// PerformHealthCheck evaluates every registered module and returns a
// snapshot. A module is healthy when its record is loaded and, if the
// instance implements HealthCheckable, the self-check passes. Modules still
// pending (for example those left behind by a critical abort) count as
// unhealthy with an explanatory reason.
func (o *Orchestrator) PerformHealthCheck(ctx context.Context) HealthSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	snapshot := HealthSnapshot{
		SnapshotID:  newEventID(),
		GeneratedAt: time.Now(),
		TotalCount:  o.registry.Len(),
	}

	for _, name := range o.registry.AllNames() {
		health := o.evaluateModule(ctx, name)
		if health.Status.IsHealthy() {
			snapshot.HealthyCount++
			continue
		}
		snapshot.UnhealthyCount++
		snapshot.Unhealthy = append(snapshot.Unhealthy, health)
	}

	if snapshot.TotalCount == 0 {
		snapshot.HealthScore = 100
	} else {
		snapshot.HealthScore = int(math.Round(
			float64(snapshot.HealthyCount) / float64(snapshot.TotalCount) * 100))
	}

	o.logger.Debug("Health check performed",
		"healthy", snapshot.HealthyCount,
		"unhealthy", snapshot.UnhealthyCount,
		"score", snapshot.HealthScore)
	return snapshot
}

func (o *Orchestrator) evaluateModule(ctx context.Context, name string) ModuleHealth {
	record := o.registry.record(name)
	health := ModuleHealth{Name: name, State: record.State}

	switch record.State {
	case ModuleStateLoaded:
		// fall through to the self-check below
	case ModuleStateFailed:
		health.Status = HealthStatusUnhealthy
		health.Reason = fmt.Sprintf("load failed: %v", record.LastError)
		return health
	default:
		health.Status = HealthStatusUnhealthy
		health.Reason = fmt.Sprintf("module is %s, not loaded", record.State)
		return health
	}

	checkable, ok := record.Instance.(HealthCheckable)
	if !ok {
		health.Status = HealthStatusHealthy
		return health
	}

	started := time.Now()
	err := checkable.CheckHealth(ctx)
	health.CheckDuration = time.Since(started)
	if err != nil {
		health.Status = HealthStatusUnhealthy
		health.Reason = fmt.Sprintf("self-check failed: %v", err)
		return health
	}
	health.Status = HealthStatusHealthy
	return health
}
