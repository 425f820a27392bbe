package modloader

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthMonitorEvaluatesOnSchedule(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping scheduled monitor test in short mode")
	}

	registry := NewRegistry()
	registerAll(t, registry, ModuleDescriptor{Name: "steady"})
	orch, _ := fastOrchestrator(registry)
	_, err := orch.LoadAll(context.Background())
	require.NoError(t, err)

	recorder := newEventRecorder("monitor-listener")
	require.NoError(t, orch.RegisterObserver(recorder, EventTypeHealthEvaluated))

	monitor := NewHealthMonitor(orch, WithSchedule("@every 1s"))
	require.NoError(t, monitor.Start())
	defer monitor.Stop()
	assert.True(t, monitor.IsRunning())

	require.Eventually(t, func() bool {
		return len(recorder.recorded()) >= 1
	}, 3*time.Second, 50*time.Millisecond, "monitor should evaluate within its schedule")

	snapshot, ok := monitor.LastSnapshot()
	require.True(t, ok)
	assert.Equal(t, 100, snapshot.HealthScore)

	event := recorder.recorded()[0]
	var payload HealthSnapshot
	require.NoError(t, event.DataAs(&payload))
	assert.Equal(t, 1, payload.TotalCount)
}

func TestHealthMonitorStatusChangeCallback(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping scheduled monitor test in short mode")
	}

	registry := NewRegistry()
	module := &checkedModule{}
	registerAll(t, registry, ModuleDescriptor{
		Name: "checked",
		Factory: func(context.Context, *LoadContext) (any, error) {
			return module, nil
		},
	})
	orch, _ := fastOrchestrator(registry)
	_, err := orch.LoadAll(context.Background())
	require.NoError(t, err)

	changes := make(chan HealthSnapshot, 1)
	monitor := NewHealthMonitor(orch,
		WithSchedule("@every 1s"),
		WithStatusChangeCallback(func(_, current HealthSnapshot) {
			select {
			case changes <- current:
			default:
			}
		}))
	require.NoError(t, monitor.Start())
	defer monitor.Stop()

	// Wait for one healthy evaluation, then degrade the module.
	require.Eventually(t, func() bool {
		_, ok := monitor.LastSnapshot()
		return ok
	}, 3*time.Second, 50*time.Millisecond)
	module.setCheckErr(errBoom)

	select {
	case current := <-changes:
		assert.False(t, current.IsHealthy())
	case <-time.After(3 * time.Second):
		t.Fatal("status change callback never fired")
	}
}

func TestHealthMonitorRejectsDoubleStart(t *testing.T) {
	orch, _ := fastOrchestrator(NewRegistry())
	monitor := NewHealthMonitor(orch, WithSchedule("@every 1h"))
	require.NoError(t, monitor.Start())
	defer monitor.Stop()

	assert.Error(t, monitor.Start())
}

func TestHealthMonitorRejectsInvalidSchedule(t *testing.T) {
	orch, _ := fastOrchestrator(NewRegistry())
	monitor := NewHealthMonitor(orch, WithSchedule("not a schedule"))
	assert.Error(t, monitor.Start())
	assert.False(t, monitor.IsRunning())
}

func TestHealthMonitorStopIsIdempotent(t *testing.T) {
	orch, _ := fastOrchestrator(NewRegistry())
	monitor := NewHealthMonitor(orch, WithSchedule("@every 1h"))
	require.NoError(t, monitor.Start())
	monitor.Stop()
	monitor.Stop()
	assert.False(t, monitor.IsRunning())
}
