package telemetry

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskhive-ai/taskhive/pkg/events"
	"github.com/taskhive-ai/taskhive/pkg/models"
)

func TestMetrics_TaskCounters(t *testing.T) {
	m := New()

	m.TaskFinished(models.TaskStatusCompleted, 2*time.Second)
	m.TaskFinished(models.TaskStatusCompleted, 500*time.Millisecond)
	m.TaskFinished(models.TaskStatusFailed, 0)
	m.TaskRetried()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.tasksTotal.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tasksTotal.WithLabelValues("failed")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.tasksTotal.WithLabelValues("cancelled")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.taskRetries))

	// Zero-duration finishes stay out of the histogram.
	families, err := m.registry.Gather()
	require.NoError(t, err)
	var samples uint64
	for _, mf := range families {
		if mf.GetName() == "taskhive_swarm_task_duration_seconds" {
			samples = mf.GetMetric()[0].GetHistogram().GetSampleCount()
		}
	}
	assert.Equal(t, uint64(2), samples)
}

func TestMetrics_ObserveLLMCall(t *testing.T) {
	m := New()

	m.ObserveLLMCall("ok", 300*time.Millisecond)
	m.ObserveLLMCall("ok", 80*time.Millisecond)
	m.ObserveLLMCall("error", time.Second)
	m.ObserveLLMCall("fallback", 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.llmCalls.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.llmCalls.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.llmCalls.WithLabelValues("fallback")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.llmCalls.WithLabelValues("cached")))
}

func TestMetrics_SetAgents(t *testing.T) {
	m := New()

	m.SetAgents([]models.AgentSnapshot{
		{ID: "a", Status: models.AgentStatusIdle},
		{ID: "b", Status: models.AgentStatusIdle},
		{ID: "c", Status: models.AgentStatusBusy},
	})
	assert.Equal(t, 2.0, testutil.ToFloat64(m.agents.WithLabelValues("idle")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.agents.WithLabelValues("busy")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.agents.WithLabelValues("stopped")))

	// A later refresh resets statuses that emptied out.
	m.SetAgents(nil)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.agents.WithLabelValues("idle")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.agents.WithLabelValues("busy")))

	m.SetQueueDepth(42)
	assert.Equal(t, 42.0, testutil.ToFloat64(m.queueDepth))
}

func TestMetrics_HandlerServesRegistry(t *testing.T) {
	m := New()
	m.TaskFinished(models.TaskStatusCompleted, time.Second)
	m.RegisterDroppedEvents(func() uint64 { return 7 })

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `taskhive_swarm_tasks_total{status="completed"} 1`)
	assert.Contains(t, body, "taskhive_bus_events_dropped_total 7")
	assert.Contains(t, body, "taskhive_llm_calls_total")
	assert.True(t, strings.Contains(body, "go_goroutines"), "runtime collectors registered")
}

func TestMetrics_NilReceiverIsInert(t *testing.T) {
	var m *Metrics

	m.TaskFinished(models.TaskStatusFailed, time.Second)
	m.TaskRetried()
	m.ObserveLLMCall("ok", time.Second)
	m.SetQueueDepth(1)
	m.SetAgents(nil)
	m.RegisterDroppedEvents(func() uint64 { return 0 })
	m.WatchBus(nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetrics_WatchBusCountsMessages(t *testing.T) {
	m := New()
	bus := events.NewBus()

	sub := bus.Subscribe(16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.WatchBus(sub)
	}()

	bus.Publish(events.New(events.EventMessageSent, "alice", map[string]any{"receiver": "bob"}))
	bus.Publish(events.New(events.EventMessageSent, "bob", map[string]any{"receiver": "alice"}))
	bus.Publish(events.New(events.EventTaskCreated, "coordinator", nil))
	bus.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not exit after bus close")
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(m.messages))
}
