// Package telemetry exposes the swarm's Prometheus collectors.
//
// A single Metrics instance is created at startup and threaded through the
// coordinator, the event bus watcher, and the LLM client's call observer.
// Every method is safe on a nil receiver, so components that are wired
// without telemetry (mostly in tests) need no guards of their own.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/taskhive-ai/taskhive/pkg/events"
	"github.com/taskhive-ai/taskhive/pkg/models"
)

// Metrics owns the process registry and all swarm collectors.
type Metrics struct {
	registry *prometheus.Registry

	tasksTotal  *prometheus.CounterVec
	taskRetries prometheus.Counter
	llmCalls    *prometheus.CounterVec
	messages    prometheus.Counter

	agents     *prometheus.GaugeVec
	queueDepth prometheus.Gauge
	mcpHealth  *prometheus.GaugeVec

	taskDuration prometheus.Histogram
	llmLatency   prometheus.Histogram
}

// New builds a Metrics instance backed by its own registry. A private
// registry keeps repeated construction in tests from tripping duplicate
// registration panics and keeps the /metrics output to what the swarm owns.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		tasksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskhive",
			Subsystem: "swarm",
			Name:      "tasks_total",
			Help:      "Tasks that reached a terminal status.",
		}, []string{"status"}),
		taskRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "taskhive",
			Subsystem: "swarm",
			Name:      "task_retries_total",
			Help:      "Failed tasks requeued for another attempt.",
		}),
		llmCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskhive",
			Subsystem: "llm",
			Name:      "calls_total",
			Help:      "Model calls by outcome. A fallback increments both ok and fallback: the transport succeeded, the content did not parse.",
		}, []string{"outcome"}),
		messages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "taskhive",
			Subsystem: "bus",
			Name:      "messages_total",
			Help:      "Agent-to-agent messages routed through the runtime.",
		}),
		agents: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "taskhive",
			Subsystem: "swarm",
			Name:      "agents",
			Help:      "Agents in the pool by status.",
		}, []string{"status"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "taskhive",
			Subsystem: "swarm",
			Name:      "queue_depth",
			Help:      "Tasks waiting for dispatch.",
		}),
		mcpHealth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "taskhive",
			Subsystem: "mcp",
			Name:      "server_healthy",
			Help:      "1 when the server answered its last health probe.",
		}, []string{"server"}),
		taskDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "taskhive",
			Subsystem: "swarm",
			Name:      "task_duration_seconds",
			Help:      "Wall time from dispatch to a terminal status.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		llmLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "taskhive",
			Subsystem: "llm",
			Name:      "latency_seconds",
			Help:      "Model call latency including retries.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.tasksTotal,
		m.taskRetries,
		m.llmCalls,
		m.messages,
		m.agents,
		m.queueDepth,
		m.mcpHealth,
		m.taskDuration,
		m.llmLatency,
	)

	// Pre-seed the label space so rates start at zero instead of absent.
	for _, s := range []models.TaskStatus{models.TaskStatusCompleted, models.TaskStatusFailed, models.TaskStatusCancelled} {
		m.tasksTotal.WithLabelValues(string(s))
	}
	for _, o := range []string{"ok", "cached", "error", "fallback"} {
		m.llmCalls.WithLabelValues(o)
	}

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// TaskFinished records one task reaching a terminal status. duration is the
// dispatch-to-terminal wall time; zero means the task never started.
func (m *Metrics) TaskFinished(status models.TaskStatus, duration time.Duration) {
	if m == nil {
		return
	}
	m.tasksTotal.WithLabelValues(string(status)).Inc()
	if duration > 0 {
		m.taskDuration.Observe(duration.Seconds())
	}
}

// TaskRetried records one failed task going back to the queue.
func (m *Metrics) TaskRetried() {
	if m == nil {
		return
	}
	m.taskRetries.Inc()
}

// ObserveLLMCall matches the llm client's call observer signature.
func (m *Metrics) ObserveLLMCall(outcome string, latency time.Duration) {
	if m == nil {
		return
	}
	m.llmCalls.WithLabelValues(outcome).Inc()
	if latency > 0 {
		m.llmLatency.Observe(latency.Seconds())
	}
}

// SetQueueDepth refreshes the dispatch queue gauge.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// SetAgents refreshes the per-status agent gauges from pool snapshots.
// Statuses with no agents are reset to zero so retired pools read correctly.
func (m *Metrics) SetAgents(snapshots []models.AgentSnapshot) {
	if m == nil {
		return
	}
	counts := map[models.AgentStatus]int{
		models.AgentStatusIdle:    0,
		models.AgentStatusBusy:    0,
		models.AgentStatusStopped: 0,
	}
	for _, snap := range snapshots {
		counts[snap.Status]++
	}
	for status, n := range counts {
		m.agents.WithLabelValues(string(status)).Set(float64(n))
	}
}

// RecordMCPServerHealth records one health probe outcome. Implements the
// mcp package's HealthSink.
func (m *Metrics) RecordMCPServerHealth(serverID string, healthy bool) {
	if m == nil {
		return
	}
	v := 0.0
	if healthy {
		v = 1
	}
	m.mcpHealth.WithLabelValues(serverID).Set(v)
}

// RegisterDroppedEvents exposes fn, typically the bus's drop counter, as a
// counter sampled at scrape time.
func (m *Metrics) RegisterDroppedEvents(fn func() uint64) {
	if m == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "taskhive",
		Subsystem: "bus",
		Name:      "events_dropped_total",
		Help:      "Events dropped on slow subscriber channels.",
	}, func() float64 {
		return float64(fn())
	}))
}

// WatchBus counts routed messages until the subscription's channel closes.
// Run it as a goroutine; the bus closes every channel on shutdown.
func (m *Metrics) WatchBus(sub *events.Subscription) {
	if m == nil || sub == nil {
		return
	}
	for evt := range sub.C {
		if evt.Type == events.EventMessageSent {
			m.messages.Inc()
		}
	}
}
