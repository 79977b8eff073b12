package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/taskhive-ai/taskhive/pkg/config"
)

// HealthStatus is one server's last probe outcome.
type HealthStatus struct {
	ServerID  string    `json:"server_id"`
	Healthy   bool      `json:"healthy"`
	LastCheck time.Time `json:"last_check"`
	Error     string    `json:"error,omitempty"`
	ToolCount int       `json:"tool_count"`
}

// HealthSink receives per-server health readings. The telemetry package
// implements it; nil disables reporting.
type HealthSink interface {
	RecordMCPServerHealth(serverID string, healthy bool)
}

// serverState is what one probe cycle learns about a server.
type serverState struct {
	status HealthStatus
	tools  []*mcpsdk.Tool
}

// HealthMonitor probes every configured server with ListTools on a fixed
// cadence, redialing sessions that stopped answering. It owns its own
// Client so probes never contend with agent tool calls.
type HealthMonitor struct {
	factory  *ClientFactory
	registry *config.MCPServerRegistry
	sink     HealthSink
	logger   *slog.Logger

	interval time.Duration
	timeout  time.Duration

	mu      sync.Mutex
	client  *Client
	servers map[string]*serverState

	cancel context.CancelFunc
	done   chan struct{}
}

// NewHealthMonitor builds a stopped monitor. sink may be nil.
func NewHealthMonitor(factory *ClientFactory, registry *config.MCPServerRegistry, sink HealthSink) *HealthMonitor {
	return &HealthMonitor{
		factory:  factory,
		registry: registry,
		sink:     sink,
		logger:   slog.Default(),
		interval: probeInterval,
		timeout:  probeTimeout,
		servers:  make(map[string]*serverState),
	}
}

// Start launches the probe loop. Starting a running monitor is a no-op.
func (m *HealthMonitor) Start(ctx context.Context) {
	if m.cancel != nil {
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	go m.loop(ctx)
}

// Stop ends the loop, closes the probe client, and forgets all statuses so
// a later Start begins clean.
func (m *HealthMonitor) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done

	m.mu.Lock()
	if m.client != nil {
		_ = m.client.Close()
		m.client = nil
	}
	m.servers = make(map[string]*serverState)
	m.mu.Unlock()

	m.cancel = nil
	m.done = nil
}

func (m *HealthMonitor) loop(ctx context.Context) {
	defer close(m.done)

	m.probeAll(ctx)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probeAll(ctx)
		}
	}
}

// probeClient returns the long-lived probe client, creating it if the last
// cycle could not.
func (m *HealthMonitor) probeClient(ctx context.Context) *Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil {
		return m.client
	}
	client, err := m.factory.CreateClient(ctx, m.registry.ServerIDs())
	if err != nil {
		m.logger.Warn("Health monitor could not build its client", "error", err)
		return nil
	}
	m.client = client
	return client
}

func (m *HealthMonitor) probeAll(ctx context.Context) {
	client := m.probeClient(ctx)
	for _, id := range m.registry.ServerIDs() {
		m.probe(ctx, client, id)
	}
}

// probe lists the server's tools with the cache invalidated so the session
// actually answers. A failed list gets one redial and one retry before the
// server is marked unhealthy.
func (m *HealthMonitor) probe(ctx context.Context, client *Client, serverID string) {
	if client == nil {
		m.record(serverID, nil, fmt.Errorf("probe client unavailable"))
		return
	}
	client.InvalidateToolCache(serverID)

	tools, err := m.listWithTimeout(ctx, client, serverID)
	if err != nil {
		m.logger.Debug("Probe failed, redialing", "server", serverID, "error", err)
		redialCtx, cancel := context.WithTimeout(ctx, m.timeout)
		rerr := client.redial(redialCtx, serverID)
		cancel()
		if rerr != nil {
			m.record(serverID, nil, err)
			return
		}
		tools, err = m.listWithTimeout(ctx, client, serverID)
		if err != nil {
			m.record(serverID, nil, fmt.Errorf("after redial: %w", err))
			return
		}
	}
	m.record(serverID, tools, nil)
}

func (m *HealthMonitor) listWithTimeout(ctx context.Context, client *Client, serverID string) ([]*mcpsdk.Tool, error) {
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	return client.ListTools(probeCtx, serverID)
}

func (m *HealthMonitor) record(serverID string, tools []*mcpsdk.Tool, err error) {
	status := HealthStatus{
		ServerID:  serverID,
		Healthy:   err == nil,
		LastCheck: time.Now(),
		ToolCount: len(tools),
	}
	if err != nil {
		status.Error = err.Error()
	}

	m.mu.Lock()
	state, ok := m.servers[serverID]
	if !ok {
		state = &serverState{}
		m.servers[serverID] = state
	}
	state.status = status
	if err == nil {
		state.tools = tools
	}
	m.mu.Unlock()

	if m.sink != nil {
		m.sink.RecordMCPServerHealth(serverID, status.Healthy)
	}
	if err != nil {
		m.logger.Warn("MCP server unhealthy", "server", serverID, "error", err)
	}
}

// Statuses returns a copy of every server's last probe outcome.
func (m *HealthMonitor) Statuses() map[string]HealthStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]HealthStatus, len(m.servers))
	for id, state := range m.servers {
		out[id] = state.status
	}
	return out
}

// CachedTools returns each server's tools from its last healthy probe. The
// slices share Tool pointers with the monitor; callers must not mutate
// them.
func (m *HealthMonitor) CachedTools() map[string][]*mcpsdk.Tool {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][]*mcpsdk.Tool, len(m.servers))
	for id, state := range m.servers {
		if state.tools != nil {
			out[id] = state.tools
		}
	}
	return out
}

// IsHealthy reports whether every monitored server passed its last probe.
// False until the first probe completes.
func (m *HealthMonitor) IsHealthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.servers) == 0 {
		return false
	}
	for _, state := range m.servers {
		if !state.status.Healthy {
			return false
		}
	}
	return true
}
