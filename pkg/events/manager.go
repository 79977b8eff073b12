package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// ConnectionManager bridges the bus to WebSocket clients. Clients subscribe
// to channels ("swarm" for everything, "task:{id}" for one root task); each
// published event is routed to its matching channels and written to every
// subscribed connection.
type ConnectionManager struct {
	bus          *Bus
	writeTimeout time.Duration

	// mu guards both maps. channels maps channel → connection_id set;
	// conns maps connection_id → *Connection.
	mu       sync.RWMutex
	conns    map[string]*Connection
	channels map[string]map[string]bool

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Connection represents a single WebSocket client.
//
// subscriptions is accessed WITHOUT a lock. This is safe because all reads
// and writes happen on the single goroutine that owns this connection
// (HandleConnection's read loop and its deferred cleanup). If a Connection is
// ever mutated from a different goroutine, subscriptions must gain a mutex.
type Connection struct {
	ID            string
	Conn          *websocket.Conn
	subscriptions map[string]bool
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewConnectionManager creates a manager over the given bus.
func NewConnectionManager(bus *Bus, writeTimeout time.Duration) *ConnectionManager {
	return &ConnectionManager{
		bus:          bus,
		writeTimeout: writeTimeout,
		conns:        make(map[string]*Connection),
		channels:     make(map[string]map[string]bool),
		stopCh:       make(chan struct{}),
	}
}

// Start launches the bus consumer that fans events out to subscribed
// connections. Events published before Start are not replayed; clients that
// need history query the REST API.
func (m *ConnectionManager) Start() {
	sub := m.bus.Subscribe(256)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.bus.Unsubscribe(sub)
		for {
			select {
			case <-m.stopCh:
				return
			case evt, ok := <-sub.C:
				if !ok {
					return
				}
				m.dispatch(evt)
			}
		}
	}()
}

// Stop halts the fan-out loop and closes every client connection.
func (m *ConnectionManager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()

	m.mu.Lock()
	open := make([]*Connection, 0, len(m.conns))
	for _, c := range m.conns {
		open = append(open, c)
	}
	m.mu.Unlock()

	for _, c := range open {
		c.cancel()
		_ = c.Conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

// dispatch routes one event to the global channel and, when the event names
// a task, its task channel.
func (m *ConnectionManager) dispatch(evt Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		slog.Warn("Failed to marshal event for WebSocket delivery",
			"type", evt.Type, "error", err)
		return
	}
	m.Broadcast(GlobalChannel, payload)
	if evt.TaskID != "" {
		m.Broadcast(TaskChannel(evt.TaskID), payload)
	}
}

// HandleConnection manages the lifecycle of a single WebSocket connection.
// Called by the WebSocket HTTP handler after upgrade. Blocks until the
// connection closes.
func (m *ConnectionManager) HandleConnection(parentCtx context.Context, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(parentCtx)
	c := &Connection{
		ID:            uuid.NewString(),
		Conn:          conn,
		subscriptions: make(map[string]bool),
		ctx:           ctx,
		cancel:        cancel,
	}

	m.mu.Lock()
	m.conns[c.ID] = c
	m.mu.Unlock()
	defer m.drop(c)

	m.sendJSON(c, map[string]string{
		"type":          "connection.established",
		"connection_id": c.ID,
	})

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			// Connection closed or errored; the deferred cleanup runs.
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("Invalid WebSocket message",
				"connection_id", c.ID, "error", err)
			continue
		}

		m.handleClientMessage(c, &msg)
	}
}

// Broadcast sends a payload to all connections subscribed to the channel.
// Connection pointers are snapshotted under the lock and writes happen
// after release: each write can take up to writeTimeout and must not stall
// subscribe/unsubscribe.
func (m *ConnectionManager) Broadcast(channel string, payload []byte) {
	m.mu.RLock()
	targets := make([]*Connection, 0, len(m.channels[channel]))
	for id := range m.channels[channel] {
		if c, ok := m.conns[id]; ok {
			targets = append(targets, c)
		}
	}
	m.mu.RUnlock()

	for _, c := range targets {
		if err := m.sendRaw(c, payload); err != nil {
			slog.Warn("Failed to send to WebSocket client",
				"connection_id", c.ID, "error", err)
		}
	}
}

// ActiveConnections returns the count of active WebSocket connections.
func (m *ConnectionManager) ActiveConnections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

// subscriberCount returns the number of subscribers for a channel.
// Unexported — used by tests to poll instead of sleeping.
func (m *ConnectionManager) subscriberCount(channel string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.channels[channel])
}

func (m *ConnectionManager) handleClientMessage(c *Connection, msg *ClientMessage) {
	switch msg.Action {
	case "subscribe":
		if msg.Channel == "" {
			m.sendError(c, "channel is required for subscribe")
			return
		}
		m.subscribe(c, msg.Channel)
		m.sendJSON(c, map[string]string{
			"type":    "subscription.confirmed",
			"channel": msg.Channel,
		})

	case "unsubscribe":
		if msg.Channel == "" {
			m.sendError(c, "channel is required for unsubscribe")
			return
		}
		m.unsubscribe(c, msg.Channel)

	case "ping":
		m.sendJSON(c, map[string]string{"type": "pong"})

	default:
		m.sendError(c, "unknown action: "+msg.Action)
	}
}

func (m *ConnectionManager) subscribe(c *Connection, channel string) {
	m.mu.Lock()
	set := m.channels[channel]
	if set == nil {
		set = make(map[string]bool)
		m.channels[channel] = set
	}
	set[c.ID] = true
	m.mu.Unlock()

	c.subscriptions[channel] = true
}

func (m *ConnectionManager) unsubscribe(c *Connection, channel string) {
	m.mu.Lock()
	if set := m.channels[channel]; set != nil {
		delete(set, c.ID)
		if len(set) == 0 {
			delete(m.channels, channel)
		}
	}
	m.mu.Unlock()

	delete(c.subscriptions, channel)
}

// drop removes the connection from every channel and closes it.
func (m *ConnectionManager) drop(c *Connection) {
	for ch := range c.subscriptions {
		m.unsubscribe(c, ch)
	}

	m.mu.Lock()
	delete(m.conns, c.ID)
	m.mu.Unlock()

	c.cancel()
	_ = c.Conn.Close(websocket.StatusNormalClosure, "")
}

func (m *ConnectionManager) sendError(c *Connection, message string) {
	m.sendJSON(c, map[string]string{"type": "error", "message": message})
}

func (m *ConnectionManager) sendJSON(c *Connection, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("Failed to marshal WebSocket message",
			"connection_id", c.ID, "error", err)
		return
	}
	if err := m.sendRaw(c, data); err != nil {
		slog.Warn("Failed to send WebSocket message",
			"connection_id", c.ID, "error", err)
	}
}

func (m *ConnectionManager) sendRaw(c *Connection, data []byte) error {
	writeCtx, cancel := context.WithTimeout(c.ctx, m.writeTimeout)
	defer cancel()
	return c.Conn.Write(writeCtx, websocket.MessageText, data)
}
