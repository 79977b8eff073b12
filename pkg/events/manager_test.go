package events

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestManager(t *testing.T) (*Bus, *ConnectionManager, *httptest.Server) {
	t.Helper()

	bus := NewBus()
	manager := NewConnectionManager(bus, 5*time.Second)
	manager.Start()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			t.Logf("WebSocket accept error: %v", err)
			return
		}
		manager.HandleConnection(r.Context(), conn)
	}))

	t.Cleanup(func() {
		server.Close()
		manager.Stop()
		bus.Close()
	})
	return bus, manager, server
}

func connectWS(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + server.URL[len("http"):]
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var msg map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func subscribeChannel(t *testing.T, conn *websocket.Conn, channel string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	subMsg, _ := json.Marshal(ClientMessage{Action: "subscribe", Channel: channel})
	require.NoError(t, conn.Write(ctx, websocket.MessageText, subMsg))

	msg := readJSON(t, conn)
	require.Equal(t, "subscription.confirmed", msg["type"])
	require.Equal(t, channel, msg["channel"])
}

// waitSubscribers polls until the server side registered the expected number
// of channel subscribers, avoiding bare sleeps.
func waitSubscribers(t *testing.T, m *ConnectionManager, channel string, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.subscriberCount(channel) == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("channel %q never reached %d subscribers", channel, want)
}

func TestConnectionManager_ConnectionEstablished(t *testing.T) {
	_, _, server := setupTestManager(t)
	conn := connectWS(t, server)

	msg := readJSON(t, conn)
	assert.Equal(t, "connection.established", msg["type"])
	assert.NotEmpty(t, msg["connection_id"])
}

func TestConnectionManager_BusEventReachesGlobalChannel(t *testing.T) {
	bus, manager, server := setupTestManager(t)
	conn := connectWS(t, server)
	readJSON(t, conn) // connection.established

	subscribeChannel(t, conn, GlobalChannel)
	waitSubscribers(t, manager, GlobalChannel, 1)

	bus.Publish(New(EventTaskCreated, "swarm", map[string]any{"description": "build"}))

	msg := readJSON(t, conn)
	assert.Equal(t, EventTaskCreated, msg["type"])
	data, ok := msg["data"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "build", data["description"])
}

func TestConnectionManager_TaskChannelRouting(t *testing.T) {
	bus, manager, server := setupTestManager(t)

	connA := connectWS(t, server)
	connB := connectWS(t, server)
	readJSON(t, connA) // connection.established
	readJSON(t, connB)

	subscribeChannel(t, connA, TaskChannel("task-1"))
	subscribeChannel(t, connB, TaskChannel("task-2"))
	waitSubscribers(t, manager, TaskChannel("task-1"), 1)
	waitSubscribers(t, manager, TaskChannel("task-2"), 1)

	evt := New(EventTaskStatus, "swarm", map[string]any{"status": "in-progress"})
	evt.TaskID = "task-1"
	bus.Publish(evt)

	msg := readJSON(t, connA)
	assert.Equal(t, EventTaskStatus, msg["type"])
	assert.Equal(t, "task-1", msg["task_id"])

	// connB subscribed to a different task and must not receive it.
	readCtx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, _, err := connB.Read(readCtx)
	assert.Error(t, err, "task-2 subscriber should not receive task-1 events")
}

func TestConnectionManager_Broadcast(t *testing.T) {
	_, manager, server := setupTestManager(t)

	conn1 := connectWS(t, server)
	conn2 := connectWS(t, server)
	readJSON(t, conn1) // connection.established
	readJSON(t, conn2)

	channel := "task:broadcast-test"
	subscribeChannel(t, conn1, channel)
	subscribeChannel(t, conn2, channel)
	waitSubscribers(t, manager, channel, 2)

	payload, _ := json.Marshal(map[string]string{"type": "test", "data": "hello"})
	manager.Broadcast(channel, payload)

	msg1 := readJSON(t, conn1)
	msg2 := readJSON(t, conn2)

	assert.Equal(t, "test", msg1["type"])
	assert.Equal(t, "hello", msg1["data"])
	assert.Equal(t, "test", msg2["type"])
	assert.Equal(t, "hello", msg2["data"])
}

func TestConnectionManager_PingPong(t *testing.T) {
	_, _, server := setupTestManager(t)
	conn := connectWS(t, server)
	readJSON(t, conn) // connection.established

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pingMsg, _ := json.Marshal(ClientMessage{Action: "ping"})
	require.NoError(t, conn.Write(ctx, websocket.MessageText, pingMsg))

	msg := readJSON(t, conn)
	assert.Equal(t, "pong", msg["type"])
}

func TestConnectionManager_Unsubscribe(t *testing.T) {
	_, manager, server := setupTestManager(t)
	conn := connectWS(t, server)
	readJSON(t, conn) // connection.established

	channel := "task:unsub-test"
	subscribeChannel(t, conn, channel)
	waitSubscribers(t, manager, channel, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	unsubMsg, _ := json.Marshal(ClientMessage{Action: "unsubscribe", Channel: channel})
	require.NoError(t, conn.Write(ctx, websocket.MessageText, unsubMsg))
	waitSubscribers(t, manager, channel, 0)

	payload, _ := json.Marshal(map[string]string{"type": "should-not-receive"})
	manager.Broadcast(channel, payload)

	readCtx, readCancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer readCancel()
	_, _, err := conn.Read(readCtx)
	assert.Error(t, err, "should not receive message after unsubscribe")
}

func TestConnectionManager_EmptyChannelValidation(t *testing.T) {
	_, _, server := setupTestManager(t)
	conn := connectWS(t, server)
	readJSON(t, conn) // connection.established

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	subMsg, _ := json.Marshal(ClientMessage{Action: "subscribe", Channel: ""})
	require.NoError(t, conn.Write(ctx, websocket.MessageText, subMsg))
	msg := readJSON(t, conn)
	assert.Equal(t, "error", msg["type"])
	assert.Contains(t, msg["message"], "channel is required")

	unsubMsg, _ := json.Marshal(ClientMessage{Action: "unsubscribe", Channel: ""})
	require.NoError(t, conn.Write(ctx, websocket.MessageText, unsubMsg))
	msg = readJSON(t, conn)
	assert.Equal(t, "error", msg["type"])
	assert.Contains(t, msg["message"], "channel is required")

	// Connection survives validation errors.
	pingMsg, _ := json.Marshal(ClientMessage{Action: "ping"})
	require.NoError(t, conn.Write(ctx, websocket.MessageText, pingMsg))
	msg = readJSON(t, conn)
	assert.Equal(t, "pong", msg["type"])
}

func TestConnectionManager_UnknownAction(t *testing.T) {
	_, _, server := setupTestManager(t)
	conn := connectWS(t, server)
	readJSON(t, conn) // connection.established

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	badMsg, _ := json.Marshal(ClientMessage{Action: "teleport"})
	require.NoError(t, conn.Write(ctx, websocket.MessageText, badMsg))

	msg := readJSON(t, conn)
	assert.Equal(t, "error", msg["type"])
	assert.Contains(t, msg["message"], "unknown action")
}

func TestConnectionManager_BroadcastToNonExistentChannel(t *testing.T) {
	_, manager, _ := setupTestManager(t)

	payload, _ := json.Marshal(map[string]string{"type": "test"})
	assert.NotPanics(t, func() {
		manager.Broadcast("nonexistent-channel", payload)
	})
}

func TestConnectionManager_ConcurrentBroadcast(t *testing.T) {
	_, manager, server := setupTestManager(t)
	conn := connectWS(t, server)
	readJSON(t, conn) // connection.established

	channel := "task:concurrent-test"
	subscribeChannel(t, conn, channel)
	waitSubscribers(t, manager, channel, 1)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			payload, _ := json.Marshal(map[string]interface{}{"type": "concurrent", "idx": idx})
			manager.Broadcast(channel, payload)
		}(i)
	}
	wg.Wait()

	received := 0
	var firstErr error
	for i := 0; i < 20; i++ {
		readCtx, readCancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, _, err := conn.Read(readCtx)
		readCancel()
		if err != nil {
			firstErr = err
			break
		}
		received++
	}
	assert.Equal(t, 20, received, "should receive all 20 broadcast messages; first error: %v", firstErr)
}

func TestConnectionManager_CleanupOnDisconnect(t *testing.T) {
	_, manager, server := setupTestManager(t)

	url := "ws" + server.URL[len("http"):]
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)

	_, _, err = conn.Read(ctx) // connection.established
	require.NoError(t, err)

	subMsg, _ := json.Marshal(ClientMessage{Action: "subscribe", Channel: "task:cleanup-test"})
	require.NoError(t, conn.Write(ctx, websocket.MessageText, subMsg))
	_, _, err = conn.Read(ctx) // subscription.confirmed
	require.NoError(t, err)

	assert.Equal(t, 1, manager.ActiveConnections())

	conn.Close(websocket.StatusNormalClosure, "")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && manager.ActiveConnections() > 0 {
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, 0, manager.ActiveConnections())
	assert.Equal(t, 0, manager.subscriberCount("task:cleanup-test"))

	payload, _ := json.Marshal(map[string]string{"type": "test"})
	assert.NotPanics(t, func() {
		manager.Broadcast("task:cleanup-test", payload)
	})
}
