// Package events provides the in-process event bus the swarm publishes its
// lifecycle onto, and the WebSocket fan-out that streams those events to
// dashboard clients. Delivery is best-effort: a slow subscriber drops events
// rather than stalling the publisher.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Task lifecycle event types.
const (
	EventTaskCreated   = "task.created"
	EventTaskStatus    = "task.status"
	EventTaskCompleted = "task.completed"
	EventTaskFailed    = "task.failed"
	EventTaskRetried   = "task.retried"
)

// Agent lifecycle event types.
const (
	EventAgentStarted = "agent.started"
	EventAgentStopped = "agent.stopped"
	EventMessageSent  = "message.sent"
)

// Environment event types.
const (
	EventResourceAllocated  = "resource.allocated"
	EventResourceReleased   = "resource.released"
	EventConstraintViolated = "constraint.violated"
	EventEnvironmentUpdated = "environment.updated"
)

// Coordinator event types.
const (
	EventSwarmScaled      = "swarm.scaled"
	EventSwarmRebalanced  = "swarm.rebalanced"
	EventSwarmCheckpoint  = "swarm.checkpoint"
	EventSwarmReport      = "swarm.report"
	EventSwarmEmergency   = "swarm.emergency_stop"
	EventRequestSubmitted = "request.submitted"
)

// GlobalChannel carries every event. Clients watching a single task
// subscribe to its TaskChannel instead.
const GlobalChannel = "swarm"

// TaskChannel returns the channel name scoped to one root task's events.
// Format: "task:{task_id}".
func TaskChannel(taskID string) string {
	return "task:" + taskID
}

// Event is one bus message. TaskID and AgentID are routing hints and may be
// empty; Data carries the type-specific payload.
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Source    string         `json:"source,omitempty"`
	TaskID    string         `json:"task_id,omitempty"`
	AgentID   string         `json:"agent_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// New builds an event with a fresh ID and the current timestamp.
func New(eventType, source string, data map[string]any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    source,
		Data:      data,
		Timestamp: time.Now(),
	}
}

// ClientMessage is the JSON structure for client → server WebSocket messages.
type ClientMessage struct {
	Action  string `json:"action"`            // "subscribe", "unsubscribe", "ping"
	Channel string `json:"channel,omitempty"` // e.g. "swarm" or "task:abc-123"
}
