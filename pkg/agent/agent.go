// Package agent implements the BDI agent framework for TaskHive.
// Every agent runs one control loop that drains its mailbox, drains its task
// queue, and periodically runs a perceive → deliberate → act cycle. The
// deliberation strategy is pluggable: reactive rule matching, LLM-backed
// cognition, or a hybrid router that picks per stimulus.
package agent

import (
	"context"

	"github.com/taskhive-ai/taskhive/pkg/models"
)

// Agent is the runtime-facing surface of an agent.
// Start spawns the control loop; Stop is terminal — a stopped agent is never
// restarted, the swarm spawns a replacement instead.
type Agent interface {
	ID() string
	Name() string
	Kind() models.AgentKind
	Capabilities() []string
	Status() models.AgentStatus
	Snapshot() models.AgentSnapshot

	Start(ctx context.Context) error
	Stop()

	// Deliver enqueues a message to the agent's mailbox.
	Deliver(msg *models.Message) error

	// Submit enqueues a task to the agent's task queue.
	Submit(task *models.Task) error
}

// Reasoner is the deliberation strategy behind a BaseAgent (one per agent
// kind). The base owns the loop and the queues; the reasoner owns the
// thinking.
type Reasoner interface {
	// Deliberate turns fresh stimuli and current beliefs into intentions.
	// Returning no intentions skips the act step of this cycle.
	Deliberate(ctx context.Context, a *BaseAgent, stimuli []Stimulus) []Intention

	// Act turns committed intentions into actions. The result may be a
	// single action, a slice, or a JSON string encoding either; the base
	// normalizes before dispatch.
	Act(ctx context.Context, a *BaseAgent, intentions []Intention) (any, error)

	// HandleTask processes one assigned task end to end and returns the
	// result payload reported to the coordinator.
	HandleTask(ctx context.Context, a *BaseAgent, task *models.Task) (map[string]any, error)

	// HandleMessage reacts to one mailbox message. Returned actions pass
	// through the same normalization and dispatch as Act results.
	HandleMessage(ctx context.Context, a *BaseAgent, msg *models.Message) (any, error)
}

// Stimulus is one unit of perception: a message, an environment event, a
// task, or an observed state change. Data always carries a "type" key so
// rule conditions can match on it.
type Stimulus struct {
	Kind string
	Data map[string]any
}

// Stimulus kinds.
const (
	StimulusMessage = "message"
	StimulusTask    = "task"
	StimulusEvent   = "event"
	StimulusState   = "state"
)

// Intention is a committed deliberation outcome awaiting the act step.
type Intention struct {
	Name    string
	Context map[string]any
}

// Environment is the slice of the world an agent may touch: observation
// filtered by its visibility level, constraint-gated actions, and release
// of held resources when a task finishes.
type Environment interface {
	Observe(agentID string) map[string]any
	ExecuteAction(agentID string, action models.Action) (bool, map[string]any)
	ReleaseAll(agentID string) map[models.ResourceKind]float64
}

// MessageRouter delivers agent-to-agent messages. Delivery is at-most-once;
// an unknown recipient is the router's problem, not the sender's.
type MessageRouter interface {
	SendMessage(msg *models.Message) error
}

// ResultSink receives task outcomes. The swarm coordinator implements it;
// tests substitute a recorder.
type ResultSink interface {
	HandleTaskResult(agentID string, task *models.Task, result map[string]any, taskErr error)
}

// StartSink is an optional extension of ResultSink. Sinks that implement it
// are told when an agent actually begins executing a task, which can lag the
// hand-off while the task waits in the agent's queue.
type StartSink interface {
	HandleTaskStarted(agentID string, task *models.Task)
}

// ToolExecutor is the slice of the tool registry agents consume.
type ToolExecutor interface {
	Execute(ctx context.Context, name string, params map[string]any) models.ToolResult
}
