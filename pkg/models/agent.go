package models

import "time"

// AgentKind selects the deliberation architecture of an agent.
type AgentKind string

const (
	// AgentKindReactive acts on condition-action rules only
	AgentKindReactive AgentKind = "reactive"
	// AgentKindCognitive deliberates through the LLM on every decision
	AgentKindCognitive AgentKind = "cognitive"
	// AgentKindHybrid routes per-situation between reactive and cognitive paths
	AgentKindHybrid AgentKind = "hybrid"
)

// ValidAgentKind reports whether k names a known agent architecture.
func ValidAgentKind(k AgentKind) bool {
	return k == AgentKindReactive || k == AgentKindCognitive || k == AgentKindHybrid
}

// AgentStatus is the lifecycle state of an agent. Stopped is terminal: a
// stopped agent is never restarted, a replacement is spawned instead.
type AgentStatus string

const (
	AgentStatusIdle    AgentStatus = "idle"
	AgentStatusBusy    AgentStatus = "busy"
	AgentStatusStopped AgentStatus = "stopped"
)

// AgentMetrics accumulates per-agent counters. Snapshot copies are exposed
// through the API; the live struct is guarded by the owning agent.
type AgentMetrics struct {
	TasksCompleted    int     `json:"tasks_completed"`
	TasksFailed       int     `json:"tasks_failed"`
	MessagesProcessed int     `json:"messages_processed"`
	Errors            int     `json:"errors"`
	AvgValidation     float64 `json:"avg_validation"` // rolling mean, 0–100
}

// AgentSnapshot is a point-in-time view of an agent for selection scoring
// and API exposure.
type AgentSnapshot struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Kind         AgentKind    `json:"kind"`
	Status       AgentStatus  `json:"status"`
	Capabilities []string     `json:"capabilities"`
	ActiveTasks  int          `json:"active_tasks"`
	QueuedTasks  int          `json:"queued_tasks"`
	MailboxDepth int          `json:"mailbox_depth"`
	Metrics      AgentMetrics `json:"metrics"`
	StartedAt    time.Time    `json:"started_at"`
}

// ActionType dispatches the result of an agent deliberation step.
type ActionType string

const (
	// ActionToolCall invokes a registered tool
	ActionToolCall ActionType = "tool_call"
	// ActionSendMessage sends a message through the runtime router
	ActionSendMessage ActionType = "send_message"
	// ActionUpdateBelief writes into the agent's belief store
	ActionUpdateBelief ActionType = "update_belief"
	// ActionIgnore is an explicit no-op
	ActionIgnore ActionType = "ignore"

	// Environment actions, executed against the shared software environment.
	ActionMove             ActionType = "move"
	ActionAllocateResource ActionType = "allocate_resource"
	ActionCommunicate      ActionType = "communicate"
	ActionSpawnProcess     ActionType = "spawn_process"
)

// Action is one step produced by deliberation (rule firing, LLM plan, or
// hybrid routing). Params carry the type-specific arguments:
//
//	tool_call:          tool (string), params (map)
//	send_message:       receiver, performative, content
//	update_belief:      key, value
//	ignore:             reason (optional)
//	move:               namespace or location fields
//	allocate_resource:  resource kind → amount pairs
//	communicate:        target, data
//	spawn_process:      command, namespace (optional)
type Action struct {
	Type   ActionType     `json:"type"`
	Params map[string]any `json:"params,omitempty"`
}

// ToolResult is the uniform outcome envelope of a tool execution.
type ToolResult struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}
