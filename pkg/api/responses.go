package api

import (
	"github.com/taskhive-ai/taskhive/pkg/models"
	"github.com/taskhive-ai/taskhive/pkg/store"
)

// CancelResponse is returned by POST /api/v1/tasks/:id/cancel.
type CancelResponse struct {
	TaskID  string `json:"task_id"`
	Message string `json:"message"`
}

// StopAgentResponse is returned by POST /api/v1/agents/:id/stop.
type StopAgentResponse struct {
	AgentID string `json:"agent_id"`
	Message string `json:"message"`
}

// TaskDetail is one task plus its direct children.
type TaskDetail struct {
	Task     *models.Task   `json:"task"`
	Subtasks []*models.Task `json:"subtasks,omitempty"`
}

// TransitionsResponse is the recorded status history of one task.
type TransitionsResponse struct {
	TaskID      string             `json:"task_id"`
	Transitions []store.Transition `json:"transitions"`
}

// HealthCheck is one named component probe inside HealthResponse.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is returned by GET /healthz.
type HealthResponse struct {
	Status  string                 `json:"status"`
	Version string                 `json:"version"`
	Checks  map[string]HealthCheck `json:"checks"`
	Swarm   map[string]any         `json:"swarm,omitempty"`
}
