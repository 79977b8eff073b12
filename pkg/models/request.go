package models

import "time"

// SubmitRequest contains fields for submitting a swarm request.
type SubmitRequest struct {
	Request  string         `json:"request"`
	Type     TaskType       `json:"type,omitempty"`     // defaults to general
	Priority TaskPriority   `json:"priority,omitempty"` // defaults to medium
	Metadata map[string]any `json:"metadata,omitempty"`
}

// SubmitResponse acknowledges an accepted request with its root task ID.
type SubmitResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// TaskFilters contains filtering options for listing tasks.
type TaskFilters struct {
	Status    TaskStatus `json:"status,omitempty"`
	Type      TaskType   `json:"type,omitempty"`
	ParentID  string     `json:"parent_id,omitempty"`
	Assignee  string     `json:"assignee,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	Limit     int        `json:"limit,omitempty"`
	Offset    int        `json:"offset,omitempty"`
}

// TaskListResponse contains a paginated task list.
type TaskListResponse struct {
	Tasks      []*Task `json:"tasks"`
	TotalCount int     `json:"total_count"`
	Limit      int     `json:"limit"`
	Offset     int     `json:"offset"`
}

// SwarmStatus summarizes coordinator state for the API and checkpoints.
type SwarmStatus struct {
	Agents         []AgentSnapshot `json:"agents"`
	QueueDepth     int             `json:"queue_depth"`
	TasksPending   int             `json:"tasks_pending"`
	TasksActive    int             `json:"tasks_active"`
	TasksCompleted int             `json:"tasks_completed"`
	TasksFailed    int             `json:"tasks_failed"`
	Uptime         string          `json:"uptime"`
}
