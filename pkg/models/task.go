package models

import (
	"time"

	"github.com/google/uuid"
)

// TaskType tags a task with the kind of work it carries.
type TaskType string

const (
	TaskTypeAnalysis       TaskType = "analysis"
	TaskTypeDesign         TaskType = "design"
	TaskTypeImplementation TaskType = "implementation"
	TaskTypeTesting        TaskType = "testing"
	TaskTypeDeployment     TaskType = "deployment"
	TaskTypeGeneral        TaskType = "general"
	TaskTypeValidation     TaskType = "validation"
)

// TaskPriority orders tasks during scheduling.
type TaskPriority string

const (
	PriorityLow      TaskPriority = "low"
	PriorityMedium   TaskPriority = "medium"
	PriorityHigh     TaskPriority = "high"
	PriorityCritical TaskPriority = "critical"
)

// Weight returns the numeric rank of a priority (higher schedules first).
func (p TaskPriority) Weight() int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

// TaskStatus is the lifecycle state of a task.
//
// Transitions move forward only:
//
//	pending → analysing → planning → assigned → in-progress → validating
//	        → completed | failed | cancelled
//
// The single backward edge is failed → pending, taken when a retry is
// granted (retries below max). completed and cancelled are terminal.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusAnalysing  TaskStatus = "analysing"
	TaskStatusPlanning   TaskStatus = "planning"
	TaskStatusAssigned   TaskStatus = "assigned"
	TaskStatusInProgress TaskStatus = "in-progress"
	TaskStatusValidating TaskStatus = "validating"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// statusRank orders the forward lifecycle. Terminal states share the top rank.
var statusRank = map[TaskStatus]int{
	TaskStatusPending:    0,
	TaskStatusAnalysing:  1,
	TaskStatusPlanning:   2,
	TaskStatusAssigned:   3,
	TaskStatusInProgress: 4,
	TaskStatusValidating: 5,
	TaskStatusCompleted:  6,
	TaskStatusFailed:     6,
	TaskStatusCancelled:  6,
}

// IsTerminal reports whether s admits no further forward transition.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed || s == TaskStatusCancelled
}

// CanTransition reports whether moving from s to next is allowed.
// Forward moves are allowed, skipping intermediate states; the only
// backward move is failed → pending (retry).
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	if s == next {
		return false
	}
	if s == TaskStatusFailed && next == TaskStatusPending {
		return true
	}
	if s.IsTerminal() {
		return false
	}
	from, ok := statusRank[s]
	if !ok {
		return false
	}
	to, ok := statusRank[next]
	if !ok {
		return false
	}
	return to > from
}

// Task is a unit of work tracked by the coordinator. Tasks form a DAG via
// DependsOn and a tree via ParentID; a task becomes schedulable when every
// dependency is completed.
type Task struct {
	ID              string         `json:"id"`
	Type            TaskType       `json:"type"`
	Priority        TaskPriority   `json:"priority"`
	Status          TaskStatus     `json:"status"`
	Description     string         `json:"description"`
	Payload         map[string]any `json:"payload,omitempty"`
	DependsOn       []string       `json:"depends_on,omitempty"`
	ParentID        string         `json:"parent_id,omitempty"`
	AssignedTo      string         `json:"assigned_to,omitempty"`
	Result          map[string]any `json:"result,omitempty"`
	ValidationScore float64        `json:"validation_score"` // 0–100, set after validation
	Retries         int            `json:"retries"`
	Error           string         `json:"error,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	StartedAt       *time.Time     `json:"started_at,omitempty"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
}

// NewTask creates a pending task with a fresh ID.
func NewTask(taskType TaskType, priority TaskPriority, description string) *Task {
	now := time.Now()
	return &Task{
		ID:          uuid.NewString(),
		Type:        taskType,
		Priority:    priority,
		Status:      TaskStatusPending,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Clone returns a deep-enough copy for checkpointing (maps are shallow-copied
// one level; callers must not mutate nested values after snapshotting).
func (t *Task) Clone() *Task {
	cp := *t
	if t.Payload != nil {
		cp.Payload = make(map[string]any, len(t.Payload))
		for k, v := range t.Payload {
			cp.Payload[k] = v
		}
	}
	if t.Result != nil {
		cp.Result = make(map[string]any, len(t.Result))
		for k, v := range t.Result {
			cp.Result[k] = v
		}
	}
	cp.DependsOn = append([]string(nil), t.DependsOn...)
	return &cp
}

// ValidTaskType reports whether tt is a known task type.
func ValidTaskType(tt TaskType) bool {
	switch tt {
	case TaskTypeAnalysis, TaskTypeDesign, TaskTypeImplementation,
		TaskTypeTesting, TaskTypeDeployment, TaskTypeGeneral, TaskTypeValidation:
		return true
	}
	return false
}

// ValidPriority reports whether p is a known priority.
func ValidPriority(p TaskPriority) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}
