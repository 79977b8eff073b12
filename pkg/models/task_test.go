package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskStatusCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from TaskStatus
		to   TaskStatus
		want bool
	}{
		{"pending to analysing", TaskStatusPending, TaskStatusAnalysing, true},
		{"pending skips to assigned", TaskStatusPending, TaskStatusAssigned, true},
		{"pending straight to completed", TaskStatusPending, TaskStatusCompleted, true},
		{"assigned to in-progress", TaskStatusAssigned, TaskStatusInProgress, true},
		{"in-progress to validating", TaskStatusInProgress, TaskStatusValidating, true},
		{"validating to completed", TaskStatusValidating, TaskStatusCompleted, true},
		{"validating to failed", TaskStatusValidating, TaskStatusFailed, true},
		{"no backward to planning", TaskStatusInProgress, TaskStatusPlanning, false},
		{"no self transition", TaskStatusPending, TaskStatusPending, false},
		{"failed retries to pending", TaskStatusFailed, TaskStatusPending, true},
		{"failed cannot resume in-progress", TaskStatusFailed, TaskStatusInProgress, false},
		{"completed is terminal", TaskStatusCompleted, TaskStatusPending, false},
		{"cancelled is terminal", TaskStatusCancelled, TaskStatusPending, false},
		{"unknown status rejected", TaskStatus("bogus"), TaskStatusPending, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}
}

func TestTaskStatusIsTerminal(t *testing.T) {
	assert.True(t, TaskStatusCompleted.IsTerminal())
	assert.True(t, TaskStatusFailed.IsTerminal())
	assert.True(t, TaskStatusCancelled.IsTerminal())
	assert.False(t, TaskStatusPending.IsTerminal())
	assert.False(t, TaskStatusInProgress.IsTerminal())
}

func TestPriorityWeightOrdering(t *testing.T) {
	assert.Greater(t, PriorityCritical.Weight(), PriorityHigh.Weight())
	assert.Greater(t, PriorityHigh.Weight(), PriorityMedium.Weight())
	assert.Greater(t, PriorityMedium.Weight(), PriorityLow.Weight())
	assert.Equal(t, 0, TaskPriority("bogus").Weight())
}

func TestNewTaskDefaults(t *testing.T) {
	task := NewTask(TaskTypeAnalysis, PriorityHigh, "inspect logs")

	require.NotEmpty(t, task.ID)
	assert.Equal(t, TaskStatusPending, task.Status)
	assert.Equal(t, TaskTypeAnalysis, task.Type)
	assert.Equal(t, PriorityHigh, task.Priority)
	assert.Zero(t, task.Retries)
	assert.False(t, task.CreatedAt.IsZero())
}

func TestTaskClone(t *testing.T) {
	task := NewTask(TaskTypeGeneral, PriorityMedium, "original")
	task.Payload = map[string]any{"key": "value"}
	task.DependsOn = []string{"dep-1"}

	cp := task.Clone()
	cp.Payload["key"] = "changed"
	cp.DependsOn[0] = "dep-2"

	assert.Equal(t, "value", task.Payload["key"])
	assert.Equal(t, "dep-1", task.DependsOn[0])
}

func TestMessageReplyThreadsConversation(t *testing.T) {
	msg := NewMessage(PerformativeRequest, "agent-a", "agent-b", map[string]any{"ask": "status"})
	reply := msg.Reply(PerformativeInform, map[string]any{"status": "ok"})

	assert.Equal(t, msg.ConversationID, reply.ConversationID)
	assert.Equal(t, msg.ID, reply.InReplyTo)
	assert.Equal(t, "agent-b", reply.Sender)
	assert.Equal(t, "agent-a", reply.Receiver)
	assert.Equal(t, ProtocolFIPAACL, reply.Protocol)
}

func TestValidPerformative(t *testing.T) {
	for _, p := range []Performative{
		PerformativeInform, PerformativeRequest, PerformativePropose,
		PerformativeAccept, PerformativeReject, PerformativeQuery, PerformativeSubscribe,
	} {
		assert.True(t, ValidPerformative(p), string(p))
	}
	assert.False(t, ValidPerformative(Performative("shout")))
}
