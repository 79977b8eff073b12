package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/taskhive-ai/taskhive/pkg/models"
)

// Memory is the map-backed Store. It is the default backend and what unit
// tests run against.
type Memory struct {
	mu          sync.RWMutex
	tasks       map[string]*models.Task
	transitions map[string][]Transition
	reports     map[string][]Report
	checkpoints []Checkpoint
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		tasks:       make(map[string]*models.Task),
		transitions: make(map[string][]Transition),
		reports:     make(map[string][]Report),
	}
}

// SaveTask upserts a detached copy of task.
func (m *Memory) SaveTask(_ context.Context, task *models.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[task.ID] = task.Clone()
	return nil
}

// GetTask returns a detached copy of the task with the given ID.
func (m *Memory) GetTask(_ context.Context, id string) (*models.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	task, ok := m.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return task.Clone(), nil
}

// ListTasks returns matching tasks ordered by creation time.
func (m *Memory) ListTasks(_ context.Context, filter TaskFilter) ([]*models.Task, error) {
	m.mu.RLock()
	matched := make([]*models.Task, 0, len(m.tasks))
	for _, task := range m.tasks {
		if filter.Status != "" && task.Status != filter.Status {
			continue
		}
		if filter.ParentID != "" && task.ParentID != filter.ParentID {
			continue
		}
		if filter.RootsOnly && task.ParentID != "" {
			continue
		}
		matched = append(matched, task.Clone())
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

// RecordTransition appends one status change to the task's history.
func (m *Memory) RecordTransition(_ context.Context, tr Transition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions[tr.TaskID] = append(m.transitions[tr.TaskID], tr)
	return nil
}

// Transitions returns the task's status history in recorded order.
func (m *Memory) Transitions(_ context.Context, taskID string) ([]Transition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Transition(nil), m.transitions[taskID]...), nil
}

// SaveReport indexes one generated report.
func (m *Memory) SaveReport(_ context.Context, r Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports[r.TaskID] = append(m.reports[r.TaskID], r)
	return nil
}

// Reports returns the report index entries for a task.
func (m *Memory) Reports(_ context.Context, taskID string) ([]Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Report(nil), m.reports[taskID]...), nil
}

// SaveCheckpoint indexes one checkpoint file.
func (m *Memory) SaveCheckpoint(_ context.Context, c Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoints = append(m.checkpoints, c)
	return nil
}

// Checkpoints returns the newest checkpoint entries first.
func (m *Memory) Checkpoints(_ context.Context, limit int) ([]Checkpoint, error) {
	m.mu.RLock()
	out := append([]Checkpoint(nil), m.checkpoints...)
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Ping always succeeds.
func (m *Memory) Ping(context.Context) error { return nil }

// Close is a no-op.
func (m *Memory) Close() error { return nil }
