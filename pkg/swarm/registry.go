package swarm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/taskhive-ai/taskhive/pkg/events"
	"github.com/taskhive-ai/taskhive/pkg/models"
	"github.com/taskhive-ai/taskhive/pkg/store"
)

var (
	// ErrTaskNotFound indicates a task ID unknown to the ledger.
	ErrTaskNotFound = errors.New("task not found")

	// ErrInvalidTransition indicates a status change the lifecycle forbids.
	ErrInvalidTransition = errors.New("invalid task transition")
)

// taskRegistry is the coordinator's task ledger and the single writer of
// task state. Every mutation passes through it, so lifecycle rules are
// enforced in one place before the change fans out to the store (fail-open)
// and the event bus. Readers always get detached clones.
type taskRegistry struct {
	logger *slog.Logger
	bus    *events.Bus
	store  store.Store

	mu    sync.RWMutex
	tasks map[string]*models.Task
}

func newTaskRegistry(bus *events.Bus, st store.Store) *taskRegistry {
	return &taskRegistry{
		logger: slog.Default().With("component", "task-registry"),
		bus:    bus,
		store:  st,
		tasks:  make(map[string]*models.Task),
	}
}

// add enters a new task into the ledger and announces it.
func (r *taskRegistry) add(ctx context.Context, t *models.Task) {
	r.mu.Lock()
	r.tasks[t.ID] = t.Clone()
	r.mu.Unlock()

	r.persist(ctx, t)
	evt := events.New(events.EventTaskCreated, "coordinator", map[string]any{
		"type":        string(t.Type),
		"priority":    string(t.Priority),
		"parent_id":   t.ParentID,
		"description": t.Description,
	})
	evt.TaskID = t.ID
	r.bus.Publish(evt)
}

// load seeds the ledger from a checkpoint without publishing anything.
func (r *taskRegistry) load(tasks []*models.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range tasks {
		r.tasks[t.ID] = t.Clone()
	}
}

// get returns a clone of one task.
func (r *taskRegistry) get(id string) (*models.Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// list returns clones of every task, oldest first.
func (r *taskRegistry) list() []*models.Task {
	r.mu.RLock()
	out := make([]*models.Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, t.Clone())
	}
	r.mu.RUnlock()

	sortTasks(out)
	return out
}

// children returns clones of the direct subtasks of parentID, oldest first.
func (r *taskRegistry) children(parentID string) []*models.Task {
	r.mu.RLock()
	var out []*models.Task
	for _, t := range r.tasks {
		if t.ParentID == parentID {
			out = append(out, t.Clone())
		}
	}
	r.mu.RUnlock()

	sortTasks(out)
	return out
}

// descendants returns every task below rootID in the decomposition tree,
// oldest first.
func (r *taskRegistry) descendants(rootID string) []*models.Task {
	r.mu.RLock()
	byParent := make(map[string][]*models.Task)
	for _, t := range r.tasks {
		if t.ParentID != "" {
			byParent[t.ParentID] = append(byParent[t.ParentID], t.Clone())
		}
	}
	r.mu.RUnlock()

	var out []*models.Task
	frontier := []string{rootID}
	for len(frontier) > 0 {
		id := frontier[0]
		frontier = frontier[1:]
		for _, child := range byParent[id] {
			out = append(out, child)
			frontier = append(frontier, child.ID)
		}
	}
	sortTasks(out)
	return out
}

// hasChildren reports whether any task names id as its parent.
func (r *taskRegistry) hasChildren(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.tasks {
		if t.ParentID == id {
			return true
		}
	}
	return false
}

// counts tallies tasks by status.
func (r *taskRegistry) counts() map[models.TaskStatus]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[models.TaskStatus]int)
	for _, t := range r.tasks {
		out[t.Status]++
	}
	return out
}

func (r *taskRegistry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}

// transition moves a task to next after lifecycle validation, stamping the
// timestamps the new status implies. The returned clone reflects the task
// after the move.
func (r *taskRegistry) transition(ctx context.Context, id string, next models.TaskStatus, detail string) (*models.Task, error) {
	return r.mutate(ctx, id, next, detail, nil)
}

// assign marks a task assigned to an agent.
func (r *taskRegistry) assign(ctx context.Context, id, agentID, agentName string) (*models.Task, error) {
	return r.mutate(ctx, id, models.TaskStatusAssigned, "assigned to "+agentName, func(t *models.Task) {
		t.AssignedTo = agentID
	})
}

// reassign re-points a dispatched task at another agent without a status
// change; the load balancer uses it when it moves queued work.
func (r *taskRegistry) reassign(ctx context.Context, id, agentID string) (*models.Task, error) {
	return r.mutate(ctx, id, "", "", func(t *models.Task) {
		t.AssignedTo = agentID
	})
}

// markInProgress records that an agent began executing the task.
func (r *taskRegistry) markInProgress(ctx context.Context, id string) (*models.Task, error) {
	return r.transition(ctx, id, models.TaskStatusInProgress, "execution started")
}

// markValidating records that the task's result is being scored.
func (r *taskRegistry) markValidating(ctx context.Context, id string) (*models.Task, error) {
	return r.transition(ctx, id, models.TaskStatusValidating, "scoring result")
}

// complete finishes a task with its result. score below zero means the
// result was accepted without scoring.
func (r *taskRegistry) complete(ctx context.Context, id string, result map[string]any, score float64) (*models.Task, error) {
	return r.mutate(ctx, id, models.TaskStatusCompleted, "completed", func(t *models.Task) {
		t.Result = result
		if score >= 0 {
			t.ValidationScore = score
		}
	})
}

// fail moves a task to failed with a reason. Whether it stays there is the
// coordinator's retry policy, not the ledger's.
func (r *taskRegistry) fail(ctx context.Context, id, reason string) (*models.Task, error) {
	return r.mutate(ctx, id, models.TaskStatusFailed, reason, func(t *models.Task) {
		t.Error = reason
	})
}

// cancel terminates a task that should not run.
func (r *taskRegistry) cancel(ctx context.Context, id, reason string) (*models.Task, error) {
	return r.mutate(ctx, id, models.TaskStatusCancelled, reason, nil)
}

// retry takes the failed → pending edge: the attempt counter advances and
// the execution stamps reset for the next attempt.
func (r *taskRegistry) retry(ctx context.Context, id string) (*models.Task, error) {
	return r.mutate(ctx, id, models.TaskStatusPending, "retrying", nil)
}

// setAnalysis attaches the intake classification to a task's payload.
func (r *taskRegistry) setAnalysis(ctx context.Context, id string, analysis map[string]any) {
	if _, err := r.mutate(ctx, id, "", "", func(t *models.Task) {
		if t.Payload == nil {
			t.Payload = make(map[string]any, 1)
		}
		t.Payload["analysis"] = analysis
	}); err != nil {
		r.logger.Warn("Analysis not recorded", "task_id", id, "error", err)
	}
}

// requeueRestored forces a restored in-flight task back to pending. This is
// the one path that skips lifecycle validation: the process restarted, so
// whatever execution state the task was in no longer exists anywhere.
func (r *taskRegistry) requeueRestored(ctx context.Context, id string) (*models.Task, error) {
	r.mu.Lock()
	t, ok := r.tasks[id]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	from := t.Status
	if from == models.TaskStatusPending {
		snapshot := t.Clone()
		r.mu.Unlock()
		return snapshot, nil
	}
	t.Status = models.TaskStatusPending
	t.AssignedTo = ""
	t.StartedAt = nil
	t.UpdatedAt = time.Now()
	snapshot := t.Clone()
	r.mu.Unlock()

	r.persist(ctx, snapshot)
	r.record(ctx, store.Transition{
		TaskID: id, From: from, To: models.TaskStatusPending,
		Detail: "restored after restart", At: snapshot.UpdatedAt,
	})
	r.publishStatus(snapshot, from, "restored after restart")
	return snapshot, nil
}

// mutate is the single write path: validate the status change if there is
// one, apply fn under the lock, then persist and publish outside it.
func (r *taskRegistry) mutate(ctx context.Context, id string, next models.TaskStatus, detail string, fn func(*models.Task)) (*models.Task, error) {
	r.mu.Lock()
	t, ok := r.tasks[id]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	from := t.Status
	now := time.Now()
	if next != "" {
		if !from.CanTransition(next) {
			r.mu.Unlock()
			return nil, fmt.Errorf("%w: %s → %s (task %s)", ErrInvalidTransition, from, next, id)
		}
		t.Status = next
		switch {
		case next == models.TaskStatusInProgress && t.StartedAt == nil:
			t.StartedAt = &now
		case next.IsTerminal():
			t.CompletedAt = &now
		case next == models.TaskStatusPending:
			// The retry edge. The last error is kept for diagnosis.
			t.Retries++
			t.AssignedTo = ""
			t.StartedAt = nil
			t.CompletedAt = nil
		}
	}
	t.UpdatedAt = now
	if fn != nil {
		fn(t)
	}
	snapshot := t.Clone()
	r.mu.Unlock()

	r.persist(ctx, snapshot)
	if next != "" {
		r.record(ctx, store.Transition{TaskID: id, From: from, To: next, Detail: detail, At: now})
		r.publishStatus(snapshot, from, detail)
	}
	return snapshot, nil
}

// persist writes through to the store. Persistence trouble is logged, never
// surfaced: the in-memory ledger keeps the swarm running.
func (r *taskRegistry) persist(ctx context.Context, t *models.Task) {
	if r.store == nil {
		return
	}
	if err := r.store.SaveTask(ctx, t); err != nil {
		r.logger.Warn("Task write-through failed", "task_id", t.ID, "error", err)
	}
}

func (r *taskRegistry) record(ctx context.Context, tr store.Transition) {
	if r.store == nil {
		return
	}
	if err := r.store.RecordTransition(ctx, tr); err != nil {
		r.logger.Warn("Transition record failed", "task_id", tr.TaskID, "error", err)
	}
}

func (r *taskRegistry) publishStatus(t *models.Task, from models.TaskStatus, detail string) {
	evt := events.New(events.EventTaskStatus, "coordinator", map[string]any{
		"from":   string(from),
		"to":     string(t.Status),
		"detail": detail,
	})
	evt.TaskID = t.ID
	r.bus.Publish(evt)

	switch t.Status {
	case models.TaskStatusCompleted:
		r.publishOutcome(events.EventTaskCompleted, t, map[string]any{
			"validation_score": t.ValidationScore,
		})
	case models.TaskStatusFailed:
		r.publishOutcome(events.EventTaskFailed, t, map[string]any{
			"error":   t.Error,
			"retries": t.Retries,
		})
	case models.TaskStatusPending:
		if from == models.TaskStatusFailed {
			r.publishOutcome(events.EventTaskRetried, t, map[string]any{
				"attempt": t.Retries,
			})
		}
	}
}

func (r *taskRegistry) publishOutcome(eventType string, t *models.Task, data map[string]any) {
	evt := events.New(eventType, "coordinator", data)
	evt.TaskID = t.ID
	r.bus.Publish(evt)
}

func sortTasks(tasks []*models.Task) {
	sort.Slice(tasks, func(i, j int) bool {
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
		}
		return tasks[i].ID < tasks[j].ID
	})
}
