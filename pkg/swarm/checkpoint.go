package swarm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/taskhive-ai/taskhive/pkg/events"
	"github.com/taskhive-ai/taskhive/pkg/models"
	"github.com/taskhive-ai/taskhive/pkg/store"
	"github.com/taskhive-ai/taskhive/pkg/workspace"
)

// checkpointState is the swarm snapshot written to disk. Agent snapshots are
// informational; the pool is rebuilt from profiles on restart, only tasks
// carry over.
type checkpointState struct {
	SavedAt time.Time              `json:"saved_at"`
	Tasks   []*models.Task         `json:"tasks"`
	Agents  []models.AgentSnapshot `json:"agents"`
	Queued  []string               `json:"queued"`
}

// writeCheckpoint persists the ledger, pool metrics, and queue to a
// checkpoint file and indexes it in the store. Checkpoints are written
// whether or not fault recovery is on; only the restore path is gated.
func (c *Coordinator) writeCheckpoint(ctx context.Context) error {
	if c.deps.Workspace == nil {
		return nil
	}
	state := checkpointState{
		SavedAt: time.Now().UTC(),
		Tasks:   c.registry.list(),
		Agents:  c.poolSnapshots(),
		Queued:  c.queue.Snapshot(),
	}
	path, err := c.deps.Workspace.WriteCheckpoint(state)
	if err != nil {
		return err
	}

	if c.deps.Store != nil {
		if err := c.deps.Store.SaveCheckpoint(ctx, store.Checkpoint{
			Path:      path,
			Tasks:     len(state.Tasks),
			Agents:    len(state.Agents),
			CreatedAt: state.SavedAt,
		}); err != nil {
			c.logger.Warn("Checkpoint index write failed", "path", path, "error", err)
		}
	}

	c.deps.Bus.Publish(events.New(events.EventSwarmCheckpoint, "coordinator", map[string]any{
		"path":   path,
		"tasks":  len(state.Tasks),
		"agents": len(state.Agents),
	}))
	c.logger.Debug("Checkpoint written",
		"path", path, "tasks", len(state.Tasks), "queued", len(state.Queued))
	return nil
}

// restore reloads the newest checkpoint. Non-terminal leaf tasks go back to
// pending and into the queue: whatever execution state they were in died
// with the old process. Parents keep their status and settle through the
// normal cascade as the requeued leaves finish; parents whose children had
// all settled before the crash are finalised here.
func (c *Coordinator) restore(ctx context.Context) error {
	if c.deps.Workspace == nil {
		return nil
	}
	path, err := c.deps.Workspace.LatestCheckpoint()
	if err != nil {
		if errors.Is(err, workspace.ErrNoCheckpoint) {
			return nil
		}
		return err
	}
	var state checkpointState
	if err := c.deps.Workspace.LoadCheckpoint(path, &state); err != nil {
		return fmt.Errorf("load checkpoint %s: %w", path, err)
	}

	c.registry.load(state.Tasks)
	requeued := 0
	for _, t := range state.Tasks {
		if t.Status.IsTerminal() || c.registry.hasChildren(t.ID) {
			continue
		}
		restored, err := c.registry.requeueRestored(ctx, t.ID)
		if err != nil {
			c.logger.Warn("Restore requeue failed", "task_id", t.ID, "error", err)
			continue
		}
		if err := c.queue.Push(restored); err != nil {
			c.failTask(ctx, t.ID, err.Error())
			continue
		}
		requeued++
	}
	for _, t := range state.Tasks {
		if !t.Status.IsTerminal() && c.registry.hasChildren(t.ID) {
			c.settleParent(ctx, t.ID)
		}
	}

	c.logger.Info("Checkpoint restored",
		"path", path, "saved_at", state.SavedAt, "tasks", len(state.Tasks), "requeued", requeued)
	return nil
}
