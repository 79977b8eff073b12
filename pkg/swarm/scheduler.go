package swarm

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/taskhive-ai/taskhive/pkg/models"
)

// depState classifies a task's dependency edge set at dispatch time.
type depState int

const (
	depsReady depState = iota
	depsPending
	depsFailed
)

// schedulerLoop drains the queue on a jittered interval. Jitter keeps the
// scheduler, monitor, and balancer from waking in lockstep every tick.
func (c *Coordinator) schedulerLoop(ctx context.Context) {
	timer := time.NewTimer(c.schedulerPause())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			c.schedulePass(ctx)
			timer.Reset(c.schedulerPause())
		}
	}
}

func (c *Coordinator) schedulerPause() time.Duration {
	base := every(c.cfg.SchedulerInterval, time.Second)
	jitter := c.cfg.SchedulerJitter
	if jitter <= 0 {
		return base
	}
	pause := base + time.Duration(rand.Int64N(int64(2*jitter)+1)) - jitter
	if pause < time.Millisecond {
		pause = time.Millisecond
	}
	return pause
}

// schedulePass pops every queued task once: dispatch the ready ones, fail the
// ones whose dependencies died, and re-queue the rest.
func (c *Coordinator) schedulePass(ctx context.Context) {
	var deferred []*models.Task
	for {
		taskID, ok := c.queue.Pop()
		if !ok {
			break
		}
		task, ok := c.registry.get(taskID)
		if !ok || task.Status.IsTerminal() {
			continue
		}
		switch c.dependencyState(task) {
		case depsFailed:
			c.failTask(ctx, task.ID, "dependency failed")
		case depsPending:
			deferred = append(deferred, task)
		case depsReady:
			if !c.dispatch(ctx, task) {
				deferred = append(deferred, task)
			}
		}
	}
	for _, task := range deferred {
		if err := c.queue.Push(task); err != nil {
			c.failTask(ctx, task.ID, err.Error())
		}
	}
}

// dependencyState inspects a task's dependency edges. A dependency that is
// gone or failed poisons the task; anything not yet completed defers it.
func (c *Coordinator) dependencyState(task *models.Task) depState {
	for _, depID := range task.DependsOn {
		dep, ok := c.registry.get(depID)
		if !ok {
			return depsFailed
		}
		switch dep.Status {
		case models.TaskStatusCompleted:
		case models.TaskStatusFailed, models.TaskStatusCancelled:
			return depsFailed
		default:
			return depsPending
		}
	}
	return depsReady
}

// dispatch hands a task to the best-scoring agent. It reports false when no
// agent can take the task right now; true means the task left the queue for
// good, whichever way that went.
func (c *Coordinator) dispatch(ctx context.Context, task *models.Task) bool {
	snap, ok := selectAgent(task, c.poolSnapshots())
	if !ok {
		return false
	}
	if _, err := c.registry.assign(ctx, task.ID, snap.ID, snap.Name); err != nil {
		// The task moved under us (cancelled, restored twice). Drop it here;
		// the registry still has the authoritative record.
		c.logger.Error("Assign rejected", "task_id", task.ID, "agent_id", snap.ID, "error", err)
		return true
	}

	c.mu.Lock()
	worker := c.pool[snap.ID]
	c.assignments[task.ID] = &assignment{
		agentID:  snap.ID,
		deadline: time.Now().Add(every(c.cfg.TaskTimeout, 5*time.Minute)),
	}
	c.mu.Unlock()

	if worker == nil {
		c.clearAssignment(task.ID)
		c.requeueOrFail(ctx, task.ID, fmt.Sprintf("agent %s left the pool before hand-off", snap.ID))
		return true
	}

	fresh, _ := c.registry.get(task.ID)
	if err := worker.Submit(fresh); err != nil {
		c.clearAssignment(task.ID)
		c.requeueOrFail(ctx, task.ID, fmt.Sprintf("agent %s rejected the task: %v", snap.Name, err))
		return true
	}
	c.logger.Info("Task dispatched",
		"task_id", task.ID, "agent", snap.Name, "priority", task.Priority, "type", task.Type)
	return true
}

func (c *Coordinator) clearAssignment(taskID string) {
	c.mu.Lock()
	delete(c.assignments, taskID)
	c.mu.Unlock()
}
