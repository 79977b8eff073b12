package swarm

import (
	"context"
	"time"

	"github.com/taskhive-ai/taskhive/pkg/events"
	"github.com/taskhive-ai/taskhive/pkg/models"
)

// loadVarianceBound is the backlog variance above which the balancer acts.
const loadVarianceBound = 1.0

// lapse is one dispatched task whose assignment no longer holds.
type lapse struct {
	taskID    string
	agentID   string
	reason    string
	agentGone bool
}

// monitorLoop sweeps assignments for dead agents and blown deadlines.
func (c *Coordinator) monitorLoop(ctx context.Context) {
	ticker := time.NewTicker(every(c.cfg.MonitorInterval, 5*time.Second))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.monitorPass(ctx)
		}
	}
}

// monitorPass reclaims tasks whose agent died or whose deadline passed. A
// timed-out agent keeps running; its eventual result arrives stale and is
// dropped by the result loop.
func (c *Coordinator) monitorPass(ctx context.Context) {
	now := time.Now()
	var lapses []lapse

	c.mu.Lock()
	for taskID, asg := range c.assignments {
		worker := c.pool[asg.agentID]
		switch {
		case worker == nil || worker.Status() == models.AgentStatusStopped:
			lapses = append(lapses, lapse{taskID, asg.agentID, "agent failed mid-task", true})
		case now.After(asg.deadline):
			lapses = append(lapses, lapse{taskID, asg.agentID, "task timed out", false})
		}
	}
	for _, l := range lapses {
		delete(c.assignments, l.taskID)
	}
	c.mu.Unlock()

	for _, l := range lapses {
		c.logger.Warn("Assignment lapsed",
			"task_id", l.taskID, "agent_id", l.agentID, "reason", l.reason)
		if l.agentGone {
			if c.deps.Env != nil {
				c.deps.Env.ReleaseAll(l.agentID)
			}
			if !c.cfg.FaultRecoveryEnabled() {
				c.failTask(ctx, l.taskID, l.reason)
				continue
			}
		}
		c.requeueOrFail(ctx, l.taskID, l.reason)
	}
}

// balanceLoop evens out agent backlogs.
func (c *Coordinator) balanceLoop(ctx context.Context) {
	ticker := time.NewTicker(every(c.cfg.LoadBalanceInterval, 30*time.Second))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.balancePass(ctx)
		}
	}
}

// balancePass moves one queued task from the heaviest agent to the lightest
// when the spread justifies it. One move per pass keeps the pool from
// thrashing; the next tick moves the next task if the skew persists.
func (c *Coordinator) balancePass(ctx context.Context) {
	if !c.cfg.LoadBalancingEnabled() {
		return
	}
	snaps := c.poolSnapshots()
	live := snaps[:0]
	for _, snap := range snaps {
		if snap.Status != models.AgentStatusStopped {
			live = append(live, snap)
		}
	}
	if len(live) < 2 {
		return
	}

	loads := make([]int, len(live))
	donorIdx, receiverIdx := 0, 0
	for i, snap := range live {
		loads[i] = backlog(snap)
		if loads[i] > loads[donorIdx] {
			donorIdx = i
		}
		if loads[i] < loads[receiverIdx] {
			receiverIdx = i
		}
	}
	donor, receiver := live[donorIdx], live[receiverIdx]
	if loadVariance(loads) <= loadVarianceBound || backlog(donor)-backlog(receiver) < 2 {
		return
	}
	if donor.QueuedTasks == 0 {
		// All of the donor's load is already executing; nothing movable.
		return
	}

	c.mu.Lock()
	from, to := c.pool[donor.ID], c.pool[receiver.ID]
	c.mu.Unlock()
	if from == nil || to == nil {
		return
	}
	task := from.StealTask()
	if task == nil {
		return
	}

	if _, err := c.registry.reassign(ctx, task.ID, receiver.ID); err != nil {
		c.logger.Error("Reassign rejected", "task_id", task.ID, "error", err)
	}
	c.mu.Lock()
	c.assignments[task.ID] = &assignment{
		agentID:  receiver.ID,
		deadline: time.Now().Add(every(c.cfg.TaskTimeout, 5*time.Minute)),
	}
	c.mu.Unlock()

	if err := to.Submit(task); err != nil {
		c.clearAssignment(task.ID)
		c.requeueOrFail(ctx, task.ID, "rebalance hand-off failed: "+err.Error())
		return
	}
	evt := events.New(events.EventSwarmRebalanced, "coordinator", map[string]any{
		"from": donor.Name,
		"to":   receiver.Name,
	})
	evt.TaskID = task.ID
	c.deps.Bus.Publish(evt)
	c.logger.Info("Task rebalanced", "task_id", task.ID, "from", donor.Name, "to", receiver.Name)
}

func loadVariance(loads []int) float64 {
	if len(loads) == 0 {
		return 0
	}
	var sum float64
	for _, l := range loads {
		sum += float64(l)
	}
	mean := sum / float64(len(loads))
	var sq float64
	for _, l := range loads {
		d := float64(l) - mean
		sq += d * d
	}
	return sq / float64(len(loads))
}

// autoscaleLoop grows and shrinks the pool.
func (c *Coordinator) autoscaleLoop(ctx context.Context) {
	ticker := time.NewTicker(every(c.cfg.AutoscaleInterval, 15*time.Second))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.autoscalePass(ctx)
		}
	}
}

// autoscalePass adds one agent when the queue outgrows the pool and retires
// one idle agent when host CPU runs too hot. At most one change per tick.
func (c *Coordinator) autoscalePass(ctx context.Context) {
	if !c.cfg.AutoScalingEnabled() {
		return
	}
	snaps := c.poolSnapshots()
	live := 0
	for _, snap := range snaps {
		if snap.Status != models.AgentStatusStopped {
			live++
		}
	}
	queued := c.queue.Len()

	if queued > live*scaleUpQueueFactor && live < c.cfg.MaxAgents {
		spawned, err := c.spawnAgent(ctx, scaleProfile, c.fallbackProfile())
		if err != nil {
			c.logger.Warn("Scale-up failed", "error", err)
			return
		}
		evt := events.New(events.EventSwarmScaled, "coordinator", map[string]any{
			"direction": "up",
			"agents":    live + 1,
			"queued":    queued,
		})
		evt.AgentID = spawned.ID()
		c.deps.Bus.Publish(evt)
		c.logger.Info("Scaled up", "agent", spawned.Name(), "agents", live+1, "queued", queued)
		return
	}

	cpu := c.hostCPU()
	if cpu <= c.cfg.MaxCPUPercent || live <= c.cfg.MinAgents {
		return
	}
	for _, snap := range snaps {
		if snap.Status != models.AgentStatusIdle || backlog(snap) > 0 {
			continue
		}
		if err := c.StopAgent(snap.ID); err != nil {
			c.logger.Warn("Scale-down failed", "agent_id", snap.ID, "error", err)
			return
		}
		evt := events.New(events.EventSwarmScaled, "coordinator", map[string]any{
			"direction": "down",
			"agents":    live - 1,
			"host_cpu":  cpu,
		})
		evt.AgentID = snap.ID
		c.deps.Bus.Publish(evt)
		c.logger.Info("Scaled down", "agent", snap.Name, "agents", live-1, "host_cpu", cpu)
		return
	}
}

// checkpointLoop persists swarm state on the configured cadence. Old
// checkpoint files are pruned by the workspace sweeper, not here.
func (c *Coordinator) checkpointLoop(ctx context.Context) {
	ticker := time.NewTicker(every(c.cfg.CheckpointInterval, time.Minute))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.writeCheckpoint(ctx); err != nil {
				c.logger.Warn("Checkpoint failed", "error", err)
			}
		}
	}
}

// heartbeatLoop refreshes the pool and queue gauges.
func (c *Coordinator) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(every(c.cfg.HeartbeatInterval, 10*time.Second))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.deps.Metrics.SetAgents(c.poolSnapshots())
			c.deps.Metrics.SetQueueDepth(c.queue.Len())
		}
	}
}

// every guards loop intervals against zero or negative configuration.
func every(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
