// Package swarm contains the coordinator: request intake, task
// decomposition, scheduling, result validation, load balancing, pool
// scaling, and fault recovery. Agents do the thinking; the coordinator
// decides who works on what and accounts for every task from submission to
// report.
package swarm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/taskhive-ai/taskhive/pkg/agent"
	"github.com/taskhive-ai/taskhive/pkg/config"
	"github.com/taskhive-ai/taskhive/pkg/environment"
	"github.com/taskhive-ai/taskhive/pkg/events"
	"github.com/taskhive-ai/taskhive/pkg/llm"
	"github.com/taskhive-ai/taskhive/pkg/models"
	"github.com/taskhive-ai/taskhive/pkg/notify"
	"github.com/taskhive-ai/taskhive/pkg/runtime"
	"github.com/taskhive-ai/taskhive/pkg/store"
	"github.com/taskhive-ai/taskhive/pkg/telemetry"
	"github.com/taskhive-ai/taskhive/pkg/workspace"
)

// ErrIntakeClosed indicates a request arrived while the swarm is shutting
// down or was never started.
var ErrIntakeClosed = errors.New("swarm is not accepting requests")

// ErrAgentNotFound indicates an agent ID unknown to the pool.
var ErrAgentNotFound = errors.New("agent not in pool")

// scaleProfile is the profile the autoscaler spawns from. Hybrids route
// between reactive and cognitive paths, so they can absorb any backlog.
const scaleProfile = "generalist"

// scaleUpQueueFactor: the autoscaler adds an agent when the queue holds more
// than this many tasks per live agent.
const scaleUpQueueFactor = 5

// Deps wires the coordinator into the rest of the system. Env, LLM, Store,
// Notifier, and Metrics may be nil; the coordinator degrades rather than
// failing.
type Deps struct {
	Config    *config.Config
	Bus       *events.Bus
	Runtime   *runtime.Runtime
	Env       *environment.Environment
	Workspace *workspace.Manager
	Tools     agent.ToolExecutor
	LLM       *llm.Client
	Store     store.Store
	Notifier  *notify.Service
	Metrics   *telemetry.Metrics
}

// RequestOptions tune one submitted request.
type RequestOptions struct {
	// Priority defaults to high: submitted requests outrank the subtasks
	// they decompose into.
	Priority models.TaskPriority

	// Project names the project directory. Derived from the request text
	// when empty.
	Project string
}

// assignment tracks one dispatched task.
type assignment struct {
	agentID  string
	deadline time.Time
}

// taskResult is one agent outcome queued for the result loop.
type taskResult struct {
	agentID string
	task    *models.Task
	result  map[string]any
	err     error
}

// Coordinator runs the swarm. One instance per process; Start spawns the
// control loops and Stop (or EmergencyStop) tears everything down.
type Coordinator struct {
	cfg      *config.SwarmConfig
	deps     Deps
	logger   *slog.Logger
	registry *taskRegistry
	queue    *taskQueue

	mu          sync.Mutex
	pool        map[string]*agent.BaseAgent
	assignments map[string]*assignment // task ID → live dispatch
	rootThreads map[string]string      // root task ID → notification thread
	intakeOpen  bool
	spawned     int // naming sequence for spawned agents

	resultCh chan taskResult
	stopCh   chan struct{}

	runCtx context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
	wg     sync.WaitGroup // intake goroutines

	stopOnce sync.Once

	// hostCPU feeds the autoscaler; swapped in tests to script decisions.
	hostCPU func() float64

	shutdownMu sync.Mutex
	onShutdown []func(context.Context)
}

var (
	_ agent.ResultSink = (*Coordinator)(nil)
	_ agent.StartSink  = (*Coordinator)(nil)
)

// New builds an idle coordinator. Call Start to bring the swarm up.
func New(deps Deps) *Coordinator {
	c := &Coordinator{
		cfg:         deps.Config.Swarm,
		deps:        deps,
		logger:      slog.Default().With("component", "coordinator"),
		registry:    newTaskRegistry(deps.Bus, deps.Store),
		queue:       newTaskQueue(deps.Config.Swarm.MaxQueueSize),
		pool:        make(map[string]*agent.BaseAgent),
		assignments: make(map[string]*assignment),
		rootThreads: make(map[string]string),
		resultCh:    make(chan taskResult, 64),
		stopCh:      make(chan struct{}),
	}
	c.hostCPU = func() float64 {
		if deps.Env == nil {
			return 0
		}
		return deps.Env.State().HostCPUPercent
	}
	return c
}

// Start restores checkpointed state when fault recovery is on, spawns the
// initial agent pool, opens intake, and launches the control loops.
func (c *Coordinator) Start(ctx context.Context) error {
	c.runCtx, c.cancel = context.WithCancel(ctx)

	if c.cfg.FaultRecoveryEnabled() {
		if err := c.restore(c.runCtx); err != nil {
			c.logger.Warn("Checkpoint restore failed, starting fresh", "error", err)
		}
	}

	if err := c.spawnInitialAgents(c.runCtx); err != nil {
		c.cancel()
		return err
	}

	c.mu.Lock()
	c.intakeOpen = true
	c.mu.Unlock()

	g, gctx := errgroup.WithContext(c.runCtx)
	c.group = g
	g.Go(func() error { c.schedulerLoop(gctx); return nil })
	g.Go(func() error { c.resultLoop(gctx); return nil })
	g.Go(func() error { c.monitorLoop(gctx); return nil })
	g.Go(func() error { c.balanceLoop(gctx); return nil })
	g.Go(func() error { c.autoscaleLoop(gctx); return nil })
	g.Go(func() error { c.checkpointLoop(gctx); return nil })
	g.Go(func() error { c.heartbeatLoop(gctx); return nil })

	c.logger.Info("Coordinator started",
		"agents", c.deps.Runtime.Count(),
		"queued", c.queue.Len(),
		"decomposition", c.cfg.DecompositionEnabled(),
		"validation", c.cfg.ValidationEnabled())
	return nil
}

// Stop drains the swarm: intake closes, in-flight work gets the configured
// grace window, loops and agents shut down, and a final checkpoint is
// written before the shutdown callbacks run.
func (c *Coordinator) Stop(ctx context.Context) {
	c.shutdown(ctx, false, "")
}

// EmergencyStop halts the swarm immediately: no drain, no grace. A final
// checkpoint is still attempted so the run can be restored and examined.
func (c *Coordinator) EmergencyStop(ctx context.Context, reason string) {
	c.shutdown(ctx, true, reason)
}

func (c *Coordinator) shutdown(ctx context.Context, emergency bool, reason string) {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		c.intakeOpen = false
		c.mu.Unlock()

		if emergency {
			c.logger.Error("Emergency stop", "reason", reason)
			c.deps.Bus.Publish(events.New(events.EventSwarmEmergency, "coordinator", map[string]any{
				"reason": reason,
			}))
			c.deps.Notifier.NotifyEmergencyStop(ctx, reason)
		} else {
			c.logger.Info("Coordinator stopping, intake closed",
				"in_flight", c.assignmentCount(), "queued", c.queue.Len())
			c.awaitDrain(ctx)
		}

		if c.cancel != nil {
			c.cancel()
		}
		if c.group != nil {
			_ = c.group.Wait()
		}
		c.wg.Wait()

		// Unblock agents mid-callback before waiting for their loops.
		close(c.stopCh)
		c.deps.Runtime.StopAll()

		if err := c.writeCheckpoint(context.WithoutCancel(ctx)); err != nil {
			c.logger.Error("Final checkpoint failed", "error", err)
		}

		c.shutdownMu.Lock()
		callbacks := append([]func(context.Context){}, c.onShutdown...)
		c.shutdownMu.Unlock()
		for i := len(callbacks) - 1; i >= 0; i-- {
			callbacks[i](ctx)
		}
		c.logger.Info("Coordinator stopped")
	})
}

// OnShutdown registers fn to run after the swarm has stopped. Callbacks run
// in reverse registration order, mirroring startup.
func (c *Coordinator) OnShutdown(fn func(context.Context)) {
	c.shutdownMu.Lock()
	defer c.shutdownMu.Unlock()
	c.onShutdown = append(c.onShutdown, fn)
}

// awaitDrain waits for in-flight and queued work to settle, bounded by the
// configured grace window.
func (c *Coordinator) awaitDrain(ctx context.Context) {
	grace := c.cfg.GracefulShutdownTimeout
	if grace <= 0 {
		return
	}
	deadline := time.NewTimer(grace)
	defer deadline.Stop()
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

	for {
		if c.assignmentCount() == 0 && c.queue.Len() == 0 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			c.logger.Warn("Shutdown grace expired",
				"in_flight", c.assignmentCount(), "queued", c.queue.Len())
			return
		case <-tick.C:
		}
	}
}

func (c *Coordinator) assignmentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.assignments)
}

// spawnInitialAgents builds the starting pool from the profile registry,
// profile counts first, topped up with generalists to InitialAgents.
func (c *Coordinator) spawnInitialAgents(ctx context.Context) error {
	profiles := c.deps.Config.ProfileRegistry
	total := 0
	if profiles != nil {
		for _, name := range profiles.Names() {
			profile, err := profiles.Get(name)
			if err != nil {
				continue
			}
			count := profile.Count
			if count <= 0 {
				count = 1
			}
			for i := 0; i < count; i++ {
				if _, err := c.spawnAgent(ctx, name, profile); err != nil {
					return fmt.Errorf("spawn initial %s agent: %w", name, err)
				}
				total++
			}
		}
	}
	for total < c.cfg.InitialAgents {
		if _, err := c.spawnAgent(ctx, scaleProfile, c.fallbackProfile()); err != nil {
			return fmt.Errorf("spawn fallback agent: %w", err)
		}
		total++
	}
	return nil
}

// fallbackProfile covers deployments whose configuration defines no
// profiles at all.
func (c *Coordinator) fallbackProfile() *config.AgentProfileConfig {
	if c.deps.Config.ProfileRegistry != nil {
		if profile, err := c.deps.Config.ProfileRegistry.Get(scaleProfile); err == nil {
			return profile
		}
	}
	return &config.AgentProfileConfig{
		Kind:         string(models.AgentKindHybrid),
		Capabilities: []string{"general"},
	}
}

// spawnAgent builds, registers, and starts one agent from a profile.
func (c *Coordinator) spawnAgent(ctx context.Context, profileName string, profile *config.AgentProfileConfig) (*agent.BaseAgent, error) {
	c.mu.Lock()
	c.spawned++
	name := fmt.Sprintf("%s-%d", profileName, c.spawned)
	c.mu.Unlock()

	deps := agent.Deps{
		Router:      c.deps.Runtime,
		Tools:       c.deps.Tools,
		LLM:         c.deps.LLM,
		Workspace:   c.deps.Workspace,
		Results:     c,
		BDIInterval: c.cfg.BDIInterval,
	}
	if c.deps.Env != nil {
		deps.Env = c.deps.Env
	}

	a, err := agent.New(name, profile, deps)
	if err != nil {
		return nil, err
	}
	if err := c.deps.Runtime.Register(a); err != nil {
		return nil, err
	}
	if err := c.deps.Runtime.StartAgent(ctx, a.ID()); err != nil {
		_ = c.deps.Runtime.Unregister(a.ID())
		return nil, err
	}

	c.mu.Lock()
	c.pool[a.ID()] = a
	c.mu.Unlock()
	return a, nil
}

// StopAgent retires one agent. Its in-flight tasks are requeued by the next
// monitor sweep; the autoscaler decides whether a replacement is needed.
func (c *Coordinator) StopAgent(id string) error {
	c.mu.Lock()
	_, ok := c.pool[id]
	delete(c.pool, id)
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}

	if err := c.deps.Runtime.StopAgent(id); err != nil {
		c.logger.Warn("Agent stop reported an error", "agent_id", id, "error", err)
	}
	return c.deps.Runtime.Unregister(id)
}

// HandleTaskResult implements agent.ResultSink. Outcomes are queued to the
// result loop so agent goroutines never block on coordinator work.
func (c *Coordinator) HandleTaskResult(agentID string, task *models.Task, result map[string]any, taskErr error) {
	select {
	case c.resultCh <- taskResult{agentID: agentID, task: task, result: result, err: taskErr}:
	case <-c.stopCh:
	}
}

// HandleTaskStarted implements agent.StartSink: the task moves to
// in-progress the moment its agent actually picks it up.
func (c *Coordinator) HandleTaskStarted(agentID string, task *models.Task) {
	c.mu.Lock()
	asg, ok := c.assignments[task.ID]
	c.mu.Unlock()
	if !ok || asg.agentID != agentID {
		return
	}
	if _, err := c.registry.markInProgress(c.opCtx(), task.ID); err != nil {
		c.logger.Debug("In-progress transition rejected", "task_id", task.ID, "error", err)
	}
}

// opCtx is the context for callback-driven writes: the run context once the
// coordinator has started, Background before that.
func (c *Coordinator) opCtx() context.Context {
	if c.runCtx != nil {
		return c.runCtx
	}
	return context.Background()
}

// recordValidation feeds a validation score back into the agent's rolling
// quality metric.
func (c *Coordinator) recordValidation(agentID string, score float64) {
	c.mu.Lock()
	a := c.pool[agentID]
	c.mu.Unlock()
	if a != nil {
		a.RecordValidation(score)
	}
}

// poolSnapshots returns a point-in-time view of the pool, sorted by name.
func (c *Coordinator) poolSnapshots() []models.AgentSnapshot {
	c.mu.Lock()
	agents := make([]*agent.BaseAgent, 0, len(c.pool))
	for _, a := range c.pool {
		agents = append(agents, a)
	}
	c.mu.Unlock()

	snaps := make([]models.AgentSnapshot, 0, len(agents))
	for _, a := range agents {
		snaps = append(snaps, a.Snapshot())
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Name < snaps[j].Name })
	return snaps
}

// Task returns one task from the ledger.
func (c *Coordinator) Task(id string) (*models.Task, error) {
	t, ok := c.registry.get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return t, nil
}

// Tasks lists the ledger, oldest first.
func (c *Coordinator) Tasks() []*models.Task {
	return c.registry.list()
}

// Subtasks lists the direct children of a task, oldest first.
func (c *Coordinator) Subtasks(id string) []*models.Task {
	return c.registry.children(id)
}

// CancelTask terminates a task that should not run (or keep running). A
// cancelled subtask fails its parent once the siblings settle.
func (c *Coordinator) CancelTask(ctx context.Context, id, reason string) error {
	if reason == "" {
		reason = "cancelled by operator"
	}
	if _, err := c.registry.cancel(ctx, id, reason); err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.assignments, id)
	c.mu.Unlock()
	c.onTaskTerminal(ctx, id)
	return nil
}

// AgentSnapshots lists the pool, sorted by name.
func (c *Coordinator) AgentSnapshots() []models.AgentSnapshot {
	return c.poolSnapshots()
}

// AgentSnapshot returns one agent's point-in-time view.
func (c *Coordinator) AgentSnapshot(id string) (models.AgentSnapshot, error) {
	c.mu.Lock()
	a, ok := c.pool[id]
	c.mu.Unlock()
	if !ok {
		return models.AgentSnapshot{}, fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}
	return a.Snapshot(), nil
}

// Stats summarises the swarm for health endpoints and reports.
func (c *Coordinator) Stats() map[string]any {
	stats := map[string]any{
		"agents":       len(c.poolSnapshots()),
		"queued_tasks": c.queue.Len(),
		"in_flight":    c.assignmentCount(),
		"tasks":        c.registry.counts(),
	}
	if c.deps.Env != nil {
		state := c.deps.Env.State()
		stats["host_cpu_percent"] = state.HostCPUPercent
		stats["host_memory_percent"] = state.HostMemoryPercent
		stats["environment_tick"] = state.Tick
	}
	return stats
}
