package swarm

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskhive-ai/taskhive/pkg/config"
	"github.com/taskhive-ai/taskhive/pkg/events"
	"github.com/taskhive-ai/taskhive/pkg/models"
	"github.com/taskhive-ai/taskhive/pkg/runtime"
	"github.com/taskhive-ai/taskhive/pkg/store"
	"github.com/taskhive-ai/taskhive/pkg/workspace"
)

// liveConfig tunes the swarm for tests: two reactive workers, tight loop
// intervals, and the LLM-dependent stages off so the lifecycle is
// deterministic.
func liveConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	swarm := config.DefaultSwarmConfig()
	swarm.InitialAgents = 2
	swarm.MinAgents = 1
	swarm.MaxAgents = 4
	swarm.BDIInterval = 20 * time.Millisecond
	swarm.SchedulerInterval = 10 * time.Millisecond
	swarm.SchedulerJitter = 0
	swarm.MonitorInterval = 50 * time.Millisecond
	swarm.LoadBalanceInterval = time.Hour
	swarm.AutoscaleInterval = time.Hour
	swarm.CheckpointInterval = time.Hour
	swarm.HeartbeatInterval = time.Hour
	swarm.TaskTimeout = 5 * time.Second
	swarm.GracefulShutdownTimeout = 2 * time.Second
	swarm.EnableTaskDecomposition = config.BoolPtr(false)
	swarm.EnableValidation = config.BoolPtr(false)
	swarm.EnableLoadBalancing = config.BoolPtr(false)
	swarm.EnableAutoScaling = config.BoolPtr(false)

	return &config.Config{
		Swarm: swarm,
		Workspace: &config.WorkspaceConfig{
			Root:       filepath.Join(dir, "workspaces"),
			StateDir:   filepath.Join(dir, "state"),
			ReportsDir: filepath.Join(dir, "reports"),
		},
		ProfileRegistry: config.NewAgentProfileRegistry(map[string]*config.AgentProfileConfig{
			"worker": {
				Kind:         string(models.AgentKindReactive),
				Capabilities: []string{"general", "monitoring"},
				Count:        2,
			},
		}),
	}
}

func startSwarm(t *testing.T, cfg *config.Config) (*Coordinator, *store.Memory) {
	t.Helper()
	bus := events.NewBus()
	t.Cleanup(bus.Close)

	ws, err := workspace.NewManager(cfg.Workspace)
	require.NoError(t, err)
	st := store.NewMemory()
	rt := runtime.New(bus, nil)

	c := New(Deps{
		Config:    cfg,
		Bus:       bus,
		Runtime:   rt,
		Workspace: ws,
		Store:     st,
	})
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { c.Stop(context.Background()) })
	return c, st
}

func TestCoordinator_RequestLifecycle(t *testing.T) {
	c, st := startSwarm(t, liveConfig(t))
	ctx := context.Background()

	id, err := c.ProcessRequest(ctx, "watch the build and report anomalies", RequestOptions{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		task, taskErr := c.Task(id)
		return taskErr == nil && task.Status == models.TaskStatusCompleted
	}, 5*time.Second, 10*time.Millisecond, "request should complete end to end")

	task, err := c.Task(id)
	require.NoError(t, err)
	assert.NotEmpty(t, task.AssignedTo)
	assert.NotNil(t, task.StartedAt)
	assert.NotNil(t, task.CompletedAt)
	assert.Equal(t, "reactive", task.Result["handled_by"])

	// The completion report lands on disk and in the index.
	require.Eventually(t, func() bool {
		reports, repErr := st.Reports(ctx, id)
		return repErr == nil && len(reports) == 1
	}, 3*time.Second, 10*time.Millisecond)
	reports, err := st.Reports(ctx, id)
	require.NoError(t, err)
	_, err = os.Stat(reports[0].Path)
	require.NoError(t, err, "report file exists")

	stats := c.Stats()
	assert.Equal(t, 2, stats["agents"])
}

func TestCoordinator_PriorityDefaultsAndProjectDir(t *testing.T) {
	cfg := liveConfig(t)
	c, _ := startSwarm(t, cfg)
	ctx := context.Background()

	id, err := c.ProcessRequest(ctx, "organise the release notes", RequestOptions{Project: "release-notes"})
	require.NoError(t, err)

	task, err := c.Task(id)
	require.NoError(t, err)
	assert.Equal(t, models.PriorityHigh, task.Priority, "requests default to high priority")

	projectDir, _ := task.Payload["project_dir"].(string)
	require.NotEmpty(t, projectDir)
	assert.Equal(t, "release-notes", filepath.Base(projectDir))
	info, err := os.Stat(projectDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestCoordinator_CancelTask(t *testing.T) {
	cfg := liveConfig(t)
	// Freeze the scheduler so the task stays queued.
	cfg.Swarm.SchedulerInterval = time.Hour
	c, _ := startSwarm(t, cfg)
	ctx := context.Background()

	id, err := c.ProcessRequest(ctx, "work that gets pulled", RequestOptions{})
	require.NoError(t, err)

	require.NoError(t, c.CancelTask(ctx, id, ""))
	task, err := c.Task(id)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusCancelled, task.Status)

	assert.ErrorIs(t, c.CancelTask(ctx, "missing", ""), ErrTaskNotFound)
}

func TestCoordinator_StopClosesIntake(t *testing.T) {
	c, st := startSwarm(t, liveConfig(t))
	ctx := context.Background()

	c.Stop(ctx)
	c.Stop(ctx) // idempotent

	_, err := c.ProcessRequest(ctx, "too late", RequestOptions{})
	require.ErrorIs(t, err, ErrIntakeClosed)

	for _, snap := range c.AgentSnapshots() {
		assert.Equal(t, models.AgentStatusStopped, snap.Status)
	}

	// Shutdown leaves a final checkpoint behind.
	checkpoints, err := st.Checkpoints(ctx, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, checkpoints)
}

func TestCoordinator_EmergencyStop(t *testing.T) {
	c, _ := startSwarm(t, liveConfig(t))
	ctx := context.Background()
	sub := c.deps.Bus.Subscribe(64)
	defer c.deps.Bus.Unsubscribe(sub)

	c.EmergencyStop(ctx, "resource runaway")

	_, err := c.ProcessRequest(ctx, "never admitted", RequestOptions{})
	require.ErrorIs(t, err, ErrIntakeClosed)

	deadline := time.After(3 * time.Second)
	for {
		select {
		case evt := <-sub.C:
			if evt.Type != events.EventSwarmEmergency {
				continue
			}
			assert.Equal(t, "resource runaway", evt.Data["reason"])
			return
		case <-deadline:
			t.Fatal("no emergency event observed")
		}
	}
}

func TestCoordinator_ShutdownCallbacksReversed(t *testing.T) {
	c, _ := startSwarm(t, liveConfig(t))

	var order []string
	c.OnShutdown(func(context.Context) { order = append(order, "first registered") })
	c.OnShutdown(func(context.Context) { order = append(order, "second registered") })

	c.Stop(context.Background())
	assert.Equal(t, []string{"second registered", "first registered"}, order)
}

func TestCoordinator_StopAgentUnknown(t *testing.T) {
	c := bareCoordinator(t)
	assert.ErrorIs(t, c.StopAgent("nobody"), ErrAgentNotFound)
}

func TestCoordinator_AgentAccessors(t *testing.T) {
	c, _ := startSwarm(t, liveConfig(t))

	snaps := c.AgentSnapshots()
	require.Len(t, snaps, 2)
	assert.Equal(t, "worker-1", snaps[0].Name)
	assert.Equal(t, "worker-2", snaps[1].Name)
	assert.Equal(t, models.AgentKindReactive, snaps[0].Kind)

	one, err := c.AgentSnapshot(snaps[0].ID)
	require.NoError(t, err)
	assert.Equal(t, snaps[0].Name, one.Name)

	_, err = c.AgentSnapshot("missing")
	assert.ErrorIs(t, err, ErrAgentNotFound)
}
