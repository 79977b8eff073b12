// Package e2e boots complete swarms against a scripted LLM backend and
// exercises the scenarios operators actually see: request intake and
// decomposition, agent messaging, resource governance, retry after model
// trouble, and autoscaling under load.
package e2e

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/taskhive-ai/taskhive/pkg/config"
	"github.com/taskhive-ai/taskhive/pkg/environment"
	"github.com/taskhive-ai/taskhive/pkg/events"
	"github.com/taskhive-ai/taskhive/pkg/llm"
	"github.com/taskhive-ai/taskhive/pkg/models"
	"github.com/taskhive-ai/taskhive/pkg/runtime"
	"github.com/taskhive-ai/taskhive/pkg/store"
	"github.com/taskhive-ai/taskhive/pkg/swarm"
	"github.com/taskhive-ai/taskhive/pkg/telemetry"
	"github.com/taskhive-ai/taskhive/pkg/tools"
	"github.com/taskhive-ai/taskhive/pkg/workspace"
)

// hive is one fully wired swarm under test.
type hive struct {
	Config      *config.Config
	Bus         *events.Bus
	Runtime     *runtime.Runtime
	Env         *environment.Environment
	Workspace   *workspace.Manager
	Store       *store.Memory
	Coordinator *swarm.Coordinator
}

type hiveOptions struct {
	swarm    func(*config.SwarmConfig)
	profiles map[string]*config.AgentProfileConfig
	llm      *llm.Client
	env      bool
	sampler  environment.HostSampler
}

type hiveOption func(*hiveOptions)

// withSwarm tweaks the swarm configuration after the fast test defaults are
// applied.
func withSwarm(fn func(*config.SwarmConfig)) hiveOption {
	return func(o *hiveOptions) { o.swarm = fn }
}

// withProfiles replaces the default reactive worker pair.
func withProfiles(profiles map[string]*config.AgentProfileConfig) hiveOption {
	return func(o *hiveOptions) { o.profiles = profiles }
}

// withLLM wires a model client, usually from startLLM.
func withLLM(client *llm.Client) hiveOption {
	return func(o *hiveOptions) { o.llm = client }
}

// withEnvironment wires the simulated environment. A non-nil sampler
// replaces the host metrics source before the dynamics loop starts.
func withEnvironment(sampler environment.HostSampler) hiveOption {
	return func(o *hiveOptions) {
		o.env = true
		o.sampler = sampler
	}
}

// fakeSampler reports fixed host utilization.
type fakeSampler struct {
	cpu, mem float64
}

func (f fakeSampler) Sample() (float64, float64, error) { return f.cpu, f.mem, nil }

// startHive boots a coordinator with tight loop intervals, an in-memory
// store, and a workspace under the test's temp dir. Loops a scenario does
// not exercise are frozen so the lifecycle stays deterministic.
func startHive(t *testing.T, opts ...hiveOption) *hive {
	t.Helper()
	o := &hiveOptions{}
	for _, opt := range opts {
		opt(o)
	}

	dir := t.TempDir()
	swarmCfg := config.DefaultSwarmConfig()
	swarmCfg.InitialAgents = 2
	swarmCfg.MinAgents = 1
	swarmCfg.MaxAgents = 4
	swarmCfg.BDIInterval = 20 * time.Millisecond
	swarmCfg.SchedulerInterval = 10 * time.Millisecond
	swarmCfg.SchedulerJitter = 0
	swarmCfg.MonitorInterval = 50 * time.Millisecond
	swarmCfg.LoadBalanceInterval = time.Hour
	swarmCfg.AutoscaleInterval = time.Hour
	swarmCfg.CheckpointInterval = time.Hour
	swarmCfg.HeartbeatInterval = 25 * time.Millisecond
	swarmCfg.TaskTimeout = 10 * time.Second
	swarmCfg.GracefulShutdownTimeout = 2 * time.Second
	swarmCfg.MaxRetries = 2
	swarmCfg.EnableTaskDecomposition = config.BoolPtr(false)
	swarmCfg.EnableValidation = config.BoolPtr(false)
	swarmCfg.EnableLoadBalancing = config.BoolPtr(false)
	swarmCfg.EnableAutoScaling = config.BoolPtr(false)
	if o.swarm != nil {
		o.swarm(swarmCfg)
	}

	envCfg := config.DefaultEnvironmentConfig()
	envCfg.UpdateInterval = 10 * time.Millisecond
	envCfg.CongestionAmplitude = 0

	profiles := o.profiles
	if profiles == nil {
		profiles = map[string]*config.AgentProfileConfig{
			"worker": {
				Kind:         string(models.AgentKindReactive),
				Capabilities: []string{"general"},
				Count:        2,
			},
		}
	}

	cfg := &config.Config{
		Swarm:       swarmCfg,
		Environment: envCfg,
		Workspace: &config.WorkspaceConfig{
			Root:       filepath.Join(dir, "workspaces"),
			StateDir:   filepath.Join(dir, "state"),
			ReportsDir: filepath.Join(dir, "reports"),
		},
		ProfileRegistry: config.NewAgentProfileRegistry(profiles),
	}

	bus := events.NewBus()
	t.Cleanup(bus.Close)

	var env *environment.Environment
	var world runtime.World
	if o.env {
		env = environment.New(envCfg, bus)
		if o.sampler != nil {
			env.SetSampler(o.sampler)
		}
		env.Start()
		t.Cleanup(env.Stop)
		world = env
	}

	ws, err := workspace.NewManager(cfg.Workspace)
	require.NoError(t, err)
	st := store.NewMemory()
	rt := runtime.New(bus, world)

	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(tools.NewFilesystemTool(ws)))
	require.NoError(t, registry.Register(tools.NewGitTool(ws)))

	c := swarm.New(swarm.Deps{
		Config:    cfg,
		Bus:       bus,
		Runtime:   rt,
		Env:       env,
		Workspace: ws,
		Tools:     registry,
		LLM:       o.llm,
		Store:     st,
		Metrics:   telemetry.New(),
	})
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { c.Stop(context.Background()) })

	return &hive{
		Config:      cfg,
		Bus:         bus,
		Runtime:     rt,
		Env:         env,
		Workspace:   ws,
		Store:       st,
		Coordinator: c,
	}
}

// waitCompleted blocks until the task reaches completed, failing the test on
// any other terminal status.
func (h *hive) waitCompleted(t *testing.T, taskID string, within time.Duration) *models.Task {
	t.Helper()
	var last *models.Task
	require.Eventually(t, func() bool {
		task, err := h.Coordinator.Task(taskID)
		if err != nil {
			return false
		}
		last = task
		if task.Status.IsTerminal() {
			require.Equal(t, models.TaskStatusCompleted, task.Status,
				"task %s ended %s: %s", taskID, task.Status, task.Error)
			return true
		}
		return false
	}, within, 10*time.Millisecond, "task %s did not finish", taskID)
	return last
}

// collectEvents drains every buffered event matching the type.
func collectEvents(sub *events.Subscription, eventType string) []events.Event {
	var out []events.Event
	for {
		select {
		case evt, ok := <-sub.C:
			if !ok {
				return out
			}
			if evt.Type == eventType {
				out = append(out, evt)
			}
		default:
			return out
		}
	}
}
