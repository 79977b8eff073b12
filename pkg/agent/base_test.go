package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskhive-ai/taskhive/pkg/config"
	"github.com/taskhive-ai/taskhive/pkg/models"
)

// scriptReasoner lets each test script exactly the strategy behavior it
// needs. Nil hooks behave as no-ops.
type scriptReasoner struct {
	deliberate func(a *BaseAgent, stimuli []Stimulus) []Intention
	act        func(a *BaseAgent, intentions []Intention) (any, error)
	task       func(a *BaseAgent, task *models.Task) (map[string]any, error)
	message    func(a *BaseAgent, msg *models.Message) (any, error)
}

func (s *scriptReasoner) Deliberate(_ context.Context, a *BaseAgent, stimuli []Stimulus) []Intention {
	if s.deliberate == nil {
		return nil
	}
	return s.deliberate(a, stimuli)
}

func (s *scriptReasoner) Act(_ context.Context, a *BaseAgent, intentions []Intention) (any, error) {
	if s.act == nil {
		return nil, nil
	}
	return s.act(a, intentions)
}

func (s *scriptReasoner) HandleTask(_ context.Context, a *BaseAgent, task *models.Task) (map[string]any, error) {
	if s.task == nil {
		return map[string]any{"ok": true}, nil
	}
	return s.task(a, task)
}

func (s *scriptReasoner) HandleMessage(_ context.Context, a *BaseAgent, msg *models.Message) (any, error) {
	if s.message == nil {
		return nil, nil
	}
	return s.message(a, msg)
}

// fakeEnv records executed actions and serves a canned observation.
type fakeEnv struct {
	mu       sync.Mutex
	obs      map[string]any
	deny     bool
	details  map[string]any
	executed []models.Action
	releases int
}

func (f *fakeEnv) Observe(string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.obs
}

func (f *fakeEnv) ExecuteAction(_ string, action models.Action) (bool, map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executed = append(f.executed, action)
	return !f.deny, f.details
}

func (f *fakeEnv) ReleaseAll(string) map[models.ResourceKind]float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releases++
	return nil
}

func (f *fakeEnv) executedActions() []models.Action {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Action(nil), f.executed...)
}

func (f *fakeEnv) releaseCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.releases
}

// fakeRouter records sent messages.
type fakeRouter struct {
	mu   sync.Mutex
	sent []*models.Message
	err  error
}

func (f *fakeRouter) SendMessage(msg *models.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return f.err
}

func (f *fakeRouter) messages() []*models.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*models.Message(nil), f.sent...)
}

// fakeTools serves canned results by tool name.
type fakeTools struct {
	mu      sync.Mutex
	results map[string]models.ToolResult
	calls   []string
}

func (f *fakeTools) Execute(_ context.Context, name string, _ map[string]any) models.ToolResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	if res, ok := f.results[name]; ok {
		return res
	}
	return models.ToolResult{Success: false, Error: "tool not found: " + name}
}

// sinkCall is one recorded task outcome.
type sinkCall struct {
	agentID string
	task    *models.Task
	result  map[string]any
	err     error
}

// recordSink captures task outcomes on a channel so tests can wait without
// polling.
type recordSink struct {
	calls chan sinkCall
}

func newRecordSink() *recordSink {
	return &recordSink{calls: make(chan sinkCall, 16)}
}

func (r *recordSink) HandleTaskResult(agentID string, task *models.Task, result map[string]any, taskErr error) {
	r.calls <- sinkCall{agentID: agentID, task: task, result: result, err: taskErr}
}

func (r *recordSink) wait(t *testing.T) sinkCall {
	t.Helper()
	select {
	case call := <-r.calls:
		return call
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for a task result")
		return sinkCall{}
	}
}

func testProfile(kind models.AgentKind, capabilities ...string) *config.AgentProfileConfig {
	return &config.AgentProfileConfig{
		Kind:         string(kind),
		Capabilities: capabilities,
	}
}

// newTestAgent builds an unstarted agent around the given reasoner.
func newTestAgent(t *testing.T, reasoner Reasoner, deps Deps) *BaseAgent {
	t.Helper()
	a := NewBaseAgent("worker-1", testProfile(models.AgentKindHybrid, "testing"), reasoner, deps)
	t.Cleanup(a.Stop)
	return a
}

// startTestAgent builds and starts an agent with a fast deliberation cadence.
func startTestAgent(t *testing.T, reasoner Reasoner, deps Deps) *BaseAgent {
	t.Helper()
	if deps.BDIInterval == 0 {
		deps.BDIInterval = 20 * time.Millisecond
	}
	a := newTestAgent(t, reasoner, deps)
	require.NoError(t, a.Start(context.Background()))
	return a
}

func TestBaseAgent_Lifecycle(t *testing.T) {
	a := newTestAgent(t, &scriptReasoner{}, Deps{})

	assert.Equal(t, models.AgentStatusIdle, a.Status())
	assert.NotEmpty(t, a.ID())
	assert.Equal(t, "worker-1", a.Name())
	assert.Equal(t, models.AgentKindHybrid, a.Kind())
	assert.Contains(t, a.Desires(), "complete-assigned-tasks")
	assert.Contains(t, a.Desires(), "apply-testing")

	require.NoError(t, a.Start(context.Background()))
	assert.ErrorIs(t, a.Start(context.Background()), ErrAlreadyStarted)

	a.Stop()
	assert.Equal(t, models.AgentStatusStopped, a.Status())

	// Stop is terminal.
	assert.ErrorIs(t, a.Start(context.Background()), ErrAgentStopped)
	assert.ErrorIs(t, a.Deliver(models.NewMessage(models.PerformativeInform, "x", a.ID(), nil)), ErrAgentStopped)
	assert.ErrorIs(t, a.Submit(models.NewTask(models.TaskTypeGeneral, models.PriorityLow, "late")), ErrAgentStopped)

	// Stop again is a no-op.
	a.Stop()
}

func TestBaseAgent_StopWithoutStart(t *testing.T) {
	a := NewBaseAgent("idle", testProfile(models.AgentKindReactive), &scriptReasoner{}, Deps{})
	a.Stop()
	assert.Equal(t, models.AgentStatusStopped, a.Status())
}

func TestBaseAgent_ContextCancelStopsLoop(t *testing.T) {
	a := newTestAgent(t, &scriptReasoner{}, Deps{})
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, a.Start(ctx))

	cancel()
	require.Eventually(t, func() bool {
		return a.Status() == models.AgentStatusStopped
	}, 3*time.Second, 10*time.Millisecond)
}

func TestBaseAgent_TaskLifecycle(t *testing.T) {
	env := &fakeEnv{}
	sink := newRecordSink()
	reasoner := &scriptReasoner{
		task: func(_ *BaseAgent, task *models.Task) (map[string]any, error) {
			return map[string]any{"echo": task.Description}, nil
		},
	}
	a := startTestAgent(t, reasoner, Deps{Env: env, Results: sink})

	task := models.NewTask(models.TaskTypeGeneral, models.PriorityMedium, "say hello")
	require.NoError(t, a.Submit(task))

	call := sink.wait(t)
	assert.Equal(t, a.ID(), call.agentID)
	assert.Equal(t, task.ID, call.task.ID)
	require.NoError(t, call.err)
	assert.Equal(t, "say hello", call.result["echo"])

	require.Eventually(t, func() bool {
		return a.Metrics().TasksCompleted == 1
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, a.Metrics().TasksFailed)
	assert.Equal(t, 1, env.releaseCount(), "holdings are released after the task")

	require.Eventually(t, func() bool {
		return a.Status() == models.AgentStatusIdle
	}, 3*time.Second, 10*time.Millisecond)
}

func TestBaseAgent_TaskFailureCountsAndReports(t *testing.T) {
	sink := newRecordSink()
	boom := errors.New("solver exploded")
	reasoner := &scriptReasoner{
		task: func(*BaseAgent, *models.Task) (map[string]any, error) {
			return nil, boom
		},
	}
	a := startTestAgent(t, reasoner, Deps{Results: sink})

	require.NoError(t, a.Submit(models.NewTask(models.TaskTypeGeneral, models.PriorityLow, "doomed")))

	call := sink.wait(t)
	assert.ErrorIs(t, call.err, boom)

	require.Eventually(t, func() bool {
		m := a.Metrics()
		return m.TasksFailed == 1 && m.Errors == 1
	}, 3*time.Second, 10*time.Millisecond)

	// The loop survives: a second task still runs.
	require.NoError(t, a.Submit(models.NewTask(models.TaskTypeGeneral, models.PriorityLow, "next")))
	sink.wait(t)
}

func TestBaseAgent_MessageUpdatesBeliefs(t *testing.T) {
	a := startTestAgent(t, &scriptReasoner{}, Deps{})

	content := map[string]any{"greeting": "hello", "from": "agent-0"}
	require.NoError(t, a.Deliver(models.NewMessage(models.PerformativeInform, "agent-0", a.ID(), content)))

	require.Eventually(t, func() bool {
		got, ok := a.Beliefs().Get("last_message")
		return ok && got["greeting"] == "hello"
	}, 3*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, a.Metrics().MessagesProcessed)
}

func TestBaseAgent_MessageActionsDispatched(t *testing.T) {
	router := &fakeRouter{}
	reasoner := &scriptReasoner{
		message: func(_ *BaseAgent, msg *models.Message) (any, error) {
			return models.Action{
				Type: models.ActionSendMessage,
				Params: map[string]any{
					"receiver":    msg.Sender,
					"in_reply_to": msg.ID,
					"content":     map[string]any{"ack": true},
				},
			}, nil
		},
	}
	a := startTestAgent(t, reasoner, Deps{Router: router})

	msg := models.NewMessage(models.PerformativeRequest, "agent-0", a.ID(), map[string]any{"do": "it"})
	require.NoError(t, a.Deliver(msg))

	require.Eventually(t, func() bool {
		return len(router.messages()) == 1
	}, 3*time.Second, 10*time.Millisecond)

	sent := router.messages()[0]
	assert.Equal(t, "agent-0", sent.Receiver)
	assert.Equal(t, a.ID(), sent.Sender)
	assert.Equal(t, msg.ID, sent.InReplyTo)
	assert.Equal(t, models.PerformativeInform, sent.Performative)
}

func TestBaseAgent_MessageHandlerErrorSurvives(t *testing.T) {
	reasoner := &scriptReasoner{
		message: func(*BaseAgent, *models.Message) (any, error) {
			return nil, errors.New("cannot interpret")
		},
	}
	a := startTestAgent(t, reasoner, Deps{})

	require.NoError(t, a.Deliver(models.NewMessage(models.PerformativeInform, "x", a.ID(), nil)))

	require.Eventually(t, func() bool {
		m := a.Metrics()
		return m.MessagesProcessed == 1 && m.Errors == 1
	}, 3*time.Second, 10*time.Millisecond)
	assert.NotEqual(t, models.AgentStatusStopped, a.Status())
}

func TestBaseAgent_BDICycleRaisesAlert(t *testing.T) {
	env := &fakeEnv{obs: map[string]any{
		"state": map[string]any{
			"host_cpu_percent":    95.0,
			"host_memory_percent": 40.0,
		},
	}}
	reactive := NewReactive(DefaultRules([]string{"monitoring"})...)
	a := startTestAgent(t, reactive, Deps{Env: env})

	require.Eventually(t, func() bool {
		alert, ok := a.Beliefs().Get("alert")
		return ok && alert["level"] == "warning" && alert["metric"] == "host_cpu_percent"
	}, 3*time.Second, 10*time.Millisecond)

	state, ok := a.Beliefs().Get("environment_state")
	require.True(t, ok)
	assert.Equal(t, 95.0, state["host_cpu_percent"])
}

func TestBaseAgent_ExecuteToolCall(t *testing.T) {
	tools := &fakeTools{results: map[string]models.ToolResult{
		"calculator": {Success: true, Data: map[string]any{"answer": 42.0}},
	}}
	a := newTestAgent(t, &scriptReasoner{}, Deps{Tools: tools})

	a.Execute(context.Background(), models.Action{
		Type:   models.ActionToolCall,
		Params: map[string]any{"tool": "calculator", "params": map[string]any{"expr": "6*7"}},
	})

	result, ok := a.Beliefs().Get("last_calculator_result")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"answer": 42.0}, result)

	success, ok := a.Beliefs().Get("last_calculator_success")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"value": true}, success)
	assert.False(t, a.Beliefs().Has("last_calculator_error"))
}

func TestBaseAgent_ExecuteToolCallFailure(t *testing.T) {
	tools := &fakeTools{}
	a := newTestAgent(t, &scriptReasoner{}, Deps{Tools: tools})

	a.Execute(context.Background(), models.Action{
		Type:   models.ActionToolCall,
		Params: map[string]any{"tool": "missing"},
	})

	errBelief, ok := a.Beliefs().Get("last_missing_error")
	require.True(t, ok)
	assert.Contains(t, errBelief["value"], "tool not found")

	success, _ := a.Beliefs().Get("last_missing_success")
	assert.Equal(t, map[string]any{"value": false}, success)
}

func TestBaseAgent_ExecuteToolCallMissingName(t *testing.T) {
	a := newTestAgent(t, &scriptReasoner{}, Deps{Tools: &fakeTools{}})

	a.Execute(context.Background(), models.Action{Type: models.ActionToolCall, Params: map[string]any{}})
	assert.Equal(t, 1, a.Metrics().Errors)
}

func TestBaseAgent_ExecuteEnvironmentAction(t *testing.T) {
	env := &fakeEnv{deny: true, details: map[string]any{"error": "constraint violated"}}
	a := newTestAgent(t, &scriptReasoner{}, Deps{Env: env})

	a.Execute(context.Background(), models.Action{
		Type:   models.ActionAllocateResource,
		Params: map[string]any{"cpu": 2},
	})

	require.Len(t, env.executedActions(), 1)
	last, ok := a.Beliefs().Get("last_environment_action")
	require.True(t, ok)
	assert.Equal(t, false, last["success"])
	assert.Equal(t, "allocate_resource", last["type"])

	// A denied action is data, not a failure of the loop.
	assert.Equal(t, 0, a.Metrics().Errors)
}

func TestBaseAgent_ExecuteUpdateBelief(t *testing.T) {
	a := newTestAgent(t, &scriptReasoner{}, Deps{})

	a.Execute(context.Background(), models.Action{
		Type:   models.ActionUpdateBelief,
		Params: map[string]any{"key": "mood", "value": "optimistic"},
	})

	mood, ok := a.Beliefs().Get("mood")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"value": "optimistic"}, mood)
}

func TestBaseAgent_ExecuteUnknownTypeIgnored(t *testing.T) {
	a := newTestAgent(t, &scriptReasoner{}, Deps{})

	a.Execute(context.Background(), models.Action{Type: "teleport", Params: map[string]any{}})
	assert.Equal(t, 0, a.Metrics().Errors, "unknown action types are logged and skipped")
}

func TestBaseAgent_SnapshotAndValidationMean(t *testing.T) {
	a := newTestAgent(t, &scriptReasoner{}, Deps{})

	a.RecordValidation(80)
	a.RecordValidation(90)
	a.RecordValidation(100)

	snap := a.Snapshot()
	assert.Equal(t, a.ID(), snap.ID)
	assert.InDelta(t, 90.0, snap.Metrics.AvgValidation, 1e-9)
	assert.Equal(t, 0, snap.ActiveTasks)
	assert.Equal(t, models.AgentStatusIdle, snap.Status)
}

func TestBaseAgent_QueuedWorkObservableInSnapshot(t *testing.T) {
	a := newTestAgent(t, &scriptReasoner{}, Deps{})

	require.NoError(t, a.Submit(models.NewTask(models.TaskTypeGeneral, models.PriorityLow, "queued")))
	require.NoError(t, a.Deliver(models.NewMessage(models.PerformativeInform, "x", a.ID(), nil)))

	snap := a.Snapshot()
	assert.Equal(t, 1, snap.QueuedTasks)
	assert.Equal(t, 1, snap.MailboxDepth)
}

// startSink extends recordSink with the optional start notification.
type startSink struct {
	*recordSink
	started chan string // task IDs in start order
}

func newStartSink() *startSink {
	return &startSink{recordSink: newRecordSink(), started: make(chan string, 16)}
}

func (s *startSink) HandleTaskStarted(_ string, task *models.Task) {
	s.started <- task.ID
}

func TestBaseAgent_StartSinkNotifiedBeforeResult(t *testing.T) {
	sink := newStartSink()
	a := startTestAgent(t, &scriptReasoner{}, Deps{Results: sink})

	task := models.NewTask(models.TaskTypeGeneral, models.PriorityMedium, "observed")
	require.NoError(t, a.Submit(task))

	select {
	case id := <-sink.started:
		assert.Equal(t, task.ID, id)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for the start notification")
	}
	sink.wait(t)
}

func TestBaseAgent_StealTask(t *testing.T) {
	// The agent is never started, so queued tasks stay queued.
	a := newTestAgent(t, &scriptReasoner{}, Deps{})

	first := models.NewTask(models.TaskTypeGeneral, models.PriorityLow, "first")
	second := models.NewTask(models.TaskTypeGeneral, models.PriorityLow, "second")
	require.NoError(t, a.Submit(first))
	require.NoError(t, a.Submit(second))

	// The newest queued task goes; the one about to run stays.
	stolen := a.StealTask()
	require.NotNil(t, stolen)
	assert.Equal(t, second.ID, stolen.ID)
	assert.Equal(t, 1, a.Snapshot().QueuedTasks)

	require.NotNil(t, a.StealTask())
	assert.Nil(t, a.StealTask())
}

func TestNew_BuildsReasonerByKind(t *testing.T) {
	for _, kind := range []models.AgentKind{
		models.AgentKindReactive, models.AgentKindCognitive, models.AgentKindHybrid,
	} {
		t.Run(string(kind), func(t *testing.T) {
			a, err := New("worker", testProfile(kind, "testing"), Deps{})
			require.NoError(t, err)
			t.Cleanup(a.Stop)
			assert.Equal(t, kind, a.Kind())
		})
	}

	_, err := New("worker", &config.AgentProfileConfig{Kind: "psychic"}, Deps{})
	assert.ErrorIs(t, err, ErrUnknownAgentKind)
}
