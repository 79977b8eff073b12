package agent

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/taskhive-ai/taskhive/pkg/config"
	"github.com/taskhive-ai/taskhive/pkg/events"
	"github.com/taskhive-ai/taskhive/pkg/llm"
	"github.com/taskhive-ai/taskhive/pkg/models"
	"github.com/taskhive-ai/taskhive/pkg/workspace"
)

var (
	// ErrAgentStopped is returned when work is handed to a stopped agent.
	ErrAgentStopped = errors.New("agent is stopped")
	// ErrAlreadyStarted is returned by Start on a running agent.
	ErrAlreadyStarted = errors.New("agent already started")
	// ErrUnknownAgentKind is returned by the factory for an unrecognized kind.
	ErrUnknownAgentKind = errors.New("unknown agent kind")
)

// DefaultBDIInterval is the deliberation cadence when none is configured.
const DefaultBDIInterval = 5 * time.Second

// loopTick bounds how long the control loop sleeps between wakeups so BDI
// deadlines are noticed even when no messages or tasks arrive.
const loopTick = 1 * time.Second

// Deps wires a BaseAgent to the rest of the system. Every field is optional:
// a nil dependency disables the behaviors that need it, which keeps agents
// testable in isolation.
type Deps struct {
	Env       Environment
	Router    MessageRouter
	Tools     ToolExecutor
	LLM       *llm.Client
	Workspace *workspace.Manager
	Results   ResultSink

	// BDIInterval overrides the deliberation cadence. Zero means
	// DefaultBDIInterval.
	BDIInterval time.Duration
}

// BaseAgent owns the control loop, mailbox, task queue, and BDI state shared
// by every agent kind. The reasoner supplies the per-kind thinking.
//
// One goroutine runs the loop, so a perceive → deliberate → act cycle is
// atomic with respect to everything else the agent does: beliefs never
// change under a deliberation in progress.
type BaseAgent struct {
	id           string
	name         string
	kind         models.AgentKind
	capabilities []string

	reasoner    Reasoner
	deps        Deps
	bdiInterval time.Duration

	beliefs *Beliefs
	mailbox *fifo[*models.Message]
	tasks   *fifo[*models.Task]

	mu         sync.RWMutex
	status     models.AgentStatus
	metrics    models.AgentMetrics
	desires    []string
	intentions []Intention
	active     int
	startedAt  time.Time
	valSamples int

	logger   *slog.Logger
	started  atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewBaseAgent builds an agent around the given deliberation strategy. The
// profile supplies kind and capabilities; deps wire the world.
func NewBaseAgent(name string, profile *config.AgentProfileConfig, reasoner Reasoner, deps Deps) *BaseAgent {
	interval := deps.BDIInterval
	if interval <= 0 {
		interval = DefaultBDIInterval
	}
	id := uuid.NewString()
	kind := models.AgentKind(profile.Kind)
	return &BaseAgent{
		id:           id,
		name:         name,
		kind:         kind,
		capabilities: append([]string(nil), profile.Capabilities...),
		reasoner:     reasoner,
		deps:         deps,
		bdiInterval:  interval,
		beliefs:      NewBeliefs(),
		mailbox:      newFIFO[*models.Message](),
		tasks:        newFIFO[*models.Task](),
		status:       models.AgentStatusIdle,
		desires:      defaultDesires(profile.Capabilities),
		stopCh:       make(chan struct{}),
		logger:       slog.Default().With("agent", name, "agent_id", id, "kind", kind),
	}
}

// defaultDesires derives the standing goals every agent pursues plus one
// per declared capability.
func defaultDesires(capabilities []string) []string {
	desires := []string{"complete-assigned-tasks", "respond-to-messages"}
	for _, c := range capabilities {
		desires = append(desires, "apply-"+c)
	}
	return desires
}

func (a *BaseAgent) ID() string             { return a.id }
func (a *BaseAgent) Name() string           { return a.name }
func (a *BaseAgent) Kind() models.AgentKind { return a.kind }

// Capabilities returns a copy of the agent's declared capabilities.
func (a *BaseAgent) Capabilities() []string {
	return append([]string(nil), a.capabilities...)
}

// Beliefs exposes the agent's belief store. Reasoners and tests read and
// write through it; the store carries its own lock.
func (a *BaseAgent) Beliefs() *Beliefs { return a.beliefs }

// Desires returns the agent's standing goals.
func (a *BaseAgent) Desires() []string {
	return append([]string(nil), a.desires...)
}

// Intentions returns the intentions committed by the most recent
// deliberation that has not finished acting yet.
func (a *BaseAgent) Intentions() []Intention {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]Intention(nil), a.intentions...)
}

func (a *BaseAgent) setIntentions(intentions []Intention) {
	a.mu.Lock()
	a.intentions = intentions
	a.mu.Unlock()
}

func (a *BaseAgent) Status() models.AgentStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status
}

// Metrics returns a copy of the agent's counters.
func (a *BaseAgent) Metrics() models.AgentMetrics {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.metrics
}

// Snapshot captures the agent state used for selection scoring and the API.
func (a *BaseAgent) Snapshot() models.AgentSnapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return models.AgentSnapshot{
		ID:           a.id,
		Name:         a.name,
		Kind:         a.kind,
		Status:       a.status,
		Capabilities: append([]string(nil), a.capabilities...),
		ActiveTasks:  a.active,
		QueuedTasks:  a.tasks.Len(),
		MailboxDepth: a.mailbox.Len(),
		Metrics:      a.metrics,
		StartedAt:    a.startedAt,
	}
}

// RecordValidation folds a validation score into the agent's rolling mean.
// The coordinator calls this after scoring a task result.
func (a *BaseAgent) RecordValidation(score float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.valSamples++
	a.metrics.AvgValidation += (score - a.metrics.AvgValidation) / float64(a.valSamples)
}

// Deliver enqueues a message to the agent's mailbox.
func (a *BaseAgent) Deliver(msg *models.Message) error {
	if a.Status() == models.AgentStatusStopped {
		return ErrAgentStopped
	}
	a.mailbox.Push(msg)
	return nil
}

// Submit enqueues a task to the agent's task queue.
func (a *BaseAgent) Submit(task *models.Task) error {
	if a.Status() == models.AgentStatusStopped {
		return ErrAgentStopped
	}
	a.tasks.Push(task)
	return nil
}

// StealTask removes the newest queued task so the load balancer can hand it
// to a less loaded agent. It never touches the task the agent is currently
// executing; nil means there was nothing to steal.
func (a *BaseAgent) StealTask() *models.Task {
	task, ok := a.tasks.PopTail()
	if !ok {
		return nil
	}
	return task
}

// Start spawns the control loop. The context bounds the agent's whole life:
// cancel it or call Stop to terminate.
func (a *BaseAgent) Start(ctx context.Context) error {
	if a.Status() == models.AgentStatusStopped {
		return ErrAgentStopped
	}
	if !a.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	a.mu.Lock()
	a.startedAt = time.Now()
	a.mu.Unlock()

	a.wg.Add(1)
	go a.loop(ctx)

	a.logger.Info("Agent started", "capabilities", a.capabilities)
	return nil
}

// Stop terminates the control loop and waits for it to exit. Stop is
// idempotent and terminal: the swarm spawns replacements, it never restarts.
func (a *BaseAgent) Stop() {
	a.stopOnce.Do(func() { close(a.stopCh) })
	if a.started.Load() {
		a.wg.Wait()
	}
	a.markStopped()
}

func (a *BaseAgent) markStopped() {
	a.mu.Lock()
	changed := a.status != models.AgentStatusStopped
	a.status = models.AgentStatusStopped
	a.mu.Unlock()
	if changed {
		a.logger.Info("Agent stopped")
	}
}

func (a *BaseAgent) loop(parent context.Context) {
	defer a.wg.Done()
	defer a.markStopped()

	// Bridge Stop into context cancellation so in-flight LLM calls and tool
	// executions abort instead of delaying shutdown.
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	go func() {
		select {
		case <-a.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	ticker := time.NewTicker(loopTick)
	defer ticker.Stop()

	lastCycle := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.stopCh:
			return
		case <-a.mailbox.Wake():
		case <-a.tasks.Wake():
		case <-ticker.C:
		}

		a.drainMailbox(ctx)
		a.drainTasks(ctx)

		if time.Since(lastCycle) >= a.bdiInterval {
			a.runCycle(ctx)
			lastCycle = time.Now()
		}
	}
}

func (a *BaseAgent) drainMailbox(ctx context.Context) {
	for ctx.Err() == nil {
		msg, ok := a.mailbox.Pop()
		if !ok {
			return
		}
		a.handleMessage(ctx, msg)
	}
}

func (a *BaseAgent) drainTasks(ctx context.Context) {
	for ctx.Err() == nil {
		task, ok := a.tasks.Pop()
		if !ok {
			return
		}
		a.runTask(ctx, task)
	}
}

// handleMessage records the message in beliefs and hands it to the reasoner.
// Actions it returns go through the same dispatch as deliberation output.
func (a *BaseAgent) handleMessage(ctx context.Context, msg *models.Message) {
	a.logger.Debug("Handling message",
		"message_id", msg.ID,
		"performative", msg.Performative,
		"sender", msg.Sender)

	a.mu.Lock()
	a.metrics.MessagesProcessed++
	a.mu.Unlock()

	a.beliefs.Update("last_message", msg.Content)

	raw, err := a.reasoner.HandleMessage(ctx, a, msg)
	if err != nil {
		a.recordError("Message handling failed", err, "sender", msg.Sender)
		return
	}
	a.dispatch(ctx, raw)
}

// runTask executes one assigned task through the reasoner and reports the
// outcome to the result sink. Resources allocated during the task are
// released when it finishes, whatever the outcome.
func (a *BaseAgent) runTask(ctx context.Context, task *models.Task) {
	a.setBusy(true)
	defer a.setBusy(false)

	a.logger.Info("Task started", "task_id", task.ID, "description", task.Description)
	if starts, ok := a.deps.Results.(StartSink); ok {
		starts.HandleTaskStarted(a.id, task)
	}
	start := time.Now()

	result, err := a.reasoner.HandleTask(ctx, a, task)

	a.mu.Lock()
	if err != nil {
		a.metrics.TasksFailed++
		a.metrics.Errors++
	} else {
		a.metrics.TasksCompleted++
	}
	a.mu.Unlock()

	if err != nil {
		a.logger.Error("Task failed", "task_id", task.ID, "elapsed", time.Since(start), "error", err)
	} else {
		a.logger.Info("Task finished", "task_id", task.ID, "elapsed", time.Since(start))
	}

	if a.deps.Env != nil {
		a.deps.Env.ReleaseAll(a.id)
	}
	if a.deps.Results != nil {
		a.deps.Results.HandleTaskResult(a.id, task, result, err)
	}
}

func (a *BaseAgent) setBusy(busy bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if busy {
		a.active++
	} else {
		a.active--
	}
	if a.status == models.AgentStatusStopped {
		return
	}
	if a.active > 0 {
		a.status = models.AgentStatusBusy
	} else {
		a.status = models.AgentStatusIdle
	}
}

// runCycle executes one perceive → deliberate → act pass.
func (a *BaseAgent) runCycle(ctx context.Context) {
	stimuli := a.perceive()

	intentions := a.reasoner.Deliberate(ctx, a, stimuli)
	a.setIntentions(intentions)
	if len(intentions) == 0 {
		return
	}

	raw, err := a.reasoner.Act(ctx, a, intentions)
	a.setIntentions(nil)
	if err != nil {
		a.recordError("Act step failed", err)
		return
	}
	a.dispatch(ctx, raw)
}

// perceive flattens the agent's environment observation into stimuli and
// refreshes perception beliefs. Without an environment there is nothing to
// perceive; message and task stimuli are injected by the reasoners that
// need them.
func (a *BaseAgent) perceive() []Stimulus {
	if a.deps.Env == nil {
		return nil
	}
	obs := a.deps.Env.Observe(a.id)
	if obs == nil {
		return nil
	}

	var stimuli []Stimulus

	if state := toMap(obs["state"]); state != nil {
		data := map[string]any{"type": "environment_state"}
		for k, v := range state {
			data[k] = v
		}
		stimuli = append(stimuli, Stimulus{Kind: StimulusState, Data: data})
		a.beliefs.Update("environment_state", state)
	}

	switch evts := obs["events"].(type) {
	case []events.Event:
		for _, evt := range evts {
			stimuli = append(stimuli, eventStimulus(string(evt.Type), evt.Source, evt.Data))
		}
	case []any:
		for _, raw := range evts {
			m := toMap(raw)
			if m == nil {
				continue
			}
			typ, _ := m["type"].(string)
			src, _ := m["source"].(string)
			data, _ := m["data"].(map[string]any)
			stimuli = append(stimuli, eventStimulus(typ, src, data))
		}
	}

	if entities := toMap(obs["entities"]); entities != nil {
		a.beliefs.Update("visible_entities", map[string]any{"count": len(entities)})
	}

	return stimuli
}

// eventStimulus flattens an environment event into stimulus data keyed for
// rule matching. Event payload fields never shadow type and source.
func eventStimulus(typ, source string, data map[string]any) Stimulus {
	d := map[string]any{"type": typ, "source": source}
	for k, v := range data {
		if _, exists := d[k]; !exists {
			d[k] = v
		}
	}
	return Stimulus{Kind: StimulusEvent, Data: d}
}

// dispatch normalizes a reasoner result and executes each action in order.
func (a *BaseAgent) dispatch(ctx context.Context, raw any) {
	actions, err := NormalizeActions(raw)
	if err != nil {
		a.recordError("Action normalization failed", err)
		return
	}
	for _, action := range actions {
		if ctx.Err() != nil {
			return
		}
		a.Execute(ctx, action)
	}
}

// Execute runs one action. A failed action is recorded and never aborts the
// control loop.
func (a *BaseAgent) Execute(ctx context.Context, action models.Action) {
	switch action.Type {
	case models.ActionToolCall:
		a.execToolCall(ctx, action)
	case models.ActionSendMessage:
		a.execSendMessage(action)
	case models.ActionUpdateBelief:
		a.execUpdateBelief(action)
	case models.ActionIgnore:
		a.logger.Debug("Action ignored", "reason", action.Params["reason"])
	case models.ActionMove, models.ActionAllocateResource,
		models.ActionCommunicate, models.ActionSpawnProcess:
		a.execEnvironment(action)
	default:
		a.logger.Warn("Unknown action type, skipping", "type", action.Type)
	}
}

func (a *BaseAgent) execToolCall(ctx context.Context, action models.Action) {
	name, _ := action.Params["tool"].(string)
	if name == "" {
		a.recordError("Tool call missing tool name", nil)
		return
	}
	if a.deps.Tools == nil {
		a.recordError("Tool call without a tool executor", nil, "tool", name)
		return
	}

	params, _ := action.Params["params"].(map[string]any)
	if params == nil {
		params = make(map[string]any, len(action.Params))
		for k, v := range action.Params {
			if k != "tool" {
				params[k] = v
			}
		}
	}

	res := a.deps.Tools.Execute(ctx, name, params)

	a.beliefs.Update("last_"+name+"_result", res.Data)
	a.beliefs.Update("last_"+name+"_success", res.Success)
	if res.Error != "" {
		a.beliefs.Update("last_"+name+"_error", res.Error)
	} else {
		a.beliefs.Delete("last_" + name + "_error")
	}

	if !res.Success {
		a.logger.Warn("Tool call failed", "tool", name, "error", res.Error)
	}
}

func (a *BaseAgent) execSendMessage(action models.Action) {
	if a.deps.Router == nil {
		a.logger.Warn("No message router wired, dropping outbound message")
		return
	}
	receiver, _ := action.Params["receiver"].(string)
	if receiver == "" {
		a.recordError("Send message action missing receiver", nil)
		return
	}

	performative := models.PerformativeInform
	if p, ok := action.Params["performative"].(string); ok && p != "" {
		performative = models.Performative(p)
	}

	content, _ := action.Params["content"].(map[string]any)
	if content == nil {
		content = make(map[string]any)
		for k, v := range action.Params {
			switch k {
			case "receiver", "performative", "conversation_id", "in_reply_to":
			default:
				content[k] = v
			}
		}
	}

	msg := models.NewMessage(performative, a.id, receiver, content)
	if cid, ok := action.Params["conversation_id"].(string); ok && cid != "" {
		msg.ConversationID = cid
	}
	if irt, ok := action.Params["in_reply_to"].(string); ok && irt != "" {
		msg.InReplyTo = irt
	}

	if err := a.deps.Router.SendMessage(msg); err != nil {
		a.logger.Warn("Message send failed", "receiver", receiver, "error", err)
	}
}

func (a *BaseAgent) execUpdateBelief(action models.Action) {
	key, _ := action.Params["key"].(string)
	if key == "" {
		a.recordError("Update belief action missing key", nil)
		return
	}
	a.beliefs.Update(key, action.Params["value"])
}

func (a *BaseAgent) execEnvironment(action models.Action) {
	if a.deps.Env == nil {
		a.logger.Warn("No environment wired, dropping action", "type", action.Type)
		return
	}
	ok, details := a.deps.Env.ExecuteAction(a.id, action)
	a.beliefs.Update("last_environment_action", map[string]any{
		"type":    string(action.Type),
		"success": ok,
		"details": details,
	})
	if !ok {
		a.logger.Warn("Environment action denied", "type", action.Type, "details", details)
	}
}

// recordError logs a failed step and bumps the error counter. The loop
// always survives a failed step.
func (a *BaseAgent) recordError(msg string, err error, args ...any) {
	a.mu.Lock()
	a.metrics.Errors++
	a.mu.Unlock()

	if err != nil {
		args = append(args, "error", err)
	}
	a.logger.Error(msg, args...)
}

// toMap coerces structs and maps into map[string]any through their JSON
// shape. Returns nil when v has no object form.
func toMap(v any) map[string]any {
	switch m := v.(type) {
	case nil:
		return nil
	case map[string]any:
		return m
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil
	}
	return m
}
