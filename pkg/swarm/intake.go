package swarm

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/taskhive-ai/taskhive/pkg/agent"
	"github.com/taskhive-ai/taskhive/pkg/events"
	"github.com/taskhive-ai/taskhive/pkg/models"
	"github.com/taskhive-ai/taskhive/pkg/notify"
	"github.com/taskhive-ai/taskhive/pkg/workspace"
)

// maxSubtasksPerPlan bounds a single decomposition batch. Plans larger than
// this drift into noise; deeper structure comes from recursion instead.
const maxSubtasksPerPlan = 8

// ProcessRequest admits one natural-language request into the swarm and
// returns the root task ID immediately; classification and decomposition
// continue in the background. The ID is live from the moment this returns:
// the task endpoints and the event stream both know it.
func (c *Coordinator) ProcessRequest(ctx context.Context, request string, opts RequestOptions) (string, error) {
	request = strings.TrimSpace(request)
	if request == "" {
		return "", fmt.Errorf("request text is empty")
	}

	c.mu.Lock()
	open := c.intakeOpen
	c.mu.Unlock()
	if !open {
		return "", ErrIntakeClosed
	}
	if c.cfg.MaxQueueSize > 0 && c.queue.Len() >= c.cfg.MaxQueueSize {
		return "", fmt.Errorf("%w: %d tasks queued", ErrQueueFull, c.queue.Len())
	}

	priority := opts.Priority
	if !models.ValidPriority(priority) {
		priority = models.PriorityHigh
	}
	root := models.NewTask(models.TaskTypeGeneral, priority, request)

	projectName := opts.Project
	if projectName == "" {
		projectName = deriveProjectName(request, root.ID)
	}
	projectDir := filepath.Join(c.deps.Workspace.Root(), "projects", projectName)
	if err := workspace.InitProject(projectDir, projectName, request); err != nil {
		return "", fmt.Errorf("init project workspace: %w", err)
	}
	root.Payload = map[string]any{
		"request":     request,
		"project_dir": projectDir,
	}

	c.registry.add(ctx, root)
	evt := events.New(events.EventRequestSubmitted, "coordinator", map[string]any{
		"description": truncate(request, 200),
		"priority":    string(priority),
		"project_dir": projectDir,
	})
	evt.TaskID = root.ID
	c.deps.Bus.Publish(evt)
	c.logger.Info("Request accepted", "task_id", root.ID, "priority", priority, "project", projectName)

	if ts := c.deps.Notifier.NotifyRequestAccepted(ctx, notify.RequestAcceptedInput{
		TaskID:      root.ID,
		Description: request,
	}); ts != "" {
		c.mu.Lock()
		c.rootThreads[root.ID] = ts
		c.mu.Unlock()
	}

	if !c.cfg.DecompositionEnabled() || c.deps.LLM == nil {
		c.enqueueOrFail(ctx, root.ID)
		return root.ID, nil
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.processRoot(c.opCtx(), root.ID)
	}()
	return root.ID, nil
}

// processRoot classifies a fresh request and routes it into the queue,
// either whole or as a decomposed plan.
func (c *Coordinator) processRoot(ctx context.Context, rootID string) {
	root, ok := c.registry.get(rootID)
	if !ok {
		return
	}
	if _, err := c.registry.transition(ctx, rootID, models.TaskStatusAnalysing, "classifying request"); err != nil {
		c.logger.Error("Intake transition rejected", "task_id", rootID, "error", err)
		return
	}

	analysis, err := agent.AnalyzeTask(ctx, c.deps.LLM, root)
	if err != nil {
		c.logger.Warn("Classification unavailable, scheduling the request whole",
			"task_id", rootID, "error", err)
		c.enqueueOrFail(ctx, rootID)
		return
	}
	c.registry.setAnalysis(ctx, rootID, analysisPayload(analysis))

	if !decomposable(analysis.TaskType) {
		c.enqueueOrFail(ctx, rootID)
		return
	}
	c.decompose(ctx, rootID, 0)
}

// decompose plans a task into subtasks and routes each one. Tasks the model
// cannot plan run whole; plans the lifecycle cannot execute fail the task.
func (c *Coordinator) decompose(ctx context.Context, taskID string, depth int) {
	task, ok := c.registry.get(taskID)
	if !ok {
		return
	}
	if depth >= c.cfg.MaxDecompositionDepth {
		c.enqueueOrFail(ctx, taskID)
		return
	}
	if _, err := c.registry.transition(ctx, taskID, models.TaskStatusPlanning, "planning subtasks"); err != nil {
		c.logger.Error("Planning transition rejected", "task_id", taskID, "error", err)
		return
	}

	specs, err := agent.DecomposeTask(ctx, c.deps.LLM, task, maxSubtasksPerPlan)
	if err != nil {
		c.logger.Warn("Decomposition unavailable, scheduling the task whole",
			"task_id", taskID, "error", err)
		c.enqueueOrFail(ctx, taskID)
		return
	}
	if len(specs) < 2 {
		// A one-step plan is the task itself.
		c.enqueueOrFail(ctx, taskID)
		return
	}
	if err := validatePlan(specs); err != nil {
		c.failTask(ctx, taskID, fmt.Sprintf("unusable decomposition plan: %v", err))
		return
	}

	children := c.materializePlan(ctx, task, specs)
	c.logger.Info("Task decomposed",
		"task_id", taskID, "subtasks", len(children), "depth", depth)

	for _, child := range children {
		c.routeChild(ctx, child.ID, depth+1)
	}
}

// routeChild decides whether a planned subtask runs as-is or is decomposed
// further. Classification trouble schedules the subtask whole; only an
// explicitly complex verdict recurses.
func (c *Coordinator) routeChild(ctx context.Context, childID string, depth int) {
	if depth >= c.cfg.MaxDecompositionDepth {
		c.enqueueOrFail(ctx, childID)
		return
	}
	child, ok := c.registry.get(childID)
	if !ok {
		return
	}

	analysis, err := agent.AnalyzeTask(ctx, c.deps.LLM, child)
	if err != nil {
		c.enqueueOrFail(ctx, childID)
		return
	}
	c.registry.setAnalysis(ctx, childID, analysisPayload(analysis))
	if !decomposable(analysis.TaskType) {
		c.enqueueOrFail(ctx, childID)
		return
	}
	if _, err := c.registry.transition(ctx, childID, models.TaskStatusAnalysing, "classifying subtask"); err != nil {
		c.enqueueOrFail(ctx, childID)
		return
	}
	c.decompose(ctx, childID, depth)
}

// materializePlan turns subtask specs into ledger tasks, mapping plan-local
// dependency indices to task IDs.
func (c *Coordinator) materializePlan(ctx context.Context, parent *models.Task, specs []agent.SubtaskSpec) []*models.Task {
	ids := make([]string, len(specs))
	children := make([]*models.Task, len(specs))
	for i, spec := range specs {
		child := models.NewTask(spec.Type, spec.Priority, spec.Description)
		child.ParentID = parent.ID
		child.Payload = map[string]any{}
		if dir, ok := parent.Payload["project_dir"]; ok {
			child.Payload["project_dir"] = dir
		}
		if len(spec.Capabilities) > 0 {
			child.Payload["capabilities"] = spec.Capabilities
		}
		ids[i] = child.ID
		children[i] = child
	}
	for i, spec := range specs {
		for _, dep := range spec.DependsOn {
			children[i].DependsOn = append(children[i].DependsOn, ids[dep])
		}
	}
	for _, child := range children {
		c.registry.add(ctx, child)
	}
	return children
}

// validatePlan rejects dependency indices outside the plan and dependency
// cycles. A bad plan fails the task rather than deadlocking the queue.
func validatePlan(specs []agent.SubtaskSpec) error {
	for i, spec := range specs {
		for _, dep := range spec.DependsOn {
			if dep < 0 || dep >= len(specs) {
				return fmt.Errorf("subtask %d depends on unknown step %d", i, dep)
			}
			if dep == i {
				return fmt.Errorf("subtask %d depends on itself", i)
			}
		}
	}

	const (
		white = iota // unvisited
		grey         // on the current path
		black        // fully explored
	)
	colour := make([]int, len(specs))
	var visit func(int) bool
	visit = func(n int) bool {
		colour[n] = grey
		for _, dep := range specs[n].DependsOn {
			switch colour[dep] {
			case grey:
				return false
			case white:
				if !visit(dep) {
					return false
				}
			}
		}
		colour[n] = black
		return true
	}
	for i := range specs {
		if colour[i] == white && !visit(i) {
			return fmt.Errorf("dependency cycle through subtask %d", i)
		}
	}
	return nil
}

// enqueueOrFail queues a task for dispatch; a full queue fails it.
func (c *Coordinator) enqueueOrFail(ctx context.Context, taskID string) {
	task, ok := c.registry.get(taskID)
	if !ok {
		return
	}
	if err := c.queue.Push(task); err != nil {
		c.failTask(ctx, taskID, err.Error())
	}
}

// decomposable reports whether a classification verdict warrants splitting
// the task.
func decomposable(taskType string) bool {
	return taskType == "complex" || taskType == "very_complex"
}

// analysisPayload flattens a classification for the task payload, the
// checkpoint file, and the completion report.
func analysisPayload(a agent.TaskAnalysis) map[string]any {
	payload := map[string]any{"complexity": a.TaskType}
	if len(a.Domains) > 0 {
		payload["domains"] = a.Domains
	}
	if len(a.RequiredOutputs) > 0 {
		payload["required_outputs"] = a.RequiredOutputs
	}
	if a.Approach != "" {
		payload["approach"] = a.Approach
	}
	return payload
}

// deriveProjectName slugs the request text into a directory name.
func deriveProjectName(request, taskID string) string {
	var b strings.Builder
	prev := '-'
	for _, r := range strings.ToLower(request) {
		if b.Len() >= 40 {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prev = r
		default:
			if prev != '-' {
				b.WriteByte('-')
				prev = '-'
			}
		}
	}
	name := strings.Trim(b.String(), "-")
	if name == "" {
		return "task-" + shortID(taskID)
	}
	return name
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
