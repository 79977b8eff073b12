package swarm

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/taskhive-ai/taskhive/pkg/agent"
	"github.com/taskhive-ai/taskhive/pkg/events"
	"github.com/taskhive-ai/taskhive/pkg/models"
	"github.com/taskhive-ai/taskhive/pkg/notify"
	"github.com/taskhive-ai/taskhive/pkg/store"
	"github.com/taskhive-ai/taskhive/pkg/workspace"
)

// resultLoop serialises agent outcomes: validation, retries, and parent
// settlement all happen on this goroutine.
func (c *Coordinator) resultLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case res := <-c.resultCh:
			c.handleResult(ctx, res)
		}
	}
}

// handleResult reconciles one agent outcome against the live assignment. An
// outcome that no longer matches its assignment is stale: the monitor
// requeued the task, or an operator cancelled it, while the agent worked.
func (c *Coordinator) handleResult(ctx context.Context, res taskResult) {
	c.mu.Lock()
	asg, ok := c.assignments[res.task.ID]
	if ok && asg.agentID == res.agentID {
		delete(c.assignments, res.task.ID)
	}
	c.mu.Unlock()

	if !ok || asg.agentID != res.agentID {
		c.logger.Warn("Stale result ignored",
			"task_id", res.task.ID, "agent_id", res.agentID, "error", res.err)
		return
	}

	if res.err != nil {
		c.requeueOrFail(ctx, res.task.ID, res.err.Error())
		return
	}
	c.acceptResult(ctx, res.agentID, res.task.ID, res.result)
}

// acceptResult scores a successful outcome when validation is on, then
// completes the task or sends it back for another attempt.
func (c *Coordinator) acceptResult(ctx context.Context, agentID, taskID string, result map[string]any) {
	task, ok := c.registry.get(taskID)
	if !ok {
		return
	}
	score := -1.0

	if c.cfg.ValidationEnabled() && c.deps.LLM != nil {
		if _, err := c.registry.markValidating(ctx, taskID); err != nil {
			c.logger.Debug("Validating transition rejected", "task_id", taskID, "error", err)
			return
		}
		verdict, err := agent.ValidateSolution(ctx, c.deps.LLM, task, result)
		if err != nil {
			// Scoring trouble never discards finished work.
			c.logger.Warn("Validation unavailable, accepting result",
				"task_id", taskID, "error", err)
		} else {
			score = verdict.Score
			c.recordValidation(agentID, verdict.Score)
			if !verdict.IsValid || verdict.Score < float64(c.cfg.ValidationThreshold) {
				c.requeueOrFail(ctx, taskID, validationFailure(verdict, c.cfg.ValidationThreshold))
				return
			}
		}
	}

	if _, err := c.registry.complete(ctx, taskID, result, score); err != nil {
		c.logger.Error("Complete transition rejected", "task_id", taskID, "error", err)
		return
	}
	c.onTaskTerminal(ctx, taskID)
}

// requeueOrFail records a failed attempt, then either schedules another or
// lets the failure stand when the retry budget is spent.
func (c *Coordinator) requeueOrFail(ctx context.Context, taskID, reason string) {
	task, err := c.registry.fail(ctx, taskID, reason)
	if err != nil {
		c.logger.Warn("Fail transition rejected", "task_id", taskID, "error", err)
		return
	}
	if task.Retries >= c.cfg.MaxRetries {
		c.logger.Warn("Task failed permanently",
			"task_id", taskID, "retries", task.Retries, "error", reason)
		c.onTaskTerminal(ctx, taskID)
		return
	}

	retried, err := c.registry.retry(ctx, taskID)
	if err != nil {
		c.logger.Error("Retry transition rejected", "task_id", taskID, "error", err)
		c.onTaskTerminal(ctx, taskID)
		return
	}
	c.deps.Metrics.TaskRetried()
	if err := c.queue.Push(retried); err != nil {
		c.failTask(ctx, taskID, err.Error())
		return
	}
	c.logger.Info("Task requeued for retry",
		"task_id", taskID, "attempt", retried.Retries, "error", reason)
}

// failTask fails a task with no retry, used when another attempt cannot
// change the outcome: poisoned dependencies, unusable plans, a full queue.
func (c *Coordinator) failTask(ctx context.Context, taskID, reason string) {
	if _, err := c.registry.fail(ctx, taskID, reason); err != nil {
		c.logger.Warn("Fail transition rejected", "task_id", taskID, "error", err)
		return
	}
	c.onTaskTerminal(ctx, taskID)
}

// onTaskTerminal runs the bookkeeping every terminal task owes: metrics,
// parent settlement for subtasks, and the completion report for roots.
func (c *Coordinator) onTaskTerminal(ctx context.Context, taskID string) {
	task, ok := c.registry.get(taskID)
	if !ok || !task.Status.IsTerminal() {
		return
	}
	c.deps.Metrics.TaskFinished(task.Status, taskDuration(task))

	if task.ParentID != "" {
		c.settleParent(ctx, task.ParentID)
		return
	}
	c.finishRoot(ctx, task)
}

// settleParent finalises a parent once its last child settles: completed
// children aggregate into the parent's result, any other outcome fails it.
func (c *Coordinator) settleParent(ctx context.Context, parentID string) {
	children := c.registry.children(parentID)
	if len(children) == 0 {
		return
	}
	failed := 0
	for _, child := range children {
		if !child.Status.IsTerminal() {
			return
		}
		if child.Status != models.TaskStatusCompleted {
			failed++
		}
	}
	parent, ok := c.registry.get(parentID)
	if !ok || parent.Status.IsTerminal() {
		return
	}

	if failed > 0 {
		c.failTask(ctx, parentID, fmt.Sprintf("%d of %d subtasks failed", failed, len(children)))
		return
	}
	if _, err := c.registry.complete(ctx, parentID, aggregateChildResults(children), -1); err != nil {
		// A concurrent settle beat us to it.
		c.logger.Debug("Parent settle raced", "task_id", parentID, "error", err)
		return
	}
	c.logger.Info("Parent task settled", "task_id", parentID, "subtasks", len(children))
	c.onTaskTerminal(ctx, parentID)
}

// finishRoot closes out a request: write the completion report, index it,
// announce it, and notify the thread that accepted the request.
func (c *Coordinator) finishRoot(ctx context.Context, root *models.Task) {
	var path string
	if c.deps.Workspace != nil {
		var err error
		path, err = c.deps.Workspace.WriteReport(c.buildReport(root))
		if err != nil {
			c.logger.Error("Completion report failed", "task_id", root.ID, "error", err)
		}
	}
	summary := resultSummary(root)
	if path != "" && c.deps.Store != nil {
		if err := c.deps.Store.SaveReport(ctx, store.Report{
			TaskID:    root.ID,
			Path:      path,
			Summary:   summary,
			CreatedAt: time.Now(),
		}); err != nil {
			c.logger.Warn("Report index write failed", "task_id", root.ID, "error", err)
		}
	}

	evt := events.New(events.EventSwarmReport, "coordinator", map[string]any{
		"status": string(root.Status),
		"path":   path,
	})
	evt.TaskID = root.ID
	c.deps.Bus.Publish(evt)

	c.mu.Lock()
	ts := c.rootThreads[root.ID]
	delete(c.rootThreads, root.ID)
	c.mu.Unlock()
	c.deps.Notifier.NotifyTaskFinished(ctx, notify.TaskFinishedInput{
		TaskID:   root.ID,
		Status:   string(root.Status),
		Summary:  summary,
		Error:    root.Error,
		ThreadTS: ts,
	})

	c.logger.Info("Request finished",
		"task_id", root.ID, "status", root.Status, "duration", taskDuration(root), "report", path)
}

// buildReport assembles the completion report from the ledger.
func (c *Coordinator) buildReport(root *models.Task) workspace.Report {
	subtasks := c.registry.descendants(root.ID)
	analysis, _ := root.Payload["analysis"].(map[string]any)

	required := make(map[string]struct{})
	for _, sub := range subtasks {
		if capability, ok := typeCapability[sub.Type]; ok {
			required[capability] = struct{}{}
		}
	}
	agents := make([]string, 0, len(required))
	for capability := range required {
		agents = append(agents, capability)
	}
	sort.Strings(agents)

	request, _ := root.Payload["request"].(string)
	if request == "" {
		request = root.Description
	}
	projectDir, _ := root.Payload["project_dir"].(string)

	return workspace.Report{
		Request:  request,
		Root:     root,
		Subtasks: subtasks,
		Analysis: workspace.Analysis{
			TaskType:       string(root.Type),
			Complexity:     payloadString(analysis, "complexity"),
			Domains:        payloadStrings(analysis, "domains"),
			Approach:       payloadString(analysis, "approach"),
			RequiredAgents: agents,
		},
		ProjectDir:  projectDir,
		SystemStats: c.Stats(),
	}
}

// validationFailure renders a verdict as the retry reason.
func validationFailure(v agent.Validation, threshold float64) string {
	reason := fmt.Sprintf("validation score %.0f below threshold %.0f", v.Score, threshold)
	if len(v.Weaknesses) > 0 {
		reason += ": " + strings.Join(v.Weaknesses, "; ")
	}
	return truncate(reason, 300)
}

// aggregateChildResults rolls completed subtask results up into the parent.
func aggregateChildResults(children []*models.Task) map[string]any {
	var files []string
	for _, child := range children {
		files = append(files, resultFiles(child.Result)...)
	}
	out := map[string]any{"subtasks_completed": len(children)}
	if len(files) > 0 {
		out["files_created"] = files
	}
	return out
}

// resultFiles reads the files_created list from one result, tolerating the
// []any shape a checkpoint round-trip produces.
func resultFiles(result map[string]any) []string {
	switch v := result["files_created"].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// resultSummary extracts a one-line summary from a finished task's result.
func resultSummary(t *models.Task) string {
	for _, key := range []string{"summary", "solution", "output"} {
		if s, ok := t.Result[key].(string); ok && s != "" {
			return truncate(s, 400)
		}
	}
	if n, ok := t.Result["subtasks_completed"]; ok {
		return fmt.Sprintf("%v subtasks completed", n)
	}
	return ""
}

func taskDuration(t *models.Task) time.Duration {
	if t.StartedAt == nil || t.CompletedAt == nil {
		return 0
	}
	return t.CompletedAt.Sub(*t.StartedAt)
}

func payloadString(payload map[string]any, key string) string {
	s, _ := payload[key].(string)
	return s
}

// payloadStrings reads a string list that may have round-tripped through
// JSON as []any.
func payloadStrings(payload map[string]any, key string) []string {
	switch v := payload[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
