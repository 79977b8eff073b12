package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/taskhive-ai/taskhive/pkg/llm"
	"github.com/taskhive-ai/taskhive/pkg/models"
	"github.com/taskhive-ai/taskhive/pkg/workspace"
)

// ErrModelFallback marks a step whose model output could not be parsed even
// after repair. The step is failed; the coordinator's retry policy decides
// what happens to the task.
var ErrModelFallback = errors.New("model returned fallback envelope")

// errNoLLM marks a cognitive step attempted without a wired client.
var errNoLLM = errors.New("cognitive reasoning requires an LLM client")

// TaskAnalysis is the model's classification of a task.
type TaskAnalysis struct {
	TaskType        string   `json:"task_type"` // simple | medium | complex | very_complex
	Domains         []string `json:"domains,omitempty"`
	RequiredOutputs []string `json:"required_outputs,omitempty"`
	Approach        string   `json:"approach,omitempty"`
}

// SubtaskSpec is one planned subtask from decomposition. DependsOn holds
// zero-based indices into the same plan.
type SubtaskSpec struct {
	Description  string
	Type         models.TaskType
	Priority     models.TaskPriority
	DependsOn    []int
	Capabilities []string
}

// Validation is the model's scoring of a task result.
type Validation struct {
	IsValid      bool     `json:"is_valid"`
	Score        float64  `json:"score"` // 0–100
	Strengths    []string `json:"strengths,omitempty"`
	Weaknesses   []string `json:"weaknesses,omitempty"`
	Improvements []string `json:"improvements,omitempty"`
	FinalVerdict string   `json:"final_verdict,omitempty"`
}

// Cognitive is the LLM-backed deliberation strategy: every task is analysed,
// solved, and optionally materialised as files; every message is interpreted
// through the model.
type Cognitive struct{}

// NewCognitive builds the LLM-backed reasoner. The client comes from the
// agent's deps at call time.
func NewCognitive() *Cognitive {
	return &Cognitive{}
}

// Deliberate is a no-op: cognitive work is driven by assigned tasks and
// incoming messages, so idle cycles never spend model calls.
func (c *Cognitive) Deliberate(_ context.Context, _ *BaseAgent, _ []Stimulus) []Intention {
	return nil
}

// Act is unreachable while Deliberate commits nothing.
func (c *Cognitive) Act(_ context.Context, _ *BaseAgent, _ []Intention) (any, error) {
	return nil, nil
}

// HandleTask runs the analyse → solve pipeline and materialises any files
// the solution declares. A fallback envelope from either model call fails
// the step.
func (c *Cognitive) HandleTask(ctx context.Context, a *BaseAgent, task *models.Task) (map[string]any, error) {
	if a.deps.LLM == nil {
		return nil, errNoLLM
	}

	analysis, err := AnalyzeTask(ctx, a.deps.LLM, task)
	if err != nil {
		return nil, fmt.Errorf("analyse task %s: %w", task.ID, err)
	}
	a.beliefs.Update("task_analysis", toMap(analysis))

	payload, err := a.deps.LLM.GenerateJSON(ctx, solvePrompt(task, analysis), llm.Options{
		System: systemPrompt(a),
		Type:   solveTier(analysis.TaskType),
	})
	if err != nil {
		return nil, fmt.Errorf("solve task %s: %w", task.ID, err)
	}
	if llm.IsFallback(payload) {
		return nil, fmt.Errorf("solve task %s: %w", task.ID, ErrModelFallback)
	}

	files, err := c.writeFiles(a, task, payload)
	if err != nil {
		return nil, fmt.Errorf("materialise files for task %s: %w", task.ID, err)
	}

	result := map[string]any{
		"handled_by": string(models.AgentKindCognitive),
		"task_type":  analysis.TaskType,
		"solution":   payload["solution"],
		"output":     payload["output"],
		"validation": payload["validation"],
	}
	if steps := payload["steps"]; steps != nil {
		result["steps"] = steps
	}
	if code, _ := payload["code"].(string); code != "" {
		result["code"] = code
	}
	if len(files) > 0 {
		result["files_created"] = files
	}
	return result, nil
}

// HandleMessage interprets the message through the model and applies the
// returned envelope: belief updates are merged, and a non-empty suggested
// response becomes a reply to the sender.
func (c *Cognitive) HandleMessage(ctx context.Context, a *BaseAgent, msg *models.Message) (any, error) {
	if a.deps.LLM == nil {
		return nil, nil
	}

	payload, err := a.deps.LLM.GenerateJSON(ctx, messagePrompt(a, msg), llm.Options{
		System: systemPrompt(a),
		Type:   llm.TaskSimple,
	})
	if err != nil {
		return nil, fmt.Errorf("interpret message %s: %w", msg.ID, err)
	}
	if llm.IsFallback(payload) {
		return nil, fmt.Errorf("interpret message %s: %w", msg.ID, ErrModelFallback)
	}

	a.beliefs.Update("last_message_analysis", payload)
	if updates, ok := payload["belief_updates"].(map[string]any); ok {
		a.beliefs.Merge(updates)
	}

	response, _ := payload["suggested_response"].(string)
	if response == "" {
		return nil, nil
	}
	return models.Action{
		Type: models.ActionSendMessage,
		Params: map[string]any{
			"receiver":        msg.Sender,
			"performative":    string(models.PerformativeInform),
			"conversation_id": msg.ConversationID,
			"in_reply_to":     msg.ID,
			"content": map[string]any{
				"text": response,
			},
		},
	}, nil
}

// writeFiles materialises the solution's files_to_create entries through the
// workspace layout rules. Returns the placed paths.
func (c *Cognitive) writeFiles(a *BaseAgent, task *models.Task, payload map[string]any) ([]string, error) {
	raw, ok := payload["files_to_create"].([]any)
	if !ok || len(raw) == 0 {
		return nil, nil
	}

	projectDir := c.projectDir(a, task)
	if projectDir == "" {
		a.logger.Warn("Solution declared files but no workspace is wired, skipping",
			"task_id", task.ID, "files", len(raw))
		return nil, nil
	}

	var placed []string
	for i, entry := range raw {
		spec, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		name, _ := spec["path"].(string)
		if name == "" {
			name, _ = spec["filename"].(string)
		}
		content, _ := spec["content"].(string)
		if name == "" || content == "" {
			a.logger.Warn("Skipping malformed file entry", "task_id", task.ID, "index", i)
			continue
		}
		path, err := workspace.PlaceFile(projectDir, name, content)
		if err != nil {
			return placed, fmt.Errorf("place %q: %w", name, err)
		}
		placed = append(placed, path)
	}
	return placed, nil
}

// projectDir resolves where solution files land: the coordinator-assigned
// project directory when the task carries one, the agent's own directory
// otherwise. Empty means no workspace is available.
func (c *Cognitive) projectDir(a *BaseAgent, task *models.Task) string {
	if dir, ok := task.Payload["project_dir"].(string); ok && dir != "" {
		return dir
	}
	if a.deps.Workspace == nil {
		return ""
	}
	dir, err := a.deps.Workspace.AgentDir(a.id)
	if err != nil {
		a.logger.Warn("Agent workspace unavailable", "error", err)
		return ""
	}
	return dir
}

// solveTier maps a task classification to the timeout tier of its solve call.
func solveTier(taskType string) llm.TaskType {
	switch taskType {
	case "complex":
		return llm.TaskComplex
	case "very_complex":
		return llm.TaskReasoning
	default:
		return llm.TaskNormal
	}
}

// AnalyzeTask classifies a task through the model. Shared by cognitive
// agents and the coordinator's decomposition pipeline so both see the same
// classification.
func AnalyzeTask(ctx context.Context, client *llm.Client, task *models.Task) (TaskAnalysis, error) {
	if client == nil {
		return TaskAnalysis{}, errNoLLM
	}
	payload, err := client.GenerateJSON(ctx, analyzePrompt(task), llm.Options{Type: llm.TaskSimple})
	if err != nil {
		return TaskAnalysis{}, err
	}
	if llm.IsFallback(payload) {
		return TaskAnalysis{}, ErrModelFallback
	}

	analysis := TaskAnalysis{
		TaskType:        stringAt(payload, "task_type", "medium"),
		Domains:         stringsAt(payload, "domains"),
		RequiredOutputs: stringsAt(payload, "required_outputs"),
		Approach:        stringAt(payload, "approach", ""),
	}
	switch analysis.TaskType {
	case "simple", "medium", "complex", "very_complex":
	default:
		analysis.TaskType = "medium"
	}
	return analysis, nil
}

// DecomposeTask plans subtasks for a request through the model. The plan is
// capped at maxSubtasks; malformed entries are dropped rather than failing
// the whole plan.
func DecomposeTask(ctx context.Context, client *llm.Client, task *models.Task, maxSubtasks int) ([]SubtaskSpec, error) {
	if client == nil {
		return nil, errNoLLM
	}
	if maxSubtasks <= 0 {
		maxSubtasks = 10
	}

	payload, err := client.GenerateJSON(ctx, decomposePrompt(task, maxSubtasks), llm.Options{Type: llm.TaskComplex})
	if err != nil {
		return nil, err
	}
	if llm.IsFallback(payload) {
		return nil, ErrModelFallback
	}

	raw, ok := payload["subtasks"].([]any)
	if !ok {
		return nil, nil
	}

	var specs []SubtaskSpec
	for _, entry := range raw {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		description := stringAt(m, "description", "")
		if description == "" {
			continue
		}

		taskType := models.TaskType(stringAt(m, "type", string(models.TaskTypeGeneral)))
		if !models.ValidTaskType(taskType) {
			taskType = models.TaskTypeGeneral
		}
		priority := models.TaskPriority(stringAt(m, "priority", string(models.PriorityMedium)))
		if !models.ValidPriority(priority) {
			priority = models.PriorityMedium
		}

		specs = append(specs, SubtaskSpec{
			Description:  description,
			Type:         taskType,
			Priority:     priority,
			DependsOn:    intsAt(m, "depends_on"),
			Capabilities: stringsAt(m, "capabilities"),
		})
		if len(specs) == maxSubtasks {
			break
		}
	}
	return specs, nil
}

// ValidateSolution scores a task result through the model. The score is
// clamped to 0–100.
func ValidateSolution(ctx context.Context, client *llm.Client, task *models.Task, result map[string]any) (Validation, error) {
	if client == nil {
		return Validation{}, errNoLLM
	}
	payload, err := client.GenerateJSON(ctx, validatePrompt(task, result), llm.Options{Type: llm.TaskNormal})
	if err != nil {
		return Validation{}, err
	}
	if llm.IsFallback(payload) {
		return Validation{}, ErrModelFallback
	}

	v := Validation{
		IsValid:      boolAt(payload, "is_valid"),
		Score:        floatAt(payload, "score", 0),
		Strengths:    stringsAt(payload, "strengths"),
		Weaknesses:   stringsAt(payload, "weaknesses"),
		Improvements: stringsAt(payload, "improvements"),
		FinalVerdict: stringAt(payload, "final_verdict", ""),
	}
	if v.Score < 0 {
		v.Score = 0
	}
	if v.Score > 100 {
		v.Score = 100
	}
	return v, nil
}

func stringAt(m map[string]any, key, def string) string {
	if s, ok := m[key].(string); ok && s != "" {
		return s
	}
	return def
}

func stringsAt(m map[string]any, key string) []string {
	raw, ok := m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func intsAt(m map[string]any, key string) []int {
	raw, ok := m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]int, 0, len(raw))
	for _, v := range raw {
		if f, ok := asFloat(v); ok {
			out = append(out, int(f))
		}
	}
	return out
}

func floatAt(m map[string]any, key string, def float64) float64 {
	if f, ok := asFloat(m[key]); ok {
		return f
	}
	return def
}

func boolAt(m map[string]any, key string) bool {
	b, _ := m[key].(bool)
	return b
}
