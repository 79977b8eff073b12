package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/taskhive-ai/taskhive/pkg/models"
)

// systemPrompt frames every cognitive call with the agent's identity so the
// model answers as a swarm member, not a chat assistant.
func systemPrompt(a *BaseAgent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, an autonomous agent in a software engineering swarm.\n", a.Name())
	if caps := a.Capabilities(); len(caps) > 0 {
		fmt.Fprintf(&b, "Your capabilities: %s.\n", strings.Join(caps, ", "))
	}
	b.WriteString("Respond with a single JSON object and nothing else.")
	return b.String()
}

func analyzePrompt(task *models.Task) string {
	var b strings.Builder
	b.WriteString("Classify the following task.\n\n")
	writeTaskBlock(&b, task)
	b.WriteString(`
Respond with a JSON object:
{
  "task_type": "simple" | "medium" | "complex" | "very_complex",
  "domains": ["areas of expertise the task touches"],
  "required_outputs": ["artifacts the solution must produce"],
  "approach": "one-sentence plan"
}`)
	return b.String()
}

func solvePrompt(task *models.Task, analysis TaskAnalysis) string {
	var b strings.Builder
	b.WriteString("Complete the following task.\n\n")
	writeTaskBlock(&b, task)
	fmt.Fprintf(&b, "Classification: %s\n", analysis.TaskType)
	if len(analysis.RequiredOutputs) > 0 {
		fmt.Fprintf(&b, "Required outputs: %s\n", strings.Join(analysis.RequiredOutputs, ", "))
	}
	if analysis.Approach != "" {
		fmt.Fprintf(&b, "Suggested approach: %s\n", analysis.Approach)
	}
	b.WriteString(`
Respond with a JSON object:
{
  "solution": "what you did and why",
  "code": "the main code artifact, or empty",
  "steps": ["the steps you took"],
  "output": "the final deliverable content",
  "validation": "how you verified the solution",
  "files_to_create": [{"path": "relative/file/path", "content": "full file content", "description": "purpose"}]
}
Only include files_to_create when the task produces files.`)
	return b.String()
}

func decomposePrompt(task *models.Task, maxSubtasks int) string {
	var b strings.Builder
	b.WriteString("Break the following request into concrete subtasks for a team of agents.\n\n")
	writeTaskBlock(&b, task)
	fmt.Fprintf(&b, `
Respond with a JSON object:
{
  "subtasks": [
    {
      "description": "what to do",
      "type": "analysis" | "design" | "implementation" | "testing" | "deployment" | "general",
      "priority": "low" | "medium" | "high" | "critical",
      "depends_on": [indices of earlier subtasks this one needs],
      "capabilities": ["capabilities the assignee should have"]
    }
  ]
}
Rules: at most %d subtasks; depends_on may only reference earlier entries; return {"subtasks": []} when the request needs no decomposition.`, maxSubtasks)
	return b.String()
}

func validatePrompt(task *models.Task, result map[string]any) string {
	var b strings.Builder
	b.WriteString("Evaluate whether this result actually completes the task.\n\n")
	writeTaskBlock(&b, task)
	b.WriteString("Result:\n")
	b.WriteString(compactJSON(result))
	b.WriteString(`

Respond with a JSON object:
{
  "is_valid": true | false,
  "score": 0-100,
  "strengths": ["what the result does well"],
  "weaknesses": ["what is missing or wrong"],
  "improvements": ["concrete changes that would raise the score"],
  "final_verdict": "one-sentence judgement"
}`)
	return b.String()
}

func messagePrompt(a *BaseAgent, msg *models.Message) string {
	var b strings.Builder
	b.WriteString("You received a message from another agent.\n\n")
	fmt.Fprintf(&b, "Performative: %s\n", msg.Performative)
	fmt.Fprintf(&b, "Sender: %s\n", msg.Sender)
	fmt.Fprintf(&b, "Content: %s\n", compactJSON(msg.Content))
	if goals := a.Desires(); len(goals) > 0 {
		fmt.Fprintf(&b, "Your goals: %s\n", strings.Join(goals, ", "))
	}
	b.WriteString(`
Respond with a JSON object:
{
  "sender_intent": "what the sender wants",
  "relevance_to_goals": "how this relates to your goals",
  "belief_updates": {"belief key": "new value"},
  "suggested_response": "reply text, or empty when no reply is needed",
  "priority": "low" | "medium" | "high"
}`)
	return b.String()
}

func writeTaskBlock(b *strings.Builder, task *models.Task) {
	fmt.Fprintf(b, "Task: %s\n", task.Description)
	fmt.Fprintf(b, "Type: %s\n", task.Type)
	fmt.Fprintf(b, "Priority: %s\n", task.Priority)
	if len(task.Payload) > 0 {
		fmt.Fprintf(b, "Payload: %s\n", compactJSON(task.Payload))
	}
}

func compactJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
