package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/taskhive-ai/taskhive/pkg/models"
)

// Analysis carries the initial LLM classification of a request, echoed into
// the completion report.
type Analysis struct {
	TaskType       string   `json:"task_type"`
	Complexity     string   `json:"complexity"`
	Domains        []string `json:"domains,omitempty"`
	Approach       string   `json:"approach,omitempty"`
	RequiredAgents []string `json:"required_agents,omitempty"`
}

// Report aggregates everything written into a root task's completion report.
type Report struct {
	Request     string
	Root        *models.Task
	Subtasks    []*models.Task
	Analysis    Analysis
	ProjectDir  string
	SystemStats map[string]any
}

// WriteReport renders the report as markdown under the reports directory and
// returns the file path.
func (m *Manager) WriteReport(r Report) (string, error) {
	if r.Root == nil {
		return "", fmt.Errorf("report requires a root task")
	}

	name := fmt.Sprintf("report_%s_%s.md", r.Root.ID, time.Now().UTC().Format("20060102_150405"))
	path := filepath.Join(m.reportsDir, name)

	if err := os.WriteFile(path, []byte(renderReport(r)), 0o644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	m.logger.Info("Report written", "task_id", r.Root.ID, "path", path)
	return path, nil
}

func renderReport(r Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Task Report: %s\n\n", r.Root.ID)

	fmt.Fprintf(&b, "## Request\n\n%s\n\n", r.Request)

	b.WriteString("## Metadata\n\n")
	fmt.Fprintf(&b, "- **ID**: %s\n", r.Root.ID)
	fmt.Fprintf(&b, "- **State**: %s\n", r.Root.Status)
	fmt.Fprintf(&b, "- **Priority**: %s\n", r.Root.Priority)
	fmt.Fprintf(&b, "- **Created**: %s\n", r.Root.CreatedAt.UTC().Format(time.RFC3339))
	if r.Root.CompletedAt != nil {
		fmt.Fprintf(&b, "- **Duration**: %s\n", r.Root.CompletedAt.Sub(r.Root.CreatedAt).Round(time.Second))
	}
	b.WriteString("\n")

	b.WriteString("## Initial Analysis\n\n")
	fmt.Fprintf(&b, "- **Type**: %s\n", orDash(r.Analysis.TaskType))
	fmt.Fprintf(&b, "- **Complexity**: %s\n", orDash(r.Analysis.Complexity))
	fmt.Fprintf(&b, "- **Domains**: %s\n", orDash(strings.Join(r.Analysis.Domains, ", ")))
	fmt.Fprintf(&b, "- **Approach**: %s\n", orDash(r.Analysis.Approach))
	fmt.Fprintf(&b, "- **Required agent types**: %s\n\n", orDash(strings.Join(r.Analysis.RequiredAgents, ", ")))

	b.WriteString("## Subtask Execution\n\n")
	if len(r.Subtasks) == 0 {
		b.WriteString("No subtasks; the root task executed directly.\n\n")
	}
	for i, st := range r.Subtasks {
		fmt.Fprintf(&b, "### %d. %s\n\n", i+1, st.Description)
		fmt.Fprintf(&b, "- **State**: %s\n", st.Status)
		fmt.Fprintf(&b, "- **Type**: %s\n", st.Type)
		fmt.Fprintf(&b, "- **Agent**: %s\n", orDash(st.AssignedTo))
		fmt.Fprintf(&b, "- **Validation score**: %.1f\n", st.ValidationScore)
		if solution := resultString(st, "solution"); solution != "" {
			fmt.Fprintf(&b, "\n%s\n", solution)
		}
		if files := resultFiles(st); len(files) > 0 {
			b.WriteString("- **Files created**:\n")
			for _, f := range files {
				fmt.Fprintf(&b, "  - `%s`\n", f)
			}
		}
		b.WriteString("\n")
	}

	completed, failed := 0, 0
	var scoreSum float64
	var scored int
	for _, st := range r.Subtasks {
		switch st.Status {
		case models.TaskStatusCompleted:
			completed++
		case models.TaskStatusFailed:
			failed++
		}
		if st.ValidationScore > 0 {
			scoreSum += st.ValidationScore
			scored++
		}
	}
	b.WriteString("## Summary\n\n")
	fmt.Fprintf(&b, "- **Subtasks**: %d total, %d completed, %d failed\n", len(r.Subtasks), completed, failed)
	if scored > 0 {
		fmt.Fprintf(&b, "- **Average validation score**: %.1f\n", scoreSum/float64(scored))
	}
	b.WriteString("\n")

	if r.ProjectDir != "" {
		fmt.Fprintf(&b, "## Project Location\n\n`%s`\n\n", r.ProjectDir)
	}

	if len(r.SystemStats) > 0 {
		b.WriteString("## System Metrics\n\n")
		for _, k := range sortedKeys(r.SystemStats) {
			fmt.Fprintf(&b, "- **%s**: %v\n", k, r.SystemStats[k])
		}
		b.WriteString("\n")
	}

	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func resultString(t *models.Task, key string) string {
	if t.Result == nil {
		return ""
	}
	s, _ := t.Result[key].(string)
	return s
}

func resultFiles(t *models.Task) []string {
	if t.Result == nil {
		return nil
	}
	raw, ok := t.Result["files_created"].([]any)
	if !ok {
		if strs, ok := t.Result["files_created"].([]string); ok {
			return strs
		}
		return nil
	}
	files := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			files = append(files, s)
		}
	}
	return files
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
