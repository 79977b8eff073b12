package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/taskhive-ai/taskhive/pkg/llm"
	"github.com/taskhive-ai/taskhive/pkg/models"
)

// Generator is the slice of the LLM client the code tool needs.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts llm.Options) (*llm.Response, error)
	GenerateJSON(ctx context.Context, prompt string, opts llm.Options) (map[string]any, error)
}

// CodeTool analyses and produces source code. Generation-class actions go
// through the LLM; format and lint are local.
type CodeTool struct {
	generator Generator
}

// NewCodeTool returns the canonical code tool.
func NewCodeTool(generator Generator) *CodeTool {
	return &CodeTool{generator: generator}
}

func (t *CodeTool) Name() string       { return "code" }
func (t *CodeTool) Capability() string { return "code" }

func (t *CodeTool) Description() string {
	return "Source code operations: analyze, generate, refactor, test, format, lint."
}

// Execute dispatches one code action.
func (t *CodeTool) Execute(ctx context.Context, params map[string]any) models.ToolResult {
	action, ok := actionParam(params)
	if !ok {
		return Failure("code: action parameter required")
	}

	switch action {
	case "analyze":
		return t.analyze(ctx, params)
	case "generate":
		return t.generate(ctx, params)
	case "refactor":
		return t.refactor(ctx, params)
	case "test":
		return t.test(ctx, params)
	case "format":
		return t.format(params)
	case "lint":
		return t.lint(params)
	default:
		return Failure("code: unknown action %q", action)
	}
}

func (t *CodeTool) analyze(ctx context.Context, params map[string]any) models.ToolResult {
	code, ok := stringParam(params, "code")
	if !ok {
		return Failure("code: code parameter required")
	}

	prompt := fmt.Sprintf(`Analyze this code and respond with JSON containing:
"language", "purpose", "issues" (list of strings), "quality" (0-100).

Code:
%s`, code)

	payload, err := t.generator.GenerateJSON(ctx, prompt, llm.Options{Type: llm.TaskNormal})
	if err != nil {
		return Failure("code: analysis failed: %v", err)
	}
	if llm.IsFallback(payload) {
		return Failure("code: analysis produced no structured output")
	}
	return Success(payload)
}

func (t *CodeTool) generate(ctx context.Context, params map[string]any) models.ToolResult {
	spec, ok := stringParam(params, "description")
	if !ok {
		return Failure("code: description parameter required")
	}
	language, _ := stringParam(params, "language")
	if language == "" {
		language = "python"
	}

	prompt := fmt.Sprintf("Write %s code for the following. Respond with only the code, no prose.\n\n%s", language, spec)
	resp, err := t.generator.Generate(ctx, prompt, llm.Options{Type: llm.TaskComplex})
	if err != nil {
		return Failure("code: generation failed: %v", err)
	}
	return Success(map[string]any{
		"language": language,
		"code":     stripFences(resp.Content),
	})
}

func (t *CodeTool) refactor(ctx context.Context, params map[string]any) models.ToolResult {
	code, ok := stringParam(params, "code")
	if !ok {
		return Failure("code: code parameter required")
	}
	goal, _ := stringParam(params, "goal")
	if goal == "" {
		goal = "improve readability without changing behavior"
	}

	prompt := fmt.Sprintf("Refactor this code to %s. Respond with only the refactored code.\n\n%s", goal, code)
	resp, err := t.generator.Generate(ctx, prompt, llm.Options{Type: llm.TaskComplex})
	if err != nil {
		return Failure("code: refactor failed: %v", err)
	}
	return Success(map[string]any{"code": stripFences(resp.Content)})
}

func (t *CodeTool) test(ctx context.Context, params map[string]any) models.ToolResult {
	code, ok := stringParam(params, "code")
	if !ok {
		return Failure("code: code parameter required")
	}

	prompt := fmt.Sprintf("Write unit tests for this code. Respond with only the test code.\n\n%s", code)
	resp, err := t.generator.Generate(ctx, prompt, llm.Options{Type: llm.TaskComplex})
	if err != nil {
		return Failure("code: test generation failed: %v", err)
	}
	return Success(map[string]any{"code": stripFences(resp.Content)})
}

// format normalizes whitespace: trailing spaces stripped, exactly one
// trailing newline.
func (t *CodeTool) format(params map[string]any) models.ToolResult {
	code, ok := stringParam(params, "code")
	if !ok {
		return Failure("code: code parameter required")
	}

	lines := strings.Split(code, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	formatted := strings.TrimRight(strings.Join(lines, "\n"), "\n") + "\n"
	return Success(map[string]any{"code": formatted})
}

// lint runs cheap structural checks and reports findings.
func (t *CodeTool) lint(params map[string]any) models.ToolResult {
	code, ok := stringParam(params, "code")
	if !ok {
		return Failure("code: code parameter required")
	}

	var findings []string
	for i, line := range strings.Split(code, "\n") {
		if len(line) > 120 {
			findings = append(findings, fmt.Sprintf("line %d exceeds 120 characters", i+1))
		}
		if strings.HasSuffix(line, " ") || strings.HasSuffix(line, "\t") {
			findings = append(findings, fmt.Sprintf("line %d has trailing whitespace", i+1))
		}
	}
	if strings.Contains(code, "\t") && strings.Contains(code, "    ") {
		findings = append(findings, "mixed tab and space indentation")
	}
	return Success(map[string]any{
		"findings": findings,
		"clean":    len(findings) == 0,
	})
}

// stripFences removes a surrounding markdown code fence, if any.
func stripFences(code string) string {
	code = strings.TrimSpace(code)
	if !strings.HasPrefix(code, "```") {
		return code
	}
	code = strings.TrimPrefix(code, "```")
	if idx := strings.IndexByte(code, '\n'); idx >= 0 {
		code = code[idx+1:]
	}
	code = strings.TrimSuffix(strings.TrimSpace(code), "```")
	return strings.TrimSpace(code)
}
