package tools

import (
	"context"
	"os/exec"
	"strconv"
	"strings"

	"github.com/taskhive-ai/taskhive/pkg/models"
	"github.com/taskhive-ai/taskhive/pkg/workspace"
)

// GitTool runs version-control primitives inside an agent sandbox. Commands
// execute argv-only; nothing ever passes through a shell.
type GitTool struct {
	manager *workspace.Manager
}

// NewGitTool returns the canonical git tool.
func NewGitTool(manager *workspace.Manager) *GitTool {
	return &GitTool{manager: manager}
}

func (t *GitTool) Name() string       { return "git" }
func (t *GitTool) Capability() string { return "vcs" }

func (t *GitTool) Description() string {
	return "Git operations in the agent workspace: init, status, add, commit, log, diff, branch."
}

// Execute dispatches one git action. params: action, agent_id, path?
// (repository dir relative to the sandbox), message? (commit).
func (t *GitTool) Execute(ctx context.Context, params map[string]any) models.ToolResult {
	action, ok := actionParam(params)
	if !ok {
		return Failure("git: action parameter required")
	}
	agentID, ok := stringParam(params, "agent_id")
	if !ok {
		return Failure("git: agent_id parameter required")
	}
	if _, err := t.manager.AgentDir(agentID); err != nil {
		return Failure("git: %v", err)
	}

	rel, _ := stringParam(params, "path")
	if rel == "" {
		rel = "."
	}
	dir, err := t.manager.Resolve(agentID, rel)
	if err != nil {
		return Failure("git: %v", err)
	}

	switch action {
	case "init":
		return t.run(ctx, dir, "init")
	case "status":
		return t.run(ctx, dir, "status", "--short")
	case "add":
		return t.run(ctx, dir, "add", "-A")
	case "commit":
		message, ok := stringParam(params, "message")
		if !ok {
			return Failure("git: message parameter required")
		}
		if res := t.run(ctx, dir, "add", "-A"); !res.Success {
			return res
		}
		return t.run(ctx, dir, "commit", "-m", message)
	case "log":
		count := 10
		if n, ok := intParam(params, "count"); ok && n > 0 {
			count = n
		}
		return t.run(ctx, dir, "log", "--oneline", "-n", strconv.Itoa(count))
	case "diff":
		return t.run(ctx, dir, "diff", "--stat")
	case "branch":
		return t.run(ctx, dir, "branch", "--list")
	default:
		return Failure("git: unknown action %q", action)
	}
}

// run executes one git command with a fixed argv in dir.
func (t *GitTool) run(ctx context.Context, dir string, args ...string) models.ToolResult {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir

	out, err := cmd.CombinedOutput()
	output := strings.TrimSpace(string(out))
	if err != nil {
		return Failure("git %s: %v: %s", args[0], err, output)
	}
	return Success(map[string]any{"output": output})
}
