package tools

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/template"

	"github.com/taskhive-ai/taskhive/pkg/models"
	"github.com/taskhive-ai/taskhive/pkg/workspace"
)

// templateDir is where create_template stores reusable file templates
// inside each sandbox.
const templateDir = ".templates"

// FilesystemTool gives agents file operations confined to their own
// workspace sandbox. Every path parameter is resolved through the
// traversal-safe workspace join; the agent identity arrives in
// params["agent_id"], injected by the agent core before dispatch.
type FilesystemTool struct {
	manager *workspace.Manager
}

// NewFilesystemTool returns the canonical filesystem tool.
func NewFilesystemTool(manager *workspace.Manager) *FilesystemTool {
	return &FilesystemTool{manager: manager}
}

func (t *FilesystemTool) Name() string       { return "filesystem" }
func (t *FilesystemTool) Capability() string { return "storage" }

func (t *FilesystemTool) Description() string {
	return "File operations inside the agent workspace: create_directory, write, read, list, delete, copy, create_template, use_template."
}

// Execute dispatches one filesystem action.
func (t *FilesystemTool) Execute(_ context.Context, params map[string]any) models.ToolResult {
	action, ok := actionParam(params)
	if !ok {
		return Failure("filesystem: action parameter required")
	}
	agentID, ok := stringParam(params, "agent_id")
	if !ok {
		return Failure("filesystem: agent_id parameter required")
	}
	if _, err := t.manager.AgentDir(agentID); err != nil {
		return Failure("filesystem: %v", err)
	}

	switch action {
	case "create_directory":
		return t.createDirectory(agentID, params)
	case "write", "write_file":
		return t.write(agentID, params)
	case "read", "read_file":
		return t.read(agentID, params)
	case "list", "list_directory":
		return t.list(agentID, params)
	case "delete":
		return t.delete(agentID, params)
	case "copy":
		return t.copy(agentID, params)
	case "create_template":
		return t.createTemplate(agentID, params)
	case "use_template":
		return t.useTemplate(agentID, params)
	default:
		return Failure("filesystem: unknown action %q", action)
	}
}

func (t *FilesystemTool) resolve(agentID string, params map[string]any, key string) (string, error) {
	rel, ok := stringParam(params, key)
	if !ok {
		return "", fmt.Errorf("%s parameter required", key)
	}
	return t.manager.Resolve(agentID, rel)
}

func (t *FilesystemTool) createDirectory(agentID string, params map[string]any) models.ToolResult {
	path, err := t.resolve(agentID, params, "path")
	if err != nil {
		return Failure("filesystem: %v", err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return Failure("filesystem: %v", err)
	}
	return Success(map[string]any{"path": params["path"]})
}

func (t *FilesystemTool) write(agentID string, params map[string]any) models.ToolResult {
	path, err := t.resolve(agentID, params, "path")
	if err != nil {
		return Failure("filesystem: %v", err)
	}
	content, _ := params["content"].(string)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Failure("filesystem: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return Failure("filesystem: %v", err)
	}
	return Success(map[string]any{"path": params["path"], "bytes": len(content)})
}

func (t *FilesystemTool) read(agentID string, params map[string]any) models.ToolResult {
	path, err := t.resolve(agentID, params, "path")
	if err != nil {
		return Failure("filesystem: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Failure("filesystem: %v", err)
	}
	return Success(map[string]any{"path": params["path"], "content": string(data)})
}

func (t *FilesystemTool) list(agentID string, params map[string]any) models.ToolResult {
	rel, _ := stringParam(params, "path")
	if rel == "" {
		rel = "."
	}
	path, err := t.manager.Resolve(agentID, rel)
	if err != nil {
		return Failure("filesystem: %v", err)
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return Failure("filesystem: %v", err)
	}
	listing := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		listing = append(listing, map[string]any{
			"name":   e.Name(),
			"is_dir": e.IsDir(),
		})
	}
	return Success(map[string]any{"path": rel, "entries": listing})
}

func (t *FilesystemTool) delete(agentID string, params map[string]any) models.ToolResult {
	path, err := t.resolve(agentID, params, "path")
	if err != nil {
		return Failure("filesystem: %v", err)
	}
	if err := os.RemoveAll(path); err != nil {
		return Failure("filesystem: %v", err)
	}
	return Success(map[string]any{"path": params["path"]})
}

func (t *FilesystemTool) copy(agentID string, params map[string]any) models.ToolResult {
	src, err := t.resolve(agentID, params, "src")
	if err != nil {
		return Failure("filesystem: %v", err)
	}
	dest, err := t.resolve(agentID, params, "dest")
	if err != nil {
		return Failure("filesystem: %v", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return Failure("filesystem: %v", err)
	}
	defer func() { _ = in.Close() }()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return Failure("filesystem: %v", err)
	}
	out, err := os.Create(dest)
	if err != nil {
		return Failure("filesystem: %v", err)
	}
	defer func() { _ = out.Close() }()

	n, err := io.Copy(out, in)
	if err != nil {
		return Failure("filesystem: %v", err)
	}
	return Success(map[string]any{"src": params["src"], "dest": params["dest"], "bytes": n})
}

func (t *FilesystemTool) createTemplate(agentID string, params map[string]any) models.ToolResult {
	name, ok := stringParam(params, "name")
	if !ok {
		return Failure("filesystem: name parameter required")
	}
	content, _ := params["content"].(string)

	path, err := t.manager.Resolve(agentID, filepath.Join(templateDir, name))
	if err != nil {
		return Failure("filesystem: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Failure("filesystem: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return Failure("filesystem: %v", err)
	}
	return Success(map[string]any{"template": name})
}

func (t *FilesystemTool) useTemplate(agentID string, params map[string]any) models.ToolResult {
	name, ok := stringParam(params, "name")
	if !ok {
		return Failure("filesystem: name parameter required")
	}
	tmplPath, err := t.manager.Resolve(agentID, filepath.Join(templateDir, name))
	if err != nil {
		return Failure("filesystem: %v", err)
	}
	raw, err := os.ReadFile(tmplPath)
	if err != nil {
		return Failure("filesystem: template %q not found", name)
	}

	vars, _ := params["vars"].(map[string]any)
	tmpl, err := template.New(name).Option("missingkey=zero").Parse(string(raw))
	if err != nil {
		return Failure("filesystem: invalid template %q: %v", name, err)
	}
	var rendered bytes.Buffer
	if err := tmpl.Execute(&rendered, vars); err != nil {
		return Failure("filesystem: template render failed: %v", err)
	}

	path, err := t.resolve(agentID, params, "path")
	if err != nil {
		return Failure("filesystem: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Failure("filesystem: %v", err)
	}
	if err := os.WriteFile(path, rendered.Bytes(), 0o644); err != nil {
		return Failure("filesystem: %v", err)
	}
	return Success(map[string]any{"path": params["path"], "template": name, "bytes": rendered.Len()})
}
