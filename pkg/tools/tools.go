// Package tools defines the capability registry agents execute against.
// Canonical tools (filesystem, code, http, database, web_search, git) live
// here; external MCP tools are bridged in through the same Tool interface.
// Agents consume the uniform ToolResult envelope and never see tool
// internals.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/taskhive-ai/taskhive/pkg/models"
)

// Tool is one executable capability. Implementations must be safe for
// concurrent Execute calls and must report failures through the result
// envelope rather than panicking.
type Tool interface {
	// Name is the unique registry key, e.g. "filesystem".
	Name() string

	// Capability groups related tools for lookup, e.g. "storage".
	Capability() string

	// Description is shown to LLMs deciding which tool to call.
	Description() string

	// Execute runs one action. The action name travels in params["action"]
	// for multi-action tools.
	Execute(ctx context.Context, params map[string]any) models.ToolResult
}

// Registry holds tools by name and capability.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Tool
	byCap  map[string][]Tool
	logger *slog.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]Tool),
		byCap:  make(map[string][]Tool),
		logger: slog.Default().With("component", "tools"),
	}
}

// Register adds a tool. Duplicate names are rejected.
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := t.Name()
	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}
	r.byName[name] = t
	r.byCap[t.Capability()] = append(r.byCap[t.Capability()], t)
	r.logger.Debug("Tool registered", "name", name, "capability", t.Capability())
	return nil
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byName[name]
	return t, ok
}

// ByCapability returns all tools sharing a capability.
func (r *Registry) ByCapability(capability string) []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Tool(nil), r.byCap[capability]...)
}

// List returns all registered tool names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute runs a named tool. Unknown tools yield a failure result, never a
// panic or an error value — agents treat tool trouble as data.
func (r *Registry) Execute(ctx context.Context, name string, params map[string]any) models.ToolResult {
	t, ok := r.Get(name)
	if !ok {
		return Failure("unknown tool: %s", name)
	}
	return t.Execute(ctx, params)
}

// Success wraps data in a successful result envelope.
func Success(data any) models.ToolResult {
	return models.ToolResult{Success: true, Data: data}
}

// Failure formats an error message into a failed result envelope.
func Failure(format string, args ...any) models.ToolResult {
	return models.ToolResult{Success: false, Error: fmt.Sprintf(format, args...)}
}

// stringParam reads a required string parameter.
func stringParam(params map[string]any, key string) (string, bool) {
	v, ok := params[key].(string)
	return v, ok && v != ""
}

// intParam reads an integer parameter that may arrive as a JSON float.
func intParam(params map[string]any, key string) (int, bool) {
	switch v := params[key].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	}
	return 0, false
}

// actionParam reads the action selector shared by multi-action tools.
func actionParam(params map[string]any) (string, bool) {
	return stringParam(params, "action")
}
