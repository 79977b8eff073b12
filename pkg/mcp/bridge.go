package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/taskhive-ai/taskhive/pkg/config"
	"github.com/taskhive-ai/taskhive/pkg/masking"
	"github.com/taskhive-ai/taskhive/pkg/models"
	"github.com/taskhive-ai/taskhive/pkg/tools"
)

// Bridge exposes tools discovered on MCP servers through the shared tool
// registry. Each MCP tool becomes a tools.Tool named "server.tool" whose
// capability is the server ID, so agents acquire external tools the same
// way they use built-in ones.
type Bridge struct {
	client   *Client
	registry *config.MCPServerRegistry

	// Optional masking service for redacting sensitive data in tool results.
	// nil means no masking is applied.
	maskingService *masking.MaskingService

	logger *slog.Logger
}

// NewBridge creates a bridge over an initialized client.
// maskingService may be nil (masking disabled).
func NewBridge(client *Client, registry *config.MCPServerRegistry, maskingService *masking.MaskingService) *Bridge {
	return &Bridge{
		client:         client,
		registry:       registry,
		maskingService: maskingService,
		logger:         slog.Default(),
	}
}

// Tools discovers tools from all connected servers and wraps each as a
// tools.Tool. Tools whose qualified name does not route (characters outside
// the "server.tool" format) are skipped with a warning. Results are sorted
// by name so registration order is deterministic.
func (b *Bridge) Tools(ctx context.Context) ([]tools.Tool, error) {
	byServer, err := b.client.ListAllTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("discover MCP tools: %w", err)
	}

	var wrapped []tools.Tool
	for serverID, serverTools := range byServer {
		// Server instructions, when configured, ride along on every tool
		// description so agents see the operator's guidance for that server.
		var instructions string
		if serverCfg, err := b.registry.Get(serverID); err == nil {
			instructions = serverCfg.Instructions
		}

		for _, tool := range serverTools {
			name := QualifiedName(serverID, tool.Name)
			if _, _, err := SplitToolName(name); err != nil {
				b.logger.Warn("Skipping MCP tool with unroutable name",
					"server", serverID, "tool", tool.Name)
				continue
			}
			wrapped = append(wrapped, &serverTool{
				bridge:      b,
				serverID:    serverID,
				tool:        tool.Name,
				description: describeTool(tool, instructions),
			})
		}
	}

	sort.Slice(wrapped, func(i, j int) bool { return wrapped[i].Name() < wrapped[j].Name() })
	return wrapped, nil
}

// RegisterAll discovers tools and registers them into reg.
// Returns the number of tools registered. Duplicate names are logged and
// skipped rather than failing the whole registration: a misconfigured server
// must not take down the built-in tool set.
func (b *Bridge) RegisterAll(ctx context.Context, reg *tools.Registry) (int, error) {
	discovered, err := b.Tools(ctx)
	if err != nil {
		return 0, err
	}

	registered := 0
	for _, t := range discovered {
		if err := reg.Register(t); err != nil {
			b.logger.Warn("Skipping MCP tool registration", "tool", t.Name(), "error", err)
			continue
		}
		registered++
	}

	b.logger.Info("MCP tools registered", "count", registered, "servers", b.client.sessionCount())
	return registered, nil
}

// Close releases the underlying client (MCP transports, subprocesses).
func (b *Bridge) Close() error {
	if b.client != nil {
		return b.client.Close()
	}
	return nil
}

// call executes a tool on its server and converts the outcome.
// Failures travel inside the ToolResult, never as a Go error: agents treat
// tool failures as observations to reason about, not as control flow.
func (b *Bridge) call(ctx context.Context, serverID, toolName string, params map[string]any) models.ToolResult {
	result, err := b.client.CallTool(ctx, serverID, toolName, params)
	if err != nil {
		return tools.Failure("MCP tool %s failed: %s", QualifiedName(serverID, toolName), err)
	}

	content := extractTextContent(result)
	if b.maskingService != nil {
		content = b.maskingService.MaskToolResult(content, serverID)
	}
	content = TruncateForStorage(content)

	if result.IsError {
		return tools.Failure("%s", content)
	}
	return tools.Success(content)
}

// serverTool adapts one MCP tool to the tools.Tool interface.
type serverTool struct {
	bridge      *Bridge
	serverID    string
	tool        string
	description string
}

func (t *serverTool) Name() string { return QualifiedName(t.serverID, t.tool) }

// Capability is the server ID: capability-based selection then matches all
// tools a server provides.
func (t *serverTool) Capability() string { return t.serverID }

func (t *serverTool) Description() string { return t.description }

func (t *serverTool) Execute(ctx context.Context, params map[string]any) models.ToolResult {
	return t.bridge.call(ctx, t.serverID, t.tool, params)
}

// describeTool builds the registry description from the MCP tool metadata.
// The input schema is appended so LLM-backed agents can shape their calls.
func describeTool(tool *mcpsdk.Tool, instructions string) string {
	desc := tool.Description
	if schema := marshalSchema(tool.InputSchema); schema != "" && schema != "null" {
		if desc != "" {
			desc += "\n"
		}
		desc += "Parameters: " + schema
	}
	if instructions != "" {
		if desc != "" {
			desc += "\n"
		}
		desc += "Server notes: " + instructions
	}
	return desc
}

// extractTextContent extracts text from MCP CallToolResult.
// Concatenates all TextContent items. Non-text content (images, embedded
// resources) is logged at debug level and skipped.
func extractTextContent(result *mcpsdk.CallToolResult) string {
	var parts []string
	for _, c := range result.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			parts = append(parts, tc.Text)
		} else {
			slog.Debug("MCP tool returned non-text content, skipping",
				"content_type", fmt.Sprintf("%T", c))
		}
	}
	return strings.Join(parts, "\n")
}

// marshalSchema serializes a tool's InputSchema to a JSON string.
func marshalSchema(schema any) string {
	if schema == nil {
		return ""
	}
	data, err := json.Marshal(schema)
	if err != nil {
		slog.Debug("Failed to marshal tool input schema", "error", err)
		return ""
	}
	return string(data)
}
