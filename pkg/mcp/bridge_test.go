package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskhive-ai/taskhive/pkg/config"
	"github.com/taskhive-ai/taskhive/pkg/masking"
	"github.com/taskhive-ai/taskhive/pkg/tools"
)

// newTestBridge creates a Bridge over in-memory MCP servers.
func newTestBridge(t *testing.T, servers map[string]map[string]mcpsdk.ToolHandler, masker *masking.MaskingService) *Bridge {
	t.Helper()

	registry := config.NewMCPServerRegistry(nil)
	client := newClient(registry)

	for serverID, handlers := range servers {
		ts := startTestServer(t, serverID, handlers)

		sdkClient := mcpsdk.NewClient(&mcpsdk.Implementation{
			Name: "taskhive-test", Version: "test",
		}, nil)
		session, err := sdkClient.Connect(context.Background(), ts.clientTransport, nil)
		require.NoError(t, err)

		client.InjectSession(serverID, sdkClient, session)
	}

	bridge := NewBridge(client, registry, masker)
	t.Cleanup(func() { _ = bridge.Close() })
	return bridge
}

func TestBridge_Tools(t *testing.T) {
	bridge := newTestBridge(t, map[string]map[string]mcpsdk.ToolHandler{
		"github": {
			"list_repos": func(_ context.Context, _ *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
				return textResult("repo-1")
			},
			"search_code": func(_ context.Context, _ *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
				return textResult("hit")
			},
		},
	}, nil)

	discovered, err := bridge.Tools(context.Background())
	require.NoError(t, err)
	require.Len(t, discovered, 2)

	// Sorted by qualified name for deterministic registration
	assert.Equal(t, "github.list_repos", discovered[0].Name())
	assert.Equal(t, "github.search_code", discovered[1].Name())

	// Capability is the server ID
	assert.Equal(t, "github", discovered[0].Capability())

	// Description carries the schema for LLM-backed agents
	assert.Contains(t, discovered[0].Description(), "test tool: list_repos")
	assert.Contains(t, discovered[0].Description(), "Parameters:")
}

func TestBridge_Execute(t *testing.T) {
	bridge := newTestBridge(t, map[string]map[string]mcpsdk.ToolHandler{
		"github": {
			"list_repos": func(_ context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
				// Echo the org back so the test proves params reach the server
				var parsed map[string]any
				if err := json.Unmarshal(req.Params.Arguments, &parsed); err != nil {
					return &mcpsdk.CallToolResult{
						Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: "parse error: " + err.Error()}},
						IsError: true,
					}, nil
				}
				org, _ := parsed["org"].(string)
				return textResult("repos for " + org + ": repo-1, repo-2")
			},
		},
	}, nil)

	discovered, err := bridge.Tools(context.Background())
	require.NoError(t, err)
	require.Len(t, discovered, 1)

	result := discovered[0].Execute(context.Background(), map[string]any{"org": "taskhive-ai"})
	assert.True(t, result.Success)
	assert.Equal(t, "repos for taskhive-ai: repo-1, repo-2", result.Data)
	assert.Empty(t, result.Error)
}

func TestBridge_Execute_ErrorResult(t *testing.T) {
	bridge := newTestBridge(t, map[string]map[string]mcpsdk.ToolHandler{
		"github": {
			"bad_tool": func(_ context.Context, _ *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
				return &mcpsdk.CallToolResult{
					Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: "unknown organization"}},
					IsError: true,
				}, nil
			},
		},
	}, nil)

	discovered, err := bridge.Tools(context.Background())
	require.NoError(t, err)

	// Server-side tool failure arrives as a failed ToolResult, not a panic
	// or a dropped call.
	result := discovered[0].Execute(context.Background(), nil)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "unknown organization")
}

func TestBridge_Execute_NoSession(t *testing.T) {
	bridge := newTestBridge(t, map[string]map[string]mcpsdk.ToolHandler{}, nil)

	result := bridge.call(context.Background(), "ghost", "tool", nil)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "ghost.tool")
}

func TestBridge_RegisterAll(t *testing.T) {
	bridge := newTestBridge(t, map[string]map[string]mcpsdk.ToolHandler{
		"github": {
			"list_repos": func(_ context.Context, _ *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
				return textResult("repo-1")
			},
		},
		"jira": {
			"create_issue": func(_ context.Context, _ *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
				return textResult("HIVE-42")
			},
		},
	}, nil)

	reg := tools.NewRegistry()
	count, err := bridge.RegisterAll(context.Background(), reg)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Registered tools execute through the shared registry like built-ins
	result := reg.Execute(context.Background(), "jira.create_issue", map[string]any{"title": "t"})
	assert.True(t, result.Success)
	assert.Equal(t, "HIVE-42", result.Data)

	// Capability lookup groups by server
	byCap := reg.ByCapability("github")
	require.Len(t, byCap, 1)
	assert.Equal(t, "github.list_repos", byCap[0].Name())
}

func TestBridge_RegisterAll_DuplicateSkipped(t *testing.T) {
	bridge := newTestBridge(t, map[string]map[string]mcpsdk.ToolHandler{
		"github": {
			"list_repos": func(_ context.Context, _ *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
				return textResult("repo-1")
			},
		},
	}, nil)

	reg := tools.NewRegistry()

	first, err := bridge.RegisterAll(context.Background(), reg)
	require.NoError(t, err)
	assert.Equal(t, 1, first)

	// Second registration collides on every name and registers nothing
	second, err := bridge.RegisterAll(context.Background(), reg)
	require.NoError(t, err)
	assert.Equal(t, 0, second)
}

func TestBridge_Masking(t *testing.T) {
	registry := config.NewMCPServerRegistry(map[string]*config.MCPServerConfig{
		"github": {
			Transport: config.TransportConfig{Type: config.TransportStdio, Command: "echo"},
			DataMasking: &config.MaskingConfig{
				Enabled:       true,
				PatternGroups: []string{"security"},
			},
		},
	})
	masker := masking.NewMaskingService(registry, masking.RequestMaskingConfig{})

	bridge := newTestBridge(t, map[string]map[string]mcpsdk.ToolHandler{
		"github": {
			"get_secrets": func(_ context.Context, _ *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
				return textResult(`api_key: "sk-FAKE-NOT-REAL-API-KEY-XXXX"`)
			},
		},
	}, masker)
	// The bridge registry from newTestBridge is empty; swap in the configured one.
	bridge.registry = registry

	discovered, err := bridge.Tools(context.Background())
	require.NoError(t, err)

	result := discovered[0].Execute(context.Background(), nil)
	require.True(t, result.Success)

	text, ok := result.Data.(string)
	require.True(t, ok)
	assert.NotContains(t, text, "sk-FAKE-NOT-REAL-API-KEY-XXXX")
	assert.Contains(t, text, "__MASKED_API_KEY__")
}

func TestBridge_Truncation(t *testing.T) {
	huge := strings.Repeat("log line of considerable length for padding\n", 2000) // ~88KB

	bridge := newTestBridge(t, map[string]map[string]mcpsdk.ToolHandler{
		"logs": {
			"dump": func(_ context.Context, _ *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
				return textResult(huge)
			},
		},
	}, nil)

	discovered, err := bridge.Tools(context.Background())
	require.NoError(t, err)

	result := discovered[0].Execute(context.Background(), nil)
	require.True(t, result.Success)

	text, ok := result.Data.(string)
	require.True(t, ok)
	assert.Less(t, len(text), len(huge))
	assert.Contains(t, text, "[TRUNCATED:")
}

func TestExtractTextContent(t *testing.T) {
	t.Run("concatenates text parts", func(t *testing.T) {
		result := &mcpsdk.CallToolResult{Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: "part one"},
			&mcpsdk.TextContent{Text: "part two"},
		}}
		assert.Equal(t, "part one\npart two", extractTextContent(result))
	})

	t.Run("skips non-text content", func(t *testing.T) {
		result := &mcpsdk.CallToolResult{Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: "kept"},
			&mcpsdk.ImageContent{Data: []byte{0x1}, MIMEType: "image/png"},
		}}
		assert.Equal(t, "kept", extractTextContent(result))
	})

	t.Run("empty content", func(t *testing.T) {
		assert.Empty(t, extractTextContent(&mcpsdk.CallToolResult{}))
	})
}

func TestClientFactory_CreateBridge(t *testing.T) {
	ts := startTestServer(t, "github", map[string]mcpsdk.ToolHandler{
		"list_repos": func(_ context.Context, _ *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
			return textResult("repo-1")
		},
	})

	registry := config.NewMCPServerRegistry(nil)
	factory := NewTestClientFactory(registry, func(c *Client) {
		sdkClient := mcpsdk.NewClient(&mcpsdk.Implementation{
			Name: "taskhive-test", Version: "test",
		}, nil)
		session, err := sdkClient.Connect(context.Background(), ts.clientTransport, nil)
		require.NoError(t, err)
		c.InjectSession("github", sdkClient, session)
	})

	bridge, err := factory.CreateBridge(context.Background(), []string{"github"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bridge.Close() })

	discovered, err := bridge.Tools(context.Background())
	require.NoError(t, err)
	assert.Len(t, discovered, 1)
}
