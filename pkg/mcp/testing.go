package mcp

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/taskhive-ai/taskhive/pkg/config"
)

// InjectSession wires a pre-connected session into the client, bypassing
// the transport dial path. Test infrastructure only.
func (c *Client) InjectSession(serverID string, sdkClient *mcpsdk.Client, session *mcpsdk.ClientSession) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.links[serverID] = link{client: sdkClient, session: session}
}

// NewTestClientFactory returns a factory whose clients are populated by
// injectFn instead of Initialize, so tests can hand in in-memory MCP
// sessions.
func NewTestClientFactory(registry *config.MCPServerRegistry, injectFn func(c *Client)) *ClientFactory {
	return &ClientFactory{
		registry: registry,
		createClientFn: func(_ context.Context, _ []string) (*Client, error) {
			c := newClient(registry)
			injectFn(c)
			return c, nil
		},
	}
}
