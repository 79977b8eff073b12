package mcp

import (
	"context"

	"github.com/taskhive-ai/taskhive/pkg/config"
	"github.com/taskhive-ai/taskhive/pkg/masking"
)

// ClientFactory creates Client instances. The swarm uses one long-lived
// bridge client; the health monitor creates its own so probe traffic never
// competes with agent tool calls for a session.
type ClientFactory struct {
	registry *config.MCPServerRegistry

	// createClientFn is replaceable for tests that inject in-memory sessions.
	createClientFn func(ctx context.Context, serverIDs []string) (*Client, error)
}

// NewClientFactory creates a new factory.
func NewClientFactory(registry *config.MCPServerRegistry) *ClientFactory {
	f := &ClientFactory{registry: registry}
	f.createClientFn = func(ctx context.Context, serverIDs []string) (*Client, error) {
		client := newClient(registry)
		if err := client.Initialize(ctx, serverIDs); err != nil {
			_ = client.Close() // Clean up partial initialization
			return nil, err
		}
		return client, nil
	}
	return f
}

// CreateClient creates a new Client connected to the specified servers.
// The caller is responsible for calling Close() when done.
func (f *ClientFactory) CreateClient(ctx context.Context, serverIDs []string) (*Client, error) {
	return f.createClientFn(ctx, serverIDs)
}

// CreateBridge creates a fully-wired Bridge for the given servers.
// This is the primary entry point used at startup to populate the tool
// registry. maskingService may be nil.
func (f *ClientFactory) CreateBridge(
	ctx context.Context,
	serverIDs []string,
	maskingService *masking.MaskingService,
) (*Bridge, error) {
	client, err := f.CreateClient(ctx, serverIDs)
	if err != nil {
		return nil, err
	}
	return NewBridge(client, f.registry, maskingService), nil
}
