// Package mcp connects the swarm to Model Context Protocol servers: session
// lifecycle per server, tool discovery, tool calls with one classified
// retry, and background health probing. Discovered tools enter the shared
// registry through the Bridge.
package mcp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/cenkalti/backoff/v4"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/taskhive-ai/taskhive/pkg/config"
	"github.com/taskhive-ai/taskhive/pkg/version"
)

// link is one live server connection. The SDK client is kept alongside the
// session so a redial can reuse it.
type link struct {
	client  *mcpsdk.Client
	session *mcpsdk.ClientSession
}

// Client holds the sessions for a set of MCP servers. One instance serves
// one consumer; the bridge and the health monitor each get their own so
// probe traffic never shares a session with agent tool calls. Safe for
// concurrent use.
type Client struct {
	registry *config.MCPServerRegistry
	logger   *slog.Logger

	mu     sync.RWMutex
	links  map[string]link
	failed map[string]string // serverID -> last dial error

	// Tool lists cache until the session is redialed or a health probe
	// invalidates them.
	cacheMu sync.RWMutex
	cache   map[string][]*mcpsdk.Tool

	// dialMu serializes dial and redial per server so concurrent failures
	// produce one reconnect, not a herd.
	dialMu sync.Map // serverID -> *sync.Mutex
}

func newClient(registry *config.MCPServerRegistry) *Client {
	return &Client{
		registry: registry,
		links:    make(map[string]link),
		failed:   make(map[string]string),
		cache:    make(map[string][]*mcpsdk.Tool),
		logger:   slog.Default(),
	}
}

// Initialize dials every listed server. A server that fails to connect is
// recorded in FailedServers and skipped; the caller decides whether a
// partial tool set is acceptable. Always returns nil today; the error slot
// stays so an all-servers-down policy can be added without breaking callers.
func (c *Client) Initialize(ctx context.Context, serverIDs []string) error {
	for _, id := range serverIDs {
		if err := c.dial(ctx, id); err != nil {
			c.mu.Lock()
			c.failed[id] = err.Error()
			c.mu.Unlock()
			c.logger.Warn("MCP server failed to initialize", "server", id, "error", err)
		}
	}
	return nil
}

// dial connects one server, holding its per-server mutex. Connecting an
// already-connected server is a no-op.
func (c *Client) dial(ctx context.Context, serverID string) error {
	unlock := c.lockServer(serverID)
	defer unlock()
	return c.dialLocked(ctx, serverID)
}

func (c *Client) lockServer(serverID string) func() {
	muAny, _ := c.dialMu.LoadOrStore(serverID, &sync.Mutex{})
	mu := muAny.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// dialLocked does the connect. Caller holds the server's dial mutex.
func (c *Client) dialLocked(ctx context.Context, serverID string) error {
	c.mu.RLock()
	_, connected := c.links[serverID]
	c.mu.RUnlock()
	if connected {
		return nil
	}

	serverCfg, err := c.registry.Get(serverID)
	if err != nil {
		return fmt.Errorf("server %q not in registry: %w", serverID, err)
	}
	transport, err := newTransport(serverCfg.Transport)
	if err != nil {
		return fmt.Errorf("transport for %q: %w", serverID, err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	sdkClient := mcpsdk.NewClient(&mcpsdk.Implementation{
		Name:    version.AppName,
		Version: version.GitCommit,
	}, nil)
	session, err := sdkClient.Connect(dialCtx, transport, nil)
	if err != nil {
		// A stdio transport that half-started leaves a child process behind
		// unless its closer runs.
		if closer, ok := transport.(io.Closer); ok {
			_ = closer.Close()
		}
		return fmt.Errorf("connect %q: %w", serverID, err)
	}

	c.mu.Lock()
	c.links[serverID] = link{client: sdkClient, session: session}
	delete(c.failed, serverID)
	c.mu.Unlock()

	c.logger.Info("MCP server connected", "server", serverID)
	return nil
}

// redial tears the server's session down and connects again. The tool cache
// entry goes with the session.
func (c *Client) redial(ctx context.Context, serverID string) error {
	unlock := c.lockServer(serverID)
	defer unlock()

	c.mu.Lock()
	if l, ok := c.links[serverID]; ok {
		_ = l.session.Close()
		delete(c.links, serverID)
	}
	c.mu.Unlock()
	c.InvalidateToolCache(serverID)

	redialCtx, cancel := context.WithTimeout(ctx, redialTimeout)
	defer cancel()
	return c.dialLocked(redialCtx, serverID)
}

func (c *Client) session(serverID string) (*mcpsdk.ClientSession, error) {
	c.mu.RLock()
	l, ok := c.links[serverID]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no session for server %q", serverID)
	}
	return l.session, nil
}

// ListTools returns the server's tools, from cache when present.
func (c *Client) ListTools(ctx context.Context, serverID string) ([]*mcpsdk.Tool, error) {
	c.cacheMu.RLock()
	cached, hit := c.cache[serverID]
	c.cacheMu.RUnlock()
	if hit {
		return cached, nil
	}

	session, err := c.session(serverID)
	if err != nil {
		return nil, err
	}
	opCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	result, err := session.ListTools(opCtx, nil)
	if err != nil {
		return nil, fmt.Errorf("list tools from %q: %w", serverID, err)
	}

	tools := result.Tools
	if tools == nil {
		// Cache hits must never hand callers a nil slice.
		tools = []*mcpsdk.Tool{}
	}
	c.cacheMu.Lock()
	c.cache[serverID] = tools
	c.cacheMu.Unlock()
	return tools, nil
}

// ListAllTools gathers tools from every connected server. Servers that fail
// are logged and omitted; the error is non-nil only when nothing answered.
func (c *Client) ListAllTools(ctx context.Context) (map[string][]*mcpsdk.Tool, error) {
	c.mu.RLock()
	ids := make([]string, 0, len(c.links))
	for id := range c.links {
		ids = append(ids, id)
	}
	c.mu.RUnlock()

	byServer := make(map[string][]*mcpsdk.Tool)
	var lastErr error
	for _, id := range ids {
		tools, err := c.ListTools(ctx, id)
		if err != nil {
			lastErr = err
			c.logger.Warn("Failed to list tools from MCP server", "server", id, "error", err)
			continue
		}
		byServer[id] = tools
	}
	if len(byServer) == 0 && lastErr != nil {
		return nil, fmt.Errorf("all servers failed to list tools: %w", lastErr)
	}
	return byServer, nil
}

// CallTool executes one tool call. On a transport-class failure the session
// is redialed and the call retried once, with a jittered pause between
// attempts; every other failure goes straight back to the caller.
func (c *Client) CallTool(ctx context.Context, serverID, toolName string, args map[string]any) (*mcpsdk.CallToolResult, error) {
	params := &mcpsdk.CallToolParams{Name: toolName, Arguments: args}

	var result *mcpsdk.CallToolResult
	op := func() error {
		var err error
		result, err = c.call(ctx, serverID, params)
		if err == nil {
			return nil
		}
		switch ClassifyError(err) {
		case RetryNewSession:
			c.logger.Info("MCP call failed, redialing",
				"server", serverID, "tool", toolName, "error", err)
			if rerr := c.redial(ctx, serverID); rerr != nil {
				return backoff.Permanent(fmt.Errorf("redial %q: %w", serverID, rerr))
			}
			return err
		case RetrySameSession:
			c.logger.Info("MCP call failed, retrying",
				"server", serverID, "tool", toolName, "error", err)
			return err
		default:
			return backoff.Permanent(err)
		}
	}

	if err := backoff.Retry(op, c.retryPolicy(ctx)); err != nil {
		return nil, fmt.Errorf("call %s on %q: %w", toolName, serverID, err)
	}
	return result, nil
}

// retryPolicy allows the single retry after a jittered pause around
// retryPause.
func (c *Client) retryPolicy(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = retryPause
	bo.RandomizationFactor = 0.5
	return backoff.WithContext(backoff.WithMaxRetries(bo, maxCallRetries), ctx)
}

func (c *Client) call(ctx context.Context, serverID string, params *mcpsdk.CallToolParams) (*mcpsdk.CallToolResult, error) {
	session, err := c.session(serverID)
	if err != nil {
		return nil, err
	}
	opCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	return session.CallTool(opCtx, params)
}

// Close shuts every session down and clears all state. The first close
// error is returned; the rest are discarded so every session still gets its
// Close call.
func (c *Client) Close() error {
	c.mu.Lock()
	var firstErr error
	for id, l := range c.links {
		if err := l.session.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close session %q: %w", id, err)
		}
	}
	c.links = make(map[string]link)
	c.failed = make(map[string]string)
	c.mu.Unlock()

	c.cacheMu.Lock()
	c.cache = make(map[string][]*mcpsdk.Tool)
	c.cacheMu.Unlock()
	return firstErr
}

// InvalidateToolCache drops the cached tool list so the next ListTools
// probes the live server.
func (c *Client) InvalidateToolCache(serverID string) {
	c.cacheMu.Lock()
	delete(c.cache, serverID)
	c.cacheMu.Unlock()
}

// HasSession reports whether the server is currently connected.
func (c *Client) HasSession(serverID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.links[serverID]
	return ok
}

func (c *Client) sessionCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.links)
}

// FailedServers returns a copy of the servers whose last dial failed, with
// the error text.
func (c *Client) FailedServers() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.failed))
	for k, v := range c.failed {
		out[k] = v
	}
	return out
}
