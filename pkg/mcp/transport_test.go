package mcp

import (
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskhive-ai/taskhive/pkg/config"
)

func TestNewTransport_Stdio(t *testing.T) {
	transport, err := newTransport(config.TransportConfig{
		Type:    config.TransportStdio,
		Command: "npx",
		Args:    []string{"-y", "@modelcontextprotocol/server-github"},
		Env:     map[string]string{"GITHUB_TOKEN": "test-token"},
	})
	require.NoError(t, err)

	cmd, ok := transport.(*mcpsdk.CommandTransport)
	require.True(t, ok)
	// exec.Command resolves the full path, so check Args for the basename
	assert.Contains(t, cmd.Command.Path, "npx")
	assert.Contains(t, cmd.Command.Args, "-y")
	assert.Contains(t, cmd.Command.Args, "@modelcontextprotocol/server-github")
	assert.Contains(t, cmd.Command.Env, "GITHUB_TOKEN=test-token",
		"env overrides must reach the child process")
}

func TestNewTransport_HTTP(t *testing.T) {
	transport, err := newTransport(config.TransportConfig{
		Type: config.TransportHTTP,
		URL:  "https://mcp.example.com/v1",
	})
	require.NoError(t, err)

	ht, ok := transport.(*mcpsdk.StreamableClientTransport)
	require.True(t, ok)
	assert.Equal(t, "https://mcp.example.com/v1", ht.Endpoint)
	// Plain config needs no custom client.
	assert.Nil(t, ht.HTTPClient)
}

func TestNewTransport_HTTP_WithAuth(t *testing.T) {
	transport, err := newTransport(config.TransportConfig{
		Type:        config.TransportHTTP,
		URL:         "https://mcp.example.com/v1",
		BearerToken: "my-token",
		Timeout:     30,
	})
	require.NoError(t, err)

	ht, ok := transport.(*mcpsdk.StreamableClientTransport)
	require.True(t, ok)
	assert.NotNil(t, ht.HTTPClient)
}

func TestNewTransport_SSE(t *testing.T) {
	transport, err := newTransport(config.TransportConfig{
		Type: config.TransportSSE,
		URL:  "https://mcp.example.com/sse",
	})
	require.NoError(t, err)

	st, ok := transport.(*mcpsdk.SSEClientTransport)
	require.True(t, ok)
	assert.Equal(t, "https://mcp.example.com/sse", st.Endpoint)
}

func TestNewTransport_SSE_WithVerifySSLFalse(t *testing.T) {
	verifySSL := false
	transport, err := newTransport(config.TransportConfig{
		Type:      config.TransportSSE,
		URL:       "https://mcp.example.com/sse",
		VerifySSL: &verifySSL,
	})
	require.NoError(t, err)

	st, ok := transport.(*mcpsdk.SSEClientTransport)
	require.True(t, ok)
	assert.NotNil(t, st.HTTPClient, "expected custom HTTP client for VerifySSL=false")
}

func TestNewTransport_InvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.TransportConfig
		wantErr string
	}{
		{
			name:    "stdio without command",
			cfg:     config.TransportConfig{Type: config.TransportStdio},
			wantErr: "requires command",
		},
		{
			name:    "http without url",
			cfg:     config.TransportConfig{Type: config.TransportHTTP},
			wantErr: "requires url",
		},
		{
			name:    "sse without url",
			cfg:     config.TransportConfig{Type: config.TransportSSE},
			wantErr: "requires url",
		},
		{
			name:    "unknown type",
			cfg:     config.TransportConfig{Type: "grpc"},
			wantErr: "unsupported transport type",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTransport(tt.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
