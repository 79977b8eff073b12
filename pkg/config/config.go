package config

// Config is the umbrella configuration object that encapsulates all
// sub-configs and registries. This is the primary object returned by
// Initialize() and used throughout the application.
type Config struct {
	configDir string // Configuration directory path (for reference)

	// Sub-configurations with defaults applied
	Swarm       *SwarmConfig
	LLM         *LLMConfig
	Environment *EnvironmentConfig
	Workspace   *WorkspaceConfig
	Server      *ServerConfig
	Store       *StoreConfig
	Slack       *SlackConfig

	// Component registries
	ProfileRegistry   *AgentProfileRegistry
	MCPServerRegistry *MCPServerRegistry
}

// Stats contains statistics about loaded configuration
type Stats struct {
	Profiles   int
	MCPServers int
}

// Stats returns configuration statistics for logging/monitoring
func (c *Config) Stats() Stats {
	s := Stats{}
	if c.ProfileRegistry != nil {
		s.Profiles = c.ProfileRegistry.Len()
	}
	if c.MCPServerRegistry != nil {
		s.MCPServers = c.MCPServerRegistry.Len()
	}
	return s
}

// ConfigDir returns the configuration directory path
func (c *Config) ConfigDir() string {
	return c.configDir
}

// GetProfile retrieves an agent profile by name.
// This is a convenience method that wraps ProfileRegistry.Get().
func (c *Config) GetProfile(name string) (*AgentProfileConfig, error) {
	return c.ProfileRegistry.Get(name)
}

// GetMCPServer retrieves an MCP server configuration by ID.
// This is a convenience method that wraps MCPServerRegistry.Get().
func (c *Config) GetMCPServer(serverID string) (*MCPServerConfig, error) {
	return c.MCPServerRegistry.Get(serverID)
}

// AllMCPServerIDs returns all configured MCP server IDs.
func (c *Config) AllMCPServerIDs() []string {
	return c.MCPServerRegistry.ServerIDs()
}
