package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// HiveYAMLConfig represents the complete taskhive.yaml file structure.
type HiveYAMLConfig struct {
	Swarm       *SwarmConfig                  `yaml:"swarm"`
	LLM         *LLMConfig                    `yaml:"llm"`
	Environment *EnvironmentConfig            `yaml:"environment"`
	Workspace   *WorkspaceConfig              `yaml:"workspace"`
	Server      *ServerConfig                 `yaml:"server"`
	Store       *StoreConfig                  `yaml:"store"`
	Slack       *SlackConfig                  `yaml:"slack"`
	Agents      map[string]AgentProfileConfig `yaml:"agents"`
	MCPServers  map[string]MCPServerConfig    `yaml:"mcp_servers"`
}

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load taskhive.yaml from configDir
//  2. Expand environment variables
//  3. Parse YAML into structs
//  4. Merge built-in + user-defined agent profiles and MCP servers
//  5. Merge user sub-configs over built-in defaults
//  6. Build in-memory registries
//  7. Validate all configuration
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}

	stats := cfg.Stats()
	log.Info("Configuration initialized successfully",
		"agent_profiles", stats.Profiles,
		"mcp_servers", stats.MCPServers)

	return cfg, nil
}

// load is the internal loader (not exported)
func load(_ context.Context, configDir string) (*Config, error) {
	loader := &configLoader{configDir: configDir}

	hiveCfg, err := loader.loadHiveYAML()
	if err != nil {
		return nil, NewLoadError("taskhive.yaml", err)
	}

	builtin := GetBuiltinConfig()

	// Merge built-in + user-defined components (user overrides built-in)
	profiles := mergeProfiles(builtin.Profiles, hiveCfg.Agents)
	mcpServers := mergeMCPServers(builtin.MCPServers, hiveCfg.MCPServers)

	profileRegistry := NewAgentProfileRegistry(profiles)
	mcpServerRegistry := NewMCPServerRegistry(mcpServers)

	swarmCfg, err := resolveSubConfig(DefaultSwarmConfig(), hiveCfg.Swarm, "swarm")
	if err != nil {
		return nil, err
	}
	llmCfg, err := resolveSubConfig(DefaultLLMConfig(), hiveCfg.LLM, "llm")
	if err != nil {
		return nil, err
	}
	envCfg, err := resolveSubConfig(DefaultEnvironmentConfig(), hiveCfg.Environment, "environment")
	if err != nil {
		return nil, err
	}
	wsCfg, err := resolveSubConfig(DefaultWorkspaceConfig(), hiveCfg.Workspace, "workspace")
	if err != nil {
		return nil, err
	}
	serverCfg, err := resolveSubConfig(DefaultServerConfig(), hiveCfg.Server, "server")
	if err != nil {
		return nil, err
	}
	storeCfg, err := resolveSubConfig(DefaultStoreConfig(), hiveCfg.Store, "store")
	if err != nil {
		return nil, err
	}
	slackCfg, err := resolveSubConfig(DefaultSlackConfig(), hiveCfg.Slack, "slack")
	if err != nil {
		return nil, err
	}

	return &Config{
		configDir:         configDir,
		Swarm:             swarmCfg,
		LLM:               llmCfg,
		Environment:       envCfg,
		Workspace:         wsCfg,
		Server:            serverCfg,
		Store:             storeCfg,
		Slack:             slackCfg,
		ProfileRegistry:   profileRegistry,
		MCPServerRegistry: mcpServerRegistry,
	}, nil
}

// resolveSubConfig merges a user-provided section over built-in defaults.
// Non-zero user values override; unset fields keep their defaults.
func resolveSubConfig[T any](defaults *T, user *T, section string) (*T, error) {
	if user == nil {
		return defaults, nil
	}
	if err := mergo.Merge(defaults, user, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("failed to merge %s config: %w", section, err)
	}
	return defaults, nil
}

// mergeProfiles merges built-in and user-defined agent profiles.
// User-defined profiles override built-in profiles with the same name.
func mergeProfiles(builtin map[string]AgentProfileConfig, user map[string]AgentProfileConfig) map[string]*AgentProfileConfig {
	result := make(map[string]*AgentProfileConfig, len(builtin)+len(user))

	for name, profile := range builtin {
		capsCopy := make([]string, len(profile.Capabilities))
		copy(capsCopy, profile.Capabilities)
		serversCopy := make([]string, len(profile.MCPServers))
		copy(serversCopy, profile.MCPServers)
		p := profile
		p.Capabilities = capsCopy
		p.MCPServers = serversCopy
		result[name] = &p
	}

	for name, profile := range user {
		p := profile
		result[name] = &p
	}

	return result
}

// mergeMCPServers merges built-in and user-defined MCP server configurations.
// User-defined servers override built-in servers with the same ID.
func mergeMCPServers(builtin map[string]MCPServerConfig, user map[string]MCPServerConfig) map[string]*MCPServerConfig {
	result := make(map[string]*MCPServerConfig, len(builtin)+len(user))

	for id, server := range builtin {
		s := server
		result[id] = &s
	}
	for id, server := range user {
		s := server
		result[id] = &s
	}

	return result
}

// validate performs comprehensive validation on loaded configuration
func validate(cfg *Config) error {
	validator := NewValidator(cfg)
	return validator.ValidateAll()
}

type configLoader struct {
	configDir string
}

func (l *configLoader) loadYAML(filename string, target any) error {
	path := filepath.Join(l.configDir, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}

	// Expand environment variables using {{.VAR}} template syntax.
	// ExpandEnv passes through original data on parse/execution errors,
	// letting the YAML parser produce the clearer error message.
	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return nil
}

func (l *configLoader) loadHiveYAML() (*HiveYAMLConfig, error) {
	var cfg HiveYAMLConfig

	// Initialize maps to avoid nil maps
	cfg.Agents = make(map[string]AgentProfileConfig)
	cfg.MCPServers = make(map[string]MCPServerConfig)

	if err := l.loadYAML("taskhive.yaml", &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
