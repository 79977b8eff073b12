package config

import (
	"fmt"
	"regexp"
)

// ConfigValidator validates configuration comprehensively with clear error messages
type ConfigValidator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration
func NewValidator(cfg *Config) *ConfigValidator {
	return &ConfigValidator{cfg: cfg}
}

// ValidateAll performs comprehensive validation (fail-fast, stops at first error)
func (v *ConfigValidator) ValidateAll() error {
	// MCP servers validate before profiles, which reference them
	if err := v.validateSwarm(); err != nil {
		return fmt.Errorf("swarm validation failed: %w", err)
	}
	if err := v.validateLLM(); err != nil {
		return fmt.Errorf("llm validation failed: %w", err)
	}
	if err := v.validateEnvironment(); err != nil {
		return fmt.Errorf("environment validation failed: %w", err)
	}
	if err := v.validateWorkspace(); err != nil {
		return fmt.Errorf("workspace validation failed: %w", err)
	}
	if err := v.validateStore(); err != nil {
		return fmt.Errorf("store validation failed: %w", err)
	}
	if err := v.validateMCPServers(); err != nil {
		return fmt.Errorf("MCP server validation failed: %w", err)
	}
	if err := v.validateProfiles(); err != nil {
		return fmt.Errorf("agent profile validation failed: %w", err)
	}
	return nil
}

func (v *ConfigValidator) validateSwarm() error {
	s := v.cfg.Swarm

	if s.MaxCPUPercent <= 0 || s.MaxCPUPercent > 100 {
		return NewValidationError("swarm", "swarm", "max_cpu_percent", fmt.Errorf("%w: must be in (0, 100]", ErrInvalidValue))
	}
	if s.MinAgents < 1 {
		return NewValidationError("swarm", "swarm", "min_agents", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	if s.MaxAgents < s.MinAgents {
		return NewValidationError("swarm", "swarm", "max_agents", fmt.Errorf("%w: must be >= min_agents", ErrInvalidValue))
	}
	if s.InitialAgents < s.MinAgents || s.InitialAgents > s.MaxAgents {
		return NewValidationError("swarm", "swarm", "initial_agents", fmt.Errorf("%w: must be within [min_agents, max_agents]", ErrInvalidValue))
	}
	if s.MaxRetries < 0 {
		return NewValidationError("swarm", "swarm", "max_retries", fmt.Errorf("%w: must be >= 0", ErrInvalidValue))
	}
	if s.MaxDecompositionDepth < 1 {
		return NewValidationError("swarm", "swarm", "max_decomposition_depth", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	if s.ValidationThreshold < 0 || s.ValidationThreshold > 100 {
		return NewValidationError("swarm", "swarm", "validation_threshold", fmt.Errorf("%w: must be in [0, 100]", ErrInvalidValue))
	}

	for field, d := range map[string]int64{
		"bdi_interval":        int64(s.BDIInterval),
		"scheduler_interval":  int64(s.SchedulerInterval),
		"monitor_interval":    int64(s.MonitorInterval),
		"checkpoint_interval": int64(s.CheckpointInterval),
		"task_timeout":        int64(s.TaskTimeout),
	} {
		if d <= 0 {
			return NewValidationError("swarm", "swarm", field, fmt.Errorf("%w: must be positive", ErrInvalidValue))
		}
	}

	return nil
}

func (v *ConfigValidator) validateLLM() error {
	l := v.cfg.LLM

	if l.BaseURL == "" {
		return NewValidationError("llm", "llm", "base_url", ErrMissingRequiredField)
	}
	if l.Model == "" {
		return NewValidationError("llm", "llm", "model", ErrMissingRequiredField)
	}
	if l.MaxAttempts < 1 {
		return NewValidationError("llm", "llm", "max_attempts", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	if l.TimeoutSimple <= 0 || l.TimeoutNormal <= 0 || l.TimeoutComplex <= 0 || l.TimeoutReasoning <= 0 {
		return NewValidationError("llm", "llm", "timeouts", fmt.Errorf("%w: all tier timeouts must be positive", ErrInvalidValue))
	}
	if l.StreamInactivityTimeout <= 0 {
		return NewValidationError("llm", "llm", "stream_inactivity_timeout", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if l.CacheSize < 0 {
		return NewValidationError("llm", "llm", "cache_size", fmt.Errorf("%w: must be >= 0", ErrInvalidValue))
	}

	return nil
}

func (v *ConfigValidator) validateEnvironment() error {
	e := v.cfg.Environment

	totals := map[string]float64{
		"cpu":          e.Resources.CPU,
		"memory_mb":    e.Resources.MemoryMB,
		"disk_io_mbps": e.Resources.DiskIOMBps,
		"network_mbps": e.Resources.NetworkMbps,
		"file_handles": e.Resources.FileHandles,
		"threads":      e.Resources.Threads,
	}
	for field, total := range totals {
		if total <= 0 {
			return NewValidationError("environment", "resources", field, fmt.Errorf("%w: must be positive", ErrInvalidValue))
		}
	}

	switch e.DefaultVisibility {
	case "FULL", "NAMESPACE", "PROCESS", "NETWORK", "NONE":
	default:
		return NewValidationError("environment", "environment", "default_visibility",
			fmt.Errorf("%w: %q", ErrInvalidValue, e.DefaultVisibility))
	}

	if e.EventBufferSize < 1 {
		return NewValidationError("environment", "environment", "event_buffer_size", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}

	return nil
}

func (v *ConfigValidator) validateWorkspace() error {
	w := v.cfg.Workspace

	if w.Root == "" {
		return NewValidationError("workspace", "workspace", "root", ErrMissingRequiredField)
	}
	if w.StateDir == "" {
		return NewValidationError("workspace", "workspace", "state_dir", ErrMissingRequiredField)
	}
	if w.ReportsDir == "" {
		return NewValidationError("workspace", "workspace", "reports_dir", ErrMissingRequiredField)
	}
	if w.KeepCheckpoints < 1 {
		return NewValidationError("workspace", "workspace", "keep_checkpoints", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}

	return nil
}

func (v *ConfigValidator) validateStore() error {
	s := v.cfg.Store

	switch s.Backend {
	case StoreMemory, StorePostgres:
	default:
		return NewValidationError("store", "store", "backend", fmt.Errorf("%w: %q", ErrInvalidValue, s.Backend))
	}
	if s.Backend == StorePostgres && s.DatabaseURLEnv == "" {
		return NewValidationError("store", "store", "database_url_env", ErrMissingRequiredField)
	}

	return nil
}

func (v *ConfigValidator) validateMCPServers() error {
	for serverID, server := range v.cfg.MCPServerRegistry.GetAll() {
		switch server.Transport.Type {
		case TransportStdio:
			if server.Transport.Command == "" {
				return NewValidationError("mcp_server", serverID, "transport.command", ErrMissingRequiredField)
			}
		case TransportHTTP, TransportSSE:
			if server.Transport.URL == "" {
				return NewValidationError("mcp_server", serverID, "transport.url", ErrMissingRequiredField)
			}
		default:
			return NewValidationError("mcp_server", serverID, "transport.type",
				fmt.Errorf("%w: %q", ErrInvalidValue, server.Transport.Type))
		}

		if server.DataMasking != nil {
			for i, pattern := range server.DataMasking.CustomPatterns {
				if _, err := regexp.Compile(pattern.Pattern); err != nil {
					return NewValidationError("mcp_server", serverID,
						fmt.Sprintf("data_masking.custom_patterns[%d]", i),
						fmt.Errorf("%w: %v", ErrInvalidValue, err))
				}
			}
		}
	}

	return nil
}

func (v *ConfigValidator) validateProfiles() error {
	for name, profile := range v.cfg.ProfileRegistry.GetAll() {
		switch profile.Kind {
		case "reactive", "cognitive", "hybrid":
		default:
			return NewValidationError("agent_profile", name, "kind",
				fmt.Errorf("%w: %q (want reactive, cognitive, or hybrid)", ErrInvalidValue, profile.Kind))
		}

		if profile.Count < 0 {
			return NewValidationError("agent_profile", name, "count", fmt.Errorf("%w: must be >= 0", ErrInvalidValue))
		}

		for _, serverID := range profile.MCPServers {
			if !v.cfg.MCPServerRegistry.Has(serverID) {
				return NewValidationError("agent_profile", name, "mcp_servers",
					fmt.Errorf("%w: MCP server %q not found", ErrInvalidReference, serverID))
			}
		}

		if profile.Kind == "hybrid" {
			if profile.ComplexityThreshold != 0 && (profile.ComplexityThreshold < 0.5 || profile.ComplexityThreshold > 4.0) {
				return NewValidationError("agent_profile", name, "complexity_threshold",
					fmt.Errorf("%w: must be within [0.5, 4.0]", ErrInvalidValue))
			}
			if profile.LearningRate < 0 || profile.LearningRate > 1 {
				return NewValidationError("agent_profile", name, "learning_rate",
					fmt.Errorf("%w: must be within [0, 1]", ErrInvalidValue))
			}
		}
	}

	return nil
}
