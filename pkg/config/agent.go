package config

import (
	"fmt"
	"sort"
	"sync"
)

// AgentProfileConfig defines a reusable agent template. Profiles are
// referenced by name when the coordinator spawns agents at startup or
// during scale-up.
type AgentProfileConfig struct {
	// Kind selects the deliberation architecture: reactive, cognitive, hybrid.
	Kind string `yaml:"kind"`

	// Description for operators and agent selection keyword matching.
	Description string `yaml:"description,omitempty"`

	// Capabilities advertised by agents of this profile, e.g.
	// "code-generation", "monitoring", "data-analysis".
	Capabilities []string `yaml:"capabilities,omitempty"`

	// MCPServers lists external tool servers exposed to this profile.
	MCPServers []string `yaml:"mcp_servers,omitempty"`

	// Count is how many agents of this profile to spawn at startup.
	Count int `yaml:"count,omitempty"`

	// ComplexityThreshold is the hybrid routing threshold (hybrid only).
	ComplexityThreshold float64 `yaml:"complexity_threshold,omitempty"`

	// LearningRate tunes hybrid threshold adaptation (hybrid only).
	LearningRate float64 `yaml:"learning_rate,omitempty"`
}

// AgentProfileRegistry stores agent profiles in memory with thread-safe access.
type AgentProfileRegistry struct {
	profiles map[string]*AgentProfileConfig
	mu       sync.RWMutex
}

// NewAgentProfileRegistry creates a new agent profile registry.
func NewAgentProfileRegistry(profiles map[string]*AgentProfileConfig) *AgentProfileRegistry {
	copied := make(map[string]*AgentProfileConfig, len(profiles))
	for k, v := range profiles {
		copied[k] = v
	}
	return &AgentProfileRegistry{profiles: copied}
}

// Get retrieves an agent profile by name (thread-safe).
func (r *AgentProfileRegistry) Get(name string) (*AgentProfileConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	profile, exists := r.profiles[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, name)
	}
	return profile, nil
}

// GetAll returns all profiles (thread-safe, returns copy).
func (r *AgentProfileRegistry) GetAll() map[string]*AgentProfileConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]*AgentProfileConfig, len(r.profiles))
	for k, v := range r.profiles {
		result[k] = v
	}
	return result
}

// Has checks if a profile exists in the registry (thread-safe).
func (r *AgentProfileRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.profiles[name]
	return exists
}

// Names returns a sorted list of profile names (thread-safe).
func (r *AgentProfileRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.profiles))
	for name := range r.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of profiles in the registry (thread-safe).
func (r *AgentProfileRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.profiles)
}
