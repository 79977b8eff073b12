package config

import "time"

// SwarmConfig contains coordinator and agent pool configuration.
// These values control decomposition, scheduling, monitoring, scaling,
// and checkpointing behavior.
type SwarmConfig struct {
	// MaxCPUPercent is the host CPU ceiling. Above it the autoscaler
	// retires idle agents and the environment flags CPU allocations.
	MaxCPUPercent float64 `yaml:"max_cpu_percent"`

	// MaxMemoryMB is the host memory ceiling used by environment constraints.
	MaxMemoryMB int `yaml:"max_memory_mb"`

	// InitialAgents is the number of agents spawned at startup.
	InitialAgents int `yaml:"initial_agents"`

	// MinAgents is the floor the autoscaler never goes below.
	MinAgents int `yaml:"min_agents"`

	// MaxAgents is the hard cap on pool size.
	MaxAgents int `yaml:"max_agents"`

	// BDIInterval is the default deliberation cadence for agents.
	BDIInterval time.Duration `yaml:"bdi_interval"`

	// SchedulerInterval is how often eligible tasks are matched to agents.
	SchedulerInterval time.Duration `yaml:"scheduler_interval"`

	// SchedulerJitter is the random jitter added to SchedulerInterval.
	// Actual interval: SchedulerInterval ± SchedulerJitter.
	SchedulerJitter time.Duration `yaml:"scheduler_jitter"`

	// MonitorInterval is the sweep cadence for in-flight task monitors.
	MonitorInterval time.Duration `yaml:"monitor_interval"`

	// LoadBalanceInterval is how often queued work is rebalanced.
	LoadBalanceInterval time.Duration `yaml:"load_balance_interval"`

	// AutoscaleInterval is how often pool size is reconsidered.
	AutoscaleInterval time.Duration `yaml:"autoscale_interval"`

	// CheckpointInterval is how often swarm state is written to disk.
	CheckpointInterval time.Duration `yaml:"checkpoint_interval"`

	// HeartbeatInterval is the telemetry gauge refresh cadence.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// TaskTimeout is the maximum time a dispatched task may run.
	TaskTimeout time.Duration `yaml:"task_timeout"`

	// GracefulShutdownTimeout is the max time to wait for active tasks
	// to settle during shutdown.
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout"`

	// MaxQueueSize bounds the pending task queue. Zero means unbounded.
	MaxQueueSize int `yaml:"max_queue_size"`

	// MaxRetries is how many times a failed or invalid task is requeued.
	MaxRetries int `yaml:"max_retries"`

	// MaxDecompositionDepth bounds recursive task decomposition.
	MaxDecompositionDepth int `yaml:"max_decomposition_depth"`

	// ValidationThreshold is the minimum validation score (0–100) for a
	// task result to count as valid.
	ValidationThreshold float64 `yaml:"validation_threshold"`

	// Feature flags. Each is a *bool: nil means enabled (the default),
	// explicit false disables. Pointers survive the defaults merge, a
	// plain false would not.
	EnableTaskDecomposition *bool `yaml:"enable_task_decomposition,omitempty"`
	EnableValidation        *bool `yaml:"enable_validation,omitempty"`
	EnableLoadBalancing     *bool `yaml:"enable_load_balancing,omitempty"`
	EnableAutoScaling       *bool `yaml:"enable_auto_scaling,omitempty"`
	EnableFaultRecovery     *bool `yaml:"enable_fault_recovery,omitempty"`
}

// DecompositionEnabled reports whether LLM task decomposition is on.
func (c *SwarmConfig) DecompositionEnabled() bool {
	return c.EnableTaskDecomposition == nil || *c.EnableTaskDecomposition
}

// ValidationEnabled reports whether result validation is on.
func (c *SwarmConfig) ValidationEnabled() bool {
	return c.EnableValidation == nil || *c.EnableValidation
}

// LoadBalancingEnabled reports whether queue rebalancing is on.
func (c *SwarmConfig) LoadBalancingEnabled() bool {
	return c.EnableLoadBalancing == nil || *c.EnableLoadBalancing
}

// AutoScalingEnabled reports whether pool auto-scaling is on.
func (c *SwarmConfig) AutoScalingEnabled() bool {
	return c.EnableAutoScaling == nil || *c.EnableAutoScaling
}

// FaultRecoveryEnabled reports whether checkpoint restore and task
// requeue on agent failure are on.
func (c *SwarmConfig) FaultRecoveryEnabled() bool {
	return c.EnableFaultRecovery == nil || *c.EnableFaultRecovery
}

// BoolPtr returns a pointer to b. Convenience for *bool struct fields.
func BoolPtr(b bool) *bool { return &b }

// DefaultSwarmConfig returns the built-in swarm defaults.
func DefaultSwarmConfig() *SwarmConfig {
	return &SwarmConfig{
		MaxCPUPercent:           90.0,
		MaxMemoryMB:             8192,
		InitialAgents:           3,
		MinAgents:               1,
		MaxAgents:               10,
		BDIInterval:             5 * time.Second,
		SchedulerInterval:       1 * time.Second,
		SchedulerJitter:         250 * time.Millisecond,
		MonitorInterval:         5 * time.Second,
		LoadBalanceInterval:     30 * time.Second,
		AutoscaleInterval:       15 * time.Second,
		CheckpointInterval:      60 * time.Second,
		HeartbeatInterval:       10 * time.Second,
		TaskTimeout:             300 * time.Second,
		GracefulShutdownTimeout: 30 * time.Second,
		MaxQueueSize:            1000,
		MaxRetries:              3,
		MaxDecompositionDepth:   3,
		ValidationThreshold:     70.0,
	}
}
