package config

import "time"

// ResourceTotals defines the ledgered capacity per resource kind.
type ResourceTotals struct {
	CPU         float64 `yaml:"cpu"`          // logical cores
	MemoryMB    float64 `yaml:"memory_mb"`    // megabytes
	DiskIOMBps  float64 `yaml:"disk_io_mbps"` // MB/s budget
	NetworkMbps float64 `yaml:"network_mbps"` // Mbps budget
	FileHandles float64 `yaml:"file_handles"` // open handle budget
	Threads     float64 `yaml:"threads"`      // thread budget
}

// EnvironmentConfig defines the simulated environment parameters.
type EnvironmentConfig struct {
	// Totals per ledgered resource.
	Resources ResourceTotals `yaml:"resources"`

	// DefaultVisibility applied to agents without an explicit level.
	// One of FULL, NAMESPACE, PROCESS, NETWORK, NONE.
	DefaultVisibility string `yaml:"default_visibility"`

	// UpdateInterval is the dynamics sampling cadence.
	UpdateInterval time.Duration `yaml:"update_interval"`

	// EventBufferSize bounds the environment event ring.
	EventBufferSize int `yaml:"event_buffer_size"`

	// CongestionAmplitude scales the simulated network congestion wave
	// folded into the dynamics update. Zero disables simulation.
	CongestionAmplitude float64 `yaml:"congestion_amplitude"`
}

// DefaultEnvironmentConfig returns the built-in environment defaults.
func DefaultEnvironmentConfig() *EnvironmentConfig {
	return &EnvironmentConfig{
		Resources: ResourceTotals{
			CPU:         8,
			MemoryMB:    8192,
			DiskIOMBps:  500,
			NetworkMbps: 1000,
			FileHandles: 4096,
			Threads:     512,
		},
		DefaultVisibility:   "NAMESPACE",
		UpdateInterval:      2 * time.Second,
		EventBufferSize:     10000,
		CongestionAmplitude: 0.2,
	}
}
