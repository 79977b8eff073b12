package config

import "time"

// ServerConfig holds HTTP API server settings.
type ServerConfig struct {
	Host             string   `yaml:"host"`
	Port             int      `yaml:"port"`
	AllowedWSOrigins []string `yaml:"allowed_ws_origins,omitempty"`
}

// DefaultServerConfig returns the built-in server defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Host: "0.0.0.0",
		Port: 8080,
	}
}

// SlackConfig holds Slack notification settings.
type SlackConfig struct {
	Enabled  bool   `yaml:"enabled"`
	TokenEnv string `yaml:"token_env"`
	Channel  string `yaml:"channel,omitempty"`

	// DashboardURL, when set, is linked from notifications so readers can
	// jump to the task view.
	DashboardURL string `yaml:"dashboard_url,omitempty"`
}

// DefaultSlackConfig returns the built-in Slack defaults (disabled).
func DefaultSlackConfig() *SlackConfig {
	return &SlackConfig{
		Enabled:  false,
		TokenEnv: "SLACK_BOT_TOKEN",
	}
}

// WorkspaceConfig holds filesystem layout settings for agent workspaces,
// checkpoints, and reports.
type WorkspaceConfig struct {
	// Root is the directory holding workspaces/<agent_id>/ trees.
	Root string `yaml:"root"`

	// StateDir holds checkpoint_<ts>.json files.
	StateDir string `yaml:"state_dir"`

	// ReportsDir holds report_<task_id>_<ts>.md files.
	ReportsDir string `yaml:"reports_dir"`

	// KeepCheckpoints is how many checkpoint files the sweeper retains.
	KeepCheckpoints int `yaml:"keep_checkpoints"`

	// SweepInterval is how often old checkpoints are pruned.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// DefaultWorkspaceConfig returns the built-in workspace defaults.
func DefaultWorkspaceConfig() *WorkspaceConfig {
	return &WorkspaceConfig{
		Root:            "./workspaces",
		StateDir:        "./state",
		ReportsDir:      "./reports",
		KeepCheckpoints: 5,
		SweepInterval:   10 * time.Minute,
	}
}

// StoreBackend selects the run-history persistence backend.
type StoreBackend string

const (
	// StoreMemory keeps history in process memory only
	StoreMemory StoreBackend = "memory"
	// StorePostgres persists history to PostgreSQL
	StorePostgres StoreBackend = "postgres"
)

// StoreConfig holds run-history persistence settings.
type StoreConfig struct {
	Backend StoreBackend `yaml:"backend"`

	// DatabaseURLEnv names the environment variable with the Postgres DSN.
	DatabaseURLEnv string `yaml:"database_url_env,omitempty"`
}

// DefaultStoreConfig returns the built-in store defaults.
func DefaultStoreConfig() *StoreConfig {
	return &StoreConfig{
		Backend:        StoreMemory,
		DatabaseURLEnv: "DATABASE_URL",
	}
}
