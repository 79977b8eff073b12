package config

import "time"

// LLMConfig defines the chat-completions backend configuration.
type LLMConfig struct {
	// BaseURL is the endpoint root, e.g. https://api.openai.com/v1.
	BaseURL string `yaml:"base_url"`

	// APIKeyEnv is the environment variable holding the API key.
	APIKeyEnv string `yaml:"api_key_env"`

	// Model is the default model name.
	Model string `yaml:"model"`

	// ReasoningModelPrefixes marks model names that always get the
	// reasoning timeout tier (e.g. "o1", "o3", "deepseek-r").
	ReasoningModelPrefixes []string `yaml:"reasoning_model_prefixes,omitempty"`

	// Temperature is the default sampling temperature.
	Temperature float64 `yaml:"temperature"`

	// MaxTokens is the default completion cap. Zero lets the backend decide.
	MaxTokens int `yaml:"max_tokens"`

	// Timeout tiers by task class. A reasoning-class model forces
	// TimeoutReasoning regardless of the requested class.
	TimeoutSimple    time.Duration `yaml:"timeout_simple"`
	TimeoutNormal    time.Duration `yaml:"timeout_normal"`
	TimeoutComplex   time.Duration `yaml:"timeout_complex"`
	TimeoutReasoning time.Duration `yaml:"timeout_reasoning"`

	// StreamInactivityTimeout replaces the request deadline in streaming
	// mode; it resets on every received delta.
	StreamInactivityTimeout time.Duration `yaml:"stream_inactivity_timeout"`

	// MaxAttempts caps transient-failure retries per call.
	MaxAttempts int `yaml:"max_attempts"`

	// RetryBaseDelay and RetryMaxDelay bound the exponential backoff.
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
	RetryMaxDelay  time.Duration `yaml:"retry_max_delay"`

	// CacheSize bounds the response cache for temperature-zero calls.
	// Zero disables caching.
	CacheSize int `yaml:"cache_size"`
}

// DefaultLLMConfig returns the built-in LLM defaults.
func DefaultLLMConfig() *LLMConfig {
	return &LLMConfig{
		BaseURL:                 "https://api.openai.com/v1",
		APIKeyEnv:               "LLM_API_KEY",
		Model:                   "gpt-4o",
		ReasoningModelPrefixes:  []string{"o1", "o3", "deepseek-r"},
		Temperature:             0.7,
		TimeoutSimple:           60 * time.Second,
		TimeoutNormal:           120 * time.Second,
		TimeoutComplex:          300 * time.Second,
		TimeoutReasoning:        600 * time.Second,
		StreamInactivityTimeout: 30 * time.Second,
		MaxAttempts:             5,
		RetryBaseDelay:          2 * time.Second,
		RetryMaxDelay:           60 * time.Second,
		CacheSize:               0,
	}
}
