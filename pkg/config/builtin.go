package config

import "sync"

// BuiltinConfig holds all built-in configuration data: default agent
// profiles, masking patterns, and pattern groups. User YAML overrides
// entries with the same name.
type BuiltinConfig struct {
	Profiles        map[string]AgentProfileConfig
	MCPServers      map[string]MCPServerConfig
	MaskingPatterns map[string]MaskingPattern
	PatternGroups   map[string][]string
	CodeMaskers     map[string]string
}

var (
	builtinConfig     *BuiltinConfig
	builtinConfigOnce sync.Once
)

// GetBuiltinConfig returns the singleton built-in configuration
// (thread-safe, lazy-initialized).
func GetBuiltinConfig() *BuiltinConfig {
	builtinConfigOnce.Do(initBuiltinConfig)
	return builtinConfig
}

func initBuiltinConfig() {
	builtinConfig = &BuiltinConfig{
		Profiles:        initBuiltinProfiles(),
		MCPServers:      map[string]MCPServerConfig{},
		MaskingPatterns: initBuiltinMaskingPatterns(),
		PatternGroups:   initBuiltinPatternGroups(),
		CodeMaskers:     initBuiltinCodeMaskers(),
	}
}

func initBuiltinProfiles() map[string]AgentProfileConfig {
	return map[string]AgentProfileConfig{
		"monitor": {
			Kind:         "reactive",
			Description:  "Threshold and alert monitoring with rule-based responses",
			Capabilities: []string{"monitoring", "alerting"},
			Count:        1,
		},
		"builder": {
			Kind:        "cognitive",
			Description: "LLM-backed analysis, design, and implementation work",
			Capabilities: []string{
				"analysis", "design", "code-generation", "testing", "documentation",
			},
			Count: 1,
		},
		"generalist": {
			Kind:        "hybrid",
			Description: "Adaptive agent routing between reactive and cognitive paths",
			Capabilities: []string{
				"analysis", "code-generation", "monitoring", "general",
			},
			Count:               1,
			ComplexityThreshold: 2.0,
			LearningRate:        0.1,
		},
	}
}

func initBuiltinMaskingPatterns() map[string]MaskingPattern {
	return map[string]MaskingPattern{
		"api_key": {
			Pattern:     `(?i)(?:api[_-]?key|apikey)["']?\s*[:=]\s*["']?([A-Za-z0-9_\-]{20,})["']?`,
			Replacement: `"api_key": "__MASKED_API_KEY__"`,
			Description: "API keys",
		},
		"password": {
			Pattern:     `(?i)(?:password|pwd|pass)["']?\s*[:=]\s*["']?([^"'\s\n]{6,})["']?`,
			Replacement: `"password": "__MASKED_PASSWORD__"`,
			Description: "Passwords",
		},
		"token": {
			Pattern:     `(?i)(?:token|bearer|jwt)["']?\s*[:=]\s*["']?([A-Za-z0-9_\-\.]{20,})["']?`,
			Replacement: `"token": "__MASKED_TOKEN__"`,
			Description: "Access tokens",
		},
		"certificate": {
			Pattern:     `(?s)-----BEGIN [A-Z ]+-----.*?-----END [A-Z ]+-----`,
			Replacement: `__MASKED_CERTIFICATE__`,
			Description: "PEM certificates and keys",
		},
		"ssh_key": {
			Pattern:     `ssh-(?:rsa|dss|ed25519|ecdsa)\s+[A-Za-z0-9+/=]+`,
			Replacement: `__MASKED_SSH_KEY__`,
			Description: "SSH public keys",
		},
		"email": {
			Pattern:     `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9]+(?:[.-][A-Za-z0-9]+)*\.[A-Za-z]{2,63}\b`,
			Replacement: `__MASKED_EMAIL__`,
			Description: "Email addresses",
		},
	}
}

// initBuiltinPatternGroups returns predefined groups of masking patterns.
// Groups may reference both regex patterns (MaskingPatterns) and code-based
// maskers (CodeMaskers); the masking service categorizes them at resolve time.
func initBuiltinPatternGroups() map[string][]string {
	return map[string][]string{
		"security": {"env_file", "api_key", "password", "token", "certificate", "ssh_key"},
		"contact":  {"email"},
		"all":      {"env_file", "api_key", "password", "token", "certificate", "ssh_key", "email"},
	}
}

// initBuiltinCodeMaskers returns code-based maskers for masking that needs
// structural parsing rather than a regex sweep. The values are descriptions;
// implementations live in pkg/masking and register under the same name.
func initBuiltinCodeMaskers() map[string]string {
	return map[string]string{
		"env_file": "Masks values of sensitive keys in dotenv-style KEY=VALUE content",
	}
}
