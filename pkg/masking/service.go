package masking

import (
	"log/slog"

	"github.com/taskhive-ai/taskhive/pkg/config"
)

// RequestMaskingConfig holds request payload masking settings. User-submitted
// requests may embed credentials (pasted configs, connection strings) that
// must not reach the store or the event stream verbatim.
type RequestMaskingConfig struct {
	Enabled      bool
	PatternGroup string
}

// MaskingService applies data masking to MCP tool results and request payloads.
// Created once at application startup (singleton). Thread-safe and stateless
// aside from compiled patterns.
type MaskingService struct {
	registry             *config.MCPServerRegistry
	patterns             map[string]*CompiledPattern // builtin + custom, by name
	patternGroups        map[string][]string         // group name → pattern names
	codeMaskers          map[string]Masker
	requestMasking       RequestMaskingConfig
	serverCustomPatterns map[string][]string // serverID → custom pattern keys
}

// NewMaskingService compiles every pattern eagerly at creation time; invalid
// patterns are logged and skipped so one bad regex cannot disable masking.
func NewMaskingService(
	registry *config.MCPServerRegistry,
	requestCfg RequestMaskingConfig,
) *MaskingService {
	s := &MaskingService{
		registry:             registry,
		patterns:             make(map[string]*CompiledPattern),
		patternGroups:        config.GetBuiltinConfig().PatternGroups,
		codeMaskers:          make(map[string]Masker),
		requestMasking:       requestCfg,
		serverCustomPatterns: make(map[string][]string),
	}

	s.compilePatterns()
	s.registerMasker(&EnvFileMasker{})

	slog.Info("Masking service initialized",
		"builtin_patterns", len(config.GetBuiltinConfig().MaskingPatterns),
		"compiled_patterns", len(s.patterns),
		"code_maskers", len(s.codeMaskers),
		"request_masking_enabled", requestCfg.Enabled)

	return s
}

// MaskToolResult applies server-specific masking to MCP tool result content.
// On masking failure the whole result is replaced with a redaction notice
// (fail-closed): a garbled tool result must never leak what it was hiding.
func (s *MaskingService) MaskToolResult(content string, serverID string) string {
	if content == "" || s.registry == nil {
		return content
	}

	serverCfg, err := s.registry.Get(serverID)
	if err != nil || serverCfg.DataMasking == nil || !serverCfg.DataMasking.Enabled {
		return content
	}

	resolved := s.resolvePatterns(serverCfg.DataMasking, serverID)
	if resolved.empty() {
		return content
	}

	masked, err := s.apply(content, resolved)
	if err != nil {
		slog.Error("Masking failed, redacting content (fail-closed)",
			"server", serverID, "error", err)
		return "[REDACTED: data masking failure, tool result could not be safely processed]"
	}
	return masked
}

// MaskRequestData applies masking to request payload data using the configured
// pattern group. On masking failure the original data is returned (fail-open:
// a lost request is worse than a leaked one in our own logs).
func (s *MaskingService) MaskRequestData(data string) string {
	if !s.requestMasking.Enabled || data == "" {
		return data
	}

	resolved := s.resolvePatternsFromGroup(s.requestMasking.PatternGroup)
	if resolved.empty() {
		return data
	}

	masked, err := s.apply(data, resolved)
	if err != nil {
		slog.Error("Request masking failed, continuing with unmasked data (fail-open)",
			"error", err)
		return data
	}
	return masked
}

// apply runs code-based maskers first (they understand structure), then the
// regex patterns as a general sweep over whatever remains.
func (s *MaskingService) apply(content string, resolved *resolvedPatterns) (string, error) {
	for _, name := range resolved.codeMaskerNames {
		if m, ok := s.codeMaskers[name]; ok && m.AppliesTo(content) {
			content = m.Mask(content)
		}
	}
	for _, p := range resolved.regexPatterns {
		content = p.Regex.ReplaceAllString(content, p.Replacement)
	}
	return content, nil
}

// registerMasker registers a code-based masker by its name.
func (s *MaskingService) registerMasker(m Masker) {
	s.codeMaskers[m.Name()] = m
}
