package masking

import (
	"fmt"
	"log/slog"
	"regexp"

	"github.com/taskhive-ai/taskhive/pkg/config"
)

// CompiledPattern is one regex rule ready to apply.
type CompiledPattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
	Description string
}

// resolvedPatterns is the flat rule set for one masking operation: code
// maskers run first, then the regex sweep.
type resolvedPatterns struct {
	codeMaskerNames []string
	regexPatterns   []*CompiledPattern
}

func (r *resolvedPatterns) empty() bool {
	return len(r.codeMaskerNames) == 0 && len(r.regexPatterns) == 0
}

// compilePatterns eagerly compiles the built-in table plus every custom
// pattern declared on an MCP server. A pattern that fails to compile is
// logged and skipped; the rest of its category keeps working.
func (s *MaskingService) compilePatterns() {
	for name, p := range config.GetBuiltinConfig().MaskingPatterns {
		if cp := compile(name, p); cp != nil {
			s.patterns[name] = cp
		}
	}
	if s.registry == nil {
		return
	}
	for serverID, serverCfg := range s.registry.GetAll() {
		if serverCfg.DataMasking == nil || !serverCfg.DataMasking.Enabled {
			continue
		}
		for i, p := range serverCfg.DataMasking.CustomPatterns {
			// Custom patterns are keyed custom:{server}:{index} so two
			// servers can declare the same rule without colliding.
			name := fmt.Sprintf("custom:%s:%d", serverID, i)
			cp := compile(name, p)
			if cp == nil {
				continue
			}
			s.patterns[name] = cp
			s.serverCustomPatterns[serverID] = append(s.serverCustomPatterns[serverID], name)
		}
	}
}

func compile(name string, p config.MaskingPattern) *CompiledPattern {
	re, err := regexp.Compile(p.Pattern)
	if err != nil {
		slog.Error("Masking pattern does not compile, skipping",
			"pattern", name, "error", err)
		return nil
	}
	return &CompiledPattern{
		Name:        name,
		Regex:       re,
		Replacement: p.Replacement,
		Description: p.Description,
	}
}

// resolvePatterns flattens a server's MaskingConfig into a deduplicated rule
// set: pattern groups expand first, then individually named patterns, then
// the server's own custom patterns.
func (s *MaskingService) resolvePatterns(cfg *config.MaskingConfig, serverID string) *resolvedPatterns {
	c := s.newCollector()
	for _, group := range cfg.PatternGroups {
		c.addGroup(group)
	}
	for _, name := range cfg.Patterns {
		c.add(name)
	}
	if serverID != "" {
		for _, name := range s.serverCustomPatterns[serverID] {
			c.add(name)
		}
	}
	return c.resolved
}

// resolvePatternsFromGroup resolves a single named group; unknown groups
// resolve empty rather than erroring, matching the skip-and-log policy.
func (s *MaskingService) resolvePatternsFromGroup(group string) *resolvedPatterns {
	c := s.newCollector()
	c.addGroup(group)
	return c.resolved
}

// collector accumulates pattern names exactly once each, classifying every
// name as a code masker or a compiled regex.
type collector struct {
	svc      *MaskingService
	builtin  *config.BuiltinConfig
	seen     map[string]bool
	resolved *resolvedPatterns
}

func (s *MaskingService) newCollector() *collector {
	return &collector{
		svc:      s,
		builtin:  config.GetBuiltinConfig(),
		seen:     make(map[string]bool),
		resolved: &resolvedPatterns{},
	}
}

func (c *collector) addGroup(group string) {
	for _, name := range c.svc.patternGroups[group] {
		c.add(name)
	}
}

func (c *collector) add(name string) {
	if c.seen[name] {
		return
	}
	c.seen[name] = true
	if _, ok := c.builtin.CodeMaskers[name]; ok {
		c.resolved.codeMaskerNames = append(c.resolved.codeMaskerNames, name)
		return
	}
	if cp, ok := c.svc.patterns[name]; ok {
		c.resolved.regexPatterns = append(c.resolved.regexPatterns, cp)
	}
}
