package masking

import (
	"regexp"
	"strings"
)

// MaskedEnvValue is the replacement for sensitive dotenv values.
const MaskedEnvValue = "[MASKED_ENV_VALUE]"

// envAssignRe matches a dotenv-style assignment line, capturing the optional
// "export " prefix, the key, and the separator so the value can be replaced
// while preserving the rest of the line's shape.
var envAssignRe = regexp.MustCompile(`^(\s*(?:export\s+)?)([A-Za-z_][A-Za-z0-9_]*)(\s*=\s*)(.*)$`)

// sensitiveKeyRe matches key names whose values must never leave the system:
// credentials, tokens, and connection strings that commonly embed passwords.
var sensitiveKeyRe = regexp.MustCompile(`(?i)(secret|token|password|passwd|credential|api_?key|private_?key|database_?url|dsn)`)

// EnvFileMasker masks values of sensitive keys in dotenv-format content.
// Agents read and write .env files and shell exports as part of project
// scaffolding; a regex sweep over the whole blob would also hit code and
// prose, so this masker works line by line on assignments only.
type EnvFileMasker struct{}

// Name returns the masker identifier.
func (m *EnvFileMasker) Name() string { return "env_file" }

// AppliesTo checks for at least one assignment with a sensitive-looking key.
func (m *EnvFileMasker) AppliesTo(data string) bool {
	if !strings.Contains(data, "=") {
		return false
	}
	return sensitiveKeyRe.MatchString(data)
}

// Mask replaces values of sensitive keys, preserving comments, blank lines,
// and non-sensitive assignments. Lines that do not parse as assignments are
// left untouched.
func (m *EnvFileMasker) Mask(data string) string {
	lines := strings.Split(data, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		match := envAssignRe.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		key, value := match[2], match[4]
		if value == "" || !sensitiveKeyRe.MatchString(key) {
			continue
		}
		lines[i] = match[1] + key + match[3] + MaskedEnvValue
	}
	return strings.Join(lines, "\n")
}
