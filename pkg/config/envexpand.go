package config

import (
	"bytes"
	"os"
	"strings"
	"text/template"
)

// ExpandEnv expands environment variables in YAML content using Go template
// syntax: {{.VAR_NAME}}. Plain $VAR and ${VAR} are left untouched so shell
// snippets and regex patterns in tool or constraint definitions survive
// loading verbatim.
//
// Examples:
//   - api_key_env: {{.LLM_API_KEY}} → contents of LLM_API_KEY
//   - database_url: {{.DB_HOST}}:{{.DB_PORT}} → both expanded
//   - command: "echo $HOME" → preserved literally
//
// Missing variables expand to empty string; validation catches required
// fields left empty. Malformed templates pass the input through unchanged
// so the YAML parser can produce its own error message.
func ExpandEnv(data []byte) []byte {
	tmpl, err := template.New("config").Option("missingkey=zero").Parse(string(data))
	if err != nil {
		return data
	}

	envMap := make(map[string]string)
	for _, env := range os.Environ() {
		if key, value, ok := strings.Cut(env, "="); ok && key != "" {
			envMap[key] = value
		}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, envMap); err != nil {
		return data
	}

	return buf.Bytes()
}
