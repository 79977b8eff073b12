package mcp

import (
	"fmt"
	"regexp"
)

// toolNameRegex validates the "server.tool" format.
// Both server and tool parts must start with a word character and contain
// only word characters and hyphens.
var toolNameRegex = regexp.MustCompile(`^([\w][\w-]*)\.([\w][\w-]*)$`)

// QualifiedName builds the registry name for an MCP tool, "server.tool".
// The prefix keeps tools from different servers apart and tells the reader
// at a glance which process answers the call.
func QualifiedName(serverID, toolName string) string {
	return serverID + "." + toolName
}

// SplitToolName splits "server.tool" into (serverID, toolName, error).
// Validates format with strict regex: server and tool parts must be
// word characters and hyphens, non-empty.
func SplitToolName(name string) (serverID, toolName string, err error) {
	matches := toolNameRegex.FindStringSubmatch(name)
	if matches == nil {
		return "", "", fmt.Errorf(
			"invalid tool name %q: must be in 'server.tool' format "+
				"(e.g., 'github.list_repos')", name)
	}
	return matches[1], matches[2], nil
}
