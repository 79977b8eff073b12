package mcp

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// charsPerToken approximates English text for threshold sizing; this is not
// a tokenizer.
const charsPerToken = 4

// DefaultStorageMaxTokens caps tool output kept in task results and the
// event stream. Beliefs, checkpoints, and the dashboard never see an
// unbounded blob.
const DefaultStorageMaxTokens = 8000

// TruncateForStorage bounds tool output before it enters a ToolResult.
func TruncateForStorage(content string) string {
	return truncateAtLineBoundary(content, DefaultStorageMaxTokens*charsPerToken,
		"output exceeded storage limit")
}

// truncateAtLineBoundary cuts content to at most maxChars bytes, stepping
// the cut back off any multi-byte rune and then back to the last newline so
// indented JSON, YAML, and log output never end mid-line.
func truncateAtLineBoundary(content string, maxChars int, marker string) string {
	if maxChars <= 0 || len(content) <= maxChars {
		return content
	}
	cut := maxChars
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	head := content[:cut]
	if idx := strings.LastIndex(head, "\n"); idx > 0 {
		head = head[:idx]
	}
	return head + fmt.Sprintf(
		"\n\n[TRUNCATED: %s. Original size: %s, limit: %s]",
		marker, formatSize(len(content)), formatSize(maxChars),
	)
}

// formatSize prints bytes under 1KB as bytes so small content never shows
// as "0KB".
func formatSize(n int) string {
	if n < 1024 {
		return fmt.Sprintf("%dB", n)
	}
	return fmt.Sprintf("%dKB", n/1024)
}
