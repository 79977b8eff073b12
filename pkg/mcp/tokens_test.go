package mcp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncateForStorage_UnderLimit(t *testing.T) {
	content := "short output"
	assert.Equal(t, content, TruncateForStorage(content))
}

func TestTruncateForStorage_OverLimit(t *testing.T) {
	line := strings.Repeat("x", 99) + "\n"
	content := strings.Repeat(line, 1000) // 100KB, well over the 32KB limit

	result := TruncateForStorage(content)

	assert.Less(t, len(result), len(content))
	assert.Contains(t, result, "[TRUNCATED:")
	assert.Contains(t, result, "output exceeded storage limit")

	// Cut lands on a line boundary: the text before the marker ends with a full line
	head := result[:strings.Index(result, "\n\n[TRUNCATED")]
	assert.True(t, strings.HasSuffix(head, strings.Repeat("x", 99)),
		"truncation should not split a line")
}

func TestTruncateAtLineBoundary_MultibyteSafe(t *testing.T) {
	// Fill with 3-byte runes so a naive byte cut would split one
	content := strings.Repeat("日", 100)

	result := truncateAtLineBoundary(content, 50, "test")

	idx := strings.Index(result, "\n\n[TRUNCATED")
	assert.Positive(t, idx)
	head := result[:idx]
	for _, r := range head {
		assert.NotEqual(t, '�', r, "no broken runes in truncated output")
	}
}

func TestTruncateAtLineBoundary_ZeroLimit(t *testing.T) {
	content := "anything"
	assert.Equal(t, content, truncateAtLineBoundary(content, 0, "test"))
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512B", formatSize(512))
	assert.Equal(t, "1KB", formatSize(1024))
	assert.Equal(t, "32KB", formatSize(32768))
}
