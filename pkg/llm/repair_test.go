package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepair(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "valid input returned unchanged",
			input: `{"a": 1, "b": "x}y"}`,
			want:  `{"a": 1, "b": "x}y"}`,
		},
		{
			name:  "code fence with language tag",
			input: "```json\n{\"a\": 1}\n```",
			want:  `{"a": 1}`,
		},
		{
			name:  "bare code fence",
			input: "```\n[1, 2]\n```",
			want:  `[1, 2]`,
		},
		{
			name:  "single quotes swapped",
			input: `{'name': 'worker', 'count': 3}`,
			want:  `{"name": "worker", "count": 3}`,
		},
		{
			name:  "trailing commas dropped",
			input: `{"a": [1, 2,], "b": 3,}`,
			want:  `{"a": [1, 2], "b": 3}`,
		},
		{
			name:  "missing closers appended",
			input: `{"a": {"b": [1, 2`,
			want:  `{"a": {"b": [1, 2]}}`,
		},
		{
			name:  "unterminated string closed before closers",
			input: `{"a": "unfinished`,
			want:  `{"a": "unfinished"}`,
		},
		{
			name:  "line comments stripped",
			input: "{\n// the plan\n\"a\": 1}",
			want:  "{\n\n\"a\": 1}",
		},
		{
			name:  "block comments stripped",
			input: `{"a": /* why */ 1}`,
			want:  `{"a":  1}`,
		},
		{
			name:  "combined sloppiness",
			input: "```json\n{'steps': ['one', 'two',],\n```",
			want:  `{"steps": ["one", "two"]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Repair(tt.input)
			assert.Equal(t, tt.want, got)
			assert.True(t, json.Valid([]byte(got)), "repaired output must parse")
		})
	}
}

// Repair must converge in one pass: running it over its own output never
// changes the result.
func TestRepairIdempotent(t *testing.T) {
	inputs := []string{
		`{"a": 1}`,
		"```json\n{\"a\": 1}\n```",
		`{'single': 'quotes'}`,
		`{"trailing": [1, 2,],}`,
		`{"open": {"deep": [`,
		`{"str": "unterminated`,
		"{\n// comment\n\"a\": 1}",
		"// comment\n{\"a\": /* x */ 1}",
		`[1, 2, 3`,
		"not json at all",
		"",
		`{"mixed": 'quotes', "here": 1}`,
	}

	for _, input := range inputs {
		once := Repair(input)
		twice := Repair(once)
		assert.Equal(t, once, twice, "Repair not idempotent for input %q", input)
	}
}

func TestParseJSON(t *testing.T) {
	t.Run("object payload", func(t *testing.T) {
		payload, ok := ParseJSON(`The answer: {"action": "move", "x": 3}`)
		require.True(t, ok)
		assert.Equal(t, "move", payload["action"])
		assert.Equal(t, float64(3), payload["x"])
	})

	t.Run("array payload wrapped under items", func(t *testing.T) {
		payload, ok := ParseJSON(`[{"id": 1}, {"id": 2}]`)
		require.True(t, ok)
		items, isList := payload["items"].([]any)
		require.True(t, isList)
		assert.Len(t, items, 2)
	})

	t.Run("sloppy output inside prose", func(t *testing.T) {
		payload, ok := ParseJSON("Here you go:\n{'complexity': 'high', 'subtasks': [1, 2,],}")
		require.True(t, ok)
		assert.Equal(t, "high", payload["complexity"])
	})

	t.Run("truncated output repaired", func(t *testing.T) {
		payload, ok := ParseJSON(`{"status": "in_progress", "steps": ["a", "b"`)
		require.True(t, ok)
		assert.Equal(t, "in_progress", payload["status"])
	})

	t.Run("no JSON present", func(t *testing.T) {
		_, ok := ParseJSON("I refuse to answer in JSON.")
		assert.False(t, ok)
	})

	t.Run("tagged payload", func(t *testing.T) {
		payload, ok := ParseJSON(`reasoning text <json>{"verdict": "pass"}</json>`)
		require.True(t, ok)
		assert.Equal(t, "pass", payload["verdict"])
	})
}

func TestFallbackEnvelope(t *testing.T) {
	t.Run("prompt head capped", func(t *testing.T) {
		longPrompt := ""
		for i := 0; i < 50; i++ {
			longPrompt += "0123456789"
		}
		env := NewFallbackEnvelope("unparseable", longPrompt)
		assert.Equal(t, "fallback", env.Status)
		assert.Len(t, env.PromptHead, 200)
	})

	t.Run("detected via IsFallback", func(t *testing.T) {
		env := NewFallbackEnvelope("reason", "prompt")
		assert.True(t, IsFallback(env.Map()))
		assert.False(t, IsFallback(map[string]any{"status": "ok"}))
		assert.False(t, IsFallback(map[string]any{"result": 42}))
	})
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("ab"))
	assert.Equal(t, 1, EstimateTokens("abcd"))
	assert.Equal(t, 2, EstimateTokens("abcde"))
	assert.Equal(t, 25, EstimateTokens(string(make([]byte, 100))))
}
