package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskhive-ai/taskhive/pkg/models"
)

func TestNormalizeActions(t *testing.T) {
	single := models.Action{Type: models.ActionIgnore, Params: map[string]any{"reason": "noop"}}

	tests := []struct {
		name    string
		raw     any
		want    int
		wantErr bool
	}{
		{name: "nil yields nothing", raw: nil, want: 0},
		{name: "single action", raw: single, want: 1},
		{name: "action pointer", raw: &single, want: 1},
		{name: "action slice", raw: []models.Action{single, single}, want: 2},
		{
			name: "map with params",
			raw:  map[string]any{"type": "tool_call", "params": map[string]any{"tool": "calculator"}},
			want: 1,
		},
		{
			name: "map with inline params",
			raw:  map[string]any{"type": "update_belief", "key": "k", "value": 1},
			want: 1,
		},
		{
			name: "mixed any slice",
			raw: []any{
				single,
				map[string]any{"type": "ignore"},
			},
			want: 2,
		},
		{
			name: "json object string",
			raw:  `{"type": "ignore", "params": {"reason": "from json"}}`,
			want: 1,
		},
		{
			name: "json array string",
			raw:  `[{"type": "ignore"}, {"type": "update_belief", "key": "k"}]`,
			want: 2,
		},
		{name: "map without type", raw: map[string]any{"params": map[string]any{}}, wantErr: true},
		{name: "invalid json string", raw: "not json at all", wantErr: true},
		{name: "unsupported type", raw: 42, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actions, err := NormalizeActions(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, actions, tt.want)
		})
	}
}

func TestNormalizeActions_InlineParamsCollected(t *testing.T) {
	actions, err := NormalizeActions(map[string]any{
		"type":     "send_message",
		"receiver": "agent-2",
		"content":  map[string]any{"text": "hi"},
	})
	require.NoError(t, err)
	require.Len(t, actions, 1)

	assert.Equal(t, models.ActionSendMessage, actions[0].Type)
	assert.Equal(t, "agent-2", actions[0].Params["receiver"])
	assert.NotContains(t, actions[0].Params, "type")
}

func TestNormalizeActions_NestedErrorNamesIndex(t *testing.T) {
	_, err := NormalizeActions([]any{
		map[string]any{"type": "ignore"},
		map[string]any{"no_type": true},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "action 1")
}

func TestFIFO(t *testing.T) {
	q := newFIFO[int]()
	_, ok := q.Pop()
	assert.False(t, ok)

	q.Push(1)
	q.Push(2)
	q.Push(3)
	assert.Equal(t, 3, q.Len())

	// Several pushes coalesce into at least one wake signal.
	select {
	case <-q.Wake():
	default:
		t.Fatal("expected a wake signal after pushes")
	}

	for want := 1; want <= 3; want++ {
		got, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, 0, q.Len())
}
