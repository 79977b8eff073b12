package e2e

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/taskhive-ai/taskhive/pkg/config"
	"github.com/taskhive-ai/taskhive/pkg/llm"
)

// stage names one step of the LLM pipeline, recognised by the opening line
// of its prompt.
type stage string

const (
	stageAnalyze   stage = "analyze"
	stageDecompose stage = "decompose"
	stageSolve     stage = "solve"
	stageValidate  stage = "validate"
	stageMessage   stage = "message"
	stageUnknown   stage = "unknown"
)

// classifyPrompt maps a prompt to its pipeline stage by prefix.
func classifyPrompt(prompt string) stage {
	switch {
	case strings.HasPrefix(prompt, "Classify the following task"):
		return stageAnalyze
	case strings.HasPrefix(prompt, "Break the following request"):
		return stageDecompose
	case strings.HasPrefix(prompt, "Complete the following task"):
		return stageSolve
	case strings.HasPrefix(prompt, "Evaluate whether this result"):
		return stageValidate
	case strings.HasPrefix(prompt, "You received a message"):
		return stageMessage
	default:
		return stageUnknown
	}
}

// mockLLM is a stage-routed chat-completions stub. A routing function wins
// when one is set for the stage; otherwise the stage's scripted replies are
// served in order, repeating the last once the script runs out. Stages with
// neither get a minimal valid envelope, so pipeline steps a scenario does
// not care about never stall it.
type mockLLM struct {
	mu      sync.Mutex
	scripts map[stage][]string
	cursor  map[stage]int
	routes  map[stage]func(prompt string) string
	calls   map[stage]int
	prompts []string
}

func newMockLLM() *mockLLM {
	return &mockLLM{
		scripts: make(map[stage][]string),
		cursor:  make(map[stage]int),
		routes:  make(map[stage]func(string) string),
		calls:   make(map[stage]int),
	}
}

// script sets the ordered replies for one stage.
func (m *mockLLM) script(s stage, replies ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[s] = replies
	m.cursor[s] = 0
}

// route sets a per-prompt reply function for one stage.
func (m *mockLLM) route(s stage, fn func(prompt string) string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes[s] = fn
}

// callCount reports how many calls reached the given stage.
func (m *mockLLM) callCount(s stage) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[s]
}

func (m *mockLLM) handler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	prompt := ""
	if n := len(req.Messages); n > 0 {
		prompt = req.Messages[n-1].Content
	}
	s := classifyPrompt(prompt)

	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.calls[s]++
	reply := ""
	switch {
	case m.routes[s] != nil:
		reply = m.routes[s](prompt)
	case len(m.scripts[s]) > 0:
		script := m.scripts[s]
		i := m.cursor[s]
		if i >= len(script) {
			i = len(script) - 1
		}
		reply = script[i]
		m.cursor[s]++
	default:
		reply = defaultReply(s)
	}
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"choices": []map[string]any{{
			"message":       map[string]any{"content": reply},
			"finish_reason": "stop",
		}},
		"usage": map[string]any{"prompt_tokens": 50, "completion_tokens": 40, "total_tokens": 90},
	})
}

// defaultReply keeps unscripted stages moving: tasks classify simple (so the
// intake never decomposes them by accident), plans are empty, solutions and
// verdicts are trivially positive.
func defaultReply(s stage) string {
	switch s {
	case stageAnalyze:
		return `{"task_type": "simple"}`
	case stageDecompose:
		return `{"subtasks": []}`
	case stageSolve:
		return `{"solution": "done", "output": "completed"}`
	case stageValidate:
		return `{"is_valid": true, "score": 95}`
	case stageMessage:
		return `{"belief_updates": {}}`
	default:
		return `{}`
	}
}

// startLLM serves the stub over HTTP and returns a client wired to it.
func startLLM(t *testing.T, m *mockLLM) *llm.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(m.handler))
	t.Cleanup(srv.Close)

	cfg := config.DefaultLLMConfig()
	cfg.BaseURL = srv.URL
	cfg.Model = "hive-e2e"
	cfg.MaxAttempts = 1
	cfg.RetryBaseDelay = time.Millisecond
	cfg.CacheSize = 0

	client, err := llm.NewClient(cfg)
	require.NoError(t, err)
	return client
}
