// Package llm provides the adapter between agents and an OpenAI-compatible
// chat-completions backend. It owns timeout tiering by task class, SSE
// streaming with per-chunk inactivity timeouts, transient-failure retry with
// exponential backoff, and a JSON extraction/repair pipeline that guarantees
// callers always receive either a parsed payload or a deterministic fallback
// envelope — content problems never surface as errors.
package llm

// Role values for chat messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// TaskType selects the timeout tier for a generation call.
type TaskType string

const (
	// TaskSimple covers short classification-style calls (60s tier).
	TaskSimple TaskType = "simple"
	// TaskNormal covers ordinary single-turn generation (120s tier).
	TaskNormal TaskType = "normal"
	// TaskComplex covers decomposition and solution generation (300s tier).
	TaskComplex TaskType = "complex"
	// TaskReasoning covers calls routed to reasoning-class models (600s tier).
	TaskReasoning TaskType = "reasoning"
)

// Message is one turn of a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage reports token consumption for one call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates another call's usage into u.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// Response is the aggregated outcome of a generation call.
type Response struct {
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason"`
	Usage        Usage  `json:"usage"`
}

// Options tune a single generation call. The zero value uses the client
// defaults from configuration.
type Options struct {
	// System is prepended as a system message when non-empty.
	System string

	// Type selects the timeout tier. Empty means TaskNormal.
	Type TaskType

	// Temperature overrides the configured default when non-nil.
	Temperature *float64

	// MaxTokens overrides the configured default when positive.
	MaxTokens int

	// Model overrides the configured default when non-empty.
	Model string

	// JSONMode requests strict-JSON output from backends that support
	// response_format. Extraction and repair run regardless, so backends
	// without JSON mode still work.
	JSONMode bool

	// History is inserted between the system message and the prompt,
	// oldest first. Used by conversational message handling.
	History []Message
}

// FallbackEnvelope is the deterministic payload substituted when model
// output cannot be parsed as JSON even after repair. Callers detect it via
// IsFallback rather than by error checking.
type FallbackEnvelope struct {
	Status     string `json:"status"` // always "fallback"
	Message    string `json:"message"`
	PromptHead string `json:"prompt_head"`
}

// fallbackPromptHeadLen bounds how much of the prompt is echoed back in a
// fallback envelope.
const fallbackPromptHeadLen = 200

// NewFallbackEnvelope builds the envelope for a failed JSON generation.
func NewFallbackEnvelope(reason, prompt string) FallbackEnvelope {
	head := prompt
	if len(head) > fallbackPromptHeadLen {
		head = head[:fallbackPromptHeadLen]
	}
	return FallbackEnvelope{
		Status:     "fallback",
		Message:    reason,
		PromptHead: head,
	}
}

// Map renders the envelope as the map payload handed to callers expecting
// parsed JSON.
func (f FallbackEnvelope) Map() map[string]any {
	return map[string]any{
		"status":      f.Status,
		"message":     f.Message,
		"prompt_head": f.PromptHead,
	}
}

// IsFallback reports whether payload is a fallback envelope rather than
// genuine model output.
func IsFallback(payload map[string]any) bool {
	status, ok := payload["status"].(string)
	return ok && status == "fallback"
}

// EstimateTokens approximates the token count of text. Four characters per
// token is close enough for budget decisions and avoids a tokenizer
// dependency.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
