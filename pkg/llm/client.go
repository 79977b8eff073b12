package llm

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/taskhive-ai/taskhive/pkg/config"
)

// Client speaks the OpenAI-compatible chat-completions protocol.
// All methods are safe for concurrent use.
type Client struct {
	cfg        *config.LLMConfig
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	// cache holds responses for temperature-zero calls keyed by a hash of
	// model+system+prompt. nil when caching is disabled.
	cache *lru.Cache[string, string]

	// onCall, when set, observes every call outcome. Wired to telemetry at
	// startup, before the client is shared.
	onCall func(outcome string, latency time.Duration)
}

// SetCallObserver wires fn to receive one callback per call: "cached", "ok",
// or "error" from Generate, plus one "fallback" (zero latency) per JSON call
// whose content needed the fallback envelope. Not safe to call once the
// client is in use.
func (c *Client) SetCallObserver(fn func(outcome string, latency time.Duration)) {
	c.onCall = fn
}

func (c *Client) observe(outcome string, latency time.Duration) {
	if c.onCall != nil {
		c.onCall(outcome, latency)
	}
}

// NewClient builds a client from configuration. The API key is read from the
// environment variable named by cfg.APIKeyEnv; an empty key is allowed for
// local backends that do not authenticate.
func NewClient(cfg *config.LLMConfig) (*Client, error) {
	c := &Client{
		cfg:     cfg,
		apiKey:  os.Getenv(cfg.APIKeyEnv),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		// Per-call deadlines come from the context; the transport-level
		// client carries no timeout so streaming is not cut short.
		httpClient: &http.Client{},
		logger:     slog.Default().With("component", "llm"),
	}
	if cfg.CacheSize > 0 {
		cache, err := lru.New[string, string](cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create response cache: %w", err)
		}
		c.cache = cache
	}
	return c, nil
}

// TimeoutFor returns the deadline tier for a task type. A reasoning-class
// model name forces the reasoning tier regardless of the requested type.
func (c *Client) TimeoutFor(taskType TaskType, model string) time.Duration {
	if c.isReasoningModel(model) {
		return c.cfg.TimeoutReasoning
	}
	switch taskType {
	case TaskSimple:
		return c.cfg.TimeoutSimple
	case TaskComplex:
		return c.cfg.TimeoutComplex
	case TaskReasoning:
		return c.cfg.TimeoutReasoning
	default:
		return c.cfg.TimeoutNormal
	}
}

func (c *Client) isReasoningModel(model string) bool {
	for _, prefix := range c.cfg.ReasoningModelPrefixes {
		if strings.HasPrefix(model, prefix) {
			return true
		}
	}
	return false
}

// Generate performs a single completion call with tier-based timeout and
// transient-failure retry. Content is returned verbatim; JSON-expecting
// callers should use GenerateJSON.
func (c *Client) Generate(ctx context.Context, prompt string, opts Options) (*Response, error) {
	model := c.model(opts)
	temp := c.temperature(opts)
	start := time.Now()

	cacheKey := ""
	if c.cache != nil && temp == 0 {
		cacheKey = c.cacheKey(model, opts.System, prompt)
		if content, ok := c.cache.Get(cacheKey); ok {
			c.observe("cached", time.Since(start))
			return &Response{Content: content, FinishReason: "cached"}, nil
		}
	}

	payload, err := json.Marshal(c.buildRequestBody(prompt, opts, model, temp, false))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var resp *Response
	operation := func() error {
		callCtx, cancel := context.WithTimeout(ctx, c.TimeoutFor(opts.Type, model))
		defer cancel()

		r, err := c.complete(callCtx, payload)
		if err != nil {
			if isTransient(err) {
				c.logger.Warn("LLM call failed, will retry", "error", err)
				return err
			}
			return backoff.Permanent(err)
		}
		resp = r
		return nil
	}

	if err := backoff.Retry(operation, c.newBackOff(ctx)); err != nil {
		c.observe("error", time.Since(start))
		return nil, err
	}
	c.observe("ok", time.Since(start))

	if cacheKey != "" {
		c.cache.Add(cacheKey, resp.Content)
	}
	return resp, nil
}

// GenerateJSON performs a completion expected to contain JSON and runs the
// extraction/repair pipeline over the output. Content that cannot be made to
// parse yields the deterministic fallback envelope, never an error — only
// transport failures after retry exhaustion return a non-nil error.
func (c *Client) GenerateJSON(ctx context.Context, prompt string, opts Options) (map[string]any, error) {
	opts.JSONMode = true

	resp, err := c.Generate(ctx, prompt, opts)
	if err != nil {
		return nil, err
	}

	payload, ok := ParseJSON(resp.Content)
	if !ok {
		c.logger.Warn("LLM output not parseable as JSON, returning fallback envelope",
			"content_len", len(resp.Content))
		c.observe("fallback", 0)
		return NewFallbackEnvelope("response did not contain parseable JSON", prompt).Map(), nil
	}
	return payload, nil
}

// GenerateStream performs a streaming completion, accumulating deltas into a
// single response. The request deadline is replaced by a per-chunk
// inactivity timeout that resets on every delta, so long generations are not
// cut off while the stream stays live. onDelta may be nil.
func (c *Client) GenerateStream(ctx context.Context, prompt string, opts Options, onDelta func(string)) (*Response, error) {
	model := c.model(opts)

	payload, err := json.Marshal(c.buildRequestBody(prompt, opts, model, c.temperature(opts), true))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	start := time.Now()
	var resp *Response
	operation := func() error {
		r, err := c.stream(ctx, payload, onDelta)
		if err != nil {
			if isTransient(err) {
				c.logger.Warn("LLM stream failed, will retry", "error", err)
				return err
			}
			return backoff.Permanent(err)
		}
		resp = r
		return nil
	}

	if err := backoff.Retry(operation, c.newBackOff(ctx)); err != nil {
		c.observe("error", time.Since(start))
		return nil, err
	}
	c.observe("ok", time.Since(start))
	return resp, nil
}

// newBackOff builds the retry policy: exponential backoff from the
// configured base, capped, with MaxAttempts total tries.
func (c *Client) newBackOff(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.RetryBaseDelay
	bo.MaxInterval = c.cfg.RetryMaxDelay
	bo.MaxElapsedTime = 0 // attempts bound the retry, not wall time
	return backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.cfg.MaxAttempts-1)), ctx)
}

func (c *Client) model(opts Options) string {
	if opts.Model != "" {
		return opts.Model
	}
	return c.cfg.Model
}

func (c *Client) temperature(opts Options) float64 {
	if opts.Temperature != nil {
		return *opts.Temperature
	}
	return c.cfg.Temperature
}

func (c *Client) cacheKey(model, system, prompt string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(system))
	h.Write([]byte{0})
	h.Write([]byte(prompt))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Client) buildRequestBody(prompt string, opts Options, model string, temperature float64, stream bool) map[string]any {
	messages := make([]Message, 0, len(opts.History)+2)
	if opts.System != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: opts.System})
	}
	messages = append(messages, opts.History...)
	messages = append(messages, Message{Role: RoleUser, Content: prompt})

	body := map[string]any{
		"model":       model,
		"messages":    messages,
		"temperature": temperature,
		"stream":      stream,
	}
	if opts.MaxTokens > 0 {
		body["max_tokens"] = opts.MaxTokens
	} else if c.cfg.MaxTokens > 0 {
		body["max_tokens"] = c.cfg.MaxTokens
	}
	if opts.JSONMode {
		body["response_format"] = map[string]string{"type": "json_object"}
	}
	return body
}

// complete performs one non-streaming chat-completions call.
func (c *Client) complete(ctx context.Context, payload []byte) (*Response, error) {
	httpResp, err := c.post(ctx, payload)
	if err != nil {
		return nil, err
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, &httpError{status: httpResp.StatusCode, body: truncate(string(respBody), 500)}
	}

	var oaiResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
		Usage Usage `json:"usage"`
		Error *struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBody, &oaiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if oaiResp.Error != nil && oaiResp.Error.Message != "" {
		return nil, &httpError{status: httpResp.StatusCode,
			body: fmt.Sprintf("%s: %s", oaiResp.Error.Type, oaiResp.Error.Message)}
	}
	if len(oaiResp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	return &Response{
		Content:      oaiResp.Choices[0].Message.Content,
		FinishReason: oaiResp.Choices[0].FinishReason,
		Usage:        oaiResp.Usage,
	}, nil
}

func (c *Client) post(ctx context.Context, payload []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	return resp, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
