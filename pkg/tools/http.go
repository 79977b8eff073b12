package tools

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/taskhive-ai/taskhive/pkg/models"
)

// maxHTTPBody caps how much of a response body is returned to agents.
const maxHTTPBody = 1 << 20 // 1 MiB

var allowedMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodDelete: true,
	http.MethodHead:   true,
}

// HTTPTool performs outbound HTTP requests with a method and scheme
// whitelist. Responses are truncated to a sane size before handing them to
// an agent.
type HTTPTool struct {
	client *http.Client
}

// NewHTTPTool returns the canonical http tool. A nil client gets a default
// with a 30s timeout.
func NewHTTPTool(client *http.Client) *HTTPTool {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPTool{client: client}
}

func (t *HTTPTool) Name() string       { return "http" }
func (t *HTTPTool) Capability() string { return "network" }

func (t *HTTPTool) Description() string {
	return "Outbound HTTP requests (GET, POST, PUT, DELETE, HEAD) against http/https URLs."
}

// Execute performs one request. params: action (method), url, body?,
// headers? (map), content_type?.
func (t *HTTPTool) Execute(ctx context.Context, params map[string]any) models.ToolResult {
	method, ok := actionParam(params)
	if !ok {
		if method, ok = stringParam(params, "method"); !ok {
			return Failure("http: action (method) parameter required")
		}
	}
	method = strings.ToUpper(method)
	if !allowedMethods[method] {
		return Failure("http: method %s not allowed", method)
	}

	rawURL, ok := stringParam(params, "url")
	if !ok {
		return Failure("http: url parameter required")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return Failure("http: invalid url: %v", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return Failure("http: scheme %q not allowed", parsed.Scheme)
	}

	var body io.Reader
	if raw, _ := params["body"].(string); raw != "" {
		body = strings.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return Failure("http: %v", err)
	}
	if headers, ok := params["headers"].(map[string]any); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				req.Header.Set(k, s)
			}
		}
	}
	if ct, ok := stringParam(params, "content_type"); ok {
		req.Header.Set("Content-Type", ct)
	} else if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return Failure("http: request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxHTTPBody))
	if err != nil {
		return Failure("http: read failed: %v", err)
	}

	return Success(map[string]any{
		"status":  resp.StatusCode,
		"body":    string(data),
		"headers": flattenHeaders(resp.Header),
	})
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}
