package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/taskhive-ai/taskhive/pkg/models"
)

// defaultSearchEndpoint is the DuckDuckGo instant-answer API, which needs
// no API key.
const defaultSearchEndpoint = "https://api.duckduckgo.com/"

// WebSearchTool answers search queries through an HTTP JSON backend.
type WebSearchTool struct {
	endpoint string
	client   *http.Client
}

// NewWebSearchTool returns the canonical web_search tool. Empty endpoint
// selects the default backend; a nil client gets a 15s-timeout default.
func NewWebSearchTool(endpoint string, client *http.Client) *WebSearchTool {
	if endpoint == "" {
		endpoint = defaultSearchEndpoint
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &WebSearchTool{endpoint: endpoint, client: client}
}

func (t *WebSearchTool) Name() string       { return "web_search" }
func (t *WebSearchTool) Capability() string { return "research" }

func (t *WebSearchTool) Description() string {
	return "Web search returning result titles, URLs, and snippets."
}

// Execute runs one search. params: query, max_results? (default 5).
func (t *WebSearchTool) Execute(ctx context.Context, params map[string]any) models.ToolResult {
	query, ok := stringParam(params, "query")
	if !ok {
		return Failure("web_search: query parameter required")
	}
	maxResults, ok := intParam(params, "max_results")
	if !ok || maxResults <= 0 {
		maxResults = 5
	}

	reqURL := fmt.Sprintf("%s?q=%s&format=json&no_html=1", t.endpoint, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return Failure("web_search: %v", err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return Failure("web_search: request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return Failure("web_search: backend returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxHTTPBody))
	if err != nil {
		return Failure("web_search: read failed: %v", err)
	}

	var parsed struct {
		Heading       string `json:"Heading"`
		AbstractText  string `json:"AbstractText"`
		AbstractURL   string `json:"AbstractURL"`
		RelatedTopics []struct {
			Text     string `json:"Text"`
			FirstURL string `json:"FirstURL"`
		} `json:"RelatedTopics"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Failure("web_search: bad backend payload: %v", err)
	}

	var results []map[string]string
	if parsed.AbstractText != "" {
		results = append(results, map[string]string{
			"title":   parsed.Heading,
			"url":     parsed.AbstractURL,
			"snippet": parsed.AbstractText,
		})
	}
	for _, topic := range parsed.RelatedTopics {
		if len(results) >= maxResults {
			break
		}
		if topic.Text == "" {
			continue
		}
		results = append(results, map[string]string{
			"title":   topic.Text,
			"url":     topic.FirstURL,
			"snippet": topic.Text,
		})
	}

	return Success(map[string]any{"query": query, "results": results})
}
