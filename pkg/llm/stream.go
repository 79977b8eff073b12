package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"
)

// stream performs one streaming chat-completions call, invoking onDelta for
// each content fragment and returning the accumulated response.
//
// Liveness is enforced per chunk rather than per request: an inactivity
// watchdog aborts the call when the backend goes quiet for longer than
// StreamInactivityTimeout, and every received line pushes the deadline out
// again. A long generation that keeps producing tokens never times out.
func (c *Client) stream(ctx context.Context, payload []byte, onDelta func(string)) (*Response, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var stalled atomic.Bool
	watchdog := time.AfterFunc(c.cfg.StreamInactivityTimeout, func() {
		stalled.Store(true)
		cancel()
	})
	defer watchdog.Stop()

	httpResp, err := c.post(streamCtx, payload)
	if err != nil {
		if stalled.Load() {
			return nil, ErrStreamStalled
		}
		return nil, err
	}
	defer func() { _ = httpResp.Body.Close() }()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		return nil, &httpError{status: httpResp.StatusCode, body: truncate(string(body), 500)}
	}

	var (
		content      strings.Builder
		finishReason string
		usage        Usage
	)

	scanner := bufio.NewScanner(httpResp.Body)
	scanner.Buffer(make([]byte, 64*1024), 2*1024*1024)

	for scanner.Scan() {
		watchdog.Reset(c.cfg.StreamInactivityTimeout)

		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			break
		}

		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
				FinishReason string `json:"finish_reason"`
			} `json:"choices"`
			Usage *Usage `json:"usage"`
		}
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			c.logger.Debug("skipping malformed stream chunk", "error", err)
			continue
		}

		// Usage arrives on the final chunk for backends that report it.
		if chunk.Usage != nil {
			usage = *chunk.Usage
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			content.WriteString(delta)
			if onDelta != nil {
				onDelta(delta)
			}
		}
		if fr := chunk.Choices[0].FinishReason; fr != "" {
			finishReason = fr
		}
	}

	if err := scanner.Err(); err != nil {
		if stalled.Load() {
			return nil, ErrStreamStalled
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("read stream: %w", err)
	}

	if content.Len() == 0 {
		return nil, ErrEmptyResponse
	}

	return &Response{
		Content:      content.String(),
		FinishReason: finishReason,
		Usage:        usage,
	}, nil
}
