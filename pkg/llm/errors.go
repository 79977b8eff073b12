package llm

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrEmptyResponse indicates the backend returned no choices.
	ErrEmptyResponse = errors.New("LLM returned an empty response")

	// ErrRequestFailed indicates a non-retryable HTTP failure (4xx other
	// than 429).
	ErrRequestFailed = errors.New("LLM request failed")

	// ErrStreamStalled indicates no streaming delta arrived within the
	// inactivity timeout.
	ErrStreamStalled = errors.New("LLM stream stalled")
)

// httpError carries the status code of a failed chat-completions call so the
// retry policy can classify it.
type httpError struct {
	status int
	body   string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("LLM backend returned %d: %s", e.status, e.body)
}

// isTransient reports whether err is worth retrying. Network failures,
// timeouts, 5xx, and 429 rate limits retry; caller cancellation and other
// 4xx responses are permanent. Unclassified errors at this level are
// transport problems and retry. Content problems never reach the retry
// policy — they are repaired or turned into fallback envelopes upstream.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var httpErr *httpError
	if errors.As(err, &httpErr) {
		return httpErr.status >= 500 || httpErr.status == 429
	}
	return true
}
