package mcp

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"time"
)

// RecoveryAction is what the client does after a failed MCP operation.
type RecoveryAction int

const (
	// NoRetry: the error will not clear on its own (bad request, auth,
	// timeout on a possibly slow server).
	NoRetry RecoveryAction = iota
	// RetrySameSession: transient, the session is still good.
	RetrySameSession
	// RetryNewSession: the transport is gone; redial before retrying.
	RetryNewSession
)

const (
	// maxCallRetries is the retry count after the first failed attempt.
	maxCallRetries = 1

	// retryPause is the base for the jittered pause between attempts.
	retryPause = 500 * time.Millisecond

	// callTimeout bounds a single CallTool or ListTools. Generous: some
	// tools are legitimately slow, and the task timeout is the hard
	// ceiling above this.
	callTimeout = 90 * time.Second

	// dialTimeout covers transport creation plus the MCP handshake.
	dialTimeout = 30 * time.Second

	// redialTimeout bounds session recreation during recovery.
	redialTimeout = 10 * time.Second

	// probeInterval and probeTimeout drive the health monitor loop.
	probeInterval = 15 * time.Second
	probeTimeout  = 5 * time.Second
)

// substrings a transport failure shows up as when the error type carries no
// structure.
var transportFailures = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"connection closed",
	"no such host",
}

// JSON-RPC failures the SDK surfaces as plain error text. Client-side bugs;
// retrying repeats them.
var protocolFailures = []string{
	"method not found",
	"invalid params",
	"invalid request",
	"parse error",
}

// ClassifyError maps an MCP operation error to a recovery action. Anything
// unrecognized is NoRetry: an unknown error is not known to be safe to
// repeat.
func ClassifyError(err error) RecoveryAction {
	if err == nil {
		return NoRetry
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return NoRetry
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return NoRetry
		}
		return RetryNewSession
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return RetryNewSession
	}

	msg := strings.ToLower(err.Error())
	if containsAny(msg, transportFailures) {
		return RetryNewSession
	}
	if containsAny(msg, protocolFailures) {
		return NoRetry
	}
	return NoRetry
}

func containsAny(msg string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(msg, n) {
			return true
		}
	}
	return false
}
