// Package notify delivers swarm lifecycle notifications to Slack.
//
// The Service is nil-safe: when notifications are disabled or misconfigured,
// NewService returns nil and every method is a no-op, so callers never guard
// their notification sites. Delivery is fail-open — a Slack outage must not
// stall the swarm, so errors are logged and swallowed.
package notify

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/taskhive-ai/taskhive/pkg/config"
)

// RequestAcceptedInput contains data for a request acceptance notification.
type RequestAcceptedInput struct {
	TaskID      string
	Description string
}

// TaskFinishedInput contains data for a terminal request notification.
type TaskFinishedInput struct {
	TaskID  string
	Status  string // completed, failed, cancelled
	Summary string
	Error   string

	// ThreadTS, when set, threads the notification under the acceptance
	// message it belongs to. Cached from NotifyRequestAccepted.
	ThreadTS string
}

// Service handles Slack notification delivery.
type Service struct {
	client       *Client
	dashboardURL string
	logger       *slog.Logger
}

// NewService creates a notification service from configuration. Returns nil
// when notifications are disabled, the channel is unset, or the token
// environment variable is empty.
func NewService(cfg *config.SlackConfig) *Service {
	if cfg == nil || !cfg.Enabled || cfg.Channel == "" {
		return nil
	}
	token := os.Getenv(cfg.TokenEnv)
	if token == "" {
		return nil
	}
	return &Service{
		client:       NewClient(token, cfg.Channel),
		dashboardURL: cfg.DashboardURL,
		logger:       slog.Default().With("component", "notify"),
	}
}

// NewServiceWithClient creates a Service backed by a pre-built Client.
// Useful for testing with a mock API server.
func NewServiceWithClient(client *Client, dashboardURL string) *Service {
	return &Service{
		client:       client,
		dashboardURL: dashboardURL,
		logger:       slog.Default().With("component", "notify"),
	}
}

// NotifyRequestAccepted announces a new root task and returns the message
// timestamp so terminal notifications can thread under it. Fail-open: errors
// are logged, never returned.
func (s *Service) NotifyRequestAccepted(ctx context.Context, input RequestAcceptedInput) string {
	if s == nil {
		return ""
	}

	blocks := BuildAcceptedMessage(input.TaskID, input.Description, s.dashboardURL)
	ts, err := s.client.PostMessage(ctx, blocks, "", 5*time.Second)
	if err != nil {
		s.logger.Error("Failed to send acceptance notification",
			"task_id", input.TaskID,
			"error", err)
		return ""
	}
	return ts
}

// NotifyTaskFinished sends a terminal status notification for a root task.
// Fail-open: errors are logged, never returned.
func (s *Service) NotifyTaskFinished(ctx context.Context, input TaskFinishedInput) {
	if s == nil {
		return
	}

	blocks := BuildFinishedMessage(input, s.dashboardURL)
	if _, err := s.client.PostMessage(ctx, blocks, input.ThreadTS, 10*time.Second); err != nil {
		s.logger.Error("Failed to send terminal notification",
			"task_id", input.TaskID,
			"status", input.Status,
			"error", err)
	}
}

// NotifyEmergencyStop announces that the swarm halted all agents.
// Fail-open: errors are logged, never returned.
func (s *Service) NotifyEmergencyStop(ctx context.Context, reason string) {
	if s == nil {
		return
	}

	blocks := BuildEmergencyStopMessage(reason)
	if _, err := s.client.PostMessage(ctx, blocks, "", 5*time.Second); err != nil {
		s.logger.Error("Failed to send emergency stop notification",
			"reason", reason,
			"error", err)
	}
}
