package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/taskhive-ai/taskhive/pkg/store"
	"github.com/taskhive-ai/taskhive/pkg/swarm"
)

// mapError converts coordinator and store errors to HTTP error responses.
func mapError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, swarm.ErrTaskNotFound), errors.Is(err, store.ErrTaskNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "task not found")
	case errors.Is(err, swarm.ErrAgentNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "agent not found")
	case errors.Is(err, swarm.ErrIntakeClosed):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "swarm is not accepting requests")
	case errors.Is(err, swarm.ErrQueueFull):
		return echo.NewHTTPError(http.StatusTooManyRequests, "task queue is full")
	case errors.Is(err, swarm.ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, "task is not in a cancellable state")
	}

	// Unexpected error
	slog.Error("Unexpected error in API handler", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
