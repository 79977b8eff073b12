package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/taskhive-ai/taskhive/pkg/version"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusDegraded  = "degraded"
	healthStatusUnhealthy = "unhealthy"
)

// healthHandler handles GET /healthz. Only the system's own components are
// probed; the LLM backend and MCP servers are excluded so an external outage
// cannot make an orchestrator restart loop.
func (s *Server) healthHandler(c *echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]HealthCheck)
	status := healthStatusHealthy

	if s.deps.Store != nil {
		if err := s.deps.Store.Ping(reqCtx); err != nil {
			status = healthStatusDegraded
			checks["store"] = HealthCheck{Status: healthStatusUnhealthy, Message: err.Error()}
		} else {
			checks["store"] = HealthCheck{Status: healthStatusHealthy}
		}
	}

	var stats map[string]any
	if s.deps.Swarm != nil {
		stats = s.deps.Swarm.Stats()
		checks["swarm"] = HealthCheck{Status: healthStatusHealthy}
	} else {
		status = healthStatusUnhealthy
		checks["swarm"] = HealthCheck{Status: healthStatusUnhealthy, Message: "coordinator not running"}
	}

	httpStatus := http.StatusOK
	if status == healthStatusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	return c.JSON(httpStatus, &HealthResponse{
		Status:  status,
		Version: version.GitCommit,
		Checks:  checks,
		Swarm:   stats,
	})
}
