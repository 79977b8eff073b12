package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// listAgentsHandler handles GET /api/v1/agents.
func (s *Server) listAgentsHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"agents": s.deps.Swarm.AgentSnapshots(),
	})
}

// getAgentHandler handles GET /api/v1/agents/:id.
func (s *Server) getAgentHandler(c *echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "agent id is required")
	}
	snap, err := s.deps.Swarm.AgentSnapshot(id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, snap)
}

// stopAgentHandler handles POST /api/v1/agents/:id/stop. The agent's
// in-flight tasks are requeued by the coordinator's monitor sweep.
func (s *Server) stopAgentHandler(c *echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "agent id is required")
	}
	if err := s.deps.Swarm.StopAgent(id); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, &StopAgentResponse{
		AgentID: id,
		Message: "Agent stopped",
	})
}

// environmentHandler handles GET /api/v1/environment: resource usage and
// world state, unfiltered. Operator view — agent observation goes through
// the visibility filter, not this endpoint.
func (s *Server) environmentHandler(c *echo.Context) error {
	if s.deps.Env == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "environment is not available")
	}
	state := s.deps.Env.State()
	return c.JSON(http.StatusOK, map[string]any{
		"state": state,
		"usage": s.deps.Env.Usage(),
	})
}
