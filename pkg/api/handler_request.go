package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/taskhive-ai/taskhive/pkg/models"
	"github.com/taskhive-ai/taskhive/pkg/store"
	"github.com/taskhive-ai/taskhive/pkg/swarm"
)

// maxRequestSize bounds the free-form request text. Larger submissions are
// runaway payloads, not task descriptions.
const maxRequestSize = 64 * 1024

// submitRequestHandler handles POST /api/v1/requests. The root task is
// created synchronously; decomposition and execution continue in the
// background, observable via the task endpoints and the event stream.
func (s *Server) submitRequestHandler(c *echo.Context) error {
	var req models.SubmitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Request == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "request field is required")
	}
	if len(req.Request) > maxRequestSize {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "request text exceeds maximum size")
	}
	if req.Priority != "" && !models.ValidPriority(req.Priority) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid priority: must be low, medium, high, or critical")
	}

	opts := swarm.RequestOptions{Priority: req.Priority}
	if project, ok := req.Metadata["project"].(string); ok {
		opts.Project = project
	}

	taskID, err := s.deps.Swarm.ProcessRequest(c.Request().Context(), req.Request, opts)
	if err != nil {
		return mapError(err)
	}

	return c.JSON(http.StatusAccepted, &models.SubmitResponse{
		TaskID: taskID,
		Status: "accepted",
	})
}

// listRequestsHandler handles GET /api/v1/requests: submitted root tasks,
// newest first, from the run history.
func (s *Server) listRequestsHandler(c *echo.Context) error {
	if s.deps.Store == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "run history is not available")
	}

	filter := store.TaskFilter{RootsOnly: true, Limit: 100}
	if v := c.QueryParam("status"); v != "" {
		filter.Status = models.TaskStatus(v)
	}

	tasks, err := s.deps.Store.ListTasks(c.Request().Context(), filter)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, &models.TaskListResponse{
		Tasks:      tasks,
		TotalCount: len(tasks),
		Limit:      filter.Limit,
	})
}
