package api

import (
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"

	"github.com/taskhive-ai/taskhive/pkg/models"
)

// listTasksHandler handles GET /api/v1/tasks over the live ledger. Optional
// filters: status, type, parent_id, limit.
func (s *Server) listTasksHandler(c *echo.Context) error {
	tasks := s.deps.Swarm.Tasks()

	if v := c.QueryParam("status"); v != "" {
		tasks = filterTasks(tasks, func(t *models.Task) bool { return string(t.Status) == v })
	}
	if v := c.QueryParam("type"); v != "" {
		tasks = filterTasks(tasks, func(t *models.Task) bool { return string(t.Type) == v })
	}
	if v := c.QueryParam("parent_id"); v != "" {
		tasks = filterTasks(tasks, func(t *models.Task) bool { return t.ParentID == v })
	}

	total := len(tasks)
	limit := 0
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		limit = n
		if limit > 0 && len(tasks) > limit {
			tasks = tasks[:limit]
		}
	}

	return c.JSON(http.StatusOK, &models.TaskListResponse{
		Tasks:      tasks,
		TotalCount: total,
		Limit:      limit,
	})
}

// getTaskHandler handles GET /api/v1/tasks/:id. Falls back to the run
// history for tasks that predate the current process.
func (s *Server) getTaskHandler(c *echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "task id is required")
	}

	task, err := s.deps.Swarm.Task(id)
	if err != nil {
		if s.deps.Store == nil {
			return mapError(err)
		}
		task, err = s.deps.Store.GetTask(c.Request().Context(), id)
		if err != nil {
			return mapError(err)
		}
		return c.JSON(http.StatusOK, &TaskDetail{Task: task})
	}

	return c.JSON(http.StatusOK, &TaskDetail{
		Task:     task,
		Subtasks: s.deps.Swarm.Subtasks(id),
	})
}

// listSubtasksHandler handles GET /api/v1/tasks/:id/subtasks.
func (s *Server) listSubtasksHandler(c *echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "task id is required")
	}
	if _, err := s.deps.Swarm.Task(id); err != nil {
		return mapError(err)
	}
	subtasks := s.deps.Swarm.Subtasks(id)
	return c.JSON(http.StatusOK, &models.TaskListResponse{
		Tasks:      subtasks,
		TotalCount: len(subtasks),
	})
}

// listTransitionsHandler handles GET /api/v1/tasks/:id/transitions from the
// run history.
func (s *Server) listTransitionsHandler(c *echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "task id is required")
	}
	if s.deps.Store == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "run history is not available")
	}

	transitions, err := s.deps.Store.Transitions(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, &TransitionsResponse{
		TaskID:      id,
		Transitions: transitions,
	})
}

// cancelTaskHandler handles POST /api/v1/tasks/:id/cancel.
func (s *Server) cancelTaskHandler(c *echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "task id is required")
	}

	var body struct {
		Reason string `json:"reason"`
	}
	// The body is optional; binding failures mean "no reason given".
	_ = c.Bind(&body)

	if err := s.deps.Swarm.CancelTask(c.Request().Context(), id, body.Reason); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, &CancelResponse{
		TaskID:  id,
		Message: "Task cancellation requested",
	})
}

func filterTasks(tasks []*models.Task, keep func(*models.Task) bool) []*models.Task {
	out := tasks[:0:0]
	for _, t := range tasks {
		if keep(t) {
			out = append(out, t)
		}
	}
	return out
}
