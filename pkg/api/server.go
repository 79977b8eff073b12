// Package api is the REST control surface: request submission, task and
// agent inspection, the event WebSocket, health, and Prometheus metrics.
// Handlers bind and validate, delegate to the coordinator or the store, and
// map errors to HTTP statuses. No orchestration logic lives here.
package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/taskhive-ai/taskhive/pkg/config"
	"github.com/taskhive-ai/taskhive/pkg/environment"
	"github.com/taskhive-ai/taskhive/pkg/events"
	"github.com/taskhive-ai/taskhive/pkg/models"
	"github.com/taskhive-ai/taskhive/pkg/store"
	"github.com/taskhive-ai/taskhive/pkg/swarm"
)

// Swarm is the coordinator surface the API consumes. *swarm.Coordinator
// satisfies it; tests substitute a stub.
type Swarm interface {
	ProcessRequest(ctx context.Context, request string, opts swarm.RequestOptions) (string, error)
	Task(id string) (*models.Task, error)
	Tasks() []*models.Task
	Subtasks(id string) []*models.Task
	CancelTask(ctx context.Context, id, reason string) error
	AgentSnapshots() []models.AgentSnapshot
	AgentSnapshot(id string) (models.AgentSnapshot, error)
	StopAgent(id string) error
	Stats() map[string]any
}

// Deps carries everything the server serves from. Swarm is required; the
// rest degrade to 503 or omission when nil.
type Deps struct {
	Config      *config.ServerConfig
	Swarm       Swarm
	Store       store.Store
	ConnManager *events.ConnectionManager
	Env         *environment.Environment

	// Metrics is the Prometheus handler mounted at /metrics.
	Metrics http.Handler
}

// Server wires the echo router to the coordinator and the store.
type Server struct {
	cfg  *config.ServerConfig
	deps Deps
	echo *echo.Echo
	http *http.Server
}

// NewServer builds the router with all routes registered. Call Start to
// listen.
func NewServer(deps Deps) *Server {
	cfg := deps.Config
	if cfg == nil {
		cfg = config.DefaultServerConfig()
	}
	s := &Server{
		cfg:  cfg,
		deps: deps,
		echo: echo.New(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.Use(securityHeaders())
	s.echo.Use(requestLogger())

	s.echo.GET("/healthz", s.healthHandler)
	if s.deps.Metrics != nil {
		s.echo.GET("/metrics", func(c *echo.Context) error {
			s.deps.Metrics.ServeHTTP(c.Response(), c.Request())
			return nil
		})
	}

	v1 := s.echo.Group("/api/v1")
	v1.POST("/requests", s.submitRequestHandler)
	v1.GET("/requests", s.listRequestsHandler)

	v1.GET("/tasks", s.listTasksHandler)
	v1.GET("/tasks/:id", s.getTaskHandler)
	v1.GET("/tasks/:id/subtasks", s.listSubtasksHandler)
	v1.GET("/tasks/:id/transitions", s.listTransitionsHandler)
	v1.POST("/tasks/:id/cancel", s.cancelTaskHandler)

	v1.GET("/agents", s.listAgentsHandler)
	v1.GET("/agents/:id", s.getAgentHandler)
	v1.POST("/agents/:id/stop", s.stopAgentHandler)

	v1.GET("/environment", s.environmentHandler)
	v1.GET("/events/ws", s.wsHandler)
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on addr and blocks until Shutdown or failure. The returned
// error is http.ErrServerClosed after a clean shutdown.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests within ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
