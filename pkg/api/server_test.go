package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskhive-ai/taskhive/pkg/models"
	"github.com/taskhive-ai/taskhive/pkg/store"
	"github.com/taskhive-ai/taskhive/pkg/swarm"
)

// stubSwarm scripts coordinator behavior for handler tests.
type stubSwarm struct {
	tasks    map[string]*models.Task
	children map[string][]*models.Task
	agents   []models.AgentSnapshot

	submitted  []string
	submitErr  error
	cancelled  []string
	stopped    []string
	stopErr    error
	nextTaskID string
}

func newStubSwarm() *stubSwarm {
	return &stubSwarm{
		tasks:      make(map[string]*models.Task),
		children:   make(map[string][]*models.Task),
		nextTaskID: "task-1",
	}
}

func (s *stubSwarm) ProcessRequest(_ context.Context, request string, _ swarm.RequestOptions) (string, error) {
	if s.submitErr != nil {
		return "", s.submitErr
	}
	s.submitted = append(s.submitted, request)
	return s.nextTaskID, nil
}

func (s *stubSwarm) Task(id string) (*models.Task, error) {
	t, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", swarm.ErrTaskNotFound, id)
	}
	return t, nil
}

func (s *stubSwarm) Tasks() []*models.Task {
	out := make([]*models.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t)
	}
	return out
}

func (s *stubSwarm) Subtasks(id string) []*models.Task { return s.children[id] }

func (s *stubSwarm) CancelTask(_ context.Context, id, _ string) error {
	if _, ok := s.tasks[id]; !ok {
		return fmt.Errorf("%w: %s", swarm.ErrTaskNotFound, id)
	}
	s.cancelled = append(s.cancelled, id)
	return nil
}

func (s *stubSwarm) AgentSnapshots() []models.AgentSnapshot { return s.agents }

func (s *stubSwarm) AgentSnapshot(id string) (models.AgentSnapshot, error) {
	for _, a := range s.agents {
		if a.ID == id {
			return a, nil
		}
	}
	return models.AgentSnapshot{}, fmt.Errorf("%w: %s", swarm.ErrAgentNotFound, id)
}

func (s *stubSwarm) StopAgent(id string) error {
	if s.stopErr != nil {
		return s.stopErr
	}
	s.stopped = append(s.stopped, id)
	return nil
}

func (s *stubSwarm) Stats() map[string]any {
	return map[string]any{"agents": len(s.agents), "queued_tasks": 0}
}

func newTestServer(t *testing.T, sw Swarm, st store.Store) *Server {
	t.Helper()
	return NewServer(Deps{Swarm: sw, Store: st})
}

func do(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, newStubSwarm(), store.NewMemory())

	rec := do(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)
	assert.Contains(t, rec.Body.String(), `"store"`)
}

func TestHealthzWithoutStore(t *testing.T) {
	s := newTestServer(t, newStubSwarm(), nil)

	rec := do(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"store"`)
}

func TestSecurityHeaders(t *testing.T) {
	s := newTestServer(t, newStubSwarm(), nil)

	rec := do(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t, newStubSwarm(), nil)

	rec := do(s, httptest.NewRequest(http.MethodGet, "/api/v1/nonexistent", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
