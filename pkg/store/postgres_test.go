package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/taskhive-ai/taskhive/pkg/models"
)

var (
	sharedConnStr string
	containerOnce sync.Once
	containerErr  error
)

// baseConnString returns a DSN for the shared test database: CI provides one
// via CI_DATABASE_URL, local runs start a single testcontainer per package.
func baseConnString(t *testing.T) string {
	t.Helper()
	if url := os.Getenv("CI_DATABASE_URL"); url != "" {
		return url
	}

	containerOnce.Do(func() {
		ctx := context.Background()
		container, err := tcpostgres.Run(ctx,
			"postgres:17-alpine",
			tcpostgres.WithDatabase("taskhive_test"),
			tcpostgres.WithUsername("test"),
			tcpostgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		if err != nil {
			containerErr = fmt.Errorf("start postgres container: %w", err)
			return
		}
		connStr, err := container.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			containerErr = fmt.Errorf("get connection string: %w", err)
			return
		}
		sharedConnStr = connStr
	})
	require.NoError(t, containerErr)
	return sharedConnStr
}

// testSchemaName builds a unique, identifier-safe schema name for the test.
func testSchemaName(t *testing.T) string {
	name := strings.ToLower(t.Name())
	name = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, name)
	if len(name) > 40 {
		name = name[:40]
	}
	suffix := make([]byte, 4)
	_, err := rand.Read(suffix)
	require.NoError(t, err)
	return fmt.Sprintf("test_%s_%s", name, hex.EncodeToString(suffix))
}

// newTestStore opens a Postgres store against a fresh schema; migrations run
// inside it via search_path. The schema is dropped on cleanup.
func newTestStore(t *testing.T) *Postgres {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in -short mode")
	}

	ctx := context.Background()
	base := baseConnString(t)
	schema := testSchemaName(t)

	db, err := sql.Open("pgx", base)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, "CREATE SCHEMA "+schema)
	require.NoError(t, err)
	_ = db.Close()

	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	st, err := NewPostgres(ctx, base+sep+"search_path="+schema)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = st.Close()
		clean, err := sql.Open("pgx", base)
		if err != nil {
			t.Logf("could not connect to drop schema %s: %v", schema, err)
			return
		}
		defer func() { _ = clean.Close() }()
		_, _ = clean.ExecContext(context.Background(), "DROP SCHEMA IF EXISTS "+schema+" CASCADE")
	})
	return st
}

func TestPostgres_TaskRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	started := time.Now().Add(-time.Minute)
	task := models.NewTask(models.TaskTypeImplementation, models.PriorityHigh, "build the parser")
	task.Payload = map[string]any{"project_dir": "/work/p", "depth": float64(1)}
	task.DependsOn = []string{"dep-1", "dep-2"}
	task.ParentID = "root-1"
	task.AssignedTo = "agent-9"
	task.Status = models.TaskStatusInProgress
	task.Retries = 1
	task.StartedAt = &started
	require.NoError(t, st.SaveTask(ctx, task))

	got, err := st.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.Type, got.Type)
	assert.Equal(t, task.Priority, got.Priority)
	assert.Equal(t, task.Status, got.Status)
	assert.Equal(t, task.Description, got.Description)
	assert.Equal(t, task.Payload, got.Payload)
	assert.Equal(t, task.DependsOn, got.DependsOn)
	assert.Equal(t, task.ParentID, got.ParentID)
	assert.Equal(t, task.AssignedTo, got.AssignedTo)
	assert.Equal(t, task.Retries, got.Retries)
	require.NotNil(t, got.StartedAt)
	assert.WithinDuration(t, started, *got.StartedAt, time.Millisecond)
	assert.Nil(t, got.CompletedAt)
	assert.WithinDuration(t, task.CreatedAt, got.CreatedAt, time.Millisecond)

	// Upsert moves the row forward.
	completed := time.Now()
	task.Status = models.TaskStatusCompleted
	task.Result = map[string]any{"solution": "done"}
	task.ValidationScore = 88.5
	task.CompletedAt = &completed
	require.NoError(t, st.SaveTask(ctx, task))

	got, err = st.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusCompleted, got.Status)
	assert.Equal(t, 88.5, got.ValidationScore)
	assert.Equal(t, "done", got.Result["solution"])
	require.NotNil(t, got.CompletedAt)

	_, err = st.GetTask(ctx, "missing")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestPostgres_ListTasksFilters(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	root := models.NewTask(models.TaskTypeGeneral, models.PriorityHigh, "root")
	childA := models.NewTask(models.TaskTypeDesign, models.PriorityMedium, "child a")
	childA.ParentID = root.ID
	childA.CreatedAt = root.CreatedAt.Add(time.Second)
	childB := models.NewTask(models.TaskTypeTesting, models.PriorityMedium, "child b")
	childB.ParentID = root.ID
	childB.Status = models.TaskStatusCompleted
	childB.CreatedAt = root.CreatedAt.Add(2 * time.Second)
	for _, task := range []*models.Task{root, childA, childB} {
		require.NoError(t, st.SaveTask(ctx, task))
	}

	all, err := st.ListTasks(ctx, TaskFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, root.ID, all[0].ID, "creation order")

	pending, err := st.ListTasks(ctx, TaskFilter{Status: models.TaskStatusPending})
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	children, err := st.ListTasks(ctx, TaskFilter{ParentID: root.ID})
	require.NoError(t, err)
	assert.Len(t, children, 2)

	roots, err := st.ListTasks(ctx, TaskFilter{RootsOnly: true})
	require.NoError(t, err)
	require.Len(t, roots, 1)
	assert.Equal(t, root.ID, roots[0].ID)

	limited, err := st.ListTasks(ctx, TaskFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestPostgres_TransitionsReportsCheckpoints(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, st.RecordTransition(ctx, Transition{
		TaskID: "t-1", From: models.TaskStatusPending, To: models.TaskStatusAssigned, Detail: "agent-1", At: now,
	}))
	require.NoError(t, st.RecordTransition(ctx, Transition{
		TaskID: "t-1", From: models.TaskStatusAssigned, To: models.TaskStatusInProgress, At: now.Add(time.Second),
	}))

	history, err := st.Transitions(ctx, "t-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.TaskStatusAssigned, history[0].To)
	assert.Equal(t, "agent-1", history[0].Detail)
	assert.Equal(t, models.TaskStatusInProgress, history[1].To)

	require.NoError(t, st.SaveReport(ctx, Report{
		TaskID: "t-1", Path: "reports/report_t-1.md", Summary: "ok", CreatedAt: now,
	}))
	reports, err := st.Reports(ctx, "t-1")
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "reports/report_t-1.md", reports[0].Path)

	for i := 0; i < 3; i++ {
		require.NoError(t, st.SaveCheckpoint(ctx, Checkpoint{
			Path:      fmt.Sprintf("state/checkpoint_%d.json", i),
			Tasks:     i,
			Agents:    2,
			CreatedAt: now.Add(time.Duration(i) * time.Second),
		}))
	}
	newest, err := st.Checkpoints(ctx, 2)
	require.NoError(t, err)
	require.Len(t, newest, 2)
	assert.Equal(t, 2, newest[0].Tasks, "newest first")

	require.NoError(t, st.Ping(ctx))
}
