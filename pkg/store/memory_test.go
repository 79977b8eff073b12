package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskhive-ai/taskhive/pkg/config"
	"github.com/taskhive-ai/taskhive/pkg/models"
)

func TestMemory_SaveGetDetached(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	task := models.NewTask(models.TaskTypeImplementation, models.PriorityHigh, "build it")
	task.Payload = map[string]any{"project_dir": "/tmp/p"}
	require.NoError(t, m.SaveTask(ctx, task))

	// Later mutation of the caller's copy must not leak into the store.
	task.Status = models.TaskStatusCancelled
	task.Payload["project_dir"] = "/elsewhere"

	got, err := m.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusPending, got.Status)
	assert.Equal(t, "/tmp/p", got.Payload["project_dir"])

	// Upsert replaces the stored row.
	task.Status = models.TaskStatusCompleted
	require.NoError(t, m.SaveTask(ctx, task))
	got, err = m.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusCompleted, got.Status)

	_, err = m.GetTask(ctx, "no-such-task")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestMemory_ListTasksFilters(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	base := time.Now()

	root := models.NewTask(models.TaskTypeGeneral, models.PriorityHigh, "root")
	root.CreatedAt = base
	childA := models.NewTask(models.TaskTypeDesign, models.PriorityMedium, "child a")
	childA.ParentID = root.ID
	childA.CreatedAt = base.Add(time.Second)
	childB := models.NewTask(models.TaskTypeTesting, models.PriorityMedium, "child b")
	childB.ParentID = root.ID
	childB.Status = models.TaskStatusCompleted
	childB.CreatedAt = base.Add(2 * time.Second)
	for _, task := range []*models.Task{root, childA, childB} {
		require.NoError(t, m.SaveTask(ctx, task))
	}

	all, err := m.ListTasks(ctx, TaskFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, root.ID, all[0].ID, "creation order")

	pending, err := m.ListTasks(ctx, TaskFilter{Status: models.TaskStatusPending})
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	children, err := m.ListTasks(ctx, TaskFilter{ParentID: root.ID})
	require.NoError(t, err)
	assert.Len(t, children, 2)

	roots, err := m.ListTasks(ctx, TaskFilter{RootsOnly: true})
	require.NoError(t, err)
	require.Len(t, roots, 1)
	assert.Equal(t, root.ID, roots[0].ID)

	limited, err := m.ListTasks(ctx, TaskFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestMemory_TransitionHistory(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.RecordTransition(ctx, Transition{
		TaskID: "t-1", From: models.TaskStatusPending, To: models.TaskStatusAssigned, At: time.Now(),
	}))
	require.NoError(t, m.RecordTransition(ctx, Transition{
		TaskID: "t-1", From: models.TaskStatusAssigned, To: models.TaskStatusInProgress, At: time.Now(),
	}))

	history, err := m.Transitions(ctx, "t-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.TaskStatusAssigned, history[0].To)
	assert.Equal(t, models.TaskStatusInProgress, history[1].To)

	none, err := m.Transitions(ctx, "t-2")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemory_ReportsAndCheckpoints(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.SaveReport(ctx, Report{
		TaskID: "t-1", Path: "reports/report_t-1.md", Summary: "done", CreatedAt: time.Now(),
	}))
	reports, err := m.Reports(ctx, "t-1")
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "reports/report_t-1.md", reports[0].Path)

	now := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, m.SaveCheckpoint(ctx, Checkpoint{
			Path:      "state/checkpoint_" + string(rune('a'+i)) + ".json",
			Tasks:     i,
			CreatedAt: now.Add(time.Duration(i) * time.Second),
		}))
	}

	newest, err := m.Checkpoints(ctx, 2)
	require.NoError(t, err)
	require.Len(t, newest, 2)
	assert.Equal(t, 2, newest[0].Tasks, "newest first")
	assert.Equal(t, 1, newest[1].Tasks)
}

func TestOpenSelectsBackend(t *testing.T) {
	st, err := Open(context.Background(), &config.StoreConfig{Backend: config.StoreMemory})
	require.NoError(t, err)
	_, ok := st.(*Memory)
	assert.True(t, ok)

	_, err = Open(context.Background(), &config.StoreConfig{Backend: "etcd"})
	assert.Error(t, err)

	t.Setenv("TASKHIVE_TEST_DSN", "")
	_, err = Open(context.Background(), &config.StoreConfig{
		Backend:        config.StorePostgres,
		DatabaseURLEnv: "TASKHIVE_TEST_DSN",
	})
	assert.Error(t, err, "empty DSN env is a startup failure")
}
