package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskhive-ai/taskhive/pkg/models"
)

type testCheckpoint struct {
	Sequence int      `json:"sequence"`
	TaskIDs  []string `json:"task_ids"`
}

func TestCheckpointRoundTrip(t *testing.T) {
	m := testManager(t)

	path, err := m.WriteCheckpoint(testCheckpoint{Sequence: 7, TaskIDs: []string{"a", "b"}})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filepath.Base(path), "checkpoint_"))
	assert.True(t, strings.HasSuffix(path, ".json"))

	var loaded testCheckpoint
	require.NoError(t, m.LoadCheckpoint(path, &loaded))
	assert.Equal(t, 7, loaded.Sequence)
	assert.Equal(t, []string{"a", "b"}, loaded.TaskIDs)

	// No temp debris left behind.
	entries, err := os.ReadDir(m.StateDir())
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), "leftover temp file %s", e.Name())
	}
}

func TestLatestCheckpoint(t *testing.T) {
	m := testManager(t)

	_, err := m.LatestCheckpoint()
	assert.ErrorIs(t, err, ErrNoCheckpoint)

	for i := 0; i < 3; i++ {
		_, err := m.WriteCheckpoint(testCheckpoint{Sequence: i})
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}

	latest, err := m.LatestCheckpoint()
	require.NoError(t, err)

	var loaded testCheckpoint
	require.NoError(t, m.LoadCheckpoint(latest, &loaded))
	assert.Equal(t, 2, loaded.Sequence)
}

func TestPruneCheckpoints(t *testing.T) {
	m := testManager(t)

	for i := 0; i < 5; i++ {
		_, err := m.WriteCheckpoint(testCheckpoint{Sequence: i})
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}

	removed, err := m.PruneCheckpoints(2)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	paths, err := m.ListCheckpoints()
	require.NoError(t, err)
	require.Len(t, paths, 2)

	// The survivors are the two newest.
	var loaded testCheckpoint
	require.NoError(t, m.LoadCheckpoint(paths[len(paths)-1], &loaded))
	assert.Equal(t, 4, loaded.Sequence)

	// Pruning again is a no-op.
	removed, err = m.PruneCheckpoints(2)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestWriteReport(t *testing.T) {
	m := testManager(t)

	root := models.NewTask(models.TaskTypeGeneral, models.PriorityHigh, "build a calculator")
	root.Status = models.TaskStatusCompleted
	done := time.Now().Add(42 * time.Second)
	root.CompletedAt = &done

	sub := models.NewTask(models.TaskTypeImplementation, models.PriorityMedium, "implement the core")
	sub.Status = models.TaskStatusCompleted
	sub.AssignedTo = "agent-7"
	sub.ValidationScore = 88
	sub.Result = map[string]any{
		"solution":      "Implemented add/sub/mul/div.",
		"files_created": []any{"src/calculator.py", "tests/test_calculator.py"},
	}

	path, err := m.WriteReport(Report{
		Request:  "build a calculator",
		Root:     root,
		Subtasks: []*models.Task{sub},
		Analysis: Analysis{
			TaskType:       "implementation",
			Complexity:     "medium",
			Domains:        []string{"math"},
			RequiredAgents: []string{"cognitive"},
		},
		ProjectDir:  "/tmp/proj",
		SystemStats: map[string]any{"cpu_percent": 12.5},
	})
	require.NoError(t, err)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	report := string(content)

	assert.Contains(t, report, "## Request")
	assert.Contains(t, report, "build a calculator")
	assert.Contains(t, report, "## Metadata")
	assert.Contains(t, report, root.ID)
	assert.Contains(t, report, "## Initial Analysis")
	assert.Contains(t, report, "implementation")
	assert.Contains(t, report, "## Subtask Execution")
	assert.Contains(t, report, "agent-7")
	assert.Contains(t, report, "88.0")
	assert.Contains(t, report, "src/calculator.py")
	assert.Contains(t, report, "## Summary")
	assert.Contains(t, report, "Average validation score")
	assert.Contains(t, report, "## Project Location")
	assert.Contains(t, report, "## System Metrics")
	assert.Contains(t, report, "cpu_percent")
}
