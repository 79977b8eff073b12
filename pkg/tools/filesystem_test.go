package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskhive-ai/taskhive/pkg/config"
	"github.com/taskhive-ai/taskhive/pkg/workspace"
)

func testWorkspace(t *testing.T) *workspace.Manager {
	t.Helper()
	base := t.TempDir()
	m, err := workspace.NewManager(&config.WorkspaceConfig{
		Root:       filepath.Join(base, "workspaces"),
		StateDir:   filepath.Join(base, "state"),
		ReportsDir: filepath.Join(base, "reports"),
	})
	require.NoError(t, err)
	return m
}

func fsParams(action, agentID string, extra map[string]any) map[string]any {
	params := map[string]any{"action": action, "agent_id": agentID}
	for k, v := range extra {
		params[k] = v
	}
	return params
}

func TestFilesystemTool(t *testing.T) {
	ctx := context.Background()

	t.Run("write then read", func(t *testing.T) {
		fs := NewFilesystemTool(testWorkspace(t))

		res := fs.Execute(ctx, fsParams("write", "a1", map[string]any{
			"path":    "notes/todo.txt",
			"content": "ship it",
		}))
		require.True(t, res.Success, res.Error)

		res = fs.Execute(ctx, fsParams("read", "a1", map[string]any{"path": "notes/todo.txt"}))
		require.True(t, res.Success, res.Error)
		data := res.Data.(map[string]any)
		assert.Equal(t, "ship it", data["content"])
	})

	t.Run("create_directory and list", func(t *testing.T) {
		fs := NewFilesystemTool(testWorkspace(t))

		res := fs.Execute(ctx, fsParams("create_directory", "a1", map[string]any{"path": "src/models"}))
		require.True(t, res.Success, res.Error)

		res = fs.Execute(ctx, fsParams("list", "a1", map[string]any{"path": "src"}))
		require.True(t, res.Success, res.Error)
		entries := res.Data.(map[string]any)["entries"].([]map[string]any)
		require.Len(t, entries, 1)
		assert.Equal(t, "models", entries[0]["name"])
		assert.Equal(t, true, entries[0]["is_dir"])
	})

	t.Run("copy", func(t *testing.T) {
		fs := NewFilesystemTool(testWorkspace(t))

		require.True(t, fs.Execute(ctx, fsParams("write", "a1", map[string]any{
			"path": "a.txt", "content": "payload",
		})).Success)

		res := fs.Execute(ctx, fsParams("copy", "a1", map[string]any{
			"src": "a.txt", "dest": "backup/a.txt",
		}))
		require.True(t, res.Success, res.Error)

		res = fs.Execute(ctx, fsParams("read", "a1", map[string]any{"path": "backup/a.txt"}))
		require.True(t, res.Success, res.Error)
		assert.Equal(t, "payload", res.Data.(map[string]any)["content"])
	})

	t.Run("delete", func(t *testing.T) {
		fs := NewFilesystemTool(testWorkspace(t))

		require.True(t, fs.Execute(ctx, fsParams("write", "a1", map[string]any{
			"path": "tmp.txt", "content": "x",
		})).Success)
		require.True(t, fs.Execute(ctx, fsParams("delete", "a1", map[string]any{"path": "tmp.txt"})).Success)

		res := fs.Execute(ctx, fsParams("read", "a1", map[string]any{"path": "tmp.txt"}))
		assert.False(t, res.Success)
	})

	t.Run("templates", func(t *testing.T) {
		fs := NewFilesystemTool(testWorkspace(t))

		res := fs.Execute(ctx, fsParams("create_template", "a1", map[string]any{
			"name":    "readme",
			"content": "# {{.Name}}\n\n{{.Description}}\n",
		}))
		require.True(t, res.Success, res.Error)

		res = fs.Execute(ctx, fsParams("use_template", "a1", map[string]any{
			"name": "readme",
			"path": "proj/README.md",
			"vars": map[string]any{"Name": "TaskHive", "Description": "A swarm."},
		}))
		require.True(t, res.Success, res.Error)

		res = fs.Execute(ctx, fsParams("read", "a1", map[string]any{"path": "proj/README.md"}))
		require.True(t, res.Success, res.Error)
		assert.Equal(t, "# TaskHive\n\nA swarm.\n", res.Data.(map[string]any)["content"])
	})

	t.Run("traversal rejected", func(t *testing.T) {
		fs := NewFilesystemTool(testWorkspace(t))

		res := fs.Execute(ctx, fsParams("read", "a1", map[string]any{"path": "../a2/secret"}))
		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "escapes")
	})

	t.Run("sandboxes are isolated", func(t *testing.T) {
		manager := testWorkspace(t)
		fs := NewFilesystemTool(manager)

		require.True(t, fs.Execute(ctx, fsParams("write", "a1", map[string]any{
			"path": "private.txt", "content": "secret",
		})).Success)

		// Files land under the owning agent's directory.
		assert.FileExists(t, filepath.Join(manager.Root(), "a1", "private.txt"))
		assert.NoFileExists(t, filepath.Join(manager.Root(), "a2", "private.txt"))
	})

	t.Run("missing agent_id fails", func(t *testing.T) {
		fs := NewFilesystemTool(testWorkspace(t))
		res := fs.Execute(ctx, map[string]any{"action": "read", "path": "x"})
		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "agent_id")
	})

	t.Run("unknown action fails", func(t *testing.T) {
		fs := NewFilesystemTool(testWorkspace(t))
		res := fs.Execute(ctx, fsParams("chmod", "a1", nil))
		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "unknown action")
	})
}

func TestFilesystemWriteCreatesParents(t *testing.T) {
	manager := testWorkspace(t)
	fs := NewFilesystemTool(manager)

	res := fs.Execute(context.Background(), fsParams("write", "a1", map[string]any{
		"path":    "deep/nested/dirs/file.txt",
		"content": "x",
	}))
	require.True(t, res.Success, res.Error)

	info, err := os.Stat(filepath.Join(manager.Root(), "a1", "deep", "nested", "dirs", "file.txt"))
	require.NoError(t, err)
	assert.False(t, info.IsDir())
}
