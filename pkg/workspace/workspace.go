// Package workspace owns the on-disk layout of the swarm: per-agent
// sandboxes, generated project trees, run reports, and checkpoint files.
// Every path that reaches the filesystem goes through a traversal-safe join.
package workspace

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/taskhive-ai/taskhive/pkg/config"
)

var (
	// ErrPathEscapes indicates a path that would resolve outside its root.
	ErrPathEscapes = errors.New("path escapes workspace root")

	// ErrNoCheckpoint indicates no checkpoint file exists yet.
	ErrNoCheckpoint = errors.New("no checkpoint found")
)

// Manager resolves and creates the directories the swarm writes into.
type Manager struct {
	root       string
	stateDir   string
	reportsDir string
	logger     *slog.Logger
}

// NewManager creates the workspace, state, and reports directories and
// returns a manager rooted at them.
func NewManager(cfg *config.WorkspaceConfig) (*Manager, error) {
	m := &Manager{
		root:       filepath.Clean(cfg.Root),
		stateDir:   filepath.Clean(cfg.StateDir),
		reportsDir: filepath.Clean(cfg.ReportsDir),
		logger:     slog.Default().With("component", "workspace"),
	}
	for _, dir := range []string{m.root, m.stateDir, m.reportsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return m, nil
}

// Root returns the directory holding per-agent sandboxes.
func (m *Manager) Root() string { return m.root }

// StateDir returns the checkpoint directory.
func (m *Manager) StateDir() string { return m.stateDir }

// ReportsDir returns the report directory.
func (m *Manager) ReportsDir() string { return m.reportsDir }

// AgentDir ensures and returns the sandbox directory for one agent.
func (m *Manager) AgentDir(agentID string) (string, error) {
	dir, err := SafeJoin(m.root, agentID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create agent workspace: %w", err)
	}
	return dir, nil
}

// Resolve joins rel beneath an agent's sandbox without creating anything.
// Containment is per sandbox: rel cannot reach a sibling agent's tree even
// though that would still be inside the workspace root.
func (m *Manager) Resolve(agentID, rel string) (string, error) {
	dir, err := SafeJoin(m.root, agentID)
	if err != nil {
		return "", err
	}
	return SafeJoin(dir, rel)
}

// SafeJoin joins parts beneath root and rejects any result that escapes it.
// Absolute parts and ".." traversal both fail.
func SafeJoin(root string, parts ...string) (string, error) {
	rel := filepath.Join(parts...)
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: absolute path %q", ErrPathEscapes, rel)
	}
	cleanRoot := filepath.Clean(root)
	full := filepath.Join(cleanRoot, rel)
	if full != cleanRoot && !strings.HasPrefix(full, cleanRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrPathEscapes, rel)
	}
	return full, nil
}
