package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	checkpointPrefix = "checkpoint_"
	checkpointSuffix = ".json"
)

// WriteCheckpoint marshals v and writes it atomically as a new
// checkpoint_<ts>.json under the state directory. The temp-then-rename dance
// means readers never observe a half-written file.
func (m *Manager) WriteCheckpoint(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	now := time.Now().UTC()
	name := fmt.Sprintf("%s%s_%03d%s",
		checkpointPrefix, now.Format("20060102_150405"), now.Nanosecond()/1e6, checkpointSuffix)
	path := filepath.Join(m.stateDir, name)

	tmp, err := os.CreateTemp(m.stateDir, ".checkpoint-*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp checkpoint: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("failed to close checkpoint: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("failed to finalize checkpoint: %w", err)
	}
	return path, nil
}

// ListCheckpoints returns checkpoint paths sorted oldest first. The
// timestamped names sort lexicographically in chronological order.
func (m *Manager) ListCheckpoints() ([]string, error) {
	entries, err := os.ReadDir(m.stateDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read state directory: %w", err)
	}
	var paths []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, checkpointPrefix) || !strings.HasSuffix(name, checkpointSuffix) {
			continue
		}
		paths = append(paths, filepath.Join(m.stateDir, name))
	}
	sort.Strings(paths)
	return paths, nil
}

// LatestCheckpoint returns the newest checkpoint path, or ErrNoCheckpoint.
func (m *Manager) LatestCheckpoint() (string, error) {
	paths, err := m.ListCheckpoints()
	if err != nil {
		return "", err
	}
	if len(paths) == 0 {
		return "", ErrNoCheckpoint
	}
	return paths[len(paths)-1], nil
}

// LoadCheckpoint unmarshals a checkpoint file into v.
func (m *Manager) LoadCheckpoint(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read checkpoint: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode checkpoint %s: %w", filepath.Base(path), err)
	}
	return nil
}

// PruneCheckpoints deletes all but the newest keep files and returns the
// number removed. keep below one is treated as one so a restorable
// checkpoint always survives.
func (m *Manager) PruneCheckpoints(keep int) (int, error) {
	if keep < 1 {
		keep = 1
	}
	paths, err := m.ListCheckpoints()
	if err != nil {
		return 0, err
	}
	if len(paths) <= keep {
		return 0, nil
	}
	removed := 0
	for _, path := range paths[:len(paths)-keep] {
		if err := os.Remove(path); err != nil {
			m.logger.Warn("Failed to prune checkpoint", "path", path, "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}
