package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// rootFiles stay at the project root regardless of extension heuristics.
var rootFiles = map[string]bool{
	"README.md":        true,
	".gitignore":       true,
	"requirements.txt": true,
	"setup.py":         true,
	"Makefile":         true,
	"pyproject.toml":   true,
}

var configExtensions = map[string]bool{
	".json": true,
	".yaml": true,
	".yml":  true,
	".ini":  true,
	".conf": true,
}

var dataExtensions = map[string]bool{
	".csv": true,
	".txt": true,
	".dat": true,
}

// CanonicalPath places a bare filename into the conventional project layout.
// Names that already carry a directory are respected as-is. Matching is by
// filename prefix and extension:
//
//	test*            -> tests/
//	model*.py        -> src/models/
//	service*         -> src/services/
//	util*|helper*    -> src/utils/
//	core*|main*.py   -> src/core/
//	other .py        -> src/
//	.md              -> docs/
//	config exts      -> config/
//	.sh|script*      -> scripts/
//	.csv|.txt|.dat   -> data/
//
// Root project files (README.md, .gitignore, requirements.txt, setup.py)
// stay at the root.
func CanonicalPath(name string) string {
	if strings.ContainsRune(name, '/') {
		return name
	}
	if rootFiles[name] {
		return name
	}

	lower := strings.ToLower(name)
	ext := filepath.Ext(lower)

	switch {
	case strings.HasPrefix(lower, "test"):
		return filepath.Join("tests", name)
	case strings.HasPrefix(lower, "model") && ext == ".py":
		return filepath.Join("src", "models", name)
	case strings.HasPrefix(lower, "service"):
		return filepath.Join("src", "services", name)
	case strings.HasPrefix(lower, "util"), strings.HasPrefix(lower, "helper"):
		return filepath.Join("src", "utils", name)
	case (strings.HasPrefix(lower, "core") || strings.HasPrefix(lower, "main")) && ext == ".py":
		return filepath.Join("src", "core", name)
	case ext == ".py":
		return filepath.Join("src", name)
	case ext == ".md":
		return filepath.Join("docs", name)
	case configExtensions[ext]:
		return filepath.Join("config", name)
	case ext == ".sh", strings.HasPrefix(lower, "script"):
		return filepath.Join("scripts", name)
	case dataExtensions[ext]:
		return filepath.Join("data", name)
	default:
		return name
	}
}

// PlaceFile writes content under projectDir at the canonical location for
// name, creating directories and Python package markers as needed. Returns
// the path the file landed at, relative to projectDir.
func PlaceFile(projectDir, name, content string) (string, error) {
	rel := CanonicalPath(name)
	full, err := SafeJoin(projectDir, rel)
	if err != nil {
		return "", err
	}
	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", rel, err)
	}
	if err := ensurePackageMarkers(projectDir, filepath.Dir(rel)); err != nil {
		return "", err
	}
	return rel, nil
}

// ensurePackageMarkers drops empty __init__.py files along src/ and tests/
// paths so generated Python trees import cleanly.
func ensurePackageMarkers(projectDir, relDir string) error {
	if relDir == "." || relDir == "" {
		return nil
	}
	parts := strings.Split(filepath.ToSlash(relDir), "/")
	if parts[0] != "src" && parts[0] != "tests" {
		return nil
	}
	for i := range parts {
		dir := filepath.Join(append([]string{projectDir}, parts[:i+1]...)...)
		marker := filepath.Join(dir, "__init__.py")
		if _, err := os.Stat(marker); err == nil {
			continue
		}
		if err := os.WriteFile(marker, nil, 0o644); err != nil {
			return fmt.Errorf("failed to write package marker: %w", err)
		}
	}
	return nil
}

// InitProject seeds projectDir with the standard root files. Existing files
// are left alone so re-running over a live project is safe.
func InitProject(projectDir, name, description string) error {
	if err := os.MkdirAll(projectDir, 0o755); err != nil {
		return fmt.Errorf("failed to create project directory: %w", err)
	}

	files := map[string]string{
		"README.md": fmt.Sprintf("# %s\n\n%s\n", name, description),
		".gitignore": "__pycache__/\n*.pyc\n.venv/\nvenv/\n.env\n*.egg-info/\ndist/\nbuild/\n",
		"requirements.txt": "",
		"setup.py": fmt.Sprintf(
			"from setuptools import setup, find_packages\n\nsetup(\n    name=%q,\n    version=\"0.1.0\",\n    packages=find_packages(),\n)\n",
			strings.ToLower(strings.ReplaceAll(name, " ", "-"))),
	}
	for fname, content := range files {
		path := filepath.Join(projectDir, fname)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", fname, err)
		}
	}
	return nil
}
