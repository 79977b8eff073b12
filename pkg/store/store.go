// Package store persists run history: tasks and their status transitions,
// generated report and checkpoint indexes. The coordinator writes through
// it; the API reads from it. Two backends: an in-memory map store (the
// default) and PostgreSQL with embedded migrations.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/taskhive-ai/taskhive/pkg/config"
	"github.com/taskhive-ai/taskhive/pkg/models"
)

// ErrTaskNotFound indicates a task ID absent from the store.
var ErrTaskNotFound = errors.New("task not found")

// TaskFilter narrows ListTasks. Zero values mean "any".
type TaskFilter struct {
	Status   models.TaskStatus
	ParentID string

	// RootsOnly selects tasks without a parent, i.e. submitted requests.
	RootsOnly bool

	// Limit bounds the result count; zero means unbounded.
	Limit int
}

// Transition is one recorded task status change.
type Transition struct {
	TaskID string            `json:"task_id"`
	From   models.TaskStatus `json:"from"`
	To     models.TaskStatus `json:"to"`
	Detail string            `json:"detail,omitempty"`
	At     time.Time         `json:"at"`
}

// Report is the index entry for one generated run report.
type Report struct {
	TaskID    string    `json:"task_id"`
	Path      string    `json:"path"`
	Summary   string    `json:"summary,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Checkpoint is the index entry for one checkpoint file.
type Checkpoint struct {
	Path      string    `json:"path"`
	Tasks     int       `json:"tasks"`
	Agents    int       `json:"agents"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the run-history persistence surface. SaveTask is an upsert keyed
// by task ID; readers always receive detached copies.
type Store interface {
	SaveTask(ctx context.Context, task *models.Task) error
	GetTask(ctx context.Context, id string) (*models.Task, error)
	ListTasks(ctx context.Context, filter TaskFilter) ([]*models.Task, error)

	RecordTransition(ctx context.Context, tr Transition) error
	Transitions(ctx context.Context, taskID string) ([]Transition, error)

	SaveReport(ctx context.Context, r Report) error
	Reports(ctx context.Context, taskID string) ([]Report, error)

	SaveCheckpoint(ctx context.Context, c Checkpoint) error
	Checkpoints(ctx context.Context, limit int) ([]Checkpoint, error)

	Ping(ctx context.Context) error
	Close() error
}

// Open builds the backend cfg selects. The Postgres DSN is read from the
// environment variable cfg names, never from the config file itself.
func Open(ctx context.Context, cfg *config.StoreConfig) (Store, error) {
	switch cfg.Backend {
	case config.StoreMemory, "":
		return NewMemory(), nil
	case config.StorePostgres:
		dsn := os.Getenv(cfg.DatabaseURLEnv)
		if dsn == "" {
			return nil, fmt.Errorf("store backend postgres: environment variable %s is empty", cfg.DatabaseURLEnv)
		}
		return NewPostgres(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
