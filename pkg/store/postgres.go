package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver for database/sql

	"github.com/taskhive-ai/taskhive/pkg/models"
)

//go:embed migrations
var migrationsFS embed.FS

// Connection pool settings. The store is a low-traffic history sink, not a
// hot path; a small pool keeps idle connections off the server.
const (
	maxOpenConns    = 10
	maxIdleConns    = 5
	connMaxLifetime = 30 * time.Minute
	connMaxIdleTime = 5 * time.Minute
)

// Postgres is the PostgreSQL-backed Store. Schema is applied on open from
// migrations embedded in the binary.
type Postgres struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ Store = (*Postgres)(nil)

// NewPostgres opens a pooled connection for the given DSN, pings it, and
// applies pending migrations.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Postgres{
		db:     db,
		logger: slog.Default().With("component", "store"),
	}, nil
}

// runMigrations applies pending migrations from the embedded FS.
func runMigrations(db *sql.DB) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create postgres driver: %w", err)
	}
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "taskhive", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	// Close only the source driver. m.Close() would also close the database
	// driver, which closes the shared *sql.DB the store keeps using.
	if err := source.Close(); err != nil {
		return fmt.Errorf("close migration source: %w", err)
	}
	return nil
}

const taskColumns = `id, type, priority, status, description, payload, depends_on,
	parent_id, assigned_to, result, validation_score, retries, error,
	created_at, updated_at, started_at, completed_at`

// SaveTask upserts the task row, JSON-encoding payload, result, and the
// dependency list.
func (p *Postgres) SaveTask(ctx context.Context, task *models.Task) error {
	payload, err := marshalJSONB(task.Payload)
	if err != nil {
		return fmt.Errorf("encode payload for task %s: %w", task.ID, err)
	}
	result, err := marshalJSONB(task.Result)
	if err != nil {
		return fmt.Errorf("encode result for task %s: %w", task.ID, err)
	}
	dependsOn, err := json.Marshal(task.DependsOn)
	if err != nil {
		return fmt.Errorf("encode depends_on for task %s: %w", task.ID, err)
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (id) DO UPDATE SET
			type = EXCLUDED.type,
			priority = EXCLUDED.priority,
			status = EXCLUDED.status,
			description = EXCLUDED.description,
			payload = EXCLUDED.payload,
			depends_on = EXCLUDED.depends_on,
			parent_id = EXCLUDED.parent_id,
			assigned_to = EXCLUDED.assigned_to,
			result = EXCLUDED.result,
			validation_score = EXCLUDED.validation_score,
			retries = EXCLUDED.retries,
			error = EXCLUDED.error,
			updated_at = EXCLUDED.updated_at,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at`,
		task.ID, string(task.Type), string(task.Priority), string(task.Status),
		task.Description, payload, dependsOn, task.ParentID, task.AssignedTo,
		result, task.ValidationScore, task.Retries, task.Error,
		task.CreatedAt, task.UpdatedAt, nullableTime(task.StartedAt), nullableTime(task.CompletedAt))
	if err != nil {
		return fmt.Errorf("save task %s: %w", task.ID, err)
	}
	return nil
}

// GetTask loads one task by ID.
func (p *Postgres) GetTask(ctx context.Context, id string) (*models.Task, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	return task, nil
}

// ListTasks returns matching tasks ordered by creation time.
func (p *Postgres) ListTasks(ctx context.Context, filter TaskFilter) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	var conds []string
	var args []any
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.ParentID != "" {
		args = append(args, filter.ParentID)
		conds = append(conds, fmt.Sprintf("parent_id = $%d", len(args)))
	}
	if filter.RootsOnly {
		conds = append(conds, "parent_id = ''")
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at, id"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []*models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// RecordTransition appends one status change.
func (p *Postgres) RecordTransition(ctx context.Context, tr Transition) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO task_transitions (task_id, from_status, to_status, detail, at)
		VALUES ($1, $2, $3, $4, $5)`,
		tr.TaskID, string(tr.From), string(tr.To), tr.Detail, tr.At)
	if err != nil {
		return fmt.Errorf("record transition for task %s: %w", tr.TaskID, err)
	}
	return nil
}

// Transitions returns a task's status history in recorded order.
func (p *Postgres) Transitions(ctx context.Context, taskID string) ([]Transition, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT task_id, from_status, to_status, detail, at
		FROM task_transitions WHERE task_id = $1 ORDER BY at, id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("load transitions for task %s: %w", taskID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []Transition
	for rows.Next() {
		var tr Transition
		var from, to string
		if err := rows.Scan(&tr.TaskID, &from, &to, &tr.Detail, &tr.At); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		tr.From = models.TaskStatus(from)
		tr.To = models.TaskStatus(to)
		out = append(out, tr)
	}
	return out, rows.Err()
}

// SaveReport indexes one generated report.
func (p *Postgres) SaveReport(ctx context.Context, r Report) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO reports (task_id, path, summary, created_at)
		VALUES ($1, $2, $3, $4)`,
		r.TaskID, r.Path, r.Summary, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("save report for task %s: %w", r.TaskID, err)
	}
	return nil
}

// Reports returns the report index entries for a task.
func (p *Postgres) Reports(ctx context.Context, taskID string) ([]Report, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT task_id, path, summary, created_at
		FROM reports WHERE task_id = $1 ORDER BY created_at, id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("load reports for task %s: %w", taskID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []Report
	for rows.Next() {
		var r Report
		if err := rows.Scan(&r.TaskID, &r.Path, &r.Summary, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SaveCheckpoint indexes one checkpoint file.
func (p *Postgres) SaveCheckpoint(ctx context.Context, c Checkpoint) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO checkpoints (path, tasks, agents, created_at)
		VALUES ($1, $2, $3, $4)`,
		c.Path, c.Tasks, c.Agents, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("save checkpoint index: %w", err)
	}
	return nil
}

// Checkpoints returns the newest checkpoint entries first.
func (p *Postgres) Checkpoints(ctx context.Context, limit int) ([]Checkpoint, error) {
	query := `SELECT path, tasks, agents, created_at FROM checkpoints ORDER BY created_at DESC, id DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint index: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Checkpoint
	for rows.Next() {
		var c Checkpoint
		if err := rows.Scan(&c.Path, &c.Tasks, &c.Agents, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Ping verifies the connection.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close releases the connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// DB exposes the underlying pool for health checks.
func (p *Postgres) DB() *sql.DB {
	return p.db
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (*models.Task, error) {
	var (
		task                   models.Task
		typ, priority, status  string
		payload, dependsOn     []byte
		result                 []byte
		startedAt, completedAt sql.NullTime
	)
	err := s.Scan(&task.ID, &typ, &priority, &status, &task.Description,
		&payload, &dependsOn, &task.ParentID, &task.AssignedTo, &result,
		&task.ValidationScore, &task.Retries, &task.Error,
		&task.CreatedAt, &task.UpdatedAt, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	task.Type = models.TaskType(typ)
	task.Priority = models.TaskPriority(priority)
	task.Status = models.TaskStatus(status)
	if err := unmarshalJSONB(payload, &task.Payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if err := unmarshalJSONB(result, &task.Result); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	if len(dependsOn) > 0 {
		if err := json.Unmarshal(dependsOn, &task.DependsOn); err != nil {
			return nil, fmt.Errorf("decode depends_on: %w", err)
		}
	}
	if startedAt.Valid {
		t := startedAt.Time
		task.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		task.CompletedAt = &t
	}
	return &task, nil
}

func marshalJSONB(m map[string]any) (any, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func unmarshalJSONB(b []byte, dst *map[string]any) error {
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, dst)
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
