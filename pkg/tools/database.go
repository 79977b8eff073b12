package tools

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/taskhive-ai/taskhive/pkg/models"
)

// identRe matches safe SQL identifiers. Table and column names cannot be
// bound as placeholders, so they are validated instead.
var identRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// DatabaseTool exposes SQL operations over the run-history store's handle.
type DatabaseTool struct {
	db *sql.DB
}

// NewDatabaseTool returns the canonical database tool.
func NewDatabaseTool(db *sql.DB) *DatabaseTool {
	return &DatabaseTool{db: db}
}

func (t *DatabaseTool) Name() string       { return "database" }
func (t *DatabaseTool) Capability() string { return "storage" }

func (t *DatabaseTool) Description() string {
	return "SQL operations: connect, query, insert, update, delete, create_table, schema, backup."
}

// Execute dispatches one database action.
func (t *DatabaseTool) Execute(ctx context.Context, params map[string]any) models.ToolResult {
	action, ok := actionParam(params)
	if !ok {
		return Failure("database: action parameter required")
	}
	if t.db == nil {
		return Failure("database: no SQL backend configured")
	}

	switch action {
	case "connect":
		if err := t.db.PingContext(ctx); err != nil {
			return Failure("database: ping failed: %v", err)
		}
		return Success(map[string]any{"connected": true})
	case "query":
		return t.query(ctx, params)
	case "insert":
		return t.insert(ctx, params)
	case "update":
		return t.update(ctx, params)
	case "delete":
		return t.delete(ctx, params)
	case "create_table":
		return t.createTable(ctx, params)
	case "schema":
		return t.schema(ctx)
	case "backup":
		return t.backup(ctx, params)
	default:
		return Failure("database: unknown action %q", action)
	}
}

func (t *DatabaseTool) query(ctx context.Context, params map[string]any) models.ToolResult {
	sqlText, ok := stringParam(params, "sql")
	if !ok {
		return Failure("database: sql parameter required")
	}
	if !strings.HasPrefix(strings.ToUpper(strings.TrimSpace(sqlText)), "SELECT") {
		return Failure("database: query accepts SELECT statements only")
	}

	rows, err := t.db.QueryContext(ctx, sqlText, sliceParam(params, "args")...)
	if err != nil {
		return Failure("database: query failed: %v", err)
	}
	defer func() { _ = rows.Close() }()

	results, err := scanRows(rows)
	if err != nil {
		return Failure("database: %v", err)
	}
	return Success(map[string]any{"rows": results, "count": len(results)})
}

func (t *DatabaseTool) insert(ctx context.Context, params map[string]any) models.ToolResult {
	table, ok := stringParam(params, "table")
	if !ok || !identRe.MatchString(table) {
		return Failure("database: valid table parameter required")
	}
	values, ok := params["values"].(map[string]any)
	if !ok || len(values) == 0 {
		return Failure("database: values parameter required")
	}

	cols := make([]string, 0, len(values))
	for col := range values {
		if !identRe.MatchString(col) {
			return Failure("database: invalid column name %q", col)
		}
		cols = append(cols, col)
	}
	placeholders := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, col := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = values[col]
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	res, err := t.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return Failure("database: insert failed: %v", err)
	}
	affected, _ := res.RowsAffected()
	return Success(map[string]any{"rows_affected": affected})
}

func (t *DatabaseTool) update(ctx context.Context, params map[string]any) models.ToolResult {
	sqlText, ok := stringParam(params, "sql")
	if !ok {
		return Failure("database: sql parameter required")
	}
	if !strings.HasPrefix(strings.ToUpper(strings.TrimSpace(sqlText)), "UPDATE") {
		return Failure("database: update accepts UPDATE statements only")
	}
	return t.exec(ctx, sqlText, sliceParam(params, "args"))
}

func (t *DatabaseTool) delete(ctx context.Context, params map[string]any) models.ToolResult {
	sqlText, ok := stringParam(params, "sql")
	if !ok {
		return Failure("database: sql parameter required")
	}
	if !strings.HasPrefix(strings.ToUpper(strings.TrimSpace(sqlText)), "DELETE") {
		return Failure("database: delete accepts DELETE statements only")
	}
	return t.exec(ctx, sqlText, sliceParam(params, "args"))
}

func (t *DatabaseTool) exec(ctx context.Context, sqlText string, args []any) models.ToolResult {
	res, err := t.db.ExecContext(ctx, sqlText, args...)
	if err != nil {
		return Failure("database: exec failed: %v", err)
	}
	affected, _ := res.RowsAffected()
	return Success(map[string]any{"rows_affected": affected})
}

func (t *DatabaseTool) createTable(ctx context.Context, params map[string]any) models.ToolResult {
	table, ok := stringParam(params, "table")
	if !ok || !identRe.MatchString(table) {
		return Failure("database: valid table parameter required")
	}
	columns, ok := stringParam(params, "columns")
	if !ok {
		return Failure("database: columns parameter required")
	}

	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", table, columns)
	if _, err := t.db.ExecContext(ctx, stmt); err != nil {
		return Failure("database: create_table failed: %v", err)
	}
	return Success(map[string]any{"table": table})
}

func (t *DatabaseTool) schema(ctx context.Context) models.ToolResult {
	rows, err := t.db.QueryContext(ctx, `
		SELECT table_name, column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = 'public'
		ORDER BY table_name, ordinal_position`)
	if err != nil {
		return Failure("database: schema query failed: %v", err)
	}
	defer func() { _ = rows.Close() }()

	schema := make(map[string][]map[string]string)
	for rows.Next() {
		var table, column, dataType string
		if err := rows.Scan(&table, &column, &dataType); err != nil {
			return Failure("database: %v", err)
		}
		schema[table] = append(schema[table], map[string]string{
			"column": column,
			"type":   dataType,
		})
	}
	if err := rows.Err(); err != nil {
		return Failure("database: %v", err)
	}
	return Success(map[string]any{"tables": schema})
}

// backup dumps a table's rows; the caller decides where to persist them.
func (t *DatabaseTool) backup(ctx context.Context, params map[string]any) models.ToolResult {
	table, ok := stringParam(params, "table")
	if !ok || !identRe.MatchString(table) {
		return Failure("database: valid table parameter required")
	}

	rows, err := t.db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s", table))
	if err != nil {
		return Failure("database: backup failed: %v", err)
	}
	defer func() { _ = rows.Close() }()

	results, err := scanRows(rows)
	if err != nil {
		return Failure("database: %v", err)
	}
	return Success(map[string]any{"table": table, "rows": results, "count": len(results)})
}

// scanRows converts a result set into ordered column/value maps.
func scanRows(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	var results []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration failed: %w", err)
	}
	return results, nil
}

// sliceParam reads an optional positional-argument list.
func sliceParam(params map[string]any, key string) []any {
	v, _ := params[key].([]any)
	return v
}
