package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteQueue is the default, file-backed queue. WAL mode gives concurrent
// readers with serialized writers, which is all the single-scheduler model
// needs.
type SQLiteQueue struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the task database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteQueue, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create queue directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open task database: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	schema := `CREATE TABLE IF NOT EXISTS tasks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		type TEXT NOT NULL,
		payload TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'queued',
		priority INTEGER NOT NULL DEFAULT 0,
		run_id TEXT,
		created_at REAL NOT NULL
	);`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tasks table: %w", err)
	}
	return &SQLiteQueue{db: db}, nil
}

func (q *SQLiteQueue) Enqueue(ctx context.Context, taskType string, payload map[string]any, priority int) (int64, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal payload: %w", err)
	}
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO tasks(type, payload, status, priority, created_at)
		 VALUES(?, ?, 'queued', ?, (julianday('now') - 2440587.5) * 86400.0)`,
		taskType, string(raw), priority,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read task id: %w", err)
	}
	return id, nil
}

func (q *SQLiteQueue) ClaimNext(ctx context.Context, runID string) (*Claimed, error) {
	// One statement: pick the best queued row and flip it. The status guard
	// in the WHERE clause makes concurrent claims mutually exclusive.
	row := q.db.QueryRowContext(ctx,
		`UPDATE tasks SET status = 'running', run_id = ?
		 WHERE id = (
			SELECT id FROM tasks WHERE status = 'queued'
			ORDER BY priority DESC, created_at ASC, id ASC LIMIT 1
		 ) AND status = 'queued'
		 RETURNING id, type, payload`,
		runID,
	)
	var (
		id      int64
		typ     string
		rawJSON string
	)
	if err := row.Scan(&id, &typ, &rawJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to claim task: %w", err)
	}
	payload := map[string]any{}
	if err := json.Unmarshal([]byte(rawJSON), &payload); err != nil {
		return nil, fmt.Errorf("corrupt payload for task %d: %w", id, err)
	}
	return &Claimed{ID: id, Type: typ, Payload: payload}, nil
}

func (q *SQLiteQueue) SetStatus(ctx context.Context, id int64, status Status) error {
	res, err := q.db.ExecContext(ctx, `UPDATE tasks SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update task %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update task %d: %w", id, err)
	}
	if n == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (q *SQLiteQueue) Get(ctx context.Context, id int64) (*Task, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT id, type, payload, status, priority, COALESCE(run_id, ''), created_at
		 FROM tasks WHERE id = ?`, id)
	return scanTask(row)
}

func (q *SQLiteQueue) List(ctx context.Context, limit int) ([]Task, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, type, payload, status, priority, COALESCE(run_id, ''), created_at
		 FROM tasks ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

func (q *SQLiteQueue) Depth(ctx context.Context) (int, error) {
	var n int
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM tasks WHERE status = 'queued'`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count queued tasks: %w", err)
	}
	return n, nil
}

func (q *SQLiteQueue) IsEmpty(ctx context.Context) (bool, error) {
	var n int
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM tasks`).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to count tasks: %w", err)
	}
	return n == 0, nil
}

func (q *SQLiteQueue) RequeueOrphans(ctx context.Context) (int, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE tasks SET status = 'queued', run_id = NULL WHERE status = 'running'`)
	if err != nil {
		return 0, fmt.Errorf("failed to requeue orphaned tasks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to requeue orphaned tasks: %w", err)
	}
	return int(n), nil
}

func (q *SQLiteQueue) Close() error {
	return q.db.Close()
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*Task, error) {
	var (
		task      Task
		rawJSON   string
		status    string
		createdAt float64
	)
	if err := row.Scan(&task.ID, &task.Type, &rawJSON, &status, &task.Priority, &task.RunID, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to scan task: %w", err)
	}
	task.Status = Status(status)
	task.CreatedAt = unixFloatToTime(createdAt)
	task.Payload = map[string]any{}
	if err := json.Unmarshal([]byte(rawJSON), &task.Payload); err != nil {
		return nil, fmt.Errorf("corrupt payload for task %d: %w", task.ID, err)
	}
	return &task, nil
}
