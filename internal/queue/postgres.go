package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresQueue backs the task table with PostgreSQL. SKIP LOCKED on the
// claim subquery keeps claims atomic even with several schedulers pointed at
// the same database.
type PostgresQueue struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects and ensures the tasks table exists.
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresQueue, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to task database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping task database: %w", err)
	}
	schema := `CREATE TABLE IF NOT EXISTS tasks (
		id BIGSERIAL PRIMARY KEY,
		type TEXT NOT NULL,
		payload JSONB NOT NULL,
		status TEXT NOT NULL DEFAULT 'queued',
		priority INTEGER NOT NULL DEFAULT 0,
		run_id TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS tasks_claim_idx ON tasks (status, priority DESC, created_at ASC);`
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create tasks table: %w", err)
	}
	return &PostgresQueue{pool: pool}, nil
}

func (q *PostgresQueue) Enqueue(ctx context.Context, taskType string, payload map[string]any, priority int) (int64, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal payload: %w", err)
	}
	var id int64
	err = q.pool.QueryRow(ctx,
		`INSERT INTO tasks (type, payload, priority) VALUES ($1, $2, $3) RETURNING id`,
		taskType, raw, priority,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue task: %w", err)
	}
	return id, nil
}

func (q *PostgresQueue) ClaimNext(ctx context.Context, runID string) (*Claimed, error) {
	row := q.pool.QueryRow(ctx,
		`UPDATE tasks SET status = 'running', run_id = $1
		 WHERE id = (
			SELECT id FROM tasks WHERE status = 'queued'
			ORDER BY priority DESC, created_at ASC, id ASC
			LIMIT 1 FOR UPDATE SKIP LOCKED
		 )
		 RETURNING id, type, payload`,
		runID,
	)
	var (
		id  int64
		typ string
		raw []byte
	)
	if err := row.Scan(&id, &typ, &raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to claim task: %w", err)
	}
	payload := map[string]any{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("corrupt payload for task %d: %w", id, err)
	}
	return &Claimed{ID: id, Type: typ, Payload: payload}, nil
}

func (q *PostgresQueue) SetStatus(ctx context.Context, id int64, status Status) error {
	res, err := q.pool.Exec(ctx, `UPDATE tasks SET status = $1 WHERE id = $2`, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update task %d: %w", id, err)
	}
	if res.RowsAffected() == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (q *PostgresQueue) Get(ctx context.Context, id int64) (*Task, error) {
	var (
		task   Task
		raw    []byte
		status string
	)
	err := q.pool.QueryRow(ctx,
		`SELECT id, type, payload, status, priority, COALESCE(run_id, ''), created_at
		 FROM tasks WHERE id = $1`, id,
	).Scan(&task.ID, &task.Type, &raw, &status, &task.Priority, &task.RunID, &task.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task %d: %w", id, err)
	}
	task.Status = Status(status)
	task.Payload = map[string]any{}
	if err := json.Unmarshal(raw, &task.Payload); err != nil {
		return nil, fmt.Errorf("corrupt payload for task %d: %w", id, err)
	}
	return &task, nil
}

func (q *PostgresQueue) List(ctx context.Context, limit int) ([]Task, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := q.pool.Query(ctx,
		`SELECT id, type, payload, status, priority, COALESCE(run_id, ''), created_at
		 FROM tasks ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		var (
			task   Task
			raw    []byte
			status string
		)
		if err := rows.Scan(&task.ID, &task.Type, &raw, &status, &task.Priority, &task.RunID, &task.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		task.Status = Status(status)
		task.Payload = map[string]any{}
		if err := json.Unmarshal(raw, &task.Payload); err != nil {
			return nil, fmt.Errorf("corrupt payload for task %d: %w", task.ID, err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func (q *PostgresQueue) Depth(ctx context.Context) (int, error) {
	var n int
	if err := q.pool.QueryRow(ctx, `SELECT COUNT(1) FROM tasks WHERE status = 'queued'`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count queued tasks: %w", err)
	}
	return n, nil
}

func (q *PostgresQueue) IsEmpty(ctx context.Context) (bool, error) {
	var n int
	if err := q.pool.QueryRow(ctx, `SELECT COUNT(1) FROM tasks`).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to count tasks: %w", err)
	}
	return n == 0, nil
}

func (q *PostgresQueue) RequeueOrphans(ctx context.Context) (int, error) {
	res, err := q.pool.Exec(ctx,
		`UPDATE tasks SET status = 'queued', run_id = NULL WHERE status = 'running'`)
	if err != nil {
		return 0, fmt.Errorf("failed to requeue orphaned tasks: %w", err)
	}
	return int(res.RowsAffected()), nil
}

func (q *PostgresQueue) Close() error {
	q.pool.Close()
	return nil
}
