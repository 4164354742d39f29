// Package queue implements the durable, priority-ordered task backlog. Tasks
// survive process restarts; claiming is a single conditional update so that
// two concurrent schedulers can never take the same task.
package queue

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// ErrTaskNotFound is returned when a task id has no row.
var ErrTaskNotFound = errors.New("task not found")

// Task is a durable unit of work. Rows are never deleted; terminal tasks are
// retained as history.
type Task struct {
	ID        int64          `json:"id"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
	Status    Status         `json:"status"`
	Priority  int            `json:"priority"`
	RunID     string         `json:"run_id,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Claimed is the subset of a task handed to the pipeline.
type Claimed struct {
	ID      int64
	Type    string
	Payload map[string]any
}

// Queue is the durable backlog contract. Ordering among queued rows is
// highest priority first, then earliest enqueue (strict FIFO within a
// priority band).
type Queue interface {
	// Enqueue inserts a queued task and returns its monotonic id.
	Enqueue(ctx context.Context, taskType string, payload map[string]any, priority int) (int64, error)

	// ClaimNext atomically selects the next queued task, marks it running
	// and stamps it with runID. It returns (nil, nil) when the backlog has
	// no queued tasks.
	ClaimNext(ctx context.Context, runID string) (*Claimed, error)

	// SetStatus transitions a task to the given status.
	SetStatus(ctx context.Context, id int64, status Status) error

	// Get returns a task by id, or ErrTaskNotFound.
	Get(ctx context.Context, id int64) (*Task, error)

	// List returns the most recent tasks, newest first.
	List(ctx context.Context, limit int) ([]Task, error)

	// Depth counts queued tasks.
	Depth(ctx context.Context) (int, error)

	// IsEmpty reports whether the table has no rows at all.
	IsEmpty(ctx context.Context) (bool, error)

	// RequeueOrphans flips running tasks back to queued (clearing run_id)
	// and returns how many were reset. A restart calls this once before
	// the loop starts, so a crashed scheduler's claims are not lost.
	RequeueOrphans(ctx context.Context) (int, error)

	Close() error
}

// unixFloatToTime converts a fractional unix timestamp to time.Time.
func unixFloatToTime(ts float64) time.Time {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}

// Open selects a backend from the URL: postgres:// / postgresql:// URLs use
// PostgreSQL, anything else is a SQLite file path.
func Open(ctx context.Context, url string) (Queue, error) {
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		return OpenPostgres(ctx, url)
	}
	return OpenSQLite(ctx, url)
}
