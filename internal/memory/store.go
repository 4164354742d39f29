// Package memory is the durable history of the agent: runs, the artifacts
// they produced, the skills they learned, and metrics derived from all three.
package memory

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Run statuses. A run is created as running and upserted into a terminal
// state when the pipeline finishes.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
	RunStatusAborted   = "aborted"
)

// ErrRunNotFound is returned when a run id has no row.
var ErrRunNotFound = errors.New("run not found")

// Run is one pipeline invocation.
type Run struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Duration  float64   `json:"duration"`
	Score     float64   `json:"score"`
	CreatedAt time.Time `json:"created_at"`
}

// Artifact is a file a run produced. Rows are append-only.
type Artifact struct {
	RunID     string    `json:"run_id"`
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	SHA256    string    `json:"sha256,omitempty"`
	Mime      string    `json:"mime"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
}

// Skill records a capability the factory validated and activated.
type Skill struct {
	Name      string    `json:"name"`
	RunID     string    `json:"run_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Metrics is the derived snapshot served to observers.
type Metrics struct {
	Completed7d    int            `json:"completed_7d"`
	Completed30d   int            `json:"completed_30d"`
	AvgDuration    float64        `json:"avg_duration"`
	RecentSkills   []string       `json:"recent_skills"`
	ScoreHistogram map[string]int `json:"score_histogram"`
}

// Store is the durable history contract. Runs are upserted by id; artifacts
// and skills are append-only.
type Store interface {
	// RecordRun inserts the run or, when the id exists, updates its
	// status, duration and score.
	RecordRun(ctx context.Context, run Run) error

	// GetRun returns a run by id, or ErrRunNotFound.
	GetRun(ctx context.Context, id string) (*Run, error)

	// ListRuns returns the most recent runs, newest first.
	ListRuns(ctx context.Context, limit int) ([]Run, error)

	// RecordArtifacts appends the manifest entries for a run.
	RecordArtifacts(ctx context.Context, runID string, artifacts []Artifact) error

	// ListArtifacts returns a run's artifacts in insertion order.
	ListArtifacts(ctx context.Context, runID string) ([]Artifact, error)

	// RecordSkill appends a learned skill.
	RecordSkill(ctx context.Context, name, runID string) error

	// ListSkills returns the most recently learned skills, newest first.
	ListSkills(ctx context.Context, limit int) ([]Skill, error)

	// Metrics computes the derived snapshot.
	Metrics(ctx context.Context) (*Metrics, error)

	Close() error
}

// Open selects a backend from the URL: postgres:// / postgresql:// URLs use
// PostgreSQL, anything else is a SQLite file path.
func Open(ctx context.Context, url string) (Store, error) {
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		return OpenPostgres(ctx, url)
	}
	return OpenSQLite(ctx, url)
}
