package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore backs the history with a single SQLite file. WAL mode lets the
// scheduler write while HTTP readers query concurrently.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the history database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create memory store directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open memory store: %w", err)
	}
	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		duration REAL NOT NULL DEFAULT 0,
		score REAL NOT NULL DEFAULT 0,
		created_at REAL NOT NULL
	);
	CREATE TABLE IF NOT EXISTS artifacts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		name TEXT NOT NULL,
		size INTEGER NOT NULL DEFAULT 0,
		sha256 TEXT NOT NULL DEFAULT '',
		mime TEXT NOT NULL DEFAULT '',
		path TEXT NOT NULL DEFAULT '',
		created_at REAL NOT NULL
	);
	CREATE TABLE IF NOT EXISTS skills_learned (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		run_id TEXT NOT NULL DEFAULT '',
		created_at REAL NOT NULL
	);
	CREATE INDEX IF NOT EXISTS artifacts_run_idx ON artifacts (run_id);
	CREATE INDEX IF NOT EXISTS runs_created_idx ON runs (created_at DESC);`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create memory store schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// nowStamp is a fractional unix timestamp, which SQLite stores natively as
// REAL and sorts correctly.
const nowStamp = `(julianday('now') - 2440587.5) * 86400.0`

func (s *SQLiteStore) RecordRun(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, duration, score, created_at)
		 VALUES (?, ?, ?, ?, `+nowStamp+`)
		 ON CONFLICT(id) DO UPDATE SET status = excluded.status,
			duration = excluded.duration, score = excluded.score`,
		run.ID, run.Status, run.Duration, run.Score,
	)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", run.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	var (
		run Run
		ts  float64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, status, duration, score, created_at FROM runs WHERE id = ?`, id,
	).Scan(&run.ID, &run.Status, &run.Duration, &run.Score, &ts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	run.CreatedAt = floatToTime(ts)
	return &run, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, status, duration, score, created_at FROM runs
		 ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run Run
			ts  float64
		)
		if err := rows.Scan(&run.ID, &run.Status, &run.Duration, &run.Score, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.CreatedAt = floatToTime(ts)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) RecordArtifacts(ctx context.Context, runID string, artifacts []Artifact) error {
	if len(artifacts) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin artifact insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO artifacts (run_id, name, size, sha256, mime, path, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, `+nowStamp+`)`)
	if err != nil {
		return fmt.Errorf("failed to prepare artifact insert: %w", err)
	}
	defer stmt.Close()

	for _, a := range artifacts {
		if _, err := stmt.ExecContext(ctx, runID, a.Name, a.Size, a.SHA256, a.Mime, a.Path); err != nil {
			return fmt.Errorf("failed to record artifact %s: %w", a.Name, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListArtifacts(ctx context.Context, runID string) ([]Artifact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, name, size, sha256, mime, path, created_at
		 FROM artifacts WHERE run_id = ? ORDER BY id ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []Artifact
	for rows.Next() {
		var (
			a  Artifact
			ts float64
		)
		if err := rows.Scan(&a.RunID, &a.Name, &a.Size, &a.SHA256, &a.Mime, &a.Path, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		a.CreatedAt = floatToTime(ts)
		artifacts = append(artifacts, a)
	}
	return artifacts, rows.Err()
}

func (s *SQLiteStore) RecordSkill(ctx context.Context, name, runID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO skills_learned (name, run_id, created_at) VALUES (?, ?, `+nowStamp+`)`,
		name, runID)
	if err != nil {
		return fmt.Errorf("failed to record skill %s: %w", name, err)
	}
	return nil
}

func (s *SQLiteStore) ListSkills(ctx context.Context, limit int) ([]Skill, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, run_id, created_at FROM skills_learned
		 ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list skills: %w", err)
	}
	defer rows.Close()

	var skills []Skill
	for rows.Next() {
		var (
			sk Skill
			ts float64
		)
		if err := rows.Scan(&sk.Name, &sk.RunID, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan skill: %w", err)
		}
		sk.CreatedAt = floatToTime(ts)
		skills = append(skills, sk)
	}
	return skills, rows.Err()
}

func (s *SQLiteStore) Metrics(ctx context.Context) (*Metrics, error) {
	m := &Metrics{}

	now := time.Now().UTC()
	week := float64(now.AddDate(0, 0, -7).UnixNano()) / 1e9
	month := float64(now.AddDate(0, 0, -30).UnixNano()) / 1e9

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM runs WHERE status = 'completed' AND created_at >= ?`, week,
	).Scan(&m.Completed7d)
	if err != nil {
		return nil, fmt.Errorf("failed to count completed runs: %w", err)
	}
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM runs WHERE status = 'completed' AND created_at >= ?`, month,
	).Scan(&m.Completed30d)
	if err != nil {
		return nil, fmt.Errorf("failed to count completed runs: %w", err)
	}
	err = s.db.QueryRowContext(ctx,
		`SELECT COALESCE(AVG(duration), 0) FROM runs WHERE status <> 'running'`,
	).Scan(&m.AvgDuration)
	if err != nil {
		return nil, fmt.Errorf("failed to average durations: %w", err)
	}

	skills, err := s.ListSkills(ctx, 10)
	if err != nil {
		return nil, err
	}
	m.RecentSkills = make([]string, 0, len(skills))
	for _, sk := range skills {
		m.RecentSkills = append(m.RecentSkills, sk.Name)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT score FROM runs ORDER BY created_at DESC LIMIT ?`, histogramWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to read scores: %w", err)
	}
	defer rows.Close()

	var scores []float64
	for rows.Next() {
		var score float64
		if err := rows.Scan(&score); err != nil {
			return nil, fmt.Errorf("failed to scan score: %w", err)
		}
		scores = append(scores, score)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	m.ScoreHistogram = scoreHistogram(scores)
	return m, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func floatToTime(ts float64) time.Time {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}
