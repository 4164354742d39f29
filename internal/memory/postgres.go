package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore backs the history with PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects and ensures the history tables exist.
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to memory store: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping memory store: %w", err)
	}
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		duration DOUBLE PRECISION NOT NULL DEFAULT 0,
		score DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE TABLE IF NOT EXISTS artifacts (
		id BIGSERIAL PRIMARY KEY,
		run_id TEXT NOT NULL,
		name TEXT NOT NULL,
		size BIGINT NOT NULL DEFAULT 0,
		sha256 TEXT NOT NULL DEFAULT '',
		mime TEXT NOT NULL DEFAULT '',
		path TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE TABLE IF NOT EXISTS skills_learned (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		run_id TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS artifacts_run_idx ON artifacts (run_id);
	CREATE INDEX IF NOT EXISTS runs_created_idx ON runs (created_at DESC);`
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create memory store schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) RecordRun(ctx context.Context, run Run) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, status, duration, score)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status,
			duration = EXCLUDED.duration, score = EXCLUDED.score`,
		run.ID, run.Status, run.Duration, run.Score,
	)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", run.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, id string) (*Run, error) {
	var run Run
	err := s.pool.QueryRow(ctx,
		`SELECT id, status, duration, score, created_at FROM runs WHERE id = $1`, id,
	).Scan(&run.ID, &run.Status, &run.Duration, &run.Score, &run.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	return &run, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, status, duration, score, created_at FROM runs
		 ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.Status, &run.Duration, &run.Score, &run.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *PostgresStore) RecordArtifacts(ctx context.Context, runID string, artifacts []Artifact) error {
	if len(artifacts) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin artifact insert: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, a := range artifacts {
		_, err := tx.Exec(ctx,
			`INSERT INTO artifacts (run_id, name, size, sha256, mime, path)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			runID, a.Name, a.Size, a.SHA256, a.Mime, a.Path)
		if err != nil {
			return fmt.Errorf("failed to record artifact %s: %w", a.Name, err)
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) ListArtifacts(ctx context.Context, runID string) ([]Artifact, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT run_id, name, size, sha256, mime, path, created_at
		 FROM artifacts WHERE run_id = $1 ORDER BY id ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []Artifact
	for rows.Next() {
		var a Artifact
		if err := rows.Scan(&a.RunID, &a.Name, &a.Size, &a.SHA256, &a.Mime, &a.Path, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, rows.Err()
}

func (s *PostgresStore) RecordSkill(ctx context.Context, name, runID string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO skills_learned (name, run_id) VALUES ($1, $2)`, name, runID)
	if err != nil {
		return fmt.Errorf("failed to record skill %s: %w", name, err)
	}
	return nil
}

func (s *PostgresStore) ListSkills(ctx context.Context, limit int) ([]Skill, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx,
		`SELECT name, run_id, created_at FROM skills_learned
		 ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list skills: %w", err)
	}
	defer rows.Close()

	var skills []Skill
	for rows.Next() {
		var sk Skill
		if err := rows.Scan(&sk.Name, &sk.RunID, &sk.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan skill: %w", err)
		}
		skills = append(skills, sk)
	}
	return skills, rows.Err()
}

func (s *PostgresStore) Metrics(ctx context.Context) (*Metrics, error) {
	m := &Metrics{}

	now := time.Now().UTC()
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(1) FROM runs WHERE status = 'completed' AND created_at >= $1`,
		now.AddDate(0, 0, -7),
	).Scan(&m.Completed7d)
	if err != nil {
		return nil, fmt.Errorf("failed to count completed runs: %w", err)
	}
	err = s.pool.QueryRow(ctx,
		`SELECT COUNT(1) FROM runs WHERE status = 'completed' AND created_at >= $1`,
		now.AddDate(0, 0, -30),
	).Scan(&m.Completed30d)
	if err != nil {
		return nil, fmt.Errorf("failed to count completed runs: %w", err)
	}
	err = s.pool.QueryRow(ctx,
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

	rows, err := s.pool.Query(ctx,
		`SELECT score FROM runs ORDER BY created_at DESC LIMIT $1`, histogramWindow)
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

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
