package memory

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "runs.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordRunUpsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id := uuid.New().String()

	require.NoError(t, s.RecordRun(ctx, Run{ID: id, Status: RunStatusRunning}))
	run, err := s.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, RunStatusRunning, run.Status)
	created := run.CreatedAt

	require.NoError(t, s.RecordRun(ctx, Run{ID: id, Status: RunStatusCompleted, Duration: 1.5, Score: 1.0}))
	run, err = s.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, RunStatusCompleted, run.Status)
	assert.Equal(t, 1.5, run.Duration)
	assert.Equal(t, 1.0, run.Score)
	// Upsert keeps the original creation time.
	assert.Equal(t, created, run.CreatedAt)
}

func TestGetRunMissing(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetRun(context.Background(), "no-such-run")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestArtifactsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id := uuid.New().String()

	require.NoError(t, s.RecordRun(ctx, Run{ID: id, Status: RunStatusCompleted}))
	require.NoError(t, s.RecordArtifacts(ctx, id, []Artifact{
		{Name: "notepad_output.txt", Size: 12, Mime: "text/plain", Path: "/tmp/x/notepad_output.txt"},
		{Name: "receipt.txt", Size: 34, Mime: "text/plain", Path: "/tmp/x/receipt.txt"},
	}))

	artifacts, err := s.ListArtifacts(ctx, id)
	require.NoError(t, err)
	require.Len(t, artifacts, 2)
	assert.Equal(t, "notepad_output.txt", artifacts[0].Name)
	assert.Equal(t, "receipt.txt", artifacts[1].Name)
	assert.Equal(t, id, artifacts[0].RunID)
	assert.Equal(t, int64(12), artifacts[0].Size)

	other, err := s.ListArtifacts(ctx, "other-run")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestRecordArtifactsEmptySlice(t *testing.T) {
	s := openTestStore(t)
	assert.NoError(t, s.RecordArtifacts(context.Background(), "run", nil))
}

func TestSkillsNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordSkill(ctx, "text_normalize", "run-1"))
	require.NoError(t, s.RecordSkill(ctx, "csv_summarize", "run-2"))

	skills, err := s.ListSkills(ctx, 10)
	require.NoError(t, err)
	require.Len(t, skills, 2)
	assert.Equal(t, "csv_summarize", skills[0].Name)
	assert.Equal(t, "text_normalize", skills[1].Name)
	assert.Equal(t, "run-2", skills[0].RunID)
}

func TestMetricsSnapshot(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	scores := []float64{0.0, 0.15, 1.0, 1.0, 0.75}
	for _, score := range scores {
		status := RunStatusCompleted
		if score < 0.5 {
			status = RunStatusFailed
		}
		require.NoError(t, s.RecordRun(ctx, Run{
			ID:       uuid.New().String(),
			Status:   status,
			Duration: 2.0,
			Score:    score,
		}))
	}
	require.NoError(t, s.RecordSkill(ctx, "text_normalize", "run-x"))

	m, err := s.Metrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, m.Completed7d)
	assert.Equal(t, 3, m.Completed30d)
	assert.InDelta(t, 2.0, m.AvgDuration, 1e-9)
	assert.Equal(t, []string{"text_normalize"}, m.RecentSkills)
	assert.Equal(t, map[string]int{
		"0-0.2":   2,
		"0.2-0.4": 0,
		"0.4-0.6": 0,
		"0.6-0.8": 1,
		"0.8-1.0": 0,
		"1.0":     2,
	}, m.ScoreHistogram)
}

func TestMetricsAvgDurationCountsZeroDurationTerminalRuns(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// An instantaneous terminal run is a legitimate zero-duration data
	// point; only in-flight runs stay out of the average.
	require.NoError(t, s.RecordRun(ctx, Run{ID: "fast", Status: RunStatusCompleted, Duration: 0}))
	require.NoError(t, s.RecordRun(ctx, Run{ID: "slow", Status: RunStatusFailed, Duration: 4.0}))
	require.NoError(t, s.RecordRun(ctx, Run{ID: "live", Status: RunStatusRunning, Duration: 0}))

	m, err := s.Metrics(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, m.AvgDuration, 1e-9)
}

func TestScoreHistogramBuckets(t *testing.T) {
	hist := scoreHistogram([]float64{0.0, 0.15, 1.0, 1.0, 0.75})
	assert.Equal(t, 2, hist["0-0.2"])
	assert.Equal(t, 1, hist["0.6-0.8"])
	assert.Equal(t, 2, hist["1.0"])
	assert.Zero(t, hist["0.8-1.0"])
	assert.Zero(t, hist["0.2-0.4"])
	assert.Zero(t, hist["0.4-0.6"])

	// Exactly 1.0 never lands in the open bucket below it.
	edge := scoreHistogram([]float64{0.8, 0.999, 1.0})
	assert.Equal(t, 2, edge["0.8-1.0"])
	assert.Equal(t, 1, edge["1.0"])
}
