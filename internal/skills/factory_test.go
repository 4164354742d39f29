package skills

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFactory(t *testing.T, maxNew int) (*Factory, *Registry) {
	t.Helper()
	dir := t.TempDir()
	r := NewRegistry(maxNew)
	f := NewFactory(r, nil, filepath.Join(dir, "generated"), filepath.Join(dir, "manifest.json"), maxNew)
	f.validate = func(ctx context.Context, dir string) (string, bool, error) {
		return "ok", false, nil
	}
	return f, r
}

func TestMaybeLearnActivates(t *testing.T) {
	f, r := newTestFactory(t, 1)

	res, err := f.MaybeLearn(context.Background(), "run-1", 0.99, 0.5)
	require.NoError(t, err)
	assert.True(t, res.Learned)
	assert.Equal(t, "text_normalize", res.Name)
	assert.FileExists(t, res.SkillPath)
	assert.FileExists(t, res.TestPath)

	_, ok := r.Get("text_normalize")
	assert.True(t, ok)

	m, err := ReadManifest(f.manifestPath)
	require.NoError(t, err)
	require.Len(t, m.Skills, 1)
	assert.Equal(t, "run-1", m.Skills[0].RunID)
	assert.Len(t, m.Skills[0].SpecHash, 12)
}

func TestMaybeLearnRefusesWhenThresholdMet(t *testing.T) {
	f, r := newTestFactory(t, 1)

	res, err := f.MaybeLearn(context.Background(), "run-1", 0.5, 0.7)
	require.NoError(t, err)
	assert.False(t, res.Learned)
	assert.Equal(t, ReasonThresholdMet, res.Reason)

	_, ok := r.Get("text_normalize")
	assert.False(t, ok)
}

func TestMaybeLearnBudgetExhausted(t *testing.T) {
	f, _ := newTestFactory(t, 1)
	ctx := context.Background()

	res, err := f.MaybeLearn(ctx, "run-1", 0.99, 0.1)
	require.NoError(t, err)
	require.True(t, res.Learned)

	res, err = f.MaybeLearn(ctx, "run-1", 0.99, 0.1)
	require.NoError(t, err)
	assert.False(t, res.Learned)
	assert.Equal(t, ReasonMaxNewReached, res.Reason)
}

func TestMaybeLearnZeroBudget(t *testing.T) {
	f, _ := newTestFactory(t, 0)

	res, err := f.MaybeLearn(context.Background(), "run-1", 0.99, 0.1)
	require.NoError(t, err)
	assert.Equal(t, ReasonMaxNewReached, res.Reason)
}

func TestMaybeLearnFailedTestNeverActivates(t *testing.T) {
	f, r := newTestFactory(t, 1)
	f.validate = func(ctx context.Context, dir string) (string, bool, error) {
		return "--- FAIL: TestNormalize", true, nil
	}

	res, err := f.MaybeLearn(context.Background(), "run-1", 0.99, 0.1)
	require.NoError(t, err)
	assert.False(t, res.Learned)
	assert.Equal(t, ReasonTestFailed, res.Reason)
	assert.Contains(t, res.Output, "FAIL")

	_, ok := r.Get("text_normalize")
	assert.False(t, ok)

	m, err := ReadManifest(f.manifestPath)
	require.NoError(t, err)
	assert.Empty(t, m.Skills)
}

func TestMaybeLearnValidatorError(t *testing.T) {
	f, r := newTestFactory(t, 1)
	f.validate = func(ctx context.Context, dir string) (string, bool, error) {
		return "", false, errors.New("go binary not found")
	}

	res, err := f.MaybeLearn(context.Background(), "run-1", 0.99, 0.1)
	require.NoError(t, err)
	assert.Equal(t, ReasonTestError, res.Reason)
	assert.Contains(t, res.Output, "go binary not found")

	_, ok := r.Get("text_normalize")
	assert.False(t, ok)
}

func TestCandidateFilesCarryProvenanceHeader(t *testing.T) {
	f, _ := newTestFactory(t, 1)

	res, err := f.MaybeLearn(context.Background(), "run-abc", 0.99, 0.1)
	require.NoError(t, err)
	require.True(t, res.Learned)

	data, err := os.ReadFile(res.SkillPath)
	require.NoError(t, err)
	first := strings.SplitN(string(data), "\n", 2)[0]
	assert.Contains(t, first, "run_id=run-abc")
	assert.Contains(t, first, "spec_hash=")
}
