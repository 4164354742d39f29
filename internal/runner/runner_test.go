package runner

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteStatus(t *testing.T) {
	dir := t.TempDir()
	r, err := New(dir, "run-1")
	require.NoError(t, err)

	require.NoError(t, r.WriteStatus("running", nil))
	require.NoError(t, r.WriteStatus("completed", map[string]any{"score": 1.0}))

	data, err := os.ReadFile(filepath.Join(dir, "status.json"))
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "completed", doc["status"])
	assert.Equal(t, "run-1", doc["run_id"])
	assert.Equal(t, 1.0, doc["score"])

	// No leftover temp files from the atomic write.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestAddArtifact(t *testing.T) {
	dir := t.TempDir()
	r, err := New(dir, "run-1")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notepad_output.txt"), []byte("hello"), 0o644))

	a, err := r.AddArtifact("notepad_output.txt")
	require.NoError(t, err)
	assert.Equal(t, "notepad_output.txt", a.Name)
	assert.Equal(t, int64(5), a.Size)
	assert.Len(t, a.SHA256, 64)
	assert.Contains(t, a.Mime, "text/plain")
	assert.Equal(t, "run-1", a.RunID)

	manifest := r.Artifacts()
	require.Len(t, manifest, 1)
	assert.Equal(t, "notepad_output.txt", manifest[0].Name)
}

func TestAddArtifactAppends(t *testing.T) {
	dir := t.TempDir()
	r, err := New(dir, "run-1")
	require.NoError(t, err)

	for _, name := range []string{"a.txt", "b.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(name), 0o644))
		_, err := r.AddArtifact(name)
		require.NoError(t, err)
	}

	manifest := r.Artifacts()
	require.Len(t, manifest, 2)
	assert.Equal(t, "a.txt", manifest[0].Name)
	assert.Equal(t, "b.txt", manifest[1].Name)
}

func TestAddArtifactMissingFile(t *testing.T) {
	r, err := New(t.TempDir(), "run-1")
	require.NoError(t, err)

	_, err = r.AddArtifact("nope.txt")
	assert.Error(t, err)
}

func TestReadManifestDegradesToEmpty(t *testing.T) {
	dir := t.TempDir()

	assert.Empty(t, ReadManifest(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "artifacts.json"), []byte("{not json"), 0o644))
	assert.Empty(t, ReadManifest(dir))
}
