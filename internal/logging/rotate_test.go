package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotatingWriter_AppendsWithinBound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scheduler.log")
	w, err := NewRotatingWriter(path, 1024, 2)
	require.NoError(t, err)
	defer w.Close()

	_, err = w.Write([]byte("line one\n"))
	require.NoError(t, err)
	_, err = w.Write([]byte("line two\n"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two\n", string(data))
}

func TestRotatingWriter_RotatesOverBound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scheduler.log")
	w, err := NewRotatingWriter(path, 32, 2)
	require.NoError(t, err)
	defer w.Close()

	for i := 0; i < 6; i++ {
		_, err = w.Write([]byte(strings.Repeat("x", 20) + "\n"))
		require.NoError(t, err)
	}

	// Current file plus two rotated generations, no third.
	_, err = os.Stat(path)
	require.NoError(t, err)
	_, err = os.Stat(path + ".1")
	require.NoError(t, err)
	_, err = os.Stat(path + ".2")
	require.NoError(t, err)
	_, err = os.Stat(path + ".3")
	assert.True(t, os.IsNotExist(err))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.LessOrEqual(t, info.Size(), int64(32))
}

func TestRotatingWriter_ZeroBackupsTruncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scheduler.log")
	w, err := NewRotatingWriter(path, 16, 0)
	require.NoError(t, err)
	defer w.Close()

	for i := 0; i < 4; i++ {
		_, err = w.Write([]byte("0123456789\n"))
		require.NoError(t, err)
	}

	_, err = os.Stat(path + ".1")
	assert.True(t, os.IsNotExist(err))
}

func TestRotatingWriter_RejectsNonPositiveBound(t *testing.T) {
	_, err := NewRotatingWriter(filepath.Join(t.TempDir(), "x.log"), 0, 1)
	assert.Error(t, err)
}

func TestRotatingWriter_ResumesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scheduler.log")
	require.NoError(t, os.WriteFile(path, []byte("existing\n"), 0o644))

	w, err := NewRotatingWriter(path, 1024, 1)
	require.NoError(t, err)
	defer w.Close()

	_, err = w.Write([]byte("appended\n"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "existing\nappended\n", string(data))
}
