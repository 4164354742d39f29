package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openLog(t *testing.T) (*Log, string) {
	t.Helper()
	dir := t.TempDir()
	log, err := Open(dir)
	require.NoError(t, err)
	return log, filepath.Join(dir, FileName)
}

func TestRecord_ChainsFromGenesis(t *testing.T) {
	log, path := openLog(t)

	require.NoError(t, log.Record("run_start", map[string]any{"task": "demo"}))
	require.NoError(t, log.Record("plan", map[string]any{"step": "initial"}))
	require.NoError(t, log.Record("run_end", map[string]any{"status": "completed"}))

	records, err := ReadAll(path)
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, Genesis, records[0].Prev)
	assert.Equal(t, records[0].Hash, records[1].Prev)
	assert.Equal(t, records[1].Hash, records[2].Prev)
	assert.Len(t, records[0].Hash, 64)
}

func TestVerify_ValidChain(t *testing.T) {
	log, path := openLog(t)

	for i := 0; i < 10; i++ {
		require.NoError(t, log.Record("step_result", map[string]any{"index": i, "ok": i%2 == 0}))
	}

	n, err := Verify(path)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
}

func TestVerify_EmptyOrMissingFile(t *testing.T) {
	n, err := Verify(filepath.Join(t.TempDir(), FileName))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestVerify_TamperedDataInvalidatesChain(t *testing.T) {
	log, path := openLog(t)

	require.NoError(t, log.Record("run_start", map[string]any{"task": "demo"}))
	require.NoError(t, log.Record("plan", map[string]any{"step": "initial"}))
	require.NoError(t, log.Record("run_end", map[string]any{"status": "completed"}))

	// Mutate the second record's data and rewrite the file.
	records, err := ReadAll(path)
	require.NoError(t, err)
	records[1].Data["step"] = "forged"

	var lines []string
	for _, rec := range records {
		raw, err := json.Marshal(rec)
		require.NoError(t, err)
		lines = append(lines, string(raw))
	}
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))

	_, err = Verify(path)
	require.Error(t, err)
	var verr *VerifyError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 1, verr.Index)
}

func TestVerify_DeletedRecordBreaksChain(t *testing.T) {
	log, path := openLog(t)

	require.NoError(t, log.Record("a", nil))
	require.NoError(t, log.Record("b", nil))
	require.NoError(t, log.Record("c", nil))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 3)

	// Drop the middle record.
	trimmed := lines[0] + "\n" + lines[2] + "\n"
	require.NoError(t, os.WriteFile(path, []byte(trimmed), 0o644))

	_, err = Verify(path)
	var verr *VerifyError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 1, verr.Index)
}

func TestOpen_ContinuesExistingChain(t *testing.T) {
	dir := t.TempDir()

	first, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, first.Record("run_start", nil))

	second, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, second.Record("run_end", nil))

	n, err := Verify(filepath.Join(dir, FileName))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRecord_RedactsSecrets(t *testing.T) {
	log, path := openLog(t)

	require.NoError(t, log.Record("exec", map[string]any{
		"command": "deploy --flag api_key=abc123 other",
	}))

	records, err := ReadAll(path)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.NotContains(t, records[0].Data["command"], "abc123")
	assert.Contains(t, records[0].Data["command"], "****")

	// Redaction happens before hashing, so the chain still verifies.
	_, err = Verify(path)
	require.NoError(t, err)
}

func TestMask(t *testing.T) {
	assert.Equal(t, "api_key=****", Mask("api_key=secret123"))
	assert.Equal(t, "token = ****", Mask("token = abc.def"))
	assert.Equal(t, "plain text", Mask("plain text"))
}
