package schemas

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const demoSchema = `{
	"type": "object",
	"properties": {
		"note": {"type": "string"},
		"iterations": {"type": "integer", "minimum": 1}
	},
	"additionalProperties": false
}`

func writeSchema(t *testing.T, dir, taskType, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, taskType+".json"), []byte(content), 0o644))
}

func TestValidatePayload_Valid(t *testing.T) {
	dir := t.TempDir()
	writeSchema(t, dir, "bootstrap_demo", demoSchema)

	v := NewValidator(dir)
	err := v.ValidatePayload("bootstrap_demo", map[string]any{"note": "hi", "iterations": 2})
	assert.NoError(t, err)
}

func TestValidatePayload_Invalid(t *testing.T) {
	dir := t.TempDir()
	writeSchema(t, dir, "bootstrap_demo", demoSchema)

	v := NewValidator(dir)
	err := v.ValidatePayload("bootstrap_demo", map[string]any{"iterations": 0, "extra": true})
	require.Error(t, err)

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "bootstrap_demo", ve.TaskType)
	assert.NotEmpty(t, ve.Errors)
}

func TestValidatePayload_NoSchemaPasses(t *testing.T) {
	v := NewValidator(t.TempDir())
	assert.NoError(t, v.ValidatePayload("unseen_type", map[string]any{"anything": "goes"}))
}

func TestValidatePayload_EmptyDirDisables(t *testing.T) {
	v := NewValidator("")
	assert.NoError(t, v.ValidatePayload("bootstrap_demo", nil))
}

func TestValidatePayload_NilPayload(t *testing.T) {
	dir := t.TempDir()
	writeSchema(t, dir, "bootstrap_demo", demoSchema)

	v := NewValidator(dir)
	assert.NoError(t, v.ValidatePayload("bootstrap_demo", nil))
}

func TestValidatePayload_BadSchemaFile(t *testing.T) {
	dir := t.TempDir()
	writeSchema(t, dir, "bootstrap_demo", `{"type": 12}`)

	v := NewValidator(dir)
	err := v.ValidatePayload("bootstrap_demo", map[string]any{})
	assert.Error(t, err)
}
