// Package schemas validates task payloads against per-type JSON Schema files.
// A task type without a schema file is accepted as-is; schemas are opt-in.
package schemas

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ValidationError carries the per-field failures from a schema check.
type ValidationError struct {
	TaskType string
	Errors   []FieldError
}

// FieldError is a single validation failure at a specific field.
type FieldError struct {
	Field   string
	Message string
}

func (ve *ValidationError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "payload for %q failed validation:\n", ve.TaskType)
	for i, err := range ve.Errors {
		fmt.Fprintf(&sb, "  %d. %s: %s\n", i+1, err.Field, err.Message)
	}
	return sb.String()
}

// Validator checks payloads against schema files named <task_type>.json in a
// single directory.
type Validator struct {
	dir string
}

// NewValidator returns a validator rooted at dir. An empty dir disables all
// validation.
func NewValidator(dir string) *Validator {
	return &Validator{dir: dir}
}

// ValidatePayload checks the payload for taskType. Missing directory or
// missing schema file means no schema is declared and the payload passes.
func (v *Validator) ValidatePayload(taskType string, payload map[string]any) error {
	if v.dir == "" {
		return nil
	}
	schemaPath := filepath.Join(v.dir, taskType+".json")
	schemaContent, err := os.ReadFile(schemaPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read schema %s: %w", schemaPath, err)
	}

	if payload == nil {
		payload = map[string]any{}
	}
	doc, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaContent),
		gojsonschema.NewBytesLoader(doc),
	)
	if err != nil {
		return fmt.Errorf("failed to load schema %s: %w", schemaPath, err)
	}
	if result.Valid() {
		return nil
	}

	ve := &ValidationError{TaskType: taskType}
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		ve.Errors = append(ve.Errors, FieldError{Field: field, Message: desc.Description()})
	}
	return ve
}
