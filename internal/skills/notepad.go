package skills

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// NotepadCapability writes a note into the run's working directory. It is the
// demo capability the bootstrap task exercises.
type NotepadCapability struct{}

func (n *NotepadCapability) Name() string { return "notepad" }

func (n *NotepadCapability) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	workdir := argString(args, "workdir", ".")
	note := argString(args, "note", "agentmx was here")

	path := filepath.Join(workdir, "notepad_output.txt")
	if err := os.WriteFile(path, []byte(note+"\n"), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write notepad output: %w", err)
	}
	return map[string]any{
		"ok":        true,
		"path":      path,
		"artifacts": []string{path},
	}, nil
}
