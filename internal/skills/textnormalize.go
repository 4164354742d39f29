package skills

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// TextNormalizeCapability strips leading and trailing whitespace from every
// line of a text file and writes the result next to the input. It is the
// learnable capability: present in the provider table at build time but only
// activated once the factory has validated its generated module.
type TextNormalizeCapability struct{}

func (t *TextNormalizeCapability) Name() string { return "text_normalize" }

func (t *TextNormalizeCapability) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := argString(args, "path", "")
	if path == "" {
		return nil, fmt.Errorf("text_normalize requires a path argument")
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(argString(args, "workdir", "."), path)
	}

	out, err := NormalizeFile(path)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"ok":        true,
		"path":      out,
		"artifacts": []string{out},
	}, nil
}

// NormalizeFile trims every line of the file at path and writes the result to
// <path>.norm.txt, returning the output path.
func NormalizeFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	lines := strings.Split(string(data), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	norm := strings.TrimRight(strings.Join(lines, "\n"), "\n") + "\n"

	out := path + ".norm.txt"
	if err := os.WriteFile(out, []byte(norm), 0o644); err != nil {
		return "", fmt.Errorf("failed to write normalized output: %w", err)
	}
	return out, nil
}
