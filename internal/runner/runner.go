// Package runner owns one run's working directory: the status.json snapshot
// and the artifacts.json manifest external observers read while the run is in
// flight. All writes go through a temp-file-then-rename so a concurrent
// reader never sees a partial file.
package runner

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/agentmx/agentmx/internal/memory"
)

const (
	statusFile   = "status.json"
	manifestFile = "artifacts.json"
)

// Runner is the filesystem handle for a single run.
type Runner struct {
	runID string
	dir   string
}

// New creates the working directory for runID under it and returns its
// handle.
func New(dir, runID string) (*Runner, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create run workdir: %w", err)
	}
	return &Runner{runID: runID, dir: dir}, nil
}

// RunID returns the run's identifier.
func (r *Runner) RunID() string { return r.runID }

// Dir returns the run's working directory.
func (r *Runner) Dir() string { return r.dir }

// WriteStatus overwrites status.json with the given status plus any extra
// fields. The run_id field is always present.
func (r *Runner) WriteStatus(status string, extra map[string]any) error {
	doc := map[string]any{
		"status": status,
		"run_id": r.runID,
	}
	for k, v := range extra {
		doc[k] = v
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	return writeAtomic(filepath.Join(r.dir, statusFile), data)
}

// AddArtifact records the file at path in the run's manifest, computing its
// size, content hash and mime type. The path may be absolute or relative to
// the working directory.
func (r *Runner) AddArtifact(path string) (*memory.Artifact, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(r.dir, path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat artifact: %w", err)
	}
	sum, err := fileSHA256(path)
	if err != nil {
		return nil, err
	}
	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	artifact := memory.Artifact{
		RunID:     r.runID,
		Name:      filepath.Base(path),
		Size:      info.Size(),
		SHA256:    sum,
		Mime:      mimeType,
		Path:      path,
		CreatedAt: time.Now().UTC(),
	}

	manifest := r.Artifacts()
	manifest = append(manifest, artifact)
	data, err := json.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := writeAtomic(filepath.Join(r.dir, manifestFile), data); err != nil {
		return nil, err
	}
	return &artifact, nil
}

// Artifacts returns the run's manifest. A missing or unreadable manifest is
// an empty list, never an error.
func (r *Runner) Artifacts() []memory.Artifact {
	return ReadManifest(r.dir)
}

// ReadManifest reads a working directory's artifacts.json. Missing or
// corrupt files degrade to an empty manifest.
func ReadManifest(dir string) []memory.Artifact {
	data, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		return nil
	}
	var manifest []memory.Artifact
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil
	}
	return manifest
}

// writeAtomic writes data to path via a temp file and rename.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open artifact: %w", err)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash artifact: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
