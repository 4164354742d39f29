package skills

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// manifestVersion guards against future format changes.
const manifestVersion = 1

// Manifest is the durable record of activated learned skills, loaded at
// process start.
type Manifest struct {
	Version int             `json:"version"`
	Skills  []ManifestEntry `json:"skills"`
}

// ManifestEntry ties an activated skill to the run that learned it.
type ManifestEntry struct {
	Name      string    `json:"name"`
	RunID     string    `json:"run_id"`
	SpecHash  string    `json:"spec_hash"`
	CreatedAt time.Time `json:"created_at"`
}

// ReadManifest loads the manifest at path. A missing file is an empty
// manifest.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Manifest{Version: manifestVersion}, nil
		}
		return nil, fmt.Errorf("failed to read skill manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("corrupt skill manifest: %w", err)
	}
	if m.Version != manifestVersion {
		return nil, fmt.Errorf("unsupported skill manifest version %d", m.Version)
	}
	return &m, nil
}

// appendManifest adds an entry and rewrites the manifest atomically.
// Appending an already-present name is a no-op.
func appendManifest(path string, entry ManifestEntry) error {
	m, err := ReadManifest(path)
	if err != nil {
		return err
	}
	for _, existing := range m.Skills {
		if existing.Name == entry.Name {
			return nil
		}
	}
	m.Skills = append(m.Skills, entry)

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal skill manifest: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".manifest-*")
	if err != nil {
		return fmt.Errorf("failed to create temp manifest: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write temp manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp manifest: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace skill manifest: %w", err)
	}
	return nil
}
