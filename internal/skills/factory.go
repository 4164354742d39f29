package skills

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/agentmx/agentmx/internal/memory"
)

// Refusal reasons returned by MaybeLearn.
const (
	ReasonMaxNewReached = "max_new_reached"
	ReasonThresholdMet  = "threshold_met"
	ReasonTestFailed    = "test_failed"
	ReasonTestError     = "test_error"
)

// defaultValidateTimeout bounds the isolated test subprocess.
const defaultValidateTimeout = 5 * time.Minute

// LearnResult is the structured outcome of one learning attempt. Refusals
// are ordinary results, never errors.
type LearnResult struct {
	Learned   bool   `json:"learned"`
	Reason    string `json:"reason,omitempty"`
	Name      string `json:"name,omitempty"`
	SkillPath string `json:"skill_path,omitempty"`
	TestPath  string `json:"test_path,omitempty"`
	Output    string `json:"output,omitempty"`
}

// ValidateFunc runs the candidate module's test in isolation and returns the
// captured output. A non-nil error or failed=true discards the candidate.
type ValidateFunc func(ctx context.Context, dir string) (output string, failed bool, err error)

// Factory is the learning gate. One factory serves one run, so its synthesis
// count is the per-run budget; the registry enforces the process-wide one.
type Factory struct {
	registry     *Registry
	store        memory.Store
	genDir       string
	manifestPath string
	maxNew       int
	made         int
	validate     ValidateFunc
	now          func() time.Time
}

// NewFactory builds a factory writing candidates under genDir and recording
// activations in the manifest at manifestPath. store may be nil.
func NewFactory(registry *Registry, store memory.Store, genDir, manifestPath string, maxNew int) *Factory {
	return &Factory{
		registry:     registry,
		store:        store,
		genDir:       genDir,
		manifestPath: manifestPath,
		maxNew:       maxNew,
		validate:     validateWithGoTest,
		now:          time.Now,
	}
}

// MaybeLearn is invoked only after a run scored below its threshold. It
// refuses when the budget is spent or the score actually met the threshold;
// otherwise it synthesizes the candidate, validates it in a subprocess, and
// activates it only on a passing test. Activation is all-or-nothing.
func (f *Factory) MaybeLearn(ctx context.Context, runID string, threshold, score float64) (*LearnResult, error) {
	if f.made >= f.maxNew || !f.registry.CanAdd() {
		return &LearnResult{Reason: ReasonMaxNewReached}, nil
	}
	if score >= threshold {
		return &LearnResult{Reason: ReasonThresholdMet}, nil
	}

	const name = "text_normalize"
	specHash := specHashFor(map[string]any{"skill": name})
	candidateDir := filepath.Join(f.genDir, name)
	skillPath, testPath, err := f.writeCandidate(candidateDir, name, runID, specHash)
	if err != nil {
		return nil, err
	}

	validateCtx, cancel := context.WithTimeout(ctx, defaultValidateTimeout)
	defer cancel()
	output, failed, err := f.validate(validateCtx, candidateDir)
	if err != nil {
		return &LearnResult{Reason: ReasonTestError, Output: err.Error()}, nil
	}
	if failed {
		return &LearnResult{Reason: ReasonTestFailed, Output: output}, nil
	}

	if err := f.registry.Add(name); err != nil {
		return &LearnResult{Reason: ReasonMaxNewReached}, nil
	}
	if err := f.registry.Register(name); err != nil {
		return nil, err
	}
	if err := appendManifest(f.manifestPath, ManifestEntry{
		Name:      name,
		RunID:     runID,
		SpecHash:  specHash,
		CreatedAt: f.now().UTC(),
	}); err != nil {
		return nil, err
	}
	if f.store != nil {
		if err := f.store.RecordSkill(ctx, name, runID); err != nil {
			return nil, err
		}
	}
	f.made++
	return &LearnResult{
		Learned:   true,
		Name:      name,
		SkillPath: skillPath,
		TestPath:  testPath,
	}, nil
}

// writeCandidate emits the candidate module as data: a self-contained Go
// module with the skill source, its test, and a go.mod.
func (f *Factory) writeCandidate(dir, name, runID, specHash string) (skillPath, testPath string, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("failed to create candidate dir: %w", err)
	}
	header := fmt.Sprintf("// generated at %d run_id=%s spec_hash=%s\n", f.now().Unix(), runID, specHash)

	skillPath = filepath.Join(dir, "skill.go")
	testPath = filepath.Join(dir, "skill_test.go")
	writes := []struct {
		path    string
		content string
	}{
		{skillPath, header + candidateSkillSource},
		{testPath, candidateTestSource},
		{filepath.Join(dir, "go.mod"), "module " + name + "\n\ngo 1.24\n"},
	}
	for _, w := range writes {
		if err := os.WriteFile(w.path, []byte(w.content), 0o644); err != nil {
			return "", "", fmt.Errorf("failed to write candidate file: %w", err)
		}
	}
	return skillPath, testPath, nil
}

// specHashFor derives a short content hash from the canonical JSON form of
// the spec map. JSON marshaling sorts the keys.
func specHashFor(spec map[string]any) string {
	data, err := json.Marshal(spec)
	if err != nil {
		data = []byte(fmt.Sprint(spec))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:12]
}

// validateWithGoTest runs the candidate module's tests in a subprocess.
func validateWithGoTest(ctx context.Context, dir string) (string, bool, error) {
	cmd := exec.CommandContext(ctx, "go", "test", "./...")
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		if _, isExit := err.(*exec.ExitError); isExit {
			return string(out), true, nil
		}
		return string(out), false, err
	}
	return string(out), false, nil
}

// candidateSkillSource is the deterministic body of the synthesized module.
const candidateSkillSource = `package textnormalize

import (
	"os"
	"strings"
)

// Normalize trims every line of the file at path and writes the result to
// <path>.norm.txt, returning the output path.
func Normalize(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	lines := strings.Split(string(data), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	norm := strings.TrimRight(strings.Join(lines, "\n"), "\n") + "\n"
	out := path + ".norm.txt"
	if err := os.WriteFile(out, []byte(norm), 0o644); err != nil {
		return "", err
	}
	return out, nil
}
`

// candidateTestSource exercises the synthesized module in isolation.
const candidateTestSource = `package textnormalize

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNormalize(t *testing.T) {
	p := filepath.Join(t.TempDir(), "a.txt")
	if err := os.WriteFile(p, []byte(" a  \n b "), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err := Normalize(p)
	if err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "a\nb\n" {
		t.Fatalf("unexpected output %q", got)
	}
}
`
