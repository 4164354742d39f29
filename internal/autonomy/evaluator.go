package autonomy

import (
	"path/filepath"

	"github.com/agentmx/agentmx/internal/runner"
)

// Evaluation is the scored outcome of a run.
type Evaluation struct {
	Score   float64        `json:"score"`
	Details map[string]any `json:"details"`
}

// Evaluate scores a run's working directory against the verification
// contract: the fraction of expected artifact names found in the manifest.
// No expectations means trivially satisfied, score 1.0. A missing or
// unreadable manifest is an empty one, never an error.
func Evaluate(workdir string, verification Verification) Evaluation {
	manifest := runner.ReadManifest(workdir)

	found := make(map[string]bool, len(manifest))
	foundList := make([]string, 0, len(manifest))
	for _, a := range manifest {
		name := filepath.Base(a.Path)
		if !found[name] {
			found[name] = true
			foundList = append(foundList, name)
		}
	}

	expected := verification.ExpectArtifacts
	score := 1.0
	if len(expected) > 0 {
		hits := 0
		for _, name := range expected {
			if found[name] {
				hits++
			}
		}
		score = float64(hits) / float64(len(expected))
	}

	return Evaluation{
		Score: score,
		Details: map[string]any{
			"expected": expected,
			"found":    foundList,
		},
	}
}
