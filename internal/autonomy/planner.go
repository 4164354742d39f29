// Package autonomy is the plan, execute, evaluate core of a run: a planner
// turns a task into ordered steps plus a verification contract, an executor
// runs the steps sequentially, and an evaluator scores the outcome against
// the contract.
package autonomy

// Step is one planned action with its arguments.
type Step struct {
	Action string         `json:"action"`
	Args   map[string]any `json:"args"`
}

// Verification is the contract a run is scored against.
type Verification struct {
	ExpectArtifacts []string `json:"expect_artifacts"`
}

// Plan maps a task to its steps and verification contract. It is a pure
// function. Unknown task types degrade to a single short no-op with an empty
// expectation set rather than failing; an operator enqueuing a typo gets a
// harmless scored-1.0 run, not a wedged queue.
func Plan(taskType string, payload map[string]any) ([]Step, Verification) {
	switch taskType {
	case "bootstrap_demo":
		steps := []Step{
			{Action: "use_skill", Args: map[string]any{
				"skill": "notepad",
				"note":  stringArg(payload, "note", "agentmx bootstrap"),
			}},
			{Action: "use_skill", Args: map[string]any{
				"skill": "upload_receipt",
			}},
		}
		return steps, Verification{ExpectArtifacts: []string{"notepad_output.txt", "receipt.txt"}}
	default:
		return []Step{{Action: "noop", Args: map[string]any{"seconds": 1}}}, Verification{}
	}
}

func stringArg(m map[string]any, key, fallback string) string {
	if v, ok := m[key].(string); ok && v != "" {
		return v
	}
	return fallback
}
