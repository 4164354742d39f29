package autonomy

import (
	"context"
	"fmt"
	"time"

	"github.com/agentmx/agentmx/internal/runner"
	"github.com/agentmx/agentmx/internal/skills"
	"github.com/agentmx/agentmx/internal/stopguard"
)

// StepResult is the observable outcome of one executed step.
type StepResult struct {
	Ok     bool           `json:"ok"`
	Error  string         `json:"error,omitempty"`
	Output map[string]any `json:"output,omitempty"`
}

// Executor runs planned steps strictly in sequence. A failing step records
// its error and execution continues; only a cooperative abort stops the
// sequence early.
type Executor struct {
	registry *skills.Registry
	guard    *stopguard.Guard
	run      *runner.Runner
}

// NewExecutor wires the executor to the capability registry, the kill
// switch, and the run's working directory.
func NewExecutor(registry *skills.Registry, guard *stopguard.Guard, run *runner.Runner) *Executor {
	return &Executor{registry: registry, guard: guard, run: run}
}

// Execute runs the steps in order. The returned slice has one entry per step
// attempted. A non-nil error means the run was aborted mid-sequence; results
// for already-finished steps are still returned.
func (e *Executor) Execute(ctx context.Context, steps []Step) ([]StepResult, error) {
	results := make([]StepResult, 0, len(steps))
	for _, step := range steps {
		if ctx.Err() != nil {
			return results, stopguard.Cause(ctx)
		}
		if err := e.guard.Check(); err != nil {
			return results, err
		}

		result, err := e.runStep(ctx, step)
		if err != nil {
			if stopguard.IsAbort(err) {
				return results, err
			}
			result = StepResult{Ok: false, Error: err.Error()}
		}
		results = append(results, result)
	}
	return results, nil
}

func (e *Executor) runStep(ctx context.Context, step Step) (StepResult, error) {
	switch step.Action {
	case "use_skill":
		return e.useSkill(ctx, step.Args)
	case "noop":
		seconds := numberArg(step.Args, "seconds", 1)
		if err := e.guard.Sleep(ctx, time.Duration(seconds*float64(time.Second))); err != nil {
			return StepResult{}, err
		}
		return StepResult{Ok: true}, nil
	default:
		return StepResult{Ok: false, Error: fmt.Sprintf("unknown action %s", step.Action)}, nil
	}
}

func (e *Executor) useSkill(ctx context.Context, args map[string]any) (StepResult, error) {
	name := stringArg(args, "skill", "")
	capability, ok := e.registry.Get(name)
	if !ok {
		return StepResult{Ok: false, Error: fmt.Sprintf("unknown skill %s", name)}, nil
	}

	callArgs := make(map[string]any, len(args)+1)
	for k, v := range args {
		callArgs[k] = v
	}
	callArgs["workdir"] = e.run.Dir()

	output, err := capability.Execute(ctx, callArgs)
	if err != nil {
		if stopguard.IsAbort(err) {
			return StepResult{}, err
		}
		return StepResult{Ok: false, Error: err.Error()}, nil
	}

	// Capabilities report produced files; the runner folds them into the
	// manifest the evaluator reads.
	for _, path := range artifactPaths(output) {
		if _, err := e.run.AddArtifact(path); err != nil {
			return StepResult{Ok: false, Error: err.Error(), Output: output}, nil
		}
	}
	return StepResult{Ok: true, Output: output}, nil
}

// artifactPaths reads the "artifacts" output key as either []string or the
// []any a JSON round trip produces.
func artifactPaths(output map[string]any) []string {
	switch v := output["artifacts"].(type) {
	case []string:
		return v
	case []any:
		paths := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				paths = append(paths, s)
			}
		}
		return paths
	default:
		return nil
	}
}

func numberArg(m map[string]any, key string, fallback float64) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return fallback
	}
}
