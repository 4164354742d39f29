// Package pipeline drives one run end to end: working directory setup, audit
// chain, plan, execute, evaluate, and persistence of the outcome.
package pipeline

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/agentmx/agentmx/internal/audit"
	"github.com/agentmx/agentmx/internal/autonomy"
	"github.com/agentmx/agentmx/internal/config"
	"github.com/agentmx/agentmx/internal/memory"
	"github.com/agentmx/agentmx/internal/runner"
	"github.com/agentmx/agentmx/internal/skills"
	"github.com/agentmx/agentmx/internal/stopguard"
)

// Result is the terminal outcome of one run.
type Result struct {
	RunID    string              `json:"run_id"`
	Status   string              `json:"status"`
	Score    float64             `json:"score"`
	Duration float64             `json:"duration"`
	Workdir  string              `json:"workdir"`
	Eval     autonomy.Evaluation `json:"eval"`
}

// Pipeline holds everything a run needs. One pipeline serves many runs.
type Pipeline struct {
	cfg      *config.Config
	registry *skills.Registry
	store    memory.Store
	guard    *stopguard.Guard
	log      *logrus.Logger
	now      func() time.Time
}

// New builds a pipeline. store may be nil for runs that should leave no
// history.
func New(cfg *config.Config, registry *skills.Registry, store memory.Store, guard *stopguard.Guard, log *logrus.Logger) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		registry: registry,
		store:    store,
		guard:    guard,
		log:      log,
		now:      time.Now,
	}
}

// Run executes one task through plan, execute, evaluate. The kill switch and
// the timeout feed the same cancellation token; either one terminates the
// run as aborted with zero score. A returned error means the run could not
// even be set up; anything later is folded into the Result status.
func (p *Pipeline) Run(ctx context.Context, runID, taskType string, payload map[string]any, timeout time.Duration) (*Result, error) {
	start := p.now()

	// Setup failures still get a terminal run row: the id may already be
	// in a caller's hands, and a row stuck in running would tail forever.
	run, err := runner.New(p.cfg.WorkDir(runID), runID)
	if err != nil {
		p.persistRun(ctx, memory.Run{ID: runID, Status: memory.RunStatusFailed})
		return nil, err
	}
	auditLog, err := audit.Open(run.Dir())
	if err != nil {
		p.persistRun(ctx, memory.Run{ID: runID, Status: memory.RunStatusFailed})
		return nil, err
	}

	result := &Result{RunID: runID, Workdir: run.Dir()}

	runCtx, stop := p.guard.WithCancel(ctx)
	defer stop()
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, timeout)
		defer cancel()
	}

	p.record(auditLog, "run_start", map[string]any{"task": taskType, "run_id": runID})
	if err := run.WriteStatus(memory.RunStatusRunning, map[string]any{"task": taskType}); err != nil {
		p.persistRun(ctx, memory.Run{ID: runID, Status: memory.RunStatusFailed})
		return nil, err
	}
	p.persistRun(ctx, memory.Run{ID: runID, Status: memory.RunStatusRunning})

	steps, verification := autonomy.Plan(taskType, payload)
	p.record(auditLog, "plan", map[string]any{
		"task":             taskType,
		"steps":            len(steps),
		"expect_artifacts": verification.ExpectArtifacts,
	})

	executor := autonomy.NewExecutor(p.registry, p.guard, run)
	stepResults, execErr := executor.Execute(runCtx, steps)
	for i, sr := range stepResults {
		p.record(auditLog, "step_result", map[string]any{
			"index": i,
			"ok":    sr.Ok,
			"error": sr.Error,
		})
	}

	if execErr != nil && stopguard.IsAbort(execErr) {
		result.Status = memory.RunStatusAborted
		result.Score = 0
		result.Duration = p.now().Sub(start).Seconds()
		p.record(auditLog, "run_end", map[string]any{"status": memory.RunStatusAborted, "cause": execErr.Error()})
		p.finish(ctx, run, result)
		return result, nil
	}
	if execErr != nil {
		result.Status = memory.RunStatusFailed
		result.Duration = p.now().Sub(start).Seconds()
		p.record(auditLog, "run_end", map[string]any{"status": memory.RunStatusFailed, "error": execErr.Error()})
		p.finish(ctx, run, result)
		return result, nil
	}

	result.Eval = autonomy.Evaluate(run.Dir(), verification)
	result.Score = result.Eval.Score
	result.Status = memory.RunStatusCompleted
	result.Duration = p.now().Sub(start).Seconds()
	p.record(auditLog, "run_end", map[string]any{
		"status": memory.RunStatusCompleted,
		"score":  result.Score,
	})
	p.finish(ctx, run, result)
	return result, nil
}

// finish writes the terminal status file and persists the run plus its
// artifacts. Persistence failures are logged, not returned; the run already
// has its terminal status and the scheduler must keep going.
func (p *Pipeline) finish(ctx context.Context, run *runner.Runner, result *Result) {
	if err := run.WriteStatus(result.Status, map[string]any{"score": result.Score}); err != nil {
		p.log.WithError(err).WithField("run_id", result.RunID).Warn("failed to write run status")
	}
	p.persistRun(ctx, memory.Run{
		ID:       result.RunID,
		Status:   result.Status,
		Duration: result.Duration,
		Score:    result.Score,
	})
	if p.store != nil {
		if err := p.store.RecordArtifacts(ctx, result.RunID, run.Artifacts()); err != nil {
			p.log.WithError(err).WithField("run_id", result.RunID).Warn("failed to persist artifacts")
		}
	}
}

func (p *Pipeline) persistRun(ctx context.Context, run memory.Run) {
	if p.store == nil {
		return
	}
	if err := p.store.RecordRun(ctx, run); err != nil {
		p.log.WithError(err).WithField("run_id", run.ID).Warn("failed to persist run")
	}
}

// record appends an audit event. A failed append is logged and the run
// continues; the chain verification will reveal the gap.
func (p *Pipeline) record(log *audit.Log, event string, data map[string]any) {
	if err := log.Record(event, data); err != nil {
		p.log.WithError(err).WithField("event", event).Warn("failed to append audit record")
	}
}
