// Package scheduler runs the top-level loop: claim a task, drive it through
// the pipeline, decide pass or fail against the task type's threshold,
// persist everything, repeat. The loop is crash-proof by construction; a
// task-level fault marks the task failed and the loop keeps polling.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/agentmx/agentmx/internal/config"
	"github.com/agentmx/agentmx/internal/memory"
	"github.com/agentmx/agentmx/internal/pipeline"
	"github.com/agentmx/agentmx/internal/queue"
	"github.com/agentmx/agentmx/internal/skills"
	"github.com/agentmx/agentmx/internal/stopguard"
)

// Health is the per-tick snapshot external observers read.
type Health struct {
	QueueDepth     int        `json:"queue_depth"`
	LastTick       time.Time  `json:"last_tick"`
	PollInterval   int        `json:"poll_interval"`
	LastSuccessTS  *time.Time `json:"last_success_ts,omitempty"`
	LastErrorCount int        `json:"last_error_count"`
}

// PipelineFunc runs one task through the pipeline. Injectable so tests can
// substitute failures.
type PipelineFunc func(ctx context.Context, runID, taskType string, payload map[string]any, timeout time.Duration) (*pipeline.Result, error)

// Scheduler owns the loop state.
type Scheduler struct {
	cfg      *config.Config
	queue    queue.Queue
	store    memory.Store
	registry *skills.Registry
	guard    *stopguard.Guard
	log      *logrus.Logger
	run      PipelineFunc

	errorCount  int
	lastSuccess *time.Time
}

// New wires a scheduler. The default pipeline function is the real one.
func New(cfg *config.Config, q queue.Queue, store memory.Store, registry *skills.Registry, guard *stopguard.Guard, log *logrus.Logger) *Scheduler {
	s := &Scheduler{
		cfg:      cfg,
		queue:    q,
		store:    store,
		registry: registry,
		guard:    guard,
		log:      log,
	}
	p := pipeline.New(cfg, registry, store, guard, log)
	s.run = p.Run
	return s
}

// SetPipeline replaces the pipeline function.
func (s *Scheduler) SetPipeline(fn PipelineFunc) { s.run = fn }

// Run loops until ctx is cancelled. Orphaned claims from a previous process
// are requeued once before the first tick. Only a startup failure is
// returned; per-task faults never escape the loop.
func (s *Scheduler) Run(ctx context.Context) error {
	requeued, err := s.queue.RequeueOrphans(ctx)
	if err != nil {
		return fmt.Errorf("failed to reconcile orphaned tasks: %w", err)
	}
	if requeued > 0 {
		s.log.WithField("count", requeued).Info("requeued orphaned tasks")
	}

	s.log.WithField("poll_interval", s.cfg.PollIntervalSeconds).Info("scheduler started")
	for {
		if ctx.Err() != nil {
			s.log.Info("scheduler stopping")
			return nil
		}
		idle := s.tick(ctx)
		if idle {
			if err := s.guard.Sleep(ctx, s.cfg.PollInterval()); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				// Marker present: the kill switch aborts runs, not the
				// loop, so wait out the interval and poll again.
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(s.cfg.PollInterval()):
				}
			}
		}
	}
}

// tick is one loop iteration. It reports whether the loop should sleep
// before the next one. Panics are contained here.
func (s *Scheduler) tick(ctx context.Context) (idle bool) {
	defer func() {
		if r := recover(); r != nil {
			s.errorCount++
			s.log.WithField("panic", fmt.Sprint(r)).Error("tick panicked")
			idle = true
		}
	}()

	s.writeHealth(ctx)

	runID := uuid.New().String()
	claimed, err := s.queue.ClaimNext(ctx, runID)
	if err != nil {
		s.errorCount++
		s.log.WithError(err).Error("failed to claim task")
		return true
	}
	if claimed == nil {
		return true
	}

	s.processTask(ctx, runID, claimed)
	return true
}

// processTask drives one claimed task to a terminal status. A panic while
// the task is held still counts as an internal error, so the recovery here
// fails the task instead of wedging it in running until the next restart.
func (s *Scheduler) processTask(ctx context.Context, runID string, task *queue.Claimed) {
	entry := s.log.WithFields(logrus.Fields{
		"task_id": task.ID,
		"type":    task.Type,
		"run_id":  runID,
	})
	defer func() {
		if r := recover(); r != nil {
			s.errorCount++
			entry.WithField("panic", fmt.Sprint(r)).Error("task processing panicked")
			s.setTaskStatus(ctx, task.ID, queue.StatusFailed)
		}
	}()
	entry.Info("task claimed")

	result, err := s.run(ctx, runID, task.Type, task.Payload, s.cfg.Timeout())
	if err != nil {
		s.errorCount++
		entry.WithError(err).Error("pipeline error")
		s.setTaskStatus(ctx, task.ID, queue.StatusFailed)
		return
	}

	threshold := s.cfg.ThresholdFor(task.Type)
	passed := result.Status == memory.RunStatusCompleted && result.Score >= threshold

	if passed {
		now := time.Now().UTC()
		s.lastSuccess = &now
		s.setTaskStatus(ctx, task.ID, queue.StatusCompleted)
	} else {
		s.setTaskStatus(ctx, task.ID, queue.StatusFailed)
		if result.Status != memory.RunStatusAborted {
			s.maybeLearn(ctx, runID, threshold, result.Score, entry)
		}
	}

	entry.WithFields(logrus.Fields{
		"status":    result.Status,
		"score":     result.Score,
		"threshold": threshold,
		"passed":    passed,
		"duration":  result.Duration,
	}).Info("task finished")
}

// maybeLearn runs the skill factory gate with a fresh per-run factory.
func (s *Scheduler) maybeLearn(ctx context.Context, runID string, threshold, score float64, entry *logrus.Entry) {
	factory := skills.NewFactory(s.registry, s.store,
		s.cfg.GeneratedSkillsDir(), s.cfg.SkillManifestPath(), s.cfg.MaxNewSkillsPerRun)
	result, err := factory.MaybeLearn(ctx, runID, threshold, score)
	if err != nil {
		s.errorCount++
		entry.WithError(err).Error("skill factory error")
		return
	}
	if result.Learned {
		entry.WithField("skill", result.Name).Info("skill learned")
	} else {
		entry.WithField("reason", result.Reason).Info("skill learning refused")
	}
}

func (s *Scheduler) setTaskStatus(ctx context.Context, id int64, status queue.Status) {
	if err := s.queue.SetStatus(ctx, id, status); err != nil {
		s.errorCount++
		s.log.WithError(err).WithField("task_id", id).Error("failed to set task status")
	}
}

// writeHealth persists the snapshot atomically so a concurrent reader never
// sees a torn file.
func (s *Scheduler) writeHealth(ctx context.Context) {
	depth, err := s.queue.Depth(ctx)
	if err != nil {
		s.errorCount++
		s.log.WithError(err).Error("failed to read queue depth")
	}
	health := Health{
		QueueDepth:     depth,
		LastTick:       time.Now().UTC(),
		PollInterval:   s.cfg.PollIntervalSeconds,
		LastSuccessTS:  s.lastSuccess,
		LastErrorCount: s.errorCount,
	}
	data, err := json.Marshal(health)
	if err != nil {
		s.log.WithError(err).Error("failed to marshal health")
		return
	}

	path := s.cfg.SchedulerHealthPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		s.log.WithError(err).Error("failed to create health directory")
		return
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".health-*")
	if err != nil {
		s.log.WithError(err).Error("failed to create temp health file")
		return
	}
	if _, err := tmp.Write(data); err == nil {
		err = tmp.Close()
		if err == nil {
			err = os.Rename(tmp.Name(), path)
		}
	} else {
		tmp.Close()
	}
	if err != nil {
		os.Remove(tmp.Name())
		s.log.WithError(err).Error("failed to write health snapshot")
	}
}

// ReadHealth loads the snapshot written by a (possibly different) scheduler
// process. A missing file returns nil.
func ReadHealth(path string) (*Health, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read health snapshot: %w", err)
	}
	var h Health
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("corrupt health snapshot: %w", err)
	}
	return &h, nil
}
