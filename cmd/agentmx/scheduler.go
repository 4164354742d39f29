package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/agentmx/agentmx/internal/logging"
	"github.com/agentmx/agentmx/internal/memory"
	"github.com/agentmx/agentmx/internal/queue"
	"github.com/agentmx/agentmx/internal/scheduler"
	"github.com/agentmx/agentmx/internal/stopguard"
)

var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Run the task-claiming loop until interrupted",
	Long: `Claims queued tasks one at a time and drives each through the pipeline,
writing a health snapshot and a rotating log under the data directory.
The loop runs until SIGINT or SIGTERM.`,
	RunE: runScheduler,
}

func init() {
	rootCmd.AddCommand(schedulerCmd)
}

func runScheduler(_ *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	w, err := logging.NewRotatingWriter(cfg.SchedulerLogPath(), int64(cfg.SchedulerLogMaxBytes), cfg.SchedulerLogBackups)
	if err != nil {
		return fmt.Errorf("failed to open scheduler log: %w", err)
	}
	defer func() { _ = w.Close() }()
	log := logging.NewFileLogger(w)

	q, err := queue.Open(ctx, cfg.TasksURL)
	if err != nil {
		return fmt.Errorf("failed to open task queue: %w", err)
	}
	defer func() { _ = q.Close() }()

	store, err := memory.Open(ctx, cfg.MemoryURL)
	if err != nil {
		return fmt.Errorf("failed to open memory store: %w", err)
	}
	defer func() { _ = store.Close() }()

	registry := newRegistry(cfg)
	guard := stopguard.New(cfg.KillSwitchFile)

	sched := scheduler.New(cfg, q, store, registry, guard, log)
	return sched.Run(ctx)
}
