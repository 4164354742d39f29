package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/agentmx/agentmx/internal/logging"
	"github.com/agentmx/agentmx/internal/memory"
	"github.com/agentmx/agentmx/internal/pipeline"
	"github.com/agentmx/agentmx/internal/queue"
	"github.com/agentmx/agentmx/internal/scheduler"
	"github.com/agentmx/agentmx/internal/server"
	"github.com/agentmx/agentmx/internal/stopguard"
)

var (
	servePort          int
	serveWithScheduler bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long: `Starts an HTTP server exposing run submission, task and run status,
artifact listings, live audit-log tailing, and the metrics snapshot.
With --with-scheduler the task-claiming loop runs in the same process.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "Port to listen on")
	serveCmd.Flags().BoolVar(&serveWithScheduler, "with-scheduler", false, "Also run the scheduler loop in this process")
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	apiKey := os.Getenv("AGENTMX_API_KEY")
	if cfg.APIKeyRequired && apiKey == "" {
		return fmt.Errorf("AGENTMX_API_KEY environment variable is required (set api_key_required: false to disable)")
	}

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
	pipe := pipeline.New(cfg, registry, store, guard, logrus.StandardLogger())

	srv := server.New(cfg, server.Config{Port: servePort, APIKey: apiKey}, q, store, pipe, logrus.StandardLogger())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Start(gctx) })

	if serveWithScheduler {
		w, err := logging.NewRotatingWriter(cfg.SchedulerLogPath(), int64(cfg.SchedulerLogMaxBytes), cfg.SchedulerLogBackups)
		if err != nil {
			return fmt.Errorf("failed to open scheduler log: %w", err)
		}
		defer func() { _ = w.Close() }()

		sched := scheduler.New(cfg, q, store, registry, guard, logging.NewFileLogger(w))
		g.Go(func() error { return sched.Run(gctx) })
	}

	return g.Wait()
}
