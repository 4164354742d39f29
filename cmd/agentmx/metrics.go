package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentmx/agentmx/internal/memory"
	"github.com/agentmx/agentmx/internal/scheduler"
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Print the run metrics snapshot",
	Long: `Prints completion counts, average duration, recently learned skills, and
the score histogram as JSON, plus the scheduler health snapshot when one
has been written.`,
	RunE: runMetrics,
}

func init() {
	rootCmd.AddCommand(metricsCmd)
}

func runMetrics(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := memory.Open(ctx, cfg.MemoryURL)
	if err != nil {
		return fmt.Errorf("failed to open memory store: %w", err)
	}
	defer func() { _ = store.Close() }()

	metrics, err := store.Metrics(ctx)
	if err != nil {
		return fmt.Errorf("failed to compute metrics: %w", err)
	}

	out := map[string]any{"metrics": metrics}
	health, err := scheduler.ReadHealth(cfg.SchedulerHealthPath())
	if err != nil {
		return fmt.Errorf("failed to read scheduler health: %w", err)
	}
	if health != nil {
		out["scheduler"] = health
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
