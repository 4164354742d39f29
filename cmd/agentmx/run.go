package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/agentmx/agentmx/internal/memory"
	"github.com/agentmx/agentmx/internal/pipeline"
	"github.com/agentmx/agentmx/internal/stopguard"
)

var runCmd = &cobra.Command{
	Use:   "run <task_type>",
	Short: "Run a single pipeline synchronously",
	Long: `Runs one plan/execute/evaluate pipeline for the given task type and waits for
it to finish. The result is printed as JSON; the exit code is non-zero when
the run fails, aborts, or scores below the task's threshold.`,
	Args: cobra.ExactArgs(1),
	RunE: runOnce,
}

var (
	runPayload     string
	runTimeout     int
	runNet         string
	runAllowUnsafe string
)

func init() {
	runCmd.Flags().StringVar(&runPayload, "payload", "", "Task payload as a JSON object")
	runCmd.Flags().IntVar(&runTimeout, "timeout", 0, "Run timeout in seconds (0 uses the configured default)")
	runCmd.Flags().StringVar(&runNet, "net", "on", "Allow network access during the run (on|off)")
	runCmd.Flags().StringVar(&runAllowUnsafe, "allow-unsafe-edit", "no", "Permit payloads that request unsafe edits (yes|no)")
	rootCmd.AddCommand(runCmd)
}

func runOnce(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if runNet != "on" && runNet != "off" {
		return fmt.Errorf("--net must be 'on' or 'off', got %q", runNet)
	}
	if runAllowUnsafe != "yes" && runAllowUnsafe != "no" {
		return fmt.Errorf("--allow-unsafe-edit must be 'yes' or 'no', got %q", runAllowUnsafe)
	}

	taskType := args[0]
	payload, err := parsePayload(runPayload)
	if err != nil {
		return err
	}
	if requestsUnsafeEdit(payload) && runAllowUnsafe != "yes" {
		return fmt.Errorf("payload requests an unsafe edit; pass --allow-unsafe-edit yes to permit it")
	}
	payload["net_enabled"] = runNet == "on"

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := memory.Open(ctx, cfg.MemoryURL)
	if err != nil {
		return fmt.Errorf("failed to open memory store: %w", err)
	}
	defer func() { _ = store.Close() }()

	registry := newRegistry(cfg)
	guard := stopguard.New(cfg.KillSwitchFile)
	pipe := pipeline.New(cfg, registry, store, guard, logrus.StandardLogger())

	timeout := cfg.Timeout()
	if cmd.Flags().Changed("timeout") {
		timeout = time.Duration(runTimeout) * time.Second
	}

	runID := uuid.NewString()
	logrus.WithFields(logrus.Fields{"run_id": runID, "type": taskType}).Info("starting run")

	result, err := pipe.Run(ctx, runID, taskType, payload, timeout)
	if err != nil {
		return fmt.Errorf("run %s could not start: %w", runID, err)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	threshold := cfg.ThresholdFor(taskType)
	if result.Status != memory.RunStatusCompleted || result.Score < threshold {
		return fmt.Errorf("run %s finished %s with score %.2f (threshold %.2f)",
			runID, result.Status, result.Score, threshold)
	}
	return nil
}

func parsePayload(raw string) (map[string]any, error) {
	payload := map[string]any{}
	if raw == "" {
		return payload, nil
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("--payload must be a JSON object: %w", err)
	}
	return payload, nil
}

// requestsUnsafeEdit reports whether the payload asks for an edit outside the
// run's working directory. Such runs are refused unless explicitly allowed.
func requestsUnsafeEdit(payload map[string]any) bool {
	v, ok := payload["unsafe_edit"]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}
