package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentmx/agentmx/internal/queue"
	"github.com/agentmx/agentmx/internal/schemas"
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <task_type>",
	Short: "Add a task to the durable queue",
	Long: `Inserts a task for the scheduler to pick up. When a JSON schema for the
task type exists under the configured schema directory, the payload is
validated against it before insertion.`,
	Args: cobra.ExactArgs(1),
	RunE: runEnqueue,
}

var (
	enqueuePayload  string
	enqueuePriority int
)

func init() {
	enqueueCmd.Flags().StringVar(&enqueuePayload, "payload", "", "Task payload as a JSON object")
	enqueueCmd.Flags().IntVar(&enqueuePriority, "priority", 0, "Task priority (higher is claimed first)")
	rootCmd.AddCommand(enqueueCmd)
}

func runEnqueue(_ *cobra.Command, args []string) error {
	ctx := context.Background()

	taskType := args[0]
	payload, err := parsePayload(enqueuePayload)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	validator := schemas.NewValidator(cfg.SchemaDir)
	if err := validator.ValidatePayload(taskType, payload); err != nil {
		var verr *schemas.ValidationError
		if errors.As(err, &verr) {
			for _, fe := range verr.Errors {
				fmt.Printf("invalid payload: %s: %s\n", fe.Field, fe.Message)
			}
			return fmt.Errorf("payload does not match the %s schema", taskType)
		}
		return err
	}

	q, err := queue.Open(ctx, cfg.TasksURL)
	if err != nil {
		return fmt.Errorf("failed to open task queue: %w", err)
	}
	defer func() { _ = q.Close() }()

	id, err := q.Enqueue(ctx, taskType, payload, enqueuePriority)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	fmt.Printf("enqueued task %d (%s, priority %d)\n", id, taskType, enqueuePriority)
	return nil
}
