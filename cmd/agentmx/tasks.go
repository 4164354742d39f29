package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/agentmx/agentmx/internal/queue"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List recent tasks",
	RunE:  runTasks,
}

var tasksLimit int

func init() {
	tasksCmd.Flags().IntVar(&tasksLimit, "limit", 20, "Maximum tasks to show")
	rootCmd.AddCommand(tasksCmd)
}

func runTasks(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	q, err := queue.Open(ctx, cfg.TasksURL)
	if err != nil {
		return fmt.Errorf("failed to open task queue: %w", err)
	}
	defer func() { _ = q.Close() }()

	tasks, err := q.List(ctx, tasksLimit)
	if err != nil {
		return fmt.Errorf("failed to list tasks: %w", err)
	}

	depth, err := q.Depth(ctx)
	if err != nil {
		return fmt.Errorf("failed to read queue depth: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tTYPE\tPRIORITY\tRUN\tCREATED")
	for _, t := range tasks {
		runID := t.RunID
		if runID == "" {
			runID = "-"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%s\n",
			t.ID, t.Status, t.Type, t.Priority, runID, t.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Printf("\n%d queued\n", depth)
	return nil
}
