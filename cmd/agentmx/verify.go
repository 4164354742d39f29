package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/agentmx/agentmx/internal/audit"
)

var verifyAuditCmd = &cobra.Command{
	Use:   "verify-audit <run-id|path>",
	Short: "Verify a run's audit log hash chain",
	Long: `Walks the audit log record by record, recomputing each hash and checking
the chain back to the genesis value. The argument may be a run id (resolved
under the data directory), a run working directory, or the log file itself.`,
	Args: cobra.ExactArgs(1),
	RunE: runVerifyAudit,
}

func init() {
	rootCmd.AddCommand(verifyAuditCmd)
}

func runVerifyAudit(_ *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	path, err := resolveAuditPath(cfg.WorkDir(args[0]), args[0])
	if err != nil {
		return err
	}

	count, err := audit.Verify(path)
	if err != nil {
		return fmt.Errorf("audit verification failed for %s: %w", path, err)
	}

	fmt.Printf("ok: %d records verified (%s)\n", count, path)
	return nil
}

// resolveAuditPath accepts a run id, a run working directory, or a direct
// path to the log file.
func resolveAuditPath(workdir, arg string) (string, error) {
	if info, err := os.Stat(arg); err == nil {
		if info.IsDir() {
			return filepath.Join(arg, audit.FileName), nil
		}
		return arg, nil
	}
	candidate := filepath.Join(workdir, audit.FileName)
	if _, err := os.Stat(candidate); err == nil {
		return candidate, nil
	}
	return "", fmt.Errorf("no audit log found for %q (tried %s)", arg, candidate)
}
