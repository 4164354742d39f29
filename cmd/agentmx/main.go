// Package main provides the entry point for the agentmx orchestrator CLI.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/agentmx/agentmx/internal/config"
	"github.com/agentmx/agentmx/internal/logging"
	"github.com/agentmx/agentmx/internal/skills"
)

var (
	rootConfigPath string
	rootLogLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "agentmx",
	Short: "Autonomous task orchestrator",
	Long: "agentmx drives plan/execute/evaluate pipeline runs over a durable task queue,\n" +
		"with a hash-chained audit trail per run, a cooperative kill switch, and a\n" +
		"test-gated skill learning loop.",
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		level, err := logrus.ParseLevel(rootLogLevel)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", rootLogLevel, err)
		}
		logging.Init(level)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootConfigPath, "config", "", "Path to agentmx.yaml (searches the working directory when unset)")
	rootCmd.PersistentFlags().StringVar(&rootLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(rootConfigPath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir %s: %w", cfg.DataDir, err)
	}
	return cfg, nil
}

// newRegistry builds the capability registry with any previously learned
// skills reactivated from the manifest. A missing manifest is a fresh start,
// not an error; a corrupt one is reported but does not block the process.
func newRegistry(cfg *config.Config) *skills.Registry {
	registry := skills.NewRegistry(cfg.MaxNewSkillsPerRun)
	if err := registry.LoadManifest(cfg.SkillManifestPath()); err != nil {
		logrus.WithError(err).Warn("could not load skill manifest, continuing with builtins")
	}
	return registry
}
