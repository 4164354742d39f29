// Package config provides configuration loading and validation for the
// agentmx CLI and daemon. Values come from a YAML file with explicit
// defaults; a handful of secrets (database URLs, the API key) may be
// overridden through the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPaths are searched in order when no --config flag is given.
var DefaultPaths = []string{"agentmx.yaml", "agentmx.yml", "config.yaml"}

// Config is the full configuration for the orchestrator. All fields are
// optional in the file; zero values are filled from Defaults.
type Config struct {
	// DataDir is the root for all local state (task DB, memory DB, run
	// working directories, kill switch, scheduler log and health file).
	DataDir string `yaml:"data_dir"`

	// TasksURL and MemoryURL select the storage backends. A postgres:// URL
	// uses PostgreSQL; anything else is treated as a SQLite file path.
	// Empty values default to SQLite files under DataDir.
	TasksURL  string `yaml:"tasks_url"`
	MemoryURL string `yaml:"memory_url"`

	// KillSwitchFile is the global stop marker. Its mere existence aborts
	// any run checking it.
	KillSwitchFile string `yaml:"kill_switch_file"`

	// PollIntervalSeconds is the scheduler's fixed idle/retry interval.
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`

	// DefaultThreshold is the pass/fail score bound used when a task type
	// has no entry in Thresholds.
	DefaultThreshold float64 `yaml:"default_threshold"`

	// Thresholds maps task type to its minimum passing score.
	Thresholds map[string]float64 `yaml:"thresholds"`

	// MaxNewSkillsPerRun bounds the skill factory's synthesis budget.
	MaxNewSkillsPerRun int `yaml:"max_new_skills_per_run"`

	// TimeoutSeconds is the default pipeline run timeout.
	TimeoutSeconds int `yaml:"timeout_seconds"`

	// SchemaDir holds optional per-task-type JSON payload schemas.
	SchemaDir string `yaml:"schema_dir"`

	// Scheduler log rotation bounds.
	SchedulerLogMaxBytes int `yaml:"scheduler_log_max_bytes"`
	SchedulerLogBackups  int `yaml:"scheduler_log_backups"`

	// APIKeyRequired gates the HTTP facade behind the X-API-Key header
	// (expected value read from AGENTMX_API_KEY).
	APIKeyRequired bool `yaml:"api_key_required"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		DataDir:              ".agentmx",
		PollIntervalSeconds:  5,
		DefaultThreshold:     0.99,
		Thresholds:           map[string]float64{},
		MaxNewSkillsPerRun:   1,
		TimeoutSeconds:       3600,
		SchemaDir:            "schemas",
		SchedulerLogMaxBytes: 1 << 20,
		SchedulerLogBackups:  3,
		APIKeyRequired:       true,
	}
}

// New returns the default configuration rooted at dataDir with all derived
// paths resolved.
func New(dataDir string) *Config {
	cfg := Defaults()
	cfg.DataDir = dataDir
	cfg.applyDefaults()
	return &cfg
}

// Load reads configuration from the given path, or from the first existing
// DefaultPaths entry when path is empty. A completely absent file yields the
// defaults, not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		for _, p := range DefaultPaths {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}

	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}
	cfg.applyDefaults()

	if url := os.Getenv("AGENTMX_TASKS_URL"); url != "" {
		cfg.TasksURL = url
	}
	if url := os.Getenv("AGENTMX_MEMORY_URL"); url != "" {
		cfg.MemoryURL = url
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	def := Defaults()
	if c.DataDir == "" {
		c.DataDir = def.DataDir
	}
	if c.TasksURL == "" {
		c.TasksURL = filepath.Join(c.DataDir, "tasks.db")
	}
	if c.MemoryURL == "" {
		c.MemoryURL = filepath.Join(c.DataDir, "memory", "runs.db")
	}
	if c.KillSwitchFile == "" {
		c.KillSwitchFile = filepath.Join(c.DataDir, "STOP")
	}
	if c.PollIntervalSeconds == 0 {
		c.PollIntervalSeconds = def.PollIntervalSeconds
	}
	if c.Thresholds == nil {
		c.Thresholds = map[string]float64{}
	}
	// DefaultThreshold, TimeoutSeconds, and MaxNewSkillsPerRun are NOT
	// re-defaulted here: zero is a legal, meaningful value for each
	// (always-fail threshold, no timeout, learning disabled), and Load
	// unmarshals over Defaults so unset fields already carry theirs.
	if c.SchemaDir == "" {
		c.SchemaDir = def.SchemaDir
	}
	if c.SchedulerLogMaxBytes == 0 {
		c.SchedulerLogMaxBytes = def.SchedulerLogMaxBytes
	}
	if c.SchedulerLogBackups == 0 {
		c.SchedulerLogBackups = def.SchedulerLogBackups
	}
}

// Validate checks that the configuration has coherent values.
func (c *Config) Validate() error {
	if c.PollIntervalSeconds < 1 {
		return fmt.Errorf("config error: 'poll_interval_seconds' must be at least 1")
	}
	if c.DefaultThreshold < 0 || c.DefaultThreshold > 1 {
		return fmt.Errorf("config error: 'default_threshold' must be in [0,1]")
	}
	for typ, th := range c.Thresholds {
		if th < 0 || th > 1 {
			return fmt.Errorf("config error: threshold for %q must be in [0,1]", typ)
		}
	}
	if c.MaxNewSkillsPerRun < 0 {
		return fmt.Errorf("config error: 'max_new_skills_per_run' must be non-negative")
	}
	if c.TimeoutSeconds < 0 {
		return fmt.Errorf("config error: 'timeout_seconds' must be non-negative")
	}
	return nil
}

// ThresholdFor returns the pass/fail score bound for a task type, falling
// back to the configured default when the type has no specific entry.
func (c *Config) ThresholdFor(taskType string) float64 {
	if th, ok := c.Thresholds[taskType]; ok {
		return th
	}
	return c.DefaultThreshold
}

// WorkDir returns the working directory for a run.
func (c *Config) WorkDir(runID string) string {
	return filepath.Join(c.DataDir, "work", runID)
}

// SchedulerLogPath returns the rotating scheduler log location.
func (c *Config) SchedulerLogPath() string {
	return filepath.Join(c.DataDir, "scheduler.log")
}

// SchedulerHealthPath returns the health snapshot location.
func (c *Config) SchedulerHealthPath() string {
	return filepath.Join(c.DataDir, "scheduler.json")
}

// GeneratedSkillsDir returns where candidate skill modules are synthesized.
func (c *Config) GeneratedSkillsDir() string {
	return filepath.Join(c.DataDir, "skills", "generated")
}

// SkillManifestPath returns the versioned capability manifest loaded at
// process start.
func (c *Config) SkillManifestPath() string {
	return filepath.Join(c.DataDir, "skills", "manifest.json")
}

// PollInterval returns the scheduler interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// Timeout returns the default pipeline timeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
