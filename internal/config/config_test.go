package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingExplicitFileFails(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoad_EmptyPathNoFileUsesDefaults(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ".agentmx", cfg.DataDir)
	assert.Equal(t, filepath.Join(".agentmx", "tasks.db"), cfg.TasksURL)
	assert.Equal(t, filepath.Join(".agentmx", "STOP"), cfg.KillSwitchFile)
	assert.Equal(t, 5*time.Second, cfg.PollInterval())
	assert.Equal(t, 1, cfg.MaxNewSkillsPerRun)
}

func TestLoad_ParsesYAMLAndFillsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agentmx.yaml")
	content := `
data_dir: /tmp/agentmx-test
poll_interval_seconds: 2
default_threshold: 0.8
thresholds:
  bootstrap_demo: 0.99
max_new_skills_per_run: 2
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/agentmx-test", cfg.DataDir)
	assert.Equal(t, 2, cfg.PollIntervalSeconds)
	assert.Equal(t, 0.8, cfg.DefaultThreshold)
	assert.Equal(t, 2, cfg.MaxNewSkillsPerRun)
	assert.Equal(t, filepath.Join("/tmp/agentmx-test", "tasks.db"), cfg.TasksURL)
	assert.Equal(t, filepath.Join("/tmp/agentmx-test", "memory", "runs.db"), cfg.MemoryURL)
}

func TestLoad_ExplicitZerosSurvive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentmx.yaml")
	content := `
default_threshold: 0
timeout_seconds: 0
max_new_skills_per_run: 0
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	// Zero is legal and meaningful for each of these; it must not be
	// mistaken for unset and rewritten to the default.
	assert.Equal(t, 0.0, cfg.DefaultThreshold)
	assert.Equal(t, 0, cfg.TimeoutSeconds)
	assert.Equal(t, time.Duration(0), cfg.Timeout())
	assert.Equal(t, 0, cfg.MaxNewSkillsPerRun)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentmx.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data_dir: [unterminated"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate_Bounds(t *testing.T) {
	cfg := Defaults()
	cfg.applyDefaults()
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.DefaultThreshold = 1.5
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.PollIntervalSeconds = 0
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.Thresholds = map[string]float64{"x": -0.1}
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.MaxNewSkillsPerRun = -1
	assert.Error(t, bad.Validate())
}

func TestThresholdFor(t *testing.T) {
	cfg := Defaults()
	cfg.DefaultThreshold = 0.7
	cfg.Thresholds = map[string]float64{"bootstrap_demo": 0.95}

	assert.Equal(t, 0.95, cfg.ThresholdFor("bootstrap_demo"))
	assert.Equal(t, 0.7, cfg.ThresholdFor("unknown_type"))
}

func TestDerivedPaths(t *testing.T) {
	cfg := Defaults()
	cfg.DataDir = "/var/lib/agentmx"

	assert.Equal(t, "/var/lib/agentmx/work/r1", cfg.WorkDir("r1"))
	assert.Equal(t, "/var/lib/agentmx/scheduler.log", cfg.SchedulerLogPath())
	assert.Equal(t, "/var/lib/agentmx/scheduler.json", cfg.SchedulerHealthPath())
	assert.Equal(t, "/var/lib/agentmx/skills/manifest.json", cfg.SkillManifestPath())
}
