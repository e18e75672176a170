package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Task = "do the thing"
	return cfg
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	require.Equal(t, DefaultMaxIterations, cfg.MaxIterations)
	require.Equal(t, DefaultInactivityTimeout, cfg.InactivityTimeout)
	require.Equal(t, DefaultSampleCapacity, cfg.SampleCapacity)
	require.Equal(t, DefaultPreviousSummaryWindow, cfg.PreviousSummaryWindow)
	require.Equal(t, DefaultReviewerMaxAttempts, cfg.Reviewer.MaxAttempts)
	require.Equal(t, "continue", cfg.Reviewer.FallbackAction)
	require.Equal(t, DefaultWorkerCommand, cfg.Worker.Command)
	require.Equal(t, 30*time.Second, cfg.InactivityDuration())
}

func TestValidateAcceptsDefaultsWithTask(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"empty task", func(c *Config) { c.Task = "" }, "task"},
		{"zero iterations", func(c *Config) { c.MaxIterations = 0 }, "max_iterations"},
		{"negative timeout", func(c *Config) { c.InactivityTimeout = -1 }, "inactivity_timeout"},
		{"zero capacity", func(c *Config) { c.SampleCapacity = 0 }, "sample_capacity"},
		{"negative window", func(c *Config) { c.PreviousSummaryWindow = -1 }, "previous_summary_window"},
		{"missing reviewer url", func(c *Config) { c.Reviewer.BaseURL = "" }, "base_url"},
		{"missing reviewer model", func(c *Config) { c.Reviewer.Model = "" }, "model"},
		{"zero attempts", func(c *Config) { c.Reviewer.MaxAttempts = 0 }, "max_attempts"},
		{"bad fallback", func(c *Config) { c.Reviewer.FallbackAction = "retry" }, "fallback_action"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.errMsg)
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("OVERSEER_TASK", "env task")
	t.Setenv("OVERSEER_MAX_ITERATIONS", "7")
	t.Setenv("OVERSEER_INACTIVITY_TIMEOUT", "12")
	t.Setenv("OVERSEER_SAMPLE_CAPACITY", "42")
	t.Setenv("OVERSEER_REVIEWER_URL", "http://reviewer.example/v1")
	t.Setenv("OVERSEER_REVIEWER_MODEL", "judge-1")
	t.Setenv("OVERSEER_WORKER_MODEL", "worker-1")

	cfg := Defaults()
	cfg.applyEnv()

	require.Equal(t, "env task", cfg.Task)
	require.Equal(t, 7, cfg.MaxIterations)
	require.Equal(t, 12, cfg.InactivityTimeout)
	require.Equal(t, 42, cfg.SampleCapacity)
	require.Equal(t, "http://reviewer.example/v1", cfg.Reviewer.BaseURL)
	require.Equal(t, "judge-1", cfg.Reviewer.Model)
	require.Equal(t, "worker-1", cfg.Worker.Model)
}

func TestEnvIgnoresUnparsableNumbers(t *testing.T) {
	t.Setenv("OVERSEER_MAX_ITERATIONS", "lots")
	cfg := Defaults()
	cfg.applyEnv()
	require.Equal(t, DefaultMaxIterations, cfg.MaxIterations)
}

func TestYAMLUnmarshalOverlaysDefaults(t *testing.T) {
	raw := `
max_iterations: 25
reviewer:
  base_url: http://example.test/v1
  model: gpt-judge
worker:
  model: anthropic/claude-sonnet
  extra_args: ["--verbose"]
`
	cfg := Defaults()
	require.NoError(t, yaml.Unmarshal([]byte(raw), &cfg))

	require.Equal(t, 25, cfg.MaxIterations)
	// Untouched fields keep their defaults.
	require.Equal(t, DefaultSampleCapacity, cfg.SampleCapacity)
	require.Equal(t, "http://example.test/v1", cfg.Reviewer.BaseURL)
	require.Equal(t, "gpt-judge", cfg.Reviewer.Model)
	require.Equal(t, "anthropic/claude-sonnet", cfg.Worker.Model)
	require.Equal(t, []string{"--verbose"}, cfg.Worker.ExtraArgs)
}
