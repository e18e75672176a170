// Package config provides the immutable run configuration. Values are
// merged with the following precedence: code defaults → global config file
// (~/.overseer/config.yaml) → OVERSEER_* environment variables → CLI flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultMaxIterations         = 10
	DefaultInactivityTimeout     = 30 // seconds
	DefaultSampleCapacity        = 100
	DefaultPreviousSummaryWindow = 5
	DefaultReviewerMaxAttempts   = 3
	DefaultReviewerURL           = "http://localhost:11434/v1"
	DefaultReviewerModel         = "ollama/llama3.1"
	DefaultWorkerModel           = "ollama/llama3.1"
	DefaultWorkerCommand         = "opencode"
)

// ReviewerConfig holds reviewer endpoint settings.
type ReviewerConfig struct {
	BaseURL        string `yaml:"base_url"`
	Model          string `yaml:"model"`
	MaxAttempts    int    `yaml:"max_attempts"`
	FallbackAction string `yaml:"fallback_action"` // verdict after retry exhaustion: continue|abort
}

// WorkerConfig holds settings for the spawned opencode server.
type WorkerConfig struct {
	Command   string   `yaml:"command"`
	Model     string   `yaml:"model"`
	ServerURL string   `yaml:"server_url"` // attach to a running server instead of spawning
	ExtraArgs []string `yaml:"extra_args"`
}

// Config holds all settings for one supervised run.
type Config struct {
	// Task and WorkingDir come from the invocation, never from files.
	Task       string `yaml:"-"`
	WorkingDir string `yaml:"-"`
	Headless   bool   `yaml:"-"`

	MaxIterations         int    `yaml:"max_iterations"`
	InactivityTimeout     int    `yaml:"inactivity_timeout"` // seconds
	SampleCapacity        int    `yaml:"sample_capacity"`
	PreviousSummaryWindow int    `yaml:"previous_summary_window"`
	LogsDir               string `yaml:"logs_dir"` // default ~/.overseer/logs

	Reviewer ReviewerConfig `yaml:"reviewer"`
	Worker   WorkerConfig   `yaml:"worker"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		WorkingDir:            ".",
		MaxIterations:         DefaultMaxIterations,
		InactivityTimeout:     DefaultInactivityTimeout,
		SampleCapacity:        DefaultSampleCapacity,
		PreviousSummaryWindow: DefaultPreviousSummaryWindow,
		Reviewer: ReviewerConfig{
			BaseURL:        DefaultReviewerURL,
			Model:          DefaultReviewerModel,
			MaxAttempts:    DefaultReviewerMaxAttempts,
			FallbackAction: "continue",
		},
		Worker: WorkerConfig{
			Command: DefaultWorkerCommand,
			Model:   DefaultWorkerModel,
		},
	}
}

// Load builds the configuration from defaults, the global config file, and
// environment variables. CLI flags are applied by the caller afterwards.
func Load() (*Config, error) {
	cfg := Defaults()

	path := filepath.Join(DefaultConfigDir(), "config.yaml")
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	cfg.applyEnv()
	return &cfg, nil
}

// DefaultConfigDir returns the global configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".overseer"
	}
	return filepath.Join(home, ".overseer")
}

// DefaultLogsDir returns the logs directory, honoring a configured override.
func (c *Config) DefaultLogsDir() string {
	if c.LogsDir != "" {
		return c.LogsDir
	}
	return filepath.Join(DefaultConfigDir(), "logs")
}

// InactivityDuration returns the inactivity timeout as a duration.
func (c *Config) InactivityDuration() time.Duration {
	return time.Duration(c.InactivityTimeout) * time.Second
}

func (c *Config) applyEnv() {
	if v := os.Getenv("OVERSEER_TASK"); v != "" {
		c.Task = v
	}
	if v := os.Getenv("OVERSEER_WORKING_DIR"); v != "" {
		c.WorkingDir = v
	}
	if v := os.Getenv("OVERSEER_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxIterations = n
		}
	}
	if v := os.Getenv("OVERSEER_INACTIVITY_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.InactivityTimeout = n
		}
	}
	if v := os.Getenv("OVERSEER_SAMPLE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.SampleCapacity = n
		}
	}
	if v := os.Getenv("OVERSEER_SUMMARY_WINDOW"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.PreviousSummaryWindow = n
		}
	}
	if v := os.Getenv("OVERSEER_REVIEWER_URL"); v != "" {
		c.Reviewer.BaseURL = v
	}
	if v := os.Getenv("OVERSEER_REVIEWER_MODEL"); v != "" {
		c.Reviewer.Model = v
	}
	if v := os.Getenv("OVERSEER_REVIEWER_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Reviewer.MaxAttempts = n
		}
	}
	if v := os.Getenv("OVERSEER_WORKER_MODEL"); v != "" {
		c.Worker.Model = v
	}
	if v := os.Getenv("OVERSEER_SERVER_URL"); v != "" {
		c.Worker.ServerURL = v
	}
}

// Validate enforces the constraints of the configuration surface.
func (c *Config) Validate() error {
	if c.Task == "" {
		return fmt.Errorf("task cannot be empty")
	}
	if c.MaxIterations <= 0 {
		return fmt.Errorf("max_iterations must be positive")
	}
	if c.InactivityTimeout <= 0 {
		return fmt.Errorf("inactivity_timeout must be positive")
	}
	if c.SampleCapacity <= 0 {
		return fmt.Errorf("sample_capacity must be positive")
	}
	if c.PreviousSummaryWindow < 0 {
		return fmt.Errorf("previous_summary_window cannot be negative")
	}
	if c.Reviewer.BaseURL == "" {
		return fmt.Errorf("reviewer base_url is required")
	}
	if c.Reviewer.Model == "" {
		return fmt.Errorf("reviewer model is required")
	}
	if c.Reviewer.MaxAttempts <= 0 {
		return fmt.Errorf("reviewer max_attempts must be positive")
	}
	switch c.Reviewer.FallbackAction {
	case "continue", "abort":
	default:
		return fmt.Errorf("reviewer fallback_action must be continue or abort, got %q", c.Reviewer.FallbackAction)
	}
	return nil
}
