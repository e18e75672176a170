// Package progress provides persistent timestamped logging for supervised
// runs. Every execution writes a log file to ~/.overseer/logs/ with entries
// for iterations, reviewer verdicts, retries, and the exit outcome.
package progress

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// timestampFormat is the format for log timestamps.
const timestampFormat = "2006-01-02 15:04:05"

// Logger writes timestamped progress to a log file.
type Logger struct {
	file      *os.File
	startTime time.Time
	logPath   string
}

// Config holds logger configuration.
type Config struct {
	LogsDir   string // directory for log files (default: ~/.overseer/logs)
	Task      string
	WorkDir   string
	RepoLabel string // "repo@branch" when the working dir is a git repo
}

// NewLogger creates a logger writing to a timestamped file under LogsDir.
func NewLogger(cfg Config) (*Logger, error) {
	logsDir := cfg.LogsDir
	if logsDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home dir: %w", err)
		}
		logsDir = filepath.Join(home, ".overseer", "logs")
	}

	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create logs dir: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405")
	logPath := filepath.Join(logsDir, fmt.Sprintf("%s-run.log", timestamp))

	f, err := os.Create(logPath)
	if err != nil {
		return nil, fmt.Errorf("create log file: %w", err)
	}

	l := &Logger{
		file:      f,
		startTime: time.Now(),
		logPath:   logPath,
	}

	l.writef("# Overseer Run Log\n")
	l.writef("Task: %s\n", cfg.Task)
	l.writef("Working dir: %s\n", cfg.WorkDir)
	if cfg.RepoLabel != "" {
		l.writef("Repository: %s\n", cfg.RepoLabel)
	}
	l.writef("Started: %s\n", time.Now().Format(timestampFormat))
	l.writef("%s\n\n", strings.Repeat("-", 60))

	return l, nil
}

// Path returns the log file path.
func (l *Logger) Path() string {
	return l.logPath
}

// Printf writes a timestamped message to the log.
func (l *Logger) Printf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	timestamp := time.Now().Format(timestampFormat)
	l.writef("[%s] %s\n", timestamp, msg)
}

// Section writes a section header to the log.
func (l *Logger) Section(title string) {
	l.writef("\n--- %s ---\n", title)
}

// Iteration logs the start of a new iteration.
func (l *Logger) Iteration(n, maxIter int) {
	l.Section(fmt.Sprintf("Iteration %d/%d", n, maxIter))
}

// Verdict logs a recorded reviewer decision.
func (l *Logger) Verdict(action, reason string, sampleSize, retries int) {
	l.Printf("Verdict: %s", action)
	l.Printf("Reason: %s", reason)
	l.Printf("Sample: %d lines, %d reviewer retries", sampleSize, retries)
}

// ReviewerRetry logs a failed reviewer attempt. Transient (network-shaped)
// and permanent (malformed output) failures stay distinguishable here.
func (l *Logger) ReviewerRetry(attempt int, transient bool, err error) {
	class := "permanent"
	if transient {
		class = "transient"
	}
	l.Printf("Reviewer attempt %d failed (%s): %v", attempt+1, class, err)
}

// Errorf logs an error message.
func (l *Logger) Errorf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	timestamp := time.Now().Format(timestampFormat)
	l.writef("[%s] ERROR: %s\n", timestamp, msg)
}

// Exit logs the outcome and duration.
func (l *Logger) Exit(outcome string, iterations int) {
	l.writef("\n%s\n", strings.Repeat("-", 60))
	l.writef("Outcome: %s\n", outcome)
	l.writef("Iterations: %d\n", iterations)
	l.writef("Duration: %s\n", l.elapsed())
	l.writef("Completed: %s\n", time.Now().Format(timestampFormat))
}

// Close closes the log file.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("close log file: %w", err)
	}
	return nil
}

func (l *Logger) writef(format string, args ...any) {
	if l.file != nil {
		fmt.Fprintf(l.file, format, args...)
	}
}

func (l *Logger) elapsed() string {
	d := time.Since(l.startTime).Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
