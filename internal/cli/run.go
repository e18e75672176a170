package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/worksonmyai/overseer/internal/config"
	"github.com/worksonmyai/overseer/internal/debug"
	"github.com/worksonmyai/overseer/internal/git"
	"github.com/worksonmyai/overseer/internal/loop"
	"github.com/worksonmyai/overseer/internal/progress"
	"github.com/worksonmyai/overseer/internal/reviewer"
	"github.com/worksonmyai/overseer/internal/timing"
	"github.com/worksonmyai/overseer/internal/tui"
	"github.com/worksonmyai/overseer/internal/ui"
	"github.com/worksonmyai/overseer/internal/worker"
)

var runFlags struct {
	task              string
	workingDir        string
	workerModel       string
	serverURL         string
	reviewerURL       string
	reviewerModel     string
	maxIterations     int
	inactivityTimeout int
	headless          bool
}

var runCmd = &cobra.Command{
	Use:   "run [-- extra opencode serve args...]",
	Short: "Run a supervised task against an opencode worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		applyRunFlags(cmd, cfg, args)
		if err := cfg.Validate(); err != nil {
			return err
		}
		return runSupervised(cfg)
	},
}

func init() {
	runCmd.Flags().StringVarP(&runFlags.task, "task", "t", "", "task description for the worker")
	runCmd.Flags().StringVarP(&runFlags.workingDir, "working-dir", "w", "", "working directory for the task")
	runCmd.Flags().StringVar(&runFlags.workerModel, "worker-model", "", "model for the worker (provider/model)")
	runCmd.Flags().StringVar(&runFlags.serverURL, "server-url", "", "attach to a running opencode server instead of spawning one")
	runCmd.Flags().StringVar(&runFlags.reviewerURL, "reviewer-url", "", "OpenAI-compatible base URL for the reviewer")
	runCmd.Flags().StringVar(&runFlags.reviewerModel, "reviewer-model", "", "model for the reviewer")
	runCmd.Flags().IntVar(&runFlags.maxIterations, "max-iterations", 0, "maximum iterations before forcing exit")
	runCmd.Flags().IntVar(&runFlags.inactivityTimeout, "inactivity-timeout", 0, "inactivity timeout in seconds")
	runCmd.Flags().BoolVar(&runFlags.headless, "headless", false, "run without the TUI")
}

// applyRunFlags overlays explicitly-set flags onto the loaded config; flags
// are the last word in the precedence chain.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config, extraArgs []string) {
	if cmd.Flags().Changed("task") {
		cfg.Task = runFlags.task
	}
	if cmd.Flags().Changed("working-dir") {
		cfg.WorkingDir = runFlags.workingDir
	}
	if cmd.Flags().Changed("worker-model") {
		cfg.Worker.Model = runFlags.workerModel
	}
	if cmd.Flags().Changed("server-url") {
		cfg.Worker.ServerURL = runFlags.serverURL
	}
	if cmd.Flags().Changed("reviewer-url") {
		cfg.Reviewer.BaseURL = runFlags.reviewerURL
	}
	if cmd.Flags().Changed("reviewer-model") {
		cfg.Reviewer.Model = runFlags.reviewerModel
	}
	if cmd.Flags().Changed("max-iterations") {
		cfg.MaxIterations = runFlags.maxIterations
	}
	if cmd.Flags().Changed("inactivity-timeout") {
		cfg.InactivityTimeout = runFlags.inactivityTimeout
	}
	cfg.Headless = runFlags.headless
	cfg.Worker.ExtraArgs = append(cfg.Worker.ExtraArgs, extraArgs...)
}

func runSupervised(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	timing.Log("signal handling ready")

	repoLabel := ""
	if info, err := git.Detect(cfg.WorkingDir); err == nil {
		repoLabel = info.Label()
	}

	progLog, err := progress.NewLogger(progress.Config{
		LogsDir:   cfg.DefaultLogsDir(),
		Task:      cfg.Task,
		WorkDir:   cfg.WorkingDir,
		RepoLabel: repoLabel,
	})
	if err != nil {
		return fmt.Errorf("open progress log: %w", err)
	}
	defer progLog.Close()
	timing.Log("progress log ready")

	baseURL := cfg.Worker.ServerURL
	if baseURL == "" {
		server, err := worker.SpawnServer(ctx, worker.ServerOptions{
			Command:    cfg.Worker.Command,
			WorkingDir: cfg.WorkingDir,
			Model:      cfg.Worker.Model,
			ExtraArgs:  cfg.Worker.ExtraArgs,
		})
		if err != nil {
			progLog.Errorf("spawn worker server: %v", err)
			return fmt.Errorf("spawn worker server: %w", err)
		}
		defer server.Shutdown()
		baseURL = server.BaseURL()
	}
	progLog.Printf("Worker server: %s", baseURL)
	timing.Log("worker server ready")

	rev := reviewer.New(reviewer.Options{
		BaseURL:     cfg.Reviewer.BaseURL,
		Model:       cfg.Reviewer.Model,
		MaxAttempts: cfg.Reviewer.MaxAttempts,
		Fallback:    reviewer.Action(cfg.Reviewer.FallbackAction),
	})
	rev.OnAttemptFailure = func(attempt int, err *reviewer.AttemptError) {
		progLog.ReviewerRetry(attempt, err.Transient, err.Err)
	}

	engine := loop.New(loop.Config{
		Task:              cfg.Task,
		MaxIterations:     cfg.MaxIterations,
		InactivityTimeout: cfg.InactivityDuration(),
		SampleCapacity:    cfg.SampleCapacity,
		SummaryWindow:     cfg.PreviousSummaryWindow,
	}, worker.NewClient(baseURL), rev)
	engine.SetProgressLogger(progLog)

	pub := ui.NewPublisher(ui.DefaultBuffer)
	engine.SetPublisher(pub)

	var outcome loop.Outcome
	if cfg.Headless {
		outcome = runHeadless(ctx, engine, pub)
	} else {
		outcome = tui.Run(ctx, engine, pub, tui.RunInfo{
			Task:          cfg.Task,
			MaxIterations: cfg.MaxIterations,
			RepoLabel:     repoLabel,
		})
	}

	fmt.Fprintln(os.Stdout)
	fmt.Fprintln(os.Stdout, engine.State().FormatActivityLog())
	fmt.Fprintf(os.Stdout, "\nRun %s after %d iterations (log: %s)\n",
		outcome, len(engine.State().Iterations()), progLog.Path())

	if outcome.Kind != loop.OutcomeCompleted {
		return fmt.Errorf("run %s", outcome)
	}
	return nil
}

// runHeadless drains ui events through the plain writer while the engine runs.
func runHeadless(ctx context.Context, engine *loop.Engine, pub *ui.Publisher) loop.Outcome {
	w := NewWriter(os.Stdout, isTTY(os.Stdout))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range pub.Events() {
			w.WriteEvent(ev)
		}
	}()

	outcome := engine.Run(ctx)
	pub.Close()
	<-done
	debug.Logf("cli: headless run finished: %s", outcome)
	return outcome
}
