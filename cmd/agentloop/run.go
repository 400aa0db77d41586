package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentloop/internal/config"
	"github.com/fyrsmithlabs/agentloop/internal/extexec"
	"github.com/fyrsmithlabs/agentloop/internal/logging"
	"github.com/fyrsmithlabs/agentloop/internal/orchestrator"
	"github.com/fyrsmithlabs/agentloop/internal/summarize"
	"github.com/fyrsmithlabs/agentloop/internal/telemetry"
)

var runFlags struct {
	configPath      string
	goal            string
	maxIterations   int
	oracle          bool
	autoContinue    bool
	continueOnFail  bool
	completionMode  string
	executorCommand string
	executorArgs    []string
	maxTokens       int
}

var runCmd = &cobra.Command{
	Use:   "run [prompt]...",
	Short: "Run the autonomous loop against an external agent",
	Long: `Run prompts through the external agent in an autonomous loop.

The first prompt becomes the session goal unless --goal is set. With --oracle,
each iteration's output is verified against the goal and the loop continues
until the oracle judges the goal achieved or a bound is reached.

Examples:
  # Single pass
  agentloop run --executor-command my-agent "summarize the changelog"

  # Iterate until the oracle confirms completion
  agentloop run --oracle --auto-continue "make all tests pass"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runLoop,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runFlags.configPath, "config", "", "config file path (default ~/.config/agentloop/config.yaml)")
	f.StringVar(&runFlags.goal, "goal", "", "session goal (default: first prompt)")
	f.IntVar(&runFlags.maxIterations, "max-iterations", 0, "iteration bound (overrides config)")
	f.BoolVar(&runFlags.oracle, "oracle", false, "verify completion after each iteration")
	f.BoolVar(&runFlags.autoContinue, "auto-continue", false, "auto-enqueue the next prompt on continuable verdicts")
	f.BoolVar(&runFlags.continueOnFail, "continue-on-failure", false, "keep iterating past failed executions")
	f.StringVar(&runFlags.completionMode, "completion-mode", "", "until_queue_empty, single_goal, or until_goal_achieved")
	f.StringVar(&runFlags.executorCommand, "executor-command", "", "external agent binary (overrides config)")
	f.StringSliceVar(&runFlags.executorArgs, "executor-arg", nil, "argument passed to the agent binary (repeatable)")
	f.IntVar(&runFlags.maxTokens, "max-tokens", 0, "context token budget for saturation monitoring")
}

func runLoop(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := config.EnsureConfigDir(); err != nil {
		return err
	}
	cfg, err := config.LoadWithFile(runFlags.configPath)
	if err != nil {
		return err
	}
	applyFlagOverrides(cfg)

	if cfg.Executor.Command == "" {
		return fmt.Errorf("no executor command configured (set --executor-command or executor.command)")
	}

	logger, err := logging.NewLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	tel, err := telemetry.New(&cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			logger.Warn(context.Background(), "telemetry shutdown failed", zap.Error(err))
		}
	}()
	metrics, err := telemetry.NewMetrics(tel)
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}

	executor, err := extexec.New(cfg.Executor, logger.Named("executor"))
	if err != nil {
		return err
	}

	b := orchestrator.NewBuilder().
		WithConfig(cfg.Autonomous).
		WithGoal(runFlags.goal).
		WithExecutor(executor).
		WithResilience(cfg.Resilience).
		WithSaturation(cfg.Saturation).
		WithSummarizer(summarize.NewExtractive(summarize.Config{})).
		WithLogger(logger.Named("loop")).
		WithMetrics(metrics)

	if cfg.Autonomous.EnableOracle {
		verifier, err := extexec.NewVerifier(cfg.Executor, logger.Named("oracle"))
		if err != nil {
			return err
		}
		b.WithOracle(verifier, cfg.Oracle)
	}

	loop, err := b.Build()
	if err != nil {
		return err
	}
	for _, prompt := range args {
		loop.EnqueuePrompt(prompt)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range loop.Events() {
			printEvent(ev)
		}
	}()

	report, err := loop.Start(ctx)
	<-done
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "\nFinished: %s after %d iteration(s)\n", report.Reason, report.Iterations)
	if !report.Completed && report.Reason != orchestrator.ReasonQueueEmpty {
		return fmt.Errorf("goal not achieved: %s", report.Reason)
	}
	return nil
}

// applyFlagOverrides layers command-line flags over the loaded config.
func applyFlagOverrides(cfg *config.Config) {
	if runFlags.maxIterations > 0 {
		cfg.Autonomous.MaxIterations = runFlags.maxIterations
	}
	if runFlags.oracle {
		cfg.Autonomous.EnableOracle = true
		cfg.Oracle.Enabled = true
	}
	if runFlags.autoContinue {
		cfg.Autonomous.AutoContinueOnOracle = true
	}
	if runFlags.continueOnFail {
		cfg.Autonomous.ContinueOnFailure = true
	}
	if runFlags.completionMode != "" {
		cfg.Autonomous.CompletionMode = orchestrator.CompletionMode(runFlags.completionMode)
	}
	if runFlags.executorCommand != "" {
		cfg.Executor.Command = runFlags.executorCommand
	}
	if len(runFlags.executorArgs) > 0 {
		cfg.Executor.Args = runFlags.executorArgs
	}
	if runFlags.maxTokens > 0 {
		cfg.Saturation.MaxTokens = runFlags.maxTokens
	}
}

// printEvent renders one loop event. Agent output goes to stdout; everything
// else is progress commentary on stderr.
func printEvent(ev orchestrator.Event) {
	switch ev.Type {
	case orchestrator.EventOutputChunk:
		fmt.Println(ev.Message)
	case orchestrator.EventIterationStarted:
		fmt.Fprintf(os.Stderr, "--- iteration %d ---\n", ev.Iteration)
	case orchestrator.EventOracleVerdict:
		if ev.Verdict != nil {
			fmt.Fprintf(os.Stderr, "[oracle] complete=%t confidence=%.2f %s\n",
				ev.Verdict.IsComplete, ev.Verdict.Confidence, ev.Verdict.Analysis)
		}
	case orchestrator.EventOracleError:
		fmt.Fprintf(os.Stderr, "[oracle] verification failed: %s\n", ev.Err)
	case orchestrator.EventExecutionFailed:
		fmt.Fprintf(os.Stderr, "[loop] iteration %d failed: %s\n", ev.Iteration, ev.Err)
	case orchestrator.EventAutoContinue:
		fmt.Fprintf(os.Stderr, "[loop] continuing: %s\n", ev.Message)
	case orchestrator.EventSaturation:
		if ev.Saturation != nil {
			fmt.Fprintf(os.Stderr, "[context] %.0f%% of budget (%s)\n",
				ev.Saturation.Percentage, ev.Saturation.Level)
		}
	}
}
