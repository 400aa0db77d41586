// Package extexec runs iterations through an external command line tool.
// The prompt is delivered on stdin, stdout is streamed back line by line as
// partial outputs, and a non-zero exit becomes an unsuccessful result that
// the resilient layer may retry.
package extexec

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentloop/internal/logging"
	"github.com/fyrsmithlabs/agentloop/internal/task"
)

// Config describes the external command.
type Config struct {
	// Command is the binary to run. Required.
	Command string `koanf:"command"`

	// Args are passed before the prompt handling.
	Args []string `koanf:"args"`

	// Dir is the working directory. Empty means inherit.
	Dir string `koanf:"dir"`

	// Env appends KEY=VALUE pairs to the inherited environment.
	Env []string `koanf:"env"`

	// Timeout bounds one invocation. Default: 5m
	Timeout time.Duration `koanf:"timeout"`

	// PromptAsArg appends the prompt as the final argument instead of
	// writing it to stdin.
	PromptAsArg bool `koanf:"prompt_as_arg"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Minute
	}
}

// Validate checks config for errors.
func (c *Config) Validate() error {
	if c.Command == "" {
		return fmt.Errorf("command cannot be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be > 0, got %v", c.Timeout)
	}
	return nil
}

// Executor implements task.Executor over a subprocess.
type Executor struct {
	cfg    Config
	logger *logging.Logger
}

// New creates a command executor.
func New(cfg Config, logger *logging.Logger) (*Executor, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid executor config: %w", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Executor{cfg: cfg, logger: logger}, nil
}

// Execute runs one invocation. A non-zero exit yields Success=false with the
// stderr tail as the error text; only start failures and cancellation return
// a Go error.
func (e *Executor) Execute(ctx context.Context, req task.Request, onOutput task.OutputFunc) (*task.Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	args := append([]string(nil), e.cfg.Args...)
	if e.cfg.PromptAsArg {
		args = append(args, req.Prompt)
	}

	cmd := exec.CommandContext(runCtx, e.cfg.Command, args...)
	cmd.Dir = e.cfg.Dir
	if len(e.cfg.Env) > 0 {
		cmd.Env = append(cmd.Environ(), e.cfg.Env...)
	}
	if !e.cfg.PromptAsArg {
		cmd.Stdin = strings.NewReader(req.Prompt)
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	e.logger.Debug(ctx, "invoking external executor",
		zap.String("command", e.cfg.Command),
		zap.String("request_id", req.ID),
	)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", e.cfg.Command, err)
	}

	var output strings.Builder
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if output.Len() > 0 {
			output.WriteString("\n")
		}
		output.WriteString(line)
		if onOutput != nil {
			onOutput(task.Output{RequestID: req.ID, Content: line})
		}
	}
	scanErr := scanner.Err()

	waitErr := cmd.Wait()

	// Cancellation wins over whatever the dying process reported.
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if runCtx.Err() != nil {
		return &task.Result{
			Success: false,
			Output:  output.String(),
			Error:   fmt.Sprintf("timed out after %v", e.cfg.Timeout),
		}, nil
	}
	if scanErr != nil {
		return nil, fmt.Errorf("reading output: %w", scanErr)
	}
	if waitErr != nil {
		return &task.Result{
			Success: false,
			Output:  output.String(),
			Error:   exitError(waitErr, stderr.String()),
		}, nil
	}

	return &task.Result{Success: true, Output: output.String()}, nil
}

// exitError folds the stderr tail into the exit error text.
func exitError(err error, stderr string) string {
	msg := err.Error()
	tail := lastLines(stderr, 5)
	if tail != "" {
		msg = msg + ": " + tail
	}
	return msg
}

// lastLines returns the final n non-empty lines of s joined by "; ".
func lastLines(s string, n int) string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "; ")
}
