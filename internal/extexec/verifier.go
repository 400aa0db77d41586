package extexec

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/agentloop/internal/logging"
	"github.com/fyrsmithlabs/agentloop/internal/oracle"
	"github.com/fyrsmithlabs/agentloop/internal/task"
)

// ModelEnvVar carries the oracle model selection to the verifier command.
const ModelEnvVar = "AGENTLOOP_ORACLE_MODEL"

// Verifier implements oracle.Verifier over the same subprocess mechanism as
// Executor: the verification prompt goes in on stdin and the verdict comes
// back as a JSON object somewhere in stdout. The configured oracle model is
// exported to the command as AGENTLOOP_ORACLE_MODEL.
type Verifier struct {
	cfg    Config
	logger *logging.Logger
}

// NewVerifier creates a command-backed completion verifier.
func NewVerifier(cfg Config, logger *logging.Logger) (*Verifier, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid verifier config: %w", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Verifier{cfg: cfg, logger: logger}, nil
}

// IsConfigured reports whether a command is set.
func (v *Verifier) IsConfigured() bool {
	return v != nil && v.cfg.Command != ""
}

// Verify runs one verification pass and parses the verdict.
func (v *Verifier) Verify(ctx context.Context, originalPrompt, executionOutput string, cfg oracle.Config) (*oracle.Verdict, error) {
	runCfg := v.cfg
	if cfg.Model != "" {
		runCfg.Env = append(append([]string(nil), v.cfg.Env...), ModelEnvVar+"="+cfg.Model)
	}
	exec, err := New(runCfg, v.logger)
	if err != nil {
		return nil, err
	}

	prompt := oracle.BuildVerificationPrompt(originalPrompt, executionOutput, "")

	res, err := exec.Execute(ctx, task.Request{ID: "verify", Prompt: prompt}, nil)
	if err != nil {
		return nil, fmt.Errorf("verifier command: %w", err)
	}
	if !res.Success {
		return nil, fmt.Errorf("verifier command failed: %s", res.Error)
	}

	verdict, err := parseVerdict(res.Output)
	if err != nil {
		return nil, err
	}
	return verdict, nil
}

// parseVerdict extracts the outermost JSON object from raw output. Tools
// often wrap the object in prose or markdown fences, so everything outside
// the first '{' and the last '}' is discarded.
func parseVerdict(raw string) (*oracle.Verdict, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end <= start {
		return nil, fmt.Errorf("no JSON verdict in output")
	}

	var verdict oracle.Verdict
	if err := json.Unmarshal([]byte(raw[start:end+1]), &verdict); err != nil {
		return nil, fmt.Errorf("parsing verdict: %w", err)
	}
	return &verdict, nil
}
