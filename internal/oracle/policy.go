package oracle

import "fmt"

// Decision is the outcome of applying the completion policy to a verdict.
type Decision string

const (
	// DecisionComplete ends the session successfully.
	DecisionComplete Decision = "complete"
	// DecisionContinue enqueues the next prompt and runs another iteration.
	DecisionContinue Decision = "continue"
	// DecisionWait halts and waits for external input.
	DecisionWait Decision = "wait"
	// DecisionHumanReview halts for human review of a low-confidence verdict.
	DecisionHumanReview Decision = "human_review"
	// DecisionStop halts without completion and without waiting.
	DecisionStop Decision = "stop"
)

// PolicyConfig holds the completion-policy knobs carried over from the
// autonomous configuration.
type PolicyConfig struct {
	AutoContinueOnOracle         bool
	AutoContinueOnIncomplete     bool
	InferCanContinueFromComplete bool

	// MinConfidenceThreshold gates acceptance of IsComplete=true. Zero
	// disables the gate.
	MinConfidenceThreshold float64

	// HumanReviewConfidenceThreshold routes very-low-confidence completion
	// claims to human review instead of silently continuing. Zero disables.
	HumanReviewConfidenceThreshold float64
}

// Outcome is the policy's decision plus everything the orchestrator needs to
// act on it.
type Outcome struct {
	Decision Decision

	// InferredCanContinue is true when CanContinue was inferred from
	// IsComplete=false rather than reported by the verifier.
	InferredCanContinue bool

	// NextPrompt is set when Decision is DecisionContinue.
	NextPrompt string

	// Reason is a human-readable explanation for the terminal event.
	Reason string
}

// Policy applies the completion rules to verdicts.
type Policy struct {
	cfg PolicyConfig
}

// NewPolicy creates a completion policy.
func NewPolicy(cfg PolicyConfig) *Policy {
	return &Policy{cfg: cfg}
}

// Decide applies the completion precedence to a verdict:
//
//  1. IsComplete=true (and confidence accepted) is terminal success.
//  2. Incomplete but continuable, with auto-continue enabled, continues.
//  3. Incomplete and not continuable, without AutoContinueOnIncomplete,
//     waits for external input.
//  4. Anything else stops.
//
// CanContinue inference runs first: an incomplete verdict that does not
// claim continuability is treated as implicitly continuable when
// InferCanContinueFromComplete is set. Verifiers, especially smaller
// models, do not reliably set CanContinue.
func (p *Policy) Decide(v *Verdict, iteration int) Outcome {
	canContinue := v.CanContinue
	inferred := false
	if p.cfg.InferCanContinueFromComplete && !v.IsComplete && !v.CanContinue {
		canContinue = true
		inferred = true
	}

	if v.IsComplete {
		if p.accepted(v.Confidence) {
			return Outcome{
				Decision: DecisionComplete,
				Reason:   "goal achieved",
			}
		}
		if p.cfg.HumanReviewConfidenceThreshold > 0 && v.Confidence < p.cfg.HumanReviewConfidenceThreshold {
			return Outcome{
				Decision: DecisionHumanReview,
				Reason: fmt.Sprintf("completion claimed with confidence %.2f below review threshold %.2f",
					v.Confidence, p.cfg.HumanReviewConfidenceThreshold),
			}
		}
		// Completion claim rejected by the confidence gate; treat the
		// verdict as incomplete and fall through. Inference does not
		// apply here since the verifier judged the goal complete.
	}

	autoContinue := p.cfg.AutoContinueOnOracle || p.cfg.AutoContinueOnIncomplete
	if canContinue && autoContinue {
		return Outcome{
			Decision:            DecisionContinue,
			InferredCanContinue: inferred,
			NextPrompt:          p.nextPrompt(v, iteration),
			Reason:              "auto-continuing",
		}
	}

	if !canContinue && !p.cfg.AutoContinueOnIncomplete {
		return Outcome{
			Decision: DecisionWait,
			Reason:   "stopped waiting for external input",
		}
	}

	return Outcome{
		Decision: DecisionStop,
		Reason:   "no further progress possible",
	}
}

// accepted reports whether a completion claim passes the confidence gate.
func (p *Policy) accepted(confidence float64) bool {
	if p.cfg.MinConfidenceThreshold <= 0 {
		return true
	}
	return confidence >= p.cfg.MinConfidenceThreshold
}

// nextPrompt synthesizes the next iteration's prompt from the verifier's
// suggestion, or a template when no suggestion was given.
func (p *Policy) nextPrompt(v *Verdict, iteration int) string {
	if v.NextPromptSuggestion != "" {
		return v.NextPromptSuggestion
	}
	return fmt.Sprintf("Continue working toward the original goal (iteration %d). Build on the previous output and address anything still missing.", iteration+1)
}
