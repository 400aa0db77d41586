// Package oracle defines the completion-verification contract: the verdict
// data model returned by an external verifier and the policy that turns a
// verdict into a continue/stop/wait decision.
package oracle

// TokenUsage reports the verifier's token consumption for one verification.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Total returns input plus output tokens.
func (u TokenUsage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// Reflection is the verifier's self-assessment of the iteration, folded into
// the execution context as a learning.
type Reflection struct {
	WhatWorked        string   `json:"what_worked,omitempty"`
	WhatToImprove     string   `json:"what_to_improve,omitempty"`
	Lessons           []string `json:"lessons,omitempty"`
	SuggestedStrategy string   `json:"suggested_strategy,omitempty"`
}

// Verdict is the verifier's judgment of one iteration's output.
//
// A verdict with IsComplete=true is terminal regardless of CanContinue.
type Verdict struct {
	IsComplete           bool        `json:"is_complete"`
	CanContinue          bool        `json:"can_continue"`
	Analysis             string      `json:"analysis,omitempty"`
	NextPromptSuggestion string      `json:"next_prompt_suggestion,omitempty"`
	Confidence           float64     `json:"confidence"`
	TokenUsage           *TokenUsage `json:"token_usage,omitempty"`
	Reflection           *Reflection `json:"reflection,omitempty"`
}

// EnhancedVerdict extends Verdict with goal tracking and a per-iteration
// confidence history.
type EnhancedVerdict struct {
	Verdict

	CompletedGoals        []string        `json:"completed_goals,omitempty"`
	RemainingGoals        []string        `json:"remaining_goals,omitempty"`
	ConfidenceByIteration map[int]float64 `json:"confidence_by_iteration,omitempty"`
}

// RecordConfidence stores the confidence observed at the given iteration.
func (v *EnhancedVerdict) RecordConfidence(iteration int, confidence float64) {
	if v.ConfidenceByIteration == nil {
		v.ConfidenceByIteration = make(map[int]float64)
	}
	v.ConfidenceByIteration[iteration] = confidence
}
