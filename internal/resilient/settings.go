package resilient

import (
	"fmt"
	"math"
	"time"
)

// Settings configures retry behavior for the resilient executor.
type Settings struct {
	// MaxRetries is the maximum number of attempts.
	// Default: 3
	MaxRetries int `koanf:"max_retries"`

	// InitialDelay is the delay after the first failed attempt.
	// Default: 500ms
	InitialDelay time.Duration `koanf:"initial_delay"`

	// BackoffMultiplier is the multiplier for exponential backoff.
	// Default: 2.0
	BackoffMultiplier float64 `koanf:"backoff_multiplier"`

	// MaxDelay caps the backoff delay.
	// Default: 10s
	MaxDelay time.Duration `koanf:"max_delay"`
}

// DefaultSettings returns the default retry settings.
func DefaultSettings() Settings {
	return Settings{
		MaxRetries:        3,
		InitialDelay:      500 * time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxDelay:          10 * time.Second,
	}
}

// ApplyDefaults sets default values for unset fields.
func (s *Settings) ApplyDefaults() {
	defaults := DefaultSettings()

	if s.MaxRetries == 0 {
		s.MaxRetries = defaults.MaxRetries
	}
	if s.InitialDelay == 0 {
		s.InitialDelay = defaults.InitialDelay
	}
	if s.BackoffMultiplier == 0 {
		s.BackoffMultiplier = defaults.BackoffMultiplier
	}
	if s.MaxDelay == 0 {
		s.MaxDelay = defaults.MaxDelay
	}
}

// Validate checks settings for errors.
func (s *Settings) Validate() error {
	if s.MaxRetries < 1 {
		return fmt.Errorf("max_retries must be >= 1, got %d", s.MaxRetries)
	}
	if s.InitialDelay < 0 {
		return fmt.Errorf("initial_delay must be >= 0, got %v", s.InitialDelay)
	}
	if s.BackoffMultiplier < 1 {
		return fmt.Errorf("backoff_multiplier must be >= 1, got %v", s.BackoffMultiplier)
	}
	if s.MaxDelay < s.InitialDelay {
		return fmt.Errorf("max_delay %v must be >= initial_delay %v", s.MaxDelay, s.InitialDelay)
	}
	return nil
}

// DelayForAttempt computes the backoff delay after the given 1-indexed
// attempt: InitialDelay scaled by BackoffMultiplier^(attempt-1), capped
// at MaxDelay.
func (s *Settings) DelayForAttempt(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	scaled := float64(s.InitialDelay) * math.Pow(s.BackoffMultiplier, float64(attempt-1))
	if scaled > float64(s.MaxDelay) {
		return s.MaxDelay
	}
	return time.Duration(scaled)
}
