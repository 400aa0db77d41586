// Package saturation tracks consumed token budget for a session and
// classifies pressure into discrete levels with recommended mitigations.
//
// The monitor is pure state plus event emission: it performs no I/O and does
// not act on its own recommendations. Callers subscribe to level-change
// events and invoke their own summarization or eviction machinery.
package saturation

import (
	"sync"
)

// Level is the discrete saturation pressure classification.
type Level string

const (
	LevelNormal   Level = "normal"
	LevelElevated Level = "elevated"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
	LevelOverflow Level = "overflow"
)

// Action is the mitigation recommended for a saturation level.
type Action string

const (
	ActionNone                  Action = "none"
	ActionConsiderSummarization Action = "consider_summarization"
	ActionShouldPageOut         Action = "should_page_out"
	ActionMustEvict             Action = "must_evict"
	ActionEmergency             Action = "emergency"
)

// Default level thresholds as percentages of MaxTokens.
const (
	DefaultElevatedPercent = 60.0
	DefaultHighPercent     = 75.0
	DefaultCriticalPercent = 85.0
	DefaultOverflowPercent = 95.0
)

// Config controls the monitor's budget and thresholds.
type Config struct {
	// MaxTokens is the total budget. Zero disables percentage tracking:
	// the monitor reports 0% and stays at LevelNormal.
	MaxTokens int `koanf:"max_tokens"`

	// AutoTriggerActions gates ActionRequired events. When false, only
	// SaturationChanged events fire on level transitions.
	AutoTriggerActions bool `koanf:"auto_trigger_actions"`

	// Threshold overrides, as percentages. Zero means use the default.
	ElevatedPercent float64 `koanf:"elevated_percent"`
	HighPercent     float64 `koanf:"high_percent"`
	CriticalPercent float64 `koanf:"critical_percent"`
	OverflowPercent float64 `koanf:"overflow_percent"`
}

// ApplyDefaults sets default thresholds for unset fields.
func (c *Config) ApplyDefaults() {
	if c.ElevatedPercent == 0 {
		c.ElevatedPercent = DefaultElevatedPercent
	}
	if c.HighPercent == 0 {
		c.HighPercent = DefaultHighPercent
	}
	if c.CriticalPercent == 0 {
		c.CriticalPercent = DefaultCriticalPercent
	}
	if c.OverflowPercent == 0 {
		c.OverflowPercent = DefaultOverflowPercent
	}
}

// State is a point-in-time snapshot of saturation.
type State struct {
	CurrentTokens     int            `json:"current_tokens"`
	MaxTokens         int            `json:"max_tokens"`
	Percentage        float64        `json:"percentage"`
	Level             Level          `json:"level"`
	RecommendedAction Action         `json:"recommended_action"`
	BySource          map[string]int `json:"by_source,omitempty"`
}

// Monitor tracks token usage against a budget. It is safe for concurrent
// use, though the orchestrator drives it from a single loop.
type Monitor struct {
	mu       sync.Mutex
	cfg      Config
	current  int
	bySource map[string]int
	level    Level
	emitter  Emitter
}

// NewMonitor creates a monitor with the given config and event emitter.
// A nil emitter disables event delivery.
func NewMonitor(cfg Config, emitter Emitter) *Monitor {
	cfg.ApplyDefaults()
	return &Monitor{
		cfg:      cfg,
		bySource: make(map[string]int),
		level:    LevelNormal,
		emitter:  emitter,
	}
}

// RecordUsage adds amount tokens attributed to source. Negative amounts are
// ignored. Events fire only when the discrete level changes.
// NOTE: events are emitted after the lock is released so handlers may call
// back into the monitor without deadlocking.
func (m *Monitor) RecordUsage(amount int, source string) {
	if amount <= 0 {
		return
	}

	var changed *ChangedEvent
	var action *ActionRequiredEvent

	m.mu.Lock()
	m.current += amount
	m.bySource[source] += amount

	newLevel := m.classify(m.percentLocked())
	if newLevel != m.level {
		prev := m.level
		m.level = newLevel
		state := m.stateLocked()
		changed = &ChangedEvent{Previous: prev, Current: newLevel, State: state}
		if m.cfg.AutoTriggerActions && state.RecommendedAction != ActionNone {
			action = &ActionRequiredEvent{
				Action:       state.RecommendedAction,
				TokensToFree: m.tokensToFreeLocked(),
				State:        state,
			}
		}
	}
	m.mu.Unlock()

	if m.emitter != nil {
		if changed != nil {
			m.emitter.Emit(*changed)
		}
		if action != nil {
			m.emitter.Emit(*action)
		}
	}
}

// CurrentState returns a snapshot of the monitor.
func (m *Monitor) CurrentState() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked()
}

// Configure replaces the monitor's thresholds and budget. The level is
// re-derived from the current usage; a resulting level change emits events
// the same way RecordUsage does.
func (m *Monitor) Configure(cfg Config) {
	cfg.ApplyDefaults()

	var changed *ChangedEvent

	m.mu.Lock()
	m.cfg = cfg
	newLevel := m.classify(m.percentLocked())
	if newLevel != m.level {
		prev := m.level
		m.level = newLevel
		changed = &ChangedEvent{Previous: prev, Current: newLevel, State: m.stateLocked()}
	}
	m.mu.Unlock()

	if changed != nil && m.emitter != nil {
		m.emitter.Emit(*changed)
	}
}

// ResetIteration zeroes all counters and returns the level to normal.
// No events fire; a reset is not a pressure transition.
func (m *Monitor) ResetIteration() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = 0
	m.bySource = make(map[string]int)
	m.level = LevelNormal
}

// percentLocked computes usage percentage. MaxTokens of zero reports 0%.
func (m *Monitor) percentLocked() float64 {
	if m.cfg.MaxTokens <= 0 {
		return 0
	}
	return 100 * float64(m.current) / float64(m.cfg.MaxTokens)
}

func (m *Monitor) classify(pct float64) Level {
	switch {
	case pct >= m.cfg.OverflowPercent:
		return LevelOverflow
	case pct >= m.cfg.CriticalPercent:
		return LevelCritical
	case pct >= m.cfg.HighPercent:
		return LevelHigh
	case pct >= m.cfg.ElevatedPercent:
		return LevelElevated
	default:
		return LevelNormal
	}
}

// actionFor maps a level to its recommended mitigation.
func actionFor(level Level) Action {
	switch level {
	case LevelElevated:
		return ActionConsiderSummarization
	case LevelHigh:
		return ActionShouldPageOut
	case LevelCritical:
		return ActionMustEvict
	case LevelOverflow:
		return ActionEmergency
	default:
		return ActionNone
	}
}

func (m *Monitor) stateLocked() State {
	bySource := make(map[string]int, len(m.bySource))
	for k, v := range m.bySource {
		bySource[k] = v
	}
	return State{
		CurrentTokens:     m.current,
		MaxTokens:         m.cfg.MaxTokens,
		Percentage:        m.percentLocked(),
		Level:             m.level,
		RecommendedAction: actionFor(m.level),
		BySource:          bySource,
	}
}

// tokensToFreeLocked computes how many tokens must be freed to drop back
// below the elevated threshold, i.e. to return the session to normal.
func (m *Monitor) tokensToFreeLocked() int {
	if m.cfg.MaxTokens <= 0 {
		return 0
	}
	target := int(m.cfg.ElevatedPercent / 100 * float64(m.cfg.MaxTokens))
	free := m.current - target
	if free < 0 {
		return 0
	}
	return free
}
