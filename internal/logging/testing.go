// internal/logging/testing.go
package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogger captures log output for assertions in tests.
type TestLogger struct {
	*Logger
	observed *observer.ObservedLogs
}

// NewTestLogger creates a logger that records every entry at Trace and above.
func NewTestLogger(t *testing.T) *TestLogger {
	t.Helper()

	core, observed := observer.New(TraceLevel)
	return &TestLogger{
		Logger: &Logger{
			zap:    zap.New(core),
			config: NewDefaultConfig(),
		},
		observed: observed,
	}
}

// All returns every recorded entry.
func (tl *TestLogger) All() []observer.LoggedEntry {
	return tl.observed.All()
}

// FilterMessage returns entries with an exact message match.
func (tl *TestLogger) FilterMessage(msg string) []observer.LoggedEntry {
	return tl.observed.FilterMessage(msg).All()
}

// Reset discards recorded entries.
func (tl *TestLogger) Reset() {
	tl.observed.TakeAll()
}

// AssertLogged fails the test unless msg was logged at level.
func (tl *TestLogger) AssertLogged(t *testing.T, level zapcore.Level, msg string) {
	t.Helper()
	for _, e := range tl.observed.All() {
		if e.Level == level && e.Message == msg {
			return
		}
	}
	t.Errorf("expected log entry at %v with message %q, not found", level, msg)
}

// AssertNotLogged fails the test if msg was logged.
func (tl *TestLogger) AssertNotLogged(t *testing.T, msg string) {
	t.Helper()
	if entries := tl.observed.FilterMessage(msg).All(); len(entries) > 0 {
		t.Errorf("expected no log entry with message %q, found %d", msg, len(entries))
	}
}

// AssertField fails the test unless some entry with msg carries the field.
func (tl *TestLogger) AssertField(t *testing.T, msg, key string, want any) {
	t.Helper()
	for _, e := range tl.observed.FilterMessage(msg).All() {
		for _, f := range e.Context {
			if f.Key != key {
				continue
			}
			enc := zapcore.NewMapObjectEncoder()
			f.AddTo(enc)
			if enc.Fields[key] == want {
				return
			}
		}
	}
	t.Errorf("expected entry %q with field %s=%v, not found", msg, key, want)
}
