package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLoggerValidatesConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = "xml"

	_, err := NewLogger(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "format")
}

func TestNewLoggerDefaults(t *testing.T) {
	logger, err := NewLogger(NewDefaultConfig())
	require.NoError(t, err)
	require.NotNil(t, logger)

	assert.True(t, logger.Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Enabled(zapcore.DebugLevel))
	assert.False(t, logger.Enabled(TraceLevel))
}

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"trace", TraceLevel, false},
		{"debug", zapcore.DebugLevel, false},
		{"info", zapcore.InfoLevel, false},
		{"warn", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"bogus", zapcore.InfoLevel, true},
	}
	for _, tt := range tests {
		got, err := LevelFromString(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestContextFieldsSessionAndIteration(t *testing.T) {
	ctx := WithSessionID(context.Background(), "sess-123")
	ctx = WithIteration(ctx, 7)

	fields := ContextFields(ctx)
	keys := make(map[string]zap.Field, len(fields))
	for _, f := range fields {
		keys[f.Key] = f
	}

	require.Contains(t, keys, "session.id")
	assert.Equal(t, "sess-123", keys["session.id"].String)
	require.Contains(t, keys, "iteration")
	assert.Equal(t, int64(7), keys["iteration"].Integer)
}

func TestContextFieldsEmptyContext(t *testing.T) {
	assert.Empty(t, ContextFields(context.Background()))
}

func TestWithSessionIDRejectsInvalid(t *testing.T) {
	assert.Panics(t, func() {
		WithSessionID(context.Background(), "")
	})
	assert.Panics(t, func() {
		WithSessionID(context.Background(), "has spaces")
	})
}

func TestFromContextFallsBackToNop(t *testing.T) {
	logger := FromContext(context.Background())
	require.NotNil(t, logger)

	stored := NewNop()
	ctx := WithLogger(context.Background(), stored)
	assert.Same(t, stored, FromContext(ctx))
}

func TestLoggerEmitsContextFields(t *testing.T) {
	tl := NewTestLogger(t)

	ctx := WithSessionID(context.Background(), "sess-abc")
	ctx = WithIteration(ctx, 3)
	tl.Info(ctx, "iteration started", zap.String("goal", "demo"))

	tl.AssertLogged(t, zapcore.InfoLevel, "iteration started")
	tl.AssertField(t, "iteration started", "session.id", "sess-abc")
	tl.AssertField(t, "iteration started", "goal", "demo")
}

func TestTraceLevelFiltered(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Level = zapcore.InfoLevel
	logger, err := NewLogger(cfg)
	require.NoError(t, err)

	// Should not panic and should be a no-op below the configured level.
	logger.Trace(context.Background(), "chunk received")
	assert.False(t, logger.Enabled(TraceLevel))
}

func TestNamedAndWith(t *testing.T) {
	tl := NewTestLogger(t)

	child := tl.Named("oracle").With(zap.Int("attempt", 2))
	child.Warn(context.Background(), "verification low confidence")

	entries := tl.FilterMessage("verification low confidence")
	require.Len(t, entries, 1)
	assert.Equal(t, "oracle", entries[0].LoggerName)
}
