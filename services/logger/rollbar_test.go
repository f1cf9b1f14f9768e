package logsvc

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/trezcool/codedays/core"
	"github.com/trezcool/codedays/core/user"
)

func newObservedLogger(t *testing.T) (*RollbarLogger, *observer.ObservedLogs) {
	t.Helper()
	obs, logs := observer.New(zapcore.DebugLevel)
	return NewRollbarLogger(zap.New(obs), core.NewTestConfig()), logs
}

func TestRollbarLogger_Fields(t *testing.T) {
	logger, logs := newObservedLogger(t)

	usr := user.User{ID: 7, Username: "alice", Email: "alice@example.com"}
	logger.Error("grading failed", errors.New("boom"), map[string]interface{}{"submission": 3}, usr)

	entries := logs.All()
	require.Len(t, entries, 1)
	entry := entries[0]
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)
	assert.Equal(t, "grading failed", entry.Message)

	ctx := entry.ContextMap()
	assert.Equal(t, "boom", ctx["error"])
	assert.EqualValues(t, 3, ctx["submission"])
	assert.Equal(t, "alice", ctx["user"])
}

func TestRollbarLogger_Levels(t *testing.T) {
	logger, logs := newObservedLogger(t)

	logger.Debug("d")
	logger.Info("i")
	logger.Warn("w")

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
}

func TestNewZapLogger(t *testing.T) {
	tests := []struct {
		name  string
		conf  core.LogConfig
		level zapcore.Level
	}{
		{"console debug", core.LogConfig{Level: "debug", Format: "console"}, zapcore.DebugLevel},
		{"json warn", core.LogConfig{Level: "warn", Format: "json"}, zapcore.WarnLevel},
		{"bad level", core.LogConfig{Level: "loud", Format: "json"}, zapcore.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			zl := NewZapLogger(tt.conf)
			assert.True(t, zl.Core().Enabled(tt.level))
			if tt.level > zapcore.DebugLevel {
				assert.False(t, zl.Core().Enabled(tt.level-1))
			}
		})
	}
}
