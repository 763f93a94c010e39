package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestLevelMapping(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, DebugLevel.zapLevel())
	assert.Equal(t, zapcore.WarnLevel, WarnLevel.zapLevel())
	assert.Equal(t, zapcore.ErrorLevel, ErrorLevel.zapLevel())
	assert.Equal(t, zapcore.InfoLevel, LogLevel("verbose").zapLevel())
}

func TestLoggingBeforeInitIsSafe(t *testing.T) {
	assert.NotPanics(t, func() {
		Info("before init", String("k", "v"))
		Named("component").Debug("child")
		Sync()
	})
}
