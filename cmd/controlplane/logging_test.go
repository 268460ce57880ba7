package main

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBuildLoggerLevels(t *testing.T) {
	cases := []struct {
		level string
		want  zap.AtomicLevel
	}{
		{"debug", zap.NewAtomicLevelAt(zap.DebugLevel)},
		{"info", zap.NewAtomicLevelAt(zap.InfoLevel)},
		{"", zap.NewAtomicLevelAt(zap.InfoLevel)},
		{"warn", zap.NewAtomicLevelAt(zap.WarnLevel)},
		{"error", zap.NewAtomicLevelAt(zap.ErrorLevel)},
	}
	for _, tc := range cases {
		logger, err := buildLogger(tc.level)
		require.NoError(t, err)
		require.NotNil(t, logger)
		assert.Equal(t, tc.want.Level(), logger.Level())
	}
}

func TestBuildLoggerRejectsUnknownLevel(t *testing.T) {
	_, err := buildLogger("verbose")
	require.Error(t, err)
}

func TestBuildLoggerInstallsSlogDefault(t *testing.T) {
	_, err := buildLogger("debug")
	require.NoError(t, err)
	assert.NotNil(t, slog.Default())
}
