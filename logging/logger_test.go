package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	for _, tc := range []struct {
		level, format string
		enabled       zapcore.Level
	}{
		{"info", "console", zapcore.InfoLevel},
		{"DEBUG", "json", zapcore.DebugLevel},
		{"", "", zapcore.InfoLevel},
		{"warn", "JSON", zapcore.WarnLevel},
	} {
		logger, err := New(tc.level, tc.format)
		require.NoError(t, err, tc)
		assert.True(t, logger.Core().Enabled(tc.enabled), tc)
		assert.False(t, logger.Core().Enabled(tc.enabled-1), tc)
	}
}

func TestNewRejectsUnknown(t *testing.T) {
	_, err := New("loud", "console")
	assert.Error(t, err)
	_, err = New("info", "xml")
	assert.Error(t, err)
}

func TestNop(t *testing.T) {
	assert.False(t, Nop().Core().Enabled(zapcore.FatalLevel))
}
