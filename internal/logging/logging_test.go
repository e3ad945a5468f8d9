package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewHonoursLogLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	l, err := New("production")
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))

	t.Setenv("LOG_LEVEL", "")
	l, err = New("development")
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))
}

func TestOr(t *testing.T) {
	assert.NotNil(t, Or(nil))
}
