package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestInit_LevelOverride(t *testing.T) {
	Init("ratedesk", "prod", "warn")
	t.Cleanup(func() { Init("ratedesk", "dev", "info") })

	require.NotNil(t, L())
	assert.False(t, L().Core().Enabled(zapcore.InfoLevel))
	assert.True(t, L().Core().Enabled(zapcore.WarnLevel))
}

func TestInit_InvalidLevelKeepsDefault(t *testing.T) {
	Init("ratedesk", "dev", "loud")

	assert.True(t, L().Core().Enabled(zapcore.DebugLevel), "development config defaults to debug")
}

func TestNamed(t *testing.T) {
	Init("ratedesk", "dev", "info")
	assert.NotNil(t, Named("desk"))
	assert.NotNil(t, S())
	Sync()
}
