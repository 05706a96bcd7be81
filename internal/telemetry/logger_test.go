package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ProducesUsableLogger(t *testing.T) {
	logger, sync, err := New(Options{JSON: true})
	require.NoError(t, err)
	assert.NotNil(t, logger.GetSink())
	logger.Info("hello", "k", "v")
	_ = sync()
}

func TestNew_ConsoleEncoderForInteractiveUse(t *testing.T) {
	logger, sync, err := New(Options{JSON: false, Level: LevelDebug})
	require.NoError(t, err)
	logger.V(1).Info("debug message")
	_ = sync()
}
