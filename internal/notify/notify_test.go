package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogSink(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sink := NewLogSink(zap.New(core))

	sink.Success("3 offline changes synced")
	sink.Failure("Check-in failed")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "3 offline changes synced", entries[0].Message)
	assert.Equal(t, "success", entries[0].ContextMap()["kind"])
	assert.Equal(t, "notification", entries[0].ContextMap()["channel"])
	assert.Equal(t, zap.WarnLevel, entries[1].Level)
}
