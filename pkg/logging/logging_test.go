package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestLevelFromString verifies level parsing and the info fallback.
func TestLevelFromString(t *testing.T) {
	t.Parallel()

	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		"warning": zapcore.WarnLevel,
		"warn":    zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
		"verbose": zapcore.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, levelFromString(in), in)
	}
}

// TestFromCore_ForwardsAttributes verifies that slog attributes reach the
// zap core.
func TestFromCore_ForwardsAttributes(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	logger := FromCore(core, "zeronote")

	logger.Warn("token rejected", slog.String("code", "AUTH_006"))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "token rejected", entries[0].Message)
	assert.Equal(t, "AUTH_006", entries[0].ContextMap()["code"])
}

// TestCore_ProductionJSON verifies the JSON encoder and ISO8601 time.
func TestCore_ProductionJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := FromCore(Core(Config{Level: "warn"}, &buf), "zeronote")

	logger.Info("dropped")
	logger.Error("kept", "component", "keyset")

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "kept", line["msg"])
	assert.Equal(t, "error", line["level"])
	assert.Equal(t, "keyset", line["component"])
}

// TestOrDefault verifies the nil fallback.
func TestOrDefault(t *testing.T) {
	t.Parallel()

	assert.Same(t, slog.Default(), OrDefault(nil))
	l := slog.New(slog.DiscardHandler)
	assert.Same(t, l, OrDefault(l))
}
