package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestConfigs(t *testing.T) {
	dev := DefaultConfig()
	assert.Equal(t, "info", dev.Level)
	assert.Equal(t, "console", dev.Format)
	assert.Equal(t, "stdout", dev.Output)
	assert.NotEmpty(t, dev.TimeFormat)

	prod := ProductionConfig()
	assert.Equal(t, "json", prod.Format)
}

func TestNewForEnvironment(t *testing.T) {
	for _, env := range []string{"development", "production", "staging"} {
		t.Run(env, func(t *testing.T) {
			logger, err := NewForEnvironment(env)
			require.NoError(t, err)
			assert.NotNil(t, logger)
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"INFO", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"fatal", zapcore.FatalLevel},
		{"verbose", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLevel(tt.level))
		})
	}
}

func TestNewFromSettings_WritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "connector.log")

	logger, err := NewFromSettings("warn", "json", path)
	require.NoError(t, err)

	logger.Info("dropped")
	logger.Warn("queue full", zap.String("tenant_id", "t-1"), zap.Int("depth", 1000))
	require.NoError(t, Sync(logger))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1, "info entry must be filtered at warn level")

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "queue full", entry["msg"])
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "t-1", entry["tenant_id"])
	assert.EqualValues(t, 1000, entry["depth"])
	assert.Contains(t, entry, "caller")
}

func TestNewFromSettings_Defaults(t *testing.T) {
	logger, err := NewFromSettings("", "", "")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestCreateWriter(t *testing.T) {
	for _, output := range []string{"stdout", "stderr", "STDOUT"} {
		assert.NotNil(t, createWriter(output))
	}

	t.Run("unwritable path falls back to stdout", func(t *testing.T) {
		w := createWriter(filepath.Join(t.TempDir(), "missing", "dir", "x.log"))
		assert.NotNil(t, w)
	})
}

func TestCreateEncoder(t *testing.T) {
	assert.NotNil(t, createEncoder(DefaultConfig()))
	assert.NotNil(t, createEncoder(ProductionConfig()))
}
