package logging

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

	"sensorstats/config"
)

func TestNewLogger_File(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	logger, err := NewLogger(config.LogConfig{
		Level:              "info",
		Format:             "json",
		FileLoggingEnabled: true,
		Directory:          dir,
		Filename:           "test.log",
		MaxSize:            1,
	})
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("Statistics component set up", zap.String("component", "supply"))
	require.NoError(t, logger.Sync())

	content, err := os.ReadFile(filepath.Join(dir, "test.log"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "Statistics component set up", entry["msg"])
	assert.Equal(t, "supply", entry["component"])
}

func TestNewLogger_NoOutputs(t *testing.T) {
	_, err := NewLogger(config.LogConfig{Level: "info", Format: "json"})
	assert.ErrorIs(t, err, ErrNoOutputs)
}

func TestParseLevel(t *testing.T) {
	level, err := parseLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, level)

	level, err = parseLevel("loud")
	assert.Error(t, err)
	assert.Equal(t, zapcore.InfoLevel, level)
}
