package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/dbsmedya/claimsurvival/internal/config"
)

func fileLogger(t *testing.T, format string) (*Logger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "claimsurvival.log")
	log, err := New(&config.LoggingConfig{Level: "debug", Format: format, Output: path})
	require.NoError(t, err)
	return log, path
}

func readLog(t *testing.T, log *Logger, path string) string {
	t.Helper()
	_ = log.Sync()
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(content)
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"info":    zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
		"warn":    zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"fatal":   zapcore.InfoLevel,
		"verbose": zapcore.InfoLevel,
	}
	for input, want := range tests {
		assert.Equal(t, want, parseLevel(input), "parseLevel(%q)", input)
	}
}

func TestNew(t *testing.T) {
	for _, output := range []string{"stdout", "stderr", ""} {
		t.Run("output="+output, func(t *testing.T) {
			log, err := New(&config.LoggingConfig{Level: "info", Format: "json", Output: output})
			require.NoError(t, err)
			assert.NotNil(t, log)
		})
	}
}

func TestNew_UnwritableFile(t *testing.T) {
	output := filepath.Join(t.TempDir(), "missing", "dir", "out.log")
	log, err := New(&config.LoggingConfig{Level: "info", Format: "json", Output: output})
	require.Error(t, err)
	assert.Nil(t, log)
	assert.Contains(t, err.Error(), "failed to open log file")
}

func TestNewDefault(t *testing.T) {
	log := NewDefault()
	require.NotNil(t, log)
	log.Debug("below default level")
}

func TestNewNop(t *testing.T) {
	log := NewNop()
	require.NotNil(t, log)
	log.Infow("discarded", "key", "value")
	log.WithSession("user1:chart2").Debug("also discarded")
	assert.NoError(t, log.Sync())
}

func TestFileOutput_JSON(t *testing.T) {
	log, path := fileLogger(t, "json")

	log.Info("test info message")
	log.Warn("test warn message")
	log.WithSession("user9:chart4").Info("message with session context")

	content := readLog(t, log, path)
	assert.Contains(t, content, `"msg":"test info message"`)
	assert.Contains(t, content, `"level":"warn"`)
	assert.Contains(t, content, `"session":"user9:chart4"`)
}

func TestFileOutput_LevelFilter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warn.log")
	log, err := New(&config.LoggingConfig{Level: "warn", Format: "json", Output: path})
	require.NoError(t, err)

	log.Info("dropped")
	log.Warn("kept")

	content := readLog(t, log, path)
	assert.NotContains(t, content, "dropped")
	assert.Contains(t, content, "kept")
}

func TestContextHelpers(t *testing.T) {
	log, path := fileLogger(t, "json")

	tagged := log.WithSession("user1:chart1").WithScope("all").WithCategory("5_killed")
	assert.NotSame(t, log, tagged)
	tagged.Info("chained")
	log.WithFields(map[string]interface{}{"custom_field": "value", "number": 123}).Info("fields")

	content := readLog(t, log, path)
	assert.Contains(t, content, `"session":"user1:chart1"`)
	assert.Contains(t, content, `"scope":"all"`)
	assert.Contains(t, content, `"category":"5_killed"`)
	assert.Contains(t, content, `"custom_field":"value"`)
	assert.Contains(t, content, `"number":123`)
}

func TestContextHelpers_DoNotLeak(t *testing.T) {
	log, path := fileLogger(t, "json")

	_ = log.WithCategory("2_unaffected")
	log.Info("untagged")

	assert.NotContains(t, readLog(t, log, path), "2_unaffected")
}

func TestTextFormat(t *testing.T) {
	log, path := fileLogger(t, "text")
	log.WithScope("scope:42").Infow("binned", "claims", 3)

	content := readLog(t, log, path)
	assert.Contains(t, content, "binned")
	assert.Contains(t, content, "scope:42")
	assert.NotContains(t, content, `"msg"`)
}
