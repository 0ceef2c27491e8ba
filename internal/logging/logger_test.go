package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubilitics/kubilitics-metrics/internal/config"
)

func TestNewWritesJSONToRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.log")
	cfg := config.DefaultConfig().Logging
	cfg.File = path

	logger, err := New(cfg)
	require.NoError(t, err)

	logger.Named("collector").Info("collection complete")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	line := strings.TrimSpace(string(data))
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "collector", entry["logger"])
	assert.Equal(t, "collection complete", entry["message"])
	assert.Contains(t, entry, "timestamp")
}

func TestNewFiltersBelowLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.log")
	cfg := config.DefaultConfig().Logging
	cfg.File = path
	cfg.Level = "warn"

	logger, err := New(cfg)
	require.NoError(t, err)
	logger.Info("dropped")
	logger.Warn("kept")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "dropped")
	assert.Contains(t, string(data), "kept")
}

func TestNewRejectsBadLevel(t *testing.T) {
	cfg := config.DefaultConfig().Logging
	cfg.Level = "verbose"
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
}
