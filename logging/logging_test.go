package logging_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romshark/hwsim-medium/config"
	"github.com/romshark/hwsim-medium/logging"
)

func TestFileOutputJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "medium.log")
	logger, err := logging.Setup(config.Log{
		Level:   "warn",
		Format:  "json",
		Outputs: []string{path},
	})
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("queue full")
	require.NoError(t, logger.Sync())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(b, &entry))
	assert.Equal(t, "queue full", entry["msg"])
	assert.Equal(t, "warn", entry["level"])
}

func TestRotatedOutput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rotated.log")
	logger, err := logging.Setup(config.Log{
		Level:   "debug",
		Format:  "console",
		Outputs: []string{filepath.Join(dir, "ignored.log")},
		Rotation: config.Rotation{
			Enable:   true,
			Filename: path,
		},
	})
	require.NoError(t, err)
	logger.Debug("radio registered")
	require.NoError(t, logger.Sync())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "radio registered")
	assert.Contains(t, string(b), "DEBUG")
}

func TestInvalid(t *testing.T) {
	_, err := logging.Setup(config.Log{Level: "loud"})
	require.Error(t, err)
	_, err = logging.Setup(config.Log{Level: "info", Format: "xml"})
	require.Error(t, err)
}
