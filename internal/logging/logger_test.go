package logging_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docscan/internal/config"
	"docscan/internal/logging"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, logging.ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, logging.ParseLevel("WARN"))
	assert.Equal(t, slog.LevelError, logging.ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, logging.ParseLevel("bogus"))
}

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := logging.NewWithWriter(&config.LogConfig{Level: "info", Format: "json"}, &buf)

	log.Debug("hidden")
	log.Info("processed", "status", "SUCCESS")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "processed", rec["msg"])
	assert.Equal(t, "SUCCESS", rec["status"])
}

func TestNewWithWriter_Text(t *testing.T) {
	var buf bytes.Buffer
	log := logging.NewWithWriter(&config.LogConfig{Level: "debug", Format: "text"}, &buf)

	log.Debug("transition", "state", "RECOGNIZE")
	assert.Contains(t, buf.String(), "state=RECOGNIZE")
}
