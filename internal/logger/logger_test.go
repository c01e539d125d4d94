package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akave-ai/gameevents/internal/config"
)

func TestNewWithWriter_JSON(t *testing.T) {
	cfg := config.DefaultObservabilityConfig()
	cfg.Logging.Level = "warn"
	var buf bytes.Buffer

	log := NewWithWriter(cfg, &buf)
	log.Info().Msg("dropped")
	log.Warn().Str("event_id", "abc").Msg("kept")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "kept", line["message"])
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, "gameevents", line["service"])
	assert.Equal(t, "abc", line["event_id"])
}

func TestNewWithWriter_Console(t *testing.T) {
	cfg := config.DefaultObservabilityConfig()
	cfg.Logging.Format = "console"
	var buf bytes.Buffer

	log := NewWithWriter(cfg, &buf)
	log.Info().Msg("hello")

	assert.Contains(t, buf.String(), "hello")
	assert.NotContains(t, buf.String(), `"message"`)
}
