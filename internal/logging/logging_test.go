package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriterJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWithWriter(Config{Format: "json"}, &buf)
	log.Info().Str("symbol", "BTCUSDT").Msg("tick")

	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	assert.Equal(t, "info", m["level"])
	assert.Equal(t, "BTCUSDT", m["symbol"])
	assert.Equal(t, "tick", m["message"])
	assert.Contains(t, m, "time")
}

func TestNewLevelAndFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bot.log")
	log, closer, err := New(Config{Level: "warn", Format: "json", Output: path})
	require.NoError(t, err)

	log.Info().Msg("dropped")
	log.Warn().Msg("kept")
	require.NoError(t, closer.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "dropped")
	assert.Contains(t, string(b), "kept")
	assert.Equal(t, zerolog.WarnLevel, log.GetLevel())
}

func TestNewBadLevel(t *testing.T) {
	t.Parallel()

	_, _, err := New(Config{Level: "loud"})
	assert.ErrorContains(t, err, "invalid log level")
}
