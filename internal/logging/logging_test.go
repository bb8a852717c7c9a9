package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigureJSON(t *testing.T) {
	var buf bytes.Buffer
	Configure(&buf, "debug", "json")
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	LogPress("p-1", 2, "ping-1", "Ping")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "key_pressed", entry["event"])
	assert.Equal(t, "p-1", entry["press_id"])
	assert.Equal(t, float64(2), entry["key"])
	assert.Equal(t, "Ping", entry["action_name"])
}

func TestLogOutcomeError(t *testing.T) {
	var buf bytes.Buffer
	Configure(&buf, "info", "json")

	LogOutcome("p-2", 0, "Ping", "failed", errors.New("boom"), time.Millisecond)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, "failed", entry["outcome"])
}

func TestConfigureUnknownLevel(t *testing.T) {
	var buf bytes.Buffer
	Configure(&buf, "loud", "json")

	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
	assert.Contains(t, buf.String(), "unknown log level")
}
