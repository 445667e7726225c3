package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/alecthomas/assert/v2"
)

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Level: slog.LevelInfo, Format: FormatJSON, Output: &buf})
	log.Info("Change state", "node", "sink")
	log.Debug("hidden")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	assert.Equal(t, 1, len(lines))

	var entry map[string]any
	assert.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "Change state", entry["message"])
	assert.Equal(t, "sink", entry["node"])
}

func TestTextOutput(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Level: slog.LevelDebug, Format: FormatText, Output: &buf})
	log.Debug("Committed checkpoint", "node", "sink")
	assert.Contains(t, buf.String(), "Committed checkpoint")
	assert.Contains(t, buf.String(), "node=sink")
}

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel("warn")
	assert.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, l)
	_, err = ParseLevel("loud")
	assert.Error(t, err)
}
