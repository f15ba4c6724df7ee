package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xob0t/musngr/internal/config"
)

func TestNew_Level(t *testing.T) {
	var buf bytes.Buffer
	log := New(config.LoggingConfig{Level: "warn"}, &buf)

	log.Info("hidden")
	log.Warn("shown", "job_id", "abc")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "job_id=abc")
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	New(config.LoggingConfig{Level: "info", JSON: true}, &buf).Named("jobs").Info("queued", "queue", 3)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "musngr.jobs", entry["@module"])
	assert.Equal(t, "queued", entry["@message"])
	assert.EqualValues(t, 3, entry["queue"])
}
