package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 1920, cfg.Render.Width)
	assert.Equal(t, 10, cfg.Limits.QueueSize)
	assert.Equal(t, 15*time.Minute, cfg.Limits.Retention)
}

func TestLoad_SampleParses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "musngr.yaml")
	require.NoError(t, os.WriteFile(path, []byte(Sample), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	want := DefaultConfig()
	want.Fonts.Dirs = []string{}
	assert.Equal(t, want, cfg)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "musngr.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
render:
  encoder: avi
  drain_delay: 250ms
youtube:
  retry:
    max_retries: 7
`), 0o644))

	t.Setenv("MUSNGR_PORT", "9100")
	t.Setenv("MUSNGR_FORMATS", "video/webm;codecs=vp9,opus | video/mp4")
	t.Setenv("MUSNGR_LOG_JSON", "true")
	t.Setenv("MUSNGR_YOUTUBE_RPS", "2.5")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port, "environment wins over the file")
	assert.Equal(t, "avi", cfg.Render.Encoder)
	assert.Equal(t, 250*time.Millisecond, cfg.Render.DrainDelay)
	assert.Equal(t, []string{"video/webm;codecs=vp9,opus", "video/mp4"}, cfg.Render.Formats)
	assert.True(t, cfg.Logging.JSON)
	assert.Equal(t, 2.5, cfg.YouTube.RequestsPerSecond)
	assert.Equal(t, 7, cfg.YouTube.Retry.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.YouTube.Retry.MaxBackoff, "unset nested fields keep defaults")
}

func TestLoad_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "musngr.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"limits":{"queue_size":3}}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Limits.QueueSize)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	toml := filepath.Join(dir, "musngr.toml")
	require.NoError(t, os.WriteFile(toml, []byte("x=1"), 0o644))
	_, err = Load(toml)
	assert.ErrorContains(t, err, "unsupported config file format")

	t.Setenv("MUSNGR_PORT", "eighty")
	_, err = Load("")
	assert.ErrorContains(t, err, "MUSNGR_PORT")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port", func(c *Config) { c.Server.Port = 0 }},
		{"odd width", func(c *Config) { c.Render.Width = 1921 }},
		{"frame rate", func(c *Config) { c.Render.FrameRate = 0 }},
		{"encoder", func(c *Config) { c.Render.Encoder = "gstreamer" }},
		{"quality", func(c *Config) { c.Render.JPEGQuality = 101 }},
		{"queue", func(c *Config) { c.Limits.QueueSize = 0 }},
		{"retention", func(c *Config) { c.Limits.Retention = 0 }},
		{"backoff", func(c *Config) { c.YouTube.Retry.MaxBackoff = time.Millisecond }},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "musngr.yaml")
	cfg := DefaultConfig()
	cfg.Fonts.Dirs = []string{"/usr/share/fonts"}
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestYouTubeConfigured(t *testing.T) {
	assert.False(t, YouTubeConfig{}.Configured())
	assert.True(t, YouTubeConfig{ClientID: "id", RefreshToken: "rt"}.Configured())
}
