package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xob0t/musngr/internal/config"
	"github.com/xob0t/musngr/pkg/media"
)

func testConfig(t *testing.T) *config.Config {
	cfg := config.DefaultConfig()
	cfg.FFmpeg.Path = filepath.Join(t.TempDir(), "no-such-ffmpeg")
	return cfg
}

func TestNew_AutoFallsBackToAVI(t *testing.T) {
	a, err := New(context.Background(), testConfig(t), nil)
	require.NoError(t, err)

	assert.Equal(t, "avi", a.Host.Name())
	assert.Len(t, a.Decoder, 1, "only the WAV decoder without ffmpeg")
	assert.Nil(t, a.Uploader)
	assert.False(t, a.Jobs.CanUpload())

	f, err := a.Compositor.Negotiate()
	require.NoError(t, err)
	assert.Equal(t, "video/avi", f.Container)
}

func TestNew_FFmpegRequired(t *testing.T) {
	cfg := testConfig(t)
	cfg.Render.Encoder = "ffmpeg"
	_, err := New(context.Background(), cfg, nil)
	assert.ErrorContains(t, err, "not usable")
}

func TestNew_BadFormats(t *testing.T) {
	cfg := testConfig(t)
	cfg.Render.Formats = []string{"webm"}
	_, err := New(context.Background(), cfg, nil)
	assert.ErrorContains(t, err, "render formats")
}

func TestNew_Uploader(t *testing.T) {
	cfg := testConfig(t)
	cfg.Render.Encoder = "avi"
	cfg.YouTube.ClientID = "id"
	cfg.YouTube.ClientSecret = "secret"
	cfg.YouTube.RefreshToken = "token"

	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.NotNil(t, a.Uploader)
	assert.True(t, a.Jobs.CanUpload())
}

func TestNew_CustomFormats(t *testing.T) {
	cfg := testConfig(t)
	cfg.Render.Formats = []string{"video/webm;codecs=vp9,opus", "video/avi;codecs=mjpeg,pcm"}

	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	f, err := a.Compositor.Negotiate()
	require.NoError(t, err)
	assert.Equal(t, media.MustParseFormat("video/avi;codecs=mjpeg,pcm"), f)
}
