package main

import (
	"bytes"
	"flag"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xob0t/musngr/pkg/background"
	"github.com/xob0t/musngr/pkg/youtube"
)

func TestOutputPath(t *testing.T) {
	tests := []struct {
		output, audio, typ, want string
	}{
		{"", "song.mp3", "video/webm;codecs=vp9,opus", "song.webm"},
		{"clip", "song.mp3", "video/avi;codecs=mjpeg,pcm", "clip.avi"},
		{"clip.mkv", "song.mp3", "video/webm", "clip.mkv"},
		{"", "noext", "video/mp4", "noext.mp4"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, outputPath(tt.output, tt.audio, tt.typ))
	}
}

func TestProgressBar(t *testing.T) {
	var buf bytes.Buffer
	bar := progressBar(&buf)
	bar(0)
	bar(0.001) // same percentage, no redraw
	bar(0.5)
	bar(1)

	frames := strings.Split(strings.TrimPrefix(buf.String(), "\r"), "\r")
	require.Len(t, frames, 3)
	assert.Equal(t, "[--------------------]   0%", frames[0])
	assert.Equal(t, "[##########----------]  50%", frames[1])
	assert.Equal(t, "[####################] 100%", frames[2])
}

func parseSpecFlags(t *testing.T, args ...string) (background.Spec, error) {
	t.Helper()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var s specFlags
	s.register(fs)
	require.NoError(t, fs.Parse(args))
	return s.spec(fs)
}

func TestSpecFlags_Defaults(t *testing.T) {
	spec, err := parseSpecFlags(t)
	require.NoError(t, err)
	assert.Equal(t, background.Defaults(), spec)
}

func TestSpecFlags_Overrides(t *testing.T) {
	spec, err := parseSpecFlags(t, "-text", "Hi", "-style", "Gradient-Blue", "-align", "top", "-res", "720p", "-size", "36")
	require.NoError(t, err)
	assert.Equal(t, "Hi", spec.Text)
	assert.Equal(t, background.StyleGradientBlue, spec.Style)
	assert.Equal(t, background.AlignTop, spec.Alignment)
	assert.Equal(t, 1280, spec.Width)
	assert.Equal(t, 720, spec.Height)
	assert.Equal(t, 36, spec.FontSizePt)
}

func TestSpecFlags_FileThenFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bg.yaml")
	require.NoError(t, os.WriteFile(path, []byte(background.ExampleYAML), 0o644))

	spec, err := parseSpecFlags(t, "-spec", path, "-font", "courier")
	require.NoError(t, err)
	assert.Equal(t, "Artist - Title", spec.Text, "from the file")
	assert.Equal(t, background.FontCourier, spec.Font, "flag wins")
	assert.Equal(t, background.AlignMiddle, spec.Alignment)
}

func TestSpecFlags_Errors(t *testing.T) {
	_, err := parseSpecFlags(t, "-style", "plaid", "-res", "big", "-size", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "plaid")
	assert.Contains(t, err.Error(), "big")
	assert.Contains(t, err.Error(), "font size")
}

func TestMetadataFlags(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	var m metadataFlags
	m.register(fs)
	require.NoError(t, fs.Parse([]string{"-tags", "rock, live,,", "-privacy", "Unlisted", "-notify"}))

	md := m.metadata("Suggested", "Described")
	assert.Equal(t, "Suggested", md.Title)
	assert.Equal(t, "Described", md.Description)
	assert.Equal(t, []string{"rock", "live"}, md.Tags)
	assert.Equal(t, youtube.PrivacyUnlisted, md.Privacy)
	assert.True(t, md.NotifySubscribers)
	assert.True(t, md.Embeddable)
	require.NoError(t, md.Validate())

	thumb, err := m.thumbnailBlob()
	require.NoError(t, err)
	assert.Nil(t, thumb)
}
