package ffmpeg

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/xob0t/musngr/pkg/media"
)

// Decoder converts any input ffmpeg can read into interleaved s16le PCM.
type Decoder struct {
	Path       string
	SampleRate int    // default: 48000
	Channels   int    // default: 2
	TempDir    string // inputs are staged on disk so seekable containers work
	Logger     hclog.Logger
}

// NewDecoder returns a 48 kHz stereo decoder using the given binary.
func NewDecoder(path string) *Decoder {
	return &Decoder{Path: path, SampleRate: 48000, Channels: 2}
}

func (d *Decoder) Decode(ctx context.Context, b media.Blob) (*media.DecodedAudio, error) {
	path := d.Path
	if path == "" {
		path = "ffmpeg"
	}
	rate := d.SampleRate
	if rate <= 0 {
		rate = 48000
	}
	channels := d.Channels
	if channels <= 0 {
		channels = 2
	}
	logger := d.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	in, err := os.CreateTemp(d.TempDir, "musngr-audio-*"+filepath.Ext(b.Name))
	if err != nil {
		return nil, fmt.Errorf("stage audio: %w", err)
	}
	defer os.Remove(in.Name())
	if _, err := in.Write(b.Data); err != nil {
		in.Close()
		return nil, fmt.Errorf("stage audio: %w", err)
	}
	if err := in.Close(); err != nil {
		return nil, fmt.Errorf("stage audio: %w", err)
	}

	cmd := exec.CommandContext(ctx, path,
		"-hide_banner",
		"-loglevel", "error",
		"-i", in.Name(),
		"-vn",
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(rate),
		"-ac", strconv.Itoa(channels),
		"pipe:1",
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("ffmpeg not found at %q: %w", path, err)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("ffmpeg decode %s: %w: %s", b.Name, err, strings.TrimSpace(stderr.String()))
	}
	if len(out) < 2*channels {
		return nil, fmt.Errorf("ffmpeg decode %s: no audio samples", b.Name)
	}

	samples := make([]int16, len(out)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(out[i*2:]))
	}
	logger.Debug("audio decoded", "name", b.Name, "bytes", len(out))

	return &media.DecodedAudio{SampleRate: rate, Channels: channels, Samples: samples}, nil
}
