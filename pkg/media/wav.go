package media

import (
	"bytes"
	"context"
	"fmt"

	"github.com/go-audio/wav"
)

// WAVDecoder decodes RIFF/WAVE PCM in process.
type WAVDecoder struct{}

func (WAVDecoder) Decode(_ context.Context, b Blob) (*DecodedAudio, error) {
	d := wav.NewDecoder(bytes.NewReader(b.Data))
	if !d.IsValidFile() {
		return nil, ErrUnsupportedAudio
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("read wav samples: %w", err)
	}
	if buf.Format == nil || buf.Format.NumChannels <= 0 || buf.Format.SampleRate <= 0 {
		return nil, fmt.Errorf("wav: missing format chunk")
	}

	depth := int(d.BitDepth)
	samples := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = toInt16(v, depth)
	}

	return &DecodedAudio{
		SampleRate: buf.Format.SampleRate,
		Channels:   buf.Format.NumChannels,
		Samples:    samples,
	}, nil
}

func toInt16(v, depth int) int16 {
	switch depth {
	case 8:
		return int16((v - 128) << 8)
	case 24:
		return int16(v >> 8)
	case 32:
		return int16(v >> 16)
	default:
		return int16(v)
	}
}
