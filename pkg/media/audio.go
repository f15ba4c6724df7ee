package media

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnsupportedAudio is returned by a decoder that does not understand the input.
var ErrUnsupportedAudio = errors.New("unsupported audio format")

// DecodedAudio is interleaved signed 16-bit PCM.
type DecodedAudio struct {
	SampleRate int
	Channels   int
	Samples    []int16
}

// Frames returns the number of sample frames (samples per channel).
func (a *DecodedAudio) Frames() int {
	if a.Channels <= 0 {
		return 0
	}
	return len(a.Samples) / a.Channels
}

// Duration is the playback length of the buffer.
func (a *DecodedAudio) Duration() time.Duration {
	if a.SampleRate <= 0 {
		return 0
	}
	return time.Duration(a.Frames()) * time.Second / time.Duration(a.SampleRate)
}

// FrameAt returns the sample frame index at offset d, clamped to the buffer.
func (a *DecodedAudio) FrameAt(d time.Duration) int {
	if d <= 0 || a.SampleRate <= 0 {
		return 0
	}
	n := int(int64(d) * int64(a.SampleRate) / int64(time.Second))
	return min(n, a.Frames())
}

// Slice returns the interleaved samples for frames [from, to).
func (a *DecodedAudio) Slice(from, to int) []int16 {
	return a.Samples[from*a.Channels : to*a.Channels]
}

// TimeOf is the presentation time of sample frame n.
func (a *DecodedAudio) TimeOf(n int) time.Duration {
	if a.SampleRate <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(a.SampleRate)
}

// AudioDecoder turns an encoded audio blob into PCM.
type AudioDecoder interface {
	Decode(ctx context.Context, b Blob) (*DecodedAudio, error)
}

// DecoderChain tries each decoder in order. A decoder that returns
// ErrUnsupportedAudio passes the input on; any other error is kept and
// reported if nothing succeeds.
type DecoderChain []AudioDecoder

func (c DecoderChain) Decode(ctx context.Context, b Blob) (*DecodedAudio, error) {
	var errs []string
	for _, d := range c {
		if d == nil {
			continue
		}
		a, err := d.Decode(ctx, b)
		if err == nil {
			return a, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !errors.Is(err, ErrUnsupportedAudio) {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) == 0 {
		return nil, fmt.Errorf("%s: %w", b.Name, ErrUnsupportedAudio)
	}
	return nil, fmt.Errorf("decode %s: %s", b.Name, strings.Join(errs, "; "))
}
