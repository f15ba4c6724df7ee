package media

import (
	"context"
	"image"
	"time"
)

// StreamConfig describes the combined audio+video stream an encoder receives.
type StreamConfig struct {
	Width      int
	Height     int
	FrameRate  int
	SampleRate int // 0 disables the audio track
	Channels   int
}

// HasAudio reports whether the stream carries an audio track.
func (c StreamConfig) HasAudio() bool {
	return c.SampleRate > 0 && c.Channels > 0
}

// ChunkFunc receives encoded container bytes in emission order. The slice is
// owned by the receiver.
type ChunkFunc func(chunk []byte)

// Encoder is a real-time streaming encoder fed with timestamped frames and
// interleaved PCM. Implementations must tolerate Abort being called from
// another goroutine while a Write is in progress.
type Encoder interface {
	// Start begins the session. Chunks are delivered to sink until Stop returns.
	Start(ctx context.Context, sink ChunkFunc) error
	// WriteVideo submits the surface as it looks at pts. The frame is copied.
	WriteVideo(frame *image.RGBA, pts time.Duration) error
	// WriteAudio submits interleaved signed 16-bit samples starting at pts.
	WriteAudio(samples []int16, pts time.Duration) error
	// Stop flushes the encoder; every remaining chunk reaches the sink before it returns.
	Stop() error
	// Abort discards the session. Idempotent.
	Abort()
}

// Host is an encoding environment: a capability query plus an encoder factory.
type Host interface {
	CapabilityQuery
	Name() string
	NewEncoder(f Format, cfg StreamConfig) (Encoder, error)
}
