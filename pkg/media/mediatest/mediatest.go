// Package mediatest provides fixtures and a scriptable encoder host for tests.
package mediatest

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/xob0t/musngr/pkg/media"
)

// WAV returns a 16-bit PCM sine tone of length d.
func WAV(tb testing.TB, d time.Duration, sampleRate, channels int) media.Blob {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "tone.wav")
	f, err := os.Create(path)
	if err != nil {
		tb.Fatalf("create wav: %v", err)
	}

	frames := int(int64(d) * int64(sampleRate) / int64(time.Second))
	data := make([]int, frames*channels)
	for i := 0; i < frames; i++ {
		v := int(math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)) * 8000)
		for c := 0; c < channels; c++ {
			data[i*channels+c] = v
		}
	}

	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		tb.Fatalf("write wav: %v", err)
	}
	if err := enc.Close(); err != nil {
		tb.Fatalf("close wav: %v", err)
	}
	if err := f.Close(); err != nil {
		tb.Fatalf("close file: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		tb.Fatalf("read wav: %v", err)
	}
	return media.Blob{Name: "tone.wav", Type: "audio/wav", Data: raw}
}

// PNG returns a w×h image filled with c.
func PNG(tb testing.TB, w, h int, c color.Color) media.Blob {
	tb.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		tb.Fatalf("encode png: %v", err)
	}
	return media.Blob{Name: "image.png", Type: "image/png", Data: buf.Bytes()}
}

// Host is a scriptable media.Host. Formats listed in Supported (by their
// String form) are accepted; everything else is rejected.
type Host struct {
	Supported map[string]bool
	Default   media.Format
	// FailAfter makes encoders return an error on the n-th video write (1-based).
	FailAfter int
	// StartErr is returned from Encoder.Start.
	StartErr error
	// OnStart runs inside Encoder.Start, before it returns.
	OnStart func()

	mu       sync.Mutex
	queried  []string
	encoders []*Encoder
}

// NewHost accepts the given format strings.
func NewHost(supported ...string) *Host {
	h := &Host{Supported: make(map[string]bool)}
	for _, s := range supported {
		h.Supported[s] = true
	}
	return h
}

func (h *Host) Name() string { return "fake" }

func (h *Host) IsTypeSupported(f media.Format) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.queried = append(h.queried, f.String())
	return h.Supported[f.String()]
}

func (h *Host) DefaultFormat() media.Format { return h.Default }

func (h *Host) NewEncoder(f media.Format, cfg media.StreamConfig) (media.Encoder, error) {
	e := &Encoder{Format: f, Config: cfg, failAfter: h.FailAfter, startErr: h.StartErr, onStart: h.OnStart}
	h.mu.Lock()
	h.encoders = append(h.encoders, e)
	h.mu.Unlock()
	return e, nil
}

// Queried returns the formats asked about, in order.
func (h *Host) Queried() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.queried...)
}

// Encoders returns every encoder created so far.
func (h *Host) Encoders() []*Encoder {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*Encoder(nil), h.encoders...)
}

// ErrInjected is the failure produced by FailAfter.
var ErrInjected = errors.New("injected encoder failure")

// Encoder emits one numbered chunk per write so ordering can be asserted.
type Encoder struct {
	Format media.Format
	Config media.StreamConfig

	failAfter int
	startErr  error
	onStart   func()

	mu           sync.Mutex
	sink         media.ChunkFunc
	seq          int
	videoFrames  int
	audioSamples int
	lastVideoPTS time.Duration
	first        *image.RGBA
	started      bool
	stopped      bool
	aborted      bool
}

func (e *Encoder) Start(_ context.Context, sink media.ChunkFunc) error {
	if e.onStart != nil {
		e.onStart()
	}
	if e.startErr != nil {
		return e.startErr
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sink = sink
	e.started = true
	return nil
}

func (e *Encoder) emit(kind byte) {
	e.seq++
	e.sink([]byte{kind, byte(e.seq >> 8), byte(e.seq)})
}

func (e *Encoder) WriteVideo(frame *image.RGBA, pts time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.aborted || e.stopped {
		return errors.New("encoder closed")
	}
	e.videoFrames++
	if e.failAfter > 0 && e.videoFrames >= e.failAfter {
		return ErrInjected
	}
	if e.first == nil {
		e.first = image.NewRGBA(frame.Bounds())
		copy(e.first.Pix, frame.Pix)
	}
	e.lastVideoPTS = pts
	e.emit('v')
	return nil
}

func (e *Encoder) WriteAudio(samples []int16, _ time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.aborted || e.stopped {
		return errors.New("encoder closed")
	}
	e.audioSamples += len(samples)
	e.emit('a')
	return nil
}

func (e *Encoder) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.aborted {
		return errors.New("encoder aborted")
	}
	e.stopped = true
	e.emit('z')
	return nil
}

func (e *Encoder) Abort() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.aborted = true
}

// VideoFrames is the number of WriteVideo calls.
func (e *Encoder) VideoFrames() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.videoFrames
}

// AudioSamples is the number of interleaved samples received.
func (e *Encoder) AudioSamples() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.audioSamples
}

// FirstFrame is a copy of the first submitted surface.
func (e *Encoder) FirstFrame() *image.RGBA {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.first
}

// Aborted reports whether Abort was called.
func (e *Encoder) Aborted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.aborted
}

// Stopped reports whether Stop completed.
func (e *Encoder) Stopped() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopped
}
