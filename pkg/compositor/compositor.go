// Package compositor turns one audio track and one still image into a video.
//
// A Compositor owns a drawing surface and at most one EncodingSession. Compose
// decodes both inputs, negotiates a container with the encoder host, then runs
// a frame loop on the wall clock: each tick redraws the surface (black fill,
// aspect-fit image, progress overlay), hands the frame and the PCM due so far
// to the encoder, and reports progress. The run lasts as long as the audio.
package compositor

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/xob0t/musngr/pkg/media"
)

// ProgressFunc receives progress in [0, 1]. It is called synchronously from
// the frame loop, once per frame.
type ProgressFunc func(progress float64)

// Options configure a Compositor.
type Options struct {
	Width       int            // surface width (default: 1920)
	Height      int            // surface height (default: 1080)
	FrameRate   int            // frames per second (default: 30)
	DrainDelay  time.Duration  // pause between the last frame and stop (default: 100ms)
	Preferences []media.Format // codec fallback order (default: media.DefaultPreferences)
	MaxDuration time.Duration  // longest accepted track; zero means unlimited
	Logger      hclog.Logger
}

func (o *Options) setDefaults() {
	if o.Width <= 0 {
		o.Width = 1920
	}
	if o.Height <= 0 {
		o.Height = 1080
	}
	if o.FrameRate <= 0 {
		o.FrameRate = 30
	}
	if o.DrainDelay <= 0 {
		o.DrainDelay = 100 * time.Millisecond
	}
	if len(o.Preferences) == 0 {
		o.Preferences = media.DefaultPreferences
	}
	if o.Logger == nil {
		o.Logger = hclog.NewNullLogger()
	}
}

// Compositor merges audio and an image into a video artifact. One Compose may
// run at a time; a concurrent call fails with ErrBusy.
type Compositor struct {
	host    media.Host
	decoder media.AudioDecoder
	opts    Options
	logger  hclog.Logger
	surface *image.RGBA

	mu      sync.Mutex
	busy    bool
	session *EncodingSession
	format  media.Format

	// stopping records a Cleanup that arrived before the session was live.
	stopping bool
}

// New creates a Compositor drawing into a surface of the configured size.
func New(host media.Host, decoder media.AudioDecoder, opts Options) *Compositor {
	opts.setDefaults()
	return &Compositor{
		host:    host,
		decoder: decoder,
		opts:    opts,
		logger:  opts.Logger,
		surface: image.NewRGBA(image.Rect(0, 0, opts.Width, opts.Height)),
	}
}

// Active reports whether a compose is in flight.
func (c *Compositor) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// Format returns the format negotiated by the most recent compose.
func (c *Compositor) Format() media.Format {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.format
}

// Negotiate resolves the preference list against the host without starting anything.
func (c *Compositor) Negotiate() (media.Format, error) {
	f, err := media.Negotiate(c.host, c.opts.Preferences)
	if err != nil {
		return media.Format{}, &UnsupportedCodecError{Tried: c.opts.Preferences}
	}
	return f, nil
}

// Cleanup force-stops the active session, if any. The in-flight Compose then
// returns ErrSessionClosed. Safe to call at any time, any number of times.
func (c *Compositor) Cleanup() {
	c.mu.Lock()
	s := c.session
	if c.busy && s == nil {
		c.stopping = true
	}
	c.mu.Unlock()

	if s != nil {
		s.ForceStop()
		c.logger.Debug("session force-stopped")
	}
}

func (c *Compositor) acquire() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return false
	}
	c.busy = true
	c.stopping = false
	return true
}

func (c *Compositor) release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy = false
	c.stopping = false
	c.session = nil
}

// Compose renders image over the full length of audio and returns the
// encoded video. onProgress may be nil.
func (c *Compositor) Compose(ctx context.Context, audio, img media.Blob, onProgress ProgressFunc) (*media.Blob, error) {
	if !c.acquire() {
		return nil, ErrBusy
	}
	defer c.release()

	src, _, err := media.DecodeImage(img.Data)
	if err != nil {
		return nil, &ImageDecodeError{Name: img.Name, Err: err}
	}

	pcm, err := c.decoder.Decode(ctx, audio)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &AudioDecodeError{Name: audio.Name, Err: err}
	}
	duration := pcm.Duration()
	if c.opts.MaxDuration > 0 && duration > c.opts.MaxDuration {
		return nil, &AudioDecodeError{
			Name: audio.Name,
			Err:  fmt.Errorf("track is %s long, limit is %s", duration.Round(time.Second), c.opts.MaxDuration),
		}
	}

	format, err := c.Negotiate()
	if err != nil {
		return nil, err
	}

	enc, err := c.host.NewEncoder(format, media.StreamConfig{
		Width:      c.opts.Width,
		Height:     c.opts.Height,
		FrameRate:  c.opts.FrameRate,
		SampleRate: pcm.SampleRate,
		Channels:   pcm.Channels,
	})
	if err != nil {
		return nil, &EncodingError{Op: "open", Err: err}
	}

	session := NewEncodingSession(format, enc)
	c.mu.Lock()
	c.format = format
	c.mu.Unlock()

	logger := c.logger.With("format", format.String())
	logger.Info("compose started",
		"audio", audio.Name,
		"image", img.Name,
		"duration", duration,
		"host", c.host.Name(),
	)

	if err := session.Start(ctx); err != nil {
		return nil, err
	}

	// Publish only a recording session so Cleanup never hits an inactive one.
	c.mu.Lock()
	stopping := c.stopping
	if !stopping {
		c.session = session
	}
	c.mu.Unlock()
	if stopping {
		session.ForceStop()
		logger.Info("compose canceled before the first frame")
		return nil, ErrSessionClosed
	}

	plate := newPlate(c.surface.Bounds(), src)
	if err := c.run(ctx, session, plate, pcm, onProgress); err != nil {
		session.ForceStop()
		logger.Warn("compose aborted", "error", err)
		return nil, err
	}

	artifact, err := session.Stop()
	if err != nil {
		return nil, err
	}
	logger.Info("compose finished", "bytes", artifact.Size(), "chunks", session.Chunks())
	return artifact, nil
}

// run is the frame loop. It returns once the final frame has been written and
// the drain delay has passed.
func (c *Compositor) run(ctx context.Context, s *EncodingSession, plate *image.RGBA, pcm *media.DecodedAudio, onProgress ProgressFunc) error {
	duration := pcm.Duration()
	ticker := time.NewTicker(time.Second / time.Duration(c.opts.FrameRate))
	defer ticker.Stop()

	start := time.Now()
	written := 0
	for {
		elapsed := time.Since(start)
		progress := Progress(elapsed, duration)

		due := pcm.FrameAt(elapsed)
		if progress >= 1 {
			due = pcm.Frames()
		}
		if due > written {
			if err := s.WriteAudio(pcm.Slice(written, due), pcm.TimeOf(written)); err != nil {
				return err
			}
			written = due
		}

		copy(c.surface.Pix, plate.Pix)
		DrawOverlay(c.surface, progress)
		if err := s.WriteVideo(c.surface, elapsed); err != nil {
			return err
		}

		if onProgress != nil {
			onProgress(progress)
		}
		if progress >= 1 {
			break
		}

		select {
		case <-ticker.C:
		case <-s.Done():
			return ErrSessionClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	select {
	case <-time.After(c.opts.DrainDelay):
		return nil
	case <-s.Done():
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}
