// Package avi is a pure Go encoder host producing Motion JPEG video with 16-bit
// PCM audio in an AVI container. It needs no external binaries, so it is always
// available as the last resort of codec negotiation.
package avi

import (
	"slices"

	"github.com/xob0t/musngr/pkg/media"
)

// DefaultFormat is the only codec pairing this host produces.
var DefaultFormat = media.Format{Container: "video/avi", Codecs: []string{"mjpeg", "pcm"}}

// Options tune the encoder.
type Options struct {
	Quality int    // JPEG quality 1-100 (default: 90)
	TempDir string // spill directory for the movi payload (default: os.TempDir)
}

// Host implements media.Host.
type Host struct {
	opts Options
}

// NewHost creates an AVI host.
func NewHost(opts Options) *Host {
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = 90
	}
	return &Host{opts: opts}
}

func (h *Host) Name() string { return "avi" }

// IsTypeSupported accepts video/avi and video/x-msvideo with codecs drawn from
// {mjpeg, pcm}.
func (h *Host) IsTypeSupported(f media.Format) bool {
	if f.Container != "video/avi" && f.Container != "video/x-msvideo" {
		return false
	}
	for _, c := range f.Codecs {
		if !slices.Contains([]string{"mjpeg", "pcm"}, media.CanonicalCodec(c)) {
			return false
		}
	}
	return true
}

func (h *Host) DefaultFormat() media.Format { return DefaultFormat }

func (h *Host) NewEncoder(f media.Format, cfg media.StreamConfig) (media.Encoder, error) {
	if !h.IsTypeSupported(f) {
		return nil, media.ErrUnsupportedCodec
	}
	return newEncoder(cfg, h.opts), nil
}
