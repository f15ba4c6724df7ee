// Package ffmpeg drives an ffmpeg binary as a streaming encoder host and as an
// audio decoder. Raw RGBA frames go in on stdin, PCM on an extra pipe, and the
// muxed container comes back on stdout.
package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/xob0t/musngr/pkg/media"
)

// Options configure the host.
type Options struct {
	Path         string        // ffmpeg binary (default: "ffmpeg")
	ProbeTimeout time.Duration // capability probe timeout (default: 10s)
	VideoBitrate string        // for bitrate-driven codecs (default: "4M")
	AudioBitrate string        // (default: "192k")
	Logger       hclog.Logger
}

type container struct {
	muxer string
	args  []string
	video []string // allowed video codecs, preferred first
	audio []string // allowed audio codecs, preferred first
}

var containers = map[string]container{
	"video/webm": {
		muxer: "webm",
		video: []string{"vp8", "vp9", "av1"},
		audio: []string{"opus", "vorbis"},
	},
	"video/mp4": {
		muxer: "mp4",
		args:  []string{"-movflags", "frag_keyframe+empty_moov+default_base_moof"},
		video: []string{"h264", "hevc", "av1", "vp9"},
		audio: []string{"aac", "opus"},
	},
	"video/x-matroska": {
		muxer: "matroska",
		video: []string{"h264", "vp9", "vp8", "av1", "hevc", "mjpeg"},
		audio: []string{"opus", "aac", "vorbis", "pcm"},
	},
	"video/avi": {
		muxer: "avi",
		video: []string{"mjpeg", "h264"},
		audio: []string{"pcm", "aac"},
	},
}

type codec struct {
	encoder string
	args    []string
}

var codecs = map[string]codec{
	"vp9":    {"libvpx-vp9", []string{"-deadline", "realtime", "-cpu-used", "8", "-row-mt", "1"}},
	"vp8":    {"libvpx", []string{"-deadline", "realtime", "-cpu-used", "8"}},
	"av1":    {"libaom-av1", []string{"-usage", "realtime", "-cpu-used", "8"}},
	"h264":   {"libx264", []string{"-preset", "veryfast", "-tune", "stillimage"}},
	"hevc":   {"libx265", []string{"-preset", "veryfast"}},
	"mjpeg":  {"mjpeg", []string{"-q:v", "3"}},
	"opus":   {"libopus", []string{"-ar", "48000"}},
	"vorbis": {"libvorbis", []string{"-q:a", "5"}},
	"aac":    {"aac", nil},
	"pcm":    {"pcm_s16le", nil},
}

var defaultOrder = []string{"video/webm", "video/mp4", "video/x-matroska", "video/avi"}

// Host implements media.Host on top of an ffmpeg binary.
type Host struct {
	opts   Options
	logger hclog.Logger

	once     sync.Once
	encoders map[string]bool
	probeErr error
}

// NewHost creates a host. The binary is probed lazily on the first capability query.
func NewHost(opts Options) *Host {
	if opts.Path == "" {
		opts.Path = "ffmpeg"
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 10 * time.Second
	}
	if opts.VideoBitrate == "" {
		opts.VideoBitrate = "4M"
	}
	if opts.AudioBitrate == "" {
		opts.AudioBitrate = "192k"
	}
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Host{opts: opts, logger: logger}
}

func (h *Host) Name() string { return "ffmpeg" }

// Available reports whether the binary ran and listed its encoders.
func (h *Host) Available() bool {
	return h.probe() == nil
}

// Encoders returns the set of encoder names the binary reported.
func (h *Host) Encoders() map[string]bool {
	h.probe()
	return h.encoders
}

func (h *Host) probe() error {
	h.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.opts.ProbeTimeout)
		defer cancel()

		out, err := exec.CommandContext(ctx, h.opts.Path, "-hide_banner", "-encoders").Output()
		if err != nil {
			h.probeErr = fmt.Errorf("probe %s: %w", h.opts.Path, err)
			h.encoders = map[string]bool{}
			h.logger.Warn("ffmpeg unavailable", "path", h.opts.Path, "error", err)
			return
		}
		h.encoders = parseEncoders(out)
		h.logger.Debug("ffmpeg probed", "path", h.opts.Path, "encoders", len(h.encoders))
	})
	return h.probeErr
}

// parseEncoders reads the table printed by "ffmpeg -encoders":
//
//	V....D libvpx-vp9           libvpx VP9 (codec vp9)
func parseEncoders(out []byte) map[string]bool {
	found := make(map[string]bool)
	sc := bufio.NewScanner(bytes.NewReader(out))
	inTable := false
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "------") {
			inTable = true
			continue
		}
		if !inTable {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) >= 2 && len(fields[0]) == 6 {
			found[fields[1]] = true
		}
	}
	return found
}

// resolve picks the concrete video and audio codecs for f, or reports false.
func (h *Host) resolve(f media.Format) (c container, video, audio string, ok bool) {
	if h.probe() != nil {
		return container{}, "", "", false
	}
	c, ok = containers[canonicalContainer(f.Container)]
	if !ok {
		return container{}, "", "", false
	}

	for _, name := range f.Codecs {
		name = media.CanonicalCodec(name)
		switch {
		case slices.Contains(c.video, name) && video == "":
			video = name
		case slices.Contains(c.audio, name) && audio == "":
			audio = name
		default:
			return container{}, "", "", false
		}
		if !h.encoders[codecs[name].encoder] {
			return container{}, "", "", false
		}
	}

	if video == "" {
		video = h.firstAvailable(c.video)
	}
	if audio == "" {
		audio = h.firstAvailable(c.audio)
	}
	return c, video, audio, video != "" && audio != ""
}

func (h *Host) firstAvailable(names []string) string {
	for _, n := range names {
		if h.encoders[codecs[n].encoder] {
			return n
		}
	}
	return ""
}

func (h *Host) IsTypeSupported(f media.Format) bool {
	_, _, _, ok := h.resolve(f)
	return ok
}

// DefaultFormat is the first container in webm, mp4, matroska, avi order that
// has a usable codec pair.
func (h *Host) DefaultFormat() media.Format {
	for _, ct := range defaultOrder {
		f := media.Format{Container: ct}
		if _, v, a, ok := h.resolve(f); ok {
			f.Codecs = []string{v, a}
			return f
		}
	}
	return media.Format{}
}

func (h *Host) NewEncoder(f media.Format, cfg media.StreamConfig) (media.Encoder, error) {
	c, video, audio, ok := h.resolve(f)
	if !ok {
		if err := h.probe(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w", f, media.ErrUnsupportedCodec)
	}
	return &encoder{
		path:   h.opts.Path,
		args:   h.encodeArgs(c, video, audio, cfg),
		cfg:    cfg,
		pacer:  media.NewFramePacer(cfg.FrameRate),
		logger: h.logger.Named("encoder"),
	}, nil
}

func (h *Host) encodeArgs(c container, video, audio string, cfg media.StreamConfig) []string {
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "rawvideo", "-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"-framerate", fmt.Sprint(max(cfg.FrameRate, 1)),
		"-thread_queue_size", "512",
		"-i", "pipe:0",
	}
	if cfg.HasAudio() {
		args = append(args,
			"-f", "s16le",
			"-ar", fmt.Sprint(cfg.SampleRate),
			"-ac", fmt.Sprint(cfg.Channels),
			"-thread_queue_size", "512",
			"-i", "pipe:3",
		)
	}

	args = append(args, "-map", "0:v")
	vc := codecs[video]
	args = append(args, "-c:v", vc.encoder)
	args = append(args, vc.args...)
	if video != "mjpeg" {
		args = append(args, "-pix_fmt", "yuv420p", "-b:v", h.opts.VideoBitrate)
	}

	if cfg.HasAudio() {
		args = append(args, "-map", "1:a")
		ac := codecs[audio]
		args = append(args, "-c:a", ac.encoder)
		args = append(args, ac.args...)
		if audio != "pcm" {
			args = append(args, "-b:a", h.opts.AudioBitrate)
		}
	}

	args = append(args, c.args...)
	args = append(args, "-f", c.muxer, "pipe:1")
	return args
}

func canonicalContainer(ct string) string {
	switch ct {
	case "video/x-msvideo":
		return "video/avi"
	case "video/matroska", "video/mkv":
		return "video/x-matroska"
	}
	return ct
}
