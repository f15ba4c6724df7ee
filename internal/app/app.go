// Package app assembles the components a command or server needs from a
// loaded configuration.
package app

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/xob0t/musngr/internal/config"
	"github.com/xob0t/musngr/internal/jobs"
	"github.com/xob0t/musngr/pkg/background"
	"github.com/xob0t/musngr/pkg/compositor"
	"github.com/xob0t/musngr/pkg/media"
	"github.com/xob0t/musngr/pkg/media/avi"
	"github.com/xob0t/musngr/pkg/media/ffmpeg"
	"github.com/xob0t/musngr/pkg/youtube"
)

// App holds the wired components.
type App struct {
	Config     *config.Config
	Logger     hclog.Logger
	FFmpeg     *ffmpeg.Host
	Host       media.Host
	Decoder    media.AudioDecoder
	Compositor *compositor.Compositor
	Generator  *background.Generator
	Uploader   youtube.Uploader // nil when no credentials are configured
	Jobs       *jobs.Manager
}

// New builds an App. The job manager is created but not started.
func New(ctx context.Context, cfg *config.Config, logger hclog.Logger) (*App, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	ff := ffmpeg.NewHost(ffmpeg.Options{
		Path:         cfg.FFmpeg.Path,
		ProbeTimeout: cfg.FFmpeg.ProbeTimeout,
		VideoBitrate: cfg.FFmpeg.VideoBitrate,
		AudioBitrate: cfg.FFmpeg.AudioBitrate,
		Logger:       logger.Named("ffmpeg"),
	})

	host, err := selectHost(cfg, ff, logger)
	if err != nil {
		return nil, err
	}

	decoders := media.DecoderChain{media.WAVDecoder{}}
	if ff.Available() {
		dec := ffmpeg.NewDecoder(cfg.FFmpeg.Path)
		dec.TempDir = cfg.Render.TempDir
		dec.Logger = logger.Named("ffmpeg")
		decoders = append(decoders, dec)
	}

	prefs := media.DefaultPreferences
	if len(cfg.Render.Formats) > 0 {
		if prefs, err = media.ParseFormats(cfg.Render.Formats); err != nil {
			return nil, fmt.Errorf("render formats: %w", err)
		}
	}

	comp := compositor.New(host, decoders, compositor.Options{
		Width:       cfg.Render.Width,
		Height:      cfg.Render.Height,
		FrameRate:   cfg.Render.FrameRate,
		DrainDelay:  cfg.Render.DrainDelay,
		Preferences: prefs,
		MaxDuration: cfg.Limits.MaxAudioDuration,
		Logger:      logger.Named("compositor"),
	})

	gen := background.NewGenerator(
		background.NewFontManager(logger.Named("fonts"), cfg.Fonts.Dirs...),
		logger.Named("background"),
	)

	var uploader youtube.Uploader
	if cfg.YouTube.Configured() {
		up, err := youtube.NewAPIUploader(ctx, youtube.Options{
			ClientID:          cfg.YouTube.ClientID,
			ClientSecret:      cfg.YouTube.ClientSecret,
			RefreshToken:      cfg.YouTube.RefreshToken,
			RequestsPerSecond: cfg.YouTube.RequestsPerSecond,
			Retry:             cfg.YouTube.Retry,
			Logger:            logger.Named("youtube"),
		})
		if err != nil {
			return nil, fmt.Errorf("youtube: %w", err)
		}
		uploader = up
	}

	mgr := jobs.NewManager(comp, jobs.Options{
		QueueSize: cfg.Limits.QueueSize,
		Retention: cfg.Limits.Retention,
		Uploader:  uploader,
		Notifier:  jobs.LogNotifier{Logger: logger.Named("notify")},
		Logger:    logger.Named("jobs"),
	})

	logger.Debug("components ready", "host", host.Name(), "decoders", len(decoders), "upload", uploader != nil)

	return &App{
		Config:     cfg,
		Logger:     logger,
		FFmpeg:     ff,
		Host:       host,
		Decoder:    decoders,
		Compositor: comp,
		Generator:  gen,
		Uploader:   uploader,
		Jobs:       mgr,
	}, nil
}

func selectHost(cfg *config.Config, ff *ffmpeg.Host, logger hclog.Logger) (media.Host, error) {
	aviHost := avi.NewHost(avi.Options{Quality: cfg.Render.JPEGQuality, TempDir: cfg.Render.TempDir})

	switch cfg.Render.Encoder {
	case "avi":
		return aviHost, nil
	case "ffmpeg":
		if !ff.Available() {
			return nil, fmt.Errorf("encoder %q requested but %s is not usable", "ffmpeg", cfg.FFmpeg.Path)
		}
		return ff, nil
	default:
		if ff.Available() {
			return ff, nil
		}
		logger.Warn("ffmpeg not found, falling back to the AVI encoder", "path", cfg.FFmpeg.Path)
		return aviHost, nil
	}
}
