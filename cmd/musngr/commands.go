package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/xob0t/musngr/clients/server"
	"github.com/xob0t/musngr/internal/config"
	"github.com/xob0t/musngr/pkg/background"
	"github.com/xob0t/musngr/pkg/media"
	"github.com/xob0t/musngr/pkg/metadata"
)

func runBackground(args []string) error {
	fs := flag.NewFlagSet("background", flag.ExitOnError)
	cfgPath := configFlag(fs)
	var (
		output  string
		preview bool
		bg      specFlags
	)
	fs.StringVar(&output, "o", "", "Output PNG file")
	fs.StringVar(&output, "output", "", "Output PNG file")
	fs.BoolVar(&preview, "preview", false, "Print a data URI instead of writing a file")
	bg.register(fs)
	fs.Usage = printUsage
	if err := fs.Parse(args); err != nil {
		return err
	}
	if output == "" && !preview {
		return fmt.Errorf("output file is required (-o), or use -preview")
	}

	spec, err := bg.spec(fs)
	if err != nil {
		return err
	}
	cfg, logger, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	gen := background.NewGenerator(background.NewFontManager(logger.Named("fonts"), cfg.Fonts.Dirs...), logger)

	if preview {
		uri, err := gen.Preview(spec)
		if err != nil {
			return err
		}
		fmt.Println(uri)
		return nil
	}

	blob, err := gen.Render(spec)
	if err != nil {
		return err
	}
	if err := os.WriteFile(output, blob.Data, 0644); err != nil {
		return fmt.Errorf("write image: %w", err)
	}
	fmt.Printf("Done: %s (%dx%d, %s)\n", output, spec.Width, spec.Height, spec.Style)
	return nil
}

func runTags(args []string) error {
	fs := flag.NewFlagSet("tags", flag.ExitOnError)
	var (
		audioPath   string
		artworkPath string
		asJSON      bool
		watermark   string
	)
	fs.StringVar(&audioPath, "audio", "", "Audio file")
	fs.StringVar(&artworkPath, "artwork", "", "Write the embedded artwork to this file")
	fs.BoolVar(&asJSON, "json", false, "Print JSON")
	fs.StringVar(&watermark, "watermark", metadata.DefaultWatermark, "First line of the suggested description")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if audioPath == "" {
		return fmt.Errorf("audio file is required (-audio)")
	}

	audio, err := readBlob(audioPath)
	if err != nil {
		return err
	}
	tags := metadata.Extract(audio.Name, audio.Data)
	title := metadata.SuggestedTitle(audio.Name, tags)
	description := metadata.SuggestedDescription(tags, watermark)

	if artworkPath != "" {
		art, ok := tags.Artwork()
		if !ok {
			return fmt.Errorf("%s has no embedded artwork", audio.Name)
		}
		if err := os.WriteFile(artworkPath, art.Data, 0644); err != nil {
			return fmt.Errorf("write artwork: %w", err)
		}
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"tags":                  tags,
			"suggested_title":       title,
			"suggested_description": description,
			"has_artwork":           tags.HasArtwork(),
		})
	}

	source := tags.Format
	if source == "" {
		source = "file name"
	}
	fmt.Printf("Source:  %s\n", source)
	printField("Title", tags.Title)
	printField("Artist", tags.Artist)
	printField("Album", tags.Album)
	printField("Genre", tags.Genre)
	if tags.Year > 0 {
		printField("Year", fmt.Sprint(tags.Year))
	}
	fmt.Printf("Artwork: %v\n", tags.HasArtwork())
	fmt.Printf("\nSuggested title:\n  %s\n\nSuggested description:\n%s\n", title, description)
	return nil
}

func printField(name, value string) {
	if value != "" {
		fmt.Printf("%-8s %s\n", name+":", value)
	}
}

func runUpload(args []string) error {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	cfgPath := configFlag(fs)
	var (
		videoPath string
		md        metadataFlags
	)
	fs.StringVar(&videoPath, "video", "", "Video file")
	md.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if videoPath == "" {
		return fmt.Errorf("video file is required (-video)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := loadApp(ctx, *cfgPath, nil)
	if err != nil {
		return err
	}
	if a.Uploader == nil {
		return fmt.Errorf("youtube.client_id, client_secret and refresh_token must be configured")
	}

	video, err := readBlob(videoPath)
	if err != nil {
		return err
	}
	meta := md.metadata("", a.Config.YouTube.DescriptionWatermark)
	if err := meta.Normalize().Validate(); err != nil {
		return err
	}
	thumb, err := md.thumbnailBlob()
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Uploading %s (%d bytes)\n", video.Name, video.Size())
	res, err := a.Uploader.Upload(ctx, *video, meta, thumb)
	if err != nil {
		return err
	}
	fmt.Printf("Uploaded: %s\n", res.URL)
	return nil
}

func runFormats(args []string) error {
	fs := flag.NewFlagSet("formats", flag.ExitOnError)
	cfgPath := configFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := loadApp(context.Background(), *cfgPath, nil)
	if err != nil {
		return err
	}

	prefs := media.DefaultPreferences
	if len(a.Config.Render.Formats) > 0 {
		prefs, _ = media.ParseFormats(a.Config.Render.Formats)
	}

	fmt.Printf("Encoder: %s (ffmpeg available: %v)\n\n", a.Host.Name(), a.FFmpeg.Available())
	for _, f := range prefs {
		name, ok := f.String(), false
		if f.IsZero() {
			name = "<host default> " + a.Host.DefaultFormat().String()
			ok = true
		} else {
			ok = a.Host.IsTypeSupported(f)
		}
		mark := "no "
		if ok {
			mark = "yes"
		}
		fmt.Printf("  %s  %s\n", mark, name)
	}

	f, err := a.Compositor.Negotiate()
	if err != nil {
		return err
	}
	fmt.Printf("\nSelected: %s\n", f)
	return nil
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfgPath := configFlag(fs)
	var (
		host string
		port int
		open bool
	)
	fs.StringVar(&host, "host", "", "Listen address (overrides server.host)")
	fs.IntVar(&port, "port", 0, "Listen port (overrides server.port)")
	fs.IntVar(&port, "p", 0, "Listen port")
	fs.BoolVar(&open, "open", false, "Open the browser")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := loadApp(ctx, *cfgPath, func(c *config.Config) {
		if host != "" {
			c.Server.Host = host
		}
		if port != 0 {
			c.Server.Port = port
		}
	})
	if err != nil {
		return err
	}

	if lvl := a.Config.Logging.Level; lvl == "debug" || lvl == "trace" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	err = server.New(a).Run(ctx, open)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	var cfgOut, specOut string
	var force bool
	fs.StringVar(&cfgOut, "config", "musngr.yaml", "Output path for the sample config")
	fs.StringVar(&specOut, "spec", "background.yaml", "Output path for the sample background spec")
	fs.BoolVar(&force, "force", false, "Overwrite existing files")
	if err := fs.Parse(args); err != nil {
		return err
	}

	files := []struct{ path, content string }{
		{cfgOut, config.Sample},
		{specOut, background.ExampleYAML},
	}
	for _, f := range files {
		if _, err := os.Stat(f.path); err == nil && !force {
			return fmt.Errorf("%s exists (use -force to overwrite)", f.path)
		}
	}
	for _, f := range files {
		if err := os.WriteFile(f.path, []byte(f.content), 0644); err != nil {
			return fmt.Errorf("write %s: %w", f.path, err)
		}
	}

	fmt.Printf("Created: %s, %s\n", cfgOut, specOut)
	fmt.Printf("Run: musngr compose -config %s -audio song.mp3 -spec %s\n", cfgOut, specOut)
	return nil
}
