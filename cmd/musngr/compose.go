package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/xob0t/musngr/internal/config"
	"github.com/xob0t/musngr/pkg/background"
	"github.com/xob0t/musngr/pkg/compositor"
	"github.com/xob0t/musngr/pkg/media"
	"github.com/xob0t/musngr/pkg/metadata"
	"github.com/xob0t/musngr/pkg/youtube"
)

func runCompose(args []string) error {
	fs := flag.NewFlagSet("compose", flag.ExitOnError)
	cfgPath := configFlag(fs)

	var (
		audioPath string
		imagePath string
		output    string
		encoder   string
		useID3    bool
		upload    bool
		quiet     bool
		bg        specFlags
		md        metadataFlags
	)
	fs.StringVar(&audioPath, "audio", "", "Audio file")
	fs.StringVar(&imagePath, "image", "", "Background image file")
	fs.StringVar(&output, "o", "", "Output file; the extension follows the negotiated format when omitted")
	fs.StringVar(&output, "output", "", "Output file")
	fs.StringVar(&encoder, "encoder", "", "Override render.encoder: auto, ffmpeg or avi")
	fs.BoolVar(&useID3, "id3", false, "Use the embedded artwork as the background")
	fs.BoolVar(&upload, "upload", false, "Upload the video to YouTube when done")
	fs.BoolVar(&quiet, "q", false, "No progress bar")
	bg.register(fs)
	md.register(fs)
	fs.Usage = printUsage
	if err := fs.Parse(args); err != nil {
		return err
	}
	if audioPath == "" {
		return fmt.Errorf("audio file is required (-audio)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := loadApp(ctx, *cfgPath, func(c *config.Config) {
		if encoder != "" {
			c.Render.Encoder = encoder
		}
	})
	if err != nil {
		return err
	}
	if upload && a.Uploader == nil {
		return fmt.Errorf("-upload needs youtube.client_id, client_secret and refresh_token in the config")
	}

	audio, err := readBlob(audioPath)
	if err != nil {
		return err
	}
	tags := metadata.Extract(audio.Name, audio.Data)
	title := metadata.SuggestedTitle(audio.Name, tags)

	var img *media.Blob
	switch {
	case imagePath != "":
		if img, err = readBlob(imagePath); err != nil {
			return err
		}
	case useID3 && tags.HasArtwork():
		art, _ := tags.Artwork()
		img = &art
	default:
		if useID3 {
			fmt.Fprintln(os.Stderr, "Warning: no embedded artwork, rendering the title instead")
		}
		spec, err := bg.spec(fs)
		if err != nil {
			return err
		}
		if spec.Text == "" {
			spec.Text = title
		}
		if img, err = a.Generator.Render(spec); err != nil {
			return err
		}
	}

	format, err := a.Compositor.Negotiate()
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Composing %s with %s (%s)\n", audio.Name, a.Host.Name(), format)

	var progress compositor.ProgressFunc = func(float64) {}
	if !quiet {
		progress = progressBar(os.Stderr)
	}
	video, err := a.Compositor.Compose(ctx, *audio, *img, progress)
	if !quiet {
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		return err
	}

	output = outputPath(output, audio.Name, video.Type)
	if err := os.WriteFile(output, video.Data, 0644); err != nil {
		return fmt.Errorf("write video: %w", err)
	}
	fmt.Printf("Done: %s (%s, %d bytes)\n", output, video.Type, video.Size())

	if !upload {
		return nil
	}
	meta := md.metadata(title, metadata.SuggestedDescription(tags, a.Config.YouTube.DescriptionWatermark))
	thumb, err := md.thumbnailBlob()
	if err != nil {
		return err
	}
	res, err := a.Uploader.Upload(ctx, *video, meta, thumb)
	if err != nil {
		return err
	}
	fmt.Printf("Uploaded: %s\n", res.URL)
	return nil
}

func readBlob(path string) (*media.Blob, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	blob := media.NewBlob(filepath.Base(path), "", data)
	return &blob, nil
}

// outputPath fills in a missing name or extension for the rendered video.
func outputPath(output, audioName, videoType string) string {
	ext := ".bin"
	if f, err := media.ParseFormat(videoType); err == nil {
		ext = f.Extension()
	}
	if output == "" {
		return strings.TrimSuffix(audioName, filepath.Ext(audioName)) + ext
	}
	if filepath.Ext(output) == "" {
		return output + ext
	}
	return output
}

// progressBar draws a 20-cell bar, redrawing only when the percentage moves.
func progressBar(w io.Writer) compositor.ProgressFunc {
	last := -1
	return func(p float64) {
		pct := int(p * 100)
		if pct == last {
			return
		}
		last = pct
		filled := pct / 5
		fmt.Fprintf(w, "\r[%s%s] %3d%%", strings.Repeat("#", filled), strings.Repeat("-", 20-filled), pct)
	}
}

// ── Background spec flags ──

type specFlags struct {
	file  string
	text  string
	style string
	font  string
	size  int
	align string
	res   string
}

func (s *specFlags) register(fs *flag.FlagSet) {
	d := background.Defaults()
	fs.StringVar(&s.file, "spec", "", "Background spec file (.yaml or .json)")
	fs.StringVar(&s.text, "text", "", "Background text")
	fs.StringVar(&s.style, "style", string(d.Style), "Background style")
	fs.StringVar(&s.font, "font", string(d.Font), "Font family")
	fs.IntVar(&s.size, "size", d.FontSizePt, "Font size in points")
	fs.StringVar(&s.align, "align", string(d.Alignment), "Text alignment")
	fs.StringVar(&s.res, "res", fmt.Sprintf("%dx%d", d.Width, d.Height), "Image size: WxH, 720p, 1080p or 4k")
}

// spec starts from the -spec file (or the defaults) and applies only the
// flags given on the command line.
func (s *specFlags) spec(fs *flag.FlagSet) (background.Spec, error) {
	spec := background.Defaults()
	if s.file != "" {
		var err error
		if spec, err = background.LoadSpecFile(s.file); err != nil {
			return spec, err
		}
	}

	var errs []error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "text":
			spec.Text = s.text
		case "style":
			st, err := background.ParseStyle(s.style)
			errs = append(errs, err)
			spec.Style = st
		case "font":
			fn, err := background.ParseFont(s.font)
			errs = append(errs, err)
			spec.Font = fn
		case "size":
			if s.size <= 0 {
				errs = append(errs, fmt.Errorf("font size must be positive"))
			}
			spec.FontSizePt = s.size
		case "align":
			al, err := background.ParseAlignment(s.align)
			errs = append(errs, err)
			spec.Alignment = al
		case "res":
			w, h, err := background.ParseSize(s.res)
			errs = append(errs, err)
			spec.Width, spec.Height = w, h
		}
	})
	return spec, errors.Join(errs...)
}

// ── Upload metadata flags ──

type metadataFlags struct {
	title       string
	description string
	tags        string
	privacy     string
	category    string
	language    string
	thumbnail   string
	kids        bool
	notify      bool
}

func (m *metadataFlags) register(fs *flag.FlagSet) {
	d := youtube.DefaultMetadata()
	fs.StringVar(&m.title, "title", "", "Video title (default: suggested from tags)")
	fs.StringVar(&m.description, "description", "", "Video description (default: suggested from tags)")
	fs.StringVar(&m.tags, "tags", strings.Join(d.Tags, ","), "Comma separated video tags")
	fs.StringVar(&m.privacy, "privacy", string(d.Privacy), "public, unlisted or private")
	fs.StringVar(&m.category, "category", d.Category, "Category name")
	fs.StringVar(&m.language, "language", d.Language, "Default language")
	fs.StringVar(&m.thumbnail, "thumbnail", "", "Custom thumbnail image")
	fs.BoolVar(&m.kids, "kids", false, "Mark the video as made for kids")
	fs.BoolVar(&m.notify, "notify", false, "Notify subscribers")
}

func (m *metadataFlags) metadata(title, description string) youtube.Metadata {
	md := youtube.DefaultMetadata()
	md.Title = firstNonEmpty(m.title, title)
	md.Description = firstNonEmpty(m.description, description)
	md.Tags = youtube.FormatTags(strings.Split(m.tags, ","))
	md.Privacy = youtube.Privacy(strings.ToLower(m.privacy))
	md.Category = m.category
	md.Language = m.language
	md.MadeForKids = m.kids
	md.NotifySubscribers = m.notify
	return md
}

func (m *metadataFlags) thumbnailBlob() (*media.Blob, error) {
	if m.thumbnail == "" {
		return nil, nil
	}
	return readBlob(m.thumbnail)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
