// Musngr turns an audio track and a still image into a video.
//
// Usage:
//
//	musngr compose -audio <file> [-image <file> | -id3 | -text <text>] [-o <file>] [-upload]
//	musngr background -o <file.png> -text <text> [options]
//	musngr tags -audio <file>
//	musngr upload -video <file> -title <title>
//	musngr formats
//	musngr serve [-config musngr.yaml]
//	musngr init
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"

	"github.com/xob0t/musngr/internal/app"
	"github.com/xob0t/musngr/internal/config"
	"github.com/xob0t/musngr/internal/logging"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "compose":
		err = runCompose(os.Args[2:])
	case "background", "bg":
		err = runBackground(os.Args[2:])
	case "tags":
		err = runTags(os.Args[2:])
	case "upload":
		err = runUpload(os.Args[2:])
	case "formats":
		err = runFormats(os.Args[2:])
	case "serve":
		err = runServe(os.Args[2:])
	case "init":
		err = runInit(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fatal(err)
	}
}

// configFlag registers -config, defaulting to $MUSNGR_CONFIG.
func configFlag(fs *flag.FlagSet) *string {
	return fs.String("config", os.Getenv("MUSNGR_CONFIG"), "Config file (.yaml or .json)")
}

func loadConfig(path string) (*config.Config, hclog.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logging.New(cfg.Logging, os.Stderr), nil
}

func loadApp(ctx context.Context, path string, mutate func(*config.Config)) (*app.App, error) {
	cfg, logger, err := loadConfig(path)
	if err != nil {
		return nil, err
	}
	if mutate != nil {
		mutate(cfg)
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return app.New(ctx, cfg, logger)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func printUsage() {
	fmt.Print(`Musngr - Audio + image to video (Pure Go, ffmpeg optional)

USAGE:
    musngr compose -audio <file> [background] [-o <file>] [-upload [metadata]]
    musngr background -o <file.png> [spec options]
    musngr tags -audio <file> [-json] [-artwork <file>]
    musngr upload -video <file> -title <title> [metadata]
    musngr formats
    musngr serve [-port 8080] [-open]
    musngr init [-config musngr.yaml] [-spec background.yaml]

All commands accept -config <file> (default: $MUSNGR_CONFIG).

COMPOSE BACKGROUND (first match wins):
    -image <file>          Use an image file
    -id3                   Use the track's embedded artwork
    -spec <file>           Render a background spec (.yaml or .json)
    -text <text>           Render text; see spec options
    (none)                 Render the suggested title

SPEC OPTIONS:
    -text <text>           Text to draw (wrapped at 90% of the width)
    -style <name>          solid-dark | solid-light | gradient-blue | gradient-purple | gradient-sunset
    -font <name>           segoe | arial | helvetica | times | courier
    -size <pt>             Font size in points (default: 24)
    -align <name>          top | middle | bottom | left | right | center
    -res <WxH|720p|1080p|4k>

UPLOAD METADATA:
    -title, -description   Suggested from tags when empty
    -tags <a,b,c>          Comma separated
    -privacy <name>        public | unlisted | private
    -category <name>       music, gaming, education, ...
    -thumbnail <file>      Custom thumbnail image

EXAMPLES:
    musngr init
    musngr compose -audio song.mp3 -id3 -o song.webm
    musngr compose -audio song.wav -text "Live at home" -style gradient-sunset
    musngr compose -audio song.mp3 -image cover.jpg -upload -privacy unlisted
    musngr background -o bg.png -text "Hello" -align middle -res 720p
    musngr serve -open
`)
}
