package background

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomedium"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

// DPI converts point sizes to pixels the way browsers do (1pt = 4/3 px).
const DPI = 96

type family struct {
	files    []string // searched in order in every font directory
	fallback []byte   // embedded TTF when no file is found
}

var families = map[Font]family{
	FontSegoe:     {files: []string{"segoeui.ttf", "SegoeUI.ttf", "DejaVuSans.ttf"}, fallback: goregular.TTF},
	FontArial:     {files: []string{"arial.ttf", "Arial.ttf", "LiberationSans-Regular.ttf"}, fallback: goregular.TTF},
	FontHelvetica: {files: []string{"Helvetica.ttf", "helvetica.ttf", "NimbusSans-Regular.ttf"}, fallback: gomedium.TTF},
	FontTimes:     {files: []string{"times.ttf", "Times New Roman.ttf", "LiberationSerif-Regular.ttf"}, fallback: goregular.TTF},
	FontCourier:   {files: []string{"cour.ttf", "Courier New.ttf", "LiberationMono-Regular.ttf"}, fallback: gomono.TTF},
}

// FontManager resolves families to parsed fonts. A family first tries its
// TTF stack in the configured directories and falls back to an embedded Go
// font, so a family always resolves.
type FontManager struct {
	dirs   []string
	logger hclog.Logger

	mu     sync.Mutex
	parsed map[Font]*opentype.Font
}

// NewFontManager searches dirs, in order, for family files. With no dirs only
// the embedded fonts are used, which keeps output identical across machines.
func NewFontManager(logger hclog.Logger, dirs ...string) *FontManager {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &FontManager{
		dirs:   dirs,
		logger: logger,
		parsed: make(map[Font]*opentype.Font),
	}
}

func (fm *FontManager) load(f Font) (*opentype.Font, error) {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	if p, ok := fm.parsed[f]; ok {
		return p, nil
	}

	fam, ok := families[f]
	if !ok {
		fam = families[FontSegoe]
	}

	data, path := fm.find(fam.files)
	if data != nil {
		p, err := opentype.Parse(data)
		if err == nil {
			fm.logger.Debug("font loaded", "family", f, "path", path)
			fm.parsed[f] = p
			return p, nil
		}
		fm.logger.Warn("could not parse font, using embedded fallback", "path", path, "error", err)
	}

	p, err := opentype.Parse(fam.fallback)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}
	fm.parsed[f] = p
	return p, nil
}

func (fm *FontManager) find(files []string) ([]byte, string) {
	for _, dir := range fm.dirs {
		for _, name := range files {
			path := filepath.Join(dir, name)
			data, err := os.ReadFile(path)
			if err == nil {
				return data, path
			}
		}
	}
	return nil, ""
}

// Face returns a face for family at sizePt points.
func (fm *FontManager) Face(f Font, sizePt float64) (font.Face, error) {
	p, err := fm.load(f)
	if err != nil {
		return nil, err
	}
	face, err := opentype.NewFace(p, &opentype.FaceOptions{
		Size:    sizePt,
		DPI:     DPI,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create font face: %w", err)
	}
	return face, nil
}
