package background

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"strings"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"

	"github.com/xob0t/musngr/pkg/media"
)

// MaxDimension bounds either side of the surface.
const MaxDimension = 8192

const (
	wrapRatio  = 0.9 // text block width as a share of the surface width
	lineFactor = 1.2 // line height per point of font size
)

// RenderError reports that a surface could not be allocated or serialized.
type RenderError struct {
	Op  string
	Err error
}

func (e *RenderError) Error() string { return fmt.Sprintf("background %s: %v", e.Op, e.Err) }
func (e *RenderError) Unwrap() error { return e.Err }

// Generator renders Specs. It is safe for concurrent use.
type Generator struct {
	fonts  *FontManager
	logger hclog.Logger
}

// NewGenerator uses fonts for text; nil means embedded fonts only.
func NewGenerator(fonts *FontManager, logger hclog.Logger) *Generator {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if fonts == nil {
		fonts = NewFontManager(logger)
	}
	return &Generator{fonts: fonts, logger: logger}
}

// Render paints spec and returns it as a PNG blob.
func (g *Generator) Render(spec Spec) (*media.Blob, error) {
	data, err := g.encode(spec)
	if err != nil {
		return nil, err
	}
	blob := media.NewBlob("background.png", "image/png", data)
	return &blob, nil
}

// Preview paints spec and returns it as a PNG data URI.
func (g *Generator) Preview(spec Spec) (string, error) {
	data, err := g.encode(spec)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data), nil
}

func (g *Generator) encode(spec Spec) ([]byte, error) {
	img, err := g.RenderImage(spec)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, &RenderError{Op: "encode", Err: err}
	}
	return buf.Bytes(), nil
}

// RenderImage paints the fill for spec.Style and, when spec.Text is not
// blank, the wrapped text block.
func (g *Generator) RenderImage(spec Spec) (*image.RGBA, error) {
	spec = spec.withDefaults()
	if spec.Width > MaxDimension || spec.Height > MaxDimension {
		return nil, &RenderError{
			Op:  "surface",
			Err: fmt.Errorf("%dx%d exceeds %d pixels per side", spec.Width, spec.Height, MaxDimension),
		}
	}

	img := image.NewRGBA(image.Rect(0, 0, spec.Width, spec.Height))
	paint(img, spec.Style)

	if strings.TrimSpace(spec.Text) == "" {
		return img, nil
	}

	face, err := g.fonts.Face(spec.Font, float64(spec.FontSizePt))
	if err != nil {
		return nil, &RenderError{Op: "font", Err: err}
	}
	defer face.Close()

	lines := WrapText(spec.Text, float64(spec.Width)*wrapRatio, face)
	drawBlock(img, lines, spec, face)

	g.logger.Trace("background rendered", "style", spec.Style, "lines", len(lines))
	return img, nil
}

// Anchor returns the reference point of the text block.
func Anchor(a Alignment, w, h int) (x, y float64) {
	fw, fh := float64(w), float64(h)
	switch a {
	case AlignTop:
		return fw / 2, fh * 0.1
	case AlignMiddle, AlignCenter:
		return fw / 2, fh / 2
	case AlignLeft:
		return fw * 0.05, fh / 2
	case AlignRight:
		return fw * 0.95, fh / 2
	default:
		return fw / 2, fh * 0.9
	}
}

// firstLineY returns the vertical center of the first line. The block hangs
// from a top anchor, sits on a bottom anchor and is centered otherwise.
func firstLineY(a Alignment, y, lineHeight float64, n int) float64 {
	total := float64(n) * lineHeight
	switch a {
	case AlignTop:
		return y
	case AlignBottom:
		return y - total + lineHeight
	default:
		return y - total/2 + lineHeight/2
	}
}

func drawBlock(img *image.RGBA, lines []string, spec Spec, face font.Face) {
	x, y := Anchor(spec.Alignment, spec.Width, spec.Height)
	lh := float64(spec.FontSizePt) * lineFactor
	startY := firstLineY(spec.Alignment, y, lh, len(lines))

	// Lines are positioned by their vertical middle.
	m := face.Metrics()
	shift := float64(m.Ascent-m.Descent) / 128

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.Color(TextColor(spec.Style))),
		Face: face,
	}
	for i, line := range lines {
		adv := float64(d.MeasureString(line)) / 64
		lx := x
		switch spec.Alignment {
		case AlignLeft:
		case AlignRight:
			lx -= adv
		default:
			lx -= adv / 2
		}
		baseline := startY + float64(i)*lh + shift
		d.Dot = fixed.Point26_6{X: toFixed(lx), Y: toFixed(baseline)}
		d.DrawString(line)
	}
}

func toFixed(v float64) fixed.Int26_6 { return fixed.Int26_6(math.Round(v * 64)) }

// WrapText greedily packs space-separated words into lines no wider than
// maxWidth pixels as measured with face. A single word wider than maxWidth
// stays on its own line.
func WrapText(text string, maxWidth float64, face font.Face) []string {
	var lines []string
	current := ""
	// Split on single spaces, not strings.Fields: space runs and newlines are kept as typed.
	for _, word := range strings.Split(text, " ") {
		test := word
		if current != "" {
			test = current + " " + word
		}
		if float64(font.MeasureString(face, test))/64 > maxWidth && current != "" {
			lines = append(lines, current)
			current = word
		} else {
			current = test
		}
	}
	if current != "" {
		lines = append(lines, current)
	}
	if len(lines) == 0 {
		return []string{text}
	}
	return lines
}
