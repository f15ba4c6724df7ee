package background

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strconv"
	"strings"
)

// stop is one color stop of a vertical gradient, at offset 0..1 from the top.
type stop struct {
	at float64
	c  color.RGBA
}

// fill describes a style's background and its contrasting text color.
type fill struct {
	stops []stop // one stop is a solid fill
	text  color.RGBA
}

var (
	white = color.RGBA{255, 255, 255, 255}
	black = color.RGBA{0, 0, 0, 255}
)

var palette = map[Style]fill{
	StyleSolidDark:  {stops: []stop{{0, black}}, text: white},
	StyleSolidLight: {stops: []stop{{0, white}}, text: black},
	StyleGradientBlue: {
		stops: []stop{{0, MustParseColor("#1e3a8a")}, {1, MustParseColor("#3b82f6")}},
		text:  white,
	},
	StyleGradientPurple: {
		stops: []stop{{0, MustParseColor("#581c87")}, {1, MustParseColor("#a855f7")}},
		text:  white,
	},
	StyleGradientSunset: {
		stops: []stop{{0, MustParseColor("#f97316")}, {0.5, MustParseColor("#ef4444")}, {1, MustParseColor("#dc2626")}},
		text:  white,
	},
}

// paletteFor falls back to solid dark for unknown styles.
func paletteFor(s Style) fill {
	if f, ok := palette[s]; ok {
		return f
	}
	return palette[StyleSolidDark]
}

// TextColor returns the text color drawn on top of style.
func TextColor(s Style) color.RGBA { return paletteFor(s).text }

// ParseColor parses "#rrggbb".
func ParseColor(s string) (color.RGBA, error) {
	hex := strings.TrimPrefix(s, "#")
	if len(hex) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid color %q: expected 6-char hex", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return color.RGBA{uint8(v >> 16), uint8(v >> 8), uint8(v), 255}, nil
}

// MustParseColor is ParseColor for constants.
func MustParseColor(s string) color.RGBA {
	c, err := ParseColor(s)
	if err != nil {
		panic(err)
	}
	return c
}

// paint fills img according to style. Gradients run top to bottom.
func paint(img *image.RGBA, s Style) {
	f := paletteFor(s)
	b := img.Bounds()
	if len(f.stops) == 1 {
		draw.Draw(img, b, &image.Uniform{f.stops[0].c}, image.Point{}, draw.Src)
		return
	}

	h := b.Dy()
	for y := 0; y < h; y++ {
		// Sample at the pixel center.
		t := (float64(y) + 0.5) / float64(h)
		row := image.Rect(b.Min.X, b.Min.Y+y, b.Max.X, b.Min.Y+y+1)
		draw.Draw(img, row, &image.Uniform{gradientAt(f.stops, t)}, image.Point{}, draw.Src)
	}
}

// gradientAt interpolates stops linearly at t in [0, 1].
func gradientAt(stops []stop, t float64) color.RGBA {
	if t <= stops[0].at {
		return stops[0].c
	}
	for i := 1; i < len(stops); i++ {
		lo, hi := stops[i-1], stops[i]
		if t <= hi.at {
			k := (t - lo.at) / (hi.at - lo.at)
			return color.RGBA{
				R: lerp(lo.c.R, hi.c.R, k),
				G: lerp(lo.c.G, hi.c.G, k),
				B: lerp(lo.c.B, hi.c.B, k),
				A: 255,
			}
		}
	}
	return stops[len(stops)-1].c
}

func lerp(a, b uint8, k float64) uint8 {
	return uint8(float64(a) + (float64(b)-float64(a))*k + 0.5)
}
