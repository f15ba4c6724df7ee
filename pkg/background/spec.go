// Package background renders text-on-color images for tracks that come
// without artwork. Rendering is deterministic: the same Spec always yields the
// same pixels.
package background

import (
	"fmt"
	"strconv"
	"strings"
)

// Style selects the fill and the text color.
type Style string

const (
	StyleSolidDark      Style = "solid-dark"
	StyleSolidLight     Style = "solid-light"
	StyleGradientBlue   Style = "gradient-blue"
	StyleGradientPurple Style = "gradient-purple"
	StyleGradientSunset Style = "gradient-sunset"
)

// Styles lists every style in display order.
var Styles = []Style{StyleSolidDark, StyleSolidLight, StyleGradientBlue, StyleGradientPurple, StyleGradientSunset}

// legacyStyles maps the older "text-background" names.
var legacyStyles = map[string]Style{
	"white-black": StyleSolidDark,
	"black-white": StyleSolidLight,
}

// ParseStyle accepts a style name or one of its legacy aliases.
func ParseStyle(s string) (Style, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if st, ok := legacyStyles[s]; ok {
		return st, nil
	}
	for _, st := range Styles {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown background style %q", s)
}

// Font is a font family choice.
type Font string

const (
	FontSegoe     Font = "segoe"
	FontArial     Font = "arial"
	FontHelvetica Font = "helvetica"
	FontTimes     Font = "times"
	FontCourier   Font = "courier"
)

// Fonts lists every family.
var Fonts = []Font{FontSegoe, FontArial, FontHelvetica, FontTimes, FontCourier}

// ParseFont validates a family name.
func ParseFont(s string) (Font, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, f := range Fonts {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown font %q", s)
}

// Alignment places the text block.
type Alignment string

const (
	AlignTop    Alignment = "top"
	AlignMiddle Alignment = "middle"
	AlignBottom Alignment = "bottom"
	AlignLeft   Alignment = "left"
	AlignRight  Alignment = "right"
	AlignCenter Alignment = "center"
)

// Alignments lists every alignment.
var Alignments = []Alignment{AlignTop, AlignMiddle, AlignBottom, AlignLeft, AlignRight, AlignCenter}

// ParseAlignment validates an alignment name.
func ParseAlignment(s string) (Alignment, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, a := range Alignments {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown alignment %q", s)
}

// Spec describes one generated background. Specs are values: to change a
// rendered image, build a new Spec and render again.
type Spec struct {
	Text       string    `json:"text" yaml:"text"`
	Style      Style     `json:"style" yaml:"style"`
	Font       Font      `json:"font" yaml:"font"`
	FontSizePt int       `json:"fontSize" yaml:"font_size"`
	Alignment  Alignment `json:"alignment" yaml:"alignment"`
	Width      int       `json:"width,omitempty" yaml:"width,omitempty"`
	Height     int       `json:"height,omitempty" yaml:"height,omitempty"`
}

// Defaults returns the spec used when the caller supplies nothing.
func Defaults() Spec {
	return Spec{
		Style:      StyleSolidDark,
		Font:       FontSegoe,
		FontSizePt: 24,
		Alignment:  AlignBottom,
		Width:      1920,
		Height:     1080,
	}
}

// withDefaults fills zero fields from Defaults and maps legacy style names.
func (s Spec) withDefaults() Spec {
	d := Defaults()
	if s.Style == "" {
		s.Style = d.Style
	} else if st, ok := legacyStyles[string(s.Style)]; ok {
		s.Style = st
	}
	if s.Font == "" {
		s.Font = d.Font
	}
	if s.FontSizePt <= 0 {
		s.FontSizePt = d.FontSizePt
	}
	if s.Alignment == "" {
		s.Alignment = d.Alignment
	}
	if s.Width <= 0 {
		s.Width = d.Width
	}
	if s.Height <= 0 {
		s.Height = d.Height
	}
	return s
}

// Sizes maps named output sizes to width and height.
var Sizes = map[string][2]int{
	"1920x1080": {1920, 1080},
	"1280x720":  {1280, 720},
	"3840x2160": {3840, 2160},
	"720p":      {1280, 720},
	"1080p":     {1920, 1080},
	"4k":        {3840, 2160},
}

// ParseSize accepts a named size or any "WxH" pair.
func ParseSize(s string) (w, h int, err error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if dims, ok := Sizes[s]; ok {
		return dims[0], dims[1], nil
	}
	ws, hs, ok := strings.Cut(s, "x")
	if !ok {
		return 0, 0, fmt.Errorf("invalid size %q: expected WxH", s)
	}
	w, errW := strconv.Atoi(ws)
	h, errH := strconv.Atoi(hs)
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("invalid size %q: expected WxH", s)
	}
	return w, h, nil
}
