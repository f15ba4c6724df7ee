package background

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"
)

func testFace(t *testing.T, sizePt float64) font.Face {
	t.Helper()
	face, err := NewFontManager(nil).Face(FontSegoe, sizePt)
	require.NoError(t, err)
	t.Cleanup(func() { face.Close() })
	return face
}

func measure(face font.Face, s string) float64 {
	return float64(font.MeasureString(face, s)) / 64
}

func assertRGB(t *testing.T, want color.RGBA, got color.Color, tolerance int) {
	t.Helper()
	r, g, b, _ := got.RGBA()
	diff := func(a uint8, b uint32) int {
		d := int(a) - int(b>>8)
		if d < 0 {
			d = -d
		}
		return d
	}
	assert.LessOrEqual(t, diff(want.R, r), tolerance, "red of %v", got)
	assert.LessOrEqual(t, diff(want.G, g), tolerance, "green of %v", got)
	assert.LessOrEqual(t, diff(want.B, b), tolerance, "blue of %v", got)
}

func TestWrapText_BreaksAtBudget(t *testing.T) {
	face := testFace(t, 24)
	one, both := measure(face, "AAAA"), measure(face, "AAAA BBBB")
	require.Less(t, one, both)

	budget := (one + both) / 2
	assert.Equal(t, []string{"AAAA", "BBBB"}, WrapText("AAAA BBBB", budget, face))
	assert.Equal(t, []string{"AAAA BBBB"}, WrapText("AAAA BBBB", both+1, face))
}

func TestWrapText_Edges(t *testing.T) {
	face := testFace(t, 24)

	assert.Equal(t, []string{""}, WrapText("", 100, face))
	assert.Equal(t, []string{"Supercalifragilistic"}, WrapText("Supercalifragilistic", 1, face),
		"an oversized word keeps its own line")
	assert.Equal(t, []string{"a", "b", "c"}, WrapText("a b c", 1, face))
	assert.Equal(t, []string{"a  b"}, WrapText("a  b", 1000, face), "space runs are kept")
}

func TestRender_WrapsAtNinetyPercentOfWidth(t *testing.T) {
	face := testFace(t, 24)
	one, both := measure(face, "AAAA"), measure(face, "AAAA BBBB")

	// 0.9*width falls between the two measurements.
	width := int((one + both) / 2 / wrapRatio)
	lines := WrapText("AAAA BBBB", float64(width)*wrapRatio, face)
	assert.Equal(t, []string{"AAAA", "BBBB"}, lines)
}

func TestRender_Deterministic(t *testing.T) {
	g := NewGenerator(nil, nil)
	spec := Spec{
		Text:       "The quick brown fox jumps over the lazy dog, again and again and again",
		Style:      StyleGradientSunset,
		Font:       FontTimes,
		FontSizePt: 32,
		Alignment:  AlignMiddle,
		Width:      640,
		Height:     360,
	}

	a, err := g.Render(spec)
	require.NoError(t, err)
	b, err := g.Render(spec)
	require.NoError(t, err)

	assert.Equal(t, "image/png", a.Type)
	assert.True(t, bytes.Equal(a.Data, b.Data), "identical specs must render identical bytes")
}

func TestRender_EmptyTextIsPlainFill(t *testing.T) {
	g := NewGenerator(nil, nil)
	for _, text := range []string{"", "   "} {
		img, err := g.RenderImage(Spec{Text: text, Style: StyleSolidLight, Width: 64, Height: 32})
		require.NoError(t, err)
		for y := 0; y < 32; y++ {
			for x := 0; x < 64; x++ {
				require.Equal(t, color.RGBA{255, 255, 255, 255}, img.RGBAAt(x, y))
			}
		}
	}
}

func TestRender_Defaults(t *testing.T) {
	img, err := NewGenerator(nil, nil).RenderImage(Spec{})
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 1920, 1080), img.Bounds())
	assert.Equal(t, color.RGBA{0, 0, 0, 255}, img.RGBAAt(10, 10))
}

func TestRender_LegacyStyleNames(t *testing.T) {
	g := NewGenerator(nil, nil)

	img, err := g.RenderImage(Spec{Style: "black-white", Width: 8, Height: 8})
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, img.RGBAAt(4, 4))

	img, err = g.RenderImage(Spec{Style: "white-black", Width: 8, Height: 8})
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{0, 0, 0, 255}, img.RGBAAt(4, 4))
}

func TestRender_Gradients(t *testing.T) {
	g := NewGenerator(nil, nil)

	tests := []struct {
		style             Style
		top, middle, down string
	}{
		{StyleGradientBlue, "#1e3a8a", "", "#3b82f6"},
		{StyleGradientPurple, "#581c87", "", "#a855f7"},
		{StyleGradientSunset, "#f97316", "#ef4444", "#dc2626"},
	}
	for _, tt := range tests {
		t.Run(string(tt.style), func(t *testing.T) {
			img, err := g.RenderImage(Spec{Style: tt.style, Width: 10, Height: 1000})
			require.NoError(t, err)

			assertRGB(t, MustParseColor(tt.top), img.At(5, 0), 1)
			assertRGB(t, MustParseColor(tt.down), img.At(5, 999), 1)
			if tt.middle != "" {
				assertRGB(t, MustParseColor(tt.middle), img.At(5, 500), 1)
			}
		})
	}
}

func TestRender_UnknownStyleIsDark(t *testing.T) {
	img, err := NewGenerator(nil, nil).RenderImage(Spec{Style: "neon", Width: 4, Height: 4})
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{0, 0, 0, 255}, img.RGBAAt(1, 1))
}

// inkBounds returns the bounding box of pixels that differ from bg.
func inkBounds(img *image.RGBA, bg color.RGBA) image.Rectangle {
	var r image.Rectangle
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if img.RGBAAt(x, y) != bg {
				r = r.Union(image.Rect(x, y, x+1, y+1))
			}
		}
	}
	return r
}

func TestRender_Placement(t *testing.T) {
	g := NewGenerator(nil, nil)
	const w, h = 800, 400
	bg := color.RGBA{0, 0, 0, 255}

	render := func(a Alignment) image.Rectangle {
		img, err := g.RenderImage(Spec{Text: "HELLO", Alignment: a, FontSizePt: 24, Width: w, Height: h})
		require.NoError(t, err)
		ink := inkBounds(img, bg)
		require.False(t, ink.Empty(), "no text drawn for %s", a)
		return ink
	}

	top := render(AlignTop)
	assert.InDelta(t, 0.1*h, float64(top.Min.Y+top.Max.Y)/2, 6)
	assert.InDelta(t, w/2, float64(top.Min.X+top.Max.X)/2, 3)

	mid := render(AlignMiddle)
	assert.InDelta(t, h/2, float64(mid.Min.Y+mid.Max.Y)/2, 6)
	assert.Equal(t, mid, render(AlignCenter))

	bottom := render(AlignBottom)
	assert.InDelta(t, 0.9*h, float64(bottom.Min.Y+bottom.Max.Y)/2, 6)

	left := render(AlignLeft)
	assert.GreaterOrEqual(t, left.Min.X, int(0.05*w)-1)
	assert.Less(t, left.Min.X, int(0.05*w)+5)

	right := render(AlignRight)
	assert.LessOrEqual(t, right.Max.X, int(0.95*w)+1)
	assert.Greater(t, right.Max.X, int(0.95*w)-5)
}

func TestRender_TextColorContrasts(t *testing.T) {
	g := NewGenerator(nil, nil)

	img, err := g.RenderImage(Spec{Text: "HELLO", Style: StyleSolidLight, Alignment: AlignMiddle, Width: 400, Height: 200})
	require.NoError(t, err)
	ink := inkBounds(img, color.RGBA{255, 255, 255, 255})
	require.False(t, ink.Empty())

	darkest := uint8(255)
	for y := ink.Min.Y; y < ink.Max.Y; y++ {
		for x := ink.Min.X; x < ink.Max.X; x++ {
			darkest = min(darkest, img.RGBAAt(x, y).R)
		}
	}
	assert.Less(t, darkest, uint8(40), "text on a light fill is black")
}

func TestRender_MultiLineBlockIsCentered(t *testing.T) {
	g := NewGenerator(nil, nil)
	const w, h = 300, 600

	img, err := g.RenderImage(Spec{
		Text:       strings.Repeat("WORD ", 12),
		Alignment:  AlignMiddle,
		FontSizePt: 20,
		Width:      w,
		Height:     h,
	})
	require.NoError(t, err)

	ink := inkBounds(img, color.RGBA{0, 0, 0, 255})
	assert.Greater(t, ink.Dy(), 3*20, "several lines")
	assert.InDelta(t, h/2, float64(ink.Min.Y+ink.Max.Y)/2, 8)
	assert.LessOrEqual(t, ink.Dx(), int(w*wrapRatio)+2)
}

func TestRender_TooLarge(t *testing.T) {
	_, err := NewGenerator(nil, nil).Render(Spec{Width: MaxDimension + 1, Height: 10})
	var rerr *RenderError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "surface", rerr.Op)
}

func TestPreview_DataURI(t *testing.T) {
	uri, err := NewGenerator(nil, nil).Preview(Spec{Text: "x", Width: 32, Height: 32})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(uri, "data:image/png;base64,"))
}

func TestRender_DecodesAsPNG(t *testing.T) {
	blob, err := NewGenerator(nil, nil).Render(Spec{Width: 48, Height: 24})
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(blob.Data))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 48, 24), img.Bounds())
}

func TestFontManager_FallsBackToEmbedded(t *testing.T) {
	dir := t.TempDir()
	// A broken font file in the search path must not break rendering.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "arial.ttf"), []byte("not a font"), 0o644))

	fm := NewFontManager(nil, dir, filepath.Join(dir, "missing"))
	for _, f := range Fonts {
		face, err := fm.Face(f, 12)
		require.NoError(t, err, "family %s", f)
		face.Close()
	}
}

func TestParseNames(t *testing.T) {
	s, err := ParseStyle(" Gradient-Blue ")
	require.NoError(t, err)
	assert.Equal(t, StyleGradientBlue, s)

	s, err = ParseStyle("white-black")
	require.NoError(t, err)
	assert.Equal(t, StyleSolidDark, s)

	_, err = ParseStyle("plaid")
	assert.Error(t, err)

	f, err := ParseFont("COURIER")
	require.NoError(t, err)
	assert.Equal(t, FontCourier, f)
	_, err = ParseFont("comic")
	assert.Error(t, err)

	a, err := ParseAlignment("center")
	require.NoError(t, err)
	assert.Equal(t, AlignCenter, a)
	_, err = ParseAlignment("justify")
	assert.Error(t, err)
}

func TestParseSize(t *testing.T) {
	w, h, err := ParseSize("720p")
	require.NoError(t, err)
	assert.Equal(t, [2]int{1280, 720}, [2]int{w, h})

	w, h, err = ParseSize("640x480")
	require.NoError(t, err)
	assert.Equal(t, [2]int{640, 480}, [2]int{w, h})

	for _, bad := range []string{"", "640", "0x10", "ax b"} {
		_, _, err := ParseSize(bad)
		assert.Error(t, err, bad)
	}
}

func TestLoadSpecFile(t *testing.T) {
	dir := t.TempDir()

	yml := filepath.Join(dir, "bg.yaml")
	require.NoError(t, os.WriteFile(yml, []byte(ExampleYAML), 0o644))
	spec, err := LoadSpecFile(yml)
	require.NoError(t, err)
	assert.Equal(t, StyleGradientSunset, spec.Style)
	assert.Equal(t, 36, spec.FontSizePt)
	assert.Equal(t, AlignMiddle, spec.Alignment)

	js := filepath.Join(dir, "bg.json")
	require.NoError(t, os.WriteFile(js, []byte(`{"text":"hi","style":"black-white","fontSize":18}`), 0o644))
	spec, err = LoadSpecFile(js)
	require.NoError(t, err)
	assert.Equal(t, StyleSolidLight, spec.Style)
	assert.Equal(t, 18, spec.FontSizePt)
	assert.Equal(t, AlignBottom, spec.Alignment, "missing fields take defaults")
	assert.Equal(t, 1920, spec.Width)

	bad := filepath.Join(dir, "bad.yml")
	require.NoError(t, os.WriteFile(bad, []byte("font: wingdings\n"), 0o644))
	_, err = LoadSpecFile(bad)
	assert.Error(t, err)
}
