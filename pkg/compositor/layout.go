package compositor

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"time"

	xdraw "golang.org/x/image/draw"
)

const (
	overlayHeight = 100
	barInset      = 50
	barOffset     = 30 // from the bottom edge
	barHeight     = 10
)

var (
	overlayColor = color.NRGBA{0, 0, 0, 178} // 70% black
	barColor     = color.RGBA{255, 255, 255, 255}
)

// FitRect returns where a w×h image lands when scaled to fit inside surface
// with its aspect ratio preserved. An image wider than the surface spans the
// full width and is centered vertically; otherwise it spans the full height
// and is centered horizontally.
func FitRect(surface image.Rectangle, w, h int) image.Rectangle {
	sw, sh := surface.Dx(), surface.Dy()
	if w <= 0 || h <= 0 || sw <= 0 || sh <= 0 {
		return image.Rectangle{}
	}

	surfaceAspect := float64(sw) / float64(sh)
	imageAspect := float64(w) / float64(h)

	if imageAspect > surfaceAspect {
		dh := int(math.Round(float64(sw) / imageAspect))
		y := (sh - dh) / 2
		return image.Rect(0, y, sw, y+dh).Add(surface.Min)
	}
	dw := int(math.Round(float64(sh) * imageAspect))
	x := (sw - dw) / 2
	return image.Rect(x, 0, x+dw, sh).Add(surface.Min)
}

// newPlate renders the static part of every frame: opaque black with src
// scaled into its fit rectangle. The image never changes during a compose, so
// the per-frame redraw is a copy of the plate plus the overlay.
func newPlate(bounds image.Rectangle, src image.Image) *image.RGBA {
	plate := image.NewRGBA(bounds)
	draw.Draw(plate, bounds, image.NewUniform(color.Black), image.Point{}, draw.Src)
	dst := FitRect(bounds, src.Bounds().Dx(), src.Bounds().Dy())
	xdraw.CatmullRom.Scale(plate, dst, src, src.Bounds(), draw.Over, nil)
	return plate
}

// DrawOverlay paints the translucent bottom bar and the progress bar.
func DrawOverlay(dst draw.Image, progress float64) {
	b := dst.Bounds()
	bar := image.Rect(b.Min.X, b.Max.Y-overlayHeight, b.Max.X, b.Max.Y)
	draw.Draw(dst, bar, image.NewUniform(overlayColor), image.Point{}, draw.Over)

	width := int(float64(b.Dx()-2*barInset) * clamp01(progress))
	if width <= 0 {
		return
	}
	fill := image.Rect(b.Min.X+barInset, b.Max.Y-barOffset, b.Min.X+barInset+width, b.Max.Y-barOffset+barHeight)
	draw.Draw(dst, fill, image.NewUniform(barColor), image.Point{}, draw.Src)
}

// Progress is elapsed/duration clamped to [0, 1]. A zero-length track is
// complete immediately.
func Progress(elapsed, duration time.Duration) float64 {
	if duration <= 0 {
		return 1
	}
	return clamp01(float64(elapsed) / float64(duration))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
