package enhance

import (
	"math"

	"github.com/dunamismax/pixelgrade/internal/domain"
)

const (
	FlatWashOpacity    = 0.6
	GradientTopOpacity = 0.7
	// GradientExtent is the fraction of the canvas height the gradient spans.
	GradientExtent = 0.5
)

// Composite blends the readability layer for style over buf in place.
func Composite(buf *PixelBuffer, style domain.OverlayStyle) {
	switch style {
	case domain.OverlayFlatWash:
		FlatWash(buf, FlatWashOpacity)
	case domain.OverlayTopGradient:
		TopGradient(buf, GradientTopOpacity)
	}
}

// FlatWash blends uniform black at opacity over the whole canvas.
func FlatWash(buf *PixelBuffer, opacity float64) {
	a := clampUnit(opacity)
	if a == 0 {
		return
	}
	for y := 0; y < buf.Height; y++ {
		blendRow(buf, y, a)
	}
}

// TopGradient blends black whose opacity falls linearly from top at the first
// row to zero at the vertical midpoint. Rows below the midpoint are untouched.
func TopGradient(buf *PixelBuffer, top float64) {
	top = clampUnit(top)
	extent := float64(buf.Height) * GradientExtent
	if top == 0 || extent <= 0 {
		return
	}
	for y := 0; y < buf.Height; y++ {
		t := (float64(y) + 0.5) / extent
		if t >= 1 {
			break
		}
		blendRow(buf, y, top*(1-t))
	}
}

// blendRow applies out = src*(1-a) + black*a to the colour channels of row y.
func blendRow(buf *PixelBuffer, y int, a float64) {
	keep := 1 - a
	row := buf.Pix[y*buf.Width*4 : (y+1)*buf.Width*4]
	for i := 0; i+3 < len(row); i += 4 {
		row[i] = uint8(math.Round(float64(row[i]) * keep))
		row[i+1] = uint8(math.Round(float64(row[i+1]) * keep))
		row[i+2] = uint8(math.Round(float64(row[i+2]) * keep))
	}
}
