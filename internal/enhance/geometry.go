package enhance

import (
	"image"
	"image/color"
	"math"

	"github.com/dunamismax/pixelgrade/internal/domain"
	"golang.org/x/image/draw"
)

// Placement is where the scaled source lands on the canvas. Offsets are zero
// or negative; the overflow is split evenly on the cropped axis.
type Placement struct {
	DrawWidth  float64
	DrawHeight float64
	DrawX      float64
	DrawY      float64
}

// Fit computes the cover-fit placement of a width x height source on a
// canvasWidth x canvasHeight canvas. All dimensions must be positive.
func Fit(width, height, canvasWidth, canvasHeight int) Placement {
	w, h := float64(width), float64(height)
	cw, ch := float64(canvasWidth), float64(canvasHeight)

	// width/height > canvasWidth/canvasHeight, compared without division.
	if int64(width)*int64(canvasHeight) > int64(canvasWidth)*int64(height) {
		drawWidth := w * ch / h
		return Placement{
			DrawWidth:  drawWidth,
			DrawHeight: ch,
			DrawX:      (cw - drawWidth) / 2,
			DrawY:      0,
		}
	}

	drawHeight := h * cw / w
	return Placement{
		DrawWidth:  cw,
		DrawHeight: drawHeight,
		DrawX:      0,
		DrawY:      (ch - drawHeight) / 2,
	}
}

// Rect rounds the placement to a pixel rectangle. The result still covers
// the whole canvas.
func (p Placement) Rect() image.Rectangle {
	return image.Rect(
		int(math.Round(p.DrawX)),
		int(math.Round(p.DrawY)),
		int(math.Round(p.DrawX+p.DrawWidth)),
		int(math.Round(p.DrawY+p.DrawHeight)),
	)
}

// Rasterize allocates the canvas for spec, fills it with opaque black and
// draws src cover-fitted on top.
func Rasterize(src SourceImage, spec domain.FormatSpec) (*PixelBuffer, Placement) {
	buf := NewPixelBuffer(spec.CanvasWidth, spec.CanvasHeight)
	dst := buf.RGBA()
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	placement := Fit(src.Width, src.Height, spec.CanvasWidth, spec.CanvasHeight)
	draw.BiLinear.Scale(dst, placement.Rect(), src.Image, src.Image.Bounds(), draw.Over, nil)
	return buf, placement
}
