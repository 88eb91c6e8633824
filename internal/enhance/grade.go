package enhance

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
	"github.com/dunamismax/pixelgrade/internal/domain"
	"golang.org/x/image/draw"
)

// Neutral fallback applied when no category resolves: a flat brightness lift
// followed by a contrast pivot around mid-gray. Saturation is untouched.
const (
	NeutralBrightnessShift = 10.0
	NeutralContrastFactor  = 20.0 / 128.0
)

const contrastPivot = 128.0

// Grade applies the category's look to buf in place. Categories without a
// profile get the neutral fallback.
func Grade(buf *PixelBuffer, category domain.Category) {
	profile, ok := category.Profile()
	if !ok {
		GradeNeutral(buf)
		return
	}
	ApplyProfile(buf, profile)
	if profile.BlurRadius > 0 {
		Blur(buf, profile.BlurRadius)
	}
}

// ApplyProfile runs brightness, contrast and saturation over every pixel.
// Alpha is left as is.
func ApplyProfile(buf *PixelBuffer, p domain.CategoryProfile) {
	pix := buf.Pix
	for i := 0; i+3 < len(pix); i += 4 {
		pix[i], pix[i+1], pix[i+2] = gradePixel(pix[i], pix[i+1], pix[i+2], p)
	}
}

// gradePixel stores every intermediate step back into a byte, so brightness
// and contrast are quantized before the HSL conversion sees them.
func gradePixel(r8, g8, b8 uint8, p domain.CategoryProfile) (uint8, uint8, uint8) {
	r := quantize(float64(r8) * p.Brightness)
	g := quantize(float64(g8) * p.Brightness)
	b := quantize(float64(b8) * p.Brightness)

	r = quantize((float64(r)-contrastPivot)*p.Contrast + contrastPivot)
	g = quantize((float64(g)-contrastPivot)*p.Contrast + contrastPivot)
	b = quantize((float64(b)-contrastPivot)*p.Contrast + contrastPivot)

	h, s, l := rgbToHSL(float64(r)/255, float64(g)/255, float64(b)/255)
	s = clampUnit(s * p.Saturation)
	rf, gf, bf := hslToRGB(h, s, l)

	return toByte(rf * 255), toByte(gf * 255), toByte(bf * 255)
}

// GradeNeutral applies the fallback adjustment in place.
func GradeNeutral(buf *PixelBuffer) {
	pix := buf.Pix
	for i := 0; i+3 < len(pix); i += 4 {
		pix[i] = neutralChannel(pix[i])
		pix[i+1] = neutralChannel(pix[i+1])
		pix[i+2] = neutralChannel(pix[i+2])
	}
}

func neutralChannel(c uint8) uint8 {
	v := quantize(float64(c) + NeutralBrightnessShift)
	return quantize((float64(v)-contrastPivot)*NeutralContrastFactor + contrastPivot)
}

// Blur is a Gaussian low-pass with the given sigma in pixels.
func Blur(buf *PixelBuffer, sigma float64) {
	if sigma <= 0 || !buf.valid() {
		return
	}
	dst := buf.RGBA()
	blurred := imaging.Blur(dst, sigma)
	draw.Draw(dst, dst.Bounds(), blurred, image.Point{}, draw.Src)
}

func clampChannel(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 255:
		return 255
	default:
		return v
	}
}

func clampUnit(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func toByte(v float64) uint8 {
	return uint8(clampChannel(math.Round(v)))
}

// quantize clamps v to a byte, rounding halves to even.
func quantize(v float64) uint8 {
	return uint8(math.RoundToEven(clampChannel(v)))
}
