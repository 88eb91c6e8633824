package enhance

import (
	"testing"

	"github.com/dunamismax/pixelgrade/internal/domain"
)

func TestFlatWash(t *testing.T) {
	buf := filledBuffer(4, 4, 200, 255, 101)

	Composite(buf, domain.OverlayFlatWash)

	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			r, g, b, a := buf.At(x, y)
			if r != 80 || g != 102 || b != 40 || a != 255 {
				t.Fatalf("pixel (%d,%d) = (%d,%d,%d,%d), want (80,102,40,255)", x, y, r, g, b, a)
			}
		}
	}
}

func TestTopGradient(t *testing.T) {
	buf := filledBuffer(10, 100, 200, 200, 200)

	Composite(buf, domain.OverlayTopGradient)

	if r, _, _, _ := buf.At(0, 0); r != 61 {
		t.Fatalf("top row = %d, want 61", r)
	}
	if r, _, _, _ := buf.At(5, 49); r != 199 {
		t.Fatalf("last gradient row = %d, want 199", r)
	}
	for y := 50; y < 100; y++ {
		if r, g, b, _ := buf.At(3, y); r != 200 || g != 200 || b != 200 {
			t.Fatalf("row %d below midpoint changed to (%d,%d,%d)", y, r, g, b)
		}
	}

	prev := uint8(0)
	for y := 0; y < 100; y++ {
		r, _, _, _ := buf.At(0, y)
		if r < prev {
			t.Fatalf("gradient darkens downward at row %d: %d < %d", y, r, prev)
		}
		prev = r
	}
}

func TestOverlayNoneAndZeroOpacityAreNoops(t *testing.T) {
	buf := gradientBuffer(32, 32)
	before := buf.Clone()

	Composite(buf, domain.OverlayNone)
	FlatWash(buf, 0)
	TopGradient(buf, 0)

	for i := range buf.Pix {
		if buf.Pix[i] != before.Pix[i] {
			t.Fatalf("byte %d changed from %d to %d", i, before.Pix[i], buf.Pix[i])
		}
	}
}

func filledBuffer(w, h int, r, g, b uint8) *PixelBuffer {
	buf := NewPixelBuffer(w, h)
	for i := 0; i < len(buf.Pix); i += 4 {
		buf.Pix[i], buf.Pix[i+1], buf.Pix[i+2], buf.Pix[i+3] = r, g, b, 255
	}
	return buf
}
