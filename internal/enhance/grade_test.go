package enhance

import (
	"math"
	"testing"

	"github.com/dunamismax/pixelgrade/internal/domain"
	"github.com/lucasb-eyer/go-colorful"
)

func TestHSLRoundTrip(t *testing.T) {
	for r := 0; r <= 255; r++ {
		for g := 0; g <= 255; g++ {
			for b := 0; b <= 255; b++ {
				h, s, l := rgbToHSL(float64(r)/255, float64(g)/255, float64(b)/255)
				rf, gf, bf := hslToRGB(h, s, l)
				gotR, gotG, gotB := toByte(rf*255), toByte(gf*255), toByte(bf*255)
				if gotR != uint8(r) || gotG != uint8(g) || gotB != uint8(b) {
					t.Fatalf("round trip (%d,%d,%d) -> (%d,%d,%d)", r, g, b, gotR, gotG, gotB)
				}
			}
		}
	}
}

func TestRGBToHSLMatchesColorful(t *testing.T) {
	samples := [][3]uint8{{255, 0, 0}, {12, 200, 90}, {30, 40, 250}, {182, 150, 118}, {250, 249, 10}}
	for _, s := range samples {
		h, sat, l := rgbToHSL(float64(s[0])/255, float64(s[1])/255, float64(s[2])/255)
		c := colorful.Color{R: float64(s[0]) / 255, G: float64(s[1]) / 255, B: float64(s[2]) / 255}
		wantH, wantS, wantL := c.Hsl()
		if math.Abs(h*360-wantH) > 1e-9 || math.Abs(sat-wantS) > 1e-9 || math.Abs(l-wantL) > 1e-9 {
			t.Fatalf("rgbToHSL(%v) = (%v,%v,%v), colorful says (%v,%v,%v)", s, h*360, sat, l, wantH, wantS, wantL)
		}
	}
}

func TestSaturationNeverColorsGray(t *testing.T) {
	multipliers := []float64{0, 0.5, 1, 1.3, 2, 5, 100}
	for v := 0; v <= 255; v++ {
		for _, m := range multipliers {
			p := domain.CategoryProfile{Brightness: 1, Contrast: 1, Saturation: m}
			r, g, b := gradePixel(uint8(v), uint8(v), uint8(v), p)
			if r != g || g != b {
				t.Fatalf("gray %d with saturation %v became (%d,%d,%d)", v, m, r, g, b)
			}
		}
	}
}

func TestGradePixelClampsExtremeMultipliers(t *testing.T) {
	tests := []struct {
		name    string
		in      [3]uint8
		profile domain.CategoryProfile
		want    [3]uint8
	}{
		{"huge brightness", [3]uint8{200, 100, 50}, domain.CategoryProfile{Brightness: 10, Contrast: 1, Saturation: 1}, [3]uint8{255, 255, 255}},
		{"zero brightness", [3]uint8{200, 100, 50}, domain.CategoryProfile{Brightness: 0, Contrast: 1, Saturation: 1}, [3]uint8{0, 0, 0}},
		{"huge contrast", [3]uint8{200, 100, 128}, domain.CategoryProfile{Brightness: 1, Contrast: 10, Saturation: 1}, [3]uint8{255, 0, 128}},
		{"zero contrast", [3]uint8{200, 100, 50}, domain.CategoryProfile{Brightness: 1, Contrast: 0, Saturation: 1}, [3]uint8{128, 128, 128}},
		{"zero saturation", [3]uint8{255, 0, 0}, domain.CategoryProfile{Brightness: 1, Contrast: 1, Saturation: 0}, [3]uint8{128, 128, 128}},
		{"negative saturation", [3]uint8{255, 0, 0}, domain.CategoryProfile{Brightness: 1, Contrast: 1, Saturation: -2}, [3]uint8{128, 128, 128}},
		{"negative brightness", [3]uint8{90, 90, 90}, domain.CategoryProfile{Brightness: -1, Contrast: 2.5, Saturation: 3}, [3]uint8{0, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, g, b := gradePixel(tt.in[0], tt.in[1], tt.in[2], tt.profile)
			if [3]uint8{r, g, b} != tt.want {
				t.Fatalf("gradePixel(%v) = (%d,%d,%d), want %v", tt.in, r, g, b, tt.want)
			}
		})
	}
}

func TestApplyNeutralProfileIsIdentity(t *testing.T) {
	buf := gradientBuffer(64, 48)
	before := buf.Clone()

	ApplyProfile(buf, domain.NeutralProfile)
	FlatWash(buf, 0)

	for i := range buf.Pix {
		if buf.Pix[i] != before.Pix[i] {
			t.Fatalf("byte %d changed from %d to %d", i, before.Pix[i], buf.Pix[i])
		}
	}
}

func TestProductProfileOnSolidRed(t *testing.T) {
	buf := NewPixelBuffer(100, 100)
	for i := 0; i < len(buf.Pix); i += 4 {
		buf.Pix[i], buf.Pix[i+1], buf.Pix[i+2], buf.Pix[i+3] = 255, 0, 0, 255
	}

	Grade(buf, domain.CategoryProduct)

	r, g, b, a := buf.At(50, 50)
	if r != 255 || g != 0 || b != 0 || a != 255 {
		t.Fatalf("expected graded red to stay (255,0,0,255), got (%d,%d,%d,%d)", r, g, b, a)
	}
	if r < g || r < b {
		t.Fatal("red must remain the dominant channel")
	}
}

func TestGradePixelQuantizesEachStep(t *testing.T) {
	tests := []struct {
		category domain.Category
		in       [3]uint8
		want     [3]uint8
	}{
		{domain.CategoryFood, [3]uint8{20, 55, 65}, [3]uint8{0, 49, 62}},
		{domain.CategoryBeauty, [3]uint8{150, 95, 80}, [3]uint8{171, 97, 76}},
		{domain.CategoryApparel, [3]uint8{90, 140, 60}, [3]uint8{94, 164, 53}},
		{domain.CategoryEvent, [3]uint8{200, 120, 40}, [3]uint8{251, 125, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.category.String(), func(t *testing.T) {
			profile, _ := tt.category.Profile()
			r, g, b := gradePixel(tt.in[0], tt.in[1], tt.in[2], profile)
			if [3]uint8{r, g, b} != tt.want {
				t.Fatalf("gradePixel(%v) = (%d,%d,%d), want %v", tt.in, r, g, b, tt.want)
			}
		})
	}
}

// The fallback is affine per channel, so hue only moves by the rounding of
// each channel to a byte. For channel spreads of 60 levels or more that stays
// under 1.5 degrees.
func TestGradeUnknownCategoryPreservesHue(t *testing.T) {
	tests := []struct {
		in       [3]uint8
		want     [3]uint8
		maxDrift float64
	}{
		{[3]uint8{182, 150, 118}, [3]uint8{138, 133, 128}, 0},
		{[3]uint8{200, 40, 40}, [3]uint8{141, 116, 116}, 0},
		{[3]uint8{30, 220, 90}, [3]uint8{114, 144, 124}, 1.5},
		{[3]uint8{60, 80, 240}, [3]uint8{119, 122, 147}, 1.5},
		{[3]uint8{240, 200, 20}, [3]uint8{147, 141, 113}, 1.5},
		{[3]uint8{120, 30, 200}, [3]uint8{128, 114, 141}, 1.5},
		{[3]uint8{10, 120, 245}, [3]uint8{111, 128, 148}, 1.5},
		{[3]uint8{245, 5, 130}, [3]uint8{148, 110, 130}, 1.5},
	}
	for _, tt := range tests {
		buf := NewPixelBuffer(1, 1)
		copy(buf.Pix, []uint8{tt.in[0], tt.in[1], tt.in[2], 255})

		Grade(buf, domain.CategoryNone)

		r, g, b, a := buf.At(0, 0)
		if [3]uint8{r, g, b} != tt.want || a != 255 {
			t.Fatalf("neutral fallback of %v = (%d,%d,%d,%d), want %v", tt.in, r, g, b, a, tt.want)
		}
		hBefore, _, _ := rgbToHSL(float64(tt.in[0])/255, float64(tt.in[1])/255, float64(tt.in[2])/255)
		hAfter, _, _ := rgbToHSL(float64(r)/255, float64(g)/255, float64(b)/255)
		drift := math.Abs(hBefore-hAfter) * 360
		drift = math.Min(drift, 360-drift)
		if drift > tt.maxDrift+1e-9 {
			t.Fatalf("hue of %v moved %.3f degrees, want at most %.1f", tt.in, drift, tt.maxDrift)
		}
	}
}

func TestGradeNeutralClamps(t *testing.T) {
	buf := NewPixelBuffer(3, 1)
	copy(buf.Pix, []uint8{0, 250, 255, 255, 128, 118, 5, 255, 134, 166, 102, 255})

	GradeNeutral(buf)

	// The last pixel lands exactly on .5 in every channel and rounds to even.
	want := []uint8{110, 148, 148, 255, 130, 128, 110, 255, 130, 136, 126, 255}
	for i := range want {
		if buf.Pix[i] != want[i] {
			t.Fatalf("byte %d = %d, want %d (buffer %v)", i, buf.Pix[i], want[i], buf.Pix)
		}
	}
}

func TestBlurKeepsSolidColor(t *testing.T) {
	buf := NewPixelBuffer(16, 16)
	for i := 0; i < len(buf.Pix); i += 4 {
		buf.Pix[i], buf.Pix[i+1], buf.Pix[i+2], buf.Pix[i+3] = 40, 80, 120, 255
	}

	Blur(buf, 0.5)

	r, g, b, a := buf.At(8, 8)
	if r != 40 || g != 80 || b != 120 || a != 255 {
		t.Fatalf("blur changed a solid field to (%d,%d,%d,%d)", r, g, b, a)
	}
}

func BenchmarkApplyProfile(b *testing.B) {
	buf := gradientBuffer(1080, 1920)
	profile, _ := domain.CategoryFood.Profile()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ApplyProfile(buf, profile)
	}
}

func gradientBuffer(w, h int) *PixelBuffer {
	buf := NewPixelBuffer(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := (y*w + x) * 4
			buf.Pix[i] = uint8((x * 255) / w)
			buf.Pix[i+1] = uint8((y * 255) / h)
			buf.Pix[i+2] = uint8(((x + y) * 7) % 256)
			buf.Pix[i+3] = 255
		}
	}
	return buf
}
