package filter

import (
	"image"
	"image/color"
	"math"
	"testing"
)

// gradient builds a deterministic test pattern with full alpha.
func gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: uint8((x*37 + y*11) % 256),
				G: uint8((x*13 + y*53) % 256),
				B: uint8((x*7 + y*29 + 90) % 256),
				A: 255,
			})
		}
	}
	return img
}

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func clone(img *image.RGBA) *image.RGBA {
	out := image.NewRGBA(img.Bounds())
	copy(out.Pix, img.Pix)
	return out
}

// convolved computes the unclamped kernel response at (x, y).
func convolved(img *image.RGBA, x, y, ch int) float64 {
	var sum float64
	k := 0
	for ky := -1; ky <= 1; ky++ {
		for kx := -1; kx <= 1; kx++ {
			sum += float64(img.Pix[img.PixOffset(x+kx, y+ky)+ch]) * sharpenKernel[k]
			k++
		}
	}
	return sum
}

func TestClampByte(t *testing.T) {
	tests := []struct {
		in   float64
		want uint8
	}{
		{-3, 0},
		{0, 0},
		{0.5, 0},
		{1.5, 2},
		{2.5, 2},
		{254.6, 255},
		{300, 255},
		{math.NaN(), 0},
	}
	for _, tt := range tests {
		if got := clampByte(tt.in); got != tt.want {
			t.Errorf("clampByte(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestSharpenZeroIsIdentity(t *testing.T) {
	img := gradient(16, 12)
	orig := clone(img)
	Sharpen(img, 0)
	for i := range img.Pix {
		if img.Pix[i] != orig.Pix[i] {
			t.Fatalf("pixel byte %d changed: %d -> %d", i, orig.Pix[i], img.Pix[i])
		}
	}
}

func TestSharpenFullStrengthUsesConvolution(t *testing.T) {
	img := gradient(10, 8)
	orig := clone(img)
	Sharpen(img, 50) // strength 1: output is the clamped convolution

	for y := 1; y < 7; y++ {
		for x := 1; x < 9; x++ {
			for ch := 0; ch < 3; ch++ {
				want := clampByte(convolved(orig, x, y, ch))
				if got := img.Pix[img.PixOffset(x, y)+ch]; got != want {
					t.Fatalf("(%d,%d) ch%d = %d, want %d", x, y, ch, got, want)
				}
			}
		}
	}
}

func TestSharpenMaxStrengthBlend(t *testing.T) {
	img := gradient(10, 8)
	orig := clone(img)
	Sharpen(img, 100) // strength capped at 1.5

	for y := 1; y < 7; y++ {
		for x := 1; x < 9; x++ {
			for ch := 0; ch < 3; ch++ {
				o := float64(orig.Pix[orig.PixOffset(x, y)+ch])
				want := clampByte(o*(1-1.5) + convolved(orig, x, y, ch)*1.5)
				if got := img.Pix[img.PixOffset(x, y)+ch]; got != want {
					t.Fatalf("(%d,%d) ch%d = %d, want %d", x, y, ch, got, want)
				}
			}
		}
	}
}

func TestSharpenLeavesBorderAndAlpha(t *testing.T) {
	img := gradient(8, 8)
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 200
	}
	orig := clone(img)
	Sharpen(img, 80)

	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			off := img.PixOffset(x, y)
			if img.Pix[off+3] != 200 {
				t.Fatalf("alpha changed at (%d,%d)", x, y)
			}
			border := x == 0 || y == 0 || x == 7 || y == 7
			if border && img.RGBAAt(x, y) != orig.RGBAAt(x, y) {
				t.Fatalf("border pixel (%d,%d) changed", x, y)
			}
		}
	}
}

func TestShadowsHighlightsZeroIsNoop(t *testing.T) {
	img := gradient(20, 20)
	orig := clone(img)
	Shadows(img, 0)
	Highlights(img, 0)
	Temperature(img, 0)
	for i := range img.Pix {
		if img.Pix[i] != orig.Pix[i] {
			t.Fatalf("byte %d changed", i)
		}
	}
}

func TestShadowsMonotonic(t *testing.T) {
	dark := color.RGBA{R: 40, G: 40, B: 40, A: 255}
	prev := -1
	for _, v := range []float64{25, 50, 100} {
		img := solid(2, 2, dark)
		Shadows(img, v)
		got := int(img.Pix[0])
		if got <= prev {
			t.Errorf("Shadows(+%v) = %d, not above %d", v, got, prev)
		}
		prev = got
	}

	prev = 256
	for _, v := range []float64{-25, -50, -100} {
		img := solid(2, 2, dark)
		Shadows(img, v)
		got := int(img.Pix[0])
		if got >= prev {
			t.Errorf("Shadows(%v) = %d, not below %d", v, got, prev)
		}
		prev = got
	}

	// Bright pixels are out of range for shadows.
	bright := solid(2, 2, color.RGBA{R: 200, G: 200, B: 200, A: 255})
	Shadows(bright, 100)
	if bright.Pix[0] != 200 {
		t.Errorf("Shadows touched a bright pixel: %d", bright.Pix[0])
	}
}

func TestHighlightsMonotonic(t *testing.T) {
	light := color.RGBA{R: 160, G: 160, B: 160, A: 255}
	want := map[float64]uint8{25: 170, 50: 180, 100: 200, -25: 150, -50: 140, -100: 120}
	for v, w := range want {
		img := solid(2, 2, light)
		Highlights(img, v)
		if img.Pix[0] != w {
			t.Errorf("Highlights(%v) = %d, want %d", v, img.Pix[0], w)
		}
	}

	darkImg := solid(2, 2, color.RGBA{R: 60, G: 60, B: 60, A: 255})
	Highlights(darkImg, 100)
	if darkImg.Pix[0] != 60 {
		t.Errorf("Highlights touched a dark pixel: %d", darkImg.Pix[0])
	}
}

func TestTemperatureAsymmetry(t *testing.T) {
	grey := color.RGBA{R: 100, G: 100, B: 100, A: 255}

	warm := solid(1, 1, grey)
	Temperature(warm, 100)
	// R += 127.5 -> 227.5 rounds to 228; B -= 76.5 -> 23.5 rounds to 24.
	if got := warm.RGBAAt(0, 0); got.R != 228 || got.G != 100 || got.B != 24 {
		t.Errorf("warm = %+v, want R228 G100 B24", got)
	}

	cool := solid(1, 1, grey)
	Temperature(cool, -100)
	// R -= 76.5 -> 23.5 rounds to 24; B += 127.5 -> 227.5 rounds to 228.
	if got := cool.RGBAAt(0, 0); got.R != 24 || got.G != 100 || got.B != 228 {
		t.Errorf("cool = %+v, want R24 G100 B228", got)
	}
}

func TestNoiseIsDeterministic(t *testing.T) {
	a := gradient(12, 12)
	b := clone(a)
	Noise(a, 30)
	Noise(b, 30)
	for i := range a.Pix {
		if a.Pix[i] != b.Pix[i] {
			t.Fatalf("noise differs at byte %d", i)
		}
	}
}

func TestVignetteDarkensCorners(t *testing.T) {
	img := solid(41, 41, color.RGBA{R: 200, G: 200, B: 200, A: 255})
	Vignette(img, 100)
	center := img.RGBAAt(20, 20)
	corner := img.RGBAAt(0, 0)
	if center.R != 200 {
		t.Errorf("center changed to %d", center.R)
	}
	if corner.R >= 100 {
		t.Errorf("corner = %d, expected heavy darkening", corner.R)
	}
}

func BenchmarkSharpen(b *testing.B) {
	img := gradient(1111, 1406)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Sharpen(img, 35)
	}
}

func BenchmarkShadows(b *testing.B) {
	img := gradient(1111, 1406)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Shadows(img, 20)
	}
}
