package filter

import (
	"image"
	"math"
	"math/rand"
)

// clampByte stores v the way a clamped 8-bit channel does: clamp to [0,255],
// then round half to even.
func clampByte(v float64) uint8 {
	if !(v > 0) {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(math.RoundToEven(v))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

var sharpenKernel = [9]float64{-1, -1, -1, -1, 9, -1, -1, -1, -1}

// Sharpen convolves interior pixels with a 3x3 Laplacian kernel and blends
// the result with the original by strength value/50 (capped at 1.5). Border
// pixels and alpha are left untouched.
func Sharpen(img *image.RGBA, value float64) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < 3 || h < 3 {
		return
	}
	mix := clamp(value/50, 0, 1.5)
	invMix := 1 - mix

	src := make([]uint8, len(img.Pix))
	copy(src, img.Pix)
	stride := img.Stride

	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			var r, g, bl float64
			k := 0
			for ky := -1; ky <= 1; ky++ {
				row := (y + ky) * stride
				for kx := -1; kx <= 1; kx++ {
					i := row + (x+kx)*4
					weight := sharpenKernel[k]
					k++
					r += float64(src[i]) * weight
					g += float64(src[i+1]) * weight
					bl += float64(src[i+2]) * weight
				}
			}
			i := y*stride + x*4
			img.Pix[i] = clampByte(float64(src[i])*invMix + r*mix)
			img.Pix[i+1] = clampByte(float64(src[i+1])*invMix + g*mix)
			img.Pix[i+2] = clampByte(float64(src[i+2])*invMix + bl*mix)
		}
	}
}

// Shadows scales pixels darker than mid-grey. Positive values lift them,
// negative values deepen them; the darker the pixel the stronger the effect.
func Shadows(img *image.RGBA, value float64) {
	if value == 0 {
		return
	}
	strength := clamp(math.Abs(value)/100, 0, 1)
	forEachPixel(img, func(p []uint8) {
		l := (float64(p[0]) + float64(p[1]) + float64(p[2])) / 3
		if l >= 128 {
			return
		}
		var f float64
		if value > 0 {
			f = 1 + strength*(1-l/128)
		} else {
			f = 1 - strength*(1-l/128)
		}
		scale(p, f)
	})
}

// Highlights mirrors Shadows for pixels brighter than mid-grey.
func Highlights(img *image.RGBA, value float64) {
	if value == 0 {
		return
	}
	strength := clamp(math.Abs(value)/100, 0, 1)
	forEachPixel(img, func(p []uint8) {
		l := (float64(p[0]) + float64(p[1]) + float64(p[2])) / 3
		if l <= 128 {
			return
		}
		var f float64
		if value > 0 {
			f = 1 + strength*(l/128-1)
		} else {
			f = 1 - strength*(l/128-1)
		}
		scale(p, f)
	})
}

// Temperature shifts red against blue. Warm shifts push red harder, cool
// shifts push blue harder.
func Temperature(img *image.RGBA, value float64) {
	if value == 0 {
		return
	}
	strength := clamp(value/100, -1, 1)
	forEachPixel(img, func(p []uint8) {
		if strength > 0 {
			p[0] = clampByte(float64(p[0]) + 255*strength*0.5)
			p[2] = clampByte(float64(p[2]) - 255*strength*0.3)
		} else {
			p[0] = clampByte(float64(p[0]) + 255*strength*0.3)
			p[2] = clampByte(float64(p[2]) - 255*strength*0.5)
		}
	})
}

// noiseSeed keeps grain identical across re-renders of the same photo.
const noiseSeed = 0x5eed

// Noise adds the same random offset in [-2.55v, 2.55v] to all three channels
// of each pixel.
func Noise(img *image.RGBA, value float64) {
	if value == 0 {
		return
	}
	amount := math.Abs(value) * 2.55
	rng := rand.New(rand.NewSource(noiseSeed))
	forEachPixel(img, func(p []uint8) {
		n := rng.Float64()*2*amount - amount
		p[0] = clampByte(float64(p[0]) + n)
		p[1] = clampByte(float64(p[1]) + n)
		p[2] = clampByte(float64(p[2]) + n)
	})
}

// Vignette darkens toward the corners. value 100 fades the far corners to
// black.
func Vignette(img *image.RGBA, value float64) {
	if value <= 0 {
		return
	}
	strength := clamp(value/100, 0, 1)
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	cx, cy := float64(w)/2, float64(h)/2
	maxDist := math.Hypot(cx, cy)
	if maxDist == 0 {
		return
	}
	for y := 0; y < h; y++ {
		row := y * img.Stride
		for x := 0; x < w; x++ {
			d := math.Hypot(float64(x)+0.5-cx, float64(y)+0.5-cy) / maxDist
			f := 1 - strength*smoothstep(0.5, 1, d)
			scale(img.Pix[row+x*4:row+x*4+4], f)
		}
	}
}

func smoothstep(edge0, edge1, x float64) float64 {
	t := clamp((x-edge0)/(edge1-edge0), 0, 1)
	return t * t * (3 - 2*t)
}

func scale(p []uint8, f float64) {
	p[0] = clampByte(float64(p[0]) * f)
	p[1] = clampByte(float64(p[1]) * f)
	p[2] = clampByte(float64(p[2]) * f)
}

// forEachPixel visits the RGBA quadruple of every pixel in row-major order.
func forEachPixel(img *image.RGBA, fn func(p []uint8)) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	for y := 0; y < h; y++ {
		row := y * img.Stride
		for x := 0; x < w; x++ {
			i := row + x*4
			fn(img.Pix[i : i+4 : i+4])
		}
	}
}
