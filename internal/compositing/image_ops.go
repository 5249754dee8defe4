package compositing

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	xdraw "golang.org/x/image/draw"
)

// CoverDimensions scales an iw x ih image so it covers a tw x th target,
// centered. Offsets are negative on the axis that overflows.
func CoverDimensions(iw, ih, tw, th int) (w, h, offsetX, offsetY float64) {
	scale := math.Max(float64(tw)/float64(iw), float64(th)/float64(ih))
	w = float64(iw) * scale
	h = float64(ih) * scale
	offsetX = (float64(tw) - w) / 2
	offsetY = (float64(th) - h) / 2
	return w, h, offsetX, offsetY
}

// DrawCover draws src onto the whole of dst using cover scaling. When mirror
// is set the photo is flipped horizontally first, which matches flipping the
// drawn result since cover placement is centered.
func DrawCover(dst *image.RGBA, src image.Image, mirror bool) {
	sb := src.Bounds()
	db := dst.Bounds()
	if sb.Empty() || db.Empty() {
		return
	}
	if mirror {
		src = imaging.FlipH(src)
		sb = src.Bounds()
	}

	w, h, ox, oy := CoverDimensions(sb.Dx(), sb.Dy(), db.Dx(), db.Dy())
	x0 := db.Min.X + int(math.Round(ox))
	y0 := db.Min.Y + int(math.Round(oy))
	dr := image.Rect(x0, y0, x0+int(math.Round(w)), y0+int(math.Round(h)))

	xdraw.CatmullRom.Scale(dst, dr, src, sb, xdraw.Src, nil)
}

// Fill paints the whole surface with c.
func Fill(img *image.RGBA, c color.Color) {
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
}

// CloneRGBA returns a deep copy of img.
func CloneRGBA(img *image.RGBA) *image.RGBA {
	out := image.NewRGBA(img.Bounds())
	copy(out.Pix, img.Pix)
	return out
}

// ParseHexColor accepts #RGB, #RRGGBB and #RRGGBBAA.
func ParseHexColor(s string) (color.NRGBA, error) {
	hex, ok := strings.CutPrefix(strings.TrimSpace(s), "#")
	if !ok {
		return color.NRGBA{}, fmt.Errorf("color %q must start with #", s)
	}
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	if len(hex) != 8 {
		return color.NRGBA{}, fmt.Errorf("color %q has invalid length", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("color %q: %w", s, err)
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}

// HexColor formats c as #RRGGBB, ignoring alpha.
func HexColor(c color.NRGBA) string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}
