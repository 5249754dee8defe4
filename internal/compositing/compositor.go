// Package compositing renders photo strips as two independently cached
// layers: a base layer of border and filtered photos, and an overlay layer of
// custom text and the date/time stamp.
package compositing

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/sync/errgroup"

	"go-photostrip-server/internal/errs"
	"go-photostrip-server/internal/filter"
	"go-photostrip-server/internal/frame"
	"go-photostrip-server/internal/photo"
)

// BaseParams are the inputs of the base layer.
type BaseParams struct {
	Layout      frame.Layout
	Preset      string
	BorderColor color.NRGBA
}

// OverlayParams are the inputs of the overlay layer.
type OverlayParams struct {
	Layout     frame.Layout
	Text       TextConfig
	DateFormat string
	TimeFormat string
	At         time.Time
}

// BaseLayer is a rendered base layer. Failures lists photos drawn without
// their filter. Image is shared with the cache and must not be modified.
type BaseLayer struct {
	Image    *image.RGBA
	Failures []error
}

// OverlayLayer is a rendered overlay layer. TextPending is set when the
// custom text font had not loaded yet and the text was left out.
type OverlayLayer struct {
	Image       *image.RGBA
	TextPending bool
}

// Compositor renders and caches strip layers.
type Compositor struct {
	engine      *filter.Engine
	fonts       *FontBook
	jpegQuality int

	mu         sync.Mutex
	baseKey    string
	base       *BaseLayer
	overlayKey string
	overlay    *OverlayLayer

	baseRenders    atomic.Int64
	overlayRenders atomic.Int64
}

// NewCompositor creates a new compositor with the specified JPEG quality
func NewCompositor(engine *filter.Engine, fonts *FontBook, jpegQuality int) *Compositor {
	if fonts == nil {
		fonts = NewFontBook(nil)
	}
	return &Compositor{
		engine:      engine,
		fonts:       fonts,
		jpegQuality: jpegQuality,
	}
}

// Fonts returns the font book used for overlay text.
func (c *Compositor) Fonts() *FontBook {
	return c.fonts
}

// Renders reports how many times each layer was actually drawn, cache hits
// excluded.
func (c *Compositor) Renders() (base, overlay int64) {
	return c.baseRenders.Load(), c.overlayRenders.Load()
}

func layoutKey(l frame.Layout) string {
	key := fmt.Sprintf("%s %dx%d c%v p%v %+v %+v", l.ID, l.GridRows, l.GridCols, l.Canvas, l.Photo, l.Padding, l.Gap)
	if l.Datetime != nil {
		key += fmt.Sprintf(" dt%+v", *l.Datetime)
	}
	return key
}

func baseKey(images []photo.Loaded, p BaseParams) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s|%s|%s|%d", layoutKey(p.Layout), p.Preset, HexColor(p.BorderColor), p.BorderColor.A)
	for _, img := range images {
		fmt.Fprintf(&b, "|%d:%s:%p", img.Timestamp, img.FacingMode, img.Image)
	}
	return b.String()
}

// RenderBase fills the canvas with the border color and draws the photos in
// capture order into their grid cells. A photo whose filter fails is drawn
// unfiltered and the failure is reported in BaseLayer.Failures.
func (c *Compositor) RenderBase(ctx context.Context, images []photo.Loaded, p BaseParams) (*BaseLayer, error) {
	if err := p.Layout.Validate(); err != nil {
		return nil, errs.New(errs.RenderFailed, "compositing.RenderBase", err)
	}
	key := baseKey(images, p)
	c.mu.Lock()
	if c.base != nil && c.baseKey == key {
		cached := c.base
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	l := p.Layout
	canvas := image.NewRGBA(image.Rect(0, 0, l.Canvas.Width, l.Canvas.Height))
	Fill(canvas, p.BorderColor)

	sorted := photo.SortByTimestamp(images)
	if len(sorted) > l.TotalSlots() {
		sorted = sorted[:l.TotalSlots()]
	}

	cells := make([]*image.RGBA, len(sorted))
	failures := make([]error, len(sorted))
	g, gctx := errgroup.WithContext(ctx)
	for i, img := range sorted {
		i, img := i, img
		g.Go(func() error {
			cell, err := c.renderPhoto(gctx, img, l.Photo, p.Preset)
			if err != nil {
				failures[i] = fmt.Errorf("photo %d: %w", i+1, err)
			}
			cells[i] = cell
			return gctx.Err()
		})
	}
	waitErr := g.Wait()
	defer func() {
		for _, cell := range cells {
			ReturnPooledImageForSize(cell)
		}
	}()
	if waitErr != nil {
		return nil, waitErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for i, cell := range cells {
		if cell == nil {
			continue
		}
		draw.Draw(canvas, l.Cell(i), cell, image.Point{}, draw.Over)
	}

	layer := &BaseLayer{Image: canvas}
	for _, err := range failures {
		if err != nil {
			layer.Failures = append(layer.Failures, err)
		}
	}
	c.baseRenders.Add(1)

	c.mu.Lock()
	c.baseKey, c.base = key, layer
	c.mu.Unlock()
	return layer, nil
}

// renderPhoto scales, mirrors and filters one photo in its own off-screen
// buffer. On filter failure the unfiltered buffer is returned with the error.
func (c *Compositor) renderPhoto(ctx context.Context, img photo.Loaded, size frame.Size, preset string) (*image.RGBA, error) {
	raw := GetPooledImageForSize(size.Width, size.Height)
	DrawCover(raw, img.Image, img.FacingMode.Mirrored())
	if c.engine == nil {
		return raw, nil
	}

	filtered := GetPooledImageForSize(size.Width, size.Height)
	copy(filtered.Pix, raw.Pix)
	if err := c.engine.Apply(ctx, filtered, preset); err != nil {
		ReturnPooledImageForSize(filtered)
		return raw, err
	}
	ReturnPooledImageForSize(raw)
	return filtered, nil
}

func overlayKey(p OverlayParams, stamp string, textReady bool) string {
	return fmt.Sprintf("%s|%+v|%s|%t", layoutKey(p.Layout), p.Text, stamp, textReady)
}

// RenderOverlay draws the custom text and the date/time stamp on a
// transparent surface the size of the layout canvas.
func (c *Compositor) RenderOverlay(ctx context.Context, p OverlayParams) (*OverlayLayer, error) {
	if err := p.Layout.Validate(); err != nil {
		return nil, errs.New(errs.RenderFailed, "compositing.RenderOverlay", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stamp := ""
	if p.Layout.Datetime != nil {
		stamp = Stamp(p.At, p.DateFormat, p.TimeFormat)
	}

	var textFace font.Face
	textReady := true
	hasText := strings.TrimSpace(p.Text.Text) != ""
	if hasText {
		size := p.Text.Size
		if size <= 0 {
			size = DefaultTextConfig().Size
		}
		face, ok := c.fonts.Face(p.Text.Font, size)
		if ok {
			textFace = face
			defer face.Close()
		}
		textReady = ok
	}

	key := overlayKey(p, stamp, textReady)
	c.mu.Lock()
	if c.overlay != nil && c.overlayKey == key {
		cached := c.overlay
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	l := p.Layout
	surface := image.NewRGBA(image.Rect(0, 0, l.Canvas.Width, l.Canvas.Height))

	if hasText && textFace != nil {
		col, err := ParseHexColor(p.Text.Color)
		if err != nil {
			col, _ = ParseHexColor(DefaultTextConfig().Color)
		}
		x := l.Padding.Left + p.Text.Position.X
		y := l.Canvas.Height - l.Padding.Top - p.Text.Position.Y
		drawText(surface, textFace, col, x, y, p.Text.Text)
	}

	if stamp != "" {
		face, ok := c.fonts.Face(StampFont, stampSize)
		if !ok {
			select {
			case <-c.fonts.Request(StampFont):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			face, ok = c.fonts.Face(StampFont, stampSize)
		}
		if ok {
			a := l.Datetime
			x := alignedX(face, stamp, a.X, string(a.Align))
			drawShadowedText(surface, face, stampColor, x, a.Y, stamp)
			face.Close()
		}
	}

	layer := &OverlayLayer{Image: surface, TextPending: hasText && !textReady}
	c.overlayRenders.Add(1)

	c.mu.Lock()
	c.overlayKey, c.overlay = key, layer
	c.mu.Unlock()
	return layer, nil
}

// CompositeFinal merges the base and overlay layers into a new surface.
func CompositeFinal(base, overlay *image.RGBA) *image.RGBA {
	out := CloneRGBA(base)
	if overlay != nil {
		draw.Draw(out, out.Bounds(), overlay, overlay.Bounds().Min, draw.Over)
	}
	return out
}

// EncodeJPEG encodes an image to JPEG format
func (c *Compositor) EncodeJPEG(img image.Image) ([]byte, error) {
	// Get pooled buffer
	buf := BufferPool.Get().(*bytes.Buffer)
	defer BufferPool.Put(buf)
	buf.Reset()

	opts := &jpeg.Options{Quality: c.jpegQuality}
	if err := jpeg.Encode(buf, img, opts); err != nil {
		return nil, fmt.Errorf("JPEG encoding failed: %w", err)
	}

	// Copy to new slice (buf will be returned to pool)
	result := make([]byte, buf.Len())
	copy(result, buf.Bytes())

	return result, nil
}

// EncodePNG encodes a layer keeping its transparency.
func EncodePNG(img image.Image) ([]byte, error) {
	buf := BufferPool.Get().(*bytes.Buffer)
	defer BufferPool.Put(buf)
	buf.Reset()

	if err := imaging.Encode(buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("PNG encoding failed: %w", err)
	}
	result := make([]byte, buf.Len())
	copy(result, buf.Bytes())
	return result, nil
}
