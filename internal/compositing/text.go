package compositing

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"log"
	"os"
	"sort"
	"sync"

	"github.com/disintegration/gift"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/gomonobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// Position offsets custom text from the bottom-left photo corner.
type Position struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
}

// TextConfig is the free-text overlay chosen in the editor.
type TextConfig struct {
	Text     string   `json:"text" yaml:"text"`
	Font     string   `json:"font" yaml:"font"`
	Position Position `json:"position" yaml:"position"`
	Color    string   `json:"color" yaml:"color"`
	Size     float64  `json:"size" yaml:"size"`
}

// DefaultTextConfig is the editor's initial text style.
func DefaultTextConfig() TextConfig {
	return TextConfig{Font: "PlayfairDisplay", Color: "#FFFFFF", Size: 48}
}

const (
	// FallbackFont is used for ids nobody registered.
	FallbackFont = "GoRegular"
	// StampFont draws the date/time stamp.
	StampFont = "GoMonoBold"
	stampSize = 40
)

var (
	stampColor  = color.NRGBA{R: 255, G: 153, B: 51, A: 255}
	shadowColor = color.NRGBA{A: 160}
)

type fontSource func() ([]byte, error)

type fontEntry struct {
	once  sync.Once
	ready chan struct{}
	font  *opentype.Font
	err   error
	load  fontSource
}

// FontBook loads fonts in the background the first time they are requested.
// Text drawn with a font that has not finished loading is skipped until the
// font is ready.
type FontBook struct {
	mu      sync.Mutex
	entries map[string]*fontEntry
}

// NewFontBook registers the bundled Go fonts plus the given id -> file path
// map.
func NewFontBook(files map[string]string) *FontBook {
	fb := &FontBook{entries: make(map[string]*fontEntry)}
	for id, ttf := range map[string][]byte{
		"GoRegular":  goregular.TTF,
		"GoBold":     gobold.TTF,
		"GoItalic":   goitalic.TTF,
		"GoMono":     gomono.TTF,
		"GoMonoBold": gomonobold.TTF,
	} {
		fb.register(id, func() ([]byte, error) { return ttf, nil })
	}
	for id, path := range files {
		fb.register(id, func() ([]byte, error) { return os.ReadFile(path) })
	}
	return fb
}

func (fb *FontBook) register(id string, load fontSource) {
	fb.entries[id] = &fontEntry{ready: make(chan struct{}), load: load}
}

func (fb *FontBook) entry(id string) *fontEntry {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if e, ok := fb.entries[id]; ok {
		return e
	}
	return fb.entries[FallbackFont]
}

// Has reports whether id was registered.
func (fb *FontBook) Has(id string) bool {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	_, ok := fb.entries[id]
	return ok
}

// IDs lists the registered font ids in sorted order.
func (fb *FontBook) IDs() []string {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	ids := make([]string, 0, len(fb.entries))
	for id := range fb.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Request starts loading id and returns a channel closed once it finished,
// successfully or not.
func (fb *FontBook) Request(id string) <-chan struct{} {
	e := fb.entry(id)
	e.once.Do(func() {
		go func() {
			defer close(e.ready)
			data, err := e.load()
			if err != nil {
				e.err = fmt.Errorf("failed to read font %s: %w", id, err)
				log.Printf("⚠️  %v", e.err)
				return
			}
			f, err := opentype.Parse(data)
			if err != nil {
				e.err = fmt.Errorf("failed to parse font %s: %w", id, err)
				log.Printf("⚠️  %v", e.err)
				return
			}
			e.font = f
		}()
	})
	return e.ready
}

// Face returns a face for id at size pixels if the font has loaded. It
// starts loading on first use and reports false until then.
func (fb *FontBook) Face(id string, size float64) (font.Face, bool) {
	e := fb.entry(id)
	ready := fb.Request(id)
	select {
	case <-ready:
	default:
		return nil, false
	}
	if e.font == nil {
		if id == FallbackFont {
			return nil, false
		}
		// Unreadable font files fall back to the bundled face.
		return fb.Face(FallbackFont, size)
	}
	face, err := opentype.NewFace(e.font, &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		return nil, false
	}
	return face, true
}

// drawText draws s with its baseline starting at (x, y).
func drawText(dst draw.Image, face font.Face, c color.Color, x, y int, s string) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

// alignedX returns the left edge for text anchored at x.
func alignedX(face font.Face, s string, x int, align string) int {
	w := font.MeasureString(face, s).Ceil()
	switch align {
	case "center":
		return x - w/2
	case "right":
		return x - w
	}
	return x
}

// drawShadowedText draws s over a blurred, offset copy of itself.
func drawShadowedText(dst *image.RGBA, face font.Face, c color.Color, x, y int, s string) {
	const pad = 16
	b, _ := font.BoundString(face, s)
	area := image.Rect(
		x+b.Min.X.Floor()-pad, y+b.Min.Y.Floor()-pad,
		x+b.Max.X.Ceil()+pad, y+b.Max.Y.Ceil()+pad,
	)
	shadow := image.NewRGBA(area)
	drawText(shadow, face, shadowColor, x+2, y+2, s)

	g := gift.New(gift.GaussianBlur(4))
	blurred := image.NewRGBA(g.Bounds(shadow.Bounds()))
	g.Draw(blurred, shadow)
	draw.Draw(dst, area, blurred, blurred.Bounds().Min, draw.Over)
	drawText(dst, face, c, x, y, s)
}
