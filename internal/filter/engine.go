package filter

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"math"
	"time"

	"github.com/disintegration/gift"

	"go-photostrip-server/internal/errs"
)

const (
	DefaultTimeout      = 5 * time.Second
	DefaultPollInterval = 200 * time.Millisecond
)

// Backend performs the delegated color adjustments. Available reports
// whether the backend is ready to accept work.
type Backend interface {
	Available() bool
	Adjust(img *image.RGBA, filters []gift.Filter) error
}

// GiftBackend runs gift filter lists. Serial disables gift's per-row
// goroutines, for hosts where a render must not use every core.
type GiftBackend struct {
	Serial bool
}

func (b GiftBackend) Available() bool { return true }

func (b GiftBackend) Adjust(img *image.RGBA, filters []gift.Filter) error {
	if len(filters) == 0 {
		return nil
	}
	g := gift.New(filters...)
	g.SetParallelization(!b.Serial)
	out := image.NewRGBA(g.Bounds(img.Bounds()))
	g.Draw(out, img)
	if out.Bounds().Size() != img.Bounds().Size() {
		return fmt.Errorf("adjustment changed bounds %v -> %v", img.Bounds(), out.Bounds())
	}
	draw.Draw(img, img.Bounds(), out, out.Bounds().Min, draw.Src)
	return nil
}

// Options tunes the engine's wait for its backend.
type Options struct {
	Timeout      time.Duration
	PollInterval time.Duration
}

// Engine applies named presets to pixel buffers in place.
type Engine struct {
	backend Backend
	opts    Options
}

// NewEngine creates an engine. A nil backend uses GiftBackend.
func NewEngine(backend Backend, opts Options) *Engine {
	if backend == nil {
		backend = GiftBackend{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	return &Engine{backend: backend, opts: opts}
}

// Apply runs preset over img. It fails with FilterApplyFailed on an invalid
// buffer or unknown preset and with FilterUnavailable if the backend does not
// become available within the configured timeout.
func (e *Engine) Apply(ctx context.Context, img *image.RGBA, preset string) error {
	if img == nil || img.Bounds().Empty() {
		return errs.Newf(errs.FilterApplyFailed, "filter.Apply", "invalid buffer")
	}
	params, ok := Lookup(preset)
	if !ok {
		return errs.Newf(errs.FilterApplyFailed, "filter.Apply", "unknown preset %q", preset)
	}
	if err := e.waitForBackend(ctx); err != nil {
		return err
	}
	return e.ApplyParams(img, params)
}

// ApplyParams runs an explicit parameter bag. The backend is assumed ready.
func (e *Engine) ApplyParams(img *image.RGBA, p Params) error {
	if err := e.backend.Adjust(img, toneFilters(p)); err != nil {
		return errs.New(errs.FilterApplyFailed, "filter.adjust", err)
	}
	Noise(img, p.Noise)
	Vignette(img, p.Vignette)
	if err := e.backend.Adjust(img, colorFilters(p)); err != nil {
		return errs.New(errs.FilterApplyFailed, "filter.colorize", err)
	}
	if p.Sharpen != 0 {
		Sharpen(img, p.Sharpen)
	}
	Shadows(img, p.Shadows)
	Highlights(img, p.Highlights)
	Temperature(img, p.Temperature)
	return nil
}

func (e *Engine) waitForBackend(ctx context.Context) error {
	if e.backend.Available() {
		return nil
	}

	timeout := time.NewTimer(e.opts.Timeout)
	defer timeout.Stop()
	ticker := time.NewTicker(e.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if e.backend.Available() {
				return nil
			}
		case <-timeout.C:
			return errs.Newf(errs.FilterUnavailable, "filter.wait", "backend not available after %v", e.opts.Timeout)
		case <-ctx.Done():
			return errs.New(errs.FilterUnavailable, "filter.wait", ctx.Err())
		}
	}
}

// toneFilters builds the gift chain for the tone steps, in application order.
func toneFilters(p Params) []gift.Filter {
	var fs []gift.Filter
	if p.Brightness != 0 {
		fs = append(fs, gift.Brightness(float32(p.Brightness)))
	}
	if !p.Channels.isZero() {
		fs = append(fs, gift.ColorBalance(float32(p.Channels.Red), float32(p.Channels.Green), float32(p.Channels.Blue)))
	}
	if p.Contrast != 0 {
		fs = append(fs, gift.Contrast(float32(p.Contrast)))
	}
	if p.Exposure != 0 {
		fs = append(fs, exposure(p.Exposure))
	}
	if p.Vibrance != 0 {
		fs = append(fs, vibrance(p.Vibrance))
	}
	if p.Saturation != 0 {
		fs = append(fs, gift.Saturation(float32(p.Saturation)))
	}
	if p.Sepia != 0 {
		fs = append(fs, gift.Sepia(float32(p.Sepia)))
	}
	if p.Gamma > 0 && p.Gamma != 1 {
		// gift lightens for gamma > 1; presets use the contrast convention.
		fs = append(fs, gift.Gamma(float32(1/p.Gamma)))
	}
	if p.Hue != 0 {
		shift := p.Hue * 3.6
		if shift > 180 {
			shift -= 360
		}
		fs = append(fs, gift.Hue(float32(shift)))
	}
	return fs
}

func colorFilters(p Params) []gift.Filter {
	var fs []gift.Filter
	if p.Greyscale {
		fs = append(fs, gift.Grayscale())
	}
	if p.Colorize != nil && p.Colorize.Strength > 0 {
		fs = append(fs, colorize(*p.Colorize))
	}
	return fs
}

func exposure(value float64) gift.Filter {
	f := float32(math.Pow(2, value/100))
	return gift.ColorFunc(func(r, g, b, a float32) (float32, float32, float32, float32) {
		return r * f, g * f, b * f, a
	})
}

func vibrance(value float64) gift.Filter {
	adjust := float32(-value)
	return gift.ColorFunc(func(r, g, b, a float32) (float32, float32, float32, float32) {
		mx := max(r, g, b)
		avg := (r + g + b) / 3
		amt := (abs32(mx-avg) * 2) * adjust / 100
		if r != mx {
			r += (mx - r) * amt
		}
		if g != mx {
			g += (mx - g) * amt
		}
		if b != mx {
			b += (mx - b) * amt
		}
		return r, g, b, a
	})
}

func colorize(c Colorize) gift.Filter {
	s := float32(c.Strength / 100)
	tr, tg, tb := float32(c.Color.R)/255, float32(c.Color.G)/255, float32(c.Color.B)/255
	return gift.ColorFunc(func(r, g, b, a float32) (float32, float32, float32, float32) {
		return r - (r-tr)*s, g - (g-tg)*s, b - (b-tb)*s, a
	})
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
