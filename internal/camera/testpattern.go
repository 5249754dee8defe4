package camera

import (
	"context"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
	"time"

	"go-photostrip-server/internal/errs"
	"go-photostrip-server/internal/photo"
)

// TestPatternDevice produces synthetic frames. It stands in for a real camera
// in demos and tests.
type TestPatternDevice struct {
	// Modes lists the cameras the device has. Empty means both.
	Modes []photo.FacingMode
	// Width and Height replace the requested resolution when both are set.
	Width, Height int
}

func (d TestPatternDevice) has(mode photo.FacingMode) bool {
	if len(d.Modes) == 0 {
		return true
	}
	for _, m := range d.Modes {
		if m == mode {
			return true
		}
	}
	return false
}

func (d TestPatternDevice) Open(ctx context.Context, c Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !d.has(c.FacingMode) {
		return nil, errs.Newf(errs.DeviceUnavailable, "testpattern.Open", "no %s camera", c.FacingMode)
	}
	w, h := c.Width, c.Height
	if d.Width > 0 && d.Height > 0 {
		w, h = d.Width, d.Height
	}
	if w <= 0 || h <= 0 {
		w, h = 640, 480
	}
	return &patternStream{width: w, height: h, mode: c.FacingMode}, nil
}

type patternStream struct {
	width, height int
	mode          photo.FacingMode
	frames        atomic.Int64

	mu      sync.Mutex
	stopped bool
}

func (s *patternStream) Snapshot(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if !s.Active() {
		return Frame{}, errs.Newf(errs.CaptureFailed, "testpattern.Snapshot", "stream stopped")
	}
	n := int(s.frames.Add(1))

	img := image.NewRGBA(image.Rect(0, 0, s.width, s.height))
	tint := uint8(40)
	if s.mode == photo.FacingEnvironment {
		tint = 200
	}
	bar := (n * 37) % s.width
	for y := 0; y < s.height; y++ {
		for x := 0; x < s.width; x++ {
			c := color.RGBA{
				R: uint8(x * 255 / s.width),
				G: uint8(y * 255 / s.height),
				B: tint,
				A: 255,
			}
			if x >= bar && x < bar+8 {
				c = color.RGBA{R: 255, G: 255, B: 255, A: 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return Frame{Image: img, At: time.Now()}, nil
}

func (s *patternStream) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.stopped
}

func (s *patternStream) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}
