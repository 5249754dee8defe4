package filter

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync/atomic"
	"testing"
	"time"

	"github.com/disintegration/gift"

	"go-photostrip-server/internal/errs"
)

type lateBackend struct {
	GiftBackend
	polls int32
	after int32 // becomes available after this many polls; negative never
}

func (b *lateBackend) Available() bool {
	n := atomic.AddInt32(&b.polls, 1)
	return b.after >= 0 && n > b.after
}

type failingBackend struct{}

func (failingBackend) Available() bool { return true }
func (failingBackend) Adjust(*image.RGBA, []gift.Filter) error {
	return errors.New("device lost")
}

func TestApplyRejectsInvalidInput(t *testing.T) {
	e := NewEngine(nil, Options{})
	ctx := context.Background()

	tests := []struct {
		name   string
		img    *image.RGBA
		preset string
	}{
		{"nil buffer", nil, "vivid"},
		{"empty buffer", image.NewRGBA(image.Rect(0, 0, 0, 0)), "vivid"},
		{"unknown preset", gradient(4, 4), "does-not-exist"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := e.Apply(ctx, tt.img, tt.preset)
			if !errors.Is(err, errs.FilterApplyFailed) {
				t.Fatalf("Apply() = %v, want FilterApplyFailed", err)
			}
		})
	}
}

func TestApplyNoneIsIdentity(t *testing.T) {
	e := NewEngine(nil, Options{})
	img := gradient(24, 16)
	orig := clone(img)
	if err := e.Apply(context.Background(), img, "none"); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	for i := range img.Pix {
		if img.Pix[i] != orig.Pix[i] {
			t.Fatalf("byte %d changed", i)
		}
	}
}

func TestApplyEveryPresetKeepsBounds(t *testing.T) {
	e := NewEngine(GiftBackend{Serial: true}, Options{})
	for _, name := range Names() {
		img := gradient(32, 20)
		if err := e.Apply(context.Background(), img, name); err != nil {
			t.Errorf("%s: %v", name, err)
			continue
		}
		if img.Bounds() != image.Rect(0, 0, 32, 20) {
			t.Errorf("%s: bounds changed to %v", name, img.Bounds())
		}
	}
}

func TestGiftBackendSerialMatchesParallel(t *testing.T) {
	filters := []gift.Filter{
		gift.Brightness(12),
		gift.Contrast(-20),
		gift.Saturation(35),
		gift.Sepia(40),
	}
	tests := []struct {
		name string
		w, h int
	}{
		{"small", 8, 6},
		{"wide", 200, 40},
		{"tall", 30, 260},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			serial := gradient(tt.w, tt.h)
			parallel := clone(serial)
			if err := (GiftBackend{Serial: true}).Adjust(serial, filters); err != nil {
				t.Fatalf("serial Adjust: %v", err)
			}
			if err := (GiftBackend{}).Adjust(parallel, filters); err != nil {
				t.Fatalf("parallel Adjust: %v", err)
			}
			for i := range serial.Pix {
				if serial.Pix[i] != parallel.Pix[i] {
					t.Fatalf("byte %d: serial %d, parallel %d", i, serial.Pix[i], parallel.Pix[i])
				}
			}
		})
	}
}

func TestApplyMonoProducesGrey(t *testing.T) {
	e := NewEngine(nil, Options{})
	img := solid(8, 8, color.RGBA{R: 200, G: 40, B: 90, A: 255})
	if err := e.Apply(context.Background(), img, "mono"); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	px := img.RGBAAt(3, 3)
	if px.R != px.G || px.G != px.B {
		t.Errorf("mono pixel = %+v, want equal channels", px)
	}
}

func TestApplyWaitsForBackend(t *testing.T) {
	b := &lateBackend{after: 2}
	e := NewEngine(b, Options{Timeout: time.Second, PollInterval: time.Millisecond})
	if err := e.Apply(context.Background(), gradient(4, 4), "warm"); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if atomic.LoadInt32(&b.polls) < 3 {
		t.Errorf("backend polled %d times, want at least 3", b.polls)
	}
}

func TestApplyBackendUnavailable(t *testing.T) {
	e := NewEngine(&lateBackend{after: -1}, Options{Timeout: 30 * time.Millisecond, PollInterval: 5 * time.Millisecond})
	start := time.Now()
	err := e.Apply(context.Background(), gradient(4, 4), "warm")
	if !errors.Is(err, errs.FilterUnavailable) {
		t.Fatalf("Apply() = %v, want FilterUnavailable", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("gave up after %v, before the timeout", elapsed)
	}
}

func TestApplyContextCancelled(t *testing.T) {
	e := NewEngine(&lateBackend{after: -1}, Options{Timeout: time.Minute, PollInterval: 5 * time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := e.Apply(ctx, gradient(4, 4), "warm")
	if !errors.Is(err, errs.FilterUnavailable) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Apply() = %v, want FilterUnavailable wrapping deadline", err)
	}
}

func TestApplyBackendFailure(t *testing.T) {
	e := NewEngine(failingBackend{}, Options{})
	err := e.Apply(context.Background(), gradient(4, 4), "vivid")
	if !errors.Is(err, errs.FilterApplyFailed) {
		t.Fatalf("Apply() = %v, want FilterApplyFailed", err)
	}
}

func TestPresetTable(t *testing.T) {
	names := Names()
	if len(names) == 0 || names[0] != "none" {
		t.Fatalf("Names() = %v, want none first", names)
	}
	seen := map[string]bool{}
	for _, n := range names {
		if seen[n] {
			t.Errorf("duplicate preset %q", n)
		}
		seen[n] = true
		if _, ok := Lookup(n); !ok {
			t.Errorf("Lookup(%q) failed", n)
		}
	}
}

func BenchmarkApplyVintage(b *testing.B) {
	e := NewEngine(nil, Options{})
	src := gradient(600, 400)
	img := clone(src)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		copy(img.Pix, src.Pix)
		if err := e.Apply(context.Background(), img, "vintage"); err != nil {
			b.Fatal(err)
		}
	}
}
