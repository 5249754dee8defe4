package strip

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"go-photostrip-server/internal/compositing"
	"go-photostrip-server/internal/dataurl"
	"go-photostrip-server/internal/errs"
	"go-photostrip-server/internal/filter"
	"go-photostrip-server/internal/frame"
	"go-photostrip-server/internal/loader"
	"go-photostrip-server/internal/photo"
)

func testLayout() frame.Layout {
	return frame.Layout{
		ID: "test-2", GridRows: 2, GridCols: 1,
		Canvas:  frame.Size{Width: 40, Height: 90},
		Photo:   frame.Size{Width: 30, Height: 40},
		Padding: frame.Padding{Top: 5, Left: 5, Right: 5},
	}
}

func capture(t *testing.T, c color.RGBA, ts int64) photo.CapturedImage {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 30, 40))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return photo.CapturedImage{Data: dataurl.Encode("image/png", buf.Bytes()), FacingMode: photo.FacingEnvironment, Timestamp: ts}
}

func broken(ts int64) photo.CapturedImage {
	return photo.CapturedImage{Data: dataurl.Encode("image/png", []byte("garbage")), Timestamp: ts}
}

func newRenderer(engine *filter.Engine) *Renderer {
	comp := compositing.NewCompositor(engine, nil, 90)
	return NewRenderer(comp, loader.New(2), Options{Debounce: 30 * time.Millisecond})
}

func waitOutput(t *testing.T, r *Renderer) *Output {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := r.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	return out
}

func kinds(ns []Notice) map[string]int {
	m := map[string]int{}
	for _, n := range ns {
		m[n.Kind]++
	}
	return m
}

func TestBorderChangesCoalesce(t *testing.T) {
	r := newRenderer(filter.NewEngine(nil, filter.Options{}))
	defer r.Close()

	images := []photo.CapturedImage{capture(t, color.RGBA{R: 255, A: 255}, 1), capture(t, color.RGBA{B: 255, A: 255}, 2)}
	style := DefaultStyle()
	r.SetImages(testLayout(), images)
	style.BorderColor = "#FF0000"
	r.SetStyle(style)
	style.BorderColor = "#00FF00"
	r.SetStyle(style)

	out := waitOutput(t, r)
	if r.Passes() != 1 {
		t.Errorf("Passes() = %d, want exactly 1", r.Passes())
	}
	if got := out.Final.RGBAAt(1, 1); got != (color.RGBA{G: 255, A: 255}) {
		t.Errorf("border pixel = %+v, want the final color", got)
	}
}

func TestUndecodableImagesAreSkipped(t *testing.T) {
	r := newRenderer(nil)
	defer r.Close()

	images := []photo.CapturedImage{
		capture(t, color.RGBA{R: 255, A: 255}, 1),
		broken(2),
		capture(t, color.RGBA{B: 255, A: 255}, 3),
	}
	r.SetImages(testLayout(), images)
	out := waitOutput(t, r)

	if len(out.Skipped) != 1 || out.Skipped[0] != 1 {
		t.Fatalf("Skipped = %v, want [1]", out.Skipped)
	}
	if got := out.Final.RGBAAt(20, 65); got.B < 250 {
		t.Errorf("second cell = %+v, want the third capture", got)
	}
	if n := kinds(r.Notices())[errs.DecodeFailed.String()]; n != 1 {
		t.Errorf("DecodeFailed notices = %d, want 1", n)
	}

	// Restyling reuses the decode and does not repeat the notice.
	style := DefaultStyle()
	style.BorderColor = "#FFFFFF"
	r.SetStyle(style)
	waitOutput(t, r)
	if n := kinds(r.Notices())[errs.DecodeFailed.String()]; n != 1 {
		t.Errorf("DecodeFailed notices after restyle = %d, want 1", n)
	}
}

func TestTextEditsKeepBaseLayer(t *testing.T) {
	comp := compositing.NewCompositor(filter.NewEngine(nil, filter.Options{}), nil, 90)
	r := NewRenderer(comp, loader.New(2), Options{Debounce: time.Millisecond})
	defer r.Close()

	style := DefaultStyle()
	style.Filter = "vivid"
	r.SetStyle(style)
	r.SetImages(testLayout(), []photo.CapturedImage{
		capture(t, color.RGBA{R: 200, G: 80, A: 255}, 1),
		capture(t, color.RGBA{B: 200, G: 80, A: 255}, 2),
	})
	first := waitOutput(t, r)

	edits := []struct {
		name string
		edit func(*Style)
	}{
		{"text", func(s *Style) { s.Text.Text = "hello" }},
		{"size", func(s *Style) { s.Text.Size = 32 }},
		{"position", func(s *Style) { s.Text.Position.X = 4 }},
		{"color", func(s *Style) { s.Text.Color = "#FF0000" }},
	}
	for _, tt := range edits {
		tt.edit(&style)
		r.SetStyle(style)
		out := waitOutput(t, r)
		if out.Base != first.Base {
			t.Errorf("%s edit: base layer was redrawn", tt.name)
		}
	}
	base, overlay := comp.Renders()
	if base != 1 {
		t.Errorf("base renders = %d, want 1", base)
	}
	if overlay < int64(len(edits))+1 {
		t.Errorf("overlay renders = %d, want at least %d", overlay, len(edits)+1)
	}

	// A new capture invalidates the decode and the base layer.
	r.SetImages(testLayout(), []photo.CapturedImage{
		capture(t, color.RGBA{R: 200, G: 80, A: 255}, 1),
		capture(t, color.RGBA{B: 200, G: 80, A: 255}, 2),
		capture(t, color.RGBA{G: 200, A: 255}, 3),
	})
	if out := waitOutput(t, r); out.Base == first.Base {
		t.Error("base layer reused after the captured set changed")
	}
	if base, _ := comp.Renders(); base != 2 {
		t.Errorf("base renders after capture = %d, want 2", base)
	}
}

type neverReady struct{ filter.GiftBackend }

func (neverReady) Available() bool { return false }

func TestFilterTimeoutFallsBackAndReleasesGuard(t *testing.T) {
	engine := filter.NewEngine(neverReady{}, filter.Options{Timeout: 20 * time.Millisecond, PollInterval: 5 * time.Millisecond})
	r := newRenderer(engine)
	defer r.Close()

	style := DefaultStyle()
	style.Filter = "vintage"
	r.SetStyle(style)
	r.SetImages(testLayout(), []photo.CapturedImage{capture(t, color.RGBA{R: 255, A: 255}, 1)})
	out := waitOutput(t, r)

	if got := out.Final.RGBAAt(20, 25); got.R < 250 || got.G > 5 || got.B > 5 {
		t.Errorf("photo pixel = %+v, want the unfiltered photo", got)
	}
	if n := kinds(r.Notices())[errs.FilterUnavailable.String()]; n != 1 {
		t.Errorf("FilterUnavailable notices = %d, want 1", n)
	}

	style.BorderColor = "#0000FF"
	r.SetStyle(style)
	out = waitOutput(t, r)
	if r.Passes() != 2 {
		t.Errorf("Passes() = %d, want 2", r.Passes())
	}
	if got := out.Final.RGBAAt(1, 1); got != (color.RGBA{B: 255, A: 255}) {
		t.Errorf("border after second pass = %+v", got)
	}
}

func TestStyleWithoutLayoutDoesNotRender(t *testing.T) {
	r := newRenderer(nil)
	defer r.Close()
	r.SetStyle(DefaultStyle())
	time.Sleep(60 * time.Millisecond)
	if r.Passes() != 0 {
		t.Errorf("Passes() = %d before any layout was set", r.Passes())
	}
	if _, err := r.JPEG(); !errors.Is(err, ErrNotRendered) {
		t.Errorf("JPEG() = %v, want ErrNotRendered", err)
	}
}

func TestJPEGAndOverlay(t *testing.T) {
	r := newRenderer(nil)
	defer r.Close()
	r.SetImages(testLayout(), []photo.CapturedImage{capture(t, color.RGBA{G: 255, A: 255}, 1)})
	waitOutput(t, r)

	data, err := r.JPEG()
	if err != nil || len(data) < 3 || data[0] != 0xFF || data[1] != 0xD8 {
		t.Fatalf("JPEG() = %d bytes, %v", len(data), err)
	}
	if _, err := r.OverlayPNG(); err != nil {
		t.Fatalf("OverlayPNG: %v", err)
	}
	if len(r.Durations()) != 1 {
		t.Errorf("Durations() = %v", r.Durations())
	}
}

func TestStampTime(t *testing.T) {
	fixed := time.Date(2024, 1, 20, 12, 0, 0, 0, time.UTC)
	r := NewRenderer(compositing.NewCompositor(nil, nil, 90), nil, Options{Now: func() time.Time { return fixed }})
	defer r.Close()

	if got := r.stampTime(nil); !got.Equal(fixed) {
		t.Errorf("stampTime(nil) = %v, want now", got)
	}
	images := []photo.CapturedImage{{Timestamp: 1000}, {Timestamp: 5000}, {Timestamp: 3000}}
	if got := r.stampTime(images); got.UnixMilli() != 5000 {
		t.Errorf("stampTime = %v, want the latest capture", got)
	}
}

func TestNoticesExpire(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	n := NewNotices(4*time.Second, func() time.Time { return now })

	first := n.Add(errs.Newf(errs.FilterApplyFailed, "test", "boom"))
	now = now.Add(3 * time.Second)
	n.Add(errors.New("plain"))

	active := n.Active()
	if len(active) != 2 || active[0].Kind != "FilterApplyFailed" || active[1].Kind != "Unknown" {
		t.Fatalf("Active() = %+v", active)
	}

	now = now.Add(2 * time.Second) // first expired, second still live
	active = n.Active()
	if len(active) != 1 || active[0].ID == first.ID {
		t.Fatalf("Active() after expiry = %+v", active)
	}
	if !n.Dismiss(active[0].ID) || len(n.Active()) != 0 {
		t.Error("Dismiss did not remove the notice")
	}
}
