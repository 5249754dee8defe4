// Package strip renders the photo strip of the current session: it decodes
// the captured frames, composes the base and overlay layers, and keeps the
// newest composite ready for download.
package strip

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"sync"
	"time"

	"go-photostrip-server/internal/compositing"
	"go-photostrip-server/internal/errs"
	"go-photostrip-server/internal/frame"
	"go-photostrip-server/internal/loader"
	"go-photostrip-server/internal/photo"
	"go-photostrip-server/internal/render"
	"go-photostrip-server/logger"
)

// ErrNotRendered is returned before the first pass committed.
var ErrNotRendered = errors.New("strip: nothing rendered yet")

// Style is everything the editor changes.
type Style struct {
	Filter      string                 `json:"filter"`
	BorderColor string                 `json:"borderColor"`
	Text        compositing.TextConfig `json:"text"`
	DateFormat  string                 `json:"dateFormat"`
	TimeFormat  string                 `json:"timeFormat"`
}

// DefaultStyle is the editor's initial state: black border, no filter, no
// text and no date/time stamp.
func DefaultStyle() Style {
	return Style{
		Filter:      "none",
		BorderColor: "#000000",
		Text:        compositing.DefaultTextConfig(),
	}
}

// Params is the full input of one render pass.
type Params struct {
	Layout frame.Layout
	Images []photo.CapturedImage
	Style  Style
}

// Output is a committed render.
type Output struct {
	Final   *image.RGBA
	Base    *compositing.BaseLayer
	Overlay *compositing.OverlayLayer
	// Photos is how many captured images were drawn.
	Photos int
	// Skipped holds indexes of captured images that could not be decoded.
	Skipped []int
	Stamp   time.Time
}

// Options configures a Renderer.
type Options struct {
	Debounce    time.Duration
	NoticeTTL   time.Duration
	StatsWindow int
	Logger      *logger.BufferedLogger
	Now         func() time.Time
	// OnRender is called after every committed pass.
	OnRender func(*Output)
}

// Renderer owns the render pipeline for one session.
type Renderer struct {
	comp     *compositing.Compositor
	loader   *loader.Loader
	sched    *render.Scheduler[Params, *Output]
	notices  *Notices
	log      *logger.BufferedLogger
	now      func() time.Time
	onRender func(*Output)
	closed   chan struct{}

	mu           sync.Mutex
	params       Params
	hasLayout    bool
	output       *Output
	prevBase     *compositing.BaseLayer
	reported     map[int64]bool
	waitingFonts map[string]bool
	durations    []time.Duration
	statsWindow  int
	closeOnce    sync.Once

	// last decode, reused while the captured set is unchanged so the
	// compositor sees the same image values and keeps its base layer
	decodedFrom    []photo.CapturedImage
	decoded        []photo.Loaded
	decodedSkipped []int
}

// NewRenderer wires a compositor and loader behind a debounced scheduler.
func NewRenderer(comp *compositing.Compositor, ldr *loader.Loader, opts Options) *Renderer {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.StatsWindow <= 0 {
		opts.StatsWindow = 256
	}
	if ldr == nil {
		ldr = loader.New(0)
	}
	r := &Renderer{
		comp:         comp,
		loader:       ldr,
		notices:      NewNotices(opts.NoticeTTL, opts.Now),
		log:          opts.Logger,
		now:          opts.Now,
		onRender:     opts.OnRender,
		closed:       make(chan struct{}),
		params:       Params{Style: DefaultStyle()},
		reported:     make(map[int64]bool),
		waitingFonts: make(map[string]bool),
		statsWindow:  opts.StatsWindow,
	}
	r.sched = render.New(r.pass, render.Options[Params, *Output]{
		Debounce: opts.Debounce,
		OnCommit: r.commit,
	})
	return r
}

// SetImages updates the layout and captured frames. The slice is copied.
func (r *Renderer) SetImages(layout frame.Layout, images []photo.CapturedImage) {
	r.mu.Lock()
	if layout.ID != r.params.Layout.ID {
		r.reported = make(map[int64]bool)
	}
	r.params.Layout = layout
	r.params.Images = photo.Snapshot(images)
	r.hasLayout = true
	p := r.params
	r.mu.Unlock()
	r.sched.Request(p)
}

// SetStyle updates the editor style.
func (r *Renderer) SetStyle(style Style) {
	r.mu.Lock()
	r.params.Style = style
	p, ok := r.params, r.hasLayout
	r.mu.Unlock()
	if ok {
		r.sched.Request(p)
	}
}

// Style returns the current editor style.
func (r *Renderer) Style() Style {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.params.Style
}

func (r *Renderer) pass(ctx context.Context, p Params) (*Output, error) {
	pl := r.log.StartPass("render")
	defer pl.Commit()

	start := time.Now()
	loaded, skipped, err := r.decode(ctx, p.Images)
	if err != nil {
		return nil, err
	}
	decoded := time.Since(start)

	border, err := compositing.ParseHexColor(p.Style.BorderColor)
	if err != nil {
		r.notices.Add(errs.New(errs.RenderFailed, "strip.border", err))
		border, _ = compositing.ParseHexColor(DefaultStyle().BorderColor)
	}
	base, err := r.comp.RenderBase(ctx, loaded, compositing.BaseParams{
		Layout:      p.Layout,
		Preset:      p.Style.Filter,
		BorderColor: border,
	})
	if err != nil {
		return nil, err
	}
	r.reportFilterFailures(base)

	stamp := r.stampTime(p.Images)
	overlay, err := r.comp.RenderOverlay(ctx, compositing.OverlayParams{
		Layout:     p.Layout,
		Text:       p.Style.Text,
		DateFormat: p.Style.DateFormat,
		TimeFormat: p.Style.TimeFormat,
		At:         stamp,
	})
	if err != nil {
		return nil, err
	}
	if overlay.TextPending {
		r.rerenderWhenFontLoads(p.Style.Text.Font)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	final := compositing.CompositeFinal(base.Image, overlay.Image)
	pl.Printf("🖼️  %s: %d photos (%d skipped), filter %s, decode %v, total %v",
		p.Layout.ID, len(loaded), len(skipped), p.Style.Filter, decoded, time.Since(start))

	return &Output{Final: final, Base: base, Overlay: overlay, Photos: len(loaded), Skipped: skipped, Stamp: stamp}, nil
}

// decode returns the decoded set for images, reusing the previous pass's
// result when the captured images are the same.
func (r *Renderer) decode(ctx context.Context, images []photo.CapturedImage) ([]photo.Loaded, []int, error) {
	r.mu.Lock()
	if r.decodedFrom != nil && sameImages(r.decodedFrom, images) {
		loaded, skipped := r.decoded, r.decodedSkipped
		r.mu.Unlock()
		return loaded, skipped, nil
	}
	r.mu.Unlock()

	loaded, skipped, err := r.load(ctx, images)
	if err != nil {
		return nil, nil, err
	}
	r.mu.Lock()
	r.decodedFrom = append(make([]photo.CapturedImage, 0, len(images)), images...)
	r.decoded, r.decodedSkipped = loaded, skipped
	r.mu.Unlock()
	return loaded, skipped, nil
}

func sameImages(a, b []photo.CapturedImage) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// load decodes images, dropping any that fail and retrying with the rest.
func (r *Renderer) load(ctx context.Context, images []photo.CapturedImage) ([]photo.Loaded, []int, error) {
	remaining := images
	index := make([]int, len(images))
	for i := range index {
		index[i] = i
	}
	var skipped []int
	for {
		loaded, err := r.loader.Load(ctx, remaining)
		if err == nil {
			return loaded, skipped, nil
		}
		i, ok := loader.FailedIndex(err)
		if !ok {
			return nil, skipped, err
		}
		skipped = append(skipped, index[i])
		r.reportDecodeFailure(remaining[i].Timestamp, err)

		remaining = append(append([]photo.CapturedImage(nil), remaining[:i]...), remaining[i+1:]...)
		index = append(append([]int(nil), index[:i]...), index[i+1:]...)
	}
}

func (r *Renderer) reportDecodeFailure(ts int64, err error) {
	r.mu.Lock()
	seen := r.reported[ts]
	r.reported[ts] = true
	r.mu.Unlock()
	if !seen {
		r.notices.Add(err)
		log.Printf("⚠️  Skipping undecodable photo: %v", err)
	}
}

func (r *Renderer) reportFilterFailures(base *compositing.BaseLayer) {
	r.mu.Lock()
	fresh := base != r.prevBase
	r.prevBase = base
	r.mu.Unlock()
	if !fresh {
		return
	}
	for _, f := range base.Failures {
		r.notices.Add(f)
		log.Printf("⚠️  Drawing unfiltered: %v", f)
	}
}

// stampTime is the instant the date/time stamp shows: the most recent
// capture, so the stamp does not change between re-renders.
func (r *Renderer) stampTime(images []photo.CapturedImage) time.Time {
	var latest int64
	for _, img := range images {
		if img.Timestamp > latest {
			latest = img.Timestamp
		}
	}
	if latest == 0 {
		return r.now()
	}
	return time.UnixMilli(latest)
}

func (r *Renderer) rerenderWhenFontLoads(font string) {
	r.mu.Lock()
	if r.waitingFonts[font] {
		r.mu.Unlock()
		return
	}
	r.waitingFonts[font] = true
	r.mu.Unlock()

	ready := r.comp.Fonts().Request(font)
	go func() {
		select {
		case <-ready:
		case <-r.closed:
			return
		}
		r.mu.Lock()
		delete(r.waitingFonts, font)
		p := r.params
		r.mu.Unlock()
		r.sched.Request(p)
	}()
}

func (r *Renderer) commit(res render.Result[Params, *Output]) {
	r.mu.Lock()
	r.durations = append(r.durations, res.Duration)
	if len(r.durations) > r.statsWindow {
		r.durations = r.durations[len(r.durations)-r.statsWindow:]
	}
	if res.Err == nil {
		r.output = res.Value
	}
	r.mu.Unlock()

	if res.Err != nil {
		if errors.Is(res.Err, loader.ErrStale) {
			return
		}
		r.notices.Add(errs.New(errs.RenderFailed, "strip.render", res.Err))
		log.Printf("❌ Render pass %d failed: %v", res.Pass, res.Err)
		return
	}
	if r.onRender != nil {
		r.onRender(res.Value)
	}
}

// Output returns the latest committed render.
func (r *Renderer) Output() (*Output, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.output == nil {
		return nil, ErrNotRendered
	}
	return r.output, nil
}

// Final returns the latest composited strip.
func (r *Renderer) Final() (*image.RGBA, error) {
	out, err := r.Output()
	if err != nil {
		return nil, err
	}
	return out.Final, nil
}

// JPEG encodes the latest composite for download.
func (r *Renderer) JPEG() ([]byte, error) {
	final, err := r.Final()
	if err != nil {
		return nil, err
	}
	data, err := r.comp.EncodeJPEG(final)
	if err != nil {
		return nil, fmt.Errorf("failed to encode strip: %w", err)
	}
	return data, nil
}

// OverlayPNG encodes the latest overlay layer with transparency.
func (r *Renderer) OverlayPNG() ([]byte, error) {
	out, err := r.Output()
	if err != nil {
		return nil, err
	}
	return compositing.EncodePNG(out.Overlay.Image)
}

// Wait blocks until pending passes have finished and returns the latest
// committed render.
func (r *Renderer) Wait(ctx context.Context) (*Output, error) {
	if _, err := r.sched.Wait(ctx); err != nil {
		return nil, err
	}
	return r.Output()
}

// Notices returns the active notices.
func (r *Renderer) Notices() []Notice {
	return r.notices.Active()
}

// DismissNotice removes a notice early.
func (r *Renderer) DismissNotice(id uint64) bool {
	return r.notices.Dismiss(id)
}

// Durations returns recent pass durations, oldest first.
func (r *Renderer) Durations() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]time.Duration, len(r.durations))
	copy(out, r.durations)
	return out
}

// Passes returns how many passes started.
func (r *Renderer) Passes() uint64 {
	return r.sched.Passes()
}

// Close stops rendering.
func (r *Renderer) Close() {
	r.closeOnce.Do(func() {
		close(r.closed)
		r.sched.Close()
	})
}
