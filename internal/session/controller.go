package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"go-photostrip-server/internal/camera"
	"go-photostrip-server/internal/frame"
	"go-photostrip-server/internal/photo"
)

// Timings are the controller's fixed delays.
type Timings struct {
	// ReadyGrace is how long after a stream opens before it is treated as
	// ready. Devices report open before the first stable frame.
	ReadyGrace time.Duration
	// CaptureDelay separates the end of a countdown from the capture.
	CaptureDelay time.Duration
	// ReacquireDelay lets a re-opened stream settle before capturing.
	ReacquireDelay time.Duration
	// Tick is one countdown step.
	Tick time.Duration
}

// DefaultTimings returns the production delays.
func DefaultTimings() Timings {
	return Timings{
		ReadyGrace:     500 * time.Millisecond,
		CaptureDelay:   100 * time.Millisecond,
		ReacquireDelay: 500 * time.Millisecond,
		Tick:           time.Second,
	}
}

// Options configures a Controller.
type Options struct {
	Timings     Timings
	FacingMode  photo.FacingMode
	JPEGQuality int
	// CaptureTimeout bounds camera work started by timers.
	CaptureTimeout time.Duration
}

// ErrNotFailed is returned by Retry outside the error state.
var ErrNotFailed = errors.New("session is not in the error state")

// ErrClosed is returned by operations after Close.
var ErrClosed = errors.New("session controller closed")

type retryFunc func(ctx context.Context) error

// Controller drives one capture session. All operations and timer callbacks
// run under opMu, so the camera stream is only started and stopped here.
type Controller struct {
	dev  camera.Device
	opts Options

	ctx    context.Context
	cancel context.CancelFunc

	opMu        sync.Mutex
	stream      camera.Stream
	constraints camera.Constraints
	streamGen   uint64
	readyTimer  *time.Timer
	timerGen    uint64
	timer       *time.Timer // countdown step or pending capture, never both
	retry       retryFunc
	closed      bool

	stateMu sync.RWMutex
	state   State
	subs    map[int]chan State
	nextSub int
}

// NewController creates a controller in the frame-selection state.
func NewController(dev camera.Device, opts Options) *Controller {
	d := DefaultTimings()
	if opts.Timings.ReadyGrace <= 0 {
		opts.Timings.ReadyGrace = d.ReadyGrace
	}
	if opts.Timings.CaptureDelay <= 0 {
		opts.Timings.CaptureDelay = d.CaptureDelay
	}
	if opts.Timings.ReacquireDelay <= 0 {
		opts.Timings.ReacquireDelay = d.ReacquireDelay
	}
	if opts.Timings.Tick <= 0 {
		opts.Timings.Tick = d.Tick
	}
	if opts.JPEGQuality <= 0 {
		opts.JPEGQuality = 90
	}
	if opts.CaptureTimeout <= 0 {
		opts.CaptureTimeout = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		dev:    dev,
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
		state:  Initial(opts.FacingMode),
		subs:   make(map[int]chan State),
	}
}

// State returns a snapshot of the current state.
func (c *Controller) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state.Clone()
}

// PreviewMirrored reports whether the live preview should be shown mirrored.
func (c *Controller) PreviewMirrored() bool {
	return c.State().FacingMode.Mirrored()
}

// Constraints returns the constraints the current stream was opened with.
func (c *Controller) Constraints() (camera.Constraints, bool) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.constraints, c.stream != nil
}

// Subscribe delivers every new state to the returned channel. Slow readers
// only see the latest state. The cancel func must be called when done.
func (c *Controller) Subscribe() (<-chan State, func()) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	ch := make(chan State, 1)
	ch <- c.state.Clone()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	return ch, func() {
		c.stateMu.Lock()
		defer c.stateMu.Unlock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
	}
}

// dispatch folds a into the state and publishes the result. opMu must be held.
func (c *Controller) dispatch(a Action) error {
	next, err := Reduce(c.current(), a)
	if err != nil {
		return err
	}
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.state = next
	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		ch <- next.Clone()
	}
	return nil
}

// current reads the state without copying. opMu must be held.
func (c *Controller) current() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// check validates a without applying it.
func (c *Controller) check(a Action) error {
	_, err := Reduce(c.current(), a)
	return err
}

func (c *Controller) lock() error {
	c.opMu.Lock()
	if c.closed {
		c.opMu.Unlock()
		return ErrClosed
	}
	return nil
}

// SelectFrame chooses the layout and moves to idle.
func (c *Controller) SelectFrame(l frame.Layout) error {
	if err := c.lock(); err != nil {
		return err
	}
	defer c.opMu.Unlock()
	if err := c.dispatch(SelectFrame{Layout: l}); err != nil {
		return err
	}
	log.Printf("🖼️  Frame selected: %s (%d slots)", l.ID, l.TotalSlots())
	return nil
}

// OpenCamera acquires a stream. It is only valid while idle.
func (c *Controller) OpenCamera(ctx context.Context) error {
	if err := c.lock(); err != nil {
		return err
	}
	defer c.opMu.Unlock()
	if s := c.current(); s.Status != StatusIdle {
		return fmt.Errorf("%w: OPEN_CAMERA from %s", ErrInvalidTransition, s.Status)
	}
	return c.initializeCamera(ctx, c.current().FacingMode)
}

// StartCountdown counts down from seconds, one step per tick, then captures.
// Zero captures after the capture delay. A new countdown supersedes any
// running one.
func (c *Controller) StartCountdown(seconds int) error {
	if err := c.lock(); err != nil {
		return err
	}
	defer c.opMu.Unlock()
	if err := c.dispatch(StartCountdown{Seconds: seconds}); err != nil {
		return err
	}
	gen := c.resetTimer()
	if seconds == 0 {
		c.finishCountdown(gen)
		return nil
	}
	c.timer = time.AfterFunc(c.opts.Timings.Tick, func() { c.tick(gen) })
	return nil
}

// CapturePhoto takes a still from the active stream immediately.
func (c *Controller) CapturePhoto(ctx context.Context) error {
	if err := c.lock(); err != nil {
		return err
	}
	defer c.opMu.Unlock()
	return c.capture(ctx)
}

// RetakePhoto drops the last photo and re-opens the camera.
func (c *Controller) RetakePhoto(ctx context.Context) error {
	if err := c.lock(); err != nil {
		return err
	}
	defer c.opMu.Unlock()
	if err := c.dispatch(ClearLast{}); err != nil {
		return err
	}
	return c.initializeCamera(ctx, c.current().FacingMode)
}

// ContinueCapture clears the preview of the last photo and re-opens the
// camera for the next slot.
func (c *Controller) ContinueCapture(ctx context.Context) error {
	if err := c.lock(); err != nil {
		return err
	}
	defer c.opMu.Unlock()
	if err := c.dispatch(ClearCurrent{}); err != nil {
		return err
	}
	return c.initializeCamera(ctx, c.current().FacingMode)
}

// CompleteCapture finishes the session once every slot is filled.
func (c *Controller) CompleteCapture() error {
	if err := c.lock(); err != nil {
		return err
	}
	defer c.opMu.Unlock()
	if err := c.check(Complete{}); err != nil {
		return err
	}
	c.resetTimer()
	c.stopStream()
	c.retry = nil
	if err := c.dispatch(Complete{}); err != nil {
		return err
	}
	log.Printf("✅ Capture complete: %d photos", len(c.current().CapturedImages))
	return nil
}

// Reset discards every photo, keeps the frame and re-opens the camera.
func (c *Controller) Reset(ctx context.Context) error {
	if err := c.lock(); err != nil {
		return err
	}
	defer c.opMu.Unlock()
	if err := c.check(Reset{}); err != nil {
		return err
	}
	c.resetTimer()
	c.stopStream()
	c.retry = nil
	if err := c.dispatch(Reset{}); err != nil {
		return err
	}
	return c.initializeCamera(ctx, c.current().FacingMode)
}

// Retry re-runs the operation that last failed, or re-opens the camera if
// none was recorded.
func (c *Controller) Retry(ctx context.Context) error {
	if err := c.lock(); err != nil {
		return err
	}
	defer c.opMu.Unlock()
	if c.current().Status != StatusError {
		return ErrNotFailed
	}
	fn := c.retry
	c.retry = nil
	if fn == nil {
		return c.initializeCamera(ctx, c.current().FacingMode)
	}
	return fn(ctx)
}

// SwitchCamera toggles the facing mode. While the camera is in use the
// stream is stopped and re-acquired with the new mode.
func (c *Controller) SwitchCamera(ctx context.Context) error {
	if err := c.lock(); err != nil {
		return err
	}
	defer c.opMu.Unlock()
	s := c.current()
	mode := s.FacingMode.Toggle()
	switch s.Status {
	case StatusIdle, StatusCapturing, StatusError:
	default:
		return c.dispatch(SetFacingMode{Mode: mode})
	}

	c.resetTimer()
	c.stopStream()
	if err := c.dispatch(StopCamera{}); err != nil {
		return err
	}
	if err := c.dispatch(SetFacingMode{Mode: mode}); err != nil {
		return err
	}
	log.Printf("📷 Switching camera to %s", mode)
	return c.initializeCamera(ctx, mode)
}

// Preview takes a frame from the live stream without capturing it.
func (c *Controller) Preview(ctx context.Context) (camera.Frame, error) {
	if err := c.lock(); err != nil {
		return camera.Frame{}, err
	}
	s := c.stream
	c.opMu.Unlock()
	if s == nil || !s.Active() {
		return camera.Frame{}, fmt.Errorf("%w: no active stream", ErrInvalidTransition)
	}
	return s.Snapshot(ctx)
}

// Close stops every timer and releases the stream. Subscriber channels are
// closed.
func (c *Controller) Close() {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.resetTimer()
	c.stopStream()
	c.cancel()

	c.stateMu.Lock()
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
	c.stateMu.Unlock()
}

// initializeCamera replaces the stream with a new one for mode. opMu must
// be held.
func (c *Controller) initializeCamera(ctx context.Context, mode photo.FacingMode) error {
	c.stopStream()
	s, cons, err := camera.Acquire(ctx, c.dev, mode)
	if err != nil {
		c.fail(err, func(ctx context.Context) error { return c.initializeCamera(ctx, mode) })
		return err
	}
	if err := c.dispatch(OpenCamera{}); err != nil {
		s.Stop()
		return err
	}
	c.stream = s
	c.constraints = cons
	c.streamGen++
	gen := c.streamGen
	c.readyTimer = time.AfterFunc(c.opts.Timings.ReadyGrace, func() { c.markReady(gen) })
	log.Printf("📷 Camera open: %s %dx%d", mode, cons.Width, cons.Height)
	return nil
}

func (c *Controller) markReady(gen uint64) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if c.closed || gen != c.streamGen || c.stream == nil || !c.stream.Active() {
		return
	}
	if c.current().Status != StatusCapturing {
		return
	}
	_ = c.dispatch(SetCameraReady{Ready: true})
}

// stopStream releases the stream and invalidates its ready timer. opMu must
// be held.
func (c *Controller) stopStream() {
	if c.readyTimer != nil {
		c.readyTimer.Stop()
		c.readyTimer = nil
	}
	c.streamGen++
	if c.stream != nil {
		c.stream.Stop()
		c.stream = nil
		c.constraints = camera.Constraints{}
	}
}

// resetTimer cancels the pending countdown step or capture and returns the
// generation for the next one. opMu must be held.
func (c *Controller) resetTimer() uint64 {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.timerGen++
	return c.timerGen
}

func (c *Controller) tick(gen uint64) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if c.closed || gen != c.timerGen {
		return
	}
	if err := c.dispatch(TickCountdown{}); err != nil {
		return
	}
	if c.current().Countdown > 0 {
		c.timer = time.AfterFunc(c.opts.Timings.Tick, func() { c.tick(gen) })
		return
	}
	c.finishCountdown(gen)
}

// finishCountdown schedules the capture, re-acquiring the camera first if
// the stream died during the countdown. opMu must be held.
func (c *Controller) finishCountdown(gen uint64) {
	if c.stream != nil && c.stream.Active() {
		c.timer = time.AfterFunc(c.opts.Timings.CaptureDelay, func() { c.timedCapture(gen) })
		return
	}
	log.Printf("⚠️  Camera stream lost during countdown, re-acquiring")
	ctx, cancel := context.WithTimeout(c.ctx, c.opts.CaptureTimeout)
	defer cancel()
	if err := c.initializeCamera(ctx, c.current().FacingMode); err != nil {
		return
	}
	c.timer = time.AfterFunc(c.opts.Timings.ReacquireDelay, func() { c.timedCapture(gen) })
}

func (c *Controller) timedCapture(gen uint64) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if c.closed || gen != c.timerGen {
		return
	}
	c.timer = nil
	ctx, cancel := context.WithTimeout(c.ctx, c.opts.CaptureTimeout)
	defer cancel()
	_ = c.capture(ctx)
}

// capture snapshots the stream into a new photo and stops the stream. A
// failure moves the session to error. opMu must be held.
func (c *Controller) capture(ctx context.Context) error {
	s := c.current()
	switch s.Status {
	case StatusCapturing, StatusIdle, StatusError:
	default:
		return fmt.Errorf("%w: CAPTURE_PHOTO from %s", ErrInvalidTransition, s.Status)
	}
	if s.Full() {
		return fmt.Errorf("%w: CAPTURE_PHOTO from %s: all slots are filled", ErrInvalidTransition, s.Status)
	}
	c.resetTimer()

	img, err := camera.Capture(ctx, c.stream, s.FacingMode, c.opts.JPEGQuality)
	if err == nil {
		err = c.check(CapturePhoto{Image: img})
	}
	if err != nil {
		c.fail(err, c.reacquireAndCapture)
		return err
	}
	c.stopStream()
	if err := c.dispatch(CapturePhoto{Image: img}); err != nil {
		return err
	}
	log.Printf("📷 Photo %d/%d captured", len(s.CapturedImages)+1, s.TotalSlots())
	return nil
}

// reacquireAndCapture is the retry for a failed capture: the stream is gone
// after a failure, so it is re-opened and the capture runs once it settles.
func (c *Controller) reacquireAndCapture(ctx context.Context) error {
	if c.stream != nil && c.stream.Active() {
		return c.capture(ctx)
	}
	if err := c.initializeCamera(ctx, c.current().FacingMode); err != nil {
		return err
	}
	gen := c.resetTimer()
	c.timer = time.AfterFunc(c.opts.Timings.ReacquireDelay, func() { c.timedCapture(gen) })
	return nil
}

// fail moves the session to error and records retry as the single retry
// closure. opMu must be held.
func (c *Controller) fail(err error, retry retryFunc) {
	c.resetTimer()
	c.stopStream()
	c.retry = retry
	if dErr := c.dispatch(Fail{Err: err}); dErr != nil {
		log.Printf("❌ Session failure could not be recorded (%v): %v", dErr, err)
		return
	}
	log.Printf("❌ Session error: %v", err)
}
