// Package render coalesces bursts of render requests into single passes.
//
// A Scheduler debounces requests on the trailing edge, runs at most one pass
// at a time, and cancels the pass in flight when a newer request fires. A
// cancelled pass never commits its result, so observers only see output from
// the newest parameters.
package render

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// DefaultDebounce is about one display frame.
const DefaultDebounce = 16 * time.Millisecond

// ErrClosed is returned by Wait after Close.
var ErrClosed = errors.New("render: scheduler closed")

// Func renders one pass. It should return promptly once ctx is done.
type Func[P, R any] func(ctx context.Context, params P) (R, error)

// Result is a committed pass.
type Result[P, R any] struct {
	Pass     uint64
	Params   P
	Value    R
	Err      error
	Duration time.Duration
}

// Options configures a Scheduler.
type Options[P, R any] struct {
	Debounce time.Duration
	// OnCommit is called after each committed pass, outside the lock.
	OnCommit func(Result[P, R])
}

// Scheduler runs Func for the latest requested params.
type Scheduler[P, R any] struct {
	render   Func[P, R]
	debounce time.Duration
	onCommit func(Result[P, R])

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	timer      *time.Timer
	pending    P
	hasPending bool
	due        bool // debounce elapsed while a pass was running
	running    bool
	passCancel context.CancelFunc
	passes     uint64
	latest     Result[P, R]
	hasLatest  bool
	idle       chan struct{}
	closed     bool
}

// New creates a scheduler around render.
func New[P, R any](render Func[P, R], opts Options[P, R]) *Scheduler[P, R] {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	ctx, cancel := context.WithCancel(context.Background())
	idle := make(chan struct{})
	close(idle)
	return &Scheduler[P, R]{
		render:   render,
		debounce: opts.Debounce,
		onCommit: opts.OnCommit,
		ctx:      ctx,
		cancel:   cancel,
		idle:     idle,
	}
}

// Request schedules a pass for params. Requests arriving within the debounce
// window replace each other; only the last one renders.
func (s *Scheduler[P, R]) Request(params P) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.markBusy()
	s.pending = params
	s.hasPending = true
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, s.fire)
}

func (s *Scheduler[P, R]) fire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.hasPending {
		return
	}
	if s.running {
		// Supersede the pass in flight; the new one starts when it returns.
		s.due = true
		s.passCancel()
		return
	}
	s.start()
}

// start launches a pass for the pending params. Callers hold s.mu.
func (s *Scheduler[P, R]) start() {
	params := s.pending
	var zero P
	s.pending = zero
	s.hasPending = false
	s.due = false
	s.running = true
	s.passes++
	pass := s.passes

	ctx, cancel := context.WithCancel(s.ctx)
	s.passCancel = cancel
	go s.run(ctx, cancel, pass, params)
}

func (s *Scheduler[P, R]) run(ctx context.Context, cancel context.CancelFunc, pass uint64, params P) {
	start := time.Now()
	value, err := s.call(ctx, params)
	res := Result[P, R]{Pass: pass, Params: params, Value: value, Err: err, Duration: time.Since(start)}

	s.mu.Lock()
	committed := ctx.Err() == nil && !s.closed
	cancel()
	if committed {
		s.latest = res
		s.hasLatest = true
	}
	s.mu.Unlock()

	// The pass still counts as running until observers have seen it, so
	// Wait never returns ahead of OnCommit.
	if committed && s.onCommit != nil {
		s.onCommit(res)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.passCancel = nil
	if s.hasPending && s.due && !s.closed {
		s.start()
	}
	if !s.running && !s.hasPending {
		s.markIdle()
	}
}

// call runs the render func, converting a panic into an error so the
// in-flight guard is always released.
func (s *Scheduler[P, R]) call(ctx context.Context, params P) (value R, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("render pass panicked: %v", r)
		}
	}()
	return s.render(ctx, params)
}

func (s *Scheduler[P, R]) markBusy() {
	select {
	case <-s.idle:
		s.idle = make(chan struct{})
	default:
	}
}

func (s *Scheduler[P, R]) markIdle() {
	select {
	case <-s.idle:
	default:
		close(s.idle)
	}
}

// Latest returns the most recently committed pass.
func (s *Scheduler[P, R]) Latest() (Result[P, R], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, s.hasLatest
}

// Busy reports whether a pass is pending or running.
func (s *Scheduler[P, R]) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running || s.hasPending
}

// Passes returns the number of passes started so far.
func (s *Scheduler[P, R]) Passes() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.passes
}

// Wait blocks until no pass is pending or running, then returns the latest
// committed result.
func (s *Scheduler[P, R]) Wait(ctx context.Context) (Result[P, R], error) {
	s.mu.Lock()
	idle := s.idle
	s.mu.Unlock()

	select {
	case <-idle:
	case <-ctx.Done():
		return Result[P, R]{}, ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s.latest, ErrClosed
	}
	return s.latest, nil
}

// Close cancels any pass in flight and drops pending requests.
func (s *Scheduler[P, R]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
	}
	s.hasPending = false
	s.cancel()
	if !s.running {
		s.markIdle()
	}
}
