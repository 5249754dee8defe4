// Package logger buffers per-pass log lines and flushes them off the render
// path.
package logger

import (
	"bytes"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// BufferedLogger accumulates log entries in memory and flushes them asynchronously
// so that logging never stalls a render pass or a camera timer
type BufferedLogger struct {
	buffer        bytes.Buffer
	mu            sync.Mutex
	out           *log.Logger
	autoFlush     bool
	flushInterval time.Duration
	flushChan     chan struct{}
	stopChan      chan struct{}
	stopOnce      sync.Once
	done          chan struct{}
	enabled       atomic.Bool
	passNum       atomic.Uint64
	sampleRate    atomic.Int64 // 0 = log all, N = log 1 in N passes
}

// Options configures a BufferedLogger.
type Options struct {
	AutoFlush     bool
	FlushInterval time.Duration
	SampleRate    int
	// Output defaults to the standard logger.
	Output *log.Logger
}

// NewBufferedLogger creates a new buffered logger
func NewBufferedLogger(opts Options) *BufferedLogger {
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 100 * time.Millisecond
	}
	if opts.Output == nil {
		opts.Output = log.Default()
	}
	bl := &BufferedLogger{
		out:           opts.Output,
		autoFlush:     opts.AutoFlush,
		flushInterval: opts.FlushInterval,
		flushChan:     make(chan struct{}, 100),
		stopChan:      make(chan struct{}),
		done:          make(chan struct{}),
	}
	bl.enabled.Store(true)
	bl.sampleRate.Store(int64(opts.SampleRate))

	if opts.AutoFlush {
		go bl.flusher()
	} else {
		close(bl.done)
	}

	return bl
}

// PassLogger provides a per-pass logging context
type PassLogger struct {
	parent  *BufferedLogger
	buffer  bytes.Buffer
	label   string
	passNum uint64
}

// StartPass creates a logger for one unit of work, such as a render pass or a
// session operation. Returns nil if this pass should not be logged; a nil
// *PassLogger is safe to use.
func (bl *BufferedLogger) StartPass(label string) *PassLogger {
	if bl == nil || !bl.enabled.Load() {
		return nil
	}

	passNum := bl.passNum.Add(1)

	rate := bl.sampleRate.Load()
	if rate > 0 && passNum%uint64(rate) != 0 {
		return nil
	}

	return &PassLogger{
		parent:  bl,
		label:   label,
		passNum: passNum,
	}
}

// Printf adds a formatted log entry to the pass buffer
func (pl *PassLogger) Printf(format string, args ...interface{}) {
	if pl == nil {
		return
	}

	timestamp := time.Now().Format("15:04:05.000")
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(&pl.buffer, "[%s] [%s#%d] %s\n", timestamp, pl.label, pl.passNum, msg)
}

// Commit hands the pass logs to the parent buffer
// Call this once the pass has published its result
func (pl *PassLogger) Commit() {
	if pl == nil || pl.buffer.Len() == 0 {
		return
	}

	pl.parent.mu.Lock()
	pl.parent.buffer.Write(pl.buffer.Bytes())
	pl.parent.mu.Unlock()
	pl.buffer.Reset()

	if pl.parent.autoFlush {
		// Trigger async flush
		select {
		case pl.parent.flushChan <- struct{}{}:
		default:
			// Channel full, flush will happen soon anyway
		}
	}
}

// Flush immediately writes all buffered logs
func (bl *BufferedLogger) Flush() {
	bl.mu.Lock()
	defer bl.mu.Unlock()

	if bl.buffer.Len() > 0 {
		bl.out.Print(bl.buffer.String())
		bl.buffer.Reset()
	}
}

// flusher runs in background and periodically flushes logs
func (bl *BufferedLogger) flusher() {
	defer close(bl.done)
	ticker := time.NewTicker(bl.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-bl.flushChan:
			bl.Flush()
		case <-ticker.C:
			bl.Flush()
		case <-bl.stopChan:
			bl.Flush() // Final flush
			return
		}
	}
}

// Stop stops the background flusher after a final flush
func (bl *BufferedLogger) Stop() {
	bl.stopOnce.Do(func() { close(bl.stopChan) })
	<-bl.done
	bl.Flush()
}

// Enable/Disable logging
func (bl *BufferedLogger) SetEnabled(enabled bool) {
	bl.enabled.Store(enabled)
}

func (bl *BufferedLogger) IsEnabled() bool {
	return bl.enabled.Load()
}

// SetSampleRate changes the sampling rate
// 0 = log all passes, N = log 1 in N passes
func (bl *BufferedLogger) SetSampleRate(rate int) {
	bl.sampleRate.Store(int64(rate))
}

// GetStats returns current logging statistics
func (bl *BufferedLogger) GetStats() map[string]interface{} {
	bl.mu.Lock()
	bufferSize := bl.buffer.Len()
	bl.mu.Unlock()

	return map[string]interface{}{
		"total_passes": bl.passNum.Load(),
		"buffer_size":  bufferSize,
		"sample_rate":  bl.sampleRate.Load(),
		"enabled":      bl.enabled.Load(),
	}
}
