package logger

import (
	"bytes"
	"log"
	"strings"
	"sync"
	"testing"
	"time"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func TestPassLoggerCommitAndFlush(t *testing.T) {
	var out syncBuffer
	bl := NewBufferedLogger(Options{Output: log.New(&out, "", 0)})

	pl := bl.StartPass("render")
	pl.Printf("base layer %dms", 12)
	if out.String() != "" {
		t.Fatal("output written before commit")
	}
	pl.Commit()
	if out.String() != "" {
		t.Fatal("output written before flush without auto flush")
	}
	bl.Flush()

	got := out.String()
	if !strings.Contains(got, "[render#1] base layer 12ms") {
		t.Errorf("flushed output = %q", got)
	}
}

func TestSampling(t *testing.T) {
	bl := NewBufferedLogger(Options{SampleRate: 3, Output: log.New(&bytes.Buffer{}, "", 0)})
	sampled := 0
	for i := 0; i < 9; i++ {
		if bl.StartPass("p") != nil {
			sampled++
		}
	}
	if sampled != 3 {
		t.Errorf("sampled %d of 9 passes, want 3", sampled)
	}
	if got := bl.GetStats()["total_passes"]; got != uint64(9) {
		t.Errorf("total_passes = %v", got)
	}
}

func TestDisabledAndNilSafe(t *testing.T) {
	bl := NewBufferedLogger(Options{Output: log.New(&bytes.Buffer{}, "", 0)})
	bl.SetEnabled(false)
	pl := bl.StartPass("p")
	if pl != nil {
		t.Fatal("disabled logger returned a pass logger")
	}
	// Nil pass loggers are no-ops.
	pl.Printf("ignored %d", 1)
	pl.Commit()

	var nilLogger *BufferedLogger
	if nilLogger.StartPass("p") != nil {
		t.Error("nil logger returned a pass logger")
	}
}

func TestAutoFlush(t *testing.T) {
	var out syncBuffer
	bl := NewBufferedLogger(Options{AutoFlush: true, FlushInterval: 5 * time.Millisecond, Output: log.New(&out, "", 0)})

	pl := bl.StartPass("session")
	pl.Printf("camera ready")
	pl.Commit()

	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(out.String(), "camera ready") {
		if time.Now().After(deadline) {
			t.Fatal("auto flush never wrote the entry")
		}
		time.Sleep(5 * time.Millisecond)
	}
	bl.Stop()
	bl.Stop()
}
