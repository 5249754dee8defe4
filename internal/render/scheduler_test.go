package render

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestBurstCoalescesIntoOnePass(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	s := New(func(ctx context.Context, color string) (string, error) {
		mu.Lock()
		seen = append(seen, color)
		mu.Unlock()
		return "rendered " + color, nil
	}, Options[string, string]{Debounce: 30 * time.Millisecond})
	defer s.Close()

	s.Request("#000000")
	s.Request("#FF0000")

	res, err := s.Wait(waitCtx(t))
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if res.Value != "rendered #FF0000" {
		t.Errorf("latest = %q, want the final color", res.Value)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 || seen[0] != "#FF0000" {
		t.Errorf("passes rendered %v, want exactly [#FF0000]", seen)
	}
	if s.Passes() != 1 {
		t.Errorf("Passes() = %d, want 1", s.Passes())
	}
}

func TestNewerRequestCancelsPassInFlight(t *testing.T) {
	started := make(chan int, 4)
	s := New(func(ctx context.Context, n int) (int, error) {
		started <- n
		if n == 1 {
			<-ctx.Done()
			return 0, ctx.Err()
		}
		return n * 10, nil
	}, Options[int, int]{Debounce: 5 * time.Millisecond})
	defer s.Close()

	s.Request(1)
	if got := <-started; got != 1 {
		t.Fatalf("first pass params = %d", got)
	}
	s.Request(2)

	res, err := s.Wait(waitCtx(t))
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if res.Value != 20 || res.Params != 2 {
		t.Errorf("committed %+v, want the second pass", res)
	}
	if res.Pass != 2 {
		t.Errorf("committed pass %d, want 2", res.Pass)
	}
}

func TestCancelledPassNeverCommits(t *testing.T) {
	var commits []int
	var mu sync.Mutex
	release := make(chan struct{})
	s := New(func(ctx context.Context, n int) (int, error) {
		if n == 1 {
			<-release
			return 1, nil // ignores cancellation
		}
		return n, nil
	}, Options[int, int]{
		Debounce: 5 * time.Millisecond,
		OnCommit: func(r Result[int, int]) {
			mu.Lock()
			commits = append(commits, r.Value)
			mu.Unlock()
		},
	})
	defer s.Close()

	s.Request(1)
	for s.Passes() < 1 {
		time.Sleep(time.Millisecond)
	}
	s.Request(2)
	time.Sleep(30 * time.Millisecond) // let the debounce fire and cancel pass 1
	close(release)

	if _, err := s.Wait(waitCtx(t)); err != nil {
		t.Fatal(err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(commits) != 1 || commits[0] != 2 {
		t.Errorf("commits = %v, want [2]", commits)
	}
}

func TestAtMostOnePassInFlight(t *testing.T) {
	var inFlight, maxInFlight int32
	s := New(func(ctx context.Context, n int) (int, error) {
		cur := atomic.AddInt32(&inFlight, 1)
		for {
			old := atomic.LoadInt32(&maxInFlight)
			if cur <= old || atomic.CompareAndSwapInt32(&maxInFlight, old, cur) {
				break
			}
		}
		select {
		case <-time.After(3 * time.Millisecond):
		case <-ctx.Done():
		}
		atomic.AddInt32(&inFlight, -1)
		return n, nil
	}, Options[int, int]{Debounce: time.Millisecond})
	defer s.Close()

	for i := 0; i < 50; i++ {
		s.Request(i)
		time.Sleep(time.Millisecond)
	}
	res, err := s.Wait(waitCtx(t))
	if err != nil {
		t.Fatal(err)
	}
	if res.Value != 49 {
		t.Errorf("latest = %d, want 49", res.Value)
	}
	if m := atomic.LoadInt32(&maxInFlight); m != 1 {
		t.Errorf("max concurrent passes = %d, want 1", m)
	}
}

func TestGuardReleasedAfterErrorAndPanic(t *testing.T) {
	s := New(func(ctx context.Context, mode string) (string, error) {
		switch mode {
		case "error":
			return "", errors.New("filter unavailable")
		case "panic":
			panic("boom")
		}
		return mode, nil
	}, Options[string, string]{Debounce: time.Millisecond})
	defer s.Close()

	for _, mode := range []string{"error", "panic", "ok"} {
		s.Request(mode)
		res, err := s.Wait(waitCtx(t))
		if err != nil {
			t.Fatalf("%s: Wait: %v", mode, err)
		}
		if mode != "ok" && res.Err == nil {
			t.Errorf("%s: expected committed error", mode)
		}
		if mode == "ok" && (res.Err != nil || res.Value != "ok") {
			t.Errorf("ok pass = %+v", res)
		}
		if s.Busy() {
			t.Errorf("%s: scheduler still busy after pass", mode)
		}
	}
}

func TestCloseDropsRequests(t *testing.T) {
	var calls int32
	s := New(func(ctx context.Context, n int) (int, error) {
		atomic.AddInt32(&calls, 1)
		return n, nil
	}, Options[int, int]{Debounce: 20 * time.Millisecond})

	s.Request(1)
	s.Close()
	s.Request(2)

	if _, err := s.Wait(waitCtx(t)); !errors.Is(err, ErrClosed) {
		t.Fatalf("Wait() = %v, want ErrClosed", err)
	}
	time.Sleep(40 * time.Millisecond)
	if atomic.LoadInt32(&calls) != 0 {
		t.Errorf("render called %d times after Close", calls)
	}
}

func TestWaitHonoursContext(t *testing.T) {
	s := New(func(ctx context.Context, n int) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	}, Options[int, int]{Debounce: time.Millisecond})
	defer s.Close()

	s.Request(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := s.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait() = %v, want deadline exceeded", err)
	}
}
