// Package loader decodes captured data URLs into images for compositing.
package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"runtime"
	"sync"

	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"

	"go-photostrip-server/internal/dataurl"
	"go-photostrip-server/internal/errs"
	"go-photostrip-server/internal/photo"
)

// ErrStale is returned when a newer Load started before this one finished.
var ErrStale = errors.New("loader: result superseded by a newer load")

// DecodeError identifies the captured image that could not be decoded.
type DecodeError struct {
	Index     int
	Timestamp int64
	Err       error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("image %d (captured %d): %v", e.Index, e.Timestamp, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Loader decodes captured images concurrently and keeps the most recent
// committed set.
type Loader struct {
	workers int

	mu      sync.Mutex
	gen     uint64
	current []photo.Loaded
}

// New creates a loader. workers <= 0 uses GOMAXPROCS.
func New(workers int) *Loader {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Loader{workers: workers}
}

// Load decodes every image. The first decode failure cancels the remaining
// decodes and is returned as a DecodeFailed error wrapping a *DecodeError.
// If another Load started after this one, the result is discarded and
// ErrStale is returned.
func (l *Loader) Load(ctx context.Context, images []photo.CapturedImage) ([]photo.Loaded, error) {
	gen := l.begin()

	out := make([]photo.Loaded, len(images))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.workers)
	for i, img := range images {
		i, img := i, img
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			loaded, err := Decode(img)
			if err != nil {
				return errs.New(errs.DecodeFailed, "loader.Load", &DecodeError{Index: i, Timestamp: img.Timestamp, Err: err})
			}
			out[i] = loaded
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if !l.isLatest(gen) {
			return nil, ErrStale
		}
		return nil, err
	}
	if err := l.commit(gen, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (l *Loader) begin() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.gen++
	return l.gen
}

func (l *Loader) isLatest(gen uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return gen == l.gen
}

func (l *Loader) commit(gen uint64, out []photo.Loaded) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if gen != l.gen {
		return ErrStale
	}
	l.current = out
	return nil
}

// Current returns the last committed set, or nil before the first commit.
func (l *Loader) Current() []photo.Loaded {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// Decode turns one captured data URL into an image.
func Decode(c photo.CapturedImage) (photo.Loaded, error) {
	_, data, err := dataurl.Decode(c.Data)
	if err != nil {
		return photo.Loaded{}, err
	}
	if len(data) == 0 {
		return photo.Loaded{}, errors.New("empty image payload")
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return photo.Loaded{}, fmt.Errorf("failed to decode image: %w", err)
	}
	return photo.Loaded{Image: img, FacingMode: c.FacingMode, Timestamp: c.Timestamp}, nil
}

// FailedIndex extracts the index of the image a DecodeFailed error refers to.
func FailedIndex(err error) (int, bool) {
	var de *DecodeError
	if errors.As(err, &de) {
		return de.Index, true
	}
	return -1, false
}
