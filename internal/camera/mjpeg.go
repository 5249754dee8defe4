package camera

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"io"
	"log"
	"mime"
	"mime/multipart"
	"net/http"
	"sync"
	"time"

	"go-photostrip-server/internal/errs"
	"go-photostrip-server/internal/photo"
)

// MJPEGDevice reads multipart/x-mixed-replace streams from network cameras,
// one URL per facing mode.
type MJPEGDevice struct {
	Sources map[photo.FacingMode]string
	Client  *http.Client
	// StaleAfter rejects snapshots older than this. Zero means 5s.
	StaleAfter time.Duration
}

func (d *MJPEGDevice) Open(ctx context.Context, c Constraints) (Stream, error) {
	src, ok := d.Sources[c.FacingMode]
	if !ok || src == "" {
		return nil, errs.Newf(errs.DeviceUnavailable, "mjpeg.Open", "no %s camera configured", c.FacingMode)
	}
	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, src, nil)
	if err != nil {
		cancel()
		return nil, errs.New(errs.DeviceUnavailable, "mjpeg.Open", fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "multipart/x-mixed-replace")
	req.Header.Set("Cache-Control", "no-cache")
	q := req.URL.Query()
	q.Set("width", fmt.Sprint(c.Width))
	q.Set("height", fmt.Sprint(c.Height))
	req.URL.RawQuery = q.Encode()

	// Open's ctx bounds the connect; the stream itself outlives it.
	stopConnect := context.AfterFunc(ctx, cancel)
	resp, err := client.Do(req)
	stopConnect()
	if err != nil {
		cancel()
		return nil, classify("mjpeg.Open", fmt.Errorf("connection failed: %w", err), errs.DeviceUnavailable)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		resp.Body.Close()
		cancel()
		return nil, errs.Newf(errs.PermissionDenied, "mjpeg.Open", "camera refused access: %s", resp.Status)
	case resp.StatusCode != http.StatusOK:
		resp.Body.Close()
		cancel()
		return nil, errs.Newf(errs.DeviceUnavailable, "mjpeg.Open", "bad status: %s", resp.Status)
	}

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/x-mixed-replace" || params["boundary"] == "" {
		resp.Body.Close()
		cancel()
		return nil, errs.Newf(errs.DeviceUnavailable, "mjpeg.Open", "unexpected content type %q", resp.Header.Get("Content-Type"))
	}

	staleAfter := d.StaleAfter
	if staleAfter <= 0 {
		staleAfter = 5 * time.Second
	}
	s := &mjpegStream{
		cancel:     cancel,
		body:       resp.Body,
		staleAfter: staleAfter,
		first:      make(chan struct{}),
		done:       make(chan struct{}),
	}
	go s.pump(multipart.NewReader(resp.Body, params["boundary"]))
	return s, nil
}

type mjpegStream struct {
	cancel     context.CancelFunc
	body       io.ReadCloser
	staleAfter time.Duration
	first      chan struct{}
	firstOnce  sync.Once
	done       chan struct{}
	stopOnce   sync.Once

	mu      sync.RWMutex
	frame   []byte
	frameAt time.Time
	err     error
	stopped bool
}

// pump keeps the newest JPEG part until the stream ends.
func (s *mjpegStream) pump(mr *multipart.Reader) {
	defer close(s.done)
	var buf bytes.Buffer
	for {
		part, err := mr.NextPart()
		if err != nil {
			s.mu.Lock()
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			s.err = err
			s.mu.Unlock()
			return
		}
		buf.Reset()
		_, err = io.Copy(&buf, part)
		part.Close()
		if err != nil {
			continue
		}
		if buf.Len() == 0 {
			continue
		}
		frame := make([]byte, buf.Len())
		copy(frame, buf.Bytes())

		s.mu.Lock()
		s.frame = frame
		s.frameAt = time.Now()
		s.mu.Unlock()
		s.firstOnce.Do(func() { close(s.first) })
	}
}

func (s *mjpegStream) Snapshot(ctx context.Context) (Frame, error) {
	select {
	case <-s.first:
	case <-s.done:
	case <-ctx.Done():
		return Frame{}, errs.New(errs.CaptureFailed, "mjpeg.Snapshot", ctx.Err())
	}

	s.mu.RLock()
	data, at, streamErr, stopped := s.frame, s.frameAt, s.err, s.stopped
	s.mu.RUnlock()

	if stopped {
		return Frame{}, errs.Newf(errs.CaptureFailed, "mjpeg.Snapshot", "stream stopped")
	}
	if len(data) == 0 {
		return Frame{}, errs.New(errs.CaptureFailed, "mjpeg.Snapshot", fmt.Errorf("stream ended before the first frame: %w", streamErr))
	}
	if time.Since(at) > s.staleAfter {
		return Frame{}, errs.Newf(errs.CaptureFailed, "mjpeg.Snapshot", "frame is stale (%v old)", time.Since(at).Round(time.Millisecond))
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return Frame{}, errs.New(errs.CaptureFailed, "mjpeg.Snapshot", fmt.Errorf("error decoding JPEG: %w", err))
	}
	return Frame{Image: img, At: at}, nil
}

func (s *mjpegStream) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.stopped && s.err == nil
}

func (s *mjpegStream) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()
		s.cancel()
		s.body.Close()
		<-s.done
		log.Printf("📷 MJPEG stream stopped")
	})
}
