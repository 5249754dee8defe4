//go:build linux

package camera

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"log"
	"sync"
	"time"

	"github.com/blackjack/webcam"

	"go-photostrip-server/internal/errs"
	"go-photostrip-server/internal/photo"
)

// FourCC codes the V4L2 device can turn into images.
const (
	fourccMJPEG = "MJPG"
	fourccYUYV  = "YUYV"
)

// V4L2Device opens local video4linux cameras, one device node per facing
// mode (for example /dev/video0).
type V4L2Device struct {
	Paths map[photo.FacingMode]string
	// Buffers is the number of kernel frame buffers. Zero means 4.
	Buffers uint32
	// TimeoutSec bounds each wait for a frame. Zero means 5.
	TimeoutSec uint32
}

func pixelFormatToFourCC(pf webcam.PixelFormat) string {
	return string([]byte{byte(pf), byte(pf >> 8), byte(pf >> 16), byte(pf >> 24)})
}

func (d *V4L2Device) Open(ctx context.Context, c Constraints) (Stream, error) {
	path, ok := d.Paths[c.FacingMode]
	if !ok || path == "" {
		return nil, errs.Newf(errs.DeviceUnavailable, "v4l2.Open", "no %s camera configured", c.FacingMode)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cam, err := webcam.Open(path)
	if err != nil {
		return nil, classify("v4l2.Open", fmt.Errorf("%s: %w", path, err), errs.DeviceUnavailable)
	}

	var pixelFormat webcam.PixelFormat
	var fourcc string
	for pf := range cam.GetSupportedFormats() {
		switch cc := pixelFormatToFourCC(pf); cc {
		case fourccMJPEG:
			pixelFormat, fourcc = pf, cc
		case fourccYUYV:
			if fourcc == "" {
				pixelFormat, fourcc = pf, cc
			}
		}
	}
	if fourcc == "" {
		cam.Close()
		return nil, errs.Newf(errs.DeviceUnavailable, "v4l2.Open", "%s: no MJPG or YUYV format", path)
	}

	w, h, ok := closestSize(cam.GetSupportedFrameSizes(pixelFormat), c)
	if !ok {
		cam.Close()
		return nil, errs.Newf(errs.DeviceUnavailable, "v4l2.Open", "%s: no frame size satisfies %dx%d", path, c.Width, c.Height)
	}
	_, gotW, gotH, err := cam.SetImageFormat(pixelFormat, w, h)
	if err != nil {
		cam.Close()
		return nil, classify("v4l2.Open", fmt.Errorf("%s: failed to set format: %w", path, err), errs.DeviceUnavailable)
	}

	buffers := d.Buffers
	if buffers == 0 {
		buffers = 4
	}
	if err := cam.SetBufferCount(buffers); err != nil {
		cam.Close()
		return nil, classify("v4l2.Open", err, errs.DeviceUnavailable)
	}
	if err := cam.StartStreaming(); err != nil {
		cam.Close()
		return nil, classify("v4l2.Open", fmt.Errorf("%s: failed to start streaming: %w", path, err), errs.DeviceUnavailable)
	}

	timeout := d.TimeoutSec
	if timeout == 0 {
		timeout = 5
	}
	s := &v4l2Stream{
		cam:     cam,
		fourcc:  fourcc,
		width:   int(gotW),
		height:  int(gotH),
		timeout: timeout,
		first:   make(chan struct{}),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.capture()
	log.Printf("📷 %s streaming %s %dx%d", path, fourcc, gotW, gotH)
	return s, nil
}

// closestSize picks the supported size nearest the constraints that is at
// least as large when possible. Stepwise ranges are clamped to the request.
func closestSize(sizes []webcam.FrameSize, c Constraints) (uint32, uint32, bool) {
	wantW, wantH := uint32(c.Width), uint32(c.Height)
	var bestW, bestH uint32
	bestScore := -1
	for _, fs := range sizes {
		w, h := fs.MaxWidth, fs.MaxHeight
		if fs.StepWidth > 0 && wantW >= fs.MinWidth && wantW <= fs.MaxWidth {
			w = wantW - (wantW-fs.MinWidth)%fs.StepWidth
		}
		if fs.StepHeight > 0 && wantH >= fs.MinHeight && wantH <= fs.MaxHeight {
			h = wantH - (wantH-fs.MinHeight)%fs.StepHeight
		}
		score := absDiff(w, wantW) + absDiff(h, wantH)
		if w < wantW || h < wantH {
			score += 1 << 20
		}
		if bestScore < 0 || score < bestScore {
			bestW, bestH, bestScore = w, h, score
		}
	}
	return bestW, bestH, bestScore >= 0
}

func absDiff(a, b uint32) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}

type v4l2Stream struct {
	cam           *webcam.Webcam
	fourcc        string
	width, height int
	timeout       uint32
	first         chan struct{}
	firstOnce     sync.Once
	stop          chan struct{}
	done          chan struct{}
	stopOnce      sync.Once

	mu      sync.RWMutex
	frame   []byte
	frameAt time.Time
	err     error
	stopped bool
}

// capture continually reads frames and keeps a copy of the newest one.
func (s *v4l2Stream) capture() {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			return
		default:
		}

		err := s.cam.WaitForFrame(s.timeout)
		switch err.(type) {
		case nil:
		case *webcam.Timeout:
			continue
		default:
			s.fail(err)
			return
		}

		frame, index, err := s.cam.GetFrame()
		if err != nil {
			s.fail(err)
			return
		}
		if len(frame) > 0 {
			data := make([]byte, len(frame))
			copy(data, frame)
			s.mu.Lock()
			s.frame = data
			s.frameAt = time.Now()
			s.mu.Unlock()
			s.firstOnce.Do(func() { close(s.first) })
		}
		s.cam.ReleaseFrame(index)
	}
}

func (s *v4l2Stream) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *v4l2Stream) Snapshot(ctx context.Context) (Frame, error) {
	select {
	case <-s.first:
	case <-s.done:
	case <-ctx.Done():
		return Frame{}, errs.New(errs.CaptureFailed, "v4l2.Snapshot", ctx.Err())
	}

	s.mu.RLock()
	data, at, streamErr, stopped := s.frame, s.frameAt, s.err, s.stopped
	s.mu.RUnlock()
	if stopped {
		return Frame{}, errs.Newf(errs.CaptureFailed, "v4l2.Snapshot", "stream stopped")
	}
	if len(data) == 0 {
		return Frame{}, errs.New(errs.CaptureFailed, "v4l2.Snapshot", fmt.Errorf("no frame received: %v", streamErr))
	}

	var img image.Image
	var err error
	switch s.fourcc {
	case fourccMJPEG:
		img, err = jpeg.Decode(bytes.NewReader(data))
	default:
		img, err = yuyvToImage(data, s.width, s.height)
	}
	if err != nil {
		return Frame{}, errs.New(errs.CaptureFailed, "v4l2.Snapshot", err)
	}
	return Frame{Image: img, At: at}, nil
}

// yuyvToImage wraps packed 4:2:2 YUYV data as a YCbCr image.
func yuyvToImage(data []byte, w, h int) (image.Image, error) {
	if len(data) < w*h*2 {
		return nil, fmt.Errorf("short YUYV frame: %d bytes for %dx%d", len(data), w, h)
	}
	img := image.NewYCbCr(image.Rect(0, 0, w, h), image.YCbCrSubsampleRatio422)
	for y := 0; y < h; y++ {
		row := data[y*w*2 : (y+1)*w*2]
		for x := 0; x+1 < w; x += 2 {
			i := x * 2
			img.Y[y*img.YStride+x] = row[i]
			img.Y[y*img.YStride+x+1] = row[i+2]
			ci := y*img.CStride + x/2
			img.Cb[ci] = row[i+1]
			img.Cr[ci] = row[i+3]
		}
	}
	return img, nil
}

func (s *v4l2Stream) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.stopped && s.err == nil
}

func (s *v4l2Stream) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()
		close(s.stop)
		<-s.done
		if err := s.cam.StopStreaming(); err != nil {
			log.Printf("⚠️  Failed to stop V4L2 streaming: %v", err)
		}
		s.cam.Close()
	})
}
