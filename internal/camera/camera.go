// Package camera is the capture capability: devices that open live streams
// under size constraints, and the snapshot-to-data-URL step of a capture.
package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io/fs"
	"log"
	"net"
	"net/url"
	"time"

	"go-photostrip-server/internal/dataurl"
	"go-photostrip-server/internal/errs"
	"go-photostrip-server/internal/photo"
)

// Constraints are the requested stream properties.
type Constraints struct {
	FacingMode  photo.FacingMode `json:"facingMode"`
	Width       int              `json:"width"`
	Height      int              `json:"height"`
	AspectRatio float64          `json:"aspectRatio"`
}

// Preferred is tried first when opening a camera.
func Preferred(mode photo.FacingMode) Constraints {
	return Constraints{FacingMode: mode, Width: 1335, Height: 894, AspectRatio: 1335.0 / 894.0}
}

// Fallback is tried when the preferred constraints cannot be satisfied.
func Fallback(mode photo.FacingMode) Constraints {
	return Constraints{FacingMode: mode, Width: 841, Height: 563, AspectRatio: 1682.0 / 1126.0}
}

// Frame is one still taken from a stream, in sensor orientation.
type Frame struct {
	Image image.Image
	At    time.Time
}

// Device opens camera streams.
type Device interface {
	Open(ctx context.Context, c Constraints) (Stream, error)
}

// Stream is a live camera stream. Stop is idempotent and releases the
// underlying device.
type Stream interface {
	Snapshot(ctx context.Context) (Frame, error)
	Active() bool
	Stop()
}

// Acquire opens a stream with the preferred constraints and retries once
// with the fallback constraints.
func Acquire(ctx context.Context, dev Device, mode photo.FacingMode) (Stream, Constraints, error) {
	c := Preferred(mode)
	s, err := dev.Open(ctx, c)
	if err == nil {
		return s, c, nil
	}
	if ctx.Err() != nil {
		return nil, c, classify("camera.Acquire", err, errs.DeviceUnavailable)
	}
	log.Printf("⚠️  Camera rejected %dx%d (%v), retrying with %dx%d", c.Width, c.Height, err, Fallback(mode).Width, Fallback(mode).Height)

	c = Fallback(mode)
	s, err = dev.Open(ctx, c)
	if err != nil {
		return nil, c, classify("camera.Acquire", err, errs.DeviceUnavailable)
	}
	return s, c, nil
}

// Capture takes a snapshot from s and encodes it as a JPEG data URL.
func Capture(ctx context.Context, s Stream, mode photo.FacingMode, quality int) (photo.CapturedImage, error) {
	if s == nil || !s.Active() {
		return photo.CapturedImage{}, errs.Newf(errs.CaptureFailed, "camera.Capture", "stream is not active")
	}
	f, err := s.Snapshot(ctx)
	if err != nil {
		return photo.CapturedImage{}, classify("camera.Capture", err, errs.CaptureFailed)
	}
	if f.Image == nil || f.Image.Bounds().Empty() {
		return photo.CapturedImage{}, errs.Newf(errs.CaptureFailed, "camera.Capture", "empty frame")
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, f.Image, &jpeg.Options{Quality: quality}); err != nil {
		return photo.CapturedImage{}, errs.New(errs.CaptureFailed, "camera.Capture", fmt.Errorf("JPEG encoding failed: %w", err))
	}
	at := f.At
	if at.IsZero() {
		at = time.Now()
	}
	return photo.CapturedImage{
		Data:       dataurl.Encode("image/jpeg", buf.Bytes()),
		FacingMode: mode,
		Timestamp:  at.UnixMilli(),
	}, nil
}

// classify maps device and transport errors onto the capture taxonomy.
func classify(op string, err error, fallback errs.Kind) error {
	var classified *errs.Error
	if errors.As(err, &classified) {
		return err
	}
	var netErr net.Error
	var urlErr *url.Error
	switch {
	case errors.Is(err, fs.ErrPermission):
		return errs.New(errs.PermissionDenied, op, err)
	case errors.Is(err, fs.ErrNotExist):
		return errs.New(errs.DeviceUnavailable, op, err)
	case errors.As(err, &netErr), errors.As(err, &urlErr):
		return errs.New(errs.DeviceUnavailable, op, err)
	}
	return errs.New(fallback, op, err)
}
