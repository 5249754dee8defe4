//go:build !linux

package camera

import (
	"context"

	"go-photostrip-server/internal/errs"
	"go-photostrip-server/internal/photo"
)

// V4L2Device is only available on linux.
type V4L2Device struct {
	Paths      map[photo.FacingMode]string
	Buffers    uint32
	TimeoutSec uint32
}

func (d *V4L2Device) Open(ctx context.Context, c Constraints) (Stream, error) {
	return nil, errs.Newf(errs.DeviceUnavailable, "v4l2.Open", "video4linux is not supported on this platform")
}
