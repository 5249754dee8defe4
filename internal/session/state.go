// Package session implements the capture session: a reducer over an
// immutable State and a Controller that owns the camera stream and timers.
package session

import (
	"errors"
	"fmt"

	"go-photostrip-server/internal/errs"
	"go-photostrip-server/internal/frame"
	"go-photostrip-server/internal/photo"
)

// Status is the session's position in the capture flow.
type Status string

const (
	StatusSelectingFrame Status = "selectingFrame"
	StatusIdle           Status = "idle"
	StatusCapturing      Status = "capturing"
	StatusCaptured       Status = "captured"
	StatusCompleted      Status = "completed"
	StatusError          Status = "error"
)

// ErrInvalidTransition is returned for an action the current status does
// not accept. The state is left unchanged.
var ErrInvalidTransition = errors.New("invalid session transition")

// State is one immutable snapshot of a session. Only Reduce produces new
// states; callers must not mutate the slices they receive.
type State struct {
	Status         Status                `json:"status"`
	FacingMode     photo.FacingMode      `json:"facingMode"`
	Frame          *frame.Layout         `json:"frame,omitempty"`
	Countdown      int                   `json:"countdown"`
	IsCameraReady  bool                  `json:"isCameraReady"`
	CapturedImages []photo.CapturedImage `json:"capturedImages"`
	CurrentImage   *photo.CapturedImage  `json:"currentImage,omitempty"`
	LastError      string                `json:"lastError,omitempty"`
	ErrorKind      string                `json:"errorKind,omitempty"`
}

// Initial is the state before a frame has been chosen.
func Initial(mode photo.FacingMode) State {
	if mode == "" {
		mode = photo.FacingUser
	}
	return State{Status: StatusSelectingFrame, FacingMode: mode, CapturedImages: []photo.CapturedImage{}}
}

// TotalSlots is the number of photos the chosen frame takes, or 0 before
// a frame is selected.
func (s State) TotalSlots() int {
	if s.Frame == nil {
		return 0
	}
	return s.Frame.TotalSlots()
}

// Full reports whether every slot of the frame holds a photo.
func (s State) Full() bool {
	return s.Frame != nil && len(s.CapturedImages) >= s.TotalSlots()
}

// Clone returns a copy that shares nothing mutable with s.
func (s State) Clone() State {
	s.CapturedImages = photo.Snapshot(s.CapturedImages)
	if s.CapturedImages == nil {
		s.CapturedImages = []photo.CapturedImage{}
	}
	if s.Frame != nil {
		l := *s.Frame
		if l.Datetime != nil {
			a := *l.Datetime
			l.Datetime = &a
		}
		s.Frame = &l
	}
	if s.CurrentImage != nil {
		img := *s.CurrentImage
		s.CurrentImage = &img
	}
	return s
}

// Action is a session event. The set of actions is closed.
type Action interface {
	kind() string
}

type (
	SelectFrame    struct{ Layout frame.Layout }
	OpenCamera     struct{}
	SetCameraReady struct{ Ready bool }
	CapturePhoto   struct{ Image photo.CapturedImage }
	StopCamera     struct{}
	SetFacingMode  struct{ Mode photo.FacingMode }
	StartCountdown struct{ Seconds int }
	TickCountdown  struct{}
	ClearCurrent   struct{}
	ClearLast      struct{}
	Complete       struct{}
	Reset          struct{}
	Fail           struct{ Err error }
)

func (SelectFrame) kind() string    { return "SELECT_FRAME" }
func (OpenCamera) kind() string     { return "OPEN_CAMERA" }
func (SetCameraReady) kind() string { return "SET_CAMERA_READY" }
func (CapturePhoto) kind() string   { return "CAPTURE_PHOTO" }
func (StopCamera) kind() string     { return "STOP_CAMERA" }
func (SetFacingMode) kind() string  { return "SET_FACING_MODE" }
func (StartCountdown) kind() string { return "START_COUNTDOWN" }
func (TickCountdown) kind() string  { return "TICK_COUNTDOWN" }
func (ClearCurrent) kind() string   { return "CLEAR_CURRENT" }
func (ClearLast) kind() string      { return "CLEAR_LAST" }
func (Complete) kind() string       { return "COMPLETE" }
func (Reset) kind() string          { return "RESET" }
func (Fail) kind() string           { return "FAIL" }

// MaxCountdown bounds StartCountdown.
const MaxCountdown = 10

// transitions maps each action to the statuses it is accepted from and the
// status it leads to. Actions that keep the status map a status to itself.
var transitions = map[string]map[Status]Status{
	"SELECT_FRAME": {
		StatusSelectingFrame: StatusIdle,
		StatusIdle:           StatusIdle,
	},
	"OPEN_CAMERA": {
		StatusIdle:      StatusCapturing,
		StatusError:     StatusCapturing,
		StatusCapturing: StatusCapturing,
	},
	"SET_CAMERA_READY": {
		StatusCapturing: StatusCapturing,
	},
	"CAPTURE_PHOTO": {
		StatusCapturing: StatusCaptured,
	},
	"STOP_CAMERA": {
		StatusIdle:      StatusIdle,
		StatusCapturing: StatusIdle,
		StatusError:     StatusIdle,
	},
	"SET_FACING_MODE": {
		StatusSelectingFrame: StatusSelectingFrame,
		StatusIdle:           StatusIdle,
		StatusCapturing:      StatusCapturing,
		StatusCaptured:       StatusCaptured,
		StatusCompleted:      StatusCompleted,
		StatusError:          StatusError,
	},
	"START_COUNTDOWN": {
		StatusCapturing: StatusCapturing,
	},
	"TICK_COUNTDOWN": {
		StatusCapturing: StatusCapturing,
	},
	"CLEAR_CURRENT": {
		StatusCaptured: StatusIdle,
	},
	"CLEAR_LAST": {
		StatusCaptured: StatusIdle,
	},
	"COMPLETE": {
		StatusIdle:      StatusCompleted,
		StatusCapturing: StatusCompleted,
		StatusCaptured:  StatusCompleted,
		StatusError:     StatusCompleted,
	},
	"RESET": {
		StatusIdle:      StatusIdle,
		StatusCapturing: StatusIdle,
		StatusCaptured:  StatusIdle,
		StatusCompleted: StatusIdle,
		StatusError:     StatusIdle,
	},
	"FAIL": {
		StatusIdle:      StatusError,
		StatusCapturing: StatusError,
		StatusCaptured:  StatusError,
		StatusError:     StatusError,
	},
}

func invalid(a Action, s State, reason string) error {
	if reason == "" {
		return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, a.kind(), s.Status)
	}
	return fmt.Errorf("%w: %s from %s: %s", ErrInvalidTransition, a.kind(), s.Status, reason)
}

// Reduce applies a to s. It never mutates s.
func Reduce(s State, a Action) (State, error) {
	to, ok := transitions[a.kind()][s.Status]
	if !ok {
		return s, invalid(a, s, "")
	}
	next := s.Clone()
	next.Status = to

	switch a := a.(type) {
	case SelectFrame:
		if len(s.CapturedImages) > 0 {
			return s, invalid(a, s, "photos already captured")
		}
		if err := a.Layout.Validate(); err != nil {
			return s, invalid(a, s, err.Error())
		}
		l := a.Layout
		next.Frame = &l
	case OpenCamera:
		next.IsCameraReady = false
		next.Countdown = 0
		next.LastError, next.ErrorKind = "", ""
	case SetCameraReady:
		next.IsCameraReady = a.Ready
	case CapturePhoto:
		if s.Full() {
			return s, invalid(a, s, "all slots are filled")
		}
		img := a.Image
		next.CapturedImages = append(next.CapturedImages, img)
		next.CurrentImage = &img
		next.IsCameraReady = false
		next.Countdown = 0
		next.LastError, next.ErrorKind = "", ""
	case StopCamera:
		next.IsCameraReady = false
		next.Countdown = 0
	case SetFacingMode:
		if _, err := photo.ParseFacingMode(string(a.Mode)); err != nil {
			return s, invalid(a, s, err.Error())
		}
		next.FacingMode = a.Mode
	case StartCountdown:
		switch {
		case !s.IsCameraReady:
			return s, invalid(a, s, "camera is not ready")
		case s.Full():
			return s, invalid(a, s, "all slots are filled")
		case a.Seconds < 0 || a.Seconds > MaxCountdown:
			return s, invalid(a, s, fmt.Sprintf("countdown %d out of range", a.Seconds))
		}
		next.Countdown = a.Seconds
	case TickCountdown:
		next.Countdown = max(0, s.Countdown-1)
	case ClearCurrent:
		if s.Full() {
			return s, invalid(a, s, "no slots remain")
		}
		next.CurrentImage = nil
	case ClearLast:
		if n := len(next.CapturedImages); n > 0 {
			next.CapturedImages = next.CapturedImages[:n-1]
		}
		next.CurrentImage = nil
	case Complete:
		if !s.Full() {
			return s, invalid(a, s, fmt.Sprintf("%d of %d photos taken", len(s.CapturedImages), s.TotalSlots()))
		}
		next.IsCameraReady = false
		next.Countdown = 0
		next.CurrentImage = nil
	case Reset:
		if s.Frame == nil {
			return s, invalid(a, s, "no frame selected")
		}
		next.CapturedImages = []photo.CapturedImage{}
		next.CurrentImage = nil
		next.IsCameraReady = false
		next.Countdown = 0
		next.LastError, next.ErrorKind = "", ""
	case Fail:
		next.IsCameraReady = false
		next.Countdown = 0
		if a.Err != nil {
			next.LastError = a.Err.Error()
		}
		next.ErrorKind = errs.KindOf(a.Err).String()
	}
	return next, nil
}
