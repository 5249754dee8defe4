// Package errs defines the failure taxonomy shared by the capture and render paths.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can decide between the session error
// state (camera and capture) and a local fallback (decode and filter).
type Kind int

const (
	Unknown Kind = iota
	PermissionDenied
	DeviceUnavailable
	CaptureFailed
	DecodeFailed
	FilterUnavailable
	FilterApplyFailed
	RenderFailed
)

var kindNames = map[Kind]string{
	Unknown:           "Unknown",
	PermissionDenied:  "PermissionDenied",
	DeviceUnavailable: "DeviceUnavailable",
	CaptureFailed:     "CaptureFailed",
	DecodeFailed:      "DecodeFailed",
	FilterUnavailable: "FilterUnavailable",
	FilterApplyFailed: "FilterApplyFailed",
	RenderFailed:      "RenderFailed",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error lets a Kind be matched with errors.Is(err, errs.CaptureFailed).
func (k Kind) Error() string {
	return k.String()
}

// Error is a classified failure raised by operation Op.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches both another *Error of the same kind and a bare Kind.
func (e *Error) Is(target error) bool {
	switch t := target.(type) {
	case Kind:
		return e.Kind == t
	case *Error:
		return e.Kind == t.Kind
	}
	return false
}

// New wraps err as a failure of the given kind.
func New(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf builds a classified failure from a format string.
func Newf(kind Kind, op, format string, args ...interface{}) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var k Kind
	if errors.As(err, &k) {
		return k
	}
	return Unknown
}

// Retryable reports whether err should move a capture session into its
// recoverable error state rather than being absorbed locally.
func Retryable(err error) bool {
	switch KindOf(err) {
	case PermissionDenied, DeviceUnavailable, CaptureFailed:
		return true
	}
	return false
}
