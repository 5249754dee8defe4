package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"log"
	"net/http"

	"github.com/disintegration/imaging"

	"go-photostrip-server/internal/errs"
	"go-photostrip-server/internal/frame"
	"go-photostrip-server/internal/relay"
	"go-photostrip-server/internal/session"
	"go-photostrip-server/internal/strip"
)

var (
	errUnknownAction = errors.New("unknown action")
	errBadRequest    = errors.New("bad request")
)

// apiError is the JSON body of every failed request.
type apiError struct {
	Error  string            `json:"error"`
	Kind   string            `json:"kind,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

// writeJSON encodes v through a pooled buffer so a failed encode never
// leaves a half-written body.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufferPool.Put(buf)

	if err := json.NewEncoder(buf).Encode(v); err != nil {
		log.Printf("❌ Failed to encode response: %v", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func writeError(w http.ResponseWriter, err error) {
	status := errorStatus(err)
	body := apiError{Error: err.Error()}
	if k := errs.KindOf(err); k != errs.Unknown {
		body.Kind = k.String()
	}
	var ve *relay.ValidationError
	if errors.As(err, &ve) {
		body.Fields = ve.Fields
	}
	if status >= http.StatusInternalServerError {
		log.Printf("❌ Request failed: %v", err)
	}
	writeJSON(w, status, body)
}

// errorStatus maps domain errors onto HTTP status codes.
func errorStatus(err error) int {
	var ve *relay.ValidationError
	var se *relay.StatusError
	switch {
	case errors.As(err, &ve), errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, frame.ErrUnknownFrame), errors.Is(err, errUnknownAction), errors.Is(err, strip.ErrNotRendered):
		return http.StatusNotFound
	case errors.Is(err, session.ErrInvalidTransition), errors.Is(err, session.ErrNotFailed):
		return http.StatusConflict
	case errors.Is(err, relay.ErrDisabled), errors.Is(err, session.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.As(err, &se):
		return http.StatusBadGateway
	}
	switch errs.KindOf(err) {
	case errs.PermissionDenied:
		return http.StatusForbidden
	case errs.DeviceUnavailable:
		return http.StatusServiceUnavailable
	case errs.CaptureFailed:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

// previewImage orients a live frame the way the capture screen shows it:
// user-facing previews are mirrored.
func previewImage(img image.Image, mirrored bool) image.Image {
	if !mirrored {
		return img
	}
	return imaging.FlipH(img)
}

func contains(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func containsString(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
