package server

import (
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"go-photostrip-server/internal/camera"
	"go-photostrip-server/internal/compositing"
	"go-photostrip-server/internal/filter"
	"go-photostrip-server/internal/relay"
	"go-photostrip-server/internal/session"
	"go-photostrip-server/internal/strip"
)

// command is a session operation sent over HTTP or the websocket.
type command struct {
	ID      string `json:"id,omitempty"`
	Action  string `json:"action"`
	FrameID string `json:"frameId,omitempty"`
	Seconds int    `json:"seconds,omitempty"`
}

// execute runs one session operation.
func (s *Server) execute(ctx context.Context, cmd command) error {
	switch cmd.Action {
	case "select-frame":
		l, err := s.frames.Lookup(cmd.FrameID)
		if err != nil {
			return err
		}
		return s.session.SelectFrame(l)
	case "open-camera":
		return s.session.OpenCamera(ctx)
	case "countdown":
		if !contains(countdownOptions, cmd.Seconds) {
			return fmt.Errorf("%w: countdown must be one of %v", errBadRequest, countdownOptions)
		}
		return s.session.StartCountdown(cmd.Seconds)
	case "capture":
		return s.session.CapturePhoto(ctx)
	case "retake":
		return s.session.RetakePhoto(ctx)
	case "continue":
		return s.session.ContinueCapture(ctx)
	case "complete":
		return s.session.CompleteCapture()
	case "reset":
		return s.session.Reset(ctx)
	case "retry":
		return s.session.Retry(ctx)
	case "switch-camera":
		return s.session.SwitchCamera(ctx)
	}
	return fmt.Errorf("%w: %q", errUnknownAction, cmd.Action)
}

// sessionView is the session as clients see it.
type sessionView struct {
	session.State
	TotalSlots  int                 `json:"totalSlots"`
	Mirrored    bool                `json:"mirrored"`
	Constraints *camera.Constraints `json:"constraints,omitempty"`
}

func (s *Server) sessionView() *sessionView {
	v := viewOf(s.session.State())
	if c, ok := s.session.Constraints(); ok {
		v.Constraints = &c
	}
	return v
}

func (s *Server) handleFrames(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.frames.List())
}

func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"filters":     filter.Presets(),
		"dateFormats": compositing.DateFormats,
		"timeFormats": compositing.TimeFormats,
		"fonts":       s.comp.Fonts().IDs(),
		"countdowns":  countdownOptions,
		"share":       s.uploader != nil,
		"contact":     s.messenger != nil,
	})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sessionView())
}

func (s *Server) handleSessionAction(w http.ResponseWriter, r *http.Request) {
	cmd := command{Action: mux.Vars(r)["action"]}
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &cmd); err != nil {
			writeError(w, err)
			return
		}
		cmd.Action = mux.Vars(r)["action"]
	}
	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()
	if err := s.execute(ctx, cmd); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.sessionView())
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	f, err := s.session.Preview(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	_ = jpeg.Encode(w, previewImage(f.Image, s.session.PreviewMirrored()), &jpeg.Options{Quality: 80})
}

func (s *Server) handleGetEditor(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.renderer.Style())
}

func (s *Server) handlePutEditor(w http.ResponseWriter, r *http.Request) {
	style := s.renderer.Style()
	if err := decodeJSON(w, r, &style); err != nil {
		writeError(w, err)
		return
	}
	if err := validateStyle(style); err != nil {
		writeError(w, err)
		return
	}
	s.renderer.SetStyle(style)
	writeJSON(w, http.StatusOK, style)
}

// validateStyle rejects editor values the renderer cannot draw.
func validateStyle(st strip.Style) error {
	if _, ok := filter.Lookup(st.Filter); !ok {
		return fmt.Errorf("%w: unknown filter %q", errBadRequest, st.Filter)
	}
	if _, err := compositing.ParseHexColor(st.BorderColor); err != nil {
		return fmt.Errorf("%w: border color: %v", errBadRequest, err)
	}
	if st.Text.Color != "" {
		if _, err := compositing.ParseHexColor(st.Text.Color); err != nil {
			return fmt.Errorf("%w: text color: %v", errBadRequest, err)
		}
	}
	if st.Text.Size < minTextSize || st.Text.Size > maxTextSize {
		return fmt.Errorf("%w: text size %v out of range %d-%d", errBadRequest, st.Text.Size, minTextSize, maxTextSize)
	}
	if !containsString(compositing.DateFormats, st.DateFormat) {
		return fmt.Errorf("%w: unknown date format %q", errBadRequest, st.DateFormat)
	}
	if !containsString(compositing.TimeFormats, st.TimeFormat) {
		return fmt.Errorf("%w: unknown time format %q", errBadRequest, st.TimeFormat)
	}
	return nil
}

// stripJPEG waits for pending passes so a download reflects the last edit.
func (s *Server) stripJPEG(ctx context.Context) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, stripWaitTimeout)
	defer cancel()
	if _, err := s.renderer.Wait(ctx); err != nil && !errors.Is(err, strip.ErrNotRendered) {
		return nil, err
	}
	return s.renderer.JPEG()
}

func (s *Server) handleStripJPEG(w http.ResponseWriter, r *http.Request) {
	data, err := s.stripJPEG(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	name := fmt.Sprintf("photostrip-%s.jpg", time.Now().Format("20060102-150405"))
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if r.URL.Query().Get("download") != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, name))
	}
	_, _ = w.Write(data)
}

func (s *Server) handleOverlayPNG(w http.ResponseWriter, r *http.Request) {
	data, err := s.renderer.OverlayPNG()
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(data)
}

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	if s.uploader == nil {
		writeError(w, relay.ErrDisabled)
		return
	}
	data, err := s.stripJPEG(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	up, err := s.uploader.Upload(r.Context(), data, "")
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, up)
}

func (s *Server) handleContact(w http.ResponseWriter, r *http.Request) {
	if s.messenger == nil {
		writeError(w, relay.ErrDisabled)
		return
	}
	var m relay.Message
	if err := decodeJSON(w, r, &m); err != nil {
		writeError(w, err)
		return
	}
	m = m.Sanitize()
	if err := m.Validate(); err != nil {
		writeError(w, err)
		return
	}
	if err := s.messenger.Contact(r.Context(), m); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Message sent successfully! We will get back to you soon."})
}

func (s *Server) handleNotices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.renderer.Notices())
}

func (s *Server) handleDismissNotice(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	if !s.renderer.DismissNotice(id) {
		writeJSON(w, http.StatusNotFound, apiError{Error: "notice not found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.stats())
}
