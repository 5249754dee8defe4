package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"go-photostrip-server/internal/compositing"
	"go-photostrip-server/internal/frame"
	"go-photostrip-server/internal/loader"
	"go-photostrip-server/internal/relay"
	"go-photostrip-server/internal/session"
	"go-photostrip-server/internal/strip"
	"go-photostrip-server/logger"
)

// Deps are the collaborators the server wires together.
type Deps struct {
	Frames     *frame.Registry
	Session    *session.Controller
	Compositor *compositing.Compositor
	Loader     *loader.Loader
	Render     strip.Options // OnRender is set by the server
	Uploader   relay.Uploader
	Messenger  relay.Messenger
	Health     *Health
	Logger     *logger.BufferedLogger
	// AllowedOrigins limits websocket origins. Empty allows all.
	AllowedOrigins []string
}

// Server exposes one capture session over HTTP and a websocket.
type Server struct {
	frames    *frame.Registry
	session   *session.Controller
	comp      *compositing.Compositor
	renderer  *strip.Renderer
	uploader  relay.Uploader
	messenger relay.Messenger
	health    *Health
	logger    *logger.BufferedLogger
	hub       *hub
	upgrader  websocket.Upgrader
	started   time.Time

	mu      sync.Mutex
	syncKey string
}

// New creates a server and its strip renderer.
func New(d Deps) *Server {
	s := &Server{
		frames:    d.Frames,
		session:   d.Session,
		comp:      d.Compositor,
		uploader:  d.Uploader,
		messenger: d.Messenger,
		health:    d.Health,
		logger:    d.Logger,
		hub:       newHub(),
		started:   time.Now(),
	}
	opts := d.Render
	if opts.Logger == nil {
		opts.Logger = d.Logger
	}
	opts.OnRender = s.onRender
	s.renderer = strip.NewRenderer(d.Compositor, d.Loader, opts)
	s.upgrader = websocket.Upgrader{
		CheckOrigin:     originChecker(d.AllowedOrigins),
		ReadBufferSize:  4 * 1024,
		WriteBufferSize: 64 * 1024,
	}
	return s
}

// Renderer returns the strip renderer.
func (s *Server) Renderer() *strip.Renderer {
	return s.renderer
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/frames", s.handleFrames).Methods(http.MethodGet)
	api.HandleFunc("/options", s.handleOptions).Methods(http.MethodGet)
	api.HandleFunc("/session", s.handleSession).Methods(http.MethodGet)
	api.HandleFunc("/session/{action}", s.handleSessionAction).Methods(http.MethodPost)
	api.HandleFunc("/preview.jpg", s.handlePreview).Methods(http.MethodGet)
	api.HandleFunc("/editor", s.handleGetEditor).Methods(http.MethodGet)
	api.HandleFunc("/editor", s.handlePutEditor).Methods(http.MethodPut)
	api.HandleFunc("/strip.jpg", s.handleStripJPEG).Methods(http.MethodGet)
	api.HandleFunc("/strip/overlay.png", s.handleOverlayPNG).Methods(http.MethodGet)
	api.HandleFunc("/strip/share", s.handleShare).Methods(http.MethodPost)
	api.HandleFunc("/contact", s.handleContact).Methods(http.MethodPost)
	api.HandleFunc("/notices", s.handleNotices).Methods(http.MethodGet)
	api.HandleFunc("/notices/{id:[0-9]+}", s.handleDismissNotice).Methods(http.MethodDelete)
	api.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWebSocket)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	return r
}

// Run follows the session until ctx ends: completed sessions are handed to
// the renderer and every state change is pushed to websocket clients.
func (s *Server) Run(ctx context.Context) {
	updates, cancel := s.session.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-updates:
			if !ok {
				return
			}
			s.syncRenderer(st)
			s.health.SetCamera(st.Status != session.StatusError)
			s.hub.broadcast(stateEvent(st))
		}
	}
}

// syncRenderer requests a render once capture is complete and again whenever
// the frame or the photo set changed since the last request.
func (s *Server) syncRenderer(st session.State) {
	if st.Frame == nil || st.Status != session.StatusCompleted {
		return
	}
	var b strings.Builder
	b.WriteString(st.Frame.ID)
	for _, img := range st.CapturedImages {
		b.WriteByte('|')
		b.WriteString(strconv.FormatInt(img.Timestamp, 10))
	}
	key := b.String()

	s.mu.Lock()
	changed := key != s.syncKey
	s.syncKey = key
	s.mu.Unlock()
	if changed {
		s.renderer.SetImages(*st.Frame, st.CapturedImages)
	}
}

func (s *Server) onRender(out *strip.Output) {
	s.hub.broadcast(stripEvent(s.renderer, out))
}

// Close stops rendering and disconnects websocket clients. The session
// controller is owned by the caller.
func (s *Server) Close() {
	s.renderer.Close()
	s.hub.closeAll()
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || containsString(allowed, origin)
	}
}
