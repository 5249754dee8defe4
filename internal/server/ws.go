package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"go-photostrip-server/internal/errs"
	"go-photostrip-server/internal/session"
	"go-photostrip-server/internal/strip"
)

// event is every message the server pushes to websocket clients.
type event struct {
	Type     string         `json:"type"`
	ClientID string         `json:"clientId,omitempty"`
	Session  *sessionView   `json:"session,omitempty"`
	Strip    *stripSummary  `json:"strip,omitempty"`
	Notices  []strip.Notice `json:"notices,omitempty"`
	// Command results
	ID    string `json:"id,omitempty"`
	OK    *bool  `json:"ok,omitempty"`
	Error string `json:"error,omitempty"`
	Kind  string `json:"kind,omitempty"`
}

// stripSummary describes a committed render. Clients fetch the image itself
// from /api/strip.jpg.
type stripSummary struct {
	Pass    uint64    `json:"pass"`
	Photos  int       `json:"photos"`
	Width   int       `json:"width"`
	Height  int       `json:"height"`
	Skipped []int     `json:"skipped,omitempty"`
	Stamp   time.Time `json:"stamp"`
}

func viewOf(st session.State) *sessionView {
	return &sessionView{State: st, TotalSlots: st.TotalSlots(), Mirrored: st.FacingMode.Mirrored()}
}

func stateEvent(st session.State) event {
	return event{Type: "state", Session: viewOf(st)}
}

func stripEvent(r *strip.Renderer, out *strip.Output) event {
	b := out.Final.Bounds()
	return event{
		Type: "strip",
		Strip: &stripSummary{
			Pass:    r.Passes(),
			Photos:  out.Photos,
			Width:   b.Dx(),
			Height:  b.Dy(),
			Skipped: out.Skipped,
			Stamp:   out.Stamp,
		},
		Notices: r.Notices(),
	}
}

func resultEvent(id string, err error) event {
	ok := err == nil
	ev := event{Type: "result", ID: id, OK: &ok}
	if err != nil {
		ev.Error = err.Error()
		if k := errs.KindOf(err); k != errs.Unknown {
			ev.Kind = k.String()
		}
	}
	return ev
}

type client struct {
	id   string
	send chan []byte

	mu     sync.Mutex
	closed bool
}

// trySend queues data without blocking. It reports false when the queue is
// full.
func (c *client) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// hub fans events out to connected clients.
type hub struct {
	mu      sync.Mutex
	clients map[string]*client
}

func newHub() *hub {
	return &hub{clients: make(map[string]*client)}
}

func newClient() *client {
	return &client{id: uuid.NewString(), send: make(chan []byte, wsSendQueue)}
}

func (h *hub) add(c *client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
}

func (h *hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c.id)
	h.mu.Unlock()
	c.close()
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func marshalEvent(ev event) ([]byte, error) {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufferPool.Put(buf)
	if err := json.NewEncoder(buf).Encode(ev); err != nil {
		return nil, err
	}
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

// broadcast encodes ev once and queues it for every client. Clients whose
// queue is full are disconnected.
func (h *hub) broadcast(ev event) {
	data, err := marshalEvent(ev)
	if err != nil {
		log.Printf("❌ Failed to encode %s event: %v", ev.Type, err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		if !c.trySend(data) {
			log.Printf("⚠️  Dropping slow client %s", id)
			delete(h.clients, id)
			c.close()
		}
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		delete(h.clients, id)
		c.close()
	}
}

func (c *client) queue(ev event) {
	data, err := marshalEvent(ev)
	if err != nil {
		log.Printf("❌ Failed to encode %s event: %v", ev.Type, err)
		return
	}
	c.trySend(data)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("❌ WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// hello is queued before the client joins the hub so it is always first
	c := newClient()
	c.queue(event{Type: "hello", ClientID: c.id, Session: s.sessionView(), Notices: s.renderer.Notices()})
	s.hub.add(c)
	defer s.hub.remove(c)
	log.Printf("🌐 Client connected: %s (%s)", c.id, conn.RemoteAddr())

	done := make(chan struct{})
	go s.writePump(conn, c, done)
	defer close(done)

	conn.SetReadLimit(maxJSONBody)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("❌ WebSocket error from %s: %v", c.id, err)
			}
			break
		}
		var cmd command
		if err := json.Unmarshal(data, &cmd); err != nil {
			log.Printf("❌ Invalid command from %s: %v", c.id, err)
			c.queue(resultEvent("", errBadRequest))
			continue
		}
		ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
		err = s.execute(ctx, cmd)
		cancel()
		c.queue(resultEvent(cmd.ID, err))
	}
	log.Printf("🔌 Client disconnected: %s", c.id)
}

// writePump owns all writes to conn.
func (s *Server) writePump(conn *websocket.Conn, c *client, done <-chan struct{}) {
	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()
	for {
		select {
		case <-done:
			return
		case data, ok := <-c.send:
			if !ok {
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				conn.Close()
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				conn.Close()
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return
			}
		}
	}
}
