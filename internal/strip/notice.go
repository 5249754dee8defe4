package strip

import (
	"sync"
	"time"

	"go-photostrip-server/internal/errs"
)

// DefaultNoticeTTL is how long a notice stays visible.
const DefaultNoticeTTL = 4 * time.Second

// Notice is a non-fatal problem surfaced to the user, such as a photo drawn
// without its filter. Notices expire on their own.
type Notice struct {
	ID      uint64    `json:"id"`
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
	Expires time.Time `json:"expires"`
}

// Notices is a self-expiring notice list.
type Notices struct {
	ttl time.Duration
	now func() time.Time

	mu     sync.Mutex
	nextID uint64
	items  []Notice
}

// NewNotices creates a list whose entries live for ttl.
func NewNotices(ttl time.Duration, now func() time.Time) *Notices {
	if ttl <= 0 {
		ttl = DefaultNoticeTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Notices{ttl: ttl, now: now}
}

// Add records err as a notice.
func (n *Notices) Add(err error) Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nextID++
	notice := Notice{
		ID:      n.nextID,
		Kind:    errs.KindOf(err).String(),
		Message: err.Error(),
		Expires: n.now().Add(n.ttl),
	}
	n.items = append(n.items, notice)
	return notice
}

// Active returns unexpired notices and drops the rest.
func (n *Notices) Active() []Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	now := n.now()
	kept := n.items[:0]
	for _, item := range n.items {
		if now.Before(item.Expires) {
			kept = append(kept, item)
		}
	}
	n.items = kept
	out := make([]Notice, len(kept))
	copy(out, kept)
	return out
}

// Dismiss removes a notice before it expires.
func (n *Notices) Dismiss(id uint64) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, item := range n.items {
		if item.ID == id {
			n.items = append(n.items[:i], n.items[i+1:]...)
			return true
		}
	}
	return false
}
