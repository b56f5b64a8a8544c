package kanban

import (
	"slices"
	"sync"
	"time"
)

// DefaultNoticeTTL is how long a notice stays visible.
const DefaultNoticeTTL = 5 * time.Second

// Notice is a transient user-facing message keyed by the action that
// raised it.
type Notice struct {
	Key     string    `json:"key"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
	Expires time.Time `json:"expires"`
}

// Notices holds at most one notice per key. A notice disappears once its
// TTL has elapsed.
type Notices struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	items map[string]Notice
}

// NewNotices returns an empty set with the given TTL (DefaultNoticeTTL
// when not positive).
func NewNotices(ttl time.Duration, now func() time.Time) *Notices {
	if ttl <= 0 {
		ttl = DefaultNoticeTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Notices{ttl: ttl, now: now, items: map[string]Notice{}}
}

// Raise sets the notice for key, replacing any previous one.
func (n *Notices) Raise(key, msg string) {
	now := n.now()
	n.mu.Lock()
	defer n.mu.Unlock()
	n.items[key] = Notice{Key: key, Message: msg, At: now, Expires: now.Add(n.ttl)}
}

// Clear removes the notice for key.
func (n *Notices) Clear(key string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.items, key)
}

// List returns the live notices, oldest first.
func (n *Notices) List() []Notice {
	now := n.now()
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Notice, 0, len(n.items))
	for k, v := range n.items {
		if !now.Before(v.Expires) {
			delete(n.items, k)
			continue
		}
		out = append(out, v)
	}
	slices.SortFunc(out, func(a, b Notice) int { return a.At.Compare(b.At) })
	return out
}
