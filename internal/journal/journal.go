// Package journal keeps an audit trail of dispatched actions.
package journal

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry is one dispatched action.
type Entry struct {
	ID      uuid.UUID       `json:"id"`
	Action  string          `json:"action"`
	JobID   string          `json:"jobId"`
	Applied bool            `json:"applied"`
	Warning string          `json:"warning,omitempty"`
	Error   string          `json:"error,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	At      time.Time       `json:"at"`
}

// Journal records entries. Implementations fill ID and At when unset.
type Journal interface {
	Record(ctx context.Context, e Entry) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
}

const (
	// DefaultLimit is used by Recent when limit is not positive.
	DefaultLimit = 50
	// MaxLimit caps Recent.
	MaxLimit = 500
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return min(limit, MaxLimit)
}

func stamp(e *Entry, now time.Time) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.At.IsZero() {
		e.At = now.UTC()
	}
}

// Memory is a bounded in-process journal, used when no database is
// configured.
type Memory struct {
	mu      sync.Mutex
	max     int
	entries []Entry
}

// NewMemory keeps at most max entries (DefaultLimit when max <= 0).
func NewMemory(max int) *Memory {
	if max <= 0 {
		max = DefaultLimit
	}
	return &Memory{max: max}
}

func (m *Memory) Record(_ context.Context, e Entry) error {
	stamp(&e, time.Now())
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	if over := len(m.entries) - m.max; over > 0 {
		m.entries = slices.Delete(m.entries, 0, over)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (m *Memory) Recent(_ context.Context, limit int) ([]Entry, error) {
	limit = clampLimit(limit)
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, 0, min(limit, len(m.entries)))
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.entries[i])
	}
	return out, nil
}
