package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMaxEntries bounds the memory store.
const DefaultMaxEntries = 1024

type entry struct {
	Value   []byte    `json:"value"`
	Expires time.Time `json:"expires,omitzero"`
}

func (e entry) expired(now time.Time) bool {
	return !e.Expires.IsZero() && !now.Before(e.Expires)
}

// record is one persisted entry. The file lists records least recently used
// first so a reload restores the recency order.
type record struct {
	Key string `json:"key"`
	entry
}

// Memory is an in-process Store over an LRU, optionally persisted to a JSON
// file. Expired entries are dropped first when the store is full; otherwise
// the least recently used entry goes.
type Memory struct {
	// mu serializes the purge-then-add in Set and the snapshot in Persist;
	// the LRU itself is safe for concurrent use.
	mu         sync.Mutex
	lru        *lru.Cache[string, entry]
	maxEntries int
	path       string
	now        func() time.Time
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithFile persists the store to path on Persist and loads it on creation.
func WithFile(path string) MemoryOption {
	return func(m *Memory) { m.path = path }
}

// WithMaxEntries overrides DefaultMaxEntries.
func WithMaxEntries(n int) MemoryOption {
	return func(m *Memory) {
		if n > 0 {
			m.maxEntries = n
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

// NewMemory returns a Memory store. A missing persistence file is not an
// error; a corrupt one is.
func NewMemory(opts ...MemoryOption) (*Memory, error) {
	m := &Memory{maxEntries: DefaultMaxEntries, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	c, err := lru.New[string, entry](m.maxEntries)
	if err != nil {
		return nil, fmt.Errorf("lru.New: %w", err)
	}
	m.lru = c
	if m.path == "" {
		return m, nil
	}

	b, err := os.ReadFile(m.path)
	if errors.Is(err, os.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cache file: %w", err)
	}
	var records []record
	if err := json.Unmarshal(b, &records); err != nil {
		return nil, fmt.Errorf("decode cache file %s: %w", m.path, err)
	}
	now := m.now()
	for _, r := range records {
		if !r.expired(now) {
			m.lru.Add(r.Key, r.entry)
		}
	}
	return m, nil
}

// Get returns the value for key, evicting it if expired.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	e, ok := m.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	if e.expired(m.now()) {
		m.lru.Remove(key)
		return nil, false, nil
	}
	return append([]byte(nil), e.Value...), true, nil
}

// Set stores value under key.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := entry{Value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.Expires = m.now().Add(ttl)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.lru.Contains(key) && m.lru.Len() >= m.maxEntries {
		m.purgeExpiredLocked()
	}
	m.lru.Add(key, e)
	return nil
}

// Delete removes key.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.lru.Remove(key)
	return nil
}

// Persist atomically writes the live entries to the configured file.
func (m *Memory) Persist(_ context.Context) error {
	if m.path == "" {
		return nil
	}

	m.mu.Lock()
	now := m.now()
	keys := m.lru.Keys()
	live := make([]record, 0, len(keys))
	for _, k := range keys {
		if e, ok := m.lru.Peek(k); ok && !e.expired(now) {
			live = append(live, record{Key: k, entry: e})
		}
	}
	m.mu.Unlock()

	b, err := json.Marshal(live)
	if err != nil {
		return fmt.Errorf("encode cache: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(m.path), ".cache-*")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("write cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close cache file: %w", err)
	}
	if err := os.Rename(tmp.Name(), m.path); err != nil {
		return fmt.Errorf("rename cache file: %w", err)
	}
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (m *Memory) Len() int { return m.lru.Len() }

func (m *Memory) purgeExpiredLocked() {
	now := m.now()
	for _, k := range m.lru.Keys() {
		if e, ok := m.lru.Peek(k); ok && e.expired(now) {
			m.lru.Remove(k)
		}
	}
}
