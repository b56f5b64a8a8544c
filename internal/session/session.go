// Package session holds the opaque bearer credential used to reach the
// spreadsheet. It does not log in or refresh tokens; an outer flow supplies
// the credential and the repository clears it when the store rejects it.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"jobmate/dashboard-service/internal/cache"
)

// tokenKey is the cache key of the persisted credential.
const tokenKey = "google_token"

// ErrNoCredential is returned by the token source when no credential is set.
var ErrNoCredential = errors.New("session: no credential")

// Session is safe for concurrent use.
type Session struct {
	store cache.Store
	ttl   time.Duration

	mu    sync.RWMutex
	token string
}

// New returns a Session persisting its credential in store for ttl
// (zero keeps it until cleared).
func New(store cache.Store, ttl time.Duration) *Session {
	return &Session{store: store, ttl: ttl}
}

// Load restores a previously persisted credential.
func (s *Session) Load(ctx context.Context) error {
	b, ok, err := s.store.Get(ctx, tokenKey)
	if err != nil {
		return fmt.Errorf("load credential: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if ok {
		s.token = string(b)
	} else {
		s.token = ""
	}
	return nil
}

// Set stores a new credential and persists it.
func (s *Session) Set(ctx context.Context, token string) error {
	if token == "" {
		return errors.New("session: empty credential")
	}
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()

	if err := s.store.Set(ctx, tokenKey, []byte(token), s.ttl); err != nil {
		return fmt.Errorf("persist credential: %w", err)
	}
	return s.store.Persist(ctx)
}

// Clear drops the credential (logout). The in-memory credential is cleared
// even when the store fails.
func (s *Session) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()

	if err := s.store.Delete(ctx, tokenKey); err != nil {
		return fmt.Errorf("clear credential: %w", err)
	}
	return s.store.Persist(ctx)
}

// Authenticated reports whether a credential is present.
func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token != ""
}

// Token implements oauth2.TokenSource with the current credential.
func (s *Session) Token() (*oauth2.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" {
		return nil, ErrNoCredential
	}
	return &oauth2.Token{AccessToken: s.token, TokenType: "Bearer"}, nil
}

var _ oauth2.TokenSource = (*Session)(nil)
