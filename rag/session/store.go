// Package session keeps the per-upload state between upload and close.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mudler/localqa/rag/types"
	"github.com/mudler/xlog"
)

// Store maps session identifiers to session data.
type Store interface {
	Create(fragments []string, termFrequency map[string]int, mediaType string) (string, error)
	Get(id string) (types.Session, error)
	Delete(id string) error
	Len() int
}

type entry struct {
	session    types.Session
	lastAccess time.Time
}

// MemoryStore is a process-local Store. Sessions never outlive the process.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	ttl      time.Duration
	now      func() time.Time
}

// NewMemoryStore returns an empty store. A ttl > 0 makes idle sessions expire;
// a ttl of zero keeps sessions until they are deleted.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*entry),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Create stores a new session and returns its identifier.
func (s *MemoryStore) Create(fragments []string, termFrequency map[string]int, mediaType string) (string, error) {
	if len(fragments) == 0 {
		return "", types.ErrEmptyDocument
	}

	id := uuid.NewString()
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[id]; exists {
		return "", fmt.Errorf("session id collision: %s", id)
	}

	s.sessions[id] = &entry{
		session: types.Session{
			ID:            id,
			Fragments:     fragments,
			TermFrequency: termFrequency,
			MediaType:     mediaType,
			CreatedAt:     now,
		},
		lastAccess: now,
	}

	return id, nil
}

// Get returns the session. Expired sessions are reported as not found.
func (s *MemoryStore) Get(id string) (types.Session, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		return types.Session{}, fmt.Errorf("%w: %s", types.ErrSessionNotFound, id)
	}
	if s.expired(e, now) {
		delete(s.sessions, id)
		return types.Session{}, fmt.Errorf("%w: %s", types.ErrSessionNotFound, id)
	}

	e.lastAccess = now
	return e.session, nil
}

// Delete removes the session. Deleting an unknown session is an error.
func (s *MemoryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return fmt.Errorf("%w: %s", types.ErrSessionNotFound, id)
	}
	delete(s.sessions, id)
	return nil
}

// Len returns the number of sessions currently held.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.sessions)
}

// Evict removes every expired session and returns how many were removed.
func (s *MemoryStore) Evict() int {
	if s.ttl <= 0 {
		return 0
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, e := range s.sessions {
		if s.expired(e, now) {
			delete(s.sessions, id)
			evicted++
		}
	}
	return evicted
}

// Start runs the eviction loop until ctx is done. It does nothing without a ttl.
func (s *MemoryStore) Start(ctx context.Context) {
	if s.ttl <= 0 {
		return
	}

	interval := s.ttl / 2
	if interval > time.Minute {
		interval = time.Minute
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.Evict(); n > 0 {
					xlog.Info("Evicted idle sessions", "count", n)
				}
			}
		}
	}()
}

func (s *MemoryStore) expired(e *entry, now time.Time) bool {
	return s.ttl > 0 && now.Sub(e.lastAccess) > s.ttl
}
