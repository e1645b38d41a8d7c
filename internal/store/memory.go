package store

import (
	"context"
	"sync"

	"github.com/kentin0-fiz0l/FluxStudio-sub015/internal/model"
)

// MemoryStore is a map-backed SessionStore for tests and local runs.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]model.Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]model.Session),
	}
}

func (s *MemoryStore) Create(_ context.Context, session *model.Session) error {
	s.mu.Lock()
	s.sessions[session.ID] = *session
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, sessionID string) (*model.Session, error) {
	s.mu.RLock()
	session, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	copy := session
	return &copy, nil
}

func (s *MemoryStore) Update(_ context.Context, sessionID string, update SessionUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}

	apply(&session, update)
	s.sessions[sessionID] = session
	return nil
}
