package store

import (
	"context"
	"sync"

	"custodian/internal/audit/models"
	id "custodian/pkg/domain"
	"custodian/pkg/platform/sentinel"
)

// InMemoryStore keeps audit sessions in a map guarded by a RWMutex.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[id.AuditSessionID]*models.Session
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[id.AuditSessionID]*models.Session)}
}

func (s *InMemoryStore) Create(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.ID]; ok {
		return sentinel.ErrAlreadyUsed
	}
	s.sessions[session.ID] = session.Clone()
	return nil
}

func (s *InMemoryStore) Update(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.sessions[session.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Version != session.Version {
		return sentinel.ErrConflict
	}
	session.Version++
	s.sessions[session.ID] = session.Clone()
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, sessionID id.AuditSessionID) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if session, ok := s.sessions[sessionID]; ok {
		return session.Clone(), nil
	}
	return nil, sentinel.ErrNotFound
}
