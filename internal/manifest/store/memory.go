package store

import (
	"context"
	"sync"

	"custodian/internal/manifest/models"
	id "custodian/pkg/domain"
	"custodian/pkg/platform/sentinel"
)

// InMemoryStore keeps manifests in a map guarded by a RWMutex.
type InMemoryStore struct {
	mu        sync.RWMutex
	manifests map[id.ManifestID]*models.Manifest
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{manifests: make(map[id.ManifestID]*models.Manifest)}
}

func (s *InMemoryStore) Create(_ context.Context, m *models.Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.manifests[m.ID]; ok {
		return sentinel.ErrAlreadyUsed
	}
	s.manifests[m.ID] = m.Clone()
	return nil
}

func (s *InMemoryStore) Update(_ context.Context, m *models.Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.manifests[m.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Version != m.Version {
		return sentinel.ErrConflict
	}
	m.Version++
	s.manifests[m.ID] = m.Clone()
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, manifestID id.ManifestID) (*models.Manifest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if m, ok := s.manifests[manifestID]; ok {
		return m.Clone(), nil
	}
	return nil, sentinel.ErrNotFound
}
