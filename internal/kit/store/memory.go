package store

import (
	"context"
	"sync"

	"custodian/internal/kit/models"
	id "custodian/pkg/domain"
	"custodian/pkg/platform/sentinel"
)

// InMemoryStore keeps kits in a map guarded by a RWMutex.
type InMemoryStore struct {
	mu   sync.RWMutex
	kits map[id.KitID]*models.Kit
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{kits: make(map[id.KitID]*models.Kit)}
}

func (s *InMemoryStore) Create(_ context.Context, kit *models.Kit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.kits[kit.ID]; ok {
		return sentinel.ErrAlreadyUsed
	}
	s.kits[kit.ID] = kit.Clone()
	return nil
}

func (s *InMemoryStore) Update(_ context.Context, kit *models.Kit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.kits[kit.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Version != kit.Version {
		return sentinel.ErrConflict
	}
	kit.Version++
	s.kits[kit.ID] = kit.Clone()
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, kitID id.KitID) (*models.Kit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if k, ok := s.kits[kitID]; ok {
		return k.Clone(), nil
	}
	return nil, sentinel.ErrNotFound
}

// FindOpenByAsset returns the non-retired kit holding assetID.
func (s *InMemoryStore) FindOpenByAsset(_ context.Context, assetID id.AssetID) (*models.Kit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, k := range s.kits {
		if k.IsOpen() && k.Contains(assetID) {
			return k.Clone(), nil
		}
	}
	return nil, sentinel.ErrNotFound
}
