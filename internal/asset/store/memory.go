package store

import (
	"context"
	"sync"

	"custodian/internal/asset/models"
	id "custodian/pkg/domain"
	"custodian/pkg/platform/sentinel"
)

// InMemoryStore keeps assets in maps guarded by a RWMutex. Stored values are
// cloned on the way in and out so callers never share a pointer with the map.
type InMemoryStore struct {
	mu       sync.RWMutex
	assets   map[id.AssetID]*models.Asset
	bySerial map[string]id.AssetID
	byTag    map[string]id.AssetID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		assets:   make(map[id.AssetID]*models.Asset),
		bySerial: make(map[string]id.AssetID),
		byTag:    make(map[string]id.AssetID),
	}
}

// Create inserts a new asset. Serial and tag collisions return
// sentinel.ErrAlreadyUsed.
func (s *InMemoryStore) Create(_ context.Context, asset *models.Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assets[asset.ID]; ok {
		return sentinel.ErrAlreadyUsed
	}
	if _, ok := s.bySerial[asset.Serial]; ok {
		return sentinel.ErrAlreadyUsed
	}
	if asset.Tag != "" {
		if _, ok := s.byTag[asset.Tag]; ok {
			return sentinel.ErrAlreadyUsed
		}
	}
	stored := asset.Clone()
	s.assets[asset.ID] = stored
	s.bySerial[asset.Serial] = asset.ID
	if asset.Tag != "" {
		s.byTag[asset.Tag] = asset.ID
	}
	return nil
}

// Update replaces the asset when its Version matches the stored one and bumps
// the version on both copies.
func (s *InMemoryStore) Update(_ context.Context, asset *models.Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.assets[asset.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Version != asset.Version {
		return sentinel.ErrConflict
	}
	asset.Version++
	s.assets[asset.ID] = asset.Clone()
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, assetID id.AssetID) (*models.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if a, ok := s.assets[assetID]; ok {
		return a.Clone(), nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) FindBySerial(_ context.Context, serial string) (*models.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if assetID, ok := s.bySerial[serial]; ok {
		return s.assets[assetID].Clone(), nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) FindByTag(_ context.Context, tag string) (*models.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if assetID, ok := s.byTag[tag]; ok {
		return s.assets[assetID].Clone(), nil
	}
	return nil, sentinel.ErrNotFound
}
