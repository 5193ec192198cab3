package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"custodian/internal/seal/models"
	id "custodian/pkg/domain"
	"custodian/pkg/platform/sentinel"
)

// InMemoryStore keeps seals in a map with a unique index on number.
type InMemoryStore struct {
	mu       sync.RWMutex
	seals    map[id.SealID]*models.Seal
	byNumber map[string]id.SealID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		seals:    make(map[id.SealID]*models.Seal),
		byNumber: make(map[string]id.SealID),
	}
}

func (s *InMemoryStore) Create(_ context.Context, seal *models.Seal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byNumber[seal.Number]; ok {
		return sentinel.ErrAlreadyUsed
	}
	s.seals[seal.ID] = seal.Clone()
	s.byNumber[seal.Number] = seal.ID
	return nil
}

func (s *InMemoryStore) Update(_ context.Context, seal *models.Seal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.seals[seal.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Version != seal.Version {
		return sentinel.ErrConflict
	}
	seal.Version++
	s.seals[seal.ID] = seal.Clone()
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, sealID id.SealID) (*models.Seal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if seal, ok := s.seals[sealID]; ok {
		return seal.Clone(), nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) FindByNumber(_ context.Context, number string) (*models.Seal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sealID, ok := s.byNumber[number]; ok {
		return s.seals[sealID].Clone(), nil
	}
	return nil, sentinel.ErrNotFound
}

// ListByAsset returns every seal ever applied to assetID, oldest first.
func (s *InMemoryStore) ListByAsset(_ context.Context, assetID id.AssetID) ([]*models.Seal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Seal
	for _, seal := range s.seals {
		if seal.AssetID != nil && *seal.AssetID == assetID {
			out = append(out, seal.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return appliedAt(out[i]).Before(appliedAt(out[j]))
	})
	return out, nil
}

func appliedAt(seal *models.Seal) time.Time {
	if seal.AppliedAt != nil {
		return *seal.AppliedAt
	}
	return seal.CreatedAt
}
