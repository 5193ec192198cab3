package store

import (
	"context"
	"sort"
	"sync"

	"custodian/internal/custody/models"
	id "custodian/pkg/domain"
	"custodian/pkg/platform/sentinel"
)

// InMemoryEventStore is an append-only custody log.
type InMemoryEventStore struct {
	mu     sync.RWMutex
	events []*models.Event
	byID   map[id.CustodyEventID]int
}

func NewInMemoryEventStore() *InMemoryEventStore {
	return &InMemoryEventStore{byID: make(map[id.CustodyEventID]int)}
}

func (s *InMemoryEventStore) Append(_ context.Context, event *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[event.ID]; ok {
		return sentinel.ErrAlreadyUsed
	}
	stored := *event
	s.byID[event.ID] = len(s.events)
	s.events = append(s.events, &stored)
	return nil
}

func (s *InMemoryEventStore) FindByID(_ context.Context, eventID id.CustodyEventID) (*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i, ok := s.byID[eventID]; ok {
		e := *s.events[i]
		return &e, nil
	}
	return nil, sentinel.ErrNotFound
}

// ListByAsset returns the asset's events ordered by time, then by append
// order for events sharing a timestamp.
func (s *InMemoryEventStore) ListByAsset(_ context.Context, assetID id.AssetID) ([]*models.Event, error) {
	return s.filter(func(e *models.Event) bool { return e.AssetID == assetID }), nil
}

func (s *InMemoryEventStore) ListByManifest(_ context.Context, manifestID id.ManifestID) ([]*models.Event, error) {
	return s.filter(func(e *models.Event) bool {
		return e.ManifestID != nil && *e.ManifestID == manifestID
	}), nil
}

func (s *InMemoryEventStore) filter(keep func(e *models.Event) bool) []*models.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Event
	for _, e := range s.events {
		if keep(e) {
			c := *e
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	return out
}

// InMemoryFormStore keeps one form per manifest.
type InMemoryFormStore struct {
	mu         sync.RWMutex
	forms      map[id.FormID]*models.Form
	byManifest map[id.ManifestID]id.FormID
}

func NewInMemoryFormStore() *InMemoryFormStore {
	return &InMemoryFormStore{
		forms:      make(map[id.FormID]*models.Form),
		byManifest: make(map[id.ManifestID]id.FormID),
	}
}

func (s *InMemoryFormStore) Create(_ context.Context, form *models.Form) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byManifest[form.ManifestID]; ok {
		return sentinel.ErrAlreadyUsed
	}
	s.forms[form.ID] = form.Clone()
	s.byManifest[form.ManifestID] = form.ID
	return nil
}

func (s *InMemoryFormStore) Update(_ context.Context, form *models.Form) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.forms[form.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Version != form.Version {
		return sentinel.ErrConflict
	}
	form.Version++
	s.forms[form.ID] = form.Clone()
	return nil
}

func (s *InMemoryFormStore) FindByID(_ context.Context, formID id.FormID) (*models.Form, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if f, ok := s.forms[formID]; ok {
		return f.Clone(), nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryFormStore) FindByManifest(_ context.Context, manifestID id.ManifestID) (*models.Form, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if formID, ok := s.byManifest[manifestID]; ok {
		return s.forms[formID].Clone(), nil
	}
	return nil, sentinel.ErrNotFound
}
