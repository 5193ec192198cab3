package service

import (
	"context"
	"errors"
	"log/slog"

	assetmodels "custodian/internal/asset/models"
	custodymodels "custodian/internal/custody/models"
	"custodian/internal/manifest/models"
	"custodian/internal/platform/metrics"
	sealmodels "custodian/internal/seal/models"
	id "custodian/pkg/domain"
	dErrors "custodian/pkg/domain-errors"
	"custodian/pkg/platform/effect"
	"custodian/pkg/platform/lock"
	"custodian/pkg/platform/sentinel"
	"custodian/pkg/requestcontext"
)

// Store persists manifests. Update is a compare-and-swap on Version.
type Store interface {
	Create(ctx context.Context, m *models.Manifest) error
	Update(ctx context.Context, m *models.Manifest) error
	FindByID(ctx context.Context, manifestID id.ManifestID) (*models.Manifest, error)
}

// AssetStore is the slice of the asset store that reservations and dispatch
// write through.
type AssetStore interface {
	FindByID(ctx context.Context, assetID id.AssetID) (*assetmodels.Asset, error)
	Update(ctx context.Context, asset *assetmodels.Asset) error
}

// SealStore is the slice of the seal registry needed to check and apply item
// seals.
type SealStore interface {
	FindByNumber(ctx context.Context, number string) (*sealmodels.Seal, error)
	Update(ctx context.Context, seal *sealmodels.Seal) error
}

// CustodyLog appends the custody events produced when a manifest ships.
type CustodyLog interface {
	Append(ctx context.Context, event *custodymodels.Event) error
	ListByManifest(ctx context.Context, manifestID id.ManifestID) ([]*custodymodels.Event, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, actor id.UserID, effects []effect.Effect)
}

// Service runs the packing workflow. Only the manifest is locked; assets,
// seals and custody events are written one at a time after it.
type Service struct {
	manifests  Store
	assets     AssetStore
	seals      SealStore
	custody    CustodyLog
	locker     lock.Locker
	dispatcher Dispatcher
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithLocker(l lock.Locker) Option {
	return func(s *Service) {
		s.locker = l
	}
}

func WithDispatcher(d Dispatcher) Option {
	return func(s *Service) {
		s.dispatcher = d
	}
}

// WithCustodyLog records one custody event per item when a manifest
// completes.
func WithCustodyLog(c CustodyLog) Option {
	return func(s *Service) {
		s.custody = c
	}
}

func New(manifests Store, assets AssetStore, seals SealStore, opts ...Option) *Service {
	s := &Service{manifests: manifests, assets: assets, seals: seals}
	for _, opt := range opts {
		opt(s)
	}
	if s.locker == nil {
		s.locker = lock.NewSharded()
	}
	return s
}

func (s *Service) load(ctx context.Context, manifestID id.ManifestID) (*models.Manifest, error) {
	m, err := s.manifests.FindByID(ctx, manifestID)
	if err != nil {
		return nil, wrapErr(err, dErrors.ReasonManifestNotFound, "manifest", "failed to load manifest")
	}
	return m, nil
}

func (s *Service) save(ctx context.Context, m *models.Manifest) error {
	if err := s.manifests.Update(ctx, m); err != nil {
		return wrapErr(err, dErrors.ReasonManifestNotFound, "manifest", "failed to update manifest")
	}
	return nil
}

func (s *Service) loadAsset(ctx context.Context, assetID id.AssetID) (*assetmodels.Asset, error) {
	a, err := s.assets.FindByID(ctx, assetID)
	if err != nil {
		return nil, wrapErr(err, dErrors.ReasonAssetNotFound, "asset", "failed to load asset")
	}
	return a, nil
}

func (s *Service) saveAsset(ctx context.Context, a *assetmodels.Asset) error {
	if err := s.assets.Update(ctx, a); err != nil {
		return wrapErr(err, dErrors.ReasonAssetNotFound, "asset", "failed to update asset")
	}
	return nil
}

func (s *Service) loadSeal(ctx context.Context, number string) (*sealmodels.Seal, error) {
	seal, err := s.seals.FindByNumber(ctx, number)
	if err != nil {
		return nil, wrapErr(err, dErrors.ReasonSealNotFound, "seal", "failed to load seal")
	}
	return seal, nil
}

// wrapErr translates store sentinels for whichever aggregate was touched.
func wrapErr(err error, notFound dErrors.Reason, what, msg string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.NewReason(notFound, what+" not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.NewReason(dErrors.ReasonStaleVersion, what+" was modified concurrently")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}

func (s *Service) dispatch(ctx context.Context, actor id.UserID, effects []effect.Effect) {
	if s.dispatcher == nil || len(effects) == 0 {
		return
	}
	s.dispatcher.Dispatch(ctx, actor, effects)
}

func (s *Service) logAudit(ctx context.Context, event string, attributes ...any) {
	if s.logger == nil {
		return
	}
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", event, "log_type", "audit")
	s.logger.InfoContext(ctx, event, args...)
}
