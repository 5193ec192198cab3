package service

import (
	"context"
	"errors"
	"log/slog"

	assetmodels "custodian/internal/asset/models"
	"custodian/internal/kit/models"
	"custodian/internal/platform/metrics"
	id "custodian/pkg/domain"
	dErrors "custodian/pkg/domain-errors"
	"custodian/pkg/platform/effect"
	"custodian/pkg/platform/lock"
	"custodian/pkg/platform/sentinel"
	"custodian/pkg/requestcontext"
)

// Store persists kits. FindOpenByAsset returns the non-retired kit holding
// an asset, or sentinel.ErrNotFound.
type Store interface {
	Create(ctx context.Context, kit *models.Kit) error
	Update(ctx context.Context, kit *models.Kit) error
	FindByID(ctx context.Context, kitID id.KitID) (*models.Kit, error)
	FindOpenByAsset(ctx context.Context, assetID id.AssetID) (*models.Kit, error)
}

// AssetStore is the slice of the asset store kit membership writes through.
type AssetStore interface {
	FindByID(ctx context.Context, assetID id.AssetID) (*assetmodels.Asset, error)
	Update(ctx context.Context, asset *assetmodels.Asset) error
}

type Dispatcher interface {
	Dispatch(ctx context.Context, actor id.UserID, effects []effect.Effect)
}

// Service assembles and deploys kits. It locks only the kit; member assets
// are written with their own version checks.
type Service struct {
	kits       Store
	assets     AssetStore
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

func New(kits Store, assets AssetStore, opts ...Option) *Service {
	s := &Service{kits: kits, assets: assets}
	for _, opt := range opts {
		opt(s)
	}
	if s.locker == nil {
		s.locker = lock.NewSharded()
	}
	return s
}

func (s *Service) loadKit(ctx context.Context, kitID id.KitID) (*models.Kit, error) {
	k, err := s.kits.FindByID(ctx, kitID)
	if err != nil {
		return nil, wrapKitErr(err, "failed to load kit")
	}
	return k, nil
}

func (s *Service) saveKit(ctx context.Context, k *models.Kit) error {
	if err := s.kits.Update(ctx, k); err != nil {
		return wrapKitErr(err, "failed to update kit")
	}
	return nil
}

func (s *Service) loadAsset(ctx context.Context, assetID id.AssetID) (*assetmodels.Asset, error) {
	a, err := s.assets.FindByID(ctx, assetID)
	if err != nil {
		return nil, wrapAssetErr(err, "failed to load asset")
	}
	return a, nil
}

func (s *Service) saveAsset(ctx context.Context, a *assetmodels.Asset) error {
	if err := s.assets.Update(ctx, a); err != nil {
		return wrapAssetErr(err, "failed to update asset")
	}
	return nil
}

func wrapKitErr(err error, msg string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.NewReason(dErrors.ReasonKitNotFound, "kit not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.NewReason(dErrors.ReasonStaleVersion, "kit was modified concurrently")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}

func wrapAssetErr(err error, msg string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.NewReason(dErrors.ReasonAssetNotFound, "asset not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.NewReason(dErrors.ReasonStaleVersion, "asset was modified concurrently")
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
