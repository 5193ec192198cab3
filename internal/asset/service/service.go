package service

import (
	"context"
	"errors"
	"log/slog"

	"custodian/internal/asset/models"
	kitmodels "custodian/internal/kit/models"
	manifestmodels "custodian/internal/manifest/models"
	"custodian/internal/platform/metrics"
	id "custodian/pkg/domain"
	dErrors "custodian/pkg/domain-errors"
	"custodian/pkg/platform/effect"
	"custodian/pkg/platform/lock"
	"custodian/pkg/platform/sentinel"
	"custodian/pkg/requestcontext"
)

// Store persists assets. Update is a compare-and-swap on Version.
type Store interface {
	Create(ctx context.Context, asset *models.Asset) error
	Update(ctx context.Context, asset *models.Asset) error
	FindByID(ctx context.Context, assetID id.AssetID) (*models.Asset, error)
	FindBySerial(ctx context.Context, serial string) (*models.Asset, error)
	FindByTag(ctx context.Context, tag string) (*models.Asset, error)
}

// KitStore is the slice of the kit store needed to drop a returning asset
// from its kit.
type KitStore interface {
	FindByID(ctx context.Context, kitID id.KitID) (*kitmodels.Kit, error)
	Update(ctx context.Context, kit *kitmodels.Kit) error
}

// ManifestStore is the slice of the manifest store needed to drop a returning
// asset from an open manifest.
type ManifestStore interface {
	FindByID(ctx context.Context, manifestID id.ManifestID) (*manifestmodels.Manifest, error)
	Update(ctx context.Context, manifest *manifestmodels.Manifest) error
}

// Dispatcher executes side effects after the aggregate is persisted.
type Dispatcher interface {
	Dispatch(ctx context.Context, actor id.UserID, effects []effect.Effect)
}

// Service owns the asset lifecycle.
type Service struct {
	assets     Store
	kits       KitStore
	manifests  ManifestStore
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

// WithMembershipStores lets return-to-warehouse and retirement clear the
// asset from its kit and open manifest.
func WithMembershipStores(kits KitStore, manifests ManifestStore) Option {
	return func(s *Service) {
		s.kits = kits
		s.manifests = manifests
	}
}

// New constructs a Service.
func New(assets Store, opts ...Option) *Service {
	s := &Service{assets: assets}
	for _, opt := range opts {
		opt(s)
	}
	if s.locker == nil {
		s.locker = lock.NewSharded()
	}
	return s
}

func (s *Service) load(ctx context.Context, assetID id.AssetID) (*models.Asset, error) {
	a, err := s.assets.FindByID(ctx, assetID)
	if err != nil {
		return nil, wrapAssetErr(err, "failed to load asset")
	}
	return a, nil
}

func (s *Service) save(ctx context.Context, a *models.Asset) error {
	if err := s.assets.Update(ctx, a); err != nil {
		return wrapAssetErr(err, "failed to update asset")
	}
	return nil
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
