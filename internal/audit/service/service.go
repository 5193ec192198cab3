package service

import (
	"context"
	"errors"
	"log/slog"

	assetmodels "custodian/internal/asset/models"
	"custodian/internal/audit/models"
	"custodian/internal/platform/metrics"
	id "custodian/pkg/domain"
	dErrors "custodian/pkg/domain-errors"
	"custodian/pkg/platform/effect"
	"custodian/pkg/platform/lock"
	"custodian/pkg/platform/sentinel"
	"custodian/pkg/requestcontext"
)

// Store persists audit sessions. Update is a compare-and-swap on Version.
type Store interface {
	Create(ctx context.Context, session *models.Session) error
	Update(ctx context.Context, session *models.Session) error
	FindByID(ctx context.Context, sessionID id.AuditSessionID) (*models.Session, error)
}

// AssetStore resolves scanned barcodes and applies location corrections.
type AssetStore interface {
	FindByID(ctx context.Context, assetID id.AssetID) (*assetmodels.Asset, error)
	FindByTag(ctx context.Context, tag string) (*assetmodels.Asset, error)
	FindBySerial(ctx context.Context, serial string) (*assetmodels.Asset, error)
	Update(ctx context.Context, asset *assetmodels.Asset) error
}

type Dispatcher interface {
	Dispatch(ctx context.Context, actor id.UserID, effects []effect.Effect)
}

// Service reconciles physical scans against recorded asset locations.
type Service struct {
	sessions   Store
	assets     AssetStore
	locker     lock.Locker
	dispatcher Dispatcher
	logger     *slog.Logger
	metrics    *metrics.Metrics
	// lookupLimit bounds concurrent barcode lookups in RecordScans.
	lookupLimit int
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

func WithLookupLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.lookupLimit = n
		}
	}
}

func New(sessions Store, assets AssetStore, opts ...Option) *Service {
	s := &Service{sessions: sessions, assets: assets, lookupLimit: 8}
	for _, opt := range opts {
		opt(s)
	}
	if s.locker == nil {
		s.locker = lock.NewSharded()
	}
	return s
}

func (s *Service) load(ctx context.Context, sessionID id.AuditSessionID) (*models.Session, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, wrapErr(err, dErrors.ReasonAuditSessionNotFound, "audit session", "failed to load audit session")
	}
	return session, nil
}

func (s *Service) save(ctx context.Context, session *models.Session) error {
	if err := s.sessions.Update(ctx, session); err != nil {
		return wrapErr(err, dErrors.ReasonAuditSessionNotFound, "audit session", "failed to update audit session")
	}
	return nil
}

// lookup resolves a barcode by tag, then by serial. A barcode that matches
// nothing yields a nil asset and no error.
func (s *Service) lookup(ctx context.Context, barcode string) (*models.ScannedAsset, error) {
	a, err := s.assets.FindByTag(ctx, barcode)
	if errors.Is(err, sentinel.ErrNotFound) {
		a, err = s.assets.FindBySerial(ctx, barcode)
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return nil, nil
	case err != nil:
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up scanned barcode")
	}
	return &models.ScannedAsset{ID: a.ID, Location: a.Location}, nil
}

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
