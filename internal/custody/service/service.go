package service

import (
	"context"
	"errors"
	"log/slog"

	assetmodels "custodian/internal/asset/models"
	"custodian/internal/custody/models"
	manifestmodels "custodian/internal/manifest/models"
	"custodian/internal/platform/metrics"
	id "custodian/pkg/domain"
	dErrors "custodian/pkg/domain-errors"
	"custodian/pkg/platform/effect"
	"custodian/pkg/platform/filestore"
	"custodian/pkg/platform/lock"
	"custodian/pkg/platform/sentinel"
	"custodian/pkg/requestcontext"
)

// EventStore is the append-only custody log.
type EventStore interface {
	Append(ctx context.Context, event *models.Event) error
	FindByID(ctx context.Context, eventID id.CustodyEventID) (*models.Event, error)
	ListByAsset(ctx context.Context, assetID id.AssetID) ([]*models.Event, error)
}

// FormStore holds at most one form per manifest. Update is a compare-and-swap
// on Version.
type FormStore interface {
	Create(ctx context.Context, form *models.Form) error
	Update(ctx context.Context, form *models.Form) error
	FindByID(ctx context.Context, formID id.FormID) (*models.Form, error)
	FindByManifest(ctx context.Context, manifestID id.ManifestID) (*models.Form, error)
}

type ManifestReader interface {
	FindByID(ctx context.Context, manifestID id.ManifestID) (*manifestmodels.Manifest, error)
}

type AssetReader interface {
	FindByID(ctx context.Context, assetID id.AssetID) (*assetmodels.Asset, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, actor id.UserID, effects []effect.Effect)
}

// FormConfig controls form links.
type FormConfig struct {
	BaseURL    string
	SigningKey string
}

// Service is the chain-of-custody ledger and its form workflow. Events are
// never locked since they are never updated; forms are locked per form.
type Service struct {
	events     EventStore
	forms      FormStore
	manifests  ManifestReader
	assets     AssetReader
	files      filestore.Store
	policy     models.SignaturePolicy
	tokens     *formTokens
	baseURL    string
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

// WithFileStore enables AttachScannedForm.
func WithFileStore(files filestore.Store) Option {
	return func(s *Service) {
		s.files = files
	}
}

// WithSignaturePolicy replaces the default empty/duplicate signer checks.
func WithSignaturePolicy(p models.SignaturePolicy) Option {
	return func(s *Service) {
		s.policy = p
	}
}

func New(events EventStore, forms FormStore, manifests ManifestReader, assets AssetReader, cfg FormConfig, opts ...Option) (*Service, error) {
	if cfg.SigningKey == "" {
		return nil, errors.New("form signing key is required")
	}
	s := &Service{
		events:    events,
		forms:     forms,
		manifests: manifests,
		assets:    assets,
		policy:    models.DefaultSignaturePolicy{},
		tokens:    newFormTokens(cfg.SigningKey),
		baseURL:   cfg.BaseURL,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.locker == nil {
		s.locker = lock.NewSharded()
	}
	return s, nil
}

func (s *Service) loadForm(ctx context.Context, formID id.FormID) (*models.Form, error) {
	form, err := s.forms.FindByID(ctx, formID)
	if err != nil {
		return nil, wrapErr(err, dErrors.ReasonFormNotFound, "custody form", "failed to load custody form")
	}
	return form, nil
}

func (s *Service) saveForm(ctx context.Context, form *models.Form) error {
	if err := s.forms.Update(ctx, form); err != nil {
		return wrapErr(err, dErrors.ReasonFormNotFound, "custody form", "failed to update custody form")
	}
	return nil
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
