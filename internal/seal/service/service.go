package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"custodian/internal/platform/metrics"
	"custodian/internal/platform/telemetry"
	"custodian/internal/seal/models"
	id "custodian/pkg/domain"
	dErrors "custodian/pkg/domain-errors"
	"custodian/pkg/platform/effect"
	"custodian/pkg/platform/lock"
	"custodian/pkg/platform/sentinel"
	"custodian/pkg/requestcontext"
)

// Store persists seals. Numbers are unique.
type Store interface {
	Create(ctx context.Context, seal *models.Seal) error
	Update(ctx context.Context, seal *models.Seal) error
	FindByID(ctx context.Context, sealID id.SealID) (*models.Seal, error)
	FindByNumber(ctx context.Context, number string) (*models.Seal, error)
	ListByAsset(ctx context.Context, assetID id.AssetID) ([]*models.Seal, error)
}

// Dispatcher executes side effects after the seal is persisted.
type Dispatcher interface {
	Dispatch(ctx context.Context, actor id.UserID, effects []effect.Effect)
}

// Service is the seal registry.
type Service struct {
	seals      Store
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

func New(seals Store, opts ...Option) *Service {
	s := &Service{seals: seals}
	for _, opt := range opts {
		opt(s)
	}
	if s.locker == nil {
		s.locker = lock.NewSharded()
	}
	return s
}

// Register adds a new Available seal.
func (s *Service) Register(ctx context.Context, number string, actor id.UserID) (*models.Seal, error) {
	ctx, op := telemetry.StartOp(ctx, s.metrics, "seal", "register")

	seal, err := models.NewSeal(id.SealID(uuid.New()), number, actor, requestcontext.Now(ctx))
	if err != nil {
		return nil, op.End(err)
	}
	// Checked up front so a seed run inside a transaction never trips the
	// unique index, which would abort the transaction.
	if _, err := s.seals.FindByNumber(ctx, seal.Number); err == nil {
		return nil, op.End(dErrors.NewReason(dErrors.ReasonDuplicateSeal, "seal "+seal.Number+" is already registered"))
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, op.End(dErrors.Wrap(err, dErrors.CodeInternal, "failed to check seal number"))
	}
	if err := s.seals.Create(ctx, seal); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, op.End(dErrors.NewReason(dErrors.ReasonDuplicateSeal, "seal "+seal.Number+" is already registered"))
		}
		return nil, op.End(dErrors.Wrap(err, dErrors.CodeInternal, "failed to create seal"))
	}

	s.logAudit(ctx, "seal_registered", "seal_id", seal.ID, "seal_number", seal.Number, "actor_id", actor)
	return seal, op.End(nil)
}

// Apply binds an Available seal to an asset for an election.
func (s *Service) Apply(ctx context.Context, number string, electionID id.ElectionID, assetID id.AssetID, appliedBy id.UserID) (*models.Seal, error) {
	return s.transition(ctx, "apply", number, appliedBy,
		func(seal *models.Seal, now time.Time) ([]effect.Effect, error) {
			return nil, seal.Apply(electionID, assetID, appliedBy, now)
		})
}

func (s *Service) Break(ctx context.Context, number, reason string, actor id.UserID) (*models.Seal, error) {
	return s.transition(ctx, "break", number, actor,
		func(seal *models.Seal, now time.Time) ([]effect.Effect, error) {
			return seal.Break(reason, actor, now)
		})
}

func (s *Service) ReportLost(ctx context.Context, number, reason string, actor id.UserID) (*models.Seal, error) {
	return s.transition(ctx, "report_lost", number, actor,
		func(seal *models.Seal, now time.Time) ([]effect.Effect, error) {
			return seal.ReportLost(reason, actor, now)
		})
}

func (s *Service) GetByNumber(ctx context.Context, number string) (*models.Seal, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "seal number is required")
	}
	seal, err := s.seals.FindByNumber(ctx, number)
	if err != nil {
		return nil, wrapSealErr(err, "failed to load seal")
	}
	return seal, nil
}

// ListByAsset returns the seals applied to an asset, oldest first.
func (s *Service) ListByAsset(ctx context.Context, assetID id.AssetID) ([]*models.Seal, error) {
	seals, err := s.seals.ListByAsset(ctx, assetID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list seals")
	}
	return seals, nil
}

func (s *Service) transition(ctx context.Context, operation, number string, actor id.UserID,
	fn func(seal *models.Seal, now time.Time) ([]effect.Effect, error),
) (*models.Seal, error) {
	number = strings.TrimSpace(number)
	ctx, op := telemetry.StartOp(ctx, s.metrics, "seal", operation, attribute.String("seal_number", number))
	if number == "" {
		return nil, op.End(dErrors.New(dErrors.CodeBadRequest, "seal number is required"))
	}

	var (
		result  *models.Seal
		effects []effect.Effect
	)
	err := s.locker.WithLock(ctx, "seal:"+number, func(ctx context.Context) error {
		seal, err := s.seals.FindByNumber(ctx, number)
		if err != nil {
			return wrapSealErr(err, "failed to load seal")
		}
		effects, err = fn(seal, requestcontext.Now(ctx))
		if err != nil {
			return err
		}
		if err := s.seals.Update(ctx, seal); err != nil {
			return wrapSealErr(err, "failed to update seal")
		}
		result = seal
		return nil
	})
	if err != nil {
		return nil, op.End(err)
	}

	if s.dispatcher != nil && len(effects) > 0 {
		s.dispatcher.Dispatch(ctx, actor, effects)
	}
	s.logAudit(ctx, "seal_"+operation,
		"seal_id", result.ID, "seal_number", result.Number, "status", result.Status, "actor_id", actor)
	return result, op.End(nil)
}

func wrapSealErr(err error, msg string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.NewReason(dErrors.ReasonSealNotFound, "seal not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.NewReason(dErrors.ReasonStaleVersion, "seal was modified concurrently")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
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
