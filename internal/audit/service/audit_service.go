package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"custodian/internal/audit/models"
	"custodian/internal/platform/telemetry"
	id "custodian/pkg/domain"
	dErrors "custodian/pkg/domain-errors"
	"custodian/pkg/platform/effect"
	"custodian/pkg/platform/lock"
	"custodian/pkg/requestcontext"
)

func (s *Service) StartAudit(ctx context.Context, location id.Location, auditor id.UserID) (*models.Session, error) {
	ctx, op := telemetry.StartOp(ctx, s.metrics, "audit", "start")

	session, err := models.NewSession(id.AuditSessionID(uuid.New()), auditor, location, requestcontext.Now(ctx))
	if err != nil {
		return nil, op.End(err)
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, op.End(dErrors.Wrap(err, dErrors.CodeInternal, "failed to create audit session"))
	}
	s.logAudit(ctx, "audit_started", "session_id", session.ID, "location", session.Location, "actor_id", auditor)
	return session, op.End(nil)
}

func (s *Service) Get(ctx context.Context, sessionID id.AuditSessionID) (*models.Session, error) {
	return s.load(ctx, sessionID)
}

// ScanInput is one barcode read. An empty Location means the session's.
type ScanInput struct {
	Barcode  string
	Location id.Location
}

// RecordScan applies one scan and returns the discrepancy it opened, if any.
func (s *Service) RecordScan(ctx context.Context, sessionID id.AuditSessionID, in ScanInput, actor id.UserID) (*models.Session, *models.Discrepancy, error) {
	session, opened, err := s.RecordScans(ctx, sessionID, []ScanInput{in}, actor)
	if err != nil {
		return nil, nil, err
	}
	if len(opened) == 0 {
		return session, nil, nil
	}
	return session, &opened[0], nil
}

// RecordScans resolves every barcode concurrently, then applies the scans in
// order under the session lock. Either all scans are recorded or none.
func (s *Service) RecordScans(ctx context.Context, sessionID id.AuditSessionID, input []ScanInput, actor id.UserID) (*models.Session, []models.Discrepancy, error) {
	scans := make([]ScanInput, len(input))
	for i, in := range input {
		in.Barcode = strings.TrimSpace(in.Barcode)
		if in.Barcode == "" {
			return nil, nil, dErrors.New(dErrors.CodeValidation, "barcode is required")
		}
		scans[i] = in
	}
	if len(scans) == 0 {
		return nil, nil, dErrors.New(dErrors.CodeValidation, "at least one scan is required")
	}

	var opened []models.Discrepancy
	result, err := s.mutate(ctx, "record_scan", sessionID, actor, func(ctx context.Context, session *models.Session, now time.Time) ([]effect.Effect, error) {
		found, err := s.lookupAll(ctx, scans)
		if err != nil {
			return nil, err
		}
		var effects []effect.Effect
		for i, in := range scans {
			d, fx, err := session.RecordScan(in.Barcode, in.Location, found[i], now)
			if err != nil {
				return nil, err
			}
			if d != nil {
				opened = append(opened, *d)
			}
			effects = append(effects, fx...)
		}
		return effects, s.save(ctx, session)
	}, attribute.Int("scans", len(scans)))
	if err != nil {
		return nil, nil, err
	}
	s.metrics.IncrementDiscrepancies(len(opened))
	return result, opened, nil
}

func (s *Service) lookupAll(ctx context.Context, scans []ScanInput) ([]*models.ScannedAsset, error) {
	found := make([]*models.ScannedAsset, len(scans))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.lookupLimit)
	for i, in := range scans {
		g.Go(func() error {
			a, err := s.lookup(gctx, in.Barcode)
			if err != nil {
				return err
			}
			found[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return found, nil
}

// ResolveDiscrepancy closes one discrepancy. With applyObserved the asset's
// recorded location is corrected to where it was scanned first; if the
// session write then fails the call can be repeated.
func (s *Service) ResolveDiscrepancy(ctx context.Context, sessionID id.AuditSessionID, discrepancyID id.DiscrepancyID, resolution string, applyObserved bool, actor id.UserID) (*models.Session, error) {
	return s.mutate(ctx, "resolve_discrepancy", sessionID, actor, func(ctx context.Context, session *models.Session, now time.Time) ([]effect.Effect, error) {
		if err := session.CanResolve(discrepancyID); err != nil {
			return nil, err
		}
		if strings.TrimSpace(resolution) == "" {
			return nil, dErrors.New(dErrors.CodeValidation, "resolution is required")
		}
		d, _ := session.Discrepancy(discrepancyID)

		var effects []effect.Effect
		corrected := false
		if applyObserved && d.AssetID != nil {
			a, err := s.assets.FindByID(ctx, *d.AssetID)
			if err != nil {
				return nil, wrapErr(err, dErrors.ReasonAssetNotFound, "asset", "failed to load asset")
			}
			if a.Location != d.ActualLocation {
				if err := a.CorrectLocation(d.ActualLocation, actor, now); err != nil {
					return nil, err
				}
				if err := s.assets.Update(ctx, a); err != nil {
					return nil, wrapErr(err, dErrors.ReasonAssetNotFound, "asset", "failed to update asset")
				}
				corrected = true
				effects = append(effects, effect.Notify(effect.ChannelWarehouse,
					"asset %s location corrected to %s by audit %s", a.Serial, d.ActualLocation, session.ID))
			}
		}

		if _, err := session.ResolveDiscrepancy(discrepancyID, resolution, actor, now); err != nil {
			return nil, err
		}
		if err := s.save(ctx, session); err != nil {
			if corrected {
				return nil, dErrors.PartialUpdate(err, "asset location corrected but discrepancy not saved")
			}
			return nil, err
		}
		return effects, nil
	}, attribute.String("discrepancy_id", discrepancyID.String()))
}

func (s *Service) CompleteAudit(ctx context.Context, sessionID id.AuditSessionID, actor id.UserID) (*models.Session, error) {
	return s.mutate(ctx, "complete", sessionID, actor, func(ctx context.Context, session *models.Session, now time.Time) ([]effect.Effect, error) {
		if err := session.Complete(actor, now); err != nil {
			return nil, err
		}
		return nil, s.save(ctx, session)
	})
}

func (s *Service) ApproveAudit(ctx context.Context, sessionID id.AuditSessionID, approver id.UserID) (*models.Session, error) {
	return s.mutate(ctx, "approve", sessionID, approver, func(ctx context.Context, session *models.Session, now time.Time) ([]effect.Effect, error) {
		effects, err := session.Approve(approver, now)
		if err != nil {
			return nil, err
		}
		return effects, s.save(ctx, session)
	})
}

// mutate runs fn on the locked session. fn persists the session itself so it
// can order the write against any asset correction.
func (s *Service) mutate(ctx context.Context, operation string, sessionID id.AuditSessionID, actor id.UserID,
	fn func(ctx context.Context, session *models.Session, now time.Time) ([]effect.Effect, error),
	attrs ...attribute.KeyValue,
) (*models.Session, error) {
	attrs = append(attrs, attribute.String("session_id", sessionID.String()))
	ctx, op := telemetry.StartOp(ctx, s.metrics, "audit", operation, attrs...)
	if actor.IsNil() {
		return nil, op.End(dErrors.New(dErrors.CodeValidation, "actor is required"))
	}

	var (
		result  *models.Session
		effects []effect.Effect
	)
	err := s.locker.WithLock(ctx, lock.Key("audit", sessionID), func(ctx context.Context) error {
		session, err := s.load(ctx, sessionID)
		if err != nil {
			return err
		}
		effects, err = fn(ctx, session, requestcontext.Now(ctx))
		if err != nil {
			return err
		}
		result = session
		return nil
	})
	if err != nil {
		return nil, op.End(err)
	}

	s.dispatch(ctx, actor, effects)
	s.logAudit(ctx, "audit_"+operation,
		"session_id", result.ID, "status", result.Status, "open_discrepancies", result.OpenDiscrepancies(), "actor_id", actor)
	return result, op.End(nil)
}
