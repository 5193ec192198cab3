package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"custodian/internal/asset/models"
	"custodian/internal/platform/telemetry"
	id "custodian/pkg/domain"
	dErrors "custodian/pkg/domain-errors"
	"custodian/pkg/platform/effect"
	"custodian/pkg/platform/lock"
	"custodian/pkg/platform/sentinel"
	"custodian/pkg/requestcontext"
)

// Register records a new asset as Available. Serial numbers and tags are
// unique across all assets.
func (s *Service) Register(ctx context.Context, in models.RegisterInput, actor id.UserID) (*models.Asset, error) {
	ctx, op := telemetry.StartOp(ctx, s.metrics, "asset", "register")

	a, err := models.NewAsset(id.AssetID(uuid.New()), in, actor, requestcontext.Now(ctx))
	if err != nil {
		return nil, op.End(err)
	}
	if err := s.ensureUnique(ctx, a); err != nil {
		return nil, op.End(err)
	}
	if err := s.assets.Create(ctx, a); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, op.End(dErrors.NewReason(dErrors.ReasonDuplicateAsset, "serial number or tag is already registered"))
		}
		return nil, op.End(dErrors.Wrap(err, dErrors.CodeInternal, "failed to create asset"))
	}

	s.logAudit(ctx, "asset_registered",
		"asset_id", a.ID, "serial", a.Serial, "actor_id", actor)
	return a, op.End(nil)
}

func (s *Service) ensureUnique(ctx context.Context, a *models.Asset) error {
	if _, err := s.assets.FindBySerial(ctx, a.Serial); err == nil {
		return dErrors.NewReason(dErrors.ReasonDuplicateAsset, "serial number "+a.Serial+" is already registered")
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check serial number")
	}
	if a.Tag == "" {
		return nil
	}
	if _, err := s.assets.FindByTag(ctx, a.Tag); err == nil {
		return dErrors.NewReason(dErrors.ReasonDuplicateTag, "tag "+a.Tag+" is already assigned")
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check tag")
	}
	return nil
}

func (s *Service) Get(ctx context.Context, assetID id.AssetID) (*models.Asset, error) {
	return s.load(ctx, assetID)
}

func (s *Service) GetBySerial(ctx context.Context, serial string) (*models.Asset, error) {
	serial = strings.TrimSpace(serial)
	if serial == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "serial number is required")
	}
	a, err := s.assets.FindBySerial(ctx, serial)
	if err != nil {
		return nil, wrapAssetErr(err, "failed to load asset")
	}
	return a, nil
}

// GetByTag resolves a barcode or RFID tag.
func (s *Service) GetByTag(ctx context.Context, tag string) (*models.Asset, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "tag is required")
	}
	a, err := s.assets.FindByTag(ctx, tag)
	if err != nil {
		return nil, wrapAssetErr(err, "failed to load asset")
	}
	return a, nil
}

// transition runs fn on the locked, freshly loaded asset and persists the
// result. Effects are dispatched only after the write succeeds.
func (s *Service) transition(ctx context.Context, operation string, assetID id.AssetID, actor id.UserID,
	fn func(ctx context.Context, a *models.Asset, now time.Time) ([]effect.Effect, error),
) (*models.Asset, error) {
	ctx, op := telemetry.StartOp(ctx, s.metrics, "asset", operation,
		attribute.String("asset_id", assetID.String()))

	var (
		result  *models.Asset
		effects []effect.Effect
	)
	err := s.locker.WithLock(ctx, lock.Key("asset", assetID), func(ctx context.Context) error {
		a, err := s.load(ctx, assetID)
		if err != nil {
			return err
		}
		effects, err = fn(ctx, a, requestcontext.Now(ctx))
		if err != nil {
			return err
		}
		result = a
		return nil
	})
	if err != nil {
		return nil, op.End(err)
	}

	s.dispatch(ctx, actor, effects)
	s.logAudit(ctx, "asset_"+operation,
		"asset_id", result.ID, "status", result.Status, "actor_id", actor)
	return result, op.End(nil)
}

// ConfirmDelivery marks an in-transit asset as deployed at location.
func (s *Service) ConfirmDelivery(ctx context.Context, assetID id.AssetID, location id.Location, actor id.UserID) (*models.Asset, error) {
	return s.transition(ctx, "confirm_delivery", assetID, actor,
		func(ctx context.Context, a *models.Asset, now time.Time) ([]effect.Effect, error) {
			effects, err := a.ConfirmDelivery(location, actor, now)
			if err != nil {
				return nil, err
			}
			return effects, s.save(ctx, a)
		})
}

func (s *Service) UpdateCondition(ctx context.Context, assetID id.AssetID, grade string, actor id.UserID) (*models.Asset, error) {
	return s.transition(ctx, "update_condition", assetID, actor,
		func(ctx context.Context, a *models.Asset, now time.Time) ([]effect.Effect, error) {
			if err := a.UpdateCondition(grade, actor, now); err != nil {
				return nil, err
			}
			return nil, s.save(ctx, a)
		})
}

func (s *Service) SendToMaintenance(ctx context.Context, assetID id.AssetID, reason string, actor id.UserID) (*models.Asset, error) {
	return s.transition(ctx, "send_to_maintenance", assetID, actor,
		func(ctx context.Context, a *models.Asset, now time.Time) ([]effect.Effect, error) {
			effects, err := a.SendToMaintenance(reason, actor, now)
			if err != nil {
				return nil, err
			}
			return effects, s.save(ctx, a)
		})
}

// CorrectLocation overwrites the recorded location.
func (s *Service) CorrectLocation(ctx context.Context, assetID id.AssetID, location id.Location, actor id.UserID) (*models.Asset, error) {
	return s.transition(ctx, "correct_location", assetID, actor,
		func(ctx context.Context, a *models.Asset, now time.Time) ([]effect.Effect, error) {
			if err := a.CorrectLocation(location, actor, now); err != nil {
				return nil, err
			}
			return nil, s.save(ctx, a)
		})
}

// ReturnToWarehouse resets the asset to Available. The asset is first dropped
// from its open manifest and kit, each persisted on its own; a failure after
// one of those writes is reported as a partial update.
func (s *Service) ReturnToWarehouse(ctx context.Context, assetID id.AssetID, location id.Location, actor id.UserID) (*models.Asset, error) {
	return s.transition(ctx, "return_to_warehouse", assetID, actor,
		func(ctx context.Context, a *models.Asset, now time.Time) ([]effect.Effect, error) {
			if actor.IsNil() {
				return nil, dErrors.New(dErrors.CodeValidation, "actor is required")
			}
			if err := a.CanReturnToWarehouse(); err != nil {
				return nil, err
			}
			return s.releaseAndApply(ctx, a, actor, now, func() ([]effect.Effect, error) {
				return a.ReturnToWarehouse(location, actor, now)
			})
		})
}

// MarkOutOfService retires the asset for good.
func (s *Service) MarkOutOfService(ctx context.Context, assetID id.AssetID, reason string, actor id.UserID) (*models.Asset, error) {
	return s.transition(ctx, "mark_out_of_service", assetID, actor,
		func(ctx context.Context, a *models.Asset, now time.Time) ([]effect.Effect, error) {
			if actor.IsNil() {
				return nil, dErrors.New(dErrors.CodeValidation, "actor is required")
			}
			if err := a.CanMarkOutOfService(); err != nil {
				return nil, err
			}
			return s.releaseAndApply(ctx, a, actor, now, func() ([]effect.Effect, error) {
				return a.MarkOutOfService(reason, actor, now)
			})
		})
}

func (s *Service) releaseAndApply(ctx context.Context, a *models.Asset, actor id.UserID, now time.Time,
	apply func() ([]effect.Effect, error),
) ([]effect.Effect, error) {
	written := false
	if a.ManifestID != nil && s.manifests != nil {
		changed, err := s.detachFromManifest(ctx, *a.ManifestID, a.ID, actor, now)
		if err != nil {
			return nil, err
		}
		written = changed
	}
	if a.KitID != nil && s.kits != nil {
		changed, err := s.detachFromKit(ctx, *a.KitID, a.ID, actor, now)
		if err != nil {
			return nil, partial(err, written, "asset removed from manifest but not from kit")
		}
		written = written || changed
	}
	effects, err := apply()
	if err != nil {
		return nil, partial(err, written, "asset released from kit or manifest but not updated")
	}
	if err := s.save(ctx, a); err != nil {
		return nil, partial(err, written, "asset released from kit or manifest but not updated")
	}
	return effects, nil
}

func partial(err error, written bool, msg string) error {
	if !written {
		return err
	}
	return dErrors.PartialUpdate(err, msg)
}

func (s *Service) detachFromManifest(ctx context.Context, manifestID id.ManifestID, assetID id.AssetID, actor id.UserID, now time.Time) (bool, error) {
	m, err := s.manifests.FindByID(ctx, manifestID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load manifest")
	}
	if !m.DetachAsset(assetID, actor, now) {
		return false, nil
	}
	if err := s.manifests.Update(ctx, m); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return false, dErrors.NewReason(dErrors.ReasonStaleVersion, "manifest was modified concurrently")
		}
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update manifest")
	}
	return true, nil
}

func (s *Service) detachFromKit(ctx context.Context, kitID id.KitID, assetID id.AssetID, actor id.UserID, now time.Time) (bool, error) {
	k, err := s.kits.FindByID(ctx, kitID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load kit")
	}
	if !k.DetachAsset(assetID, actor, now) {
		return false, nil
	}
	if err := s.kits.Update(ctx, k); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return false, dErrors.NewReason(dErrors.ReasonStaleVersion, "kit was modified concurrently")
		}
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update kit")
	}
	return true, nil
}
