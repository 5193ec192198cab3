package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"custodian/internal/kit/models"
	"custodian/internal/platform/telemetry"
	id "custodian/pkg/domain"
	dErrors "custodian/pkg/domain-errors"
	"custodian/pkg/platform/effect"
	"custodian/pkg/platform/lock"
	"custodian/pkg/platform/sentinel"
	"custodian/pkg/requestcontext"
)

// CreateInput describes a new kit and its optional initial members. ID is
// optional; callers that may repeat the request supply it so a repeat resumes
// the same kit instead of creating another.
type CreateInput struct {
	ID       id.KitID
	Name     string
	Type     string
	AssetIDs []id.AssetID
}

// Create persists an empty kit and then adds each initial member in order.
// A member that cannot be added leaves the kit and earlier members in place
// and is reported as a partial update. Calling Create again with the same ID
// finishes the members that are still missing.
func (s *Service) Create(ctx context.Context, in CreateInput, actor id.UserID) (*models.Kit, error) {
	ctx, op := telemetry.StartOp(ctx, s.metrics, "kit", "create")

	kitID := in.ID
	if kitID.IsNil() {
		kitID = id.KitID(uuid.New())
	}

	var k *models.Kit
	err := s.locker.WithLock(ctx, lock.Key("kit", kitID), func(ctx context.Context) error {
		var err error
		k, err = s.createOrResume(ctx, kitID, in, actor)
		if err != nil {
			return err
		}
		for _, assetID := range in.AssetIDs {
			err := s.addMember(ctx, k, assetID, actor, requestcontext.Now(ctx))
			if dErrors.HasReason(err, dErrors.ReasonDuplicateKitMember) {
				continue
			}
			if err != nil {
				return dErrors.PartialUpdate(err,
					fmt.Sprintf("kit %s (%s) created but asset %s could not be added", k.Name, k.ID, assetID))
			}
		}
		return nil
	})
	if err != nil {
		return nil, op.End(err)
	}

	s.logAudit(ctx, "kit_created",
		"kit_id", k.ID, "name", k.Name, "assets", len(k.AssetIDs), "actor_id", actor)
	return k, op.End(nil)
}

// createOrResume returns the stored kit for kitID when it exists and matches
// in, otherwise persists a new one.
func (s *Service) createOrResume(ctx context.Context, kitID id.KitID, in CreateInput, actor id.UserID) (*models.Kit, error) {
	k, err := models.NewKit(kitID, in.Name, in.Type, actor, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	existing, err := s.kits.FindByID(ctx, kitID)
	switch {
	case err == nil:
		if existing.Name != k.Name || existing.Type != k.Type {
			return nil, dErrors.New(dErrors.CodeDuplicate,
				fmt.Sprintf("kit %s already exists with different attributes", kitID))
		}
		return existing, nil
	case !errors.Is(err, sentinel.ErrNotFound):
		return nil, wrapKitErr(err, "failed to load kit")
	}
	if err := s.kits.Create(ctx, k); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeDuplicate, fmt.Sprintf("kit %s already exists", kitID))
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create kit")
	}
	return k, nil
}

func (s *Service) Get(ctx context.Context, kitID id.KitID) (*models.Kit, error) {
	return s.loadKit(ctx, kitID)
}

// AddAsset puts an Available asset into an Assembling kit. The kit is written
// first; if the asset write then fails, repeating the call completes it.
func (s *Service) AddAsset(ctx context.Context, kitID id.KitID, assetID id.AssetID, actor id.UserID) (*models.Kit, error) {
	return s.mutate(ctx, "add_asset", kitID, actor, func(ctx context.Context, k *models.Kit, now time.Time) ([]effect.Effect, error) {
		return nil, s.addMember(ctx, k, assetID, actor, now)
	}, attribute.String("asset_id", assetID.String()))
}

func (s *Service) addMember(ctx context.Context, k *models.Kit, assetID id.AssetID, actor id.UserID, now time.Time) error {
	if actor.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "actor is required")
	}
	a, err := s.loadAsset(ctx, assetID)
	if err != nil {
		return err
	}
	if k.Contains(assetID) {
		if a.KitID != nil && *a.KitID == k.ID {
			return dErrors.NewReason(dErrors.ReasonDuplicateKitMember,
				fmt.Sprintf("asset %s is already in kit %s", a.Serial, k.Name))
		}
		// An earlier attempt wrote the kit but not the asset.
		if err := a.AssignToKit(k.ID, actor, now); err != nil {
			return err
		}
		return s.saveAsset(ctx, a)
	}

	if err := k.CanAddAsset(assetID); err != nil {
		return err
	}
	if other, err := s.kits.FindOpenByAsset(ctx, assetID); err == nil && other.ID != k.ID {
		return dErrors.NewReason(dErrors.ReasonAssetInOpenKit,
			fmt.Sprintf("asset %s is already in open kit %s", a.Serial, other.Name))
	} else if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check kit membership")
	}
	if err := a.CanAssignToKit(k.ID); err != nil {
		return err
	}

	if err := k.AddAsset(assetID, actor, now); err != nil {
		return err
	}
	if err := s.saveKit(ctx, k); err != nil {
		return err
	}
	if err := a.AssignToKit(k.ID, actor, now); err != nil {
		return dErrors.PartialUpdate(err, "asset added to kit but not assigned")
	}
	if err := s.saveAsset(ctx, a); err != nil {
		return dErrors.PartialUpdate(err, "asset added to kit but not assigned")
	}
	return nil
}

// RemoveAsset takes a member out of an Assembling kit and makes it Available.
func (s *Service) RemoveAsset(ctx context.Context, kitID id.KitID, assetID id.AssetID, actor id.UserID) (*models.Kit, error) {
	return s.mutate(ctx, "remove_asset", kitID, actor, func(ctx context.Context, k *models.Kit, now time.Time) ([]effect.Effect, error) {
		if actor.IsNil() {
			return nil, dErrors.New(dErrors.CodeValidation, "actor is required")
		}
		a, err := s.loadAsset(ctx, assetID)
		if err != nil {
			return nil, err
		}
		if !k.Contains(assetID) {
			if a.KitID != nil && *a.KitID == k.ID {
				// Finish a removal whose asset write failed.
				if err := a.ReleaseFromKit(k.ID, actor, now); err != nil {
					return nil, err
				}
				return nil, s.saveAsset(ctx, a)
			}
			return nil, k.CanRemoveAsset(assetID)
		}
		if err := k.CanRemoveAsset(assetID); err != nil {
			return nil, err
		}
		if err := a.CanReleaseFromKit(k.ID); err != nil {
			return nil, err
		}
		if err := k.RemoveAsset(assetID, actor, now); err != nil {
			return nil, err
		}
		if err := s.saveKit(ctx, k); err != nil {
			return nil, err
		}
		if err := a.ReleaseFromKit(k.ID, actor, now); err != nil {
			return nil, dErrors.PartialUpdate(err, "asset removed from kit but not released")
		}
		if err := s.saveAsset(ctx, a); err != nil {
			return nil, dErrors.PartialUpdate(err, "asset removed from kit but not released")
		}
		return nil, nil
	}, attribute.String("asset_id", assetID.String()))
}

func (s *Service) MarkReady(ctx context.Context, kitID id.KitID, actor id.UserID) (*models.Kit, error) {
	return s.mutate(ctx, "mark_ready", kitID, actor, func(ctx context.Context, k *models.Kit, now time.Time) ([]effect.Effect, error) {
		if err := k.MarkReady(actor, now); err != nil {
			return nil, err
		}
		return nil, s.saveKit(ctx, k)
	})
}

func (s *Service) AssignPollSite(ctx context.Context, kitID id.KitID, site id.Location, actor id.UserID) (*models.Kit, error) {
	return s.mutate(ctx, "assign_poll_site", kitID, actor, func(ctx context.Context, k *models.Kit, now time.Time) ([]effect.Effect, error) {
		if err := k.AssignPollSite(site, actor, now); err != nil {
			return nil, err
		}
		return nil, s.saveKit(ctx, k)
	})
}

func (s *Service) Deploy(ctx context.Context, kitID id.KitID, actor id.UserID) (*models.Kit, error) {
	return s.mutate(ctx, "deploy", kitID, actor, func(ctx context.Context, k *models.Kit, now time.Time) ([]effect.Effect, error) {
		effects, err := k.Deploy(actor, now)
		if err != nil {
			return nil, err
		}
		return effects, s.saveKit(ctx, k)
	})
}

func (s *Service) LinkManifest(ctx context.Context, kitID id.KitID, manifestID id.ManifestID, actor id.UserID) (*models.Kit, error) {
	return s.mutate(ctx, "link_manifest", kitID, actor, func(ctx context.Context, k *models.Kit, now time.Time) ([]effect.Effect, error) {
		if err := k.LinkManifest(manifestID, actor, now); err != nil {
			return nil, err
		}
		return nil, s.saveKit(ctx, k)
	})
}

// Retire closes the kit and releases members still sitting Assigned to it
// without a manifest reservation. Members already shipped keep their state.
func (s *Service) Retire(ctx context.Context, kitID id.KitID, actor id.UserID) (*models.Kit, error) {
	return s.mutate(ctx, "retire", kitID, actor, func(ctx context.Context, k *models.Kit, now time.Time) ([]effect.Effect, error) {
		if actor.IsNil() {
			return nil, dErrors.New(dErrors.CodeValidation, "actor is required")
		}
		effects, err := k.Retire(actor, now)
		if err != nil {
			return nil, err
		}
		if err := s.saveKit(ctx, k); err != nil {
			return nil, err
		}
		for _, assetID := range k.AssetIDs {
			a, err := s.loadAsset(ctx, assetID)
			if err != nil {
				if dErrors.HasReason(err, dErrors.ReasonAssetNotFound) {
					continue
				}
				return nil, dErrors.PartialUpdate(err, "kit retired but members not released")
			}
			if a.CanReleaseFromKit(k.ID) != nil {
				continue
			}
			if err := a.ReleaseFromKit(k.ID, actor, now); err != nil {
				return nil, dErrors.PartialUpdate(err, "kit retired but members not released")
			}
			if err := s.saveAsset(ctx, a); err != nil {
				return nil, dErrors.PartialUpdate(err, "kit retired but members not released")
			}
		}
		return effects, nil
	})
}

func (s *Service) mutate(ctx context.Context, operation string, kitID id.KitID, actor id.UserID,
	fn func(ctx context.Context, k *models.Kit, now time.Time) ([]effect.Effect, error),
	attrs ...attribute.KeyValue,
) (*models.Kit, error) {
	attrs = append(attrs, attribute.String("kit_id", kitID.String()))
	ctx, op := telemetry.StartOp(ctx, s.metrics, "kit", operation, attrs...)
	if actor.IsNil() {
		return nil, op.End(dErrors.New(dErrors.CodeValidation, "actor is required"))
	}

	var (
		result  *models.Kit
		effects []effect.Effect
	)
	err := s.locker.WithLock(ctx, lock.Key("kit", kitID), func(ctx context.Context) error {
		k, err := s.loadKit(ctx, kitID)
		if err != nil {
			return err
		}
		effects, err = fn(ctx, k, requestcontext.Now(ctx))
		if err != nil {
			return err
		}
		result = k
		return nil
	})
	if err != nil {
		return nil, op.End(err)
	}

	s.dispatch(ctx, actor, effects)
	s.logAudit(ctx, "kit_"+operation,
		"kit_id", result.ID, "status", result.Status, "actor_id", actor)
	return result, op.End(nil)
}
