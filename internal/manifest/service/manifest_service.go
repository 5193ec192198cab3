package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	assetmodels "custodian/internal/asset/models"
	custodymodels "custodian/internal/custody/models"
	"custodian/internal/manifest/models"
	"custodian/internal/platform/telemetry"
	id "custodian/pkg/domain"
	dErrors "custodian/pkg/domain-errors"
	"custodian/pkg/platform/effect"
	"custodian/pkg/platform/lock"
	"custodian/pkg/requestcontext"
)

// CreateInput names the election and route of a new manifest.
type CreateInput struct {
	ElectionID id.ElectionID
	From       id.Location
	To         id.Location
}

func (s *Service) Create(ctx context.Context, in CreateInput, actor id.UserID) (*models.Manifest, error) {
	ctx, op := telemetry.StartOp(ctx, s.metrics, "manifest", "create")

	m, err := models.NewManifest(id.ManifestID(uuid.New()), in.ElectionID,
		id.NewLocation(string(in.From)), id.NewLocation(string(in.To)), actor, requestcontext.Now(ctx))
	if err != nil {
		return nil, op.End(err)
	}
	if err := s.manifests.Create(ctx, m); err != nil {
		return nil, op.End(dErrors.Wrap(err, dErrors.CodeInternal, "failed to create manifest"))
	}

	s.logAudit(ctx, "manifest_created",
		"manifest_id", m.ID, "election_id", m.ElectionID, "from", m.From, "to", m.To, "actor_id", actor)
	return m, op.End(nil)
}

func (s *Service) Get(ctx context.Context, manifestID id.ManifestID) (*models.Manifest, error) {
	return s.load(ctx, manifestID)
}

// AddItem lists an asset, optionally with the seal that will close it. The
// manifest line is written before the asset reservation; repeating a call
// whose reservation failed completes it.
func (s *Service) AddItem(ctx context.Context, manifestID id.ManifestID, assetID id.AssetID, sealNumber string, actor id.UserID) (*models.Manifest, error) {
	sealNumber = strings.TrimSpace(sealNumber)
	return s.mutate(ctx, "add_item", manifestID, actor, func(ctx context.Context, m *models.Manifest, now time.Time) ([]effect.Effect, error) {
		a, err := s.loadAsset(ctx, assetID)
		if err != nil {
			return nil, err
		}
		if _, listed := m.Item(assetID); listed {
			if a.ManifestID == nil && m.IsOpen() {
				if err := a.ReserveForManifest(m.ID, actor, now); err != nil {
					return nil, err
				}
				return nil, s.saveAsset(ctx, a)
			}
			return nil, m.CanAddItem(assetID)
		}

		if err := m.CanAddItem(assetID); err != nil {
			return nil, err
		}
		if err := a.CanReserveForManifest(m.ID); err != nil {
			return nil, err
		}
		if sealNumber != "" {
			if err := s.checkSeal(ctx, m, sealNumber); err != nil {
				return nil, err
			}
		}

		if err := m.AddItem(assetID, sealNumber, actor, now); err != nil {
			return nil, err
		}
		if err := s.save(ctx, m); err != nil {
			return nil, err
		}
		if err := a.ReserveForManifest(m.ID, actor, now); err != nil {
			return nil, dErrors.PartialUpdate(err, "item listed but asset not reserved")
		}
		if err := s.saveAsset(ctx, a); err != nil {
			return nil, dErrors.PartialUpdate(err, "item listed but asset not reserved")
		}
		return nil, nil
	}, attribute.String("asset_id", assetID.String()))
}

func (s *Service) checkSeal(ctx context.Context, m *models.Manifest, number string) error {
	for _, it := range m.Items {
		if it.SealNumber == number {
			return dErrors.NewReason(dErrors.ReasonInvalidSealState,
				fmt.Sprintf("seal %s is already listed for asset %s", number, it.AssetID))
		}
	}
	seal, err := s.loadSeal(ctx, number)
	if err != nil {
		return err
	}
	return seal.CanApply()
}

// RemoveItem drops an unshipped line and releases the asset's reservation.
func (s *Service) RemoveItem(ctx context.Context, manifestID id.ManifestID, assetID id.AssetID, actor id.UserID) (*models.Manifest, error) {
	return s.mutate(ctx, "remove_item", manifestID, actor, func(ctx context.Context, m *models.Manifest, now time.Time) ([]effect.Effect, error) {
		a, err := s.loadAsset(ctx, assetID)
		if err != nil {
			return nil, err
		}
		if _, listed := m.Item(assetID); !listed {
			if a.ManifestID != nil && *a.ManifestID == m.ID {
				if err := a.ReleaseFromManifest(m.ID, actor, now); err != nil {
					return nil, err
				}
				return nil, s.saveAsset(ctx, a)
			}
			return nil, m.CanRemoveItem(assetID)
		}
		if err := m.CanRemoveItem(assetID); err != nil {
			return nil, err
		}
		if err := a.CanReleaseFromManifest(m.ID); err != nil {
			return nil, err
		}
		if err := m.RemoveItem(assetID, actor, now); err != nil {
			return nil, err
		}
		if err := s.save(ctx, m); err != nil {
			return nil, err
		}
		if err := a.ReleaseFromManifest(m.ID, actor, now); err != nil {
			return nil, dErrors.PartialUpdate(err, "item removed but asset reservation kept")
		}
		if err := s.saveAsset(ctx, a); err != nil {
			return nil, dErrors.PartialUpdate(err, "item removed but asset reservation kept")
		}
		return nil, nil
	}, attribute.String("asset_id", assetID.String()))
}

func (s *Service) ReadyForPacking(ctx context.Context, manifestID id.ManifestID, actor id.UserID) (*models.Manifest, error) {
	return s.mutate(ctx, "ready_for_packing", manifestID, actor, func(ctx context.Context, m *models.Manifest, now time.Time) ([]effect.Effect, error) {
		if err := m.ReadyForPacking(actor, now); err != nil {
			return nil, err
		}
		return nil, s.save(ctx, m)
	})
}

// MarkItemPacked packs one line. When the line carries a seal, the seal is
// applied to the asset first; a seal already applied to that asset for this
// election counts as done so a retried call can finish.
func (s *Service) MarkItemPacked(ctx context.Context, manifestID id.ManifestID, assetID id.AssetID, packedBy id.UserID) (*models.Manifest, error) {
	return s.mutate(ctx, "mark_item_packed", manifestID, packedBy, func(ctx context.Context, m *models.Manifest, now time.Time) ([]effect.Effect, error) {
		if err := m.CanMarkItemPacked(assetID); err != nil {
			return nil, err
		}
		item, _ := m.Item(assetID)

		sealWritten := false
		if item.SealNumber != "" {
			seal, err := s.loadSeal(ctx, item.SealNumber)
			if err != nil {
				return nil, err
			}
			alreadyApplied := seal.AssetID != nil && *seal.AssetID == assetID &&
				seal.ElectionID != nil && *seal.ElectionID == m.ElectionID
			if !alreadyApplied {
				if err := seal.Apply(m.ElectionID, assetID, packedBy, now); err != nil {
					return nil, err
				}
				if err := s.seals.Update(ctx, seal); err != nil {
					return nil, wrapErr(err, dErrors.ReasonSealNotFound, "seal", "failed to update seal")
				}
				sealWritten = true
			}
		}

		if err := m.MarkItemPacked(assetID, packedBy, now); err != nil {
			return nil, err
		}
		if err := s.save(ctx, m); err != nil {
			if sealWritten {
				return nil, dErrors.PartialUpdate(err, "seal applied but item not marked packed")
			}
			return nil, err
		}
		return nil, nil
	}, attribute.String("asset_id", assetID.String()))
}

// Complete ships a fully packed manifest: every asset goes InTransit with one
// custody event per item, then the manifest closes and requests its custody
// form. Assets already dispatched on this manifest and items already logged
// are skipped, so a call that failed part-way can be repeated.
func (s *Service) Complete(ctx context.Context, manifestID id.ManifestID, actor id.UserID) (*models.Manifest, error) {
	return s.mutate(ctx, "complete", manifestID, actor, func(ctx context.Context, m *models.Manifest, now time.Time) ([]effect.Effect, error) {
		if err := m.CanComplete(); err != nil {
			return nil, err
		}

		assets := make([]*assetmodels.Asset, len(m.Items))
		for i, it := range m.Items {
			a, err := s.loadAsset(ctx, it.AssetID)
			if err != nil {
				return nil, err
			}
			if !dispatchedOn(a, m.ID) {
				if err := a.CanDispatch(m.ID); err != nil {
					return nil, err
				}
			}
			assets[i] = a
		}
		logged, err := s.loggedAssets(ctx, m.ID)
		if err != nil {
			return nil, err
		}

		var effects []effect.Effect
		written := false
		for i, it := range m.Items {
			a := assets[i]
			if !dispatchedOn(a, m.ID) {
				dispatched, err := a.Dispatch(m.ID, actor, now)
				if err != nil {
					return nil, partial(err, written, "manifest partially dispatched")
				}
				if err := s.saveAsset(ctx, a); err != nil {
					return nil, partial(err, written, "manifest partially dispatched")
				}
				written = true
				effects = append(effects, dispatched...)
			}
			if s.custody != nil && !logged[it.AssetID] {
				if err := s.appendCustodyEvent(ctx, m, it, actor, now); err != nil {
					return nil, partial(err, written, "manifest dispatched but custody log incomplete")
				}
				written = true
			}
		}

		completed, err := m.Complete(actor, now)
		if err != nil {
			return nil, partial(err, written, "assets dispatched but manifest not completed")
		}
		if err := s.save(ctx, m); err != nil {
			return nil, partial(err, written, "assets dispatched but manifest not completed")
		}
		return append(effects, completed...), nil
	})
}

func dispatchedOn(a *assetmodels.Asset, manifestID id.ManifestID) bool {
	return a.Status == assetmodels.StatusInTransit && a.ManifestID != nil && *a.ManifestID == manifestID
}

func (s *Service) loggedAssets(ctx context.Context, manifestID id.ManifestID) (map[id.AssetID]bool, error) {
	logged := make(map[id.AssetID]bool)
	if s.custody == nil {
		return logged, nil
	}
	events, err := s.custody.ListByManifest(ctx, manifestID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read custody log")
	}
	for _, e := range events {
		logged[e.AssetID] = true
	}
	return logged, nil
}

func (s *Service) appendCustodyEvent(ctx context.Context, m *models.Manifest, it models.Item, actor id.UserID, now time.Time) error {
	manifestID := m.ID
	event, err := custodymodels.NewEvent(id.CustodyEventID(uuid.New()), custodymodels.TransferInput{
		ElectionID: m.ElectionID,
		AssetID:    it.AssetID,
		FromParty:  m.From.String(),
		ToParty:    m.To.String(),
		SealNumber: it.SealNumber,
		ManifestID: &manifestID,
		Notes:      "dispatched on manifest",
	}, actor, now)
	if err != nil {
		return err
	}
	if err := s.custody.Append(ctx, event); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to append custody event")
	}
	return nil
}

func partial(err error, written bool, msg string) error {
	if !written {
		return err
	}
	return dErrors.PartialUpdate(err, msg)
}

func (s *Service) mutate(ctx context.Context, operation string, manifestID id.ManifestID, actor id.UserID,
	fn func(ctx context.Context, m *models.Manifest, now time.Time) ([]effect.Effect, error),
	attrs ...attribute.KeyValue,
) (*models.Manifest, error) {
	attrs = append(attrs, attribute.String("manifest_id", manifestID.String()))
	ctx, op := telemetry.StartOp(ctx, s.metrics, "manifest", operation, attrs...)
	if actor.IsNil() {
		return nil, op.End(dErrors.New(dErrors.CodeValidation, "actor is required"))
	}

	var (
		result  *models.Manifest
		effects []effect.Effect
	)
	err := s.locker.WithLock(ctx, lock.Key("manifest", manifestID), func(ctx context.Context) error {
		m, err := s.load(ctx, manifestID)
		if err != nil {
			return err
		}
		effects, err = fn(ctx, m, requestcontext.Now(ctx))
		if err != nil {
			return err
		}
		result = m
		return nil
	})
	if err != nil {
		return nil, op.End(err)
	}

	s.dispatch(ctx, actor, effects)
	s.logAudit(ctx, "manifest_"+operation,
		"manifest_id", result.ID, "status", result.Status, "items", len(result.Items), "actor_id", actor)
	return result, op.End(nil)
}
