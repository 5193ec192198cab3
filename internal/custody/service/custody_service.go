package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"custodian/internal/custody/models"
	manifestmodels "custodian/internal/manifest/models"
	"custodian/internal/platform/telemetry"
	id "custodian/pkg/domain"
	dErrors "custodian/pkg/domain-errors"
	"custodian/pkg/platform/effect"
	"custodian/pkg/platform/lock"
	"custodian/pkg/platform/sentinel"
	"custodian/pkg/requestcontext"
)

// RecordTransfer appends one custody transfer for an existing asset.
func (s *Service) RecordTransfer(ctx context.Context, in models.TransferInput, actor id.UserID) (*models.Event, error) {
	ctx, op := telemetry.StartOp(ctx, s.metrics, "custody", "record_transfer",
		attribute.String("asset_id", in.AssetID.String()))

	event, err := models.NewEvent(id.CustodyEventID(uuid.New()), in, actor, requestcontext.Now(ctx))
	if err != nil {
		return nil, op.End(err)
	}
	if _, err := s.assets.FindByID(ctx, in.AssetID); err != nil {
		return nil, op.End(wrapErr(err, dErrors.ReasonAssetNotFound, "asset", "failed to load asset"))
	}
	if in.ManifestID != nil {
		if _, err := s.manifests.FindByID(ctx, *in.ManifestID); err != nil {
			return nil, op.End(wrapErr(err, dErrors.ReasonManifestNotFound, "manifest", "failed to load manifest"))
		}
	}
	if err := s.events.Append(ctx, event); err != nil {
		return nil, op.End(dErrors.Wrap(err, dErrors.CodeInternal, "failed to append custody event"))
	}

	s.logAudit(ctx, "custody_transferred",
		"event_id", event.ID, "asset_id", event.AssetID, "from", event.FromParty, "to", event.ToParty, "actor_id", actor)
	return event, op.End(nil)
}

// History returns the custody events of an asset, oldest first.
func (s *Service) History(ctx context.Context, assetID id.AssetID) ([]*models.Event, error) {
	if assetID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "asset id is required")
	}
	events, err := s.events.ListByAsset(ctx, assetID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list custody events")
	}
	return events, nil
}

func (s *Service) GetEvent(ctx context.Context, eventID id.CustodyEventID) (*models.Event, error) {
	event, err := s.events.FindByID(ctx, eventID)
	if err != nil {
		return nil, wrapErr(err, dErrors.ReasonEventNotFound, "custody event", "failed to load custody event")
	}
	return event, nil
}

// GenerateForm creates the signature form for a completed manifest. A manifest
// has at most one form; asking again fails with InvalidFormState.
func (s *Service) GenerateForm(ctx context.Context, manifestID id.ManifestID, required, expirationDays int, actor id.UserID) (*models.Form, error) {
	ctx, op := telemetry.StartOp(ctx, s.metrics, "custody_form", "generate",
		attribute.String("manifest_id", manifestID.String()))

	m, err := s.manifests.FindByID(ctx, manifestID)
	if err != nil {
		return nil, op.End(wrapErr(err, dErrors.ReasonManifestNotFound, "manifest", "failed to load manifest"))
	}
	if m.Status != manifestmodels.StatusCompleted {
		return nil, op.End(dErrors.NewReason(dErrors.ReasonInvalidManifestState,
			fmt.Sprintf("manifest %s is %s; a custody form needs a completed manifest", m.ID, m.Status)))
	}
	if expirationDays < 1 {
		return nil, op.End(dErrors.New(dErrors.CodeValidation, "expiration must be at least one day"))
	}

	now := requestcontext.Now(ctx)
	formID := id.FormID(uuid.New())
	expiresAt := now.AddDate(0, 0, expirationDays)
	token, err := s.tokens.issue(formID, manifestID, expiresAt, now)
	if err != nil {
		return nil, op.End(dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign form token"))
	}
	form, err := models.NewForm(formID, manifestID, s.formURL(token), required, expiresAt, actor, now)
	if err != nil {
		return nil, op.End(err)
	}
	if err := s.forms.Create(ctx, form); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, op.End(dErrors.NewReason(dErrors.ReasonInvalidFormState,
				fmt.Sprintf("manifest %s already has a custody form", manifestID)))
		}
		return nil, op.End(dErrors.Wrap(err, dErrors.CodeInternal, "failed to create custody form"))
	}

	s.logAudit(ctx, "custody_form_generated",
		"form_id", form.ID, "manifest_id", manifestID, "required_signatures", required,
		"expires_at", expiresAt.Format(time.RFC3339), "actor_id", actor)
	return form, op.End(nil)
}

func (s *Service) formURL(token string) string {
	sep := "?"
	if strings.Contains(s.baseURL, "?") {
		sep = "&"
	}
	return s.baseURL + sep + "token=" + url.QueryEscape(token)
}

// GetForm returns the form with expiry folded into its status.
func (s *Service) GetForm(ctx context.Context, formID id.FormID) (*models.Form, error) {
	form, err := s.loadForm(ctx, formID)
	if err != nil {
		return nil, err
	}
	return form.AsOf(requestcontext.Now(ctx)), nil
}

func (s *Service) GetFormByManifest(ctx context.Context, manifestID id.ManifestID) (*models.Form, error) {
	form, err := s.findFormByManifest(ctx, manifestID)
	if err != nil {
		return nil, err
	}
	return form.AsOf(requestcontext.Now(ctx)), nil
}

func (s *Service) findFormByManifest(ctx context.Context, manifestID id.ManifestID) (*models.Form, error) {
	form, err := s.forms.FindByManifest(ctx, manifestID)
	if err != nil {
		return nil, wrapErr(err, dErrors.ReasonFormNotFound, "custody form", "failed to load custody form")
	}
	return form, nil
}

// OpenForm resolves a form link token and counts the access.
func (s *Service) OpenForm(ctx context.Context, token string) (*models.Form, error) {
	ctx, op := telemetry.StartOp(ctx, s.metrics, "custody_form", "open")

	formID, manifestID, err := s.tokens.parse(strings.TrimSpace(token), requestcontext.Now(ctx))
	if err != nil {
		return nil, op.End(err)
	}
	var form *models.Form
	err = s.locker.WithLock(ctx, lock.Key("form", formID), func(ctx context.Context) error {
		f, err := s.loadForm(ctx, formID)
		if err != nil {
			return err
		}
		if f.ManifestID != manifestID {
			return dErrors.New(dErrors.CodeUnauthorized, "invalid form token")
		}
		if err := f.Open(requestcontext.Now(ctx)); err != nil {
			return err
		}
		if err := s.saveForm(ctx, f); err != nil {
			return err
		}
		form = f
		return nil
	})
	if err != nil {
		return nil, op.End(err)
	}
	s.logAudit(ctx, "custody_form_opened", "form_id", form.ID, "access_count", form.AccessCount)
	return form.AsOf(requestcontext.Now(ctx)), op.End(nil)
}

// SubmitSignature acknowledges a custody event on the form of the event's
// manifest.
func (s *Service) SubmitSignature(ctx context.Context, eventID id.CustodyEventID, signer string, sigType models.SignatureType, actor id.UserID) (*models.Form, models.Signature, error) {
	event, err := s.GetEvent(ctx, eventID)
	if err != nil {
		return nil, models.Signature{}, err
	}
	if event.ManifestID == nil {
		return nil, models.Signature{}, dErrors.NewReason(dErrors.ReasonInvalidFormState,
			fmt.Sprintf("custody event %s is not linked to a manifest", eventID))
	}
	form, err := s.findFormByManifest(ctx, *event.ManifestID)
	if err != nil {
		return nil, models.Signature{}, err
	}

	var sig models.Signature
	result, err := s.mutate(ctx, "sign", form.ID, actor, func(f *models.Form, now time.Time) ([]effect.Effect, error) {
		var effects []effect.Effect
		var err error
		sig, effects, err = f.SubmitSignature(models.SignatureRequest{
			ID:      id.SignatureID(uuid.New()),
			EventID: eventID,
			Signer:  signer,
			Type:    sigType,
		}, s.policy, now)
		return effects, err
	}, attribute.String("event_id", eventID.String()))
	if err != nil {
		return nil, models.Signature{}, err
	}
	if !sig.Valid {
		s.logAudit(ctx, "custody_signature_rejected",
			"form_id", result.ID, "event_id", eventID, "reason", sig.InvalidReason, "actor_id", actor)
	}
	return result, sig, nil
}

// CloseForm resolves the form without the remaining signatures.
func (s *Service) CloseForm(ctx context.Context, formID id.FormID, actor id.UserID) (*models.Form, error) {
	return s.mutate(ctx, "close", formID, actor, func(f *models.Form, now time.Time) ([]effect.Effect, error) {
		return f.Close(actor, now)
	})
}

// AttachScannedForm stores a scan of the paper form and keeps the returned
// reference on the form.
func (s *Service) AttachScannedForm(ctx context.Context, formID id.FormID, contentType string, data []byte, actor id.UserID) (*models.Form, error) {
	if s.files == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "file store is not configured")
	}
	if len(data) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "scanned form is empty")
	}
	if strings.TrimSpace(contentType) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "content type is required")
	}
	return s.mutate(ctx, "attach_scan", formID, actor, func(f *models.Form, now time.Time) ([]effect.Effect, error) {
		ref, err := s.files.Put(ctx, contentType, data)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store scanned form")
		}
		return nil, f.AttachScan(ref, now)
	})
}

func (s *Service) mutate(ctx context.Context, operation string, formID id.FormID, actor id.UserID,
	fn func(f *models.Form, now time.Time) ([]effect.Effect, error),
	attrs ...attribute.KeyValue,
) (*models.Form, error) {
	attrs = append(attrs, attribute.String("form_id", formID.String()))
	ctx, op := telemetry.StartOp(ctx, s.metrics, "custody_form", operation, attrs...)
	if actor.IsNil() {
		return nil, op.End(dErrors.New(dErrors.CodeValidation, "actor is required"))
	}

	var (
		result  *models.Form
		effects []effect.Effect
	)
	err := s.locker.WithLock(ctx, lock.Key("form", formID), func(ctx context.Context) error {
		f, err := s.loadForm(ctx, formID)
		if err != nil {
			return err
		}
		effects, err = fn(f, requestcontext.Now(ctx))
		if err != nil {
			return err
		}
		if err := s.saveForm(ctx, f); err != nil {
			return err
		}
		result = f
		return nil
	})
	if err != nil {
		return nil, op.End(err)
	}

	s.dispatch(ctx, actor, effects)
	s.logAudit(ctx, "custody_form_"+operation,
		"form_id", result.ID, "status", result.Status, "signatures", result.CompletedSignatures(), "actor_id", actor)
	return result, op.End(nil)
}
