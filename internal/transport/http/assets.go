package httptransport

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	assetmodels "custodian/internal/asset/models"
	custodymodels "custodian/internal/custody/models"
	sealmodels "custodian/internal/seal/models"
	id "custodian/pkg/domain"
	dErrors "custodian/pkg/domain-errors"
)

type AssetService interface {
	Register(ctx context.Context, in assetmodels.RegisterInput, actor id.UserID) (*assetmodels.Asset, error)
	Get(ctx context.Context, assetID id.AssetID) (*assetmodels.Asset, error)
	GetBySerial(ctx context.Context, serial string) (*assetmodels.Asset, error)
	GetByTag(ctx context.Context, tag string) (*assetmodels.Asset, error)
	ConfirmDelivery(ctx context.Context, assetID id.AssetID, location id.Location, actor id.UserID) (*assetmodels.Asset, error)
	UpdateCondition(ctx context.Context, assetID id.AssetID, grade string, actor id.UserID) (*assetmodels.Asset, error)
	SendToMaintenance(ctx context.Context, assetID id.AssetID, reason string, actor id.UserID) (*assetmodels.Asset, error)
	CorrectLocation(ctx context.Context, assetID id.AssetID, location id.Location, actor id.UserID) (*assetmodels.Asset, error)
	ReturnToWarehouse(ctx context.Context, assetID id.AssetID, location id.Location, actor id.UserID) (*assetmodels.Asset, error)
	MarkOutOfService(ctx context.Context, assetID id.AssetID, reason string, actor id.UserID) (*assetmodels.Asset, error)
}

type registerAssetRequest struct {
	Serial     string `json:"serial"`
	Type       string `json:"type"`
	Tag        string `json:"tag"`
	Condition  string `json:"condition"`
	Location   string `json:"location"`
	FacilityID string `json:"facility_id"`
	ElectionID string `json:"election_id"`
}

type locationRequest struct {
	Location string `json:"location"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

type conditionRequest struct {
	Grade string `json:"grade"`
}

func (h *Handler) registerAssets(r chi.Router) {
	r.Route("/assets", func(r chi.Router) {
		r.Post("/", h.handleRegisterAsset)
		r.Get("/", h.handleFindAsset)
		r.Route("/{assetID}", func(r chi.Router) {
			r.Get("/", h.handleGetAsset)
			r.Get("/custody", h.handleAssetHistory)
			r.Get("/seals", h.handleAssetSeals)
			r.Post("/delivery", h.assetLocationOp(AssetService.ConfirmDelivery))
			r.Post("/location", h.assetLocationOp(AssetService.CorrectLocation))
			r.Post("/return", h.assetLocationOp(AssetService.ReturnToWarehouse))
			r.Post("/maintenance", h.assetReasonOp(AssetService.SendToMaintenance))
			r.Post("/out-of-service", h.assetReasonOp(AssetService.MarkOutOfService))
			r.Post("/condition", h.handleUpdateCondition)
		})
	})
}

func (h *Handler) handleRegisterAsset(w http.ResponseWriter, r *http.Request) {
	var req registerAssetRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	facilityID, err := optionalID(req.FacilityID, id.ParseFacilityID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	electionID, err := optionalID(req.ElectionID, id.ParseElectionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	in := assetmodels.RegisterInput{
		Serial:     req.Serial,
		Type:       req.Type,
		Tag:        req.Tag,
		Condition:  req.Condition,
		Location:   id.NewLocation(req.Location),
		FacilityID: facilityID,
		ElectionID: electionID,
	}
	mutate(h, w, r, http.StatusCreated, func(ctx context.Context, actor id.UserID) (*assetmodels.Asset, error) {
		return h.svc.Assets.Register(ctx, in, actor)
	})
}

// handleFindAsset looks an asset up by ?serial= or ?tag=.
func (h *Handler) handleFindAsset(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	read(h, w, r, func(ctx context.Context) (*assetmodels.Asset, error) {
		switch {
		case q.Get("serial") != "":
			return h.svc.Assets.GetBySerial(ctx, q.Get("serial"))
		case q.Get("tag") != "":
			return h.svc.Assets.GetByTag(ctx, q.Get("tag"))
		default:
			return nil, dErrors.New(dErrors.CodeBadRequest, "serial or tag query parameter is required")
		}
	})
}

func (h *Handler) handleGetAsset(w http.ResponseWriter, r *http.Request) {
	assetID, err := pathID(r, "assetID", id.ParseAssetID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	read(h, w, r, func(ctx context.Context) (*assetmodels.Asset, error) {
		return h.svc.Assets.Get(ctx, assetID)
	})
}

func (h *Handler) handleAssetHistory(w http.ResponseWriter, r *http.Request) {
	assetID, err := pathID(r, "assetID", id.ParseAssetID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	read(h, w, r, func(ctx context.Context) ([]*custodymodels.Event, error) {
		return h.svc.Custody.History(ctx, assetID)
	})
}

func (h *Handler) handleAssetSeals(w http.ResponseWriter, r *http.Request) {
	assetID, err := pathID(r, "assetID", id.ParseAssetID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	read(h, w, r, func(ctx context.Context) ([]*sealmodels.Seal, error) {
		return h.svc.Seals.ListByAsset(ctx, assetID)
	})
}

type assetLocationFn func(AssetService, context.Context, id.AssetID, id.Location, id.UserID) (*assetmodels.Asset, error)

func (h *Handler) assetLocationOp(fn assetLocationFn) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assetID, err := pathID(r, "assetID", id.ParseAssetID)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		var req locationRequest
		if err := decode(r, &req); err != nil {
			h.writeError(w, r, err)
			return
		}
		mutate(h, w, r, http.StatusOK, func(ctx context.Context, actor id.UserID) (*assetmodels.Asset, error) {
			return fn(h.svc.Assets, ctx, assetID, id.NewLocation(req.Location), actor)
		})
	}
}

type assetReasonFn func(AssetService, context.Context, id.AssetID, string, id.UserID) (*assetmodels.Asset, error)

func (h *Handler) assetReasonOp(fn assetReasonFn) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assetID, err := pathID(r, "assetID", id.ParseAssetID)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		var req reasonRequest
		if err := decode(r, &req); err != nil {
			h.writeError(w, r, err)
			return
		}
		mutate(h, w, r, http.StatusOK, func(ctx context.Context, actor id.UserID) (*assetmodels.Asset, error) {
			return fn(h.svc.Assets, ctx, assetID, req.Reason, actor)
		})
	}
}

func (h *Handler) handleUpdateCondition(w http.ResponseWriter, r *http.Request) {
	assetID, err := pathID(r, "assetID", id.ParseAssetID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req conditionRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	mutate(h, w, r, http.StatusOK, func(ctx context.Context, actor id.UserID) (*assetmodels.Asset, error) {
		return h.svc.Assets.UpdateCondition(ctx, assetID, req.Grade, actor)
	})
}
