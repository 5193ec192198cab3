package httptransport

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"custodian/internal/kit/models"
	kitservice "custodian/internal/kit/service"
	id "custodian/pkg/domain"
)

type KitService interface {
	Create(ctx context.Context, in kitservice.CreateInput, actor id.UserID) (*models.Kit, error)
	Get(ctx context.Context, kitID id.KitID) (*models.Kit, error)
	AddAsset(ctx context.Context, kitID id.KitID, assetID id.AssetID, actor id.UserID) (*models.Kit, error)
	RemoveAsset(ctx context.Context, kitID id.KitID, assetID id.AssetID, actor id.UserID) (*models.Kit, error)
	MarkReady(ctx context.Context, kitID id.KitID, actor id.UserID) (*models.Kit, error)
	AssignPollSite(ctx context.Context, kitID id.KitID, site id.Location, actor id.UserID) (*models.Kit, error)
	Deploy(ctx context.Context, kitID id.KitID, actor id.UserID) (*models.Kit, error)
	LinkManifest(ctx context.Context, kitID id.KitID, manifestID id.ManifestID, actor id.UserID) (*models.Kit, error)
	Retire(ctx context.Context, kitID id.KitID, actor id.UserID) (*models.Kit, error)
}

type createKitRequest struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Type     string   `json:"type"`
	AssetIDs []string `json:"asset_ids"`
}

type kitAssetRequest struct {
	AssetID string `json:"asset_id"`
}

type pollSiteRequest struct {
	Site string `json:"site"`
}

type linkManifestRequest struct {
	ManifestID string `json:"manifest_id"`
}

func (h *Handler) registerKits(r chi.Router) {
	r.Route("/kits", func(r chi.Router) {
		r.Post("/", h.handleCreateKit)
		r.Route("/{kitID}", func(r chi.Router) {
			r.Get("/", h.handleGetKit)
			r.Post("/assets", h.handleAddKitAsset)
			r.Delete("/assets/{assetID}", h.handleRemoveKitAsset)
			r.Post("/poll-site", h.handleAssignPollSite)
			r.Post("/manifest", h.handleLinkManifest)
			r.Post("/ready", h.kitOp(KitService.MarkReady))
			r.Post("/deploy", h.kitOp(KitService.Deploy))
			r.Post("/retire", h.kitOp(KitService.Retire))
		})
	})
}

func (h *Handler) handleCreateKit(w http.ResponseWriter, r *http.Request) {
	var req createKitRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	// The id is fixed before the retry loop so every attempt targets one kit.
	kitID, err := optionalID(req.ID, id.ParseKitID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	in := kitservice.CreateInput{ID: id.KitID(uuid.New()), Name: req.Name, Type: req.Type}
	if kitID != nil {
		in.ID = *kitID
	}
	for _, raw := range req.AssetIDs {
		assetID, err := id.ParseAssetID(raw)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		in.AssetIDs = append(in.AssetIDs, assetID)
	}
	mutate(h, w, r, http.StatusCreated, func(ctx context.Context, actor id.UserID) (*models.Kit, error) {
		return h.svc.Kits.Create(ctx, in, actor)
	})
}

func (h *Handler) handleGetKit(w http.ResponseWriter, r *http.Request) {
	kitID, err := pathID(r, "kitID", id.ParseKitID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	read(h, w, r, func(ctx context.Context) (*models.Kit, error) {
		return h.svc.Kits.Get(ctx, kitID)
	})
}

func (h *Handler) handleAddKitAsset(w http.ResponseWriter, r *http.Request) {
	kitID, err := pathID(r, "kitID", id.ParseKitID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req kitAssetRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	assetID, err := id.ParseAssetID(req.AssetID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	mutate(h, w, r, http.StatusOK, func(ctx context.Context, actor id.UserID) (*models.Kit, error) {
		return h.svc.Kits.AddAsset(ctx, kitID, assetID, actor)
	})
}

func (h *Handler) handleRemoveKitAsset(w http.ResponseWriter, r *http.Request) {
	kitID, err := pathID(r, "kitID", id.ParseKitID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	assetID, err := pathID(r, "assetID", id.ParseAssetID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	mutate(h, w, r, http.StatusOK, func(ctx context.Context, actor id.UserID) (*models.Kit, error) {
		return h.svc.Kits.RemoveAsset(ctx, kitID, assetID, actor)
	})
}

func (h *Handler) handleAssignPollSite(w http.ResponseWriter, r *http.Request) {
	kitID, err := pathID(r, "kitID", id.ParseKitID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req pollSiteRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	mutate(h, w, r, http.StatusOK, func(ctx context.Context, actor id.UserID) (*models.Kit, error) {
		return h.svc.Kits.AssignPollSite(ctx, kitID, id.NewLocation(req.Site), actor)
	})
}

func (h *Handler) handleLinkManifest(w http.ResponseWriter, r *http.Request) {
	kitID, err := pathID(r, "kitID", id.ParseKitID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req linkManifestRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	manifestID, err := id.ParseManifestID(req.ManifestID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	mutate(h, w, r, http.StatusOK, func(ctx context.Context, actor id.UserID) (*models.Kit, error) {
		return h.svc.Kits.LinkManifest(ctx, kitID, manifestID, actor)
	})
}

type kitFn func(KitService, context.Context, id.KitID, id.UserID) (*models.Kit, error)

func (h *Handler) kitOp(fn kitFn) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kitID, err := pathID(r, "kitID", id.ParseKitID)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		mutate(h, w, r, http.StatusOK, func(ctx context.Context, actor id.UserID) (*models.Kit, error) {
			return fn(h.svc.Kits, ctx, kitID, actor)
		})
	}
}
