package httptransport

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	custodymodels "custodian/internal/custody/models"
	"custodian/internal/manifest/models"
	manifestservice "custodian/internal/manifest/service"
	id "custodian/pkg/domain"
)

type ManifestService interface {
	Create(ctx context.Context, in manifestservice.CreateInput, actor id.UserID) (*models.Manifest, error)
	Get(ctx context.Context, manifestID id.ManifestID) (*models.Manifest, error)
	AddItem(ctx context.Context, manifestID id.ManifestID, assetID id.AssetID, sealNumber string, actor id.UserID) (*models.Manifest, error)
	RemoveItem(ctx context.Context, manifestID id.ManifestID, assetID id.AssetID, actor id.UserID) (*models.Manifest, error)
	ReadyForPacking(ctx context.Context, manifestID id.ManifestID, actor id.UserID) (*models.Manifest, error)
	MarkItemPacked(ctx context.Context, manifestID id.ManifestID, assetID id.AssetID, packedBy id.UserID) (*models.Manifest, error)
	Complete(ctx context.Context, manifestID id.ManifestID, actor id.UserID) (*models.Manifest, error)
}

type createManifestRequest struct {
	ElectionID string `json:"election_id"`
	From       string `json:"from"`
	To         string `json:"to"`
}

type addItemRequest struct {
	AssetID    string `json:"asset_id"`
	SealNumber string `json:"seal_number"`
}

func (h *Handler) registerManifests(r chi.Router) {
	r.Route("/manifests", func(r chi.Router) {
		r.Post("/", h.handleCreateManifest)
		r.Route("/{manifestID}", func(r chi.Router) {
			r.Get("/", h.handleGetManifest)
			r.Get("/form", h.handleManifestForm)
			r.Post("/items", h.handleAddItem)
			r.Delete("/items/{assetID}", h.manifestItemOp(ManifestService.RemoveItem))
			r.Post("/items/{assetID}/packed", h.manifestItemOp(ManifestService.MarkItemPacked))
			r.Post("/ready", h.manifestOp(ManifestService.ReadyForPacking))
			r.Post("/complete", h.manifestOp(ManifestService.Complete))
		})
	})
}

func (h *Handler) handleCreateManifest(w http.ResponseWriter, r *http.Request) {
	var req createManifestRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	electionID, err := id.ParseElectionID(req.ElectionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	in := manifestservice.CreateInput{ElectionID: electionID, From: id.NewLocation(req.From), To: id.NewLocation(req.To)}
	mutate(h, w, r, http.StatusCreated, func(ctx context.Context, actor id.UserID) (*models.Manifest, error) {
		return h.svc.Manifests.Create(ctx, in, actor)
	})
}

func (h *Handler) handleGetManifest(w http.ResponseWriter, r *http.Request) {
	manifestID, err := pathID(r, "manifestID", id.ParseManifestID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	read(h, w, r, func(ctx context.Context) (*models.Manifest, error) {
		return h.svc.Manifests.Get(ctx, manifestID)
	})
}

func (h *Handler) handleManifestForm(w http.ResponseWriter, r *http.Request) {
	manifestID, err := pathID(r, "manifestID", id.ParseManifestID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	read(h, w, r, func(ctx context.Context) (*custodymodels.Form, error) {
		return h.svc.Custody.GetFormByManifest(ctx, manifestID)
	})
}

func (h *Handler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	manifestID, err := pathID(r, "manifestID", id.ParseManifestID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req addItemRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	assetID, err := id.ParseAssetID(req.AssetID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	mutate(h, w, r, http.StatusOK, func(ctx context.Context, actor id.UserID) (*models.Manifest, error) {
		return h.svc.Manifests.AddItem(ctx, manifestID, assetID, req.SealNumber, actor)
	})
}

type manifestItemFn func(ManifestService, context.Context, id.ManifestID, id.AssetID, id.UserID) (*models.Manifest, error)

func (h *Handler) manifestItemOp(fn manifestItemFn) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		manifestID, err := pathID(r, "manifestID", id.ParseManifestID)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		assetID, err := pathID(r, "assetID", id.ParseAssetID)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		mutate(h, w, r, http.StatusOK, func(ctx context.Context, actor id.UserID) (*models.Manifest, error) {
			return fn(h.svc.Manifests, ctx, manifestID, assetID, actor)
		})
	}
}

type manifestFn func(ManifestService, context.Context, id.ManifestID, id.UserID) (*models.Manifest, error)

func (h *Handler) manifestOp(fn manifestFn) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		manifestID, err := pathID(r, "manifestID", id.ParseManifestID)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		mutate(h, w, r, http.StatusOK, func(ctx context.Context, actor id.UserID) (*models.Manifest, error) {
			return fn(h.svc.Manifests, ctx, manifestID, actor)
		})
	}
}
