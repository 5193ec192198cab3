package httptransport

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	sealmodels "custodian/internal/seal/models"
	id "custodian/pkg/domain"
)

type SealService interface {
	Register(ctx context.Context, number string, actor id.UserID) (*sealmodels.Seal, error)
	Apply(ctx context.Context, number string, electionID id.ElectionID, assetID id.AssetID, appliedBy id.UserID) (*sealmodels.Seal, error)
	Break(ctx context.Context, number, reason string, actor id.UserID) (*sealmodels.Seal, error)
	ReportLost(ctx context.Context, number, reason string, actor id.UserID) (*sealmodels.Seal, error)
	GetByNumber(ctx context.Context, number string) (*sealmodels.Seal, error)
	ListByAsset(ctx context.Context, assetID id.AssetID) ([]*sealmodels.Seal, error)
}

type registerSealRequest struct {
	Number string `json:"number"`
}

type applySealRequest struct {
	ElectionID string `json:"election_id"`
	AssetID    string `json:"asset_id"`
}

func (h *Handler) registerSeals(r chi.Router) {
	r.Route("/seals", func(r chi.Router) {
		r.Post("/", h.handleRegisterSeal)
		r.Route("/{number}", func(r chi.Router) {
			r.Get("/", h.handleGetSeal)
			r.Post("/apply", h.handleApplySeal)
			r.Post("/break", h.sealReasonOp(SealService.Break))
			r.Post("/lost", h.sealReasonOp(SealService.ReportLost))
		})
	})
}

func (h *Handler) handleRegisterSeal(w http.ResponseWriter, r *http.Request) {
	var req registerSealRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	mutate(h, w, r, http.StatusCreated, func(ctx context.Context, actor id.UserID) (*sealmodels.Seal, error) {
		return h.svc.Seals.Register(ctx, req.Number, actor)
	})
}

func (h *Handler) handleGetSeal(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	read(h, w, r, func(ctx context.Context) (*sealmodels.Seal, error) {
		return h.svc.Seals.GetByNumber(ctx, number)
	})
}

func (h *Handler) handleApplySeal(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	var req applySealRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	electionID, err := id.ParseElectionID(req.ElectionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	assetID, err := id.ParseAssetID(req.AssetID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	mutate(h, w, r, http.StatusOK, func(ctx context.Context, actor id.UserID) (*sealmodels.Seal, error) {
		return h.svc.Seals.Apply(ctx, number, electionID, assetID, actor)
	})
}

type sealReasonFn func(SealService, context.Context, string, string, id.UserID) (*sealmodels.Seal, error)

func (h *Handler) sealReasonOp(fn sealReasonFn) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		number := chi.URLParam(r, "number")
		var req reasonRequest
		if err := decode(r, &req); err != nil {
			h.writeError(w, r, err)
			return
		}
		mutate(h, w, r, http.StatusOK, func(ctx context.Context, actor id.UserID) (*sealmodels.Seal, error) {
			return fn(h.svc.Seals, ctx, number, req.Reason, actor)
		})
	}
}
