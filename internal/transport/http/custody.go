package httptransport

import (
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"custodian/internal/custody/models"
	id "custodian/pkg/domain"
	dErrors "custodian/pkg/domain-errors"
)

type CustodyService interface {
	RecordTransfer(ctx context.Context, in models.TransferInput, actor id.UserID) (*models.Event, error)
	History(ctx context.Context, assetID id.AssetID) ([]*models.Event, error)
	GetEvent(ctx context.Context, eventID id.CustodyEventID) (*models.Event, error)
	GenerateForm(ctx context.Context, manifestID id.ManifestID, required, expirationDays int, actor id.UserID) (*models.Form, error)
	GetForm(ctx context.Context, formID id.FormID) (*models.Form, error)
	GetFormByManifest(ctx context.Context, manifestID id.ManifestID) (*models.Form, error)
	OpenForm(ctx context.Context, token string) (*models.Form, error)
	SubmitSignature(ctx context.Context, eventID id.CustodyEventID, signer string, sigType models.SignatureType, actor id.UserID) (*models.Form, models.Signature, error)
	CloseForm(ctx context.Context, formID id.FormID, actor id.UserID) (*models.Form, error)
	AttachScannedForm(ctx context.Context, formID id.FormID, contentType string, data []byte, actor id.UserID) (*models.Form, error)
}

type transferRequest struct {
	ElectionID string `json:"election_id"`
	AssetID    string `json:"asset_id"`
	FromParty  string `json:"from_party"`
	ToParty    string `json:"to_party"`
	SealNumber string `json:"seal_number"`
	FromOrg    string `json:"from_org"`
	ToOrg      string `json:"to_org"`
	ManifestID string `json:"manifest_id"`
	Notes      string `json:"notes"`
}

func (req transferRequest) toInput() (models.TransferInput, error) {
	electionID, err := id.ParseElectionID(req.ElectionID)
	if err != nil {
		return models.TransferInput{}, err
	}
	assetID, err := id.ParseAssetID(req.AssetID)
	if err != nil {
		return models.TransferInput{}, err
	}
	manifestID, err := optionalID(req.ManifestID, id.ParseManifestID)
	if err != nil {
		return models.TransferInput{}, err
	}
	return models.TransferInput{
		ElectionID: electionID,
		AssetID:    assetID,
		FromParty:  req.FromParty,
		ToParty:    req.ToParty,
		SealNumber: req.SealNumber,
		FromOrg:    req.FromOrg,
		ToOrg:      req.ToOrg,
		ManifestID: manifestID,
		Notes:      req.Notes,
	}, nil
}

type signatureRequest struct {
	Signer string               `json:"signer"`
	Type   models.SignatureType `json:"type"`
}

type signatureResponse struct {
	Form      *models.Form     `json:"form"`
	Signature models.Signature `json:"signature"`
}

type generateFormRequest struct {
	ManifestID         string `json:"manifest_id"`
	RequiredSignatures int    `json:"required_signatures"`
	ExpirationDays     int    `json:"expiration_days"`
}

func (h *Handler) registerCustody(r chi.Router) {
	r.Route("/custody", func(r chi.Router) {
		r.Post("/events", h.handleRecordTransfer)
		r.Get("/events/{eventID}", h.handleGetEvent)
		r.Post("/events/{eventID}/signatures", h.handleSubmitSignature)

		r.Post("/forms", h.handleGenerateForm)
		r.Get("/forms/open", h.handleOpenForm)
		r.Get("/forms/{formID}", h.handleGetForm)
		r.Post("/forms/{formID}/close", h.handleCloseForm)
		r.Put("/forms/{formID}/scan", h.handleAttachScan)
	})
}

func (h *Handler) handleRecordTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	in, err := req.toInput()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	mutate(h, w, r, http.StatusCreated, func(ctx context.Context, actor id.UserID) (*models.Event, error) {
		return h.svc.Custody.RecordTransfer(ctx, in, actor)
	})
}

func (h *Handler) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	eventID, err := pathID(r, "eventID", id.ParseCustodyEventID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	read(h, w, r, func(ctx context.Context) (*models.Event, error) {
		return h.svc.Custody.GetEvent(ctx, eventID)
	})
}

func (h *Handler) handleSubmitSignature(w http.ResponseWriter, r *http.Request) {
	eventID, err := pathID(r, "eventID", id.ParseCustodyEventID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req signatureRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	mutate(h, w, r, http.StatusCreated, func(ctx context.Context, actor id.UserID) (signatureResponse, error) {
		form, sig, err := h.svc.Custody.SubmitSignature(ctx, eventID, req.Signer, req.Type, actor)
		return signatureResponse{Form: form, Signature: sig}, err
	})
}

func (h *Handler) handleGenerateForm(w http.ResponseWriter, r *http.Request) {
	var req generateFormRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	manifestID, err := id.ParseManifestID(req.ManifestID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.RequiredSignatures == 0 {
		req.RequiredSignatures = h.forms.RequiredSignatures
	}
	if req.ExpirationDays == 0 {
		req.ExpirationDays = h.forms.ExpirationDays
	}
	mutate(h, w, r, http.StatusCreated, func(ctx context.Context, actor id.UserID) (*models.Form, error) {
		return h.svc.Custody.GenerateForm(ctx, manifestID, req.RequiredSignatures, req.ExpirationDays, actor)
	})
}

// handleOpenForm is reached from the link handed to the receiving party. The
// signed token is the credential, so no actor header is required.
func (h *Handler) handleOpenForm(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		h.writeError(w, r, dErrors.New(dErrors.CodeUnauthorized, "token is required"))
		return
	}
	read(h, w, r, func(ctx context.Context) (*models.Form, error) {
		return h.svc.Custody.OpenForm(ctx, token)
	})
}

func (h *Handler) handleGetForm(w http.ResponseWriter, r *http.Request) {
	formID, err := pathID(r, "formID", id.ParseFormID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	read(h, w, r, func(ctx context.Context) (*models.Form, error) {
		return h.svc.Custody.GetForm(ctx, formID)
	})
}

func (h *Handler) handleCloseForm(w http.ResponseWriter, r *http.Request) {
	formID, err := pathID(r, "formID", id.ParseFormID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	mutate(h, w, r, http.StatusOK, func(ctx context.Context, actor id.UserID) (*models.Form, error) {
		return h.svc.Custody.CloseForm(ctx, formID, actor)
	})
}

func (h *Handler) handleAttachScan(w http.ResponseWriter, r *http.Request) {
	formID, err := pathID(r, "formID", id.ParseFormID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxScan))
	if err != nil {
		h.writeError(w, r, dErrors.New(dErrors.CodeBadRequest, "scan exceeds upload limit"))
		return
	}
	contentType := r.Header.Get("Content-Type")
	mutate(h, w, r, http.StatusOK, func(ctx context.Context, actor id.UserID) (*models.Form, error) {
		return h.svc.Custody.AttachScannedForm(ctx, formID, contentType, data, actor)
	})
}
