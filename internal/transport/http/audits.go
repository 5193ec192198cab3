package httptransport

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"custodian/internal/audit/models"
	auditservice "custodian/internal/audit/service"
	id "custodian/pkg/domain"
)

type AuditService interface {
	StartAudit(ctx context.Context, location id.Location, auditor id.UserID) (*models.Session, error)
	Get(ctx context.Context, sessionID id.AuditSessionID) (*models.Session, error)
	RecordScans(ctx context.Context, sessionID id.AuditSessionID, scans []auditservice.ScanInput, actor id.UserID) (*models.Session, []models.Discrepancy, error)
	ResolveDiscrepancy(ctx context.Context, sessionID id.AuditSessionID, discrepancyID id.DiscrepancyID, resolution string, applyObserved bool, actor id.UserID) (*models.Session, error)
	CompleteAudit(ctx context.Context, sessionID id.AuditSessionID, actor id.UserID) (*models.Session, error)
	ApproveAudit(ctx context.Context, sessionID id.AuditSessionID, approver id.UserID) (*models.Session, error)
}

type startAuditRequest struct {
	Location string `json:"location"`
}

type scanRequest struct {
	Scans []struct {
		Barcode  string `json:"barcode"`
		Location string `json:"location"`
	} `json:"scans"`
}

type scanResponse struct {
	Session       *models.Session      `json:"session"`
	Discrepancies []models.Discrepancy `json:"discrepancies"`
}

type resolveRequest struct {
	Resolution    string `json:"resolution"`
	ApplyObserved bool   `json:"apply_observed"`
}

func (h *Handler) registerAudits(r chi.Router) {
	r.Route("/audits", func(r chi.Router) {
		r.Post("/", h.handleStartAudit)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", h.handleGetAudit)
			r.Post("/scans", h.handleRecordScans)
			r.Post("/discrepancies/{discrepancyID}/resolve", h.handleResolveDiscrepancy)
			r.Post("/complete", h.auditOp(AuditService.CompleteAudit))
			r.Post("/approve", h.auditOp(AuditService.ApproveAudit))
		})
	})
}

func (h *Handler) handleStartAudit(w http.ResponseWriter, r *http.Request) {
	var req startAuditRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	mutate(h, w, r, http.StatusCreated, func(ctx context.Context, actor id.UserID) (*models.Session, error) {
		return h.svc.Audits.StartAudit(ctx, id.NewLocation(req.Location), actor)
	})
}

func (h *Handler) handleGetAudit(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathID(r, "sessionID", id.ParseAuditSessionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	read(h, w, r, func(ctx context.Context) (*models.Session, error) {
		return h.svc.Audits.Get(ctx, sessionID)
	})
}

func (h *Handler) handleRecordScans(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathID(r, "sessionID", id.ParseAuditSessionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req scanRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	scans := make([]auditservice.ScanInput, 0, len(req.Scans))
	for _, sc := range req.Scans {
		scans = append(scans, auditservice.ScanInput{Barcode: sc.Barcode, Location: id.NewLocation(sc.Location)})
	}
	mutate(h, w, r, http.StatusOK, func(ctx context.Context, actor id.UserID) (scanResponse, error) {
		session, found, err := h.svc.Audits.RecordScans(ctx, sessionID, scans, actor)
		return scanResponse{Session: session, Discrepancies: found}, err
	})
}

func (h *Handler) handleResolveDiscrepancy(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathID(r, "sessionID", id.ParseAuditSessionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	discrepancyID, err := pathID(r, "discrepancyID", id.ParseDiscrepancyID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req resolveRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	mutate(h, w, r, http.StatusOK, func(ctx context.Context, actor id.UserID) (*models.Session, error) {
		return h.svc.Audits.ResolveDiscrepancy(ctx, sessionID, discrepancyID, req.Resolution, req.ApplyObserved, actor)
	})
}

type auditFn func(AuditService, context.Context, id.AuditSessionID, id.UserID) (*models.Session, error)

func (h *Handler) auditOp(fn auditFn) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, err := pathID(r, "sessionID", id.ParseAuditSessionID)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		mutate(h, w, r, http.StatusOK, func(ctx context.Context, actor id.UserID) (*models.Session, error) {
			return fn(h.svc.Audits, ctx, sessionID, actor)
		})
	}
}
