package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/oregpt/escrowservice-sub000/internal/service"
)

// EscrowHandler exposes the escrow lifecycle over HTTP.
type EscrowHandler struct {
	svc *service.EscrowService
}

func NewEscrowHandler(svc *service.EscrowService) *EscrowHandler {
	return &EscrowHandler{svc: svc}
}

// CreateEscrowRequest is the request body for opening an escrow.
type CreateEscrowRequest struct {
	ServiceTypeID  string          `json:"service_type_id"`
	AmountMicros   int64           `json:"amount_micros"`
	Currency       string          `json:"currency"`
	AssignedUserID *string         `json:"assigned_user_id,omitempty"`
	AssignedOrgID  *string         `json:"assigned_org_id,omitempty"`
	AssignedEmail  string          `json:"assigned_email,omitempty"`
	ArbiterType    string          `json:"arbiter_type,omitempty"`
	ArbiterUserID  *string         `json:"arbiter_user_id,omitempty"`
	ArbiterEmail   string          `json:"arbiter_email,omitempty"`
	ArbiterOrgID   *string         `json:"arbiter_org_id,omitempty"`
	Terms          string          `json:"terms,omitempty"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	ExpiresAt      *time.Time      `json:"expires_at,omitempty"`
}

// CreateEscrow handles POST /v1/escrows.
func (h *EscrowHandler) CreateEscrow(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	var req CreateEscrowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	serviceTypeID, err := uuid.Parse(req.ServiceTypeID)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-service-type-id", "Invalid service_type_id")
		return
	}
	if req.AmountMicros <= 0 {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-amount", "Amount must be greater than zero")
		return
	}

	assignedUserID, err := parseOptionalUUID(req.AssignedUserID)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-assigned-user-id", "Invalid assigned_user_id")
		return
	}
	assignedOrgID, err := parseOptionalUUID(req.AssignedOrgID)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-assigned-org-id", "Invalid assigned_org_id")
		return
	}
	arbiterUserID, err := parseOptionalUUID(req.ArbiterUserID)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-arbiter-user-id", "Invalid arbiter_user_id")
		return
	}
	arbiterOrgID, err := parseOptionalUUID(req.ArbiterOrgID)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-arbiter-org-id", "Invalid arbiter_org_id")
		return
	}

	escrow, err := h.svc.CreateEscrow(r.Context(), service.CreateEscrowRequest{
		CreatorUserID:  actorID,
		ServiceTypeID:  serviceTypeID,
		AmountMicros:   req.AmountMicros,
		Currency:       strings.ToUpper(strings.TrimSpace(req.Currency)),
		AssignedUserID: assignedUserID,
		AssignedOrgID:  assignedOrgID,
		AssignedEmail:  strings.TrimSpace(req.AssignedEmail),
		ArbiterType:    req.ArbiterType,
		ArbiterUserID:  arbiterUserID,
		ArbiterEmail:   strings.TrimSpace(req.ArbiterEmail),
		ArbiterOrgID:   arbiterOrgID,
		Terms:          req.Terms,
		Metadata:       req.Metadata,
		ExpiresAt:      req.ExpiresAt,
	})
	if err != nil {
		if status, pType, msg, ok := mapDomainError(err); ok {
			RespondError(w, r, status, pType, msg)
			return
		}
		zap.L().Error("create escrow failed", zap.Error(err))
		RespondError(w, r, http.StatusBadRequest, "escrow/create-failed", err.Error())
		return
	}

	RespondJSON(w, http.StatusCreated, escrow)
}

// GetEscrow handles GET /v1/escrows/{id}.
func (h *EscrowHandler) GetEscrow(w http.ResponseWriter, r *http.Request) {
	escrowID, ok := escrowIDParam(w, r)
	if !ok {
		return
	}

	escrow, err := h.svc.GetEscrow(r.Context(), escrowID)
	if err != nil {
		if status, pType, msg, ok := mapDomainError(err); ok {
			RespondError(w, r, status, pType, msg)
			return
		}
		zap.L().Error("get escrow failed", zap.Error(err), zap.String("escrow_id", escrowID.String()))
		RespondError(w, r, http.StatusInternalServerError, "escrow/read-failed", "Failed to get escrow")
		return
	}
	RespondJSON(w, http.StatusOK, escrow)
}

// AcceptEscrow handles POST /v1/escrows/{id}/accept.
func (h *EscrowHandler) AcceptEscrow(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "accept", func(escrowID, actorID uuid.UUID) (any, error) {
		return h.svc.AcceptEscrow(r.Context(), escrowID, actorID)
	})
}

// FundEscrow handles POST /v1/escrows/{id}/fund.
func (h *EscrowHandler) FundEscrow(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "fund", func(escrowID, actorID uuid.UUID) (any, error) {
		return h.svc.FundEscrow(r.Context(), escrowID, actorID)
	})
}

// ConfirmEscrow handles POST /v1/escrows/{id}/confirm.
func (h *EscrowHandler) ConfirmEscrow(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "confirm", func(escrowID, actorID uuid.UUID) (any, error) {
		return h.svc.ConfirmEscrow(r.Context(), escrowID, actorID)
	})
}

// CancelEscrow handles POST /v1/escrows/{id}/cancel.
func (h *EscrowHandler) CancelEscrow(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	escrowID, ok := escrowIDParam(w, r)
	if !ok {
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	escrow, err := h.svc.CancelEscrow(r.Context(), escrowID, actorID, req.Reason)
	if err != nil {
		if status, pType, msg, ok := mapDomainError(err); ok {
			RespondError(w, r, status, pType, msg)
			return
		}
		zap.L().Error("cancel escrow failed", zap.Error(err), zap.String("escrow_id", escrowID.String()))
		RespondError(w, r, http.StatusInternalServerError, "escrow/cancel-failed", "Failed to cancel escrow")
		return
	}
	RespondJSON(w, http.StatusOK, escrow)
}

// AdminCancelEscrow handles POST /v1/escrows/{id}/admin-cancel.
func (h *EscrowHandler) AdminCancelEscrow(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	escrowID, ok := escrowIDParam(w, r)
	if !ok {
		return
	}

	var req struct {
		Reason       string `json:"reason"`
		RefundPartyA bool   `json:"refund_party_a"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Reason) == "" {
		RespondError(w, r, http.StatusBadRequest, "request/missing-reason", "reason is required")
		return
	}

	escrow, err := h.svc.AdminCancelEscrow(r.Context(), escrowID, actorID, req.Reason, req.RefundPartyA)
	if err != nil {
		if status, pType, msg, ok := mapDomainError(err); ok {
			RespondError(w, r, status, pType, msg)
			return
		}
		zap.L().Error("admin cancel escrow failed", zap.Error(err), zap.String("escrow_id", escrowID.String()))
		RespondError(w, r, http.StatusInternalServerError, "escrow/admin-cancel-failed", "Failed to cancel escrow")
		return
	}
	RespondJSON(w, http.StatusOK, escrow)
}

// ForceCompleteEscrow handles POST /v1/escrows/{id}/force-complete.
func (h *EscrowHandler) ForceCompleteEscrow(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	escrowID, ok := escrowIDParam(w, r)
	if !ok {
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Reason) == "" {
		RespondError(w, r, http.StatusBadRequest, "request/missing-reason", "reason is required")
		return
	}

	escrow, err := h.svc.AdminForceComplete(r.Context(), escrowID, actorID, req.Reason)
	if err != nil {
		if status, pType, msg, ok := mapDomainError(err); ok {
			RespondError(w, r, status, pType, msg)
			return
		}
		zap.L().Error("force complete escrow failed", zap.Error(err), zap.String("escrow_id", escrowID.String()))
		RespondError(w, r, http.StatusInternalServerError, "escrow/force-complete-failed", "Failed to complete escrow")
		return
	}
	RespondJSON(w, http.StatusOK, escrow)
}

// AttachEvidence handles POST /v1/escrows/{id}/evidence.
func (h *EscrowHandler) AttachEvidence(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	escrowID, ok := escrowIDParam(w, r)
	if !ok {
		return
	}

	var req struct {
		Purpose       string   `json:"purpose"`
		AttachmentIDs []string `json:"attachment_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	if len(req.AttachmentIDs) == 0 {
		RespondError(w, r, http.StatusBadRequest, "request/missing-attachments", "attachment_ids is required")
		return
	}

	escrow, err := h.svc.AttachEvidence(r.Context(), escrowID, actorID, req.Purpose, req.AttachmentIDs)
	if err != nil {
		if status, pType, msg, ok := mapDomainError(err); ok {
			RespondError(w, r, status, pType, msg)
			return
		}
		zap.L().Error("attach evidence failed", zap.Error(err), zap.String("escrow_id", escrowID.String()))
		RespondError(w, r, http.StatusBadRequest, "escrow/evidence-failed", err.Error())
		return
	}
	RespondJSON(w, http.StatusOK, escrow)
}

// ListEscrowEvents handles GET /v1/escrows/{id}/events.
func (h *EscrowHandler) ListEscrowEvents(w http.ResponseWriter, r *http.Request) {
	escrowID, ok := escrowIDParam(w, r)
	if !ok {
		return
	}

	events, err := h.svc.GetEscrowEvents(r.Context(), escrowID)
	if err != nil {
		if status, pType, msg, ok := mapDomainError(err); ok {
			RespondError(w, r, status, pType, msg)
			return
		}
		zap.L().Error("list escrow events failed", zap.Error(err), zap.String("escrow_id", escrowID.String()))
		RespondError(w, r, http.StatusInternalServerError, "escrow/events-read-failed", "Failed to list events")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{
		"items": events,
		"count": len(events),
	})
}

func (h *EscrowHandler) transition(w http.ResponseWriter, r *http.Request, op string, fn func(escrowID, actorID uuid.UUID) (any, error)) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	escrowID, ok := escrowIDParam(w, r)
	if !ok {
		return
	}

	escrow, err := fn(escrowID, actorID)
	if err != nil {
		if status, pType, msg, ok := mapDomainError(err); ok {
			RespondError(w, r, status, pType, msg)
			return
		}
		zap.L().Error("escrow transition failed",
			zap.Error(err),
			zap.String("operation", op),
			zap.String("escrow_id", escrowID.String()))
		RespondError(w, r, http.StatusInternalServerError, "escrow/"+op+"-failed", "Failed to "+op+" escrow")
		return
	}
	RespondJSON(w, http.StatusOK, escrow)
}

func escrowIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	escrowID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-escrow-id", "Invalid escrow ID")
		return uuid.Nil, false
	}
	return escrowID, true
}

func parseOptionalUUID(s *string) (*uuid.UUID, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, nil
	}
	id, err := uuid.Parse(strings.TrimSpace(*s))
	if err != nil {
		return nil, err
	}
	return &id, nil
}
