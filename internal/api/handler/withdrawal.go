package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/oregpt/escrowservice-sub000/internal/service"
)

// WithdrawalHandler handles HTTP requests for external withdrawals.
type WithdrawalHandler struct {
	svc *service.WithdrawalService
}

func NewWithdrawalHandler(svc *service.WithdrawalService) *WithdrawalHandler {
	return &WithdrawalHandler{svc: svc}
}

// CreateWithdrawalRequest is the request body for queuing a withdrawal.
type CreateWithdrawalRequest struct {
	AccountID    string                             `json:"account_id"`
	AmountMicros int64                              `json:"amount_micros"`
	Currency     string                             `json:"currency"`
	Destination  service.WithdrawalDestinationInput `json:"destination"`
}

// CreateWithdrawal handles POST /v1/withdrawals and returns 202 Accepted.
func (h *WithdrawalHandler) CreateWithdrawal(w http.ResponseWriter, r *http.Request) {
	idempotencyKey := r.Header.Get("Idempotency-Key")
	if idempotencyKey == "" {
		RespondError(w, r, http.StatusBadRequest, "idempotency/missing-key", "Idempotency-Key header is required")
		return
	}

	var req CreateWithdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	if req.AmountMicros <= 0 {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-amount", "Amount must be greater than zero")
		return
	}
	accountID, err := uuid.Parse(req.AccountID)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-account-id", "Invalid account_id")
		return
	}
	if err := req.Destination.Validate(); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-destination", err.Error())
		return
	}

	resp, err := h.svc.RequestWithdrawal(r.Context(), service.RequestWithdrawalRequest{
		AccountID:    accountID,
		AmountMicros: req.AmountMicros,
		Currency:     strings.ToUpper(strings.TrimSpace(req.Currency)),
		Destination:  req.Destination,
		ReferenceID:  idempotencyKey,
	})
	if err != nil {
		if status, pType, msg, ok := mapDomainError(err); ok {
			RespondError(w, r, status, pType, msg)
			return
		}
		zap.L().Error("create withdrawal failed", zap.Error(err))
		RespondError(w, r, http.StatusBadRequest, "withdrawal/create-failed", err.Error())
		return
	}

	RespondJSON(w, http.StatusAccepted, resp)
}

// GetWithdrawal handles GET /v1/withdrawals/{reference}.
func (h *WithdrawalHandler) GetWithdrawal(w http.ResponseWriter, r *http.Request) {
	reference := strings.TrimSpace(chi.URLParam(r, "reference"))
	if reference == "" {
		RespondError(w, r, http.StatusBadRequest, "request/missing-reference", "reference is required")
		return
	}

	withdrawal, err := h.svc.GetWithdrawal(r.Context(), reference)
	if err != nil {
		if status, pType, msg, ok := mapDomainError(err); ok {
			RespondError(w, r, status, pType, msg)
			return
		}
		zap.L().Error("get withdrawal failed", zap.Error(err), zap.String("reference", reference))
		RespondError(w, r, http.StatusInternalServerError, "withdrawal/read-failed", "Failed to get withdrawal")
		return
	}
	RespondJSON(w, http.StatusOK, withdrawal)
}
