package handler

import (
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/oregpt/escrowservice-sub000/internal/service"
)

// WebhookHandler handles incoming webhook events from external systems.
type WebhookHandler struct {
	webhookSvc *service.WebhookService
}

func NewWebhookHandler(webhookSvc *service.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhookSvc: webhookSvc}
}

// HandleDepositWebhook handles POST /v1/webhooks/deposit.
// It verifies the HMAC signature and credits the deposit.
func (h *WebhookHandler) HandleDepositWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		zap.L().Error("read webhook body failed", zap.Error(err))
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Failed to read request body")
		return
	}

	signature := r.Header.Get("X-Webhook-Signature")

	resp, err := h.webhookSvc.HandleDepositWebhook(r.Context(), body, signature)
	if err != nil {
		if errors.Is(err, service.ErrInvalidSignature) {
			RespondError(w, r, http.StatusUnauthorized, "webhook/invalid-signature", "Invalid signature")
			return
		}
		if errors.Is(err, service.ErrDepositPayloadMismatch) {
			RespondError(w, r, http.StatusConflict, "webhook/reference-conflict", err.Error())
			return
		}
		zap.L().Error("process deposit webhook failed", zap.Error(err))
		RespondError(w, r, http.StatusBadRequest, "webhook/deposit-failed", err.Error())
		return
	}

	RespondJSON(w, http.StatusOK, resp)
}
