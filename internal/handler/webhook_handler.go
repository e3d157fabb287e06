package handler

import (
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"payment-service/internal/usecase"
	"payment-service/pkg/xerrors"
)

type WebhookHandler struct {
	webhookUC *usecase.WebhookUsecase
	logger    *zap.Logger
}

func NewWebhookHandler(webhookUC *usecase.WebhookUsecase, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{webhookUC: webhookUC, logger: logger}
}

// HandleStripeWebhook receives raw processor events. Only an unverifiable or
// undecodable delivery gets a non-2xx; errors inside a recognized event type
// are acknowledged so the processor does not retry-storm, and the event stays
// eligible for a fresh attempt on redelivery.
func (h *WebhookHandler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		h.logger.Error("failed to read webhook body", zap.Error(err))
		sendError(w, http.StatusBadRequest, "failed to read request body", err)
		return
	}

	err = h.webhookUC.HandleEvent(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, xerrors.ErrSignatureVerification) {
			h.logger.Warn("webhook signature rejected", zap.Error(err))
		} else {
			h.logger.Warn("webhook payload rejected", zap.Error(err))
		}
		sendError(w, http.StatusBadRequest, "webhook rejected", err)
		return
	}
	sendSuccess(w, http.StatusOK, "event processed", nil)
}
