package handler

import (
	"encoding/json"
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"payment-service/internal/middleware"
	"payment-service/internal/usecase"
)

type PaymentHandler struct {
	paymentUC *usecase.PaymentUsecase
	logger    *zap.Logger
}

func NewPaymentHandler(paymentUC *usecase.PaymentUsecase, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{paymentUC: paymentUC, logger: logger}
}

type createDepositRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// CreateDeposit opens a payment intent to fund the caller's wallet. The
// deposit completes asynchronously when the processor confirms the charge.
func (h *PaymentHandler) CreateDeposit(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		sendError(w, http.StatusUnauthorized, "authentication required", nil)
		return
	}

	var req createDepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	intent, err := h.paymentUC.CreateDeposit(r.Context(), p.ID, req.Amount)
	if err != nil {
		sendUsecaseError(w, err)
		return
	}
	sendSuccess(w, http.StatusCreated, "deposit intent created", intent)
}
