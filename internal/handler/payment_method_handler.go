package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"payment-service/internal/domain"
	"payment-service/internal/middleware"
	"payment-service/internal/usecase"
)

type PaymentMethodHandler struct {
	methodUC *usecase.PaymentMethodUsecase
	logger   *zap.Logger
}

func NewPaymentMethodHandler(methodUC *usecase.PaymentMethodUsecase, logger *zap.Logger) *PaymentMethodHandler {
	return &PaymentMethodHandler{methodUC: methodUC, logger: logger}
}

type addPaymentMethodRequest struct {
	Type    domain.PaymentMethodType `json:"type"`
	Name    string                   `json:"name"`
	Email   string                   `json:"email"`
	Details domain.MethodDetails     `json:"details"`
}

func (h *PaymentMethodHandler) Add(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		sendError(w, http.StatusUnauthorized, "authentication required", nil)
		return
	}

	var req addPaymentMethodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	method, err := h.methodUC.Add(r.Context(), usecase.AddParams{
		UserID:  p.ID,
		Type:    req.Type,
		Name:    req.Name,
		Email:   req.Email,
		Details: req.Details,
	})
	if err != nil {
		sendUsecaseError(w, err)
		return
	}
	sendSuccess(w, http.StatusCreated, "payment method added", method)
}

func (h *PaymentMethodHandler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		sendError(w, http.StatusUnauthorized, "authentication required", nil)
		return
	}

	methods, err := h.methodUC.ListByUser(r.Context(), p.ID)
	if err != nil {
		h.logger.Error("failed to list payment methods", zap.Error(err))
		sendUsecaseError(w, err)
		return
	}
	sendSuccess(w, http.StatusOK, "payment methods retrieved", methods)
}

func (h *PaymentMethodHandler) SetDefault(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		sendError(w, http.StatusUnauthorized, "authentication required", nil)
		return
	}

	method, err := h.methodUC.SetDefault(r.Context(), p.ID, chi.URLParam(r, "id"))
	if err != nil {
		sendUsecaseError(w, err)
		return
	}
	sendSuccess(w, http.StatusOK, "default payment method set", method)
}

func (h *PaymentMethodHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		sendError(w, http.StatusUnauthorized, "authentication required", nil)
		return
	}

	method, err := h.methodUC.Deactivate(r.Context(), p.ID, chi.URLParam(r, "id"))
	if err != nil {
		sendUsecaseError(w, err)
		return
	}
	sendSuccess(w, http.StatusOK, "payment method deactivated", method)
}
