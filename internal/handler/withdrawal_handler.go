package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"payment-service/internal/domain"
	"payment-service/internal/middleware"
	"payment-service/internal/usecase"
)

type WithdrawalHandler struct {
	withdrawalUC *usecase.WithdrawalUsecase
	logger       *zap.Logger
}

func NewWithdrawalHandler(withdrawalUC *usecase.WithdrawalUsecase, logger *zap.Logger) *WithdrawalHandler {
	return &WithdrawalHandler{withdrawalUC: withdrawalUC, logger: logger}
}

type createWithdrawalRequest struct {
	Amount          decimal.Decimal `json:"amount"`
	PaymentMethodID string          `json:"payment_method_id"`
}

func (h *WithdrawalHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		sendError(w, http.StatusUnauthorized, "authentication required", nil)
		return
	}

	var req createWithdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	withdrawal, err := h.withdrawalUC.Create(r.Context(), p.ID, req.Amount, req.PaymentMethodID)
	if err != nil {
		sendUsecaseError(w, err)
		return
	}
	sendSuccess(w, http.StatusCreated, "withdrawal created", withdrawal)
}

func (h *WithdrawalHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		sendError(w, http.StatusUnauthorized, "authentication required", nil)
		return
	}

	withdrawal, err := h.withdrawalUC.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		sendUsecaseError(w, err)
		return
	}
	if !p.IsAdmin() && withdrawal.UserID != p.ID {
		sendError(w, http.StatusForbidden, "forbidden", nil)
		return
	}
	sendSuccess(w, http.StatusOK, "withdrawal retrieved", withdrawal)
}

func (h *WithdrawalHandler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		sendError(w, http.StatusUnauthorized, "authentication required", nil)
		return
	}

	q := r.URL.Query()
	f := domain.WithdrawalFilter{
		Status: domain.WithdrawalStatus(q.Get("status")),
	}
	f.Page, _ = strconv.Atoi(q.Get("page"))
	f.Limit, _ = strconv.Atoi(q.Get("limit"))
	if from, err := time.Parse(time.RFC3339, q.Get("from")); err == nil {
		f.From = &from
	}
	if to, err := time.Parse(time.RFC3339, q.Get("to")); err == nil {
		f.To = &to
	}
	if p.IsAdmin() {
		f.UserID = q.Get("user_id")
	} else {
		f.UserID = p.ID
	}

	withdrawals, total, err := h.withdrawalUC.List(r.Context(), f)
	if err != nil {
		h.logger.Error("failed to list withdrawals", zap.Error(err))
		sendUsecaseError(w, err)
		return
	}
	f.Normalize()
	sendSuccess(w, http.StatusOK, "withdrawals retrieved", paginated(withdrawals, total, f.Page, f.Limit))
}

// Cancel aborts a pending withdrawal and returns the reserved funds.
func (h *WithdrawalHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		sendError(w, http.StatusUnauthorized, "authentication required", nil)
		return
	}

	withdrawal, err := h.withdrawalUC.Cancel(r.Context(), chi.URLParam(r, "id"), p.ID)
	if err != nil {
		sendUsecaseError(w, err)
		return
	}
	sendSuccess(w, http.StatusOK, "withdrawal cancelled", withdrawal)
}

// Process requests the payout from the processor. Admin only.
func (h *WithdrawalHandler) Process(w http.ResponseWriter, r *http.Request) {
	withdrawal, err := h.withdrawalUC.Process(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		sendUsecaseError(w, err)
		return
	}
	sendSuccess(w, http.StatusOK, "withdrawal processing", withdrawal)
}
