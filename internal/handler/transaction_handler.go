package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"payment-service/internal/domain"
	"payment-service/internal/middleware"
	"payment-service/internal/usecase"
)

type TransactionHandler struct {
	txUC   *usecase.TransactionUsecase
	logger *zap.Logger
}

func NewTransactionHandler(txUC *usecase.TransactionUsecase, logger *zap.Logger) *TransactionHandler {
	return &TransactionHandler{txUC: txUC, logger: logger}
}

// List returns the caller's transaction history. Admins may list across
// users by passing user_id, or omit it for everything.
func (h *TransactionHandler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		sendError(w, http.StatusUnauthorized, "authentication required", nil)
		return
	}

	f := filterFromQuery(r)
	if p.IsAdmin() {
		f.UserID = r.URL.Query().Get("user_id")
	} else {
		f.UserID = p.ID
	}

	txs, total, err := h.txUC.List(r.Context(), f)
	if err != nil {
		h.logger.Error("failed to list transactions", zap.Error(err))
		sendUsecaseError(w, err)
		return
	}
	f.Normalize()
	sendSuccess(w, http.StatusOK, "transactions retrieved", paginated(txs, total, f.Page, f.Limit))
}

// Get returns one transaction. Owners see their own; admins see any.
func (h *TransactionHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		sendError(w, http.StatusUnauthorized, "authentication required", nil)
		return
	}

	tx, err := h.txUC.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		sendUsecaseError(w, err)
		return
	}
	if !p.IsAdmin() && tx.UserID != p.ID {
		sendError(w, http.StatusForbidden, "forbidden", nil)
		return
	}
	sendSuccess(w, http.StatusOK, "transaction retrieved", tx)
}

func filterFromQuery(r *http.Request) domain.TransactionFilter {
	q := r.URL.Query()
	f := domain.TransactionFilter{
		Type:      domain.TransactionType(q.Get("type")),
		Status:    domain.TransactionStatus(q.Get("status")),
		ProjectID: q.Get("project_id"),
		EscrowID:  q.Get("escrow_id"),
	}
	f.Page, _ = strconv.Atoi(q.Get("page"))
	f.Limit, _ = strconv.Atoi(q.Get("limit"))
	if from, err := time.Parse(time.RFC3339, q.Get("from")); err == nil {
		f.From = &from
	}
	if to, err := time.Parse(time.RFC3339, q.Get("to")); err == nil {
		f.To = &to
	}
	return f
}
