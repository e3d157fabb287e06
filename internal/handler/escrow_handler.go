package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"payment-service/internal/domain"
	"payment-service/internal/middleware"
	"payment-service/internal/usecase"
)

type EscrowHandler struct {
	escrowUC *usecase.EscrowUsecase
	logger   *zap.Logger
}

func NewEscrowHandler(escrowUC *usecase.EscrowUsecase, logger *zap.Logger) *EscrowHandler {
	return &EscrowHandler{escrowUC: escrowUC, logger: logger}
}

type createEscrowRequest struct {
	ProjectID    string `json:"project_id"`
	FreelancerID string `json:"freelancer_id"`
	Milestones   []struct {
		Title   string          `json:"title"`
		Amount  decimal.Decimal `json:"amount"`
		DueDate *time.Time      `json:"due_date"`
	} `json:"milestones"`
}

// Create opens an escrow for a project. The caller becomes the client side.
func (h *EscrowHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		sendError(w, http.StatusUnauthorized, "authentication required", nil)
		return
	}

	var req createEscrowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	total := decimal.Zero
	milestones := make([]domain.Milestone, 0, len(req.Milestones))
	for _, m := range req.Milestones {
		total = total.Add(m.Amount)
		milestones = append(milestones, domain.Milestone{
			Title:   m.Title,
			Amount:  m.Amount,
			DueDate: m.DueDate,
		})
	}

	escrow, err := h.escrowUC.Create(r.Context(), &domain.Escrow{
		ProjectID:    req.ProjectID,
		ClientID:     p.ID,
		FreelancerID: req.FreelancerID,
		TotalAmount:  total,
		Milestones:   milestones,
	})
	if err != nil {
		sendUsecaseError(w, err)
		return
	}
	sendSuccess(w, http.StatusCreated, "escrow created", escrow)
}

func (h *EscrowHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		sendError(w, http.StatusUnauthorized, "authentication required", nil)
		return
	}

	escrow, err := h.escrowUC.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		sendUsecaseError(w, err)
		return
	}
	if !p.IsAdmin() && p.ID != escrow.ClientID && p.ID != escrow.FreelancerID {
		sendError(w, http.StatusForbidden, "forbidden", nil)
		return
	}
	sendSuccess(w, http.StatusOK, "escrow retrieved", escrow)
}

func (h *EscrowHandler) ListByProject(w http.ResponseWriter, r *http.Request) {
	escrows, err := h.escrowUC.ListByProject(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		sendUsecaseError(w, err)
		return
	}
	sendSuccess(w, http.StatusOK, "escrows retrieved", escrows)
}

type fundEscrowRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// Fund moves money from the caller's wallet into the escrow. Omitting the
// amount funds the remaining balance in one go.
func (h *EscrowHandler) Fund(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		sendError(w, http.StatusUnauthorized, "authentication required", nil)
		return
	}

	var req fundEscrowRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			sendError(w, http.StatusBadRequest, "invalid request body", err)
			return
		}
	}

	escrow, err := h.escrowUC.Fund(r.Context(), chi.URLParam(r, "id"), p.ID, req.Amount)
	if err != nil {
		sendUsecaseError(w, err)
		return
	}
	sendSuccess(w, http.StatusOK, "escrow funded", escrow)
}

// ReleaseMilestone approves a milestone and pays the freelancer.
func (h *EscrowHandler) ReleaseMilestone(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		sendError(w, http.StatusUnauthorized, "authentication required", nil)
		return
	}

	escrow, payment, err := h.escrowUC.ReleaseMilestone(
		r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "milestoneID"), p.ID, p.IsAdmin())
	if err != nil {
		sendUsecaseError(w, err)
		return
	}
	sendSuccess(w, http.StatusOK, "milestone released", map[string]any{
		"escrow":      escrow,
		"transaction": payment,
	})
}

// Refund returns the unreleased balance to the client. Admin only.
func (h *EscrowHandler) Refund(w http.ResponseWriter, r *http.Request) {
	escrow, err := h.escrowUC.Refund(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		sendUsecaseError(w, err)
		return
	}
	sendSuccess(w, http.StatusOK, "escrow refunded", escrow)
}

// Dispute freezes the escrow. Admin only.
func (h *EscrowHandler) Dispute(w http.ResponseWriter, r *http.Request) {
	escrow, err := h.escrowUC.Dispute(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		sendUsecaseError(w, err)
		return
	}
	sendSuccess(w, http.StatusOK, "escrow disputed", escrow)
}
