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

type WalletHandler struct {
	walletUC *usecase.WalletUsecase
	logger   *zap.Logger
}

func NewWalletHandler(walletUC *usecase.WalletUsecase, logger *zap.Logger) *WalletHandler {
	return &WalletHandler{walletUC: walletUC, logger: logger}
}

// GetMyWallet returns the caller's wallet, creating it on first use.
func (h *WalletHandler) GetMyWallet(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		sendError(w, http.StatusUnauthorized, "authentication required", nil)
		return
	}

	wallet, err := h.walletUC.GetOrCreate(r.Context(), p.ID)
	if err != nil {
		h.logger.Error("failed to load wallet", zap.String("user_id", p.ID), zap.Error(err))
		sendUsecaseError(w, err)
		return
	}
	sendSuccess(w, http.StatusOK, "wallet retrieved", wallet)
}

// GetWallet returns any wallet by id. Admin only.
func (h *WalletHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	wallet, err := h.walletUC.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		sendUsecaseError(w, err)
		return
	}
	sendSuccess(w, http.StatusOK, "wallet retrieved", wallet)
}

// GetPlatformWallet returns the fee-collection wallet. Admin only.
func (h *WalletHandler) GetPlatformWallet(w http.ResponseWriter, r *http.Request) {
	wallet, err := h.walletUC.GetPlatform(r.Context())
	if err != nil {
		h.logger.Error("failed to load platform wallet", zap.Error(err))
		sendUsecaseError(w, err)
		return
	}
	sendSuccess(w, http.StatusOK, "platform wallet retrieved", wallet)
}

type updateWalletStatusRequest struct {
	Status domain.WalletStatus `json:"status"`
}

// UpdateWalletStatus suspends, reactivates or closes a wallet. Admin only.
func (h *WalletHandler) UpdateWalletStatus(w http.ResponseWriter, r *http.Request) {
	var req updateWalletStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	wallet, err := h.walletUC.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		sendUsecaseError(w, err)
		return
	}
	sendSuccess(w, http.StatusOK, "wallet status updated", wallet)
}
