package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"payment-service/pkg/xerrors"
)

func sendSuccess(w http.ResponseWriter, statusCode int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"message": message,
		"data":    data,
	})
}

func sendError(w http.ResponseWriter, statusCode int, message string, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := map[string]any{
		"success": false,
		"message": message,
	}
	if err != nil {
		response["error"] = err.Error()
	}
	_ = json.NewEncoder(w).Encode(response)
}

// sendUsecaseError maps domain errors onto HTTP statuses.
func sendUsecaseError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, xerrors.ErrInvalidRequest),
		errors.Is(err, xerrors.ErrAmountBelowMinimum),
		errors.Is(err, xerrors.ErrSignatureVerification):
		sendError(w, http.StatusBadRequest, "invalid request", err)
	case errors.Is(err, xerrors.ErrUnauthorized):
		sendError(w, http.StatusUnauthorized, "unauthorized", err)
	case errors.Is(err, xerrors.ErrForbidden):
		sendError(w, http.StatusForbidden, "forbidden", err)
	case errors.Is(err, xerrors.ErrNotFound),
		errors.Is(err, xerrors.ErrMilestoneNotFound):
		sendError(w, http.StatusNotFound, "not found", err)
	case errors.Is(err, xerrors.ErrInsufficientFunds),
		errors.Is(err, xerrors.ErrWalletNotActive),
		errors.Is(err, xerrors.ErrInvalidStateTransition),
		errors.Is(err, xerrors.ErrEscrowNotFunded),
		errors.Is(err, xerrors.ErrEscrowAlreadyFunded),
		errors.Is(err, xerrors.ErrMilestoneAlreadyApproved),
		errors.Is(err, xerrors.ErrDuplicateReference):
		sendError(w, http.StatusConflict, "conflict", err)
	case errors.Is(err, xerrors.ErrProcessor):
		sendError(w, http.StatusBadGateway, "payment processor error", err)
	default:
		sendError(w, http.StatusInternalServerError, "internal server error", nil)
	}
}

// paginated wraps list results with paging information.
func paginated(items any, total, page, limit int) map[string]any {
	return map[string]any{
		"items": items,
		"total": total,
		"page":  page,
		"limit": limit,
	}
}
