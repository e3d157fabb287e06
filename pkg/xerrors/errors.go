package xerrors

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Generic
var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrInternalServer = errors.New("internal server error")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrNotFound       = errors.New("not found")
)

// Wallet / ledger
var (
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrWalletNotActive        = errors.New("wallet is not active")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrDuplicateReference     = errors.New("duplicate transaction reference")
)

// Escrow
var (
	ErrEscrowNotFunded          = errors.New("escrow is not funded")
	ErrEscrowAlreadyFunded      = errors.New("escrow is already funded")
	ErrMilestoneNotFound        = errors.New("milestone not found")
	ErrMilestoneAlreadyApproved = errors.New("milestone is already approved")
)

// Withdrawal
var (
	ErrAmountBelowMinimum = errors.New("amount is below the minimum withdrawal")
)

// Gateway / webhooks
var (
	ErrProcessor             = errors.New("payment processor error")
	ErrSignatureVerification = errors.New("webhook signature verification failed")
)

// ParsePGErrorCode extracts the postgres error code, e.g. 23505 for
// unique_violation.
func ParsePGErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return "unknown"
}

// IsUniqueViolation reports whether err is a postgres unique_violation.
func IsUniqueViolation(err error) bool {
	return ParsePGErrorCode(err) == "23505"
}
