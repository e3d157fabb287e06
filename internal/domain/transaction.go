package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"payment-service/pkg/xerrors"
)

type TransactionType string

const (
	TxDeposit          TransactionType = "deposit"
	TxWithdrawal       TransactionType = "withdrawal"
	TxEscrowFunding    TransactionType = "escrow_funding"
	TxMilestonePayment TransactionType = "milestone_payment"
	TxRefund           TransactionType = "refund"
	TxPlatformFee      TransactionType = "platform_fee"
)

type TransactionStatus string

const (
	TxPending   TransactionStatus = "pending"
	TxCompleted TransactionStatus = "completed"
	TxFailed    TransactionStatus = "failed"
	TxCancelled TransactionStatus = "cancelled"
)

// IsTerminal reports whether no further status transitions are allowed.
func (s TransactionStatus) IsTerminal() bool {
	return s == TxCompleted || s == TxFailed || s == TxCancelled
}

// Transaction is an immutable record of one money movement. Wallet balances
// mutate exactly once, when a transaction first transitions into completed.
type Transaction struct {
	ID                  string            `json:"id"`
	UserID              string            `json:"user_id"`
	Type                TransactionType   `json:"type"`
	Status              TransactionStatus `json:"status"`
	Amount              decimal.Decimal   `json:"amount"`
	Fee                 decimal.Decimal   `json:"fee"`
	SourceWalletID      *string           `json:"source_wallet_id,omitempty"`
	DestinationWalletID *string           `json:"destination_wallet_id,omitempty"`
	EscrowID            *string           `json:"escrow_id,omitempty"`
	ProjectID           *string           `json:"project_id,omitempty"`
	MilestoneID         *string           `json:"milestone_id,omitempty"`
	Description         string            `json:"description,omitempty"`
	// Reference is the idempotency key: processor-side identifiers for
	// asynchronous flows, deterministic keys for internal flows such as
	// milestone releases. Unique when set.
	Reference     *string   `json:"external_reference,omitempty"`
	FailureReason string    `json:"failure_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (t *Transaction) Validate() error {
	if t.UserID == "" {
		return fmt.Errorf("%w: user id required", xerrors.ErrInvalidRequest)
	}
	if t.Amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: amount must be positive", xerrors.ErrInvalidRequest)
	}
	if t.Fee.IsNegative() {
		return fmt.Errorf("%w: fee must not be negative", xerrors.ErrInvalidRequest)
	}
	switch t.Type {
	case TxDeposit, TxMilestonePayment, TxRefund, TxPlatformFee:
		if t.DestinationWalletID == nil {
			return fmt.Errorf("%w: %s requires a destination wallet", xerrors.ErrInvalidRequest, t.Type)
		}
	case TxWithdrawal, TxEscrowFunding:
		if t.SourceWalletID == nil {
			return fmt.Errorf("%w: %s requires a source wallet", xerrors.ErrInvalidRequest, t.Type)
		}
	default:
		return fmt.Errorf("%w: unknown transaction type %q", xerrors.ErrInvalidRequest, t.Type)
	}
	return nil
}

// BalanceChange describes the delta one completed transaction applies to one
// wallet. FromPending settles reserved funds instead of drawing on the
// available balance.
type BalanceChange struct {
	WalletID    string
	Delta       decimal.Decimal // negative for debits
	FromPending bool
}

// BalanceChanges resolves the wallet deltas implied by the transaction type.
// Applied by the repository inside the same database transaction that flips
// the status to completed.
func (t *Transaction) BalanceChanges() ([]BalanceChange, error) {
	switch t.Type {
	case TxDeposit:
		return []BalanceChange{{WalletID: *t.DestinationWalletID, Delta: t.Amount}}, nil
	case TxEscrowFunding:
		return []BalanceChange{{WalletID: *t.SourceWalletID, Delta: t.Amount.Neg()}}, nil
	case TxWithdrawal:
		// Withdrawals reserve first, so completion settles the pending
		// balance rather than the available one.
		return []BalanceChange{{WalletID: *t.SourceWalletID, Delta: t.Amount.Neg(), FromPending: true}}, nil
	case TxMilestonePayment:
		return []BalanceChange{{WalletID: *t.DestinationWalletID, Delta: t.Amount.Sub(t.Fee)}}, nil
	case TxRefund:
		return []BalanceChange{{WalletID: *t.DestinationWalletID, Delta: t.Amount}}, nil
	case TxPlatformFee:
		return []BalanceChange{{WalletID: *t.DestinationWalletID, Delta: t.Amount}}, nil
	}
	return nil, fmt.Errorf("%w: unknown transaction type %q", xerrors.ErrInvalidRequest, t.Type)
}

// TransactionFilter narrows transaction listings. Zero values mean no filter.
type TransactionFilter struct {
	UserID    string
	Type      TransactionType
	Status    TransactionStatus
	ProjectID string
	EscrowID  string
	Reference string
	From      *time.Time
	To        *time.Time
	Page      int
	Limit     int
}

// Normalize applies listing defaults.
func (f *TransactionFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 || f.Limit > 100 {
		f.Limit = 10
	}
}
