package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type WithdrawalStatus string

const (
	WithdrawalPending    WithdrawalStatus = "pending"
	WithdrawalProcessing WithdrawalStatus = "processing"
	WithdrawalCompleted  WithdrawalStatus = "completed"
	WithdrawalFailed     WithdrawalStatus = "failed"
	WithdrawalCancelled  WithdrawalStatus = "cancelled"
)

// Withdrawal tracks one payout request through its processing state machine.
// The requested amount sits in the wallet's pending balance from creation
// until the payout settles one way or the other.
type Withdrawal struct {
	ID              string           `json:"id"`
	UserID          string           `json:"user_id"`
	Amount          decimal.Decimal  `json:"amount"`
	Fee             decimal.Decimal  `json:"fee"`
	NetAmount       decimal.Decimal  `json:"net_amount"`
	Status          WithdrawalStatus `json:"status"`
	PaymentMethodID string           `json:"payment_method_id"`
	TransactionID   *string          `json:"transaction_id,omitempty"`
	// ExternalReference is the processor-side payout identifier, set once
	// disbursement has been requested.
	ExternalReference *string    `json:"external_reference,omitempty"`
	RejectionReason   string     `json:"rejection_reason,omitempty"`
	ProcessedAt       *time.Time `json:"processed_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// WithdrawalFee computes the fee retained from a withdrawal at the given
// percentage.
func WithdrawalFee(amount decimal.Decimal, percent decimal.Decimal) decimal.Decimal {
	return amount.Mul(percent).Div(decimal.NewFromInt(100)).Round(2)
}

// WithdrawalFilter narrows withdrawal listings. Zero values mean no filter.
type WithdrawalFilter struct {
	UserID string
	Status WithdrawalStatus
	From   *time.Time
	To     *time.Time
	Page   int
	Limit  int
}

func (f *WithdrawalFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 || f.Limit > 100 {
		f.Limit = 10
	}
}
