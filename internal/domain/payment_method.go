package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"payment-service/pkg/xerrors"
)

type PaymentMethodType string

const (
	MethodCard        PaymentMethodType = "card"
	MethodBankAccount PaymentMethodType = "bank_account"
	MethodStripe      PaymentMethodType = "stripe"
)

type PaymentMethodStatus string

const (
	MethodActive             PaymentMethodStatus = "active"
	MethodInactive           PaymentMethodStatus = "inactive"
	MethodPendingVerify      PaymentMethodStatus = "pending_verification"
	MethodVerificationFailed PaymentMethodStatus = "verification_failed"
)

// CardDetails is the cached processor view of a card instrument.
type CardDetails struct {
	Brand    string `json:"brand"`
	Last4    string `json:"last4"`
	ExpMonth int    `json:"exp_month"`
	ExpYear  int    `json:"exp_year"`
}

// BankAccountDetails is the cached view of a bank payout destination.
type BankAccountDetails struct {
	BankName      string `json:"bank_name"`
	Last4         string `json:"last4"`
	Country       string `json:"country"`
	HolderName    string `json:"holder_name"`
	RoutingNumber string `json:"routing_number,omitempty"`
}

// StripeAccountDetails is the cached view of a connected Stripe account used
// for freelancer payouts.
type StripeAccountDetails struct {
	AccountID      string `json:"account_id"`
	Country        string `json:"country"`
	PayoutsEnabled bool   `json:"payouts_enabled"`
}

// MethodDetails is a closed union over the known instrument shapes; exactly
// one branch is set, selected by the payment method type.
type MethodDetails struct {
	Card        *CardDetails          `json:"card,omitempty"`
	BankAccount *BankAccountDetails   `json:"bank_account,omitempty"`
	Stripe      *StripeAccountDetails `json:"stripe,omitempty"`
}

func (d MethodDetails) Validate(t PaymentMethodType) error {
	switch t {
	case MethodCard:
		if d.Card == nil {
			return fmt.Errorf("%w: card details required", xerrors.ErrInvalidRequest)
		}
	case MethodBankAccount:
		if d.BankAccount == nil {
			return fmt.Errorf("%w: bank account details required", xerrors.ErrInvalidRequest)
		}
	case MethodStripe:
		if d.Stripe == nil {
			return fmt.Errorf("%w: stripe account details required", xerrors.ErrInvalidRequest)
		}
	default:
		return fmt.Errorf("%w: unknown payment method type %q", xerrors.ErrInvalidRequest, t)
	}
	return nil
}

// Value serializes the details for jsonb storage.
func (d MethodDetails) Value() ([]byte, error) {
	return json.Marshal(d)
}

// PaymentMethod is one saved payout/funding instrument for a principal.
// At most one per user carries IsDefault.
type PaymentMethod struct {
	ID     string              `json:"id"`
	UserID string              `json:"user_id"`
	Type   PaymentMethodType   `json:"type"`
	Name   string              `json:"name"`
	Status PaymentMethodStatus `json:"status"`
	// ExternalID is the processor-side identifier of the instrument.
	ExternalID string        `json:"external_id,omitempty"`
	Details    MethodDetails `json:"details"`
	IsDefault  bool          `json:"is_default"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

func (m *PaymentMethod) Validate() error {
	if m.UserID == "" {
		return fmt.Errorf("%w: user id required", xerrors.ErrInvalidRequest)
	}
	if m.Name == "" {
		return fmt.Errorf("%w: name required", xerrors.ErrInvalidRequest)
	}
	return m.Details.Validate(m.Type)
}
