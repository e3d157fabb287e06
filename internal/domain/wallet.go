package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type WalletStatus string

const (
	WalletActive    WalletStatus = "active"
	WalletSuspended WalletStatus = "suspended"
	WalletClosed    WalletStatus = "closed"
)

type WalletType string

const (
	WalletTypeUser     WalletType = "user"
	WalletTypePlatform WalletType = "platform"
)

// PlatformUserID is the reserved principal that owns the fee-collection
// wallet.
const PlatformUserID = "platform"

// Wallet holds the balance record for a single principal. The invariant
// Balance == AvailableBalance + PendingBalance holds at all times; every
// mutation goes through the repository so there is one enforcement point.
type Wallet struct {
	ID               string          `json:"id"`
	UserID           string          `json:"user_id"`
	Type             WalletType      `json:"type"`
	Balance          decimal.Decimal `json:"balance"`
	AvailableBalance decimal.Decimal `json:"available_balance"`
	PendingBalance   decimal.Decimal `json:"pending_balance"`
	Status           WalletStatus    `json:"status"`
	Currency         string          `json:"currency"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// CheckInvariant verifies Balance == AvailableBalance + PendingBalance.
func (w *Wallet) CheckInvariant() bool {
	return w.Balance.Equal(w.AvailableBalance.Add(w.PendingBalance))
}

// CanTransitionTo reports whether the wallet status change is allowed.
// Closed is terminal.
func (w *Wallet) CanTransitionTo(next WalletStatus) bool {
	if w.Status == WalletClosed {
		return false
	}
	switch next {
	case WalletActive, WalletSuspended, WalletClosed:
		return next != w.Status
	}
	return false
}
