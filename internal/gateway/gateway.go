// Package gateway defines the capability interface the payment core requires
// from an external payment processor. Everything crossing this boundary is in
// the processor's minor-unit convention; the implementations are the single
// conversion point from the core's decimal amounts.
package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Event is one verified webhook notification from the processor. Data holds
// the raw event object for the handler of that event type to decode.
type Event struct {
	ID      string
	Type    string
	Created time.Time
	Data    json.RawMessage
}

type PaymentIntent struct {
	ID           string
	ClientSecret string
	Status       string
}

type Payout struct {
	ID     string
	Status string
}

type Refund struct {
	ID     string
	Status string
}

type ConnectedAccount struct {
	ID string
}

type Gateway interface {
	// CreatePaymentIntent opens a client-confirmable charge used to fund a
	// wallet deposit. Completion arrives asynchronously by webhook.
	CreatePaymentIntent(ctx context.Context, amount decimal.Decimal, currency string, metadata map[string]string) (*PaymentIntent, error)

	// CreatePayout disburses to the given processor-side destination
	// account. Metadata must carry enough to locate the local withdrawal
	// during reconciliation.
	CreatePayout(ctx context.Context, amount decimal.Decimal, currency, destination string, metadata map[string]string) (*Payout, error)

	CreateConnectedAccount(ctx context.Context, email, country string) (*ConnectedAccount, error)

	CreateRefund(ctx context.Context, paymentIntentID string, amount decimal.Decimal, metadata map[string]string) (*Refund, error)

	// VerifyWebhookSignature authenticates a raw webhook payload against
	// the configured secret and returns the decoded event.
	VerifyWebhookSignature(payload []byte, signatureHeader string) (*Event, error)
}
