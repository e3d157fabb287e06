package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"payment-service/config"
	"payment-service/internal/gateway"
	"payment-service/pkg/xerrors"
)

const baseURL = "https://api.stripe.com/v1"

// Client talks to the Stripe HTTP API directly: form-encoded requests with
// bearer auth, the same shape as every other provider integration here.
type Client struct {
	cfg        config.StripeConfig
	production bool
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(cfg config.StripeConfig, production bool, logger *zap.Logger) *Client {
	return &Client{
		cfg:        cfg,
		production: production,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// minorUnits converts a decimal amount to the processor's smallest currency
// unit. The one place in the core where this conversion happens.
func minorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func (c *Client) CreatePaymentIntent(ctx context.Context, amount decimal.Decimal, currency string, metadata map[string]string) (*gateway.PaymentIntent, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(minorUnits(amount), 10))
	form.Set("currency", currency)
	form.Set("automatic_payment_methods[enabled]", "true")
	addMetadata(form, metadata)

	var resp struct {
		ID           string `json:"id"`
		ClientSecret string `json:"client_secret"`
		Status       string `json:"status"`
	}
	if err := c.do(ctx, "POST", "/payment_intents", form, "", &resp); err != nil {
		return nil, err
	}
	return &gateway.PaymentIntent{ID: resp.ID, ClientSecret: resp.ClientSecret, Status: resp.Status}, nil
}

func (c *Client) CreatePayout(ctx context.Context, amount decimal.Decimal, currency, destination string, metadata map[string]string) (*gateway.Payout, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(minorUnits(amount), 10))
	form.Set("currency", currency)
	addMetadata(form, metadata)

	var resp struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	// Payouts run on the connected account that receives the funds.
	if err := c.do(ctx, "POST", "/payouts", form, destination, &resp); err != nil {
		return nil, err
	}
	return &gateway.Payout{ID: resp.ID, Status: resp.Status}, nil
}

func (c *Client) CreateConnectedAccount(ctx context.Context, email, country string) (*gateway.ConnectedAccount, error) {
	form := url.Values{}
	form.Set("type", "express")
	form.Set("email", email)
	form.Set("country", country)
	form.Set("capabilities[transfers][requested]", "true")

	var resp struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, "POST", "/accounts", form, "", &resp); err != nil {
		return nil, err
	}
	return &gateway.ConnectedAccount{ID: resp.ID}, nil
}

func (c *Client) CreateRefund(ctx context.Context, paymentIntentID string, amount decimal.Decimal, metadata map[string]string) (*gateway.Refund, error) {
	form := url.Values{}
	form.Set("payment_intent", paymentIntentID)
	if amount.IsPositive() {
		form.Set("amount", strconv.FormatInt(minorUnits(amount), 10))
	}
	addMetadata(form, metadata)

	var resp struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := c.do(ctx, "POST", "/refunds", form, "", &resp); err != nil {
		return nil, err
	}
	return &gateway.Refund{ID: resp.ID, Status: resp.Status}, nil
}

func addMetadata(form url.Values, metadata map[string]string) {
	for k, v := range metadata {
		form.Set(fmt.Sprintf("metadata[%s]", k), v)
	}
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values, stripeAccount string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build stripe request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.SecretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if stripeAccount != "" {
		req.Header.Set("Stripe-Account", stripeAccount)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("stripe request failed: %v: %w", err, xerrors.ErrProcessor)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read stripe response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error struct {
				Type    string `json:"type"`
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.Unmarshal(body, &apiErr)
		c.logger.Error("stripe api error",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("code", apiErr.Error.Code),
			zap.String("message", apiErr.Error.Message))
		return fmt.Errorf("stripe %s (%d) %s: %w", path, resp.StatusCode, apiErr.Error.Message, xerrors.ErrProcessor)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode stripe response: %w", err)
	}
	return nil
}
