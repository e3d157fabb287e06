package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"payment-service/config"
	"payment-service/internal/gateway"
	"payment-service/internal/handler"
	"payment-service/internal/middleware"
	"payment-service/internal/repository/memory"
	"payment-service/internal/usecase"
)

const testJWTSecret = "router-test-secret"

// stubGateway answers processor calls locally so no request leaves the test.
type stubGateway struct {
	intents int
	payouts int
}

func (s *stubGateway) CreatePaymentIntent(ctx context.Context, amount decimal.Decimal, currency string, metadata map[string]string) (*gateway.PaymentIntent, error) {
	s.intents++
	return &gateway.PaymentIntent{
		ID:           fmt.Sprintf("pi_router_%d", s.intents),
		ClientSecret: "cs_router_secret",
		Status:       "requires_payment_method",
	}, nil
}

func (s *stubGateway) CreatePayout(ctx context.Context, amount decimal.Decimal, currency, destination string, metadata map[string]string) (*gateway.Payout, error) {
	s.payouts++
	return &gateway.Payout{ID: fmt.Sprintf("po_router_%d", s.payouts), Status: "pending"}, nil
}

func (s *stubGateway) CreateConnectedAccount(ctx context.Context, email, country string) (*gateway.ConnectedAccount, error) {
	return &gateway.ConnectedAccount{ID: "acct_router_1"}, nil
}

func (s *stubGateway) CreateRefund(ctx context.Context, paymentIntentID string, amount decimal.Decimal, metadata map[string]string) (*gateway.Refund, error) {
	return &gateway.Refund{ID: "re_router_1", Status: "succeeded"}, nil
}

func (s *stubGateway) VerifyWebhookSignature(payload []byte, signatureHeader string) (*gateway.Event, error) {
	var raw struct {
		ID      string `json:"id"`
		Type    string `json:"type"`
		Created int64  `json:"created"`
		Data    struct {
			Object json.RawMessage `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, err
	}
	return &gateway.Event{
		ID:      raw.ID,
		Type:    raw.Type,
		Created: time.Unix(raw.Created, 0),
		Data:    raw.Data.Object,
	}, nil
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := zap.NewNop()
	store := memory.NewStore()
	gw := &stubGateway{}

	fees := config.FeeConfig{
		PlatformFeePercent:   decimal.NewFromInt(10),
		WithdrawalFeePercent: decimal.RequireFromString("2.5"),
		MinimumWithdrawal:    decimal.NewFromInt(50),
	}

	walletUC := usecase.NewWalletUsecase(store.Wallets(), logger)
	txUC := usecase.NewTransactionUsecase(store.Transactions(), nil, nil, logger)
	escrowUC := usecase.NewEscrowUsecase(store.Escrows(), store.Wallets(), txUC, nil, nil, fees, logger)
	withdrawalUC := usecase.NewWithdrawalUsecase(
		store.Withdrawals(), store.Wallets(), store.PaymentMethods(), txUC, gw, nil, fees, "usd", logger)
	paymentUC := usecase.NewPaymentUsecase(store.Wallets(), txUC, gw, "usd", logger)
	methodUC := usecase.NewPaymentMethodUsecase(store.PaymentMethods(), gw, logger)
	webhookUC := usecase.NewWebhookUsecase(gw, txUC, withdrawalUC, store.PaymentMethods(), nil, logger)

	h := Handlers{
		Wallet:        handler.NewWalletHandler(walletUC, logger),
		Transaction:   handler.NewTransactionHandler(txUC, logger),
		Escrow:        handler.NewEscrowHandler(escrowUC, logger),
		Withdrawal:    handler.NewWithdrawalHandler(withdrawalUC, logger),
		PaymentMethod: handler.NewPaymentMethodHandler(methodUC, logger),
		Payment:       handler.NewPaymentHandler(paymentUC, logger),
		Webhook:       handler.NewWebhookHandler(webhookUC, logger),
	}
	return SetupRoutes(h, middleware.NewAuthMiddleware(testJWTSecret, logger), logger)
}

func mintToken(t *testing.T, userID, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  userID,
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return signed
}

func doJSON(t *testing.T, r http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.True(t, envelope.Success, "body: %s", rec.Body.String())
	require.NoError(t, json.Unmarshal(envelope.Data, out))
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	r := newTestRouter(t)

	rec := doJSON(t, r, http.MethodGet, "/api/v1/payments/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, r, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRequired(t *testing.T) {
	r := newTestRouter(t)

	rec := doJSON(t, r, http.MethodGet, "/api/v1/wallets/me", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, r, http.MethodGet, "/api/v1/wallets/me", "not-a-jwt", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminRoutesRejectRegularUsers(t *testing.T) {
	r := newTestRouter(t)
	user := mintToken(t, "user-1", "user")

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/wallets/platform"},
		{http.MethodGet, "/api/v1/wallets/some-id"},
		{http.MethodPost, "/api/v1/withdrawals/some-id/process"},
		{http.MethodPost, "/api/v1/escrows/some-id/refund"},
	} {
		rec := doJSON(t, r, route.method, route.path, user, nil)
		require.Equal(t, http.StatusForbidden, rec.Code, "%s %s", route.method, route.path)
	}

	admin := mintToken(t, "admin-1", "admin")
	rec := doJSON(t, r, http.MethodGet, "/api/v1/wallets/platform", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestDepositWebhookRoundTrip(t *testing.T) {
	r := newTestRouter(t)
	user := mintToken(t, "user-1", "user")

	rec := doJSON(t, r, http.MethodPost, "/api/v1/deposits", user, map[string]any{"amount": "100"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var intent struct {
		TransactionID string `json:"transaction_id"`
		IntentID      string `json:"intent_id"`
		ClientSecret  string `json:"client_secret"`
	}
	decodeData(t, rec, &intent)
	require.NotEmpty(t, intent.IntentID)
	require.NotEmpty(t, intent.ClientSecret)

	// Wallet exists but nothing is spendable until the processor confirms.
	var wallet struct {
		Balance          decimal.Decimal `json:"balance"`
		AvailableBalance decimal.Decimal `json:"available_balance"`
	}
	rec = doJSON(t, r, http.MethodGet, "/api/v1/wallets/me", user, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &wallet)
	require.True(t, wallet.AvailableBalance.IsZero())

	event := map[string]any{
		"id":      "evt_router_1",
		"type":    "payment_intent.succeeded",
		"created": time.Now().Unix(),
		"data":    map[string]any{"object": map[string]any{"id": intent.IntentID}},
	}
	rec = doJSON(t, r, http.MethodPost, "/api/v1/webhooks/stripe", "", event)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, r, http.MethodGet, "/api/v1/wallets/me", user, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &wallet)
	require.True(t, wallet.AvailableBalance.Equal(decimal.NewFromInt(100)),
		"available: %s", wallet.AvailableBalance)

	// The settled deposit shows up in the caller's history.
	var page struct {
		Total int `json:"total"`
	}
	rec = doJSON(t, r, http.MethodGet, "/api/v1/transactions/", user, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &page)
	require.Equal(t, 1, page.Total)
}

func TestEscrowEndpointsValidateInput(t *testing.T) {
	r := newTestRouter(t)
	client := mintToken(t, "client-1", "user")

	rec := doJSON(t, r, http.MethodPost, "/api/v1/escrows/", client, map[string]any{
		"project_id":    "project-1",
		"freelancer_id": "client-1",
		"total_amount":  "1000",
		"milestones": []map[string]any{
			{"title": "All work", "amount": "1000"},
		},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
}
