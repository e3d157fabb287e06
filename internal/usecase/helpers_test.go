package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"payment-service/config"
	"payment-service/internal/domain"
	"payment-service/internal/gateway"
	"payment-service/internal/repository/memory"
)

var testFees = config.FeeConfig{
	PlatformFeePercent:   decimal.NewFromInt(10),
	WithdrawalFeePercent: decimal.RequireFromString("2.5"),
	MinimumWithdrawal:    decimal.NewFromInt(50),
}

// fakeGateway scripts processor behavior for tests. Webhook payloads skip
// signature verification and decode directly.
type fakeGateway struct {
	payoutErr    error
	payoutStatus string
	intentErr    error

	payoutCalls int
	intentCalls int
}

func (f *fakeGateway) CreatePaymentIntent(ctx context.Context, amount decimal.Decimal, currency string, metadata map[string]string) (*gateway.PaymentIntent, error) {
	f.intentCalls++
	if f.intentErr != nil {
		return nil, f.intentErr
	}
	return &gateway.PaymentIntent{
		ID:           fmt.Sprintf("pi_test_%d", f.intentCalls),
		ClientSecret: "cs_test_secret",
		Status:       "requires_payment_method",
	}, nil
}

func (f *fakeGateway) CreatePayout(ctx context.Context, amount decimal.Decimal, currency, destination string, metadata map[string]string) (*gateway.Payout, error) {
	f.payoutCalls++
	if f.payoutErr != nil {
		return nil, f.payoutErr
	}
	status := f.payoutStatus
	if status == "" {
		status = "pending"
	}
	return &gateway.Payout{ID: fmt.Sprintf("po_test_%d", f.payoutCalls), Status: status}, nil
}

func (f *fakeGateway) CreateConnectedAccount(ctx context.Context, email, country string) (*gateway.ConnectedAccount, error) {
	return &gateway.ConnectedAccount{ID: "acct_test_1"}, nil
}

func (f *fakeGateway) CreateRefund(ctx context.Context, paymentIntentID string, amount decimal.Decimal, metadata map[string]string) (*gateway.Refund, error) {
	return &gateway.Refund{ID: "re_test_1", Status: "succeeded"}, nil
}

func (f *fakeGateway) VerifyWebhookSignature(payload []byte, signatureHeader string) (*gateway.Event, error) {
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

// recordingNotifier captures in-app notifications for assertions.
type recordingNotifier struct {
	mu    sync.Mutex
	sent  []sentNotification
	fail  bool
}

type sentNotification struct {
	userID    string
	notifType string
}

func (n *recordingNotifier) SendInApp(ctx context.Context, userID, notifType, title, message string, data map[string]any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return fmt.Errorf("notification service unavailable")
	}
	n.sent = append(n.sent, sentNotification{userID: userID, notifType: notifType})
	return nil
}

func (n *recordingNotifier) count(userID, notifType string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, s := range n.sent {
		if s.userID == userID && s.notifType == notifType {
			count++
		}
	}
	return count
}

// memoryEventCache mirrors the redis event cache for tests.
type memoryEventCache struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newMemoryEventCache() *memoryEventCache {
	return &memoryEventCache{seen: map[string]bool{}}
}

func (c *memoryEventCache) Seen(ctx context.Context, eventID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seen[eventID]
}

func (c *memoryEventCache) MarkSeen(ctx context.Context, eventID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen[eventID] = true
}

// env bundles a fully wired usecase stack on the in-memory store.
type env struct {
	store        *memory.Store
	gw           *fakeGateway
	notes        *recordingNotifier
	events       *memoryEventCache
	walletUC     *WalletUsecase
	txUC         *TransactionUsecase
	escrowUC     *EscrowUsecase
	withdrawalUC *WithdrawalUsecase
	paymentUC    *PaymentUsecase
	methodUC     *PaymentMethodUsecase
	webhookUC    *WebhookUsecase
}

func newEnv(t *testing.T) *env {
	t.Helper()
	logger := zap.NewNop()
	store := memory.NewStore()
	gw := &fakeGateway{}
	notes := &recordingNotifier{}
	events := newMemoryEventCache()

	txUC := NewTransactionUsecase(store.Transactions(), nil, nil, logger)
	withdrawalUC := NewWithdrawalUsecase(
		store.Withdrawals(), store.Wallets(), store.PaymentMethods(), txUC, gw, notes, testFees, "usd", logger)

	return &env{
		store:        store,
		gw:           gw,
		notes:        notes,
		events:       events,
		walletUC:     NewWalletUsecase(store.Wallets(), logger),
		txUC:         txUC,
		escrowUC:     NewEscrowUsecase(store.Escrows(), store.Wallets(), txUC, nil, notes, testFees, logger),
		withdrawalUC: withdrawalUC,
		paymentUC:    NewPaymentUsecase(store.Wallets(), txUC, gw, "usd", logger),
		methodUC:     NewPaymentMethodUsecase(store.PaymentMethods(), gw, logger),
		webhookUC:    NewWebhookUsecase(gw, txUC, withdrawalUC, store.PaymentMethods(), events, logger),
	}
}

// fundWallet credits a user's available balance through a completed deposit.
func (e *env) fundWallet(t *testing.T, userID string, amount decimal.Decimal) *domain.Wallet {
	t.Helper()
	ctx := context.Background()

	wallet, err := e.walletUC.GetOrCreate(ctx, userID)
	require.NoError(t, err)

	ref := fmt.Sprintf("seed-deposit:%s:%s", userID, amount.String())
	_, err = e.txUC.Record(ctx, &domain.Transaction{
		UserID:              userID,
		Type:                domain.TxDeposit,
		Status:              domain.TxCompleted,
		Amount:              amount,
		DestinationWalletID: &wallet.ID,
		Reference:           &ref,
	})
	require.NoError(t, err)

	wallet, err = e.walletUC.GetByID(ctx, wallet.ID)
	require.NoError(t, err)
	return wallet
}

// activeStripeMethod saves an active stripe payout instrument for a user.
func (e *env) activeStripeMethod(t *testing.T, userID string) *domain.PaymentMethod {
	t.Helper()
	ctx := context.Background()

	m, err := e.store.PaymentMethods().Create(ctx, &domain.PaymentMethod{
		UserID:     userID,
		Type:       domain.MethodStripe,
		Name:       "Stripe payouts",
		Status:     domain.MethodActive,
		ExternalID: "acct_" + userID,
		Details: domain.MethodDetails{
			Stripe: &domain.StripeAccountDetails{
				AccountID:      "acct_" + userID,
				Country:        "US",
				PayoutsEnabled: true,
			},
		},
	})
	require.NoError(t, err)
	return m
}

// requireBalances asserts the wallet's three balances and the invariant.
func requireBalances(t *testing.T, w *domain.Wallet, balance, available, pending string) {
	t.Helper()
	require.True(t, w.CheckInvariant(), "balance invariant violated: %s != %s + %s",
		w.Balance, w.AvailableBalance, w.PendingBalance)
	require.True(t, w.Balance.Equal(decimal.RequireFromString(balance)),
		"balance: want %s, got %s", balance, w.Balance)
	require.True(t, w.AvailableBalance.Equal(decimal.RequireFromString(available)),
		"available: want %s, got %s", available, w.AvailableBalance)
	require.True(t, w.PendingBalance.Equal(decimal.RequireFromString(pending)),
		"pending: want %s, got %s", pending, w.PendingBalance)
}
