package usecase

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"payment-service/internal/domain"
	"payment-service/pkg/xerrors"
)

func TestWithdrawalBelowMinimumRejected(t *testing.T) {
	e := newEnv(t)
	e.fundWallet(t, "user-1", decimal.NewFromInt(100))
	method := e.activeStripeMethod(t, "user-1")

	_, err := e.withdrawalUC.Create(context.Background(), "user-1", decimal.NewFromInt(49), method.ID)
	require.ErrorIs(t, err, xerrors.ErrAmountBelowMinimum)
}

func TestWithdrawalCreateReservesFunds(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	wallet := e.fundWallet(t, "user-1", decimal.NewFromInt(500))
	method := e.activeStripeMethod(t, "user-1")

	w, err := e.withdrawalUC.Create(ctx, "user-1", decimal.NewFromInt(200), method.ID)
	require.NoError(t, err)
	require.Equal(t, domain.WithdrawalPending, w.Status)
	require.True(t, w.Fee.Equal(decimal.NewFromInt(5)))       // 2.5% of 200
	require.True(t, w.NetAmount.Equal(decimal.NewFromInt(195)))

	wallet, err = e.walletUC.GetByID(ctx, wallet.ID)
	require.NoError(t, err)
	requireBalances(t, wallet, "500", "300", "200")
}

func TestWithdrawalInsufficientAvailableRejected(t *testing.T) {
	e := newEnv(t)
	e.fundWallet(t, "user-1", decimal.NewFromInt(100))
	method := e.activeStripeMethod(t, "user-1")

	_, err := e.withdrawalUC.Create(context.Background(), "user-1", decimal.NewFromInt(150), method.ID)
	require.ErrorIs(t, err, xerrors.ErrInsufficientFunds)
}

func TestWithdrawalHappyPath(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	wallet := e.fundWallet(t, "user-1", decimal.NewFromInt(500))
	method := e.activeStripeMethod(t, "user-1")

	w, err := e.withdrawalUC.Create(ctx, "user-1", decimal.NewFromInt(200), method.ID)
	require.NoError(t, err)

	// Payout is requested; completion arrives later by webhook.
	w, err = e.withdrawalUC.Process(ctx, w.ID)
	require.NoError(t, err)
	require.Equal(t, domain.WithdrawalProcessing, w.Status)
	require.NotNil(t, w.ExternalReference)
	require.Equal(t, 1, e.gw.payoutCalls)

	w, err = e.withdrawalUC.Complete(ctx, w.ID, *w.ExternalReference)
	require.NoError(t, err)
	require.Equal(t, domain.WithdrawalCompleted, w.Status)
	require.NotNil(t, w.TransactionID)

	// The reservation settled: 200 left the wallet for good.
	wallet, err = e.walletUC.GetByID(ctx, wallet.ID)
	require.NoError(t, err)
	requireBalances(t, wallet, "300", "300", "0")

	// The withdrawal fee landed in the platform wallet.
	platform, err := e.walletUC.GetPlatform(ctx)
	require.NoError(t, err)
	requireBalances(t, platform, "5", "5", "0")

	// Completing again is a no-op.
	again, err := e.withdrawalUC.Complete(ctx, w.ID, *w.ExternalReference)
	require.NoError(t, err)
	require.Equal(t, domain.WithdrawalCompleted, again.Status)

	wallet, err = e.walletUC.GetByID(ctx, wallet.ID)
	require.NoError(t, err)
	requireBalances(t, wallet, "300", "300", "0")
}

func TestWithdrawalSynchronousPayout(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.fundWallet(t, "user-1", decimal.NewFromInt(500))
	method := e.activeStripeMethod(t, "user-1")
	e.gw.payoutStatus = "paid"

	w, err := e.withdrawalUC.Create(ctx, "user-1", decimal.NewFromInt(100), method.ID)
	require.NoError(t, err)

	w, err = e.withdrawalUC.Process(ctx, w.ID)
	require.NoError(t, err)
	require.Equal(t, domain.WithdrawalCompleted, w.Status)
}

func TestWithdrawalGatewayFailureReleasesReservation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	wallet := e.fundWallet(t, "user-1", decimal.NewFromInt(500))
	method := e.activeStripeMethod(t, "user-1")
	e.gw.payoutErr = xerrors.ErrProcessor

	w, err := e.withdrawalUC.Create(ctx, "user-1", decimal.NewFromInt(200), method.ID)
	require.NoError(t, err)

	failed, err := e.withdrawalUC.Process(ctx, w.ID)
	require.NoError(t, err)
	require.Equal(t, domain.WithdrawalFailed, failed.Status)
	require.NotEmpty(t, failed.RejectionReason)

	// The reservation returned to the available balance.
	wallet, err = e.walletUC.GetByID(ctx, wallet.ID)
	require.NoError(t, err)
	requireBalances(t, wallet, "500", "500", "0")
}

func TestWithdrawalCancel(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	wallet := e.fundWallet(t, "user-1", decimal.NewFromInt(500))
	method := e.activeStripeMethod(t, "user-1")

	w, err := e.withdrawalUC.Create(ctx, "user-1", decimal.NewFromInt(200), method.ID)
	require.NoError(t, err)

	// Only the owner may cancel.
	_, err = e.withdrawalUC.Cancel(ctx, w.ID, "someone-else")
	require.ErrorIs(t, err, xerrors.ErrForbidden)

	cancelled, err := e.withdrawalUC.Cancel(ctx, w.ID, "user-1")
	require.NoError(t, err)
	require.Equal(t, domain.WithdrawalCancelled, cancelled.Status)

	wallet, err = e.walletUC.GetByID(ctx, wallet.ID)
	require.NoError(t, err)
	requireBalances(t, wallet, "500", "500", "0")

	// A cancelled withdrawal cannot be processed.
	_, err = e.withdrawalUC.Process(ctx, w.ID)
	require.ErrorIs(t, err, xerrors.ErrInvalidStateTransition)
}

func TestWithdrawalCancelAfterProcessingRejected(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.fundWallet(t, "user-1", decimal.NewFromInt(500))
	method := e.activeStripeMethod(t, "user-1")

	w, err := e.withdrawalUC.Create(ctx, "user-1", decimal.NewFromInt(200), method.ID)
	require.NoError(t, err)
	_, err = e.withdrawalUC.Process(ctx, w.ID)
	require.NoError(t, err)

	_, err = e.withdrawalUC.Cancel(ctx, w.ID, "user-1")
	require.ErrorIs(t, err, xerrors.ErrInvalidStateTransition)
}

func TestWithdrawalForeignPaymentMethodRejected(t *testing.T) {
	e := newEnv(t)
	e.fundWallet(t, "user-1", decimal.NewFromInt(500))
	method := e.activeStripeMethod(t, "user-2")

	_, err := e.withdrawalUC.Create(context.Background(), "user-1", decimal.NewFromInt(200), method.ID)
	require.ErrorIs(t, err, xerrors.ErrForbidden)
}

func TestWithdrawalLifecycleNotifiesUser(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.fundWallet(t, "user-1", decimal.NewFromInt(500))
	method := e.activeStripeMethod(t, "user-1")

	w, err := e.withdrawalUC.Create(ctx, "user-1", decimal.NewFromInt(200), method.ID)
	require.NoError(t, err)
	require.Equal(t, 1, e.notes.count("user-1", "withdrawal_requested"))

	_, err = e.withdrawalUC.Cancel(ctx, w.ID, "user-1")
	require.NoError(t, err)
	require.Equal(t, 1, e.notes.count("user-1", "withdrawal_cancelled"))

	w, err = e.withdrawalUC.Create(ctx, "user-1", decimal.NewFromInt(100), method.ID)
	require.NoError(t, err)
	_, err = e.withdrawalUC.Process(ctx, w.ID)
	require.NoError(t, err)
	_, err = e.withdrawalUC.FailProcessing(ctx, w.ID, "bank rejected the transfer")
	require.NoError(t, err)
	require.Equal(t, 1, e.notes.count("user-1", "withdrawal_failed"))
}

func TestWithdrawalNotifierFailureDoesNotBlock(t *testing.T) {
	e := newEnv(t)
	e.notes.fail = true

	e.fundWallet(t, "user-1", decimal.NewFromInt(500))
	method := e.activeStripeMethod(t, "user-1")

	w, err := e.withdrawalUC.Create(context.Background(), "user-1", decimal.NewFromInt(200), method.ID)
	require.NoError(t, err)
	require.Equal(t, domain.WithdrawalPending, w.Status)
}
