package usecase

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"payment-service/internal/domain"
	"payment-service/pkg/xerrors"
)

func TestRecordIdempotentOnReference(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	wallet := e.fundWallet(t, "user-1", decimal.NewFromInt(100))

	ref := "pi_duplicate_1"
	first, err := e.txUC.Record(ctx, &domain.Transaction{
		UserID:              "user-1",
		Type:                domain.TxDeposit,
		Status:              domain.TxCompleted,
		Amount:              decimal.NewFromInt(50),
		DestinationWalletID: &wallet.ID,
		Reference:           &ref,
	})
	require.NoError(t, err)

	second, err := e.txUC.Record(ctx, &domain.Transaction{
		UserID:              "user-1",
		Type:                domain.TxDeposit,
		Status:              domain.TxCompleted,
		Amount:              decimal.NewFromInt(50),
		DestinationWalletID: &wallet.ID,
		Reference:           &ref,
	})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	// The balance moved once, not twice.
	w, err := e.walletUC.GetByID(ctx, wallet.ID)
	require.NoError(t, err)
	requireBalances(t, w, "150", "150", "0")
}

func TestTransitionAppliesDeltaOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	wallet := e.fundWallet(t, "user-1", decimal.NewFromInt(100))

	ref := "pi_pending_1"
	tx, err := e.txUC.Record(ctx, &domain.Transaction{
		UserID:              "user-1",
		Type:                domain.TxDeposit,
		Status:              domain.TxPending,
		Amount:              decimal.NewFromInt(75),
		DestinationWalletID: &wallet.ID,
		Reference:           &ref,
	})
	require.NoError(t, err)

	// Pending transactions do not touch balances.
	w, err := e.walletUC.GetByID(ctx, wallet.ID)
	require.NoError(t, err)
	requireBalances(t, w, "100", "100", "0")

	_, err = e.txUC.Transition(ctx, tx.ID, domain.TxCompleted, "")
	require.NoError(t, err)

	// Re-delivering the same outcome is a no-op.
	_, err = e.txUC.Transition(ctx, tx.ID, domain.TxCompleted, "")
	require.NoError(t, err)

	w, err = e.walletUC.GetByID(ctx, wallet.ID)
	require.NoError(t, err)
	requireBalances(t, w, "175", "175", "0")

	// A completed transaction cannot fail afterwards.
	_, err = e.txUC.Transition(ctx, tx.ID, domain.TxFailed, "late failure")
	require.ErrorIs(t, err, xerrors.ErrInvalidStateTransition)
}

func TestFailedDepositNeverCredits(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	wallet := e.fundWallet(t, "user-1", decimal.NewFromInt(100))

	ref := "pi_failing_1"
	tx, err := e.txUC.Record(ctx, &domain.Transaction{
		UserID:              "user-1",
		Type:                domain.TxDeposit,
		Status:              domain.TxPending,
		Amount:              decimal.NewFromInt(75),
		DestinationWalletID: &wallet.ID,
		Reference:           &ref,
	})
	require.NoError(t, err)

	failed, err := e.txUC.Transition(ctx, tx.ID, domain.TxFailed, "card declined")
	require.NoError(t, err)
	require.Equal(t, "card declined", failed.FailureReason)

	w, err := e.walletUC.GetByID(ctx, wallet.ID)
	require.NoError(t, err)
	requireBalances(t, w, "100", "100", "0")
}

func TestListFiltersAndPaginates(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	wallet := e.fundWallet(t, "user-1", decimal.NewFromInt(1000))
	e.fundWallet(t, "user-2", decimal.NewFromInt(1000))

	for i := 0; i < 5; i++ {
		_, err := e.txUC.Record(ctx, &domain.Transaction{
			UserID:              "user-1",
			Type:                domain.TxDeposit,
			Status:              domain.TxCompleted,
			Amount:              decimal.NewFromInt(10),
			DestinationWalletID: &wallet.ID,
		})
		require.NoError(t, err)
	}

	txs, total, err := e.txUC.List(ctx, domain.TransactionFilter{UserID: "user-1", Limit: 3})
	require.NoError(t, err)
	require.Equal(t, 6, total) // five deposits plus the seed
	require.Len(t, txs, 3)

	txs, total, err = e.txUC.List(ctx, domain.TransactionFilter{UserID: "user-1", Type: domain.TxWithdrawal})
	require.NoError(t, err)
	require.Zero(t, total)
	require.Empty(t, txs)
}

// TestLedgerReproducesBalances replays a random mix of operations, including
// the withdrawal reserve/settle cycle, and checks that the sum of completed
// transaction deltas always equals the wallet balance and that the invariant
// holds throughout.
func TestLedgerReproducesBalances(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(1))

	wallet := e.fundWallet(t, "user-1", decimal.NewFromInt(10000))
	method := e.activeStripeMethod(t, "user-1")
	expected := decimal.NewFromInt(10000)
	expectedPending := decimal.Zero
	var open []*domain.Withdrawal

	for i := 0; i < 300; i++ {
		switch rng.Intn(5) {
		case 0:
			amount := decimal.NewFromInt(int64(rng.Intn(100) + 1))
			_, err := e.txUC.Record(ctx, &domain.Transaction{
				UserID:              "user-1",
				Type:                domain.TxDeposit,
				Status:              domain.TxCompleted,
				Amount:              amount,
				DestinationWalletID: &wallet.ID,
			})
			require.NoError(t, err)
			expected = expected.Add(amount)
		case 1:
			amount := decimal.NewFromInt(int64(rng.Intn(100) + 1))
			_, err := e.txUC.Record(ctx, &domain.Transaction{
				UserID:         "user-1",
				Type:           domain.TxEscrowFunding,
				Status:         domain.TxCompleted,
				Amount:         amount,
				SourceWalletID: &wallet.ID,
			})
			if err != nil {
				require.ErrorIs(t, err, xerrors.ErrInsufficientFunds)
				continue
			}
			expected = expected.Sub(amount)
		case 2:
			// Requesting a withdrawal reserves funds without touching the
			// total balance.
			amount := decimal.NewFromInt(int64(rng.Intn(100) + 50))
			w, err := e.withdrawalUC.Create(ctx, "user-1", amount, method.ID)
			if err != nil {
				require.ErrorIs(t, err, xerrors.ErrInsufficientFunds)
				continue
			}
			open = append(open, w)
			expectedPending = expectedPending.Add(amount)
		case 3:
			// Cancelling returns the reservation, balance unchanged.
			if len(open) == 0 {
				continue
			}
			w := open[len(open)-1]
			open = open[:len(open)-1]
			_, err := e.withdrawalUC.Cancel(ctx, w.ID, "user-1")
			require.NoError(t, err)
			expectedPending = expectedPending.Sub(w.Amount)
		case 4:
			// Settling debits the balance by the reserved amount.
			if len(open) == 0 {
				continue
			}
			w := open[0]
			open = open[1:]
			_, err := e.withdrawalUC.Process(ctx, w.ID)
			require.NoError(t, err)
			_, err = e.withdrawalUC.Complete(ctx, w.ID, fmt.Sprintf("po_settle_%d", i))
			require.NoError(t, err)
			expected = expected.Sub(w.Amount)
			expectedPending = expectedPending.Sub(w.Amount)
		}

		w, err := e.walletUC.GetByID(ctx, wallet.ID)
		require.NoError(t, err)
		require.True(t, w.CheckInvariant())
		require.True(t, w.Balance.Equal(expected),
			"step %d: ledger drift, want %s got %s", i, expected, w.Balance)
		require.True(t, w.PendingBalance.Equal(expectedPending),
			"step %d: pending drift, want %s got %s", i, expectedPending, w.PendingBalance)
	}
}
