package usecase

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"payment-service/internal/domain"
	"payment-service/pkg/xerrors"
)

func newTestEscrow(t *testing.T, e *env, clientID, freelancerID string) *domain.Escrow {
	t.Helper()
	escrow, err := e.escrowUC.Create(context.Background(), &domain.Escrow{
		ProjectID:    "project-1",
		ClientID:     clientID,
		FreelancerID: freelancerID,
		TotalAmount:  decimal.NewFromInt(1000),
		Milestones: []domain.Milestone{
			{Title: "Design", Amount: decimal.NewFromInt(400)},
			{Title: "Build", Amount: decimal.NewFromInt(600)},
		},
	})
	require.NoError(t, err)
	return escrow
}

func TestEscrowLifecycle(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	clientWallet := e.fundWallet(t, "client-1", decimal.NewFromInt(1500))
	escrow := newTestEscrow(t, e, "client-1", "freelancer-1")
	require.Equal(t, domain.EscrowPending, escrow.Status)

	// Funding the full amount debits the client and flips the escrow.
	funded, err := e.escrowUC.Fund(ctx, escrow.ID, "client-1", decimal.Zero)
	require.NoError(t, err)
	require.Equal(t, domain.EscrowFunded, funded.Status)
	require.True(t, funded.FundedAmount.Equal(decimal.NewFromInt(1000)))

	clientWallet, err = e.walletUC.GetByID(ctx, clientWallet.ID)
	require.NoError(t, err)
	requireBalances(t, clientWallet, "500", "500", "0")

	// Releasing the first milestone pays the freelancer net of the fee.
	updated, payment, err := e.escrowUC.ReleaseMilestone(ctx, escrow.ID, funded.Milestones[0].ID, "client-1", false)
	require.NoError(t, err)
	require.Equal(t, domain.EscrowFunded, updated.Status)
	require.True(t, updated.ReleasedAmount.Equal(decimal.NewFromInt(400)))
	require.Equal(t, domain.MilestoneApproved, updated.Milestones[0].Status)
	require.True(t, payment.Amount.Equal(decimal.NewFromInt(400)))
	require.True(t, payment.Fee.Equal(decimal.NewFromInt(40)))

	freelancerWallet, err := e.walletUC.GetOrCreate(ctx, "freelancer-1")
	require.NoError(t, err)
	requireBalances(t, freelancerWallet, "360", "360", "0")

	platformWallet, err := e.walletUC.GetPlatform(ctx)
	require.NoError(t, err)
	requireBalances(t, platformWallet, "40", "40", "0")

	// Releasing the last milestone closes the escrow.
	updated, _, err = e.escrowUC.ReleaseMilestone(ctx, escrow.ID, funded.Milestones[1].ID, "client-1", false)
	require.NoError(t, err)
	require.Equal(t, domain.EscrowReleased, updated.Status)
	require.True(t, updated.ReleasedAmount.Equal(decimal.NewFromInt(1000)))

	freelancerWallet, err = e.walletUC.GetOrCreate(ctx, "freelancer-1")
	require.NoError(t, err)
	requireBalances(t, freelancerWallet, "900", "900", "0")

	platformWallet, err = e.walletUC.GetPlatform(ctx)
	require.NoError(t, err)
	requireBalances(t, platformWallet, "100", "100", "0")
}

func TestEscrowFundInsufficientBalance(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.fundWallet(t, "client-1", decimal.NewFromInt(100))
	escrow := newTestEscrow(t, e, "client-1", "freelancer-1")

	_, err := e.escrowUC.Fund(ctx, escrow.ID, "client-1", decimal.Zero)
	require.ErrorIs(t, err, xerrors.ErrInsufficientFunds)

	// Nothing moved and the escrow stayed pending.
	w, err := e.walletUC.GetOrCreate(ctx, "client-1")
	require.NoError(t, err)
	requireBalances(t, w, "100", "100", "0")

	current, err := e.escrowUC.GetByID(ctx, escrow.ID)
	require.NoError(t, err)
	require.Equal(t, domain.EscrowPending, current.Status)
	require.True(t, current.FundedAmount.IsZero())
}

func TestEscrowFundOnlyByClient(t *testing.T) {
	e := newEnv(t)
	e.fundWallet(t, "client-1", decimal.NewFromInt(2000))
	escrow := newTestEscrow(t, e, "client-1", "freelancer-1")

	_, err := e.escrowUC.Fund(context.Background(), escrow.ID, "freelancer-1", decimal.Zero)
	require.ErrorIs(t, err, xerrors.ErrForbidden)
}

func TestEscrowDoubleFundRejected(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.fundWallet(t, "client-1", decimal.NewFromInt(3000))
	escrow := newTestEscrow(t, e, "client-1", "freelancer-1")

	_, err := e.escrowUC.Fund(ctx, escrow.ID, "client-1", decimal.Zero)
	require.NoError(t, err)

	_, err = e.escrowUC.Fund(ctx, escrow.ID, "client-1", decimal.Zero)
	require.ErrorIs(t, err, xerrors.ErrEscrowAlreadyFunded)

	// The second attempt must not have debited anything.
	w, err := e.walletUC.GetOrCreate(ctx, "client-1")
	require.NoError(t, err)
	requireBalances(t, w, "2000", "2000", "0")
}

func TestEscrowPartialFunding(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.fundWallet(t, "client-1", decimal.NewFromInt(2000))
	escrow := newTestEscrow(t, e, "client-1", "freelancer-1")

	funded, err := e.escrowUC.Fund(ctx, escrow.ID, "client-1", decimal.NewFromInt(400))
	require.NoError(t, err)
	require.Equal(t, domain.EscrowPending, funded.Status)
	require.True(t, funded.FundedAmount.Equal(decimal.NewFromInt(400)))

	// Overshooting the remaining total is refused before any ledger entry
	// is written.
	_, err = e.escrowUC.Fund(ctx, escrow.ID, "client-1", decimal.NewFromInt(700))
	require.ErrorIs(t, err, xerrors.ErrInvalidRequest)

	w, err := e.walletUC.GetOrCreate(ctx, "client-1")
	require.NoError(t, err)
	requireBalances(t, w, "1600", "1600", "0")

	_, total, err := e.txUC.List(ctx, domain.TransactionFilter{UserID: "client-1"})
	require.NoError(t, err)
	require.Equal(t, 2, total, "seed deposit and the accepted funding only")

	funded, err = e.escrowUC.Fund(ctx, escrow.ID, "client-1", decimal.Zero)
	require.NoError(t, err)
	require.Equal(t, domain.EscrowFunded, funded.Status)
}

func TestReleaseMilestoneRequiresFundedEscrow(t *testing.T) {
	e := newEnv(t)
	e.fundWallet(t, "client-1", decimal.NewFromInt(2000))
	escrow := newTestEscrow(t, e, "client-1", "freelancer-1")

	_, _, err := e.escrowUC.ReleaseMilestone(context.Background(), escrow.ID, escrow.Milestones[0].ID, "client-1", false)
	require.ErrorIs(t, err, xerrors.ErrEscrowNotFunded)
}

func TestReleaseMilestoneTwiceRejected(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.fundWallet(t, "client-1", decimal.NewFromInt(2000))
	escrow := newTestEscrow(t, e, "client-1", "freelancer-1")
	_, err := e.escrowUC.Fund(ctx, escrow.ID, "client-1", decimal.Zero)
	require.NoError(t, err)

	_, _, err = e.escrowUC.ReleaseMilestone(ctx, escrow.ID, escrow.Milestones[0].ID, "client-1", false)
	require.NoError(t, err)

	_, _, err = e.escrowUC.ReleaseMilestone(ctx, escrow.ID, escrow.Milestones[0].ID, "client-1", false)
	require.ErrorIs(t, err, xerrors.ErrMilestoneAlreadyApproved)

	// The freelancer was paid exactly once.
	w, err := e.walletUC.GetOrCreate(ctx, "freelancer-1")
	require.NoError(t, err)
	requireBalances(t, w, "360", "360", "0")
}

func TestConcurrentReleaseSingleWinner(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.fundWallet(t, "client-1", decimal.NewFromInt(2000))
	escrow := newTestEscrow(t, e, "client-1", "freelancer-1")
	_, err := e.escrowUC.Fund(ctx, escrow.ID, "client-1", decimal.Zero)
	require.NoError(t, err)

	const racers = 8
	errs := make([]error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = e.escrowUC.ReleaseMilestone(ctx, escrow.ID, escrow.Milestones[0].ID, "client-1", false)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			require.ErrorIs(t, err, xerrors.ErrMilestoneAlreadyApproved)
		}
	}
	require.Equal(t, 1, wins, "exactly one concurrent release must win")

	w, err := e.walletUC.GetOrCreate(ctx, "freelancer-1")
	require.NoError(t, err)
	requireBalances(t, w, "360", "360", "0")

	platform, err := e.walletUC.GetPlatform(ctx)
	require.NoError(t, err)
	requireBalances(t, platform, "40", "40", "0")
}

func TestEscrowRefundReturnsUnreleasedBalance(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.fundWallet(t, "client-1", decimal.NewFromInt(2000))
	escrow := newTestEscrow(t, e, "client-1", "freelancer-1")
	_, err := e.escrowUC.Fund(ctx, escrow.ID, "client-1", decimal.Zero)
	require.NoError(t, err)

	_, _, err = e.escrowUC.ReleaseMilestone(ctx, escrow.ID, escrow.Milestones[0].ID, "client-1", false)
	require.NoError(t, err)

	refunded, err := e.escrowUC.Refund(ctx, escrow.ID)
	require.NoError(t, err)
	require.Equal(t, domain.EscrowRefunded, refunded.Status)

	// 2000 - 1000 funded + 600 unreleased back.
	w, err := e.walletUC.GetOrCreate(ctx, "client-1")
	require.NoError(t, err)
	requireBalances(t, w, "1600", "1600", "0")

	// A released escrow cannot be refunded again.
	_, err = e.escrowUC.Refund(ctx, escrow.ID)
	require.ErrorIs(t, err, xerrors.ErrInvalidStateTransition)
}

func TestEscrowDisputeBlocksRelease(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.fundWallet(t, "client-1", decimal.NewFromInt(2000))
	escrow := newTestEscrow(t, e, "client-1", "freelancer-1")
	_, err := e.escrowUC.Fund(ctx, escrow.ID, "client-1", decimal.Zero)
	require.NoError(t, err)

	_, err = e.escrowUC.Dispute(ctx, escrow.ID)
	require.NoError(t, err)

	_, _, err = e.escrowUC.ReleaseMilestone(ctx, escrow.ID, escrow.Milestones[0].ID, "client-1", false)
	require.ErrorIs(t, err, xerrors.ErrEscrowNotFunded)

	// Disputes resolve to a refund.
	refunded, err := e.escrowUC.Refund(ctx, escrow.ID)
	require.NoError(t, err)
	require.Equal(t, domain.EscrowRefunded, refunded.Status)

	w, err := e.walletUC.GetOrCreate(ctx, "client-1")
	require.NoError(t, err)
	requireBalances(t, w, "2000", "2000", "0")
}

func TestEscrowValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	// Milestones must sum to the total.
	_, err := e.escrowUC.Create(ctx, &domain.Escrow{
		ProjectID:    "project-1",
		ClientID:     "client-1",
		FreelancerID: "freelancer-1",
		TotalAmount:  decimal.NewFromInt(1000),
		Milestones: []domain.Milestone{
			{Title: "Design", Amount: decimal.NewFromInt(400)},
		},
	})
	require.ErrorIs(t, err, xerrors.ErrInvalidRequest)

	// Client and freelancer must differ.
	_, err = e.escrowUC.Create(ctx, &domain.Escrow{
		ProjectID:    "project-1",
		ClientID:     "client-1",
		FreelancerID: "client-1",
		TotalAmount:  decimal.NewFromInt(1000),
		Milestones: []domain.Milestone{
			{Title: "All", Amount: decimal.NewFromInt(1000)},
		},
	})
	require.ErrorIs(t, err, xerrors.ErrInvalidRequest)
}

func TestEscrowFundedNotifiesFreelancer(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.fundWallet(t, "client-1", decimal.NewFromInt(2000))
	escrow := newTestEscrow(t, e, "client-1", "freelancer-1")
	require.Equal(t, 1, e.notes.count("freelancer-1", "escrow_created"))

	// A partial top-up does not announce the escrow as funded.
	_, err := e.escrowUC.Fund(ctx, escrow.ID, "client-1", decimal.NewFromInt(400))
	require.NoError(t, err)
	require.Equal(t, 0, e.notes.count("freelancer-1", "escrow_funded"))

	_, err = e.escrowUC.Fund(ctx, escrow.ID, "client-1", decimal.Zero)
	require.NoError(t, err)
	require.Equal(t, 1, e.notes.count("freelancer-1", "escrow_funded"))
}
