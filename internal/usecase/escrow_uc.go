package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"payment-service/config"
	"payment-service/internal/domain"
	"payment-service/internal/metrics"
	"payment-service/internal/repository"
	"payment-service/pkg/xerrors"
)

// EscrowUsecase orchestrates the escrow lifecycle: creation, funding from the
// client wallet, milestone releases to the freelancer, and the admin refund
// and dispute branches. All money moves through the transaction usecase.
type EscrowUsecase struct {
	escrowRepo repository.EscrowRepository
	walletRepo repository.WalletRepository
	txUC       *TransactionUsecase
	projects   ProjectNotifier
	notifier   Notifier
	fees       config.FeeConfig
	logger     *zap.Logger
}

func NewEscrowUsecase(
	escrowRepo repository.EscrowRepository,
	walletRepo repository.WalletRepository,
	txUC *TransactionUsecase,
	projects ProjectNotifier,
	notifier Notifier,
	fees config.FeeConfig,
	logger *zap.Logger,
) *EscrowUsecase {
	return &EscrowUsecase{
		escrowRepo: escrowRepo,
		walletRepo: walletRepo,
		txUC:       txUC,
		projects:   projects,
		notifier:   notifier,
		fees:       fees,
		logger:     logger,
	}
}

func (uc *EscrowUsecase) Create(ctx context.Context, e *domain.Escrow) (*domain.Escrow, error) {
	if e.ClientID == e.FreelancerID {
		return nil, fmt.Errorf("%w: client and freelancer must differ", xerrors.ErrInvalidRequest)
	}
	created, err := uc.escrowRepo.Create(ctx, e)
	if err != nil {
		return nil, err
	}
	uc.logger.Info("escrow created",
		zap.String("escrow_id", created.ID),
		zap.String("project_id", created.ProjectID),
		zap.String("total_amount", created.TotalAmount.String()))

	if uc.notifier != nil {
		err := uc.notifier.SendInApp(ctx, created.FreelancerID, "escrow_created",
			"Escrow created",
			fmt.Sprintf("An escrow of %s has been set up for your project", created.TotalAmount.StringFixed(2)),
			map[string]any{"escrow_id": created.ID, "project_id": created.ProjectID})
		if err != nil {
			uc.logger.Warn("failed to notify freelancer of new escrow",
				zap.String("escrow_id", created.ID),
				zap.Error(err))
		}
	}
	return created, nil
}

func (uc *EscrowUsecase) GetByID(ctx context.Context, id string) (*domain.Escrow, error) {
	return uc.escrowRepo.GetByID(ctx, id)
}

func (uc *EscrowUsecase) ListByProject(ctx context.Context, projectID string) ([]*domain.Escrow, error) {
	return uc.escrowRepo.ListByProject(ctx, projectID)
}

// Fund moves money from the client wallet into the escrow. A zero amount
// funds the remaining balance. The wallet debit is recorded first; if the
// escrow then refuses the funds the debit is compensated with a refund.
func (uc *EscrowUsecase) Fund(ctx context.Context, escrowID, callerID string, amount decimal.Decimal) (*domain.Escrow, error) {
	e, err := uc.escrowRepo.GetByID(ctx, escrowID)
	if err != nil {
		return nil, err
	}
	if callerID != e.ClientID {
		return nil, fmt.Errorf("only the escrow client can fund it: %w", xerrors.ErrForbidden)
	}
	if e.Status != domain.EscrowPending {
		if e.Status == domain.EscrowFunded {
			return nil, fmt.Errorf("escrow %s: %w", escrowID, xerrors.ErrEscrowAlreadyFunded)
		}
		return nil, fmt.Errorf("escrow %s is %s: %w", escrowID, e.Status, xerrors.ErrInvalidStateTransition)
	}
	remaining := e.TotalAmount.Sub(e.FundedAmount)
	if amount.IsZero() {
		amount = remaining
	}
	if amount.GreaterThan(remaining) {
		return nil, fmt.Errorf("%w: amount %s exceeds remaining escrow total %s",
			xerrors.ErrInvalidRequest, amount.StringFixed(2), remaining.StringFixed(2))
	}

	wallet, err := uc.walletRepo.GetOrCreate(ctx, e.ClientID)
	if err != nil {
		return nil, err
	}

	tx, err := uc.txUC.Record(ctx, &domain.Transaction{
		UserID:         e.ClientID,
		Type:           domain.TxEscrowFunding,
		Status:         domain.TxCompleted,
		Amount:         amount,
		SourceWalletID: &wallet.ID,
		EscrowID:       &e.ID,
		ProjectID:      &e.ProjectID,
		Description:    fmt.Sprintf("Escrow funding for project %s", e.ProjectID),
	})
	if err != nil {
		return nil, err
	}

	funded, err := uc.escrowRepo.AddFunds(ctx, escrowID, amount)
	if err != nil {
		uc.compensateFunding(ctx, e, wallet.ID, amount, tx.ID)
		return nil, err
	}

	uc.logger.Info("escrow funded",
		zap.String("escrow_id", funded.ID),
		zap.String("amount", amount.String()),
		zap.String("status", string(funded.Status)))

	if funded.Status == domain.EscrowFunded && uc.notifier != nil {
		err := uc.notifier.SendInApp(ctx, funded.FreelancerID, "escrow_funded",
			"Escrow funded",
			fmt.Sprintf("The escrow for your project is fully funded with %s", funded.FundedAmount.StringFixed(2)),
			map[string]any{"escrow_id": funded.ID, "project_id": funded.ProjectID})
		if err != nil {
			uc.logger.Warn("failed to notify freelancer of funded escrow",
				zap.String("escrow_id", funded.ID),
				zap.Error(err))
		}
	}
	return funded, nil
}

// compensateFunding returns a debit whose escrow leg was refused.
func (uc *EscrowUsecase) compensateFunding(ctx context.Context, e *domain.Escrow, walletID string, amount decimal.Decimal, fundingTxID string) {
	ref := fmt.Sprintf("escrow-funding-reversal:%s", fundingTxID)
	_, err := uc.txUC.Record(ctx, &domain.Transaction{
		UserID:              e.ClientID,
		Type:                domain.TxRefund,
		Status:              domain.TxCompleted,
		Amount:              amount,
		DestinationWalletID: &walletID,
		EscrowID:            &e.ID,
		ProjectID:           &e.ProjectID,
		Description:         "Reversal of refused escrow funding",
		Reference:           &ref,
	})
	if err != nil {
		uc.logger.Error("failed to compensate refused escrow funding",
			zap.String("escrow_id", e.ID),
			zap.String("funding_transaction_id", fundingTxID),
			zap.Error(err))
	}
}

// ReleaseMilestone pays the freelancer for one approved milestone and books
// the platform fee. The payment carries a deterministic reference so a racing
// duplicate release settles to exactly one payment; milestone approval itself
// is a compare-and-set, so the second caller observes AlreadyApproved.
func (uc *EscrowUsecase) ReleaseMilestone(ctx context.Context, escrowID, milestoneID, callerID string, asAdmin bool) (*domain.Escrow, *domain.Transaction, error) {
	e, err := uc.escrowRepo.GetByID(ctx, escrowID)
	if err != nil {
		return nil, nil, err
	}
	if !asAdmin && callerID != e.ClientID {
		return nil, nil, fmt.Errorf("only the escrow client can release milestones: %w", xerrors.ErrForbidden)
	}
	if e.Status != domain.EscrowFunded {
		return nil, nil, fmt.Errorf("escrow %s is %s: %w", escrowID, e.Status, xerrors.ErrEscrowNotFunded)
	}
	m := e.Milestone(milestoneID)
	if m == nil {
		return nil, nil, fmt.Errorf("milestone %s: %w", milestoneID, xerrors.ErrMilestoneNotFound)
	}
	if m.Status == domain.MilestoneApproved {
		return nil, nil, fmt.Errorf("milestone %s: %w", milestoneID, xerrors.ErrMilestoneAlreadyApproved)
	}

	fee := domain.PlatformFee(m.Amount, uc.fees.PlatformFeePercent)

	freelancerWallet, err := uc.walletRepo.GetOrCreate(ctx, e.FreelancerID)
	if err != nil {
		return nil, nil, err
	}

	// Payment before approval: the deterministic reference makes the record
	// idempotent, so a crash between the two steps is safe to retry.
	paymentRef := fmt.Sprintf("milestone:%s:%s", escrowID, milestoneID)
	payment, err := uc.txUC.Record(ctx, &domain.Transaction{
		UserID:              e.FreelancerID,
		Type:                domain.TxMilestonePayment,
		Status:              domain.TxCompleted,
		Amount:              m.Amount,
		Fee:                 fee,
		DestinationWalletID: &freelancerWallet.ID,
		EscrowID:            &e.ID,
		ProjectID:           &e.ProjectID,
		MilestoneID:         &m.ID,
		Description:         fmt.Sprintf("Milestone payment: %s", m.Title),
		Reference:           &paymentRef,
	})
	if err != nil {
		return nil, nil, err
	}

	if fee.IsPositive() {
		platformWallet, err := uc.walletRepo.GetPlatform(ctx)
		if err != nil {
			return nil, nil, err
		}
		feeRef := fmt.Sprintf("milestone-fee:%s:%s", escrowID, milestoneID)
		if _, err := uc.txUC.Record(ctx, &domain.Transaction{
			UserID:              domain.PlatformUserID,
			Type:                domain.TxPlatformFee,
			Status:              domain.TxCompleted,
			Amount:              fee,
			DestinationWalletID: &platformWallet.ID,
			EscrowID:            &e.ID,
			ProjectID:           &e.ProjectID,
			MilestoneID:         &m.ID,
			Description:         fmt.Sprintf("Platform fee for milestone: %s", m.Title),
			Reference:           &feeRef,
		}); err != nil {
			return nil, nil, err
		}
	}

	updated, err := uc.escrowRepo.ApproveMilestone(ctx, escrowID, milestoneID, time.Now())
	if err != nil {
		return nil, nil, err
	}

	metrics.EscrowReleases.Inc()
	uc.logger.Info("milestone released",
		zap.String("escrow_id", escrowID),
		zap.String("milestone_id", milestoneID),
		zap.String("amount", m.Amount.String()),
		zap.String("fee", fee.String()),
		zap.String("escrow_status", string(updated.Status)))

	if uc.projects != nil {
		if err := uc.projects.UpdateMilestoneStatus(ctx, e.ProjectID, milestoneID, "paid", payment.ID); err != nil {
			uc.logger.Warn("failed to update project milestone status",
				zap.String("project_id", e.ProjectID),
				zap.String("milestone_id", milestoneID),
				zap.Error(err))
		}
	}
	return updated, payment, nil
}

// Refund returns the unreleased escrow balance to the client wallet and marks
// the escrow refunded. Admin only.
func (uc *EscrowUsecase) Refund(ctx context.Context, escrowID string) (*domain.Escrow, error) {
	updated, err := uc.escrowRepo.UpdateStatus(ctx, escrowID, domain.EscrowRefunded)
	if err != nil {
		return nil, err
	}

	remaining := updated.FundedAmount.Sub(updated.ReleasedAmount)
	if remaining.IsPositive() {
		wallet, err := uc.walletRepo.GetOrCreate(ctx, updated.ClientID)
		if err != nil {
			return nil, err
		}
		ref := fmt.Sprintf("escrow-refund:%s", escrowID)
		if _, err := uc.txUC.Record(ctx, &domain.Transaction{
			UserID:              updated.ClientID,
			Type:                domain.TxRefund,
			Status:              domain.TxCompleted,
			Amount:              remaining,
			DestinationWalletID: &wallet.ID,
			EscrowID:            &updated.ID,
			ProjectID:           &updated.ProjectID,
			Description:         fmt.Sprintf("Escrow refund for project %s", updated.ProjectID),
			Reference:           &ref,
		}); err != nil {
			uc.logger.Error("escrow marked refunded but refund transaction failed",
				zap.String("escrow_id", escrowID),
				zap.Error(err))
			return nil, err
		}
	}

	uc.logger.Info("escrow refunded",
		zap.String("escrow_id", escrowID),
		zap.String("amount", remaining.String()))
	return updated, nil
}

// Dispute freezes the escrow pending resolution. Admin only.
func (uc *EscrowUsecase) Dispute(ctx context.Context, escrowID string) (*domain.Escrow, error) {
	updated, err := uc.escrowRepo.UpdateStatus(ctx, escrowID, domain.EscrowDisputed)
	if err != nil {
		return nil, err
	}
	uc.logger.Info("escrow disputed", zap.String("escrow_id", escrowID))
	return updated, nil
}
