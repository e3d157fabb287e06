package usecase

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"payment-service/config"
	"payment-service/internal/domain"
	"payment-service/internal/gateway"
	"payment-service/internal/metrics"
	"payment-service/internal/repository"
	"payment-service/pkg/xerrors"
)

// WithdrawalUsecase runs the payout saga. The requested amount is reserved in
// the wallet at creation, the processor is called outside any row lock, and
// the reservation either settles on completion or returns to the available
// balance on failure or cancellation.
type WithdrawalUsecase struct {
	withdrawalRepo repository.WithdrawalRepository
	walletRepo     repository.WalletRepository
	methodRepo     repository.PaymentMethodRepository
	txUC           *TransactionUsecase
	gw             gateway.Gateway
	notifier       Notifier
	fees           config.FeeConfig
	currency       string
	logger         *zap.Logger
}

func NewWithdrawalUsecase(
	withdrawalRepo repository.WithdrawalRepository,
	walletRepo repository.WalletRepository,
	methodRepo repository.PaymentMethodRepository,
	txUC *TransactionUsecase,
	gw gateway.Gateway,
	notifier Notifier,
	fees config.FeeConfig,
	currency string,
	logger *zap.Logger,
) *WithdrawalUsecase {
	return &WithdrawalUsecase{
		withdrawalRepo: withdrawalRepo,
		walletRepo:     walletRepo,
		methodRepo:     methodRepo,
		txUC:           txUC,
		gw:             gw,
		notifier:       notifier,
		fees:           fees,
		currency:       currency,
		logger:         logger,
	}
}

// notify sends a fire-and-forget in-app notification. Failures are logged,
// never propagated into the financial operation.
func (uc *WithdrawalUsecase) notify(ctx context.Context, w *domain.Withdrawal, notifType, title, message string) {
	if uc.notifier == nil {
		return
	}
	err := uc.notifier.SendInApp(ctx, w.UserID, notifType, title, message,
		map[string]any{"withdrawal_id": w.ID, "amount": w.Amount.String()})
	if err != nil {
		uc.logger.Warn("failed to send withdrawal notification",
			zap.String("withdrawal_id", w.ID),
			zap.String("type", notifType),
			zap.Error(err))
	}
}

// Create validates the request, reserves the amount in the user's wallet and
// records the withdrawal as pending.
func (uc *WithdrawalUsecase) Create(ctx context.Context, userID string, amount decimal.Decimal, paymentMethodID string) (*domain.Withdrawal, error) {
	if amount.LessThan(uc.fees.MinimumWithdrawal) {
		return nil, fmt.Errorf("minimum withdrawal is %s: %w",
			uc.fees.MinimumWithdrawal.StringFixed(2), xerrors.ErrAmountBelowMinimum)
	}

	method, err := uc.methodRepo.GetByID(ctx, paymentMethodID)
	if err != nil {
		return nil, err
	}
	if method.UserID != userID {
		return nil, fmt.Errorf("payment method belongs to another user: %w", xerrors.ErrForbidden)
	}
	if method.Status != domain.MethodActive {
		return nil, fmt.Errorf("payment method is %s: %w", method.Status, xerrors.ErrInvalidRequest)
	}

	wallet, err := uc.walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	fee := domain.WithdrawalFee(amount, uc.fees.WithdrawalFeePercent)
	net := amount.Sub(fee)

	if _, err := uc.walletRepo.Reserve(ctx, wallet.ID, amount); err != nil {
		return nil, err
	}

	w, err := uc.withdrawalRepo.Create(ctx, &domain.Withdrawal{
		UserID:          userID,
		Amount:          amount,
		Fee:             fee,
		NetAmount:       net,
		PaymentMethodID: paymentMethodID,
	})
	if err != nil {
		// Undo the reservation; the withdrawal never existed.
		if _, rerr := uc.walletRepo.Release(ctx, wallet.ID, amount); rerr != nil {
			uc.logger.Error("failed to release reservation after create failure",
				zap.String("wallet_id", wallet.ID),
				zap.Error(rerr))
		}
		return nil, err
	}

	uc.logger.Info("withdrawal created",
		zap.String("withdrawal_id", w.ID),
		zap.String("user_id", userID),
		zap.String("amount", amount.String()),
		zap.String("fee", fee.String()))

	uc.notify(ctx, w, "withdrawal_requested", "Withdrawal requested",
		fmt.Sprintf("Your withdrawal of %s is being reviewed; %s will arrive after the %s fee",
			amount.StringFixed(2), net.StringFixed(2), fee.StringFixed(2)))
	return w, nil
}

// Process moves a pending withdrawal to processing and requests the payout
// from the processor. Completion normally arrives by webhook; a processor
// rejection fails the withdrawal immediately and returns the reservation.
func (uc *WithdrawalUsecase) Process(ctx context.Context, id string) (*domain.Withdrawal, error) {
	w, err := uc.withdrawalRepo.MarkProcessing(ctx, id)
	if err != nil {
		return nil, err
	}

	destination, err := uc.payoutDestination(ctx, w.PaymentMethodID)
	if err != nil {
		return uc.failProcessing(ctx, w, fmt.Sprintf("no payout destination: %v", err))
	}

	payout, err := uc.gw.CreatePayout(ctx, w.NetAmount, uc.currency, destination, map[string]string{
		"withdrawal_id": w.ID,
		"user_id":       w.UserID,
	})
	if err != nil {
		metrics.ProcessorRequests.WithLabelValues("payout", "error").Inc()
		return uc.failProcessing(ctx, w, fmt.Sprintf("payout request failed: %v", err))
	}
	metrics.ProcessorRequests.WithLabelValues("payout", "ok").Inc()

	// Record the processor reference before anything else so reconciliation
	// can find this withdrawal even if the service dies here.
	if err := uc.withdrawalRepo.SetReference(ctx, w.ID, payout.ID); err != nil {
		uc.logger.Error("failed to record payout reference",
			zap.String("withdrawal_id", w.ID),
			zap.String("payout_id", payout.ID),
			zap.Error(err))
	}

	uc.logger.Info("payout requested",
		zap.String("withdrawal_id", w.ID),
		zap.String("payout_id", payout.ID),
		zap.String("payout_status", payout.Status))

	// Some processors settle synchronously.
	if payout.Status == "paid" {
		return uc.Complete(ctx, w.ID, payout.ID)
	}
	return uc.withdrawalRepo.GetByID(ctx, w.ID)
}

// Complete settles a processing withdrawal: the ledger entry consumes the
// reservation, the fee lands in the platform wallet and the withdrawal is
// marked completed. Safe to call twice; the second call is a no-op error.
func (uc *WithdrawalUsecase) Complete(ctx context.Context, id, externalRef string) (*domain.Withdrawal, error) {
	w, err := uc.withdrawalRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if w.Status == domain.WithdrawalCompleted {
		return w, nil
	}
	if w.Status != domain.WithdrawalProcessing {
		return nil, fmt.Errorf("withdrawal is %s: %w", w.Status, xerrors.ErrInvalidStateTransition)
	}

	wallet, err := uc.walletRepo.GetByUserID(ctx, w.UserID)
	if err != nil {
		return nil, err
	}

	ref := fmt.Sprintf("withdrawal:%s", w.ID)
	tx, err := uc.txUC.Record(ctx, &domain.Transaction{
		UserID:         w.UserID,
		Type:           domain.TxWithdrawal,
		Status:         domain.TxCompleted,
		Amount:         w.Amount,
		Fee:            w.Fee,
		SourceWalletID: &wallet.ID,
		Description:    "Withdrawal payout",
		Reference:      &ref,
	})
	if err != nil {
		return nil, err
	}

	if w.Fee.IsPositive() {
		platformWallet, err := uc.walletRepo.GetPlatform(ctx)
		if err != nil {
			return nil, err
		}
		feeRef := fmt.Sprintf("withdrawal-fee:%s", w.ID)
		if _, err := uc.txUC.Record(ctx, &domain.Transaction{
			UserID:              domain.PlatformUserID,
			Type:                domain.TxPlatformFee,
			Status:              domain.TxCompleted,
			Amount:              w.Fee,
			DestinationWalletID: &platformWallet.ID,
			Description:         fmt.Sprintf("Withdrawal fee for %s", w.ID),
			Reference:           &feeRef,
		}); err != nil {
			return nil, err
		}
	}

	completed, err := uc.withdrawalRepo.Complete(ctx, id, externalRef, tx.ID)
	if err != nil {
		return nil, err
	}

	metrics.WithdrawalOutcomes.WithLabelValues("completed").Inc()
	uc.logger.Info("withdrawal completed",
		zap.String("withdrawal_id", id),
		zap.String("external_reference", externalRef))
	return completed, nil
}

// FailProcessing fails a processing withdrawal and returns the reservation to
// the available balance.
func (uc *WithdrawalUsecase) FailProcessing(ctx context.Context, id, reason string) (*domain.Withdrawal, error) {
	w, err := uc.withdrawalRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return uc.failProcessing(ctx, w, reason)
}

func (uc *WithdrawalUsecase) failProcessing(ctx context.Context, w *domain.Withdrawal, reason string) (*domain.Withdrawal, error) {
	failed, err := uc.withdrawalRepo.Fail(ctx, w.ID, reason)
	if err != nil {
		return nil, err
	}

	wallet, err := uc.walletRepo.GetByUserID(ctx, w.UserID)
	if err != nil {
		return nil, err
	}
	if _, err := uc.walletRepo.Release(ctx, wallet.ID, w.Amount); err != nil {
		uc.logger.Error("failed to release reservation of failed withdrawal",
			zap.String("withdrawal_id", w.ID),
			zap.Error(err))
		return nil, err
	}

	metrics.WithdrawalOutcomes.WithLabelValues("failed").Inc()
	uc.logger.Warn("withdrawal failed",
		zap.String("withdrawal_id", w.ID),
		zap.String("reason", reason))

	uc.notify(ctx, failed, "withdrawal_failed", "Withdrawal failed",
		fmt.Sprintf("Your withdrawal of %s could not be completed and the funds are back in your wallet: %s",
			failed.Amount.StringFixed(2), reason))
	return failed, nil
}

// Cancel aborts a pending withdrawal and returns the reservation. Only the
// owner may cancel, and only before processing begins.
func (uc *WithdrawalUsecase) Cancel(ctx context.Context, id, callerID string) (*domain.Withdrawal, error) {
	w, err := uc.withdrawalRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if w.UserID != callerID {
		return nil, fmt.Errorf("withdrawal belongs to another user: %w", xerrors.ErrForbidden)
	}

	cancelled, err := uc.withdrawalRepo.Cancel(ctx, id)
	if err != nil {
		return nil, err
	}

	wallet, err := uc.walletRepo.GetByUserID(ctx, w.UserID)
	if err != nil {
		return nil, err
	}
	if _, err := uc.walletRepo.Release(ctx, wallet.ID, w.Amount); err != nil {
		uc.logger.Error("failed to release reservation of cancelled withdrawal",
			zap.String("withdrawal_id", w.ID),
			zap.Error(err))
		return nil, err
	}

	metrics.WithdrawalOutcomes.WithLabelValues("cancelled").Inc()
	uc.logger.Info("withdrawal cancelled", zap.String("withdrawal_id", id))

	uc.notify(ctx, cancelled, "withdrawal_cancelled", "Withdrawal cancelled",
		fmt.Sprintf("Your withdrawal of %s was cancelled and the funds are back in your wallet",
			cancelled.Amount.StringFixed(2)))
	return cancelled, nil
}

func (uc *WithdrawalUsecase) GetByID(ctx context.Context, id string) (*domain.Withdrawal, error) {
	return uc.withdrawalRepo.GetByID(ctx, id)
}

func (uc *WithdrawalUsecase) List(ctx context.Context, f domain.WithdrawalFilter) ([]*domain.Withdrawal, int, error) {
	return uc.withdrawalRepo.List(ctx, f)
}

// payoutDestination resolves the processor-side account the payout goes to.
func (uc *WithdrawalUsecase) payoutDestination(ctx context.Context, paymentMethodID string) (string, error) {
	method, err := uc.methodRepo.GetByID(ctx, paymentMethodID)
	if err != nil {
		return "", err
	}
	if method.Type == domain.MethodStripe && method.Details.Stripe != nil && method.Details.Stripe.AccountID != "" {
		return method.Details.Stripe.AccountID, nil
	}
	if method.ExternalID != "" {
		return method.ExternalID, nil
	}
	return "", fmt.Errorf("payment method %s has no processor account: %w", paymentMethodID, xerrors.ErrInvalidRequest)
}
