package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"payment-service/internal/domain"
	"payment-service/internal/metrics"
	"payment-service/internal/repository"
)

// TransactionUsecase is the single write path into the ledger. Every money
// movement in the service is recorded and transitioned through here so
// publishing and notification happen uniformly.
type TransactionUsecase struct {
	txRepo    repository.TransactionRepository
	publisher EventPublisher
	notifier  Notifier
	logger    *zap.Logger
}

func NewTransactionUsecase(
	txRepo repository.TransactionRepository,
	publisher EventPublisher,
	notifier Notifier,
	logger *zap.Logger,
) *TransactionUsecase {
	return &TransactionUsecase{
		txRepo:    txRepo,
		publisher: publisher,
		notifier:  notifier,
		logger:    logger,
	}
}

// Record persists a transaction. Idempotent on the reference: recording the
// same movement twice returns the first record unchanged.
func (uc *TransactionUsecase) Record(ctx context.Context, t *domain.Transaction) (*domain.Transaction, error) {
	recorded, created, err := uc.txRepo.Record(ctx, t)
	if err != nil {
		return nil, err
	}
	if !created {
		uc.logger.Info("transaction already recorded for reference",
			zap.String("transaction_id", recorded.ID),
			zap.Stringp("reference", recorded.Reference))
		return recorded, nil
	}

	metrics.TransactionsRecorded.WithLabelValues(string(recorded.Type), string(recorded.Status)).Inc()
	uc.logger.Info("transaction recorded",
		zap.String("transaction_id", recorded.ID),
		zap.String("type", string(recorded.Type)),
		zap.String("status", string(recorded.Status)),
		zap.String("amount", recorded.Amount.String()))

	uc.afterChange(ctx, recorded)
	return recorded, nil
}

// Transition moves a transaction to a terminal state, applying the balance
// delta on the first completion. Re-delivery of the same outcome is a no-op.
func (uc *TransactionUsecase) Transition(ctx context.Context, id string, status domain.TransactionStatus, reason string) (*domain.Transaction, error) {
	t, applied, err := uc.txRepo.Transition(ctx, id, status, reason)
	if err != nil {
		return nil, err
	}
	if !applied && t.Status == status {
		// Duplicate outcome delivery; nothing more to do.
		return t, nil
	}

	metrics.TransactionTransitions.WithLabelValues(string(t.Type), string(t.Status)).Inc()
	uc.logger.Info("transaction transitioned",
		zap.String("transaction_id", t.ID),
		zap.String("type", string(t.Type)),
		zap.String("status", string(t.Status)))

	uc.afterChange(ctx, t)
	return t, nil
}

func (uc *TransactionUsecase) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	return uc.txRepo.GetByID(ctx, id)
}

func (uc *TransactionUsecase) GetByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	return uc.txRepo.GetByReference(ctx, reference)
}

func (uc *TransactionUsecase) List(ctx context.Context, f domain.TransactionFilter) ([]*domain.Transaction, int, error) {
	return uc.txRepo.List(ctx, f)
}

// afterChange handles the side channels of a ledger write. Both are best
// effort; the ledger entry is already committed.
func (uc *TransactionUsecase) afterChange(ctx context.Context, t *domain.Transaction) {
	if uc.publisher != nil {
		uc.publisher.PublishTransaction(ctx, t)
	}
	// The platform's own fee entries are bookkeeping, not user activity.
	if uc.notifier == nil || t.Type == domain.TxPlatformFee {
		return
	}

	title, message := notificationText(t)
	if title == "" {
		return
	}
	if err := uc.notifier.SendInApp(ctx, t.UserID, "payment", title, message, map[string]any{
		"transaction_id": t.ID,
		"type":           string(t.Type),
		"status":         string(t.Status),
		"amount":         t.Amount.String(),
	}); err != nil {
		uc.logger.Warn("failed to send transaction notification",
			zap.String("transaction_id", t.ID),
			zap.Error(err))
	}
}

func notificationText(t *domain.Transaction) (string, string) {
	switch t.Status {
	case domain.TxCompleted:
		switch t.Type {
		case domain.TxDeposit:
			return "Deposit received", fmt.Sprintf("Your deposit of %s has been credited.", t.Amount.StringFixed(2))
		case domain.TxWithdrawal:
			return "Withdrawal completed", fmt.Sprintf("Your withdrawal of %s has been paid out.", t.Amount.StringFixed(2))
		case domain.TxEscrowFunding:
			return "Escrow funded", fmt.Sprintf("%s has been moved into escrow.", t.Amount.StringFixed(2))
		case domain.TxMilestonePayment:
			return "Milestone payment received", fmt.Sprintf("You received %s for an approved milestone.", t.Amount.Sub(t.Fee).StringFixed(2))
		case domain.TxRefund:
			return "Refund issued", fmt.Sprintf("%s has been refunded to your wallet.", t.Amount.StringFixed(2))
		}
	case domain.TxFailed:
		return "Payment failed", fmt.Sprintf("Your %s of %s could not be completed.", t.Type, t.Amount.StringFixed(2))
	}
	return "", ""
}
