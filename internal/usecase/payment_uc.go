package usecase

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"payment-service/internal/domain"
	"payment-service/internal/gateway"
	"payment-service/internal/metrics"
	"payment-service/internal/repository"
	"payment-service/pkg/xerrors"
)

// PaymentUsecase handles deposits: a client-confirmable payment intent is
// opened at the processor, the deposit is recorded pending under the intent
// id, and the webhook reconciler settles it when the charge resolves.
type PaymentUsecase struct {
	walletRepo repository.WalletRepository
	txUC       *TransactionUsecase
	gw         gateway.Gateway
	currency   string
	logger     *zap.Logger
}

func NewPaymentUsecase(
	walletRepo repository.WalletRepository,
	txUC *TransactionUsecase,
	gw gateway.Gateway,
	currency string,
	logger *zap.Logger,
) *PaymentUsecase {
	return &PaymentUsecase{
		walletRepo: walletRepo,
		txUC:       txUC,
		gw:         gw,
		currency:   currency,
		logger:     logger,
	}
}

// DepositIntent is what the client needs to confirm the charge.
type DepositIntent struct {
	TransactionID string `json:"transaction_id"`
	IntentID      string `json:"intent_id"`
	ClientSecret  string `json:"client_secret"`
}

// CreateDeposit opens a payment intent for the amount and records the pending
// deposit against the user's wallet.
func (uc *PaymentUsecase) CreateDeposit(ctx context.Context, userID string, amount decimal.Decimal) (*DepositIntent, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: deposit amount must be positive", xerrors.ErrInvalidRequest)
	}

	wallet, err := uc.walletRepo.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	if wallet.Status != domain.WalletActive {
		return nil, fmt.Errorf("wallet %s: %w", wallet.ID, xerrors.ErrWalletNotActive)
	}

	intent, err := uc.gw.CreatePaymentIntent(ctx, amount, uc.currency, map[string]string{
		"user_id":   userID,
		"wallet_id": wallet.ID,
	})
	if err != nil {
		metrics.ProcessorRequests.WithLabelValues("payment_intent", "error").Inc()
		return nil, err
	}
	metrics.ProcessorRequests.WithLabelValues("payment_intent", "ok").Inc()

	tx, err := uc.txUC.Record(ctx, &domain.Transaction{
		UserID:              userID,
		Type:                domain.TxDeposit,
		Status:              domain.TxPending,
		Amount:              amount,
		DestinationWalletID: &wallet.ID,
		Description:         "Wallet deposit",
		Reference:           &intent.ID,
	})
	if err != nil {
		return nil, err
	}

	uc.logger.Info("deposit intent created",
		zap.String("transaction_id", tx.ID),
		zap.String("intent_id", intent.ID),
		zap.String("amount", amount.String()))

	return &DepositIntent{
		TransactionID: tx.ID,
		IntentID:      intent.ID,
		ClientSecret:  intent.ClientSecret,
	}, nil
}
