package usecase

import (
	"context"

	"go.uber.org/zap"

	"payment-service/internal/domain"
	"payment-service/internal/repository"
)

type WalletUsecase struct {
	walletRepo repository.WalletRepository
	logger     *zap.Logger
}

func NewWalletUsecase(walletRepo repository.WalletRepository, logger *zap.Logger) *WalletUsecase {
	return &WalletUsecase{walletRepo: walletRepo, logger: logger}
}

// GetOrCreate returns the wallet for a principal, creating it on first use.
func (uc *WalletUsecase) GetOrCreate(ctx context.Context, userID string) (*domain.Wallet, error) {
	return uc.walletRepo.GetOrCreate(ctx, userID)
}

func (uc *WalletUsecase) GetByID(ctx context.Context, id string) (*domain.Wallet, error) {
	return uc.walletRepo.GetByID(ctx, id)
}

func (uc *WalletUsecase) GetPlatform(ctx context.Context) (*domain.Wallet, error) {
	return uc.walletRepo.GetPlatform(ctx)
}

// UpdateStatus suspends, reactivates or closes a wallet. Admin only.
func (uc *WalletUsecase) UpdateStatus(ctx context.Context, id string, status domain.WalletStatus) (*domain.Wallet, error) {
	w, err := uc.walletRepo.UpdateStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	uc.logger.Info("wallet status updated",
		zap.String("wallet_id", w.ID),
		zap.String("status", string(w.Status)))
	return w, nil
}
