package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"payment-service/internal/domain"
	"payment-service/pkg/xerrors"
)

type WalletRepo struct {
	s *Store
}

func (r *WalletRepo) GetOrCreate(ctx context.Context, userID string) (*domain.Wallet, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id required", xerrors.ErrInvalidRequest)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return copyWallet(r.s.getOrCreateWalletLocked(userID)), nil
}

func (s *Store) getOrCreateWalletLocked(userID string) *domain.Wallet {
	if id, ok := s.walletByUser[userID]; ok {
		return s.wallets[id]
	}
	walletType := domain.WalletTypeUser
	if userID == domain.PlatformUserID {
		walletType = domain.WalletTypePlatform
	}
	now := time.Now()
	w := &domain.Wallet{
		ID:               s.ids.NewID(),
		UserID:           userID,
		Type:             walletType,
		Balance:          decimal.Zero,
		AvailableBalance: decimal.Zero,
		PendingBalance:   decimal.Zero,
		Status:           domain.WalletActive,
		Currency:         "USD",
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	s.wallets[w.ID] = w
	s.walletByUser[userID] = w.ID
	return w
}

func (r *WalletRepo) GetByID(ctx context.Context, id string) (*domain.Wallet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w, ok := r.s.wallets[id]
	if !ok {
		return nil, fmt.Errorf("wallet: %w", xerrors.ErrNotFound)
	}
	return copyWallet(w), nil
}

func (r *WalletRepo) GetByUserID(ctx context.Context, userID string) (*domain.Wallet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	id, ok := r.s.walletByUser[userID]
	if !ok {
		return nil, fmt.Errorf("wallet: %w", xerrors.ErrNotFound)
	}
	return copyWallet(r.s.wallets[id]), nil
}

func (r *WalletRepo) GetPlatform(ctx context.Context) (*domain.Wallet, error) {
	return r.GetOrCreate(ctx, domain.PlatformUserID)
}

func (r *WalletRepo) UpdateStatus(ctx context.Context, id string, status domain.WalletStatus) (*domain.Wallet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w, ok := r.s.wallets[id]
	if !ok {
		return nil, fmt.Errorf("wallet: %w", xerrors.ErrNotFound)
	}
	if !w.CanTransitionTo(status) {
		return nil, fmt.Errorf("wallet %s -> %s: %w", w.Status, status, xerrors.ErrInvalidStateTransition)
	}
	w.Status = status
	w.UpdatedAt = time.Now()
	return copyWallet(w), nil
}

func (r *WalletRepo) Reserve(ctx context.Context, walletID string, amount decimal.Decimal) (*domain.Wallet, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: reservation amount must be positive", xerrors.ErrInvalidRequest)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w, ok := r.s.wallets[walletID]
	if !ok {
		return nil, fmt.Errorf("wallet: %w", xerrors.ErrNotFound)
	}
	if w.Status != domain.WalletActive {
		return nil, fmt.Errorf("wallet %s: %w", w.ID, xerrors.ErrWalletNotActive)
	}
	if w.AvailableBalance.LessThan(amount) {
		return nil, fmt.Errorf("wallet %s: %w", w.ID, xerrors.ErrInsufficientFunds)
	}
	w.AvailableBalance = w.AvailableBalance.Sub(amount)
	w.PendingBalance = w.PendingBalance.Add(amount)
	w.UpdatedAt = time.Now()
	return copyWallet(w), nil
}

func (r *WalletRepo) Release(ctx context.Context, walletID string, amount decimal.Decimal) (*domain.Wallet, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: release amount must be positive", xerrors.ErrInvalidRequest)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w, ok := r.s.wallets[walletID]
	if !ok {
		return nil, fmt.Errorf("wallet: %w", xerrors.ErrNotFound)
	}
	if w.PendingBalance.LessThan(amount) {
		return nil, fmt.Errorf("wallet %s: %w", w.ID, xerrors.ErrInvalidStateTransition)
	}
	w.PendingBalance = w.PendingBalance.Sub(amount)
	w.AvailableBalance = w.AvailableBalance.Add(amount)
	w.UpdatedAt = time.Now()
	return copyWallet(w), nil
}
