package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"payment-service/internal/domain"
	"payment-service/pkg/utils"
	"payment-service/pkg/xerrors"
)

type WalletRepository interface {
	// GetOrCreate lazily creates the wallet on first reference to a
	// principal.
	GetOrCreate(ctx context.Context, userID string) (*domain.Wallet, error)
	GetByID(ctx context.Context, id string) (*domain.Wallet, error)
	GetByUserID(ctx context.Context, userID string) (*domain.Wallet, error)
	GetPlatform(ctx context.Context) (*domain.Wallet, error)
	UpdateStatus(ctx context.Context, id string, status domain.WalletStatus) (*domain.Wallet, error)

	// Reserve moves amount from the available balance into the pending
	// balance ahead of an uncertain external outcome.
	Reserve(ctx context.Context, walletID string, amount decimal.Decimal) (*domain.Wallet, error)
	// Release returns a reservation to the available balance. Settling a
	// reservation for good is a ledger delta, not a wallet operation.
	Release(ctx context.Context, walletID string, amount decimal.Decimal) (*domain.Wallet, error)
}

type walletRepo struct {
	db  *pgxpool.Pool
	ids *utils.IDGenerator
}

func NewWalletRepo(db *pgxpool.Pool, ids *utils.IDGenerator) WalletRepository {
	return &walletRepo{db: db, ids: ids}
}

const walletColumns = `id, user_id, type, balance, available_balance, pending_balance, status, currency, created_at, updated_at`

func scanWallet(row pgx.Row) (*domain.Wallet, error) {
	var w domain.Wallet
	err := row.Scan(
		&w.ID, &w.UserID, &w.Type,
		&w.Balance, &w.AvailableBalance, &w.PendingBalance,
		&w.Status, &w.Currency, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("wallet: %w", xerrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to scan wallet: %w", err)
	}
	return &w, nil
}

func (r *walletRepo) GetOrCreate(ctx context.Context, userID string) (*domain.Wallet, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id required", xerrors.ErrInvalidRequest)
	}

	walletType := domain.WalletTypeUser
	if userID == domain.PlatformUserID {
		walletType = domain.WalletTypePlatform
	}

	query := `
		INSERT INTO wallets (id, user_id, type)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO NOTHING
	`
	if _, err := r.db.Exec(ctx, query, r.ids.NewID(), userID, walletType); err != nil {
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}
	return r.GetByUserID(ctx, userID)
}

func (r *walletRepo) GetByID(ctx context.Context, id string) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE id = $1`
	return scanWallet(r.db.QueryRow(ctx, query, id))
}

func (r *walletRepo) GetByUserID(ctx context.Context, userID string) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE user_id = $1`
	return scanWallet(r.db.QueryRow(ctx, query, userID))
}

func (r *walletRepo) GetPlatform(ctx context.Context) (*domain.Wallet, error) {
	return r.GetOrCreate(ctx, domain.PlatformUserID)
}

func (r *walletRepo) UpdateStatus(ctx context.Context, id string, status domain.WalletStatus) (*domain.Wallet, error) {
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.CanTransitionTo(status) {
		return nil, fmt.Errorf("wallet %s -> %s: %w", current.Status, status, xerrors.ErrInvalidStateTransition)
	}

	query := `
		UPDATE wallets SET status = $2, updated_at = now()
		WHERE id = $1 AND status = $3
		RETURNING ` + walletColumns
	return scanWallet(r.db.QueryRow(ctx, query, id, status, current.Status))
}

func (r *walletRepo) Reserve(ctx context.Context, walletID string, amount decimal.Decimal) (*domain.Wallet, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: reservation amount must be positive", xerrors.ErrInvalidRequest)
	}

	query := `
		UPDATE wallets
		SET available_balance = available_balance - $2,
		    pending_balance = pending_balance + $2,
		    updated_at = now()
		WHERE id = $1 AND status = 'active' AND available_balance >= $2
		RETURNING ` + walletColumns
	w, err := scanWallet(r.db.QueryRow(ctx, query, walletID, amount))
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, xerrors.ErrNotFound) {
		return nil, err
	}
	return nil, r.explainGuardFailure(ctx, walletID, xerrors.ErrInsufficientFunds)
}

func (r *walletRepo) Release(ctx context.Context, walletID string, amount decimal.Decimal) (*domain.Wallet, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: release amount must be positive", xerrors.ErrInvalidRequest)
	}

	query := `
		UPDATE wallets
		SET available_balance = available_balance + $2,
		    pending_balance = pending_balance - $2,
		    updated_at = now()
		WHERE id = $1 AND pending_balance >= $2
		RETURNING ` + walletColumns
	w, err := scanWallet(r.db.QueryRow(ctx, query, walletID, amount))
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, xerrors.ErrNotFound) {
		return nil, err
	}
	return nil, r.explainGuardFailure(ctx, walletID, xerrors.ErrInvalidStateTransition)
}

// explainGuardFailure distinguishes a missing wallet from a guarded update
// that matched no row.
func (r *walletRepo) explainGuardFailure(ctx context.Context, walletID string, guardErr error) error {
	w, err := r.GetByID(ctx, walletID)
	if err != nil {
		return err
	}
	if w.Status != domain.WalletActive {
		return fmt.Errorf("wallet %s: %w", w.ID, xerrors.ErrWalletNotActive)
	}
	return fmt.Errorf("wallet %s: %w", w.ID, guardErr)
}
